package surf

import (
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/internal/encoding"
)

// SuffixKind selects what each leaf stores to disambiguate keys sharing the
// same trie prefix.
type SuffixKind = encoding.SuffixKind

// Suffix kinds.
const (
	SuffixNone  = encoding.SuffixNone
	SuffixHash  = encoding.SuffixHash
	SuffixReal  = encoding.SuffixReal
	SuffixMixed = encoding.SuffixMixed
)

// Options configures filter construction.
type Options struct {
	// IncludeDense enables the bitmap-dense encoding for the upper trie
	// levels. Disabling it stores the whole trie in LOUDS-sparse form.
	IncludeDense bool

	// SparseDenseRatio trades space for speed when choosing the cutover
	// level between the two encodings. The dense tier grows level by level
	// while its size times this ratio stays below the size of the sparse
	// encoding of the remaining levels, so larger values keep the dense tier
	// smaller. Must be one of 1, 2, 4, 8, 16.
	SparseDenseRatio uint32

	// SuffixKind selects the per-leaf suffix bits stored to lower the
	// false-positive rate.
	SuffixKind SuffixKind

	// HashSuffixLen is the number of key-hash bits stored per leaf.
	HashSuffixLen uint32

	// RealSuffixLen is the number of key-continuation bits stored per leaf.
	RealSuffixLen uint32

	// Logger provides structured logging during construction.
	Logger common.Logger
}

// DefaultOptions returns options with the dense tier enabled and no suffix
// bits.
func DefaultOptions() *Options {
	return &Options{
		IncludeDense:     true,
		SparseDenseRatio: common.DefaultSparseDenseRatio,
		SuffixKind:       SuffixNone,
	}
}

func (o *Options) validate() error {
	switch o.SparseDenseRatio {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("sparse-dense ratio %d not in {1,2,4,8,16}", o.SparseDenseRatio)
	}
	if o.HashSuffixLen > 64 || o.RealSuffixLen > 64 || o.HashSuffixLen+o.RealSuffixLen > 64 {
		return fmt.Errorf("suffix lengths %d+%d exceed 64 bits", o.HashSuffixLen, o.RealSuffixLen)
	}
	switch o.SuffixKind {
	case SuffixNone:
		if o.HashSuffixLen != 0 || o.RealSuffixLen != 0 {
			return fmt.Errorf("suffix kind none requires zero suffix lengths")
		}
	case SuffixHash:
		if o.HashSuffixLen == 0 || o.RealSuffixLen != 0 {
			return fmt.Errorf("suffix kind hash requires hash bits only")
		}
	case SuffixReal:
		if o.RealSuffixLen == 0 || o.HashSuffixLen != 0 {
			return fmt.Errorf("suffix kind real requires real bits only")
		}
	case SuffixMixed:
		if o.HashSuffixLen == 0 || o.RealSuffixLen == 0 {
			return fmt.Errorf("suffix kind mixed requires both hash and real bits")
		}
	default:
		return fmt.Errorf("unknown suffix kind %d", o.SuffixKind)
	}
	return nil
}

func (o *Options) logger() common.Logger {
	if o.Logger == nil {
		return common.NewNullLogger()
	}
	return o.Logger
}
