package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/zeebo/xxh3"
)

// SuffixKind selects what each leaf stores to disambiguate keys that share
// the same trie prefix.
type SuffixKind uint32

const (
	// SuffixNone stores nothing; every prefix match is reported positive.
	SuffixNone SuffixKind = iota
	// SuffixHash stores the low bits of a 64-bit hash of the key.
	SuffixHash
	// SuffixReal stores the next bits of the key beyond the trie prefix.
	SuffixReal
	// SuffixMixed concatenates hash bits then real bits.
	SuffixMixed
)

func (k SuffixKind) String() string {
	switch k {
	case SuffixNone:
		return "none"
	case SuffixHash:
		return "hash"
	case SuffixReal:
		return "real"
	case SuffixMixed:
		return "mixed"
	}
	return "unknown"
}

// CouldBePositive is the Compare outcome when the stored suffix cannot order
// the probing key definitively. Callers must treat it as a possible match.
const CouldBePositive = 2

// SuffixStore packs the per-leaf suffix bits of one tier into a single bit
// buffer. Leaf i occupies bits [i*L, (i+1)*L) where L = hashLen + realLen.
type SuffixStore struct {
	Bitvector
	kind    SuffixKind
	hashLen uint32
	realLen uint32
}

// NewSuffixStore concatenates the per-level suffix bit runs for levels
// [startLevel, endLevel).
func NewSuffixStore(kind SuffixKind, hashLen, realLen uint32, perLevel []*Bits, startLevel, endLevel uint32) *SuffixStore {
	if kind == SuffixNone {
		return &SuffixStore{kind: SuffixNone}
	}
	return &SuffixStore{
		Bitvector: *NewBitvector(perLevel, startLevel, endLevel),
		kind:      kind,
		hashLen:   hashLen,
		realLen:   realLen,
	}
}

// Kind returns the suffix kind.
func (ss *SuffixStore) Kind() SuffixKind { return ss.kind }

// HashLen returns the number of hash bits per leaf.
func (ss *SuffixStore) HashLen() uint32 { return ss.hashLen }

// RealLen returns the number of real key bits per leaf.
func (ss *SuffixStore) RealLen() uint32 { return ss.realLen }

// SuffixLen returns the total bits per leaf.
func (ss *SuffixStore) SuffixLen() uint32 { return ss.hashLen + ss.realLen }

// ConstructSuffix derives the suffix bits for key at the given trie level.
// level counts the key bytes consumed, including the leaf's own label.
func ConstructSuffix(kind SuffixKind, key []byte, hashLen uint32, level, realLen uint32) uint64 {
	switch kind {
	case SuffixHash:
		return ConstructHashSuffix(key, hashLen)
	case SuffixReal:
		return ConstructRealSuffix(key, level, realLen)
	case SuffixMixed:
		return ConstructHashSuffix(key, hashLen)<<realLen | ConstructRealSuffix(key, level, realLen)
	default:
		return 0
	}
}

// ConstructHashSuffix returns the low hashLen bits of the key's 64-bit hash.
func ConstructHashSuffix(key []byte, hashLen uint32) uint64 {
	if hashLen == 0 {
		return 0
	}
	return xxh3.Hash(key) & (^uint64(0) >> (WordSize - hashLen))
}

// ConstructRealSuffix returns the next realLen bits of key starting at byte
// offset level, MSB-first and right-aligned. Missing bits read as zero.
func ConstructRealSuffix(key []byte, level, realLen uint32) uint64 {
	if realLen == 0 || uint32(len(key)) <= level {
		return 0
	}
	var suffix uint64
	remaining := realLen
	for i := level; remaining > 0; i++ {
		var b byte
		if i < uint32(len(key)) {
			b = key[i]
		}
		if remaining >= 8 {
			suffix = suffix<<8 | uint64(b)
			remaining -= 8
		} else {
			suffix = suffix<<remaining | uint64(b>>(8-remaining))
			remaining = 0
		}
	}
	return suffix
}

// Read returns leaf idx's stored suffix bits, right-aligned.
func (ss *SuffixStore) Read(idx uint32) uint64 {
	l := ss.SuffixLen()
	if l == 0 {
		return 0
	}
	bitPos := idx * l
	if bitPos >= ss.numBits {
		return 0
	}
	wordID := bitPos / WordSize
	offset := bitPos % WordSize
	v := ss.words[wordID] << offset
	if offset+l > WordSize && wordID+1 < uint32(len(ss.words)) {
		v |= ss.words[wordID+1] >> (WordSize - offset)
	}
	return v >> (WordSize - l)
}

// ReadReal returns leaf idx's real-suffix bits, right-aligned.
func (ss *SuffixStore) ReadReal(idx uint32) uint64 {
	if ss.realLen == 0 {
		return 0
	}
	return ss.Read(idx) & (^uint64(0) >> (WordSize - ss.realLen))
}

// CheckEquality reports whether leaf idx's stored suffix matches the suffix
// derived from key at the given level. Trivially true when no suffix is
// stored.
func (ss *SuffixStore) CheckEquality(idx uint32, key []byte, level uint32) bool {
	if ss.kind == SuffixNone {
		return true
	}
	if idx*ss.SuffixLen() >= ss.numBits {
		return false
	}
	stored := ss.Read(idx)
	if ss.kind == SuffixReal && stored == 0 {
		// No continuation bits survive for the stored key; conservatively
		// accept.
		return true
	}
	return stored == ConstructSuffix(ss.kind, key, ss.hashLen, level, ss.realLen)
}

// Compare orders leaf idx's stored suffix against the suffix derived from
// key. It returns a negative value when the stored suffix sorts before the
// key, a positive value when after, and CouldBePositive when the suffix kind
// cannot order the key space.
func (ss *SuffixStore) Compare(idx uint32, key []byte, level uint32) int {
	if ss.kind == SuffixNone || ss.kind == SuffixHash {
		return CouldBePositive
	}
	if idx*ss.SuffixLen() >= ss.numBits {
		return CouldBePositive
	}
	stored := ss.Read(idx)
	if ss.kind == SuffixMixed {
		stored &= ^uint64(0) >> (WordSize - ss.realLen)
	}
	querying := ConstructRealSuffix(key, level, ss.realLen)
	switch {
	case stored == 0 && querying == 0:
		return CouldBePositive
	case stored == 0 || stored < querying:
		return -1
	case stored == querying:
		return CouldBePositive
	default:
		return 1
	}
}

// SerializedSize returns the wire size in bytes.
func (ss *SuffixStore) SerializedSize() uint32 {
	return 4 + 4 + 4 + 4 + ss.BitsSize()
}

// Serialize writes kind, hashLen, realLen, numBits, then the raw suffix
// words, all big-endian.
func (ss *SuffixStore) Serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(ss.kind)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ss.hashLen); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ss.realLen); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ss.numBits); err != nil {
		return err
	}
	return writeWords(w, ss.words)
}

// DeserializeSuffixStore reads a suffix store written by Serialize.
func DeserializeSuffixStore(r *bytes.Reader) (*SuffixStore, error) {
	ss := &SuffixStore{}
	var kind uint32
	if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
		return nil, fmt.Errorf("suffix kind: %w", common.ErrCorruptStream)
	}
	if kind > uint32(SuffixMixed) {
		return nil, fmt.Errorf("suffix kind %d: %w", kind, common.ErrCorruptStream)
	}
	ss.kind = SuffixKind(kind)
	if err := binary.Read(r, binary.BigEndian, &ss.hashLen); err != nil {
		return nil, fmt.Errorf("suffix hash len: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ss.realLen); err != nil {
		return nil, fmt.Errorf("suffix real len: %w", common.ErrCorruptStream)
	}
	if ss.hashLen > WordSize || ss.realLen > WordSize || ss.hashLen+ss.realLen > WordSize {
		return nil, fmt.Errorf("suffix lengths %d+%d: %w", ss.hashLen, ss.realLen, common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ss.numBits); err != nil {
		return nil, fmt.Errorf("suffix bit count: %w", common.ErrCorruptStream)
	}
	var err error
	ss.words, err = readWords(r, NumWordsFor(ss.numBits))
	if err != nil {
		return nil, err
	}
	return ss, nil
}
