// Package surf implements the Succinct Range Filter: a static, space
// efficient, approximate membership structure over ordered byte-string keys
// that answers point and range queries with no false negatives and a
// bounded false-positive rate.
//
// The filter stores a two-tier LOUDS-encoded trie: the upper levels as
// 256-bit-per-node bitmaps for fast descent, the lower levels in
// LOUDS-sparse form. It is built once from a sorted key list and is
// thereafter immutable and safe for concurrent readers. Iterators are not
// thread-safe; use one per goroutine.
package surf

import (
	"bytes"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/internal/encoding"
)

// Filter is the built, immutable succinct range filter.
type Filter struct {
	height uint32
	dense  *loudsDense
	sparse *loudsSparse
}

// Build constructs a filter from unique, strictly ascending keys. Zero
// bytes are legal key content, with one exception the encoding cannot
// represent: a key that is a proper prefix of a following key whose next
// byte is 0x00 is rejected as invalid input. A nil opts uses
// DefaultOptions.
func Build(keys [][]byte, opts *Options) (*Filter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	b := newBuilder(opts)
	if err := b.build(keys); err != nil {
		return nil, err
	}
	f := &Filter{
		height: b.treeHeight(),
		dense:  newLoudsDense(b),
		sparse: newLoudsSparse(b),
	}
	opts.logger().Debug("filter built",
		"keys", len(keys),
		"height", f.height,
		"sparseStart", f.dense.sparseStart,
		"suffixKind", b.suffixKind.String(),
		"serializedBytes", f.SerializedSize(),
	)
	return f, nil
}

// Height returns the trie height.
func (f *Filter) Height() uint32 { return f.height }

// SparseStartLevel returns the first level stored in LOUDS-sparse form.
func (f *Filter) SparseStartLevel() uint32 { return f.dense.sparseStart }

// MemoryUsage returns the approximate in-memory footprint in bytes.
func (f *Filter) MemoryUsage() uint64 {
	return uint64(f.SerializedSize())
}

// Lookup reports whether key may be in the set. A true answer may be a
// false positive bounded by the configured suffix length; false is exact.
func (f *Filter) Lookup(key []byte) bool {
	if f.height == 0 {
		return false
	}
	if f.dense.sparseStart == 0 {
		return f.sparse.lookupKey(key, 0)
	}
	ok, next, cont := f.dense.lookupKey(key)
	if !ok {
		return false
	}
	if !cont {
		return true
	}
	return f.sparse.lookupKey(key, next)
}

// LookupRange reports whether any key may lie in the interval between left
// and right with the given inclusivity.
func (f *Filter) LookupRange(left []byte, leftInclusive bool, right []byte, rightInclusive bool) bool {
	if f.height == 0 {
		return false
	}
	it := f.MoveToKeyGreaterThan(left, leftInclusive)
	if !it.Valid() {
		return false
	}
	cmp := it.compare(right)
	if cmp == encoding.CouldBePositive {
		return true
	}
	if rightInclusive {
		return cmp <= 0
	}
	return cmp < 0
}

// ApproxCount estimates the number of stored keys strictly between left and
// right. The estimate never overcounts distinguishable keys and undercounts
// by at most two boundary keys.
func (f *Filter) ApproxCount(left, right []byte) uint64 {
	if f.height == 0 {
		return 0
	}
	l := f.MoveToKeyGreaterThan(left, true)
	if !l.Valid() {
		return 0
	}
	r := f.MoveToKeyGreaterThan(right, true)
	if !r.Valid() {
		r = f.MoveToLast()
	}
	return f.ApproxCountBetween(l, r)
}

// ApproxCountBetween counts the leaves strictly between two positioned
// iterators.
func (f *Filter) ApproxCountBetween(l, r *Iter) uint64 {
	if !l.Valid() || !r.Valid() {
		return 0
	}
	var count uint64
	lUseStack, rUseStack := true, true
	var lBridge, rBridge uint32
	if f.dense.sparseStart > 0 {
		count, lBridge, rBridge, lUseStack, rUseStack = f.denseCountBetween(l, r)
	}
	return count + f.sparseCountBetween(l, r, lUseStack, lBridge, rUseStack, rBridge)
}

// denseCountBetween sums, per dense level, the leaves between the two
// iterator paths, extending each path past its leaf with half-open subtree
// bounds. It returns the bridge node numbers where each bound enters the
// sparse tier.
func (f *Filter) denseCountBetween(l, r *Iter) (count uint64, lBridge, rBridge uint32, lUseStack, rUseStack bool) {
	ld := f.dense
	lIt, rIt := &l.dense, &r.dense
	lUseStack = !lIt.isComplete()
	rUseStack = !rIt.isComplete()
	lLen, rLen := lIt.keyLen, rIt.keyLen

	var lb, rb uint32
	var lNodeNext, rNodeNext uint32
	lChain, rChain := false, false
	for level := uint32(0); level < ld.sparseStart; level++ {
		if !lChain && level < lLen {
			p := lIt.posInTrie[level]
			if lIt.atPrefixKey && level == lLen-1 {
				lb = p
			} else {
				lb = p + 1
			}
			if level == lLen-1 {
				lChain = true
			}
		} else {
			lb = lNodeNext * common.NodeFanout
		}
		if !rChain && level < rLen {
			rb = rIt.posInTrie[level]
			if level == rLen-1 {
				rChain = true
			}
		} else {
			rb = rNodeNext * common.NodeFanout
		}

		if rb > lb {
			labels := ld.labelBitmaps.RankExclusive(rb) - ld.labelBitmaps.RankExclusive(lb)
			children := ld.childIndicatorBitmaps.RankExclusive(rb) - ld.childIndicatorBitmaps.RankExclusive(lb)
			count += uint64(labels - children)

			// Prefix keys of nodes whose subtrees lie inside the bounds.
			nl := (lb - 1) / common.NodeFanout
			nr := (rb - 1) / common.NodeFanout
			if nr > nl {
				pk := ld.prefixkeyIndicatorBits.Rank(nr) - ld.prefixkeyIndicatorBits.Rank(nl)
				if rIt.atPrefixKey && level == rLen-1 && pk > 0 {
					// The right key is that node's own prefix key.
					pk--
				}
				count += uint64(pk)
			}
		}

		lNodeNext = ld.childIndicatorBitmaps.RankExclusive(lb) + 1
		rNodeNext = ld.childIndicatorBitmaps.RankExclusive(rb) + 1
	}
	return count, lNodeNext, rNodeNext, lUseStack, rUseStack
}

// sparseCountBetween continues the per-level count through the sparse tier,
// seeded either by each iterator's sparse path or by the bridge node its
// dense bound descended into.
func (f *Filter) sparseCountBetween(l, r *Iter, lUseStack bool, lBridge uint32, rUseStack bool, rBridge uint32) uint64 {
	ls := f.sparse
	if ls.startLevel >= ls.height {
		return 0
	}
	lIt, rIt := &l.sparse, &r.sparse
	lLen, rLen := uint32(0), uint32(0)
	if lUseStack && lIt.valid {
		lLen = lIt.keyLen
	}
	if rUseStack && rIt.valid {
		rLen = rIt.keyLen
	}

	var count uint64
	var lb, rb uint32
	lChain, rChain := lLen == 0, rLen == 0
	lNodeNext, rNodeNext := lBridge, rBridge
	for rel := uint32(0); rel < ls.height-ls.startLevel; rel++ {
		levelEnd := ls.levelCuts[ls.startLevel+rel] + 1
		if !lChain && rel < lLen {
			lb = lIt.posInTrie[rel] + 1
			if rel == lLen-1 {
				lChain = true
			}
		} else {
			lb = ls.boundPos(lNodeNext, levelEnd)
		}
		if !rChain && rel < rLen {
			rb = rIt.posInTrie[rel]
			if rel == rLen-1 {
				rChain = true
			}
		} else {
			rb = ls.boundPos(rNodeNext, levelEnd)
		}

		if rb > lb {
			children := ls.childIndicatorBits.RankExclusive(rb) - ls.childIndicatorBits.RankExclusive(lb)
			count += uint64((rb - lb) - children)
		}

		lNodeNext = ls.childIndicatorBits.RankExclusive(lb) + ls.denseChildCount + 1
		rNodeNext = ls.childIndicatorBits.RankExclusive(rb) + ls.denseChildCount + 1
	}
	return count
}

// boundPos maps a bound's node number to its first edge position, clamping
// to the level end when the node lies past the encoded trie.
func (ls *loudsSparse) boundPos(nodeNum, levelEnd uint32) uint32 {
	k := nodeNum + 1 - ls.denseNodeCount
	if k > ls.loudsBits.NumOnes() {
		return levelEnd
	}
	return ls.loudsBits.Select(k)
}

// MoveToKeyGreaterThan returns an iterator at the first key >= key
// (inclusive) or conservatively at the first key the suffix bits cannot
// prove smaller (exclusive).
func (f *Filter) MoveToKeyGreaterThan(key []byte, inclusive bool) *Iter {
	it := f.newIter()
	if f.height == 0 {
		return it
	}
	if f.dense.sparseStart == 0 {
		it.couldBeFP = f.sparse.moveToKeyGreaterThan(key, inclusive, &it.sparse)
		return it
	}
	it.couldBeFP = f.dense.moveToKeyGreaterThan(key, inclusive, &it.dense)
	if !it.dense.valid || it.dense.isComplete() {
		return it
	}
	if !it.dense.searchComplete {
		it.passToSparse()
		it.couldBeFP = f.sparse.moveToKeyGreaterThan(key, inclusive, &it.sparse)
		if !it.sparse.valid {
			it.incrementDenseIter()
		}
		return it
	}
	if !it.dense.moveLeftComplete {
		it.passToSparse()
		it.sparse.moveToLeftMostKey()
	}
	return it
}

// MoveToKeyLessThan returns an iterator at the last key <= key (inclusive)
// or < key (exclusive), conservatively when suffix bits cannot decide.
func (f *Filter) MoveToKeyLessThan(key []byte, inclusive bool) *Iter {
	it := f.MoveToKeyGreaterThan(key, false)
	if !it.Valid() {
		return f.MoveToLast()
	}
	if !it.couldBeFP || it.compare(key) == 1 {
		it.Prev()
		if !inclusive && f.Lookup(key) {
			it.Prev()
		}
	}
	return it
}

// MoveToFirst returns an iterator at the smallest stored key.
func (f *Filter) MoveToFirst() *Iter {
	it := f.newIter()
	if f.height == 0 {
		return it
	}
	if f.dense.sparseStart > 0 {
		it.dense.setToFirstLabelInRoot()
		it.dense.moveToLeftMostKey()
		if it.dense.moveLeftComplete {
			return it
		}
		it.passToSparse()
		it.sparse.moveToLeftMostKey()
	} else {
		it.sparse.setToFirstLabelInRoot()
		it.sparse.moveToLeftMostKey()
	}
	return it
}

// MoveToLast returns an iterator at the largest stored key.
func (f *Filter) MoveToLast() *Iter {
	it := f.newIter()
	if f.height == 0 {
		return it
	}
	if f.dense.sparseStart > 0 {
		it.dense.setToLastLabelInRoot()
		it.dense.moveToRightMostKey()
		if it.dense.moveRightComplete {
			return it
		}
		it.passToSparse()
		it.sparse.moveToRightMostKey()
	} else {
		it.sparse.setToLastLabelInRoot()
		it.sparse.moveToRightMostKey()
	}
	return it
}

// SerializedSize returns the byte length Serialize would produce.
func (f *Filter) SerializedSize() uint32 {
	return f.dense.serializedSize() + f.sparse.serializedSize()
}

// Serialize encodes the filter as the dense tier followed by the sparse
// tier, every integer big-endian.
func (f *Filter) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(f.SerializedSize()))
	if err := f.dense.serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize dense tier: %w", err)
	}
	if err := f.sparse.serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize sparse tier: %w", err)
	}
	if uint32(buf.Len()) != f.SerializedSize() {
		return nil, fmt.Errorf("serialized %d bytes, expected %d", buf.Len(), f.SerializedSize())
	}
	return buf.Bytes(), nil
}

// Deserialize decodes a filter produced by Serialize. The input is
// validated; on any inconsistency no filter is returned.
func Deserialize(data []byte) (*Filter, error) {
	r := bytes.NewReader(data)
	dense, err := deserializeLoudsDense(r)
	if err != nil {
		return nil, err
	}
	sparse, err := deserializeLoudsSparse(r)
	if err != nil {
		return nil, err
	}
	if dense.height != sparse.height || dense.sparseStart != sparse.startLevel {
		return nil, fmt.Errorf("tier headers disagree: %w", common.ErrCorruptStream)
	}
	return &Filter{height: sparse.height, dense: dense, sparse: sparse}, nil
}
