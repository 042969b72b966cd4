package surf

import "github.com/booknouse/go-surf/internal/encoding"

// Iter is the tier-crossing iterator over a filter's stored keys. It borrows
// the filter for its lifetime and yields keys in lexicographic order. Keys
// reported are the trie's stored prefixes; with a real suffix configured,
// KeyWithSuffix restores the stored continuation bits.
//
// An Iter is not safe for concurrent use.
type Iter struct {
	f         *Filter
	dense     denseIter
	sparse    sparseIter
	couldBeFP bool
}

func (f *Filter) newIter() *Iter {
	return &Iter{
		f:      f,
		dense:  newDenseIter(f.dense),
		sparse: newSparseIter(f.sparse),
	}
}

// Valid reports whether the iterator points at a key.
func (it *Iter) Valid() bool {
	if it.f.height == 0 {
		return false
	}
	if it.f.dense.sparseStart == 0 {
		return it.sparse.valid
	}
	return it.dense.valid && (it.dense.isComplete() || it.sparse.valid)
}

// CouldBeFalsePositive reports whether the last positioning operation stopped
// on a leaf whose stored suffix bits did not prove it smaller than the search
// key; the key there may equal the search key or sort after it.
func (it *Iter) CouldBeFalsePositive() bool { return it.couldBeFP }

// Clear resets the iterator to the invalid state.
func (it *Iter) Clear() {
	it.dense.clear()
	it.sparse.clear()
	it.couldBeFP = false
}

// Key returns the current key prefix stored in the trie.
func (it *Iter) Key() []byte {
	if !it.Valid() {
		return nil
	}
	if it.f.dense.sparseStart == 0 {
		return append([]byte(nil), it.sparse.getKey()...)
	}
	key := append([]byte(nil), it.dense.getKey()...)
	if it.dense.isComplete() {
		return key
	}
	return append(key, it.sparse.getKey()...)
}

// Suffix returns the current leaf's stored real-suffix bits and their
// length. Hash and empty suffixes yield zero length.
func (it *Iter) Suffix() (uint64, uint32) {
	if !it.Valid() {
		return 0, 0
	}
	if it.f.dense.sparseStart == 0 || !it.dense.isComplete() {
		return it.sparse.suffix()
	}
	return it.dense.suffix()
}

// KeyWithSuffix returns the current key with any stored real-suffix bits
// appended, rounded up to whole bytes.
func (it *Iter) KeyWithSuffix() []byte {
	key := it.Key()
	s, n := it.Suffix()
	if n == 0 || s == 0 {
		return key
	}
	v := s << (64 - n)
	for consumed := uint32(0); consumed < n; consumed += 8 {
		key = append(key, byte(v>>56))
		v <<= 8
	}
	return key
}

// Next advances to the next key and reports validity.
func (it *Iter) Next() bool {
	if !it.Valid() {
		return false
	}
	if it.f.dense.sparseStart == 0 {
		it.sparse.next()
		return it.sparse.valid
	}
	if it.incrementSparseIter() {
		return true
	}
	return it.incrementDenseIter()
}

// Prev steps back to the previous key and reports validity.
func (it *Iter) Prev() bool {
	if !it.Valid() {
		return false
	}
	if it.f.dense.sparseStart == 0 {
		it.sparse.prev()
		return it.sparse.valid
	}
	if it.decrementSparseIter() {
		return true
	}
	return it.decrementDenseIter()
}

// compare orders the iterator's key against key; encoding.CouldBePositive
// means the stored suffix cannot decide.
func (it *Iter) compare(key []byte) int {
	if it.f.dense.sparseStart == 0 {
		return it.sparse.compare(key)
	}
	cmp := it.dense.compare(key)
	if it.dense.isComplete() || cmp != 0 {
		return cmp
	}
	return it.sparse.compare(key)
}

func (it *Iter) passToSparse() {
	it.sparse.startNodeNum = it.dense.sendOutNodeNum
}

func (it *Iter) incrementSparseIter() bool {
	if !it.sparse.valid {
		return false
	}
	it.sparse.next()
	return it.sparse.valid
}

func (it *Iter) incrementDenseIter() bool {
	if !it.dense.valid {
		return false
	}
	it.dense.next()
	if !it.dense.valid {
		return false
	}
	if it.dense.moveLeftComplete {
		return true
	}
	it.passToSparse()
	it.sparse.moveToLeftMostKey()
	return it.sparse.valid
}

func (it *Iter) decrementSparseIter() bool {
	if !it.sparse.valid {
		return false
	}
	it.sparse.prev()
	return it.sparse.valid
}

func (it *Iter) decrementDenseIter() bool {
	if !it.dense.valid {
		return false
	}
	it.dense.prev()
	if !it.dense.valid {
		return false
	}
	if it.dense.moveRightComplete {
		return true
	}
	it.passToSparse()
	it.sparse.moveToRightMostKey()
	return it.sparse.valid
}

// suffix returns the dense leaf's stored real-suffix bits.
func (it *denseIter) suffix() (uint64, uint32) {
	kind := it.trie.suffixes.Kind()
	if kind != encoding.SuffixReal && kind != encoding.SuffixMixed {
		return 0, 0
	}
	sp := it.trie.suffixPos(it.posInTrie[it.keyLen-1], it.atPrefixKey)
	return it.trie.suffixes.ReadReal(sp), it.trie.suffixes.RealLen()
}
