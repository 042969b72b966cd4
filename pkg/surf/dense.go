package surf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/internal/encoding"
)

// loudsDense encodes the upper trie levels as 256-bit-per-node bitmaps.
// Node n's labels occupy bitmap positions [n*256, (n+1)*256); one extra bit
// per node records a key ending exactly at the node.
type loudsDense struct {
	height      uint32 // overall trie height
	sparseStart uint32 // number of levels encoded densely

	labelBitmaps           *encoding.RankBitvector
	childIndicatorBitmaps  *encoding.RankBitvector
	prefixkeyIndicatorBits *encoding.RankBitvector
	suffixes               *encoding.SuffixStore
}

func newLoudsDense(b *builder) *loudsDense {
	ld := &loudsDense{
		height:      b.treeHeight(),
		sparseStart: b.sparseStartLevel,
	}
	ld.labelBitmaps = encoding.NewRankBitvector(common.RankBasicBlockSize, b.bitmapLabels, 0, ld.sparseStart)
	ld.childIndicatorBitmaps = encoding.NewRankBitvector(common.RankBasicBlockSize, b.bitmapChildIndicator, 0, ld.sparseStart)
	prefix := encoding.NewBitvector(b.prefixkeyIndicator, 0, ld.sparseStart)
	ld.prefixkeyIndicatorBits = encoding.NewRankFromBitvector(prefix, common.RankBasicBlockSize)
	ld.suffixes = encoding.NewSuffixStore(b.suffixKind, b.hashLen, b.realLen, b.suffixes, 0, ld.sparseStart)
	return ld
}

func (ld *loudsDense) childNodeNum(pos uint32) uint32 {
	return ld.childIndicatorBitmaps.Rank(pos)
}

// suffixPos maps a leaf's bitmap position to its index in the suffix store.
// Leaves interleave label leaves with the prefix keys of preceding nodes.
func (ld *loudsDense) suffixPos(pos uint32, isPrefixKey bool) uint32 {
	nodeNum := pos / common.NodeFanout
	sp := ld.labelBitmaps.Rank(pos) -
		ld.childIndicatorBitmaps.Rank(pos) +
		ld.prefixkeyIndicatorBits.Rank(nodeNum) - 1
	// A prefix-key caller may pass a leaf label position inside the node;
	// that leaf's own suffix slot comes after the prefix key's.
	if isPrefixKey && ld.labelBitmaps.ReadBit(pos) && !ld.childIndicatorBitmaps.ReadBit(pos) {
		sp--
	}
	return sp
}

// nextPos returns the position of the next set label bit strictly after pos.
func (ld *loudsDense) nextPos(pos uint32) uint32 {
	return pos + ld.labelBitmaps.DistanceToNextSetBit(pos)
}

// prevPos returns the position of the closest set label bit strictly before
// pos, reporting out-of-bound when none exists.
func (ld *loudsDense) prevPos(pos uint32) (uint32, bool) {
	d := ld.labelBitmaps.DistanceToPrevSetBit(pos)
	if d > pos {
		return 0, true
	}
	return pos - d, false
}

// firstLabelPos returns the position of the node's smallest label.
func (ld *loudsDense) firstLabelPos(nodeNum uint32) uint32 {
	base := nodeNum * common.NodeFanout
	if base == 0 {
		if ld.labelBitmaps.ReadBit(0) {
			return 0
		}
		return ld.labelBitmaps.DistanceToNextSetBit(0)
	}
	return base - 1 + ld.labelBitmaps.DistanceToNextSetBit(base-1)
}

// lookupKey descends the dense levels. It returns whether the key may be
// present, the sparse node to continue from, and whether the search must
// continue in the sparse tier.
func (ld *loudsDense) lookupKey(key []byte) (bool, uint32, bool) {
	nodeNum := uint32(0)
	for level := uint32(0); level < ld.sparseStart; level++ {
		pos := nodeNum * common.NodeFanout
		if level >= uint32(len(key)) {
			// Ran out of search key bytes.
			if ld.prefixkeyIndicatorBits.ReadBit(nodeNum) {
				return ld.suffixes.CheckEquality(ld.suffixPos(pos, true), key, level+1), 0, false
			}
			return false, 0, false
		}
		pos += uint32(key[level])
		if !ld.labelBitmaps.ReadBit(pos) {
			return false, 0, false
		}
		if !ld.childIndicatorBitmaps.ReadBit(pos) {
			// Trie branch terminates.
			return ld.suffixes.CheckEquality(ld.suffixPos(pos, false), key, level+1), 0, false
		}
		nodeNum = ld.childNodeNum(pos)
	}
	return true, nodeNum, true
}

// moveToKeyGreaterThan positions iter at the first dense key >= key; an
// exclusive search skips an exact prefix key. It returns true when the
// search stops on a leaf whose suffix does not prove it smaller than key (a
// possible false positive), and when the search continues in the sparse tier.
func (ld *loudsDense) moveToKeyGreaterThan(key []byte, inclusive bool, it *denseIter) bool {
	nodeNum := uint32(0)
	for level := uint32(0); level < ld.sparseStart; level++ {
		if level >= uint32(len(key)) {
			// Every key in this node's subtree extends the search key.
			it.appendPos(ld.firstLabelPos(nodeNum))
			if ld.prefixkeyIndicatorBits.ReadBit(nodeNum) {
				it.atPrefixKey = true
				it.setFlags(true, true, true, false)
				if !inclusive {
					it.next()
				}
			} else {
				it.moveToLeftMostKey()
			}
			return false
		}
		pos := nodeNum*common.NodeFanout + uint32(key[level])
		it.appendPos(pos)

		if !ld.labelBitmaps.ReadBit(pos) {
			// No exact byte match; advance to the next larger subtree.
			it.next()
			return false
		}
		if !ld.childIndicatorBitmaps.ReadBit(pos) {
			return ld.compareSuffixGreaterThan(pos, key, level+1, inclusive, it)
		}
		nodeNum = ld.childNodeNum(pos)
	}
	// Search continues in the sparse tier.
	it.sendOutNodeNum = nodeNum
	it.setFlags(true, false, false, false)
	return true
}

func (ld *loudsDense) compareSuffixGreaterThan(pos uint32, key []byte, level uint32, inclusive bool, it *denseIter) bool {
	cmp := ld.suffixes.Compare(ld.suffixPos(pos, false), key, level)
	if cmp != encoding.CouldBePositive && cmp < 0 {
		it.next()
		return false
	}
	it.setFlags(true, true, true, false)
	return true
}

func (ld *loudsDense) serializedSize() uint32 {
	return 4 + 4 + 4 +
		ld.labelBitmaps.SerializedSize() +
		ld.childIndicatorBitmaps.SerializedSize() +
		ld.prefixkeyIndicatorBits.Bitvector.SerializedSize() +
		ld.suffixes.SerializedSize()
}

// serialize writes the dense tier: height, bitmap bit count, cutover level,
// then the label, child-indicator, prefix-key, and suffix structures.
func (ld *loudsDense) serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, ld.height); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ld.labelBitmaps.NumBits()); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ld.sparseStart); err != nil {
		return err
	}
	if err := ld.labelBitmaps.Serialize(w); err != nil {
		return err
	}
	if err := ld.childIndicatorBitmaps.Serialize(w); err != nil {
		return err
	}
	if err := ld.prefixkeyIndicatorBits.Bitvector.Serialize(w); err != nil {
		return err
	}
	return ld.suffixes.Serialize(w)
}

func deserializeLoudsDense(r *bytes.Reader) (*loudsDense, error) {
	ld := &loudsDense{}
	var bitmapsSize uint32
	if err := binary.Read(r, binary.BigEndian, &ld.height); err != nil {
		return nil, fmt.Errorf("dense height: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &bitmapsSize); err != nil {
		return nil, fmt.Errorf("dense bitmap size: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ld.sparseStart); err != nil {
		return nil, fmt.Errorf("dense cutover: %w", common.ErrCorruptStream)
	}
	if ld.sparseStart > ld.height {
		return nil, fmt.Errorf("dense cutover %d beyond height %d: %w", ld.sparseStart, ld.height, common.ErrCorruptStream)
	}
	var err error
	if ld.labelBitmaps, err = encoding.DeserializeRankBitvector(r); err != nil {
		return nil, err
	}
	if ld.childIndicatorBitmaps, err = encoding.DeserializeRankBitvector(r); err != nil {
		return nil, err
	}
	prefix, err := encoding.DeserializeBitvector(r)
	if err != nil {
		return nil, err
	}
	ld.prefixkeyIndicatorBits = encoding.NewRankFromBitvector(prefix, common.RankBasicBlockSize)
	if ld.suffixes, err = encoding.DeserializeSuffixStore(r); err != nil {
		return nil, err
	}
	if ld.labelBitmaps.NumBits() != bitmapsSize ||
		ld.childIndicatorBitmaps.NumBits() != bitmapsSize ||
		prefix.NumBits() != bitmapsSize/common.NodeFanout {
		return nil, fmt.Errorf("dense bitmap sizes disagree with header: %w", common.ErrCorruptStream)
	}
	return ld, nil
}

// denseIter walks the dense tier. Its stack holds one bitmap position per
// descended level.
type denseIter struct {
	valid             bool
	searchComplete    bool
	moveLeftComplete  bool
	moveRightComplete bool
	trie              *loudsDense
	sendOutNodeNum    uint32
	keyLen            uint32
	key               []byte
	posInTrie         []uint32
	atPrefixKey       bool
}

func newDenseIter(ld *loudsDense) denseIter {
	return denseIter{
		trie:      ld,
		key:       make([]byte, ld.sparseStart),
		posInTrie: make([]uint32, ld.sparseStart),
	}
}

func (it *denseIter) setFlags(valid, searchComplete, moveLeftComplete, moveRightComplete bool) {
	it.valid = valid
	it.searchComplete = searchComplete
	it.moveLeftComplete = moveLeftComplete
	it.moveRightComplete = moveRightComplete
}

// isComplete reports whether the iterator's key ends inside the dense tier.
func (it *denseIter) isComplete() bool {
	return it.searchComplete && (it.moveLeftComplete || it.moveRightComplete)
}

func (it *denseIter) appendPos(pos uint32) {
	it.key[it.keyLen] = byte(pos % common.NodeFanout)
	it.posInTrie[it.keyLen] = pos
	it.keyLen++
}

func (it *denseIter) set(level, pos uint32) {
	it.key[level] = byte(pos % common.NodeFanout)
	it.posInTrie[level] = pos
}

func (it *denseIter) clear() {
	it.valid = false
	it.keyLen = 0
	it.atPrefixKey = false
}

// getKey returns the dense part of the key; a prefix-key position excludes
// the speculative first label of its node.
func (it *denseIter) getKey() []byte {
	if !it.valid {
		return nil
	}
	l := it.keyLen
	if it.atPrefixKey {
		l--
	}
	return it.key[:l]
}

func (it *denseIter) setToFirstLabelInRoot() {
	it.keyLen = 0
	it.atPrefixKey = false
	it.appendPos(it.trie.firstLabelPos(0))
}

func (it *denseIter) setToLastLabelInRoot() {
	it.keyLen = 0
	it.atPrefixKey = false
	pos, _ := it.trie.prevPos(common.NodeFanout)
	it.appendPos(pos)
}

// moveToLeftMostKey descends first labels until a leaf or the sparse
// boundary, stopping early on a prefix key.
func (it *denseIter) moveToLeftMostKey() {
	level := it.keyLen - 1
	pos := it.posInTrie[level]
	if !it.trie.childIndicatorBitmaps.ReadBit(pos) {
		it.setFlags(true, true, true, false)
		return
	}
	for level < it.trie.sparseStart-1 {
		nodeNum := it.trie.childNodeNum(pos)
		if it.trie.prefixkeyIndicatorBits.ReadBit(nodeNum) {
			it.appendPos(it.trie.firstLabelPos(nodeNum))
			it.atPrefixKey = true
			it.setFlags(true, true, true, false)
			return
		}
		pos = it.trie.firstLabelPos(nodeNum)
		it.appendPos(pos)
		if !it.trie.childIndicatorBitmaps.ReadBit(pos) {
			it.setFlags(true, true, true, false)
			return
		}
		level++
	}
	it.sendOutNodeNum = it.trie.childNodeNum(pos)
	it.setFlags(true, true, false, false)
}

func (it *denseIter) moveToRightMostKey() {
	level := it.keyLen - 1
	pos := it.posInTrie[level]
	if !it.trie.childIndicatorBitmaps.ReadBit(pos) {
		it.setFlags(true, true, false, true)
		return
	}
	for level < it.trie.sparseStart-1 {
		nodeNum := it.trie.childNodeNum(pos)
		p, oob := it.trie.prevPos((nodeNum + 1) * common.NodeFanout)
		if oob {
			it.valid = false
			return
		}
		pos = p
		it.appendPos(pos)
		if !it.trie.childIndicatorBitmaps.ReadBit(pos) {
			it.setFlags(true, true, false, true)
			return
		}
		level++
	}
	it.sendOutNodeNum = it.trie.childNodeNum(pos)
	it.setFlags(true, true, false, false)
}

func (it *denseIter) next() {
	if it.atPrefixKey {
		it.atPrefixKey = false
		it.moveToLeftMostKey()
		return
	}
	pos := it.posInTrie[it.keyLen-1]
	nextPos := it.trie.nextPos(pos)
	for nextPos/common.NodeFanout > pos/common.NodeFanout {
		// Crossed a node boundary; pop up one level.
		it.keyLen--
		if it.keyLen == 0 {
			it.valid = false
			return
		}
		pos = it.posInTrie[it.keyLen-1]
		nextPos = it.trie.nextPos(pos)
	}
	it.set(it.keyLen-1, nextPos)
	it.moveToLeftMostKey()
}

func (it *denseIter) prev() {
	if it.atPrefixKey {
		it.atPrefixKey = false
		it.keyLen--
		if it.keyLen == 0 {
			it.valid = false
			return
		}
	}
	pos := it.posInTrie[it.keyLen-1]
	prevPos, oob := it.trie.prevPos(pos)
	if oob {
		it.valid = false
		return
	}
	for prevPos/common.NodeFanout < pos/common.NodeFanout {
		nodeNum := pos / common.NodeFanout
		if it.trie.prefixkeyIndicatorBits.ReadBit(nodeNum) {
			// The node's own prefix key precedes all of its labels.
			it.atPrefixKey = true
			it.setFlags(true, true, false, true)
			return
		}
		it.keyLen--
		if it.keyLen == 0 {
			it.valid = false
			return
		}
		pos = it.posInTrie[it.keyLen-1]
		prevPos, oob = it.trie.prevPos(pos)
		if oob {
			it.valid = false
			return
		}
	}
	it.set(it.keyLen-1, prevPos)
	it.moveToRightMostKey()
}

// compare orders the iterator's key against the dense prefix of key,
// consulting the suffix store on full prefix equality.
func (it *denseIter) compare(key []byte) int {
	if it.atPrefixKey && it.keyLen-1 < uint32(len(key)) {
		return -1
	}
	iterKey := it.getKey()
	keyDense := key
	if len(key) > len(iterKey) {
		keyDense = key[:len(iterKey)]
	}
	cmp := bytes.Compare(iterKey, keyDense)
	if cmp != 0 {
		return cmp
	}
	if it.isComplete() {
		sp := it.trie.suffixPos(it.posInTrie[it.keyLen-1], it.atPrefixKey)
		return it.trie.suffixes.Compare(sp, key, it.keyLen)
	}
	return cmp
}
