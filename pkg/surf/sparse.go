package surf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/internal/encoding"
)

// loudsSparse encodes the lower trie levels in LOUDS-sparse form: one
// (label, child-indicator, LOUDS) triple per edge, indexed globally across
// levels.
type loudsSparse struct {
	height     uint32 // trie height
	startLevel uint32 // first level encoded sparsely

	// Node and child counts of the dense tier; sparse node numbers and
	// child ranks continue the dense numbering.
	denseNodeCount  uint32
	denseChildCount uint32

	levelCuts []uint32 // position of the last edge at each level

	labels             *encoding.LabelVector
	childIndicatorBits *encoding.RankBitvector
	loudsBits          *encoding.SelectBitvector
	suffixes           *encoding.SuffixStore
}

func newLoudsSparse(b *builder) *loudsSparse {
	ls := &loudsSparse{
		height:     b.treeHeight(),
		startLevel: b.sparseStartLevel,
	}

	for level := uint32(0); level < ls.startLevel; level++ {
		ls.denseNodeCount += b.nodeCounts[level]
	}
	if ls.startLevel > 0 && ls.startLevel < ls.height {
		ls.denseChildCount = ls.denseNodeCount + b.nodeCounts[ls.startLevel] - 1
	} else if ls.startLevel > 0 {
		// Fully dense trie; no sparse nodes continue the numbering.
		ls.denseChildCount = ls.denseNodeCount
	}

	ls.labels = encoding.NewLabelVector(b.labels, ls.startLevel, ls.height)

	ls.levelCuts = make([]uint32, ls.height)
	bitCount := uint32(0)
	for level := ls.startLevel; level < ls.height; level++ {
		bitCount += b.numItems(level)
		ls.levelCuts[level] = bitCount - 1
	}

	ls.childIndicatorBits = encoding.NewRankBitvector(common.RankBasicBlockSize, b.childIndicatorBits, ls.startLevel, ls.height)
	ls.loudsBits = encoding.NewSelectBitvector(common.SelectSampleInterval, b.loudsBits, ls.startLevel, ls.height)
	ls.suffixes = encoding.NewSuffixStore(b.suffixKind, b.hashLen, b.realLen, b.suffixes, ls.startLevel, ls.height)
	return ls
}

func (ls *loudsSparse) childNodeNum(pos uint32) uint32 {
	return ls.childIndicatorBits.Rank(pos) + ls.denseChildCount
}

func (ls *loudsSparse) firstLabelPos(nodeNum uint32) uint32 {
	return ls.loudsBits.Select(nodeNum + 1 - ls.denseNodeCount)
}

func (ls *loudsSparse) lastLabelPos(nodeNum uint32) uint32 {
	nextRank := nodeNum + 2 - ls.denseNodeCount
	if nextRank > ls.loudsBits.NumOnes() {
		return ls.loudsBits.NumBits() - 1
	}
	return ls.loudsBits.Select(nextRank) - 1
}

func (ls *loudsSparse) suffixPos(pos uint32) uint32 {
	return pos - ls.childIndicatorBits.Rank(pos)
}

func (ls *loudsSparse) nodeSize(pos uint32) uint32 {
	return ls.loudsBits.DistanceToNextSetBit(pos)
}

func (ls *loudsSparse) isEndOfNode(pos uint32) bool {
	return pos == ls.loudsBits.NumBits()-1 || ls.loudsBits.ReadBit(pos+1)
}

// lookupKey continues a point query from the bridge node handed over by the
// dense tier.
func (ls *loudsSparse) lookupKey(key []byte, inNodeNum uint32) bool {
	nodeNum := inNodeNum
	pos := ls.firstLabelPos(nodeNum)
	level := ls.startLevel
	for ; level < uint32(len(key)); level++ {
		p, ok := ls.labels.Search(key[level], pos, ls.nodeSize(pos))
		if !ok {
			return false
		}
		pos = p

		// if trie branch terminates
		if !ls.childIndicatorBits.ReadBit(pos) {
			return ls.suffixes.CheckEquality(ls.suffixPos(pos), key, level+1)
		}

		nodeNum = ls.childNodeNum(pos)
		pos = ls.firstLabelPos(nodeNum)
	}
	if ls.labels.Read(pos) == common.Terminator && !ls.childIndicatorBits.ReadBit(pos) {
		return ls.suffixes.CheckEquality(ls.suffixPos(pos), key, level+1)
	}
	return false
}

// moveToKeyGreaterThan positions iter at the first key >= key within the
// subtree rooted at iter's start node. The return value reports a possible
// false-positive match.
func (ls *loudsSparse) moveToKeyGreaterThan(key []byte, inclusive bool, it *sparseIter) bool {
	nodeNum := it.startNodeNum
	pos := ls.firstLabelPos(nodeNum)

	level := ls.startLevel
	for ; level < uint32(len(key)); level++ {
		nodeSize := ls.nodeSize(pos)
		p, ok := ls.labels.Search(key[level], pos, nodeSize)
		if !ok {
			ls.moveToLeftInNextSubtrie(pos, nodeSize, key[level], it)
			return false
		}
		it.append(key[level], p)
		pos = p

		// if trie branch terminates
		if !ls.childIndicatorBits.ReadBit(pos) {
			return ls.compareSuffixGreaterThan(pos, key, level+1, inclusive, it)
		}

		nodeNum = ls.childNodeNum(pos)
		pos = ls.firstLabelPos(nodeNum)
	}

	if ls.labels.Read(pos) == common.Terminator && !ls.childIndicatorBits.ReadBit(pos) && !ls.isEndOfNode(pos) {
		it.appendPos(pos)
		it.atTerminator = true
		if !inclusive {
			it.next()
		}
		it.valid = true
		return false
	}

	it.moveToLeftMostKey()
	return false
}

func (ls *loudsSparse) moveToLeftInNextSubtrie(pos, nodeSize uint32, label byte, it *sparseIter) {
	p, ok := ls.labels.SearchGreaterThan(label, pos, nodeSize)
	if !ok {
		// No larger label in this node; advance past its last edge.
		it.appendPos(pos + nodeSize - 1)
		it.next()
		return
	}
	it.appendPos(p)
	it.moveToLeftMostKey()
}

func (ls *loudsSparse) compareSuffixGreaterThan(pos uint32, key []byte, level uint32, inclusive bool, it *sparseIter) bool {
	cmp := ls.suffixes.Compare(ls.suffixPos(pos), keyTail(key, ls.startLevel), level-ls.startLevel)
	if cmp != encoding.CouldBePositive && cmp < 0 {
		it.next()
		return false
	}
	it.valid = true
	return true
}

func (ls *loudsSparse) serializedSize() uint32 {
	return 4 + 4 + 4 + 4 + uint32(len(ls.levelCuts))*4 +
		ls.labels.SerializedSize() +
		ls.childIndicatorBits.SerializedSize() +
		ls.loudsBits.SerializedSize() +
		ls.suffixes.SerializedSize()
}

// serialize writes the sparse tier: height, cutover level, dense node and
// child counts, per-level cuts, then the label, child-indicator, LOUDS, and
// suffix structures.
func (ls *loudsSparse) serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, ls.height); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ls.startLevel); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ls.denseNodeCount); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, ls.denseChildCount); err != nil {
		return err
	}
	for _, cut := range ls.levelCuts {
		if err := binary.Write(w, binary.BigEndian, cut); err != nil {
			return err
		}
	}
	if err := ls.labels.Serialize(w); err != nil {
		return err
	}
	if err := ls.childIndicatorBits.Serialize(w); err != nil {
		return err
	}
	if err := ls.loudsBits.Serialize(w); err != nil {
		return err
	}
	return ls.suffixes.Serialize(w)
}

func deserializeLoudsSparse(r *bytes.Reader) (*loudsSparse, error) {
	ls := &loudsSparse{}
	if err := binary.Read(r, binary.BigEndian, &ls.height); err != nil {
		return nil, fmt.Errorf("sparse height: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ls.startLevel); err != nil {
		return nil, fmt.Errorf("sparse start level: %w", common.ErrCorruptStream)
	}
	if ls.startLevel > ls.height {
		return nil, fmt.Errorf("sparse start %d beyond height %d: %w", ls.startLevel, ls.height, common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ls.denseNodeCount); err != nil {
		return nil, fmt.Errorf("dense node count: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &ls.denseChildCount); err != nil {
		return nil, fmt.Errorf("dense child count: %w", common.ErrCorruptStream)
	}
	if uint64(r.Len()) < uint64(ls.height)*4 {
		return nil, fmt.Errorf("level cuts truncated: %w", common.ErrCorruptStream)
	}
	ls.levelCuts = make([]uint32, ls.height)
	for i := range ls.levelCuts {
		if err := binary.Read(r, binary.BigEndian, &ls.levelCuts[i]); err != nil {
			return nil, fmt.Errorf("level cuts: %w", common.ErrCorruptStream)
		}
	}
	var err error
	if ls.labels, err = encoding.DeserializeLabelVector(r); err != nil {
		return nil, err
	}
	if ls.childIndicatorBits, err = encoding.DeserializeRankBitvector(r); err != nil {
		return nil, err
	}
	if ls.loudsBits, err = encoding.DeserializeSelectBitvector(r); err != nil {
		return nil, err
	}
	if ls.suffixes, err = encoding.DeserializeSuffixStore(r); err != nil {
		return nil, err
	}
	if ls.labels.NumBytes() != ls.childIndicatorBits.NumBits() ||
		ls.labels.NumBytes() != ls.loudsBits.NumBits() {
		return nil, fmt.Errorf("sparse edge counts disagree: %w", common.ErrCorruptStream)
	}
	return ls, nil
}

// keyTail returns the key bytes from startLevel on.
func keyTail(key []byte, startLevel uint32) []byte {
	if uint32(len(key)) <= startLevel {
		return nil
	}
	return key[startLevel:]
}

// sparseIter walks the sparse tier below a start node handed over by the
// dense tier. Level indices are relative to the tier's start level.
type sparseIter struct {
	valid        bool
	trie         *loudsSparse
	startNodeNum uint32
	keyLen       uint32
	key          []byte
	posInTrie    []uint32
	atTerminator bool
}

func newSparseIter(ls *loudsSparse) sparseIter {
	levels := ls.height - ls.startLevel
	return sparseIter{
		trie:      ls,
		key:       make([]byte, levels),
		posInTrie: make([]uint32, levels),
	}
}

func (it *sparseIter) clear() {
	it.valid = false
	it.keyLen = 0
	it.atTerminator = false
}

func (it *sparseIter) append(label byte, pos uint32) {
	it.key[it.keyLen] = label
	it.posInTrie[it.keyLen] = pos
	it.keyLen++
}

func (it *sparseIter) appendPos(pos uint32) {
	it.append(it.trie.labels.Read(pos), pos)
}

func (it *sparseIter) set(level, pos uint32) {
	it.key[level] = it.trie.labels.Read(pos)
	it.posInTrie[level] = pos
}

// getKey returns the sparse part of the key, excluding a trailing
// terminator.
func (it *sparseIter) getKey() []byte {
	if !it.valid {
		return nil
	}
	l := it.keyLen
	if it.atTerminator {
		l--
	}
	return it.key[:l]
}

func (it *sparseIter) setToFirstLabelInRoot() {
	it.startNodeNum = 0
	it.keyLen = 0
}

func (it *sparseIter) setToLastLabelInRoot() {
	it.startNodeNum = 0
	it.keyLen = 0
}

// moveToLeftMostKey descends first edges from the current position (or the
// start node when the stack is empty) until a leaf.
func (it *sparseIter) moveToLeftMostKey() {
	if it.keyLen == 0 {
		it.appendPos(it.trie.firstLabelPos(it.startNodeNum))
	}

	pos := it.posInTrie[it.keyLen-1]
	label := it.trie.labels.Read(pos)

	if !it.trie.childIndicatorBits.ReadBit(pos) {
		if label == common.Terminator && !it.trie.isEndOfNode(pos) {
			it.atTerminator = true
		}
		it.valid = true
		return
	}

	for level := it.keyLen; level < it.trie.height; level++ {
		nodeNum := it.trie.childNodeNum(pos)
		pos = it.trie.firstLabelPos(nodeNum)
		label = it.trie.labels.Read(pos)
		if !it.trie.childIndicatorBits.ReadBit(pos) {
			it.append(label, pos)
			if label == common.Terminator && !it.trie.isEndOfNode(pos) {
				it.atTerminator = true
			}
			it.valid = true
			return
		}
		it.append(label, pos)
	}
	it.valid = false
}

func (it *sparseIter) moveToRightMostKey() {
	if it.keyLen == 0 {
		it.appendPos(it.trie.lastLabelPos(it.startNodeNum))
	}

	pos := it.posInTrie[it.keyLen-1]
	label := it.trie.labels.Read(pos)

	if !it.trie.childIndicatorBits.ReadBit(pos) {
		if label == common.Terminator && !it.trie.isEndOfNode(pos) {
			it.atTerminator = true
		}
		it.valid = true
		return
	}

	for level := it.keyLen; level < it.trie.height; level++ {
		nodeNum := it.trie.childNodeNum(pos)
		pos = it.trie.lastLabelPos(nodeNum)
		label = it.trie.labels.Read(pos)
		if !it.trie.childIndicatorBits.ReadBit(pos) {
			it.append(label, pos)
			if label == common.Terminator && !it.trie.isEndOfNode(pos) {
				it.atTerminator = true
			}
			it.valid = true
			return
		}
		it.append(label, pos)
	}
	it.valid = false
}

func (it *sparseIter) next() {
	it.atTerminator = false
	pos := it.posInTrie[it.keyLen-1] + 1
	for pos >= it.trie.loudsBits.NumBits() || it.trie.loudsBits.ReadBit(pos) {
		// Ran past the node; pop up one level.
		it.keyLen--
		if it.keyLen == 0 {
			it.valid = false
			return
		}
		pos = it.posInTrie[it.keyLen-1] + 1
	}
	it.set(it.keyLen-1, pos)
	it.moveToLeftMostKey()
}

func (it *sparseIter) prev() {
	it.atTerminator = false
	pos := it.posInTrie[it.keyLen-1]
	if pos == 0 {
		it.valid = false
		it.keyLen = 0
		return
	}
	for it.trie.loudsBits.ReadBit(pos) {
		// First edge of its node; pop up one level.
		it.keyLen--
		if it.keyLen == 0 {
			it.valid = false
			return
		}
		pos = it.posInTrie[it.keyLen-1]
		if pos == 0 {
			it.valid = false
			it.keyLen = 0
			return
		}
	}
	it.set(it.keyLen-1, pos-1)
	it.moveToRightMostKey()
}

// compare orders the iterator's key against the sparse tail of key,
// consulting the suffix store on full prefix equality.
func (it *sparseIter) compare(key []byte) int {
	tail := keyTail(key, it.trie.startLevel)
	if it.atTerminator && it.keyLen-1 < uint32(len(tail)) {
		return -1
	}
	iterKey := it.getKey()
	tailSame := tail
	if len(tail) > len(iterKey) {
		tailSame = tail[:len(iterKey)]
	}
	cmp := bytes.Compare(iterKey, tailSame)
	if cmp != 0 {
		return cmp
	}
	sp := it.trie.suffixPos(it.posInTrie[it.keyLen-1])
	return it.trie.suffixes.Compare(sp, tail, it.keyLen)
}

// suffix returns the stored real-suffix bits for the current leaf.
func (it *sparseIter) suffix() (uint64, uint32) {
	kind := it.trie.suffixes.Kind()
	if kind != encoding.SuffixReal && kind != encoding.SuffixMixed {
		return 0, 0
	}
	sp := it.trie.suffixPos(it.posInTrie[it.keyLen-1])
	return it.trie.suffixes.ReadReal(sp), it.trie.suffixes.RealLen()
}
