package surf

import (
	"bytes"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/internal/encoding"
)

// builder scans a sorted key list once and accumulates the per-level label,
// child-indicator, LOUDS, and suffix arrays from which both tiers are built.
// A builder is consumed by Build and never reused.
type builder struct {
	includeDense     bool
	sparseDenseRatio uint32

	suffixKind encoding.SuffixKind
	hashLen    uint32
	realLen    uint32

	// Sparse-format per-level arrays, filled during the key scan.
	// terminatorFlags distinguishes true terminator items from keys whose
	// own bytes are 0x00.
	labels             [][]byte
	childIndicatorBits []*encoding.Bits
	loudsBits          []*encoding.Bits
	terminatorFlags    []*encoding.Bits

	// Dense-format per-level bitmaps, repacked from the arrays above for
	// levels below the cutover.
	bitmapLabels         []*encoding.Bits
	bitmapChildIndicator []*encoding.Bits
	prefixkeyIndicator   []*encoding.Bits

	suffixes     []*encoding.Bits
	suffixCounts []uint32

	nodeCounts           []uint32
	isLastItemTerminator []bool

	sparseStartLevel uint32

	logger common.Logger
}

func newBuilder(opts *Options) *builder {
	return &builder{
		includeDense:     opts.IncludeDense,
		sparseDenseRatio: opts.SparseDenseRatio,
		suffixKind:       opts.SuffixKind,
		hashLen:          opts.HashSuffixLen,
		realLen:          opts.RealSuffixLen,
		logger:           opts.logger(),
	}
}

// build runs the single scan over the sorted keys and derives the
// sparse/dense cutover. Keys must be unique and strictly ascending.
func (b *builder) build(keys [][]byte) error {
	prepared, err := b.prepareKeys(keys)
	if err != nil {
		return err
	}
	b.buildSparse(prepared)
	if b.includeDense {
		b.determineCutoffLevel()
		b.buildDense()
	}
	return nil
}

// prepareKeys validates ordering, uniqueness, and the terminator policy.
// Zero bytes are legal key content; the one configuration the encoding
// cannot represent is a key that is a proper prefix of a following key
// whose next byte is 0x00, because the key's terminator and the real 0x00
// edge would collide in the same node.
func (b *builder) prepareKeys(keys [][]byte) ([][]byte, error) {
	prepared := make([][]byte, 0, len(keys))
	for i, key := range keys {
		if len(key) == 0 {
			return nil, fmt.Errorf("key %d: %w", i, common.ErrEmptyKey)
		}
		if len(key) > common.MaxKeySize {
			return nil, fmt.Errorf("key %d has %d bytes: %w", i, len(key), common.ErrKeyTooLarge)
		}
		if i > 0 {
			prev := prepared[i-1]
			if bytes.Compare(prev, key) >= 0 {
				return nil, fmt.Errorf("key %d not strictly ascending: %w", i, common.ErrInvalidInput)
			}
			if len(prev) < len(key) && key[len(prev)] == common.Terminator && bytes.HasPrefix(key, prev) {
				return nil, fmt.Errorf("key %d extends key %d with a zero byte: %w", i, i-1, common.ErrInvalidInput)
			}
		}
		if len(key) > common.RecommendedKeySize {
			b.logger.Warn("key exceeds recommended size", "index", i, "bytes", len(key))
		}
		prepared = append(prepared, key)
	}
	return prepared, nil
}

func (b *builder) buildSparse(keys [][]byte) {
	for i := 0; i < len(keys); i++ {
		level := b.skipCommonPrefix(keys[i])
		if i < len(keys)-1 {
			level = b.insertKeyBytesToTrieUntilUnique(keys[i], keys[i+1], level)
		} else {
			level = b.insertKeyBytesToTrieUntilUnique(keys[i], nil, level)
		}
		b.insertSuffix(keys[i], level)
	}
}

func (b *builder) treeHeight() uint32 { return uint32(len(b.labels)) }

func (b *builder) numItems(level uint32) uint32 { return uint32(len(b.labels[level])) }

func (b *builder) isLevelEmpty(level uint32) bool {
	return level >= b.treeHeight() || len(b.labels[level]) == 0
}

func (b *builder) addLevel() {
	b.labels = append(b.labels, nil)
	b.childIndicatorBits = append(b.childIndicatorBits, &encoding.Bits{})
	b.loudsBits = append(b.loudsBits, &encoding.Bits{})
	b.terminatorFlags = append(b.terminatorFlags, &encoding.Bits{})
	b.suffixes = append(b.suffixes, &encoding.Bits{})
	b.suffixCounts = append(b.suffixCounts, 0)
	b.nodeCounts = append(b.nodeCounts, 0)
	b.isLastItemTerminator = append(b.isLastItemTerminator, false)
}

func (b *builder) ensureLevel(level uint32) {
	for level >= b.treeHeight() {
		b.addLevel()
	}
}

func (b *builder) isCharCommonPrefix(c byte, level uint32) bool {
	return level < b.treeHeight() &&
		!b.isLastItemTerminator[level] &&
		len(b.labels[level]) > 0 &&
		c == b.labels[level][len(b.labels[level])-1]
}

// skipCommonPrefix walks the trie path shared with the previous key, marking
// those edges as internal.
func (b *builder) skipCommonPrefix(key []byte) uint32 {
	level := uint32(0)
	for level < uint32(len(key)) && b.isCharCommonPrefix(key[level], level) {
		b.childIndicatorBits[level].Set(b.numItems(level) - 1)
		level++
	}
	return level
}

// insertKeyBytesToTrieUntilUnique emits key bytes from startLevel until the
// inserted prefix distinguishes key from nextKey, then one more byte (or a
// terminator when key is a proper prefix of nextKey). It returns the level
// one past the last inserted byte.
func (b *builder) insertKeyBytesToTrieUntilUnique(key, nextKey []byte, startLevel uint32) uint32 {
	level := startLevel
	isStartOfNode := b.isLevelEmpty(level)

	// After the common prefix, the first byte joins the previous key's node
	// at this level.
	b.insertKeyByte(key[level], level, isStartOfNode, false)
	level++

	if level > uint32(len(nextKey)) || !bytes.Equal(key[:level], nextKey[:level]) {
		return level
	}

	// Every byte below starts a new node.
	for level < uint32(len(key)) && level < uint32(len(nextKey)) && key[level] == nextKey[level] {
		b.insertKeyByte(key[level], level, true, false)
		level++
	}

	// The last byte inserted makes the key unique in the trie.
	if level < uint32(len(key)) {
		b.insertKeyByte(key[level], level, true, false)
	} else {
		// key is a proper prefix of nextKey
		b.insertKeyByte(common.Terminator, level, true, true)
	}
	level++
	return level
}

func (b *builder) insertKeyByte(c byte, level uint32, isStartOfNode, isTerm bool) {
	b.ensureLevel(level)

	// The parent's edge gains a child.
	if level > 0 {
		b.childIndicatorBits[level-1].Set(b.numItems(level-1) - 1)
	}

	b.labels[level] = append(b.labels[level], c)
	b.childIndicatorBits[level].PushBack(false)
	b.loudsBits[level].PushBack(isStartOfNode)
	b.terminatorFlags[level].PushBack(isTerm)
	if isStartOfNode {
		b.nodeCounts[level]++
	}
	b.isLastItemTerminator[level] = isTerm
}

// insertSuffix stores the leaf's suffix bits. level is one past the leaf's
// label, i.e. the number of key bytes the trie consumed.
func (b *builder) insertSuffix(key []byte, level uint32) {
	suffixLevel := level - 1
	b.ensureLevel(suffixLevel)
	suffix := encoding.ConstructSuffix(b.suffixKind, key, b.hashLen, level, b.realLen)
	b.suffixes[suffixLevel].AppendBits(suffix, b.hashLen+b.realLen)
	b.suffixCounts[suffixLevel]++
}

func (b *builder) suffixLen() uint32 { return b.hashLen + b.realLen }

// determineCutoffLevel grows the dense tier level by level while its memory,
// scaled by the sparse-dense ratio, stays below the sparse encoding of the
// remaining levels.
func (b *builder) determineCutoffLevel() {
	cutoff := uint32(0)
	for cutoff < b.treeHeight() &&
		b.denseSizeBits(cutoff)*uint64(b.sparseDenseRatio) < b.sparseSizeBits(cutoff) {
		cutoff++
	}
	b.sparseStartLevel = cutoff
}

// denseSizeBits estimates the dense encoding of levels [0, downToLevel).
func (b *builder) denseSizeBits(downToLevel uint32) uint64 {
	size := uint64(0)
	for level := uint32(0); level < downToLevel; level++ {
		size += uint64(b.nodeCounts[level]) * (2*common.NodeFanout + 1)
		size += uint64(b.suffixCounts[level]) * uint64(b.suffixLen())
	}
	return size
}

// sparseSizeBits estimates the sparse encoding of levels [startLevel, height).
func (b *builder) sparseSizeBits(startLevel uint32) uint64 {
	size := uint64(0)
	for level := startLevel; level < b.treeHeight(); level++ {
		size += uint64(b.numItems(level)) * (8 + 2)
		size += uint64(b.suffixCounts[level]) * uint64(b.suffixLen())
	}
	return size
}

func (b *builder) isStartOfNode(level, pos uint32) bool {
	return b.loudsBits[level].Get(pos)
}

func (b *builder) isTerminator(level, pos uint32) bool {
	return b.terminatorFlags[level].Get(pos)
}

// buildDense repacks levels [0, sparseStartLevel) into 256-bit-per-node
// bitmaps plus one prefix-key bit per node.
func (b *builder) buildDense() {
	b.bitmapLabels = make([]*encoding.Bits, b.sparseStartLevel)
	b.bitmapChildIndicator = make([]*encoding.Bits, b.sparseStartLevel)
	b.prefixkeyIndicator = make([]*encoding.Bits, b.sparseStartLevel)

	for level := uint32(0); level < b.sparseStartLevel; level++ {
		b.bitmapLabels[level] = encoding.NewZeroBits(b.nodeCounts[level] * common.NodeFanout)
		b.bitmapChildIndicator[level] = encoding.NewZeroBits(b.nodeCounts[level] * common.NodeFanout)
		b.prefixkeyIndicator[level] = encoding.NewZeroBits(b.nodeCounts[level])
		if b.numItems(level) == 0 {
			continue
		}

		nodeNum := uint32(0)
		if b.isTerminator(level, 0) {
			b.prefixkeyIndicator[level].Set(0)
		} else {
			b.setLabelAndChildIndicatorBitmap(level, 0, 0)
		}
		for pos := uint32(1); pos < b.numItems(level); pos++ {
			if b.isStartOfNode(level, pos) {
				nodeNum++
			}
			if b.isTerminator(level, pos) {
				b.prefixkeyIndicator[level].Set(nodeNum)
			} else {
				b.setLabelAndChildIndicatorBitmap(level, nodeNum, pos)
			}
		}
	}
}

func (b *builder) setLabelAndChildIndicatorBitmap(level, nodeNum, pos uint32) {
	label := b.labels[level][pos]
	b.bitmapLabels[level].Set(nodeNum*common.NodeFanout + uint32(label))
	if b.childIndicatorBits[level].Get(pos) {
		b.bitmapChildIndicator[level].Set(nodeNum*common.NodeFanout + uint32(label))
	}
}
