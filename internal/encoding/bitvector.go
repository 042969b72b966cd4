// Package encoding implements the succinct primitives behind the filter:
// MSB-first packed bitvectors, O(1) rank and select acceleration, packed
// label arrays, and the per-leaf suffix store.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/booknouse/go-surf/internal/common"
)

const (
	// WordSize is the number of bits per bitvector word.
	WordSize = 64

	msbMask = uint64(1) << 63
)

// NumWordsFor returns the number of 64-bit words needed for n bits.
func NumWordsFor(numBits uint32) uint32 {
	return (numBits + WordSize - 1) / WordSize
}

// Bits is an appendable MSB-first bit buffer. The builder accumulates
// per-level bit runs in Bits values; the query-side structures are built by
// concatenating them.
type Bits struct {
	words   []uint64
	numBits uint32
}

// NewZeroBits returns a buffer pre-sized to n zero bits.
func NewZeroBits(n uint32) *Bits {
	return &Bits{words: make([]uint64, NumWordsFor(n)), numBits: n}
}

// NumBits returns the number of bits appended so far.
func (b *Bits) NumBits() uint32 { return b.numBits }

// Words returns the backing words. Trailing bits beyond NumBits are zero.
func (b *Bits) Words() []uint64 { return b.words }

// PushBack appends a single bit.
func (b *Bits) PushBack(bit bool) {
	if b.numBits%WordSize == 0 {
		b.words = append(b.words, 0)
	}
	if bit {
		b.words[b.numBits/WordSize] |= msbMask >> (b.numBits % WordSize)
	}
	b.numBits++
}

// Set sets an already-appended bit.
func (b *Bits) Set(pos uint32) {
	b.words[pos/WordSize] |= msbMask >> (pos % WordSize)
}

// Get reads an already-appended bit.
func (b *Bits) Get(pos uint32) bool {
	return b.words[pos/WordSize]&(msbMask>>(pos%WordSize)) != 0
}

// AppendBits appends the low n bits of v, most significant of the n first.
func (b *Bits) AppendBits(v uint64, n uint32) {
	for i := n; i > 0; i-- {
		b.PushBack(v&(1<<(i-1)) != 0)
	}
}

// Bitvector is an immutable MSB-first packed bit array. Bit i lives in word
// i/64 at mask 1<<63 >> (i%64), matching the serialized big-endian layout.
type Bitvector struct {
	numBits uint32
	words   []uint64
}

// NewBitvector concatenates the per-level bit runs for levels
// [startLevel, endLevel) into a single bitvector.
func NewBitvector(perLevel []*Bits, startLevel, endLevel uint32) *Bitvector {
	bv := &Bitvector{}
	total := uint32(0)
	for level := startLevel; level < endLevel; level++ {
		total += perLevel[level].NumBits()
	}
	bv.numBits = total
	bv.words = make([]uint64, NumWordsFor(total))
	pos := uint32(0)
	for level := startLevel; level < endLevel; level++ {
		src := perLevel[level]
		bv.appendRun(pos, src.Words(), src.NumBits())
		pos += src.NumBits()
	}
	return bv
}

// appendRun copies n bits from src into the vector starting at pos.
func (bv *Bitvector) appendRun(pos uint32, src []uint64, n uint32) {
	copied := uint32(0)
	for copied < n {
		chunk := n - copied
		if chunk > WordSize {
			chunk = WordSize
		}
		w := src[copied/WordSize]
		if chunk < WordSize {
			w &= ^uint64(0) << (WordSize - chunk)
		}
		bv.orBits(pos+copied, w, chunk)
		copied += chunk
	}
}

// orBits ORs the top n bits of w into the vector at pos.
func (bv *Bitvector) orBits(pos uint32, w uint64, n uint32) {
	wordID := pos / WordSize
	offset := pos % WordSize
	bv.words[wordID] |= w >> offset
	if offset+n > WordSize {
		bv.words[wordID+1] |= w << (WordSize - offset)
	}
}

// NumBits returns the length of the bitvector in bits.
func (bv *Bitvector) NumBits() uint32 { return bv.numBits }

// NumWords returns the number of backing 64-bit words.
func (bv *Bitvector) NumWords() uint32 { return NumWordsFor(bv.numBits) }

// BitsSize returns the size of the backing words in bytes.
func (bv *Bitvector) BitsSize() uint32 { return bv.NumWords() * 8 }

// ReadBit returns the bit at pos. Positions past the end read as zero.
func (bv *Bitvector) ReadBit(pos uint32) bool {
	if pos >= bv.numBits {
		return false
	}
	return bv.words[pos/WordSize]&(msbMask>>(pos%WordSize)) != 0
}

// DistanceToNextSetBit returns d >= 1 such that pos+d is the next set bit
// strictly after pos, or numBits-pos when no later bit is set.
func (bv *Bitvector) DistanceToNextSetBit(pos uint32) uint32 {
	distance := uint32(1)
	wordID := (pos + 1) / WordSize
	numWords := bv.NumWords()
	if wordID >= numWords {
		return bv.numBits - pos
	}
	offset := (pos + 1) % WordSize
	test := bv.words[wordID] << offset
	if test > 0 {
		return distance + uint32(bits.LeadingZeros64(test))
	}
	distance += WordSize - offset
	wordID++
	for wordID < numWords {
		test = bv.words[wordID]
		if test > 0 {
			return distance + uint32(bits.LeadingZeros64(test))
		}
		distance += WordSize
		wordID++
	}
	return bv.numBits - pos
}

// DistanceToPrevSetBit returns d >= 1 such that pos-d is the closest set bit
// strictly before pos, or pos+1 when no earlier bit is set.
func (bv *Bitvector) DistanceToPrevSetBit(pos uint32) uint32 {
	if pos == 0 {
		return 1
	}
	wordID := (pos - 1) / WordSize
	offset := (pos - 1) % WordSize
	test := bv.words[wordID] >> (WordSize - 1 - offset) << (WordSize - 1 - offset)
	if test > 0 {
		return pos - (wordID*WordSize + WordSize - 1 - uint32(bits.TrailingZeros64(test)))
	}
	for wordID > 0 {
		wordID--
		test = bv.words[wordID]
		if test > 0 {
			return pos - (wordID*WordSize + WordSize - 1 - uint32(bits.TrailingZeros64(test)))
		}
	}
	return pos + 1
}

// TotalPopcount returns the number of set bits in the whole vector.
func (bv *Bitvector) TotalPopcount() uint32 {
	count := uint32(0)
	for _, w := range bv.words {
		count += uint32(bits.OnesCount64(w))
	}
	return count
}

// popcountLinear counts set bits in at most numBits bits starting at word
// startWord, clamped to the backing array.
func (bv *Bitvector) popcountLinear(startWord, numBits uint32) uint32 {
	count := uint32(0)
	wordID := startWord
	for numBits >= WordSize && wordID < uint32(len(bv.words)) {
		count += uint32(bits.OnesCount64(bv.words[wordID]))
		numBits -= WordSize
		wordID++
	}
	if numBits > 0 && wordID < uint32(len(bv.words)) {
		count += uint32(bits.OnesCount64(bv.words[wordID] >> (WordSize - numBits)))
	}
	return count
}

// SerializedSize returns the wire size of the raw bitvector in bytes.
func (bv *Bitvector) SerializedSize() uint32 {
	return 4 + bv.BitsSize()
}

// Serialize writes numBits followed by the raw words, big-endian.
func (bv *Bitvector) Serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, bv.numBits); err != nil {
		return err
	}
	return writeWords(w, bv.words)
}

// DeserializeBitvector reads a raw bitvector written by Serialize.
func DeserializeBitvector(r *bytes.Reader) (*Bitvector, error) {
	bv := &Bitvector{}
	if err := binary.Read(r, binary.BigEndian, &bv.numBits); err != nil {
		return nil, fmt.Errorf("bitvector length: %w", common.ErrCorruptStream)
	}
	var err error
	bv.words, err = readWords(r, NumWordsFor(bv.numBits))
	if err != nil {
		return nil, err
	}
	return bv, nil
}

func writeWords(w *bytes.Buffer, words []uint64) error {
	for _, v := range words {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func readWords(r *bytes.Reader, n uint32) ([]uint64, error) {
	if uint64(r.Len()) < uint64(n)*8 {
		return nil, fmt.Errorf("bit words truncated: %w", common.ErrCorruptStream)
	}
	words := make([]uint64, n)
	for i := range words {
		if err := binary.Read(r, binary.BigEndian, &words[i]); err != nil {
			return nil, fmt.Errorf("bit words: %w", common.ErrCorruptStream)
		}
	}
	return words, nil
}

func readUint32s(r *bytes.Reader, n uint32) ([]uint32, error) {
	if uint64(r.Len()) < uint64(n)*4 {
		return nil, fmt.Errorf("table truncated: %w", common.ErrCorruptStream)
	}
	vals := make([]uint32, n)
	for i := range vals {
		if err := binary.Read(r, binary.BigEndian, &vals[i]); err != nil {
			return nil, fmt.Errorf("table: %w", common.ErrCorruptStream)
		}
	}
	return vals, nil
}

func writeUint32s(w *bytes.Buffer, vals []uint32) error {
	for _, v := range vals {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}
