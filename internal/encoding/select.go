package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/booknouse/go-surf/internal/common"
)

// SelectBitvector is a Bitvector with sampled positions of every
// sampleInterval-th set bit, giving near-O(1) Select.
type SelectBitvector struct {
	Bitvector
	sampleInterval uint32
	numOnes        uint32
	selectLut      []uint32
}

// NewSelectBitvector concatenates the per-level bit runs for levels
// [startLevel, endLevel) and builds the select table. The first bit of the
// vector is expected to be set (the LOUDS bit of the first node).
func NewSelectBitvector(sampleInterval uint32, perLevel []*Bits, startLevel, endLevel uint32) *SelectBitvector {
	sb := &SelectBitvector{
		Bitvector:      *NewBitvector(perLevel, startLevel, endLevel),
		sampleInterval: sampleInterval,
	}
	sb.initSelectLut()
	return sb
}

func (sb *SelectBitvector) initSelectLut() {
	lut := []uint32{0} // position of the first set bit
	samplingOnes := sb.sampleInterval
	cumuOnes := uint32(0)
	numWords := sb.NumWords()
	for i := uint32(0); i < numWords; i++ {
		onesInWord := uint32(bits.OnesCount64(sb.words[i]))
		for samplingOnes <= cumuOnes+onesInWord {
			diff := samplingOnes - cumuOnes
			lut = append(lut, i*WordSize+select64(sb.words[i], diff))
			samplingOnes += sb.sampleInterval
		}
		cumuOnes += onesInWord
	}
	sb.numOnes = cumuOnes
	sb.selectLut = lut
}

// NumOnes returns the total number of set bits.
func (sb *SelectBitvector) NumOnes() uint32 { return sb.numOnes }

// Select returns the position of the rank-th set bit. The position is
// zero-based; rank is one-based. E.g. for 100101000, Select(3) = 5.
func (sb *SelectBitvector) Select(rank uint32) uint32 {
	lutIdx := rank / sb.sampleInterval
	rankLeft := rank % sb.sampleInterval
	// The first table slot holds the position of the first set bit; slot
	// i > 0 holds the position of the (i * sampleInterval)-th set bit.
	if lutIdx == 0 {
		rankLeft--
	}

	pos := sb.selectLut[lutIdx]
	if rankLeft == 0 {
		return pos
	}

	wordID := pos / WordSize
	offset := pos % WordSize
	if offset == WordSize-1 {
		wordID++
		offset = 0
	} else {
		offset++
	}
	w := sb.words[wordID] << offset >> offset // zero out bits at or before pos
	onesInWord := uint32(bits.OnesCount64(w))
	for onesInWord < rankLeft {
		wordID++
		w = sb.words[wordID]
		rankLeft -= onesInWord
		onesInWord = uint32(bits.OnesCount64(w))
	}
	return wordID*WordSize + select64(w, rankLeft)
}

// select64 returns the zero-based position (from the most significant bit)
// of the rank-th set bit in w. rank is one-based and must not exceed the
// popcount of w.
func select64(w uint64, rank uint32) uint32 {
	pos := uint32(0)
	for shift := WordSize - 8; ; shift -= 8 {
		b := uint8(w >> uint(shift))
		onesInByte := uint32(bits.OnesCount8(b))
		if onesInByte >= rank {
			for i := uint32(0); i < 8; i++ {
				if b&(0x80>>i) != 0 {
					rank--
					if rank == 0 {
						return pos + i
					}
				}
			}
		}
		rank -= onesInByte
		pos += 8
		if shift == 0 {
			break
		}
	}
	return WordSize
}

func (sb *SelectBitvector) selectLutLen() uint32 {
	return sb.numOnes/sb.sampleInterval + 1
}

// SerializedSize returns the wire size in bytes.
func (sb *SelectBitvector) SerializedSize() uint32 {
	return 4 + 4 + 4 + sb.BitsSize() + sb.selectLutLen()*4
}

// Serialize writes numBits, sampleInterval, numOnes, the raw words, and the
// select table, all big-endian.
func (sb *SelectBitvector) Serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, sb.numBits); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, sb.sampleInterval); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, sb.numOnes); err != nil {
		return err
	}
	if err := writeWords(w, sb.words); err != nil {
		return err
	}
	return writeUint32s(w, sb.selectLut)
}

// DeserializeSelectBitvector reads a select bitvector written by Serialize.
// The stored select table is taken verbatim; it is not rebuilt.
func DeserializeSelectBitvector(r *bytes.Reader) (*SelectBitvector, error) {
	sb := &SelectBitvector{}
	if err := binary.Read(r, binary.BigEndian, &sb.numBits); err != nil {
		return nil, fmt.Errorf("select bitvector length: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &sb.sampleInterval); err != nil {
		return nil, fmt.Errorf("select sample interval: %w", common.ErrCorruptStream)
	}
	if sb.sampleInterval == 0 {
		return nil, fmt.Errorf("select sample interval zero: %w", common.ErrCorruptStream)
	}
	if err := binary.Read(r, binary.BigEndian, &sb.numOnes); err != nil {
		return nil, fmt.Errorf("select ones count: %w", common.ErrCorruptStream)
	}
	var err error
	sb.words, err = readWords(r, NumWordsFor(sb.numBits))
	if err != nil {
		return nil, err
	}
	sb.selectLut, err = readUint32s(r, sb.selectLutLen())
	if err != nil {
		return nil, err
	}
	return sb, nil
}
