package encoding

import (
	"bytes"
	"math/rand"
	"testing"
)

func bitsFromBools(vals []bool) *Bits {
	b := &Bits{}
	for _, v := range vals {
		b.PushBack(v)
	}
	return b
}

func randomBools(n int, density float64, seed int64) []bool {
	rng := rand.New(rand.NewSource(seed))
	vals := make([]bool, n)
	for i := range vals {
		vals[i] = rng.Float64() < density
	}
	return vals
}

func TestBitsPushBackAndGet(t *testing.T) {
	vals := randomBools(1000, 0.3, 1)
	b := bitsFromBools(vals)
	if b.NumBits() != 1000 {
		t.Fatalf("expected 1000 bits, got %d", b.NumBits())
	}
	for i, v := range vals {
		if b.Get(uint32(i)) != v {
			t.Fatalf("bit %d mismatch", i)
		}
	}
}

func TestBitvectorConcatenation(t *testing.T) {
	// Three levels with lengths that do not align to word boundaries.
	levels := []*Bits{
		bitsFromBools(randomBools(7, 0.5, 2)),
		bitsFromBools(randomBools(130, 0.5, 3)),
		bitsFromBools(randomBools(63, 0.5, 4)),
	}
	bv := NewBitvector(levels, 0, 3)
	if bv.NumBits() != 200 {
		t.Fatalf("expected 200 bits, got %d", bv.NumBits())
	}
	pos := uint32(0)
	for _, lvl := range levels {
		for i := uint32(0); i < lvl.NumBits(); i++ {
			if bv.ReadBit(pos) != lvl.Get(i) {
				t.Fatalf("concatenated bit %d mismatch", pos)
			}
			pos++
		}
	}

	// Partial concatenation skips the excluded levels.
	bv = NewBitvector(levels, 1, 3)
	if bv.NumBits() != 193 {
		t.Fatalf("expected 193 bits, got %d", bv.NumBits())
	}
	if bv.ReadBit(0) != levels[1].Get(0) {
		t.Fatal("partial concatenation does not start at level 1")
	}
}

func TestDistanceToNextSetBit(t *testing.T) {
	vals := randomBools(500, 0.1, 5)
	vals[0] = true
	bv := NewBitvector([]*Bits{bitsFromBools(vals)}, 0, 1)
	for pos := uint32(0); pos < 500; pos++ {
		want := bv.NumBits() - pos
		for i := pos + 1; i < 500; i++ {
			if vals[i] {
				want = i - pos
				break
			}
		}
		if got := bv.DistanceToNextSetBit(pos); got != want {
			t.Fatalf("next set bit from %d: got %d, want %d", pos, got, want)
		}
	}
}

func TestDistanceToPrevSetBit(t *testing.T) {
	vals := randomBools(500, 0.1, 6)
	bv := NewBitvector([]*Bits{bitsFromBools(vals)}, 0, 1)
	for pos := uint32(1); pos < 500; pos++ {
		want := pos + 1
		for i := int(pos) - 1; i >= 0; i-- {
			if vals[i] {
				want = pos - uint32(i)
				break
			}
		}
		if got := bv.DistanceToPrevSetBit(pos); got != want {
			t.Fatalf("prev set bit from %d: got %d, want %d", pos, got, want)
		}
	}
}

func TestBitvectorSerializeRoundTrip(t *testing.T) {
	vals := randomBools(777, 0.4, 7)
	bv := NewBitvector([]*Bits{bitsFromBools(vals)}, 0, 1)

	var buf bytes.Buffer
	if err := bv.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if uint32(buf.Len()) != bv.SerializedSize() {
		t.Fatalf("serialized size %d != %d", buf.Len(), bv.SerializedSize())
	}

	got, err := DeserializeBitvector(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.NumBits() != bv.NumBits() {
		t.Fatalf("bit count mismatch: %d != %d", got.NumBits(), bv.NumBits())
	}
	for i := uint32(0); i < bv.NumBits(); i++ {
		if got.ReadBit(i) != bv.ReadBit(i) {
			t.Fatalf("bit %d mismatch after round trip", i)
		}
	}
}

func TestDeserializeBitvectorTruncated(t *testing.T) {
	vals := randomBools(200, 0.5, 8)
	bv := NewBitvector([]*Bits{bitsFromBools(vals)}, 0, 1)
	var buf bytes.Buffer
	if err := bv.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := DeserializeBitvector(bytes.NewReader(buf.Bytes()[:buf.Len()-3])); err == nil {
		t.Fatal("expected error for truncated stream")
	}
}
