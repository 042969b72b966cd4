package encoding

import (
	"bytes"
	"testing"

	"github.com/zeebo/xxh3"
)

func TestConstructRealSuffix(t *testing.T) {
	key := []byte{0xAB, 0xCD, 0xEF}
	cases := []struct {
		level uint32
		len   uint32
		want  uint64
	}{
		{0, 8, 0xAB},
		{1, 8, 0xCD},
		{1, 16, 0xCDEF},
		{1, 4, 0xC},
		{2, 12, 0xEF0}, // padded with zero bits past the key
		{3, 8, 0},      // no bytes left
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := ConstructRealSuffix(key, c.level, c.len); got != c.want {
			t.Errorf("real suffix level=%d len=%d: got %#x, want %#x", c.level, c.len, got, c.want)
		}
	}
}

func TestConstructHashSuffix(t *testing.T) {
	key := []byte("apple")
	if got := ConstructHashSuffix(key, 8); got != xxh3.Hash(key)&0xFF {
		t.Fatalf("hash suffix: got %#x", got)
	}
	if got := ConstructHashSuffix(key, 64); got != xxh3.Hash(key) {
		t.Fatalf("full hash suffix: got %#x", got)
	}
	if got := ConstructHashSuffix(key, 0); got != 0 {
		t.Fatalf("zero-length hash suffix: got %#x", got)
	}
}

func buildSuffixStore(kind SuffixKind, hashLen, realLen uint32, keys [][]byte, levels []uint32) *SuffixStore {
	b := &Bits{}
	for i, key := range keys {
		b.AppendBits(ConstructSuffix(kind, key, hashLen, levels[i], realLen), hashLen+realLen)
	}
	return NewSuffixStore(kind, hashLen, realLen, []*Bits{b}, 0, 1)
}

func TestSuffixStoreCheckEquality(t *testing.T) {
	keys := [][]byte{[]byte("apple"), []byte("apply"), []byte("banana")}
	levels := []uint32{4, 4, 2}

	for _, kind := range []SuffixKind{SuffixHash, SuffixReal, SuffixMixed} {
		ss := buildSuffixStore(kind, 6, 7, keys, levels)
		for i, key := range keys {
			if !ss.CheckEquality(uint32(i), key, levels[i]) {
				t.Errorf("%v: stored key %q rejected", kind, key)
			}
		}
		probe := ConstructSuffix(kind, []byte("apric"), 6, 4, 7)
		if probe != ss.Read(0) && ss.CheckEquality(0, []byte("apric"), 4) {
			t.Errorf("%v: mismatched key accepted", kind)
		}
	}

	none := buildSuffixStore(SuffixNone, 0, 0, keys, levels)
	if !none.CheckEquality(0, []byte("anything"), 1) {
		t.Error("suffix kind none must accept trivially")
	}
}

func TestSuffixStoreCompare(t *testing.T) {
	keys := [][]byte{[]byte("apple")}
	levels := []uint32{4}
	ss := buildSuffixStore(SuffixReal, 0, 8, keys, levels)

	// stored real suffix is 'e'
	if got := ss.Compare(0, []byte("appla"), 4); got != 1 {
		t.Fatalf("compare against smaller suffix: got %d", got)
	}
	if got := ss.Compare(0, []byte("applz"), 4); got != -1 {
		t.Fatalf("compare against larger suffix: got %d", got)
	}
	if got := ss.Compare(0, []byte("apple"), 4); got != CouldBePositive {
		t.Fatalf("compare against equal suffix: got %d", got)
	}

	hash := buildSuffixStore(SuffixHash, 8, 0, keys, levels)
	if got := hash.Compare(0, []byte("zzz"), 1); got != CouldBePositive {
		t.Fatalf("hash suffixes cannot order keys: got %d", got)
	}
}

func TestSuffixStoreReadReal(t *testing.T) {
	keys := [][]byte{[]byte("apple")}
	ss := buildSuffixStore(SuffixMixed, 5, 8, keys, []uint32{4})
	if got := ss.ReadReal(0); got != uint64('e') {
		t.Fatalf("read real: got %#x, want %#x", got, uint64('e'))
	}
}

func TestSuffixStoreSerializeRoundTrip(t *testing.T) {
	keys := [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four")}
	levels := []uint32{1, 2, 3, 2}
	ss := buildSuffixStore(SuffixMixed, 9, 11, keys, levels)

	var buf bytes.Buffer
	if err := ss.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if uint32(buf.Len()) != ss.SerializedSize() {
		t.Fatalf("serialized size %d != %d", buf.Len(), ss.SerializedSize())
	}
	got, err := DeserializeSuffixStore(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Kind() != SuffixMixed || got.HashLen() != 9 || got.RealLen() != 11 {
		t.Fatal("suffix parameters differ after round trip")
	}
	for i := range keys {
		if got.Read(uint32(i)) != ss.Read(uint32(i)) {
			t.Fatalf("suffix %d differs after round trip", i)
		}
	}
}
