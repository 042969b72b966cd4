package encoding

import (
	"bytes"
	"testing"
)

func TestLabelVectorSearch(t *testing.T) {
	// Two nodes: [0x00 'a' 'c' 'x'] and a large sorted node to exercise the
	// binary search path.
	node1 := []byte{0x00, 'a', 'c', 'x'}
	node2 := make([]byte, 0, 32)
	for b := byte('A'); b < 'A'+64; b += 2 {
		node2 = append(node2, b)
	}
	lv := NewLabelVector([][]byte{node1, node2}, 0, 2)

	if pos, ok := lv.Search('c', 0, 4); !ok || pos != 2 {
		t.Fatalf("search 'c': got (%d, %v)", pos, ok)
	}
	if _, ok := lv.Search('b', 0, 4); ok {
		t.Fatal("search 'b' should miss")
	}
	if pos, ok := lv.Search(0x00, 0, 4); !ok || pos != 0 {
		t.Fatalf("search terminator: got (%d, %v)", pos, ok)
	}
	for i, b := range node2 {
		if pos, ok := lv.Search(b, 4, uint32(len(node2))); !ok || pos != uint32(4+i) {
			t.Fatalf("search %q in wide node: got (%d, %v)", b, pos, ok)
		}
	}
	if _, ok := lv.Search('B', 4, uint32(len(node2))); ok {
		t.Fatal("search absent label in wide node should miss")
	}
}

func TestLabelVectorSearchGreaterThan(t *testing.T) {
	node := []byte{0x00, 'b', 'd', 'f'}
	lv := NewLabelVector([][]byte{node}, 0, 1)

	if pos, ok := lv.SearchGreaterThan('c', 0, 4); !ok || pos != 2 {
		t.Fatalf("greater than 'c': got (%d, %v)", pos, ok)
	}
	if pos, ok := lv.SearchGreaterThan(0x00, 0, 4); !ok || pos != 1 {
		t.Fatalf("greater than terminator: got (%d, %v)", pos, ok)
	}
	if _, ok := lv.SearchGreaterThan('f', 0, 4); ok {
		t.Fatal("greater than max label should miss")
	}
}

func TestLabelVectorSerializeRoundTrip(t *testing.T) {
	lv := NewLabelVector([][]byte{{'a', 'b'}, {'c'}, {}}, 0, 3)
	var buf bytes.Buffer
	if err := lv.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if uint32(buf.Len()) != lv.SerializedSize() {
		t.Fatalf("serialized size %d != %d", buf.Len(), lv.SerializedSize())
	}
	got, err := DeserializeLabelVector(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.NumBytes() != 3 {
		t.Fatalf("label count: got %d", got.NumBytes())
	}
	for i := uint32(0); i < 3; i++ {
		if got.Read(i) != lv.Read(i) {
			t.Fatalf("label %d differs", i)
		}
	}
}
