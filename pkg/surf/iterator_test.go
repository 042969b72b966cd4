package surf

import (
	"bytes"
	"testing"
)

// checkWalk verifies a full forward walk: one entry per key, strictly
// ascending, each reported prefix consistent with the corresponding key.
func checkWalk(t *testing.T, f *Filter, keys [][]byte) {
	t.Helper()
	it := f.MoveToFirst()
	var prev []byte
	for i := range keys {
		if !it.Valid() {
			t.Fatalf("iterator died at entry %d of %d", i, len(keys))
		}
		got := it.Key()
		if !bytes.HasPrefix(keys[i], got) {
			t.Fatalf("entry %d: %q is not a prefix of %q", i, got, keys[i])
		}
		if prev != nil && bytes.Compare(prev, got) >= 0 {
			t.Fatalf("entry %d: %q not after %q", i, got, prev)
		}
		prev = got
		it.Next()
	}
	if it.Valid() {
		t.Fatalf("iterator yielded more than %d entries", len(keys))
	}
}

// checkWalkBack verifies the symmetric backward walk.
func checkWalkBack(t *testing.T, f *Filter, keys [][]byte) {
	t.Helper()
	it := f.MoveToLast()
	var prev []byte
	for i := len(keys) - 1; i >= 0; i-- {
		if !it.Valid() {
			t.Fatalf("iterator died at entry %d walking back", i)
		}
		got := it.Key()
		if !bytes.HasPrefix(keys[i], got) {
			t.Fatalf("entry %d: %q is not a prefix of %q", i, got, keys[i])
		}
		if prev != nil && bytes.Compare(got, prev) >= 0 {
			t.Fatalf("entry %d: %q not before %q", i, got, prev)
		}
		prev = got
		it.Prev()
	}
	if it.Valid() {
		t.Fatal("iterator yielded extra entries walking back")
	}
}

func TestIteratorWalkWords(t *testing.T) {
	keys := wordKeys()
	for name, opts := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			f := mustBuild(t, keys, opts)
			checkWalk(t, f, keys)
			checkWalkBack(t, f, keys)
		})
	}
}

func TestIteratorWalkIntegers(t *testing.T) {
	keys := u64Keys(1000)
	for name, opts := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			f := mustBuild(t, keys, opts)
			checkWalk(t, f, keys)
			checkWalkBack(t, f, keys)
		})
	}
}

func TestSeekAndWalk(t *testing.T) {
	keys := wordKeys()
	for name, opts := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			f := mustBuild(t, keys, opts)
			for i, k := range keys {
				it := f.MoveToKeyGreaterThan(k, true)
				if !it.Valid() {
					t.Fatalf("seek to %q: invalid iterator", k)
				}
				if got := it.Key(); !bytes.HasPrefix(k, got) {
					t.Fatalf("seek to %q landed on %q", k, got)
				}
				// The rest of the key list follows in order.
				remaining := 0
				for it.Next() {
					remaining++
				}
				if remaining != len(keys)-i-1 {
					t.Fatalf("seek to %q: %d keys follow, want %d", k, remaining, len(keys)-i-1)
				}
			}
		})
	}
}

func TestSeekBetweenKeys(t *testing.T) {
	f := mustBuild(t, wordKeys(), &Options{
		IncludeDense: true, SparseDenseRatio: 16,
		SuffixKind: SuffixReal, RealSuffixLen: 8,
	})

	// "cay" falls between "cattle" and "dog".
	it := f.MoveToKeyGreaterThan([]byte("cay"), true)
	if !it.Valid() {
		t.Fatal("seek between keys: invalid iterator")
	}
	if got := it.Key(); !bytes.HasPrefix([]byte("dog"), got) {
		t.Fatalf("seek to \"cay\" landed on %q, want a prefix of \"dog\"", got)
	}

	// Past the last key.
	it = f.MoveToKeyGreaterThan([]byte("zz"), true)
	if it.Valid() {
		t.Fatalf("seek past the last key landed on %q", it.Key())
	}

	// Before the first key.
	it = f.MoveToKeyGreaterThan([]byte("a"), true)
	if !it.Valid() {
		t.Fatal("seek before first key: invalid iterator")
	}
	if got := it.Key(); !bytes.HasPrefix([]byte("app"), got) {
		t.Fatalf("seek to \"a\" landed on %q", got)
	}
}

func TestMoveToKeyLessThan(t *testing.T) {
	f := mustBuild(t, wordKeys(), &Options{
		IncludeDense: true, SparseDenseRatio: 16,
		SuffixKind: SuffixReal, RealSuffixLen: 8,
	})

	// "carrot" falls between "bandana" and "cat"; the last key at or below
	// it is "bandana".
	it := f.MoveToKeyLessThan([]byte("carrot"), true)
	if !it.Valid() {
		t.Fatal("less-than seek: invalid iterator")
	}
	if got := it.Key(); bytes.Compare(got, []byte("carrot")) > 0 {
		t.Fatalf("less-than seek landed past the probe: %q", got)
	}

	// Probing past the last key lands on the last key.
	it = f.MoveToKeyLessThan([]byte("zzz"), true)
	if !it.Valid() {
		t.Fatal("less-than past the end must land on the last key")
	}
	if got := it.Key(); !bytes.HasPrefix([]byte("zebra"), got) {
		t.Fatalf("less-than past the end landed on %q", got)
	}
}

func TestIteratorClear(t *testing.T) {
	f := mustBuild(t, wordKeys(), nil)
	it := f.MoveToFirst()
	if !it.Valid() {
		t.Fatal("first iterator invalid")
	}
	it.Clear()
	if it.Valid() {
		t.Fatal("cleared iterator still valid")
	}
}
