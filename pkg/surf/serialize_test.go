package surf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/booknouse/go-surf/internal/common"
)

func randomProbe(rng *rand.Rand) []byte {
	probe := make([]byte, 1+rng.Intn(10))
	for i := range probe {
		probe[i] = byte(rng.Intn(256))
	}
	return probe
}

func TestSerializeRoundTrip(t *testing.T) {
	keys := wordKeys()
	for name, opts := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			f := mustBuild(t, keys, opts)
			buf, err := f.Serialize()
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			if uint32(len(buf)) != f.SerializedSize() {
				t.Fatalf("serialized %d bytes, SerializedSize says %d", len(buf), f.SerializedSize())
			}

			f2, err := Deserialize(buf)
			if err != nil {
				t.Fatalf("deserialize: %v", err)
			}
			if f2.SerializedSize() != uint32(len(buf)) {
				t.Fatal("round-tripped filter reports a different serialized size")
			}

			// Re-serialization must be byte-identical.
			buf2, err := f2.Serialize()
			if err != nil {
				t.Fatalf("re-serialize: %v", err)
			}
			if !bytes.Equal(buf, buf2) {
				t.Fatal("round-tripped serialization differs")
			}

			// Both filters answer every query identically.
			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 5000; i++ {
				var probe []byte
				if i%3 == 0 {
					probe = keys[rng.Intn(len(keys))]
				} else {
					probe = randomProbe(rng)
				}
				if f.Lookup(probe) != f2.Lookup(probe) {
					t.Fatalf("lookup disagreement for %q", probe)
				}
			}
			for i := 0; i < 500; i++ {
				lo, hi := randomProbe(rng), randomProbe(rng)
				if bytes.Compare(lo, hi) > 0 {
					lo, hi = hi, lo
				}
				if f.LookupRange(lo, true, hi, true) != f2.LookupRange(lo, true, hi, true) {
					t.Fatalf("range disagreement for [%q, %q]", lo, hi)
				}
				if f.ApproxCount(lo, hi) != f2.ApproxCount(lo, hi) {
					t.Fatalf("count disagreement for [%q, %q]", lo, hi)
				}
			}
			checkWalk(t, f2, keys)
		})
	}
}

func TestSerializeRoundTripIntegers(t *testing.T) {
	keys := u64Keys(1000)
	f := mustBuild(t, keys, &Options{
		IncludeDense: true, SparseDenseRatio: 16,
		SuffixKind: SuffixReal, RealSuffixLen: 8,
	})
	buf, err := f.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	f2, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	for i := 0; i < 2000; i++ {
		probe := make([]byte, 8)
		binary.BigEndian.PutUint64(probe, uint64(i))
		if f.Lookup(probe) != f2.Lookup(probe) {
			t.Fatalf("lookup disagreement for %d", i)
		}
	}
}

func TestDeserializeTruncated(t *testing.T) {
	f := mustBuild(t, wordKeys(), nil)
	buf, err := f.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	for _, cut := range []int{0, 1, 7, len(buf) / 3, len(buf) / 2, len(buf) - 1} {
		if _, err := Deserialize(buf[:cut]); err == nil {
			t.Errorf("truncation at %d accepted", cut)
		}
	}
}

func TestDeserializeHeaderMismatch(t *testing.T) {
	f := mustBuild(t, wordKeys(), nil)
	buf, err := f.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	// Corrupt the dense tier's bitmap size field.
	bad := append([]byte(nil), buf...)
	bad[7] ^= 0xFF
	if _, err := Deserialize(bad); err == nil {
		t.Error("bitmap size mismatch accepted")
	} else if !errors.Is(err, common.ErrCorruptStream) {
		t.Errorf("unexpected error class: %v", err)
	}

	// Corrupt the dense height so the tier headers disagree.
	bad = append([]byte(nil), buf...)
	bad[3] ^= 0x01
	if _, err := Deserialize(bad); err == nil {
		t.Error("height mismatch accepted")
	}
}
