package surf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/booknouse/go-surf/internal/common"
)

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.surf")

	keys := wordKeys()
	f := mustBuild(t, keys, &Options{
		IncludeDense: true, SparseDenseRatio: 16,
		SuffixKind: SuffixReal, RealSuffixLen: 8,
	})
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("write file: %v", err)
	}

	f2, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	for _, k := range keys {
		if !f2.Lookup(k) {
			t.Errorf("false negative after file round trip for %q", k)
		}
	}

	f3, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	for _, k := range keys {
		if !f3.Lookup(k) {
			t.Errorf("false negative after mmap load for %q", k)
		}
	}
}

func TestFileRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filter.surf")

	f := mustBuild(t, wordKeys(), nil)
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	// Flipped payload byte: caught by the CRC.
	bad := append([]byte(nil), data...)
	bad[len(bad)-1] ^= 0x01
	badPath := filepath.Join(dir, "crc.surf")
	if err := os.WriteFile(badPath, bad, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(badPath); !errors.Is(err, common.ErrCRCMismatch) {
		t.Errorf("expected CRC mismatch, got %v", err)
	}

	// Wrong magic.
	bad = append([]byte(nil), data...)
	bad[0] ^= 0xFF
	magicPath := filepath.Join(dir, "magic.surf")
	if err := os.WriteFile(magicPath, bad, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(magicPath); !errors.Is(err, common.ErrInvalidMagic) {
		t.Errorf("expected magic error, got %v", err)
	}

	// Truncated payload.
	truncPath := filepath.Join(dir, "trunc.surf")
	if err := os.WriteFile(truncPath, data[:len(data)-10], 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(truncPath); err == nil {
		t.Error("truncated file accepted")
	}
}
