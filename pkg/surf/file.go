package surf

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/booknouse/go-surf/internal/common"
	"github.com/booknouse/go-surf/pkg/surf/utils"
)

// Filter file envelope, little-endian:
//
//	magic (u32) | version (u16) | payloadLen (u64) | crc32c (u32) |
//	blake3-256 (32 bytes) | payload
//
// The payload is the raw Serialize stream; the envelope adds integrity
// checks for files at rest.
const fileHeaderSize = 4 + 2 + 8 + 4 + 32

// WriteFile serializes the filter and writes it to path. The file appears
// atomically: the envelope is written to a temp file in the same directory,
// synced, and renamed into place, so a crash never leaves a torn filter
// behind.
func (f *Filter) WriteFile(path string) error {
	payload, err := f.Serialize()
	if err != nil {
		return err
	}

	header := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], common.MagicSuRF)
	binary.LittleEndian.PutUint16(header[4:6], common.VersionFilter)
	binary.LittleEndian.PutUint64(header[6:14], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[14:18], utils.ComputeCRC32C(payload))
	digest := utils.ComputeBLAKE3(payload)
	copy(header[18:50], digest[:])

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true

	// Sync the directory so the rename itself is durable.
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// ReadFile loads a filter file written by WriteFile.
func ReadFile(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeFile(data)
}

// OpenFile maps a filter file read-only, decodes it, and releases the
// mapping before returning. The returned filter owns its buffers and does
// not reference the file.
func OpenFile(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return nil, fmt.Errorf("empty file: %w", common.ErrCorruptStream)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer unix.Munmap(data)
	return decodeFile(data)
}

func decodeFile(data []byte) (*Filter, error) {
	if len(data) < fileHeaderSize {
		return nil, fmt.Errorf("file of %d bytes too short: %w", len(data), common.ErrCorruptStream)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != common.MagicSuRF {
		return nil, fmt.Errorf("got 0x%08x: %w", magic, common.ErrInvalidMagic)
	}
	if version := binary.LittleEndian.Uint16(data[4:6]); version != common.VersionFilter {
		return nil, fmt.Errorf("got 0x%04x: %w", version, common.ErrUnsupportedVersion)
	}
	payloadLen := binary.LittleEndian.Uint64(data[6:14])
	if uint64(len(data)-fileHeaderSize) != payloadLen {
		return nil, fmt.Errorf("payload of %d bytes, header says %d: %w",
			len(data)-fileHeaderSize, payloadLen, common.ErrCorruptStream)
	}
	payload := data[fileHeaderSize:]
	if !utils.VerifyCRC32C(payload, binary.LittleEndian.Uint32(data[14:18])) {
		return nil, common.ErrCRCMismatch
	}
	digest := utils.ComputeBLAKE3(payload)
	for i, b := range data[18:50] {
		if digest[i] != b {
			return nil, fmt.Errorf("content digest mismatch: %w", common.ErrCorruptStream)
		}
	}
	return Deserialize(payload)
}
