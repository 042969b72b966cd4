package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/booknouse/go-surf/internal/common"
)

// binarySearchThreshold is the node size above which label search switches
// from linear scan to binary search.
const binarySearchThreshold = 16

// LabelVector is the packed concatenation of the sparse tier's per-level
// edge labels. Labels within a node are sorted ascending, with the
// terminator (if present) at the node's first position.
type LabelVector struct {
	labels []byte
}

// NewLabelVector concatenates the per-level label arrays for levels
// [startLevel, endLevel).
func NewLabelVector(labelsPerLevel [][]byte, startLevel, endLevel uint32) *LabelVector {
	total := 0
	for level := startLevel; level < endLevel; level++ {
		total += len(labelsPerLevel[level])
	}
	labels := make([]byte, 0, total)
	for level := startLevel; level < endLevel; level++ {
		labels = append(labels, labelsPerLevel[level]...)
	}
	return &LabelVector{labels: labels}
}

// NumBytes returns the number of stored labels.
func (lv *LabelVector) NumBytes() uint32 { return uint32(len(lv.labels)) }

// Read returns the label at pos.
func (lv *LabelVector) Read(pos uint32) byte {
	if pos >= uint32(len(lv.labels)) {
		return 0
	}
	return lv.labels[pos]
}

// Search locates label within the node occupying [pos, pos+searchLen).
// It reports the matching position and whether the label exists.
func (lv *LabelVector) Search(label byte, pos, searchLen uint32) (uint32, bool) {
	if searchLen == 0 || pos >= uint32(len(lv.labels)) {
		return 0, false
	}
	if pos+searchLen > uint32(len(lv.labels)) {
		searchLen = uint32(len(lv.labels)) - pos
	}
	if searchLen <= binarySearchThreshold {
		for i := uint32(0); i < searchLen; i++ {
			if lv.labels[pos+i] == label {
				return pos + i, true
			}
		}
		return 0, false
	}
	lo, hi := pos, pos+searchLen
	for lo < hi {
		mid := (lo + hi) / 2
		if lv.labels[mid] < label {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < pos+searchLen && lv.labels[lo] == label {
		return lo, true
	}
	return 0, false
}

// SearchGreaterThan finds the smallest position in [pos, pos+searchLen)
// whose label is strictly greater than label.
func (lv *LabelVector) SearchGreaterThan(label byte, pos, searchLen uint32) (uint32, bool) {
	if searchLen == 0 || pos >= uint32(len(lv.labels)) {
		return 0, false
	}
	if pos+searchLen > uint32(len(lv.labels)) {
		searchLen = uint32(len(lv.labels)) - pos
	}
	lo, hi := pos, pos+searchLen
	for lo < hi {
		mid := (lo + hi) / 2
		if lv.labels[mid] <= label {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < pos+searchLen {
		return lo, true
	}
	return 0, false
}

// SerializedSize returns the wire size in bytes.
func (lv *LabelVector) SerializedSize() uint32 {
	return 4 + uint32(len(lv.labels))
}

// Serialize writes the label count followed by the raw labels.
func (lv *LabelVector) Serialize(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(lv.labels))); err != nil {
		return err
	}
	_, err := w.Write(lv.labels)
	return err
}

// DeserializeLabelVector reads a label vector written by Serialize.
func DeserializeLabelVector(r *bytes.Reader) (*LabelVector, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("label count: %w", common.ErrCorruptStream)
	}
	if uint64(r.Len()) < uint64(n) {
		return nil, fmt.Errorf("labels truncated: %w", common.ErrCorruptStream)
	}
	labels := make([]byte, n)
	if _, err := r.Read(labels); err != nil && n > 0 {
		return nil, fmt.Errorf("labels: %w", common.ErrCorruptStream)
	}
	return &LabelVector{labels: labels}, nil
}
