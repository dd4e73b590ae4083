// Package archive persists one task's training artifacts in a
// safetensors-style container: an 8-byte little-endian header length, a JSON
// header mapping tensor names to dtype, shape, and byte offsets, then the raw
// little-endian payload. Everything this pipeline stores is float64, so the
// only dtype written is F64.
package archive

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// Tensor is one named array in a container.
type Tensor struct {
	DType  string
	Shape  []int
	Values []float64
}

// Archive is an in-memory container: named tensors plus string metadata.
type Archive struct {
	Metadata map[string]string
	Tensors  map[string]Tensor
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{
		Metadata: make(map[string]string),
		Tensors:  make(map[string]Tensor),
	}
}

// Put stores values under name with the given shape. The element count must
// match the shape.
func (a *Archive) Put(name string, shape []int, values []float64) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(values) {
		return fmt.Errorf("archive: %s: shape %v wants %d values, got %d", name, shape, n, len(values))
	}
	a.Tensors[name] = Tensor{
		DType:  "F64",
		Shape:  append([]int(nil), shape...),
		Values: append([]float64(nil), values...),
	}
	return nil
}

// Tensor returns the named tensor.
func (a *Archive) Tensor(name string) (Tensor, bool) {
	t, ok := a.Tensors[name]
	return t, ok
}

// Names returns the stored tensor names in sorted order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.Tensors))
	for name := range a.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type headerEntry struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Serialize encodes the archive. Tensors are laid out in sorted name order so
// the bytes are deterministic.
func (a *Archive) Serialize() ([]byte, error) {
	header := make(map[string]any, len(a.Tensors)+1)
	if len(a.Metadata) > 0 {
		header["__metadata__"] = a.Metadata
	}

	offset := 0
	names := a.Names()
	for _, name := range names {
		t := a.Tensors[name]
		size := len(t.Values) * 8
		header[name] = headerEntry{
			DType:       t.DType,
			Shape:       t.Shape,
			DataOffsets: [2]int{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal header: %w", err)
	}

	out := make([]byte, 8+len(headerJSON)+offset)
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(headerJSON)))
	copy(out[8:], headerJSON)

	pos := 8 + len(headerJSON)
	for _, name := range names {
		for _, v := range a.Tensors[name].Values {
			binary.LittleEndian.PutUint64(out[pos:pos+8], math.Float64bits(v))
			pos += 8
		}
	}
	return out, nil
}

// Parse decodes a serialized archive.
func Parse(data []byte) (*Archive, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("archive: truncated: %d bytes", len(data))
	}
	headerLen := binary.LittleEndian.Uint64(data[0:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("archive: header length %d exceeds payload", headerLen)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("archive: decode header: %w", err)
	}

	a := New()
	payload := data[8+headerLen:]
	for name, raw := range header {
		if name == "__metadata__" {
			if err := json.Unmarshal(raw, &a.Metadata); err != nil {
				return nil, fmt.Errorf("archive: decode metadata: %w", err)
			}
			continue
		}
		var entry headerEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("archive: decode entry %s: %w", name, err)
		}
		if entry.DType != "F64" {
			return nil, fmt.Errorf("archive: %s: unsupported dtype %s", name, entry.DType)
		}
		start, end := entry.DataOffsets[0], entry.DataOffsets[1]
		if start < 0 || end < start || end > len(payload) || (end-start)%8 != 0 {
			return nil, fmt.Errorf("archive: %s: bad data offsets [%d, %d]", name, start, end)
		}
		values := make([]float64, (end-start)/8)
		for i := range values {
			bits := binary.LittleEndian.Uint64(payload[start+i*8 : start+(i+1)*8])
			values[i] = math.Float64frombits(bits)
		}
		n := 1
		for _, d := range entry.Shape {
			n *= d
		}
		if n != len(values) {
			return nil, fmt.Errorf("archive: %s: shape %v does not cover %d values", name, entry.Shape, len(values))
		}
		a.Tensors[name] = Tensor{DType: entry.DType, Shape: entry.Shape, Values: values}
	}
	return a, nil
}

// Save serializes the archive to path.
func Save(path string, a *Archive) error {
	data, err := a.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// Load reads and parses the archive at path.
func Load(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return Parse(data)
}
