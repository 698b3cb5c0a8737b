package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes dict to w in SafeTensors format.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name. Vectors keep their 1xD
// shape.
func WriteSafeTensors(w io.Writer, dict map[string]*mat.Dense, dt tensor.DataType, metadata map[string]string) error {
	if len(dict) == 0 {
		return ErrEmptyStateDict
	}
	stType, err := dtypeToSafeTensors(dt)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(dict))
	for name := range dict {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(dict)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var data []byte
	for _, name := range names {
		m := dict[name]
		r, c := m.Dims()
		start := int64(len(data))
		data = encodeMatrix(data, m, dt)
		header[name] = SafeTensorHeader{
			DType:       stType,
			Shape:       []int64{int64(r), int64(c)},
			DataOffsets: [2]int64{start, int64(len(data))},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// ExportSafeTensors writes dict to a SafeTensors file at path.
func ExportSafeTensors(path string, dict map[string]*mat.Dense, dt tensor.DataType, metadata map[string]string) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteSafeTensors(file, dict, dt, metadata); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// dtypeToSafeTensors converts tensor.DataType to the SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float16:
		return "F16", nil
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDType, dt)
	}
}
