package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/tensor"
)

const version = "0.1.0" // Written into every header

// Name prefixes that mark non-parameter entries of a state dict.
const (
	OptimizerPrefix = "optim."   // Update rule state, e.g. "optim.m.W1"
	RunningPrefix   = "running_" // Batch norm statistics, e.g. "running_mean1"
)

// WriteOptions configures how a state dict is written.
type WriteOptions struct {
	DType      tensor.DataType   // Storage precision (default: float32)
	ModelType  string            // Free-form model type recorded in the header
	Metadata   map[string]string // Custom metadata
	Checkpoint *CheckpointMeta   // Training state, if this is a checkpoint
}

// Writer writes state dicts in .born format.
type Writer struct {
	w io.Writer
}

// NewWriter creates a .born writer on top of w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteStateDict writes dict as a complete .born v2 file.
//
// Tensors are written in sorted name order, so the same dict always produces
// the same data section and checksum.
func (w *Writer) WriteStateDict(dict map[string]*mat.Dense, opts WriteOptions) error {
	if len(dict) == 0 {
		return ErrEmptyStateDict
	}
	if !opts.DType.Valid() {
		return fmt.Errorf("%w: %v", ErrUnsupportedDType, opts.DType)
	}

	names := make([]string, 0, len(dict))
	for name := range dict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		FormatVersion:  FormatVersion,
		Version:        version,
		ModelType:      opts.ModelType,
		CreatedAt:      time.Now().UTC(),
		Tensors:        make([]TensorMeta, 0, len(dict)),
		Metadata:       opts.Metadata,
		CheckpointMeta: opts.Checkpoint,
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	// Encode tensor data and record offsets
	var data []byte
	flags := uint32(0)
	for _, name := range names {
		m := dict[name]
		r, c := m.Dims()
		offset := int64(len(data))
		data = encodeMatrix(data, m, opts.DType)

		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(opts.DType),
			Shape:  []int{r, c},
			Offset: offset,
			Size:   int64(len(data)) - offset,
		})

		switch {
		case strings.HasPrefix(name, OptimizerPrefix):
			flags |= FlagHasOptimizer
		case strings.HasPrefix(name, RunningPrefix):
			flags |= FlagHasBatchNorm
		}
	}
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil {
		flags |= FlagHasCheckpoint
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(headerJSON))
	}

	checksum := ComputeChecksum(data)

	// 64-byte fixed header
	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint32(fixed[formatFlagsOffset:], flags)
	binary.LittleEndian.PutUint64(fixed[headerSizeOffset:], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[dataSizeOffset:], uint64(len(data)))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	// Pad so tensor data starts on a 64-byte boundary
	headerEnd := int64(FixedHeaderSize + len(headerJSON))
	if padding := dataOffset(int64(len(headerJSON))) - headerEnd; padding > 0 {
		if _, err := w.w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Save writes dict to path.
//
// The file is written to a temporary file in the same directory and renamed
// into place, so an interrupted save never leaves a truncated checkpoint.
func Save(path string, dict map[string]*mat.Dense, opts WriteOptions) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name()) // No-op after a successful rename
	}()

	if err := NewWriter(tmp).WriteStateDict(dict, opts); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}
	return nil
}
