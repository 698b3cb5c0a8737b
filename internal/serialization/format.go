package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/tensor"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersion     = 2    // With SHA-256 checksum
	HeaderAlignment   = 64   // Align tensor data to 64 bytes
	FixedHeaderSize   = 64   // Fixed header size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset    = 0x20 // Checksum offset in the fixed header
	headerSizeOffset  = 0x10
	dataSizeOffset    = 0x18
	formatFlagsOffset = 0x08
)

// Data type string constants for serialization.
const (
	DTypeFloat16 = "float16"
	DTypeFloat32 = "float32"
	DTypeFloat64 = "float64"
)

// Flags for the .born format.
const (
	FlagHasOptimizer  uint32 = 1 << 1 // bit 1: optimizer state included
	FlagHasMetadata   uint32 = 1 << 2 // bit 2: custom metadata included
	FlagHasBatchNorm  uint32 = 1 << 3 // bit 3: batch norm running statistics included
	FlagHasCheckpoint uint32 = 1 << 4 // bit 4: training checkpoint metadata included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`       // Version of the .born format
	Version        string            `json:"version"`              // Version of the module that created this file
	ModelType      string            `json:"model_type"`           // Type of model (e.g., "FullyConnectedNet")
	CreatedAt      time.Time         `json:"created_at"`           // When the file was created
	Tensors        []TensorMeta      `json:"tensors"`              // Tensor metadata
	Metadata       map[string]string `json:"metadata"`             // Custom metadata
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"` // Checkpoint metadata (optional)
}

// CheckpointMeta contains training state information for checkpoints.
type CheckpointMeta struct {
	Epoch           int            `json:"epoch"`            // Training epoch number
	Step            int64          `json:"step"`             // Training step number
	Loss            float64        `json:"loss"`             // Loss value at checkpoint
	ValAcc          float64        `json:"val_acc"`          // Validation accuracy at checkpoint
	OptimizerType   string         `json:"optimizer_type"`   // Update rule name ("sgd", "adam", etc.)
	OptimizerConfig map[string]any `json:"optimizer_config"` // Update rule hyperparameters
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "W1", "running_mean2")
	DType  string `json:"dtype"`  // Storage type ("float16", "float32", "float64")
	Shape  []int  `json:"shape"`  // Tensor shape (rows, cols)
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// dtypeToString converts tensor.DataType to its string representation.
func dtypeToString(dt tensor.DataType) string {
	switch dt {
	case tensor.Float16:
		return DTypeFloat16
	case tensor.Float32:
		return DTypeFloat32
	case tensor.Float64:
		return DTypeFloat64
	default:
		return "unknown"
	}
}

// stringToDtype converts a string representation to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case DTypeFloat16:
		return tensor.Float16, true
	case DTypeFloat32:
		return tensor.Float32, true
	case DTypeFloat64:
		return tensor.Float64, true
	default:
		return 0, false
	}
}

// dataOffset returns the offset of the data section for a JSON header of the
// given size.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-(pos%HeaderAlignment))%HeaderAlignment
}

// encodeMatrix appends the little-endian encoding of m in row-major order.
func encodeMatrix(dst []byte, m mat.Matrix, dt tensor.DataType) []byte {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			switch dt {
			case tensor.Float16:
				dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(float32(v)).Bits())
			case tensor.Float32:
				dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v)))
			default:
				dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
			}
		}
	}
	return dst
}

// decodeMatrix decodes the data of one tensor into a float64 matrix.
func decodeMatrix(meta TensorMeta, data []byte) (*mat.Dense, error) {
	dt, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, meta.DType)
	}
	if len(meta.Shape) != 2 || meta.Shape[0] <= 0 || meta.Shape[1] <= 0 {
		return nil, &ValidationError{Type: KindInvalidShape, Tensor: meta.Name, Details: fmt.Sprintf("shape %v is not a non-empty matrix", meta.Shape)}
	}
	n := meta.Shape[0] * meta.Shape[1]
	if len(data) != n*dt.Size() {
		return nil, &ValidationError{Type: KindSizeMismatch, Tensor: meta.Name, Details: fmt.Sprintf("%d bytes for %d %s values", len(data), n, meta.DType)}
	}

	values := make([]float64, n)
	for i := range values {
		switch dt {
		case tensor.Float16:
			values[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32())
		case tensor.Float32:
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		default:
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	}
	return mat.NewDense(meta.Shape[0], meta.Shape[1], values), nil
}
