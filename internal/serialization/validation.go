package serialization

import (
	"fmt"
	"regexp"
	"sort"
)

// Limits applied to untrusted files.
const (
	MaxHeaderSize    = 16 * 1024 * 1024 // JSON header bytes
	MaxTensorCount   = 10_000
	MaxTensorNameLen = 256
)

// ValidationLevel controls how much of a header the reader checks.
type ValidationLevel int

const (
	// ValidationStrict checks names, shapes, sizes and the layout of the data
	// section (default).
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names, shapes and sizes but not offsets.
	ValidationNormal
	// ValidationNone trusts the header.
	ValidationNone
)

// Kinds of ValidationError.
const (
	KindTruncated      = "truncated"
	KindInvalidName    = "invalid_name"
	KindDuplicateName  = "duplicate_name"
	KindInvalidShape   = "invalid_shape"
	KindSizeMismatch   = "size_mismatch"
	KindNegativeOffset = "negative_offset"
	KindOutOfBounds    = "out_of_bounds"
	KindOffsetOverlap  = "offset_overlap"
)

// tensorName matches the entries of a network state dict: layer parameters
// (W3, b3, gamma1, beta1), batch norm statistics (running_mean1, running_var1)
// and update rule state stored under OptimizerPrefix (optim.velocity.W2,
// optim.m.b1).
var tensorName = regexp.MustCompile(`^(optim\.[a-z]+\.)?(W|b|gamma|beta|running_mean|running_var)[1-9][0-9]*$`)

// ValidateTensorName checks that name is a state dict entry name.
func ValidateTensorName(name string) error {
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    KindInvalidName,
			Tensor:  name[:32] + "...",
			Details: fmt.Sprintf("name is %d bytes long, max %d", len(name), MaxTensorNameLen),
		}
	}
	if !tensorName.MatchString(name) {
		return &ValidationError{
			Type:    KindInvalidName,
			Tensor:  name,
			Details: "not a parameter, running statistic or optimizer state name",
		}
	}
	return nil
}

// ValidateTensorMeta checks that the dtype, the matrix shape and the byte size
// of one table entry agree.
func ValidateTensorMeta(t TensorMeta) error {
	dt, ok := stringToDtype(t.DType)
	if !ok {
		return fmt.Errorf("tensor %q: %w: %q", t.Name, ErrUnsupportedDType, t.DType)
	}
	if len(t.Shape) != 2 || t.Shape[0] <= 0 || t.Shape[1] <= 0 {
		return &ValidationError{
			Type:    KindInvalidShape,
			Tensor:  t.Name,
			Details: fmt.Sprintf("shape %v is not a non-empty matrix", t.Shape),
		}
	}
	if want := int64(t.Shape[0]) * int64(t.Shape[1]) * int64(dt.Size()); t.Size != want {
		return &ValidationError{
			Type:    KindSizeMismatch,
			Tensor:  t.Name,
			Details: fmt.Sprintf("%d bytes stored, %v %s needs %d", t.Size, t.Shape, t.DType, want),
		}
	}
	return nil
}

// ValidateTensorOffsets checks that every tensor lies inside a data section of
// dataSize bytes and that no two tensors share bytes.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyTensors, len(tensors), MaxTensorCount)
	}

	byOffset := make([]TensorMeta, len(tensors))
	copy(byOffset, tensors)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })

	var prev *TensorMeta
	for i := range byOffset {
		t := &byOffset[i]
		end := t.Offset + t.Size
		switch {
		case t.Offset < 0 || t.Size < 0:
			return &ValidationError{
				Type:    KindNegativeOffset,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d, size %d", t.Offset, t.Size),
			}
		case end > dataSize:
			return &ValidationError{
				Type:    KindOutOfBounds,
				Tensor:  t.Name,
				Details: fmt.Sprintf("bytes [%d, %d) past the %d byte data section", t.Offset, end, dataSize),
			}
		case prev != nil && prev.Offset+prev.Size > t.Offset:
			return &ValidationError{
				Type:    KindOffsetOverlap,
				Tensor:  prev.Name,
				Tensor2: t.Name,
				Details: fmt.Sprintf("[%d, %d) and [%d, %d)", prev.Offset, prev.Offset+prev.Size, t.Offset, end),
			}
		}
		prev = t
	}
	return nil
}

// ValidateHeader checks the tensor table of h at the given level.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Tensors) > MaxTensorCount {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyTensors, len(h.Tensors), MaxTensorCount)
	}

	seen := make(map[string]struct{}, len(h.Tensors))
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if _, dup := seen[t.Name]; dup {
			return &ValidationError{Type: KindDuplicateName, Tensor: t.Name, Details: "listed twice"}
		}
		seen[t.Name] = struct{}{}
		if err := ValidateTensorMeta(t); err != nil {
			return err
		}
	}

	if level == ValidationStrict {
		return ValidateTensorOffsets(h.Tensors, dataSize)
	}
	return nil
}
