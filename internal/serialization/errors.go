package serialization

import (
	"errors"
	"fmt"
)

// Errors of the fixed header and of the writer.
var (
	ErrInvalidMagic       = errors.New("not a .born file")
	ErrUnsupportedVersion = errors.New("unsupported .born format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrUnsupportedDType   = errors.New("unsupported storage dtype")
	ErrEmptyStateDict     = errors.New("empty state dict")
)

// Errors of the tensor table.
var (
	// ErrInvalidFile is matched by every *ValidationError.
	ErrInvalidFile    = errors.New("invalid tensor table")
	ErrTooManyTensors = errors.New("too many tensors in file")
	ErrTensorNotFound = errors.New("tensor not found")
)

// ValidationError describes an inconsistent entry of the tensor table, or a
// name that is not a state dict entry.
type ValidationError struct {
	Type    string // One of the Kind constants
	Tensor  string // Tensor involved, if any
	Tensor2 string // Second tensor of an overlap
	Details string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Tensor2 != "":
		return fmt.Sprintf("%s: %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	case e.Tensor != "":
		return fmt.Sprintf("%s: %q: %s", e.Type, e.Tensor, e.Details)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Details)
	}
}

// Unwrap returns ErrInvalidFile.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidFile
}
