package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

// Reader reads state dicts from .born data.
//
// The whole data section is read and, unless disabled, checked against the
// stored SHA-256 checksum before any tensor is returned.
type Reader struct {
	header Header
	flags  uint32
	data   []byte // Data section
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewReader reads a complete .born stream from r with the given options.
func NewReader(r io.Reader, opts ReaderOptions) (*Reader, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, fmt.Errorf("%w: got %q, expected %q", ErrInvalidMagic, fixed[0:4], MagicBytes)
	}
	if v := binary.LittleEndian.Uint32(fixed[4:8]); v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, v, FormatVersion)
	}

	headerSize := binary.LittleEndian.Uint64(fixed[headerSizeOffset:])
	dataSize := binary.LittleEndian.Uint64(fixed[dataSizeOffset:])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	reader := &Reader{flags: binary.LittleEndian.Uint32(fixed[formatFlagsOffset:])}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &reader.header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	padding := dataOffset(int64(headerSize)) - int64(FixedHeaderSize) - int64(headerSize)
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return nil, fmt.Errorf("failed to read padding: %w", err)
	}

	// Read through a limit so a corrupted size cannot force a huge allocation.
	//nolint:gosec // G115: compared against the bytes actually read
	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, &ValidationError{
			Type:    KindTruncated,
			Details: fmt.Sprintf("data section has %d bytes, header declares %d", len(data), dataSize),
		}
	}
	reader.data = data

	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, err
		}
	}
	if err := ValidateHeader(&reader.header, int64(len(data)), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return reader, nil
}

// Open reads the .born file at path with strict validation.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// OpenWithOptions reads the .born file at path with custom options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close() // Read-only, nothing to flush
	}()

	reader, err := NewReader(bufio.NewReader(file), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reader, nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the format flags of the fixed header.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Metadata returns the metadata map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the names of all tensors in file order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *Reader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
}

// ReadTensor decodes a single tensor into a float64 matrix.
func (r *Reader) ReadTensor(name string) (*mat.Dense, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > int64(len(r.data)) {
		return nil, &ValidationError{Type: KindOutOfBounds, Tensor: name, Details: "tensor outside data section"}
	}
	return decodeMatrix(*meta, r.data[meta.Offset:meta.Offset+meta.Size])
}

// ReadStateDict decodes every tensor into a state dict.
func (r *Reader) ReadStateDict() (map[string]*mat.Dense, error) {
	dict := make(map[string]*mat.Dense, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		m, err := r.ReadTensor(meta.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		dict[meta.Name] = m
	}
	return dict, nil
}

// Load reads the state dict and header of the .born file at path.
func Load(path string) (map[string]*mat.Dense, *Header, error) {
	reader, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	dict, err := reader.ReadStateDict()
	if err != nil {
		return nil, nil, err
	}
	header := reader.Header()
	return dict, &header, nil
}
