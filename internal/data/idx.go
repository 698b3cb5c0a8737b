package data

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/fcnet/internal/tensor"
)

// IDX magic numbers for unsigned-byte data.
const (
	idxImagesMagic = 0x00000803 // 3 dimensions
	idxLabelsMagic = 0x00000801 // 1 dimension
)

// maxIDXElements bounds the size declared by an IDX header.
const maxIDXElements = 1 << 30

// ReadIDXImages reads images in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255)
//
// At most maxImages images are read (all if maxImages <= 0). Pixels are
// scaled to [0, 1].
//
// Returns a tensor of shape (N, rows, cols).
func ReadIDXImages(r io.Reader, maxImages int) (*tensor.Tensor, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading IDX image header")
	}
	if header[0] != idxImagesMagic {
		return nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], idxImagesMagic)
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if maxImages > 0 && n > maxImages {
		n = maxImages
	}
	if n == 0 || rows == 0 || cols == 0 {
		return nil, errors.Errorf("empty IDX image set: %d images of %dx%d", n, rows, cols)
	}
	if n*rows*cols > maxIDXElements {
		return nil, errors.Errorf("IDX image set too large: %d images of %dx%d", n, rows, cols)
	}

	pixels := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, errors.Wrapf(err, "reading %d images", n)
	}
	values := make([]float64, len(pixels))
	for i, p := range pixels {
		values[i] = float64(p) / 255
	}
	return tensor.New(tensor.Shape{n, rows, cols}, values)
}

// ReadIDXLabels reads labels in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes
//
// At most maxLabels labels are read (all if maxLabels <= 0).
func ReadIDXLabels(r io.Reader, maxLabels int) ([]int, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "reading IDX label header")
	}
	if header[0] != idxLabelsMagic {
		return nil, errors.Errorf("invalid magic number: got %d, want %d", header[0], idxLabelsMagic)
	}
	n := int(header[1])
	if maxLabels > 0 && n > maxLabels {
		n = maxLabels
	}
	if n > maxIDXElements {
		return nil, errors.Errorf("IDX label set too large: %d labels", n)
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrapf(err, "reading %d labels", n)
	}
	labels := make([]int, n)
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

// LoadIDX loads an image file and a label file in IDX format, such as the
// MNIST training set (train-images-idx3-ubyte, train-labels-idx1-ubyte).
//
// Parameters:
//   - imagesPath: Path to the IDX image file
//   - labelsPath: Path to the IDX label file
//   - maxSamples: Maximum number of samples to load (0 = load all)
//
// Returns a Dataset with images of shape (N, rows, cols) normalized to [0, 1]
// and NumClasses one more than the largest label.
func LoadIDX(imagesPath, labelsPath string, maxSamples int) (*Dataset, error) {
	var x *tensor.Tensor
	err := withFile(imagesPath, func(r io.Reader) (err error) {
		x, err = ReadIDXImages(r, maxSamples)
		return err
	})
	if err != nil {
		return nil, err
	}

	var y []int
	err = withFile(labelsPath, func(r io.Reader) (err error) {
		y, err = ReadIDXLabels(r, maxSamples)
		return err
	})
	if err != nil {
		return nil, err
	}

	if x.Len() != len(y) {
		return nil, errors.Errorf("image count (%d) != label count (%d)", x.Len(), len(y))
	}
	numClasses := 0
	for _, label := range y {
		numClasses = max(numClasses, label+1)
	}
	return New(x, y, numClasses)
}

func withFile(path string, fn func(r io.Reader) error) error {
	//nolint:gosec // G304: dataset paths come from the user
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening dataset")
	}
	defer func() {
		_ = file.Close()
	}()
	if err := fn(bufio.NewReader(file)); err != nil {
		return errors.WithMessage(err, path)
	}
	return nil
}
