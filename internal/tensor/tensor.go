package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major N-D array of float64 values.
//
// The first axis is the batch axis: a Tensor of shape (N, d_1, ..., d_k) holds N
// samples, each of which is flattened into a row of d_1*...*d_k features when it
// enters a fully-connected network.
//
// Example:
//
//	x, _ := tensor.New(tensor.Shape{2, 3, 4}, data) // 2 samples of 3x4 features
//	m, _ := x.Flatten()                             // *mat.Dense, 2x12
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a Tensor that takes ownership of data.
//
// Parameters:
//   - shape: Tensor shape, every dimension must be > 0
//   - data: Row-major values, len(data) must equal shape.NumElements()
//
// Returns an error if the shape is invalid or does not match the data length.
func New(shape Shape, data []float64) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) (*Tensor, error) {
	return New(shape, make([]float64, shape.NumElements()))
}

// FromRows builds a 2-D tensor (len(rows), len(rows[0])) by copying rows.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return New(Shape{len(rows), width}, data)
}

// FromDense copies a gonum matrix into a 2-D tensor.
func FromDense(m mat.Matrix) *Tensor {
	r, c := m.Dims()
	data := make([]float64, r*c)
	dst := mat.NewDense(r, c, data)
	dst.Copy(m)
	return &Tensor{shape: Shape{r, c}, data: data}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the underlying row-major values (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Len returns the size of the batch axis.
func (t *Tensor) Len() int {
	if len(t.shape) == 0 {
		return 0
	}
	return t.shape[0]
}

// Flatten returns a copy of the tensor as an (N, D) matrix, D being the product of
// all trailing dimensions.
func (t *Tensor) Flatten() (*mat.Dense, error) {
	if len(t.shape) < 2 {
		return nil, fmt.Errorf("cannot flatten tensor of shape %v: need a batch axis and at least one feature axis", t.shape)
	}
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return mat.NewDense(t.shape[0], t.shape.FeatureSize(), data), nil
}

// Rows gathers the samples at the given batch indices into a new tensor with the
// same trailing shape.
func (t *Tensor) Rows(indices []int) (*Tensor, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("no indices")
	}
	width := t.shape.FeatureSize()
	if len(t.shape) == 1 {
		width = 1
	}
	data := make([]float64, 0, len(indices)*width)
	for _, idx := range indices {
		if idx < 0 || idx >= t.Len() {
			return nil, fmt.Errorf("index %d out of bounds for batch of %d", idx, t.Len())
		}
		data = append(data, t.data[idx*width:(idx+1)*width]...)
	}
	shape := t.shape.Clone()
	shape[0] = len(indices)
	return &Tensor{shape: shape, data: data}, nil
}

// Reshape returns a tensor sharing the same data with a new shape.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	return New(shape, t.data)
}

// Cast returns a copy of the tensor with every value rounded to dt.
func (t *Tensor) Cast(dt DataType) *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	dt.RoundSlice(data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}
