package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// AffineForward computes the fully connected transform out = x·w + b.
//
// Shapes:
//   - x: [batch_size, in_features]
//   - w: [in_features, out_features]
//   - b: [out_features], added to every row of x·w
//   - out: [batch_size, out_features]
//
// The weight layout is (in, out) so that a layer's weight matrix shape reads as
// (width of previous layer, width of this layer).
//
// Panics if the shapes are incompatible.
func AffineForward(x, w *mat.Dense, b *mat.VecDense) *mat.Dense {
	_, in := x.Dims()
	wIn, wOut := w.Dims()
	if in != wIn {
		panic(fmt.Sprintf("AffineForward: input has %d features, weight expects %d", in, wIn))
	}
	if b.Len() != wOut {
		panic(fmt.Sprintf("AffineForward: bias has %d entries, weight has %d outputs", b.Len(), wOut))
	}

	var out mat.Dense
	out.Mul(x, w)
	AddRowVector(&out, b)
	return &out
}

// AffineBackward computes gradients of the affine transform.
//
// Parameters:
//   - dout: Upstream gradient [batch_size, out_features]
//   - x: Input that was fed to AffineForward [batch_size, in_features]
//   - w: Weight matrix [in_features, out_features]
//
// Returns:
//   - dx = dout·wᵀ   [batch_size, in_features]
//   - dw = xᵀ·dout   [in_features, out_features]
//   - db = column sum of dout [out_features]
func AffineBackward(dout, x, w *mat.Dense) (dx, dw *mat.Dense, db *mat.VecDense) {
	dx = new(mat.Dense)
	dx.Mul(dout, w.T())

	dw = new(mat.Dense)
	dw.Mul(x.T(), dout)

	db = SumColumns(dout)
	return dx, dw, db
}

// AddRowVector adds v to every row of m in place.
func AddRowVector(m *mat.Dense, v *mat.VecDense) {
	r, c := m.Dims()
	if v.Len() != c {
		panic(fmt.Sprintf("AddRowVector: vector of length %d, matrix has %d columns", v.Len(), c))
	}
	vData := mat.Col(nil, 0, v)
	for i := 0; i < r; i++ {
		floats.Add(m.RawRowView(i), vData)
	}
}

// SumColumns reduces m over its rows (the batch axis), returning one sum per column.
func SumColumns(m *mat.Dense) *mat.VecDense {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		floats.Add(sums, m.RawRowView(i))
	}
	return mat.NewVecDense(c, sums)
}
