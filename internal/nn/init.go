package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource returns a deterministic random source for the given seed.
func NewSource(seed int64) rand.Source {
	return rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
}

// Gaussian creates a rows×cols matrix with entries drawn independently from
// N(0, std²).
//
// Parameters:
//   - rows, cols: Matrix shape
//   - std: Standard deviation; 0 yields an all-zero matrix
//   - src: Random source; nil uses the global source
//
// Returns the initialized matrix.
func Gaussian(rows, cols int, std float64, src rand.Source) *mat.Dense {
	w := mat.NewDense(rows, cols, nil)
	if std == 0 {
		return w
	}
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
	for i := 0; i < rows; i++ {
		row := w.RawRowView(i)
		for j := range row {
			row[j] = dist.Rand()
		}
	}
	return w
}

// Zeros creates a zero vector, used for bias and beta initialization.
func Zeros(n int) *mat.VecDense {
	return mat.NewVecDense(n, nil)
}

// Ones creates a vector of ones, used for gamma initialization.
func Ones(n int) *mat.VecDense {
	data := make([]float64, n)
	for i := range data {
		data[i] = 1
	}
	return mat.NewVecDense(n, data)
}

// SquaredNorm returns the squared Frobenius norm Σ w[i,j]².
func SquaredNorm(w *mat.Dense) float64 {
	r, _ := w.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		row := w.RawRowView(i)
		sum += floats.Dot(row, row)
	}
	return sum
}

// L2Penalty returns 0.5 * reg * Σ ||w||² over all given weight matrices.
//
// The factor 0.5 makes the gradient of the penalty with respect to w exactly reg*w.
func L2Penalty(reg float64, ws ...*mat.Dense) float64 {
	if reg == 0 {
		return 0
	}
	sum := 0.0
	for _, w := range ws {
		sum += SquaredNorm(w)
	}
	return 0.5 * reg * sum
}
