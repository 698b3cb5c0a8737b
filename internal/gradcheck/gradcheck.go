// Package gradcheck compares analytic gradients against centered finite differences.
package gradcheck

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/tensor"
)

// DefaultStep is the finite-difference step used when step <= 0.
const DefaultStep = 1e-5

// Numerical returns the centered finite-difference gradient of f with respect to
// every element of data.
//
// f must read data; Numerical overwrites its elements while probing and restores
// them before returning.
//
// Parameters:
//   - f: Scalar function of the current contents of data
//   - data: Values to differentiate with respect to
//   - step: Finite-difference step, DefaultStep if <= 0
//
// Returns a slice with the same length as data.
func Numerical(f func() float64, data []float64, step float64) []float64 {
	if step <= 0 {
		step = DefaultStep
	}
	x0 := make([]float64, len(data))
	copy(x0, data)

	grad := fd.Gradient(nil, func(x []float64) float64 {
		copy(data, x)
		return f()
	}, x0, &fd.Settings{Formula: fd.Central, Step: step})
	copy(data, x0)

	return grad
}

// NumericalDense is Numerical for a contiguous matrix, shaped like m.
func NumericalDense(f func() float64, m *mat.Dense, step float64) *mat.Dense {
	raw := m.RawMatrix()
	if raw.Stride != raw.Cols {
		panic("NumericalDense: matrix must be contiguous")
	}
	return mat.NewDense(raw.Rows, raw.Cols, Numerical(f, raw.Data[:raw.Rows*raw.Cols], step))
}

// NumericalVec is Numerical for a contiguous vector.
func NumericalVec(f func() float64, v *mat.VecDense, step float64) *mat.VecDense {
	raw := v.RawVector()
	if raw.Inc != 1 {
		panic("NumericalVec: vector must be contiguous")
	}
	return mat.NewVecDense(raw.N, Numerical(f, raw.Data[:raw.N], step))
}

// RelError returns max |a-b| / max(1e-8, |a|+|b|) over all entries.
//
// Both matrices must have the same shape.
func RelError(a, b mat.Matrix) float64 {
	r, c := a.Dims()
	br, bc := b.Dims()
	if r != br || c != bc {
		panic("RelError: shape mismatch")
	}
	worst := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			av, bv := a.At(i, j), b.At(i, j)
			rel := math.Abs(av-bv) / math.Max(1e-8, math.Abs(av)+math.Abs(bv))
			worst = math.Max(worst, rel)
		}
	}
	return worst
}

// AllClose reports whether |a-b| <= atol + rtol*(|a|+|b|) holds for every entry.
//
// Unlike RelError it tolerates finite-difference noise on entries whose true
// gradient is zero or nearly so.
func AllClose(a, b mat.Matrix, rtol, atol float64) bool {
	r, c := a.Dims()
	br, bc := b.Dims()
	if r != br || c != bc {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			av, bv := a.At(i, j), b.At(i, j)
			if math.Abs(av-bv) > atol+rtol*(math.Abs(av)+math.Abs(bv)) {
				return false
			}
		}
	}
	return true
}

// Model is a network whose training loss can be probed.
type Model interface {
	Loss(x *tensor.Tensor, y []int) (float64, *fcnet.Params, error)
	Params() *fcnet.Params
}

// CheckModel compares the analytic gradient of the model loss on (x, y) with a
// numerical one, parameter by parameter.
//
// The loss must be deterministic: dropout needs a fixed seed, and the model
// should use float64 precision for the errors to be meaningful.
//
// Returns the relative error (see RelError) of every parameter, keyed by name.
func CheckModel(model Model, x *tensor.Tensor, y []int, step float64) (map[string]float64, error) {
	_, grads, err := model.Loss(x, y)
	if err != nil {
		return nil, errors.Wrap(err, "analytic gradient")
	}
	analytic := grads.Dict()

	var lossErr error
	f := func() float64 {
		loss, _, err := model.Loss(x, y)
		if err != nil && lossErr == nil {
			lossErr = err
		}
		return loss
	}

	errs := make(map[string]float64)
	for name, p := range model.Params().Dict() {
		numeric := NumericalDense(f, p, step)
		if lossErr != nil {
			return nil, errors.Wrapf(lossErr, "numerical gradient of %s", name)
		}
		errs[name] = RelError(numeric, analytic[name])
	}
	return errs, nil
}
