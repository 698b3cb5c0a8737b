package nn

import (
	"gonum.org/v1/gonum/mat"
)

// ReLUForward applies the element-wise function f(x) = max(0, x).
func ReLUForward(x *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, x)
	return &out
}

// ReLUBackward propagates dout through ReLU.
//
// x is the input that was fed to ReLUForward. The local derivative is 1 where
// x > 0 and 0 elsewhere, including x == 0.
func ReLUBackward(dout, x *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, v float64) float64 {
		if x.At(i, j) > 0 {
			return v
		}
		return 0
	}, dout)
	return &dx
}
