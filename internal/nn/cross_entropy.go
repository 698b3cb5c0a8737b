package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Softmax converts every row of scores into a probability distribution.
//
// The row maximum is subtracted before exponentiating, which leaves the result
// unchanged mathematically but keeps exp from overflowing for large scores:
//
//	Softmax(z)[i] = exp(z[i] - max(z)) / Σ exp(z[j] - max(z))
//
// Every row of the result sums to 1.
func Softmax(scores mat.Matrix) *mat.Dense {
	r, c := scores.Dims()
	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := probs.RawRowView(i)
		mat.Row(row, i, scores)
		maxZ := floats.Max(row)
		for j, v := range row {
			row[j] = math.Exp(v - maxZ)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return probs
}

// LogSumExp returns log(Σ exp(z[j])) computed with the max-shift trick.
func LogSumExp(z []float64) float64 {
	maxZ := floats.Max(z)
	if math.IsInf(maxZ, 0) {
		return maxZ
	}
	sumExp := 0.0
	for _, v := range z {
		sumExp += math.Exp(v - maxZ)
	}
	return maxZ + math.Log(sumExp)
}

// SoftmaxLoss computes the mean softmax cross-entropy loss and its gradient.
//
// Mathematical Formulation:
//
//	Loss = mean_i( LogSumExp(scores[i]) - scores[i, y[i]] )
//	     = mean_i( -log Softmax(scores)[i, y[i]] )
//
// Gradient (Backward):
//
//	∂L/∂scores = (Softmax(scores) - OneHot(y)) / N
//
// Parameters:
//   - scores: Raw class scores [batch_size, num_classes]
//   - y: Class index per row, each in [0, num_classes)
//
// Returns the scalar loss, the gradient with respect to scores, and an error if
// y does not match the batch or holds an out-of-range label.
func SoftmaxLoss(scores *mat.Dense, y []int) (float64, *mat.Dense, error) {
	n, numClasses := scores.Dims()
	if len(y) != n {
		return 0, nil, fmt.Errorf("got %d labels for a batch of %d", len(y), n)
	}
	for i, label := range y {
		if label < 0 || label >= numClasses {
			return 0, nil, fmt.Errorf("label %d at index %d outside [0, %d)", label, i, numClasses)
		}
	}

	dscores := Softmax(scores)
	loss := 0.0
	for i, label := range y {
		loss += LogSumExp(scores.RawRowView(i)) - scores.At(i, label)
		dscores.Set(i, label, dscores.At(i, label)-1)
	}
	dscores.Scale(1/float64(n), dscores)
	return loss / float64(n), dscores, nil
}

// Argmax returns the index of the largest entry of every row of scores.
func Argmax(scores mat.Matrix) []int {
	r, c := scores.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, scores)
		out[i] = floats.MaxIdx(row)
	}
	return out
}

// Accuracy returns the fraction of rows whose argmax equals the label.
func Accuracy(scores mat.Matrix, y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	correct := 0
	for i, p := range Argmax(scores) {
		if p == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}
