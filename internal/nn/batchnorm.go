package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Default batch normalization hyperparameters.
const (
	DefaultBatchNormMomentum = 0.9
	DefaultBatchNormEps      = 1e-5
)

// BatchNormState holds the running statistics of one batch normalization layer.
//
// Running statistics are updated by every ModeTrain forward call and used in
// place of batch statistics in ModeEval:
//
//	running_mean = momentum * running_mean + (1 - momentum) * batch_mean
//	running_var  = momentum * running_var  + (1 - momentum) * batch_var
//
// The caller owns the state and must serialize training-mode calls that share it.
type BatchNormState struct {
	RunningMean *mat.VecDense
	RunningVar  *mat.VecDense
	Momentum    float64
	Eps         float64
}

// NewBatchNormState creates state for dim features with zero mean, unit variance
// and the default momentum and epsilon.
func NewBatchNormState(dim int) *BatchNormState {
	ones := make([]float64, dim)
	for i := range ones {
		ones[i] = 1
	}
	return &BatchNormState{
		RunningMean: mat.NewVecDense(dim, nil),
		RunningVar:  mat.NewVecDense(dim, ones),
		Momentum:    DefaultBatchNormMomentum,
		Eps:         DefaultBatchNormEps,
	}
}

// BatchNormCache holds what BatchNormBackward needs from one forward call.
type BatchNormCache struct {
	mode   Mode
	xhat   *mat.Dense
	gamma  []float64
	invStd []float64
}

// BatchNormForward normalizes every feature (column) of x.
//
// Formula: out = gamma * (x - mean) / sqrt(var + eps) + beta
//
// In ModeTrain mean and (biased) variance come from the batch and the running
// statistics in state are updated; in ModeEval the running statistics are used
// and state is left untouched.
//
// Parameters:
//   - x: Input [batch_size, features]
//   - gamma: Learnable scale [features]
//   - beta: Learnable shift [features]
//   - state: Running statistics for this layer
//   - mode: ModeTrain or ModeEval
//
// Returns the normalized output and the cache for BatchNormBackward.
func BatchNormForward(x *mat.Dense, gamma, beta *mat.VecDense, state *BatchNormState, mode Mode) (*mat.Dense, *BatchNormCache) {
	n, d := x.Dims()
	if gamma.Len() != d || beta.Len() != d || state.RunningMean.Len() != d {
		panic(fmt.Sprintf("BatchNormForward: %d features but gamma=%d beta=%d running=%d",
			d, gamma.Len(), beta.Len(), state.RunningMean.Len()))
	}

	mean := make([]float64, d)
	variance := make([]float64, d)
	if mode == ModeTrain {
		col := make([]float64, n)
		for j := 0; j < d; j++ {
			mat.Col(col, j, x)
			mean[j], variance[j] = stat.PopMeanVariance(col, nil)

			m := state.Momentum
			state.RunningMean.SetVec(j, m*state.RunningMean.AtVec(j)+(1-m)*mean[j])
			state.RunningVar.SetVec(j, m*state.RunningVar.AtVec(j)+(1-m)*variance[j])
		}
	} else {
		mat.Col(mean, 0, state.RunningMean)
		mat.Col(variance, 0, state.RunningVar)
	}

	invStd := make([]float64, d)
	for j := range invStd {
		invStd[j] = 1 / math.Sqrt(variance[j]+state.Eps)
	}
	g := mat.Col(nil, 0, gamma)
	b := mat.Col(nil, 0, beta)

	xhat := mat.NewDense(n, d, nil)
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		xRow := x.RawRowView(i)
		hRow := xhat.RawRowView(i)
		oRow := out.RawRowView(i)
		for j := 0; j < d; j++ {
			hRow[j] = (xRow[j] - mean[j]) * invStd[j]
			oRow[j] = g[j]*hRow[j] + b[j]
		}
	}

	return out, &BatchNormCache{mode: mode, xhat: xhat, gamma: g, invStd: invStd}
}

// BatchNormBackward computes gradients of BatchNormForward.
//
// For a training-mode forward call the batch statistics depend on x, giving
//
//	dx = invStd / N * (N*dxhat - Σ dxhat - xhat * Σ(dxhat * xhat))
//
// where dxhat = dout * gamma. For an eval-mode call the statistics are
// constants and dx = dout * gamma * invStd.
//
// Returns dx [batch_size, features], dgamma [features] and dbeta [features].
func BatchNormBackward(dout *mat.Dense, cache *BatchNormCache) (dx *mat.Dense, dgamma, dbeta *mat.VecDense) {
	n, d := dout.Dims()

	dg := make([]float64, d)
	db := make([]float64, d)
	sumDxhat := make([]float64, d)
	sumDxhatXhat := make([]float64, d)
	for i := 0; i < n; i++ {
		dRow := dout.RawRowView(i)
		hRow := cache.xhat.RawRowView(i)
		for j := 0; j < d; j++ {
			db[j] += dRow[j]
			dg[j] += dRow[j] * hRow[j]
			dxhat := dRow[j] * cache.gamma[j]
			sumDxhat[j] += dxhat
			sumDxhatXhat[j] += dxhat * hRow[j]
		}
	}

	dx = mat.NewDense(n, d, nil)
	fn := float64(n)
	for i := 0; i < n; i++ {
		dRow := dout.RawRowView(i)
		hRow := cache.xhat.RawRowView(i)
		xRow := dx.RawRowView(i)
		for j := 0; j < d; j++ {
			dxhat := dRow[j] * cache.gamma[j]
			if cache.mode == ModeTrain {
				xRow[j] = cache.invStd[j] / fn * (fn*dxhat - sumDxhat[j] - hRow[j]*sumDxhatXhat[j])
			} else {
				xRow[j] = dxhat * cache.invStd[j]
			}
		}
	}

	return dx, mat.NewVecDense(d, dg), mat.NewVecDense(d, db)
}
