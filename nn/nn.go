// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/nn"
)

// Networks

// FullyConnectedNet is an L-layer fully-connected classifier.
type FullyConnectedNet = fcnet.FullyConnectedNet

// Config configures a FullyConnectedNet.
type Config = fcnet.Config

// Result is the output of FullyConnectedNet.ComputeLoss.
type Result = fcnet.Result

// Params is the parameter store of a network, one LayerParams per layer.
type Params = fcnet.Params

// LayerParams holds the parameters of one layer.
type LayerParams = fcnet.LayerParams

// Errors reported by ComputeLoss and the state dict functions.
var (
	ErrInvalidArgument = fcnet.ErrInvalidArgument
	ErrNumerical       = fcnet.ErrNumerical
)

// New creates a network with Gaussian weights, zero biases and, when batch
// normalization is on, unit gamma and zero beta.
//
// Example:
//
//	net, err := nn.New(nn.Config{
//	    HiddenDims:  []int{100},
//	    InputDim:    3 * 32 * 32,
//	    NumClasses:  10,
//	    WeightScale: 1e-2,
//	    DType:       tensor.Float64,
//	})
func New(cfg Config) (*FullyConnectedNet, error) {
	return fcnet.New(cfg)
}

// NewTwoLayer creates the affine - relu - affine - softmax network.
func NewTwoLayer(inputDim, hiddenDim, numClasses int, weightScale, reg float64) (*FullyConnectedNet, error) {
	return fcnet.NewTwoLayer(inputDim, hiddenDim, numClasses, weightScale, reg)
}

// DefaultConfig returns a float32 configuration for 32x32 RGB images in 10
// classes with the given hidden layer widths.
func DefaultConfig(hiddenDims ...int) Config {
	return fcnet.DefaultConfig(hiddenDims...)
}

// Modes

// Mode selects the train or evaluation behavior of a sub-layer.
type Mode = nn.Mode

// Sub-layer modes.
const (
	ModeEval  = nn.ModeEval
	ModeTrain = nn.ModeTrain
)

// Sub-layers

// DropoutConfig configures an inverted dropout sub-layer.
type DropoutConfig = nn.DropoutConfig

// DropoutCache is what DropoutBackward needs from DropoutForward.
type DropoutCache = nn.DropoutCache

// BatchNormState holds the running statistics of one batch normalization layer.
type BatchNormState = nn.BatchNormState

// BatchNormCache is what BatchNormBackward needs from BatchNormForward.
type BatchNormCache = nn.BatchNormCache

// AffineForward computes x·w + b.
func AffineForward(x, w *mat.Dense, b *mat.VecDense) *mat.Dense {
	return nn.AffineForward(x, w, b)
}

// AffineBackward returns the gradients of AffineForward.
func AffineBackward(dout, x, w *mat.Dense) (dx, dw *mat.Dense, db *mat.VecDense) {
	return nn.AffineBackward(dout, x, w)
}

// ReLUForward computes max(0, x).
func ReLUForward(x *mat.Dense) *mat.Dense {
	return nn.ReLUForward(x)
}

// ReLUBackward masks dout where the forward input x was <= 0.
func ReLUBackward(dout, x *mat.Dense) *mat.Dense {
	return nn.ReLUBackward(dout, x)
}

// Softmax returns the row-wise softmax of scores.
func Softmax(scores mat.Matrix) *mat.Dense {
	return nn.Softmax(scores)
}

// SoftmaxLoss returns the mean softmax cross-entropy loss and its gradient
// with respect to scores.
func SoftmaxLoss(scores *mat.Dense, y []int) (float64, *mat.Dense, error) {
	return nn.SoftmaxLoss(scores, y)
}

// DropoutForward applies inverted dropout in ModeTrain and is a passthrough
// in ModeEval.
func DropoutForward(x *mat.Dense, cfg DropoutConfig, mode Mode, rng *rand.Rand) (*mat.Dense, *DropoutCache) {
	return nn.DropoutForward(x, cfg, mode, rng)
}

// DropoutBackward propagates dout through the dropout mask.
func DropoutBackward(dout *mat.Dense, cache *DropoutCache) *mat.Dense {
	return nn.DropoutBackward(dout, cache)
}

// NewBatchNormState creates running statistics for dim features.
func NewBatchNormState(dim int) *BatchNormState {
	return nn.NewBatchNormState(dim)
}

// BatchNormForward normalizes every feature of x.
func BatchNormForward(x *mat.Dense, gamma, beta *mat.VecDense, state *BatchNormState, mode Mode) (*mat.Dense, *BatchNormCache) {
	return nn.BatchNormForward(x, gamma, beta, state, mode)
}

// BatchNormBackward returns the gradients of BatchNormForward.
func BatchNormBackward(dout *mat.Dense, cache *BatchNormCache) (dx *mat.Dense, dgamma, dbeta *mat.VecDense) {
	return nn.BatchNormBackward(dout, cache)
}

// L2Penalty returns 0.5 * reg * Σ ||w||² over ws.
func L2Penalty(reg float64, ws ...*mat.Dense) float64 {
	return nn.L2Penalty(reg, ws...)
}
