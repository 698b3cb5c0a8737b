package fcnet

import (
	"github.com/born-ml/fcnet/internal/tensor"
)

// Default hyperparameters.
const (
	DefaultInputDim          = 3 * 32 * 32
	DefaultNumClasses        = 10
	DefaultWeightScale       = 1e-2
	DefaultTwoLayerHiddenDim = 100
	DefaultTwoLayerScale     = 1e-3
)

// Config describes a FullyConnectedNet.
//
// The network has len(HiddenDims)+1 affine layers:
//
//	{affine - [batch norm] - relu - [dropout]} x len(HiddenDims) - affine - softmax
//
// An empty HiddenDims is valid and yields multinomial logistic regression.
type Config struct {
	// HiddenDims holds the width of every hidden layer, in order.
	HiddenDims []int

	// InputDim is the number of features of one flattened sample.
	InputDim int

	// NumClasses is the number of output scores.
	NumClasses int

	// WeightScale is the standard deviation of the initial weights.
	WeightScale float64

	// Reg is the L2 regularization strength applied to every weight matrix.
	Reg float64

	// DropoutKeep is the probability of keeping a hidden activation.
	// 0 and 1 both disable dropout.
	DropoutKeep float64

	// UseBatchNorm inserts batch normalization after every hidden affine layer.
	UseBatchNorm bool

	// DType is the precision parameters and inputs are rounded to.
	DType tensor.DataType

	// Seed seeds weight initialization and the dropout source.
	Seed int64

	// DropoutSeed, if set, makes every training-mode dropout mask
	// deterministic. Used for gradient checking.
	DropoutSeed *int64
}

// DefaultConfig returns the default configuration for the given hidden widths:
// CIFAR-10 sized inputs, 10 classes, weight scale 1e-2, float32 precision and
// no regularization, dropout or batch normalization.
func DefaultConfig(hiddenDims ...int) Config {
	return Config{
		HiddenDims:  append([]int(nil), hiddenDims...),
		InputDim:    DefaultInputDim,
		NumClasses:  DefaultNumClasses,
		WeightScale: DefaultWeightScale,
		DType:       tensor.Float32,
	}
}

// Validate checks the configuration.
// Every failure wraps ErrInvalidArgument.
func (c Config) Validate() error {
	if c.InputDim <= 0 {
		return invalidf("input dim must be positive, got %d", c.InputDim)
	}
	if c.NumClasses <= 0 {
		return invalidf("num classes must be positive, got %d", c.NumClasses)
	}
	for i, h := range c.HiddenDims {
		if h <= 0 {
			return invalidf("hidden dim %d must be positive, got %d", i, h)
		}
	}
	if c.WeightScale < 0 {
		return invalidf("weight scale must be non-negative, got %g", c.WeightScale)
	}
	if c.Reg < 0 {
		return invalidf("reg must be non-negative, got %g", c.Reg)
	}
	if c.DropoutKeep < 0 || c.DropoutKeep > 1 {
		return invalidf("dropout keep probability must be in [0, 1], got %g", c.DropoutKeep)
	}
	if !c.DType.Valid() {
		return invalidf("unknown dtype %d", int(c.DType))
	}
	return nil
}

// NumLayers returns the number of affine layers.
func (c Config) NumLayers() int {
	return len(c.HiddenDims) + 1
}

// Dims returns the layer dimension sequence [input, hidden..., classes].
func (c Config) Dims() []int {
	dims := make([]int, 0, len(c.HiddenDims)+2)
	dims = append(dims, c.InputDim)
	dims = append(dims, c.HiddenDims...)
	return append(dims, c.NumClasses)
}

// UseDropout reports whether dropout is active in training mode.
func (c Config) UseDropout() bool {
	return c.DropoutKeep > 0 && c.DropoutKeep < 1
}
