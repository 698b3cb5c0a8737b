// Package fcnet implements fully-connected softmax classifiers with hand-derived
// backpropagation.
//
// A network with L affine layers has the architecture
//
//	{affine - [batch norm] - relu - [dropout]} x (L - 1) - affine - softmax
//
// and is trained with softmax cross-entropy plus L2 regularization on every
// weight matrix. ComputeLoss is the single dual-mode entry point: without labels
// it returns class scores, with labels it also returns the loss and a gradient
// for every parameter.
//
// Example:
//
//	net, err := fcnet.New(fcnet.Config{
//	    HiddenDims:  []int{100, 50},
//	    InputDim:    784,
//	    NumClasses:  10,
//	    WeightScale: 1e-2,
//	    Reg:         1e-3,
//	    DType:       tensor.Float64,
//	})
//	res, err := net.ComputeLoss(x, y) // res.Loss, res.Grads
package fcnet

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/nn"
	"github.com/born-ml/fcnet/internal/tensor"
)

// FullyConnectedNet is an L-layer fully-connected classifier.
//
// Concurrency: inference calls (ComputeLoss without labels, Scores, Predict)
// may run concurrently. Training calls update batch normalization running
// statistics and are serialized with each other and with inference. Updating
// the parameter store while ComputeLoss runs is not allowed; the solver that
// owns the updates must not overlap them with loss evaluation.
type FullyConnectedNet struct {
	mu     sync.RWMutex
	cfg    Config
	dims   []int
	params *Params
	bn     []*nn.BatchNormState // one per hidden layer when batch norm is on
	rng    *rand.Rand           // unseeded dropout masks, guarded by mu
}

// Result is the output of ComputeLoss.
//
// Scores is always set. Loss and Grads are only set when labels were supplied.
type Result struct {
	Scores *mat.Dense
	Loss   float64
	Grads  *Params
}

// layerCache holds what the backward pass of one layer needs from the forward
// pass. It lives for a single training-mode call.
type layerCache struct {
	input   *mat.Dense // fed into the affine transform
	reluIn  *mat.Dense
	bn      *nn.BatchNormCache
	dropout *nn.DropoutCache
}

// New creates a network from cfg.
//
// Weights are drawn from N(0, cfg.WeightScale²) with a source seeded by cfg.Seed,
// biases and batch norm shifts start at zero and batch norm scales at one. All
// parameters are rounded to cfg.DType.
func New(cfg Config) (*FullyConnectedNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.HiddenDims = append([]int(nil), cfg.HiddenDims...)

	dims := cfg.Dims()
	src := nn.NewSource(cfg.Seed)
	numLayers := cfg.NumLayers()

	params := &Params{Layers: make([]LayerParams, numLayers)}
	for i := 0; i < numLayers; i++ {
		in, out := dims[i], dims[i+1]
		l := LayerParams{
			W: nn.Gaussian(in, out, cfg.WeightScale, src),
			B: nn.Zeros(out),
		}
		if cfg.UseBatchNorm && i < numLayers-1 {
			l.Gamma = nn.Ones(out)
			l.Beta = nn.Zeros(out)
		}
		params.Layers[i] = l
	}
	roundParams(cfg.DType, params)

	net := &FullyConnectedNet{
		cfg:    cfg,
		dims:   dims,
		params: params,
		rng:    rand.New(src),
	}
	if cfg.UseBatchNorm {
		net.bn = make([]*nn.BatchNormState, numLayers-1)
		for i := range net.bn {
			net.bn[i] = nn.NewBatchNormState(dims[i+1])
		}
	}
	return net, nil
}

// NewTwoLayer creates the affine - relu - affine - softmax network in float64.
func NewTwoLayer(inputDim, hiddenDim, numClasses int, weightScale, reg float64) (*FullyConnectedNet, error) {
	return New(Config{
		HiddenDims:  []int{hiddenDim},
		InputDim:    inputDim,
		NumClasses:  numClasses,
		WeightScale: weightScale,
		Reg:         reg,
		DType:       tensor.Float64,
	})
}

// Config returns a copy of the network configuration.
func (net *FullyConnectedNet) Config() Config {
	cfg := net.cfg
	cfg.HiddenDims = append([]int(nil), net.cfg.HiddenDims...)
	return cfg
}

// Dims returns the layer dimension sequence.
func (net *FullyConnectedNet) Dims() []int {
	return append([]int(nil), net.dims...)
}

// NumLayers returns the number of affine layers L.
func (net *FullyConnectedNet) NumLayers() int {
	return len(net.params.Layers)
}

// NumParams returns the number of learnable scalars.
func (net *FullyConnectedNet) NumParams() int {
	return net.params.NumParams()
}

// Params returns the live parameter store.
//
// The network never writes it; optimizers update it in place between calls.
func (net *FullyConnectedNet) Params() *Params {
	return net.params
}

// ComputeLoss evaluates the network on a batch.
//
// With y == nil every sub-layer runs in evaluation mode and only scores are
// returned. Otherwise every sub-layer runs in training mode and the result also
// holds the loss
//
//	loss = mean_i(-log softmax(scores)[i, y[i]]) + 0.5 * reg * Σ ||W_l||²
//
// and its gradient with respect to every parameter.
//
// Parameters:
//   - x: Batch of shape (N, d_1, ..., d_k) with N > 0 and d_1*...*d_k equal to the input dim
//   - y: Labels in [0, num_classes), one per sample, or nil for inference
//
// Returns ErrInvalidArgument for a malformed batch or labels and ErrNumerical if
// the scores or loss are not finite.
func (net *FullyConnectedNet) ComputeLoss(x *tensor.Tensor, y []int) (*Result, error) {
	mode := nn.ModeEval
	if y != nil {
		mode = nn.ModeTrain
	}
	if mode == nn.ModeTrain {
		net.mu.Lock()
		defer net.mu.Unlock()
	} else {
		net.mu.RLock()
		defer net.mu.RUnlock()
	}

	z, err := net.input(x)
	if err != nil {
		return nil, err
	}
	n, _ := z.Dims()
	if mode == nn.ModeTrain {
		if err := net.checkLabels(y, n); err != nil {
			return nil, err
		}
	}

	scores, caches := net.forward(z, mode)
	net.round(scores)
	if !allFinite(scores) {
		return nil, errors.Wrap(ErrNumerical, "scores are not finite")
	}
	if mode == nn.ModeEval {
		return &Result{Scores: scores}, nil
	}

	dataLoss, dscores, err := nn.SoftmaxLoss(scores, y)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	loss := net.cfg.DType.Round(dataLoss + nn.L2Penalty(net.cfg.Reg, net.weights()...))
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return nil, errors.Wrapf(ErrNumerical, "loss is %v", loss)
	}

	grads := net.backward(dscores, caches)
	roundParams(net.cfg.DType, grads)
	var badGrad string
	grads.Each(func(name string, m *mat.Dense) {
		if badGrad == "" && !allFinite(m) {
			badGrad = name
		}
	})
	if badGrad != "" {
		return nil, errors.Wrapf(ErrNumerical, "gradient of %s is not finite", badGrad)
	}
	return &Result{Scores: scores, Loss: loss, Grads: grads}, nil
}

// Scores runs an inference-mode forward pass.
func (net *FullyConnectedNet) Scores(x *tensor.Tensor) (*mat.Dense, error) {
	res, err := net.ComputeLoss(x, nil)
	if err != nil {
		return nil, err
	}
	return res.Scores, nil
}

// Loss runs a training-mode forward and backward pass.
func (net *FullyConnectedNet) Loss(x *tensor.Tensor, y []int) (float64, *Params, error) {
	if y == nil {
		return 0, nil, invalidf("labels are required")
	}
	res, err := net.ComputeLoss(x, y)
	if err != nil {
		return 0, nil, err
	}
	return res.Loss, res.Grads, nil
}

// Predict returns the highest-scoring class of every sample.
func (net *FullyConnectedNet) Predict(x *tensor.Tensor) ([]int, error) {
	scores, err := net.Scores(x)
	if err != nil {
		return nil, err
	}
	return nn.Argmax(scores), nil
}

// Accuracy returns the fraction of samples whose predicted class equals y.
func (net *FullyConnectedNet) Accuracy(x *tensor.Tensor, y []int) (float64, error) {
	scores, err := net.Scores(x)
	if err != nil {
		return 0, err
	}
	n, _ := scores.Dims()
	if len(y) != n {
		return 0, invalidf("got %d labels for %d samples", len(y), n)
	}
	return nn.Accuracy(scores, y), nil
}

// input validates x, flattens it to (N, D) and rounds it to the model precision.
func (net *FullyConnectedNet) input(x *tensor.Tensor) (*mat.Dense, error) {
	if x == nil {
		return nil, invalidf("input is nil")
	}
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, invalidf("input shape %v: need a batch axis and at least one feature axis", shape)
	}
	if shape[0] == 0 {
		return nil, invalidf("empty batch")
	}
	if d := shape.FeatureSize(); d != net.dims[0] {
		return nil, invalidf("input shape %v has %d features per sample, first layer expects %d", shape, d, net.dims[0])
	}
	z, err := x.Flatten()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	return net.round(z), nil
}

func (net *FullyConnectedNet) checkLabels(y []int, n int) error {
	if len(y) != n {
		return invalidf("got %d labels for %d samples", len(y), n)
	}
	classes := net.dims[len(net.dims)-1]
	for i, label := range y {
		if label < 0 || label >= classes {
			return invalidf("label %d of sample %d is outside [0, %d)", label, i, classes)
		}
	}
	return nil
}

// forward runs every layer and returns the scores and, in training mode, the
// per-layer caches.
func (net *FullyConnectedNet) forward(z *mat.Dense, mode nn.Mode) (*mat.Dense, []layerCache) {
	layers := net.params.Layers
	last := len(layers) - 1
	dropout := nn.DropoutConfig{Keep: net.cfg.DropoutKeep, Seed: net.cfg.DropoutSeed}

	var caches []layerCache
	if mode == nn.ModeTrain {
		caches = make([]layerCache, len(layers))
	}
	for i, l := range layers[:last] {
		var c layerCache
		c.input = z

		r := nn.AffineForward(z, l.W, l.B)
		if net.cfg.UseBatchNorm {
			r, c.bn = nn.BatchNormForward(r, l.Gamma, l.Beta, net.bn[i], mode)
		}
		c.reluIn = r
		z = nn.ReLUForward(r)
		if net.cfg.UseDropout() {
			z, c.dropout = nn.DropoutForward(z, dropout, mode, net.rng)
		}

		if caches != nil {
			caches[i] = c
		}
	}
	if caches != nil {
		caches[last].input = z
	}
	return nn.AffineForward(z, layers[last].W, layers[last].B), caches
}

// backward propagates dscores through the cached layers.
func (net *FullyConnectedNet) backward(dscores *mat.Dense, caches []layerCache) *Params {
	layers := net.params.Layers
	grads := &Params{Layers: make([]LayerParams, len(layers))}

	dout := dscores
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		dx, dw, db := nn.AffineBackward(dout, caches[i].input, l.W)
		if net.cfg.Reg != 0 {
			var rw mat.Dense
			rw.Scale(net.cfg.Reg, l.W)
			dw.Add(dw, &rw)
		}
		grads.Layers[i].W = dw
		grads.Layers[i].B = db
		if i == 0 {
			break
		}

		prev := caches[i-1]
		dout = nn.DropoutBackward(dx, prev.dropout)
		dout = nn.ReLUBackward(dout, prev.reluIn)
		if prev.bn != nil {
			var dgamma, dbeta *mat.VecDense
			dout, dgamma, dbeta = nn.BatchNormBackward(dout, prev.bn)
			grads.Layers[i-1].Gamma = dgamma
			grads.Layers[i-1].Beta = dbeta
		}
	}
	return grads
}

func (net *FullyConnectedNet) weights() []*mat.Dense {
	ws := make([]*mat.Dense, len(net.params.Layers))
	for i, l := range net.params.Layers {
		ws[i] = l.W
	}
	return ws
}

// round rounds m in place to the model precision and returns it.
func (net *FullyConnectedNet) round(m *mat.Dense) *mat.Dense {
	roundDense(net.cfg.DType, m)
	return m
}

func roundDense(dt tensor.DataType, m *mat.Dense) {
	if dt == tensor.Float64 {
		return
	}
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		dt.RoundSlice(m.RawRowView(i))
	}
}

func roundParams(dt tensor.DataType, p *Params) {
	p.Each(func(_ string, m *mat.Dense) {
		roundDense(dt, m)
	})
}

func allFinite(m *mat.Dense) bool {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
