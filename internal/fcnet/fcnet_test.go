package fcnet_test

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/gradcheck"
	"github.com/born-ml/fcnet/internal/nn"
	"github.com/born-ml/fcnet/internal/tensor"
)

func randomBatch(t *testing.T, shape tensor.Shape, classes int, seed uint64) (*tensor.Tensor, []int) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	x, err := tensor.New(shape, data)
	require.NoError(t, err)

	y := make([]int, shape[0])
	for i := range y {
		y[i] = rng.IntN(classes)
	}
	return x, y
}

func newNet(t *testing.T, cfg fcnet.Config) *fcnet.FullyConnectedNet {
	t.Helper()
	net, err := fcnet.New(cfg)
	require.NoError(t, err)
	return net
}

func TestNewParameterShapes(t *testing.T) {
	net := newNet(t, fcnet.Config{
		HiddenDims:   []int{7, 5},
		InputDim:     4,
		NumClasses:   3,
		WeightScale:  1e-2,
		UseBatchNorm: true,
		DType:        tensor.Float64,
	})

	assert.Equal(t, 3, net.NumLayers())
	assert.Equal(t, []int{4, 7, 5, 3}, net.Dims())

	layers := net.Params().Layers
	require.Len(t, layers, 3)
	dims := net.Dims()
	for i, l := range layers {
		r, c := l.W.Dims()
		assert.Equal(t, dims[i], r, "W%d rows", i+1)
		assert.Equal(t, dims[i+1], c, "W%d cols", i+1)
		assert.Equal(t, dims[i+1], l.B.Len(), "b%d", i+1)
		assert.Zero(t, mat.Norm(l.B, 2), "biases start at zero")
	}
	assert.NotNil(t, layers[0].Gamma)
	assert.NotNil(t, layers[1].Beta)
	assert.Nil(t, layers[2].Gamma, "output layer has no batch norm")
	assert.Equal(t, 1.0, layers[1].Gamma.AtVec(3))

	assert.Equal(t, []string{
		"W1", "b1", "gamma1", "beta1",
		"W2", "b2", "gamma2", "beta2",
		"W3", "b3",
	}, net.Params().Names())
	assert.Equal(t, 4*7+7+7+7+7*5+5+5+5+5*3+3, net.NumParams())
}

func TestNewWeightScale(t *testing.T) {
	net := newNet(t, fcnet.Config{
		HiddenDims:  []int{200},
		InputDim:    100,
		NumClasses:  10,
		WeightScale: 0.5,
		DType:       tensor.Float64,
	})
	w := net.Params().Layers[0].W.RawMatrix().Data
	mean := floats.Sum(w) / float64(len(w))
	variance := floats.Dot(w, w)/float64(len(w)) - mean*mean
	assert.InDelta(t, 0, mean, 0.02)
	assert.InDelta(t, 0.5, math.Sqrt(variance), 0.01)
}

func TestNewIsReproducible(t *testing.T) {
	cfg := fcnet.Config{HiddenDims: []int{6}, InputDim: 5, NumClasses: 3, WeightScale: 1, Seed: 42, DType: tensor.Float64}
	a := newNet(t, cfg).StateDict()
	b := newNet(t, cfg).StateDict()
	for name, m := range a {
		assert.True(t, mat.Equal(m, b[name]), name)
	}

	cfg.Seed = 43
	c := newNet(t, cfg).StateDict()
	assert.False(t, mat.Equal(a["W1"], c["W1"]))
}

func TestNewRoundsToFloat32(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{8}, InputDim: 6, NumClasses: 4, WeightScale: 1, DType: tensor.Float32})
	for _, v := range net.Params().Layers[0].W.RawMatrix().Data {
		assert.Equal(t, float64(float32(v)), v)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := fcnet.Config{HiddenDims: []int{3}, InputDim: 2, NumClasses: 2, WeightScale: 1e-2, DType: tensor.Float64}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(c *fcnet.Config)
	}{
		{"zero input dim", func(c *fcnet.Config) { c.InputDim = 0 }},
		{"zero classes", func(c *fcnet.Config) { c.NumClasses = 0 }},
		{"zero hidden width", func(c *fcnet.Config) { c.HiddenDims = []int{3, 0} }},
		{"negative weight scale", func(c *fcnet.Config) { c.WeightScale = -1 }},
		{"negative reg", func(c *fcnet.Config) { c.Reg = -0.1 }},
		{"keep above one", func(c *fcnet.Config) { c.DropoutKeep = 1.5 }},
		{"negative keep", func(c *fcnet.Config) { c.DropoutKeep = -0.5 }},
		{"unknown dtype", func(c *fcnet.Config) { c.DType = tensor.DataType(99) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.HiddenDims = append([]int(nil), valid.HiddenDims...)
			tt.modify(&cfg)

			err := cfg.Validate()
			assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument), "got %v", err)

			_, err = fcnet.New(cfg)
			assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := fcnet.DefaultConfig(100, 50)
	assert.Equal(t, 3*32*32, cfg.InputDim)
	assert.Equal(t, 10, cfg.NumClasses)
	assert.Equal(t, 1e-2, cfg.WeightScale)
	assert.Equal(t, tensor.Float32, cfg.DType)
	assert.Equal(t, []int{3072, 100, 50, 10}, cfg.Dims())
	assert.False(t, cfg.UseDropout())
}

func TestComputeLossShapes(t *testing.T) {
	for _, hidden := range [][]int{nil, {6}, {6, 5}, {4, 3, 2}} {
		net := newNet(t, fcnet.Config{
			HiddenDims:   hidden,
			InputDim:     12,
			NumClasses:   4,
			WeightScale:  0.1,
			Reg:          0.1,
			DropoutKeep:  0.8,
			UseBatchNorm: len(hidden) > 1,
			DType:        tensor.Float64,
		})
		x, y := randomBatch(t, tensor.Shape{5, 3, 2, 2}, 4, 1)

		res, err := net.ComputeLoss(x, nil)
		require.NoError(t, err)
		r, c := res.Scores.Dims()
		assert.Equal(t, 5, r)
		assert.Equal(t, 4, c)
		assert.Nil(t, res.Grads, "inference returns no gradients")

		res, err = net.ComputeLoss(x, y)
		require.NoError(t, err)
		want := net.Params().Dict()
		got := res.Grads.Dict()
		require.Len(t, got, len(want))
		for name, p := range want {
			g, ok := got[name]
			require.True(t, ok, "missing gradient %s", name)
			pr, pc := p.Dims()
			gr, gc := g.Dims()
			assert.Equal(t, [2]int{pr, pc}, [2]int{gr, gc}, name)
		}
	}
}

func TestGradientCheck(t *testing.T) {
	seed := int64(123)
	tests := []struct {
		name string
		cfg  fcnet.Config
	}{
		{"single layer", fcnet.Config{InputDim: 6, NumClasses: 4}},
		{"single layer with reg", fcnet.Config{InputDim: 6, NumClasses: 4, Reg: 0.7}},
		{"two layers", fcnet.Config{HiddenDims: []int{7}, InputDim: 6, NumClasses: 4}},
		{"two layers with reg", fcnet.Config{HiddenDims: []int{7}, InputDim: 6, NumClasses: 4, Reg: 3.14}},
		{"three layers", fcnet.Config{HiddenDims: []int{7, 8}, InputDim: 6, NumClasses: 4}},
		{"three layers with reg", fcnet.Config{HiddenDims: []int{7, 8}, InputDim: 6, NumClasses: 4, Reg: 0.5}},
		{"batch norm", fcnet.Config{HiddenDims: []int{7, 8}, InputDim: 6, NumClasses: 4, UseBatchNorm: true}},
		{"batch norm with reg", fcnet.Config{HiddenDims: []int{7, 8}, InputDim: 6, NumClasses: 4, UseBatchNorm: true, Reg: 0.3}},
		{"seeded dropout", fcnet.Config{HiddenDims: []int{7, 8}, InputDim: 6, NumClasses: 4, DropoutKeep: 0.6, DropoutSeed: &seed}},
		{"batch norm and dropout", fcnet.Config{HiddenDims: []int{9, 10}, InputDim: 6, NumClasses: 4, UseBatchNorm: true, DropoutKeep: 0.75, DropoutSeed: &seed, Reg: 0.1}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.WeightScale = 0.5
			cfg.DType = tensor.Float64
			cfg.Seed = int64(i)
			net := newNet(t, cfg)

			x, y := randomBatch(t, tensor.Shape{8, 3, 2}, cfg.NumClasses, uint64(i))
			// Start from non-zero biases.
			for _, l := range net.Params().Layers {
				for j := 0; j < l.B.Len(); j++ {
					l.B.SetVec(j, 0.1*float64(j%3-1))
				}
			}

			_, grads, err := net.Loss(x, y)
			require.NoError(t, err)
			analytic := grads.Dict()

			f := func() float64 {
				loss, _, err := net.Loss(x, y)
				require.NoError(t, err)
				return loss
			}
			for name, p := range net.Params().Dict() {
				numeric := gradcheck.NumericalDense(f, p, 1e-6)
				assert.True(t, gradcheck.AllClose(numeric, analytic[name], 1e-5, 1e-8),
					"%s: rel error %.3g", name, gradcheck.RelError(numeric, analytic[name]))
			}
		})
	}
}

func TestLossNonNegativeAndRegPenalty(t *testing.T) {
	cfg := fcnet.Config{HiddenDims: []int{10, 9}, InputDim: 8, NumClasses: 5, WeightScale: 0.3, Seed: 7, DType: tensor.Float64}
	x, y := randomBatch(t, tensor.Shape{6, 8}, 5, 3)

	base, _, err := newNet(t, cfg).Loss(x, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, base, 0.0)

	for _, reg := range []float64{0.01, 0.5, 10} {
		cfg.Reg = reg
		net := newNet(t, cfg)
		loss, _, err := net.Loss(x, y)
		require.NoError(t, err)

		sum := 0.0
		for _, l := range net.Params().Layers {
			sum += nn.SquaredNorm(l.W)
		}
		assert.Greater(t, loss, base)
		assert.InDelta(t, 0.5*reg*sum, loss-base, 1e-10, "reg %g", reg)
	}
}

func TestZeroWeightsGiveUniformLoss(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, DType: tensor.Float64})

	for seed := uint64(0); seed < 5; seed++ {
		x, y := randomBatch(t, tensor.Shape{int(seed) + 1, 4}, 3, seed)
		res, err := net.ComputeLoss(x, y)
		require.NoError(t, err)
		assert.InDelta(t, math.Log(3), res.Loss, 1e-12)
		assert.Zero(t, mat.Norm(res.Scores, 1))
	}
}

func TestInferenceTrainingParity(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{9, 7}, InputDim: 10, NumClasses: 6, WeightScale: 0.2, DType: tensor.Float64})
	x, y := randomBatch(t, tensor.Shape{8, 10}, 6, 11)

	scores, err := net.Scores(x)
	require.NoError(t, err)
	res, err := net.ComputeLoss(x, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(scores, res.Scores))
}

func TestSingleLayerIsLogisticRegression(t *testing.T) {
	reg := 0.25
	net := newNet(t, fcnet.Config{InputDim: 5, NumClasses: 3, WeightScale: 0.4, Reg: reg, DType: tensor.Float64})
	x, y := randomBatch(t, tensor.Shape{7, 5}, 3, 5)
	l := net.Params().Layers[0]
	l.B.SetVec(1, 0.3)

	res, err := net.ComputeLoss(x, y)
	require.NoError(t, err)

	xm, err := x.Flatten()
	require.NoError(t, err)
	want := nn.AffineForward(xm, l.W, l.B)
	assert.True(t, mat.EqualApprox(want, res.Scores, 1e-12))

	// dW = xᵀ(softmax - onehot)/N + reg·W
	probs := nn.Softmax(want)
	loss := 0.0
	for i, label := range y {
		loss -= math.Log(probs.At(i, label))
		probs.Set(i, label, probs.At(i, label)-1)
	}
	probs.Scale(1.0/7, probs)
	loss = loss/7 + 0.5*reg*nn.SquaredNorm(l.W)

	var dw mat.Dense
	dw.Mul(xm.T(), probs)
	var rw mat.Dense
	rw.Scale(reg, l.W)
	dw.Add(&dw, &rw)

	assert.InDelta(t, loss, res.Loss, 1e-12)
	assert.True(t, mat.EqualApprox(&dw, res.Grads.Layers[0].W, 1e-12))
	assert.True(t, mat.EqualApprox(nn.SumColumns(probs), res.Grads.Layers[0].B, 1e-12))
}

// linspace mirrors numpy.linspace.
func linspace(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n), lo, hi)
}

func TestTwoLayerReferenceValues(t *testing.T) {
	const n, d, h, c = 3, 5, 50, 7

	// Sample i, feature j is lin[j*n+i]: a (d, n) row-major array transposed.
	lin := linspace(-5.5, 4.5, n*d)
	xData := make([]float64, n*d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			xData[i*d+j] = lin[j*n+i]
		}
	}
	x, err := tensor.New(tensor.Shape{n, d}, xData)
	require.NoError(t, err)

	dict := map[string]*mat.Dense{
		"W1": mat.NewDense(d, h, linspace(-0.7, 0.3, d*h)),
		"b1": mat.NewDense(1, h, linspace(-0.1, 0.9, h)),
		"W2": mat.NewDense(h, c, linspace(-0.3, 0.4, h*c)),
		"b2": mat.NewDense(1, c, linspace(-0.9, 0.1, c)),
	}

	net, err := fcnet.NewTwoLayer(d, h, c, 1e-3, 0)
	require.NoError(t, err)
	require.NoError(t, net.LoadStateDict(dict))

	scores, err := net.Scores(x)
	require.NoError(t, err)
	want := mat.NewDense(n, c, []float64{
		11.53165108, 12.2917344, 13.05181771, 13.81190102, 14.57198434, 15.33206765, 16.09215096,
		12.05769098, 12.74614105, 13.43459113, 14.1230412, 14.81149128, 15.49994135, 16.18839143,
		12.58373087, 13.20054771, 13.81736455, 14.43418138, 15.05099822, 15.66781506, 16.2846319,
	})
	assert.True(t, mat.EqualApprox(want, scores, 1e-6))

	y := []int{0, 5, 1}
	loss, _, err := net.Loss(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 3.4702243556, loss, 1e-8)

	regNet, err := fcnet.NewTwoLayer(d, h, c, 1e-3, 1.0)
	require.NoError(t, err)
	require.NoError(t, regNet.LoadStateDict(dict))
	loss, _, err = regNet.Loss(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 26.5948426952, loss, 1e-8)
}

func TestComputeLossInvalidArguments(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{4}, InputDim: 6, NumClasses: 3, WeightScale: 0.1, DType: tensor.Float64})
	good, y := randomBatch(t, tensor.Shape{4, 6}, 3, 1)
	vector, _ := randomBatch(t, tensor.Shape{6}, 3, 1)
	wrongWidth, _ := randomBatch(t, tensor.Shape{4, 5}, 3, 1)

	tests := []struct {
		name string
		x    *tensor.Tensor
		y    []int
	}{
		{"nil input", nil, nil},
		{"no feature axis", vector, nil},
		{"feature mismatch", wrongWidth, nil},
		{"feature mismatch with labels", wrongWidth, y},
		{"too few labels", good, y[:3]},
		{"empty labels", good, []int{}},
		{"label too large", good, []int{0, 1, 3, 2}},
		{"negative label", good, []int{0, -1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := net.ComputeLoss(tt.x, tt.y)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument), "got %v", err)
		})
	}

	_, _, err := net.Loss(good, nil)
	assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument))
}

func TestComputeLossRejectsNonFiniteScores(t *testing.T) {
	net := newNet(t, fcnet.Config{InputDim: 2, NumClasses: 2, DType: tensor.Float64})
	x, err := tensor.New(tensor.Shape{1, 2}, []float64{math.Inf(1), 0})
	require.NoError(t, err)
	net.Params().Layers[0].W.Set(0, 0, 1)

	_, err = net.ComputeLoss(x, []int{0})
	assert.True(t, errors.Is(err, fcnet.ErrNumerical), "got %v", err)
}

func TestComputeLossRejectsScoresOverflowingModelPrecision(t *testing.T) {
	net := newNet(t, fcnet.Config{InputDim: 4, NumClasses: 2, DType: tensor.Float16})
	w := net.Params().Layers[0].W
	w.Set(0, 0, 60000)
	w.Set(1, 0, 60000)
	x, err := tensor.New(tensor.Shape{1, 4}, []float64{1, 1, 0, 0})
	require.NoError(t, err)

	// 120000 is finite in float64 but beyond the float16 range.
	_, err = net.Scores(x)
	assert.True(t, errors.Is(err, fcnet.ErrNumerical), "got %v", err)

	_, err = net.ComputeLoss(x, []int{1})
	assert.True(t, errors.Is(err, fcnet.ErrNumerical), "got %v", err)
}

func TestComputeLossDoesNotWriteParams(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, WeightScale: 0.1, Reg: 0.5, UseBatchNorm: true, DType: tensor.Float64})
	before := net.StateDict()
	x, y := randomBatch(t, tensor.Shape{6, 4}, 3, 2)

	_, err := net.ComputeLoss(x, y)
	require.NoError(t, err)
	for name, m := range net.StateDict() {
		assert.True(t, mat.Equal(before[name], m), name)
	}
}

func TestBatchNormRunningStatistics(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, WeightScale: 1, UseBatchNorm: true, DType: tensor.Float64})
	x, y := randomBatch(t, tensor.Shape{16, 4}, 3, 4)

	_, err := net.Scores(x)
	require.NoError(t, err)
	assert.Zero(t, mat.Norm(net.BatchNormState(0).RunningMean, 2), "inference leaves running stats alone")

	_, _, err = net.Loss(x, y)
	require.NoError(t, err)
	assert.NotZero(t, mat.Norm(net.BatchNormState(0).RunningMean, 2))
	assert.Nil(t, net.BatchNormState(1))

	stats := net.BatchNormStats()
	require.Len(t, stats, 2)

	other := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, WeightScale: 1, UseBatchNorm: true, DType: tensor.Float64})
	require.NoError(t, other.LoadStateDict(net.StateDict()))
	require.NoError(t, other.LoadBatchNormStats(stats))

	a, err := net.Scores(x)
	require.NoError(t, err)
	b, err := other.Scores(x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))

	delete(stats, "running_var1")
	assert.True(t, errors.Is(other.LoadBatchNormStats(stats), fcnet.ErrInvalidArgument))
}

func TestLoadStateDictValidation(t *testing.T) {
	cfg := fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, WeightScale: 0.1, UseBatchNorm: true, DType: tensor.Float64}
	net := newNet(t, cfg)
	dict := net.StateDict()

	t.Run("missing batch norm set", func(t *testing.T) {
		plain := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, DType: tensor.Float64})
		err := net.LoadStateDict(plain.StateDict())
		assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument))
	})

	t.Run("extra batch norm set", func(t *testing.T) {
		plain := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, DType: tensor.Float64})
		err := plain.LoadStateDict(dict)
		assert.True(t, errors.Is(err, fcnet.ErrInvalidArgument))
	})

	t.Run("wrong shape", func(t *testing.T) {
		bad := net.StateDict()
		bad["W2"] = mat.NewDense(3, 5, nil)
		assert.True(t, errors.Is(net.LoadStateDict(bad), fcnet.ErrInvalidArgument))
	})

	t.Run("failure leaves params unchanged", func(t *testing.T) {
		bad := net.StateDict()
		bad["W1"].Set(0, 0, 42)
		bad["unknown"] = mat.NewDense(1, 1, nil)
		require.Error(t, net.LoadStateDict(bad))
		assert.NotEqual(t, 42.0, net.Params().Layers[0].W.At(0, 0))
	})

	t.Run("round trip", func(t *testing.T) {
		other := newNet(t, fcnet.Config{HiddenDims: []int{5}, InputDim: 4, NumClasses: 3, WeightScale: 0.1, UseBatchNorm: true, Seed: 99, DType: tensor.Float64})
		require.NoError(t, other.LoadStateDict(dict))
		for name, m := range other.StateDict() {
			assert.True(t, mat.Equal(dict[name], m), name)
		}
	})
}

func TestPredictAndAccuracy(t *testing.T) {
	net := newNet(t, fcnet.Config{InputDim: 2, NumClasses: 2, DType: tensor.Float64})
	require.NoError(t, net.LoadStateDict(map[string]*mat.Dense{
		"W1": mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		"b1": mat.NewDense(1, 2, nil),
	}))
	x, err := tensor.FromRows([][]float64{{2, 1}, {0, 3}, {5, 4}})
	require.NoError(t, err)

	pred, err := net.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, pred)

	acc, err := net.Accuracy(x, []int{0, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, acc, 1e-12)
}

func TestConcurrentInference(t *testing.T) {
	net := newNet(t, fcnet.Config{HiddenDims: []int{8}, InputDim: 6, NumClasses: 3, WeightScale: 0.1, UseBatchNorm: true, DropoutKeep: 0.5, DType: tensor.Float64})
	x, y := randomBatch(t, tensor.Shape{10, 6}, 3, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(train bool) {
			defer wg.Done()
			if train {
				_, _, err := net.Loss(x, y)
				assert.NoError(t, err)
				return
			}
			_, err := net.Scores(x)
			assert.NoError(t, err)
		}(i%4 == 0)
	}
	wg.Wait()
}
