package solver_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/data"
	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/optim"
	"github.com/born-ml/fcnet/internal/serialization"
	"github.com/born-ml/fcnet/internal/solver"
	"github.com/born-ml/fcnet/internal/tensor"
)

func blobs(t *testing.T) (train, val *data.Dataset) {
	t.Helper()
	d, err := data.Blobs(data.BlobsConfig{N: 300, Dim: 5, Classes: 3, Spread: 0.5, Seed: 11})
	require.NoError(t, err)
	train = &data.Dataset{X: mustRows(t, d, 0, 240), Y: d.Y[:240], NumClasses: 3}
	val = &data.Dataset{X: mustRows(t, d, 240, 300), Y: d.Y[240:], NumClasses: 3}
	return train, val
}

func mustRows(t *testing.T, d *data.Dataset, start, end int) *tensor.Tensor {
	t.Helper()
	idx := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		idx = append(idx, i)
	}
	x, err := d.X.Rows(idx)
	require.NoError(t, err)
	return x
}

func newNet(t *testing.T, batchNorm bool) *fcnet.FullyConnectedNet {
	t.Helper()
	net, err := fcnet.New(fcnet.Config{
		HiddenDims:   []int{20},
		InputDim:     5,
		NumClasses:   3,
		WeightScale:  5e-2,
		Reg:          1e-4,
		UseBatchNorm: batchNorm,
		DType:        tensor.Float64,
		Seed:         3,
	})
	require.NoError(t, err)
	return net
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func TestTrainReducesLossOnBlobs(t *testing.T) {
	for _, batchNorm := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "batchnorm"}[batchNorm], func(t *testing.T) {
			train, val := blobs(t)
			net := newNet(t, batchNorm)
			rule, err := optim.New(optim.NameAdam, 1e-2)
			require.NoError(t, err)

			s, err := solver.New(net, train, val, solver.Options{
				Rule:      rule,
				BatchSize: 30,
				NumEpochs: 20,
				LRDecay:   0.95,
				Seed:      1,
			})
			require.NoError(t, err)

			history, err := s.Train(context.Background())
			require.NoError(t, err)

			itersPerEpoch := 240 / 30
			require.Len(t, history.LossHistory, 20*itersPerEpoch)
			assert.Len(t, history.TrainAccHistory, 21, "first iteration plus every epoch end")
			assert.Len(t, history.ValAccHistory, 21)
			assert.Equal(t, 20, s.Epoch())

			first := mean(history.LossHistory[:itersPerEpoch])
			last := mean(history.LossHistory[len(history.LossHistory)-itersPerEpoch:])
			assert.Less(t, last, first/2)
			assert.Greater(t, history.BestValAcc, 0.9)

			assert.InDelta(t, 1e-2*math.Pow(0.95, 20), rule.LR(), 1e-12)

			// The model ends up with the best validation parameters.
			acc, err := s.CheckAccuracy(val, 0)
			require.NoError(t, err)
			assert.Equal(t, history.BestValAcc, acc)
		})
	}
}

func TestTrainStopsOnCancel(t *testing.T) {
	train, val := blobs(t)
	s, err := solver.New(newNet(t, false), train, val, solver.Options{NumEpochs: 5})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	history, err := s.Train(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	require.NotNil(t, history)
	assert.Empty(t, history.LossHistory)
}

// flakyModel fails every failEvery-th loss evaluation with a numerical error.
type flakyModel struct {
	*fcnet.FullyConnectedNet
	failEvery int
	calls     int
}

func (m *flakyModel) Loss(x *tensor.Tensor, y []int) (float64, *fcnet.Params, error) {
	m.calls++
	if m.failEvery == 1 || m.calls%m.failEvery == 0 {
		return 0, nil, errors.Wrap(fcnet.ErrNumerical, "non-finite loss")
	}
	return m.FullyConnectedNet.Loss(x, y)
}

func TestBadBatchesAreSkipped(t *testing.T) {
	train, val := blobs(t)
	model := &flakyModel{FullyConnectedNet: newNet(t, false), failEvery: 3}
	s, err := solver.New(model, train, val, solver.Options{BatchSize: 30, NumEpochs: 3})
	require.NoError(t, err)

	history, err := s.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, history.SkippedBatches)
	assert.Len(t, history.LossHistory, 24-8)
}

func TestTooManyBadBatchesAbort(t *testing.T) {
	train, val := blobs(t)
	model := &flakyModel{FullyConnectedNet: newNet(t, false), failEvery: 1}
	s, err := solver.New(model, train, val, solver.Options{BatchSize: 30, NumEpochs: 3, MaxBadBatches: 4})
	require.NoError(t, err)

	history, err := s.Train(context.Background())
	assert.True(t, errors.Is(err, fcnet.ErrNumerical), "got %v", err)
	assert.Equal(t, 5, history.SkippedBatches)
}

func TestCheckpoints(t *testing.T) {
	train, val := blobs(t)
	prefix := filepath.Join(t.TempDir(), "fcnet")
	net := newNet(t, true)
	rule, err := optim.New(optim.NameMomentum, 1e-2)
	require.NoError(t, err)

	s, err := solver.New(net, train, val, solver.Options{
		Rule:             rule,
		BatchSize:        60,
		NumEpochs:        2,
		CheckpointPrefix: prefix,
		CheckpointDType:  tensor.Float64,
	})
	require.NoError(t, err)
	_, err = s.Train(context.Background())
	require.NoError(t, err)

	for _, epoch := range []string{"1", "2"} {
		_, err := os.Stat(prefix + "_epoch_" + epoch + ".born")
		require.NoError(t, err)
	}

	path := prefix + "_epoch_2.born"
	dict, header, err := serialization.Load(path)
	require.NoError(t, err)
	require.NotNil(t, header.CheckpointMeta)
	assert.Equal(t, 2, header.CheckpointMeta.Epoch)
	assert.Equal(t, int64(8), header.CheckpointMeta.Step)
	assert.Equal(t, optim.NameMomentum, header.CheckpointMeta.OptimizerType)
	saved := serialization.Split(dict)
	assert.Contains(t, saved.Optimizer, "velocity.W1")
	assert.Contains(t, saved.BatchNorm, "running_mean1")

	// Resume into a fresh model.
	fresh := newNet(t, true)
	freshRule, err := optim.New(optim.NameMomentum, 0)
	require.NoError(t, err)
	resumed, err := solver.New(fresh, train, val, solver.Options{Rule: freshRule, BatchSize: 60, NumEpochs: 3})
	require.NoError(t, err)
	require.NoError(t, resumed.LoadCheckpoint(path))

	assert.Equal(t, 2, resumed.Epoch())
	assert.InDelta(t, rule.LR(), freshRule.LR(), 1e-15)
	for name, m := range fresh.StateDict() {
		assert.True(t, mat.Equal(saved.Params[name], m), name)
	}
	for name, m := range fresh.BatchNormStats() {
		assert.True(t, mat.Equal(saved.BatchNorm[name], m), name)
	}

	// Only the third epoch is left to run.
	history, err := resumed.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.Epoch())
	assert.Len(t, history.LossHistory, 4)
	_, err = os.Stat(prefix + "_epoch_3.born")
	assert.True(t, os.IsNotExist(err), "resumed solver has no checkpoint prefix")

	done, err := solver.New(newNet(t, true), train, val, solver.Options{Rule: rule, BatchSize: 60, NumEpochs: 2})
	require.NoError(t, err)
	require.NoError(t, done.LoadCheckpoint(path))
	history, err = done.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, done.Epoch())
	assert.Empty(t, history.LossHistory)

	sgd, err := solver.New(newNet(t, true), train, val, solver.Options{})
	require.NoError(t, err)
	assert.ErrorContains(t, sgd.LoadCheckpoint(path), "update rule")
}

func TestNewValidatesOptions(t *testing.T) {
	train, val := blobs(t)
	net := newNet(t, false)

	_, err := solver.New(nil, train, val, solver.Options{})
	assert.Error(t, err)
	_, err = solver.New(net, train, nil, solver.Options{})
	assert.Error(t, err)
	_, err = solver.New(net, train, val, solver.Options{BatchSize: -1})
	assert.Error(t, err)
	_, err = solver.New(net, train, val, solver.Options{LRDecay: 1.5})
	assert.Error(t, err)

	s, err := solver.New(net, train, val, solver.Options{})
	require.NoError(t, err)
	opts := s.Options()
	assert.Equal(t, solver.DefaultBatchSize, opts.BatchSize)
	assert.Equal(t, optim.NameSGD, opts.Rule.Name())
	assert.Equal(t, 1.0, opts.LRDecay)
}
