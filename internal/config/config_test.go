package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fcnet/internal/tensor"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SourceBlobs, cfg.Data.Source)
	assert.Equal(t, tensor.Float64, cfg.Model.DType)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	content := `
model:
  hidden_dims: [64]
  reg: 0.05
  dropout_keep: 0.5
  batchnorm: true
  dtype: float32
solver:
  update_rule: sgd_momentum
  learning_rate: 0.01
  num_epochs: 3
data:
  source: idx
  images_path: images.idx
  labels_path: labels.idx
  max_samples: 500
output:
  checkpoint_dtype: float16
  plot: curves.png
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{64}, cfg.Model.HiddenDims)
	assert.Equal(t, 0.05, cfg.Model.Reg)
	assert.True(t, cfg.Model.BatchNorm)
	assert.Equal(t, tensor.Float32, cfg.Model.DType)
	assert.Equal(t, "sgd_momentum", cfg.Solver.UpdateRule)
	assert.Equal(t, 3, cfg.Solver.NumEpochs)
	assert.Equal(t, 100, cfg.Solver.BatchSize, "omitted fields keep defaults")
	assert.Equal(t, SourceIDX, cfg.Data.Source)
	assert.Equal(t, 500, cfg.Data.MaxSamples)
	assert.Equal(t, tensor.Float16, cfg.Output.CheckpointDType)
	assert.Equal(t, "curves.png", cfg.Output.Plot)

	net := cfg.NetConfig(784, 10)
	assert.Equal(t, 784, net.InputDim)
	assert.Equal(t, 0.5, net.DropoutKeep)
	assert.True(t, net.UseBatchNorm)
	require.NoError(t, net.Validate())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "model:\n  hiden_dims: [3]\n", "hiden_dims"},
		{"bad dtype", "model:\n  dtype: int8\n", "int8"},
		{"negative width", "model:\n  hidden_dims: [3, 0]\n", "hidden_dims[1]"},
		{"negative reg", "model:\n  reg: -1\n", "model.reg"},
		{"dropout", "model:\n  dropout_keep: 1.5\n", "dropout_keep"},
		{"update rule", "solver:\n  update_rule: lbfgs\n", "update_rule"},
		{"lr decay", "solver:\n  lr_decay: 0\n", "lr_decay"},
		{"batch size", "solver:\n  batch_size: 0\n", "batch_size"},
		{"epochs", "solver:\n  num_epochs: -2\n", "num_epochs"},
		{"source", "data:\n  source: csv\n", "data.source"},
		{"idx paths", "data:\n  source: idx\n", "images_path"},
		{"val fraction", "data:\n  val_fraction: 1\n", "val_fraction"},
		{"blobs", "data:\n  blobs:\n    classes: 0\n", "data.blobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEmptyGivesDefault(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{NumEpochs: 7, LearningRate: 0.5, UpdateRule: "rmsprop", Plot: "p.png"})
	assert.Equal(t, 7, cfg.Solver.NumEpochs)
	assert.Equal(t, 0.5, cfg.Solver.LearningRate)
	assert.Equal(t, "rmsprop", cfg.Solver.UpdateRule)
	assert.Equal(t, "p.png", cfg.Output.Plot)
	assert.Equal(t, Default().Solver.BatchSize, cfg.Solver.BatchSize, "zero overrides are ignored")
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Model.DType = tensor.Float16
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "dtype: float16")

	back, err := Parse(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadData(t *testing.T) {
	cfg := Default()
	cfg.Data.Blobs.N = 50
	d, err := cfg.LoadData()
	require.NoError(t, err)
	assert.Equal(t, 50, d.Len())
	assert.Equal(t, 20, d.FeatureDim())
	assert.Equal(t, 5, d.NumClasses)
}
