// Package config loads and validates YAML training configurations.
//
// A configuration has four sections:
//
//	model:
//	  hidden_dims: [100, 50]
//	  weight_scale: 0.01
//	  reg: 0.001
//	  dropout_keep: 0      # 0 disables dropout
//	  batchnorm: true
//	  dtype: float64
//	  seed: 1
//	solver:
//	  update_rule: adam
//	  learning_rate: 0.001
//	  lr_decay: 0.95
//	  batch_size: 100
//	  num_epochs: 10
//	data:
//	  source: idx          # or blobs
//	  images_path: train-images-idx3-ubyte
//	  labels_path: train-labels-idx1-ubyte
//	  val_fraction: 0.1
//	output:
//	  model: model.born
//	  plot: curves.png
//
// Omitted fields keep the values of Default.
package config

import (
	"bytes"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/fcnet/internal/data"
	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/optim"
	"github.com/born-ml/fcnet/internal/tensor"
)

// Data sources.
const (
	SourceBlobs = "blobs"
	SourceIDX   = "idx"
)

// TrainConfig captures everything a training run needs.
type TrainConfig struct {
	Model  ModelConfig  `yaml:"model"`
	Solver SolverConfig `yaml:"solver"`
	Data   DataConfig   `yaml:"data"`
	Output OutputConfig `yaml:"output"`
}

// ModelConfig describes the network. Input and output widths come from the data.
type ModelConfig struct {
	HiddenDims  []int           `yaml:"hidden_dims"`
	WeightScale float64         `yaml:"weight_scale"`
	Reg         float64         `yaml:"reg"`
	DropoutKeep float64         `yaml:"dropout_keep"`
	BatchNorm   bool            `yaml:"batchnorm"`
	DType       tensor.DataType `yaml:"dtype"`
	Seed        int64           `yaml:"seed"`
}

// SolverConfig describes the optimization loop.
type SolverConfig struct {
	UpdateRule      string  `yaml:"update_rule"`
	LearningRate    float64 `yaml:"learning_rate"`
	LRDecay         float64 `yaml:"lr_decay"`
	BatchSize       int     `yaml:"batch_size"`
	NumEpochs       int     `yaml:"num_epochs"`
	PrintEvery      int     `yaml:"print_every"`
	NumTrainSamples int     `yaml:"num_train_samples"`
	NumValSamples   int     `yaml:"num_val_samples"`
	Seed            int64   `yaml:"seed"`
}

// DataConfig selects and shapes the dataset.
type DataConfig struct {
	Source      string      `yaml:"source"`
	ImagesPath  string      `yaml:"images_path"`
	LabelsPath  string      `yaml:"labels_path"`
	MaxSamples  int         `yaml:"max_samples"`
	ValFraction float64     `yaml:"val_fraction"`
	Blobs       BlobsConfig `yaml:"blobs"`
}

// BlobsConfig configures the synthetic dataset.
type BlobsConfig struct {
	N       int     `yaml:"n"`
	Dim     int     `yaml:"dim"`
	Classes int     `yaml:"classes"`
	Spread  float64 `yaml:"spread"`
	Seed    int64   `yaml:"seed"`
}

// OutputConfig lists the files a run writes. Empty paths are skipped.
type OutputConfig struct {
	CheckpointPrefix string          `yaml:"checkpoint_prefix"`
	CheckpointDType  tensor.DataType `yaml:"checkpoint_dtype"`
	Model            string          `yaml:"model"`
	SafeTensors      string          `yaml:"safetensors"`
	Plot             string          `yaml:"plot"`
}

// Overrides captures CLI supplied values. Zero values leave the config unchanged.
type Overrides struct {
	NumEpochs        int
	LearningRate     float64
	BatchSize        int
	UpdateRule       string
	CheckpointPrefix string
	Model            string
	Plot             string
}

// Default returns a configuration that trains a two-hidden-layer network on
// synthetic blobs.
func Default() *TrainConfig {
	return &TrainConfig{
		Model: ModelConfig{
			HiddenDims:  []int{100, 50},
			WeightScale: fcnet.DefaultWeightScale,
			Reg:         1e-3,
			DType:       tensor.Float64,
			Seed:        1,
		},
		Solver: SolverConfig{
			UpdateRule:   optim.NameAdam,
			LearningRate: 1e-3,
			LRDecay:      0.95,
			BatchSize:    100,
			NumEpochs:    10,
			PrintEvery:   10,
			Seed:         1,
		},
		Data: DataConfig{
			Source:      SourceBlobs,
			ValFraction: 0.1,
			Blobs:       BlobsConfig{N: 2000, Dim: 20, Classes: 5, Spread: 1, Seed: 1},
		},
		Output: OutputConfig{
			CheckpointDType: tensor.Float32,
		},
	}
}

// Load reads and validates a TrainConfig from YAML, on top of Default.
// Unknown keys are rejected.
func Load(path string) (*TrainConfig, error) {
	//nolint:gosec // G304: config path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	defer func() {
		_ = f.Close()
	}()

	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// Parse decodes and validates a TrainConfig from r, on top of Default.
func Parse(r io.Reader) (*TrainConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML encodes the configuration.
func (c *TrainConfig) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return buf.Bytes(), nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *TrainConfig) ApplyOverrides(o Overrides) {
	if o.NumEpochs > 0 {
		c.Solver.NumEpochs = o.NumEpochs
	}
	if o.LearningRate > 0 {
		c.Solver.LearningRate = o.LearningRate
	}
	if o.BatchSize > 0 {
		c.Solver.BatchSize = o.BatchSize
	}
	if o.UpdateRule != "" {
		c.Solver.UpdateRule = o.UpdateRule
	}
	if o.CheckpointPrefix != "" {
		c.Output.CheckpointPrefix = o.CheckpointPrefix
	}
	if o.Model != "" {
		c.Output.Model = o.Model
	}
	if o.Plot != "" {
		c.Output.Plot = o.Plot
	}
}

// Validate verifies the config is runnable.
func (c *TrainConfig) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	m := c.Model
	for i, d := range m.HiddenDims {
		if d <= 0 {
			return errors.Errorf("model.hidden_dims[%d] must be > 0 (got %d)", i, d)
		}
	}
	if m.WeightScale < 0 {
		return errors.Errorf("model.weight_scale must be >= 0 (got %g)", m.WeightScale)
	}
	if m.Reg < 0 {
		return errors.Errorf("model.reg must be >= 0 (got %g)", m.Reg)
	}
	if m.DropoutKeep < 0 || m.DropoutKeep > 1 {
		return errors.Errorf("model.dropout_keep must be in [0, 1] (got %g)", m.DropoutKeep)
	}
	if !m.DType.Valid() {
		return errors.Errorf("model.dtype %v is not supported", m.DType)
	}
	if !c.Output.CheckpointDType.Valid() {
		return errors.Errorf("output.checkpoint_dtype %v is not supported", c.Output.CheckpointDType)
	}

	s := c.Solver
	if !slices.Contains(optim.Names(), strings.ToLower(s.UpdateRule)) && !strings.EqualFold(s.UpdateRule, "momentum") {
		return errors.Errorf("solver.update_rule must be one of %s (got %q)", strings.Join(optim.Names(), ", "), s.UpdateRule)
	}
	if s.LearningRate < 0 {
		return errors.Errorf("solver.learning_rate must be >= 0 (got %g)", s.LearningRate)
	}
	if s.LRDecay <= 0 || s.LRDecay > 1 {
		return errors.Errorf("solver.lr_decay must be in (0, 1] (got %g)", s.LRDecay)
	}
	if s.BatchSize <= 0 {
		return errors.Errorf("solver.batch_size must be > 0 (got %d)", s.BatchSize)
	}
	if s.NumEpochs <= 0 {
		return errors.Errorf("solver.num_epochs must be > 0 (got %d)", s.NumEpochs)
	}
	if s.PrintEvery <= 0 {
		c.Solver.PrintEvery = 10
	}

	d := c.Data
	switch d.Source {
	case SourceBlobs:
		if d.Blobs.N <= 0 || d.Blobs.Dim <= 0 || d.Blobs.Classes <= 0 {
			return errors.Errorf("data.blobs n, dim and classes must be > 0 (got %d, %d, %d)", d.Blobs.N, d.Blobs.Dim, d.Blobs.Classes)
		}
		if d.Blobs.Spread < 0 {
			return errors.Errorf("data.blobs.spread must be >= 0 (got %g)", d.Blobs.Spread)
		}
	case SourceIDX:
		if d.ImagesPath == "" || d.LabelsPath == "" {
			return errors.New("data.images_path and data.labels_path are required for idx data")
		}
	default:
		return errors.Errorf("data.source must be %q or %q (got %q)", SourceBlobs, SourceIDX, d.Source)
	}
	if d.ValFraction <= 0 || d.ValFraction >= 1 {
		return errors.Errorf("data.val_fraction must be in (0, 1) (got %g)", d.ValFraction)
	}
	if d.MaxSamples < 0 {
		return errors.Errorf("data.max_samples must be >= 0 (got %d)", d.MaxSamples)
	}
	return nil
}

// NetConfig returns the network configuration for data with the given
// feature and class counts.
func (c *TrainConfig) NetConfig(inputDim, numClasses int) fcnet.Config {
	return fcnet.Config{
		HiddenDims:   slices.Clone(c.Model.HiddenDims),
		InputDim:     inputDim,
		NumClasses:   numClasses,
		WeightScale:  c.Model.WeightScale,
		Reg:          c.Model.Reg,
		DropoutKeep:  c.Model.DropoutKeep,
		UseBatchNorm: c.Model.BatchNorm,
		DType:        c.Model.DType,
		Seed:         c.Model.Seed,
	}
}

// LoadData loads the configured dataset.
func (c *TrainConfig) LoadData() (*data.Dataset, error) {
	d := c.Data
	if d.Source == SourceIDX {
		return data.LoadIDX(d.ImagesPath, d.LabelsPath, d.MaxSamples)
	}
	return data.Blobs(data.BlobsConfig{
		N:       d.Blobs.N,
		Dim:     d.Blobs.Dim,
		Classes: d.Blobs.Classes,
		Spread:  d.Blobs.Spread,
		Seed:    d.Blobs.Seed,
	})
}
