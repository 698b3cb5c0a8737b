package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/serialization"
	"github.com/born-ml/fcnet/internal/tensor"
)

const modelType = "FullyConnectedNet"

// Metadata keys written with every saved model, enough to rebuild it.
const (
	metaDims        = "dims"
	metaBatchNorm   = "batchnorm"
	metaDropoutKeep = "dropout_keep"
	metaReg         = "reg"
	metaDType       = "dtype"
)

// saveModel writes the parameters and batch norm statistics of net to path.
func saveModel(path string, net *fcnet.FullyConnectedNet, dt tensor.DataType, extra map[string]string) error {
	cfg := net.Config()
	dims := make([]string, 0, len(net.Dims()))
	for _, d := range net.Dims() {
		dims = append(dims, strconv.Itoa(d))
	}
	meta := map[string]string{
		metaDims:        strings.Join(dims, ","),
		metaBatchNorm:   strconv.FormatBool(cfg.UseBatchNorm),
		metaDropoutKeep: strconv.FormatFloat(cfg.DropoutKeep, 'g', -1, 64),
		metaReg:         strconv.FormatFloat(cfg.Reg, 'g', -1, 64),
		metaDType:       cfg.DType.String(),
	}
	for k, v := range extra {
		meta[k] = v
	}

	c := serialization.Checkpoint{Params: net.StateDict(), BatchNorm: net.BatchNormStats()}
	return serialization.Save(path, c.Merge(), serialization.WriteOptions{
		DType:     dt,
		ModelType: modelType,
		Metadata:  meta,
	})
}

// loadModel rebuilds a network saved by saveModel.
func loadModel(path string) (*fcnet.FullyConnectedNet, *serialization.Header, error) {
	dict, header, err := serialization.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if header.ModelType != modelType {
		return nil, nil, errors.Errorf("%s holds a %q, expected %q", path, header.ModelType, modelType)
	}
	cfg, err := configFromMetadata(header.Metadata)
	if err != nil {
		return nil, nil, errors.WithMessage(err, path)
	}

	net, err := fcnet.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	c := serialization.Split(dict)
	if err := net.LoadStateDict(c.Params); err != nil {
		return nil, nil, errors.WithMessage(err, path)
	}
	if err := net.LoadBatchNormStats(c.BatchNorm); err != nil {
		return nil, nil, errors.WithMessage(err, path)
	}
	return net, header, nil
}

func configFromMetadata(meta map[string]string) (fcnet.Config, error) {
	var cfg fcnet.Config
	parts := strings.Split(meta[metaDims], ",")
	if len(parts) < 2 {
		return cfg, errors.Errorf("metadata %q = %q does not describe a network", metaDims, meta[metaDims])
	}
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return cfg, errors.Wrapf(err, "metadata %q", metaDims)
		}
		dims[i] = d
	}
	cfg.InputDim = dims[0]
	cfg.NumClasses = dims[len(dims)-1]
	cfg.HiddenDims = dims[1 : len(dims)-1]

	var err error
	if v, ok := meta[metaBatchNorm]; ok {
		if cfg.UseBatchNorm, err = strconv.ParseBool(v); err != nil {
			return cfg, errors.Wrapf(err, "metadata %q", metaBatchNorm)
		}
	}
	if v, ok := meta[metaDropoutKeep]; ok {
		if cfg.DropoutKeep, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, errors.Wrapf(err, "metadata %q", metaDropoutKeep)
		}
	}
	if v, ok := meta[metaReg]; ok {
		if cfg.Reg, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, errors.Wrapf(err, "metadata %q", metaReg)
		}
	}
	cfg.DType = tensor.Float64
	if v, ok := meta[metaDType]; ok {
		if cfg.DType, err = tensor.ParseDataType(v); err != nil {
			return cfg, errors.Wrapf(err, "metadata %q", metaDType)
		}
	}
	return cfg, nil
}

// paramsOnly drops optimizer state from a state dict.
func paramsOnly(dict map[string]*mat.Dense) map[string]*mat.Dense {
	c := serialization.Split(dict)
	c.Optimizer = nil
	return c.Merge()
}
