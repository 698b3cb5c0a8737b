package solver

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/born-ml/fcnet/internal/serialization"
)

// checkpointModelType is recorded in the header of every checkpoint.
const checkpointModelType = "FullyConnectedNet"

func checkpointPath(prefix string, epoch int) string {
	return fmt.Sprintf("%s_epoch_%d.born", prefix, epoch)
}

// SaveCheckpoint writes the model parameters, batch norm statistics (for a
// Stateful model), update rule state and training progress to path.
func (s *Solver) SaveCheckpoint(path string) error {
	c := serialization.Checkpoint{
		Params:    s.model.Params().Clone().Dict(),
		Optimizer: s.opts.Rule.StateDict(),
	}
	if st, ok := s.model.(Stateful); ok {
		c.BatchNorm = st.BatchNormStats()
	}

	meta := &serialization.CheckpointMeta{
		Epoch:           s.epoch,
		Step:            s.step,
		OptimizerType:   s.opts.Rule.Name(),
		OptimizerConfig: map[string]any{"lr": s.opts.Rule.LR()},
	}
	if n := len(s.history.LossHistory); n > 0 {
		meta.Loss = s.history.LossHistory[n-1]
	}
	if n := len(s.history.ValAccHistory); n > 0 {
		meta.ValAcc = s.history.ValAccHistory[n-1]
	}

	err := serialization.Save(path, c.Merge(), serialization.WriteOptions{
		DType:      s.opts.CheckpointDType,
		ModelType:  checkpointModelType,
		Checkpoint: meta,
	})
	if err != nil {
		return errors.Wrapf(err, "saving checkpoint %s", path)
	}
	klog.V(1).Infof("saved checkpoint %s (epoch %d, step %s)", path, s.epoch, humanize.Comma(s.step))
	return nil
}

// LoadCheckpoint restores a checkpoint written by SaveCheckpoint, so training
// can resume from it: parameters, batch norm statistics, update rule state,
// epoch and step counters.
//
// The update rule must be of the type that wrote the checkpoint.
func (s *Solver) LoadCheckpoint(path string) error {
	dict, header, err := serialization.Load(path)
	if err != nil {
		return errors.Wrapf(err, "loading checkpoint %s", path)
	}
	if header.CheckpointMeta == nil {
		return errors.Errorf("%s is not a training checkpoint", path)
	}
	if got, want := header.CheckpointMeta.OptimizerType, s.opts.Rule.Name(); got != want {
		return errors.Errorf("checkpoint %s was written by update rule %q, solver uses %q", path, got, want)
	}

	c := serialization.Split(dict)
	if err := loadParams(s.model, c.Params); err != nil {
		return errors.WithMessage(err, path)
	}
	if st, ok := s.model.(Stateful); ok {
		if err := st.LoadBatchNormStats(c.BatchNorm); err != nil {
			return errors.WithMessage(err, path)
		}
	}
	if err := s.opts.Rule.LoadStateDict(c.Optimizer); err != nil {
		return errors.WithMessage(err, path)
	}
	if lr, ok := header.CheckpointMeta.OptimizerConfig["lr"].(float64); ok {
		s.opts.Rule.SetLR(lr)
	}

	s.epoch = header.CheckpointMeta.Epoch
	s.step = header.CheckpointMeta.Step
	return nil
}

// loadParams copies dict into the model's parameter store, using the model's
// own LoadStateDict when it has one.
func loadParams(model Model, dict map[string]*mat.Dense) error {
	if loader, ok := model.(interface {
		LoadStateDict(map[string]*mat.Dense) error
	}); ok {
		return loader.LoadStateDict(dict)
	}

	want := model.Params().Dict()
	if len(dict) != len(want) {
		return errors.Errorf("checkpoint has %d parameters, model has %d", len(dict), len(want))
	}
	for name, dst := range want {
		src, ok := dict[name]
		if !ok {
			return errors.Errorf("checkpoint has no parameter %q", name)
		}
		if !sameDims(src, dst) {
			return errors.Errorf("parameter %q has a different shape in the checkpoint", name)
		}
	}
	for name, dst := range want {
		dst.Copy(dict[name])
	}
	return nil
}

func sameDims(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// formatDescription summarizes the latest accuracy check for the progress bar.
func formatDescription(epoch int, h History) string {
	n := len(h.ValAccHistory)
	if n == 0 {
		return fmt.Sprintf("epoch %d", epoch)
	}
	return fmt.Sprintf("epoch %d: train %.3f, val %.3f (best %.3f), %s steps skipped",
		epoch, h.TrainAccHistory[n-1], h.ValAccHistory[n-1], h.BestValAcc, humanize.Comma(int64(h.SkippedBatches)))
}
