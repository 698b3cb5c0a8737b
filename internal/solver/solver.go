// Package solver trains classification models with minibatch gradient descent.
//
// A Solver repeatedly samples a minibatch from the training set, asks the
// model for the loss and parameter gradients, and applies an optim.Rule to
// every parameter by name. At the end of every epoch it decays the learning
// rate, measures training and validation accuracy and remembers the parameters
// with the best validation accuracy; when training ends those parameters are
// loaded back into the model.
//
// Example:
//
//	rule, _ := optim.New("adam", 1e-3)
//	s, err := solver.New(net, train, val, solver.Options{
//	    Rule:      rule,
//	    NumEpochs: 20,
//	    BatchSize: 100,
//	    LRDecay:   0.95,
//	})
//	history, err := s.Train(ctx)
package solver

import (
	"context"
	"math/rand/v2"
	"os"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/born-ml/fcnet/internal/data"
	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/nn"
	"github.com/born-ml/fcnet/internal/optim"
	"github.com/born-ml/fcnet/internal/parallel"
	"github.com/born-ml/fcnet/internal/tensor"
)

// Model is what a Solver trains. *fcnet.FullyConnectedNet satisfies it.
type Model interface {
	// Loss returns the training loss on (x, y) and the gradient of every parameter.
	Loss(x *tensor.Tensor, y []int) (float64, *fcnet.Params, error)

	// Scores returns the class scores for x without touching model state.
	Scores(x *tensor.Tensor) (*mat.Dense, error)

	// Params returns the live parameter store; the solver updates it in place.
	Params() *fcnet.Params
}

// Stateful is implemented by models that carry state besides their parameters,
// such as batch normalization running statistics. The solver snapshots it
// along with the best parameters and writes it into checkpoints.
type Stateful interface {
	BatchNormStats() map[string]*mat.Dense
	LoadBatchNormStats(stats map[string]*mat.Dense) error
}

// Defaults for zero-valued Options fields.
const (
	DefaultBatchSize       = 100
	DefaultNumEpochs       = 10
	DefaultNumTrainSamples = 1000
	DefaultPrintEvery      = 10
	DefaultMaxBadBatches   = 10
	DefaultLR              = 1e-2
)

// Options configures a Solver.
type Options struct {
	Rule      optim.Rule // Update rule (default: SGD with DefaultLR)
	LRDecay   float64    // Learning rate multiplier applied after every epoch (default: 1)
	BatchSize int        // Minibatch size (default: 100)
	NumEpochs int        // Number of passes over the training set (default: 10)

	// NumTrainSamples is the size of the training subsample used to measure
	// training accuracy (default: 1000, negative: the whole set).
	NumTrainSamples int
	// NumValSamples is the size of the validation subsample (0: the whole set).
	NumValSamples int

	PrintEvery int  // Iterations between loss log lines (default: 10)
	Verbose    bool // Log progress at the default klog level instead of V(2)
	Progress   bool // Draw a progress bar on stderr
	Seed       int64

	// MaxBadBatches is how many consecutive numerically failing batches are
	// skipped before training aborts (default: 10).
	MaxBadBatches int

	// CheckpointPrefix, when set, writes "<prefix>_epoch_<n>.born" after every epoch.
	CheckpointPrefix string
	// CheckpointDType is the storage precision of checkpoints.
	CheckpointDType tensor.DataType

	// Parallel controls concurrent scoring of accuracy batches.
	Parallel parallel.Config
}

func (o Options) withDefaults() Options {
	if o.Rule == nil {
		o.Rule = optim.NewSGD(optim.SGDConfig{LR: DefaultLR})
	}
	if o.LRDecay == 0 {
		o.LRDecay = 1
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.NumEpochs == 0 {
		o.NumEpochs = DefaultNumEpochs
	}
	if o.NumTrainSamples == 0 {
		o.NumTrainSamples = DefaultNumTrainSamples
	}
	if o.PrintEvery == 0 {
		o.PrintEvery = DefaultPrintEvery
	}
	if o.MaxBadBatches == 0 {
		o.MaxBadBatches = DefaultMaxBadBatches
	}
	return o
}

// History records what happened during training.
type History struct {
	LossHistory     []float64 // Loss of every successful iteration
	TrainAccHistory []float64 // Training accuracy at every check
	ValAccHistory   []float64 // Validation accuracy at every check
	BestValAcc      float64
	BestEpoch       int
	SkippedBatches  int
}

// Solver trains a Model on a training set, validating on a validation set.
//
// A Solver is not safe for concurrent use.
type Solver struct {
	model      Model
	train, val *data.Dataset
	opts       Options
	rng        *rand.Rand

	epoch      int
	step       int64
	history    History
	bestParams *fcnet.Params
	bestStats  map[string]*mat.Dense
}

// New creates a solver.
//
// Returns an error if a dataset is empty or the options are out of range.
func New(model Model, train, val *data.Dataset, opts Options) (*Solver, error) {
	if model == nil {
		return nil, errors.New("nil model")
	}
	if train == nil || train.Len() == 0 || val == nil || val.Len() == 0 {
		return nil, errors.New("training and validation sets must be non-empty")
	}
	opts = opts.withDefaults()
	switch {
	case opts.BatchSize < 0:
		return nil, errors.Errorf("batch size must be positive, got %d", opts.BatchSize)
	case opts.NumEpochs < 0:
		return nil, errors.Errorf("number of epochs must be positive, got %d", opts.NumEpochs)
	case opts.LRDecay < 0 || opts.LRDecay > 1:
		return nil, errors.Errorf("learning rate decay must be in (0, 1], got %g", opts.LRDecay)
	case opts.PrintEvery < 0 || opts.MaxBadBatches < 0:
		return nil, errors.Errorf("print interval and bad batch limit must be positive")
	case !opts.CheckpointDType.Valid():
		return nil, errors.Errorf("invalid checkpoint dtype %v", opts.CheckpointDType)
	}

	seed := uint64(opts.Seed)
	return &Solver{
		model: model,
		train: train,
		val:   val,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
	}, nil
}

// Options returns the options in effect, defaults filled in.
func (s *Solver) Options() Options {
	return s.opts
}

// Epoch returns the number of completed epochs.
func (s *Solver) Epoch() int {
	return s.epoch
}

// Train runs epochs of max(N/BatchSize, 1) iterations each until NumEpochs
// epochs are complete. A solver resumed with LoadCheckpoint only runs the
// epochs the checkpoint had not reached; it runs none if it already reached
// NumEpochs.
//
// Accuracy is checked after the first iteration, at the end of every epoch and
// after the last iteration. A batch whose loss fails with fcnet.ErrNumerical is
// logged and skipped; any other error, or more than MaxBadBatches consecutive
// skipped batches, aborts training.
//
// When ctx is canceled training stops between iterations. In every case the
// best validation parameters seen so far are loaded into the model before
// Train returns, together with the history up to that point.
func (s *Solver) Train(ctx context.Context) (*History, error) {
	itersPerEpoch := max(s.train.Len()/s.opts.BatchSize, 1)
	numIters := max(s.opts.NumEpochs-s.epoch, 0) * itersPerEpoch

	var bar *progressbar.ProgressBar
	if s.opts.Progress {
		bar = progressbar.NewOptions(numIters,
			progressbar.OptionSetDescription("training"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
		defer func() {
			_ = bar.Finish()
		}()
	}

	err := s.loop(ctx, numIters, itersPerEpoch, bar)
	if restoreErr := s.restoreBest(); restoreErr != nil && err == nil {
		err = restoreErr
	}
	history := s.history
	return &history, err
}

func (s *Solver) loop(ctx context.Context, numIters, itersPerEpoch int, bar *progressbar.ProgressBar) error {
	badBatches := 0
	for t := 0; t < numIters; t++ {
		if err := ctx.Err(); err != nil {
			klog.Warningf("training interrupted at iteration %d / %d: %v", t, numIters, err)
			return errors.Wrap(err, "training interrupted")
		}

		loss, err := s.iterate()
		switch {
		case errors.Is(err, fcnet.ErrNumerical):
			badBatches++
			s.history.SkippedBatches++
			klog.Warningf("iteration %d: skipping batch: %v", t+1, err)
			if badBatches > s.opts.MaxBadBatches {
				return errors.Wrapf(err, "%d consecutive bad batches", badBatches)
			}
		case err != nil:
			return errors.WithMessagef(err, "iteration %d", t+1)
		default:
			badBatches = 0
			s.history.LossHistory = append(s.history.LossHistory, loss)
			if (t+1)%s.opts.PrintEvery == 0 {
				s.infof("(Iteration %d / %d) loss: %f", t+1, numIters, loss)
			}
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		epochEnd := (t+1)%itersPerEpoch == 0
		if epochEnd {
			s.epoch++
			s.opts.Rule.SetLR(s.opts.Rule.LR() * s.opts.LRDecay)
		}
		if t == 0 || t == numIters-1 || epochEnd {
			if err := s.check(); err != nil {
				return err
			}
			if bar != nil {
				bar.Describe(formatDescription(s.epoch, s.history))
			}
		}
		if epochEnd && s.opts.CheckpointPrefix != "" {
			if err := s.SaveCheckpoint(checkpointPath(s.opts.CheckpointPrefix, s.epoch)); err != nil {
				return err
			}
		}
	}
	return nil
}

// iterate runs one gradient step on a random minibatch.
func (s *Solver) iterate() (float64, error) {
	x, y, err := s.train.Sample(s.opts.BatchSize, s.rng)
	if err != nil {
		return 0, err
	}
	loss, grads, err := s.model.Loss(x, y)
	if err != nil {
		return 0, err
	}
	s.step++
	if err := optim.Step(s.opts.Rule, s.model.Params().Dict(), grads.Dict()); err != nil {
		return 0, errors.WithMessage(err, "updating parameters")
	}
	return loss, nil
}

// check records training and validation accuracy and keeps the parameters
// with the best validation accuracy.
func (s *Solver) check() error {
	trainAcc, err := s.CheckAccuracy(s.train, s.opts.NumTrainSamples)
	if err != nil {
		return errors.WithMessage(err, "training accuracy")
	}
	valAcc, err := s.CheckAccuracy(s.val, s.opts.NumValSamples)
	if err != nil {
		return errors.WithMessage(err, "validation accuracy")
	}
	s.history.TrainAccHistory = append(s.history.TrainAccHistory, trainAcc)
	s.history.ValAccHistory = append(s.history.ValAccHistory, valAcc)
	s.infof("(Epoch %d / %d) train acc: %f; val_acc: %f", s.epoch, s.opts.NumEpochs, trainAcc, valAcc)

	if s.bestParams == nil || valAcc > s.history.BestValAcc {
		s.history.BestValAcc = valAcc
		s.history.BestEpoch = s.epoch
		s.bestParams = s.model.Params().Clone()
		if st, ok := s.model.(Stateful); ok {
			s.bestStats = st.BatchNormStats()
		}
	}
	return nil
}

func (s *Solver) restoreBest() error {
	if s.bestParams == nil {
		return nil
	}
	if err := s.model.Params().CopyFrom(s.bestParams); err != nil {
		return errors.WithMessage(err, "restoring best parameters")
	}
	if st, ok := s.model.(Stateful); ok && s.bestStats != nil {
		if err := st.LoadBatchNormStats(s.bestStats); err != nil {
			return errors.WithMessage(err, "restoring best batch norm statistics")
		}
	}
	return nil
}

// CheckAccuracy returns the fraction of correctly classified samples in a
// subsample of numSamples samples of d (all of d if numSamples <= 0).
//
// The subsample is scored in batches of BatchSize, concurrently when
// Options.Parallel allows it.
func (s *Solver) CheckAccuracy(d *data.Dataset, numSamples int) (float64, error) {
	sub, err := d.Subsample(numSamples, s.rng)
	if err != nil {
		return 0, err
	}
	correct := make([]int, (sub.Len()+s.opts.BatchSize-1)/s.opts.BatchSize)
	err = parallel.Batches(sub.Len(), s.opts.BatchSize, func(b int, r parallel.Range) error {
		x, y, err := sub.Batch(r.Indices())
		if err != nil {
			return err
		}
		scores, err := s.model.Scores(x)
		if err != nil {
			return err
		}
		for j, pred := range nn.Argmax(scores) {
			if pred == y[j] {
				correct[b]++
			}
		}
		return nil
	}, s.opts.Parallel)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range correct {
		total += c
	}
	return float64(total) / float64(sub.Len()), nil
}

func (s *Solver) infof(format string, args ...any) {
	if s.opts.Verbose {
		klog.InfofDepth(1, format, args...)
		return
	}
	klog.V(2).InfofDepth(1, format, args...)
}
