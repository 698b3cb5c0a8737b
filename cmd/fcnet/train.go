package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/fcnet/internal/config"
	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/optim"
	"github.com/born-ml/fcnet/internal/parallel"
	"github.com/born-ml/fcnet/internal/report"
	"github.com/born-ml/fcnet/internal/serialization"
	"github.com/born-ml/fcnet/internal/solver"
)

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "YAML training configuration (default: built-in blobs run)")
		epochs     = fs.Int("epochs", 0, "Override solver.num_epochs")
		lr         = fs.Float64("lr", 0, "Override solver.learning_rate")
		batch      = fs.Int("batch", 0, "Override solver.batch_size")
		rule       = fs.String("rule", "", "Override solver.update_rule")
		checkpoint = fs.String("checkpoint", "", "Override output.checkpoint_prefix")
		modelPath  = fs.String("model", "", "Override output.model")
		plotPath   = fs.String("plot", "", "Override output.plot")
		resume     = fs.String("resume", "", "Resume from a checkpoint written by a previous run")
		progress   = fs.Bool("progress", false, "Draw a progress bar")
		verbose    = fs.Bool("verbose", false, "Log training progress")
		dumpConfig = fs.Bool("dump-config", false, "Print the effective configuration and exit")
	)
	_ = fs.Parse(args)

	cfg := config.Default()
	if *configPath != "" {
		cfg = must.M1(config.Load(*configPath))
	}
	cfg.ApplyOverrides(config.Overrides{
		NumEpochs:        *epochs,
		LearningRate:     *lr,
		BatchSize:        *batch,
		UpdateRule:       *rule,
		CheckpointPrefix: *checkpoint,
		Model:            *modelPath,
		Plot:             *plotPath,
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *dumpConfig {
		_, err := os.Stdout.Write(must.M1(cfg.YAML()))
		return err
	}

	all, err := cfg.LoadData()
	if err != nil {
		return errors.WithMessage(err, "loading data")
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.Solver.Seed), 0x5eed))
	train, val, err := all.Split(cfg.Data.ValFraction, rng)
	if err != nil {
		return err
	}
	klog.Infof("data: %s training and %s validation samples, %d features, %d classes",
		humanize.Comma(int64(train.Len())), humanize.Comma(int64(val.Len())), train.FeatureDim(), all.NumClasses)

	net, err := fcnet.New(cfg.NetConfig(train.FeatureDim(), all.NumClasses))
	if err != nil {
		return err
	}
	klog.Infof("model: dims %v, %s parameters, %s", net.Dims(), humanize.Comma(int64(net.NumParams())), cfg.Model.DType)

	updateRule, err := optim.New(cfg.Solver.UpdateRule, cfg.Solver.LearningRate)
	if err != nil {
		return err
	}
	s, err := solver.New(net, train, val, solver.Options{
		Rule:             updateRule,
		LRDecay:          cfg.Solver.LRDecay,
		BatchSize:        cfg.Solver.BatchSize,
		NumEpochs:        cfg.Solver.NumEpochs,
		NumTrainSamples:  cfg.Solver.NumTrainSamples,
		NumValSamples:    cfg.Solver.NumValSamples,
		PrintEvery:       cfg.Solver.PrintEvery,
		Verbose:          *verbose,
		Progress:         *progress,
		Seed:             cfg.Solver.Seed,
		CheckpointPrefix: cfg.Output.CheckpointPrefix,
		CheckpointDType:  cfg.Output.CheckpointDType,
		Parallel:         parallel.DefaultConfig(),
	})
	if err != nil {
		return err
	}
	if *resume != "" {
		if err := s.LoadCheckpoint(*resume); err != nil {
			return err
		}
		klog.Infof("resumed from %s at epoch %d", *resume, s.Epoch())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	history, err := s.Train(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		klog.Warningf("training stopped early, saving the best parameters so far")
	}
	klog.Infof("best validation accuracy %.4f at epoch %d, %d batches skipped",
		history.BestValAcc, history.BestEpoch, history.SkippedBatches)

	return writeOutputs(cfg, net, history)
}

func writeOutputs(cfg *config.TrainConfig, net *fcnet.FullyConnectedNet, history *solver.History) error {
	out := cfg.Output
	if out.Model != "" {
		extra := map[string]string{
			"best_val_acc": strconv.FormatFloat(history.BestValAcc, 'f', 4, 64),
			"best_epoch":   strconv.Itoa(history.BestEpoch),
			"update_rule":  cfg.Solver.UpdateRule,
		}
		if err := saveModel(out.Model, net, out.CheckpointDType, extra); err != nil {
			return errors.WithMessagef(err, "saving model %s", out.Model)
		}
		logFileSize("model", out.Model)
	}
	if out.SafeTensors != "" {
		if err := serialization.ExportSafeTensors(out.SafeTensors, net.StateDict(), out.CheckpointDType, nil); err != nil {
			return errors.WithMessagef(err, "exporting %s", out.SafeTensors)
		}
		logFileSize("safetensors", out.SafeTensors)
	}
	if out.Plot != "" {
		if err := report.SaveCurves(history, out.Plot); err != nil {
			return err
		}
		klog.Infof("plot: %s", out.Plot)
	}
	return nil
}

func logFileSize(kind, path string) {
	info, err := os.Stat(path)
	if err != nil {
		klog.Warningf("%s: %v", kind, err)
		return
	}
	klog.Infof("%s: %s (%s)", kind, path, humanize.Bytes(uint64(info.Size())))
}
