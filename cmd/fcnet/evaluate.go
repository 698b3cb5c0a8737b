package main

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/born-ml/fcnet/internal/config"
	"github.com/born-ml/fcnet/internal/parallel"
	"github.com/born-ml/fcnet/internal/solver"
)

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	var (
		modelPath  = fs.String("model", "", "Model written by 'fcnet train' (required)")
		configPath = fs.String("config", "", "YAML configuration whose data section selects the dataset")
		n          = fs.Int("n", 0, "Evaluate a random subsample of n samples (0: all)")
	)
	_ = fs.Parse(args)
	if *modelPath == "" {
		return errors.New("-model is required")
	}

	net, header, err := loadModel(*modelPath)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	d, err := cfg.LoadData()
	if err != nil {
		return errors.WithMessage(err, "loading data")
	}
	if dims := net.Dims(); d.FeatureDim() != dims[0] {
		return errors.Errorf("model expects %d features, data has %d", dims[0], d.FeatureDim())
	}

	// A solver without epochs is only used for its batched, parallel scoring.
	s, err := solver.New(net, d, d, solver.Options{
		Seed:     cfg.Solver.Seed,
		Parallel: parallel.DefaultConfig(),
	})
	if err != nil {
		return err
	}
	acc, err := s.CheckAccuracy(d, *n)
	if err != nil {
		return err
	}

	evaluated := d.Len()
	if *n > 0 && *n < evaluated {
		evaluated = *n
	}
	fmt.Printf("model:     %s (%s, created %s)\n", *modelPath, header.ModelType, humanize.Time(header.CreatedAt))
	fmt.Printf("samples:   %s\n", humanize.Comma(int64(evaluated)))
	fmt.Printf("accuracy:  %.4f\n", acc)
	return nil
}
