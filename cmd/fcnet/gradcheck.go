package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/fcnet/internal/fcnet"
	"github.com/born-ml/fcnet/internal/gradcheck"
	"github.com/born-ml/fcnet/internal/tensor"
)

func runGradCheck(args []string) error {
	fs := flag.NewFlagSet("gradcheck", flag.ExitOnError)
	var (
		hidden    = fs.String("hidden", "5,4", "Comma separated hidden layer widths")
		inputDim  = fs.Int("input", 6, "Input features")
		classes   = fs.Int("classes", 3, "Number of classes")
		n         = fs.Int("n", 4, "Batch size")
		reg       = fs.Float64("reg", 0.1, "L2 regularization strength")
		batchNorm = fs.Bool("batchnorm", false, "Use batch normalization")
		dropout   = fs.Float64("dropout", 0, "Dropout keep probability (0: off)")
		seed      = fs.Int64("seed", 231, "Random seed")
		step      = fs.Float64("step", gradcheck.DefaultStep, "Finite-difference step")
		threshold = fs.Float64("threshold", 1e-5, "Largest acceptable relative error")
	)
	_ = fs.Parse(args)

	dims, err := parseDims(*hidden)
	if err != nil {
		return err
	}
	dropoutSeed := *seed
	net, err := fcnet.New(fcnet.Config{
		HiddenDims:   dims,
		InputDim:     *inputDim,
		NumClasses:   *classes,
		WeightScale:  5e-2,
		Reg:          *reg,
		DropoutKeep:  *dropout,
		UseBatchNorm: *batchNorm,
		DType:        tensor.Float64,
		Seed:         *seed,
		DropoutSeed:  &dropoutSeed,
	})
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(*seed), 1))
	data := make([]float64, (*n)*(*inputDim))
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	x, err := tensor.New(tensor.Shape{*n, *inputDim}, data)
	if err != nil {
		return err
	}
	y := make([]int, *n)
	for i := range y {
		y[i] = rng.IntN(*classes)
	}

	errs, err := gradcheck.CheckModel(net, x, y, *step)
	if err != nil {
		return err
	}
	worst, worstName := 0.0, ""
	for _, name := range fcnet.SortedNames(net.StateDict()) {
		e := errs[name]
		fmt.Printf("%-8s relative error %.3e\n", name, e)
		if e > worst {
			worst, worstName = e, name
		}
	}
	if worst > *threshold {
		return errors.Errorf("%s: relative error %.3e exceeds %.0e", worstName, worst, *threshold)
	}
	fmt.Printf("ok: max relative error %.3e\n", worst)
	return nil
}

func parseDims(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.Wrapf(err, "hidden dims %q", s)
		}
		dims[i] = d
	}
	return dims, nil
}
