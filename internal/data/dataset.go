// Package data provides labeled datasets for training classifiers: an in-memory
// Dataset with batching and splitting, an IDX (MNIST) reader and a synthetic
// Gaussian-blob generator.
package data

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/born-ml/fcnet/internal/tensor"
)

// Dataset is a set of samples X with integer class labels Y.
//
// X has shape (N, d_1, ..., d_k); sample i is X[i] and its label Y[i] lies in
// [0, NumClasses).
type Dataset struct {
	X          *tensor.Tensor
	Y          []int
	NumClasses int
}

// New checks that x and y describe the same samples and that every label is a
// valid class index.
func New(x *tensor.Tensor, y []int, numClasses int) (*Dataset, error) {
	if x == nil {
		return nil, errors.New("nil samples")
	}
	if len(x.Shape()) < 2 {
		return nil, errors.Errorf("samples must have a batch axis and a feature axis, got shape %v", x.Shape())
	}
	if x.Len() != len(y) {
		return nil, errors.Errorf("%d samples but %d labels", x.Len(), len(y))
	}
	if numClasses <= 0 {
		return nil, errors.Errorf("number of classes must be positive, got %d", numClasses)
	}
	for i, label := range y {
		if label < 0 || label >= numClasses {
			return nil, errors.Errorf("label %d of sample %d outside [0, %d)", label, i, numClasses)
		}
	}
	return &Dataset{X: x, Y: y, NumClasses: numClasses}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// FeatureDim returns the number of features of one flattened sample.
func (d *Dataset) FeatureDim() int {
	return d.X.Shape().FeatureSize()
}

// Batch gathers the samples at idx.
func (d *Dataset) Batch(idx []int) (*tensor.Tensor, []int, error) {
	x, err := d.X.Rows(idx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "gathering batch")
	}
	y := make([]int, len(idx))
	for i, j := range idx {
		y[i] = d.Y[j]
	}
	return x, y, nil
}

// Sample draws size indices uniformly with replacement and returns that batch.
func (d *Dataset) Sample(size int, rng *rand.Rand) (*tensor.Tensor, []int, error) {
	if size <= 0 {
		return nil, nil, errors.Errorf("batch size must be positive, got %d", size)
	}
	idx := make([]int, size)
	for i := range idx {
		idx[i] = rng.IntN(d.Len())
	}
	return d.Batch(idx)
}

// Subsample returns n samples drawn without replacement, or d itself when it
// has at most n samples.
func (d *Dataset) Subsample(n int, rng *rand.Rand) (*Dataset, error) {
	if n <= 0 || n >= d.Len() {
		return d, nil
	}
	return d.subset(rng.Perm(d.Len())[:n])
}

// Split shuffles the samples and returns a training set and a validation set
// holding valFrac of them.
//
// Both sets are non-empty: valFrac must be in (0, 1) and the dataset must have
// at least two samples.
func (d *Dataset) Split(valFrac float64, rng *rand.Rand) (train, val *Dataset, err error) {
	if valFrac <= 0 || valFrac >= 1 {
		return nil, nil, errors.Errorf("validation fraction must be in (0, 1), got %g", valFrac)
	}
	n := d.Len()
	if n < 2 {
		return nil, nil, errors.Errorf("cannot split %d samples", n)
	}
	numVal := max(1, min(int(float64(n)*valFrac), n-1))

	perm := rng.Perm(n)
	if val, err = d.subset(perm[:numVal]); err != nil {
		return nil, nil, err
	}
	if train, err = d.subset(perm[numVal:]); err != nil {
		return nil, nil, err
	}
	return train, val, nil
}

func (d *Dataset) subset(idx []int) (*Dataset, error) {
	x, y, err := d.Batch(idx)
	if err != nil {
		return nil, err
	}
	return &Dataset{X: x, Y: y, NumClasses: d.NumClasses}, nil
}
