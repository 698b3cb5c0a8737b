package data

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/fcnet/internal/tensor"
)

// BlobsConfig configures Blobs.
type BlobsConfig struct {
	N       int     // Number of samples
	Dim     int     // Features per sample
	Classes int     // Number of clusters, one per class
	Spread  float64 // Standard deviation of every cluster (default: 0.5)
	Scale   float64 // Standard deviation of the cluster centers (default: 3)
	Seed    int64
}

// Blobs generates an isotropic Gaussian cluster per class.
//
// Cluster centers are drawn from N(0, Scale²) in every dimension and samples
// from N(center, Spread²). Classes are assigned round-robin and the samples are
// shuffled, so every class has N/Classes samples (give or take one).
//
// The same configuration always produces the same dataset.
func Blobs(cfg BlobsConfig) (*Dataset, error) {
	if cfg.N <= 0 || cfg.Dim <= 0 || cfg.Classes <= 0 {
		return nil, errors.Errorf("blobs need positive N, Dim and Classes, got %d, %d, %d", cfg.N, cfg.Dim, cfg.Classes)
	}
	if cfg.Spread < 0 || cfg.Scale < 0 {
		return nil, errors.Errorf("blob spread and scale must be non-negative, got %g and %g", cfg.Spread, cfg.Scale)
	}
	if cfg.Spread == 0 {
		cfg.Spread = 0.5
	}
	if cfg.Scale == 0 {
		cfg.Scale = 3
	}

	seed := uint64(cfg.Seed)
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	centerDist := distuv.Normal{Mu: 0, Sigma: cfg.Scale, Src: rng}
	noise := distuv.Normal{Mu: 0, Sigma: cfg.Spread, Src: rng}

	centers := make([][]float64, cfg.Classes)
	for c := range centers {
		centers[c] = make([]float64, cfg.Dim)
		for j := range centers[c] {
			centers[c][j] = centerDist.Rand()
		}
	}

	values := make([]float64, cfg.N*cfg.Dim)
	labels := make([]int, cfg.N)
	for i, pos := range rng.Perm(cfg.N) {
		class := i % cfg.Classes
		labels[pos] = class
		row := values[pos*cfg.Dim : (pos+1)*cfg.Dim]
		for j := range row {
			row[j] = centers[class][j] + noise.Rand()
		}
	}

	x, err := tensor.New(tensor.Shape{cfg.N, cfg.Dim}, values)
	if err != nil {
		return nil, err
	}
	return New(x, labels, cfg.Classes)
}
