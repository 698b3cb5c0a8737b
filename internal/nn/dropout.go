package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// DropoutConfig configures an inverted dropout sub-layer.
type DropoutConfig struct {
	// Keep is the probability of keeping each activation, in (0, 1].
	Keep float64

	// Seed, if set, makes every training-mode forward call draw the same mask
	// for the same input shape. Used for gradient checking.
	Seed *int64
}

// Enabled reports whether the configuration drops anything.
func (c DropoutConfig) Enabled() bool {
	return c.Keep > 0 && c.Keep < 1
}

// DropoutCache holds the scaled mask of one training-mode forward call.
// A nil mask means the forward call was a passthrough.
type DropoutCache struct {
	mask *mat.Dense
}

// DropoutForward applies inverted dropout.
//
// In ModeTrain every activation is kept with probability cfg.Keep and scaled by
// 1/cfg.Keep, so the expected activation is unchanged and ModeEval can be a
// plain passthrough.
//
// Parameters:
//   - x: Input activations
//   - cfg: Keep probability and optional seed
//   - mode: ModeTrain masks, ModeEval returns x unchanged
//   - rng: Random source used when cfg.Seed is nil; nil falls back to the global source
//
// Returns the output and the cache for DropoutBackward.
func DropoutForward(x *mat.Dense, cfg DropoutConfig, mode Mode, rng *rand.Rand) (*mat.Dense, *DropoutCache) {
	if mode != ModeTrain || !cfg.Enabled() {
		return x, &DropoutCache{}
	}
	if cfg.Seed != nil {
		seed := uint64(*cfg.Seed)
		rng = rand.New(rand.NewPCG(seed, seed))
	}
	uniform := rand.Float64
	if rng != nil {
		uniform = rng.Float64
	}

	r, c := x.Dims()
	mask := mat.NewDense(r, c, nil)
	scale := 1 / cfg.Keep
	for i := 0; i < r; i++ {
		row := mask.RawRowView(i)
		for j := range row {
			if uniform() < cfg.Keep {
				row[j] = scale
			}
		}
	}

	var out mat.Dense
	out.MulElem(x, mask)
	return &out, &DropoutCache{mask: mask}
}

// DropoutBackward propagates dout through the mask recorded by DropoutForward.
func DropoutBackward(dout *mat.Dense, cache *DropoutCache) *mat.Dense {
	if cache == nil || cache.mask == nil {
		return dout
	}
	var dx mat.Dense
	dx.MulElem(dout, cache.mask)
	return &dx
}
