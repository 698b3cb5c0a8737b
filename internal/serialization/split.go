package serialization

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Checkpoint groups the three kinds of entries a training checkpoint holds.
type Checkpoint struct {
	Params    map[string]*mat.Dense // Learnable parameters (W1, b1, gamma1, ...)
	BatchNorm map[string]*mat.Dense // Running statistics (running_mean1, ...)
	Optimizer map[string]*mat.Dense // Update rule state, without OptimizerPrefix
}

// Merge flattens the checkpoint into a single state dict, prefixing optimizer
// entries with OptimizerPrefix.
func (c Checkpoint) Merge() map[string]*mat.Dense {
	dict := make(map[string]*mat.Dense, len(c.Params)+len(c.BatchNorm)+len(c.Optimizer))
	for name, m := range c.Params {
		dict[name] = m
	}
	for name, m := range c.BatchNorm {
		dict[name] = m
	}
	for name, m := range c.Optimizer {
		dict[OptimizerPrefix+name] = m
	}
	return dict
}

// Split is the inverse of Checkpoint.Merge.
func Split(dict map[string]*mat.Dense) Checkpoint {
	c := Checkpoint{
		Params:    make(map[string]*mat.Dense),
		BatchNorm: make(map[string]*mat.Dense),
		Optimizer: make(map[string]*mat.Dense),
	}
	for name, m := range dict {
		switch {
		case strings.HasPrefix(name, OptimizerPrefix):
			c.Optimizer[strings.TrimPrefix(name, OptimizerPrefix)] = m
		case strings.HasPrefix(name, RunningPrefix):
			c.BatchNorm[name] = m
		default:
			c.Params[name] = m
		}
	}
	return c
}
