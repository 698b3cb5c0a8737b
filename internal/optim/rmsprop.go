package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RMSProp scales every parameter's step by a running average of its squared
// gradients.
//
// Update rule:
//
//	cache = decay * cache + (1 - decay) * gradient²
//	param = param - lr * gradient / (sqrt(cache) + eps)
type RMSProp struct {
	lr     float64
	decay  float64
	eps    float64
	caches map[string]*mat.Dense
}

// RMSPropConfig holds configuration for RMSProp.
type RMSPropConfig struct {
	LR        float64 // Learning rate (default: 0.01)
	DecayRate float64 // Decay of the squared gradient average (default: 0.99)
	Eps       float64 // Term for numerical stability (default: 1e-8)
}

// NewRMSProp creates a new RMSProp rule.
func NewRMSProp(config RMSPropConfig) *RMSProp {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.DecayRate == 0 {
		config.DecayRate = 0.99
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &RMSProp{
		lr:     config.LR,
		decay:  config.DecayRate,
		eps:    config.Eps,
		caches: make(map[string]*mat.Dense),
	}
}

// Name implements Rule.
func (r *RMSProp) Name() string { return NameRMSProp }

// Update implements Rule.
func (r *RMSProp) Update(name string, w, dw *mat.Dense) error {
	if err := checkShapes(name, w, dw); err != nil {
		return err
	}
	cache := stateFor(r.caches, name, w)
	if err := checkShapes(name, w, cache); err != nil {
		return err
	}

	rows, _ := w.Dims()
	for i := 0; i < rows; i++ {
		wRow := w.RawRowView(i)
		gRow := dw.RawRowView(i)
		cRow := cache.RawRowView(i)
		for j, g := range gRow {
			cRow[j] = r.decay*cRow[j] + (1-r.decay)*g*g
			wRow[j] -= r.lr * g / (math.Sqrt(cRow[j]) + r.eps)
		}
	}
	return nil
}

// LR returns the current learning rate.
func (r *RMSProp) LR() float64 { return r.lr }

// SetLR updates the learning rate.
func (r *RMSProp) SetLR(lr float64) { r.lr = lr }

// StateDict exports the squared gradient averages.
//
// State keys: "cache.{param_name}".
func (r *RMSProp) StateDict() map[string]*mat.Dense {
	dict := make(map[string]*mat.Dense, len(r.caches))
	exportState(dict, "cache", r.caches)
	return dict
}

// LoadStateDict restores the squared gradient averages.
func (r *RMSProp) LoadStateDict(state map[string]*mat.Dense) error {
	if err := checkStateKeys(NameRMSProp, state, "cache"); err != nil {
		return err
	}
	r.caches = importState(state, "cache")
	return nil
}
