// Package optim implements parameter update rules for training neural networks.
//
// This package provides:
//   - Rule interface: Base interface for all update rules
//   - SGD: Vanilla stochastic gradient descent
//   - Momentum: SGD with momentum
//   - RMSProp: Per-parameter learning rates from a running average of squared gradients
//   - Adam: Adaptive Moment Estimation
//
// Rules update parameters in place and keep any per-parameter state (velocities,
// moment estimates) keyed by parameter name, so a rule can be checkpointed with
// StateDict and restored with LoadStateDict.
//
// Example usage:
//
//	rule, _ := optim.New("adam", 1e-3)
//
//	for it := range iterations {
//	    loss, grads, err := net.Loss(xBatch, yBatch)
//	    if err != nil {
//	        return err
//	    }
//	    if err := optim.Step(rule, net.Params().Dict(), grads.Dict()); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Rule is the base interface for all update rules.
//
// All rules must implement:
//   - Update: Apply one gradient step to a single named parameter
//   - LR / SetLR: Read and change the learning rate (for decay schedules)
//   - StateDict / LoadStateDict: Export and restore per-parameter state
type Rule interface {
	// Name returns the rule name accepted by New.
	Name() string

	// Update applies one step to w in place using its gradient dw.
	//
	// name identifies the parameter; rules with state keep one state entry
	// per name. w and dw must have the same shape.
	Update(name string, w, dw *mat.Dense) error

	// LR returns the current learning rate.
	LR() float64

	// SetLR changes the learning rate.
	SetLR(lr float64)

	// StateDict returns a copy of the rule's per-parameter state.
	//
	// State keys: "{kind}.{param_name}", e.g. "velocity.W1" or "m.b2".
	StateDict() map[string]*mat.Dense

	// LoadStateDict replaces the rule's state.
	LoadStateDict(state map[string]*mat.Dense) error
}

// Rule names accepted by New.
const (
	NameSGD      = "sgd"
	NameMomentum = "sgd_momentum"
	NameRMSProp  = "rmsprop"
	NameAdam     = "adam"
)

// Names returns every rule name accepted by New.
func Names() []string {
	return []string{NameSGD, NameMomentum, NameRMSProp, NameAdam}
}

// New creates a rule by name with default hyperparameters and the given
// learning rate (the rule default if lr is 0).
func New(name string, lr float64) (Rule, error) {
	if lr < 0 {
		return nil, errors.Errorf("learning rate must be non-negative, got %g", lr)
	}
	switch strings.ToLower(name) {
	case NameSGD:
		return NewSGD(SGDConfig{LR: lr}), nil
	case NameMomentum, "momentum":
		return NewMomentum(MomentumConfig{LR: lr}), nil
	case NameRMSProp:
		return NewRMSProp(RMSPropConfig{LR: lr}), nil
	case NameAdam:
		return NewAdam(AdamConfig{LR: lr}), nil
	default:
		return nil, errors.Errorf("unknown update rule %q (known: %s)", name, strings.Join(Names(), ", "))
	}
}

// Step applies rule to every parameter in params using the gradient of the
// same name in grads. Parameters are visited in sorted name order.
//
// Returns an error if a parameter has no gradient or an update fails.
func Step(rule Rule, params, grads map[string]*mat.Dense) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dw, ok := grads[name]
		if !ok {
			return errors.Errorf("no gradient for parameter %q", name)
		}
		if err := rule.Update(name, params[name], dw); err != nil {
			return err
		}
	}
	return nil
}

// checkShapes verifies that w and dw have the same shape.
func checkShapes(name string, w, dw *mat.Dense) error {
	r, c := w.Dims()
	gr, gc := dw.Dims()
	if r != gr || c != gc {
		return errors.Errorf("parameter %q: shape (%d, %d) but gradient (%d, %d)", name, r, c, gr, gc)
	}
	return nil
}

// stateFor returns the state matrix for name, allocating zeros shaped like w.
func stateFor(states map[string]*mat.Dense, name string, w *mat.Dense) *mat.Dense {
	s, ok := states[name]
	if !ok {
		r, c := w.Dims()
		s = mat.NewDense(r, c, nil)
		states[name] = s
	}
	return s
}

// exportState copies states into dict under "{kind}.{name}".
func exportState(dict map[string]*mat.Dense, kind string, states map[string]*mat.Dense) {
	for name, s := range states {
		dict[kind+"."+name] = mat.DenseCopyOf(s)
	}
}

// importState collects the "{kind}.*" entries of dict.
func importState(dict map[string]*mat.Dense, kind string) map[string]*mat.Dense {
	states := make(map[string]*mat.Dense)
	prefix := kind + "."
	for key, s := range dict {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			states[name] = mat.DenseCopyOf(s)
		}
	}
	return states
}

// checkStateKeys rejects keys of dict that do not start with one of kinds.
func checkStateKeys(rule string, dict map[string]*mat.Dense, kinds ...string) error {
	for key := range dict {
		known := false
		for _, kind := range kinds {
			if strings.HasPrefix(key, kind+".") {
				known = true
				break
			}
		}
		if !known {
			return errors.Errorf("%s: unexpected state key %q", rule, key)
		}
	}
	return nil
}
