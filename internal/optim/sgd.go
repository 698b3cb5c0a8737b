package optim

import (
	"gonum.org/v1/gonum/mat"
)

// SGD implements vanilla stochastic gradient descent.
//
// Update rule:
//
//	param = param - lr * gradient
type SGD struct {
	lr float64
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR float64 // Learning rate (default: 0.01)
}

// NewSGD creates a new SGD rule.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{lr: config.LR}
}

// Name implements Rule.
func (s *SGD) Name() string { return NameSGD }

// Update implements Rule.
func (s *SGD) Update(name string, w, dw *mat.Dense) error {
	if err := checkShapes(name, w, dw); err != nil {
		return err
	}
	var step mat.Dense
	step.Scale(s.lr, dw)
	w.Sub(w, &step)
	return nil
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return s.lr }

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }

// StateDict returns an empty map: SGD is stateless.
func (s *SGD) StateDict() map[string]*mat.Dense {
	return map[string]*mat.Dense{}
}

// LoadStateDict accepts only an empty state.
func (s *SGD) LoadStateDict(state map[string]*mat.Dense) error {
	return checkStateKeys(NameSGD, state)
}

// Momentum implements stochastic gradient descent with momentum.
//
// Update rule:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Momentum helps accelerate SGD in relevant directions and dampens oscillations.
//
// Example:
//
//	rule := optim.NewMomentum(optim.MomentumConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type Momentum struct {
	lr         float64
	momentum   float64
	velocities map[string]*mat.Dense
}

// MomentumConfig holds configuration for Momentum.
type MomentumConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.9, range: [0, 1))
}

// NewMomentum creates a new SGD with momentum rule.
func NewMomentum(config MomentumConfig) *Momentum {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum == 0 {
		config.Momentum = 0.9
	}
	return &Momentum{
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[string]*mat.Dense),
	}
}

// Name implements Rule.
func (m *Momentum) Name() string { return NameMomentum }

// Update implements Rule.
func (m *Momentum) Update(name string, w, dw *mat.Dense) error {
	if err := checkShapes(name, w, dw); err != nil {
		return err
	}
	v := stateFor(m.velocities, name, w)
	if err := checkShapes(name, w, v); err != nil {
		return err
	}

	// velocity = momentum * velocity + grad
	v.Scale(m.momentum, v)
	v.Add(v, dw)

	// param -= lr * velocity
	var step mat.Dense
	step.Scale(m.lr, v)
	w.Sub(w, &step)
	return nil
}

// LR returns the current learning rate.
func (m *Momentum) LR() float64 { return m.lr }

// SetLR updates the learning rate.
func (m *Momentum) SetLR(lr float64) { m.lr = lr }

// StateDict exports the velocity buffers.
//
// State keys: "velocity.{param_name}" -> velocity matrix.
func (m *Momentum) StateDict() map[string]*mat.Dense {
	dict := make(map[string]*mat.Dense, len(m.velocities))
	exportState(dict, "velocity", m.velocities)
	return dict
}

// LoadStateDict restores velocity buffers. Parameters without a velocity start
// from zero on their next update.
func (m *Momentum) LoadStateDict(state map[string]*mat.Dense) error {
	if err := checkStateKeys(NameMomentum, state, "velocity"); err != nil {
		return err
	}
	m.velocities = importState(state, "velocity")
	return nil
}
