package optim

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Adam combines ideas from RMSprop and momentum:
//   - Maintains exponential moving averages of gradients (first moment)
//   - Maintains exponential moving averages of squared gradients (second moment)
//   - Applies bias correction to compensate for initialization at zero
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// The timestep t is counted per parameter, so parameters that join late get
// their own bias correction.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	rule := optim.NewAdam(optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float64{0.9, 0.999},
//	    Eps:   1e-8,
//	})
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	m     map[string]*mat.Dense // First moment estimates
	v     map[string]*mat.Dense // Second moment estimates
	t     map[string]int        // Timestep for bias correction
}

// AdamConfig holds configuration for Adam.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam rule.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[string]*mat.Dense),
		v:     make(map[string]*mat.Dense),
		t:     make(map[string]int),
	}
}

// Name implements Rule.
func (a *Adam) Name() string { return NameAdam }

// Update implements Rule.
func (a *Adam) Update(name string, w, dw *mat.Dense) error {
	if err := checkShapes(name, w, dw); err != nil {
		return err
	}
	m := stateFor(a.m, name, w)
	v := stateFor(a.v, name, w)
	if err := checkShapes(name, w, m); err != nil {
		return err
	}
	if err := checkShapes(name, w, v); err != nil {
		return err
	}

	a.t[name]++
	t := float64(a.t[name])
	biasCorrection1 := 1 - math.Pow(a.beta1, t)
	biasCorrection2 := 1 - math.Pow(a.beta2, t)

	rows, _ := w.Dims()
	for i := 0; i < rows; i++ {
		wRow := w.RawRowView(i)
		gRow := dw.RawRowView(i)
		mRow := m.RawRowView(i)
		vRow := v.RawRowView(i)
		for j, g := range gRow {
			mRow[j] = a.beta1*mRow[j] + (1-a.beta1)*g
			vRow[j] = a.beta2*vRow[j] + (1-a.beta2)*g*g
			mHat := mRow[j] / biasCorrection1
			vHat := vRow[j] / biasCorrection2
			wRow[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
	return nil
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// StateDict exports the moment estimates and timesteps.
//
// State keys: "m.{param_name}", "v.{param_name}" and "t.{param_name}" (1x1).
func (a *Adam) StateDict() map[string]*mat.Dense {
	dict := make(map[string]*mat.Dense, 3*len(a.m))
	exportState(dict, "m", a.m)
	exportState(dict, "v", a.v)
	for name, t := range a.t {
		dict["t."+name] = mat.NewDense(1, 1, []float64{float64(t)})
	}
	return dict
}

// LoadStateDict restores moment estimates and timesteps.
//
// Every parameter must have all three entries.
func (a *Adam) LoadStateDict(state map[string]*mat.Dense) error {
	if err := checkStateKeys(NameAdam, state, "m", "v", "t"); err != nil {
		return err
	}
	m := importState(state, "m")
	v := importState(state, "v")
	steps := importState(state, "t")

	t := make(map[string]int, len(steps))
	for name, s := range steps {
		if r, c := s.Dims(); r != 1 || c != 1 {
			return errors.Errorf("adam: timestep of %q must be 1x1", name)
		}
		t[name] = int(s.At(0, 0))
	}
	if len(m) != len(t) || len(v) != len(t) {
		return errors.Errorf("adam: got %d first moments, %d second moments and %d timesteps", len(m), len(v), len(t))
	}
	for name := range t {
		if m[name] == nil || v[name] == nil {
			return errors.Errorf("adam: incomplete state for %q", name)
		}
	}

	a.m, a.v, a.t = m, v, t
	return nil
}
