package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/optim"
)

func scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// TestSGD_SimpleUpdate tests a single SGD step.
func TestSGD_SimpleUpdate(t *testing.T) {
	w := scalar(2.0)
	rule := optim.NewSGD(optim.SGDConfig{LR: 0.1})

	require.NoError(t, rule.Update("x", w, scalar(1.0)))

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, w.At(0, 0), 1e-12)
	assert.Empty(t, rule.StateDict())
}

// TestMomentum_Accumulates tests that velocity carries over between steps.
func TestMomentum_Accumulates(t *testing.T) {
	w := scalar(1.0)
	rule := optim.NewMomentum(optim.MomentumConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 1, x = 1 - 0.1*1 = 0.9
	require.NoError(t, rule.Update("x", w, scalar(1.0)))
	assert.InDelta(t, 0.9, w.At(0, 0), 1e-12)

	// Step 2: v = 0.9*1 + 1 = 1.9, x = 0.9 - 0.19 = 0.71
	require.NoError(t, rule.Update("x", w, scalar(1.0)))
	assert.InDelta(t, 0.71, w.At(0, 0), 1e-12)

	// Velocities are per parameter.
	other := scalar(1.0)
	require.NoError(t, rule.Update("y", other, scalar(1.0)))
	assert.InDelta(t, 0.9, other.At(0, 0), 1e-12)
}

// TestRMSProp_FirstStep tests the first RMSProp step from a zero cache.
func TestRMSProp_FirstStep(t *testing.T) {
	w := mat.NewDense(1, 2, []float64{1, 1})
	rule := optim.NewRMSProp(optim.RMSPropConfig{LR: 0.01})

	require.NoError(t, rule.Update("w", w, mat.NewDense(1, 2, []float64{2, -0.5})))

	// cache = 0.01 * g², step = lr * g / (0.1*|g|) = ±0.1
	assert.InDelta(t, 0.9, w.At(0, 0), 1e-6)
	assert.InDelta(t, 1.1, w.At(0, 1), 1e-6)
}

// TestAdam_FirstStepIsLR tests that the first Adam step has magnitude lr.
func TestAdam_FirstStepIsLR(t *testing.T) {
	w := mat.NewDense(1, 3, []float64{0, 0, 0})
	rule := optim.NewAdam(optim.AdamConfig{LR: 0.05})

	require.NoError(t, rule.Update("w", w, mat.NewDense(1, 3, []float64{3, -0.2, 100})))

	// Bias correction makes m_hat = g and v_hat = g², so the step is lr*sign(g).
	assert.InDelta(t, -0.05, w.At(0, 0), 1e-8)
	assert.InDelta(t, 0.05, w.At(0, 1), 1e-8)
	assert.InDelta(t, -0.05, w.At(0, 2), 1e-8)
}

// TestAdam_Minimizes tests convergence on f(x) = (x - 3)².
func TestAdam_Minimizes(t *testing.T) {
	w := scalar(0)
	rule := optim.NewAdam(optim.AdamConfig{LR: 0.1})
	for i := 0; i < 2000; i++ {
		require.NoError(t, rule.Update("x", w, scalar(2*(w.At(0, 0)-3))))
	}
	assert.InDelta(t, 3, w.At(0, 0), 1e-2)
}

func TestUpdate_ShapeMismatch(t *testing.T) {
	rules := []optim.Rule{
		optim.NewSGD(optim.SGDConfig{}),
		optim.NewMomentum(optim.MomentumConfig{}),
		optim.NewRMSProp(optim.RMSPropConfig{}),
		optim.NewAdam(optim.AdamConfig{}),
	}
	for _, rule := range rules {
		t.Run(rule.Name(), func(t *testing.T) {
			err := rule.Update("w", mat.NewDense(2, 2, nil), mat.NewDense(1, 2, nil))
			assert.Error(t, err)
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range optim.Names() {
		rule, err := optim.New(name, 0.5)
		require.NoError(t, err, name)
		assert.Equal(t, name, rule.Name())
		assert.Equal(t, 0.5, rule.LR())

		rule.SetLR(0.25)
		assert.Equal(t, 0.25, rule.LR())
	}

	rule, err := optim.New("Adam", 0)
	require.NoError(t, err)
	assert.Equal(t, 1e-3, rule.LR(), "default learning rate")

	_, err = optim.New("lbfgs", 0.1)
	assert.Error(t, err)
	_, err = optim.New(optim.NameSGD, -1)
	assert.Error(t, err)
}

func TestStep(t *testing.T) {
	params := map[string]*mat.Dense{"W1": scalar(1), "b1": scalar(2)}
	grads := map[string]*mat.Dense{"W1": scalar(10), "b1": scalar(-10)}

	require.NoError(t, optim.Step(optim.NewSGD(optim.SGDConfig{LR: 0.1}), params, grads))
	assert.InDelta(t, 0.0, params["W1"].At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, params["b1"].At(0, 0), 1e-12)

	delete(grads, "b1")
	assert.Error(t, optim.Step(optim.NewSGD(optim.SGDConfig{}), params, grads))
}

func TestStateDict_RoundTrip(t *testing.T) {
	newRules := map[string]func() optim.Rule{
		"momentum": func() optim.Rule { return optim.NewMomentum(optim.MomentumConfig{LR: 0.1}) },
		"rmsprop":  func() optim.Rule { return optim.NewRMSProp(optim.RMSPropConfig{LR: 0.1}) },
		"adam":     func() optim.Rule { return optim.NewAdam(optim.AdamConfig{LR: 0.1}) },
	}
	for name, newRule := range newRules {
		t.Run(name, func(t *testing.T) {
			grad := mat.NewDense(1, 2, []float64{0.5, -1})

			// Reference: three uninterrupted steps.
			ref := newRule()
			wRef := mat.NewDense(1, 2, []float64{1, 1})
			for i := 0; i < 3; i++ {
				require.NoError(t, ref.Update("w", wRef, grad))
			}

			// Two steps, state moved to a fresh rule, third step.
			first := newRule()
			w := mat.NewDense(1, 2, []float64{1, 1})
			for i := 0; i < 2; i++ {
				require.NoError(t, first.Update("w", w, grad))
			}
			second := newRule()
			require.NoError(t, second.LoadStateDict(first.StateDict()))
			require.NoError(t, second.Update("w", w, grad))

			assert.True(t, mat.EqualApprox(wRef, w, 1e-12))
		})
	}
}

func TestLoadStateDict_RejectsForeignKeys(t *testing.T) {
	state := map[string]*mat.Dense{"velocity.w": scalar(1)}
	assert.Error(t, optim.NewAdam(optim.AdamConfig{}).LoadStateDict(state))
	assert.Error(t, optim.NewSGD(optim.SGDConfig{}).LoadStateDict(state))
	assert.NoError(t, optim.NewMomentum(optim.MomentumConfig{}).LoadStateDict(state))

	incomplete := map[string]*mat.Dense{"m.w": scalar(0), "t.w": scalar(1)}
	assert.Error(t, optim.NewAdam(optim.AdamConfig{}).LoadStateDict(incomplete))
}

func TestAdam_TimestepIsPerParameter(t *testing.T) {
	rule := optim.NewAdam(optim.AdamConfig{LR: 0.1})
	a, b := scalar(0), scalar(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, rule.Update("a", a, scalar(1)))
	}
	require.NoError(t, rule.Update("b", b, scalar(1)))

	assert.InDelta(t, -0.1, b.At(0, 0), 1e-8, "late parameter gets a full first step")
	assert.Equal(t, 5.0, rule.StateDict()["t.a"].At(0, 0))
	assert.False(t, math.IsNaN(a.At(0, 0)))
}
