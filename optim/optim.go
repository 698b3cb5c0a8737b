// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/optim"
)

// Rule is the interface for all update rules.
type Rule = optim.Rule

// Rule names accepted by New.
const (
	NameSGD      = optim.NameSGD
	NameMomentum = optim.NameMomentum
	NameRMSProp  = optim.NameRMSProp
	NameAdam     = optim.NameAdam
)

// New creates a rule by name with default hyperparameters. An lr of 0 keeps
// the rule's default learning rate.
//
// Example:
//
//	rule, err := optim.New("adam", 1e-3)
func New(name string, lr float64) (Rule, error) {
	return optim.New(name, lr)
}

// Names returns every rule name accepted by New.
func Names() []string {
	return optim.Names()
}

// Step applies rule to every parameter in params using the gradient of the
// same name in grads.
func Step(rule Rule, params, grads map[string]*mat.Dense) error {
	return optim.Step(rule, params, grads)
}

// SGD (Stochastic Gradient Descent)

// SGD represents vanilla stochastic gradient descent.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD rule.
func NewSGD(config SGDConfig) *SGD {
	return optim.NewSGD(config)
}

// Momentum represents SGD with momentum.
type Momentum = optim.Momentum

// MomentumConfig contains configuration for Momentum.
type MomentumConfig = optim.MomentumConfig

// NewMomentum creates a new SGD with momentum rule.
//
// Example:
//
//	rule := optim.NewMomentum(optim.MomentumConfig{LR: 0.01, Momentum: 0.9})
func NewMomentum(config MomentumConfig) *Momentum {
	return optim.NewMomentum(config)
}

// RMSProp

// RMSProp represents the RMSProp rule.
type RMSProp = optim.RMSProp

// RMSPropConfig contains configuration for RMSProp.
type RMSPropConfig = optim.RMSPropConfig

// NewRMSProp creates a new RMSProp rule.
func NewRMSProp(config RMSPropConfig) *RMSProp {
	return optim.NewRMSProp(config)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam rule.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam rule.
//
// Example:
//
//	rule := optim.NewAdam(optim.AdamConfig{LR: 0.001, Betas: [2]float64{0.9, 0.999}, Eps: 1e-8})
func NewAdam(config AdamConfig) *Adam {
	return optim.NewAdam(config)
}
