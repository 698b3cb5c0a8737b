// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides update rules for training neural networks.
//
// # Overview
//
// This package contains:
//   - SGD: Vanilla stochastic gradient descent
//   - Momentum: SGD with momentum
//   - RMSProp: Per-parameter step sizes from a running average of squared gradients
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Rule interface for custom update rules
//
// Rules work on state dicts: maps from parameter name to *mat.Dense. Any
// per-parameter state is keyed by the same names, so it can be saved next to
// the model parameters.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fcnet/nn"
//	    "github.com/born-ml/fcnet/optim"
//	)
//
//	func main() {
//	    net, _ := nn.New(cfg)
//	    rule, _ := optim.New("sgd_momentum", 1e-2)
//
//	    for epoch := range 10 {
//	        loss, grads, _ := net.Loss(x, y)
//	        _ = optim.Step(rule, net.Params().Dict(), grads.Dict())
//	        rule.SetLR(rule.LR() * 0.95)
//	    }
//	}
package optim
