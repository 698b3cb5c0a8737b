// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides fully-connected softmax classifiers with hand-derived
// backpropagation.
//
// # Overview
//
// A FullyConnectedNet with L affine layers has the architecture
//
//	{affine - [batch norm] - relu - [dropout]} x (L - 1) - affine - softmax
//
// ComputeLoss is its single entry point. Called without labels it runs every
// sub-layer in evaluation mode and returns class scores; called with labels it
// runs in training mode and also returns the softmax cross-entropy loss (plus
// L2 regularization) and the gradient of every parameter.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fcnet/nn"
//	    "github.com/born-ml/fcnet/optim"
//	    "github.com/born-ml/fcnet/tensor"
//	)
//
//	func main() {
//	    cfg := nn.DefaultConfig(100, 50)
//	    cfg.InputDim, cfg.NumClasses = 784, 10
//	    net, _ := nn.New(cfg)
//
//	    rule, _ := optim.New("adam", 1e-3)
//	    for range 100 {
//	        loss, grads, err := net.Loss(x, y)
//	        if err != nil {
//	            panic(err)
//	        }
//	        _ = optim.Step(rule, net.Params().Dict(), grads.Dict())
//	    }
//
//	    scores, _ := net.Scores(x) // inference
//	}
//
// # Sub-layers
//
// The building blocks are exported as function pairs (AffineForward /
// AffineBackward, BatchNormForward / BatchNormBackward, ...) so custom
// architectures can chain them by hand.
package nn
