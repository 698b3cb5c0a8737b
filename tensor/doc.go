// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the input tensors of fcnet networks.
//
// # Overview
//
// A Tensor is a dense row-major N-D array of float64 values whose first axis
// is the batch axis. Networks flatten every sample into a row of features, so
// a batch of 28x28 images has shape (N, 28, 28) and enters the first layer as
// an (N, 784) matrix.
//
// # Basic Usage
//
//	import "github.com/born-ml/fcnet/tensor"
//
//	func main() {
//	    x, err := tensor.New(tensor.Shape{2, 3, 4}, data) // 2 samples of 3x4 features
//	    if err != nil {
//	        panic(err)
//	    }
//	    m, _ := x.Flatten() // *mat.Dense, 2x12
//	}
//
// # Precision
//
// DataType selects the precision a network emulates: values are rounded to
// float16, float32 or float64 while arithmetic is carried out in float64.
package tensor
