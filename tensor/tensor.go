// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fcnet/internal/tensor"
)

// Type aliases for public API

// Tensor is a dense row-major N-D array of float64 values.
type Tensor = tensor.Tensor

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// DataType represents the numeric precision of a network.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Float16 = tensor.Float16
)

// New creates a Tensor that takes ownership of data.
//
// Example:
//
//	x, err := tensor.New(tensor.Shape{2, 2}, []float64{1, 2, 3, 4})
func New(shape Shape, data []float64) (*Tensor, error) {
	return tensor.New(shape, data)
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) (*Tensor, error) {
	return tensor.Zeros(shape)
}

// FromRows builds a 2-D tensor by copying rows.
//
// Example:
//
//	x, err := tensor.FromRows([][]float64{{1, 2}, {3, 4}})
func FromRows(rows [][]float64) (*Tensor, error) {
	return tensor.FromRows(rows)
}

// FromDense copies a gonum matrix into a 2-D tensor.
func FromDense(m mat.Matrix) *Tensor {
	return tensor.FromDense(m)
}

// ParseDataType converts "float16", "float32" or "float64" into a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
