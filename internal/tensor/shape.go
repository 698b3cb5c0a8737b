package tensor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Shape lists the dimensions of a tensor. Batches of samples put the batch
// axis first: (N, d1, ..., dk).
type Shape []int

// NumElements returns the product of the dimensions, 1 for a scalar shape.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Validate rejects zero and negative dimensions.
func (s Shape) Validate() error {
	if i := slices.IndexFunc(s, func(d int) bool { return d <= 0 }); i >= 0 {
		return fmt.Errorf("dimension %d of shape %v must be positive", i, s)
	}
	return nil
}

// Equal reports whether s and other have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy of s.
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

// FeatureSize is d1*...*dk, the width of the row one sample flattens into.
// It is 0 when there is no feature axis.
func (s Shape) FeatureSize() int {
	if len(s) < 2 {
		return 0
	}
	return s[1:].NumElements()
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
