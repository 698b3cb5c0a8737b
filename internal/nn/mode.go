// Package nn implements the building blocks of fully-connected classifiers as
// explicit forward/backward function pairs over gonum matrices:
//   - Affine (dense) transform with row-broadcast bias
//   - ReLU activation
//   - Numerically stable softmax and softmax cross-entropy loss
//   - Inverted dropout
//   - Batch normalization with running statistics
//   - Gaussian / constant initializers and the L2 weight penalty
//
// Every forward function returns the values its backward counterpart needs
// (a cache), so a caller can chain them in any order and walk the chain in
// reverse to backpropagate. Nothing in this package keeps hidden state between
// calls except BatchNormState, which the caller owns.
package nn

// Mode selects the train or evaluation behavior of a sub-layer.
//
// Dropout masks activations and batch normalization uses batch statistics only
// in ModeTrain. The mode is passed explicitly to every forward call.
type Mode int

// Sub-layer modes.
const (
	ModeEval Mode = iota
	ModeTrain
)

// String returns "eval" or "train".
func (m Mode) String() string {
	if m == ModeTrain {
		return "train"
	}
	return "eval"
}
