package fcnet

import "github.com/pkg/errors"

// Sentinel errors returned (wrapped) by the network.
//
// Match them with errors.Is; the wrapped message carries the offending values
// and, printed with %+v, the stack trace of the call that detected them.
var (
	// ErrInvalidArgument reports a precondition violation: a bad configuration,
	// an input whose shape does not match the network, an out-of-range label or
	// an inconsistent state dict.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNumerical reports a non-finite score or loss.
	ErrNumerical = errors.New("numerical error")
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
