// Package tensor provides the dense N-D input tensors and numeric precision handling
// used by the fully-connected network.
package tensor

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// DataType represents the numeric precision values are stored and computed in.
//
// Arithmetic is always carried out in float64; a DataType other than Float64
// rounds every stored value to the nearest representable number of that type,
// which is what "casting to the model dtype" means throughout this module.
type DataType int

// Supported precisions.
const (
	Float32 DataType = iota
	Float64
	Float16
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "float16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Valid reports whether dt is one of the supported precisions.
func (dt DataType) Valid() bool {
	return dt == Float16 || dt == Float32 || dt == Float64
}

// ParseDataType converts "float16", "float32" or "float64" into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float16", "f16", "half":
		return Float16, nil
	case "float32", "f32", "":
		return Float32, nil
	case "float64", "f64", "double":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (dt DataType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(dt))
	}
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Round returns v rounded to the precision of dt.
func (dt DataType) Round(v float64) float64 {
	switch dt {
	case Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case Float32:
		return float64(float32(v))
	default:
		return v
	}
}

// RoundSlice rounds every element of data in place.
func (dt DataType) RoundSlice(data []float64) {
	if dt == Float64 {
		return
	}
	for i, v := range data {
		data[i] = dt.Round(v)
	}
}
