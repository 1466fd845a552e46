// Package quantization provides vector quantization for memory-efficient storage.
package quantization

import (
	"errors"
	"fmt"
)

// ErrUnsupportedBits is returned when no quantizer exists for the requested
// precision.
var ErrUnsupportedBits = errors.New("unsupported precision bits")

// Quantizer defines the interface for vector quantization methods.
type Quantizer interface {
	// Encode quantizes a float32 vector to its compressed representation.
	Encode(v []float32) []byte

	// Decode reconstructs a float32 vector from its compressed representation.
	// If dst has sufficient capacity it is reused, otherwise a new slice is
	// allocated. The decoded vector is returned.
	Decode(code []byte, dst []float32) []float32

	// Train calibrates the quantizer on a set of vectors.
	// A no-op for quantizers that need no calibration.
	Train(vectors [][]float32) error

	// Bits returns the per-dimension precision in bits (16 or 8).
	Bits() int

	// CodeSize returns the encoded size in bytes for a vector of the given
	// dimension.
	CodeSize(dimension int) int

	// MarshalBinary serializes the quantizer parameters for persistence.
	MarshalBinary() ([]byte, error)
}

// ForBits returns an untrained quantizer for the given precision.
func ForBits(bits int) (Quantizer, error) {
	switch bits {
	case 16:
		return NewFloat16Quantizer(), nil
	case 8:
		return NewScalarQuantizer(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBits, bits)
	}
}

// Unmarshal reconstructs a quantizer from its precision and serialized
// parameters, as stored in a snapshot header.
func Unmarshal(bits int, params []byte) (Quantizer, error) {
	q, err := ForBits(bits)
	if err != nil {
		return nil, err
	}
	type unmarshaler interface {
		UnmarshalBinary(data []byte) error
	}
	if u, ok := q.(unmarshaler); ok && len(params) > 0 {
		if err := u.UnmarshalBinary(params); err != nil {
			return nil, err
		}
	}
	return q, nil
}
