package quantization

import (
	"encoding/binary"
	"errors"
	"math"
)

// ScalarQuantizer implements 8-bit scalar quantization.
// It compresses float32 vectors (4 bytes/dim) to uint8 (1 byte/dim) for 4x
// memory savings. Each dimension is linearly mapped from the trained global
// [min, max] range to [0, 255].
type ScalarQuantizer struct {
	min float32
	max float32
}

// NewScalarQuantizer creates a new 8-bit scalar quantizer.
func NewScalarQuantizer() *ScalarQuantizer {
	return &ScalarQuantizer{min: 0, max: 1}
}

// Train calibrates the quantizer by finding min/max values across all vectors.
func (sq *ScalarQuantizer) Train(vectors [][]float32) error {
	if len(vectors) == 0 {
		return errors.New("no vectors provided for training")
	}

	sq.min = math.MaxFloat32
	sq.max = -math.MaxFloat32

	for _, vec := range vectors {
		for _, val := range vec {
			if val < sq.min {
				sq.min = val
			}
			if val > sq.max {
				sq.max = val
			}
		}
	}

	// Degenerate range: all values identical.
	if sq.min == sq.max {
		sq.max = sq.min + 1
	}

	return nil
}

// Encode quantizes a float32 vector to 8-bit representation.
func (sq *ScalarQuantizer) Encode(v []float32) []byte {
	code := make([]byte, len(v))
	scale := 255.0 / (sq.max - sq.min)

	for i, val := range v {
		if val < sq.min {
			val = sq.min
		} else if val > sq.max {
			val = sq.max
		}
		code[i] = uint8((val-sq.min)*scale + 0.5)
	}

	return code
}

// Decode reconstructs a float32 vector from 8-bit representation.
func (sq *ScalarQuantizer) Decode(code []byte, dst []float32) []float32 {
	if cap(dst) < len(code) {
		dst = make([]float32, len(code))
	}
	dst = dst[:len(code)]
	scale := (sq.max - sq.min) / 255.0

	for i, val := range code {
		dst[i] = float32(val)*scale + sq.min
	}

	return dst
}

// Bits returns 8.
func (*ScalarQuantizer) Bits() int { return 8 }

// CodeSize returns 1 byte per dimension.
func (*ScalarQuantizer) CodeSize(dimension int) int { return dimension }

// MarshalBinary implements encoding.BinaryMarshaler.
// Format (little-endian): [min:float32][max:float32]
func (sq *ScalarQuantizer) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(sq.min))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(sq.max))
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sq *ScalarQuantizer) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return errors.New("scalar quantizer: invalid parameter length")
	}
	sq.min = math.Float32frombits(binary.LittleEndian.Uint32(data[0:]))
	sq.max = math.Float32frombits(binary.LittleEndian.Uint32(data[4:]))
	return nil
}
