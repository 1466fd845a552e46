package quantization

import (
	"encoding/binary"
	"math"
)

// Float16Quantizer implements IEEE 754 half-precision quantization.
// It compresses float32 vectors (4 bytes/dim) to float16 (2 bytes/dim) for
// 2x memory savings with ~3 decimal digits of precision, which is ample for
// unit-normalized embeddings.
type Float16Quantizer struct{}

// NewFloat16Quantizer creates a new half-precision quantizer.
func NewFloat16Quantizer() *Float16Quantizer {
	return &Float16Quantizer{}
}

// Train is a no-op; half-precision conversion needs no calibration.
func (*Float16Quantizer) Train([][]float32) error { return nil }

// Encode converts a float32 vector to packed little-endian float16.
func (*Float16Quantizer) Encode(v []float32) []byte {
	code := make([]byte, 2*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint16(code[2*i:], float32ToFloat16(f))
	}
	return code
}

// Decode reconstructs a float32 vector from packed float16.
func (*Float16Quantizer) Decode(code []byte, dst []float32) []float32 {
	n := len(code) / 2
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = float16ToFloat32(binary.LittleEndian.Uint16(code[2*i:]))
	}
	return dst
}

// Bits returns 16.
func (*Float16Quantizer) Bits() int { return 16 }

// CodeSize returns 2 bytes per dimension.
func (*Float16Quantizer) CodeSize(dimension int) int { return 2 * dimension }

// MarshalBinary returns no parameters; the quantizer is stateless.
func (*Float16Quantizer) MarshalBinary() ([]byte, error) { return nil, nil }

// UnmarshalBinary accepts (and ignores) an empty parameter blob.
func (*Float16Quantizer) UnmarshalBinary([]byte) error { return nil }

// float32ToFloat16 converts with round-to-nearest-even.
// Out-of-range values saturate to +/-Inf; NaN is preserved.
func float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// Overflow to Inf, or NaN passthrough.
		if (bits>>23)&0xff == 0xff && mant != 0 {
			return sign | 0x7c00 | 0x0200
		}
		return sign | 0x7c00
	case exp <= 0:
		// Subnormal or underflow to zero.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint32(1) << (shift - 1)
		return sign | uint16((mant+half)>>shift)
	default:
		// Round mantissa to 10 bits (nearest even).
		rounded := mant + 0xfff + ((mant >> 13) & 1)
		if rounded&0x800000 != 0 {
			rounded = 0
			exp++
			if exp >= 0x1f {
				return sign | 0x7c00
			}
		}
		return sign | uint16(exp)<<10 | uint16(rounded>>13)
	}
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
