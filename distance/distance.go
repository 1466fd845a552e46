// Package distance provides vector distance and normalization primitives.
//
// All kernels are portable scalar implementations. Vectors passed to the
// pairwise functions must have the same length; this is the caller's
// responsibility and is not checked.
package distance

import (
	"math"
	"slices"
)

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v is empty or has zero L2 norm, in which case v is left
// unchanged.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// If src has zero L2 norm, the copy is returned unchanged and ok is false.
func NormalizeL2Copy(src []float32) (dst []float32, ok bool) {
	dst = slices.Clone(src)
	ok = NormalizeL2InPlace(dst)
	return dst, ok
}
