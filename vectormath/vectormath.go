// Package vectormath implements the explicit numeric routines used by
// verification and aggregation: dot product, Euclidean norm, clamped
// cosine similarity, sample-weighted accumulation, and mean.
//
// All routines operate on fixed-length float sequences with no implicit
// broadcasting: mismatched lengths fail fast instead of being silently
// truncated or padded.
package vectormath

import (
	"fmt"
	"math"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// Dot returns the dot product of two equal-length vectors, accumulated in
// float64.
func Dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", interfaces.ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Norm returns the Euclidean norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns dot(a,b) / (||a||*||b||), clamped to [-1, 1]
// to absorb floating-point drift. Returns ErrDegenerateVector when either
// norm is zero, without performing the division, and
// ErrDimensionMismatch for unequal lengths.
func CosineSimilarity(a, b []float32) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}

	normA, normB := Norm(a), Norm(b)
	if normA == 0 || normB == 0 {
		return 0, interfaces.ErrDegenerateVector
	}

	similarity := dot / (normA * normB)
	return math.Max(-1, math.Min(1, similarity)), nil
}

// WeightedAccumulate adds weight*values elementwise into acc. The two
// slices must have equal length.
func WeightedAccumulate(acc, values []float64, weight float64) error {
	if len(acc) != len(values) {
		return fmt.Errorf("%w: %d vs %d", interfaces.ErrDimensionMismatch, len(acc), len(values))
	}
	for i, v := range values {
		acc[i] += weight * v
	}
	return nil
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
