package engine

import "math"

// Rand maps an integer to a reproducible pseudo-random float in
// [0, 1) by taking the fractional part of sin(n) * 10000. It is not a
// statistical PRNG and makes no unpredictability claims; it exists so
// that a given seed always produces the same board, using the exact
// identity the web client uses. Substituting "any PRNG" here breaks
// cross-client board parity.
func Rand(n int) float64 {
	x := math.Sin(float64(n)) * 10000
	return x - math.Floor(x)
}

// RandIndex scales Rand(n) to an index in [0, size). Inputs derived
// from a valid seed always land in range; the clamp only guards the
// theoretical x == 1.0 edge that floating point cannot actually
// produce from a fractional part.
func RandIndex(n, size int) int {
	idx := int(math.Floor(Rand(n) * float64(size)))
	if idx >= size {
		idx = size - 1
	}
	return idx
}
