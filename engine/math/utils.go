package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds v up to the next multiple of align. An align of 0 or 1
// returns v unchanged.
func AlignUp[T constraints.Unsigned](v, align T) T {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// DivCeil is a/b rounded up. b must not be 0.
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
