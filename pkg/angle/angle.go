// Package angle provides the scalar helpers shared by the solvers: clamped
// range mapping, wraparound-safe deltas and exponential smoothing.
//
// All angles are in degrees unless a function name says otherwise.
package angle

import (
	"math"

	"github.com/pkg/errors"
)

// ErrDegenerateRange is returned by MapChecked when the source range is empty.
var ErrDegenerateRange = errors.New("angle: source range has zero span")

// Map linearly rescales value from [inMin, inMax] to [outMin, outMax] and
// clamps the result to the output range. The output range may be inverted
// (outMin > outMax); clamping uses the smaller and larger bound either way.
//
// A zero-width source range yields NaN. Use MapChecked where the range comes
// from user input.
func Map(value, inMin, inMax, outMin, outMax float64) float64 {
	span := inMax - inMin
	if span == 0 {
		return math.NaN()
	}
	v := outMin + (value-inMin)*(outMax-outMin)/span
	return Clamp(v, math.Min(outMin, outMax), math.Max(outMin, outMax))
}

// MapChecked is Map with an explicit error for a zero-width source range.
func MapChecked(value, inMin, inMax, outMin, outMax float64) (float64, error) {
	if inMax == inMin {
		return 0, ErrDegenerateRange
	}
	return Map(value, inMin, inMax, outMin, outMax), nil
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Wrap180 wraps a into (-180, 180].
func Wrap180(a float64) float64 {
	a = math.Mod(a, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}

// ShortestDelta returns the signed rotation in (-180, 180] that takes from
// to to along the shorter way around the circle.
func ShortestDelta(from, to float64) float64 {
	return Wrap180(to - from)
}

// Lerp interpolates from a towards b by t. t is clamped to [0, 1].
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*Clamp(t, 0, 1)
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
