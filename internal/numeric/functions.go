package numeric

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Ceil clamps value from above.
func Ceil(value, ceiling float64) float64 {
	if value > ceiling {
		return ceiling
	}
	return value
}

// CeilActive reports whether Ceil replaces value with ceiling.
func CeilActive(value, ceiling float64) bool {
	return value > ceiling
}

// DeadZone zeroes values strictly below threshold.
func DeadZone(value, threshold float64) float64 {
	if value < threshold {
		return 0
	}
	return value
}

// DeadZoneSlope is the derivative of DeadZone: 0 inside the dead zone, 1 elsewhere.
func DeadZoneSlope(value, threshold float64) float64 {
	if value < threshold {
		return 0
	}
	return 1
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	floats.Span(out, lo, hi)
	// Span accumulates lo+step*(n-1); pin the endpoint.
	out[n-1] = hi
	return out
}

// Finite reports whether every value is neither NaN nor Inf.
func Finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
