// Package ks implements Kreisselmeier-Steinhauser aggregation, a smooth and
// differentiable surrogate for the maximum of a vector.
package ks

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultSharpness is the aggregation sharpness used for the infected peak.
const DefaultSharpness = 50.0

var (
	ErrEmpty     = errors.New("ks: values must not be empty")
	ErrSharpness = errors.New("ks: sharpness must be > 0")
)

type Result struct {
	// Value is m + log(sum(exp(rho*(v-m))))/rho with m = max(v).
	Value float64
	// Gradient is d Value / d v_k, a softmax weighting that sums to one.
	Gradient []float64
	// DRho is the full d Value / d rho:
	//	sum(d_k*w_k)/(rho*Z) - log(Z)/rho^2
	// The second term is often dropped; it vanishes only when Z = 1, as for a
	// single element.
	DRho float64
}

// SmoothMax aggregates values with sharpness rho. Shifting by the true maximum
// keeps every exponent <= 0, so the sum never overflows.
func SmoothMax(values []float64, rho float64) (Result, error) {
	if len(values) == 0 {
		return Result{}, ErrEmpty
	}
	if !(rho > 0) {
		return Result{}, ErrSharpness
	}

	m := floats.Max(values)
	diff := make([]float64, len(values))
	copy(diff, values)
	floats.AddConst(-m, diff)

	weights := make([]float64, len(values))
	for k, d := range diff {
		weights[k] = math.Exp(rho * d)
	}
	z := floats.Sum(weights)
	logZ := math.Log(z)

	gradient := make([]float64, len(values))
	floats.ScaleTo(gradient, 1/z, weights)

	return Result{
		Value:    m + logZ/rho,
		Gradient: gradient,
		DRho:     floats.Dot(diff, weights)/(rho*z) - logZ/(rho*rho),
	}, nil
}
