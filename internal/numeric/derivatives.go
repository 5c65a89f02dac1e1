package numeric

import "math"

// ClampedExp returns min(exp(x), ceiling) and its derivative with respect to
// x. The derivative is zero once the ceiling engages, since the clamped value
// no longer depends on x.
func ClampedExp(x, ceiling float64) (value, slope float64) {
	e := math.Exp(x)
	value = Ceil(e, ceiling)
	if CeilActive(e, ceiling) {
		return value, 0
	}
	return value, e
}

// SaturatedLogistic returns 1/(1+min(exp(-x), ceiling)) and its derivative
// with respect to x. Below the clamp the factor is flat at 1/(1+ceiling).
func SaturatedLogistic(x, ceiling float64) (value, slope float64) {
	e, de := ClampedExp(-x, ceiling)
	value = 1 / (1 + e)
	return value, value * value * de
}
