// Package switching evaluates the smooth mitigation gate
//
//	y(t) = 1 / ((1 + exp(-a(t-t_on))) * (1 + exp(-a(t_off-t))))
//
// and its partial derivatives with respect to t, a, t_on and t_off.
package switching

import (
	"epimit/internal/model"
	"epimit/internal/numeric"
)

// DefaultExpCeiling bounds both exponentials before they enter the gate.
const DefaultExpCeiling = 1e10

// Gate is the per-node switch output and its partial derivatives.
type Gate struct {
	Y     []float64
	DT    []float64
	DA    []float64
	DTOn  []float64
	DTOff []float64
}

// Evaluate computes the gate over t for the batch-global shape. Both
// exponentials are clamped to ceiling; a clamped exponential is constant, so
// it contributes nothing to any derivative.
func Evaluate(t []float64, shape model.Shape, ceiling float64) Gate {
	n := len(t)
	g := Gate{
		Y:     make([]float64, n),
		DT:    make([]float64, n),
		DA:    make([]float64, n),
		DTOn:  make([]float64, n),
		DTOff: make([]float64, n),
	}
	a := shape.A
	for i, ti := range t {
		on, dOn := numeric.SaturatedLogistic(a*(ti-shape.TOn), ceiling)
		off, dOff := numeric.SaturatedLogistic(a*(shape.TOff-ti), ceiling)

		// dy/d(argument) of each factor.
		wOn := dOn * off
		wOff := on * dOff

		g.Y[i] = on * off
		g.DT[i] = a*wOn - a*wOff
		g.DA[i] = (ti-shape.TOn)*wOn + (shape.TOff-ti)*wOff
		g.DTOn[i] = -a * wOn
		g.DTOff[i] = a * wOff
	}
	return g
}
