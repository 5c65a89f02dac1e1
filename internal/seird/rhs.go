// Package seird computes the mitigation-adjusted SEIRD right-hand side and
// its closed-form partial derivatives.
package seird

import (
	"epimit/internal/model"
	"epimit/internal/switching"
)

// Infection is the floored infected compartment. Slope is d Value / d I:
// zero for floored nodes, one elsewhere.
type Infection struct {
	Value []float64
	Slope []float64
}

// Rates evaluates theta, the five compartment derivatives and sigma^2. MaxI
// is left to the caller.
func Rates(nodes model.Nodes, inf Infection, gate switching.Gate) model.EvaluationResult {
	n := nodes.Len()
	out := model.EvaluationResult{
		Theta:   make([]float64, n),
		Sdot:    make([]float64, n),
		Edot:    make([]float64, n),
		Idot:    make([]float64, n),
		Rdot:    make([]float64, n),
		Ddot:    make([]float64, n),
		SigmaSq: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		beta, sigma, y := nodes.Beta[i], nodes.Sigma[i], gate.Y[i]
		s, e, infected, r := nodes.S[i], nodes.E[i], inf.Value[i], nodes.R[i]

		theta := (beta-sigma)*y + (1-y)*beta
		transmission := theta * s * infected

		out.Theta[i] = theta
		out.Sdot[i] = -transmission + nodes.Epsilon[i]*r
		out.Edot[i] = transmission - nodes.Alpha[i]*e
		out.Idot[i] = nodes.Alpha[i]*e - nodes.Gamma[i]*infected - nodes.Mu[i]*infected
		out.Rdot[i] = nodes.Gamma[i]*infected - nodes.Epsilon[i]*r
		out.Ddot[i] = nodes.Mu[i] * infected
		out.SigmaSq[i] = sigma * sigma
	}
	return out
}

// Partials fills every declared derivative except max_I/I into a new
// Jacobian. Switch derivatives enter through theta = beta - sigma*y, so
// d theta/d p = -sigma * dy/dp for p in {t, a, t_on, t_off}.
func Partials(nodes model.Nodes, inf Infection, gate switching.Gate) model.Jacobian {
	n := nodes.Len()
	jac := model.NewJacobian()

	diag := func(out, in model.Variable) model.Diagonal {
		d := make(model.Diagonal, n)
		jac.Diagonals[model.Key{Output: out, Input: in}] = d
		return d
	}
	column := func(out, in model.Variable) model.Column {
		c := make(model.Column, n)
		jac.Columns[model.Key{Output: out, Input: in}] = c
		return c
	}

	thetaBeta := diag(model.OutputTheta, model.InputBeta)
	thetaSigma := diag(model.OutputTheta, model.InputSigma)
	thetaT := diag(model.OutputTheta, model.InputT)
	thetaA := column(model.OutputTheta, model.InputA)
	thetaTOn := column(model.OutputTheta, model.InputTOn)
	thetaTOff := column(model.OutputTheta, model.InputTOff)

	sBeta := diag(model.OutputSdot, model.InputBeta)
	sSigma := diag(model.OutputSdot, model.InputSigma)
	sEpsilon := diag(model.OutputSdot, model.InputEpsilon)
	sS := diag(model.OutputSdot, model.InputS)
	sI := diag(model.OutputSdot, model.InputI)
	sR := diag(model.OutputSdot, model.InputR)
	sT := diag(model.OutputSdot, model.InputT)
	sA := column(model.OutputSdot, model.InputA)
	sTOn := column(model.OutputSdot, model.InputTOn)
	sTOff := column(model.OutputSdot, model.InputTOff)

	eBeta := diag(model.OutputEdot, model.InputBeta)
	eSigma := diag(model.OutputEdot, model.InputSigma)
	eS := diag(model.OutputEdot, model.InputS)
	eE := diag(model.OutputEdot, model.InputE)
	eI := diag(model.OutputEdot, model.InputI)
	eT := diag(model.OutputEdot, model.InputT)
	eAlpha := diag(model.OutputEdot, model.InputAlpha)
	eA := column(model.OutputEdot, model.InputA)
	eTOn := column(model.OutputEdot, model.InputTOn)
	eTOff := column(model.OutputEdot, model.InputTOff)

	iGamma := diag(model.OutputIdot, model.InputGamma)
	iE := diag(model.OutputIdot, model.InputE)
	iI := diag(model.OutputIdot, model.InputI)
	iAlpha := diag(model.OutputIdot, model.InputAlpha)
	iMu := diag(model.OutputIdot, model.InputMu)

	rGamma := diag(model.OutputRdot, model.InputGamma)
	rEpsilon := diag(model.OutputRdot, model.InputEpsilon)
	rI := diag(model.OutputRdot, model.InputI)
	rR := diag(model.OutputRdot, model.InputR)

	dMu := diag(model.OutputDdot, model.InputMu)
	dI := diag(model.OutputDdot, model.InputI)

	sqSigma := diag(model.OutputSigmaSq, model.InputSigma)

	for i := 0; i < n; i++ {
		beta, sigma, y := nodes.Beta[i], nodes.Sigma[i], gate.Y[i]
		s, infected, slope := nodes.S[i], inf.Value[i], inf.Slope[i]
		theta := (beta-sigma)*y + (1-y)*beta
		si := s * infected

		thetaBeta[i] = 1
		thetaSigma[i] = -y
		thetaT[i] = -sigma * gate.DT[i]
		thetaA[i] = -sigma * gate.DA[i]
		thetaTOn[i] = -sigma * gate.DTOn[i]
		thetaTOff[i] = -sigma * gate.DTOff[i]

		// Sdot = -theta*S*I + epsilon*R
		sBeta[i] = -si * thetaBeta[i]
		sSigma[i] = -si * thetaSigma[i]
		sEpsilon[i] = nodes.R[i]
		sS[i] = -theta * infected
		sI[i] = -theta * s * slope
		sR[i] = nodes.Epsilon[i]
		sT[i] = -si * thetaT[i]
		sA[i] = -si * thetaA[i]
		sTOn[i] = -si * thetaTOn[i]
		sTOff[i] = -si * thetaTOff[i]

		// Edot = theta*S*I - alpha*E
		eBeta[i] = -sBeta[i]
		eSigma[i] = -sSigma[i]
		eS[i] = -sS[i]
		eE[i] = -nodes.Alpha[i]
		eI[i] = -sI[i]
		eT[i] = -sT[i]
		eAlpha[i] = -nodes.E[i]
		eA[i] = -sA[i]
		eTOn[i] = -sTOn[i]
		eTOff[i] = -sTOff[i]

		// Idot = alpha*E - gamma*I - mu*I
		iGamma[i] = -infected
		iE[i] = nodes.Alpha[i]
		iI[i] = -(nodes.Gamma[i] + nodes.Mu[i]) * slope
		iAlpha[i] = nodes.E[i]
		iMu[i] = -infected

		// Rdot = gamma*I - epsilon*R
		rGamma[i] = infected
		rEpsilon[i] = -nodes.R[i]
		rI[i] = nodes.Gamma[i] * slope
		rR[i] = -nodes.Epsilon[i]

		// Ddot = mu*I
		dMu[i] = infected
		dI[i] = nodes.Mu[i] * slope

		sqSigma[i] = 2 * sigma
	}
	return jac
}
