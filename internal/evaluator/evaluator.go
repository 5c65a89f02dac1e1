// Package evaluator runs the switch, right-hand side and smooth-max kernels
// over one batch and assembles values and Jacobian.
package evaluator

import (
	"errors"
	"fmt"

	"epimit/internal/ks"
	"epimit/internal/model"
	"epimit/internal/numeric"
	"epimit/internal/seird"
	"epimit/internal/switching"
)

// DefaultInfectionFloor is the level below which I counts as extinct.
const DefaultInfectionFloor = 1e-4

// Config holds the numerical safeguards. An Evaluator never mutates it.
type Config struct {
	// InfectionFloor snaps I below this value to exactly zero, in values and
	// in derivatives alike.
	InfectionFloor float64
	// ExpCeiling bounds both switch exponentials.
	ExpCeiling float64
	// Sharpness of the smooth maximum over I.
	Sharpness float64
}

func DefaultConfig() Config {
	return Config{
		InfectionFloor: DefaultInfectionFloor,
		ExpCeiling:     switching.DefaultExpCeiling,
		Sharpness:      ks.DefaultSharpness,
	}
}

func (c Config) Validate() error {
	if c.InfectionFloor < 0 {
		return errors.New("infection floor must be >= 0")
	}
	if !(c.ExpCeiling > 1) {
		return errors.New("exp ceiling must be > 1")
	}
	if !(c.Sharpness > 0) {
		return errors.New("sharpness must be > 0")
	}
	return nil
}

func (c Config) Settings() model.EvaluatorSettings {
	return model.EvaluatorSettings{
		InfectionFloor: c.InfectionFloor,
		ExpCeiling:     c.ExpCeiling,
		Sharpness:      c.Sharpness,
	}
}

// Evaluator is stateless between calls and safe for concurrent use.
type Evaluator struct {
	cfg Config
}

func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Default returns an evaluator with DefaultConfig.
func Default() *Evaluator {
	return &Evaluator{cfg: DefaultConfig()}
}

func (e *Evaluator) Config() Config {
	return e.cfg
}

// pass holds the intermediates shared by values and partials.
type pass struct {
	batch model.Batch
	inf   seird.Infection
	gate  switching.Gate
	peak  ks.Result
}

func (e *Evaluator) prepare(batch model.Batch) (pass, error) {
	if err := batch.Validate(); err != nil {
		return pass{}, err
	}
	n := batch.Nodes.Len()
	inf := seird.Infection{
		Value: make([]float64, n),
		Slope: make([]float64, n),
	}
	for i, v := range batch.Nodes.I {
		inf.Value[i] = numeric.DeadZone(v, e.cfg.InfectionFloor)
		inf.Slope[i] = numeric.DeadZoneSlope(v, e.cfg.InfectionFloor)
	}
	peak, err := ks.SmoothMax(inf.Value, e.cfg.Sharpness)
	if err != nil {
		return pass{}, fmt.Errorf("aggregate infected peak: %w", err)
	}
	return pass{
		batch: batch,
		inf:   inf,
		gate:  switching.Evaluate(batch.Nodes.T, batch.Shape, e.cfg.ExpCeiling),
		peak:  peak,
	}, nil
}

func (p pass) values() (model.EvaluationResult, error) {
	out := seird.Rates(p.batch.Nodes, p.inf, p.gate)
	out.MaxI = p.peak.Value
	for _, v := range model.NodeOutputs {
		series, _ := out.Output(v)
		if !numeric.Finite(series) {
			return model.EvaluationResult{}, fmt.Errorf("%w: %s", model.ErrNonFinite, v)
		}
	}
	if !numeric.Finite([]float64{out.MaxI}) {
		return model.EvaluationResult{}, fmt.Errorf("%w: %s", model.ErrNonFinite, model.OutputMaxI)
	}
	return out, nil
}

func (p pass) partials() (model.Jacobian, error) {
	jac := seird.Partials(p.batch.Nodes, p.inf, p.gate)
	jac.MaxI = make(model.Gradient, len(p.peak.Gradient))
	for i, w := range p.peak.Gradient {
		jac.MaxI[i] = w * p.inf.Slope[i]
	}
	for key, diag := range jac.Diagonals {
		if !numeric.Finite(diag) {
			return model.Jacobian{}, fmt.Errorf("%w: d%s", model.ErrNonFinite, key)
		}
	}
	for key, col := range jac.Columns {
		if !numeric.Finite(col) {
			return model.Jacobian{}, fmt.Errorf("%w: d%s", model.ErrNonFinite, key)
		}
	}
	return jac, nil
}

// Evaluate returns the outputs for batch.
func (e *Evaluator) Evaluate(batch model.Batch) (model.EvaluationResult, error) {
	p, err := e.prepare(batch)
	if err != nil {
		return model.EvaluationResult{}, err
	}
	return p.values()
}

// Differentiate returns every declared partial derivative for batch.
func (e *Evaluator) Differentiate(batch model.Batch) (model.Jacobian, error) {
	p, err := e.prepare(batch)
	if err != nil {
		return model.Jacobian{}, err
	}
	return p.partials()
}

// EvaluateWithPartials computes outputs and Jacobian from one floor, switch
// and aggregation pass.
func (e *Evaluator) EvaluateWithPartials(batch model.Batch) (model.EvaluationResult, model.Jacobian, error) {
	p, err := e.prepare(batch)
	if err != nil {
		return model.EvaluationResult{}, model.Jacobian{}, err
	}
	out, err := p.values()
	if err != nil {
		return model.EvaluationResult{}, model.Jacobian{}, err
	}
	jac, err := p.partials()
	if err != nil {
		return model.EvaluationResult{}, model.Jacobian{}, err
	}
	return out, jac, nil
}
