// Package check compares analytic partial derivatives against central finite
// differences.
package check

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"epimit/internal/model"
)

const (
	DefaultTolerance = 1e-5
	DefaultStep      = 1e-6
	DefaultAbsFloor  = 1e-10
)

// Evaluator is the part of the batch evaluator the checker drives.
type Evaluator interface {
	Evaluate(batch model.Batch) (model.EvaluationResult, error)
	Differentiate(batch model.Batch) (model.Jacobian, error)
}

type Options struct {
	// Step is scaled by max(1, max|x|) of each input before differencing.
	Step float64
	// Tolerance bounds the relative error ||fd - analytic|| / ||analytic||.
	Tolerance float64
	// AbsFloor switches to absolute error for analytic blocks with a smaller norm.
	AbsFloor float64
}

func DefaultOptions() Options {
	return Options{Step: DefaultStep, Tolerance: DefaultTolerance, AbsFloor: DefaultAbsFloor}
}

func (o Options) withDefaults() Options {
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.AbsFloor <= 0 {
		o.AbsFloor = DefaultAbsFloor
	}
	return o
}

// Partials differentiates batch numerically with respect to every input and
// compares each declared block with the analytic Jacobian. Per-node blocks
// must also be diagonal, and undeclared blocks must vanish.
func Partials(ev Evaluator, batch model.Batch, opts Options) (model.PartialsReport, error) {
	opts = opts.withDefaults()
	if err := batch.Validate(); err != nil {
		return model.PartialsReport{}, err
	}
	analytic, err := ev.Differentiate(batch)
	if err != nil {
		return model.PartialsReport{}, fmt.Errorf("analytic partials: %w", err)
	}

	n := batch.Nodes.Len()
	inputs := append(append([]model.Variable(nil), model.NodeInputs...), model.GlobalInputs...)
	differenced := make(map[model.Variable]*mat.Dense, len(inputs))
	for _, in := range inputs {
		jac, err := differenceInput(ev, batch, in, opts.Step)
		if err != nil {
			return model.PartialsReport{}, err
		}
		differenced[in] = jac
	}

	report := model.PartialsReport{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		Tolerance:       opts.Tolerance,
		Passed:          true,
	}
	declared := make(map[model.Key]bool)
	for _, key := range model.DeclaredPartials() {
		declared[key] = true
		want, err := analyticBlock(analytic, key, n)
		if err != nil {
			return model.PartialsReport{}, err
		}
		got, offDiag := numericBlock(differenced[key.Input], key, n)
		pair := compare(key, want, got, opts)
		pair.OffDiagonal = offDiag
		if offDiag != 0 {
			pair.Passed = false
		}
		if !pair.Passed {
			report.Passed = false
		}
		report.Pairs = append(report.Pairs, pair)
	}

	outputs := append(append([]model.Variable(nil), model.NodeOutputs...), model.OutputMaxI)
	for _, in := range inputs {
		jac := differenced[in]
		for _, out := range outputs {
			key := model.Key{Output: out, Input: in}
			if declared[key] {
				continue
			}
			if blockNonZero(jac, out, n) {
				report.Undeclared = append(report.Undeclared, key)
				report.Passed = false
			}
		}
	}
	return report, nil
}

// differenceInput returns the (outputs x len(in)) central-difference Jacobian,
// rows laid out as model.DenseRow.
func differenceInput(ev Evaluator, batch model.Batch, in model.Variable, step float64) (*mat.Dense, error) {
	work := batch.Clone()
	var target []float64
	if field, ok := work.Nodes.Field(in); ok {
		target = field
	} else if global, ok := work.Shape.Global(in); ok {
		target = []float64{*global}
	} else {
		return nil, fmt.Errorf("unknown input %s", in)
	}
	origin := append([]float64(nil), target...)
	n := batch.Nodes.Len()
	rows, _ := model.DenseDims(n)

	scale := math.Max(1, floats.Norm(origin, math.Inf(1)))
	var evalErr error
	f := func(y, x []float64) {
		if field, ok := work.Nodes.Field(in); ok {
			copy(field, x)
		} else {
			global, _ := work.Shape.Global(in)
			*global = x[0]
		}
		out, err := ev.Evaluate(work)
		if err != nil {
			if evalErr == nil {
				evalErr = err
			}
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		for _, v := range model.NodeOutputs {
			series, _ := out.Output(v)
			copy(y[model.DenseRow(v, 0, n):], series)
		}
		y[model.DenseRow(model.OutputMaxI, 0, n)] = out.MaxI
	}

	dst := mat.NewDense(rows, len(origin), nil)
	fd.Jacobian(dst, f, origin, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step * scale,
	})
	if evalErr != nil {
		return nil, fmt.Errorf("difference %s: %w", in, evalErr)
	}
	return dst, nil
}

func analyticBlock(jac model.Jacobian, key model.Key, n int) ([]float64, error) {
	switch {
	case key.Output == model.OutputMaxI:
		if len(jac.MaxI) != n {
			return nil, errors.New("analytic max_I gradient missing")
		}
		return jac.MaxI, nil
	case model.IsGlobal(key.Input):
		col, ok := jac.Columns[key]
		if !ok {
			return nil, fmt.Errorf("analytic column %s missing", key)
		}
		return col, nil
	default:
		diag, ok := jac.Diagonals[key]
		if !ok {
			return nil, fmt.Errorf("analytic diagonal %s missing", key)
		}
		return diag, nil
	}
}

// numericBlock extracts the finite-difference counterpart of an analytic
// block. For diagonal blocks it also returns the largest off-diagonal entry.
func numericBlock(jac *mat.Dense, key model.Key, n int) ([]float64, float64) {
	out := make([]float64, n)
	switch {
	case key.Output == model.OutputMaxI:
		mat.Row(out, model.DenseRow(model.OutputMaxI, 0, n), jac)
		return out, 0
	case model.IsGlobal(key.Input):
		for i := range out {
			out[i] = jac.At(model.DenseRow(key.Output, i, n), 0)
		}
		return out, 0
	default:
		offDiag := 0.0
		for i := 0; i < n; i++ {
			row := model.DenseRow(key.Output, i, n)
			for j := 0; j < n; j++ {
				if i == j {
					out[i] = jac.At(row, j)
					continue
				}
				offDiag = math.Max(offDiag, math.Abs(jac.At(row, j)))
			}
		}
		return out, offDiag
	}
}

func compare(key model.Key, want, got []float64, opts Options) model.PairCheck {
	diff := make([]float64, len(want))
	floats.SubTo(diff, got, want)
	norm := floats.Norm(want, 2)
	abs := floats.Norm(diff, 2)

	pair := model.PairCheck{
		Output:        key.Output,
		Input:         key.Input,
		AnalyticNorm:  norm,
		AbsoluteError: abs,
	}
	if norm < opts.AbsFloor {
		pair.RelativeError = abs
	} else {
		pair.RelativeError = abs / norm
	}
	pair.Passed = pair.RelativeError <= opts.Tolerance
	return pair
}

func blockNonZero(jac *mat.Dense, out model.Variable, n int) bool {
	_, cols := jac.Dims()
	rows := n
	if out == model.OutputMaxI {
		rows = 1
	}
	start := model.DenseRow(out, 0, n)
	for i := start; i < start+rows; i++ {
		for j := 0; j < cols; j++ {
			if jac.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}
