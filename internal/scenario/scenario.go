// Package scenario builds evaluation batches: seeded random batches for
// derivative checks and the reference mitigation scenario.
package scenario

import (
	"fmt"
	"math/rand"

	"epimit/internal/model"
	"epimit/internal/numeric"
)

const (
	KindRandom    = "random"
	KindReference = "reference"
)

// DefaultShape is the default switch shape: a=5, window [20, 60].
var DefaultShape = model.Shape{A: 5, TOn: 20, TOff: 60}

// Range is a closed interval [Lo, Hi].
type Range struct {
	Lo float64 `toml:"lo" json:"lo"`
	Hi float64 `toml:"hi" json:"hi"`
}

func (r Range) draw(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Lo + (r.Hi-r.Lo)*rng.Float64()
	}
	return out
}

type RandomOptions struct {
	Nodes int
	Seed  int64
	// States bounds S, E, I, R and D.
	States Range
	// Rates bounds every per-node rate parameter.
	Rates Range
	Time  Range
	Shape model.Shape
}

func DefaultRandomOptions() RandomOptions {
	return RandomOptions{
		Nodes:  35,
		Seed:   0,
		States: Range{Lo: 1, Hi: 1000},
		Rates:  Range{Lo: 0, Hi: 2},
		Time:   Range{Lo: 0, Hi: 100},
		Shape:  DefaultShape,
	}
}

// Random draws a reproducible batch. Times are evenly spaced over opts.Time.
func Random(opts RandomOptions) (model.Batch, error) {
	if opts.Nodes <= 0 {
		return model.Batch{}, fmt.Errorf("node count must be > 0, got %d", opts.Nodes)
	}
	if opts.States.Hi < opts.States.Lo || opts.Rates.Hi < opts.Rates.Lo {
		return model.Batch{}, fmt.Errorf("invalid sampling range")
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	n := opts.Nodes
	nodes := model.Nodes{}
	nodes.S = opts.States.draw(rng, n)
	nodes.E = opts.States.draw(rng, n)
	nodes.I = opts.States.draw(rng, n)
	nodes.R = opts.States.draw(rng, n)
	nodes.D = opts.States.draw(rng, n)
	nodes.Beta = opts.Rates.draw(rng, n)
	nodes.Sigma = opts.Rates.draw(rng, n)
	nodes.Gamma = opts.Rates.draw(rng, n)
	nodes.Alpha = opts.Rates.draw(rng, n)
	nodes.Epsilon = opts.Rates.draw(rng, n)
	nodes.Mu = opts.Rates.draw(rng, n)
	nodes.T = numeric.Linspace(opts.Time.Lo, opts.Time.Hi, n)
	return model.Batch{Nodes: nodes, Shape: opts.Shape}, nil
}

// ReferenceOptions describe a single mitigation policy over a fixed horizon.
type ReferenceOptions struct {
	Nodes           int
	Duration        float64
	Population      float64
	InitialInfected float64

	Alpha   float64
	Beta    float64
	Gamma   float64
	Epsilon float64
	Mu      float64
	// Sigma is the constant mitigation control level.
	Sigma float64
	Shape model.Shape
}

func DefaultReferenceOptions() ReferenceOptions {
	return ReferenceOptions{
		Nodes:           50,
		Duration:        200,
		Population:      1,
		InitialInfected: 1.0 / 500.0,
		Alpha:           1.0 / 5.0,
		Beta:            0.25,
		Gamma:           1.0 / 14.0,
		Epsilon:         1.0 / 365.0,
		Mu:              0,
		Sigma:           0.1,
		Shape:           model.Shape{A: 5, TOn: 20, TOff: 500},
	}
}

// Reference builds the reference scenario. States are interpolated linearly
// from the outbreak start (everyone susceptible except the seeded exposed)
// to a fully resolved epidemic split evenly between infected and recovered.
func Reference(opts ReferenceOptions) (model.Batch, error) {
	if opts.Nodes <= 0 {
		return model.Batch{}, fmt.Errorf("node count must be > 0, got %d", opts.Nodes)
	}
	if opts.Duration <= 0 {
		return model.Batch{}, fmt.Errorf("duration must be > 0, got %v", opts.Duration)
	}
	if opts.Sigma < 0 || opts.Sigma > opts.Beta {
		return model.Batch{}, fmt.Errorf("sigma must lie in [0, beta=%v], got %v", opts.Beta, opts.Sigma)
	}
	n := opts.Nodes
	pop := opts.Population
	constant := func(v float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	nodes := model.Nodes{
		S:       numeric.Linspace(pop-opts.InitialInfected, 0, n),
		E:       numeric.Linspace(opts.InitialInfected, 0, n),
		I:       numeric.Linspace(0, pop/2, n),
		R:       numeric.Linspace(0, pop/2, n),
		D:       constant(0),
		Alpha:   constant(opts.Alpha),
		Beta:    constant(opts.Beta),
		Sigma:   constant(opts.Sigma),
		Gamma:   constant(opts.Gamma),
		Epsilon: constant(opts.Epsilon),
		Mu:      constant(opts.Mu),
		T:       numeric.Linspace(0, opts.Duration, n),
	}
	return model.Batch{Nodes: nodes, Shape: opts.Shape}, nil
}
