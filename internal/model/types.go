package model

import "fmt"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Nodes carries the per-node state, rate and time arrays of one batch.
// All arrays share the same length and node i of every array belongs together.
type Nodes struct {
	S []float64 `json:"s"`
	E []float64 `json:"e"`
	I []float64 `json:"i"`
	R []float64 `json:"r"`
	D []float64 `json:"d"`

	Alpha   []float64 `json:"alpha"`
	Beta    []float64 `json:"beta"`
	Sigma   []float64 `json:"sigma"`
	Gamma   []float64 `json:"gamma"`
	Epsilon []float64 `json:"epsilon"`
	Mu      []float64 `json:"mu"`

	T []float64 `json:"t"`
}

// Shape holds the batch-global switch parameters.
type Shape struct {
	A    float64 `json:"a"`
	TOn  float64 `json:"t_on"`
	TOff float64 `json:"t_off"`
}

type Batch struct {
	Nodes Nodes `json:"nodes"`
	Shape Shape `json:"shape"`
}

// Len is the batch size taken from the S array.
func (n Nodes) Len() int {
	return len(n.S)
}

// Field returns the per-node array bound to an input variable.
func (n *Nodes) Field(v Variable) ([]float64, bool) {
	switch v {
	case InputS:
		return n.S, true
	case InputE:
		return n.E, true
	case InputI:
		return n.I, true
	case InputR:
		return n.R, true
	case InputD:
		return n.D, true
	case InputAlpha:
		return n.Alpha, true
	case InputBeta:
		return n.Beta, true
	case InputSigma:
		return n.Sigma, true
	case InputGamma:
		return n.Gamma, true
	case InputEpsilon:
		return n.Epsilon, true
	case InputMu:
		return n.Mu, true
	case InputT:
		return n.T, true
	default:
		return nil, false
	}
}

// Global returns a pointer to the batch-global scalar bound to v.
func (s *Shape) Global(v Variable) (*float64, bool) {
	switch v {
	case InputA:
		return &s.A, true
	case InputTOn:
		return &s.TOn, true
	case InputTOff:
		return &s.TOff, true
	default:
		return nil, false
	}
}

// Validate checks that every per-node array has the same, non-zero length.
func (b Batch) Validate() error {
	n := b.Nodes.Len()
	if n == 0 {
		return ErrEmptyBatch
	}
	for _, v := range NodeInputs {
		values, _ := b.Nodes.Field(v)
		if len(values) != n {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrDimensionMismatch, v, len(values), n)
		}
	}
	return nil
}

// Clone deep-copies the batch so callers can perturb it freely.
func (b Batch) Clone() Batch {
	out := Batch{Shape: b.Shape}
	out.Nodes = Nodes{
		S:       cloneSlice(b.Nodes.S),
		E:       cloneSlice(b.Nodes.E),
		I:       cloneSlice(b.Nodes.I),
		R:       cloneSlice(b.Nodes.R),
		D:       cloneSlice(b.Nodes.D),
		Alpha:   cloneSlice(b.Nodes.Alpha),
		Beta:    cloneSlice(b.Nodes.Beta),
		Sigma:   cloneSlice(b.Nodes.Sigma),
		Gamma:   cloneSlice(b.Nodes.Gamma),
		Epsilon: cloneSlice(b.Nodes.Epsilon),
		Mu:      cloneSlice(b.Nodes.Mu),
		T:       cloneSlice(b.Nodes.T),
	}
	return out
}

// EvaluationResult holds the per-node outputs and the batch-wide smooth maximum.
type EvaluationResult struct {
	Theta   []float64 `json:"theta"`
	Sdot    []float64 `json:"sdot"`
	Edot    []float64 `json:"edot"`
	Idot    []float64 `json:"idot"`
	Rdot    []float64 `json:"rdot"`
	Ddot    []float64 `json:"ddot"`
	SigmaSq []float64 `json:"sigma_sq"`
	MaxI    float64   `json:"max_i"`
}

// Output returns the per-node array bound to an output variable. MaxI is
// returned as a one-element slice.
func (r EvaluationResult) Output(v Variable) ([]float64, bool) {
	switch v {
	case OutputTheta:
		return r.Theta, true
	case OutputSdot:
		return r.Sdot, true
	case OutputEdot:
		return r.Edot, true
	case OutputIdot:
		return r.Idot, true
	case OutputRdot:
		return r.Rdot, true
	case OutputDdot:
		return r.Ddot, true
	case OutputSigmaSq:
		return r.SigmaSq, true
	case OutputMaxI:
		return []float64{r.MaxI}, true
	default:
		return nil, false
	}
}

// EvaluatorSettings records the numerical safeguards an evaluation ran with.
type EvaluatorSettings struct {
	InfectionFloor float64 `json:"infection_floor"`
	ExpCeiling     float64 `json:"exp_ceiling"`
	Sharpness      float64 `json:"sharpness"`
}

// EvaluationRecord is the archived form of one evaluate call.
type EvaluationRecord struct {
	VersionedRecord
	ID           string            `json:"id"`
	Scenario     string            `json:"scenario"`
	Seed         int64             `json:"seed"`
	CreatedAtUTC string            `json:"created_at_utc"`
	Settings     EvaluatorSettings `json:"settings"`
	Batch        Batch             `json:"batch"`
	Result       EvaluationResult  `json:"result"`
}

// PairCheck is the finite-difference comparison for one declared partial.
type PairCheck struct {
	Output        Variable `json:"output"`
	Input         Variable `json:"input"`
	AnalyticNorm  float64  `json:"analytic_norm"`
	AbsoluteError float64  `json:"absolute_error"`
	RelativeError float64  `json:"relative_error"`
	OffDiagonal   float64  `json:"off_diagonal"`
	Passed        bool     `json:"passed"`
}

// PartialsReport is the archived outcome of a partials check.
type PartialsReport struct {
	VersionedRecord
	ID        string      `json:"id"`
	Tolerance float64     `json:"tolerance"`
	Pairs     []PairCheck `json:"pairs"`
	// Undeclared lists pairs outside the declared pattern whose finite
	// differences are non-zero.
	Undeclared []Key `json:"undeclared,omitempty"`
	Passed     bool  `json:"passed"`
}

// Failed lists the pairs that exceeded tolerance.
func (r PartialsReport) Failed() []PairCheck {
	var out []PairCheck
	for _, pair := range r.Pairs {
		if !pair.Passed {
			out = append(out, pair)
		}
	}
	return out
}

func cloneSlice(values []float64) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
