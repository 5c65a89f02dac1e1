package model

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Variable names an evaluator input or output.
type Variable string

const (
	OutputTheta   Variable = "theta"
	OutputSdot    Variable = "Sdot"
	OutputEdot    Variable = "Edot"
	OutputIdot    Variable = "Idot"
	OutputRdot    Variable = "Rdot"
	OutputDdot    Variable = "Ddot"
	OutputSigmaSq Variable = "sigma_sq"
	OutputMaxI    Variable = "max_I"

	InputS       Variable = "S"
	InputE       Variable = "E"
	InputI       Variable = "I"
	InputR       Variable = "R"
	InputD       Variable = "D"
	InputAlpha   Variable = "alpha"
	InputBeta    Variable = "beta"
	InputSigma   Variable = "sigma"
	InputGamma   Variable = "gamma"
	InputEpsilon Variable = "epsilon"
	InputMu      Variable = "mu"
	InputT       Variable = "t"
	InputA       Variable = "a"
	InputTOn     Variable = "t_on"
	InputTOff    Variable = "t_off"
)

var (
	// NodeOutputs are the per-node outputs in dense row order.
	NodeOutputs = []Variable{OutputTheta, OutputSdot, OutputEdot, OutputIdot, OutputRdot, OutputDdot, OutputSigmaSq}
	// NodeInputs are the per-node inputs in dense column order.
	NodeInputs = []Variable{InputS, InputE, InputI, InputR, InputD, InputAlpha, InputBeta, InputSigma, InputGamma, InputEpsilon, InputMu, InputT}
	// GlobalInputs follow the per-node columns.
	GlobalInputs = []Variable{InputA, InputTOn, InputTOff}
)

// Key identifies one (output, input) block of the Jacobian.
type Key struct {
	Output Variable `json:"output"`
	Input  Variable `json:"input"`
}

func (k Key) String() string {
	return string(k.Output) + "/" + string(k.Input)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	out, in, ok := strings.Cut(string(text), "/")
	if !ok || out == "" || in == "" {
		return fmt.Errorf("invalid jacobian key %q", text)
	}
	k.Output, k.Input = Variable(out), Variable(in)
	return nil
}

// Diagonal holds d out_i / d in_i for a node-local dependency. Entries off the
// diagonal are structurally zero.
type Diagonal []float64

// Column holds d out_i / d g for every node i and a batch-global scalar g.
type Column []float64

// Gradient holds d out / d in_j for a batch-scalar output.
type Gradient []float64

type Jacobian struct {
	Diagonals map[Key]Diagonal `json:"diagonals"`
	Columns   map[Key]Column   `json:"columns"`
	MaxI      Gradient         `json:"max_i"`
}

func NewJacobian() Jacobian {
	return Jacobian{
		Diagonals: make(map[Key]Diagonal),
		Columns:   make(map[Key]Column),
	}
}

// DeclaredPartials lists every dependent (output, input) pair. Pairs with a
// global input are dense columns; max_I/I is a dense gradient; the rest are
// diagonal.
func DeclaredPartials() []Key {
	return []Key{
		{OutputSdot, InputBeta}, {OutputSdot, InputSigma}, {OutputSdot, InputEpsilon},
		{OutputSdot, InputS}, {OutputSdot, InputI}, {OutputSdot, InputR}, {OutputSdot, InputT},
		{OutputSdot, InputA}, {OutputSdot, InputTOn}, {OutputSdot, InputTOff},

		{OutputEdot, InputBeta}, {OutputEdot, InputSigma}, {OutputEdot, InputS},
		{OutputEdot, InputE}, {OutputEdot, InputI}, {OutputEdot, InputT}, {OutputEdot, InputAlpha},
		{OutputEdot, InputA}, {OutputEdot, InputTOn}, {OutputEdot, InputTOff},

		{OutputIdot, InputGamma}, {OutputIdot, InputE}, {OutputIdot, InputI},
		{OutputIdot, InputAlpha}, {OutputIdot, InputMu},

		{OutputRdot, InputGamma}, {OutputRdot, InputEpsilon}, {OutputRdot, InputI}, {OutputRdot, InputR},

		{OutputDdot, InputMu}, {OutputDdot, InputI},

		{OutputTheta, InputBeta}, {OutputTheta, InputSigma}, {OutputTheta, InputT},
		{OutputTheta, InputA}, {OutputTheta, InputTOn}, {OutputTheta, InputTOff},

		{OutputSigmaSq, InputSigma},

		{OutputMaxI, InputI},
	}
}

// IsGlobal reports whether v is one of the batch-global switch parameters.
func IsGlobal(v Variable) bool {
	for _, g := range GlobalInputs {
		if g == v {
			return true
		}
	}
	return false
}

// DenseDims returns the flat Jacobian shape for a batch of n nodes.
func DenseDims(n int) (rows, cols int) {
	return len(NodeOutputs)*n + 1, len(NodeInputs)*n + len(GlobalInputs)
}

// DenseRow maps (output, node) to its flat row. max_I occupies the last row.
func DenseRow(out Variable, node, n int) int {
	if out == OutputMaxI {
		return len(NodeOutputs) * n
	}
	return indexOf(NodeOutputs, out)*n + node
}

// DenseCol maps (input, node) to its flat column; node is ignored for globals.
func DenseCol(in Variable, node, n int) int {
	if idx := indexOf(GlobalInputs, in); idx >= 0 {
		return len(NodeInputs)*n + idx
	}
	return indexOf(NodeInputs, in)*n + node
}

// DenseLabels names the rows and columns of Dense(n), e.g. "Idot[3]" or "t_on".
func DenseLabels(n int) (rows, cols []string) {
	for _, out := range NodeOutputs {
		for i := 0; i < n; i++ {
			rows = append(rows, fmt.Sprintf("%s[%d]", out, i))
		}
	}
	rows = append(rows, string(OutputMaxI))
	for _, in := range NodeInputs {
		for i := 0; i < n; i++ {
			cols = append(cols, fmt.Sprintf("%s[%d]", in, i))
		}
	}
	for _, g := range GlobalInputs {
		cols = append(cols, string(g))
	}
	return rows, cols
}

// Dense assembles the flat (outputs x inputs) matrix for a batch of n nodes.
func (j Jacobian) Dense(n int) *mat.Dense {
	rows, cols := DenseDims(n)
	dense := mat.NewDense(rows, cols, nil)
	for key, diag := range j.Diagonals {
		for i, v := range diag {
			dense.Set(DenseRow(key.Output, i, n), DenseCol(key.Input, i, n), v)
		}
	}
	for key, col := range j.Columns {
		c := DenseCol(key.Input, 0, n)
		for i, v := range col {
			dense.Set(DenseRow(key.Output, i, n), c, v)
		}
	}
	row := DenseRow(OutputMaxI, 0, n)
	for i, v := range j.MaxI {
		dense.Set(row, DenseCol(InputI, i, n), v)
	}
	return dense
}

func indexOf(vars []Variable, v Variable) int {
	for i, candidate := range vars {
		if candidate == v {
			return i
		}
	}
	return -1
}
