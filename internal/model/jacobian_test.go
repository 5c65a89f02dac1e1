package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDenseLabelsFollowLayout(t *testing.T) {
	const n = 4
	rows, cols := DenseLabels(n)
	wantRows, wantCols := DenseDims(n)
	if len(rows) != wantRows || len(cols) != wantCols {
		t.Fatalf("labels = %dx%d, want %dx%d", len(rows), len(cols), wantRows, wantCols)
	}
	if got := rows[DenseRow(OutputRdot, 3, n)]; got != "Rdot[3]" {
		t.Fatalf("row label = %s, want Rdot[3]", got)
	}
	if got := rows[DenseRow(OutputMaxI, 0, n)]; got != "max_I" {
		t.Fatalf("row label = %s, want max_I", got)
	}
	if got := cols[DenseCol(InputEpsilon, 1, n)]; got != "epsilon[1]" {
		t.Fatalf("col label = %s, want epsilon[1]", got)
	}
	if got := cols[DenseCol(InputTOn, 0, n)]; got != "t_on" {
		t.Fatalf("col label = %s, want t_on", got)
	}
}

func TestDenseLayout(t *testing.T) {
	const n = 3
	jac := NewJacobian()
	jac.Diagonals[Key{OutputSdot, InputS}] = Diagonal{1, 2, 3}
	jac.Columns[Key{OutputTheta, InputTOff}] = Column{4, 5, 6}
	jac.MaxI = Gradient{0.1, 0.2, 0.7}

	dense := jac.Dense(n)
	rows, cols := dense.Dims()
	wantRows, wantCols := DenseDims(n)
	if rows != wantRows || cols != wantCols {
		t.Fatalf("dense dims = %dx%d, want %dx%d", rows, cols, wantRows, wantCols)
	}
	if rows != 7*n+1 || cols != 12*n+3 {
		t.Fatalf("unexpected dense dims %dx%d", rows, cols)
	}

	for i := 0; i < n; i++ {
		if got := dense.At(DenseRow(OutputSdot, i, n), DenseCol(InputS, i, n)); got != float64(i+1) {
			t.Fatalf("Sdot/S[%d] = %v", i, got)
		}
		if got := dense.At(DenseRow(OutputTheta, i, n), DenseCol(InputTOff, 0, n)); got != float64(i+4) {
			t.Fatalf("theta/t_off[%d] = %v", i, got)
		}
	}
	if got := dense.At(rows-1, DenseCol(InputI, 2, n)); got != 0.7 {
		t.Fatalf("max_I/I[2] = %v", got)
	}
	// Sdot at node 0 must not depend on S at node 1.
	if got := dense.At(DenseRow(OutputSdot, 0, n), DenseCol(InputS, 1, n)); got != 0 {
		t.Fatalf("expected structural zero, got %v", got)
	}
}

func TestKeyTextRoundTrip(t *testing.T) {
	jac := NewJacobian()
	jac.Diagonals[Key{OutputEdot, InputAlpha}] = Diagonal{-1, -2}
	jac.Columns[Key{OutputSdot, InputA}] = Column{0.5, 0.25}
	jac.MaxI = Gradient{0, 1}

	data, err := json.Marshal(jac)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Jacobian
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := decoded.Diagonals[Key{OutputEdot, InputAlpha}]; len(got) != 2 || got[1] != -2 {
		t.Fatalf("unexpected diagonal after round trip: %v", got)
	}
	if got := decoded.Columns[Key{OutputSdot, InputA}]; len(got) != 2 || got[0] != 0.5 {
		t.Fatalf("unexpected column after round trip: %v", got)
	}

	var key Key
	if err := key.UnmarshalText([]byte("missing-separator")); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestDeclaredPartialsAreClassified(t *testing.T) {
	seen := make(map[Key]bool)
	for _, key := range DeclaredPartials() {
		if seen[key] {
			t.Fatalf("duplicate declared partial %s", key)
		}
		seen[key] = true
		if key.Output == OutputMaxI && key.Input != InputI {
			t.Fatalf("max_I depends only on I, got %s", key)
		}
	}
	if len(seen) != 39 {
		t.Fatalf("declared partials = %d, want 39", len(seen))
	}
}

func TestBatchValidate(t *testing.T) {
	ones := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 1
		}
		return out
	}
	nodes := Nodes{
		S: ones(2), E: ones(2), I: ones(2), R: ones(2), D: ones(2),
		Alpha: ones(2), Beta: ones(2), Sigma: ones(2), Gamma: ones(2), Epsilon: ones(2), Mu: ones(2),
		T: ones(2),
	}
	batch := Batch{Nodes: nodes}
	if err := batch.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	clone := batch.Clone()
	clone.Nodes.S[0] = 42
	if batch.Nodes.S[0] != 1 {
		t.Fatal("clone must not alias the original")
	}

	batch.Nodes.T = ones(3)
	if err := batch.Validate(); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if err := (Batch{}).Validate(); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected empty batch error, got %v", err)
	}
}
