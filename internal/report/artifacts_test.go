package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"gonum.org/v1/gonum/mat"

	"epimit/internal/evaluator"
	"epimit/internal/model"
	"epimit/internal/scenario"
)

func sampleArtifacts(t *testing.T, id, created string) Artifacts {
	t.Helper()

	batch, err := scenario.Reference(scenario.DefaultReferenceOptions())
	if err != nil {
		t.Fatalf("reference scenario: %v", err)
	}
	ev := evaluator.Default()
	result, jac, err := ev.EvaluateWithPartials(batch)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return Artifacts{
		Record: model.EvaluationRecord{
			VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
			ID:              id,
			Scenario:        scenario.KindReference,
			CreatedAtUTC:    created,
			Settings:        ev.Config().Settings(),
			Batch:           batch,
			Result:          result,
		},
		Jacobian: &jac,
	}
}

func TestWriteAndExportArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	artifacts := sampleArtifacts(t, "eval-123", "2026-01-01T00:00:00Z")
	artifacts.Partials = &model.PartialsReport{ID: "eval-123", Tolerance: 1e-5, Passed: true}

	runDir, err := WriteArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	all := []string{batchFile, resultFile, jacobianFile, partialsFile, nodesFile}
	for _, file := range all {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	exportedDir, err := Export(baseDir, "eval-123", outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	for _, file := range all {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}
}

func TestWriteArtifactsWithoutOptionalFiles(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts(t, "eval-plain", "2026-01-01T00:00:00Z")
	artifacts.Jacobian = nil

	runDir, err := WriteArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{jacobianFile, partialsFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent, got err=%v", file, err)
		}
	}

	exportedDir, err := Export(baseDir, "eval-plain", t.TempDir())
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportedDir, nodesFile)); err != nil {
		t.Fatalf("expected exported nodes.csv: %v", err)
	}
}

func TestWriteArtifactsRequiresID(t *testing.T) {
	artifacts := sampleArtifacts(t, "", "2026-01-01T00:00:00Z")
	if _, err := WriteArtifacts(t.TempDir(), artifacts); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestReadBackArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts(t, "eval-read", "2026-01-01T00:00:00Z")
	if _, err := WriteArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	batch, ok, err := ReadBatch(baseDir, "eval-read")
	if err != nil || !ok {
		t.Fatalf("read batch: ok=%t err=%v", ok, err)
	}
	if batch.Nodes.Len() != artifacts.Record.Batch.Nodes.Len() {
		t.Fatalf("unexpected node count: got=%d want=%d", batch.Nodes.Len(), artifacts.Record.Batch.Nodes.Len())
	}

	rows := readCSV(t, filepath.Join(baseDir, "eval-read", nodesFile))
	if len(rows) != batch.Nodes.Len()+1 {
		t.Fatalf("unexpected nodes.csv rows: got=%d want=%d", len(rows), batch.Nodes.Len()+1)
	}
	idotCol := -1
	for i, name := range rows[0] {
		if name == "Idot" {
			idotCol = i
		}
	}
	if idotCol < 0 {
		t.Fatalf("nodes.csv header lacks Idot: %v", rows[0])
	}
	for i, row := range rows[1:] {
		got, err := strconv.ParseFloat(row[idotCol], 64)
		if err != nil {
			t.Fatalf("parse Idot[%d]: %v", i, err)
		}
		if got != artifacts.Record.Result.Idot[i] {
			t.Fatalf("Idot[%d] round trip mismatch: got=%v want=%v", i, got, artifacts.Record.Result.Idot[i])
		}
	}

	if _, ok, err := ReadPartials(baseDir, "eval-read"); err != nil || ok {
		t.Fatalf("expected missing partials report, ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadBatch(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing batch, ok=%t err=%v", ok, err)
	}
}

func TestWriteDenseJacobian(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts(t, "eval-dense", "2026-01-01T00:00:00Z")
	n := artifacts.Record.Batch.Nodes.Len()
	artifacts.Dense = artifacts.Jacobian.Dense(n)

	runDir, err := WriteArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	rows := readCSV(t, filepath.Join(runDir, denseFile))
	wantRows, wantCols := model.DenseDims(n)
	if len(rows) != wantRows+1 || len(rows[0]) != wantCols+1 {
		t.Fatalf("unexpected dense csv shape: %dx%d, want %dx%d", len(rows), len(rows[0]), wantRows+1, wantCols+1)
	}

	row := model.DenseRow(model.OutputIdot, 2, n) + 1
	col := model.DenseCol(model.InputGamma, 2, n) + 1
	if rows[row][0] != "Idot[2]" || rows[0][col] != "gamma[2]" {
		t.Fatalf("unexpected labels: row=%s col=%s", rows[row][0], rows[0][col])
	}
	got, err := strconv.ParseFloat(rows[row][col], 64)
	if err != nil {
		t.Fatalf("parse dense entry: %v", err)
	}
	want := artifacts.Jacobian.Diagonals[model.Key{Output: model.OutputIdot, Input: model.InputGamma}][2]
	if got != want {
		t.Fatalf("dIdot/dgamma[2] = %v, want %v", got, want)
	}
	if rows[len(rows)-1][0] != string(model.OutputMaxI) || rows[0][len(rows[0])-1] != string(model.InputTOff) {
		t.Fatalf("unexpected trailing labels: %s %s", rows[len(rows)-1][0], rows[0][len(rows[0])-1])
	}

	exported, err := Export(baseDir, "eval-dense", t.TempDir())
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exported, denseFile)); err != nil {
		t.Fatalf("expected exported dense jacobian: %v", err)
	}
}

func TestWriteDenseJacobianRejectsWrongShape(t *testing.T) {
	artifacts := sampleArtifacts(t, "eval-dense-bad", "2026-01-01T00:00:00Z")
	artifacts.Dense = mat.NewDense(3, 3, nil)
	if _, err := WriteArtifacts(t.TempDir(), artifacts); err == nil {
		t.Fatal("expected error for mismatched dense jacobian")
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestReadRecordAndWritePartials(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts(t, "eval-record", "2026-01-02T00:00:00Z")
	if _, err := WriteArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	record, ok, err := ReadRecord(baseDir, "eval-record")
	if err != nil || !ok {
		t.Fatalf("read record: ok=%t err=%v", ok, err)
	}
	if record.ID != "eval-record" || record.Scenario != scenario.KindReference {
		t.Fatalf("unexpected record metadata: %+v", record)
	}
	if record.Settings != artifacts.Record.Settings {
		t.Fatalf("unexpected settings: got=%+v want=%+v", record.Settings, artifacts.Record.Settings)
	}
	if record.Batch.Shape != artifacts.Record.Batch.Shape {
		t.Fatalf("unexpected shape: got=%+v want=%+v", record.Batch.Shape, artifacts.Record.Batch.Shape)
	}

	if err := WritePartials(baseDir, "eval-record", model.PartialsReport{ID: "eval-record", Passed: true}); err != nil {
		t.Fatalf("write partials: %v", err)
	}
	partials, ok, err := ReadPartials(baseDir, "eval-record")
	if err != nil || !ok || !partials.Passed {
		t.Fatalf("read partials: ok=%t err=%v report=%+v", ok, err, partials)
	}

	if err := WritePartials(baseDir, "missing", model.PartialsReport{}); err == nil {
		t.Fatal("expected error writing partials for missing evaluation")
	}
	if _, ok, err := ReadRecord(baseDir, "missing"); err != nil || ok {
		t.Fatalf("expected missing record, ok=%t err=%v", ok, err)
	}
}

func TestIndexNewestFirst(t *testing.T) {
	baseDir := t.TempDir()

	entries := []IndexEntry{
		{ID: "a", Scenario: "random", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "b", Scenario: "random", CreatedAtUTC: "2026-01-03T00:00:00Z"},
		{ID: "c", Scenario: "reference", CreatedAtUTC: "2026-01-02T00:00:00Z"},
		{ID: "d", Scenario: "reference", CreatedAtUTC: "2026-01-03T00:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendIndex(baseDir, entry); err != nil {
			t.Fatalf("append %s: %v", entry.ID, err)
		}
	}

	listed, err := ListIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	want := []string{"d", "b", "c", "a"}
	if len(listed) != len(want) {
		t.Fatalf("unexpected index size: got=%d want=%d", len(listed), len(want))
	}
	for i := range want {
		if listed[i].ID != want[i] {
			t.Fatalf("unexpected order at %d: got=%s want=%s", i, listed[i].ID, want[i])
		}
	}
}

func TestAppendIndexReplacesExistingEntry(t *testing.T) {
	baseDir := t.TempDir()
	passed := true

	if err := AppendIndex(baseDir, IndexEntry{ID: "x", CreatedAtUTC: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := AppendIndex(baseDir, IndexEntry{ID: "x", CreatedAtUTC: "2026-01-01T00:00:00Z", PartialsPassed: &passed}); err != nil {
		t.Fatalf("append replacement: %v", err)
	}

	listed, err := ListIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one entry, got %d", len(listed))
	}
	if listed[0].PartialsPassed == nil || !*listed[0].PartialsPassed {
		t.Fatalf("expected replaced entry to carry partials status, got %+v", listed[0])
	}
}

func TestListIndexMissingFile(t *testing.T) {
	listed, err := ListIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected empty index, got %d", len(listed))
	}
}

func TestEntryFor(t *testing.T) {
	artifacts := sampleArtifacts(t, "eval-entry", "2026-01-01T00:00:00Z")
	entry := EntryFor(artifacts)
	if entry.PartialsPassed != nil {
		t.Fatal("expected no partials status without a report")
	}
	if entry.Nodes != artifacts.Record.Batch.Nodes.Len() || entry.MaxI != artifacts.Record.Result.MaxI {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	artifacts.Partials = &model.PartialsReport{Passed: false}
	entry = EntryFor(artifacts)
	if entry.PartialsPassed == nil || *entry.PartialsPassed {
		t.Fatalf("expected failed partials status, got %+v", entry.PartialsPassed)
	}
}
