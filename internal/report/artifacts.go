package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"epimit/internal/model"
)

const (
	indexFile    = "run_index.json"
	batchFile    = "batch.json"
	resultFile   = "result.json"
	jacobianFile = "jacobian.json"
	partialsFile = "partials.json"
	nodesFile    = "nodes.csv"
	denseFile    = "jacobian_dense.csv"
)

var nodesHeader = []string{"node", "t", "S", "E", "I", "R", "D", "theta", "Sdot", "Edot", "Idot", "Rdot", "Ddot", "sigma_sq"}

type Artifacts struct {
	Record   model.EvaluationRecord
	Jacobian *model.Jacobian
	// Dense is the flat Jacobian, written as a labelled CSV matrix.
	Dense    *mat.Dense
	Partials *model.PartialsReport
}

type resultDocument struct {
	ID           string                  `json:"id"`
	Scenario     string                  `json:"scenario"`
	Seed         int64                   `json:"seed"`
	CreatedAtUTC string                  `json:"created_at_utc"`
	Settings     model.EvaluatorSettings `json:"settings"`
	Result       model.EvaluationResult  `json:"result"`
}

type IndexEntry struct {
	ID             string  `json:"id"`
	Scenario       string  `json:"scenario"`
	Seed           int64   `json:"seed"`
	Nodes          int     `json:"nodes"`
	MaxI           float64 `json:"max_i"`
	PartialsPassed *bool   `json:"partials_passed,omitempty"`
	CreatedAtUTC   string  `json:"created_at_utc"`
}

// EntryFor summarizes artifacts for the run index.
func EntryFor(a Artifacts) IndexEntry {
	entry := IndexEntry{
		ID:           a.Record.ID,
		Scenario:     a.Record.Scenario,
		Seed:         a.Record.Seed,
		Nodes:        a.Record.Batch.Nodes.Len(),
		MaxI:         a.Record.Result.MaxI,
		CreatedAtUTC: a.Record.CreatedAtUTC,
	}
	if a.Partials != nil {
		passed := a.Partials.Passed
		entry.PartialsPassed = &passed
	}
	return entry
}

func WriteArtifacts(baseDir string, a Artifacts) (string, error) {
	if strings.TrimSpace(a.Record.ID) == "" {
		return "", fmt.Errorf("evaluation id is required")
	}

	runDir := filepath.Join(baseDir, a.Record.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, batchFile), a.Record.Batch); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, resultFile), resultDocument{
		ID:           a.Record.ID,
		Scenario:     a.Record.Scenario,
		Seed:         a.Record.Seed,
		CreatedAtUTC: a.Record.CreatedAtUTC,
		Settings:     a.Record.Settings,
		Result:       a.Record.Result,
	}); err != nil {
		return "", err
	}
	if a.Jacobian != nil {
		if err := writeJSON(filepath.Join(runDir, jacobianFile), a.Jacobian); err != nil {
			return "", err
		}
	}
	if a.Dense != nil {
		if err := writeDense(filepath.Join(runDir, denseFile), a.Dense, a.Record.Batch.Nodes.Len()); err != nil {
			return "", err
		}
	}
	if a.Partials != nil {
		if err := writeJSON(filepath.Join(runDir, partialsFile), a.Partials); err != nil {
			return "", err
		}
	}
	if err := writeNodes(filepath.Join(runDir, nodesFile), a.Record.Batch, a.Record.Result); err != nil {
		return "", err
	}
	return runDir, nil
}

func AppendIndex(baseDir string, entry IndexEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("evaluation id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].ID == entry.ID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, indexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, indexFile), index)
}

// ListIndex returns index entries newest first.
func ListIndex(baseDir string) ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []IndexEntry{}, nil
		}
		return nil, err
	}

	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry IndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]IndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// Export copies the artifacts of one evaluation to outDir/<id>.
func Export(baseDir, id, outDir string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("evaluation id is required")
	}

	src := filepath.Join(baseDir, id)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, id)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{batchFile, resultFile, nodesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{jacobianFile, denseFile, partialsFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

// WritePartials stores a partials report next to an existing evaluation.
func WritePartials(baseDir, id string, partials model.PartialsReport) error {
	runDir := filepath.Join(baseDir, id)
	if _, err := os.Stat(runDir); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, partialsFile), partials)
}

// ReadRecord rebuilds an evaluation record from its artifacts.
func ReadRecord(baseDir, id string) (model.EvaluationRecord, bool, error) {
	var doc resultDocument
	ok, err := readJSON(filepath.Join(baseDir, id, resultFile), &doc)
	if err != nil || !ok {
		return model.EvaluationRecord{}, ok, err
	}
	batch, ok, err := ReadBatch(baseDir, id)
	if err != nil || !ok {
		return model.EvaluationRecord{}, ok, err
	}
	return model.EvaluationRecord{
		ID:           doc.ID,
		Scenario:     doc.Scenario,
		Seed:         doc.Seed,
		CreatedAtUTC: doc.CreatedAtUTC,
		Settings:     doc.Settings,
		Batch:        batch,
		Result:       doc.Result,
	}, true, nil
}

func ReadBatch(baseDir, id string) (model.Batch, bool, error) {
	var batch model.Batch
	ok, err := readJSON(filepath.Join(baseDir, id, batchFile), &batch)
	return batch, ok, err
}

func ReadPartials(baseDir, id string) (model.PartialsReport, bool, error) {
	var report model.PartialsReport
	ok, err := readJSON(filepath.Join(baseDir, id, partialsFile), &report)
	return report, ok, err
}

func writeNodes(path string, batch model.Batch, result model.EvaluationResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(nodesHeader); err != nil {
		return err
	}
	nodes := batch.Nodes
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i := 0; i < nodes.Len(); i++ {
		row := []string{
			strconv.Itoa(i),
			format(nodes.T[i]),
			format(nodes.S[i]), format(nodes.E[i]), format(nodes.I[i]), format(nodes.R[i]), format(nodes.D[i]),
			format(result.Theta[i]),
			format(result.Sdot[i]), format(result.Edot[i]), format(result.Idot[i]), format(result.Rdot[i]), format(result.Ddot[i]),
			format(result.SigmaSq[i]),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeDense(path string, dense *mat.Dense, n int) error {
	rowLabels, colLabels := model.DenseLabels(n)
	rows, cols := dense.Dims()
	if rows != len(rowLabels) || cols != len(colLabels) {
		return fmt.Errorf("dense jacobian is %dx%d, want %dx%d for %d nodes", rows, cols, len(rowLabels), len(colLabels), n)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(append([]string{"output"}, colLabels...)); err != nil {
		return err
	}
	record := make([]string, cols+1)
	for r := 0; r < rows; r++ {
		record[0] = rowLabels[r]
		for c := 0; c < cols; c++ {
			record[c+1] = strconv.FormatFloat(dense.At(r, c), 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
