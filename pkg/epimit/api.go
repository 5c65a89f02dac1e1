// Package epimit is the library entry point for batch SEIRD evaluations:
// it evaluates batches, archives them and checks their partial derivatives.
package epimit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"epimit/internal/check"
	"epimit/internal/evaluator"
	"epimit/internal/model"
	"epimit/internal/report"
	"epimit/internal/storage"
)

const (
	defaultReportsDir = "reports"
	defaultExportsDir = "exports"
	defaultDBPath     = "epimit.db"

	// Fixed width keeps timestamps ordered under string comparison.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ReportsDir string
	ExportsDir string
	// Evaluator defaults to evaluator.DefaultConfig when zero.
	Evaluator evaluator.Config
}

type Client struct {
	store     storage.Store
	evaluator *evaluator.Evaluator

	reportsDir string
	exportsDir string
	now        func() time.Time
}

type EvaluateRequest struct {
	// Scenario labels the batch in the archive.
	Scenario string
	Seed     int64
	Batch    model.Batch
	// WithJacobian also writes jacobian.json.
	WithJacobian bool
	// WithDense writes the flat Jacobian as jacobian_dense.csv.
	WithDense bool
	// CheckPartials runs the finite-difference check on the batch.
	CheckPartials bool
	Check         check.Options
}

type EvaluateSummary struct {
	RunID        string
	ArtifactsDir string
	Nodes        int
	MaxI         float64
	Result       model.EvaluationResult
	Partials     *model.PartialsReport
}

type CheckRequest struct {
	RunID   string
	Latest  bool
	Options check.Options
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Scenario       string
	Seed           int64
	Nodes          int
	MaxI           float64
	PartialsPassed *bool
}

type RunDetail struct {
	Record   model.EvaluationRecord
	Partials *model.PartialsReport
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	reportsDir := opts.ReportsDir
	if reportsDir == "" {
		reportsDir = defaultReportsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	evCfg := opts.Evaluator
	if evCfg == (evaluator.Config{}) {
		evCfg = evaluator.DefaultConfig()
	}
	ev, err := evaluator.New(evCfg)
	if err != nil {
		return nil, fmt.Errorf("evaluator config: %w", err)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		evaluator:  ev,
		reportsDir: reportsDir,
		exportsDir: exportsDir,
		now:        time.Now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Reset(ctx context.Context) error {
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

// Evaluate runs the batch through the evaluator, archives the record and
// writes its artifacts.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if req.Scenario == "" {
		req.Scenario = "custom"
	}
	if err := c.store.Init(ctx); err != nil {
		return EvaluateSummary{}, err
	}

	result, jac, err := c.evaluator.EvaluateWithPartials(req.Batch)
	if err != nil {
		return EvaluateSummary{}, err
	}

	record := model.EvaluationRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Scenario:        req.Scenario,
		Seed:            req.Seed,
		CreatedAtUTC:    c.now().UTC().Format(timestampLayout),
		Settings:        c.evaluator.Config().Settings(),
		Batch:           req.Batch.Clone(),
		Result:          result,
	}
	artifacts := report.Artifacts{Record: record}
	if req.WithJacobian {
		artifacts.Jacobian = &jac
	}
	if req.WithDense {
		artifacts.Dense = jac.Dense(record.Batch.Nodes.Len())
	}

	if req.CheckPartials {
		partials, err := check.Partials(c.evaluator, record.Batch, req.Check)
		if err != nil {
			return EvaluateSummary{}, err
		}
		partials.ID = record.ID
		artifacts.Partials = &partials
	}

	if err := c.store.SaveEvaluation(ctx, record); err != nil {
		return EvaluateSummary{}, err
	}
	if artifacts.Partials != nil {
		if err := c.store.SavePartialsReport(ctx, *artifacts.Partials); err != nil {
			return EvaluateSummary{}, err
		}
	}

	runDir, err := report.WriteArtifacts(c.reportsDir, artifacts)
	if err != nil {
		return EvaluateSummary{}, err
	}
	if err := report.AppendIndex(c.reportsDir, report.EntryFor(artifacts)); err != nil {
		return EvaluateSummary{}, err
	}

	return EvaluateSummary{
		RunID:        record.ID,
		ArtifactsDir: runDir,
		Nodes:        record.Batch.Nodes.Len(),
		MaxI:         result.MaxI,
		Result:       result,
		Partials:     artifacts.Partials,
	}, nil
}

// CheckPartials re-runs the finite-difference check on an archived batch
// with the settings it was evaluated with.
func (c *Client) CheckPartials(ctx context.Context, req CheckRequest) (model.PartialsReport, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "check")
	if err != nil {
		return model.PartialsReport{}, err
	}
	record, err := c.loadRecord(ctx, runID)
	if err != nil {
		return model.PartialsReport{}, err
	}

	ev, err := evaluator.New(evaluator.Config{
		InfectionFloor: record.Settings.InfectionFloor,
		ExpCeiling:     record.Settings.ExpCeiling,
		Sharpness:      record.Settings.Sharpness,
	})
	if err != nil {
		return model.PartialsReport{}, fmt.Errorf("archived settings for %s: %w", runID, err)
	}

	partials, err := check.Partials(ev, record.Batch, req.Options)
	if err != nil {
		return model.PartialsReport{}, err
	}
	partials.ID = runID

	if err := c.store.SavePartialsReport(ctx, partials); err != nil {
		return model.PartialsReport{}, err
	}
	if err := report.WritePartials(c.reportsDir, runID, partials); err != nil {
		return model.PartialsReport{}, err
	}
	entry := report.EntryFor(report.Artifacts{Record: record, Partials: &partials})
	if err := report.AppendIndex(c.reportsDir, entry); err != nil {
		return model.PartialsReport{}, err
	}
	return partials, nil
}

func (c *Client) Runs(_ context.Context, limit int) ([]RunItem, error) {
	if limit <= 0 {
		limit = 20
	}

	entries, err := report.ListIndex(c.reportsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.ID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Scenario:       e.Scenario,
			Seed:           e.Seed,
			Nodes:          e.Nodes,
			MaxI:           e.MaxI,
			PartialsPassed: e.PartialsPassed,
		})
	}
	return out, nil
}

// Show returns an archived evaluation. An empty id selects the most recent one.
func (c *Client) Show(ctx context.Context, id string) (RunDetail, error) {
	runID, err := c.resolveRunID(ctx, id, id == "", "show")
	if err != nil {
		return RunDetail{}, err
	}
	record, err := c.loadRecord(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}

	detail := RunDetail{Record: record}
	partials, ok, err := c.store.GetPartialsReport(ctx, runID)
	if err != nil {
		return RunDetail{}, err
	}
	if !ok {
		partials, ok, err = report.ReadPartials(c.reportsDir, runID)
		if err != nil {
			return RunDetail{}, err
		}
	}
	if ok {
		detail.Partials = &partials
	}
	return detail, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := report.Export(c.reportsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool, action string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", fmt.Errorf("%s requires run id or latest", action)
	}
	if runID != "" {
		return runID, nil
	}

	entries, err := report.ListIndex(c.reportsDir)
	if err != nil {
		return "", err
	}
	if len(entries) > 0 {
		return entries[0].ID, nil
	}

	// The index lives with the artifacts; a persistent store may still hold
	// evaluations after the reports directory was cleared.
	if err := c.store.Init(ctx); err != nil {
		return "", err
	}
	records, err := c.store.ListEvaluations(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no evaluations available to %s", action)
	}
	return records[0].ID, nil
}

// loadRecord prefers the store and falls back to the artifacts directory, so
// a memory store still sees evaluations written by earlier processes.
func (c *Client) loadRecord(ctx context.Context, runID string) (model.EvaluationRecord, error) {
	if err := c.store.Init(ctx); err != nil {
		return model.EvaluationRecord{}, err
	}
	record, ok, err := c.store.GetEvaluation(ctx, runID)
	if err != nil {
		return model.EvaluationRecord{}, err
	}
	if ok {
		return record, nil
	}

	record, ok, err = report.ReadRecord(c.reportsDir, runID)
	if err != nil {
		return model.EvaluationRecord{}, err
	}
	if !ok {
		return model.EvaluationRecord{}, fmt.Errorf("evaluation not found: %s", runID)
	}
	record.VersionedRecord = storage.Stamp()
	return record, nil
}
