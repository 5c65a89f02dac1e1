package storage

import (
	"context"

	"epimit/internal/model"
)

// Store archives evaluation records and partials reports. The evaluator core
// never touches a Store; archiving happens around it.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveEvaluation(ctx context.Context, record model.EvaluationRecord) error
	GetEvaluation(ctx context.Context, id string) (model.EvaluationRecord, bool, error)
	// ListEvaluations returns records newest first; limit <= 0 returns all.
	ListEvaluations(ctx context.Context, limit int) ([]model.EvaluationRecord, error)
	SavePartialsReport(ctx context.Context, report model.PartialsReport) error
	GetPartialsReport(ctx context.Context, id string) (model.PartialsReport, bool, error)
}
