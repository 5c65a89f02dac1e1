package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"epimit/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	evaluations map[string]model.EvaluationRecord
	order       []string
	partials    map[string]model.PartialsReport
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.reset()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

func (s *MemoryStore) reset() {
	s.initialized = true
	s.evaluations = make(map[string]model.EvaluationRecord)
	s.order = nil
	s.partials = make(map[string]model.PartialsReport)
}

func (s *MemoryStore) SaveEvaluation(_ context.Context, record model.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	if _, exists := s.evaluations[record.ID]; !exists {
		s.order = append(s.order, record.ID)
	}
	s.evaluations[record.ID] = record
	return nil
}

func (s *MemoryStore) GetEvaluation(_ context.Context, id string) (model.EvaluationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.evaluations[id]
	return record, ok, nil
}

func (s *MemoryStore) ListEvaluations(_ context.Context, limit int) ([]model.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type indexed struct {
		record model.EvaluationRecord
		idx    int
	}
	items := make([]indexed, 0, len(s.order))
	for i, id := range s.order {
		items = append(items, indexed{record: s.evaluations[id], idx: i})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].record.CreatedAtUTC == items[j].record.CreatedAtUTC {
			// Prefer later saves for equal timestamps.
			return items[i].idx > items[j].idx
		}
		return items[i].record.CreatedAtUTC > items[j].record.CreatedAtUTC
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]model.EvaluationRecord, 0, len(items))
	for _, item := range items {
		out = append(out, item.record)
	}
	return out, nil
}

func (s *MemoryStore) SavePartialsReport(_ context.Context, report model.PartialsReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.partials[report.ID] = report
	return nil
}

func (s *MemoryStore) GetPartialsReport(_ context.Context, id string) (model.PartialsReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.partials[id]
	return report, ok, nil
}
