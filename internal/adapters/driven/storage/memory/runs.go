package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure the stores implement their interfaces.
var (
	_ driven.RunStore         = (*RunStore)(nil)
	_ driven.TextRecordSource = (*RecordSource)(nil)
	_ driven.ChunkSetStore    = (*ChunkSetStore)(nil)
)

// RunStore keeps evaluation runs in memory.
type RunStore struct {
	mu        sync.RWMutex
	records   map[string][]domain.RunRecord
	summaries map[string]*domain.EvalSummary
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		records:   make(map[string][]domain.RunRecord),
		summaries: make(map[string]*domain.EvalSummary),
	}
}

// SaveRun stores a run. A run id is written once.
func (s *RunStore) SaveRun(_ context.Context, records []domain.RunRecord, summary *domain.EvalSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("%w: run summary needs a run id", domain.ErrMissingInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.summaries[summary.RunID]; ok {
		return fmt.Errorf("%w: run %s", domain.ErrAlreadyExists, summary.RunID)
	}
	s.records[summary.RunID] = append([]domain.RunRecord(nil), records...)
	s.summaries[summary.RunID] = summary
	return nil
}

// Run returns a stored run.
func (s *RunStore) Run(runID string) ([]domain.RunRecord, *domain.EvalSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[runID]
	return s.records[runID], sum, ok
}

// RecordSource serves a fixed slice of text records.
type RecordSource struct {
	records []domain.TextRecord
}

// NewRecordSource creates a record source.
func NewRecordSource(records ...domain.TextRecord) *RecordSource {
	return &RecordSource{records: records}
}

// Records returns a copy of the records.
func (s *RecordSource) Records(_ context.Context) ([]domain.TextRecord, error) {
	return append([]domain.TextRecord(nil), s.records...), nil
}

// ChunkSetStore keeps the last saved chunk set.
type ChunkSetStore struct {
	mu     sync.RWMutex
	set    *domain.ChunkSet
	report *domain.ChunkReport
}

// NewChunkSetStore creates an empty chunk set store.
func NewChunkSetStore() *ChunkSetStore {
	return &ChunkSetStore{}
}

// Save stores the chunk set and report.
func (s *ChunkSetStore) Save(_ context.Context, set *domain.ChunkSet, report *domain.ChunkReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	s.report = report
	return nil
}

// Load returns the stored chunk set.
func (s *ChunkSetStore) Load(_ context.Context) (*domain.ChunkSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.set == nil {
		return nil, fmt.Errorf("%w: no chunk set saved", domain.ErrNotFound)
	}
	return s.set, nil
}

// Report returns the stored generation report.
func (s *ChunkSetStore) Report() *domain.ChunkReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report
}
