package jsonl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Run file names.
const (
	RecordsFile = "records.jsonl"
	SummaryFile = "summary.json"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore writes each evaluation run into <dir>/<run-id>/.
type RunStore struct {
	dir string
}

// NewRunStore creates a run store under dir.
func NewRunStore(dir string) *RunStore {
	return &RunStore{dir: dir}
}

// SaveRun writes records.jsonl and summary.json. A run directory is
// written once; an existing one is refused.
func (d *RunStore) SaveRun(_ context.Context, records []domain.RunRecord, summary *domain.EvalSummary) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("%w: run summary needs a run id", domain.ErrMissingInput)
	}
	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}
	runDir := filepath.Join(d.dir, summary.RunID)
	if err := os.Mkdir(runDir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: run %s", domain.ErrAlreadyExists, summary.RunID)
		}
		return fmt.Errorf("creating run directory: %w", err)
	}
	if err := writeLines(filepath.Join(runDir, RecordsFile), records); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, SummaryFile), summary)
}

// LoadRun reads a saved run.
func (d *RunStore) LoadRun(runID string) ([]domain.RunRecord, *domain.EvalSummary, error) {
	runDir := filepath.Join(d.dir, runID)
	records, err := readLines[domain.RunRecord](filepath.Join(runDir, RecordsFile))
	if err != nil {
		if isNotExist(err) {
			return nil, nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
		}
		return nil, nil, err
	}
	summaries, err := readJSON[domain.EvalSummary](filepath.Join(runDir, SummaryFile))
	if err != nil {
		return nil, nil, err
	}
	return records, summaries, nil
}
