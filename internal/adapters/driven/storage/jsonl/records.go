package jsonl

import (
	"context"
	"fmt"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure RecordSource implements the interface.
var _ driven.TextRecordSource = (*RecordSource)(nil)

// RecordSource reads text records from a JSONL file.
type RecordSource struct {
	path string
}

// NewRecordSource creates a record source for path.
func NewRecordSource(path string) *RecordSource {
	return &RecordSource{path: path}
}

// Records reads every record in file order.
func (f *RecordSource) Records(ctx context.Context) ([]domain.TextRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := readLines[domain.TextRecord](f.path)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: records file %s", domain.ErrNotFound, f.path)
		}
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return records, nil
}
