package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// TextRecordSource supplies validated text records from the acquisition lane.
type TextRecordSource interface {
	// Records returns every record in source order.
	Records(ctx context.Context) ([]domain.TextRecord, error)
}

// ChunkSetStore persists chunk sets, one file per chunk type.
type ChunkSetStore interface {
	// Save writes the chunk set and its generation report.
	Save(ctx context.Context, set *domain.ChunkSet, report *domain.ChunkReport) error

	// Load reads a chunk set back. Callers must re-validate it.
	Load(ctx context.Context) (*domain.ChunkSet, error)
}
