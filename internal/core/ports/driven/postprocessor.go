package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// PostProcessor turns a prepared record into chunks.
// PostProcessors are chained in a pipeline: the claims processor emits
// claim_1 and claim_set, the spec processor emits spec.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives the chunks produced so far and returns them with its own appended.
	// A processor that cannot produce its chunk returns an error wrapping
	// domain.ErrNoClaimBoundary or domain.ErrMissingInput, which excludes the family.
	Process(ctx context.Context, rec *domain.PreparedRecord, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the record through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, rec *domain.PreparedRecord) ([]domain.Chunk, error)
}
