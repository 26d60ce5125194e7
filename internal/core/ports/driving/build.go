package driving

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// BuildRequest carries everything one build needs. Nothing is read from
// global state.
type BuildRequest struct {
	// ChunkSet is the validated chunk set to embed.
	ChunkSet *domain.ChunkSet

	// Version determines the embedding space.
	Version domain.EmbeddingVersion

	// RunID identifies this attempt. Required.
	RunID string

	// Profile is fixed for the life of the build.
	Profile domain.ResourceProfile

	// Filter restricts the chunk set before embedding.
	Filter domain.IsolationFilter
}

// BuildService runs atomic embedding builds.
type BuildService interface {
	// Build stages, validates and promotes one build. The outcome is either
	// promoted or failed; a failed build is never visible to readers and
	// is returned together with an error wrapping domain.ErrGateFailed or
	// the underlying cause.
	Build(ctx context.Context, req BuildRequest) (*domain.BuildResult, error)

	// Verify re-runs the promotion gates against the production collection
	// of a version.
	Verify(ctx context.Context, evid string) (*domain.GateReport, error)

	// Collections lists promoted collections.
	Collections(ctx context.Context) ([]domain.Collection, error)
}
