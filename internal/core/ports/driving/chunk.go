package driving

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// ChunkGenerator turns validated text records into a governed chunk set.
type ChunkGenerator interface {
	// Generate produces the three chunk populations for every usable family.
	// Families that cannot yield all three chunks are excluded entirely and
	// listed in the report. A symmetry violation returns a *domain.SymmetryError.
	Generate(ctx context.Context, records []domain.TextRecord) (*domain.ChunkSet, *domain.ChunkReport, error)
}
