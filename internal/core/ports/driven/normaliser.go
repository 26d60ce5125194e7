package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// Normaliser applies one deterministic text step to a prepared record.
// Normalisers may rewrite texts, attach language evidence or add
// governance flags. They never drop a record; exclusion is the chunk
// generator's decision.
type Normaliser interface {
	// Name returns the normaliser name for logging and configuration.
	Name() string

	// Normalise updates the record in place.
	Normalise(ctx context.Context, rec *domain.PreparedRecord) error
}
