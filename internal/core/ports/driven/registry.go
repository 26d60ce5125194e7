package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// NormaliserChain runs the configured normalisers in order.
type NormaliserChain interface {
	// Prepare seeds a prepared record from the raw record and runs every normaliser.
	Prepare(ctx context.Context, rec domain.TextRecord) (*domain.PreparedRecord, error)

	// Names returns the normaliser names in run order.
	Names() []string
}
