package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// QuerySetLoader reads frozen query sets.
type QuerySetLoader interface {
	// LoadQuerySet reads a query set. The stored hash is returned as-is;
	// verification is the evaluator's job.
	LoadQuerySet(ctx context.Context, path string) (*domain.QuerySet, error)
}

// RunStore persists evaluation output.
type RunStore interface {
	// SaveRun writes raw per-query records and the summary for one run.
	SaveRun(ctx context.Context, records []domain.RunRecord, summary *domain.EvalSummary) error
}
