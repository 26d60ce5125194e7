package driving

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// EvalRequest describes one Track-A retrieval run.
type EvalRequest struct {
	// RunID names the evaluation run. Generated when empty.
	RunID string

	// QuerySet is the frozen query set; its hash is verified before running.
	QuerySet *domain.QuerySet

	// Collections are the promoted collections to compare.
	Collections []domain.Collection

	// TopK is the family-level cut-off.
	TopK int

	// NResults is the number of chunk candidates fetched before collapsing.
	NResults int

	// GroundTruth maps query id to relevant family ids. Recall is computed
	// only when it is supplied.
	GroundTruth map[string][]string

	// SplitLayers evaluates each chunk type of a collection as its own layer.
	SplitLayers bool
}

// Evaluator runs retrieval comparisons over promoted collections.
type Evaluator interface {
	// Run evaluates every query against every collection and persists the
	// raw records and summary.
	Run(ctx context.Context, req EvalRequest) (*domain.EvalSummary, error)

	// Query runs one free-text query against one collection.
	Query(ctx context.Context, col domain.Collection, text string, topK int) ([]domain.FamilyHit, error)
}
