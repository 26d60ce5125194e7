package mcp

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
)

// mockEvaluator implements driving.Evaluator for testing.
type mockEvaluator struct {
	hits    []domain.FamilyHit
	err     error
	lastCol domain.Collection
	lastK   int
}

func (m *mockEvaluator) Run(_ context.Context, _ driving.EvalRequest) (*domain.EvalSummary, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockEvaluator) Query(_ context.Context, col domain.Collection, _ string, topK int) ([]domain.FamilyHit, error) {
	m.lastCol = col
	m.lastK = topK
	if m.err != nil {
		return nil, m.err
	}
	return m.hits, nil
}

// mockBuildService implements driving.BuildService for testing.
type mockBuildService struct {
	collections []domain.Collection
	listErr     error
	report      *domain.GateReport
	verifyErr   error
}

func (m *mockBuildService) Build(_ context.Context, _ driving.BuildRequest) (*domain.BuildResult, error) {
	return nil, domain.ErrNotImplemented
}

func (m *mockBuildService) Verify(_ context.Context, _ string) (*domain.GateReport, error) {
	return m.report, m.verifyErr
}

func (m *mockBuildService) Collections(_ context.Context) ([]domain.Collection, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.collections, nil
}
