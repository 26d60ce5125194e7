package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

const testEVID = "hashed/hashed-bow@v1#policy-1"

func newTestServer(t *testing.T, eval *mockEvaluator, builds *mockBuildService) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Evaluator: eval, Builds: builds})
	require.NoError(t, err)
	return server
}

func TestHandleEvaluateQuery(t *testing.T) {
	ctx := context.Background()
	col := domain.Collection{EmbeddingVersionID: testEVID, RunID: "run-1"}

	t.Run("single collection is selected implicitly", func(t *testing.T) {
		eval := &mockEvaluator{hits: []domain.FamilyHit{
			{Rank: 1, FamilyID: "F1", Score: 0.9},
			{Rank: 2, FamilyID: "F2", Score: 0.5},
		}}
		server := newTestServer(t, eval, &mockBuildService{collections: []domain.Collection{col}})

		result, output, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{Query: "a bolt"})
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, testEVID, output.EmbeddingVersionID)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, defaultTopK, eval.lastK)
		assert.Equal(t, "run-1", eval.lastCol.RunID)
	})

	t.Run("explicit version and top_k", func(t *testing.T) {
		other := domain.Collection{EmbeddingVersionID: "other", RunID: "run-2"}
		eval := &mockEvaluator{}
		server := newTestServer(t, eval, &mockBuildService{collections: []domain.Collection{col, other}})

		_, output, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{
			Query:              "a bolt",
			EmbeddingVersionID: "other",
			TopK:               3,
		})
		require.NoError(t, err)
		assert.Equal(t, "other", output.EmbeddingVersionID)
		assert.Equal(t, 3, eval.lastK)
		assert.Equal(t, "run-2", eval.lastCol.RunID)
	})

	t.Run("ambiguous collection requires version", func(t *testing.T) {
		other := domain.Collection{EmbeddingVersionID: "other"}
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{collections: []domain.Collection{col, other}})

		_, _, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{Query: "a bolt"})
		assert.ErrorIs(t, err, domain.ErrMissingInput)
	})

	t.Run("unknown version", func(t *testing.T) {
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{collections: []domain.Collection{col}})

		_, _, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{
			Query:              "a bolt",
			EmbeddingVersionID: "missing",
		})
		assert.ErrorIs(t, err, domain.ErrNotPromoted)
	})

	t.Run("evaluator error is returned", func(t *testing.T) {
		boom := errors.New("boom")
		server := newTestServer(t, &mockEvaluator{err: boom}, &mockBuildService{collections: []domain.Collection{col}})

		_, _, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{Query: "a bolt"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("listing error is wrapped", func(t *testing.T) {
		boom := errors.New("disk gone")
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{listErr: boom})

		_, _, err := server.handleEvaluateQuery(ctx, nil, EvaluateQueryInput{Query: "a bolt"})
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "listing collections")
	})
}

func TestHandleVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("passing report", func(t *testing.T) {
		report := &domain.GateReport{Phase: "verify", Results: []domain.GateResult{
			{Name: domain.GateResourceProfile, Outcome: domain.GatePass},
		}}
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{report: report})

		_, output, err := server.handleVerify(ctx, nil, VerifyInput{EmbeddingVersionID: testEVID})
		require.NoError(t, err)
		assert.True(t, output.Passed)
		assert.Len(t, output.Gates, 1)
	})

	t.Run("failing report is a result", func(t *testing.T) {
		report := &domain.GateReport{Phase: "verify", Results: []domain.GateResult{
			{Name: domain.GateResourceProfile, Outcome: domain.GateFail},
		}}
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{report: report, verifyErr: domain.ErrGateFailed})

		_, output, err := server.handleVerify(ctx, nil, VerifyInput{EmbeddingVersionID: testEVID})
		require.NoError(t, err)
		assert.False(t, output.Passed)
	})

	t.Run("missing collection", func(t *testing.T) {
		server := newTestServer(t, &mockEvaluator{}, &mockBuildService{verifyErr: domain.ErrNotPromoted})

		_, _, err := server.handleVerify(ctx, nil, VerifyInput{EmbeddingVersionID: "nope"})
		assert.ErrorIs(t, err, domain.ErrNotPromoted)
	})
}
