package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
)

// promotedCollection builds and promotes a collection of n families.
func promotedCollection(t *testing.T, store *memory.CollectionStore, n int) domain.Collection {
	t.Helper()
	result, err := newTestOrchestrator(store, &stubEmbedder{}).Build(context.Background(), buildRequest(testChunkSet(t, n), "run-1"))
	require.NoError(t, err)
	return *result.Collection
}

func testQuerySet(t *testing.T) *domain.QuerySet {
	t.Helper()
	qs := &domain.QuerySet{
		Name: "smoke",
		Queries: []domain.Query{
			{QueryID: "q1", QueryType: "topic", QueryText: "fastening device for family F002"},
			{QueryID: "q2", QueryType: "topic", QueryText: "clip held by the spring releases under load"},
		},
	}
	hash, err := identity.QuerySetHash(qs.Queries)
	require.NoError(t, err)
	qs.Hash = hash
	return qs
}

func evalRequest(qs *domain.QuerySet, cols ...domain.Collection) driving.EvalRequest {
	return driving.EvalRequest{
		RunID:       "eval-1",
		QuerySet:    qs,
		Collections: cols,
		TopK:        3,
		NResults:    9,
	}
}

func TestEvalService_Run(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 3)
	runs := memory.NewRunStore()
	svc := NewEvalService(store, &stubEmbedder{}, runs, newFlatIndex, WithEvalClock(fixedClock))
	defer svc.Close()

	summary, err := svc.Run(context.Background(), evalRequest(testQuerySet(t), col))
	require.NoError(t, err)

	assert.Equal(t, "eval-1", summary.RunID)
	assert.Equal(t, 2, summary.Queries)
	assert.Equal(t, 2, summary.Records)
	assert.Equal(t, []string{col.Name}, summary.Layers)
	assert.Empty(t, summary.Overlap)
	assert.Nil(t, summary.Recall)
	assert.Equal(t, testNow, summary.CreatedAt)

	records, saved, ok := runs.Run("eval-1")
	require.True(t, ok)
	assert.Equal(t, summary, saved)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, summary.QuerySetHash, rec.QuerySetHash)
		assert.Len(t, rec.Hits, 3)
		for i, hit := range rec.Hits {
			assert.Equal(t, i+1, hit.Rank)
		}
	}
}

func TestEvalService_Run_SplitLayersAndRecall(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 3)
	svc := NewEvalService(store, &stubEmbedder{}, nil, newFlatIndex)
	defer svc.Close()

	req := evalRequest(testQuerySet(t), col)
	req.SplitLayers = true
	req.GroundTruth = map[string][]string{"q1": {"F002"}}

	summary, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, summary.Layers, 3)
	assert.Equal(t, col.Name+"/claim_1", summary.Layers[0])
	assert.Equal(t, 6, summary.Records)
	require.Len(t, summary.Overlap, 3)
	for _, pair := range summary.Overlap {
		// Every layer returns all three families at K=3.
		assert.InDelta(t, 1.0, pair.Jaccard, 1e-9)
	}
	for _, name := range summary.Layers {
		assert.InDelta(t, 1.0, summary.Recall[name], 1e-9, name)
	}
}

func TestEvalService_Run_TamperedQuerySet(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 2)
	runs := memory.NewRunStore()
	svc := NewEvalService(store, &stubEmbedder{}, runs, newFlatIndex)

	qs := testQuerySet(t)
	qs.Queries[1].QueryText = "edited after freezing"

	_, err := svc.Run(context.Background(), evalRequest(qs, col))
	require.ErrorIs(t, err, domain.ErrQuerySetTampered)
	_, _, ok := runs.Run("eval-1")
	assert.False(t, ok)

	qs = testQuerySet(t)
	qs.Hash = ""
	_, err = svc.Run(context.Background(), evalRequest(qs, col))
	assert.ErrorIs(t, err, domain.ErrQuerySetTampered)
}

func TestEvalService_Run_RefusesUnpromoted(t *testing.T) {
	store := memory.NewCollectionStore()
	store.FailPromote = errors.New("rename interrupted")
	_, err := newTestOrchestrator(store, &stubEmbedder{}).Build(context.Background(), buildRequest(testChunkSet(t, 3), "run-1"))
	require.Error(t, err)

	staged := store.Staged()
	require.Len(t, staged, 1)
	col := domain.Collection{
		Name:               staged[0].Name(),
		EmbeddingVersionID: staged[0].EmbeddingVersionID(),
		Path:               staged[0].Path(),
	}

	svc := NewEvalService(store, &stubEmbedder{}, nil, newFlatIndex)
	_, err = svc.Run(context.Background(), evalRequest(testQuerySet(t), col))
	assert.ErrorIs(t, err, domain.ErrNotPromoted)
}

func TestEvalService_Run_ModelMismatch(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 2)
	svc := NewEvalService(store, &stubEmbedder{model: "other-embed"}, nil, newFlatIndex)

	_, err := svc.Run(context.Background(), evalRequest(testQuerySet(t), col))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// promotedModelCollection builds and promotes n families embedded with model.
func promotedModelCollection(t *testing.T, store *memory.CollectionStore, model string, n int) domain.Collection {
	t.Helper()
	req := buildRequest(testChunkSet(t, n), "run-"+model)
	req.Version.Model = model
	result, err := newTestOrchestrator(store, &stubEmbedder{model: model}).Build(context.Background(), req)
	require.NoError(t, err)
	return *result.Collection
}

func TestEvalService_Run_ComparesModels(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCollectionStore()
	colA := promotedModelCollection(t, store, "modelA", 3)
	colB := promotedModelCollection(t, store, "modelB", 3)

	queryA := &stubEmbedder{model: "modelA"}
	queryB := &stubEmbedder{model: "modelB"}
	var resolved []string
	resolve := func(_ context.Context, model string, dim int) (driven.EmbeddingService, error) {
		assert.Equal(t, stubDims, dim)
		resolved = append(resolved, model)
		if model == "modelB" {
			return queryB, nil
		}
		return nil, fmt.Errorf("no embedder for %s", model)
	}
	svc := NewEvalService(store, queryA, nil, newFlatIndex, WithQueryEmbedders(resolve))
	defer svc.Close()

	summary, err := svc.Run(ctx, evalRequest(testQuerySet(t), colA, colB))
	require.NoError(t, err)
	assert.Equal(t, []string{colA.Name, colB.Name}, summary.Layers)
	assert.Equal(t, 4, summary.Records)
	require.Len(t, summary.Overlap, 1)
	assert.Equal(t, 2, queryA.calls(), "one query embedding per model per query")
	assert.Equal(t, 2, queryB.calls())

	_, err = svc.Query(ctx, colB, "clip", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, queryB.calls())
	assert.Equal(t, []string{"modelB"}, resolved, "resolved embedders are cached per model")
}

func TestEvalService_Run_ResolvedEmbedderServesWrongModel(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedModelCollection(t, store, "modelB", 2)
	resolve := func(_ context.Context, _ string, _ int) (driven.EmbeddingService, error) {
		return &stubEmbedder{model: "modelC"}, nil
	}
	svc := NewEvalService(store, &stubEmbedder{model: "modelA"}, nil, newFlatIndex, WithQueryEmbedders(resolve))

	_, err := svc.Run(context.Background(), evalRequest(testQuerySet(t), col))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEvalService_Run_InvalidRequests(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 1)
	svc := NewEvalService(store, &stubEmbedder{}, nil, newFlatIndex)

	tests := []struct {
		name   string
		mutate func(*driving.EvalRequest)
		want   error
	}{
		{"no query set", func(r *driving.EvalRequest) { r.QuerySet = nil }, domain.ErrMissingInput},
		{"no collections", func(r *driving.EvalRequest) { r.Collections = nil }, domain.ErrMissingInput},
		{"zero top k", func(r *driving.EvalRequest) { r.TopK = 0 }, domain.ErrInvalidInput},
		{"n results below top k", func(r *driving.EvalRequest) { r.NResults = 2 }, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := evalRequest(testQuerySet(t), col)
			tt.mutate(&req)
			_, err := svc.Run(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvalService_Query(t *testing.T) {
	store := memory.NewCollectionStore()
	col := promotedCollection(t, store, 3)
	svc := NewEvalService(store, &stubEmbedder{}, nil, newFlatIndex)
	defer svc.Close()

	hits, err := svc.Query(context.Background(), col, "fastening device for family F002", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Rank)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.NotEqual(t, hits[0].FamilyID, hits[1].FamilyID)

	_, err = svc.Query(context.Background(), col, "  ", 2)
	assert.ErrorIs(t, err, domain.ErrMissingInput)
	_, err = svc.Query(context.Background(), col, "clip", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_CollapsesFamiliesAndBreaksTies(t *testing.T) {
	ly := &layer{
		name:  "test",
		index: newFlatIndex(2),
		meta:  make(map[string]domain.VectorMetadata),
		text:  make(map[string]string),
	}
	add := func(family string, ct domain.ChunkType, v []float32) {
		id := family + "#" + string(ct) + "#e"
		require.NoError(t, ly.add(context.Background(), domain.Vector{
			VectorID:  id,
			Embedding: v,
			Text:      "text of " + id,
			Metadata:  domain.VectorMetadata{VectorID: id, FamilyID: family, ChunkType: ct},
		}))
	}
	add("F2", domain.ChunkTypeClaim1, []float32{1, 0})
	add("F1", domain.ChunkTypeSpec, []float32{1, 0.5})
	add("F1", domain.ChunkTypeClaim1, []float32{1, 0})
	add("F3", domain.ChunkTypeSpec, []float32{0, 1})

	hits, err := search(context.Background(), ly, []float32{1, 0}, 2, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "F1", hits[0].FamilyID)
	assert.Equal(t, "F1#claim_1#e", hits[0].VectorID)
	assert.Equal(t, domain.ChunkTypeClaim1, hits[0].ChunkType)
	assert.Equal(t, "F2", hits[1].FamilyID)
	assert.Equal(t, 2, hits[1].Rank)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-12)
}

func TestSearch_UnknownVector(t *testing.T) {
	idx := newFlatIndex(2)
	require.NoError(t, idx.Add(context.Background(), "ghost", []float32{1, 0}))
	ly := &layer{name: "test", index: idx, meta: map[string]domain.VectorMetadata{}}

	_, err := search(context.Background(), ly, []float32{1, 0}, 1, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, jaccard(nil, nil), 1e-9)
	assert.InDelta(t, 1.0, jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.InDelta(t, 0.0, jaccard([]string{"a"}, []string{"b"}), 1e-9)
}

func TestRecall_OnlyQueriesWithTruth(t *testing.T) {
	byLayer := map[string]map[string][]string{
		"L": {"q1": {"a", "b"}, "q2": {"c"}},
	}
	got := recall([]string{"L"}, byLayer, map[string][]string{"q1": {"a", "z"}})
	assert.InDelta(t, 0.5, got["L"], 1e-9)
}

var _ driven.VectorIndexFactory = newFlatIndex
