package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
	"github.com/custodia-labs/patentgov/internal/logger"
)

// Ensure EvalService implements the interface.
var _ driving.Evaluator = (*EvalService)(nil)

// previewRunes caps the text preview attached to a family hit.
const previewRunes = 160

// layer is one searchable population: a whole collection, or one chunk
// type of it when layers are split.
type layer struct {
	name     string
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	meta     map[string]domain.VectorMetadata
	text     map[string]string
}

// loaded is a collection read into memory.
type loaded struct {
	col      domain.Collection
	manifest *domain.Manifest
	whole    *layer
	byType   map[domain.ChunkType]*layer
}

func (l *loaded) close() {
	l.whole.index.Close()
	for _, ly := range l.byType {
		ly.index.Close()
	}
}

// QueryEmbedderFunc opens an embedder serving model at dim dimensions.
type QueryEmbedderFunc func(ctx context.Context, model string, dim int) (driven.EmbeddingService, error)

// EvalService runs Track-A retrieval comparisons over promoted collections.
// Queries against a collection are embedded with the model that built it.
type EvalService struct {
	store    driven.CollectionStore
	embedder driven.EmbeddingService
	runs     driven.RunStore
	newIndex driven.VectorIndexFactory
	resolve  QueryEmbedderFunc
	clock    func() time.Time
	tracer   trace.Tracer

	mu        sync.Mutex
	cache     map[string]*loaded
	embedders map[string]driven.EmbeddingService
}

// EvalOption configures an EvalService.
type EvalOption func(*EvalService)

// WithEvalClock sets the clock used for run ids and timestamps.
func WithEvalClock(clock func() time.Time) EvalOption {
	return func(s *EvalService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithQueryEmbedders resolves embedders for collections built with a model
// other than the default embedder's. Resolved embedders are cached per
// model and closed by Close.
func WithQueryEmbedders(fn QueryEmbedderFunc) EvalOption {
	return func(s *EvalService) { s.resolve = fn }
}

// NewEvalService creates an evaluator.
// The runs parameter is optional (can be nil); runs are then not persisted.
func NewEvalService(
	store driven.CollectionStore,
	embedder driven.EmbeddingService,
	runs driven.RunStore,
	newIndex driven.VectorIndexFactory,
	opts ...EvalOption,
) *EvalService {
	s := &EvalService{
		store:     store,
		embedder:  embedder,
		runs:      runs,
		newIndex:  newIndex,
		clock:     time.Now,
		tracer:    otel.Tracer(tracerName),
		cache:     make(map[string]*loaded),
		embedders: make(map[string]driven.EmbeddingService),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run evaluates every query against every layer and persists the records.
func (s *EvalService) Run(ctx context.Context, req driving.EvalRequest) (*domain.EvalSummary, error) {
	ctx, span := s.tracer.Start(ctx, "eval.run")
	defer span.End()

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	hash, err := verifyQuerySet(req.QuerySet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.clock().UTC()
	runID := req.RunID
	if runID == "" {
		runID = "eval-" + now.Format("20060102T150405Z")
	}
	span.SetAttributes(attribute.String("run_id", runID), attribute.String("query_set_hash", hash))

	logger.Section(fmt.Sprintf("Evaluation %s", runID))
	logger.Info("query set %s (%d queries, hash %s)", req.QuerySet.Name, len(req.QuerySet.Queries), short(hash))

	var layers []*layer
	var colNames []string
	for _, col := range req.Collections {
		l, err := s.load(ctx, col)
		if err != nil {
			return nil, err
		}
		colNames = append(colNames, col.Name)
		if req.SplitLayers {
			for _, t := range domain.AllChunkTypes() {
				layers = append(layers, l.byType[t])
			}
			continue
		}
		layers = append(layers, l.whole)
	}

	var records []domain.RunRecord
	byLayer := make(map[string]map[string][]string, len(layers))
	for _, ly := range layers {
		byLayer[ly.name] = make(map[string][]string, len(req.QuerySet.Queries))
	}

	for _, q := range req.QuerySet.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// One embedding per model per query.
		vectors := make(map[string][]float32)
		for _, ly := range layers {
			model := ly.embedder.ModelName()
			emb, ok := vectors[model]
			if !ok {
				emb, err = ly.embedder.Embed(ctx, q.QueryText)
				if err != nil {
					return nil, fmt.Errorf("%w: query %s with %s: %w", domain.ErrEmbedFailed, q.QueryID, model, err)
				}
				vectors[model] = emb
			}
			hits, err := search(ctx, ly, emb, req.TopK, req.NResults)
			if err != nil {
				return nil, fmt.Errorf("query %s on %s: %w", q.QueryID, ly.name, err)
			}
			rec := domain.RunRecord{
				RunID:        runID,
				QuerySetHash: hash,
				QueryID:      q.QueryID,
				QueryType:    q.QueryType,
				QueryText:    q.QueryText,
				Collection:   collectionOf(ly.name),
				Layer:        ly.name,
				TopK:         req.TopK,
				NResults:     req.NResults,
				Hits:         hits,
				CreatedAt:    now,
			}
			records = append(records, rec)
			byLayer[ly.name][q.QueryID] = rec.FamilyIDs()
		}
	}

	names := make([]string, 0, len(layers))
	for _, ly := range layers {
		names = append(names, ly.name)
	}
	summary := &domain.EvalSummary{
		RunID:        runID,
		QuerySet:     req.QuerySet.Name,
		QuerySetHash: hash,
		Collections:  colNames,
		Layers:       names,
		TopK:         req.TopK,
		NResults:     req.NResults,
		Queries:      len(req.QuerySet.Queries),
		Records:      len(records),
		Overlap:      overlap(names, byLayer, req.QuerySet.Queries),
		CreatedAt:    now,
	}
	if len(req.GroundTruth) > 0 {
		summary.Recall = recall(names, byLayer, req.GroundTruth)
	}

	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, records, summary); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}
	logger.Info("evaluated %d queries over %d layers", summary.Queries, len(names))
	return summary, nil
}

// Query runs one free-text query against one promoted collection.
func (s *EvalService) Query(ctx context.Context, col domain.Collection, text string, topK int) ([]domain.FamilyHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrMissingInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput)
	}
	l, err := s.load(ctx, col)
	if err != nil {
		return nil, err
	}
	emb, err := l.whole.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbedFailed, err)
	}
	return search(ctx, l.whole, emb, topK, topK*len(domain.AllChunkTypes()))
}

// Close releases every cached index and resolved embedder.
func (s *EvalService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, l := range s.cache {
		l.close()
		delete(s.cache, key)
	}
	var errs []error
	for key, emb := range s.embedders {
		if err := emb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s embedder: %w", key, err))
		}
		delete(s.embedders, key)
	}
	return errors.Join(errs...)
}

// embedderFor returns the query embedder for a collection's model.
// Callers hold s.mu.
func (s *EvalService) embedderFor(ctx context.Context, col, model string, dim int) (driven.EmbeddingService, error) {
	if model == s.embedder.ModelName() {
		return s.embedder, nil
	}
	key := fmt.Sprintf("%s/%d", model, dim)
	if emb, ok := s.embedders[key]; ok {
		return emb, nil
	}
	if s.resolve == nil {
		return nil, fmt.Errorf("%w: collection %s was embedded with %q, query embedder is %q",
			domain.ErrInvalidInput, col, model, s.embedder.ModelName())
	}
	emb, err := s.resolve(ctx, model, dim)
	if err != nil {
		return nil, fmt.Errorf("query embedder for %s: %w", model, err)
	}
	if got := emb.ModelName(); got != model {
		_ = emb.Close()
		return nil, fmt.Errorf("%w: resolved embedder serves %q, collection %s needs %q",
			domain.ErrInvalidInput, got, col, model)
	}
	if got := emb.Dimensions(); dim > 0 && got != dim {
		_ = emb.Close()
		return nil, fmt.Errorf("%w: %s embeds %d dimensions, collection %s holds %d",
			domain.ErrInvalidInput, model, got, col, dim)
	}
	logger.Debug("query embedder for %s: %s", col, model)
	s.embedders[key] = emb
	return emb, nil
}

func (s *EvalService) checkRequest(req driving.EvalRequest) error {
	switch {
	case req.QuerySet == nil || len(req.QuerySet.Queries) == 0:
		return fmt.Errorf("%w: query set is empty", domain.ErrMissingInput)
	case len(req.Collections) == 0:
		return fmt.Errorf("%w: no collections", domain.ErrMissingInput)
	case req.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive", domain.ErrInvalidInput)
	case req.NResults < req.TopK:
		return fmt.Errorf("%w: n_results (%d) must be >= top_k (%d)", domain.ErrInvalidInput, req.NResults, req.TopK)
	}
	return nil
}

// verifyQuerySet recomputes the query set hash and refuses a mismatch.
func verifyQuerySet(qs *domain.QuerySet) (string, error) {
	hash, err := identity.QuerySetHash(qs.Queries)
	if err != nil {
		return "", err
	}
	if qs.Hash == "" {
		return "", fmt.Errorf("%w: query set %q carries no hash", domain.ErrQuerySetTampered, qs.Name)
	}
	if hash != qs.Hash {
		return "", fmt.Errorf("%w: query set %q recorded %s, computed %s", domain.ErrQuerySetTampered, qs.Name, short(qs.Hash), short(hash))
	}
	return hash, nil
}

// load opens a promoted collection and indexes it, once per build.
func (s *EvalService) load(ctx context.Context, col domain.Collection) (*loaded, error) {
	key := col.Path + "|" + col.RunID
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.cache[key]; ok {
		return l, nil
	}

	ctx, span := s.tracer.Start(ctx, "eval.load", trace.WithAttributes(attribute.String("collection", col.Name)))
	defer span.End()

	reader, err := s.store.Open(ctx, col)
	if err != nil {
		if errors.Is(err, domain.ErrNotPromoted) {
			return nil, fmt.Errorf("refusing %s: %w", col.Name, err)
		}
		return nil, fmt.Errorf("open %s: %w", col.Name, err)
	}
	defer reader.Close()

	m, err := reader.Manifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", col.Name, err)
	}
	emb, err := s.embedderFor(ctx, col.Name, m.EmbeddingModel, m.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	l := &loaded{
		col:      col,
		manifest: m,
		whole:    s.newLayer(col.Name, emb, m.EmbeddingDim),
		byType:   make(map[domain.ChunkType]*layer, 3),
	}
	for _, t := range domain.AllChunkTypes() {
		l.byType[t] = s.newLayer(col.Name+"/"+string(t), emb, m.EmbeddingDim)
	}

	err = reader.Vectors(ctx, func(v domain.Vector) error {
		if err := l.whole.add(ctx, v); err != nil {
			return err
		}
		ly, ok := l.byType[v.Metadata.ChunkType]
		if !ok {
			return fmt.Errorf("%w: vector %s has chunk type %q", domain.ErrInvalidInput, v.VectorID, v.Metadata.ChunkType)
		}
		return ly.add(ctx, v)
	})
	if err != nil {
		l.close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("index %s: %w", col.Name, err)
	}

	logger.Debug("indexed %s: %d vectors", col.Name, l.whole.index.Len())
	s.cache[key] = l
	return l, nil
}

func (s *EvalService) newLayer(name string, emb driven.EmbeddingService, dim int) *layer {
	return &layer{
		name:     name,
		embedder: emb,
		index:    s.newIndex(dim),
		meta:     make(map[string]domain.VectorMetadata),
		text:     make(map[string]string),
	}
}

func (ly *layer) add(ctx context.Context, v domain.Vector) error {
	if err := ly.index.Add(ctx, v.VectorID, v.Embedding); err != nil {
		return err
	}
	ly.meta[v.VectorID] = v.Metadata
	ly.text[v.VectorID] = v.Text
	return nil
}

// search fetches nResults chunk hits and collapses them to the best hit
// per family. Families rank by score descending, ties by vector id.
func search(ctx context.Context, ly *layer, query []float32, topK, nResults int) ([]domain.FamilyHit, error) {
	raw, err := ly.index.Search(ctx, query, nResults)
	if err != nil {
		return nil, err
	}

	best := make(map[string]domain.FamilyHit)
	var order []string
	for _, h := range raw {
		meta, ok := ly.meta[h.VectorID]
		if !ok {
			return nil, fmt.Errorf("%w: hit %s has no metadata", domain.ErrNotFound, h.VectorID)
		}
		cur, seen := best[meta.FamilyID]
		if seen && cur.Score >= h.Similarity {
			continue
		}
		if !seen {
			order = append(order, meta.FamilyID)
		}
		best[meta.FamilyID] = domain.FamilyHit{
			FamilyID:  meta.FamilyID,
			Score:     h.Similarity,
			VectorID:  h.VectorID,
			ChunkType: meta.ChunkType,
			Preview:   preview(ly.text[h.VectorID]),
		}
	}

	hits := make([]domain.FamilyHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, best[id])
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].VectorID < hits[j].VectorID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// overlap is the mean Jaccard of top-K family sets for every layer pair.
func overlap(names []string, byLayer map[string]map[string][]string, queries []domain.Query) []domain.PairOverlap {
	var out []domain.PairOverlap
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			var sum float64
			for _, q := range queries {
				sum += jaccard(byLayer[names[i]][q.QueryID], byLayer[names[j]][q.QueryID])
			}
			out = append(out, domain.PairOverlap{
				A:       names[i],
				B:       names[j],
				Jaccard: sum / float64(len(queries)),
			})
		}
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	union := len(set)
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, id := range b {
		if seen[id] {
			continue
		}
		seen[id] = true
		if set[id] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// recall is the mean recall@K per layer over queries with ground truth.
func recall(names []string, byLayer map[string]map[string][]string, truth map[string][]string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		var sum float64
		var n int
		for qid, relevant := range truth {
			got, ok := byLayer[name][qid]
			if !ok || len(relevant) == 0 {
				continue
			}
			want := make(map[string]bool, len(relevant))
			for _, id := range relevant {
				want[id] = true
			}
			found := 0
			for _, id := range got {
				if want[id] {
					found++
				}
			}
			sum += float64(found) / float64(len(want))
			n++
		}
		if n > 0 {
			out[name] = sum / float64(n)
		}
	}
	return out
}

func collectionOf(layerName string) string {
	if i := strings.LastIndex(layerName, "/"); i >= 0 {
		return layerName[:i]
	}
	return layerName
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return headRunes(text, previewRunes) + "..."
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
