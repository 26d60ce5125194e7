package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/normalisers"
	"github.com/custodia-labs/patentgov/internal/postprocessors"
)

// --- Fixtures ---

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testRecord(familyID, publication string) domain.TextRecord {
	return domain.TextRecord{
		FamilyID:            familyID,
		SelectedPublication: publication,
		Source:              "GOOGLE",
		ClaimsRaw: fmt.Sprintf(
			"1. A fastening device for family %s, comprising a clip and a spring.\n"+
				"2. The device of claim 1, wherein the spring is steel.", familyID),
		DescriptionRaw: fmt.Sprintf(
			"The invention relates to fastening devices of family %s.\n\n"+
				"In one embodiment the clip is held by the spring so that it releases under load.", familyID),
		HasClaims:    true,
		HasClaim1:    true,
		LanguageHint: domain.LanguageHintASCIIEn,
		Lineage:      map[string]string{"fetched_at": "2026-03-01"},
	}
}

func testRecords(n int) []domain.TextRecord {
	out := make([]domain.TextRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, testRecord(fmt.Sprintf("F%03d", i), fmt.Sprintf("US%07dB2", i)))
	}
	return out
}

func newTestChunker(t *testing.T, opts ...ChunkOption) *ChunkService {
	t.Helper()
	nreg := normalisers.NewRegistry()
	normalisers.RegisterDefaults(nreg)
	chain, err := normalisers.BuildChain(nreg, domain.DefaultPipelineConfig())
	require.NoError(t, err)

	preg := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(preg)
	pipeline, err := preg.BuildPipeline(postprocessors.DefaultOrder, nil)
	require.NoError(t, err)

	opts = append([]ChunkOption{WithChunkClock(fixedClock), WithChunkRunID("chunks-test")}, opts...)
	return NewChunkService(chain, pipeline, "v1", opts...)
}

func testChunkSet(t *testing.T, n int) *domain.ChunkSet {
	t.Helper()
	set, _, err := newTestChunker(t).Generate(context.Background(), testRecords(n))
	require.NoError(t, err)
	return set
}

// withoutSpec copies the set, dropping the spec chunk of one family.
func withoutSpec(set *domain.ChunkSet, familyID string) *domain.ChunkSet {
	out := domain.NewChunkSet(set.RunID, set.PolicyVersion)
	for _, ct := range domain.AllChunkTypes() {
		for _, c := range set.Chunks(ct) {
			if ct == domain.ChunkTypeSpec && c.FamilyID == familyID {
				continue
			}
			out.Add(c)
		}
	}
	return out
}

func testVersion() domain.EmbeddingVersion {
	return domain.EmbeddingVersion{
		Model:         stubModel,
		Revision:      "1",
		ChunkPolicy:   "v1",
		Normalization: "l2",
		SpecControl:   "full_description-none",
	}
}

// --- Mock implementations ---

const (
	stubModel = "stub-embed"
	stubDims  = 16
)

// stubEmbedder implements driven.EmbeddingService with a deterministic
// bag-of-words hash.
type stubEmbedder struct {
	model  string
	limit  int
	failOn string

	// When set, the first batch closes started and waits for release.
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	batches int
}

var (
	_ driven.EmbeddingService = (*stubEmbedder)(nil)
	_ driven.InputLimiter     = (*stubEmbedder)(nil)
)

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.started != nil {
		s.once.Do(func() { close(s.started) })
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if s.failOn != "" && strings.Contains(text, s.failOn) {
			return nil, fmt.Errorf("model rejected input %d", i)
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	v := make([]float32, stubDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%stubDims]++
	}
	v[0] += 0.01
	return v
}

func (s *stubEmbedder) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *stubEmbedder) Dimensions() int { return stubDims }
func (s *stubEmbedder) ModelName() string {
	if s.model != "" {
		return s.model
	}
	return stubModel
}
func (s *stubEmbedder) InputLimit() int              { return s.limit }
func (s *stubEmbedder) Ping(_ context.Context) error { return nil }
func (s *stubEmbedder) Close() error                 { return nil }

// recordingEvents implements driven.BuildEventPublisher.
type recordingEvents struct {
	mu     sync.Mutex
	events []domain.BuildEvent
}

func (r *recordingEvents) Publish(_ context.Context, e domain.BuildEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) kinds() []domain.BuildEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.BuildEventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// recordingMetrics implements driven.BuildMetrics.
type recordingMetrics struct {
	mu       sync.Mutex
	written  map[domain.ChunkType]int
	gates    int
	statuses []domain.BuildStatus
	flushed  []string
}

func (m *recordingMetrics) VectorsWritten(_ string, t domain.ChunkType, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.written == nil {
		m.written = make(map[domain.ChunkType]int)
	}
	m.written[t] += n
}

func (m *recordingMetrics) GateEvaluated(_ string, _ domain.GateResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates++
}

func (m *recordingMetrics) BuildFinished(_ string, status domain.BuildStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *recordingMetrics) Flush(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = append(m.flushed, dir)
	return nil
}

// failingMirror implements driven.CollectionMirror and always fails.
type failingMirror struct {
	calls int
}

func (m *failingMirror) Mirror(_ context.Context, _ driven.CollectionReader) error {
	m.calls++
	return fmt.Errorf("mirror unreachable")
}

func (m *failingMirror) Close() error { return nil }

// flatIndex implements driven.VectorIndex with exact cosine search.
type flatIndex struct {
	ids  []string
	vecs [][]float32
}

func newFlatIndex(_ int) driven.VectorIndex { return &flatIndex{} }

func (f *flatIndex) Add(_ context.Context, id string, v []float32) error {
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, v)
	return nil
}

func (f *flatIndex) Search(_ context.Context, q []float32, k int) ([]driven.VectorHit, error) {
	hits := make([]driven.VectorHit, 0, len(f.ids))
	for i, v := range f.vecs {
		hits = append(hits, driven.VectorHit{VectorID: f.ids[i], Similarity: cosine(q, v)})
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *flatIndex) Len() int     { return len(f.ids) }
func (f *flatIndex) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortHits(hits []driven.VectorHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].VectorID < hits[j].VectorID
	})
}
