package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestRecordSource_Records(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	writeFile(t, path, `{"family_id":"F1","selected_publication":"US1B2","claims_raw":"1. A clip."}

{"family_id":"F2","selected_publication":"US2B2","lineage":{"fetched_at":"2026-01-01"}}
`)

	records, err := NewRecordSource(path).Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "F1", records[0].FamilyID)
	assert.Equal(t, "1. A clip.", records[0].ClaimsRaw)
	assert.Equal(t, "2026-01-01", records[1].Lineage["fetched_at"])
}

func TestRecordSource_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewRecordSource(filepath.Join(dir, "absent.jsonl")).Records(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := filepath.Join(dir, "bad.jsonl")
	writeFile(t, bad, "{\"family_id\":\"F1\"}\n{not json\n")
	_, err = NewRecordSource(bad).Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}

func testSet() (*domain.ChunkSet, *domain.ChunkReport) {
	set := domain.NewChunkSet("chunks-1", "v1")
	for _, fam := range []string{"F1", "F2"} {
		for _, typ := range domain.AllChunkTypes() {
			c := domain.Chunk{
				FamilyID:            fam,
				SelectedPublication: "US-" + fam,
				Source:              "GOOGLE",
				ChunkType:           typ,
				Text:                "text of " + fam + " <" + string(typ) + ">",
				ChunkPolicyVersion:  "v1",
				LanguageHint:        domain.LanguageHintASCIIEn,
				CreatedAt:           testNow,
			}
			if typ == domain.ChunkTypeSpec {
				c.Spec = &domain.SpecControl{Policy: domain.SpecPolicyFullDescription, TruncationMode: domain.TruncationNone, OriginalLength: 12}
			}
			set.Add(c)
		}
	}
	return set, &domain.ChunkReport{RunID: "chunks-1", PolicyVersion: "v1", RecordsSeen: 2, FamiliesKept: 2}
}

func TestChunkDir_SaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks")
	set, report := testSet()
	store := NewChunkSetStore(dir)

	require.NoError(t, store.Save(context.Background(), set, report))
	for _, name := range []string{"claim_1.jsonl", "claim_set.jsonl", "spec.jsonl", ReportFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chunks-1", loaded.RunID)
	assert.Equal(t, "v1", loaded.PolicyVersion)
	for _, typ := range domain.AllChunkTypes() {
		assert.Equal(t, set.Chunks(typ), loaded.Chunks(typ), typ.String())
	}
	assert.NoError(t, loaded.CheckSymmetry())
}

func TestChunkDir_LoadRejectsMisfiledChunk(t *testing.T) {
	dir := t.TempDir()
	set, report := testSet()
	store := NewChunkSetStore(dir)
	require.NoError(t, store.Save(context.Background(), set, report))

	writeFile(t, filepath.Join(dir, "spec.jsonl"), `{"family_id":"F1","chunk_type":"claim_1"}`+"\n")
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkDir_LoadRejectsAsymmetricFiles(t *testing.T) {
	dir := t.TempDir()
	set, report := testSet()
	store := NewChunkSetStore(dir)
	require.NoError(t, store.Save(context.Background(), set, report))

	// Drop the last spec line, as a truncated copy would.
	path := filepath.Join(dir, "spec.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	writeFile(t, path, lines[0]+"\n")

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrSymmetry)
	var serr *domain.SymmetryError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"F2"}, serr.Missing[domain.ChunkTypeSpec])
}

func TestChunkDir_LoadMissingFile(t *testing.T) {
	_, err := NewChunkSetStore(t.TempDir()).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChunkDir_SaveNil(t *testing.T) {
	err := NewChunkSetStore(t.TempDir()).Save(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testQueries() []domain.Query {
	return []domain.Query{
		{QueryID: "q1", QueryType: "claim_like", QueryText: "a clip with a spring"},
		{QueryID: "q2", QueryType: "problem", QueryText: "keeping panels fastened"},
	}
}

func TestFreezeQuerySet_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track_a.yaml")
	require.NoError(t, FreezeQuerySet(path, &domain.QuerySet{Queries: testQueries()}))

	qs, err := QuerySetLoader{}.LoadQuerySet(context.Background(), path)
	require.NoError(t, err)
	want, err := identity.QuerySetHash(testQueries())
	require.NoError(t, err)
	assert.Equal(t, "track_a", qs.Name)
	assert.Equal(t, want, qs.Hash)
	assert.Equal(t, testQueries(), qs.Queries)

	err = FreezeQuerySet(path, &domain.QuerySet{Queries: testQueries()})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestFreezeQuerySet_Invalid(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, FreezeQuerySet(filepath.Join(dir, "a.yaml"), nil), domain.ErrMissingInput)

	dup := []domain.Query{{QueryID: "q1", QueryText: "a"}, {QueryID: "q1", QueryText: "b"}}
	assert.ErrorIs(t, FreezeQuerySet(filepath.Join(dir, "b.yaml"), &domain.QuerySet{Queries: dup}), domain.ErrInvalidInput)

	blank := []domain.Query{{QueryID: "q1", QueryText: "  "}}
	assert.ErrorIs(t, FreezeQuerySet(filepath.Join(dir, "c.yaml"), &domain.QuerySet{Queries: blank}), domain.ErrMissingInput)
}

func TestQuerySetLoader_JSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queries.jsonl")
	writeFile(t, path, `{"query_id":"q1","query_type":"claim_like","query_text":"a clip with a spring"}`+"\n")
	writeFile(t, path+".sha256", "abc123\n")

	qs, err := QuerySetLoader{}.LoadQuerySet(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "queries", qs.Name)
	assert.Equal(t, "abc123", qs.Hash)
	require.Len(t, qs.Queries, 1)
	assert.Equal(t, "q1", qs.Queries[0].QueryID)

	_, err = QuerySetLoader{}.LoadQuerySet(context.Background(), filepath.Join(dir, "absent.yaml"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunDir_SaveRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	store := NewRunStore(dir)
	records := []domain.RunRecord{{
		RunID:      "eval-1",
		QueryID:    "q1",
		Collection: "c",
		Layer:      "c/claim_1",
		TopK:       1,
		NResults:   3,
		Hits:       []domain.FamilyHit{{Rank: 1, FamilyID: "F1", Score: 0.9}},
		CreatedAt:  testNow,
	}}
	summary := &domain.EvalSummary{RunID: "eval-1", TopK: 1, NResults: 3, Queries: 1, Records: 1, CreatedAt: testNow}

	require.NoError(t, store.SaveRun(context.Background(), records, summary))

	gotRecords, gotSummary, err := store.LoadRun("eval-1")
	require.NoError(t, err)
	assert.Equal(t, records, gotRecords)
	assert.Equal(t, summary, gotSummary)

	err = store.SaveRun(context.Background(), records, summary)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	err = store.SaveRun(context.Background(), records, &domain.EvalSummary{})
	assert.ErrorIs(t, err, domain.ErrMissingInput)

	_, _, err = store.LoadRun("absent")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
