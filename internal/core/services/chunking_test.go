package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
)

func TestChunkService_Generate_SymmetricTriples(t *testing.T) {
	svc := newTestChunker(t)

	set, report, err := svc.Generate(context.Background(), testRecords(5))
	require.NoError(t, err)

	for _, ct := range domain.AllChunkTypes() {
		assert.Equal(t, 5, set.Count(ct), "chunk type %s", ct)
	}
	assert.Equal(t, set.FamilyIDs(domain.ChunkTypeClaim1), set.FamilyIDs(domain.ChunkTypeSpec))
	assert.Equal(t, 5, report.FamiliesKept)
	assert.Equal(t, 5, report.RecordsSeen)
	assert.Empty(t, report.Exclusions)
	assert.Equal(t, 5, report.ParseMethods["NUMBERED"])
	assert.Equal(t, "chunks-test", set.RunID)
}

func TestChunkService_Generate_StampsIdentity(t *testing.T) {
	set, _, err := newTestChunker(t).Generate(context.Background(), testRecords(1))
	require.NoError(t, err)

	assetID, err := identity.AssetID("F001")
	require.NoError(t, err)
	docID, err := identity.DocID("US0000001B2")
	require.NoError(t, err)

	for _, ct := range domain.AllChunkTypes() {
		chunks := set.Chunks(ct)
		require.Len(t, chunks, 1)
		c := chunks[0]
		assert.Equal(t, assetID, c.AssetID)
		assert.Equal(t, docID, c.DocID)
		assert.NotEmpty(t, c.ChunkID)
		assert.Equal(t, "v1", c.ChunkPolicyVersion)
		assert.Equal(t, testNow, c.CreatedAt)
		assert.Equal(t, domain.LanguageHintASCIIEn, c.LanguageHint)
	}

	claim1 := set.Chunks(domain.ChunkTypeClaim1)[0]
	assert.Equal(t, "A fastening device for family F001, comprising a clip and a spring.", claim1.Text)

	spec := set.Chunks(domain.ChunkTypeSpec)[0]
	require.NotNil(t, spec.Spec)
	assert.Equal(t, domain.SpecPolicyFullDescription, spec.Spec.Policy)
	assert.False(t, spec.Spec.Truncated)
	assert.NotEqual(t, claim1.ChunkID, spec.ChunkID)
}

func TestChunkService_Generate_DeterministicAcrossInputOrder(t *testing.T) {
	records := testRecords(8)
	first, _, err := newTestChunker(t).Generate(context.Background(), records)
	require.NoError(t, err)

	shuffled := append([]domain.TextRecord(nil), records...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	second, _, err := newTestChunker(t).Generate(context.Background(), shuffled)
	require.NoError(t, err)

	for _, ct := range domain.AllChunkTypes() {
		assert.Equal(t, first.Chunks(ct), second.Chunks(ct), "chunk type %s", ct)
	}
}

func TestChunkService_Generate_Exclusions(t *testing.T) {
	missingFamily := testRecord("  ", "US9000001B2")
	missingPub := testRecord("F101", "")
	noClaims := testRecord("F102", "US9000002B2")
	noClaims.HasClaims = false
	noDescription := testRecord("F103", "US9000003B2")
	noDescription.DescriptionRaw = "   "
	noBoundary := testRecord("F104", "US9000004B2")
	noBoundary.ClaimsRaw = "A fastening device comprising a clip."

	records := append(testRecords(2), missingFamily, missingPub, noClaims, noDescription, noBoundary)
	set, report, err := newTestChunker(t).Generate(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Count(domain.ChunkTypeClaim1))
	assert.Equal(t, 7, report.RecordsSeen)
	assert.Equal(t, 2, report.FamiliesKept)
	assert.Equal(t, map[string]int{
		domain.ExcludeMissingFamilyID:    1,
		domain.ExcludeMissingPublication: 1,
		domain.ExcludeNoClaims:           1,
		domain.ExcludeNoDescription:      1,
		domain.ExcludeNoClaimBoundary:    1,
	}, report.ExclusionCount)
}

func TestChunkService_Generate_DuplicateFamilyFirstWins(t *testing.T) {
	later := testRecord("F001", "US0000002B2")
	earlier := testRecord("F001", "US0000001B2")

	set, report, err := newTestChunker(t).Generate(context.Background(), []domain.TextRecord{later, earlier})
	require.NoError(t, err)

	require.Equal(t, 1, set.Count(domain.ChunkTypeClaim1))
	assert.Equal(t, "US0000001B2", set.Chunks(domain.ChunkTypeClaim1)[0].SelectedPublication)
	require.Len(t, report.Exclusions, 1)
	assert.Equal(t, domain.ExcludeDuplicateFamily, report.Exclusions[0].Reason)
	assert.Equal(t, "US0000002B2", report.Exclusions[0].SelectedPublication)
}

func TestChunkService_Generate_LineageKeys(t *testing.T) {
	records := testRecords(3)
	records[1].Lineage = nil

	set, report, err := newTestChunker(t, WithLineageKeys("fetched_at")).Generate(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, set.Count(domain.ChunkTypeSpec))
	assert.Equal(t, 1, report.ExclusionCount[domain.ExcludeLineageIncomplete])
}

func TestChunkService_Generate_FlagsCounted(t *testing.T) {
	rec := testRecord("F001", "US0000001B2")
	rec.ClaimsRaw = "1. A caf\xe9 machine with a heater.\n2. The machine of claim 1."

	set, report, err := newTestChunker(t).Generate(context.Background(), []domain.TextRecord{rec})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FlagCounts[string(domain.FlagCharsetFallback)])
	for _, ct := range domain.AllChunkTypes() {
		assert.Contains(t, set.Chunks(ct)[0].GovernanceFlags, domain.FlagCharsetFallback)
	}
}

func TestChunkService_Generate_EmptyPolicyVersion(t *testing.T) {
	svc := NewChunkService(nil, nil, "")

	_, _, err := svc.Generate(context.Background(), testRecords(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChunkService_Generate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestChunker(t).Generate(ctx, testRecords(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChunkService_Generate_NoRecords(t *testing.T) {
	set, report, err := newTestChunker(t).Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.Zero(t, report.FamiliesKept)
}
