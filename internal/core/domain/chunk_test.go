package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkFor(family string, t ChunkType, hint string) Chunk {
	return Chunk{FamilyID: family, ChunkType: t, LanguageHint: hint, Text: family}
}

func symmetricSet(families ...string) *ChunkSet {
	s := NewChunkSet("run", "v1")
	for _, f := range families {
		for _, t := range AllChunkTypes() {
			s.Add(chunkFor(f, t, LanguageHintASCIIEn))
		}
	}
	return s
}

// TestChunkType_IsValid tests chunk type validation
func TestChunkType_IsValid(t *testing.T) {
	for _, ct := range AllChunkTypes() {
		assert.True(t, ct.IsValid(), ct)
	}
	assert.False(t, ChunkType("abstract").IsValid())
	assert.False(t, ChunkType("").IsValid())
}

// TestAllChunkTypes_Order tests the fixed reporting order
func TestAllChunkTypes_Order(t *testing.T) {
	assert.Equal(t, []ChunkType{ChunkTypeClaim1, ChunkTypeClaimSet, ChunkTypeSpec}, AllChunkTypes())
}

// TestSpecControl_Consistent tests truncation declarations
func TestSpecControl_Consistent(t *testing.T) {
	tests := []struct {
		name    string
		ctl     SpecControl
		wantErr bool
	}{
		{"untruncated", SpecControl{Policy: SpecPolicyFullDescription, TruncationMode: TruncationNone, OriginalLength: 10}, false},
		{"truncated head", SpecControl{Policy: SpecPolicyFullDescription, Truncated: true, TruncationMode: TruncationHead, OriginalLength: 10}, false},
		{"no policy", SpecControl{TruncationMode: TruncationNone, OriginalLength: 10}, true},
		{"no mode", SpecControl{Policy: SpecPolicyFullDescription, OriginalLength: 10}, true},
		{"truncated none", SpecControl{Policy: SpecPolicyFullDescription, Truncated: true, TruncationMode: TruncationNone, OriginalLength: 10}, true},
		{"head not truncated", SpecControl{Policy: SpecPolicyFullDescription, TruncationMode: TruncationHead, OriginalLength: 10}, true},
		{"zero length", SpecControl{Policy: SpecPolicyFullDescription, TruncationMode: TruncationNone}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctl.Consistent()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestChunkSet_CountsAndFamilies tests population accessors
func TestChunkSet_CountsAndFamilies(t *testing.T) {
	s := symmetricSet("F2", "F1", "F3")

	assert.Equal(t, 3, s.Count(ChunkTypeClaim1))
	assert.Equal(t, 9, s.Len())
	assert.Equal(t, []string{"F1", "F2", "F3"}, s.FamilyIDs(ChunkTypeSpec))
	assert.Len(t, s.Chunks(ChunkTypeClaimSet), 3)
}

// TestChunkSet_CheckSymmetry_Valid tests a symmetric chunk set
func TestChunkSet_CheckSymmetry_Valid(t *testing.T) {
	assert.NoError(t, symmetricSet("F1", "F2").CheckSymmetry())
}

// TestChunkSet_CheckSymmetry_Missing tests that missing families are named per type
func TestChunkSet_CheckSymmetry_Missing(t *testing.T) {
	s := NewChunkSet("run", "v1")
	for _, f := range []string{"F1", "F2", "F3"} {
		s.Add(chunkFor(f, ChunkTypeClaim1, LanguageHintASCIIEn))
		s.Add(chunkFor(f, ChunkTypeSpec, LanguageHintASCIIEn))
	}
	s.Add(chunkFor("F1", ChunkTypeClaimSet, LanguageHintASCIIEn))
	s.Add(chunkFor("F3", ChunkTypeClaimSet, LanguageHintASCIIEn))

	err := s.CheckSymmetry()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSymmetry))

	var serr *SymmetryError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, []string{"F2"}, serr.Missing[ChunkTypeClaimSet])
	assert.Empty(t, serr.Missing[ChunkTypeClaim1])
	assert.Equal(t, 2, serr.Counts[ChunkTypeClaimSet])
	assert.Contains(t, err.Error(), "claim_set missing [F2]")
}

// TestChunkSet_CheckSymmetry_Duplicated tests duplicate family detection
func TestChunkSet_CheckSymmetry_Duplicated(t *testing.T) {
	s := symmetricSet("F1", "F2")
	s.Add(chunkFor("F1", ChunkTypeSpec, LanguageHintASCIIEn))

	var serr *SymmetryError
	require.True(t, errors.As(s.CheckSymmetry(), &serr))
	assert.Equal(t, []string{"F1"}, serr.Duplicated[ChunkTypeSpec])
}

// TestSymmetryError_SamplesLongLists tests error message truncation
func TestSymmetryError_SamplesLongLists(t *testing.T) {
	s := NewChunkSet("run", "v1")
	for i := 0; i < 30; i++ {
		s.Add(chunkFor(fmt.Sprintf("F%02d", i), ChunkTypeClaim1, LanguageHintASCIIEn))
	}
	err := s.CheckSymmetry()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+10]")
}

// TestChunkSet_Filter tests isolation filtering applied uniformly
func TestChunkSet_Filter(t *testing.T) {
	s := NewChunkSet("run", "v1")
	for i := 0; i < 150; i++ {
		hint := LanguageHintASCIIEn
		if i >= 95 {
			hint = LanguageHintJapanese
		}
		f := fmt.Sprintf("F%03d", i)
		for _, ct := range AllChunkTypes() {
			s.Add(chunkFor(f, ct, hint))
		}
	}

	filter := IsolationFilter{LanguageHint: LanguageHintASCIIEn, ExpectedFamilies: 95}
	out := s.Filter(filter)

	for _, ct := range AllChunkTypes() {
		assert.Equal(t, 95, out.Count(ct), ct)
	}
	assert.Equal(t, out.FamilyIDs(ChunkTypeClaim1), out.FamilyIDs(ChunkTypeSpec))
	assert.NoError(t, out.CheckSymmetry())
	assert.Equal(t, 150, s.Count(ChunkTypeClaim1), "source set untouched")
}

// TestChunkSet_Filter_UsesFamilyDecision tests that claim_1 decides for the family
func TestChunkSet_Filter_UsesFamilyDecision(t *testing.T) {
	s := NewChunkSet("run", "v1")
	s.Add(chunkFor("F1", ChunkTypeClaim1, LanguageHintASCIIEn))
	s.Add(chunkFor("F1", ChunkTypeClaimSet, LanguageHintASCIIEn))
	s.Add(chunkFor("F1", ChunkTypeSpec, LanguageHintUnknown))

	out := s.Filter(IsolationFilter{LanguageHint: LanguageHintASCIIEn})
	assert.Equal(t, 1, out.Count(ChunkTypeSpec))
}

// TestIsolationFilter_Inactive tests the pass-through filter
func TestIsolationFilter_Inactive(t *testing.T) {
	f := IsolationFilter{}
	assert.False(t, f.Active())
	assert.True(t, f.Keep(chunkFor("F1", ChunkTypeClaim1, LanguageHintKorean)))
}

// TestChunkReport_Exclude tests exclusion bookkeeping
func TestChunkReport_Exclude(t *testing.T) {
	r := &ChunkReport{}
	r.Exclude(TextRecord{FamilyID: "F1", SelectedPublication: "P1"}, ExcludeNoClaims)
	r.Exclude(TextRecord{FamilyID: "F2"}, ExcludeNoClaims)

	assert.Len(t, r.Exclusions, 2)
	assert.Equal(t, 2, r.ExclusionCount[ExcludeNoClaims])
	assert.Equal(t, "P1", r.Exclusions[0].SelectedPublication)
}
