package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ChunkType identifies one of the three semantic units of a family.
type ChunkType string

// The fixed set of chunk types.
const (
	ChunkTypeClaim1   ChunkType = "claim_1"
	ChunkTypeClaimSet ChunkType = "claim_set"
	ChunkTypeSpec     ChunkType = "spec"
)

// AllChunkTypes returns the chunk types in their fixed reporting order.
func AllChunkTypes() []ChunkType {
	return []ChunkType{ChunkTypeClaim1, ChunkTypeClaimSet, ChunkTypeSpec}
}

// IsValid returns true if the chunk type is one of the enumerated values.
func (t ChunkType) IsValid() bool {
	switch t {
	case ChunkTypeClaim1, ChunkTypeClaimSet, ChunkTypeSpec:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t ChunkType) String() string {
	return string(t)
}

// Spec policies.
const (
	SpecPolicyFullDescription = "full_description"
	SpecPolicySpecFocus       = "spec_focus"
)

// Truncation modes.
const (
	TruncationNone = "none"
	TruncationHead = "head"
)

// SpecControl declares how a spec chunk was derived.
type SpecControl struct {
	// Policy is the spec policy name (full_description, spec_focus).
	Policy string `json:"spec_policy"`

	// Truncated reports whether the text was cut.
	Truncated bool `json:"truncated"`

	// TruncationMode is "none" or the mode applied.
	TruncationMode string `json:"truncation_mode"`

	// OriginalLength is the rune length before truncation.
	OriginalLength int `json:"original_length"`
}

// Consistent reports whether the declaration is internally coherent.
func (c SpecControl) Consistent() error {
	if c.Policy == "" {
		return fmt.Errorf("spec_policy is empty")
	}
	if c.TruncationMode == "" {
		return fmt.Errorf("truncation_mode is empty")
	}
	if c.Truncated && c.TruncationMode == TruncationNone {
		return fmt.Errorf("truncated=true with truncation_mode=none")
	}
	if !c.Truncated && c.TruncationMode != TruncationNone {
		return fmt.Errorf("truncated=false with truncation_mode=%s", c.TruncationMode)
	}
	if c.OriginalLength <= 0 {
		return fmt.Errorf("original_length must be positive, got %d", c.OriginalLength)
	}
	return nil
}

// Chunk is one semantic unit of a family. Immutable once generated.
type Chunk struct {
	FamilyID            string    `json:"family_id"`
	SelectedPublication string    `json:"selected_publication"`
	Source              string    `json:"source"`
	ChunkType           ChunkType `json:"chunk_type"`
	Text                string    `json:"text"`
	ChunkPolicyVersion  string    `json:"chunk_policy_version"`
	LanguageHint        string    `json:"language_hint"`
	CreatedAt           time.Time `json:"created_at"`

	// ChunkID is the positional chunk identifier.
	ChunkID string `json:"chunk_id"`

	// AssetID anchors the family across systems.
	AssetID string `json:"asset_id"`

	// DocID identifies the selected publication.
	DocID string `json:"doc_id"`

	// SpanStart is the rune offset of the chunk in its source section.
	SpanStart int `json:"span_start"`

	// ClaimsParseMethod is set on claim chunks.
	ClaimsParseMethod string `json:"claims_parse_method,omitempty"`

	// Spec is set on spec chunks only.
	Spec *SpecControl `json:"spec_control,omitempty"`

	Language        LanguageEvidence `json:"language_evidence"`
	GovernanceFlags []GovernanceFlag `json:"governance_flags,omitempty"`
}

// IsolationFilter is a deterministic subset rule applied uniformly to
// every chunk type before a fairness comparison.
type IsolationFilter struct {
	// LanguageHint keeps only families with this hint.
	LanguageHint string `json:"language_hint" toml:"language_hint"`

	// ExpectedFamilies is the cardinality every chunk type must have after filtering.
	// Zero disables the expectation.
	ExpectedFamilies int `json:"expected_families" toml:"expected_families"`
}

// Active returns true when the filter selects a subset.
func (f IsolationFilter) Active() bool {
	return f.LanguageHint != ""
}

// Keep reports whether the chunk passes the filter.
func (f IsolationFilter) Keep(c Chunk) bool {
	if !f.Active() {
		return true
	}
	return c.LanguageHint == f.LanguageHint
}

// ChunkSet holds the three chunk-type populations for one run.
// A valid ChunkSet is family-set identical across chunk types.
type ChunkSet struct {
	RunID         string
	PolicyVersion string
	byType        map[ChunkType][]Chunk
}

// NewChunkSet creates an empty chunk set.
func NewChunkSet(runID, policyVersion string) *ChunkSet {
	return &ChunkSet{
		RunID:         runID,
		PolicyVersion: policyVersion,
		byType:        make(map[ChunkType][]Chunk),
	}
}

// Add appends a chunk to its population.
func (s *ChunkSet) Add(c Chunk) {
	s.byType[c.ChunkType] = append(s.byType[c.ChunkType], c)
}

// Chunks returns the population for a chunk type.
func (s *ChunkSet) Chunks(t ChunkType) []Chunk {
	return s.byType[t]
}

// Count returns the cardinality of a population.
func (s *ChunkSet) Count(t ChunkType) int {
	return len(s.byType[t])
}

// Len returns the total number of chunks.
func (s *ChunkSet) Len() int {
	n := 0
	for _, t := range AllChunkTypes() {
		n += len(s.byType[t])
	}
	return n
}

// FamilyIDs returns the sorted, de-duplicated family ids of a population.
func (s *ChunkSet) FamilyIDs(t ChunkType) []string {
	seen := make(map[string]struct{}, len(s.byType[t]))
	ids := make([]string, 0, len(s.byType[t]))
	for _, c := range s.byType[t] {
		if _, ok := seen[c.FamilyID]; ok {
			continue
		}
		seen[c.FamilyID] = struct{}{}
		ids = append(ids, c.FamilyID)
	}
	sort.Strings(ids)
	return ids
}

// Filter returns a new chunk set holding only chunks that pass keep.
// Chunks are filtered per family so every type sees the same decision.
func (s *ChunkSet) Filter(f IsolationFilter) *ChunkSet {
	kept := make(map[string]bool)
	for _, c := range s.byType[ChunkTypeClaim1] {
		kept[c.FamilyID] = f.Keep(c)
	}
	out := NewChunkSet(s.RunID, s.PolicyVersion)
	for _, t := range AllChunkTypes() {
		for _, c := range s.byType[t] {
			keep, ok := kept[c.FamilyID]
			if !ok {
				keep = f.Keep(c)
			}
			if keep {
				out.Add(c)
			}
		}
	}
	return out
}

// CheckSymmetry verifies the three populations cover the same families
// with the same cardinality. It returns a *SymmetryError on violation.
func (s *ChunkSet) CheckSymmetry() error {
	union := make(map[string]struct{})
	sets := make(map[ChunkType]map[string]int)
	counts := make(map[ChunkType]int)
	for _, t := range AllChunkTypes() {
		sets[t] = make(map[string]int)
		for _, c := range s.byType[t] {
			sets[t][c.FamilyID]++
			union[c.FamilyID] = struct{}{}
		}
		counts[t] = len(s.byType[t])
	}

	serr := &SymmetryError{
		Counts:     counts,
		Missing:    make(map[ChunkType][]string),
		Duplicated: make(map[ChunkType][]string),
	}
	for _, t := range AllChunkTypes() {
		for id := range union {
			if sets[t][id] == 0 {
				serr.Missing[t] = append(serr.Missing[t], id)
			}
		}
		for id, n := range sets[t] {
			if n > 1 {
				serr.Duplicated[t] = append(serr.Duplicated[t], id)
			}
		}
		sort.Strings(serr.Missing[t])
		sort.Strings(serr.Duplicated[t])
	}

	if serr.empty() && counts[ChunkTypeClaim1] == counts[ChunkTypeClaimSet] &&
		counts[ChunkTypeClaimSet] == counts[ChunkTypeSpec] {
		return nil
	}
	return serr
}

// SymmetryError reports which families are missing or duplicated per chunk type.
type SymmetryError struct {
	Counts     map[ChunkType]int
	Missing    map[ChunkType][]string
	Duplicated map[ChunkType][]string
}

func (e *SymmetryError) empty() bool {
	for _, t := range AllChunkTypes() {
		if len(e.Missing[t]) > 0 || len(e.Duplicated[t]) > 0 {
			return false
		}
	}
	return true
}

// Error implements error.
func (e *SymmetryError) Error() string {
	var b strings.Builder
	b.WriteString("chunk set symmetry violated:")
	for _, t := range AllChunkTypes() {
		fmt.Fprintf(&b, " %s=%d", t, e.Counts[t])
	}
	for _, t := range AllChunkTypes() {
		if ids := e.Missing[t]; len(ids) > 0 {
			fmt.Fprintf(&b, "; %s missing %s", t, sample(ids))
		}
		if ids := e.Duplicated[t]; len(ids) > 0 {
			fmt.Fprintf(&b, "; %s duplicated %s", t, sample(ids))
		}
	}
	return b.String()
}

// Unwrap allows errors.Is(err, ErrSymmetry).
func (e *SymmetryError) Unwrap() error {
	return ErrSymmetry
}

const sampleLimit = 20

func sample(ids []string) string {
	if len(ids) <= sampleLimit {
		return "[" + strings.Join(ids, ",") + "]"
	}
	return fmt.Sprintf("[%s,... +%d]", strings.Join(ids[:sampleLimit], ","), len(ids)-sampleLimit)
}

// Exclusion records why a family was left out of a chunk set.
type Exclusion struct {
	FamilyID            string `json:"family_id"`
	SelectedPublication string `json:"selected_publication"`
	Reason              string `json:"reason"`
}

// Exclusion reasons.
const (
	ExcludeMissingFamilyID    = "MISSING_FAMILY_ID"
	ExcludeMissingPublication = "MISSING_SELECTED_PUBLICATION"
	ExcludeNoClaims           = "NO_CLAIMS_TEXT"
	ExcludeNoDescription      = "NO_DESCRIPTION_TEXT"
	ExcludeNoClaimBoundary    = "NO_CLAIM_BOUNDARY"
	ExcludeEmptyChunk         = "EMPTY_CHUNK_TEXT"
	ExcludeDuplicateFamily    = "DUPLICATE_FAMILY"
	ExcludeLineageIncomplete  = "LINEAGE_INCOMPLETE"
)

// ChunkReport summarises one chunk generation pass.
type ChunkReport struct {
	RunID          string         `json:"run_id"`
	PolicyVersion  string         `json:"chunk_policy_version"`
	RecordsSeen    int            `json:"records_seen"`
	FamiliesKept   int            `json:"families_kept"`
	Exclusions     []Exclusion    `json:"exclusions,omitempty"`
	FlagCounts     map[string]int `json:"flag_counts,omitempty"`
	ParseMethods   map[string]int `json:"parse_methods,omitempty"`
	SpecTruncated  int            `json:"spec_truncated"`
	ExclusionCount map[string]int `json:"exclusion_counts,omitempty"`
}

// Exclude records an exclusion.
func (r *ChunkReport) Exclude(rec TextRecord, reason string) {
	r.Exclusions = append(r.Exclusions, Exclusion{
		FamilyID:            rec.FamilyID,
		SelectedPublication: rec.SelectedPublication,
		Reason:              reason,
	})
	if r.ExclusionCount == nil {
		r.ExclusionCount = make(map[string]int)
	}
	r.ExclusionCount[reason]++
}
