package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
	"github.com/custodia-labs/patentgov/internal/logger"
)

// Ensure ChunkService implements the interface.
var _ driving.ChunkGenerator = (*ChunkService)(nil)

// ChunkService generates governed chunk sets from text records.
type ChunkService struct {
	chain         driven.NormaliserChain
	pipeline      driven.PostProcessorPipeline
	policyVersion string
	lineageKeys   []string
	runID         string
	clock         func() time.Time
}

// ChunkOption configures a ChunkService.
type ChunkOption func(*ChunkService)

// WithLineageKeys requires every record to carry these non-empty lineage fields.
func WithLineageKeys(keys ...string) ChunkOption {
	return func(s *ChunkService) {
		s.lineageKeys = keys
	}
}

// WithChunkRunID sets the run id stamped on the chunk set.
func WithChunkRunID(runID string) ChunkOption {
	return func(s *ChunkService) {
		s.runID = runID
	}
}

// WithChunkClock sets the clock used for created_at.
func WithChunkClock(clock func() time.Time) ChunkOption {
	return func(s *ChunkService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewChunkService creates a chunk generator for one policy version.
func NewChunkService(
	chain driven.NormaliserChain,
	pipeline driven.PostProcessorPipeline,
	policyVersion string,
	opts ...ChunkOption,
) *ChunkService {
	s := &ChunkService{
		chain:         chain,
		pipeline:      pipeline,
		policyVersion: policyVersion,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces the chunk set for the given records.
//
//nolint:gocyclo // Sequential integrity checks per record
func (s *ChunkService) Generate(ctx context.Context, records []domain.TextRecord) (*domain.ChunkSet, *domain.ChunkReport, error) {
	if s.policyVersion == "" {
		return nil, nil, fmt.Errorf("%w: chunk policy version is empty", domain.ErrInvalidInput)
	}

	now := s.clock().UTC()
	runID := s.runID
	if runID == "" {
		runID = "chunks-" + now.Format("20060102T150405Z")
	}

	// 1. Stable order so the first record per family is well defined
	sorted := make([]domain.TextRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		fi, fj := strings.TrimSpace(sorted[i].FamilyID), strings.TrimSpace(sorted[j].FamilyID)
		if fi != fj {
			return fi < fj
		}
		return sorted[i].SelectedPublication < sorted[j].SelectedPublication
	})

	set := domain.NewChunkSet(runID, s.policyVersion)
	report := &domain.ChunkReport{
		RunID:         runID,
		PolicyVersion: s.policyVersion,
		RecordsSeen:   len(records),
	}

	seen := make(map[string]bool, len(sorted))
	for _, rec := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		// 2. Input integrity: never default a missing field
		rec.FamilyID = strings.TrimSpace(rec.FamilyID)
		rec.SelectedPublication = strings.TrimSpace(rec.SelectedPublication)
		if rec.FamilyID == "" {
			report.Exclude(rec, domain.ExcludeMissingFamilyID)
			continue
		}
		if seen[rec.FamilyID] {
			report.Exclude(rec, domain.ExcludeDuplicateFamily)
			continue
		}
		seen[rec.FamilyID] = true

		if reason := s.integrity(rec); reason != "" {
			report.Exclude(rec, reason)
			continue
		}

		// 3. Normalise and produce the chunk triple
		prepared, err := s.chain.Prepare(ctx, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("prepare %s: %w", rec.FamilyID, err)
		}
		chunks, err := s.pipeline.Process(ctx, prepared)
		switch {
		case errors.Is(err, domain.ErrNoClaimBoundary):
			report.Exclude(rec, domain.ExcludeNoClaimBoundary)
			continue
		case errors.Is(err, domain.ErrMissingInput):
			report.Exclude(rec, domain.ExcludeEmptyChunk)
			continue
		case err != nil:
			return nil, nil, fmt.Errorf("chunk %s: %w", rec.FamilyID, err)
		}
		if !completeTriple(chunks) {
			report.Exclude(rec, domain.ExcludeEmptyChunk)
			continue
		}

		// 4. Stamp policy, ids and timestamp
		stamped, err := s.stamp(chunks, now)
		if err != nil {
			return nil, nil, fmt.Errorf("identify %s: %w", rec.FamilyID, err)
		}
		for _, c := range stamped {
			set.Add(c)
		}
		s.tally(report, stamped)
	}

	report.FamiliesKept = set.Count(domain.ChunkTypeClaim1)
	logger.Info("chunked %d families from %d records (%d excluded)",
		report.FamiliesKept, report.RecordsSeen, len(report.Exclusions))

	// 5. Symmetry is checked, never assumed
	if err := set.CheckSymmetry(); err != nil {
		return set, report, err
	}
	return set, report, nil
}

// integrity returns the exclusion reason for an unusable record.
func (s *ChunkService) integrity(rec domain.TextRecord) string {
	switch {
	case rec.SelectedPublication == "":
		return domain.ExcludeMissingPublication
	case !rec.HasClaims || strings.TrimSpace(rec.ClaimsRaw) == "":
		return domain.ExcludeNoClaims
	case strings.TrimSpace(rec.DescriptionRaw) == "":
		return domain.ExcludeNoDescription
	}
	for _, key := range s.lineageKeys {
		if strings.TrimSpace(rec.Lineage[key]) == "" {
			return domain.ExcludeLineageIncomplete
		}
	}
	return ""
}

// completeTriple reports whether exactly one non-empty chunk of each type
// was produced.
func completeTriple(chunks []domain.Chunk) bool {
	counts := make(map[domain.ChunkType]int, 3)
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return false
		}
		counts[c.ChunkType]++
	}
	for _, t := range domain.AllChunkTypes() {
		if counts[t] != 1 {
			return false
		}
	}
	return len(chunks) == 3
}

func (s *ChunkService) stamp(chunks []domain.Chunk, now time.Time) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		assetID, err := identity.AssetID(c.FamilyID)
		if err != nil {
			return nil, err
		}
		docID, err := identity.DocID(c.SelectedPublication)
		if err != nil {
			return nil, err
		}
		layer, err := identity.LayerFor(c.ChunkType)
		if err != nil {
			return nil, err
		}
		chunkID, err := identity.ChunkID(docID, c.SpanStart, layer)
		if err != nil {
			return nil, err
		}
		c.AssetID = assetID
		c.DocID = docID
		c.ChunkID = chunkID
		c.ChunkPolicyVersion = s.policyVersion
		c.CreatedAt = now
		if c.LanguageHint == "" {
			c.LanguageHint = domain.LanguageHintUnknown
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return typeOrder(out[i].ChunkType) < typeOrder(out[j].ChunkType)
	})
	return out, nil
}

func (s *ChunkService) tally(report *domain.ChunkReport, chunks []domain.Chunk) {
	if report.FlagCounts == nil {
		report.FlagCounts = make(map[string]int)
		report.ParseMethods = make(map[string]int)
	}
	flags := make(map[domain.GovernanceFlag]bool)
	for _, c := range chunks {
		for _, f := range c.GovernanceFlags {
			flags[f] = true
		}
		switch c.ChunkType {
		case domain.ChunkTypeClaim1:
			report.ParseMethods[c.ClaimsParseMethod]++
		case domain.ChunkTypeSpec:
			if c.Spec != nil && c.Spec.Truncated {
				report.SpecTruncated++
			}
		}
	}
	for f := range flags {
		report.FlagCounts[string(f)]++
	}
}

func typeOrder(t domain.ChunkType) int {
	for i, ct := range domain.AllChunkTypes() {
		if ct == t {
			return i
		}
	}
	return len(domain.AllChunkTypes())
}
