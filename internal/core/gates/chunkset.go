package gates

import (
	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// ValidateChunkSet runs count equality, family identity, metadata
// completeness and spec control declaration over a chunk set.
// expected is the cardinality every chunk type must have; zero means the
// claim_1 population defines it.
func ValidateChunkSet(set *domain.ChunkSet, expected int) *domain.GateReport {
	report := &domain.GateReport{Phase: string(PhaseChunkSet)}

	p := newPopulation()
	fields := newFieldCheck()
	spec := newSpecCheck()

	for _, t := range domain.AllChunkTypes() {
		for _, c := range set.Chunks(t) {
			p.add(t, c.FamilyID)
			checkChunkFields(fields, c)
			if t == domain.ChunkTypeSpec {
				spec.check(chunkLabel(c), c.Spec)
			}
		}
	}

	report.Add(countEquality(p, expected, nil))
	report.Add(familyIdentity(p, nil))
	report.Add(fields.result())
	report.Add(spec.result())
	return report
}

func chunkLabel(c domain.Chunk) string {
	if c.FamilyID == "" {
		return "<no family>/" + string(c.ChunkType)
	}
	return c.FamilyID + "/" + string(c.ChunkType)
}

// checkChunkFields enforces the chunk record contract.
func checkChunkFields(f *fieldCheck, c domain.Chunk) {
	f.records++
	id := chunkLabel(c)
	f.require(id, "family_id", nonEmpty(c.FamilyID))
	f.require(id, "selected_publication", nonEmpty(c.SelectedPublication))
	f.require(id, "source", nonEmpty(c.Source))
	f.require(id, "chunk_type", c.ChunkType.IsValid())
	f.require(id, "chunk_policy_version", nonEmpty(c.ChunkPolicyVersion))
	f.require(id, "created_at", nonZero(c.CreatedAt))
	f.require(id, "text", nonEmpty(c.Text))
	f.require(id, "language_hint", nonEmpty(c.LanguageHint))
	f.require(id, "chunk_id", nonEmpty(c.ChunkID))
	f.require(id, "asset_id", nonEmpty(c.AssetID))
	f.require(id, "doc_id", nonEmpty(c.DocID))
}
