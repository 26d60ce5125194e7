package gates

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
)

// BuildSnapshot is everything the build gates read from a workspace.
type BuildSnapshot struct {
	// WorkspaceName is the directory segment naming the workspace's version.
	WorkspaceName string

	// Manifest is the manifest as written to the workspace.
	Manifest *domain.Manifest

	// Vectors is the metadata of every stored vector.
	Vectors []domain.VectorMetadata

	// MarkerPresent reports whether the success marker exists.
	MarkerPresent bool

	// PartialPresent reports whether a partial marker exists.
	PartialPresent bool
}

// ValidateBuild runs every gate over a build snapshot in fixed order.
func ValidateBuild(s BuildSnapshot, phase Phase) *domain.GateReport {
	report := &domain.GateReport{Phase: string(phase)}

	m := s.Manifest
	if m == nil {
		for _, name := range domain.AllGates() {
			if name == domain.GateAtomicBuildMarker {
				report.Add(markerGate(s, phase))
				continue
			}
			report.Add(fail(name, "manifest not found"))
		}
		return report
	}

	p := newPopulation()
	fields := newFieldCheck()
	spec := newSpecCheck()
	for _, v := range s.Vectors {
		p.add(v.ChunkType, v.FamilyID)
		checkVectorFields(fields, v)
		if v.ChunkType == domain.ChunkTypeSpec {
			spec.check(v.VectorID, v.Spec)
		} else if v.Spec != nil {
			spec.problems = append(spec.problems, v.VectorID+": spec_control on non-spec chunk")
		}
	}

	report.Add(countEquality(p, m.IsolationFilter.ExpectedFamilies, m.Counts))
	report.Add(familyIdentity(p, m.FamilySetHashes))
	report.Add(fields.result())
	report.Add(versionIntegrity(s))
	report.Add(spec.result())
	report.Add(resourceProfile(s))
	report.Add(markerGate(s, phase))
	return report
}

// checkVectorFields enforces the vector metadata contract.
func checkVectorFields(f *fieldCheck, v domain.VectorMetadata) {
	f.records++
	id := v.VectorID
	if id == "" {
		id = v.FamilyID + "/" + string(v.ChunkType)
	}
	f.require(id, "vector_id", nonEmpty(v.VectorID))
	f.require(id, "family_id", nonEmpty(v.FamilyID))
	f.require(id, "selected_publication", nonEmpty(v.SelectedPublication))
	f.require(id, "source", nonEmpty(v.Source))
	f.require(id, "chunk_type", v.ChunkType.IsValid())
	f.require(id, "chunk_policy_version", nonEmpty(v.ChunkPolicyVersion))
	f.require(id, "run_id", nonEmpty(v.RunID))
	f.require(id, "embedding_model", nonEmpty(v.EmbeddingModel))
	f.require(id, "embedding_version_id", nonEmpty(v.EmbeddingVersionID))
	f.require(id, "embedding_dim", v.EmbeddingDim > 0)
	f.require(id, "embedded_at", nonZero(v.EmbeddedAt))
	f.require(id, "language_hint", nonEmpty(v.LanguageHint))
	f.require(id, "text", v.InputChars > 0)
}

// versionIntegrity checks that the workspace name, manifest and every
// vector agree on one embedding version id.
func versionIntegrity(s BuildSnapshot) domain.GateResult {
	res := pass(domain.GateEmbeddingVersionIntegrity)
	evid := s.Manifest.EmbeddingVersionID
	res.Expected = evid

	var problems []string
	decoded, err := identity.ParseWorkspaceName(s.WorkspaceName)
	switch {
	case err != nil:
		problems = append(problems, err.Error())
	case decoded != evid:
		problems = append(problems, fmt.Sprintf("workspace is named for %q", decoded))
	}
	res.Actual = decoded

	if _, err := identity.ParseEmbeddingVersionID(evid); err != nil {
		problems = append(problems, "manifest version id: "+err.Error())
	}

	var stray []string
	var forged []string
	for _, v := range s.Vectors {
		if v.EmbeddingVersionID != evid {
			stray = append(stray, v.VectorID)
			continue
		}
		want, err := identity.VectorID(v.FamilyID, v.ChunkType, evid)
		if err != nil || want != v.VectorID {
			forged = append(forged, v.VectorID)
		}
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		problems = append(problems, fmt.Sprintf("%d vectors carry another version id [%s]", len(stray), listIDs(stray)))
	}
	if len(forged) > 0 {
		sort.Strings(forged)
		problems = append(problems, fmt.Sprintf("%d vector ids do not derive from their metadata [%s]", len(forged), listIDs(forged)))
	}

	if len(problems) > 0 {
		res.Outcome = domain.GateFail
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}

// resourceProfile checks the declared profile and that the embedder did
// not silently truncate inputs.
func resourceProfile(s BuildSnapshot) domain.GateResult {
	res := pass(domain.GateResourceProfile)
	m := s.Manifest
	obs := m.Observations

	var problems []string
	if missing := m.Profile.Missing(); len(missing) > 0 {
		problems = append(problems, "profile missing ["+strings.Join(missing, ",")+"]")
	}
	if m.EmbeddingDim <= 0 {
		problems = append(problems, "embedding_dim not recorded")
	}
	if declared := m.Profile.NormalizationVersion; declared != "" {
		v, err := identity.ParseEmbeddingVersionID(m.EmbeddingVersionID)
		if err == nil && v.Normalization != declared {
			problems = append(problems, fmt.Sprintf("profile declares normalization %q but version id carries norm=%s", declared, v.Normalization))
		}
	}
	var wrongDim int
	for _, v := range s.Vectors {
		if v.EmbeddingDim != m.EmbeddingDim {
			wrongDim++
		}
	}
	if wrongDim > 0 {
		problems = append(problems, fmt.Sprintf("%d vectors differ from manifest dim %d", wrongDim, m.EmbeddingDim))
	}

	res.Expected = "truncated_inputs=0"
	res.Actual = fmt.Sprintf("truncated_inputs=%d", obs.TruncatedInputs)
	if obs.TruncatedInputs > 0 {
		if m.Profile.TruncationDeclared {
			res.Expected = "truncation declared"
		} else {
			problems = append(problems, fmt.Sprintf(
				"%d inputs exceed the embedder limit of %d chars without declared truncation",
				obs.TruncatedInputs, obs.InputLimit))
		}
	}

	if len(problems) > 0 {
		res.Outcome = domain.GateFail
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}

// markerGate is pending while staged and requires the marker at promotion.
func markerGate(s BuildSnapshot, phase Phase) domain.GateResult {
	res := domain.GateResult{Name: domain.GateAtomicBuildMarker, Expected: "_SUCCESS present"}
	if phase != PhasePromotion {
		res.Outcome = domain.GatePending
		res.Actual = "not yet written"
		res.Reason = "marker is written only after the staged gates pass"
		return res
	}
	switch {
	case s.PartialPresent:
		res.Outcome = domain.GateFail
		res.Actual = "_PARTIAL present"
		res.Reason = "workspace is marked partial"
	case !s.MarkerPresent:
		res.Outcome = domain.GateFail
		res.Actual = "_SUCCESS absent"
		res.Reason = "success marker missing"
	default:
		res.Outcome = domain.GatePass
		res.Actual = "_SUCCESS present"
	}
	return res
}
