// Package gates evaluates the hard gates that decide whether a chunk set or
// an embedding build may move forward.
//
// Gates are pure functions over explicit snapshots. They run in a fixed
// order and are AND-combined; a failure reason always names the gate and
// the discrepancy.
package gates

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
)

// Phase selects how the atomic build marker gate is evaluated.
type Phase string

const (
	// PhaseStaged runs before the success marker is written.
	// The marker gate reports pending.
	PhaseStaged Phase = "staged"

	// PhasePromotion runs after the marker is written and requires it.
	PhasePromotion Phase = "promotion"

	// PhaseChunkSet is the reduced gate run over a chunk set.
	PhaseChunkSet Phase = "chunk_set"
)

// maxListed caps the number of ids listed in a reason.
const maxListed = 10

// population is the per-chunk-type view shared by chunk set and build gates.
type population struct {
	counts   map[domain.ChunkType]int
	families map[domain.ChunkType]map[string]int
}

func newPopulation() *population {
	p := &population{
		counts:   make(map[domain.ChunkType]int),
		families: make(map[domain.ChunkType]map[string]int),
	}
	for _, t := range domain.AllChunkTypes() {
		p.families[t] = make(map[string]int)
	}
	return p
}

func (p *population) add(t domain.ChunkType, familyID string) {
	p.counts[t]++
	if p.families[t] == nil {
		p.families[t] = make(map[string]int)
	}
	p.families[t][familyID]++
}

func (p *population) ids(t domain.ChunkType) []string {
	ids := make([]string, 0, len(p.families[t]))
	for id := range p.families[t] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *population) hashes() map[domain.ChunkType]string {
	out := make(map[domain.ChunkType]string, 3)
	for _, t := range domain.AllChunkTypes() {
		out[t] = identity.FamilySetHash(p.ids(t))
	}
	return out
}

func formatCounts(counts map[domain.ChunkType]int) string {
	parts := make([]string, 0, 3)
	for _, t := range domain.AllChunkTypes() {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
	}
	return strings.Join(parts, " ")
}

func listIDs(ids []string) string {
	if len(ids) <= maxListed {
		return strings.Join(ids, ",")
	}
	return fmt.Sprintf("%s,... +%d more", strings.Join(ids[:maxListed], ","), len(ids)-maxListed)
}

func pass(name domain.GateName) domain.GateResult {
	return domain.GateResult{Name: name, Outcome: domain.GatePass}
}

func fail(name domain.GateName, reason string) domain.GateResult {
	return domain.GateResult{Name: name, Outcome: domain.GateFail, Reason: reason}
}

// countEquality checks that every chunk type has the same cardinality and,
// when given, the expected cardinality.
func countEquality(p *population, expected int, recorded map[domain.ChunkType]int) domain.GateResult {
	res := pass(domain.GateCountEquality)
	res.Actual = formatCounts(p.counts)

	target := expected
	if target <= 0 {
		target = p.counts[domain.ChunkTypeClaim1]
	}
	res.Expected = strconv.Itoa(target)

	var problems []string
	for _, t := range domain.AllChunkTypes() {
		if p.counts[t] != target {
			problems = append(problems, fmt.Sprintf("%s has %d, expected %d", t, p.counts[t], target))
		}
	}
	if recorded != nil {
		for _, t := range domain.AllChunkTypes() {
			if recorded[t] != p.counts[t] {
				problems = append(problems, fmt.Sprintf("manifest records %s=%d but store holds %d", t, recorded[t], p.counts[t]))
			}
		}
	}
	for _, t := range domain.AllChunkTypes() {
		var dups []string
		for id, n := range p.families[t] {
			if n > 1 {
				dups = append(dups, id)
			}
		}
		if len(dups) > 0 {
			sort.Strings(dups)
			problems = append(problems, fmt.Sprintf("%s has duplicate families [%s]", t, listIDs(dups)))
		}
	}
	if target == 0 {
		problems = append(problems, "population is empty")
	}

	if len(problems) > 0 {
		res.Outcome = domain.GateFail
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}

// familyIdentity checks that the hashed family sets are identical across
// chunk types, and equal to the recorded hashes when given.
func familyIdentity(p *population, recorded map[domain.ChunkType]string) domain.GateResult {
	res := pass(domain.GateFamilyIdentity)
	hashes := p.hashes()
	res.Details = make(map[string]string, 3)
	for _, t := range domain.AllChunkTypes() {
		res.Details[string(t)] = hashes[t]
	}

	union := make(map[string]struct{})
	for _, t := range domain.AllChunkTypes() {
		for id := range p.families[t] {
			union[id] = struct{}{}
		}
	}

	var problems []string
	for _, t := range domain.AllChunkTypes() {
		var missing []string
		for id := range union {
			if _, ok := p.families[t][id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			problems = append(problems, fmt.Sprintf("%s missing families [%s]", t, listIDs(missing)))
		}
	}
	if recorded != nil {
		for _, t := range domain.AllChunkTypes() {
			if recorded[t] != hashes[t] {
				problems = append(problems, fmt.Sprintf("%s family-set hash %s does not match manifest %s", t, short(hashes[t]), short(recorded[t])))
			}
		}
	}

	res.Expected = short(hashes[domain.ChunkTypeClaim1])
	res.Actual = fmt.Sprintf("%s/%s/%s",
		short(hashes[domain.ChunkTypeClaim1]),
		short(hashes[domain.ChunkTypeClaimSet]),
		short(hashes[domain.ChunkTypeSpec]))
	if len(problems) > 0 {
		res.Outcome = domain.GateFail
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// fieldCheck accumulates missing mandatory fields per record.
type fieldCheck struct {
	missing map[string][]string
	records int
}

func newFieldCheck() *fieldCheck {
	return &fieldCheck{missing: make(map[string][]string)}
}

func (f *fieldCheck) require(recordID, field string, ok bool) {
	if !ok {
		f.missing[field] = append(f.missing[field], recordID)
	}
}

func (f *fieldCheck) result() domain.GateResult {
	res := pass(domain.GateMetadataCompleteness)
	res.Expected = "all mandatory fields present"
	if len(f.missing) == 0 {
		res.Actual = fmt.Sprintf("%d records complete", f.records)
		return res
	}
	fields := make([]string, 0, len(f.missing))
	for field := range f.missing {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		ids := f.missing[field]
		parts = append(parts, fmt.Sprintf("%s missing on %d records [%s]", field, len(ids), listIDs(ids)))
	}
	res.Outcome = domain.GateFail
	res.Actual = fmt.Sprintf("%d fields incomplete", len(fields))
	res.Reason = strings.Join(parts, "; ")
	return res
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func nonZero(t time.Time) bool {
	return !t.IsZero()
}

// specControl checks one declaration and accumulates problems by record.
type specCheck struct {
	problems []string
	policies map[string]int
	checked  int
}

func newSpecCheck() *specCheck {
	return &specCheck{policies: make(map[string]int)}
}

func (s *specCheck) check(recordID string, ctl *domain.SpecControl) {
	s.checked++
	if ctl == nil {
		s.problems = append(s.problems, recordID+": no spec_control declaration")
		return
	}
	if err := ctl.Consistent(); err != nil {
		s.problems = append(s.problems, recordID+": "+err.Error())
		return
	}
	s.policies[ctl.Policy]++
}

func (s *specCheck) result() domain.GateResult {
	res := pass(domain.GateSpecControlDeclaration)
	res.Expected = "one consistent declaration per spec chunk"
	res.Actual = fmt.Sprintf("%d spec records checked", s.checked)

	problems := s.problems
	if len(s.policies) > 1 {
		names := make([]string, 0, len(s.policies))
		for p := range s.policies {
			names = append(names, p)
		}
		sort.Strings(names)
		problems = append(problems, "mixed spec policies ["+strings.Join(names, ",")+"]")
	}
	if len(problems) > 0 {
		res.Outcome = domain.GateFail
		if len(problems) > maxListed {
			problems = append(problems[:maxListed], fmt.Sprintf("... +%d more", len(problems)-maxListed))
		}
		res.Reason = strings.Join(problems, "; ")
	}
	return res
}
