package domain

import (
	"errors"
	"fmt"
	"strings"
)

// GateName identifies a hard gate.
type GateName string

// Gates in their fixed evaluation and report order.
const (
	GateCountEquality             GateName = "count_equality"
	GateFamilyIdentity            GateName = "family_identity"
	GateMetadataCompleteness      GateName = "metadata_completeness"
	GateEmbeddingVersionIntegrity GateName = "embedding_version_integrity"
	GateSpecControlDeclaration    GateName = "spec_control_declaration"
	GateResourceProfile           GateName = "resource_profile"
	GateAtomicBuildMarker         GateName = "atomic_build_marker"
)

// AllGates returns every gate in evaluation order.
func AllGates() []GateName {
	return []GateName{
		GateCountEquality,
		GateFamilyIdentity,
		GateMetadataCompleteness,
		GateEmbeddingVersionIntegrity,
		GateSpecControlDeclaration,
		GateResourceProfile,
		GateAtomicBuildMarker,
	}
}

// GateOutcome is the result state of a single gate.
type GateOutcome string

// Gate outcomes. Pending never counts as pass.
const (
	GatePass    GateOutcome = "pass"
	GateFail    GateOutcome = "fail"
	GatePending GateOutcome = "pending"
)

// GateResult is one gate evaluation.
type GateResult struct {
	Name     GateName          `json:"gate"`
	Outcome  GateOutcome       `json:"outcome"`
	Reason   string            `json:"reason,omitempty"`
	Expected string            `json:"expected,omitempty"`
	Actual   string            `json:"actual,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// Passed returns true only for a pass outcome.
func (r GateResult) Passed() bool {
	return r.Outcome == GatePass
}

// String returns a single-line rendering.
func (r GateResult) String() string {
	s := fmt.Sprintf("%s: %s", r.Name, r.Outcome)
	if r.Expected != "" || r.Actual != "" {
		s += fmt.Sprintf(" (expected %s, actual %s)", r.Expected, r.Actual)
	}
	if r.Reason != "" {
		s += ": " + r.Reason
	}
	return s
}

// GateReport is the ordered, AND-combined result of a gate run.
type GateReport struct {
	Phase   string       `json:"phase"`
	Results []GateResult `json:"results"`
}

// Add appends a result.
func (r *GateReport) Add(res GateResult) {
	r.Results = append(r.Results, res)
}

// Passed returns true when every gate passed. An empty report does not pass.
func (r *GateReport) Passed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Failures returns the results with a fail outcome.
func (r *GateReport) Failures() []GateResult {
	var out []GateResult
	for _, res := range r.Results {
		if res.Outcome == GateFail {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for a named gate.
func (r *GateReport) Result(name GateName) (GateResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return GateResult{}, false
}

// Err returns a *GateError when any gate failed, or nil.
func (r *GateReport) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &GateError{Failures: failures}
}

// GateError carries every failed gate.
type GateError struct {
	Failures []GateResult
}

// Error implements error.
func (e *GateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	return "gate failed: " + strings.Join(parts, "; ")
}

// Unwrap allows errors.Is(err, ErrGateFailed).
func (e *GateError) Unwrap() error {
	return ErrGateFailed
}

// FailedGates returns the names of failed gates in err, if err is a *GateError.
func FailedGates(err error) []GateName {
	var gerr *GateError
	if !errors.As(err, &gerr) {
		return nil
	}
	names := make([]GateName, 0, len(gerr.Failures))
	for _, f := range gerr.Failures {
		names = append(names, f.Name)
	}
	return names
}
