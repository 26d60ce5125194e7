package domain

import (
	"fmt"
	"time"
)

// BuildStatus is the lifecycle state of a build.
type BuildStatus string

// Build states. Failed and promoted are terminal.
const (
	BuildStaging  BuildStatus = "staging"
	BuildPassed   BuildStatus = "passed"
	BuildPromoted BuildStatus = "promoted"
	BuildFailed   BuildStatus = "failed"
)

// IsTerminal returns true for states that never change again.
func (s BuildStatus) IsTerminal() bool {
	return s == BuildPromoted || s == BuildFailed
}

// String returns the string representation.
func (s BuildStatus) String() string {
	return string(s)
}

// Build tracks one embedding build from staging to its outcome.
type Build struct {
	RunID              string
	EmbeddingVersionID string
	Workspace          string
	Status             BuildStatus
	Reason             string
	StartedAt          time.Time
	FinishedAt         time.Time
}

// NewBuild returns a build in the staging state.
func NewBuild(runID, evid, workspace string, now time.Time) *Build {
	return &Build{
		RunID:              runID,
		EmbeddingVersionID: evid,
		Workspace:          workspace,
		Status:             BuildStaging,
		StartedAt:          now,
	}
}

// Transition moves the build to the next state.
// Allowed: staging -> passed|failed, passed -> promoted|failed.
func (b *Build) Transition(next BuildStatus, reason string) error {
	ok := false
	switch b.Status {
	case BuildStaging:
		ok = next == BuildPassed || next == BuildFailed
	case BuildPassed:
		ok = next == BuildPromoted || next == BuildFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
	}
	b.Status = next
	if reason != "" {
		b.Reason = reason
	}
	return nil
}

// ResourceProfile is the resource configuration fixed for a build.
// It is recorded in the manifest and never adjusted mid-build.
type ResourceProfile struct {
	BatchSize          int    `json:"batch_size" toml:"batch_size"`
	MaxInputChars      int    `json:"max_input_chars" toml:"max_input_chars"`
	Device             string `json:"device" toml:"device"`
	Normalize          bool   `json:"normalize" toml:"normalize"`
	TruncationDeclared bool   `json:"truncation_declared" toml:"truncation_declared"`
	Workers            int    `json:"workers" toml:"workers"`

	// NormalizationVersion, when set, must match the norm component of
	// the build's embedding version id.
	NormalizationVersion string `json:"normalization_version,omitempty" toml:"normalization_version"`
}

// DefaultResourceProfile returns a conservative single-device profile.
func DefaultResourceProfile() ResourceProfile {
	return ResourceProfile{
		BatchSize: 16,
		Device:    "cpu",
		Normalize: true,
		Workers:   4,
	}
}

// Missing returns the names of unset profile fields.
func (p ResourceProfile) Missing() []string {
	var missing []string
	if p.BatchSize <= 0 {
		missing = append(missing, "batch_size")
	}
	if p.Device == "" {
		missing = append(missing, "device")
	}
	if p.Workers <= 0 {
		missing = append(missing, "workers")
	}
	return missing
}

// BuildObservations are measurements taken while embedding.
type BuildObservations struct {
	// InputLimit is the embedder's declared input limit in runes. Zero is unbounded.
	InputLimit int `json:"input_limit"`

	// TruncatedInputs counts chunks longer than the effective input limit.
	TruncatedInputs int `json:"truncated_inputs"`

	// MaxInputChars is the longest chunk embedded.
	MaxInputChars int `json:"max_input_chars_seen"`

	// Vectors is the number of vectors written.
	Vectors int `json:"vectors"`
}

// AuditNote is an append-only manifest addendum.
type AuditNote struct {
	At      time.Time    `json:"at"`
	Phase   string       `json:"phase"`
	Message string       `json:"message"`
	Gates   []GateResult `json:"gates,omitempty"`
}

// Manifest is the audit record of a build.
type Manifest struct {
	RunID              string               `json:"run_id"`
	EmbeddingVersionID string               `json:"embedding_version_id"`
	EmbeddingVersion   EmbeddingVersion     `json:"embedding_version"`
	EmbeddingModel     string               `json:"embedding_model"`
	EmbeddingDim       int                  `json:"embedding_dim"`
	ChunkPolicyVersion string               `json:"chunk_policy_version"`
	ChunkRunID         string               `json:"chunk_run_id"`
	Counts             map[ChunkType]int    `json:"counts"`
	FamilySetHashes    map[ChunkType]string `json:"family_set_hashes"`
	Profile            ResourceProfile      `json:"resource_profile"`
	Observations       BuildObservations    `json:"observations"`
	IsolationFilter    IsolationFilter      `json:"isolation_filter"`
	CreatedAt          time.Time            `json:"created_at"`
	Addenda            []AuditNote          `json:"addenda,omitempty"`
}

// Append adds an addendum. Existing addenda are never rewritten.
func (m *Manifest) Append(note AuditNote) {
	m.Addenda = append(m.Addenda, note)
}

// Collection is a named build visible to readers.
type Collection struct {
	Name               string    `json:"name"`
	EmbeddingVersionID string    `json:"embedding_version_id"`
	RunID              string    `json:"run_id"`
	Path               string    `json:"path"`
	PromotedAt         time.Time `json:"promoted_at"`
}

// BuildResult is the outcome of one build attempt.
type BuildResult struct {
	Build      *Build
	Manifest   *Manifest
	Report     *GateReport
	Collection *Collection
}
