package domain

import "time"

// BuildEventKind names a build lifecycle event.
type BuildEventKind string

// Build lifecycle events.
const (
	EventBuildStarted  BuildEventKind = "build.started"
	EventBuildPromoted BuildEventKind = "build.promoted"
	EventBuildFailed   BuildEventKind = "build.failed"
)

// BuildEvent is published when a build changes state.
type BuildEvent struct {
	Kind               BuildEventKind `json:"kind"`
	RunID              string         `json:"run_id"`
	EmbeddingVersionID string         `json:"embedding_version_id"`
	Status             BuildStatus    `json:"status"`
	Reason             string         `json:"reason,omitempty"`
	FailedGates        []GateName     `json:"failed_gates,omitempty"`
	Vectors            int            `json:"vectors"`
	At                 time.Time      `json:"at"`
}
