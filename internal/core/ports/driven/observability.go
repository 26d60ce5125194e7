package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// BuildMetrics records build measurements.
// This is an optional port - when nil, no metrics are recorded.
type BuildMetrics interface {
	// VectorsWritten counts vectors stored for a chunk type.
	VectorsWritten(evid string, chunkType domain.ChunkType, n int)

	// GateEvaluated records one gate outcome.
	GateEvaluated(evid string, result domain.GateResult)

	// BuildFinished records the terminal status and duration of a build.
	BuildFinished(evid string, status domain.BuildStatus, elapsed time.Duration)

	// Flush writes the current metrics into dir.
	Flush(dir string) error
}

// BuildEventPublisher publishes build lifecycle events.
// This is an optional port - when nil, no events are published.
type BuildEventPublisher interface {
	// Publish sends one event.
	Publish(ctx context.Context, event domain.BuildEvent) error

	// Close releases the connection.
	Close() error
}

// CollectionMirror copies a promoted collection into an external vector
// database. It is invoked only after promotion and never affects the
// build outcome.
// This is an optional port - when nil, nothing is mirrored.
type CollectionMirror interface {
	// Mirror copies every vector of the collection and points the
	// version's alias at the copy.
	Mirror(ctx context.Context, reader CollectionReader) error

	// Close releases the connection.
	Close() error
}
