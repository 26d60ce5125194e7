package driven

import (
	"context"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// CollectionStore owns staged workspaces and promoted collections.
// Production is only ever changed by Promote, atomically.
type CollectionStore interface {
	// CreateWorkspace allocates an isolated staging workspace for a version and run.
	CreateWorkspace(ctx context.Context, evid, runID string) (Workspace, error)

	// Promote makes a workspace carrying the success marker the production
	// collection for its version. Readers see either the old or the new
	// collection, never a mix.
	Promote(ctx context.Context, ws Workspace) (*domain.Collection, error)

	// Production returns the promoted collection for a version.
	// Returns domain.ErrNotFound if the version was never promoted.
	Production(ctx context.Context, evid string) (*domain.Collection, error)

	// List returns every promoted collection.
	List(ctx context.Context) ([]domain.Collection, error)

	// Open opens a collection for reading.
	// Returns domain.ErrNotPromoted if the collection has no success marker.
	Open(ctx context.Context, col domain.Collection) (CollectionReader, error)
}

// Workspace is one staged, not yet visible build.
type Workspace interface {
	// Path returns the workspace directory.
	Path() string

	// Name returns the directory segment encoding the embedding version id.
	Name() string

	// RunID returns the build run id.
	RunID() string

	// EmbeddingVersionID returns the version this workspace was allocated for.
	EmbeddingVersionID() string

	// PutVectors appends vectors. A repeated vector ID returns
	// domain.ErrVectorIDCollision and nothing is overwritten.
	PutVectors(ctx context.Context, vectors []domain.Vector) error

	// VectorMetadata returns the metadata of every stored vector.
	VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error)

	// WriteManifest replaces the manifest file atomically.
	WriteManifest(ctx context.Context, m *domain.Manifest) error

	// ReadManifest reads the manifest back from disk.
	ReadManifest(ctx context.Context) (*domain.Manifest, error)

	// MarkSuccess writes the zero-byte success marker.
	MarkSuccess(ctx context.Context) error

	// MarkPartial writes the partial marker with a reason.
	MarkPartial(ctx context.Context, reason string) error

	// Markers reports which markers exist.
	Markers() (success, partial bool, err error)

	// Close releases the vector store handle.
	Close() error
}

// CollectionReader reads a promoted collection.
type CollectionReader interface {
	// Collection returns the collection being read.
	Collection() domain.Collection

	// Name returns the directory segment encoding the embedding version id.
	Name() string

	// Manifest returns the build manifest.
	Manifest(ctx context.Context) (*domain.Manifest, error)

	// Markers reports which markers exist.
	Markers() (success, partial bool, err error)

	// Vectors streams every stored vector to fn in vector ID order.
	Vectors(ctx context.Context, fn func(domain.Vector) error) error

	// VectorMetadata returns the metadata of every stored vector.
	VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error)

	// Close releases resources.
	Close() error
}
