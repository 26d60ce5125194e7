package driven

import "context"

// VectorIndex provides exact similarity search over one collection.
type VectorIndex interface {
	// Add inserts a vector for the given vector ID.
	Add(ctx context.Context, vectorID string, embedding []float32) error

	// Search finds the k nearest neighbours to the query vector.
	// Hits are ordered by similarity descending, ties by vector ID ascending.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// VectorID is the matched vector.
	VectorID string

	// Similarity is the cosine similarity score.
	Similarity float64
}

// VectorIndexFactory creates an empty index for vectors of the given dimension.
type VectorIndexFactory func(dimensions int) VectorIndex
