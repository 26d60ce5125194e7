// Package flat provides an exact in-memory vector index.
//
// Every search scores every stored vector by cosine similarity.
package flat

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index stores unit-normalised copies of its vectors.
type Index struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	vecs      [][]float32
	seen      map[string]struct{}
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) *Index {
	return &Index{dimension: dimension, seen: make(map[string]struct{})}
}

// Factory adapts New to driven.VectorIndexFactory.
func Factory(dimension int) driven.VectorIndex {
	return New(dimension)
}

// Add inserts a vector. Duplicate ids are refused.
func (idx *Index) Add(_ context.Context, vectorID string, embedding []float32) error {
	if len(embedding) != idx.dimension {
		return fmt.Errorf("%w: vector %s has dimension %d, index expects %d",
			domain.ErrInvalidInput, vectorID, len(embedding), idx.dimension)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.seen[vectorID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrVectorIDCollision, vectorID)
	}
	idx.seen[vectorID] = struct{}{}
	idx.ids = append(idx.ids, vectorID)
	idx.vecs = append(idx.vecs, unit(embedding))
	return nil
}

// Search returns the k most similar vectors, ties broken by vector id.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			domain.ErrInvalidInput, len(query), idx.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := unit(query)

	idx.mu.RLock()
	hits := make([]driven.VectorHit, len(idx.ids))
	for i, v := range idx.vecs {
		hits[i] = driven.VectorHit{VectorID: idx.ids[i], Similarity: dot(q, v)}
	}
	idx.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].VectorID < hits[j].VectorID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.ids)
}

// Close drops the stored vectors.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ids, idx.vecs = nil, nil
	idx.seen = make(map[string]struct{})
	return nil
}

// unit returns a normalised copy of v; a zero vector stays zero.
func unit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	n := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
