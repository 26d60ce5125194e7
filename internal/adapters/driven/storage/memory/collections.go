package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// Ensure CollectionStore implements the interface.
var _ driven.CollectionStore = (*CollectionStore)(nil)

// CollectionStore is an in-memory implementation of driven.CollectionStore for testing.
// Production pointers are swapped under one lock.
type CollectionStore struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	production map[string]*Workspace
	collection map[string]domain.Collection
	clock      func() time.Time

	// FailPromote, when set, is returned by Promote before anything changes.
	FailPromote error
}

// NewCollectionStore creates a new in-memory collection store.
func NewCollectionStore() *CollectionStore {
	return &CollectionStore{
		workspaces: make(map[string]*Workspace),
		production: make(map[string]*Workspace),
		collection: make(map[string]domain.Collection),
		clock:      time.Now,
	}
}

// CreateWorkspace allocates a new staged workspace.
func (s *CollectionStore) CreateWorkspace(_ context.Context, evid, runID string) (driven.Workspace, error) {
	if evid == "" || runID == "" {
		return nil, fmt.Errorf("%w: workspace needs a version and run id", domain.ErrMissingInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "mem://staging/" + identity.WorkspaceName(evid) + "/" + runID
	if _, ok := s.workspaces[path]; ok {
		return nil, fmt.Errorf("%w: workspace %s", domain.ErrAlreadyExists, path)
	}
	ws := &Workspace{
		path:    path,
		name:    identity.WorkspaceName(evid),
		runID:   runID,
		evid:    evid,
		vectors: make(map[string]domain.Vector),
	}
	s.workspaces[path] = ws
	return ws, nil
}

// Promote makes the workspace the production collection of its version.
func (s *CollectionStore) Promote(_ context.Context, ws driven.Workspace) (*domain.Collection, error) {
	if s.FailPromote != nil {
		return nil, s.FailPromote
	}
	w, ok := ws.(*Workspace)
	if !ok {
		return nil, fmt.Errorf("%w: foreign workspace %T", domain.ErrInvalidInput, ws)
	}
	success, partial, _ := w.Markers()
	if !success || partial {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotPromoted, w.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col := domain.Collection{
		Name:               w.name,
		EmbeddingVersionID: w.evid,
		RunID:              w.runID,
		Path:               "mem://production/" + w.name + "/" + w.runID,
		PromotedAt:         s.clock().UTC(),
	}
	s.production[w.evid] = w
	s.collection[w.evid] = col
	delete(s.workspaces, w.path)
	return &col, nil
}

// Production returns the promoted collection for a version.
func (s *CollectionStore) Production(_ context.Context, evid string) (*domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collection[evid]
	if !ok {
		return nil, fmt.Errorf("%w: no production collection for %s", domain.ErrNotFound, evid)
	}
	return &col, nil
}

// List returns every promoted collection ordered by version id.
func (s *CollectionStore) List(_ context.Context) ([]domain.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Collection, 0, len(s.collection))
	for _, col := range s.collection {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmbeddingVersionID < out[j].EmbeddingVersionID })
	return out, nil
}

// Open opens a promoted collection. Staged workspaces are refused even
// when they carry the success marker.
func (s *CollectionStore) Open(_ context.Context, col domain.Collection) (driven.CollectionReader, error) {
	s.mu.RLock()
	w, ok := s.production[col.EmbeddingVersionID]
	current := ok && s.collection[col.EmbeddingVersionID].Path == col.Path
	_, staged := s.workspaces[col.Path]
	s.mu.RUnlock()
	switch {
	case staged:
		return nil, fmt.Errorf("%w: %s is a staged workspace", domain.ErrNotPromoted, col.Path)
	case !current:
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, col.Path)
	}
	success, partial, _ := w.Markers()
	if !success || partial {
		return nil, fmt.Errorf("%w: %s has no success marker", domain.ErrNotPromoted, col.Path)
	}
	return &reader{ws: w, col: col}, nil
}

// Staged returns the staged workspaces, for inspection in tests.
func (s *CollectionStore) Staged() []*Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// ProductionWorkspace returns the workspace behind a promoted version, for tests.
func (s *CollectionStore) ProductionWorkspace(evid string) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.production[evid]
	return w, ok
}

// Workspace is an in-memory staged build.
type Workspace struct {
	mu       sync.RWMutex
	path     string
	name     string
	runID    string
	evid     string
	vectors  map[string]domain.Vector
	manifest []byte
	success  bool
	partial  string
}

// Path returns the workspace path.
func (w *Workspace) Path() string { return w.path }

// Name returns the encoded version segment.
func (w *Workspace) Name() string { return w.name }

// RunID returns the build run id.
func (w *Workspace) RunID() string { return w.runID }

// EmbeddingVersionID returns the version the workspace was allocated for.
func (w *Workspace) EmbeddingVersionID() string { return w.evid }

// PutVectors stores vectors, refusing repeated ids.
func (w *Workspace) PutVectors(_ context.Context, vectors []domain.Vector) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[string]bool, len(vectors))
	for _, v := range vectors {
		if _, ok := w.vectors[v.VectorID]; ok || seen[v.VectorID] {
			return fmt.Errorf("%w: %s", domain.ErrVectorIDCollision, v.VectorID)
		}
		seen[v.VectorID] = true
	}
	for _, v := range vectors {
		v.Embedding = append([]float32(nil), v.Embedding...)
		w.vectors[v.VectorID] = v
	}
	return nil
}

// VectorMetadata returns stored metadata in vector id order.
func (w *Workspace) VectorMetadata(_ context.Context) ([]domain.VectorMetadata, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]domain.VectorMetadata, 0, len(w.vectors))
	for _, id := range w.ids() {
		out = append(out, w.vectors[id].Metadata)
	}
	return out, nil
}

// Tamper replaces stored metadata, for gate tests.
func (w *Workspace) Tamper(fn func(*domain.VectorMetadata)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, v := range w.vectors {
		fn(&v.Metadata)
		w.vectors[id] = v
	}
}

// WriteManifest stores the manifest as JSON, as a file store would.
func (w *Workspace) WriteManifest(_ context.Context, m *domain.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.manifest = data
	return nil
}

// ReadManifest decodes the stored manifest.
func (w *Workspace) ReadManifest(_ context.Context) (*domain.Manifest, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.manifest == nil {
		return nil, fmt.Errorf("%w: manifest in %s", domain.ErrNotFound, w.path)
	}
	var m domain.Manifest
	if err := json.Unmarshal(w.manifest, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// MarkSuccess sets the success marker.
func (w *Workspace) MarkSuccess(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.success = true
	return nil
}

// MarkPartial clears the success marker and sets the partial marker.
func (w *Workspace) MarkPartial(_ context.Context, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if reason == "" {
		reason = "partial"
	}
	w.success = false
	w.partial = reason
	return nil
}

// Markers reports which markers are set.
func (w *Workspace) Markers() (success, partial bool, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.success, w.partial != "", nil
}

// PartialReason returns the recorded partial reason.
func (w *Workspace) PartialReason() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.partial
}

// Close is a no-op.
func (w *Workspace) Close() error { return nil }

func (w *Workspace) ids() []string {
	ids := make([]string, 0, len(w.vectors))
	for id := range w.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type reader struct {
	ws  *Workspace
	col domain.Collection
}

func (r *reader) Collection() domain.Collection { return r.col }

func (r *reader) Name() string { return r.ws.name }

func (r *reader) Manifest(ctx context.Context) (*domain.Manifest, error) {
	return r.ws.ReadManifest(ctx)
}

func (r *reader) Markers() (success, partial bool, err error) { return r.ws.Markers() }

func (r *reader) Vectors(ctx context.Context, fn func(domain.Vector) error) error {
	r.ws.mu.RLock()
	ids := r.ws.ids()
	vectors := make([]domain.Vector, 0, len(ids))
	for _, id := range ids {
		vectors = append(vectors, r.ws.vectors[id])
	}
	r.ws.mu.RUnlock()

	for _, v := range vectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error) {
	return r.ws.VectorMetadata(ctx)
}

func (r *reader) Close() error { return nil }
