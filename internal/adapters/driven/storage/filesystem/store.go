package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/patentgov/internal/core/domain"
	"github.com/custodia-labs/patentgov/internal/core/identity"
	"github.com/custodia-labs/patentgov/internal/core/ports/driven"
)

// File and directory names.
const (
	ManifestFile  = "manifest.json"
	SuccessMarker = "_SUCCESS"
	PartialMarker = "_PARTIAL"

	stagingDir    = "staging"
	buildsDir     = "builds"
	productionDir = "production"
	pointerSuffix = ".json"
)

// Ensure Store implements the interface.
var _ driven.CollectionStore = (*Store)(nil)

// Store is a directory-backed collection store.
type Store struct {
	root  string
	clock func() time.Time

	// promoteMu serialises pointer replacement within this process.
	promoteMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for promotion timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a store rooted at root, creating the layout directories.
func NewStore(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: store root is empty", domain.ErrMissingInput)
	}
	s := &Store{root: root, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{stagingDir, buildsDir, productionDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return s, nil
}

// Root returns the store root.
func (s *Store) Root() string {
	return s.root
}

// CreateWorkspace allocates staging/<escaped-evid>/<run-id> and holds
// staging/<escaped-evid>.lock until the workspace is promoted or closed.
// A held lock, from any process, yields domain.ErrBuildInProgress.
func (s *Store) CreateWorkspace(_ context.Context, evid, runID string) (driven.Workspace, error) {
	if evid == "" || runID == "" {
		return nil, fmt.Errorf("%w: workspace needs a version and run id", domain.ErrMissingInput)
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("%w: run id %q is not a path segment", domain.ErrInvalidInput, runID)
	}
	name := identity.WorkspaceName(evid)
	lock := filepath.Join(s.root, stagingDir, name+lockSuffix)
	if err := acquireLock(lock, runID); err != nil {
		return nil, err
	}
	ws, err := s.createWorkspace(name, evid, runID)
	if err != nil {
		_ = releaseLock(lock)
		return nil, err
	}
	ws.lock = lock
	return ws, nil
}

func (s *Store) createWorkspace(name, evid, runID string) (*Workspace, error) {
	parent := filepath.Join(s.root, stagingDir, name)
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging parent: %w", err)
	}
	dir := filepath.Join(parent, runID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: workspace %s", domain.ErrAlreadyExists, dir)
		}
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		return nil, err
	}
	return &Workspace{dir: dir, name: name, evid: evid, runID: runID, db: db}, nil
}

// Promote moves a marked workspace into builds/ and points production at it.
func (s *Store) Promote(ctx context.Context, ws driven.Workspace) (*domain.Collection, error) {
	w, ok := ws.(*Workspace)
	if !ok {
		return nil, fmt.Errorf("%w: foreign workspace %T", domain.ErrInvalidInput, ws)
	}
	success, partial, err := readMarkers(w.dir)
	if err != nil {
		return nil, err
	}
	if !success || partial {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotPromoted, w.dir)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The database must be closed before its directory moves.
	if err := w.closeDB(); err != nil {
		return nil, err
	}

	s.promoteMu.Lock()
	defer s.promoteMu.Unlock()

	parent := filepath.Join(s.root, buildsDir, w.name)
	if err := os.MkdirAll(parent, 0o700); err != nil {
		return nil, fmt.Errorf("creating builds parent: %w", err)
	}
	target := filepath.Join(parent, w.runID)
	if err := os.Rename(w.dir, target); err != nil {
		return nil, fmt.Errorf("moving workspace: %w", err)
	}
	if err := syncDir(parent); err != nil {
		return nil, err
	}
	w.dir = target

	col := domain.Collection{
		Name:               w.name,
		EmbeddingVersionID: w.evid,
		RunID:              w.runID,
		Path:               target,
		PromotedAt:         s.clock().UTC(),
	}
	data, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode pointer: %w", err)
	}
	if err := writeFileAtomic(s.pointerPath(w.name), data); err != nil {
		return nil, fmt.Errorf("replace production pointer: %w", err)
	}
	// Close retries a failed release.
	_ = w.releaseLock()
	return &col, nil
}

// Production reads the production pointer of a version.
func (s *Store) Production(_ context.Context, evid string) (*domain.Collection, error) {
	return s.readPointer(s.pointerPath(identity.WorkspaceName(evid)))
}

// List returns every production collection ordered by version id.
func (s *Store) List(_ context.Context) ([]domain.Collection, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, productionDir))
	if err != nil {
		return nil, fmt.Errorf("reading production: %w", err)
	}
	var out []domain.Collection
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, pointerSuffix) {
			continue
		}
		col, err := s.readPointer(filepath.Join(s.root, productionDir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, *col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmbeddingVersionID < out[j].EmbeddingVersionID })
	return out, nil
}

// Open opens a promoted collection directory for reading. The directory
// must sit under builds/ and carry the success marker and no partial marker.
func (s *Store) Open(_ context.Context, col domain.Collection) (driven.CollectionReader, error) {
	if col.Path == "" {
		return nil, fmt.Errorf("%w: collection has no path", domain.ErrInvalidInput)
	}
	if !s.isBuild(col.Path) {
		return nil, fmt.Errorf("%w: %s is not a promoted build", domain.ErrNotPromoted, col.Path)
	}
	success, partial, err := readMarkers(col.Path)
	if err != nil {
		return nil, err
	}
	if !success || partial {
		return nil, fmt.Errorf("%w: %s has no success marker", domain.ErrNotPromoted, col.Path)
	}
	db, err := sqlite.OpenExisting(col.Path)
	if err != nil {
		return nil, err
	}
	return &reader{dir: col.Path, name: filepath.Base(filepath.Dir(col.Path)), col: col, db: db}, nil
}

// isBuild reports whether dir is builds/<name>/<run> under the root.
func (s *Store) isBuild(dir string) bool {
	base, err := filepath.Abs(filepath.Join(s.root, buildsDir))
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return len(parts) == 2 && parts[0] != ".." && parts[0] != "." && parts[1] != ".."
}

func (s *Store) pointerPath(name string) string {
	return filepath.Join(s.root, productionDir, name+pointerSuffix)
}

func (s *Store) readPointer(path string) (*domain.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no production pointer %s", domain.ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("reading pointer: %w", err)
	}
	var col domain.Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("decoding pointer %s: %w", path, err)
	}
	return &col, nil
}

// Workspace is a staged build directory.
type Workspace struct {
	dir   string
	name  string
	evid  string
	runID string

	mu   sync.Mutex
	db   *sqlite.CollectionDB
	lock string
}

// Path returns the workspace directory.
func (w *Workspace) Path() string { return w.dir }

// Name returns the encoded version segment.
func (w *Workspace) Name() string { return w.name }

// RunID returns the build run id.
func (w *Workspace) RunID() string { return w.runID }

// EmbeddingVersionID returns the version the workspace was allocated for.
func (w *Workspace) EmbeddingVersionID() string { return w.evid }

// PutVectors stores vectors in the workspace database.
func (w *Workspace) PutVectors(ctx context.Context, vectors []domain.Vector) error {
	db, err := w.database()
	if err != nil {
		return err
	}
	return db.PutVectors(ctx, vectors)
}

// VectorMetadata returns the metadata of every stored vector.
func (w *Workspace) VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error) {
	db, err := w.database()
	if err != nil {
		return nil, err
	}
	return db.VectorMetadata(ctx)
}

// WriteManifest replaces manifest.json atomically.
func (w *Workspace) WriteManifest(_ context.Context, m *domain.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(w.dir, ManifestFile), data)
}

// ReadManifest reads manifest.json back.
func (w *Workspace) ReadManifest(_ context.Context) (*domain.Manifest, error) {
	return readManifest(w.dir)
}

// MarkSuccess writes the zero-byte success marker.
func (w *Workspace) MarkSuccess(_ context.Context) error {
	return writeFileAtomic(filepath.Join(w.dir, SuccessMarker), nil)
}

// MarkPartial removes any success marker, then writes the partial marker
// with a reason.
func (w *Workspace) MarkPartial(_ context.Context, reason string) error {
	if err := os.Remove(filepath.Join(w.dir, SuccessMarker)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing success marker: %w", err)
	}
	return writeFileAtomic(filepath.Join(w.dir, PartialMarker), []byte(reason+"\n"))
}

// Markers reports which markers exist.
func (w *Workspace) Markers() (success, partial bool, err error) {
	return readMarkers(w.dir)
}

// Close releases the database handle and the build lock.
func (w *Workspace) Close() error {
	return errors.Join(w.closeDB(), w.releaseLock())
}

func (w *Workspace) releaseLock() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lock == "" {
		return nil
	}
	if err := releaseLock(w.lock); err != nil {
		return err
	}
	w.lock = ""
	return nil
}

func (w *Workspace) database() (*sqlite.CollectionDB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil, fmt.Errorf("%w: workspace %s is closed", domain.ErrInvalidInput, w.dir)
	}
	return w.db, nil
}

func (w *Workspace) closeDB() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil
	}
	err := w.db.Close()
	w.db = nil
	if err != nil {
		return fmt.Errorf("closing workspace database: %w", err)
	}
	return nil
}

type reader struct {
	dir  string
	name string
	col  domain.Collection
	db   *sqlite.CollectionDB
}

func (r *reader) Collection() domain.Collection { return r.col }

func (r *reader) Name() string { return r.name }

func (r *reader) Manifest(_ context.Context) (*domain.Manifest, error) {
	return readManifest(r.dir)
}

func (r *reader) Markers() (success, partial bool, err error) {
	return readMarkers(r.dir)
}

func (r *reader) Vectors(ctx context.Context, fn func(domain.Vector) error) error {
	return r.db.Vectors(ctx, fn)
}

func (r *reader) VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error) {
	return r.db.VectorMetadata(ctx)
}

func (r *reader) Close() error {
	return r.db.Close()
}

func readManifest(dir string) (*domain.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest in %s", domain.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

func readMarkers(dir string) (success, partial bool, err error) {
	success, err = exists(filepath.Join(dir, SuccessMarker))
	if err != nil {
		return false, false, err
	}
	partial, err = exists(filepath.Join(dir, PartialMarker))
	return success, partial, err
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
