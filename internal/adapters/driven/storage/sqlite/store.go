package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/patentgov/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// FileName is the database file inside a workspace.
const FileName = "collection.db"

// CollectionDB holds the vectors of one workspace.
type CollectionDB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the vector database in dir.
func Open(dir string) (*CollectionDB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	c := &CollectionDB{db: db, path: dbPath}
	if err := c.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return c, nil
}

// OpenExisting opens the vector database in dir without creating it.
func OpenExisting(dir string) (*CollectionDB, error) {
	dbPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, dbPath)
		}
		return nil, fmt.Errorf("stat database: %w", err)
	}
	return Open(dir)
}

// Close checkpoints the WAL into the main file and closes the database.
func (c *CollectionDB) Close() error {
	if _, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		c.db.Close()
		return fmt.Errorf("checkpoint: %w", err)
	}
	return c.db.Close()
}

// Path returns the database file path.
func (c *CollectionDB) Path() string {
	return c.path
}

// migrate runs all pending migrations.
func (c *CollectionDB) migrate(fsys embed.FS) error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := c.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_vectors.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := c.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := c.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// PutVectors inserts vectors in one transaction. A vector id already
// stored, or repeated in the batch, aborts the whole batch with
// domain.ErrVectorIDCollision.
func (c *CollectionDB) PutVectors(ctx context.Context, vectors []domain.Vector) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (vector_id, family_id, chunk_type, dim, embedding, text, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vector_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}
		res, err := stmt.ExecContext(ctx, v.VectorID, v.Metadata.FamilyID, string(v.Metadata.ChunkType),
			len(v.Embedding), float32SliceToBytes(v.Embedding), v.Text, string(meta))
		if err != nil {
			return fmt.Errorf("inserting vector %s: %w", v.VectorID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("inserting vector %s: %w", v.VectorID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", domain.ErrVectorIDCollision, v.VectorID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (c *CollectionDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return n, nil
}

// VectorMetadata returns the metadata of every vector in vector id order.
func (c *CollectionDB) VectorMetadata(ctx context.Context) ([]domain.VectorMetadata, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT metadata FROM vectors ORDER BY vector_id")
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	var out []domain.VectorMetadata
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		var meta domain.VectorMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// Vectors streams every vector to fn in vector id order.
func (c *CollectionDB) Vectors(ctx context.Context, fn func(domain.Vector) error) error {
	rows, err := c.db.QueryContext(ctx, "SELECT vector_id, embedding, text, metadata FROM vectors ORDER BY vector_id")
	if err != nil {
		return fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Vector
		var blob []byte
		var raw string
		if err := rows.Scan(&v.VectorID, &blob, &v.Text, &raw); err != nil {
			return fmt.Errorf("scanning vector: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &v.Metadata); err != nil {
			return fmt.Errorf("unmarshalling metadata: %w", err)
		}
		v.Embedding = bytesToFloat32Slice(blob)
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
