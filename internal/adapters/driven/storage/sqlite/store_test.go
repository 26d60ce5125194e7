package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// setupTestDB creates a vector database in a temporary directory.
func setupTestDB(t *testing.T) (*CollectionDB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dir
}

func testVector(id, family string, ct domain.ChunkType, emb ...float32) domain.Vector {
	return domain.Vector{
		VectorID:  id,
		Embedding: emb,
		Text:      "text of " + id,
		Metadata: domain.VectorMetadata{
			VectorID:     id,
			FamilyID:     family,
			ChunkType:    ct,
			EmbeddingDim: len(emb),
			EmbeddedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			LanguageHint: domain.LanguageHintASCIIEn,
		},
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	db, dir := setupTestDB(t)
	assert.Equal(t, filepath.Join(dir, FileName), db.Path())
	_, err := os.Stat(db.Path())
	assert.NoError(t, err)
}

func TestOpen_MigrationsAreRecorded(t *testing.T) {
	db, dir := setupTestDB(t)
	require.NoError(t, db.Close())

	again, err := Open(dir)
	require.NoError(t, err)
	defer again.Close()

	var n int
	require.NoError(t, again.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenExisting_Missing(t *testing.T) {
	_, err := OpenExisting(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCollectionDB_PutAndRead(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	err := db.PutVectors(ctx, []domain.Vector{
		testVector("F2#claim_1#e", "F2", domain.ChunkTypeClaim1, 0.5, -1.25),
		testVector("F1#spec#e", "F1", domain.ChunkTypeSpec, 1, 0),
	})
	require.NoError(t, err)

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	metas, err := db.VectorMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "F1#spec#e", metas[0].VectorID)
	assert.Equal(t, domain.ChunkTypeClaim1, metas[1].ChunkType)
	assert.True(t, metas[0].EmbeddedAt.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)))

	var got []domain.Vector
	require.NoError(t, db.Vectors(ctx, func(v domain.Vector) error {
		got = append(got, v)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.5, -1.25}, got[1].Embedding)
	assert.Equal(t, "text of F2#claim_1#e", got[1].Text)
}

func TestCollectionDB_CollisionRefused(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutVectors(ctx, []domain.Vector{testVector("F1#spec#e", "F1", domain.ChunkTypeSpec, 1)}))

	err := db.PutVectors(ctx, []domain.Vector{
		testVector("F2#spec#e", "F2", domain.ChunkTypeSpec, 2),
		testVector("F1#spec#e", "F1", domain.ChunkTypeSpec, 3),
	})
	require.ErrorIs(t, err, domain.ErrVectorIDCollision)

	// The batch is rolled back and the original is untouched.
	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, db.Vectors(ctx, func(v domain.Vector) error {
		assert.Equal(t, []float32{1}, v.Embedding)
		return nil
	}))
}

func TestCollectionDB_CollisionWithinBatch(t *testing.T) {
	db, _ := setupTestDB(t)
	err := db.PutVectors(context.Background(), []domain.Vector{
		testVector("F1#spec#e", "F1", domain.ChunkTypeSpec, 1),
		testVector("F1#spec#e", "F1", domain.ChunkTypeSpec, 2),
	})
	assert.ErrorIs(t, err, domain.ErrVectorIDCollision)
}

func TestCollectionDB_VectorsStopsOnError(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.PutVectors(ctx, []domain.Vector{
		testVector("a", "F1", domain.ChunkTypeSpec, 1),
		testVector("b", "F2", domain.ChunkTypeSpec, 1),
	}))

	stop := errors.New("stop")
	calls := 0
	err := db.Vectors(ctx, func(domain.Vector) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestFloat32Codec(t *testing.T) {
	in := []float32{0, 1, -1, 3.5e-7, 65504}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
