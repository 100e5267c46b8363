package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
	"github.com/poiesic/snapq/storage/storagetest"
)

// setupTestStore creates a store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "snapq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestStoreConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return setupTestStore(t)
	})
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "snapq.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, path, store.Path())
}

func TestMigrate_RecordsVersionOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapq.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening must not re-run or re-record applied migrations.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	var count, version int
	row := store.db.QueryRow("SELECT COUNT(*), MAX(version) FROM schema_migrations")
	require.NoError(t, row.Scan(&count, &version))
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, version)
}

func TestDelete_CascadesToChunks(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	space := core.EmbeddingSpace{Model: "m", Dimension: 2}

	_, err := store.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)
	_, err = store.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = store.CommitChunks(ctx, "acme", "doc", 1, space, []*core.Chunk{
		{Seq: 0, Text: "a", Vector: []float32{1, 0}},
		{Seq: 1, Text: "b", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "acme", "doc"))

	var n int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&n))
	assert.Zero(t, n)
}

func TestStatusConstraint(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.db.Exec(`INSERT INTO documents (tenant_id, source_id, id, filename, status, created_at, updated_at)
		VALUES ('t', 's', 1, 'f', 'bogus', 0, 0)`)
	assert.Error(t, err)

	var n int
	err = store.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}
