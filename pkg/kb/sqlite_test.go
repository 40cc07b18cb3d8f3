package kb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_UpsertAndSimilaritySearchOrdersByDistance(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "vectors.db"), "kb1")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	records := []Record{
		{ID: "a", Content: "close", OutputHash: "oh", DocumentHash: "dh", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 1, ChunkCount: 2, DocumentPath: "p1", Inserted: time.Now()},
		{ID: "b", Content: "far", OutputHash: "oh", DocumentHash: "dh", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 2, ChunkCount: 2, DocumentPath: "p1", Inserted: time.Now()},
	}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}
	require.NoError(t, store.Upsert(ctx, records, vectors))

	scored, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "close", scored[0].Content)
	assert.InDelta(t, 0, scored[0].Score, 1e-9)
	assert.Greater(t, scored[1].Score, scored[0].Score)
}

func TestSQLiteStore_QueryByDocumentAndOutputHash(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "vectors.db"), "kb1")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	records := []Record{
		{ID: "a", Content: "x", OutputHash: "oh1", DocumentHash: "dh1", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 1, ChunkCount: 1, DocumentPath: "p1"},
		{ID: "b", Content: "y", OutputHash: "oh2", DocumentHash: "dh2", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 1, ChunkCount: 1, DocumentPath: "p2"},
	}
	require.NoError(t, store.Upsert(ctx, records, [][]float32{{1, 0}, {0, 1}}))

	byDoc, err := store.QueryByDocumentHash(ctx, "dh1")
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, "x", byDoc[0].Content)

	byOutput, err := store.QueryByOutputHash(ctx, "oh2")
	require.NoError(t, err)
	require.Len(t, byOutput, 1)
	assert.Equal(t, "y", byOutput[0].Content)
}

func TestSQLiteStore_UpdateDocumentPathsAppendsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "vectors.db"), "kb1")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	records := []Record{
		{ID: "a", Content: "x", OutputHash: "oh1", DocumentHash: "dh1", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 1, ChunkCount: 1, DocumentPath: "src/foo.txt"},
	}
	require.NoError(t, store.Upsert(ctx, records, [][]float32{{1, 0}}))

	require.NoError(t, store.UpdateDocumentPaths(ctx, "dh1", "src/bar.txt"))
	recs, err := store.QueryByDocumentHash(ctx, "dh1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "src/foo.txt;src/bar.txt", recs[0].DocumentPath)

	require.NoError(t, store.UpdateDocumentPaths(ctx, "dh1", "src/bar.txt"))
	recs, err = store.QueryByDocumentHash(ctx, "dh1")
	require.NoError(t, err)
	assert.Equal(t, "src/foo.txt;src/bar.txt", recs[0].DocumentPath, "duplicate alias must not be appended twice")
}

func TestSQLiteStore_DeleteCollectionClearsOnlyItsRows(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vectors.db")
	storeA, err := NewSQLiteStore(dbPath, "kbA")
	require.NoError(t, err)
	defer storeA.Close()
	storeB, err := NewSQLiteStore(dbPath, "kbB")
	require.NoError(t, err)
	defer storeB.Close()

	ctx := context.Background()
	rec := []Record{{ID: "a", OutputHash: "oh", DocumentHash: "dh", DocumentNumber: 1, DocumentCount: 1, ChunkNumber: 1, ChunkCount: 1}}
	require.NoError(t, storeA.Upsert(ctx, rec, [][]float32{{1, 0}}))
	require.NoError(t, storeB.Upsert(ctx, rec, [][]float32{{0, 1}}))

	require.NoError(t, storeA.DeleteCollection(ctx))

	recsA, err := storeA.QueryByDocumentHash(ctx, "dh")
	require.NoError(t, err)
	assert.Empty(t, recsA)

	recsB, err := storeB.QueryByDocumentHash(ctx, "dh")
	require.NoError(t, err)
	assert.Len(t, recsB, 1)
}
