package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHash_StableForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h1, err := FileHash(path)
	require.NoError(t, err)
	h2, err := FileHash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFileHash_ExtraStringChangesDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	plain, err := FileHash(path)
	require.NoError(t, err)
	withModel, err := FileHash(path, "model-name")
	require.NoError(t, err)
	assert.NotEqual(t, plain, withModel)
}

func TestFolderHash_OrderIndependent(t *testing.T) {
	dirA := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "b.txt"), []byte("2"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "a.txt"), []byte("1"), 0o644))

	dirB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "a.txt"), []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "b.txt"), []byte("2"), 0o644))

	ha, err := FolderHash(dirA)
	require.NoError(t, err)
	hb, err := FolderHash(dirB)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestFolderHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0o644))
	before, err := FolderHash(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("2"), 0o644))
	after, err := FolderHash(dir)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestWriteAtomic_ReadJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	type payload struct {
		Hash string `json:"hash"`
	}
	require.NoError(t, WriteAtomic(path, payload{Hash: "abc123"}))
	assert.True(t, Exists(path))

	var got payload
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, "abc123", got.Hash)
}

func TestWriteAtomic_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	require.NoError(t, WriteAtomic(path, map[string]string{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cache.json", entries[0].Name())
}

func TestExists_FalseForMissing(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(filepath.Join(dir, "nope.json")))
}
