package kb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragocore/ragocore/pkg/config"
)

func newTestFileKBStore(t *testing.T) *FileKBStore {
	t.Helper()
	dir := t.TempDir()
	s := NewFileKBStore(config.KBStoreConfig{Name: "local", Type: "sqlite", Path: dir})
	require.NoError(t, s.Refresh())
	return s
}

func TestFileKBStore_UpsertGetListDelete(t *testing.T) {
	s := newTestFileKBStore(t)

	ok, err := s.Upsert(Descriptor{Name: "k1", Embedding: EmbeddingConfig{Model: "e"}})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Upsert(Descriptor{Name: "k2", Embedding: EmbeddingConfig{Model: "e"}})
	require.NoError(t, err)

	got := s.Get("k1")
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.Name)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "k1", list[0].Name)
	assert.Equal(t, "k2", list[1].Name)

	ok, err = s.Delete("k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, s.Get("k1"))
}

func TestFileKBStore_UpsertReusesExistingFolderOnUnchangedName(t *testing.T) {
	s := newTestFileKBStore(t)

	_, err := s.Upsert(Descriptor{Name: "k1", Selection: []string{"*.txt"}, Embedding: EmbeddingConfig{Model: "e"}})
	require.NoError(t, err)
	dir := s.findDirFor("k1")
	require.NotEmpty(t, dir)

	_, err = s.Upsert(Descriptor{Name: "k1", Selection: []string{"*.txt", "*.pdf"}, Embedding: EmbeddingConfig{Model: "e"}})
	require.NoError(t, err)
	assert.Equal(t, dir, s.findDirFor("k1"), "a non-critical descriptor change must not mint a new folder")
}

func TestSlugifyIntegration_DescriptorFolderNameIsSlugified(t *testing.T) {
	s := newTestFileKBStore(t)
	_, err := s.Upsert(Descriptor{Name: "My Weird/KB Name!", Embedding: EmbeddingConfig{Model: "e"}})
	require.NoError(t, err)

	dir := s.findDirFor("My Weird/KB Name!")
	require.NotEmpty(t, dir)
	assert.Contains(t, filepath.Base(dir), slugify("My Weird/KB Name!"))
}
