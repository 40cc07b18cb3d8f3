package docsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName_RejectsForbiddenChars(t *testing.T) {
	assert.Error(t, ValidateName("bad/name"))
	assert.Error(t, ValidateName("bad*name"))
	assert.NoError(t, ValidateName("good-name"))
}

func TestLocalFS_ListAndGet(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.md"), []byte("world"), 0o644))

	cacheDir := t.TempDir()
	src, err := NewLocalFS("docs", root, cacheDir)
	require.NoError(t, err)

	items, err := src.List("docs")
	require.NoError(t, err)
	files := ListFiles(items)
	assert.Contains(t, files, "docs/a.txt")

	doc, err := src.Get("docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "docs", doc.SourceName)
	assert.True(t, doc.HasChanged)
}

func TestLocalFS_CacheHitAvoidsRehash(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	cacheDir := t.TempDir()
	src, err := NewLocalFS("docs", root, cacheDir)
	require.NoError(t, err)

	doc1, err := src.Get("docs/a.txt")
	require.NoError(t, err)
	require.NoError(t, src.UpdateCache(doc1))

	src2, err := NewLocalFS("docs", root, cacheDir)
	require.NoError(t, err)
	doc2, err := src2.Get("docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, doc2)
	assert.False(t, doc2.HasChanged)
	assert.Equal(t, doc1.FileHash, doc2.FileHash)
}

func TestLocalFS_Get_WrongSourceNameReturnsNil(t *testing.T) {
	root := t.TempDir()
	src, err := NewLocalFS("docs", root, t.TempDir())
	require.NoError(t, err)

	doc, err := src.Get("other/a.txt")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestComposite_ListRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	a, err := NewLocalFS("a", rootA, t.TempDir())
	require.NoError(t, err)
	b, err := NewLocalFS("b", rootB, t.TempDir())
	require.NoError(t, err)

	comp := NewComposite("", []Source{a, b})
	items, err := comp.List("*")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestComposite_GetDelegates(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	a, err := NewLocalFS("a", root, t.TempDir())
	require.NoError(t, err)

	comp := NewComposite("", []Source{a})
	doc, err := comp.Get("a/a.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "a", doc.SourceName)
}
