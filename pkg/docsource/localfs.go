package docsource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/hashcache"
	"github.com/ragocore/ragocore/pkg/log"
)

// cacheEntry is one row of a Document Source's hash cache sidecar, keyed by
// absolute file path (§3 Document-hash cache).
type cacheEntry struct {
	Hash         string `json:"hash"`
	LastModified string `json:"last_modified"`
	FileSize     int64  `json:"file_size"`
}

// LocalFSSource is a Document Source backed by a directory on the local
// filesystem, grounded on the Python LocalFileSystemSource.
type LocalFSSource struct {
	name      string
	rootPath  string
	cachePath string
	cache     map[string]cacheEntry
}

const defaultCacheDir = ".cache/doc_hash_cache"

// NewLocalFS constructs a LocalFSSource rooted at rootPath, loading any
// existing hash cache sidecar from cacheDir (pass "" for the default).
func NewLocalFS(name, rootPath, cacheDir string) (*LocalFSSource, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}

	s := &LocalFSSource{
		name:      name,
		rootPath:  rootPath,
		cachePath: filepath.Join(cacheDir, name+".json"),
		cache:     map[string]cacheEntry{},
	}
	if hashcache.Exists(s.cachePath) {
		if err := hashcache.ReadJSON(s.cachePath, &s.cache); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LocalFSSource) Name() string { return s.name }

func (s *LocalFSSource) List(pattern string) ([]Item, error) {
	posixPattern := toPosixPath(pattern)
	if strings.HasPrefix(pattern, s.name) {
		posixPattern = strings.TrimPrefix(posixPattern[len(s.name):], "/")
	}

	dirToCrawl := s.rootPath
	if posixPattern != "" {
		dirToCrawl = filepath.Join(s.rootPath, filepath.FromSlash(posixPattern))
	}

	if !isGlobPattern(posixPattern) {
		info, err := os.Stat(dirToCrawl)
		switch {
		case err == nil && info.IsDir():
			dirToCrawl = filepath.Join(dirToCrawl, "*")
		case err == nil:
			return []Item{{Path: toPosixPath(pattern), IsFile: true}}, nil
		}
	}

	matches, err := filepath.Glob(dirToCrawl)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(s.rootPath, m)
		if err != nil {
			continue
		}
		path := toPosixPath(s.name + string(filepath.Separator) + rel)
		if strings.HasSuffix(path, "/.") {
			continue
		}
		info, statErr := os.Stat(m)
		items = append(items, Item{
			Path:   path,
			IsFile: statErr == nil && !info.IsDir(),
			IsDir:  statErr == nil && info.IsDir(),
		})
	}
	return items, nil
}

func (s *LocalFSSource) Get(path string) (*docfile.DocumentFile, error) {
	posix := toPosixPath(path)
	parts := strings.SplitN(posix, "/", 2)
	if len(parts) != 2 || parts[0] != s.name {
		return nil, nil
	}
	docPath := parts[1]
	fullPath := filepath.Join(s.rootPath, filepath.FromSlash(docPath))

	info, err := os.Stat(fullPath)
	if err != nil {
		log.Errf("docsource: failed to stat %s in source %s: %v", docPath, s.name, err)
		return nil, nil
	}

	lastModified := info.ModTime()
	fileSize := info.Size()

	var precalcHash string
	hasChanged := false
	if entry, ok := s.cache[fullPath]; ok {
		cachedModified, parseErr := time.Parse(time.RFC3339Nano, entry.LastModified)
		isModified := parseErr != nil || !cachedModified.Equal(lastModified)
		isSizeChanged := entry.FileSize != fileSize
		if !isModified && !isSizeChanged {
			precalcHash = entry.Hash
		} else {
			hasChanged = true
		}
	} else {
		hasChanged = true
	}

	doc, err := docfile.New(s.name, s.rootPath, fullPath, precalcHash, lastModified, fileSize)
	if err != nil {
		log.Errf("docsource: failed to resolve document %s from source %s: %v", docPath, s.name, err)
		return nil, nil
	}
	if doc == nil {
		return nil, nil
	}
	doc.HasChanged = hasChanged
	return doc, nil
}

func (s *LocalFSSource) UpdateCache(doc *docfile.DocumentFile) error {
	s.cache[doc.FilePath] = cacheEntry{
		Hash:         doc.FileHash,
		LastModified: doc.LastModified.Format(time.RFC3339Nano),
		FileSize:     doc.FileSize,
	}
	return hashcache.WriteAtomic(s.cachePath, s.cache)
}

// ClearCache empties and persists an empty hash cache, matching the Python
// base class's clear_cache.
func (s *LocalFSSource) ClearCache() error {
	s.cache = map[string]cacheEntry{}
	return hashcache.WriteAtomic(s.cachePath, s.cache)
}

var _ fmt.Stringer = (*LocalFSSource)(nil)

func (s *LocalFSSource) String() string {
	return fmt.Sprintf("LocalFSSource(name=%s, root=%s)", s.name, s.rootPath)
}
