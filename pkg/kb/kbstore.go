package kb

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/hashcache"
)

// KBStore is the descriptor-level store contract (§4.5 "KB Store"): list,
// get, upsert, delete KB descriptors and refresh from disk.
type KBStore interface {
	Name() string
	List() []*KnowledgeBase
	Get(name string) *KnowledgeBase
	Upsert(desc Descriptor) (bool, error)
	Delete(name string) (bool, error)
	Refresh() error
}

var slugDisallowed = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// slugify mirrors the KB Store's descriptor-folder naming rule (§4.5):
// truncate to 50 chars, replace any disallowed character with "_", and
// prefix "kb_" if the result would start with one of ". _ -".
func slugify(name string) string {
	s := name
	if len(s) > 50 {
		s = s[:50]
	}
	s = slugDisallowed.ReplaceAllString(s, "_")
	if len(s) > 0 {
		switch s[0] {
		case '.', '_', '-':
			s = "kb_" + s
		}
	}
	return s
}

// FileKBStore persists KB descriptors as
// <kb-store-root>/<slug>-<uuid>/config.json (§4.5), backing each KB with a
// vector Store chosen by its configured store type.
type FileKBStore struct {
	storeType  string
	name       string
	rootDir    string
	qdrantHost string
	kbs        map[string]*KnowledgeBase
}

// NewFileKBStore builds a FileKBStore from one configured kbstores entry
// (§6 "kbstores").
func NewFileKBStore(cfg config.KBStoreConfig) *FileKBStore {
	return &FileKBStore{
		storeType:  cfg.Type,
		name:       cfg.Name,
		rootDir:    cfg.Path,
		qdrantHost: cfg.Host,
		kbs:        map[string]*KnowledgeBase{},
	}
}

func (s *FileKBStore) Name() string { return s.name }

func (s *FileKBStore) newVectorStore(kbName string) (Store, error) {
	switch s.storeType {
	case "sqlite":
		dbPath := filepath.Join(s.rootDir, "db", "vectors.db")
		return NewSQLiteStore(dbPath, kbName)
	case "qdrant":
		return NewQdrantStore(s.qdrantHost, qdrantCollectionName(s.name, kbName))
	default:
		return nil, fmt.Errorf("kb: unknown kbstore type %q", s.storeType)
	}
}

// Refresh re-scans rootDir for KB descriptor folders (§4.5 refresh()).
func (s *FileKBStore) Refresh() error {
	kbs, err := s.load()
	if err != nil {
		return err
	}
	s.kbs = kbs
	return nil
}

func (s *FileKBStore) load() (map[string]*KnowledgeBase, error) {
	entries, err := os.ReadDir(s.rootDir)
	if os.IsNotExist(err) {
		return map[string]*KnowledgeBase{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := map[string]*KnowledgeBase{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		cfgPath := filepath.Join(s.rootDir, e.Name(), "config.json")
		if !hashcache.Exists(cfgPath) {
			continue
		}
		var desc Descriptor
		if err := hashcache.ReadJSON(cfgPath, &desc); err != nil {
			continue
		}
		store, err := s.newVectorStore(desc.Name)
		if err != nil {
			return nil, err
		}
		out[desc.Name] = NewKnowledgeBase(desc, store)
	}
	return out, nil
}

func (s *FileKBStore) List() []*KnowledgeBase {
	names := make([]string, 0, len(s.kbs))
	for name := range s.kbs {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]*KnowledgeBase, len(names))
	for i, name := range names {
		list[i] = s.kbs[name]
	}
	return list
}

func (s *FileKBStore) Get(name string) *KnowledgeBase {
	return s.kbs[name]
}

// findDirFor scans rootDir for the descriptor folder already holding name,
// so a re-upsert with the same KB name reuses its existing slug-uuid folder
// rather than minting a new one.
func (s *FileKBStore) findDirFor(name string) string {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var desc Descriptor
		if err := hashcache.ReadJSON(filepath.Join(s.rootDir, e.Name(), "config.json"), &desc); err == nil && desc.Name == name {
			return e.Name()
		}
	}
	return ""
}

// Upsert writes desc's descriptor, clearing the old collection first when
// the change is "critical" (§4.5 needs_refresh/upsert).
func (s *FileKBStore) Upsert(desc Descriptor) (bool, error) {
	if existing, ok := s.kbs[desc.Name]; ok && existing.NeedsRefresh(desc) {
		if err := existing.Clear(); err != nil {
			return false, err
		}
	}

	dirName := s.findDirFor(desc.Name)
	if dirName == "" {
		dirName = slugify(desc.Name) + "-" + uuid.New().String()
	}

	path := filepath.Join(s.rootDir, dirName, "config.json")
	if err := hashcache.WriteAtomic(path, desc); err != nil {
		return false, err
	}
	if err := s.Refresh(); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes name's descriptor folder and clears its collection/cache.
func (s *FileKBStore) Delete(name string) (bool, error) {
	dirName := s.findDirFor(name)
	if dirName == "" {
		return false, nil
	}
	if existing, ok := s.kbs[name]; ok {
		_ = existing.Clear()
	}
	if err := os.RemoveAll(filepath.Join(s.rootDir, dirName)); err != nil {
		return false, err
	}
	if err := s.Refresh(); err != nil {
		return false, err
	}
	return true, nil
}

var _ KBStore = (*FileKBStore)(nil)
