// Package docsource implements the Document Source component (spec.md §4.1):
// a named, glob-addressable view over a collection of documents, with a
// content-hash cache keyed by file path that lets callers skip rehashing
// unchanged files.
package docsource

import (
	"fmt"
	"strings"

	"github.com/ragocore/ragocore/pkg/docfile"
)

// forbiddenNameSymbols mirrors DocSource.FORBIDDEN_NAME_SYMBOLS: a source
// name can't contain characters that would break glob-path composition.
var forbiddenNameSymbols = []string{"/", "\\", "*", "?", "[", "]"}

// Item is one entry returned by listing a pattern: a virtual path plus
// whether it names a file or a directory.
type Item struct {
	Path  string
	IsDir bool
	IsFile bool
}

// Source is the Document Source contract every concrete backend (local
// filesystem, composite) implements.
type Source interface {
	Name() string
	// List resolves a glob pattern against this source's virtual path space.
	List(pattern string) ([]Item, error)
	// Get resolves a single virtual path to a DocumentFile, or nil if the
	// path does not belong to this source / does not exist.
	Get(path string) (*docfile.DocumentFile, error)
	// UpdateCache persists doc's hash/mtime/size into this source's cache.
	UpdateCache(doc *docfile.DocumentFile) error
}

// ValidateName rejects a source name containing glob/path-special
// characters, matching the Python constructor's ValueError check.
func ValidateName(name string) error {
	for _, sym := range forbiddenNameSymbols {
		if strings.Contains(name, sym) {
			return fmt.Errorf("docsource: name %q must not contain %v", name, forbiddenNameSymbols)
		}
	}
	return nil
}

// ListFiles returns only the file paths among a List's Items, mirroring the
// Python base class's list_files helper.
func ListFiles(items []Item) []string {
	var files []string
	for _, it := range items {
		if it.IsFile {
			files = append(files, it.Path)
		}
	}
	return files
}

// isGlobPattern reports whether s contains a glob metacharacter.
func isGlobPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func toPosixPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
