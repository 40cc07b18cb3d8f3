// Package docfile implements the Document File handle (spec.md §3/§4.2): a
// resolved reference to one file under a Document Source, carrying its
// content hash and the processed-output path every Convertor writes into.
package docfile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragocore/ragocore/pkg/hashcache"
)

// Type distinguishes the handling a DocumentFile needs: text extraction,
// page-image rasterization, or neither.
type Type string

const (
	TypePDF   Type = "pdf"
	TypeText  Type = "text"
	TypeImage Type = "image"
)

var (
	pdfExtensions   = []string{".pdf"}
	textExtensions  = []string{".txt", ".md"}
	imageExtensions = []string{".png", ".jpg", ".jpeg"}
)

// DocumentFile is a resolved handle to one file under a Document Source,
// carrying enough identity to compute and cache conversion artifacts.
type DocumentFile struct {
	SourceName string // owning Document Source's name
	SourceRoot string // Document Source's root path on disk
	FilePath   string // absolute path to the file
	Type       Type
	ImageBased bool // true for PDF/image files, which can be rasterized to page images

	FileName     string
	Extension    string
	FileHash     string
	LastModified time.Time
	FileSize     int64

	// HasChanged is set by the caller (Document Source) when the path has no
	// cached hash entry or its cached mtime/size no longer match, signalling
	// that FileHash had to be recomputed rather than read from cache.
	HasChanged bool

	// ProcessedPath is where every Convertor for this document writes its
	// output: processed/<relpath-from-source-root-with-filename+hash>.
	ProcessedPath string
}

// New resolves path into a DocumentFile, detecting its Type from extension.
// precalcHash, if non-empty, is used instead of recomputing the file hash
// (the Document Source's cache-hit path); lastModified/fileSize are passed
// in by the caller since it already stat'd the file to check the cache.
func New(sourceName, sourceRoot, path string, precalcHash string, lastModified time.Time, fileSize int64) (*DocumentFile, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var typ Type
	imageBased := false
	switch {
	case contains(pdfExtensions, ext):
		typ = TypePDF
		imageBased = true
	case contains(textExtensions, ext):
		typ = TypeText
	case contains(imageExtensions, ext):
		typ = TypeImage
		imageBased = true
	default:
		return nil, nil // unsupported extension: not a DocumentFile
	}

	hash := precalcHash
	if hash == "" {
		h, err := hashcache.FileHash(path)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	df := &DocumentFile{
		SourceName:   sourceName,
		SourceRoot:   sourceRoot,
		FilePath:     path,
		Type:         typ,
		ImageBased:   imageBased,
		FileName:     filepath.Base(path),
		Extension:    ext,
		FileHash:     hash,
		LastModified: lastModified,
		FileSize:     fileSize,
	}
	df.ProcessedPath = df.outputPath()
	return df, nil
}

// outputPath mirrors the Python original's get_output_path: the file's
// path relative to the source root, with the filename suffixed by its
// content hash, rooted under "processed/".
func (d *DocumentFile) outputPath() string {
	rel, err := filepath.Rel(d.SourceRoot, d.FilePath)
	if err != nil {
		rel = d.FileName
	}
	dir := filepath.Dir(rel)
	suffixed := d.FileName + "_" + d.FileHash
	var relWithHash string
	if dir == "." {
		relWithHash = suffixed
	} else {
		relWithHash = filepath.Join(dir, suffixed)
	}
	return filepath.Join("processed", relWithHash)
}

// DocumentPath returns the virtual "<source-name>/<relative-path>" handle
// used to address this document across the system (§3 Document handle).
func (d *DocumentFile) DocumentPath() string {
	rel, err := filepath.Rel(d.SourceRoot, d.FilePath)
	if err != nil {
		rel = d.FileName
	}
	return d.SourceName + "/" + filepath.ToSlash(rel)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// EnsureProcessedDir creates the document's processed output directory.
func (d *DocumentFile) EnsureProcessedDir() error {
	return os.MkdirAll(d.ProcessedPath, 0o755)
}
