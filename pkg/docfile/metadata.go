package docfile

import (
	"os"
	"path/filepath"

	"github.com/ragocore/ragocore/pkg/hashcache"
)

// ConversionEntry is one row of a sidecar's "conversions" list (§3 Conversion
// artifact: {conversion, model, output_folder, hash}).
type ConversionEntry struct {
	Conversion   string  `json:"conversion"`
	Model        *string `json:"model"`
	OutputFolder string  `json:"output_folder"`
	Hash         string  `json:"hash"`
}

// Metadata is the per-document sidecar written alongside processed output:
// {type, filename, file_location, hash, conversions:[...]}.
type Metadata struct {
	Type         string            `json:"type"`
	Filename     string            `json:"filename"`
	FileLocation string            `json:"file_location"`
	Hash         string            `json:"hash"`
	Conversions  []ConversionEntry `json:"conversions"`
}

func (d *DocumentFile) sidecarPath() string {
	return filepath.Join(d.ProcessedPath, "metadata.json")
}

// GetOrInitMetadata loads the document's sidecar if present, or creates and
// atomically persists a fresh one otherwise.
func (d *DocumentFile) GetOrInitMetadata() (*Metadata, error) {
	path := d.sidecarPath()
	if hashcache.Exists(path) {
		var m Metadata
		if err := hashcache.ReadJSON(path, &m); err != nil {
			return nil, err
		}
		return &m, nil
	}

	m := &Metadata{
		Type:         "document",
		Filename:     d.FileName,
		FileLocation: d.FilePath,
		Hash:         d.FileHash,
		Conversions:  []ConversionEntry{},
	}
	if err := os.MkdirAll(d.ProcessedPath, 0o755); err != nil {
		return nil, err
	}
	if err := hashcache.WriteAtomic(path, m); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteMetadata atomically persists an updated sidecar for this document.
func (d *DocumentFile) WriteMetadata(m *Metadata) error {
	return hashcache.WriteAtomic(d.sidecarPath(), m)
}
