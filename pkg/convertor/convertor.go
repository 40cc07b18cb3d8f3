// Package convertor implements the Convertor component (spec.md §4.3): turns
// a Document File into plain-text pages under its processed output folder,
// in one of several conversion dialects (raw extraction, OCR, OCR+LLM
// proofreading, vision-LLM transcription), each independently cached by a
// content hash of its own output folder.
package convertor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/hashcache"
	"github.com/ragocore/ragocore/pkg/log"
	"github.com/ragocore/ragocore/pkg/runner"
)

// Result is what a completed (or cache-hit) conversion reports back (§4.3).
type Result struct {
	Pages            []string
	DocumentMetadata *docfile.Metadata
	ConversionType   string
	Model            *string
	OutputFolderName string
	OutputPath       string
	ResultHash       string
	DocumentPath     string
}

// DocumentContext carries the per-KB settings a Convertor needs that don't
// belong on the document itself (§4.5 KB "languages" setting feeding OCR).
type DocumentContext struct {
	CharacterSets []string
}

// Convertor turns a document into text pages, caching its own output.
type Convertor interface {
	Convert(doc *docfile.DocumentFile, ctx DocumentContext) (*Result, error)
}

// Config selects and parametrizes a Convertor the way a KB's config section
// does (§4.3 "conversion" + "model" keys).
type Config struct {
	Conversion string // "raw" | "ocr" | "ocr_llm" | "llm"
	Model      string
}

// FromConfig builds the Convertor named by cfg.Conversion, dispatching like
// the Python Convertor.from_config tag switch. backend is only required for
// the "ocr_llm" and "llm" dialects; it may be nil for "raw"/"ocr".
func FromConfig(cfg Config, backend runner.Backend) (Convertor, error) {
	switch cfg.Conversion {
	case "raw":
		return NewRaw(), nil
	case "ocr":
		return NewOCR(), nil
	case "ocr_llm":
		return NewOCRLLM(backend, cfg.Model), nil
	case "llm":
		return NewVisionLLM(backend, cfg.Model), nil
	default:
		return nil, fmt.Errorf("convertor: unknown conversion type %q", cfg.Conversion)
	}
}

var cleanNamePattern = regexp.MustCompile(`[^a-zA-Z0-9\s\-_.]`)

func cleanName(s string) string {
	return cleanNamePattern.ReplaceAllString(s, "")
}

// base holds the bookkeeping shared by every Convertor implementation:
// its conversion-type tag, optional model, the derived output folder name,
// and the cache-check/metadata-append logic every dialect performs the same
// way (§4.3 "each conversion dialect caches independently").
type base struct {
	conversionType   string
	model            string // empty means "no model" (raw/ocr dialects)
	outputFolderName string
}

func newBase(conversionType, model string) base {
	folderName := conversionType
	if model != "" {
		folderName = conversionType + "_" + cleanName(model)
	}
	return base{conversionType: conversionType, model: model, outputFolderName: folderName}
}

func (b base) modelPtr() *string {
	if b.model == "" {
		return nil
	}
	m := b.model
	return &m
}

// outputPath returns processed/<doc processed path>/<this dialect's folder>.
func (b base) outputPath(doc *docfile.DocumentFile) string {
	return filepath.Join(doc.ProcessedPath, b.outputFolderName)
}

// conversionMetadataEntry builds the sidecar row this dialect appends once a
// conversion completes.
func (b base) conversionMetadataEntry(resultHash string) docfile.ConversionEntry {
	return docfile.ConversionEntry{
		Conversion:   b.conversionType,
		Model:        b.modelPtr(),
		OutputFolder: b.outputFolderName,
		Hash:         resultHash,
	}
}

// getOrInitConversion checks whether this dialect's output folder already
// holds a conversion matching its own hash (an up-to-date cache hit), and if
// so returns its existing pages; otherwise it returns an empty-pages Result
// ready for the caller to populate (§4.3 conversion caching).
func (b base) getOrInitConversion(doc *docfile.DocumentFile) (*Result, error) {
	metadata, err := doc.GetOrInitMetadata()
	if err != nil {
		return nil, err
	}

	outputPath := b.outputPath(doc)
	var extra []string
	if b.model != "" {
		extra = []string{b.model}
	}
	folderHash, hashErr := hashcache.FolderHash(outputPath, extra...)
	if hashErr != nil {
		// Output folder doesn't exist yet (or isn't readable): treat this
		// exactly like the Python original's folder_hash=None, i.e. no entry
		// in document_metadata["conversions"] will ever match it below.
		folderHash = ""
	}

	for _, entry := range metadata.Conversions {
		if entry.Conversion != b.conversionType {
			continue
		}
		entryModel := ""
		if entry.Model != nil {
			entryModel = *entry.Model
		}
		if entryModel != b.model {
			continue
		}
		if folderHash != "" && entry.Hash == folderHash {
			log.Infof("[%s] document %s already converted; using cache", b.conversionType, doc.FilePath)
			pages, err := listFiles(outputPath)
			if err != nil {
				return nil, err
			}
			return &Result{
				Pages:            pages,
				DocumentMetadata: metadata,
				ConversionType:   b.conversionType,
				Model:            b.modelPtr(),
				OutputFolderName: b.outputFolderName,
				OutputPath:       outputPath,
				ResultHash:       entry.Hash,
				DocumentPath:     doc.DocumentPath(),
			}, nil
		}
	}

	return &Result{
		Pages:            nil,
		DocumentMetadata: metadata,
		ConversionType:   b.conversionType,
		Model:            b.modelPtr(),
		OutputFolderName: b.outputFolderName,
		OutputPath:       outputPath,
		ResultHash:       "",
		DocumentPath:     doc.DocumentPath(),
	}, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

func isDocTypeImage(doc *docfile.DocumentFile) bool {
	return strings.EqualFold(string(doc.Type), string(docfile.TypeImage))
}
