// Package kb implements the KB and KB Store component (spec.md §4.5): a
// named collection of indexed passages bound to a vector backend and an
// embedding configuration, plus the on-disk store that persists KB
// descriptors and the check-cache that short-circuits re-scanning unchanged
// documents.
package kb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/convertor"
	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/hashcache"
)

// ConvertorConfig is one entry of a KB descriptor's "convertors" list (§4.5
// KB descriptor: {conversion, [model, seed, temperature]}).
type ConvertorConfig struct {
	Conversion  string   `json:"conversion"`
	Model       string   `json:"model,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// EmbeddingConfig is a KB descriptor's "embedding" field.
type EmbeddingConfig struct {
	Model string `json:"model"`
}

// Descriptor is the full KB descriptor persisted as config.json (§4.5 "KB
// descriptor").
type Descriptor struct {
	Name       string            `json:"name"`
	Selection  []string          `json:"selection"`
	Convertors []ConvertorConfig `json:"convertors"`
	Embedding  EmbeddingConfig   `json:"embedding"`
	Languages  []string          `json:"languages"`
}

// EmbeddingSource is the minimal surface a KB needs from a model runner to
// compute embeddings; runner.Backend satisfies this structurally.
type EmbeddingSource interface {
	GetEmbedding(ctx context.Context, model string, text string) ([]float64, error)
}

// Passage is one retrieved result of rag_lookup: a chunk of text plus its
// distance-semantics similarity score (lower = more similar, §4.5).
type Passage struct {
	Content string
	Score   float64
}

const defaultCacheDir = ".cache/kb_check_cache"

// KnowledgeBase is a KB bound to a vector Store (§4.5). FullName differs
// from Name once the KB is addressed through a CompositeKBStore.
type KnowledgeBase struct {
	Descriptor
	FullName  string
	store     Store
	cacheFile string
}

// NewKnowledgeBase binds a descriptor to its vector Store.
func NewKnowledgeBase(desc Descriptor, store Store) *KnowledgeBase {
	return &KnowledgeBase{
		Descriptor: desc,
		FullName:   desc.Name,
		store:      store,
		cacheFile:  defaultCacheDir + "/" + desc.Name + ".json",
	}
}

type checkCacheEntry struct {
	LastChecked *string `json:"last_checked"`
}

// IsChecked reports whether doc has a cached "last checked" timestamp (§4.5
// KB-check cache, a performance hint only).
func (kb *KnowledgeBase) IsChecked(doc *docfile.DocumentFile) bool {
	cache := map[string]checkCacheEntry{}
	if err := hashcache.ReadJSON(kb.cacheFile, &cache); err != nil {
		return false
	}
	entry, ok := cache[doc.DocumentPath()]
	return ok && entry.LastChecked != nil
}

// UpdateChecked records doc as checked at the current time.
func (kb *KnowledgeBase) UpdateChecked(doc *docfile.DocumentFile) error {
	cache := map[string]checkCacheEntry{}
	if err := hashcache.ReadJSON(kb.cacheFile, &cache); err != nil && !os.IsNotExist(err) {
		cache = map[string]checkCacheEntry{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	cache[doc.DocumentPath()] = checkCacheEntry{LastChecked: &now}
	return hashcache.WriteAtomic(kb.cacheFile, cache)
}

// ClearCache removes the KB-check cache file.
func (kb *KnowledgeBase) ClearCache() error {
	if !hashcache.Exists(kb.cacheFile) {
		return nil
	}
	return os.Remove(kb.cacheFile)
}

// Clear drops the KB's collection and its check-cache (§4.5 clear()).
func (kb *KnowledgeBase) Clear() error {
	if err := kb.store.DeleteCollection(context.Background()); err != nil {
		return err
	}
	return kb.ClearCache()
}

// NeedsRefresh reports whether name, a critical descriptor field
// (convertors, embedding), or a removed selection pattern differs from next
// (§4.5 needs_refresh).
func (kb *KnowledgeBase) NeedsRefresh(next Descriptor) bool {
	for _, existing := range kb.Selection {
		if !contains(next.Selection, existing) {
			return true
		}
	}
	if next.Name != kb.Name {
		return true
	}
	if !convertorConfigsEqual(next.Convertors, kb.Convertors) {
		return true
	}
	if next.Embedding != kb.Embedding {
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func convertorConfigsEqual(a, b []ConvertorConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValidateDocumentSource re-hashes a conversion result's output folder and
// compares it against the hash recorded at conversion time, detecting
// tampering or drift (§4.5, §7 "Artifact corruption").
func ValidateDocumentSource(result *convertor.Result) bool {
	var extra []string
	if result.Model != nil {
		extra = []string{*result.Model}
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		return false
	}
	folderHash, err := hashcache.FolderHash(result.OutputPath, extra...)
	if err != nil {
		return false
	}
	return folderHash == result.ResultHash
}

// RagLookup embeds query and returns the k closest passages (§4.5
// rag_lookup). Lower Score means more similar.
func (kb *KnowledgeBase) RagLookup(ctx context.Context, embSrc EmbeddingSource, query string, k int) ([]Passage, error) {
	vec, err := embSrc.GetEmbedding(ctx, kb.Embedding.Model, query)
	if err != nil {
		return nil, fmt.Errorf("kb: embed query: %w", err)
	}
	scored, err := kb.store.SimilaritySearch(ctx, toFloat32(vec), k)
	if err != nil {
		return nil, err
	}
	passages := make([]Passage, len(scored))
	for i, s := range scored {
		passages[i] = Passage{Content: s.Content, Score: s.Score}
	}
	return passages, nil
}

// StoreConvertorResult validates, chunks, embeds, and inserts a conversion
// result's pages (§4.5 store_convertor_result).
func (kb *KnowledgeBase) StoreConvertorResult(ctx context.Context, embSrc EmbeddingSource, result *convertor.Result, settings config.RAGSettings) error {
	if !ValidateDocumentSource(result) {
		return fmt.Errorf("kb: convertor result at %s failed validation", result.OutputPath)
	}
	full, err := kb.HasFullConvertorResult(ctx, result)
	if err != nil {
		return err
	}
	if full {
		return nil
	}

	documentCount := len(result.Pages)
	var model *string
	if result.Model != nil {
		model = result.Model
	}

	var records []Record
	var vectors [][]float32
	for pageIdx, pagePath := range result.Pages {
		content, err := os.ReadFile(pagePath)
		if err != nil {
			return fmt.Errorf("kb: read page %s: %w", pagePath, err)
		}
		chunks := chunkText(string(content), settings.ChunkSize, settings.ChunkOverlap)
		for chunkIdx, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			vec, err := embSrc.GetEmbedding(ctx, kb.Embedding.Model, chunk)
			if err != nil {
				return fmt.Errorf("kb: embed chunk: %w", err)
			}
			records = append(records, Record{
				Content:        chunk,
				Inserted:       time.Now().UTC(),
				Conversion:     result.ConversionType,
				Model:          model,
				DocumentHash:   documentHash(result),
				OutputHash:     result.ResultHash,
				DocumentNumber: pageIdx + 1,
				DocumentCount:  documentCount,
				ChunkNumber:    chunkIdx + 1,
				ChunkCount:     len(chunks),
				DocumentPath:   result.DocumentPath,
			})
			vectors = append(vectors, toFloat32(vec))
		}
	}
	if len(records) == 0 {
		return nil
	}
	return kb.store.Upsert(ctx, records, vectors)
}

func documentHash(result *convertor.Result) string {
	if result.DocumentMetadata != nil {
		return result.DocumentMetadata.Hash
	}
	return ""
}

// HasFullDocument reports whether the KB already holds every page/chunk of
// doc's current content (§4.5 has_full_document). This is a pure query: it
// never marks doc as checked. Callers that act on a true result (skip
// reconversion, alias the path) are responsible for calling UpdateChecked
// themselves, matching the original's has_full_document/update_checked split.
func (kb *KnowledgeBase) HasFullDocument(ctx context.Context, doc *docfile.DocumentFile, force bool) (bool, error) {
	if !force && !doc.HasChanged && kb.IsChecked(doc) {
		return true, nil
	}

	recs, err := kb.store.QueryByDocumentHash(ctx, doc.FileHash)
	if err != nil {
		return false, err
	}

	type group struct {
		documentCount int
		chunkCounts   map[int]int
		documentNums  map[int]bool
		chunkNums     map[int]map[int]bool
	}
	groups := map[string]*group{}
	for _, r := range recs {
		model := ""
		if r.Model != nil {
			model = *r.Model
		}
		key := r.OutputHash + "|" + r.Conversion + "|" + model
		g, ok := groups[key]
		if !ok {
			g = &group{chunkCounts: map[int]int{}, documentNums: map[int]bool{}, chunkNums: map[int]map[int]bool{}}
			groups[key] = g
		}
		g.documentCount = r.DocumentCount
		g.documentNums[r.DocumentNumber] = true
		if g.chunkNums[r.DocumentNumber] == nil {
			g.chunkNums[r.DocumentNumber] = map[int]bool{}
		}
		g.chunkNums[r.DocumentNumber][r.ChunkNumber] = true
		g.chunkCounts[r.DocumentNumber] = r.ChunkCount
	}

	for _, g := range groups {
		if !coversRange(g.documentNums, g.documentCount) {
			continue
		}
		complete := true
		for pageNum, want := range g.chunkCounts {
			if !coversRange(g.chunkNums[pageNum], want) {
				complete = false
				break
			}
		}
		if complete {
			return true, nil
		}
	}
	return false, nil
}

func coversRange(set map[int]bool, n int) bool {
	if n <= 0 {
		return false
	}
	for i := 1; i <= n; i++ {
		if !set[i] {
			return false
		}
	}
	return true
}

// HasFullConvertorResult compares record cardinalities under a conversion
// result's output_hash against its page and chunk counts (§4.5
// has_full_convertor_result).
func (kb *KnowledgeBase) HasFullConvertorResult(ctx context.Context, result *convertor.Result) (bool, error) {
	recs, err := kb.store.QueryByOutputHash(ctx, result.ResultHash)
	if err != nil {
		return false, err
	}
	if len(recs) == 0 {
		return false, nil
	}
	documentNums := map[int]bool{}
	chunkCounts := map[int]int{}
	chunkNums := map[int]map[int]bool{}
	for _, r := range recs {
		documentNums[r.DocumentNumber] = true
		chunkCounts[r.DocumentNumber] = r.ChunkCount
		if chunkNums[r.DocumentNumber] == nil {
			chunkNums[r.DocumentNumber] = map[int]bool{}
		}
		chunkNums[r.DocumentNumber][r.ChunkNumber] = true
	}
	if !coversRange(documentNums, len(result.Pages)) {
		return false, nil
	}
	for pageNum, want := range chunkCounts {
		if !coversRange(chunkNums[pageNum], want) {
			return false, nil
		}
	}
	return true, nil
}

// AddDocPath appends doc's path as an alias on every existing record sharing
// its content hash, deduplicated (§4.5 add_doc_path).
func (kb *KnowledgeBase) AddDocPath(ctx context.Context, doc *docfile.DocumentFile, force bool) error {
	full, err := kb.HasFullDocument(ctx, doc, force)
	if err != nil {
		return err
	}
	if !full {
		return nil
	}
	return kb.store.UpdateDocumentPaths(ctx, doc.FileHash, doc.DocumentPath())
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// chunkText splits text into size-character chunks with overlap-character
// overlap between consecutive chunks (§4.5 "chunk with size/overlap").
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(runes) == 0 {
		return nil
	}
	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
