package kb

import (
	"context"
	"time"
)

// Record is a vector record: a chunk of a page's text plus the metadata
// needed to reconstruct document/conversion identity (§4.5 "Vector record").
type Record struct {
	ID             string
	Content        string
	Inserted       time.Time
	Conversion     string
	Model          *string
	DocumentHash   string
	OutputHash     string
	DocumentNumber int
	DocumentCount  int
	ChunkNumber    int
	ChunkCount     int
	// DocumentPath is semicolon-joined when the same content lives under
	// more than one alias path.
	DocumentPath string
}

// ScoredRecord pairs a Record with its similarity score from a search.
type ScoredRecord struct {
	Record
	Score float64
}

// Store is the vector-backend contract a KnowledgeBase issues against (§4.5
// "Vector-store wire contract"): add, similarity search, and the filtered
// queries has_full_document/has_full_convertor_result/add_doc_path need.
type Store interface {
	// Upsert inserts records with their matching embedding vectors
	// (records[i] pairs with vectors[i]).
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error
	// SimilaritySearch returns the k closest records to vector, ordered by
	// ascending distance (lower = more similar).
	SimilaritySearch(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)
	QueryByDocumentHash(ctx context.Context, documentHash string) ([]Record, error)
	QueryByOutputHash(ctx context.Context, outputHash string) ([]Record, error)
	// UpdateDocumentPaths appends newPath (deduplicated) to the
	// semicolon-joined document_path of every record sharing documentHash.
	UpdateDocumentPaths(ctx context.Context, documentHash string, newPath string) error
	DeleteCollection(ctx context.Context) error
	Close() error
}
