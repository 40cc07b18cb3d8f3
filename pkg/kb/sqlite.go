package kb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a local Store backed by github.com/mattn/go-sqlite3. Unlike
// the teacher's sqlite_vector_store.go (which delegates to an undeclared
// sqvect module, see DESIGN.md), similarity search is a brute-force
// cosine-distance scan over collection rows: a KB's vector count is small
// enough for this to be the pragmatic local-backend choice.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// NewSQLiteStore opens (creating if absent) a SQLite database at dbPath and
// scopes every operation to collection, matching the teacher's
// WAL-mode-plus-prepared-statements shape.
func NewSQLiteStore(dbPath, collection string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kb: create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("kb: open sqlite: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("kb: migrate sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kb_vectors (
	id TEXT NOT NULL,
	collection TEXT NOT NULL,
	content TEXT NOT NULL,
	inserted TEXT NOT NULL,
	conversion TEXT NOT NULL,
	model TEXT,
	document_hash TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	document_number INTEGER NOT NULL,
	document_count INTEGER NOT NULL,
	chunk_number INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	document_path TEXT NOT NULL,
	vector BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_kb_vectors_doc_hash ON kb_vectors(collection, document_hash);
CREATE INDEX IF NOT EXISTS idx_kb_vectors_output_hash ON kb_vectors(collection, output_hash);
`

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("kb: upsert record/vector count mismatch: %d vs %d", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO kb_vectors
		(id, collection, content, inserted, conversion, model, document_hash, output_hash,
		 document_number, document_count, chunk_number, chunk_count, document_path, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d-%d", r.OutputHash, r.DocumentNumber, r.ChunkNumber)
		}
		var model sql.NullString
		if r.Model != nil {
			model = sql.NullString{String: *r.Model, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, id, s.collection, r.Content, r.Inserted.Format(time.RFC3339),
			r.Conversion, model, r.DocumentHash, r.OutputHash,
			r.DocumentNumber, r.DocumentCount, r.ChunkNumber, r.ChunkCount,
			r.DocumentPath, encodeVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("kb: insert vector row: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) scan(ctx context.Context, where string, args ...interface{}) ([]Record, [][]float32, error) {
	query := `SELECT id, content, inserted, conversion, model, document_hash, output_hash,
		document_number, document_count, chunk_number, chunk_count, document_path, vector
		FROM kb_vectors WHERE collection = ?`
	allArgs := append([]interface{}{s.collection}, args...)
	if where != "" {
		query += " AND " + where
	}
	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var records []Record
	var vectors [][]float32
	for rows.Next() {
		var r Record
		var insertedStr string
		var model sql.NullString
		var vectorBlob []byte
		if err := rows.Scan(&r.ID, &r.Content, &insertedStr, &r.Conversion, &model,
			&r.DocumentHash, &r.OutputHash, &r.DocumentNumber, &r.DocumentCount,
			&r.ChunkNumber, &r.ChunkCount, &r.DocumentPath, &vectorBlob); err != nil {
			return nil, nil, err
		}
		if t, err := time.Parse(time.RFC3339, insertedStr); err == nil {
			r.Inserted = t
		}
		if model.Valid {
			v := model.String
			r.Model = &v
		}
		records = append(records, r)
		vectors = append(vectors, decodeVector(vectorBlob))
	}
	return records, vectors, rows.Err()
}

func (s *SQLiteStore) QueryByDocumentHash(ctx context.Context, documentHash string) ([]Record, error) {
	recs, _, err := s.scan(ctx, "document_hash = ?", documentHash)
	return recs, err
}

func (s *SQLiteStore) QueryByOutputHash(ctx context.Context, outputHash string) ([]Record, error) {
	recs, _, err := s.scan(ctx, "output_hash = ?", outputHash)
	return recs, err
}

func (s *SQLiteStore) SimilaritySearch(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	records, vectors, err := s.scan(ctx, "")
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredRecord, len(records))
	for i, r := range records {
		scored[i] = ScoredRecord{Record: r, Score: cosineDistance(vector, vectors[i])}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// cosineDistance returns 1 - cosine similarity, so lower means more similar
// (§4.5 "distance semantics").
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}

func (s *SQLiteStore) UpdateDocumentPaths(ctx context.Context, documentHash string, newPath string) error {
	records, _, err := s.scan(ctx, "document_hash = ?", documentHash)
	if err != nil {
		return err
	}
	for _, r := range records {
		aliases := strings.Split(r.DocumentPath, ";")
		if containsAlias(aliases, newPath) {
			continue
		}
		aliases = append(aliases, newPath)
		if _, err := s.db.ExecContext(ctx, `UPDATE kb_vectors SET document_path = ? WHERE collection = ? AND id = ?`,
			strings.Join(aliases, ";"), s.collection, r.ID); err != nil {
			return err
		}
	}
	return nil
}

func containsAlias(aliases []string, path string) bool {
	for _, a := range aliases {
		if a == path {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kb_vectors WHERE collection = ?`, s.collection)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
