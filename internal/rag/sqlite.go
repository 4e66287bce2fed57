package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// sqliteIndexFile is the database file created inside a persist directory.
const sqliteIndexFile = "index.db"

// SQLiteStore implements VectorStore on a SQLite file inside a persist
// directory. The directory existing is the store's "built" precondition; it
// is created by the first Upsert. Search is a brute-force cosine scan, which
// is adequate for the few thousand chunks of a document library.
type SQLiteStore struct {
	dir string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore returns a store rooted at dir. Nothing is created on disk
// until the first Upsert.
func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{dir: dir}
}

// Dir returns the persist directory.
func (s *SQLiteStore) Dir() string {
	return s.dir
}

// Exists reports whether the persist directory exists.
func (s *SQLiteStore) Exists(_ context.Context) (bool, error) {
	info, err := os.Stat(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite store: stat %s: %w", s.dir, err)
	}
	return info.IsDir(), nil
}

// open lazily opens the index database. When create is false and the
// directory is missing it returns a nil db without error.
func (s *SQLiteStore) open(create bool) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	if create {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create %s: %w", s.dir, err)
		}
	} else if _, err := os.Stat(s.dir); err != nil {
		return nil, nil
	}

	dsn := filepath.Join(s.dir, sqliteIndexFile) + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id        TEXT    PRIMARY KEY,
    content   TEXT    NOT NULL,
    source    TEXT    NOT NULL,
    page      INTEGER NOT NULL,
    metadata  TEXT    NOT NULL DEFAULT '{}',
    embedding BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source);
`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	s.db = db
	return db, nil
}

// Upsert stores or replaces a batch of documents with their embeddings.
func (s *SQLiteStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("sqlite store: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	db, err := s.open(true)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO chunks (id, content, source, page, metadata, embedding)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    content = excluded.content, source = excluded.source, page = excluded.page,
    metadata = excluded.metadata, embedding = excluded.embedding`
	for i, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite store: marshal metadata for %s: %w", d.ID, err)
		}
		if d.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx, q, d.ID, d.Content, d.Source, d.Page, string(meta), encodeVector(embeddings[i])); err != nil {
			return fmt.Errorf("sqlite store: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

// Search returns the topK documents with the highest cosine similarity to
// queryEmbedding. A store that has not been built returns no documents.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	db, err := s.open(false)
	if err != nil || db == nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, content, source, page, metadata, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &d.Page, &meta, &blob); err != nil {
			return nil, fmt.Errorf("sqlite store: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite store: metadata for %s: %w", d.ID, err)
		}
		d.Score = cosine(queryEmbedding, decodeVector(blob))
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: rows: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })
	if topK > 0 && len(docs) > topK {
		docs = docs[:topK]
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	db, err := s.open(false)
	if err != nil || db == nil {
		return err
	}
	for _, id := range ids {
		if _, err := db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite store: delete %s: %w", id, err)
		}
	}
	return nil
}

// Close releases the database handle if one was opened.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
