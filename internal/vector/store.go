// Package vector stores symbol descriptions with their embeddings and answers
// nearest-neighbour queries over them.
package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultCollection names the collection used when none is given.
const DefaultCollection = "symbol_docs"

// ErrNotFound is returned when a document id is not stored.
var ErrNotFound = errors.New("document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	symbol TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	document TEXT NOT NULL,
	embedding BLOB NOT NULL,
	dims INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
CREATE INDEX IF NOT EXISTS idx_documents_symbol ON documents(collection, symbol);
CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(collection, source);
`

// Document is one stored description.
type Document struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Source   string `json:"source,omitempty"`
	Document string `json:"document"`
}

// Match is a query result. Score is 1 minus the cosine distance.
type Match struct {
	Document
	Score float64 `json:"score"`
}

// Filter narrows a query to documents with matching fields.
type Filter struct {
	Symbol string
	Source string
}

// Store is a persistent collection of embedded documents.
type Store struct {
	db         *sql.DB
	embedder   Embedder
	collection string
	now        func() time.Time
}

// Open creates or opens the vector database at path using embedder for both
// documents and queries.
func Open(path, collection string, embedder Embedder) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("vector store requires an embedder")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector schema: %w", err)
	}

	return &Store{db: db, embedder: embedder, collection: collection, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Embedder returns the embedder used by the store.
func (s *Store) Embedder() Embedder {
	return s.embedder
}

// Insert embeds and stores one description and returns its generated id.
func (s *Store) Insert(ctx context.Context, symbol, description string) (string, error) {
	return s.Add(ctx, Document{Symbol: symbol, Document: description})
}

// Add stores doc, generating an id when doc.ID is empty. An existing id is
// replaced.
func (s *Store) Add(ctx context.Context, doc Document) (string, error) {
	ids, err := s.BatchInsert(ctx, []Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// BatchInsert embeds and stores docs in one transaction and returns their ids
// in input order.
func (s *Store) BatchInsert(ctx context.Context, docs []Document) ([]string, error) {
	type prepared struct {
		doc Document
		vec []float32
	}
	batch := make([]prepared, 0, len(docs))
	for _, d := range docs {
		vec, err := s.embedder.Embed(ctx, d.Document)
		if err != nil {
			return nil, fmt.Errorf("embedding %s: %w", d.Symbol, err)
		}
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		batch = append(batch, prepared{doc: d, vec: vec})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, collection, symbol, source, document, embedding, dims, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			source = excluded.source,
			document = excluded.document,
			embedding = excluded.embedding,
			dims = excluded.dims
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	created := s.now().UTC().Format(time.RFC3339Nano)
	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		_, err := stmt.ExecContext(ctx, p.doc.ID, s.collection, p.doc.Symbol, p.doc.Source,
			p.doc.Document, encodeVector(p.vec), len(p.vec), created)
		if err != nil {
			return nil, fmt.Errorf("inserting %s: %w", p.doc.Symbol, err)
		}
		ids = append(ids, p.doc.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing documents: %w", err)
	}
	return ids, nil
}

// Query returns the topK documents most similar to text. Documents whose
// dimensionality differs from the query vector are ignored.
func (s *Store) Query(ctx context.Context, text string, topK int, filter *Filter) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	qvec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	query := "SELECT id, symbol, source, document, embedding FROM documents WHERE collection = ? AND dims = ?"
	args := []any{s.collection, len(qvec)}
	if filter != nil {
		if filter.Symbol != "" {
			query += " AND symbol = ?"
			args = append(args, filter.Symbol)
		}
		if filter.Source != "" {
			query += " AND source = ?"
			args = append(args, filter.Source)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ID, &m.Symbol, &m.Source, &m.Document, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != len(qvec) {
			continue
		}
		m.Score = cosine(qvec, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Get returns the stored document with id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		"SELECT id, symbol, source, document FROM documents WHERE collection = ? AND id = ?",
		s.collection, id).Scan(&d.ID, &d.Symbol, &d.Source, &d.Document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	return &d, nil
}

// Delete removes the document with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", s.collection, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Update re-embeds the document with id using the new symbol and description.
func (s *Store) Update(ctx context.Context, id, symbol, description string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.Add(ctx, Document{ID: id, Symbol: symbol, Source: existing.Source, Document: description})
	return err
}

// DeleteSource removes every document published from source and returns the
// number removed.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND source = ?", s.collection, source)
	if err != nil {
		return 0, fmt.Errorf("deleting documents of %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", s.collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// CountSource returns the number of documents published from source.
func (s *Store) CountSource(ctx context.Context, source string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ? AND source = ?", s.collection, source).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents of %s: %w", source, err)
	}
	return n, nil
}

// Clear removes every document in the collection.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", s.collection); err != nil {
		return fmt.Errorf("clearing collection %s: %w", s.collection, err)
	}
	return nil
}

// encodeVector stores v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
