package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abramin/symdex/internal/symbols"
)

// ErrNotFound is returned when a requested file or class is not indexed.
var ErrNotFound = errors.New("not found")

// timeLayout keeps fixed-width fractions so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store handles persistence of symbol tables to SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Open creates or opens the symbol database at dbPath, creating its parent
// directory when needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -64000", // 64MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the path to the database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Clear removes all indexed data (for a full rebuild).
func (s *Store) Clear(ctx context.Context) error {
	tables := []string{"symbols", "files", "metadata"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing table %s: %w", table, err)
		}
	}
	return nil
}

// Vacuum compacts the database file.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// SetMetadata stores a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	return value, err
}

// Stats holds statistics about the indexed data.
type Stats struct {
	FileCount   int                  `json:"file_count"`
	SymbolCount int                  `json:"symbol_count"`
	ByKind      map[symbols.Kind]int `json:"by_kind"`
	RootPath    string               `json:"root_path,omitempty"`
	IndexedAt   time.Time            `json:"indexed_at"`
}

// GetStats returns statistics about the indexed data.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[symbols.Kind]int)}

	counts := []struct {
		table string
		dest  *int
	}{
		{"files", &stats.FileCount},
		{"symbols", &stats.SymbolCount},
	}
	for _, c := range counts {
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT symbol_type, COUNT(*) FROM symbols GROUP BY symbol_type")
	if err != nil {
		return nil, fmt.Errorf("counting symbol kinds: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning kind count: %w", err)
		}
		stats.ByKind[symbols.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if ts, err := s.GetMetadata(ctx, MetaIndexedAt); err == nil {
		stats.IndexedAt, _ = time.Parse(time.RFC3339, ts)
	}
	if root, err := s.GetMetadata(ctx, MetaRootPath); err == nil {
		stats.RootPath = root
	}

	return stats, nil
}

// Metadata keys written by the indexer.
const (
	MetaIndexedAt = "indexed_at"
	MetaRootPath  = "root_path"
)

// IndexMetadata holds metadata written to index.json for quick UI boot.
type IndexMetadata struct {
	Version     string               `json:"version"`
	RootPath    string               `json:"root_path"`
	IndexedAt   time.Time            `json:"indexed_at"`
	FileCount   int                  `json:"file_count"`
	SymbolCount int                  `json:"symbol_count"`
	ByKind      map[symbols.Kind]int `json:"by_kind"`
	Files       []string             `json:"files"` // Relative paths
}

// WriteIndexJSON writes index.json next to the database for quick UI boot.
func (s *Store) WriteIndexJSON(ctx context.Context) error {
	stats, err := s.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	files, err := s.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := f.RelativePath
		if p == "" {
			p = f.Path
		}
		paths = append(paths, p)
	}

	meta := &IndexMetadata{
		Version:     "1",
		RootPath:    stats.RootPath,
		IndexedAt:   stats.IndexedAt,
		FileCount:   stats.FileCount,
		SymbolCount: stats.SymbolCount,
		ByKind:      stats.ByKind,
		Files:       paths,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index.json: %w", err)
	}

	if err := os.WriteFile(s.IndexJSONPath(), data, 0644); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}
	return nil
}

// IndexJSONPath returns where WriteIndexJSON writes.
func (s *Store) IndexJSONPath() string {
	return filepath.Join(filepath.Dir(s.dbPath), "index.json")
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
