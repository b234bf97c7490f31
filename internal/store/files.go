package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/abramin/symdex/internal/symbols"
)

// HashBytes returns the content hash stored in files.file_hash.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// UpsertFile replaces every symbol row of the file with table in a single
// transaction. A file seen for the first time is inserted; a known file has
// its previous rows deleted, so the store always reflects the latest pass.
func (s *Store) UpsertFile(ctx context.Context, rec FileRecord, table symbols.Table) (FileID, error) {
	var fileID FileID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM files WHERE file_path = ?", rec.Path).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				"INSERT INTO files (file_path, relative_path, file_hash) VALUES (?, ?, ?)",
				rec.Path, nullString(rec.RelativePath), rec.Hash)
			if err != nil {
				return fmt.Errorf("inserting file %s: %w", rec.Path, err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("looking up file %s: %w", rec.Path, err)
		default:
			if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE file_id = ?", id); err != nil {
				return fmt.Errorf("deleting symbols of %s: %w", rec.Path, err)
			}
		}
		fileID = FileID(id)

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO symbols (
				file_id, symbol_name, symbol_type, lineno, end_lineno, doc_text,
				signature_json, bases_json, members_json, annotation,
				from_class, is_member, is_import
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id, symbol_name) DO UPDATE SET
				symbol_type = excluded.symbol_type,
				lineno = excluded.lineno,
				end_lineno = excluded.end_lineno,
				doc_text = excluded.doc_text,
				signature_json = excluded.signature_json,
				bases_json = excluded.bases_json,
				members_json = excluded.members_json,
				annotation = excluded.annotation,
				from_class = excluded.from_class,
				is_member = excluded.is_member,
				is_import = excluded.is_import
		`)
		if err != nil {
			return fmt.Errorf("preparing symbol insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range table {
			args, err := symbolArgs(fileID, e)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("inserting symbol %s: %w", e.Name, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE files SET file_hash = ?, relative_path = ?, last_updated = ? WHERE id = ?",
			rec.Hash, nullString(rec.RelativePath), s.now().UTC().Format(timeLayout), id)
		if err != nil {
			return fmt.Errorf("updating file %s: %w", rec.Path, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fileID, nil
}

// symbolArgs builds the insert arguments for one table entry. Module
// docstrings keep only name, kind, doc and span.
func symbolArgs(fileID FileID, e symbols.Entry) ([]any, error) {
	sym := e.Symbol
	if sym == nil {
		return nil, fmt.Errorf("symbol %s has no record", e.Name)
	}
	kind := sym.Kind
	if e.Name == symbols.ModuleDocName {
		kind = symbols.KindModuleDoc
	}
	args := []any{
		fileID, e.Name, string(kind), nullInt(sym.Lineno), nullInt(sym.EndLineno), nullBytes(sym.Doc),
	}
	if kind == symbols.KindModuleDoc {
		return append(args, nil, nil, nil, nil, nil, 0, 0), nil
	}

	var sigJSON, basesJSON, membersJSON any
	if sym.Signature != nil {
		b, err := json.Marshal(sym.Signature)
		if err != nil {
			return nil, fmt.Errorf("encoding signature of %s: %w", e.Name, err)
		}
		sigJSON = string(b)
	}
	if len(sym.Bases) > 0 {
		b, err := json.Marshal(sym.Bases)
		if err != nil {
			return nil, fmt.Errorf("encoding bases of %s: %w", e.Name, err)
		}
		basesJSON = string(b)
	}
	if sym.Members.Len() > 0 {
		b, err := json.Marshal(sym.Members)
		if err != nil {
			return nil, fmt.Errorf("encoding members of %s: %w", e.Name, err)
		}
		membersJSON = string(b)
	}
	return append(args,
		sigJSON, basesJSON, membersJSON, nullString(sym.Annotation),
		nullString(sym.FromClass), boolInt(sym.IsMember), boolInt(sym.IsImport),
	), nil
}

const fileColumns = "id, file_path, relative_path, file_hash, last_updated"

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var (
		f       File
		rel     sql.NullString
		updated string
	)
	if err := row.Scan(&f.ID, &f.Path, &rel, &f.Hash, &updated); err != nil {
		return nil, err
	}
	f.RelativePath = rel.String
	f.LastUpdated = parseTime(updated)
	return &f, nil
}

// FileByPath returns the file indexed under the absolute path.
func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE file_path = ?", path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying file %s: %w", path, err)
	}
	return f, nil
}

// IsUnchanged reports whether path is indexed with the given content hash.
func (s *Store) IsUnchanged(ctx context.Context, path, hash string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT file_hash FROM files WHERE file_path = ?", path).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying hash of %s: %w", path, err)
	}
	return stored == hash, nil
}

// ListFiles returns every indexed file ordered by path.
func (s *Store) ListFiles(ctx context.Context) ([]*File, error) {
	return s.queryFiles(ctx, "SELECT "+fileColumns+" FROM files ORDER BY file_path")
}

// RecentFiles returns the most recently updated files, newest first.
func (s *Store) RecentFiles(ctx context.Context, limit int) ([]*File, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryFiles(ctx,
		"SELECT "+fileColumns+" FROM files ORDER BY last_updated DESC, id DESC LIMIT ?", limit)
}

func (s *Store) queryFiles(ctx context.Context, query string, args ...any) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// RemoveFile deletes the file and, by cascade, all of its symbols.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE file_path = ?", path)
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	return nil
}

// StaleFiles returns indexed paths that no longer exist on disk.
func (s *Store) StaleFiles(ctx context.Context) ([]string, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, f := range files {
		if _, err := os.Stat(f.Path); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, f.Path)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02T15:04:05.000Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(s string) any {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
