package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abramin/symdex/internal/symbols"
)

const symbolColumns = `s.id, s.file_id, f.file_path, s.symbol_name, s.symbol_type,
	s.lineno, s.end_lineno, s.doc_text, s.signature_json, s.bases_json,
	s.members_json, s.annotation, s.from_class, s.is_member, s.is_import`

const symbolFrom = " FROM symbols s JOIN files f ON s.file_id = f.id "

func scanSymbol(row interface{ Scan(...any) error }) (*Symbol, error) {
	var (
		sym                Symbol
		kind               string
		lineno, endLineno  sql.NullInt64
		doc                []byte
		sigJSON, basesJSON sql.NullString
		membersJSON, annot sql.NullString
		fromClass          sql.NullString
		isMember, isImport int
	)
	err := row.Scan(&sym.ID, &sym.FileID, &sym.FilePath, &sym.Name, &kind,
		&lineno, &endLineno, &doc, &sigJSON, &basesJSON,
		&membersJSON, &annot, &fromClass, &isMember, &isImport)
	if err != nil {
		return nil, err
	}
	sym.Kind = symbols.Kind(kind)
	sym.Lineno = int(lineno.Int64)
	sym.EndLineno = int(endLineno.Int64)
	sym.Doc = string(doc)
	sym.Annotation = annot.String
	sym.FromClass = fromClass.String
	sym.IsMember = isMember != 0
	sym.IsImport = isImport != 0

	if sigJSON.Valid {
		sym.Signature = &symbols.Signature{}
		if err := json.Unmarshal([]byte(sigJSON.String), sym.Signature); err != nil {
			return nil, fmt.Errorf("decoding signature of %s: %w", sym.Name, err)
		}
	}
	if basesJSON.Valid {
		if err := json.Unmarshal([]byte(basesJSON.String), &sym.Bases); err != nil {
			return nil, fmt.Errorf("decoding bases of %s: %w", sym.Name, err)
		}
	}
	if membersJSON.Valid {
		sym.Members = symbols.NewMembers()
		if err := json.Unmarshal([]byte(membersJSON.String), sym.Members); err != nil {
			return nil, fmt.Errorf("decoding members of %s: %w", sym.Name, err)
		}
	}
	return &sym, nil
}

func (s *Store) querySymbols(ctx context.Context, query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// SymbolsByName returns the symbols named exactly name, optionally scoped to
// one file.
func (s *Store) SymbolsByName(ctx context.Context, name, filePath string) ([]*Symbol, error) {
	if filePath != "" {
		return s.querySymbols(ctx,
			"SELECT "+symbolColumns+symbolFrom+"WHERE s.symbol_name = ? AND f.file_path = ? ORDER BY s.id",
			name, filePath)
	}
	return s.querySymbols(ctx,
		"SELECT "+symbolColumns+symbolFrom+"WHERE s.symbol_name = ? ORDER BY f.file_path, s.id", name)
}

// FileSymbols returns the symbols of one file in table order.
func (s *Store) FileSymbols(ctx context.Context, filePath string) ([]*Symbol, error) {
	return s.querySymbols(ctx,
		"SELECT "+symbolColumns+symbolFrom+"WHERE f.file_path = ? ORDER BY s.id", filePath)
}

// SearchSymbols finds symbols whose name or documentation contains term.
func (s *Store) SearchSymbols(ctx context.Context, term string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(term) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.symbol_name, s.symbol_type, f.file_path`+symbolFrom+`
		WHERE s.symbol_name LIKE ? ESCAPE '\' OR CAST(s.doc_text AS TEXT) LIKE ? ESCAPE '\'
		ORDER BY f.file_path, s.id
		LIMIT ?
	`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching symbols: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		var kind string
		if err := rows.Scan(&hit.Name, &kind, &hit.FilePath); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		hit.Kind = symbols.Kind(kind)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// SearchByName finds symbols whose name contains term, optionally of one kind.
func (s *Store) SearchByName(ctx context.Context, term string, kind symbols.Kind) ([]*Symbol, error) {
	query := "SELECT " + symbolColumns + symbolFrom + `WHERE s.symbol_name LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(term) + "%"}
	if kind != "" {
		query += " AND s.symbol_type = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY f.file_path, s.id"
	return s.querySymbols(ctx, query, args...)
}

// ClassMembers returns the flattened "Class.member" rows of a class,
// ordered by line.
func (s *Store) ClassMembers(ctx context.Context, className string, filter MemberFilter) ([]*Symbol, error) {
	prefix := className + "."
	query := "SELECT " + symbolColumns + symbolFrom +
		"WHERE substr(s.symbol_name, 1, length(?)) = ?"
	args := []any{prefix, prefix}
	switch filter {
	case MembersMethods:
		query += " AND s.symbol_type IN ('method', 'function')"
	case MembersAttributes:
		query += " AND s.symbol_type = 'attribute'"
	}
	query += " ORDER BY s.lineno, s.id"
	return s.querySymbols(ctx, query, args...)
}

// ClassWithMembers assembles a class row with its methods and attributes.
// It returns ErrNotFound when no class row has that name.
func (s *Store) ClassWithMembers(ctx context.Context, className string) (*ClassInfo, error) {
	classes, err := s.querySymbols(ctx,
		"SELECT "+symbolColumns+symbolFrom+"WHERE s.symbol_name = ? AND s.symbol_type = 'class' ORDER BY s.id LIMIT 1",
		className)
	if err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class %s: %w", className, ErrNotFound)
	}
	info := &ClassInfo{Class: classes[0]}
	if info.Methods, err = s.ClassMembers(ctx, className, MembersMethods); err != nil {
		return nil, err
	}
	if info.Attributes, err = s.ClassMembers(ctx, className, MembersAttributes); err != nil {
		return nil, err
	}
	return info, nil
}

// DirectoryTree groups indexed files by directory. When root is set only
// files under root are included and paths are relative to it.
func (s *Store) DirectoryTree(ctx context.Context, root string) (*DirNode, error) {
	files, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	tree := &DirNode{Path: root, Name: "root", Files: []*File{}, Subdirectories: []*DirNode{}}
	if root != "" {
		root = filepath.Clean(root)
		tree.Path = root
		tree.Name = filepath.Base(root)
	}

	index := map[string]*DirNode{"": tree}
	for _, f := range files {
		rel := f.Path
		if root != "" {
			r, err := filepath.Rel(root, f.Path)
			if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
				continue
			}
			rel = r
		}
		parts := splitPath(rel)
		if len(parts) == 0 {
			continue
		}

		parent, key := tree, ""
		for _, part := range parts[:len(parts)-1] {
			key = filepath.Join(key, part)
			node, ok := index[key]
			if !ok {
				node = &DirNode{
					Path:           filepath.Join(root, key),
					Name:           part,
					Files:          []*File{},
					Subdirectories: []*DirNode{},
				}
				if root == "" && filepath.IsAbs(f.Path) {
					node.Path = string(filepath.Separator) + key
				}
				index[key] = node
				parent.Subdirectories = append(parent.Subdirectories, node)
			}
			parent = node
		}
		parent.Files = append(parent.Files, f)
	}
	sortTree(tree)
	return tree, nil
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(p)), "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

func sortTree(n *DirNode) {
	sort.Slice(n.Subdirectories, func(i, j int) bool {
		return n.Subdirectories[i].Name < n.Subdirectories[j].Name
	})
	for _, sub := range n.Subdirectories {
		sortTree(sub)
	}
}

// escapeLike escapes LIKE wildcards so term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
