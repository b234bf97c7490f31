package store

import (
	"time"

	"github.com/abramin/symdex/internal/symbols"
)

// FileID is a type-safe identifier for indexed files.
type FileID int64

// SymbolID is a type-safe identifier for symbol rows.
type SymbolID int64

// FileRecord describes a file about to be upserted.
type FileRecord struct {
	Path         string // Absolute path, the file's identity
	RelativePath string // Path relative to the indexed root
	Hash         string // Content hash, see HashBytes
}

// File is an indexed source file.
type File struct {
	ID           FileID    `json:"id"`
	Path         string    `json:"file_path"`
	RelativePath string    `json:"relative_path,omitempty"`
	Hash         string    `json:"file_hash"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Symbol is a persisted symbol row with its structured fields decoded.
type Symbol struct {
	ID         SymbolID           `json:"id"`
	FileID     FileID             `json:"file_id"`
	FilePath   string             `json:"file_path"`
	Name       string             `json:"name"`
	Kind       symbols.Kind       `json:"type"`
	Lineno     int                `json:"lineno,omitempty"`
	EndLineno  int                `json:"end_lineno,omitempty"`
	Doc        string             `json:"doc,omitempty"`
	Signature  *symbols.Signature `json:"signature,omitempty"`
	Bases      []string           `json:"bases,omitempty"`
	Members    *symbols.Members   `json:"members,omitempty"`
	Annotation string             `json:"annotation,omitempty"`
	FromClass  string             `json:"from_class,omitempty"`
	IsMember   bool               `json:"is_member,omitempty"`
	IsImport   bool               `json:"is_import,omitempty"`
}

// SearchHit is one result of a substring search.
type SearchHit struct {
	Name     string       `json:"symbol_name"`
	Kind     symbols.Kind `json:"symbol_type"`
	FilePath string       `json:"file_path"`
}

// MemberFilter restricts class member queries by kind.
type MemberFilter string

const (
	MembersAny        MemberFilter = "any"
	MembersMethods    MemberFilter = "method"
	MembersAttributes MemberFilter = "attribute"
)

// ParseMemberFilter maps a user-supplied filter name to a MemberFilter.
// Unknown or empty names select every member.
func ParseMemberFilter(s string) MemberFilter {
	switch s {
	case "method", "methods":
		return MembersMethods
	case "attribute", "attributes":
		return MembersAttributes
	}
	return MembersAny
}

// ClassInfo is a class row together with its flattened members.
type ClassInfo struct {
	Class      *Symbol   `json:"class"`
	Methods    []*Symbol `json:"methods"`
	Attributes []*Symbol `json:"attributes"`
}

// DirNode is one directory of the indexed file tree.
type DirNode struct {
	Path           string     `json:"path"`
	Name           string     `json:"name"`
	Files          []*File    `json:"files"`
	Subdirectories []*DirNode `json:"subdirectories"`
}
