// Package report renders the indexed symbols of a directory as a readable
// per-file summary.
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/symbols"
)

// Member is one class member in a report.
type Member struct {
	Name       string       `json:"name"`
	Kind       symbols.Kind `json:"type"`
	Signature  string       `json:"signature,omitempty"`
	Annotation string       `json:"annotation,omitempty"`
	Doc        string       `json:"doc,omitempty"`
}

// Entry is one top-level symbol in a report.
type Entry struct {
	Name       string       `json:"name"`
	Kind       symbols.Kind `json:"type"`
	Lineno     int          `json:"lineno,omitempty"`
	Doc        string       `json:"doc,omitempty"`
	Signature  string       `json:"signature,omitempty"`
	Bases      []string     `json:"bases,omitempty"`
	Annotation string       `json:"annotation,omitempty"`
	Members    []Member     `json:"members,omitempty"`
}

// FileReport lists the top-level symbols of one file.
type FileReport struct {
	Path         string  `json:"path"`
	RelativePath string  `json:"relative_path"`
	Entries      []Entry `json:"symbols"`
}

// Report covers every indexed file under a root.
type Report struct {
	Root  string       `json:"root"`
	Files []FileReport `json:"files"`
}

// Build assembles the report for the indexed files under root. Flattened
// member rows are left out; members are listed under their class.
func Build(ctx context.Context, st *store.Store, root string) (*Report, error) {
	files, err := st.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	root = filepath.Clean(root)

	rep := &Report{Root: root, Files: []FileReport{}}
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		syms, err := st.FileSymbols(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		fr := FileReport{Path: f.Path, RelativePath: filepath.ToSlash(rel), Entries: []Entry{}}
		for _, s := range syms {
			if s.IsMember || s.Kind == symbols.KindMethod || s.Kind == symbols.KindAttribute {
				continue
			}
			fr.Entries = append(fr.Entries, entryFor(s))
		}
		rep.Files = append(rep.Files, fr)
	}
	return rep, nil
}

func entryFor(s *store.Symbol) Entry {
	e := Entry{
		Name:       s.Name,
		Kind:       s.Kind,
		Lineno:     s.Lineno,
		Doc:        s.Doc,
		Bases:      s.Bases,
		Annotation: s.Annotation,
	}
	if s.Kind == symbols.KindFunction && s.Signature != nil {
		e.Signature = symbols.FormatCall(s.Name, s.Signature)
	}
	for _, name := range s.Members.Keys() {
		m, _ := s.Members.Get(name)
		if m == nil {
			continue
		}
		member := Member{Name: name, Kind: m.Kind, Annotation: m.Annotation, Doc: m.Doc}
		if m.Kind == symbols.KindMethod {
			member.Signature = symbols.FormatCall(name, m.Signature)
		}
		e.Members = append(e.Members, member)
	}
	return e
}

// WriteText writes the report as indented plain text.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range r.Files {
		fmt.Fprintf(bw, "%s\n", f.RelativePath)
		if len(f.Entries) == 0 {
			fmt.Fprintln(bw, "  (no symbols)")
		}
		for i, e := range f.Entries {
			writeEntry(bw, i+1, e)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func writeEntry(w io.Writer, n int, e Entry) {
	if e.Kind == symbols.KindModuleDoc {
		fmt.Fprintf(w, "  %d. [module doc]\n", n)
		writeDoc(w, "     ", e.Doc)
		return
	}
	fmt.Fprintf(w, "  %d. %s [%s]\n", n, e.Name, e.Kind)
	if e.Signature != "" {
		fmt.Fprintf(w, "     def %s\n", e.Signature)
	}
	if len(e.Bases) > 0 {
		fmt.Fprintf(w, "     bases: %s\n", strings.Join(e.Bases, ", "))
	}
	if e.Annotation != "" {
		fmt.Fprintf(w, "     annotation: %s\n", e.Annotation)
	}
	writeDoc(w, "     ", e.Doc)
	for _, m := range e.Members {
		switch m.Kind {
		case symbols.KindMethod:
			fmt.Fprintf(w, "     - method %s\n", m.Signature)
		case symbols.KindAttribute:
			if m.Annotation != "" {
				fmt.Fprintf(w, "     - attribute %s: %s\n", m.Name, m.Annotation)
			} else {
				fmt.Fprintf(w, "     - attribute %s\n", m.Name)
			}
		default:
			fmt.Fprintf(w, "     - %s %s\n", m.Kind, m.Name)
		}
		writeDoc(w, "         ", m.Doc)
	}
}

func writeDoc(w io.Writer, indent, doc string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(doc, "\n"), "\n") {
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
}
