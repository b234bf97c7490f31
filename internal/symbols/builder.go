// Package symbols extracts documentation-bearing declarations from Python
// source files into ordered symbol tables.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax is wrapped by ParseError when the source contains syntax errors.
var ErrSyntax = errors.New("syntax error")

// ParseError reports a file that could not be parsed into a syntax tree.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Options control the shape of extracted tables.
type Options struct {
	// ExcludeImports drops import-derived names from the exported set.
	ExcludeImports bool
	// IncludeSignatures captures function and method signatures.
	IncludeSignatures bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{IncludeSignatures: true}
}

// Builder produces symbol tables from Python source. A Builder owns a
// tree-sitter parser and must not be used from multiple goroutines.
type Builder struct {
	opts   Options
	parser *sitter.Parser
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts Options) *Builder {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Builder{opts: opts, parser: parser}
}

// Options returns the builder's extraction options.
func (b *Builder) Options() Options {
	return b.opts
}

// Build reads and extracts the file at path.
func (b *Builder) Build(ctx context.Context, path string) (Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b.BuildSource(ctx, path, src)
}

// BuildSource extracts the exported symbols of src. path is used for error
// reporting only.
func (b *Builder) BuildSource(ctx context.Context, path string, src []byte) (Table, error) {
	tree, err := b.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line := 0
		if bad := firstErrorNode(root); bad != nil {
			line = startLine(bad)
		}
		return nil, &ParseError{Path: path, Line: line, Err: ErrSyntax}
	}

	x := newExtraction(src, b.opts)
	moduleDoc := docstring(root, src)

	for _, stmt := range namedChildren(root) {
		key, node := dispatchKey(stmt)
		v, ok := visitors[key]
		if !ok {
			continue
		}
		v.Visit(node, x)
	}

	table := resolveExports(x)
	if moduleDoc != "" {
		doc := Entry{Name: ModuleDocName, Symbol: &Symbol{Kind: KindModuleDoc, Doc: moduleDoc}}
		table = append(Table{doc}, table...)
	}
	return table, nil
}

// resolveExports orders the extracted records by the module's export list,
// or by declaration order when no usable export list exists.
func resolveExports(x *extraction) Table {
	table := Table{}
	for i := len(x.exportCandidates) - 1; i >= 0; i-- {
		listed := decodeExportList(x.exportCandidates[i], x.src)
		if len(listed) == 0 {
			continue
		}
		emitted := make(map[string]struct{}, len(listed))
		for _, name := range listed {
			if _, dup := emitted[name]; dup {
				continue
			}
			if _, imp := x.imported[name]; imp && x.opts.ExcludeImports {
				continue
			}
			sym, ok := x.metadata[name]
			if !ok {
				continue
			}
			emitted[name] = struct{}{}
			table = append(table, Entry{Name: name, Symbol: sym.Clone()})
		}
		return table
	}

	seen := make(map[string]struct{}, len(x.names))
	for _, name := range x.names {
		if _, ok := seen[name]; ok {
			continue
		}
		if strings.HasPrefix(name, "_") || name == ExportListName {
			continue
		}
		sym, ok := x.metadata[name]
		if x.opts.ExcludeImports && ok && sym.IsImport {
			continue
		}
		seen[name] = struct{}{}
		if ok {
			table = append(table, Entry{Name: name, Symbol: sym.Clone()})
		}
	}
	return table
}

// decodeExportList returns the string elements of a literal list or tuple.
// Any other value decodes to nothing.
func decodeExportList(value *sitter.Node, src []byte) []string {
	if value == nil {
		return nil
	}
	if value.Type() == "parenthesized_expression" {
		if inner := namedChildren(value); len(inner) == 1 {
			value = inner[0]
		}
	}
	switch value.Type() {
	case "list", "tuple", "expression_list":
	default:
		return nil
	}
	var names []string
	for _, elt := range namedChildren(value) {
		if s, ok := stringValue(elt, src); ok {
			names = append(names, s)
		}
	}
	return names
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			if bad := firstErrorNode(child); bad != nil {
				return bad
			}
		}
	}
	return nil
}
