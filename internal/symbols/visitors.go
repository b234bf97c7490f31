package symbols

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// DeclarationVisitor extracts symbols from one kind of top-level statement.
type DeclarationVisitor interface {
	Visit(node *sitter.Node, x *extraction)
}

// extraction is the accumulator owned by a single Build call.
type extraction struct {
	src      []byte
	opts     Options
	metadata map[string]*Symbol
	names    []string
	// exportCandidates holds the value nodes of __all__ assignments in
	// source order; a nil entry is an annotated declaration without value.
	exportCandidates []*sitter.Node
	imported         map[string]struct{}
}

func newExtraction(src []byte, opts Options) *extraction {
	return &extraction{
		src:      src,
		opts:     opts,
		metadata: make(map[string]*Symbol),
		imported: make(map[string]struct{}),
	}
}

func (x *extraction) set(name string, sym *Symbol) {
	x.metadata[name] = sym
}

func (x *extraction) setDefault(name string, sym *Symbol) {
	if _, ok := x.metadata[name]; !ok {
		x.metadata[name] = sym
	}
}

const (
	nodeAnnotatedAssignment = "annotated_assignment"
)

var visitors = map[string]DeclarationVisitor{
	"function_definition":     functionVisitor{},
	"class_definition":        classVisitor{},
	"assignment":              assignmentVisitor{},
	nodeAnnotatedAssignment:   annotatedAssignmentVisitor{},
	"import_statement":        importVisitor{},
	"import_from_statement":   importFromVisitor{},
	"future_import_statement": importFromVisitor{},
}

// dispatchKey maps a top-level statement to the visitor table key and the
// node the visitor should receive.
func dispatchKey(stmt *sitter.Node) (string, *sitter.Node) {
	switch stmt.Type() {
	case "decorated_definition":
		def := stmt.ChildByFieldName("definition")
		if def == nil {
			return "", nil
		}
		return def.Type(), def
	case "expression_statement":
		children := namedChildren(stmt)
		if len(children) != 1 || children[0].Type() != "assignment" {
			return "", nil
		}
		if children[0].ChildByFieldName("type") != nil {
			return nodeAnnotatedAssignment, stmt
		}
		return "assignment", stmt
	}
	return stmt.Type(), stmt
}

type functionVisitor struct{}

func (functionVisitor) Visit(node *sitter.Node, x *extraction) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return
	}
	sym := functionSymbol(node, KindFunction, x)
	x.set(nodeText(name, x.src), sym)
	x.names = append(x.names, nodeText(name, x.src))
}

func functionSymbol(node *sitter.Node, kind Kind, x *extraction) *Symbol {
	sym := &Symbol{
		Kind:      kind,
		Doc:       docstring(node.ChildByFieldName("body"), x.src),
		Lineno:    startLine(node),
		EndLineno: endLine(node),
	}
	if x.opts.IncludeSignatures {
		sym.Signature = parseSignature(node, x.src)
	}
	return sym
}

// parseSignature renders the parameter list and return type of a
// function_definition node.
func parseSignature(fn *sitter.Node, src []byte) *Signature {
	sig := &Signature{Args: []Param{}}
	if ret := fn.ChildByFieldName("return_type"); ret != nil {
		r := Render(ret, src)
		sig.Returns = &r
	}
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return sig
	}
	keywordOnly := false
	for i := 0; i < int(params.ChildCount()); i++ {
		child := params.Child(i)
		switch child.Type() {
		case "/", "positional_separator":
			for j := range sig.Args {
				sig.Args[j].Kind = ParamPositionalOnly
			}
			continue
		case "*", "keyword_separator":
			keywordOnly = true
			continue
		}
		if !child.IsNamed() || child.Type() == "comment" {
			continue
		}
		p, splat := parseParam(child, src)
		switch splat {
		case ParamVarargs:
			sig.Vararg = &p
			keywordOnly = true
		case ParamKeywords:
			sig.Kwarg = &p
		default:
			p.Kind = ParamPositional
			if keywordOnly {
				p.Kind = ParamKeywordOnly
			}
			sig.Args = append(sig.Args, p)
		}
	}
	return sig
}

// parseParam renders one parameter node. splat is ParamVarargs or
// ParamKeywords for *args and **kwargs, empty otherwise.
func parseParam(node *sitter.Node, src []byte) (p Param, splat ParamKind) {
	switch node.Type() {
	case "identifier":
		p.Name = nodeText(node, src)
	case "typed_parameter":
		target := firstNamed(node)
		if target != nil {
			p.Name, splat = splatName(target, src)
		}
		p.Type = Render(node.ChildByFieldName("type"), src)
	case "default_parameter", "typed_default_parameter":
		if name := node.ChildByFieldName("name"); name != nil {
			p.Name = nodeText(name, src)
		}
		p.Type = Render(node.ChildByFieldName("type"), src)
		if value := node.ChildByFieldName("value"); value != nil {
			d := Unparse(value, src)
			p.Default = &d
		}
	case "list_splat_pattern", "dictionary_splat_pattern":
		p.Name, splat = splatName(node, src)
	default:
		p.Name = Unparse(node, src)
	}
	if splat != "" {
		p.Kind = splat
	}
	return p, splat
}

func splatName(node *sitter.Node, src []byte) (string, ParamKind) {
	switch node.Type() {
	case "list_splat_pattern":
		if id := firstNamed(node); id != nil {
			return nodeText(id, src), ParamVarargs
		}
		return "", ParamVarargs
	case "dictionary_splat_pattern":
		if id := firstNamed(node); id != nil {
			return nodeText(id, src), ParamKeywords
		}
		return "", ParamKeywords
	}
	return nodeText(node, src), ""
}

type classVisitor struct{}

func (classVisitor) Visit(node *sitter.Node, x *extraction) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return
	}
	className := nodeText(name, x.src)
	x.set(className, classSymbol(node, x))
	x.names = append(x.names, className)
}

func classSymbol(node *sitter.Node, x *extraction) *Symbol {
	body := node.ChildByFieldName("body")
	sym := &Symbol{
		Kind:      KindClass,
		Doc:       docstring(body, x.src),
		Bases:     classBases(node, x.src),
		Members:   NewMembers(),
		Lineno:    startLine(node),
		EndLineno: endLine(node),
	}
	if body == nil {
		return sym
	}
	for _, item := range namedChildren(body) {
		if item.Type() == "decorated_definition" {
			if def := item.ChildByFieldName("definition"); def != nil {
				item = def
			}
		}
		switch item.Type() {
		case "function_definition":
			n := item.ChildByFieldName("name")
			if n == nil {
				continue
			}
			memberName := nodeText(n, x.src)
			if !visibleMethod(memberName) {
				continue
			}
			sym.Members.Set(memberName, functionSymbol(item, KindMethod, x))
		case "class_definition":
			n := item.ChildByFieldName("name")
			if n == nil {
				continue
			}
			memberName := nodeText(n, x.src)
			if strings.HasPrefix(memberName, "_") {
				continue
			}
			sym.Members.Set(memberName, classSymbol(item, x))
		case "expression_statement":
			assign := firstNamed(item)
			if assign == nil || assign.Type() != "assignment" {
				continue
			}
			targets, _ := assignmentTargets(assign)
			annotation := Render(assign.ChildByFieldName("type"), x.src)
			for _, target := range targets {
				for _, attr := range targetNames(target, x.src) {
					if strings.HasPrefix(attr, "_") {
						continue
					}
					sym.Members.SetDefault(attr, &Symbol{
						Kind:       KindAttribute,
						Annotation: annotation,
						Lineno:     startLine(item),
						EndLineno:  endLine(item),
					})
				}
			}
		}
	}
	return sym
}

// visibleMethod hides names with a leading underscore unless they are
// dunders such as __init__.
func visibleMethod(name string) bool {
	if !strings.HasPrefix(name, "_") {
		return true
	}
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func classBases(node *sitter.Node, src []byte) []string {
	bases := []string{}
	args := node.ChildByFieldName("superclasses")
	if args == nil {
		return bases
	}
	for _, arg := range namedChildren(args) {
		switch arg.Type() {
		case "keyword_argument", "dictionary_splat":
			continue
		}
		bases = append(bases, Render(arg, src))
	}
	return bases
}

type assignmentVisitor struct{}

func (assignmentVisitor) Visit(stmt *sitter.Node, x *extraction) {
	assign := firstNamed(stmt)
	targets, value := assignmentTargets(assign)
	for _, target := range targets {
		if target.Type() == "identifier" && nodeText(target, x.src) == ExportListName {
			x.exportCandidates = append(x.exportCandidates, value)
			x.names = append(x.names, ExportListName)
			x.set(ExportListName, &Symbol{
				Kind:      KindVariable,
				Lineno:    startLine(stmt),
				EndLineno: endLine(stmt),
			})
			return
		}
	}
	for _, target := range targets {
		names := targetNames(target, x.src)
		for _, name := range names {
			x.setDefault(name, &Symbol{
				Kind:      KindVariable,
				Lineno:    startLine(stmt),
				EndLineno: endLine(stmt),
			})
		}
		x.names = append(x.names, names...)
	}
}

type annotatedAssignmentVisitor struct{}

func (annotatedAssignmentVisitor) Visit(stmt *sitter.Node, x *extraction) {
	assign := firstNamed(stmt)
	names := targetNames(assign.ChildByFieldName("left"), x.src)
	if len(names) > 0 && names[0] == ExportListName {
		x.exportCandidates = append(x.exportCandidates, assign.ChildByFieldName("right"))
		x.set(ExportListName, &Symbol{
			Kind:      KindVariable,
			Lineno:    startLine(stmt),
			EndLineno: endLine(stmt),
		})
	}
	annotation := Render(assign.ChildByFieldName("type"), x.src)
	for _, name := range names {
		x.setDefault(name, &Symbol{
			Kind:       KindVariable,
			Annotation: annotation,
			Lineno:     startLine(stmt),
			EndLineno:  endLine(stmt),
		})
	}
	x.names = append(x.names, names...)
}

// assignmentTargets unrolls a chained assignment (a = b = value) into its
// targets in source order and the assigned value.
func assignmentTargets(assign *sitter.Node) (targets []*sitter.Node, value *sitter.Node) {
	for assign != nil && assign.Type() == "assignment" {
		if left := assign.ChildByFieldName("left"); left != nil {
			targets = append(targets, left)
		}
		value = assign.ChildByFieldName("right")
		assign = value
	}
	return targets, value
}

// targetNames extracts the plain names bound by an assignment target,
// unpacking tuple and list patterns. Attribute, subscript and starred
// targets bind no module-level name.
func targetNames(target *sitter.Node, src []byte) []string {
	if target == nil {
		return nil
	}
	switch target.Type() {
	case "identifier":
		return []string{nodeText(target, src)}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list", "parenthesized_expression":
		var names []string
		for _, elt := range namedChildren(target) {
			names = append(names, targetNames(elt, src)...)
		}
		return names
	}
	return nil
}

type importVisitor struct{}

func (importVisitor) Visit(node *sitter.Node, x *extraction) {
	for _, child := range namedChildren(node) {
		name := boundImportName(child, x.src, true)
		if name == "" {
			continue
		}
		registerImport(name, node, x)
	}
}

type importFromVisitor struct{}

func (importFromVisitor) Visit(node *sitter.Node, x *extraction) {
	module := node.ChildByFieldName("module_name")
	for _, child := range namedChildren(node) {
		if module != nil && sameNode(child, module) {
			continue
		}
		if child.Type() == "wildcard_import" {
			continue
		}
		name := boundImportName(child, x.src, false)
		if name == "" || name == "*" {
			continue
		}
		registerImport(name, node, x)
	}
}

// boundImportName returns the name an import clause binds in the module
// namespace. A plain "import a.b" binds "a".
func boundImportName(clause *sitter.Node, src []byte, firstSegment bool) string {
	switch clause.Type() {
	case "aliased_import":
		if alias := clause.ChildByFieldName("alias"); alias != nil {
			return nodeText(alias, src)
		}
		clause = clause.ChildByFieldName("name")
		if clause == nil {
			return ""
		}
	case "dotted_name", "identifier":
	default:
		return ""
	}
	name := nodeText(clause, src)
	if firstSegment {
		name, _, _ = strings.Cut(name, ".")
	}
	return strings.TrimSpace(name)
}

func registerImport(name string, node *sitter.Node, x *extraction) {
	x.set(name, &Symbol{
		Kind:      KindImport,
		IsImport:  true,
		Lineno:    startLine(node),
		EndLineno: endLine(node),
	})
	x.names = append(x.names, name)
	x.imported[name] = struct{}{}
}

func startLine(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

func endLine(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}
