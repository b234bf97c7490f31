package symbols

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Render converts an annotation or expression subtree into its canonical
// display string. It never fails: kinds without a dedicated rule fall back to
// their normalised source text, and nodes with no recoverable text render as
// a placeholder naming the node kind. A nil node renders as "".
func Render(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	if node.IsMissing() {
		return placeholder(node)
	}
	switch node.Type() {
	case "type", "parenthesized_expression":
		if children := namedChildren(node); len(children) == 1 {
			return Render(children[0], src)
		}
	case "identifier":
		return nodeText(node, src)
	case "attribute", "member_type":
		obj, attr := attributeParts(node)
		if obj != nil && attr != nil {
			return Render(obj, src) + "." + nodeText(attr, src)
		}
	case "subscript":
		value := node.ChildByFieldName("value")
		if value != nil {
			var idx []string
			for _, child := range namedChildren(node) {
				if sameNode(child, value) {
					continue
				}
				idx = append(idx, Render(child, src))
			}
			return Render(value, src) + "[" + joinIndex(idx) + "]"
		}
	case "generic_type":
		children := namedChildren(node)
		if len(children) == 2 && children[1].Type() == "type_parameter" {
			var params []string
			for _, p := range namedChildren(children[1]) {
				params = append(params, Render(p, src))
			}
			return Render(children[0], src) + "[" + joinIndex(params) + "]"
		}
	case "tuple", "expression_list":
		var parts []string
		for _, child := range namedChildren(node) {
			parts = append(parts, Render(child, src))
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case "string", "concatenated_string":
		if s, ok := stringValue(node, src); ok {
			return s
		}
	case "integer", "float", "true", "false", "none":
		return nodeText(node, src)
	case "ellipsis":
		return "..."
	case "ERROR":
		return placeholder(node)
	}
	return Unparse(node, src)
}

// Unparse renders a node as its whitespace-collapsed source text. Default
// values use this form, so string defaults keep their quotes.
func Unparse(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	if node.IsError() || node.IsMissing() {
		return placeholder(node)
	}
	text := collapseWhitespace(nodeText(node, src))
	if text == "" {
		return placeholder(node)
	}
	return text
}

// joinIndex renders subscript indices. Several indices form a tuple index
// and render with the tuple rule.
func joinIndex(idx []string) string {
	if len(idx) == 1 {
		return idx[0]
	}
	return "(" + strings.Join(idx, ", ") + ")"
}

func placeholder(node *sitter.Node) string {
	return "<unparsable: " + node.Type() + ">"
}

func attributeParts(node *sitter.Node) (obj, attr *sitter.Node) {
	if node.Type() == "attribute" {
		return node.ChildByFieldName("object"), node.ChildByFieldName("attribute")
	}
	children := namedChildren(node)
	if len(children) < 2 {
		return nil, nil
	}
	return children[0], children[len(children)-1]
}

func nodeText(node *sitter.Node, src []byte) string {
	return string(src[node.StartByte():node.EndByte()])
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// namedChildren returns the named children of node, comments excluded.
func namedChildren(node *sitter.Node) []*sitter.Node {
	n := int(node.NamedChildCount())
	out := make([]*sitter.Node, 0, n)
	for i := 0; i < n; i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

func firstNamed(node *sitter.Node) *sitter.Node {
	children := namedChildren(node)
	if len(children) == 0 {
		return nil
	}
	return children[0]
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
