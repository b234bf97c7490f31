package symbols

import (
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// stringValue decodes a string or concatenated_string node into its runtime
// value. ok is false for bytes and f-strings, which never produce a str
// constant.
func stringValue(node *sitter.Node, src []byte) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Type() {
	case "string":
		return decodeStringLiteral(nodeText(node, src))
	case "concatenated_string":
		var b strings.Builder
		for i := 0; i < int(node.NamedChildCount()); i++ {
			part := node.NamedChild(i)
			if part.Type() == "comment" {
				continue
			}
			s, ok := stringValue(part, src)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	}
	return "", false
}

// decodeStringLiteral decodes one literal token such as r'''x''' or "a\tb".
func decodeStringLiteral(lit string) (string, bool) {
	i := 0
	raw := false
	for i < len(lit) && lit[i] != '"' && lit[i] != '\'' {
		switch lit[i] {
		case 'r', 'R':
			raw = true
		case 'b', 'B', 'f', 'F', 't', 'T':
			return "", false
		case 'u', 'U':
		default:
			return "", false
		}
		i++
	}
	body := lit[i:]
	if len(body) < 2 {
		return "", false
	}
	quote := body[:1]
	if len(body) >= 6 && (strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`)) {
		quote = body[:3]
	}
	if !strings.HasSuffix(body, quote) || len(body) < 2*len(quote) {
		return "", false
	}
	body = body[len(quote) : len(body)-len(quote)]
	if raw {
		return body, true
	}
	return unescape(body), true
}

var escapeWidth = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// unescape applies Python's str escape rules. Unknown escapes are kept
// verbatim, as the interpreter does.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			b.WriteRune(rune(v))
			i = j - 1
		case 'x', 'u', 'U':
			width := escapeWidth[e]
			if i+1+width > len(s) {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			v, err := strconv.ParseUint(s[i+1:i+1+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			b.WriteRune(rune(v))
			i += width
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}

// docstring returns the documentation string of a module or block: its first
// statement when that statement is a bare string expression.
func docstring(body *sitter.Node, src []byte) string {
	stmt := firstStatement(body)
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return ""
	}
	doc, ok := stringValue(stmt.NamedChild(0), src)
	if !ok {
		return ""
	}
	return doc
}

func firstStatement(body *sitter.Node) *sitter.Node {
	if body == nil {
		return nil
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "comment" {
			return child
		}
	}
	return nil
}
