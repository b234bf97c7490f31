package vector

import (
	"strings"

	"github.com/abramin/symdex/internal/symbols"
)

// MinDocLength is the shortest docstring worth publishing.
const MinDocLength = 4

// Describe renders the description text embedded for a symbol. It reports
// false when the symbol's doc is shorter than minDoc characters; such symbols
// carry too little text to be retrieved meaningfully.
func Describe(name string, sym *symbols.Symbol, minDoc int) (string, bool) {
	if sym == nil {
		return "", false
	}
	if minDoc <= 0 {
		minDoc = MinDocLength
	}
	if len([]rune(sym.Doc)) < minDoc {
		return "", false
	}
	if name == "" {
		name = "unnamed_symbol"
	}
	kind := string(sym.Kind)
	if kind == "" {
		kind = "unknown"
	}

	lines := []string{
		"Symbol: " + name,
		"Kind: " + kind,
	}
	if sym.FromClass != "" {
		lines = append(lines, "Defined in: "+sym.FromClass)
	}

	switch sym.Kind {
	case symbols.KindFunction, symbols.KindMethod:
		if sym.Signature != nil {
			lines = append(lines, "Signature: "+symbols.FormatCall(name, sym.Signature))
		}
		lines = append(lines, "Purpose: "+sym.Doc)
	case symbols.KindClass:
		if len(sym.Bases) > 0 {
			lines = append(lines, "Bases: "+strings.Join(sym.Bases, ", "))
		}
		lines = append(lines, "Class doc: "+sym.Doc)
		lines = append(lines, "Members: "+describeMembers(sym.Members))
	case symbols.KindVariable, symbols.KindAttribute:
		if sym.Annotation != "" {
			lines = append(lines, "Annotation: "+sym.Annotation)
		}
		lines = append(lines, "Variable doc: "+sym.Doc)
	default:
		lines = append(lines, "Doc: "+sym.Doc)
	}
	return strings.Join(lines, "\n"), true
}

func describeMembers(m *symbols.Members) string {
	if m.Len() == 0 {
		return "<none>"
	}
	parts := make([]string, 0, m.Len())
	for _, name := range m.Keys() {
		member, _ := m.Get(name)
		kind := "unknown"
		if member != nil && member.Kind != "" {
			kind = string(member.Kind)
		}
		desc := name + "(" + kind + ")"
		if member != nil && member.Doc != "" {
			desc += ": " + firstSentence(member.Doc)
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, ", ")
}

// firstSentence returns doc up to and including its first period.
func firstSentence(doc string) string {
	if i := strings.IndexByte(doc, '.'); i >= 0 {
		return doc[:i+1]
	}
	return doc
}
