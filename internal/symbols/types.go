package symbols

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the declaration kind of an extracted symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindVariable  Kind = "variable"
	KindModuleDoc Kind = "module_doc"
	KindMethod    Kind = "method"
	KindAttribute Kind = "attribute"
	KindImport    Kind = "import"
)

// Kinds lists every symbol kind in a stable order.
var Kinds = []Kind{KindFunction, KindClass, KindVariable, KindModuleDoc, KindMethod, KindAttribute, KindImport}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

const (
	// ModuleDocName is the synthetic entry name carrying a module docstring.
	ModuleDocName = "__module_doc__"
	// ExportListName is the reserved module-level export list.
	ExportListName = "__all__"
)

// ParamKind describes how a parameter binds arguments.
type ParamKind string

const (
	ParamPositionalOnly ParamKind = "positional_only"
	ParamPositional     ParamKind = "positional"
	ParamKeywordOnly    ParamKind = "keyword_only"
	ParamVarargs        ParamKind = "varargs"
	ParamKeywords       ParamKind = "keywords"
)

// Param is one rendered function parameter.
type Param struct {
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	Default *string   `json:"default,omitempty"`
	Kind    ParamKind `json:"kind"`
}

// Signature is the structured signature of a function or method.
type Signature struct {
	Args    []Param `json:"args"`
	Vararg  *Param  `json:"vararg"`
	Kwarg   *Param  `json:"kwarg"`
	Returns *string `json:"returns"`
}

// Symbol is one extracted declaration.
type Symbol struct {
	Kind       Kind       `json:"type"`
	Doc        string     `json:"doc,omitempty"`
	Signature  *Signature `json:"signature,omitempty"`
	Bases      []string   `json:"bases,omitempty"`
	Members    *Members   `json:"members,omitempty"`
	Annotation string     `json:"annotation,omitempty"`
	Lineno     int        `json:"lineno,omitempty"`
	EndLineno  int        `json:"end_lineno,omitempty"`
	IsImport   bool       `json:"is_import,omitempty"`
	FromClass  string     `json:"from_class,omitempty"`
	IsMember   bool       `json:"is_member,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Symbol) Clone() *Symbol {
	if s == nil {
		return nil
	}
	c := *s
	if s.Signature != nil {
		c.Signature = s.Signature.Clone()
	}
	if s.Bases != nil {
		c.Bases = append([]string(nil), s.Bases...)
	}
	if s.Members != nil {
		c.Members = s.Members.Clone()
	}
	return &c
}

// Clone returns a deep copy of sig.
func (sig *Signature) Clone() *Signature {
	if sig == nil {
		return nil
	}
	c := &Signature{
		Vararg:  sig.Vararg.clone(),
		Kwarg:   sig.Kwarg.clone(),
		Returns: cloneString(sig.Returns),
	}
	if sig.Args != nil {
		c.Args = make([]Param, len(sig.Args))
		for i := range sig.Args {
			c.Args[i] = *sig.Args[i].clone()
		}
	}
	return c
}

func (p *Param) clone() *Param {
	if p == nil {
		return nil
	}
	c := *p
	c.Default = cloneString(p.Default)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Members is an insertion-ordered mapping of member name to member symbol.
// It marshals to a JSON object whose keys keep declaration order.
type Members struct {
	keys   []string
	byName map[string]*Symbol
}

// NewMembers returns an empty member mapping.
func NewMembers() *Members {
	return &Members{byName: make(map[string]*Symbol)}
}

// Len returns the number of members.
func (m *Members) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns member names in declaration order.
func (m *Members) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Get returns the member registered under name.
func (m *Members) Get(name string) (*Symbol, bool) {
	if m == nil {
		return nil, false
	}
	sym, ok := m.byName[name]
	return sym, ok
}

// Set stores sym under name, replacing any previous member in place.
func (m *Members) Set(name string, sym *Symbol) {
	if _, ok := m.byName[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.byName[name] = sym
}

// SetDefault stores sym under name unless a member already exists.
func (m *Members) SetDefault(name string, sym *Symbol) {
	if _, ok := m.byName[name]; ok {
		return
	}
	m.Set(name, sym)
}

// Clone returns a deep copy of m.
func (m *Members) Clone() *Members {
	if m == nil {
		return nil
	}
	c := NewMembers()
	for _, k := range m.keys {
		c.Set(k, m.byName[k].Clone())
	}
	return c
}

// MarshalJSON encodes the members as an ordered JSON object.
func (m *Members) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(m.byName[k])
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", k, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order.
func (m *Members) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("members: expected object, got %v", tok)
	}
	m.keys = nil
	m.byName = make(map[string]*Symbol)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("members: expected key, got %v", tok)
		}
		var sym Symbol
		if err := dec.Decode(&sym); err != nil {
			return fmt.Errorf("member %s: %w", key, err)
		}
		m.Set(key, &sym)
	}
	_, err = dec.Token()
	return err
}

// Entry is one (name, symbol) pair of a symbol table.
type Entry struct {
	Name   string
	Symbol *Symbol
}

// Table is the ordered symbol sequence extracted from one source file.
type Table []Entry

// Lookup returns the first entry named name.
func (t Table) Lookup(name string) (*Symbol, bool) {
	for _, e := range t {
		if e.Name == name {
			return e.Symbol, true
		}
	}
	return nil, false
}

// Names returns entry names in table order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, e := range t {
		names[i] = e.Name
	}
	return names
}
