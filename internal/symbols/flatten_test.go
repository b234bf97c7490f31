package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenNestedClasses(t *testing.T) {
	src := `class Outer:
    """Outer doc."""
    limit: int = 3

    def run(self): pass

    class Inner(Base):
        def method(self):
            """Inner method."""
`
	flat := Flatten(build(t, src))

	assert.Equal(t, []string{
		"Outer",
		"Outer.limit",
		"Outer.run",
		"Outer.Inner.method",
		"Outer.Inner",
	}, flat.Names())

	outer, ok := flat.Lookup("Outer")
	require.True(t, ok)
	assert.Equal(t, 3, outer.Members.Len(), "class entry keeps its members")

	method, ok := flat.Lookup("Outer.Inner.method")
	require.True(t, ok)
	assert.Equal(t, KindMethod, method.Kind)
	assert.Equal(t, "Outer.Inner", method.FromClass)
	assert.True(t, method.IsMember)
	assert.Equal(t, "Inner method.", method.Doc)

	inner, ok := flat.Lookup("Outer.Inner")
	require.True(t, ok)
	assert.Equal(t, "Outer", inner.FromClass)
	assert.Equal(t, []string{"Base"}, inner.Bases)
	assert.Nil(t, inner.Members)

	limit, ok := flat.Lookup("Outer.limit")
	require.True(t, ok)
	assert.Equal(t, KindAttribute, limit.Kind)
	assert.Equal(t, "int", limit.Annotation)
}

func TestFlattenEveryVisibleMember(t *testing.T) {
	src := `class A:
    def __repr__(self): pass
    def visible(self): pass
    def _skip(self): pass
    value = 1

class B(A):
    other = 2
`
	table := build(t, src)
	flat := Flatten(table)

	for _, e := range table {
		for _, member := range e.Symbol.Members.Keys() {
			sym, ok := flat.Lookup(e.Name + "." + member)
			require.True(t, ok, member)
			assert.True(t, sym.IsMember)
			assert.Equal(t, e.Name, sym.FromClass)
		}
	}
	assert.Len(t, flat, len(table)+4)
}

func TestFlattenLeavesInputUntouched(t *testing.T) {
	table := build(t, "class C:\n    x = 1\n")
	flat := Flatten(table)

	assert.Len(t, table, 1)
	assert.Len(t, flat, 2)
	flat[1].Symbol.Doc = "changed"
	member, _ := table[0].Symbol.Members.Get("x")
	assert.Empty(t, member.Doc)
}

func TestFlattenWithoutClasses(t *testing.T) {
	table := build(t, "def f(): pass\nX = 1\n")
	assert.Equal(t, table, Flatten(table))
}
