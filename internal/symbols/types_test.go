package symbols

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembersJSONKeepsDeclarationOrder(t *testing.T) {
	m := NewMembers()
	m.Set("zeta", &Symbol{Kind: KindMethod})
	m.Set("alpha", &Symbol{Kind: KindAttribute, Annotation: "int"})
	m.SetDefault("zeta", &Symbol{Kind: KindAttribute})

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":{"type":"method"},"alpha":{"type":"attribute","annotation":"int"}}`, string(data))
	assert.Equal(t, `{"zeta":{"type":"method"},"alpha":{"type":"attribute","annotation":"int"}}`, string(data))

	var decoded Members
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"zeta", "alpha"}, decoded.Keys())
	alpha, ok := decoded.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "int", alpha.Annotation)
}

func TestMembersUnmarshalRejectsNonObject(t *testing.T) {
	var m Members
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
}

func TestSymbolClone(t *testing.T) {
	def := "1"
	ret := "str"
	orig := &Symbol{
		Kind:  KindClass,
		Bases: []string{"Base"},
		Signature: &Signature{
			Args:    []Param{{Name: "x", Default: &def}},
			Returns: &ret,
		},
		Members: NewMembers(),
	}
	orig.Members.Set("m", &Symbol{Kind: KindMethod})

	c := orig.Clone()
	c.Bases[0] = "Other"
	*c.Signature.Args[0].Default = "2"
	*c.Signature.Returns = "int"
	c.Members.Set("extra", &Symbol{})

	assert.Equal(t, "Base", orig.Bases[0])
	assert.Equal(t, "1", *orig.Signature.Args[0].Default)
	assert.Equal(t, "str", *orig.Signature.Returns)
	assert.Equal(t, 1, orig.Members.Len())
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("module").Valid())
}
