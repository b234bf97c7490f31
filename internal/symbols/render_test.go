package symbols

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTree(t *testing.T, src string) *sitter.Tree {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

// assignmentField returns a field of the single assignment statement in src.
func assignmentField(t *testing.T, src, field string) *sitter.Node {
	t.Helper()
	root := parseTree(t, src).RootNode()
	require.False(t, root.HasError(), src)
	stmt := firstNamed(root)
	require.NotNil(t, stmt)
	assign := firstNamed(stmt)
	require.Equal(t, "assignment", assign.Type())
	node := assign.ChildByFieldName(field)
	require.NotNil(t, node, field)
	return node
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		want  string
	}{
		{"name", "x: int\n", "type", "int"},
		{"dotted", "x: pkg.mod.T\n", "type", "pkg.mod.T"},
		{"single index", "x: List[str]\n", "type", "List[str]"},
		{"several indices", "x: Dict[str, int]\n", "type", "Dict[(str, int)]"},
		{"ellipsis index", "x: Tuple[int, ...]\n", "type", "Tuple[(int, ...)]"},
		{"list index", "x: Callable[[int], str]\n", "type", "Callable[([int], str)]"},
		{"string", "x: \"Node\"\n", "type", "Node"},
		{"union falls back", "x: int | None\n", "type", "int | None"},
		{"call falls back", "x = make(1,\n    2)\n", "right", "make(1, 2)"},
		{"lambda falls back", "x = lambda a:   a + 1\n", "right", "lambda a: a + 1"},
		{"literal text", "x = 0x10\n", "right", "0x10"},
		{"tuple", "x = 1, \"a\"\n", "right", "(1, a)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []byte(tt.src)
			node := assignmentField(t, tt.src, tt.field)
			assert.Equal(t, tt.want, Render(node, src))
		})
	}
}

func TestUnparse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"string keeps quotes", "x = \"a\"\n", `"a"`},
		{"whitespace collapses", "x = {\n    1:  2,\n}\n", "{ 1: 2, }"},
		{"lambda", "x = lambda:  None\n", "lambda: None"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := assignmentField(t, tt.src, "right")
			assert.Equal(t, tt.want, Unparse(node, []byte(tt.src)))
		})
	}
}

func TestRenderPlaceholder(t *testing.T) {
	src := "x = (1 +\n"
	root := parseTree(t, src).RootNode()
	require.True(t, root.HasError())

	bad := firstErrorNode(root)
	require.NotNil(t, bad)
	want := "<unparsable: " + bad.Type() + ">"
	assert.Equal(t, want, Render(bad, []byte(src)))
	assert.Equal(t, want, Unparse(bad, []byte(src)))
}

func TestRenderNil(t *testing.T) {
	assert.Empty(t, Render(nil, nil))
	assert.Empty(t, Unparse(nil, nil))
}
