package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestIndexThenQuery(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "shapes.py"), []byte(`"""Shapes."""


class Circle:
    """A round shape."""

    radius: float = 1.0

    def area(self) -> float:
        """Compute the area."""
        return 3.14 * self.radius ** 2
`), 0o644))

	out := run(t, "index", root, "-q")
	assert.Contains(t, out, "Successfully indexed 1 files")
	assert.Contains(t, out, "indexed   shapes.py")

	out = run(t, "class", "Circle", "--root", root, "-q")
	assert.Contains(t, out, "Methods (1):")
	assert.Contains(t, out, "def area(self) -> float")

	out = run(t, "report", "--root", root, "-q")
	assert.Contains(t, out, "shapes.py\n  1. [module doc]")

	out = run(t, "semantic", "area of a round shape", "--root", root, "-n", "1", "-q")
	assert.Contains(t, out, "1. ")

	t.Chdir(root)
	out = run(t, "symbol", "Circle.area", "--file", "shapes.py", "--root", root, "-q")
	assert.Contains(t, out, "member of Circle")

	// --json sticks to the shared flag variable, so it runs last.
	out = run(t, "search", "circ", "--root", root, "--json", "-q")
	var hits []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "Circle", hits[0]["symbol_name"])

	out = run(t, "remove", "shapes.py", "--root", root, "-q")
	assert.Contains(t, out, "removed   shapes.py")
}
