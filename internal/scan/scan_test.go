package scan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	return resolved
}

func rels(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestDirectoryDefaultGlob(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.py":                 "x = 1",
		"pkg/mod.py":              "y = 2",
		"pkg/deep/inner.py":       "z = 3",
		"README.md":               "# docs",
		"pkg/__pycache__/mod.py":  "cached",
		".venv/lib/site.py":       "vendored",
		"node_modules/x/setup.py": "js",
	})

	files, err := Directory(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "pkg/deep/inner.py", "pkg/mod.py"}, rels(t, root, files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f), f)
	}
}

func TestDirectoryGlobAndRegex(t *testing.T) {
	root := writeTree(t, map[string]string{
		"app/models.py":       "",
		"app/views.py":        "",
		"app/tests/test_a.py": "",
		"tools/models.py":     "",
	})

	files, err := Directory(root, Options{Glob: "app/*.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/models.py", "app/tests/test_a.py", "app/views.py"}, rels(t, root, files))

	files, err = Directory(root, Options{Regex: `models\.py$`})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/models.py", "tools/models.py"}, rels(t, root, files))

	files, err = Directory(root, Options{ExcludeGlobs: []string{"test_*.py"}, ExcludeDirs: []string{"tools"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"app/models.py", "app/views.py"}, rels(t, root, files))
}

func TestDirectoryGitignoreAndSize(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":       "generated/\nsecret_*.py\n",
		"keep.py":          "a = 1",
		"secret_key.py":    "k = 1",
		"generated/gen.py": "g = 1",
		"big.py":           "value = '0123456789012345678901234567890123456789'",
	})

	files, err := Directory(root, Options{RespectGitignore: true, MaxFileSize: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.py"}, rels(t, root, files))

	files, err = Directory(root, Options{})
	require.NoError(t, err)
	assert.Len(t, files, 4)
}

func TestDirectoryRootErrors(t *testing.T) {
	_, err := Directory("", Options{})
	assert.ErrorIs(t, err, ErrRootPathEmpty)

	_, err = Directory(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, ErrRootPathNotExist)

	root := writeTree(t, map[string]string{"file.py": ""})
	_, err = Directory(filepath.Join(root, "file.py"), Options{})
	assert.ErrorIs(t, err, ErrRootPathNotDir)

	_, err = Directory(root, Options{Regex: "("})
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

func TestMatcherMatch(t *testing.T) {
	root := writeTree(t, map[string]string{"a.py": ""})
	m, err := NewMatcher(root, Options{ExcludeDirs: []string{"skipme"}})
	require.NoError(t, err)

	assert.True(t, m.Match(filepath.Join(root, "a.py")))
	assert.True(t, m.Match(filepath.Join(root, "new", "b.py")))
	assert.False(t, m.Match(filepath.Join(root, "a.txt")))
	assert.False(t, m.Match(filepath.Join(root, "skipme", "c.py")))
	assert.False(t, m.Match(filepath.Join(filepath.Dir(root), "outside.py")))
	assert.True(t, m.SkipDir(filepath.Join(root, "__pycache__")))
	assert.False(t, m.SkipDir(root))
	assert.True(t, m.SizeOK(1<<30))
}
