package index

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abramin/symdex/internal/config"
	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/vector"
)

const serviceSource = `"""Service helpers."""

import os


class Service:
    """Runs jobs."""

    retries = 3

    def run(self, job: str) -> bool:
        """Run one job."""
        return True


def start(port: int = 8080):
    """Start the service."""
`

type fixture struct {
	root      string
	cfg       *config.Config
	store     *store.Store
	vectors   *vector.Store
	publisher *vector.Publisher
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(rel)), content)
	}
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	cfg := config.Default()
	st, err := store.Open(cfg.DBPath(resolved))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	vs, err := vector.Open(cfg.VectorPath(resolved), "", vector.NewHashEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })

	return &fixture{
		root:      resolved,
		cfg:       cfg,
		store:     st,
		vectors:   vs,
		publisher: vector.NewPublisher(vs, cfg.Vector.MinDocLength, nil),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) indexer(t *testing.T, opts ...Option) *Indexer {
	t.Helper()
	opts = append([]Option{WithPublisher(f.publisher)}, opts...)
	idx, err := NewIndexer(f.cfg, f.root, f.store, opts...)
	require.NoError(t, err)
	return idx
}

func TestRunIndexesFiles(t *testing.T) {
	f := newFixture(t, map[string]string{
		"svc/service.py": serviceSource,
		"util.py":        "def helper():\n    pass\n",
		"notes.txt":      "not python",
	})
	var progress bytes.Buffer
	idx := f.indexer(t, WithProgress(&progress))
	ctx := context.Background()

	res, err := idx.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Indexed)
	assert.Zero(t, res.Failed)
	assert.Equal(t, f.store.DBPath(), res.DBPath)

	syms, err := f.store.FileSymbols(ctx, filepath.Join(f.root, "svc", "service.py"))
	require.NoError(t, err)
	var names []string
	for _, s := range syms {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"__module_doc__", "os", "Service", "start", "Service.retries", "Service.run"}, names)

	file, err := f.store.FileByPath(ctx, filepath.Join(f.root, "svc", "service.py"))
	require.NoError(t, err)
	assert.Equal(t, "svc/service.py", file.RelativePath)

	// Service, Service.run and start carry docs; helper, retries and os do not.
	assert.Equal(t, 3, res.Published.Published)
	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	root, err := f.store.GetMetadata(ctx, store.MetaRootPath)
	require.NoError(t, err)
	assert.Equal(t, f.root, root)
	_, err = os.Stat(f.store.IndexJSONPath())
	assert.NoError(t, err)

	assert.Contains(t, progress.String(), "indexed   svc/service.py (6 symbols)")
}

func TestRunSkipsUnchangedFiles(t *testing.T) {
	f := newFixture(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})
	ctx := context.Background()

	_, err := f.indexer(t).Run(ctx)
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.root, "b.py"), "y = 3\nz = 4\n")
	res, err := f.indexer(t).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Indexed)

	syms, err := f.store.FileSymbols(ctx, filepath.Join(f.root, "b.py"))
	require.NoError(t, err)
	assert.Len(t, syms, 2)

	res, err = f.indexer(t, WithForce(true)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Zero(t, res.Unchanged)
}

func TestRunPublishesUnchangedFilesMissingDescriptions(t *testing.T) {
	f := newFixture(t, map[string]string{"svc/service.py": serviceSource})
	ctx := context.Background()

	plain, err := NewIndexer(f.cfg, f.root, f.store)
	require.NoError(t, err)
	res, err := plain.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Zero(t, res.Published.Published)

	res, err = f.indexer(t).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 3, res.Published.Published)
	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Descriptions are stored now, so a further run publishes nothing.
	res, err = f.indexer(t).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Published.Published)
	n, err = f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunRecordsParseErrors(t *testing.T) {
	f := newFixture(t, map[string]string{
		"good.py":   "def ok():\n    pass\n",
		"broken.py": "def broken(:\n    pass\n",
	})
	ctx := context.Background()

	res, err := f.indexer(t).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	require.Equal(t, 1, res.Failed)
	assert.Equal(t, filepath.Join(f.root, "broken.py"), res.Failures[0].Path)
	assert.Error(t, res.Failures[0].Err)

	_, err = f.store.FileByPath(ctx, filepath.Join(f.root, "broken.py"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunStopsOnCancellation(t *testing.T) {
	f := newFixture(t, map[string]string{"a.py": "x = 1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.indexer(t).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.True(t, res.Cancelled)
	assert.Zero(t, res.Indexed)
}

func TestRunAppliesIndexOptions(t *testing.T) {
	f := newFixture(t, map[string]string{
		"m.py": "import os\n\ndef f(a: int = 1):\n    pass\n",
	})
	f.cfg.Index.ExcludeImports = true
	f.cfg.Index.Signatures = false
	ctx := context.Background()

	_, err := f.indexer(t).Run(ctx)
	require.NoError(t, err)

	syms, err := f.store.FileSymbols(ctx, filepath.Join(f.root, "m.py"))
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "f", syms[0].Name)
	assert.Nil(t, syms[0].Signature)
}

func TestRemoveAndPrune(t *testing.T) {
	f := newFixture(t, map[string]string{
		"keep.py": "def kept():\n    \"\"\"Kept around.\"\"\"\n",
		"gone.py": "def gone():\n    \"\"\"Deleted soon.\"\"\"\n",
	})
	ctx := context.Background()
	idx := f.indexer(t)

	_, err := idx.Run(ctx)
	require.NoError(t, err)

	gone := filepath.Join(f.root, "gone.py")
	require.NoError(t, os.Remove(gone))

	pruned, err := idx.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{gone}, pruned)

	files, err := f.store.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(f.root, "keep.py"), files[0].Path)

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = idx.Remove(ctx, gone)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewIndexerRejectsBadRoot(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewIndexer(f.cfg, filepath.Join(f.root, "missing"), f.store)
	assert.Error(t, err)
}

func TestWatcherReindexesChanges(t *testing.T) {
	f := newFixture(t, map[string]string{"a.py": "x = 1\n"})
	idx := f.indexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := idx.Run(ctx)
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		results []FileResult
	)
	w, err := idx.NewWatcher(20*time.Millisecond, func(fr FileResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, fr)
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)

	added := filepath.Join(f.root, "pkg", "added.py")
	writeFile(t, added, "def added():\n    pass\n")

	require.Eventually(t, func() bool {
		syms, err := f.store.FileSymbols(context.Background(), added)
		return err == nil && len(syms) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(f.root, "a.py")))
	require.Eventually(t, func() bool {
		_, err := f.store.FileByPath(context.Background(), filepath.Join(f.root, "a.py"))
		return store.IsNotFound(err)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	var statuses []string
	for _, r := range results {
		statuses = append(statuses, string(r.Status))
	}
	assert.Contains(t, strings.Join(statuses, ","), string(StatusIndexed))
	assert.Contains(t, strings.Join(statuses, ","), string(StatusRemoved))
}
