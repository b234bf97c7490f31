package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/abramin/symdex/internal/config"
	"github.com/abramin/symdex/internal/scan"
	"github.com/abramin/symdex/internal/store"
	"github.com/abramin/symdex/internal/symbols"
	"github.com/abramin/symdex/internal/vector"
)

// Indexer coordinates the indexing pipeline for one root directory.
type Indexer struct {
	cfg       *config.Config
	root      string
	store     *store.Store
	publisher *vector.Publisher
	builder   *symbols.Builder
	matcher   *scan.Matcher
	logger    *slog.Logger
	progress  io.Writer
	force     bool
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithPublisher publishes symbol descriptions to a vector store.
func WithPublisher(p *vector.Publisher) Option {
	return func(idx *Indexer) { idx.publisher = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithProgress writes one line per processed file to w.
func WithProgress(w io.Writer) Option {
	return func(idx *Indexer) { idx.progress = w }
}

// WithForce re-indexes files even when their content hash is unchanged.
func WithForce(force bool) Option {
	return func(idx *Indexer) { idx.force = force }
}

// NewIndexer creates an indexer for the files under root selected by cfg.
func NewIndexer(cfg *config.Config, root string, st *store.Store, opts ...Option) (*Indexer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	matcher, err := scan.NewMatcher(root, cfg.ScanOptions())
	if err != nil {
		return nil, err
	}
	idx := &Indexer{
		cfg:     cfg,
		root:    matcher.Root(),
		store:   st,
		matcher: matcher,
		builder: symbols.NewBuilder(symbols.Options{
			ExcludeImports:    cfg.Index.ExcludeImports,
			IncludeSignatures: cfg.Index.Signatures,
		}),
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = slog.New(slog.DiscardHandler)
	}
	return idx, nil
}

// Root returns the absolute root directory.
func (idx *Indexer) Root() string {
	return idx.root
}

// FileStatus is the outcome of indexing one file.
type FileStatus string

const (
	StatusIndexed   FileStatus = "indexed"
	StatusUnchanged FileStatus = "unchanged"
	StatusFailed    FileStatus = "failed"
	StatusSkipped   FileStatus = "skipped"
	StatusRemoved   FileStatus = "removed"
)

// FileResult reports the outcome for one file.
type FileResult struct {
	Path         string         `json:"path"`
	RelativePath string         `json:"relative_path"`
	Status       FileStatus     `json:"status"`
	Symbols      int            `json:"symbols"`
	Published    vector.Summary `json:"published"`
	Err          error          `json:"-"`
}

// Result holds the results of an indexing run.
type Result struct {
	Files       int            `json:"files"`
	Indexed     int            `json:"indexed"`
	Unchanged   int            `json:"unchanged"`
	Failed      int            `json:"failed"`
	SymbolCount int            `json:"symbol_count"`
	Published   vector.Summary `json:"published"`
	Failures    []FileResult   `json:"failures,omitempty"`
	Duration    time.Duration  `json:"duration"`
	DBPath      string         `json:"db_path"`
	Cancelled   bool           `json:"cancelled,omitempty"`
}

func (r *Result) add(fr FileResult) {
	r.Files++
	switch fr.Status {
	case StatusIndexed:
		r.Indexed++
		r.SymbolCount += fr.Symbols
	case StatusUnchanged:
		r.Unchanged++
	case StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, fr)
	}
	r.Published.Published += fr.Published.Published
	r.Published.Skipped += fr.Published.Skipped
	r.Published.Failed += fr.Published.Failed
}

// Run indexes every matching file under the root. Files are processed one at
// a time; cancellation is checked between files and files already processed
// stay committed. Parse failures are recorded per file; storage failures
// abort the run.
func (idx *Indexer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{DBPath: idx.store.DBPath()}

	files, err := idx.matcher.Files()
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}
	idx.logger.Info("indexing", "root", idx.root, "files", len(files), "force", idx.force)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			res.Duration = time.Since(start)
			return res, err
		}
		fr, err := idx.IndexFile(ctx, path)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		res.add(fr)
	}

	if err := idx.finish(ctx); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	idx.logger.Info("indexing complete",
		"indexed", res.Indexed, "unchanged", res.Unchanged, "failed", res.Failed,
		"symbols", res.SymbolCount, "duration", res.Duration)
	return res, nil
}

// finish records run metadata and refreshes index.json.
func (idx *Indexer) finish(ctx context.Context) error {
	if err := idx.store.SetMetadata(ctx, store.MetaIndexedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}
	if err := idx.store.SetMetadata(ctx, store.MetaRootPath, idx.root); err != nil {
		return fmt.Errorf("storing metadata: %w", err)
	}
	if err := idx.store.WriteIndexJSON(ctx); err != nil {
		return fmt.Errorf("writing index.json: %w", err)
	}
	return nil
}

// IndexFile runs the per-file pipeline: read, hash, skip if unchanged, build,
// flatten, upsert and publish. The returned error is non-nil only for storage
// failures.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (FileResult, error) {
	fr := FileResult{Path: path}
	if rel, err := idx.matcher.Rel(path); err == nil {
		fr.RelativePath = rel
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return idx.fail(fr, fmt.Errorf("reading %s: %w", path, err)), nil
	}
	hash := store.HashBytes(src)
	if !idx.force {
		unchanged, err := idx.store.IsUnchanged(ctx, path, hash)
		if err != nil {
			return fr, err
		}
		if unchanged {
			fr.Status = StatusUnchanged
			if idx.publisher != nil {
				fr.Published = idx.republish(ctx, path, src)
			}
			idx.report(fr)
			return fr, nil
		}
	}

	table, err := idx.builder.BuildSource(ctx, path, src)
	if err != nil {
		return idx.fail(fr, err), nil
	}
	flat := symbols.Flatten(table)

	if _, err := idx.store.UpsertFile(ctx, store.FileRecord{
		Path:         path,
		RelativePath: fr.RelativePath,
		Hash:         hash,
	}, flat); err != nil {
		return fr, fmt.Errorf("storing %s: %w", path, err)
	}
	fr.Status = StatusIndexed
	fr.Symbols = len(flat)

	if idx.publisher != nil {
		_, fr.Published = idx.publisher.PublishTable(ctx, path, flat)
	}
	idx.report(fr)
	return fr, nil
}

// republish publishes the descriptions of an unchanged file when none are
// stored for it, as after a run without vectors or a failed batch insert.
// The symbol rows are left as they are.
func (idx *Indexer) republish(ctx context.Context, path string, src []byte) vector.Summary {
	has, err := idx.publisher.HasSource(ctx, path)
	if err != nil {
		idx.logger.Warn("checking published descriptions failed", "path", path, "error", err)
		return vector.Summary{}
	}
	if has {
		return vector.Summary{}
	}
	table, err := idx.builder.BuildSource(ctx, path, src)
	if err != nil {
		idx.logger.Warn("rebuilding unchanged file failed", "path", path, "error", err)
		return vector.Summary{}
	}
	_, summary := idx.publisher.PublishTable(ctx, path, symbols.Flatten(table))
	idx.logger.Debug("republished unchanged file", "path", path, "published", summary.Published)
	return summary
}

// Remove drops a file and its published descriptions from the index.
func (idx *Indexer) Remove(ctx context.Context, path string) (FileResult, error) {
	fr := FileResult{Path: path, Status: StatusRemoved}
	if rel, err := idx.matcher.Rel(path); err == nil {
		fr.RelativePath = rel
	}
	if err := idx.store.RemoveFile(ctx, path); err != nil {
		return fr, err
	}
	if idx.publisher != nil {
		if _, err := idx.publisher.Retract(ctx, path); err != nil {
			idx.logger.Warn("retracting descriptions failed", "path", path, "error", err)
		}
	}
	idx.report(fr)
	return fr, nil
}

// Prune removes indexed files that no longer exist on disk and returns their
// paths.
func (idx *Indexer) Prune(ctx context.Context) ([]string, error) {
	stale, err := idx.store.StaleFiles(ctx)
	if err != nil {
		return nil, err
	}
	for _, path := range stale {
		if _, err := idx.Remove(ctx, path); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return stale, nil
}

func (idx *Indexer) fail(fr FileResult, err error) FileResult {
	fr.Status = StatusFailed
	fr.Err = err
	var perr *symbols.ParseError
	if errors.As(err, &perr) {
		idx.logger.Warn("skipping unparsable file", "path", fr.Path, "line", perr.Line)
	} else {
		idx.logger.Warn("skipping file", "path", fr.Path, "error", err)
	}
	idx.report(fr)
	return fr
}

func (idx *Indexer) report(fr FileResult) {
	name := fr.RelativePath
	if name == "" {
		name = fr.Path
	}
	switch fr.Status {
	case StatusIndexed:
		fmt.Fprintf(idx.progress, "  %-9s %s (%d symbols)\n", fr.Status, name, fr.Symbols)
	case StatusFailed:
		fmt.Fprintf(idx.progress, "  %-9s %s: %v\n", fr.Status, name, fr.Err)
	default:
		fmt.Fprintf(idx.progress, "  %-9s %s\n", fr.Status, name)
	}
}
