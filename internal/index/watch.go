package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abramin/symdex/internal/store"
)

// DefaultDebounce is how long a path must stay quiet before it is re-indexed.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-indexes files as they change on disk. Events are debounced per
// path and handled sequentially.
type Watcher struct {
	idx      *Indexer
	fw       *fsnotify.Watcher
	debounce time.Duration
	onChange func(FileResult)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	due     map[string]struct{}
	wake    chan struct{}
	stopped bool
}

// NewWatcher creates a watcher for the indexer's root. onChange, when not
// nil, receives the result of every handled path.
func (idx *Indexer) NewWatcher(debounce time.Duration, onChange func(FileResult)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &Watcher{
		idx:      idx,
		fw:       fw,
		debounce: debounce,
		onChange: onChange,
		timers:   make(map[string]*time.Timer),
		due:      make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Run watches until ctx is cancelled. It returns nil on cancellation and the
// first storage error otherwise.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	if err := w.addRecursive(w.idx.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.idx.root, err)
	}
	w.idx.logger.Info("watching", "root", w.idx.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.idx.logger.Warn("watch error", "error", err)
		case <-w.wake:
			if err := w.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.idx.matcher.SkipDir(path) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.idx.matcher.SkipDir(event.Name) {
				if err := w.addRecursive(event.Name); err != nil {
					w.idx.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
				}
				w.scheduleDir(event.Name)
			}
			return
		}
	}
	if !w.idx.matcher.Match(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// scheduleDir queues the matching files of a directory that appeared after
// the watch started, since their own create events may predate the watch.
func (w *Watcher) scheduleDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.idx.matcher.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.idx.matcher.Match(path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.stopped {
			return
		}
		delete(w.timers, path)
		w.due[path] = struct{}{}
		select {
		case w.wake <- struct{}{}:
		default:
		}
	})
}

// flush handles every due path in sorted order.
func (w *Watcher) flush(ctx context.Context) error {
	w.mu.Lock()
	paths := make([]string, 0, len(w.due))
	for p := range w.due {
		paths = append(paths, p)
	}
	w.due = make(map[string]struct{})
	w.mu.Unlock()
	sort.Strings(paths)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fr, err := w.handlePath(ctx, path)
		if err != nil {
			return err
		}
		if w.onChange != nil {
			w.onChange(fr)
		}
	}
	if len(paths) > 0 {
		return w.idx.finish(ctx)
	}
	return nil
}

func (w *Watcher) handlePath(ctx context.Context, path string) (FileResult, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fr, err := w.idx.Remove(ctx, path)
		if errors.Is(err, store.ErrNotFound) {
			fr.Status = StatusSkipped
			return fr, nil
		}
		return fr, err
	case err != nil:
		return w.idx.fail(FileResult{Path: path}, err), nil
	case !info.Mode().IsRegular() || !w.idx.matcher.SizeOK(info.Size()):
		return FileResult{Path: path, Status: StatusSkipped}, nil
	}
	return w.idx.IndexFile(ctx, path)
}

func (w *Watcher) close() {
	w.mu.Lock()
	w.stopped = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	w.fw.Close()
}
