// Package scan finds the source files to index under a directory tree.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

var (
	// ErrRootPathEmpty indicates the root path was not specified.
	ErrRootPathEmpty = errors.New("root path cannot be empty")

	// ErrRootPathNotExist indicates the root path does not exist.
	ErrRootPathNotExist = errors.New("root path does not exist")

	// ErrRootPathNotDir indicates the root path is not a directory.
	ErrRootPathNotDir = errors.New("root path is not a directory")

	// ErrInvalidPattern indicates a glob or regex pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// DefaultGlob selects Python sources.
const DefaultGlob = "*.py"

// skipDirs are never descended into.
var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	".git":          {},
	".hg":           {},
	".svn":          {},
	"venv":          {},
	".venv":         {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
	".symdex":       {},
}

// Options filter the scanned files.
type Options struct {
	// Glob is matched against the slash-separated path relative to the root.
	// "*" also matches "/", so "*.py" selects Python files at any depth.
	Glob string
	// Regex, when set, must match somewhere in the absolute path.
	Regex string
	// ExcludeDirs are directory base names skipped in addition to the defaults.
	ExcludeDirs []string
	// ExcludeGlobs drop relative paths matching any pattern ("*" stops at "/").
	ExcludeGlobs []string
	// RespectGitignore skips paths ignored by the root .gitignore.
	RespectGitignore bool
	// MaxFileSize skips larger files when positive.
	MaxFileSize int64
}

// Matcher decides which paths under a root are indexed.
type Matcher struct {
	root        string
	include     glob.Glob
	regex       *regexp.Regexp
	excludes    []glob.Glob
	excludeDirs map[string]struct{}
	gitignore   *ignore.GitIgnore
	maxFileSize int64
}

// NewMatcher validates root and compiles the filters in opts.
func NewMatcher(root string, opts Options) (*Matcher, error) {
	abs, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		root:        abs,
		excludeDirs: make(map[string]struct{}, len(skipDirs)+len(opts.ExcludeDirs)),
		maxFileSize: opts.MaxFileSize,
	}
	for d := range skipDirs {
		m.excludeDirs[d] = struct{}{}
	}
	for _, d := range opts.ExcludeDirs {
		m.excludeDirs[d] = struct{}{}
	}

	pattern := opts.Glob
	if pattern == "" {
		pattern = DefaultGlob
	}
	// No separator: "*" crosses directories like fnmatch does.
	if m.include, err = glob.Compile(pattern); err != nil {
		return nil, errors.Join(ErrInvalidPattern, err)
	}
	for _, p := range opts.ExcludeGlobs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		m.excludes = append(m.excludes, g)
	}
	if opts.Regex != "" {
		if m.regex, err = regexp.Compile(opts.Regex); err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
	}
	if opts.RespectGitignore {
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(abs, ".gitignore")); err == nil {
			m.gitignore = gi
		}
	}
	return m, nil
}

// Root returns the absolute root directory.
func (m *Matcher) Root() string {
	return m.root
}

// Rel returns path relative to the root in slash form.
func (m *Matcher) Rel(path string) (string, error) {
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// SkipDir reports whether the directory at path is pruned from the walk.
func (m *Matcher) SkipDir(path string) bool {
	if path == m.root {
		return false
	}
	if _, skip := m.excludeDirs[filepath.Base(path)]; skip {
		return true
	}
	rel, err := m.Rel(path)
	if err != nil || strings.HasPrefix(rel, "../") {
		return true
	}
	if m.gitignore != nil && m.gitignore.MatchesPath(rel+"/") {
		return true
	}
	return m.excluded(rel)
}

// Match reports whether the regular file at path is indexed.
func (m *Matcher) Match(path string) bool {
	rel, err := m.Rel(path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	for dir := filepath.Dir(path); dir != m.root && len(dir) > len(m.root); dir = filepath.Dir(dir) {
		if _, skip := m.excludeDirs[filepath.Base(dir)]; skip {
			return false
		}
	}
	if !m.include.Match(rel) {
		return false
	}
	if m.regex != nil && !m.regex.MatchString(path) {
		return false
	}
	if m.excluded(rel) {
		return false
	}
	if m.gitignore != nil && m.gitignore.MatchesPath(rel) {
		return false
	}
	return true
}

// SizeOK reports whether a file of size bytes is within the limit.
func (m *Matcher) SizeOK(size int64) bool {
	return m.maxFileSize <= 0 || size <= m.maxFileSize
}

func (m *Matcher) excluded(rel string) bool {
	for _, g := range m.excludes {
		if g.Match(rel) || g.Match(filepath.Base(rel)) {
			return true
		}
	}
	return false
}

// Files walks the root and returns the sorted absolute paths of matching
// regular files. Symlinks are not followed.
func (m *Matcher) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if m.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !m.Match(path) {
			return nil
		}
		if m.maxFileSize > 0 {
			info, err := d.Info()
			if err != nil || !m.SizeOK(info.Size()) {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", m.root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Directory returns the sorted absolute paths of files under root matching
// opts.
func Directory(root string, opts Options) ([]string, error) {
	m, err := NewMatcher(root, opts)
	if err != nil {
		return nil, err
	}
	return m.Files()
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		return "", ErrRootPathEmpty
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", ErrRootPathNotExist
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", ErrRootPathNotDir
	}
	return abs, nil
}
