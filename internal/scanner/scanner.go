// Package scanner discovers indexable files in a workspace directory
// tree for the indexer's initial scan, using an LRU-cached
// per-directory gitignore matcher (avoiding a re-parse of the same
// .gitignore on every sibling file) and an include/exclude glob
// matching approach narrowed to this domain's single extension filter.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ralts/langindex/internal/gitignore"
)

// gitignoreCacheSize bounds the per-directory matcher cache so a very
// large workspace tree doesn't grow it unboundedly.
const gitignoreCacheSize = 1000

// Options configures one Scan call.
type Options struct {
	RootDir          string
	IncludeGlobs     []string
	ExcludeGlobs     []string
	RespectGitignore bool
}

// Result is one discovered file, or a terminal scan error.
type Result struct {
	Path string // workspace-relative, slash-separated
	Err  error
}

// Scanner walks a workspace tree, applying include/exclude globs and
// (optionally) nested .gitignore files.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.Mutex
}

// New creates a Scanner with its gitignore-matcher cache initialized.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan streams every file under opts.RootDir passing the include/
// exclude filters. The returned channel is closed when the walk
// completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root dir: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root dir %s is not a directory", absRoot)
	}

	out := make(chan Result, 64)
	go func() {
		defer close(out)
		s.walk(ctx, absRoot, opts, out)
	}()
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, out chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			out <- Result{Err: walkErr}
			return nil
		}
		if path == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.excluded(absRoot, rel, true, opts) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.excluded(absRoot, rel, false, opts) {
			return nil
		}
		if !matchesInclude(rel, opts.IncludeGlobs) {
			return nil
		}

		select {
		case out <- Result{Path: rel}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil && err != context.Canceled {
		out <- Result{Err: err}
	}
}

func (s *Scanner) excluded(absRoot, rel string, isDir bool, opts Options) bool {
	base := filepath.Base(rel)
	if base == ".git" {
		return true
	}
	for _, pat := range opts.ExcludeGlobs {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
	}
	if opts.RespectGitignore && s.isGitignored(absRoot, rel, isDir) {
		return true
	}
	return false
}

func matchesInclude(rel string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	base := filepath.Base(rel)
	for _, pat := range includes {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// isGitignored checks rel against every .gitignore found between
// absRoot and rel's parent directory, nearest first.
func (s *Scanner) isGitignored(absRoot, rel string, isDir bool) bool {
	dir := filepath.Dir(rel)
	for {
		base := "."
		if dir != "." {
			base = dir
		}
		matcher := s.matcherFor(absRoot, base)
		if matcher != nil && matcher.Match(rel, isDir) {
			return true
		}
		if dir == "." || dir == "/" {
			break
		}
		dir = filepath.Dir(dir)
	}
	return false
}

func (s *Scanner) matcherFor(absRoot, base string) *gitignore.Matcher {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if m, ok := s.gitignoreCache.Get(base); ok {
		return m
	}

	dir := absRoot
	if base != "." {
		dir = filepath.Join(absRoot, base)
	}
	gitignorePath := filepath.Join(dir, ".gitignore")

	m := gitignore.New()
	if _, err := os.Stat(gitignorePath); err == nil {
		baseForPattern := ""
		if base != "." {
			baseForPattern = base
		}
		_ = m.AddFromFile(gitignorePath, baseForPattern)
	}
	s.gitignoreCache.Add(base, m)
	return m
}

// InvalidateGitignoreCache drops every cached matcher, used when the
// watcher observes a .gitignore file change (this module's supplemented
// "gitignore reconciliation" behavior).
func (s *Scanner) InvalidateGitignoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gitignoreCache.Purge()
}

// IsGitignoreFile reports whether rel names a .gitignore file.
func IsGitignoreFile(rel string) bool {
	return filepath.Base(rel) == ".gitignore" || strings.HasSuffix(rel, "/.gitignore")
}
