// Package depindex resolves a workspace's dependency lock file to a
// list of installed dependency source directories and enqueues their
// files for indexing.
//
// The lockfile dialect this package understands is Gemfile.lock's: a
// "GEM" section with dependencies recorded as "    name (version)"
// lines nested under "  specs:". Other dialects are out of scope; see
// DESIGN.md for why this one was chosen.
//
// Directory walking once a dependency resolves to a path reuses
// internal/scanner's channel-based, context-cancellable walk.
package depindex

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralts/langindex/internal/indexer"
	"github.com/ralts/langindex/internal/scanner"
)

// Dependency is one resolved entry from a lockfile's GEM section.
type Dependency struct {
	Name    string
	Version string
}

// ParseLockfile extracts the GEM section's "name (version)" specs from
// a Gemfile.lock-shaped lockfile. Lines outside the GEM section (the
// PLATFORMS, DEPENDENCIES, and BUNDLED WITH sections) are ignored, as
// are the section's own "remote:" and "specs:" header lines.
func ParseLockfile(data []byte) ([]Dependency, error) {
	var deps []Dependency
	inGemSection := false
	inSpecs := false

	scan := bufio.NewScanner(bytes.NewReader(data))
	for scan.Scan() {
		line := scan.Text()

		switch {
		case line == "GEM":
			inGemSection = true
			inSpecs = false
			continue
		case inGemSection && !strings.HasPrefix(line, " "):
			// A non-indented line ends the GEM section.
			inGemSection = false
			inSpecs = false
			continue
		case !inGemSection:
			continue
		}

		trimmed := strings.TrimLeft(line, " ")
		indent := len(line) - len(trimmed)

		if trimmed == "specs:" {
			inSpecs = true
			continue
		}
		if !inSpecs || trimmed == "" {
			continue
		}
		// Top-level specs are indented 4 spaces; their own
		// dependencies are indented 6+ and are skipped here since
		// depindex resolves every spec in the lockfile regardless of
		// whether it's a direct or transitive dependency.
		if indent != 4 {
			continue
		}

		dep, ok := parseSpecLine(trimmed)
		if !ok {
			continue
		}
		deps = append(deps, dep)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("depindex: scan lockfile: %w", err)
	}

	return deps, nil
}

// parseSpecLine parses "name (version)" into a Dependency.
func parseSpecLine(line string) (Dependency, bool) {
	open := strings.LastIndex(line, "(")
	close := strings.LastIndex(line, ")")
	if open < 0 || close < open {
		return Dependency{}, false
	}
	name := strings.TrimSpace(line[:open])
	version := strings.TrimSpace(line[open+1 : close])
	if name == "" || version == "" {
		return Dependency{}, false
	}
	return Dependency{Name: name, Version: version}, true
}

// GemHome returns the directory under which resolved gems are
// installed, following Bundler/RubyGems convention: $GEM_HOME if set,
// otherwise $HOME/.gem (the per-user install location RubyGems falls
// back to outside a project-local bundle).
func GemHome(lookupEnv func(string) (string, bool)) string {
	if home, ok := lookupEnv("GEM_HOME"); ok && home != "" {
		return home
	}
	if home, ok := lookupEnv("HOME"); ok && home != "" {
		return filepath.Join(home, ".gem")
	}
	return ".gem"
}

// ResolveDir returns the directory a dependency's sources live under:
// <gem home>/gems/<name>-<version>.
func ResolveDir(gemHome string, dep Dependency) string {
	return filepath.Join(gemHome, "gems", fmt.Sprintf("%s-%s", dep.Name, dep.Version))
}

// Discover parses lockfilePath and resolves every listed dependency to
// its installed directory under gemHome, skipping any dependency whose
// directory does not exist — an uninstalled or platform-excluded gem
// is not an error here, since dependency indexing is best-effort.
func Discover(lockfilePath, gemHome string) ([]string, error) {
	data, err := os.ReadFile(lockfilePath)
	if err != nil {
		return nil, fmt.Errorf("depindex: read lockfile: %w", err)
	}

	deps, err := ParseLockfile(data)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, dep := range deps {
		dir := ResolveDir(gemHome, dep)
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// Scan walks every resolved dependency directory for Ruby source
// files, streaming results in the same shape the indexer's initial
// workspace scan uses. Each Result's Path is an absolute path (outside
// the workspace root), which indexer.DiskSource reads directly.
//
// Directories are walked concurrently through indexer.RunParallel,
// bounded by the same worker count as the indexing pool, since a
// dependency tree can have dozens of gems and walking them one at a
// time would leave most of that pool idle during dependency indexing.
func Scan(ctx context.Context, sc *scanner.Scanner, dirs []string) (<-chan indexer.ScanResult, error) {
	out := make(chan indexer.ScanResult, 64)

	go func() {
		defer close(out)
		err := indexer.RunParallel(ctx, dirs, 0, func(ctx context.Context, dir string) error {
			results, err := sc.Scan(ctx, scanner.Options{
				RootDir:      dir,
				IncludeGlobs: []string{"*.rb"},
			})
			if err != nil {
				select {
				case out <- indexer.ScanResult{Err: fmt.Errorf("depindex: scan %s: %w", dir, err)}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}
			for r := range results {
				abs := r.Path
				if r.Err == nil {
					abs = filepath.Join(dir, r.Path)
				}
				select {
				case out <- indexer.ScanResult{Path: abs, Err: r.Err}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("dependency directory scan failed", slog.String("error", err.Error()))
		}
	}()

	return out, nil
}
