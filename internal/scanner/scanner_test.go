package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, s *Scanner, opts Options) []string {
	t.Helper()
	ch, err := s.Scan(context.Background(), opts)
	require.NoError(t, err)

	var paths []string
	for r := range ch {
		require.NoError(t, r.Err)
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)
	return paths
}

func TestScanFindsFilesMatchingIncludeGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.rb", "")
	writeFile(t, root, "README.md", "")
	writeFile(t, root, "lib/helper.rb", "")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}})
	assert.Equal(t, []string{"app.rb", "lib/helper.rb"}, paths)
}

func TestScanExcludesGlobMatches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.rb", "")
	writeFile(t, root, "app_test.rb", "")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}, ExcludeGlobs: []string{"*_test.rb"}})
	assert.Equal(t, []string{"app.rb"}, paths)
}

func TestScanAlwaysExcludesDotGit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.rb", "")
	writeFile(t, root, ".git/HEAD", "")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*"}})
	for _, p := range paths {
		assert.NotContains(t, p, ".git/")
	}
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.rb", "")
	writeFile(t, root, "tmp/cache.rb", "")
	writeFile(t, root, ".gitignore", "tmp/\n")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}, RespectGitignore: true})
	assert.Equal(t, []string{"app.rb"}, paths)
}

func TestScanHonorsNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/keep.rb", "")
	writeFile(t, root, "lib/generated.rb", "")
	writeFile(t, root, "lib/.gitignore", "generated.rb\n")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}, RespectGitignore: true})
	assert.Equal(t, []string{"lib/keep.rb"}, paths)
}

func TestScanWithoutIncludeGlobsReturnsEverything(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.rb", "")
	writeFile(t, root, "b.txt", "")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root})
	assert.ElementsMatch(t, []string{"a.rb", "b.txt"}, paths)
}

func TestInvalidateGitignoreCacheForcesReparse(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.rb", "")
	writeFile(t, root, ".gitignore", "")

	s, err := New()
	require.NoError(t, err)

	paths := collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}, RespectGitignore: true})
	assert.Equal(t, []string{"a.rb"}, paths)

	writeFile(t, root, ".gitignore", "a.rb\n")
	s.InvalidateGitignoreCache()

	paths = collect(t, s, Options{RootDir: root, IncludeGlobs: []string{"*.rb"}, RespectGitignore: true})
	assert.Empty(t, paths)
}

func TestIsGitignoreFile(t *testing.T) {
	assert.True(t, IsGitignoreFile(".gitignore"))
	assert.True(t, IsGitignoreFile("lib/.gitignore"))
	assert.False(t, IsGitignoreFile("app.rb"))
}
