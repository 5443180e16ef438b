package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskSource_ReadsWorkspaceRelativePath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "foo.rb"), []byte("def foo; end\n"), 0o644))

	src := NewDiskSource(root)
	data, err := src.Read("foo.rb")
	require.NoError(t, err)
	assert.Equal(t, "def foo; end\n", string(data))
}

func TestDiskSource_ReadsAbsoluteDependencyPath(t *testing.T) {
	gemDir := t.TempDir()
	absPath := filepath.Join(gemDir, "lib", "rack.rb")
	require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0o755))
	require.NoError(t, os.WriteFile(absPath, []byte("module Rack\nend\n"), 0o644))

	src := NewDiskSource(t.TempDir())
	data, err := src.Read(absPath)
	require.NoError(t, err)
	assert.Equal(t, "module Rack\nend\n", string(data))
}
