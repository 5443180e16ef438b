package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralts/langindex/internal/filerecord"
	"github.com/ralts/langindex/internal/ui"
)

func TestRunStatus_NoIndexReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".langindex.yaml"),
		[]byte("store:\n  allocation_type: disk\n  cache_size: 64\n"), 0o644))

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	origWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	err = runStatus(context.Background(), cmd, false)

	assert.Error(t, err)
}

func TestCollectStatus_ReportsFileCountAndSizes(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "records.db")

	records, err := filerecord.Open(recPath)
	require.NoError(t, err)
	require.NoError(t, records.Put(context.Background(), filerecord.Record{
		Path: "a.rb", ContentHash: "deadbeef", ModTime: 1,
	}))
	require.NoError(t, records.Close())

	info, err := collectStatus(context.Background(), dir, recPath)

	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), info.ProjectName)
	assert.Equal(t, 1, info.TotalFiles)
	assert.Equal(t, "disk", info.AllocationType)
	assert.Positive(t, info.RecordsSize)
}

func TestCollectStatus_RenderJSONRoundTrips(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "records.db")
	records, err := filerecord.Open(recPath)
	require.NoError(t, err)
	require.NoError(t, records.Close())

	info, err := collectStatus(context.Background(), dir, recPath)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	renderer := ui.NewStatusRenderer(buf, true)
	require.NoError(t, renderer.RenderJSON(info))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, info.ProjectName, decoded["project_name"])
}
