package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ralts/langindex/internal/config"
	"github.com/ralts/langindex/internal/filerecord"
	"github.com/ralts/langindex/internal/tokenstore"
	"github.com/ralts/langindex/internal/ui"
)

// newStatusCmd creates the status command: find the project root,
// collect storage and count statistics, render through ui.StatusRenderer.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `status displays information about a disk-allocated index:
total indexed files, last-indexed time, and token store/file-record
storage sizes.

A RAM-allocated index has nothing to report here since it holds no
state once its process exits; run 'langindexd index' with a disk
allocation first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Store.Allocation != tokenstore.AllocationDisk {
		return fmt.Errorf("no on-disk index in %s\nconfigure store.allocation_type: disk and run 'langindexd index'", root)
	}

	recPath := recordsPath(root)
	if !fileExists(recPath) {
		return fmt.Errorf("no index found in %s\nRun 'langindexd index' to create one", root)
	}

	info, err := collectStatus(ctx, root, recPath)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, root, recPath string) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		ProjectName:    filepath.Base(root),
		AllocationType: "disk",
	}

	records, err := filerecord.Open(recPath)
	if err != nil {
		return info, fmt.Errorf("opening file records: %w", err)
	}
	defer func() { _ = records.Close() }()

	paths, err := records.AllPaths(ctx)
	if err != nil {
		return info, fmt.Errorf("listing indexed files: %w", err)
	}
	info.TotalFiles = len(paths)

	if fi, err := os.Stat(recPath); err == nil {
		info.LastIndexed = fi.ModTime()
		info.RecordsSize = fi.Size()
	}
	info.TokenStoreSize = dirSize(tokenStorePath(root))
	info.TotalSize = info.RecordsSize + info.TokenStoreSize
	info.WatcherStatus = "n/a"

	return info, nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.Walk(dir, func(_ string, fi os.FileInfo, err error) error {
		if err != nil || fi == nil || fi.IsDir() {
			return nil
		}
		total += fi.Size()
		return nil
	})
	return total
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
