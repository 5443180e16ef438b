package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ralts/langindex/internal/config"
	"github.com/ralts/langindex/internal/indexer"
	"github.com/ralts/langindex/internal/ui"
)

// newIndexCmd creates the index command, a one-shot scan-and-build run
// over a workspace: resolve the path, find the project root, drive a
// ui.Renderer off the indexer's progress counters, and report a
// completion summary.
func newIndexCmd() *cobra.Command {
	var noTUI bool
	var gems bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a workspace for definition/reference queries",
		Long: `index walks the given directory (defaults to the current one),
parses every matching file, and builds the token store and file-record
database used by definition/references/rename/workspaceSymbol queries.

Use --gems to additionally resolve and index the workspace's
Gemfile.lock-installed dependencies.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, noTUI, gems)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&gems, "gems", false, "Also index Gemfile.lock-resolved dependency sources")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, noTUI, gems bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Index.IndexGems = cfg.Index.IndexGems || gems

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(root)))
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("starting renderer: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	sess, err := openSession(ctx, root, cfg)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer func() { _ = sess.Close() }()

	start := time.Now()
	progressDone := watchProgress(ctx, sess, renderer)
	defer close(progressDone)

	if err := sess.ScanAndEnqueue(ctx, scanOptionsFor(root, cfg)); err != nil {
		return fmt.Errorf("scanning workspace: %w", err)
	}
	waitForIdle(ctx, sess)

	if cfg.Index.IndexGems {
		lockPath := filepath.Join(root, "Gemfile.lock")
		if err := sess.ScanDependencies(ctx, lockPath); err != nil {
			renderer.AddError(ui.ErrorEvent{Err: err, IsWarn: true})
		} else {
			waitForIdle(ctx, sess)
		}
	}

	snap := sess.Progress().Snapshot()
	renderer.Complete(ui.CompletionStats{
		Files:    snap.FilesProcessed,
		Duration: time.Since(start),
		Errors:   snap.ParseErrors,
	})
	return nil
}

// watchProgress mirrors the session's indexer progress into renderer
// until the returned channel is closed.
func watchProgress(ctx context.Context, sess sessionProgress, renderer ui.Renderer) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				snap := sess.Progress().Snapshot()
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   stageFor(snap.Stage),
					Current: snap.FilesProcessed,
					Total:   snap.FilesTotal,
				})
			}
		}
	}()
	return done
}

// sessionProgress is the narrow seam watchProgress needs from a
// *session.Session, kept as an interface so it can be faked in tests.
type sessionProgress interface {
	Progress() *indexer.Progress
}

func stageFor(s indexer.Stage) ui.Stage {
	switch s {
	case indexer.StageScanning:
		return ui.StageScanning
	case indexer.StageDepsScan:
		return ui.StageDepsScan
	case indexer.StageIndexing:
		return ui.StageIndexing
	default:
		return ui.StageComplete
	}
}

func waitForIdle(ctx context.Context, sess sessionProgress) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sess.Progress().Busy() {
				return
			}
		}
	}
}
