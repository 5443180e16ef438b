package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ralts/langindex/internal/config"
	"github.com/ralts/langindex/internal/logging"
	"github.com/ralts/langindex/internal/preflight"
	"github.com/ralts/langindex/internal/protocol"
	"github.com/ralts/langindex/internal/session"
	"github.com/ralts/langindex/internal/validation"
)

// newServeCmd creates the serve command: it holds the long-lived
// stdio session an editor integration attaches to. Stdout is sacred
// here — no output reaches it except the Content-Length-framed
// responses protocol.Session.Run writes; everything else, including
// all logging, goes to file.
func newServeCmd() *cobra.Command {
	var logLevel string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor-facing indexing and query server on stdio",
		Long: `serve starts a long-lived session reading Content-Length-framed
JSON-RPC requests from stdin and writing responses to stdout.

The first request must be "initialize", carrying the workspace root
to index. Every other request is queued against that workspace until
a "shutdown" notification or end of stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), logLevel, skipCheck)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level for the server's file log (debug, info, warn, error)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip pre-flight system checks")

	return cmd
}

func runServe(parent context.Context, logLevel string, skipCheck bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Everything written to stdout past this point must be a framed
	// JSON-RPC message; logging goes to file only.
	cleanup, err := logging.SetupServeModeWithLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to setup serve logging: %w", err)
	}
	defer cleanup()

	srv := &serveState{ctx: ctx, skipCheck: skipCheck}
	sess := protocol.NewSession(os.Stdin, os.Stdout, srv.handle, slog.Default())
	return sess.Run()
}

// serveState holds the one Session langindexd serves requests against,
// created lazily on the first "initialize" request.
type serveState struct {
	ctx       context.Context
	skipCheck bool

	mu   sync.Mutex
	sess *session.Session
}

func (s *serveState) handle(req protocol.Request) (any, error) {
	if req.Method == protocol.MethodInitialize {
		return s.initialize(req)
	}

	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return nil, fmt.Errorf("session not initialized: send \"initialize\" first")
	}
	return sess.Dispatch(s.ctx, req)
}

func (s *serveState) initialize(req protocol.Request) (any, error) {
	var params protocol.InitializeParams
	if m, ok := req.Params.(map[string]any); ok {
		if v, ok := m["rootPath"].(string); ok {
			params.RootPath = v
		}
		if v, ok := m["indexGems"].(bool); ok {
			params.IndexGems = v
		}
		if v, ok := m["reportDiagnostics"].(bool); ok {
			params.ReportDiagnostics = v
		}
		if v, ok := m["allocationType"].(string); ok {
			params.AllocationType = v
		}
	}
	if err := validation.InitializeParams(params); err != nil {
		return nil, err
	}

	cfg, err := config.Load(params.RootPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Index.IndexGems = cfg.Index.IndexGems || params.IndexGems
	cfg.Index.ReportDiagnostics = cfg.Index.ReportDiagnostics || params.ReportDiagnostics
	if params.AllocationType != "" {
		cfg.Store.Allocation = tokenstoreAllocation(params.AllocationType)
	}

	if !s.skipCheck {
		dd := dataDir(params.RootPath)
		if preflight.NeedsCheck(dd) {
			checker := preflight.New(preflight.WithOutput(io.Discard))
			results := checker.RunAll(s.ctx, params.RootPath)
			if checker.HasCriticalFailures(results) {
				slog.Error("pre-flight check failed, refusing to initialize")
				return nil, fmt.Errorf("system check failed, run 'langindexd doctor' for diagnostics")
			}
			_ = preflight.MarkPassed(dd)
		}
	}

	sess, err := openSession(s.ctx, params.RootPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()

	scanOpts := scanOptionsFor(params.RootPath, cfg)
	if err := sess.ScanAndEnqueue(s.ctx, scanOpts); err != nil {
		slog.Error("initial scan failed", slog.String("error", err.Error()))
	}
	if cfg.Index.IndexGems {
		lockPath := filepath.Join(params.RootPath, "Gemfile.lock")
		if err := sess.ScanDependencies(s.ctx, lockPath); err != nil {
			slog.Warn("dependency scan skipped", slog.String("error", err.Error()))
		}
	}
	if err := sess.Watch(s.ctx, scanOpts, cfg.Index.WatchDebounce); err != nil {
		slog.Warn("file watcher disabled", slog.String("error", err.Error()))
	}

	return nil, nil
}
