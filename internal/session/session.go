// Package session holds per-workspace state: the indexer, the buffer
// overlay, the token store, and the query engine built on top of them.
// It is the dispatch point between the protocol layer and the
// indexing/query subsystems: write-type editor notifications
// (opened/changed/saved/closed) are serialized into indexer enqueues,
// while read-type requests (definition/references/…) run on the query
// engine concurrently with indexing. An optional internal/watcher feed
// (started with Watch) folds in changes made outside the editor the
// same way.
//
// There is exactly one in-memory session per workspace root, opened
// and closed with the process; see DESIGN.md for why no disk-backed,
// multi-session-switching model was carried forward here.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ralts/langindex/internal/depindex"
	indexerrors "github.com/ralts/langindex/internal/errors"
	"github.com/ralts/langindex/internal/filerecord"
	"github.com/ralts/langindex/internal/indexer"
	"github.com/ralts/langindex/internal/occurrence"
	"github.com/ralts/langindex/internal/overlay"
	"github.com/ralts/langindex/internal/protocol"
	"github.com/ralts/langindex/internal/query"
	"github.com/ralts/langindex/internal/scanner"
	"github.com/ralts/langindex/internal/telemetry"
	"github.com/ralts/langindex/internal/tokenstore"
	"github.com/ralts/langindex/internal/validation"
	"github.com/ralts/langindex/internal/watcher"
)

// Session is the live state for one open workspace root.
type Session struct {
	RootPath string

	store   *tokenstore.Store
	records *filerecord.Store
	overlay *overlay.Overlay
	indexer *indexer.Indexer
	engine  *query.Engine
	scanner *scanner.Scanner
	metrics *telemetry.QueryMetrics

	watch       *watcher.HybridWatcher
	watchCancel context.CancelFunc
}

// Config bundles the already-constructed collaborators a Session is
// built from. Wiring these up (picking RAM vs disk allocation, opening
// the file-record database, choosing a Parser) is cmd/langindexd's job.
// Metrics may be nil, in which case operations run unmeasured.
type Config struct {
	RootPath string
	Store    *tokenstore.Store
	Records  *filerecord.Store
	Source   indexer.FileSource
	Parser   indexer.Parser
	Options  indexer.Options
	Metrics  *telemetry.QueryMetrics
}

// New builds a Session and starts its indexer worker pool.
func New(ctx context.Context, cfg Config) *Session {
	ov := overlay.New()
	ix := indexer.New(cfg.Store, cfg.Records, ov, cfg.Parser, cfg.Options)
	ix.SetSource(cfg.Source)
	ix.Start(ctx)

	return &Session{
		RootPath: cfg.RootPath,
		store:    cfg.Store,
		records:  cfg.Records,
		overlay:  ov,
		indexer:  ix,
		engine:   query.New(cfg.Store, ov, cfg.Source, cfg.Parser),
		metrics:  cfg.Metrics,
	}
}

// record times a query-engine call and reports it to the session's
// metrics collector, if one is configured.
func (s *Session) record(op telemetry.OperationType, query string, resultCount int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Operation:   op,
		ResultCount: resultCount,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// ScanAndEnqueue walks the workspace and enqueues every discovered file
// for indexing, converting the scanner's result shape into the
// indexer's.
func (s *Session) ScanAndEnqueue(ctx context.Context, opts scanner.Options) error {
	if s.scanner == nil {
		sc, err := scanner.New()
		if err != nil {
			return indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
		}
		s.scanner = sc
	}

	results, err := s.scanner.Scan(ctx, opts)
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}

	converted := make(chan indexer.ScanResult, 64)
	go func() {
		defer close(converted)
		for r := range results {
			select {
			case converted <- indexer.ScanResult{Path: r.Path, Err: r.Err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.indexer.EnqueueAllFromScan(ctx, converted)
	return nil
}

// ScanDependencies resolves the workspace's Gemfile.lock (if present)
// to its installed gem directories and enqueues their sources for
// indexing, run after ScanAndEnqueue so foreground requests are served
// from workspace files first ( "Dependency indexing
// (optional)... runs after workspace files and yields CPU to
// foreground requests").
func (s *Session) ScanDependencies(ctx context.Context, lockfilePath string) error {
	if s.scanner == nil {
		sc, err := scanner.New()
		if err != nil {
			return indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
		}
		s.scanner = sc
	}

	gemHome := depindex.GemHome(os.LookupEnv)
	dirs, err := depindex.Discover(lockfilePath, gemHome)
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeFileNotFound, err)
	}
	if len(dirs) == 0 {
		return nil
	}

	results, err := depindex.Scan(ctx, s.scanner, dirs)
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	s.indexer.EnqueueDepsFromScan(ctx, results)
	return nil
}

// Watch starts a background filesystem watcher over the workspace root
// so edits made outside the editor (external tools, git checkouts,
// another process) reach the indexer too. Events are coalesced per
// watcher.Debouncer before arriving here, so a burst of writes to the
// same path enqueues it once. Call Close to stop it along with the
// rest of the session.
func (s *Session) Watch(ctx context.Context, opts scanner.Options, debounce time.Duration) error {
	hw, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: debounce,
		IgnorePatterns: opts.ExcludeGlobs,
	})
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watch = hw
	s.watchCancel = cancel

	go func() {
		if err := hw.Start(watchCtx, s.RootPath); err != nil && watchCtx.Err() == nil {
			slog.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
	}()
	go s.consumeWatchErrors(watchCtx)
	go s.consumeWatchEvents(watchCtx, opts)

	return nil
}

func (s *Session) consumeWatchEvents(ctx context.Context, opts scanner.Options) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-s.watch.Events():
			if !ok {
				return
			}
			for _, ev := range events {
				s.applyWatchEvent(ctx, ev, opts)
			}
		}
	}
}

func (s *Session) consumeWatchErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-s.watch.Errors():
			if !ok {
				return
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// applyWatchEvent folds one on-disk change into the index: deletions
// remove the document outright, a .gitignore change drops the scanner's
// cached ignore matchers and re-scans the workspace, enqueuing every file
// the new rules include (files the new rules exclude stay in the index),
// and everything else is a
// plain (re-)enqueue, since indexOne always reads the current on-disk
// content for a path with no open overlay.
func (s *Session) applyWatchEvent(ctx context.Context, ev watcher.FileEvent, opts scanner.Options) {
	if ev.IsDir {
		return
	}
	switch ev.Operation {
	case watcher.OpDelete:
		if err := s.indexer.Delete(ctx, ev.Path); err != nil {
			slog.Warn("failed to remove deleted file from index",
				slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
	case watcher.OpGitignoreChange:
		if s.scanner != nil {
			s.scanner.InvalidateGitignoreCache()
		}
		if err := s.ScanAndEnqueue(ctx, opts); err != nil {
			slog.Warn("gitignore reconciliation scan failed", slog.String("error", err.Error()))
		}
	default:
		s.indexer.Enqueue(ev.Path)
	}
}

// Close drains the indexer queue and releases the session's resources.
func (s *Session) Close() error {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.watch != nil {
		_ = s.watch.Stop()
	}
	s.indexer.Stop()
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil {
			return fmt.Errorf("closing query metrics: %w", err)
		}
	}
	if s.records != nil {
		if err := s.records.Close(); err != nil {
			return fmt.Errorf("closing file records: %w", err)
		}
	}
	return s.store.Close()
}

// Progress exposes the indexer's progress counters, used by cmd/langindexd's
// index command to drive a ui.Renderer and by the "status" operation.
func (s *Session) Progress() *indexer.Progress {
	return s.indexer.Progress()
}

// Dispatch routes one decoded protocol request to the indexer (for
// lifecycle notifications) or the query engine (for read operations),
// returning a result suitable for protocol.NewSuccessResponse.
func (s *Session) Dispatch(ctx context.Context, req protocol.Request) (any, error) {
	switch req.Method {
	case protocol.MethodOpened:
		p, err := decode[protocol.TextDocumentParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.TextDocumentParams(p); err != nil {
			return nil, err
		}
		s.indexer.Opened(p.Path, p.Text)
		return nil, nil

	case protocol.MethodChanged:
		p, err := decode[protocol.TextDocumentParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.TextDocumentParams(p); err != nil {
			return nil, err
		}
		s.indexer.Changed(p.Path, p.Text)
		return nil, nil

	case protocol.MethodSaved:
		p, err := decode[protocol.PathParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.PathParams(p); err != nil {
			return nil, err
		}
		s.indexer.Saved(p.Path)
		return nil, nil

	case protocol.MethodClosed:
		p, err := decode[protocol.PathParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.PathParams(p); err != nil {
			return nil, err
		}
		s.indexer.Closed(p.Path)
		return nil, nil

	case protocol.MethodDefinition:
		p, err := decode[protocol.PositionParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.PositionParams(p); err != nil {
			return nil, err
		}
		start := time.Now()
		occs, err := s.engine.Definition(ctx, p.Path, occurrence.Position{Line: p.Line, Column: p.Column})
		s.record(telemetry.OperationDefinition, p.Path, len(occs), start)
		return occs, err

	case protocol.MethodReferences:
		p, err := decode[protocol.PositionParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.PositionParams(p); err != nil {
			return nil, err
		}
		start := time.Now()
		occs, err := s.engine.References(ctx, p.Path, occurrence.Position{Line: p.Line, Column: p.Column})
		s.record(telemetry.OperationReferences, p.Path, len(occs), start)
		return occs, err

	case protocol.MethodHighlights:
		p, err := decode[protocol.PositionParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.PositionParams(p); err != nil {
			return nil, err
		}
		start := time.Now()
		occs, err := s.engine.Highlights(ctx, p.Path, occurrence.Position{Line: p.Line, Column: p.Column})
		s.record(telemetry.OperationHighlights, p.Path, len(occs), start)
		return occs, err

	case protocol.MethodRename:
		p, err := decode[protocol.RenameParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.RenameParams(p); err != nil {
			return nil, err
		}
		start := time.Now()
		edits, err := s.engine.Rename(ctx, p.Path, occurrence.Position{Line: p.Line, Column: p.Column}, p.NewName)
		s.record(telemetry.OperationRename, p.Path, len(edits), start)
		return edits, err

	case protocol.MethodWorkspaceSymbol:
		p, err := decode[protocol.WorkspaceSymbolParams](req.Params)
		if err != nil {
			return nil, err
		}
		if err := validation.WorkspaceSymbolParams(p); err != nil {
			return nil, err
		}
		start := time.Now()
		occs, err := s.engine.WorkspaceSymbolSearch(ctx, p.Query)
		s.record(telemetry.OperationWorkspaceSymbol, p.Query, len(occs), start)
		return occs, err

	case protocol.MethodStatus:
		return s.status(), nil

	default:
		return nil, indexerrors.New(indexerrors.ErrCodeUnknownMethod,
			fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

// Status summarizes the session's indexing progress and query telemetry
// for the `status` operation.
type Status struct {
	RootPath string                          `json:"rootPath"`
	Progress indexer.Snapshot                `json:"progress"`
	Metrics  *telemetry.QueryMetricsSnapshot `json:"metrics,omitempty"`
}

func (s *Session) status() Status {
	st := Status{RootPath: s.RootPath, Progress: s.indexer.Progress().Snapshot()}
	if s.metrics != nil {
		st.Metrics = s.metrics.Snapshot()
	}
	return st
}

// decode round-trips req.Params (decoded by encoding/json into a
// generic map) through JSON once more into a concrete params type,
// reporting malformed params as a protocol-layer error.
func decode[T any](params any) (T, error) {
	var out T
	if params == nil {
		return out, indexerrors.New(indexerrors.ErrCodeMalformedMessage, "missing params", nil)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return out, indexerrors.Wrap(indexerrors.ErrCodeMalformedMessage, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, indexerrors.Wrap(indexerrors.ErrCodeMalformedMessage, err)
	}
	return out, nil
}
