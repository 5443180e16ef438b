// Package indexer schedules (re)indexing of files and directory trees
// against a parser and a token store. Indexer runs a goroutine-backed
// worker pool fed by a coalescing work queue, tracking progress through
// a thread-safe Progress counter; one-shot batches (dependency
// indexing) instead use RunParallel, an errgroup-plus-counting-
// semaphore helper bounding concurrency across a fixed path list.
package indexer

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ralts/langindex/internal/ast"
	"github.com/ralts/langindex/internal/docbuilder"
	indexerrors "github.com/ralts/langindex/internal/errors"
	"github.com/ralts/langindex/internal/filerecord"
	"github.com/ralts/langindex/internal/overlay"
	"github.com/ralts/langindex/internal/tokenstore"
)

// Parser turns a file's bytes into the AST the document builder walks.
// The concrete source-parser is an external collaborator; the
// indexer only depends on this seam so it can be swapped or faked.
type Parser interface {
	Parse(path string, src []byte) (*ast.Node, error)
}

// FileSource resolves a workspace-relative path to its current bytes,
// preferring the buffer overlay over disk.
type FileSource interface {
	Read(path string) ([]byte, error)
}

// highWaterMark and lowWaterMark bound the work queue during the
// initial scan: the enumerator pauses once the
// queue holds highWaterMark entries and resumes once it drains to
// lowWaterMark.
const (
	highWaterMark = 10000
	lowWaterMark  = 2000
)

// minWorkers is the floor on pool size regardless of GOMAXPROCS: sized
// to available cores, minimum 2.
const minWorkers = 2

// commitInterval is how often the worker pool flushes the token store
// so committed writes become visible to queries without waiting for
// the queue to fully drain.
const commitInterval = 500 * time.Millisecond

// Options configures an Indexer.
type Options struct {
	// Workers overrides the worker pool size. Zero selects
	// runtime.NumCPU(), floored at minWorkers.
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	n := runtime.NumCPU()
	if n < minWorkers {
		return minWorkers
	}
	return n
}

// FileStatus records the last outcome of indexing one file, surfaced
// for diagnostic reporting.
type FileStatus struct {
	Err error
}

// Indexer owns the token store handle and drains a coalescing work
// queue of pending paths.
type Indexer struct {
	store    *tokenstore.Store
	records  *filerecord.Store
	overlay  *overlay.Overlay
	parser   Parser
	source   FileSource
	builder  *docbuilder.Builder
	opts     Options

	queue *workQueue

	statusMu sync.RWMutex
	status   map[string]FileStatus

	progress *Progress

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// New creates an Indexer over the given token store, file-record store,
// and buffer overlay. parser is the document builder's AST source.
func New(store *tokenstore.Store, records *filerecord.Store, ov *overlay.Overlay, parser Parser, opts Options) *Indexer {
	return &Indexer{
		store:    store,
		records:  records,
		overlay:  ov,
		parser:   parser,
		builder:  docbuilder.New(),
		opts:     opts,
		queue:    newWorkQueue(),
		status:   make(map[string]FileStatus),
		progress: NewProgress(),
	}
}

// Progress returns the indexer's progress tracker.
func (ix *Indexer) Progress() *Progress {
	return ix.progress
}

// FileStatus returns the last indexing outcome for path, if any.
func (ix *Indexer) FileStatus(path string) (FileStatus, bool) {
	ix.statusMu.RLock()
	defer ix.statusMu.RUnlock()
	st, ok := ix.status[path]
	return st, ok
}

// Start launches the worker pool. Workers run until ctx is cancelled or
// Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.started {
		return
	}
	ix.started = true

	runCtx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel

	n := ix.opts.workers()
	for i := 0; i < n; i++ {
		ix.wg.Add(1)
		go ix.runWorker(runCtx)
	}
}

// Stop cancels the worker pool and waits for every worker to exit.
// Stop drains the queue of in-flight claims but does not wait for the
// queue to become empty; callers that need a quiescence point should
// observe Progress instead.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.started {
		ix.mu.Unlock()
		return
	}
	cancel := ix.cancel
	ix.started = false
	ix.mu.Unlock()

	cancel()
	ix.queue.closeAndDrainWaiters()
	ix.wg.Wait()
}

// Enqueue schedules path for (re)indexing, coalescing with any pending
// entry for the same path.
func (ix *Indexer) Enqueue(path string) {
	ix.queue.push(path)
}

// Opened records that path was opened with text and enqueues it.
func (ix *Indexer) Opened(path, text string) {
	ix.overlay.Open(path, text)
	ix.Enqueue(path)
}

// Changed replaces path's overlay text and enqueues it. Rapid
// successive Changed calls for the same path are naturally debounced
// by the queue's coalescing: only the most recently set overlay text
// is read once a worker claims the entry ( "changed(path,
// text)").
func (ix *Indexer) Changed(path, text string) {
	ix.overlay.Change(path, text)
	ix.Enqueue(path)
}

// Saved clears path's overlay (reconciling with on-disk state) and
// enqueues it once ( "saved(path)").
func (ix *Indexer) Saved(path string) {
	ix.overlay.Close(path)
	ix.Enqueue(path)
}

// Closed clears path's overlay and enqueues it once (
// "closed(path)").
func (ix *Indexer) Closed(path string) {
	ix.overlay.Close(path)
	ix.Enqueue(path)
}

// Delete removes path from the token store and file-record store
// immediately; it is not routed through the work queue since there is
// no content left to re-derive occurrences from.
func (ix *Indexer) Delete(ctx context.Context, path string) error {
	if err := ix.store.DeleteDocument(ctx, path); err != nil {
		return err
	}
	return ix.records.Delete(ctx, path)
}

// EnqueueAll enqueues every path in paths, applying backpressure: once
// the queue holds highWaterMark entries this call blocks new pushes
// until the queue drains to lowWaterMark. Used by the initial scan and
// optional dependency indexing.
func (ix *Indexer) EnqueueAll(ctx context.Context, paths <-chan string) {
	ix.enqueueAllWithStage(ctx, paths, StageScanning)
}

func (ix *Indexer) enqueueAllWithStage(ctx context.Context, paths <-chan string, scanStage Stage) {
	ix.progress.SetStage(scanStage, 0)
	total := 0
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-paths:
			if !ok {
				ix.progress.SetStage(StageIndexing, total)
				return
			}
			ix.queue.pushWithBackpressure(ctx, p, highWaterMark, lowWaterMark)
			total++
			ix.progress.SetStage(scanStage, total)
		}
	}
}

// ScanResult is the subset of scanner.Result the indexer needs to turn
// a workspace walk into enqueued paths. Declared locally rather than
// importing the scanner package so indexer has no dependency on how
// paths are discovered, only on how they're consumed.
type ScanResult struct {
	Path string
	Err  error
}

// EnqueueAllFromScan adapts a channel of scan results into EnqueueAll's
// path channel, logging (rather than enqueueing) any per-entry walk
// error so one unreadable file or directory doesn't abort the scan.
func (ix *Indexer) EnqueueAllFromScan(ctx context.Context, results <-chan ScanResult) {
	paths := make(chan string, 64)
	go func() {
		defer close(paths)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-results:
				if !ok {
					return
				}
				if r.Err != nil {
					slog.Warn("scan error", slog.String("error", r.Err.Error()))
					continue
				}
				select {
				case paths <- r.Path:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	ix.EnqueueAll(ctx, paths)
}

// EnqueueDepsFromScan behaves like EnqueueAllFromScan but marks
// progress as the dependency-scan stage rather than the initial
// workspace scan.
func (ix *Indexer) EnqueueDepsFromScan(ctx context.Context, results <-chan ScanResult) {
	paths := make(chan string, 64)
	go func() {
		defer close(paths)
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-results:
				if !ok {
					return
				}
				if r.Err != nil {
					slog.Warn("dependency scan error", slog.String("error", r.Err.Error()))
					continue
				}
				select {
				case paths <- r.Path:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	ix.enqueueAllWithStage(ctx, paths, StageDepsScan)
}

func (ix *Indexer) runWorker(ctx context.Context) {
	defer ix.wg.Done()

	ticker := time.NewTicker(commitInterval)
	defer ticker.Stop()

	for {
		path, ok := ix.queue.pop(ctx)
		if !ok {
			return
		}
		ix.indexOne(ctx, path)
		ix.queue.done()

		select {
		case <-ticker.C:
			_ = ix.store.Commit()
		default:
		}
	}
}

// indexOne reads path's current content (overlay-first), parses it,
// builds occurrences, and replaces the document. A parse failure
// leaves the prior occurrences in the store untouched — it only records the error for diagnostics.
func (ix *Indexer) indexOne(ctx context.Context, path string) {
	src, contentHash, err := ix.readContent(path)
	if err != nil {
		ix.recordStatus(path, err)
		return
	}

	root, err := ix.parser.Parse(path, src)
	if err != nil {
		ix.progress.IncrementParseErrors()
		ix.recordStatus(path, indexerrors.New(indexerrors.ErrCodeParseFailed, "parse failed", err).WithDetail("path", path))
		return
	}

	occs := ix.builder.Build(path, root)

	occIDs, err := ix.store.ReplaceDocument(ctx, path, occs)
	if err != nil {
		ix.recordStatus(path, err)
		return
	}

	ids := make([]string, len(occIDs))
	for i, id := range occIDs {
		ids[i] = string(id)
	}
	rec := filerecord.Record{
		Path:          path,
		ContentHash:   contentHash,
		ModTime:       time.Now().Unix(),
		OccurrenceIDs: ids,
	}
	if err := ix.records.Put(ctx, rec); err != nil {
		slog.Warn("failed to persist file record", slog.String("path", path), slog.String("error", err.Error()))
	}

	ix.recordStatus(path, nil)
}

func (ix *Indexer) recordStatus(path string, err error) {
	ix.statusMu.Lock()
	ix.status[path] = FileStatus{Err: err}
	ix.statusMu.Unlock()
	if err != nil {
		slog.Warn("indexing failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	ix.progress.IncrementProcessed()
}

func (ix *Indexer) readContent(path string) (src []byte, contentHash string, err error) {
	if text, ok := ix.overlay.Get(path); ok {
		return []byte(text), hashContent([]byte(text)), nil
	}
	if ix.source == nil {
		return nil, "", indexerrors.New(indexerrors.ErrCodeFileNotFound, "no file source configured", nil).WithDetail("path", path)
	}
	b, err := ix.source.Read(path)
	if err != nil {
		return nil, "", indexerrors.Wrap(indexerrors.ErrCodeFileNotFound, err).WithDetail("path", path)
	}
	return b, hashContent(b), nil
}

// SetSource wires the filesystem fallback used by readContent when a
// path has no overlay entry. Kept settable rather than a constructor
// argument so tests can swap in a fake without touching New's call
// sites.
func (ix *Indexer) SetSource(src FileSource) {
	ix.source = src
}

// WaitIdle blocks until the queue has no pending or in-flight entries,
// used by tests and by session shutdown to reach a quiescence point
// before a final Commit.
func (ix *Indexer) WaitIdle(ctx context.Context) error {
	return ix.queue.waitEmpty(ctx)
}

// RunParallel is a small helper for callers (e.g. dependency indexing)
// that want to index a fixed batch of paths synchronously, outside the
// background worker pool, bounded by the same worker count.
func RunParallel(ctx context.Context, paths []string, workers int, fn func(ctx context.Context, path string) error) error {
	if workers <= 0 {
		workers = Options{}.workers()
	}
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, workers)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			return fn(gctx, p)
		})
	}
	return g.Wait()
}
