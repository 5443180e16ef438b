package indexer

import (
	"sync"
	"time"
)

// Stage is the current phase of the indexer's work, surfaced so the
// outer protocol layer can report a "busy" signal.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageScanning  Stage = "scanning"
	StageDepsScan  Stage = "dependency_scan"
	StageIndexing  Stage = "indexing"
)

// Snapshot is an immutable view of indexing progress at one instant.
type Snapshot struct {
	Stage          Stage   `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ParseErrors    int     `json:"parse_errors"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}

// Progress provides thread-safe tracking of indexing progress across
// the worker pool.
type Progress struct {
	mu sync.RWMutex

	stage          Stage
	filesTotal     int
	filesProcessed int
	parseErrors    int
	startTime      time.Time
}

// NewProgress creates a Progress tracker starting in StageIdle.
func NewProgress() *Progress {
	return &Progress{stage: StageIdle, startTime: time.Now()}
}

// SetStage updates the current stage and the total file count known
// so far (the scanner discovers the total incrementally, so this is
// called repeatedly during the initial scan rather than once).
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.filesTotal = total
}

// IncrementProcessed records that one more file finished indexing
// (successfully or not).
func (p *Progress) IncrementProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filesProcessed++
}

// IncrementParseErrors records one more parse failure for diagnostic
// surfacing.
func (p *Progress) IncrementParseErrors() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parseErrors++
}

// Busy reports whether the indexer still has known work outstanding.
func (p *Progress) Busy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filesProcessed < p.filesTotal
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	return Snapshot{
		Stage:          p.stage,
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		ParseErrors:    p.parseErrors,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
	}
}
