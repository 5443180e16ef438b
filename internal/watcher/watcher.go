// Package watcher drives the indexer's incremental re-indexing from
// file-system change notifications: a fsnotify-primary,
// polling-fallback Watcher interface, and a Debouncer that coalesces
// successive CREATE/MODIFY/DELETE events (CREATE+MODIFY collapses to
// CREATE, CREATE+DELETE cancels out, MODIFY+DELETE collapses to
// DELETE, DELETE+CREATE collapses to MODIFY) into batches of FileEvents,
// which the session applies to the indexer as deletions or re-enqueues.
package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change a watcher observed.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
	// OpGitignoreChange signals that a .gitignore file changed. The
	// session drops the scanner's cached matchers and re-scans, which
	// picks up newly-unignored files; files already indexed that the new
	// rules exclude are not removed.
	OpGitignoreChange
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed file-system change.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Watcher watches a directory tree recursively and emits debounced,
// coalesced batches of FileEvents.
type Watcher interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Options configures a Watcher.
type Options struct {
	DebounceWindow  time.Duration
	PollInterval    time.Duration
	EventBufferSize int
	IgnorePatterns  []string
}

// DefaultOptions returns this module's default debounce window
// (successive changed events for the same file within a short window
// collapse into one), a 5s polling fallback interval, and a
// 1000-event buffer.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero-valued fields with DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
