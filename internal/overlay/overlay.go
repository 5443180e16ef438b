// Package overlay holds in-memory editor buffer text that shadows the
// copy on disk. A session consults the overlay before
// falling back to disk so queries and re-indexing see unsaved edits.
package overlay

import "sync"

// Overlay is a concurrency-safe map from workspace-relative path to the
// editor's current in-memory text for that file.
type Overlay struct {
	mu      sync.RWMutex
	buffers map[string]string
}

// New returns an empty Overlay.
func New() *Overlay {
	return &Overlay{buffers: make(map[string]string)}
}

// Open records the editor's initial buffer text for path (sent on an
// "opened" notification).
func (o *Overlay) Open(path, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffers[path] = text
}

// Change replaces the buffer text for path (sent on a "changed"
// notification). The protocol layer is responsible for resolving any
// incremental edit deltas into a full-text replacement before calling
// Change; Overlay itself only ever stores whole-file snapshots.
func (o *Overlay) Change(path, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffers[path] = text
}

// Close discards the in-memory buffer for path (sent on a "closed"
// notification); subsequent reads fall back to disk.
func (o *Overlay) Close(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.buffers, path)
}

// Get returns the overlay text for path and whether one is present.
func (o *Overlay) Get(path string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	text, ok := o.buffers[path]
	return text, ok
}

// IsOpen reports whether path has an active overlay buffer.
func (o *Overlay) IsOpen(path string) bool {
	_, ok := o.Get(path)
	return ok
}

// Paths returns every path with an open overlay buffer.
func (o *Overlay) Paths() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.buffers))
	for p := range o.buffers {
		out = append(out, p)
	}
	return out
}
