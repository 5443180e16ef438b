// Package tokenstore is the persistent inverted index: it stores one
// Occurrence per entry, supports whole-document replace and delete,
// and answers exact and fuzzy name queries.
//
// It is a Bleve-backed index with index-corruption detection and
// recovery on open, an in-memory-vs-disk split keyed off an empty
// path, and a custom analyzer registration — but its document shape
// and query semantics are its own, not BM25 relevance scoring.
package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/gofrs/flock"

	indexerrors "github.com/ralts/langindex/internal/errors"
	"github.com/ralts/langindex/internal/occurrence"
)

// AllocationType selects where the underlying Bleve index lives.
type AllocationType string

const (
	AllocationDisk AllocationType = "disk"
	AllocationRAM  AllocationType = "ram"
)

// Config configures a Store.
type Config struct {
	// Path is the on-disk index directory. Ignored when Allocation is
	// AllocationRAM.
	Path       string
	Allocation AllocationType
}

// storedDoc is the Bleve document shape for one occurrence.
type storedDoc struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	NameFold  string `json:"name_fold"`
	Kind      string `json:"kind"`
	Role      string `json:"role"`
	Category  string `json:"category"`
	ScopePath string `json:"scope_path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// Store is a single-writer-per-process token store. A process-wide lock file enforces that
// invariant across separate langindexd processes sharing a disk path.
type Store struct {
	mu       sync.RWMutex
	index    bleve.Index
	cfg      Config
	flock    *flock.Flock
	closed   bool
	breaker  *indexerrors.CircuitBreaker
	degraded bool

	// generation tracks how many times each file has been replaced, so
	// IDs minted for a later replace_document call never collide with
	// IDs minted for an earlier one on the same file.
	generation map[string]int
}

// Open creates or opens the store at cfg.Path, or an in-memory store
// when cfg.Allocation is AllocationRAM, detecting a corrupted on-disk
// index and recreating it rather than failing open.
func Open(cfg Config) (*Store, error) {
	mappingImpl := buildMapping()

	s := &Store{
		cfg:        cfg,
		generation: make(map[string]int),
		breaker:    indexerrors.NewCircuitBreaker("tokenstore", indexerrors.WithMaxFailures(1)),
	}

	if cfg.Allocation == AllocationRAM || cfg.Path == "" {
		idx, err := bleve.NewMemOnly(mappingImpl)
		if err != nil {
			return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
		}
		s.index = idx
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeFilePermission, err)
	}

	fl := flock.New(cfg.Path + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	if !locked {
		return nil, indexerrors.New(indexerrors.ErrCodeStoreLocked,
			fmt.Sprintf("token store %s is already open for writing by another process", cfg.Path), nil).
			WithSuggestion("only one langindexd process may write a given index path at a time")
	}
	s.flock = fl

	if err := validateIndexIntegrity(cfg.Path); err != nil {
		slog.Warn("tokenstore index corrupted, recreating",
			slog.String("path", cfg.Path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(cfg.Path); rmErr != nil {
			fl.Unlock()
			return nil, indexerrors.Wrap(indexerrors.ErrCodeCorruptIndex, rmErr)
		}
	}

	idx, err := bleve.Open(cfg.Path)
	switch {
	case err == bleve.ErrorIndexPathDoesNotExist:
		idx, err = bleve.New(cfg.Path, mappingImpl)
	case err != nil && isCorruptionError(err):
		slog.Warn("tokenstore open failed with corruption, recreating",
			slog.String("path", cfg.Path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(cfg.Path); rmErr != nil {
			fl.Unlock()
			return nil, indexerrors.Wrap(indexerrors.ErrCodeCorruptIndex, rmErr)
		}
		idx, err = bleve.New(cfg.Path, mappingImpl)
	}
	if err != nil {
		fl.Unlock()
		return nil, indexerrors.Wrap(indexerrors.ErrCodeCorruptIndex, err)
	}

	s.index = idx
	return s, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = "keyword"
	return im
}

func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") ||
		strings.Contains(s, "error parsing mapping JSON") ||
		strings.Contains(s, "failed to load segment") ||
		strings.Contains(s, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Close releases the underlying index and any disk lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.flock != nil {
		_ = s.flock.Unlock()
	}
	return s.index.Close()
}

// Degraded reports whether the store's circuit breaker has tripped
// after repeated write failures.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

func scopeKey(sp occurrence.ScopePath) string {
	return sp.Join()
}

func docID(file string, generation, seq int) string {
	return file + "#" + strconv.Itoa(generation) + "#" + strconv.Itoa(seq)
}

// ReplaceDocument atomically replaces every occurrence indexed for
// file with occs. On write failure it
// retries once before tripping the circuit breaker and reporting the
// store degraded, per 
func (s *Store) ReplaceDocument(ctx context.Context, file string, occs []occurrence.Occurrence) ([]occurrence.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, indexerrors.New(indexerrors.ErrCodeInternal, "token store is closed", nil)
	}
	if !s.breaker.Allow() {
		return nil, indexerrors.New(indexerrors.ErrCodeStoreDegraded,
			"token store is degraded, write rejected", nil)
	}

	gen := s.generation[file] + 1
	ids := make([]occurrence.ID, len(occs))

	op := func() error {
		existing, err := s.idsForFileLocked(file)
		if err != nil {
			return err
		}

		batch := s.index.NewBatch()
		for _, id := range existing {
			batch.Delete(id)
		}
		for i, occ := range occs {
			id := docID(file, gen, i)
			doc := storedDoc{
				File:      file,
				Name:      occ.Name,
				NameFold:  strings.ToLower(occ.Name),
				Kind:      string(occ.Kind),
				Role:      string(occ.Role),
				Category:  string(occ.Category),
				ScopePath: scopeKey(occ.ScopePath),
				StartLine: occ.Range.Start.Line,
				StartCol:  occ.Range.Start.Column,
				EndLine:   occ.Range.End.Line,
				EndCol:    occ.Range.End.Column,
			}
			if err := batch.Index(id, doc); err != nil {
				return err
			}
			ids[i] = occurrence.ID(id)
		}
		return s.index.Batch(batch)
	}

	cfg := indexerrors.DefaultRetryConfig()
	err := indexerrors.Retry(ctx, cfg, func() error {
		if werr := op(); werr != nil {
			return indexerrors.Wrap(indexerrors.ErrCodeStoreWriteFailed, werr)
		}
		return nil
	})
	if err != nil {
		if s.breaker.RecordFailure() {
			s.degraded = true
			slog.Warn("tokenstore degraded after repeated write failures", slog.String("file", file))
		}
		// gen is only committed to s.generation on success, so a failed
		// write doesn't advance the file's generation counter and a
		// retry reuses the same ids a concurrent reader might have
		// already observed as absent.
		return nil, err
	}
	s.generation[file] = gen
	s.breaker.RecordSuccess()
	s.degraded = false
	return ids, nil
}

// DeleteDocument removes every occurrence indexed for file.
func (s *Store) DeleteDocument(ctx context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return indexerrors.New(indexerrors.ErrCodeInternal, "token store is closed", nil)
	}

	ids, err := s.idsForFileLocked(file)
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeStoreWriteFailed, err)
	}
	if len(ids) == 0 {
		return nil
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := s.index.Batch(batch); err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeStoreWriteFailed, err)
	}
	delete(s.generation, file)
	return nil
}

func (s *Store) idsForFileLocked(file string) ([]string, error) {
	q := bleve.NewTermQuery(file)
	q.SetField("file")
	req := bleve.NewSearchRequest(q)
	req.Fields = nil
	req.Size = 1_000_000
	res, err := s.index.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// Commit is a no-op for the Bleve backend (batches are durable on
// Batch() return) but gives callers an explicit point to call after a
// burst of ReplaceDocument calls, matching the commit operation other
// backends that do buffer writes would need.
func (s *Store) Commit() error {
	return nil
}

// QueryExact returns every occurrence whose Name matches name exactly
//.
func (s *Store) QueryExact(ctx context.Context, name string) ([]occurrence.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, indexerrors.New(indexerrors.ErrCodeInternal, "token store is closed", nil)
	}

	q := bleve.NewTermQuery(name)
	q.SetField("name")
	req := bleve.NewSearchRequest(q)
	req.Size = 100_000
	req.Fields = []string{"*"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	return hitsToOccurrences(res.Hits), nil
}

// QueryAll returns every occurrence in the store, used by
// workspace-symbol search to fuzzy-rank over the full candidate set
//.
func (s *Store) QueryAll(ctx context.Context) ([]occurrence.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, indexerrors.New(indexerrors.ErrCodeInternal, "token store is closed", nil)
	}

	q := bleve.NewMatchAllQuery()
	req := bleve.NewSearchRequest(q)
	docCount, _ := s.index.DocCount()
	req.Size = int(docCount)
	req.Fields = []string{"*"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	return hitsToOccurrences(res.Hits), nil
}

func hitsToOccurrences(hits []*search.DocumentMatch) []occurrence.Occurrence {
	out := make([]occurrence.Occurrence, 0, len(hits))
	for _, h := range hits {
		out = append(out, occFromFields(h.ID, h.Fields))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Range.Start.Line < out[j].Range.Start.Line
	})
	return out
}

func occFromFields(id string, fields map[string]any) occurrence.Occurrence {
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	num := func(k string) int {
		switch v := fields[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		default:
			return 0
		}
	}
	var scope occurrence.ScopePath
	if sp := str("scope_path"); sp != "" {
		scope = strings.Split(sp, ".")
	}
	occ := occurrence.NewOccurrence(
		str("name"),
		occurrence.Kind(str("kind")),
		occurrence.Role(str("role")),
		str("file"),
		occurrence.Range{
			Start: occurrence.Position{Line: num("start_line"), Column: num("start_col")},
			End:   occurrence.Position{Line: num("end_line"), Column: num("end_col")},
		},
		scope,
	)
	occ.ID = occurrence.ID(id)
	return occ
}
