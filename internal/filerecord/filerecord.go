// Package filerecord persists, per indexed file, the content hash and
// modification time the indexer last saw plus the occurrence IDs it
// produced.
//
// It is backed by modernc.org/sqlite's pure-Go driver, WAL mode for
// concurrent readers, a single-writer connection pool, and an
// integrity-check-then-recreate recovery path on open.
package filerecord

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	indexerrors "github.com/ralts/langindex/internal/errors"
)

// Record is the persisted state for one indexed file.
type Record struct {
	Path         string
	ContentHash  string
	ModTime      int64
	OccurrenceIDs []string
}

// Store is a SQLite-backed file-record table.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens the file-record database at path. An empty
// path opens an in-memory database, used by tests and RAM-only
// allocation workspaces.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, indexerrors.Wrap(indexerrors.ErrCodeFilePermission, err)
		}
		if err := validateIntegrity(path); err != nil {
			slog.Warn("filerecord database corrupted, recreating",
				slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, indexerrors.Wrap(indexerrors.ErrCodeCorruptIndex, err)
	}

	return &Store{db: db, path: path}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS file_records (
	path TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	mod_time INTEGER NOT NULL,
	occurrence_ids TEXT NOT NULL
);`

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Put atomically inserts or replaces the record for rec.Path. It is a
// separate write from the token store's ReplaceDocument: the indexer
// calls Put after ReplaceDocument succeeds, and the two writes are not
// committed together, so a failed Put leaves the token store ahead of
// the record.
func (s *Store) Put(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_records (path, content_hash, mod_time, occurrence_ids)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   content_hash = excluded.content_hash,
		   mod_time = excluded.mod_time,
		   occurrence_ids = excluded.occurrence_ids`,
		rec.Path, rec.ContentHash, rec.ModTime, strings.Join(rec.OccurrenceIDs, ","))
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeStoreWriteFailed, err)
	}
	return nil
}

// Get returns the record for path, and whether one exists.
func (s *Store) Get(ctx context.Context, path string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	var ids string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, content_hash, mod_time, occurrence_ids FROM file_records WHERE path = ?`,
		path).Scan(&rec.Path, &rec.ContentHash, &rec.ModTime, &ids)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	if ids != "" {
		rec.OccurrenceIDs = strings.Split(ids, ",")
	}
	return rec, true, nil
}

// Delete removes the record for path.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE path = ?`, path)
	if err != nil {
		return indexerrors.Wrap(indexerrors.ErrCodeStoreWriteFailed, err)
	}
	return nil
}

// NeedsReindex reports whether contentHash differs from the stored hash
// for path. The indexer does not call it: indexOne re-parses every
// dequeued path whatever its stored hash.
func (s *Store) NeedsReindex(ctx context.Context, path, contentHash string) (bool, error) {
	rec, ok, err := s.Get(ctx, path)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return rec.ContentHash != contentHash, nil
}

// AllPaths returns every indexed path, used to detect files removed
// from disk between scans.
func (s *Store) AllPaths(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM file_records`)
	if err != nil {
		return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, indexerrors.Wrap(indexerrors.ErrCodeInternal, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
