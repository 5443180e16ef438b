package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ralts/langindex/internal/config"
	"github.com/ralts/langindex/internal/filerecord"
	"github.com/ralts/langindex/internal/indexer"
	"github.com/ralts/langindex/internal/refparser"
	"github.com/ralts/langindex/internal/scanner"
	"github.com/ralts/langindex/internal/session"
	"github.com/ralts/langindex/internal/telemetry"
	"github.com/ralts/langindex/internal/tokenstore"
)

// dataDirName is the per-workspace directory langindexd keeps its
// on-disk state under.
const dataDirName = ".langindex"

func dataDir(root string) string {
	return filepath.Join(root, dataDirName)
}

func tokenStorePath(root string) string {
	return filepath.Join(dataDir(root), "tokens")
}

func recordsPath(root string) string {
	return filepath.Join(dataDir(root), "records.db")
}

// openSession constructs a Session for root using cfg's store
// allocation and worker pool size, wiring in the default parser.
// Metrics are always collected in memory so `status` can report query
// counts; nothing is persisted for them (see DESIGN.md).
func openSession(ctx context.Context, root string, cfg *config.Config) (*session.Session, error) {
	storeCfg := tokenstore.Config{Allocation: cfg.Store.Allocation}
	recPath := ""
	if cfg.Store.Allocation == tokenstore.AllocationDisk {
		storeCfg.Path = tokenStorePath(root)
		recPath = recordsPath(root)
	}

	store, err := tokenstore.Open(storeCfg)
	if err != nil {
		return nil, err
	}

	records, err := filerecord.Open(recPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sess := session.New(ctx, session.Config{
		RootPath: root,
		Store:    store,
		Records:  records,
		Source:   indexer.NewDiskSource(root),
		Parser:   refparser.New(),
		Options:  indexer.Options{Workers: cfg.Index.Workers},
		Metrics:  telemetry.NewQueryMetrics(nil),
	})
	return sess, nil
}

// tokenstoreAllocation normalizes a user-supplied allocation string,
// falling back to RAM for anything other than an explicit "disk".
func tokenstoreAllocation(s string) tokenstore.AllocationType {
	if strings.EqualFold(s, string(tokenstore.AllocationDisk)) {
		return tokenstore.AllocationDisk
	}
	return tokenstore.AllocationRAM
}

// scanOptionsFor builds the scanner options for root's initial scan
// from its configuration.
func scanOptionsFor(root string, cfg *config.Config) scanner.Options {
	return scanner.Options{
		RootDir:          root,
		IncludeGlobs:     cfg.Paths.Include,
		ExcludeGlobs:     cfg.Paths.Exclude,
		RespectGitignore: true,
	}
}
