// Package validation checks editor-request parameters before they reach
// the indexer or query engine, turning malformed input (negative
// positions, empty paths, blank rename targets) into the structured
// validation-category errors from internal/errors instead of panics or
// confusing downstream failures.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	indexerrors "github.com/ralts/langindex/internal/errors"
	"github.com/ralts/langindex/internal/protocol"
)

// Path checks that a workspace-relative path is non-empty, not
// absolute, and does not escape the workspace root via "..".
func Path(path string) error {
	if strings.TrimSpace(path) == "" {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath, "path must not be empty", nil)
	}
	if filepath.IsAbs(path) {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q must be workspace-relative", path), nil).
			WithDetail("path", path)
	}
	if strings.Contains(filepath.ToSlash(path), "../") || path == ".." {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q must not escape the workspace root", path), nil).
			WithDetail("path", path)
	}
	return nil
}

// Position checks that a line/column pair is non-negative.
func Position(line, column int) error {
	if line < 0 || column < 0 {
		return indexerrors.New(indexerrors.ErrCodeInvalidPosition,
			fmt.Sprintf("position %d:%d must not be negative", line, column), nil).
			WithDetail("line", fmt.Sprintf("%d", line)).
			WithDetail("column", fmt.Sprintf("%d", column))
	}
	return nil
}

// Query checks that a search query string is non-empty once trimmed.
func Query(query string) error {
	if strings.TrimSpace(query) == "" {
		return indexerrors.New(indexerrors.ErrCodeEmptyQuery, "query must not be empty", nil)
	}
	return nil
}

// Identifier checks that a rename target is non-empty and looks like a
// single Ruby-style identifier rather than a path or expression, since
// the rename operation rewrites every occurrence with this literal
// text.
func Identifier(name string) error {
	if strings.TrimSpace(name) == "" {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath, "new name must not be empty", nil)
	}
	if strings.ContainsAny(name, " \t\n/\\.()[]{}") {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath,
			fmt.Sprintf("new name %q is not a valid identifier", name), nil).
			WithDetail("newName", name)
	}
	return nil
}

// TextDocumentParams validates the opened/changed notification payload.
func TextDocumentParams(p protocol.TextDocumentParams) error {
	return Path(p.Path)
}

// PathParams validates the saved/closed notification payload.
func PathParams(p protocol.PathParams) error {
	return Path(p.Path)
}

// PositionParams validates the definition/references/highlights request
// payload shared by those three read operations.
func PositionParams(p protocol.PositionParams) error {
	if err := Path(p.Path); err != nil {
		return err
	}
	return Position(p.Line, p.Column)
}

// RenameParams validates the rename request payload: a valid position
// plus a valid replacement identifier.
func RenameParams(p protocol.RenameParams) error {
	if err := PositionParams(p.PositionParams); err != nil {
		return err
	}
	return Identifier(p.NewName)
}

// WorkspaceSymbolParams validates the workspaceSymbol request payload.
func WorkspaceSymbolParams(p protocol.WorkspaceSymbolParams) error {
	return Query(p.Query)
}

// InitializeParams validates the initialize handshake payload.
func InitializeParams(p protocol.InitializeParams) error {
	if strings.TrimSpace(p.RootPath) == "" {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath, "rootPath must not be empty", nil)
	}
	if !filepath.IsAbs(p.RootPath) {
		return indexerrors.New(indexerrors.ErrCodeInvalidPath,
			fmt.Sprintf("rootPath %q must be absolute", p.RootPath), nil).
			WithDetail("rootPath", p.RootPath)
	}
	return nil
}
