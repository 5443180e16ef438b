// Package query implements the user-visible lookup operations:
// Definition, References, Highlights, Rename, and Workspace Symbol
// Search. Result ranking follows a same-source-preference, then-
// proximity, then-stable-tie-break approach applied to scope-proximity
// over occurrence scope paths rather than content similarity.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ralts/langindex/internal/ast"
	"github.com/ralts/langindex/internal/docbuilder"
	indexerrors "github.com/ralts/langindex/internal/errors"
	"github.com/ralts/langindex/internal/indexer"
	"github.com/ralts/langindex/internal/occurrence"
	"github.com/ralts/langindex/internal/overlay"
	"github.com/ralts/langindex/internal/tokenstore"
)

// astCacheSize bounds the re-parsed-AST cache so repeatedly querying a
// large workspace doesn't hold every file's tree in memory at once.
const astCacheSize = 256

// workspaceSymbolLimit is the result cap for the fuzzy query backing
// Workspace Symbol Search.
const workspaceSymbolLimit = 100

// Edit is a single (range, replacement) pair produced by Rename. The
// engine never applies edits; the editor does.
type Edit struct {
	Range   occurrence.Range
	NewName string
}

// Engine answers the lookup operations against a token store,
// re-parsing buffer-overlay (or on-disk) text as needed.
type Engine struct {
	store   *tokenstore.Store
	overlay *overlay.Overlay
	source  indexer.FileSource
	parser  indexer.Parser
	builder *docbuilder.Builder

	cache *lru.Cache[string, *parsedFile]
}

// parsedFile is the cached result of parsing and building occurrences
// for one file's current content, keyed by content hash so an
// unmodified file is never re-parsed twice.
type parsedFile struct {
	root *ast.Node
	occs []occurrence.Occurrence
}

// New creates an Engine. source is consulted for files with no open
// overlay buffer.
func New(store *tokenstore.Store, ov *overlay.Overlay, source indexer.FileSource, parser indexer.Parser) *Engine {
	cache, _ := lru.New[string, *parsedFile](astCacheSize)
	return &Engine{
		store:   store,
		overlay: ov,
		source:  source,
		parser:  parser,
		builder: docbuilder.New(),
		cache:   cache,
	}
}

func (e *Engine) resolve(path string) (*parsedFile, error) {
	var src []byte
	if text, ok := e.overlay.Get(path); ok {
		src = []byte(text)
	} else {
		if e.source == nil {
			return nil, indexerrors.New(indexerrors.ErrCodeFileNotFound, "no file source configured", nil).WithDetail("path", path)
		}
		b, err := e.source.Read(path)
		if err != nil {
			return nil, indexerrors.Wrap(indexerrors.ErrCodeFileNotFound, err).WithDetail("path", path)
		}
		src = b
	}

	sum := sha256.Sum256(src)
	key := path + "#" + hex.EncodeToString(sum[:])
	if pf, ok := e.cache.Get(key); ok {
		return pf, nil
	}

	root, err := e.parser.Parse(path, src)
	if err != nil {
		return nil, indexerrors.New(indexerrors.ErrCodeParseFailed, "parse failed", err).WithDetail("path", path)
	}
	pf := &parsedFile{root: root, occs: e.builder.Build(path, root)}
	e.cache.Add(key, pf)
	return pf, nil
}

// occurrenceAt returns the occurrence whose range covers pos, i.e. the
// identifier under the cursor. Ranges the builder
// emits for a single file never overlap, so the first match is the
// only match.
func occurrenceAt(occs []occurrence.Occurrence, pos occurrence.Position) (occurrence.Occurrence, bool) {
	for _, occ := range occs {
		if rangeContains(occ.Range, pos) {
			return occ, true
		}
	}
	return occurrence.Occurrence{}, false
}

func rangeContains(r occurrence.Range, pos occurrence.Position) bool {
	if pos.Line < r.Start.Line || pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Column < r.Start.Column {
		return false
	}
	if pos.Line == r.End.Line && pos.Column >= r.End.Column {
		return false
	}
	return true
}

// isLocalKind reports whether kind is one of the "local" kinds that
// must be resolved by an in-file linear scan instead of a store query.
func isLocalKind(k occurrence.Kind) bool {
	switch k {
	case occurrence.KindLocalAssignment, occurrence.KindLocalUse,
		occurrence.KindMethodParameter, occurrence.KindKeywordArgument, occurrence.KindBlockParameter:
		return true
	default:
		return false
	}
}

// compatibleKinds returns the store Kinds a syntactic role is allowed
// to resolve to.
func compatibleKinds(k occurrence.Kind) []occurrence.Kind {
	switch k {
	case occurrence.KindMethod, occurrence.KindSingletonMethod:
		return []occurrence.Kind{occurrence.KindMethod, occurrence.KindSingletonMethod}
	default:
		return []occurrence.Kind{k}
	}
}

func kindAllowed(kinds []occurrence.Kind, k occurrence.Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Definition resolves the identifier at (file, pos) to its ranked
// definition sites.
func (e *Engine) Definition(ctx context.Context, file string, pos occurrence.Position) ([]occurrence.Occurrence, error) {
	pf, err := e.resolve(file)
	if err != nil {
		return nil, err
	}
	occ, ok := occurrenceAt(pf.occs, pos)
	if !ok {
		return nil, nil
	}

	if isLocalKind(occ.Kind) {
		return resolveLocal(pf.occs, occ), nil
	}

	candidates, err := e.store.QueryExact(ctx, occ.Name)
	if err != nil {
		return nil, err
	}

	allowed := compatibleKinds(occ.Kind)
	defs := make([]occurrence.Occurrence, 0, len(candidates))
	for _, c := range candidates {
		if c.Role == occurrence.RoleDefinition && kindAllowed(allowed, c.Kind) {
			defs = append(defs, c)
		}
	}

	rankByProximity(defs, file, occ.ScopePath)
	return defs, nil
}

// resolveLocal resolves locals only within the enclosing method's
// scope by a linear scan: candidate local definitions whose scope path
// is a prefix of (or equal to) the
// clicked occurrence's scope path are returned, never touching the
// store. The prefix comparison (rather than exact equality) matters
// because the builder pushes a method's own name onto the scope stack
// only after emitting its parameters, so a parameter's definition sits
// one level shallower than uses inside the method body.
func resolveLocal(occs []occurrence.Occurrence, target occurrence.Occurrence) []occurrence.Occurrence {
	var out []occurrence.Occurrence
	for _, occ := range occs {
		if occ.Name != target.Name || occ.Role != occurrence.RoleDefinition {
			continue
		}
		switch occ.Kind {
		case occurrence.KindLocalAssignment, occurrence.KindMethodParameter,
			occurrence.KindKeywordArgument, occurrence.KindBlockParameter:
		default:
			continue
		}
		shorter := len(occ.ScopePath)
		if len(target.ScopePath) < shorter {
			shorter = len(target.ScopePath)
		}
		if occurrence.CommonPrefixLen(occ.ScopePath, target.ScopePath) == shorter {
			out = append(out, occ)
		}
	}
	return out
}

// rankByProximity orders candidates: same-file definitions first, then
// longest common scope-path prefix with the caller's scope, then a
// fuzzy joined-scope-path distance, then file path and start line as a
// final deterministic tie-break.
func rankByProximity(candidates []occurrence.Occurrence, callerFile string, callerScope occurrence.ScopePath) {
	callerJoined := callerScope.Join()
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aSame, bSame := a.File == callerFile, b.File == callerFile
		if aSame != bSame {
			return aSame
		}

		aPrefix := occurrence.CommonPrefixLen(a.ScopePath, callerScope)
		bPrefix := occurrence.CommonPrefixLen(b.ScopePath, callerScope)
		if aPrefix != bPrefix {
			return aPrefix > bPrefix
		}

		aDist := levenshtein(a.ScopePath.Join(), callerJoined)
		bDist := levenshtein(b.ScopePath.Join(), callerJoined)
		if aDist != bDist {
			return aDist < bDist
		}

		if a.File != b.File {
			return a.File < b.File
		}
		return a.Range.Start.Line < b.Range.Start.Line
	})
}

// levenshtein returns the edit distance between a and b, used only for
// the scope-path proximity tie-break above. No pack dependency offers
// string edit distance as a standalone utility (tokenstore's fuzzy
// matching is tier-based, not distance-based), so this is a small
// hand-rolled implementation rather than a borrowed one.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	curr := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		curr[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// References returns every usage of the identifier at (file, pos)
// within file.
func (e *Engine) References(ctx context.Context, file string, pos occurrence.Position) ([]occurrence.Occurrence, error) {
	pf, err := e.resolve(file)
	if err != nil {
		return nil, err
	}
	occ, ok := occurrenceAt(pf.occs, pos)
	if !ok {
		return nil, nil
	}

	allowed := compatibleKinds(occ.Kind)
	var refs []occurrence.Occurrence
	for _, c := range pf.occs {
		if c.Name == occ.Name && c.Role == occurrence.RoleUsage && kindAllowed(allowed, c.Kind) {
			refs = append(refs, c)
		}
	}
	sortByPosition(refs)
	return refs, nil
}

// Highlights returns every occurrence of the identifier at (file, pos)
// within file, regardless of definition/usage role.
func (e *Engine) Highlights(ctx context.Context, file string, pos occurrence.Position) ([]occurrence.Occurrence, error) {
	pf, err := e.resolve(file)
	if err != nil {
		return nil, err
	}
	occ, ok := occurrenceAt(pf.occs, pos)
	if !ok {
		return nil, nil
	}

	var hits []occurrence.Occurrence
	for _, c := range pf.occs {
		if c.Name == occ.Name {
			hits = append(hits, c)
		}
	}
	sortByPosition(hits)
	return hits, nil
}

// Rename computes the edit list for renaming the identifier at (file,
// pos) to newName: the union of definition and reference ranges within
// file. It returns no edits, not an error, when
// the position isn't over an identifier.
func (e *Engine) Rename(ctx context.Context, file string, pos occurrence.Position, newName string) ([]Edit, error) {
	hits, err := e.Highlights(ctx, file, pos)
	if err != nil {
		return nil, err
	}
	edits := make([]Edit, len(hits))
	for i, h := range hits {
		edits[i] = Edit{Range: h.Range, NewName: newName}
	}
	return edits, nil
}

// WorkspaceSymbolSearch fuzzy-matches query against every indexed
// class, module, and method definition, capped at workspaceSymbolLimit results.
func (e *Engine) WorkspaceSymbolSearch(ctx context.Context, query string) ([]occurrence.Occurrence, error) {
	if query == "" {
		return nil, indexerrors.New(indexerrors.ErrCodeEmptyQuery, "workspace symbol query must not be empty", nil)
	}

	all, err := e.store.QueryAll(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]occurrence.Occurrence, 0, len(all))
	for _, occ := range all {
		if occ.Role != occurrence.RoleDefinition {
			continue
		}
		switch occ.Category {
		case occurrence.CategoryClass, occurrence.CategoryModule, occurrence.CategoryMethod:
			candidates = append(candidates, occ)
		}
	}

	ranked := tokenstore.RankFuzzy(query, candidates)
	if len(ranked) > workspaceSymbolLimit {
		ranked = ranked[:workspaceSymbolLimit]
	}
	return ranked, nil
}

func sortByPosition(occs []occurrence.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if a.Range.Start.Line != b.Range.Start.Line {
			return a.Range.Start.Line < b.Range.Start.Line
		}
		return a.Range.Start.Column < b.Range.Start.Column
	})
}
