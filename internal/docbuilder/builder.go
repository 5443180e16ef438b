// Package docbuilder walks a parsed AST and emits the flat stream of
// typed Occurrences the token store indexes. The walk follows a
// tree-sitter-style symbol walker's recursive-descent-plus-scope-stack
// shape, but the emission rules (push/pop scope, RHS-before-LHS
// assignment order, parameter vs. identifier-use disambiguation) are
// this module's own.
//
// The builder is deliberately free of I/O and deterministic: given the
// same AST it always produces the same ordered occurrence list.
package docbuilder

import (
	"github.com/ralts/langindex/internal/ast"
	"github.com/ralts/langindex/internal/occurrence"
)

// Builder walks an AST and produces Occurrences. It holds no state
// between calls to Build; a single Builder is safe to reuse or share
// across goroutines.
type Builder struct{}

// New returns a Builder.
func New() *Builder {
	return &Builder{}
}

// Build walks root (the AST for file) and returns its occurrences in
// source order.
func (b *Builder) Build(file string, root *ast.Node) []occurrence.Occurrence {
	w := &walker{file: file}
	w.walk(root, false)
	return w.occs
}

// walker carries the mutable scope stack and accumulated occurrences
// for a single Build call. Each emitted occurrence clones the current
// scope-stack snapshot (via occurrence.NewOccurrence), so later
// pushes/pops never retroactively change an occurrence already emitted
//.
type walker struct {
	file  string
	scope occurrence.ScopePath
	occs  []occurrence.Occurrence
}

func (w *walker) push(name string) {
	w.scope = append(w.scope, name)
}

// pop removes the most recently pushed scope entry. Every push in walk
// is paired with exactly one matching pop at the end of that node's
// handling, keeping the scope stack balanced even when the subtree is
// empty.
func (w *walker) pop() {
	w.scope = w.scope[:len(w.scope)-1]
}

func (w *walker) emit(name string, kind occurrence.Kind, role occurrence.Role, rng occurrence.Range) {
	w.occs = append(w.occs, occurrence.NewOccurrence(name, kind, role, w.file, rng, w.scope))
}

// walk visits n. asDefinition is true exactly when n is being visited
// as the left-hand side of an assignment or as a formal parameter —
// the two syntactic positions that produce definitions instead of
// usages for identifier-like nodes.
func (w *walker) walk(n *ast.Node, asDefinition bool) {
	if n == nil {
		return
	}

	switch n.Kind {
	case ast.KindProgram:
		w.walkBody(n.Body)

	case ast.KindClass:
		w.emit(n.Name, occurrence.KindClass, occurrence.RoleDefinition, n.NameRange)
		w.push(n.Name)
		w.walkBody(n.Body)
		w.pop()

	case ast.KindModule:
		w.emit(n.Name, occurrence.KindModule, occurrence.RoleDefinition, n.NameRange)
		w.push(n.Name)
		w.walkBody(n.Body)
		w.pop()

	case ast.KindMethodDef, ast.KindSingletonMethodDef:
		kind := occurrence.KindMethod
		if n.Kind == ast.KindSingletonMethodDef {
			kind = occurrence.KindSingletonMethod
		}
		w.emit(n.Name, kind, occurrence.RoleDefinition, n.NameRange)
		for _, p := range n.Params {
			w.walk(p, true)
		}
		w.push(n.Name)
		w.walkBody(n.Body)
		w.pop()

	case ast.KindParam:
		w.emit(n.Name, occurrence.KindMethodParameter, occurrence.RoleDefinition, n.NameRange)

	case ast.KindKeywordParam:
		w.emit(n.Name, occurrence.KindKeywordArgument, occurrence.RoleDefinition, n.NameRange)

	case ast.KindBlockParam:
		w.emit(n.Name, occurrence.KindBlockParameter, occurrence.RoleDefinition, n.NameRange)

	case ast.KindAssignment:
		// Right-hand side is walked first.
		w.walk(n.Value, false)
		w.walk(n.Target, true)

	case ast.KindMultipleAssignment:
		w.walk(n.Value, false)
		for _, t := range n.Targets {
			w.walk(t, true)
		}

	case ast.KindIdentifier:
		if asDefinition {
			w.emit(n.Name, occurrence.KindLocalAssignment, occurrence.RoleDefinition, n.NameRange)
		} else {
			w.emit(n.Name, occurrence.KindLocalUse, occurrence.RoleUsage, n.NameRange)
		}

	case ast.KindInstanceVar:
		w.emit(n.Name, occurrence.KindInstanceVariable, roleFor(asDefinition), n.NameRange)

	case ast.KindClassVar:
		w.emit(n.Name, occurrence.KindClassVariable, roleFor(asDefinition), n.NameRange)

	case ast.KindGlobalVar:
		w.emit(n.Name, occurrence.KindGlobalVariable, roleFor(asDefinition), n.NameRange)

	case ast.KindConstant:
		w.emit(n.Name, occurrence.KindConstant, roleFor(asDefinition), n.NameRange)

	case ast.KindSymbolLiteral:
		w.emit(n.Name, occurrence.KindSymbolLiteral, occurrence.RoleUsage, n.NameRange)

	case ast.KindMethodCall:
		w.walk(n.Receiver, false)
		w.emit(n.Name, occurrence.KindMethod, occurrence.RoleUsage, n.NameRange)
		for _, a := range n.Args {
			w.walk(a, false)
		}
		w.walk(n.Block, false)

	case ast.KindBlock:
		for _, p := range n.Params {
			w.walk(p, true)
		}
		w.walkBody(n.Body)

	default:
		// Unrecognized node shapes are walked generically so a parser
		// that emits a node kind the table doesn't name yet (literals,
		// control-flow wrappers) still contributes its descendants'
		// occurrences instead of silently truncating the tree.
		for _, c := range n.Children() {
			w.walk(c, false)
		}
	}
}

func (w *walker) walkBody(body []*ast.Node) {
	for _, n := range body {
		w.walk(n, false)
	}
}

func roleFor(asDefinition bool) occurrence.Role {
	if asDefinition {
		return occurrence.RoleDefinition
	}
	return occurrence.RoleUsage
}
