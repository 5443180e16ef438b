// Package occurrence defines the atom of the index: one textual
// appearance of an identifier in source, tagged with kind, role, and
// the scope it was found in.
package occurrence

import "fmt"

// Kind classifies what an identifier refers to syntactically.
type Kind string

const (
	KindClass            Kind = "class"
	KindModule           Kind = "module"
	KindMethod           Kind = "method"
	KindSingletonMethod   Kind = "singleton-method"
	KindConstant          Kind = "constant"
	KindLocalAssignment   Kind = "local-assignment"
	KindLocalUse          Kind = "local-use"
	KindInstanceVariable  Kind = "instance-variable"
	KindClassVariable     Kind = "class-variable"
	KindGlobalVariable    Kind = "global-variable"
	KindKeywordArgument   Kind = "keyword-argument"
	KindBlockParameter    Kind = "block-parameter"
	KindMethodParameter   Kind = "method-parameter"
	KindSymbolLiteral     Kind = "symbol-literal"
)

// Role distinguishes where a symbol is defined from where it is merely used.
type Role string

const (
	RoleDefinition Role = "definition"
	RoleUsage      Role = "usage"
)

// Category is a coarse bucket over Kind, precomputed so workspace-symbol
// search can filter without re-deriving it from Kind on every query.
type Category string

const (
	CategoryClass  Category = "class"
	CategoryModule Category = "module"
	CategoryMethod Category = "method"
	CategoryOther  Category = "other"
)

// CategoryFor returns the coarse search bucket for a Kind.
func CategoryFor(k Kind) Category {
	switch k {
	case KindClass:
		return CategoryClass
	case KindModule:
		return CategoryModule
	case KindMethod, KindSingletonMethod:
		return CategoryMethod
	default:
		return CategoryOther
	}
}

// Position is a zero-based line/column pair.
type Position struct {
	Line   int
	Column int
}

// Range is a half-open [Start, End) span of source text.
type Range struct {
	Start Position
	End   Position
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line, r.Start.Column, r.End.Line, r.End.Column)
}

// ScopePath is the ordered sequence of enclosing container names
// (class/module/method) at the position an occurrence was found.
// Callers must treat a returned ScopePath as immutable; Clone it before
// mutating a copy derived from it.
type ScopePath []string

// Clone returns an independently-owned copy of the scope path. The
// document builder clones the scope stack's current snapshot into every
// occurrence it emits so later pushes/pops on the live stack cannot
// retroactively mutate occurrences already produced.
func (s ScopePath) Clone() ScopePath {
	if len(s) == 0 {
		return nil
	}
	out := make(ScopePath, len(s))
	copy(out, s)
	return out
}

// Join renders the scope path as a dotted string, e.g. "Outer.Inner.method_name".
func (s ScopePath) Join() string {
	out := ""
	for i, part := range s {
		if i > 0 {
			out += "."
		}
		out += part
	}
	return out
}

// CommonPrefixLen returns the length of the longest common prefix shared
// by two scope paths, used by the query engine's scope-proximity ranking.
func CommonPrefixLen(a, b ScopePath) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// ID uniquely identifies one Occurrence within a token store. IDs are
// opaque and never reused across a replace_document call for the file
// that produced them.
type ID string

// Occurrence is one textual appearance of an identifier in source.
type Occurrence struct {
	ID        ID
	Name      string
	Kind      Kind
	Role      Role
	Category  Category
	File      string
	Range     Range
	ScopePath ScopePath
}

// NewOccurrence builds an Occurrence, deriving Category from Kind so
// callers never need to keep the two in sync by hand.
func NewOccurrence(name string, kind Kind, role Role, file string, rng Range, scope ScopePath) Occurrence {
	return Occurrence{
		Name:      name,
		Kind:      kind,
		Role:      role,
		Category:  CategoryFor(kind),
		File:      file,
		Range:     rng,
		ScopePath: scope.Clone(),
	}
}
