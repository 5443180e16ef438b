// Package ast defines the tree-shaped value the document builder
// consumes. The real source parser lives outside this module as an
// external collaborator; this package only fixes the node-kind
// vocabulary the parser and the builder agree on.
//
// The shape is deliberately flat and generic, closer to a tree-sitter
// wrapper's Node/Point types than to a language-specific grammar, so
// any parser that can classify source into these buckets can feed the
// builder.
package ast

import "github.com/ralts/langindex/internal/occurrence"

// Kind enumerates the node shapes the document builder's emission
// rules are defined over.
type Kind string

const (
	KindProgram            Kind = "program"
	KindClass              Kind = "class"
	KindModule             Kind = "module"
	KindMethodDef          Kind = "method_def"
	KindSingletonMethodDef Kind = "singleton_method_def"
	KindAssignment         Kind = "assignment"
	KindMultipleAssignment Kind = "multiple_assignment"
	KindIdentifier         Kind = "identifier"
	KindMethodCall         Kind = "method_call"
	KindConstant           Kind = "constant"
	KindInstanceVar        Kind = "instance_var"
	KindClassVar           Kind = "class_var"
	KindGlobalVar          Kind = "global_var"
	KindSymbolLiteral      Kind = "symbol_literal"
	KindBlock              Kind = "block"
	KindParam              Kind = "param"
	KindKeywordParam       Kind = "keyword_param"
	KindBlockParam         Kind = "block_param"
	KindLiteral            Kind = "literal"
)

// Node is one node of the parsed tree. Not every field is meaningful
// for every Kind; the document builder's switch over Kind knows which
// fields to read. Unused fields are left zero.
type Node struct {
	Kind Kind

	// Name is the identifier text for nodes that carry one: class/module
	// name, method name, variable/constant name, symbol-literal text.
	Name string

	// Range covers the whole node; NameRange covers just the identifier
	// substring, used to resolve "what's under the cursor" queries
	// precisely even when Range spans a multi-line construct.
	Range     occurrence.Range
	NameRange occurrence.Range

	// Receiver is the `recv` in `recv.name(args)`; nil for a bare call.
	Receiver *Node

	// Target is the left-hand side of a simple Assignment; Targets holds
	// the left-to-right destructured targets of a MultipleAssignment.
	Target  *Node
	Targets []*Node

	// Value is the right-hand side of an Assignment. The RHS must be
	// walked before the LHS is recorded as a definition.
	Value *Node

	// Params holds MethodDef/SingletonMethodDef/Block parameter nodes
	// (Param, KeywordParam, or BlockParam).
	Params []*Node

	// Args holds MethodCall argument expressions.
	Args []*Node

	// Block is the block literal attached to a MethodCall, if any
	// (`recv.each { |x| ... }`). Nil for a call with no block.
	Block *Node

	// Body holds the statement list of a Program/Class/Module/MethodDef/Block.
	Body []*Node
}

// Children returns every direct subnode in source order, regardless of
// which typed field it lives in. The document builder and position
// lookups use this for generic recursive descent instead of switching
// on Kind a second time.
func (n *Node) Children() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	if n.Receiver != nil {
		out = append(out, n.Receiver)
	}
	if n.Target != nil {
		out = append(out, n.Target)
	}
	out = append(out, n.Targets...)
	if n.Value != nil {
		out = append(out, n.Value)
	}
	out = append(out, n.Params...)
	out = append(out, n.Args...)
	if n.Block != nil {
		out = append(out, n.Block)
	}
	out = append(out, n.Body...)
	return out
}

// Walk visits n and every descendant depth-first, in the same order
// Children returns them. fn returning false prunes that subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

// Contains reports whether pos falls within n.Range, using the
// half-open [Start, End) convention ranges are defined with.
func (n *Node) Contains(pos occurrence.Position) bool {
	if n == nil {
		return false
	}
	r := n.Range
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

// DeepestAt returns the most specific (deepest) node covering pos, or
// nil if no node in the tree covers it. Used by the query engine to
// resolve the identifier under the cursor.
func DeepestAt(root *Node, pos occurrence.Position) *Node {
	if root == nil || !root.Contains(pos) {
		return nil
	}
	best := root
	for _, c := range root.Children() {
		if found := DeepestAt(c, pos); found != nil {
			best = found
		}
	}
	return best
}
