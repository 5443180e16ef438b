package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ralts/langindex/internal/occurrence"
)

func rng(sl, sc, el, ec int) occurrence.Range {
	return occurrence.Range{
		Start: occurrence.Position{Line: sl, Column: sc},
		End:   occurrence.Position{Line: el, Column: ec},
	}
}

func TestNodeChildrenAggregatesAllFields(t *testing.T) {
	target := &Node{Kind: KindIdentifier, Name: "x"}
	value := &Node{Kind: KindLiteral}
	n := &Node{Kind: KindAssignment, Target: target, Value: value}

	assert.Equal(t, []*Node{target, value}, n.Children())
}

func TestDeepestAtFindsInnermostNode(t *testing.T) {
	call := &Node{Kind: KindMethodCall, Name: "bar", Range: rng(1, 5, 1, 8)}
	method := &Node{Kind: KindMethodDef, Name: "bar", Range: rng(0, 0, 3, 3), Body: []*Node{call}}
	class := &Node{Kind: KindClass, Name: "Foo", Range: rng(0, 0, 4, 3), Body: []*Node{method}}

	found := DeepestAt(class, occurrence.Position{Line: 1, Column: 6})
	require.NotNil(t, found)
	assert.Same(t, call, found)
}

func TestDeepestAtOutsideRangeReturnsNil(t *testing.T) {
	class := &Node{Kind: KindClass, Range: rng(0, 0, 2, 0)}
	assert.Nil(t, DeepestAt(class, occurrence.Position{Line: 10, Column: 0}))
}

func TestNodeContainsHalfOpenRange(t *testing.T) {
	n := &Node{Range: rng(0, 2, 0, 5)}
	assert.True(t, n.Contains(occurrence.Position{Line: 0, Column: 2}))
	assert.True(t, n.Contains(occurrence.Position{Line: 0, Column: 4}))
	assert.False(t, n.Contains(occurrence.Position{Line: 0, Column: 5}))
	assert.False(t, n.Contains(occurrence.Position{Line: 0, Column: 1}))
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	leaf1 := &Node{Kind: KindLiteral, Name: "leaf1"}
	leaf2 := &Node{Kind: KindLiteral, Name: "leaf2"}
	root := &Node{Kind: KindProgram, Body: []*Node{leaf1, leaf2}}

	var visited []string
	root.Walk(func(n *Node) bool {
		visited = append(visited, string(n.Kind)+":"+n.Name)
		return true
	})

	assert.Equal(t, []string{"program:", "literal:leaf1", "literal:leaf2"}, visited)
}

func TestWalkPrunesSubtreeWhenFnReturnsFalse(t *testing.T) {
	leaf := &Node{Kind: KindLiteral, Name: "leaf"}
	inner := &Node{Kind: KindBlock, Body: []*Node{leaf}}
	root := &Node{Kind: KindProgram, Body: []*Node{inner}}

	var visited []Kind
	root.Walk(func(n *Node) bool {
		visited = append(visited, n.Kind)
		return n.Kind != KindBlock
	})

	assert.Equal(t, []Kind{KindProgram, KindBlock}, visited)
}
