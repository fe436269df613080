package jsc

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(obj *Node, prop string) *Node {
	return &Node{Type: "MemberExpression", Object: obj, Property: Ident(prop)}
}

func TestObjectHack(tb *testing.T) {
	tb.Run("Simple", func(tb *testing.T) {
		n := member(Ident("Math"), "PI")

		objectHack(n)

		assert.Equal(tb, "Identifier", n.Type)
		assert.Equal(tb, "__Math_PI", n.Name)
		assert.Nil(tb, n.Object)
	})

	tb.Run("Chain", func(tb *testing.T) {
		n := member(member(Ident("a"), "b"), "c")

		objectHack(n)

		assert.Equal(tb, "Identifier", n.Type)
		assert.Equal(tb, "____a_b_c", n.Name)
	})

	tb.Run("LengthKept", func(tb *testing.T) {
		n := member(Ident("a"), "length")

		objectHack(n)

		require.Equal(tb, "MemberExpression", n.Type)
		assert.Equal(tb, "length", n.Property.Name)
	})

	tb.Run("ComputedKept", func(tb *testing.T) {
		n := &Node{Type: "MemberExpression", Object: Ident("a"), Property: NumberLit(0), Computed: true}

		objectHack(n)

		assert.Equal(tb, "MemberExpression", n.Type)
	})

	tb.Run("NonIdentObjectKept", func(tb *testing.T) {
		n := member(StringLit("ab"), "charAt")

		objectHack(n)

		assert.Equal(tb, "MemberExpression", n.Type)
	})

	tb.Run("Idempotent", func(tb *testing.T) {
		n := &Node{Type: "Program", Body: []*Node{
			{Type: "ExpressionStatement", Expression: member(Ident("Math"), "E")},
			{Type: "ExpressionStatement", Expression: member(Ident("a"), "length")},
		}}

		objectHack(n)

		snap := cloneTree(n)

		objectHack(n)

		assert.True(tb, reflect.DeepEqual(snap, n))
	})
}

func cloneTree(n *Node) *Node {
	if n == nil {
		return nil
	}

	cp := *n

	cp.Object = cloneTree(n.Object)
	cp.Property = cloneTree(n.Property)
	cp.Expression = cloneTree(n.Expression)

	cp.Body = nil
	for _, c := range n.Body {
		cp.Body = append(cp.Body, cloneTree(c))
	}

	return &cp
}
