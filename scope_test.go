package jsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/jsc/wasm"
)

func TestScopePairing(tb *testing.T) {
	s := newScope("f")

	a := s.Pair(wasm.F64, "a")
	b := s.Pair(wasm.F64, "b")

	at, ok := s.Lookup("a#type")
	require.True(tb, ok)
	bt, ok := s.Lookup("b#type")
	require.True(tb, ok)

	assert.Equal(tb, a.Idx+1, at.Idx)
	assert.Equal(tb, b.Idx+1, bt.Idx)
	assert.Equal(tb, wasm.Type(wasm.I32), at.Type)

	tb.Run("Memoized", func(tb *testing.T) {
		assert.Same(tb, a, s.Pair(wasm.F64, "a"))
		assert.Equal(tb, 4, s.LocalInd)
	})

	tb.Run("SlotMemoized", func(tb *testing.T) {
		t1 := s.Slot(wasm.I32, "#typeswitch_tmp")
		t2 := s.Slot(wasm.I32, "#typeswitch_tmp")

		assert.Same(tb, t1, t2)
		assert.Equal(tb, 5, s.LocalInd)
	})

	tb.Run("TypesOrdered", func(tb *testing.T) {
		assert.Equal(tb, []wasm.Type{wasm.F64, wasm.I32, wasm.F64, wasm.I32, wasm.I32}, s.Types)
	})
}

func TestLookupName(tb *testing.T) {
	c, err := New(Options{})
	require.NoError(tb, err)

	f := c.newFunc("f")

	g := c.Globals.Pair(c.valtype, "g")
	l := f.Scope.Pair(c.valtype, "l")

	b, global, ok := c.lookupName(f, "l")
	require.True(tb, ok)
	assert.False(tb, global)
	assert.Same(tb, l, b)

	b, global, ok = c.lookupName(f, "g")
	require.True(tb, ok)
	assert.True(tb, global)
	assert.Same(tb, g, b)

	// locals shadow globals
	c.Globals.Pair(c.valtype, "x")
	lx := f.Scope.Pair(c.valtype, "x")

	b, global, ok = c.lookupName(f, "x")
	require.True(tb, ok)
	assert.False(tb, global)
	assert.Same(tb, lx, b)

	_, _, ok = c.lookupName(f, "missing")
	assert.False(tb, ok)
}
