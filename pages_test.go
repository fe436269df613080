package jsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageMap(tb *testing.T) {
	p := newPageMap(0x10000)

	tb.Run("Monotonic", func(tb *testing.T) {
		a := p.Alloc("array: a", "array")
		b := p.Alloc("string: s", "string")
		a2 := p.Alloc("array: a", "array")

		assert.Equal(tb, a, a2)
		assert.NotEqual(tb, a, b)

		assert.True(tb, p.HasArray)
		assert.True(tb, p.HasString)
	})

	tb.Run("NullPageReserved", func(tb *testing.T) {
		assert.Equal(tb, 0, p.Alloc("null", ""))
		assert.NotEqual(tb, 0, p.Ptr("array: a", "array"))
	})

	tb.Run("Unique", func(tb *testing.T) {
		seen := map[int]string{}

		for _, reason := range p.Reasons() {
			ind := p.Alloc(reason, "")

			prev, ok := seen[ind]
			assert.False(tb, ok, "page %v shared by %v and %v", ind, prev, reason)

			seen[ind] = reason
		}
	})

	tb.Run("FreeNotReused", func(tb *testing.T) {
		ind := p.Alloc("array: tmp", "array")
		p.Free("array: tmp")

		assert.False(tb, p.Has("array: tmp"))

		ind2 := p.Alloc("array: tmp2", "array")
		assert.Greater(tb, ind2, ind)
	})

	tb.Run("NoFlagsWhenEmpty", func(tb *testing.T) {
		p := newPageMap(0x10000)

		assert.False(tb, p.HasArray)
		assert.False(tb, p.HasString)
	})
}
