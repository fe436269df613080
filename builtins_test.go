package jsc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/jsc/wasm"
)

func TestBuiltinTables(tb *testing.T) {
	c, err := New(Options{})
	require.NoError(tb, err)

	b := c.builtins

	tb.Run("Vars", func(tb *testing.T) {
		v, ok := b.Vars["__Math_PI"]
		require.True(tb, ok)
		assert.Equal(tb, math.Pi, v.Value)
		assert.Equal(tb, TNumber, v.Type)

		v, ok = b.Vars["NaN"]
		require.True(tb, ok)
		assert.True(tb, math.IsNaN(v.Value))
	})

	tb.Run("Funcs", func(tb *testing.T) {
		f, ok := b.Funcs["__Math_sqrt"]
		require.True(tb, ok)
		assert.True(tb, f.FloatOnly)
		assert.Equal(tb, TNumber, f.ReturnType)
	})

	tb.Run("Protos", func(tb *testing.T) {
		_, ok := b.Proto(TArray, "push")
		assert.True(tb, ok)

		_, ok = b.Proto(TString, "push")
		assert.False(tb, ok)

		p, one := b.singleProto("charAt")
		require.True(tb, one)
		assert.Equal(tb, TString, p.ReturnType)
	})

	tb.Run("Constructors", func(tb *testing.T) {
		ct, ok := b.Constructors["Array"]
		require.True(tb, ok)
		assert.Equal(tb, TArray, ct.Type)
	})

	tb.Run("SplitProtoName", func(tb *testing.T) {
		m, ok := splitProtoName("__arr_push")
		require.True(tb, ok)
		assert.Equal(tb, "push", m)

		r, ok := receiverOfProtoName("__arr_push")
		require.True(tb, ok)
		assert.Equal(tb, "arr", r)

		_, ok = splitProtoName("plain")
		assert.False(tb, ok)
	})
}

func TestIncludeBuiltin(tb *testing.T) {
	c, err := New(Options{})
	require.NoError(tb, err)

	f, err := c.includeBuiltin("__Math_sqrt")
	require.NoError(tb, err)
	require.NotNil(tb, f)

	assert.True(tb, f.Internal)
	assert.Equal(tb, importCount, f.Index)

	f2, err := c.includeBuiltin("__Math_sqrt")
	require.NoError(tb, err)
	assert.Same(tb, f, f2)

	f3, err := c.includeBuiltin("not a builtin")
	require.NoError(tb, err)
	assert.Nil(tb, f3)

	tb.Run("FloatOnly", func(tb *testing.T) {
		c, err := New(Options{Valtype: "i32"})
		require.NoError(tb, err)

		_, err = c.includeBuiltin("__Math_sqrt")
		require.Error(tb, err)

		var todoErr TodoError
		assert.ErrorAs(tb, err, &todoErr)
	})
}

func TestGenericOps(tb *testing.T) {
	for _, tc := range []struct {
		valtype string
		add     wasm.Opcode
		size    int
		conv    int
	}{
		{valtype: "f64", add: wasm.F64Add, size: 8, conv: 1},
		{valtype: "i32", add: wasm.I32Add, size: 4, conv: 0},
		{valtype: "i64", add: wasm.I64Add, size: 8, conv: 1},
	} {
		tb.Run(tc.valtype, func(tb *testing.T) {
			c, err := New(Options{Valtype: tc.valtype})
			require.NoError(tb, err)

			assert.Equal(tb, tc.add, c.ops.Add)
			assert.Equal(tb, tc.size, c.ops.Size)
			assert.Len(tb, c.ops.ToI32, tc.conv)
			assert.Len(tb, c.ops.FromI32U, tc.conv)
		})
	}

	_, err := New(Options{Valtype: "f32"})
	assert.ErrorIs(tb, err, ErrValtype)
}
