package jsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/jsc/wasm"
)

func TestCountLeftover(tb *testing.T) {
	c, err := New(Options{})
	require.NoError(tb, err)

	f := c.newFunc("f")

	for _, tc := range []struct {
		name string
		code []wasm.Ins
		want int
	}{
		{name: "Empty", code: nil, want: 0},
		{name: "Const", code: []wasm.Ins{wasm.F64C(1)}, want: 1},
		{name: "Pair", code: []wasm.Ins{wasm.F64C(1), wasm.I(wasm.I32Const, 0)}, want: 2},
		{name: "Binary", code: []wasm.Ins{wasm.F64C(1), wasm.F64C(2), wasm.I(wasm.F64Add)}, want: 1},
		{name: "SetGet", code: []wasm.Ins{wasm.F64C(1), wasm.I(wasm.LocalSet, 0), wasm.I(wasm.LocalGet, 0)}, want: 1},
		{name: "Drop", code: []wasm.Ins{wasm.F64C(1), wasm.I(wasm.Drop)}, want: 0},
		{
			name: "Store",
			code: []wasm.Ins{
				wasm.I(wasm.I32Const, 4),
				wasm.F64C(1),
				wasm.I(wasm.F64Store, 3, 0),
			},
			want: 0,
		},
		{
			name: "MemoryCopy",
			code: []wasm.Ins{
				wasm.I(wasm.I32Const, 0),
				wasm.I(wasm.I32Const, 4),
				wasm.I(wasm.I32Const, 8),
				wasm.I(wasm.MemoryCopy),
			},
			want: 0,
		},
		{
			name: "ResetOnReturn",
			code: []wasm.Ins{wasm.F64C(1), wasm.I(wasm.I32Const, 0), wasm.I(wasm.Ret)},
			want: 0,
		},
		{
			name: "VoidBlockContentsSkipped",
			code: []wasm.Ins{
				wasm.I(wasm.Block, wasm.BlockVoid),
				wasm.F64C(1),
				wasm.I(wasm.Drop),
				wasm.I(wasm.End),
			},
			want: 0,
		},
		{
			name: "ResultBlockCounts",
			code: []wasm.Ins{
				wasm.I(wasm.Block, int64(wasm.I32)),
				wasm.I(wasm.I32Const, 1),
				wasm.I(wasm.End),
			},
			want: 1,
		},
		{
			name: "IfConsumesCondition",
			code: []wasm.Ins{
				wasm.I(wasm.I32Const, 1),
				wasm.I(wasm.If, wasm.BlockVoid),
				wasm.I(wasm.End),
			},
			want: 0,
		},
		{
			name: "Throw",
			code: []wasm.Ins{wasm.I(wasm.I32Const, 0), wasm.I(wasm.Throw, 0)},
			want: 0,
		},
		{
			name: "ImportedCall",
			code: []wasm.Ins{wasm.F64C(1), wasm.I(wasm.Call, ImportPrint)},
			want: 0,
		},
	} {
		tb.Run(tc.name, func(tb *testing.T) {
			assert.Equal(tb, tc.want, c.countLeftover(f, tc.code))
		})
	}

	tb.Run("CallEffect", func(tb *testing.T) {
		callee := c.newFunc("callee")
		callee.Params = []wasm.Type{c.valtype, wasm.I32}
		c.push(callee)

		code := []wasm.Ins{
			wasm.F64C(1),
			wasm.I(wasm.I32Const, 0),
			wasm.I(wasm.Call, int64(callee.Index)),
		}

		// two args consumed, a pair returned
		assert.Equal(tb, 2, c.countLeftover(f, code))
	})
}

func TestPruneStringOnly(tb *testing.T) {
	code := []wasm.Ins{
		wasm.F64C(1),
		{Op: wasm.Nop, Note: NoteStringOnlyStart},
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.Drop),
		{Op: wasm.Nop, Note: NoteStringOnlyEnd},
		wasm.F64C(3),
		{Op: wasm.I32Const, Arg: []int64{4}, Note: NoteStringOnly},
	}

	got := PruneStringOnly(code)

	assert.Equal(tb, []wasm.Ins{wasm.F64C(1), wasm.F64C(3)}, got)
}
