package jsc_test

import (
	"encoding/binary"
	"reflect"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/jsc"
	"nikand.dev/go/jsc/esparse"
	"nikand.dev/go/jsc/wasm"
)

func compile(tb *testing.T, src string, opts jsc.Options) *jsc.Compilation {
	tb.Helper()

	prog, err := esparse.Parse(src)
	require.NoError(tb, err)

	c, err := jsc.New(opts)
	require.NoError(tb, err)

	c.RegisterParser(esparse.Parse)

	err = c.Compile(prog)
	require.NoError(tb, err)

	return c
}

func findFunc(c *jsc.Compilation, name string) *jsc.Func {
	for _, f := range c.Funcs {
		if f.Name == name {
			return f
		}
	}

	return nil
}

// dataAt decodes the 16-bit units of the string page at ptr out of
// the data section.
func dataAt(c *jsc.Compilation, ptr int) (string, bool) {
	for _, d := range c.Data {
		if d.Offset != ptr {
			continue
		}

		l := binary.LittleEndian.Uint32(d.Bytes)
		units := make([]uint16, l)

		for i := range units {
			units[i] = binary.LittleEndian.Uint16(d.Bytes[4+2*i:])
		}

		return string(utf16.Decode(units)), true
	}

	return "", false
}

func hasDataString(c *jsc.Compilation, s string) bool {
	for _, d := range c.Data {
		if got, ok := dataAt(c, d.Offset); ok && got == s {
			return true
		}
	}

	return false
}

func hasOp(code []wasm.Ins, op wasm.Opcode) bool {
	for _, ins := range code {
		if ins.Op == op {
			return true
		}
	}

	return false
}

func TestEmptyProgram(tb *testing.T) {
	c := compile(tb, "", jsc.Options{})

	require.Len(tb, c.Funcs, 1)

	main := c.Funcs[0]
	assert.Equal(tb, "main", main.Name)
	assert.True(tb, main.Export)
	assert.Equal(tb, []wasm.Type{wasm.F64, wasm.I32}, main.Returns)

	// implicit return of the undefined pair
	require.Len(tb, main.Wasm, 3)
	assert.Equal(tb, wasm.Opcode(wasm.F64Const), main.Wasm[0].Op)
	assert.EqualValues(tb, jsc.TUndefined, main.Wasm[1].Arg[0])
	assert.Equal(tb, wasm.Opcode(wasm.Ret), main.Wasm[2].Op)
}

func TestExportedAdd(tb *testing.T) {
	c := compile(tb, "export function add(a, b) { return a + b }", jsc.Options{})

	add := findFunc(c, "add")
	require.NotNil(tb, add)

	assert.True(tb, add.Export)
	assert.Equal(tb, []wasm.Type{wasm.F64, wasm.I32, wasm.F64, wasm.I32}, add.Params)
	assert.Equal(tb, []wasm.Type{wasm.F64, wasm.I32}, add.Returns)
	assert.True(tb, hasOp(add.Wasm, wasm.F64Add))

	assert.Contains(tb, []int{0, 2}, c.CountLeftover(add))
}

func TestStringConcat(tb *testing.T) {
	c := compile(tb, `let s = "ab"; s += "cd"; s.length`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	// both literals land in the data section
	assert.True(tb, hasDataString(c, "ab"))
	assert.True(tb, hasDataString(c, "cd"))

	// += reuses a page keyed by the target name
	assert.True(tb, c.Pages.Has("string: s"))
	assert.True(tb, c.Pages.HasString)

	// concat copies both buffers
	assert.True(tb, hasOp(main.Wasm, wasm.MemoryCopy))

	// paired slots for the global
	s, ok := c.Globals.Lookup("s")
	require.True(tb, ok)
	st, ok := c.Globals.Lookup("s#type")
	require.True(tb, ok)
	assert.Equal(tb, s.Idx+1, st.Idx)

	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestForOfSum(tb *testing.T) {
	c := compile(tb, `let a = [1, 2, 3]; let n = 0; for (const x of a) n += x; n`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	ptr, ok := c.ArrayPtr("a")
	require.True(tb, ok)

	// literal contents go to the data section, not stores
	var seg *jsc.DataSegment

	for i := range c.Data {
		if c.Data[i].Offset == ptr {
			seg = &c.Data[i]
		}
	}

	require.NotNil(tb, seg)
	assert.EqualValues(tb, 3, binary.LittleEndian.Uint32(seg.Bytes))
	assert.Len(tb, seg.Bytes, 4+3*8)

	assert.True(tb, hasOp(main.Wasm, wasm.Loop))
	assert.True(tb, c.Pages.HasArray)

	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestTryCatch(tb *testing.T) {
	c := compile(tb, `try { throw new TypeError("x") } catch { 42 }`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	require.Len(tb, c.Exceptions, 1)
	assert.Equal(tb, "TypeError", c.Exceptions[0].Constructor)
	assert.Equal(tb, "x", c.Exceptions[0].Message)

	require.Len(tb, c.Tags, 1)
	assert.Equal(tb, []wasm.Type{wasm.I32}, c.Tags[0].Params)

	assert.True(tb, hasOp(main.Wasm, wasm.Try))
	assert.True(tb, hasOp(main.Wasm, wasm.CatchAll))
	assert.True(tb, hasOp(main.Wasm, wasm.Throw))

	assert.True(tb, main.Throws)
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestTypeofArrow(tb *testing.T) {
	c := compile(tb, `typeof (() => 0)`, jsc.Options{})

	assert.True(tb, hasDataString(c, "function"))

	main := findFunc(c, "main")
	require.NotNil(tb, main)
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestLengthAssign(tb *testing.T) {
	c := compile(tb, `let a = []; a.length = 2; a.length`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	_, ok := c.ArrayPtr("a")
	assert.True(tb, ok)

	assert.True(tb, hasOp(main.Wasm, wasm.I32Store))
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestDelete(tb *testing.T) {
	tb.Run("Undeclared", func(tb *testing.T) {
		c := compile(tb, `delete zzz`, jsc.Options{})

		main := findFunc(c, "main")
		require.GreaterOrEqual(tb, len(main.Wasm), 2)
		assert.Equal(tb, 1.0, main.Wasm[0].F)
	})

	tb.Run("Declared", func(tb *testing.T) {
		c := compile(tb, `let a = 1; delete a`, jsc.Options{})

		main := findFunc(c, "main")

		// the tail is [false, boolean-tag]
		last := main.Wasm[len(main.Wasm)-2:]
		assert.Equal(tb, 0.0, last[0].F)
		assert.EqualValues(tb, jsc.TBoolean, last[1].Arg[0])
	})
}

func TestBadArrayLength(tb *testing.T) {
	for _, src := range []string{
		`new Array(-1)`,
		`new Array(1.5)`,
		`new Array(5000000000)`,
	} {
		tb.Run(src, func(tb *testing.T) {
			c := compile(tb, src, jsc.Options{})

			require.NotEmpty(tb, c.Exceptions)
			assert.Equal(tb, "RangeError", c.Exceptions[0].Constructor)

			main := findFunc(c, "main")
			assert.True(tb, hasOp(main.Wasm, wasm.Throw))
		})
	}
}

func TestSelfCallPatched(tb *testing.T) {
	c := compile(tb, `function fact(n) { return n < 2 ? 1 : n * fact(n - 1) } fact(5)`, jsc.Options{})

	fact := findFunc(c, "fact")
	require.NotNil(tb, fact)

	var selfCalls int

	for _, f := range c.Funcs {
		for _, ins := range f.Wasm {
			if ins.Op != wasm.Call {
				continue
			}

			require.NotEqual(tb, int64(-1), ins.Arg[0], "unpatched self call in %v", f.Name)

			if ins.Arg[0] == int64(fact.Index) {
				selfCalls++
			}
		}
	}

	assert.NotZero(tb, selfCalls)
}

func TestRedeclaredGlobal(tb *testing.T) {
	c := compile(tb, `let NaN = 1`, jsc.Options{})

	require.NotEmpty(tb, c.Exceptions)
	assert.Equal(tb, "SyntaxError", c.Exceptions[0].Constructor)
}

func TestCompileIdempotent(tb *testing.T) {
	src := `let s = "ab"; s += "cd"; let a = [1, 2]; for (const x of a) s += "!"; s.length`

	c1 := compile(tb, src, jsc.Options{})
	c2 := compile(tb, src, jsc.Options{})

	require.Equal(tb, len(c1.Funcs), len(c2.Funcs))

	for i := range c1.Funcs {
		assert.True(tb, reflect.DeepEqual(c1.Funcs[i].Wasm, c2.Funcs[i].Wasm), "func %v", c1.Funcs[i].Name)
	}

	assert.Equal(tb, c1.Pages.Reasons(), c2.Pages.Reasons())
	assert.True(tb, reflect.DeepEqual(c1.Data, c2.Data))
}

func TestFuncIndicesAfterImports(tb *testing.T) {
	c := compile(tb, `function a() { return 1 } function b() { return 2 } a(); b()`, jsc.Options{})

	for i, f := range c.Funcs {
		assert.Equal(tb, 2+i, f.Index)
	}
}

func TestProtoDispatch(tb *testing.T) {
	c := compile(tb, `let a = [1]; a.push(2); a.pop()`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	// push stores the element and bumps the length
	assert.True(tb, hasOp(main.Wasm, wasm.F64Store))
	assert.True(tb, hasOp(main.Wasm, wasm.I32Store))
}

func TestCharAtScratchPage(tb *testing.T) {
	c := compile(tb, `let s = "abc"; s.charAt(1)`, jsc.Options{})

	assert.True(tb, c.Pages.Has("string: char scratch"))

	main := findFunc(c, "main")
	assert.True(tb, hasOp(main.Wasm, wasm.MemoryCopy))
}

func TestLogicalSetsLastType(tb *testing.T) {
	c := compile(tb, `let x = 1 || "a"; x`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	assert.True(tb, hasOp(main.Wasm, wasm.If))
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestEvalLiteral(tb *testing.T) {
	c := compile(tb, `eval("1 + 2")`, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	assert.True(tb, hasOp(main.Wasm, wasm.F64Add))
	assert.Empty(tb, c.Exceptions)

	tb.Run("NonLiteral", func(tb *testing.T) {
		c := compile(tb, `let s = "1"; eval(s)`, jsc.Options{})

		require.NotEmpty(tb, c.Exceptions)
		assert.Equal(tb, "ReferenceError", c.Exceptions[0].Constructor)
	})
}

func TestBrTableTypeswitch(tb *testing.T) {
	src := `let x = 1 || "a"; x`

	c := compile(tb, src, jsc.Options{TypeswitchBrTable: true})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	assert.True(tb, hasOp(main.Wasm, wasm.BrTable))
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestI32PrunesStringOnly(tb *testing.T) {
	c := compile(tb, `function f(a, b) { return a + b } f(1, 2)`, jsc.Options{Valtype: "i32"})

	for _, f := range c.Funcs {
		for _, ins := range f.Wasm {
			assert.Equal(tb, wasm.Note(wasm.NoteNone), ins.Note, "func %v", f.Name)
		}
	}

	f := findFunc(c, "f")
	require.NotNil(tb, f)
	assert.True(tb, hasOp(f.Wasm, wasm.I32Add))
	assert.False(tb, hasOp(f.Wasm, wasm.MemoryCopy))
}

func TestAsmTemplate(tb *testing.T) {
	src := "asm`local tmp 0 i32\ni32.const 41\nlocal.set tmp\nlocal.get tmp\ni32.const 1\ni32.add\ndrop`\n0"

	c := compile(tb, src, jsc.Options{})

	main := findFunc(c, "main")
	require.NotNil(tb, main)

	assert.True(tb, hasOp(main.Wasm, wasm.I32Add))

	tmp, ok := main.Scope.Lookup("tmp")
	require.True(tb, ok)
	assert.Equal(tb, 0, tmp.Idx)
}

func TestESTreeJSONInput(tb *testing.T) {
	doc := `{
		"type": "Program",
		"body": [
			{
				"type": "ExpressionStatement",
				"expression": {
					"type": "BinaryExpression",
					"operator": "+",
					"left": {"type": "Literal", "value": 1},
					"right": {"type": "Literal", "value": 2}
				}
			}
		]
	}`

	prog, err := jsc.ParseJSON([]byte(doc))
	require.NoError(tb, err)

	c, err := jsc.New(jsc.Options{})
	require.NoError(tb, err)

	err = c.Compile(prog)
	require.NoError(tb, err)

	main := findFunc(c, "main")
	require.NotNil(tb, main)
	assert.True(tb, hasOp(main.Wasm, wasm.F64Add))
	assert.Equal(tb, 2, c.CountLeftover(main))
}

func TestModuleEncodes(tb *testing.T) {
	var e wasm.Encoder

	c := compile(tb, `export function add(a, b) { return a + b } let s = "hi"; s.length`, jsc.Options{})

	m := c.Module()
	b := e.Module(nil, m)

	require.Greater(tb, len(b), 8)
	assert.Equal(tb, wasm.Magic, b[:4])

	var names []string
	for _, x := range m.Export {
		names = append(names, x.Name)
	}

	assert.Contains(tb, names, "add")
	assert.Contains(tb, names, "main")
	assert.Contains(tb, names, "memory")
}
