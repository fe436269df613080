package jsc

import (
	"math"

	"nikand.dev/go/jsc/wasm"
)

func registerConstructors(b *Builtins) {
	b.RegisterConstructor("Array", &Constructor{Gen: genArrayCtor, Type: TArray})
	b.RegisterConstructor("__Array_of", &Constructor{Gen: genArrayOf, Type: TArray})
}

// genArrayCtor lowers new Array(n) / Array(n). A bad literal length
// becomes a compile-time-emitted RangeError throw.
func genArrayCtor(c *Compilation, f *Func, n *Node) ([]wasm.Ins, error) {
	if len(n.Arguments) > 1 {
		return genArrayOf(c, f, n)
	}

	ptr := c.Pages.Ptr("array: "+c.uniqName("new"), "array")

	if len(n.Arguments) == 0 {
		out := []wasm.Ins{
			wasm.I(wasm.I32Const, int64(ptr)),
			wasm.I(wasm.I32Const, 0),
			wasm.I(wasm.I32Store, 2, 0),
			wasm.I(wasm.I32Const, int64(ptr)),
		}

		return append(out, c.ops.FromI32U...), nil
	}

	arg := n.Arguments[0]

	if v, ok := arg.IsLiteralNum(); ok {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) || v > math.MaxUint32 || v != math.Trunc(v) {
			out := c.throwIns(f, "RangeError", "invalid array length")
			out = append(out, c.constv(UNDEFINED))
			return out, nil
		}

		out := []wasm.Ins{
			wasm.I(wasm.I32Const, int64(ptr)),
			wasm.I(wasm.I32Const, int64(v)),
			wasm.I(wasm.I32Store, 2, 0),
			wasm.I(wasm.I32Const, int64(ptr)),
		}

		return append(out, c.ops.FromI32U...), nil
	}

	out := []wasm.Ins{wasm.I(wasm.I32Const, int64(ptr))}

	ln, err := c.expr(f, arg)
	if err != nil {
		return nil, err
	}

	out = append(out, ln...)
	out = append(out, c.ops.ToI32U...)
	out = append(out,
		wasm.I(wasm.I32Store, 2, 0),
		wasm.I(wasm.I32Const, int64(ptr)),
	)

	return append(out, c.ops.FromI32U...), nil
}

// genArrayOf lowers Array.of(...) like an array literal.
func genArrayOf(c *Compilation, f *Func, n *Node) ([]wasm.Ins, error) {
	return c.arrayFromElements(f, n.Arguments, "array: "+c.uniqName("of"))
}
