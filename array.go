package jsc

import (
	"encoding/binary"
	"math"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// arrayFromElements allocates a page for an array and initializes
// it. A literal whose elements are all compile-time constants goes
// into the data section; anything else stores length then each
// element in turn.
func (c *Compilation) arrayFromElements(f *Func, elems []*Node, reason string) ([]wasm.Ins, error) {
	ptr := c.Pages.Ptr(reason, "array")

	if vals, ok := constElements(elems); ok {
		b := make([]byte, 4+c.ops.Size*len(vals))
		binary.LittleEndian.PutUint32(b, uint32(len(vals)))

		for i, v := range vals {
			c.encodeElem(b[4+i*c.ops.Size:], v)
		}

		c.emitData(ptr, b)

		out := []wasm.Ins{wasm.I(wasm.I32Const, int64(ptr))}

		return append(out, c.ops.FromI32U...), nil
	}

	out := []wasm.Ins{
		wasm.I(wasm.I32Const, int64(ptr)),
		wasm.I(wasm.I32Const, int64(len(elems))),
		wasm.I(wasm.I32Store, 2, 0),
	}

	for i, e := range elems {
		out = append(out, wasm.I(wasm.I32Const, int64(ptr+4+i*c.ops.Size)))

		ins, err := c.expr(f, e)
		if err != nil {
			return nil, errors.Wrap(err, "element %d", i)
		}

		out = append(out, ins...)
		out = append(out, wasm.I(c.ops.Store, c.ops.Align, 0))
	}

	out = append(out, wasm.I(wasm.I32Const, int64(ptr)))

	return append(out, c.ops.FromI32U...), nil
}

func constElements(elems []*Node) ([]float64, bool) {
	vals := make([]float64, 0, len(elems))

	for _, e := range elems {
		if e == nil {
			vals = append(vals, UNDEFINED)
			continue
		}

		if v, ok := e.IsLiteralNum(); ok {
			vals = append(vals, v)
			continue
		}

		if e.Type == "Literal" && e.ValKind == ValBool {
			v := float64(0)
			if e.Bool {
				v = 1
			}

			vals = append(vals, v)
			continue
		}

		return nil, false
	}

	return vals, true
}

func (c *Compilation) encodeElem(b []byte, v float64) {
	switch c.valtype {
	case wasm.F64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case wasm.I64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	default:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	}
}
