package jsc

import "nikand.dev/go/jsc/wasm"

type (
	typeCase struct {
		tags []int
		body []wasm.Ins
	}
)

// highest tag representable in a br_table type switch
const maxTag = TRegexp

// typeSwitch dispatches on a type tag. typeIns must push the i32
// tag. Every case body and def leave a value of the result blocktype
// (or nothing for void). The -typeswitch-use-brtable flag selects a
// br_table over the default if-chain.
func (c *Compilation) typeSwitch(f *Func, typeIns []wasm.Ins, cases []typeCase, def []wasm.Ins, result byte) []wasm.Ins {
	if c.opts.TypeswitchBrTable {
		return c.typeSwitchBrTable(f, typeIns, cases, def, result)
	}

	tmp := f.Scope.Slot(wasm.I32, "#typeswitch_tmp")

	out := append([]wasm.Ins{}, typeIns...)
	out = append(out,
		wasm.I(wasm.LocalSet, int64(tmp.Idx)),
		wasm.I(wasm.Block, int64(result)),
	)

	for _, cs := range cases {
		for i, tag := range cs.tags {
			out = append(out,
				wasm.I(wasm.LocalGet, int64(tmp.Idx)),
				wasm.I(wasm.I32Const, int64(tag)),
				wasm.I(wasm.I32Eq),
			)

			if i > 0 {
				out = append(out, wasm.I(wasm.I32Or))
			}
		}

		out = append(out, wasm.I(wasm.If, wasm.BlockVoid))
		out = append(out, cs.body...)
		out = append(out,
			wasm.I(wasm.Br, 1),
			wasm.I(wasm.End),
		)
	}

	out = append(out, def...)
	out = append(out, wasm.I(wasm.End))

	return out
}

func (c *Compilation) typeSwitchBrTable(f *Func, typeIns []wasm.Ins, cases []typeCase, def []wasm.Ins, result byte) []wasm.Ins {
	k := len(cases)

	table := make([]int64, maxTag+2)
	for i := range table {
		table[i] = int64(k) // default
	}

	for i, cs := range cases {
		for _, tag := range cs.tags {
			table[tag] = int64(i)
		}
	}

	// the last table entry is the br_table default target
	table[maxTag+1] = int64(k)

	out := append([]wasm.Ins{}, wasm.I(wasm.Block, int64(result)), wasm.I(wasm.Block))

	for i := 0; i < k; i++ {
		out = append(out, wasm.I(wasm.Block))
	}

	out = append(out, typeIns...)
	out = append(out, wasm.Ins{Op: wasm.BrTable, Arg: table})

	for i, cs := range cases {
		out = append(out, wasm.I(wasm.End))
		out = append(out, cs.body...)
		out = append(out, wasm.I(wasm.Br, int64(k-i)))
	}

	out = append(out, wasm.I(wasm.End))
	out = append(out, def...)
	out = append(out, wasm.I(wasm.End))

	return out
}

// truthy emits an i32 predicate for the value pushed by get with the
// tag pushed by typeIns. Arrays are always truthy, strings are truthy
// iff their length is not zero, undefined never is, anything else
// compares the payload against zero.
func (c *Compilation) truthy(f *Func, get, typeIns []wasm.Ins) []wasm.Ins {
	nonzero := append([]wasm.Ins{}, get...)
	nonzero = append(nonzero, c.ops.Eqz...)
	nonzero = append(nonzero, wasm.I(wasm.I32EqZ))

	strArm := append([]wasm.Ins{}, get...)
	strArm = append(strArm, c.ops.ToI32U...)
	strArm = append(strArm,
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.I32EqZ),
		wasm.I(wasm.I32EqZ),
	)

	return c.typeSwitch(f, typeIns, []typeCase{
		{tags: []int{TArray}, body: []wasm.Ins{wasm.I(wasm.I32Const, 1)}},
		{tags: []int{TString}, body: strArm},
		{tags: []int{TUndefined}, body: []wasm.Ins{wasm.I(wasm.I32Const, 0)}},
	}, nonzero, wasm.I32)
}

// falsy is the complement of truthy.
func (c *Compilation) falsy(f *Func, get, typeIns []wasm.Ins) []wasm.Ins {
	out := c.truthy(f, get, typeIns)
	return append(out, wasm.I(wasm.I32EqZ))
}

// nullish holds for undefined and for the zero-valued object (null).
func (c *Compilation) nullish(f *Func, get, typeIns []wasm.Ins) []wasm.Ins {
	objArm := append([]wasm.Ins{}, get...)
	objArm = append(objArm, c.ops.Eqz...)

	return c.typeSwitch(f, typeIns, []typeCase{
		{tags: []int{TUndefined}, body: []wasm.Ins{wasm.I(wasm.I32Const, 1)}},
		{tags: []int{TObject}, body: objArm},
	}, []wasm.Ins{wasm.I(wasm.I32Const, 0)}, wasm.I32)
}

// truthyNode lowers n and applies truthy to its value.
func (c *Compilation) truthyNode(f *Func, n *Node) ([]wasm.Ins, error) {
	out, err := c.expr(f, n)
	if err != nil {
		return nil, err
	}

	tmp := f.Scope.Slot(c.valtype, "#cond_tmp")
	out = append(out, wasm.I(wasm.LocalSet, int64(tmp.Idx)))

	get := []wasm.Ins{wasm.I(wasm.LocalGet, int64(tmp.Idx))}
	out = append(out, c.truthy(f, get, c.nodeType(f, n))...)

	return out, nil
}
