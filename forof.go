package jsc

import (
	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// forOfStmt caches pointer, length and counter in i32 temporaries
// and emits a type-switched loop: an array-specialized and a
// string-specialized body. Anything else throws at runtime.
func (c *Compilation) forOfStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	loopVar, err := c.forOfVar(f, n.Left)
	if err != nil {
		return nil, err
	}

	base := f.Scope.Slot(wasm.I32, c.uniqName("#forof_base"))
	length := f.Scope.Slot(wasm.I32, c.uniqName("#forof_length"))
	counter := f.Scope.Slot(wasm.I32, c.uniqName("#forof_counter"))

	out, err := c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "iterable")
	}

	srcType, st := c.captureType(f, n.Right, "#forof_type")
	out = append(out, srcType...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(base.Idx)))

	// the case arms differ per dispatch mode in how many frames
	// separate the loop body from the switch exit
	k := 2
	extra := func(i int) int {
		if c.opts.TypeswitchBrTable {
			return k - 1 - i + 2
		}

		return 2
	}

	arrBody, err := c.forOfArm(f, n, loopVar, base, length, counter, extra(0), false)
	if err != nil {
		return nil, err
	}

	strBody, err := c.forOfArm(f, n, loopVar, base, length, counter, extra(1), true)
	if err != nil {
		return nil, err
	}

	// the arms specialized the loop variable's tag; past the loop
	// it is runtime-determined
	loopVar.Known = -1

	def := c.throwIns(f, "TypeError", "value is not iterable")

	typeIns := []wasm.Ins{wasm.I(wasm.LocalGet, int64(st.Idx))}

	out = append(out, c.typeSwitch(f, typeIns,
		[]typeCase{
			{tags: []int{TArray}, body: arrBody},
			{tags: []int{TString}, body: strBody},
		},
		def,
		wasm.BlockVoid,
	)...)

	return out, nil
}

// forOfVar resolves the loop binding: a fresh declaration or an
// existing name.
func (c *Compilation) forOfVar(f *Func, left *Node) (*Binding, error) {
	switch {
	case left == nil:
		return nil, todo("for-of without a loop variable")
	case left.Type == "VariableDeclaration":
		if len(left.Declarations) != 1 || left.Declarations[0].Id == nil || left.Declarations[0].Id.Type != "Identifier" {
			return nil, todo("destructuring for-of targets are not supported")
		}

		target, _ := c.declTarget(f)

		return target.Pair(c.valtype, left.Declarations[0].Id.Name), nil
	case left.Type == "Identifier":
		if b, _, ok := c.lookupName(f, left.Name); ok {
			return b, nil
		}

		return c.Globals.Pair(c.valtype, left.Name), nil
	}

	return nil, todo("for-of target %v is not supported", left.Type)
}

// loopVarOp returns get/set opcodes for the loop variable, which may
// live in module scope when declared at top level.
func (c *Compilation) loopVarOp(f *Func, b *Binding) (get, set wasm.Opcode) {
	for _, l := range f.Scope.Locals {
		if l == b {
			return wasm.LocalGet, wasm.LocalSet
		}
	}

	return wasm.GlobalGet, wasm.GlobalSet
}

func (c *Compilation) forOfArm(f *Func, n *Node, loopVar, base, length, counter *Binding, extra int, isString bool) ([]wasm.Ins, error) {
	_, set := c.loopVarOp(f, loopVar)

	out := []wasm.Ins{
		// length and counter
		wasm.I(wasm.LocalGet, int64(base.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.LocalSet, int64(length.Idx)),

		wasm.I(wasm.I32Const, 0),
		wasm.I(wasm.LocalSet, int64(counter.Idx)),
	}

	var scratch int

	if isString {
		// one scratch page, rewritten each iteration
		scratch = c.Pages.Ptr("string: forof scratch", "string")

		out = append(out,
			wasm.I(wasm.I32Const, int64(scratch)),
			wasm.I(wasm.I32Const, 1),
			wasm.I(wasm.I32Store, 2, 0),
		)
	}

	out = append(out,
		wasm.I(wasm.Block, wasm.BlockVoid),
		wasm.I(wasm.Loop, wasm.BlockVoid),

		wasm.I(wasm.LocalGet, int64(counter.Idx)),
		wasm.I(wasm.LocalGet, int64(length.Idx)),
		wasm.I(wasm.I32GeU),
		wasm.I(wasm.BrIf, 1),
	)

	if isString {
		out = append(out,
			wasm.I(wasm.I32Const, int64(scratch+4)),

			wasm.I(wasm.LocalGet, int64(base.Idx)),
			wasm.I(wasm.LocalGet, int64(counter.Idx)),
			wasm.I(wasm.I32Const, 2),
			wasm.I(wasm.I32Mul),
			wasm.I(wasm.I32Add),
			wasm.I(wasm.I32Const, 4),
			wasm.I(wasm.I32Add),

			wasm.I(wasm.I32Const, 2),
			wasm.I(wasm.MemoryCopy),

			wasm.I(wasm.I32Const, int64(scratch)),
		)
		out = append(out, c.ops.FromI32U...)
		out = append(out,
			wasm.I(set, int64(loopVar.Idx)),
			wasm.I(wasm.I32Const, TString),
			wasm.I(set, int64(loopVar.Idx+1)),
		)
	} else {
		out = append(out,
			wasm.I(wasm.LocalGet, int64(base.Idx)),
			wasm.I(wasm.LocalGet, int64(counter.Idx)),
			wasm.I(wasm.I32Const, int64(c.ops.Size)),
			wasm.I(wasm.I32Mul),
			wasm.I(wasm.I32Add),
			wasm.I(c.ops.Load, c.ops.Align, 4),
			wasm.I(set, int64(loopVar.Idx)),
			wasm.I(wasm.I32Const, TNumber),
			wasm.I(set, int64(loopVar.Idx+1)),
		)
	}

	loopTag := TNumber
	if isString {
		loopTag = TString
	}

	loopVar.Known = loopTag

	out = append(out, wasm.I(wasm.Block, wasm.BlockVoid))

	c.pushDepth("forof", 3+extra)

	body, err := c.stmt(f, n.BodyNode, false)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	c.popDepth()

	out = append(out, body...)
	out = append(out, wasm.I(wasm.End))

	out = append(out,
		wasm.I(wasm.LocalGet, int64(counter.Idx)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalSet, int64(counter.Idx)),

		wasm.I(wasm.Br, 0),
		wasm.I(wasm.End),
		wasm.I(wasm.End),
	)

	return out, nil
}
