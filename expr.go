package jsc

import (
	"strings"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// constv pushes a constant in the module valtype.
func (c *Compilation) constv(v float64) wasm.Ins {
	switch c.valtype {
	case wasm.F64:
		return wasm.F64C(v)
	case wasm.I64:
		return wasm.I(wasm.I64Const, int64(v))
	default:
		return wasm.I(wasm.I32Const, int64(v))
	}
}

func getOp(global bool) (get, set wasm.Opcode) {
	if global {
		return wasm.GlobalGet, wasm.GlobalSet
	}

	return wasm.LocalGet, wasm.LocalSet
}

// expr lowers an expression, pushing its payload in the module
// valtype. The type tag is discoverable through knownType or the
// #last_type slot (see nodeType).
func (c *Compilation) expr(f *Func, n *Node) ([]wasm.Ins, error) {
	if n == nil {
		return []wasm.Ins{c.constv(UNDEFINED)}, nil
	}

	switch n.Type {
	case "Literal":
		return c.literal(f, n)
	case "Identifier":
		return c.identifier(f, n.Name)
	case "BinaryExpression":
		return c.binary(f, n, "")
	case "LogicalExpression":
		return c.logical(f, n)
	case "UnaryExpression":
		return c.unary(f, n)
	case "UpdateExpression":
		return c.update(f, n)
	case "ConditionalExpression":
		return c.conditional(f, n)
	case "MemberExpression":
		return c.member(f, n)
	case "CallExpression":
		return c.call(f, n, false)
	case "NewExpression":
		return c.call(f, n, true)
	case "AssignmentExpression":
		return c.assign(f, n)
	case "ArrayExpression":
		return c.arrayFromElements(f, n.Elements, "array: "+c.uniqName("literal"))
	case "ArrowFunctionExpression", "FunctionExpression":
		fn, err := c.makeFunc(f, n)
		if err != nil {
			return nil, err
		}

		return []wasm.Ins{c.constv(float64(fn.Index))}, nil
	case "TaggedTemplateExpression":
		return c.taggedTemplate(f, n)
	case "TemplateLiteral":
		if len(n.Expressions) == 0 && len(n.Quasis) == 1 {
			return c.literalString(f, n.Quasis[0].Cooked)
		}

		return nil, todo("template literals with substitutions are not supported")
	}

	if strings.HasPrefix(n.Type, "TS") {
		return []wasm.Ins{c.constv(UNDEFINED)}, nil
	}

	return nil, todo("%v is not supported", n.Type)
}

func (c *Compilation) literal(f *Func, n *Node) ([]wasm.Ins, error) {
	switch n.ValKind {
	case ValNum:
		return []wasm.Ins{c.constv(n.Num)}, nil
	case ValBool:
		v := float64(0)
		if n.Bool {
			v = 1
		}

		return []wasm.Ins{c.constv(v)}, nil
	case ValStr:
		return c.literalString(f, n.Str)
	case ValNull:
		return []wasm.Ins{c.constv(NULL)}, nil
	}

	if n.Regex != nil {
		return c.regexLiteral(f, n)
	}

	return nil, todo("literal %q is not supported", n.Raw)
}

func (c *Compilation) literalString(f *Func, s string) ([]wasm.Ins, error) {
	ptr := c.internString(s)

	out := []wasm.Ins{wasm.I(wasm.I32Const, int64(ptr))}

	return append(out, c.ops.FromI32U...), nil
}

func (c *Compilation) regexLiteral(f *Func, n *Node) ([]wasm.Ins, error) {
	if c.regex == nil {
		return nil, todo("regex literals need a registered regex compiler")
	}

	fn, err := c.regex(c, n.Regex.Pattern, n.Regex.Flags)
	if err != nil {
		return nil, errors.Wrap(err, "compile regex %v", n.Regex.Pattern)
	}

	return []wasm.Ins{c.constv(float64(fn.Index))}, nil
}

func (c *Compilation) identifier(f *Func, name string) ([]wasm.Ins, error) {
	switch name {
	case "undefined":
		return []wasm.Ins{c.constv(UNDEFINED)}, nil
	case "null":
		return []wasm.Ins{c.constv(NULL)}, nil
	}

	if b, global, ok := c.lookupName(f, name); ok {
		get, _ := getOp(global)
		return []wasm.Ins{wasm.I(get, int64(b.Idx))}, nil
	}

	if v, ok := c.builtins.Vars[name]; ok {
		return []wasm.Ins{c.constv(v.Value)}, nil
	}

	if _, ok := c.builtins.Funcs[name]; ok {
		fn, err := c.includeBuiltin(name)
		if err != nil {
			return nil, err
		}

		return []wasm.Ins{c.constv(float64(fn.Index))}, nil
	}

	if fn, ok := c.funcsByName[name]; ok {
		if fn.Index < 0 {
			return nil, todo("reference to %v before its index is assigned", name)
		}

		return []wasm.Ins{c.constv(float64(fn.Index))}, nil
	}

	// a hacked member access on an unknown namespace reads as a
	// missing property
	if strings.HasPrefix(name, "__") {
		return []wasm.Ins{c.constv(UNDEFINED)}, nil
	}

	out := c.throwIns(f, "ReferenceError", name+" is not defined")
	out = append(out, c.constv(UNDEFINED))

	return out, nil
}

// couldBeString reports whether a statically known tag may be a
// string at runtime.
func couldBeString(tag int) bool {
	return tag == TString || tag < 0
}

func (c *Compilation) binary(f *Func, n *Node, concatDst string) ([]wasm.Ins, error) {
	op := n.Operator

	lt, rt := c.knownType(f, n.Left), c.knownType(f, n.Right)
	maybeStr := couldBeString(lt) || couldBeString(rt)

	switch op {
	case "+":
		if maybeStr {
			return c.plusMaybeString(f, n, concatDst)
		}
	case "==", "!=", "===", "!==":
		if maybeStr {
			return c.equalityMaybeString(f, n)
		}
	}

	strict := op == "===" || op == "!=="

	out, err := c.expr(f, n.Left)
	if err != nil {
		return nil, errors.Wrap(err, "lhs")
	}

	var ltB, rtB *Binding

	if strict {
		var ins []wasm.Ins
		ins, ltB = c.captureType(f, n.Left, "#bin_lt")
		out = append(out, ins...)
	}

	r, err := c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "rhs")
	}

	out = append(out, r...)

	if strict {
		var ins []wasm.Ins
		ins, rtB = c.captureType(f, n.Right, "#bin_rt")
		out = append(out, ins...)
	}

	if strict {
		eq := wasm.I(c.ops.Eq)
		teq := wasm.I(wasm.I32Eq)
		join := wasm.I(wasm.I32And)

		if op == "!==" {
			eq = wasm.I(c.ops.Ne)
			teq = wasm.I(wasm.I32Ne)
			join = wasm.I(wasm.I32Or)
		}

		out = append(out, eq,
			wasm.I(wasm.LocalGet, int64(ltB.Idx)),
			wasm.I(wasm.LocalGet, int64(rtB.Idx)),
			teq, join,
		)

		return append(out, c.ops.FromI32U...), nil
	}

	return c.binaryOp(f, out, op)
}

// captureType snapshots the type of the just-lowered node into a
// fresh slot and returns nothing on the stack.
func (c *Compilation) captureType(f *Func, n *Node, prefix string) ([]wasm.Ins, *Binding) {
	t := f.Scope.Slot(wasm.I32, c.uniqName(prefix))

	out := c.nodeType(f, n)

	return append(out, wasm.I(wasm.LocalSet, int64(t.Idx))), t
}

// binaryOp applies the (valtype, operator) opcode selection to two
// operands already on the stack.
func (c *Compilation) binaryOp(f *Func, out []wasm.Ins, op string) ([]wasm.Ins, error) {
	widen := func(out []wasm.Ins) []wasm.Ins {
		return append(out, c.ops.FromI32U...)
	}

	switch op {
	case "+":
		return append(out, wasm.I(c.ops.Add)), nil
	case "-":
		return append(out, wasm.I(c.ops.Sub)), nil
	case "*":
		return append(out, wasm.I(c.ops.Mul)), nil
	case "/":
		return append(out, wasm.I(c.ops.Div)), nil
	case "%":
		return c.remainder(f, out), nil
	case "==":
		return widen(append(out, wasm.I(c.ops.Eq))), nil
	case "!=":
		return widen(append(out, wasm.I(c.ops.Ne))), nil
	case "<":
		return widen(append(out, wasm.I(c.ops.Lt))), nil
	case ">":
		return widen(append(out, wasm.I(c.ops.Gt))), nil
	case "<=":
		return widen(append(out, wasm.I(c.ops.Le))), nil
	case ">=":
		return widen(append(out, wasm.I(c.ops.Ge))), nil
	case "&", "|", "^", "<<", ">>", ">>>":
		return c.bitwise(f, out, op)
	}

	return nil, todo("operator %v is not supported", op)
}

// remainder lowers % as a - trunc(a/b)*b for float valtypes and as
// rem_s otherwise.
func (c *Compilation) remainder(f *Func, out []wasm.Ins) []wasm.Ins {
	switch c.valtype {
	case wasm.I32:
		return append(out, wasm.I(wasm.I32RemS))
	case wasm.I64:
		return append(out, wasm.I(wasm.I64RemS))
	}

	a := f.Scope.Slot(wasm.F64, "#rem_a")
	b := f.Scope.Slot(wasm.F64, "#rem_b")

	out = append(out,
		wasm.I(wasm.LocalSet, int64(b.Idx)),
		wasm.I(wasm.LocalSet, int64(a.Idx)),

		wasm.I(wasm.LocalGet, int64(a.Idx)),
		wasm.I(wasm.LocalGet, int64(a.Idx)),
		wasm.I(wasm.LocalGet, int64(b.Idx)),
		wasm.I(wasm.F64Div),
		wasm.I(wasm.F64Trunc),
		wasm.I(wasm.LocalGet, int64(b.Idx)),
		wasm.I(wasm.F64Mul),
		wasm.I(wasm.F64Sub),
	)

	return out
}

// bitwise converts both operands to i32, applies the op and converts
// back.
func (c *Compilation) bitwise(f *Func, out []wasm.Ins, op string) ([]wasm.Ins, error) {
	var ins wasm.Opcode

	switch op {
	case "&":
		ins = wasm.I32And
	case "|":
		ins = wasm.I32Or
	case "^":
		ins = wasm.I32Xor
	case "<<":
		ins = wasm.I32Shl
	case ">>":
		ins = wasm.I32ShrS
	case ">>>":
		ins = wasm.I32ShrU
	}

	if c.valtype == wasm.I32 {
		return append(out, wasm.I(ins)), nil
	}

	// both operands are on the stack in valtype; spill the right
	// one to convert the left
	r := f.Scope.Slot(c.valtype, "#bit_r")

	out = append(out, wasm.I(wasm.LocalSet, int64(r.Idx)))
	out = append(out, c.ops.ToI32...)
	out = append(out, wasm.I(wasm.LocalGet, int64(r.Idx)))
	out = append(out, c.ops.ToI32...)
	out = append(out, wasm.I(ins))
	out = append(out, c.ops.FromI32...)

	return out, nil
}

// plusMaybeString lowers + when either operand may be a string: the
// numeric add is wrapped in a block that dispatches to a string
// concat at runtime.
func (c *Compilation) plusMaybeString(f *Func, n *Node, concatDst string) ([]wasm.Ins, error) {
	lv := f.Scope.Slot(c.valtype, c.uniqName("#concat_l"))
	rv := f.Scope.Slot(c.valtype, c.uniqName("#concat_r"))
	ltt := f.Scope.Slot(wasm.I32, c.uniqName("#concat_lt"))
	rtt := f.Scope.Slot(wasm.I32, c.uniqName("#concat_rt"))

	out, err := c.expr(f, n.Left)
	if err != nil {
		return nil, errors.Wrap(err, "lhs")
	}

	out = append(out, wasm.I(wasm.LocalSet, int64(lv.Idx)))
	out = append(out, c.nodeType(f, n.Left)...)
	out = append(out, wasm.I(wasm.LocalSet, int64(ltt.Idx)))

	r, err := c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "rhs")
	}

	out = append(out, r...)
	out = append(out, wasm.I(wasm.LocalSet, int64(rv.Idx)))
	out = append(out, c.nodeType(f, n.Right)...)
	out = append(out, wasm.I(wasm.LocalSet, int64(rtt.Idx)))

	if concatDst == "" {
		concatDst = "string: " + c.uniqName("concat")
	}

	dst := c.Pages.Ptr(concatDst, "string")

	out = append(out, wasm.I(wasm.Block, int64(c.valtype)))

	strRun := []wasm.Ins{
		wasm.I(wasm.LocalGet, int64(ltt.Idx)),
		wasm.I(wasm.I32Const, TString),
		wasm.I(wasm.I32Eq),
		wasm.I(wasm.LocalGet, int64(rtt.Idx)),
		wasm.I(wasm.I32Const, TString),
		wasm.I(wasm.I32Eq),
		wasm.I(wasm.I32Or),
		wasm.I(wasm.If, wasm.BlockVoid),
	}

	strRun = append(strRun, c.concatStrings(f,
		[]wasm.Ins{wasm.I(wasm.LocalGet, int64(lv.Idx))},
		[]wasm.Ins{wasm.I(wasm.LocalGet, int64(rv.Idx))},
		dst,
	)...)

	strRun = append(strRun, c.setLastType(f, TString)...)
	strRun = append(strRun, wasm.I(wasm.Br, 1), wasm.I(wasm.End))

	if c.opts.WellFormedStringApprox {
		c.markWellFormedSite(len(f.Wasm) + len(out))
	}

	out = append(out, annotateStringOnly(strRun)...)

	out = append(out,
		wasm.I(wasm.LocalGet, int64(lv.Idx)),
		wasm.I(wasm.LocalGet, int64(rv.Idx)),
		wasm.I(c.ops.Add),
	)
	out = append(out, c.setLastType(f, TNumber)...)
	out = append(out, wasm.I(wasm.End))

	return out, nil
}

// annotateStringOnly brackets a run with string_only markers so a
// later pass can prune it under a non-string-capable valtype.
func annotateStringOnly(run []wasm.Ins) []wasm.Ins {
	out := make([]wasm.Ins, 0, len(run)+2)
	out = append(out, wasm.Ins{Op: wasm.Nop, Note: wasm.NoteStringOnlyStart})
	out = append(out, run...)
	out = append(out, wasm.Ins{Op: wasm.Nop, Note: wasm.NoteStringOnlyEnd})

	return out
}

// concatStrings writes leftLen+rightLen at dst and copies both
// character buffers with bulk memory copies. Pushes the dst pointer
// in valtype.
func (c *Compilation) concatStrings(f *Func, getL, getR []wasm.Ins, dst int) []wasm.Ins {
	l := f.Scope.Slot(wasm.I32, "#concat_lp")
	r := f.Scope.Slot(wasm.I32, "#concat_rp")
	ll := f.Scope.Slot(wasm.I32, "#concat_ll")
	rl := f.Scope.Slot(wasm.I32, "#concat_rl")

	out := append([]wasm.Ins{}, getL...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(l.Idx)))

	out = append(out, getR...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(r.Idx)))

	out = append(out,
		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.LocalSet, int64(ll.Idx)),

		wasm.I(wasm.LocalGet, int64(r.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.LocalSet, int64(rl.Idx)),

		// dst length
		wasm.I(wasm.I32Const, int64(dst)),
		wasm.I(wasm.LocalGet, int64(ll.Idx)),
		wasm.I(wasm.LocalGet, int64(rl.Idx)),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.I32Store, 2, 0),

		// copy left
		wasm.I(wasm.I32Const, int64(dst+4)),
		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.I32Const, 4),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(ll.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.MemoryCopy),

		// copy right after it
		wasm.I(wasm.I32Const, int64(dst+4)),
		wasm.I(wasm.LocalGet, int64(ll.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(r.Idx)),
		wasm.I(wasm.I32Const, 4),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(rl.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.MemoryCopy),

		wasm.I(wasm.I32Const, int64(dst)),
	)

	return append(out, c.ops.FromI32U...)
}

// equalityMaybeString wraps the numeric comparison in a block that
// jumps to a string compare when either side is a string at runtime.
func (c *Compilation) equalityMaybeString(f *Func, n *Node) ([]wasm.Ins, error) {
	op := n.Operator
	neg := op == "!=" || op == "!=="
	strict := op == "===" || op == "!=="

	lv := f.Scope.Slot(c.valtype, c.uniqName("#eq_l"))
	rv := f.Scope.Slot(c.valtype, c.uniqName("#eq_r"))
	ltt := f.Scope.Slot(wasm.I32, c.uniqName("#eq_lt"))
	rtt := f.Scope.Slot(wasm.I32, c.uniqName("#eq_rt"))

	out, err := c.expr(f, n.Left)
	if err != nil {
		return nil, errors.Wrap(err, "lhs")
	}

	out = append(out, wasm.I(wasm.LocalSet, int64(lv.Idx)))
	out = append(out, c.nodeType(f, n.Left)...)
	out = append(out, wasm.I(wasm.LocalSet, int64(ltt.Idx)))

	r, err := c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "rhs")
	}

	out = append(out, r...)
	out = append(out, wasm.I(wasm.LocalSet, int64(rv.Idx)))
	out = append(out, c.nodeType(f, n.Right)...)
	out = append(out, wasm.I(wasm.LocalSet, int64(rtt.Idx)))

	out = append(out, wasm.I(wasm.Block, wasm.I32))

	strRun := []wasm.Ins{
		wasm.I(wasm.LocalGet, int64(ltt.Idx)),
		wasm.I(wasm.I32Const, TString),
		wasm.I(wasm.I32Eq),
		wasm.I(wasm.LocalGet, int64(rtt.Idx)),
		wasm.I(wasm.I32Const, TString),
		wasm.I(wasm.I32Eq),
		wasm.I(wasm.I32Or),
		wasm.I(wasm.If, wasm.BlockVoid),
	}

	strRun = append(strRun, c.compareStrings(f,
		[]wasm.Ins{wasm.I(wasm.LocalGet, int64(lv.Idx))},
		[]wasm.Ins{wasm.I(wasm.LocalGet, int64(rv.Idx))},
	)...)

	if strict {
		// both sides must actually be strings
		strRun = append(strRun,
			wasm.I(wasm.LocalGet, int64(ltt.Idx)),
			wasm.I(wasm.LocalGet, int64(rtt.Idx)),
			wasm.I(wasm.I32Eq),
			wasm.I(wasm.I32And),
		)
	}

	if neg {
		strRun = append(strRun, wasm.I(wasm.I32EqZ))
	}

	strRun = append(strRun, wasm.I(wasm.Br, 1), wasm.I(wasm.End))

	out = append(out, annotateStringOnly(strRun)...)

	out = append(out,
		wasm.I(wasm.LocalGet, int64(lv.Idx)),
		wasm.I(wasm.LocalGet, int64(rv.Idx)),
	)

	if neg {
		out = append(out, wasm.I(c.ops.Ne))
	} else {
		out = append(out, wasm.I(c.ops.Eq))
	}

	if strict {
		teq := wasm.I(wasm.I32Eq)
		join := wasm.I(wasm.I32And)

		if neg {
			teq = wasm.I(wasm.I32Ne)
			join = wasm.I(wasm.I32Or)
		}

		out = append(out,
			wasm.I(wasm.LocalGet, int64(ltt.Idx)),
			wasm.I(wasm.LocalGet, int64(rtt.Idx)),
			teq, join,
		)
	}

	out = append(out, wasm.I(wasm.End))
	out = append(out, c.ops.FromI32U...)

	return out, nil
}

// compareStrings emits an i32 content equality check with fast paths
// on pointer equality and length inequality, then a 16-bit unit loop.
func (c *Compilation) compareStrings(f *Func, getL, getR []wasm.Ins) []wasm.Ins {
	l := f.Scope.Slot(wasm.I32, "#strcmp_l")
	r := f.Scope.Slot(wasm.I32, "#strcmp_r")
	la := f.Scope.Slot(wasm.I32, "#strcmp_len")
	i := f.Scope.Slot(wasm.I32, "#strcmp_i")
	res := f.Scope.Slot(wasm.I32, "#strcmp_res")

	out := append([]wasm.Ins{}, getL...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(l.Idx)))

	out = append(out, getR...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(r.Idx)))

	out = append(out,
		// same pointer
		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.LocalGet, int64(r.Idx)),
		wasm.I(wasm.I32Eq),
		wasm.I(wasm.If, wasm.I32),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.Else),

		// different length
		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.LocalGet, int64(r.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.I32Ne),
		wasm.I(wasm.If, wasm.I32),
		wasm.I(wasm.I32Const, 0),
		wasm.I(wasm.Else),

		// unit-wise loop
		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.I32Load, 2, 0),
		wasm.I(wasm.LocalSet, int64(la.Idx)),

		wasm.I(wasm.I32Const, 0),
		wasm.I(wasm.LocalSet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.LocalSet, int64(res.Idx)),

		wasm.I(wasm.Block),
		wasm.I(wasm.Loop),

		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.LocalGet, int64(la.Idx)),
		wasm.I(wasm.I32GeU),
		wasm.I(wasm.BrIf, 1),

		wasm.I(wasm.LocalGet, int64(l.Idx)),
		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.I32Load16U, 1, 4),

		wasm.I(wasm.LocalGet, int64(r.Idx)),
		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.I32Load16U, 1, 4),

		wasm.I(wasm.I32Ne),
		wasm.I(wasm.If, wasm.BlockVoid),
		wasm.I(wasm.I32Const, 0),
		wasm.I(wasm.LocalSet, int64(res.Idx)),
		wasm.I(wasm.Br, 2),
		wasm.I(wasm.End),

		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalSet, int64(i.Idx)),

		wasm.I(wasm.Br, 0),
		wasm.I(wasm.End),
		wasm.I(wasm.End),

		wasm.I(wasm.LocalGet, int64(res.Idx)),

		wasm.I(wasm.End),
		wasm.I(wasm.End),
	)

	return out
}

func (c *Compilation) logical(f *Func, n *Node) ([]wasm.Ins, error) {
	lv := f.Scope.Slot(c.valtype, c.uniqName("#logic_tmp"))

	out, err := c.expr(f, n.Left)
	if err != nil {
		return nil, errors.Wrap(err, "lhs")
	}

	out = append(out, wasm.I(wasm.LocalSet, int64(lv.Idx)))

	get := []wasm.Ins{wasm.I(wasm.LocalGet, int64(lv.Idx))}
	ltype := c.nodeType(f, n.Left)

	switch n.Operator {
	case "&&":
		out = append(out, c.truthy(f, get, ltype)...)
	case "||":
		out = append(out, c.falsy(f, get, ltype)...)
	case "??":
		out = append(out, c.nullish(f, get, ltype)...)
	default:
		return nil, todo("logical operator %v is not supported", n.Operator)
	}

	r, err := c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "rhs")
	}

	out = append(out, wasm.I(wasm.If, int64(c.valtype)))

	// predicate picks the right side
	out = append(out, r...)
	out = append(out, c.noteType(f, n.Right)...)

	out = append(out, wasm.I(wasm.Else))

	out = append(out, get...)
	out = append(out, c.noteType(f, n.Left)...)

	out = append(out, wasm.I(wasm.End))

	return out, nil
}

// noteType makes sure #last_type holds the type of the just-produced
// arm value.
func (c *Compilation) noteType(f *Func, n *Node) []wasm.Ins {
	if tag := c.knownType(f, n); tag >= 0 {
		return c.setLastType(f, tag)
	}

	// dynamic: #last_type already tracks it
	return nil
}

func (c *Compilation) unary(f *Func, n *Node) ([]wasm.Ins, error) {
	switch n.Operator {
	case "+":
		return c.expr(f, n.Argument)
	case "-":
		if v, ok := n.Argument.IsLiteralNum(); ok {
			return []wasm.Ins{c.constv(-v)}, nil
		}

		out, err := c.expr(f, n.Argument)
		if err != nil {
			return nil, err
		}

		return append(out, c.constv(-1), wasm.I(c.ops.Mul)), nil
	case "!":
		out, err := c.expr(f, n.Argument)
		if err != nil {
			return nil, err
		}

		tmp := f.Scope.Slot(c.valtype, "#not_tmp")
		out = append(out, wasm.I(wasm.LocalSet, int64(tmp.Idx)))

		get := []wasm.Ins{wasm.I(wasm.LocalGet, int64(tmp.Idx))}
		out = append(out, c.falsy(f, get, c.nodeType(f, n.Argument))...)

		return append(out, c.ops.FromI32U...), nil
	case "~":
		out, err := c.expr(f, n.Argument)
		if err != nil {
			return nil, err
		}

		out = append(out, c.ops.ToI32...)
		out = append(out, wasm.I(wasm.I32Const, -1), wasm.I(wasm.I32Xor))

		return append(out, c.ops.FromI32...), nil
	case "void":
		out, err := c.expr(f, n.Argument)
		if err != nil {
			return nil, err
		}

		for lo := c.countLeftover(f, out); lo > 0; lo-- {
			out = append(out, wasm.I(wasm.Drop))
		}

		return append(out, c.constv(UNDEFINED)), nil
	case "typeof":
		return c.typeofExpr(f, n.Argument)
	case "delete":
		if n.Argument == nil || n.Argument.Type != "Identifier" {
			return nil, todo("delete of a member expression is not supported")
		}

		_, _, bound := c.lookupName(f, n.Argument.Name)
		v := float64(1)
		if bound {
			v = 0
		}

		return []wasm.Ins{c.constv(v)}, nil
	}

	return nil, todo("unary operator %v is not supported", n.Operator)
}

// typeofExpr emits the static string for the runtime tag.
func (c *Compilation) typeofExpr(f *Func, arg *Node) ([]wasm.Ins, error) {
	var out []wasm.Ins
	var typeIns []wasm.Ins

	if arg != nil && arg.Type == "Identifier" {
		// typeof of an unbound name is "undefined", not an error
		if c.knownIdentType(f, arg.Name) == -1 {
			if b, global, ok := c.lookupName(f, arg.Name); ok {
				get, _ := getOp(global)
				typeIns = []wasm.Ins{wasm.I(get, int64(b.Idx + 1))}
			} else {
				return c.literalString(f, "undefined")
			}
		} else {
			typeIns = c.nodeType(f, arg)
		}
	} else {
		ins, err := c.expr(f, arg)
		if err != nil {
			return nil, err
		}

		cap, t := c.captureType(f, arg, "#typeof_tmp")

		out = ins
		out = append(out, cap...)
		out = append(out, wasm.I(wasm.Drop))

		typeIns = []wasm.Ins{wasm.I(wasm.LocalGet, int64(t.Idx))}
	}

	arm := func(s string) []wasm.Ins {
		ins, _ := c.literalString(f, s)
		return ins
	}

	cases := []typeCase{
		{tags: []int{TNumber}, body: arm("number")},
		{tags: []int{TBoolean}, body: arm("boolean")},
		{tags: []int{TString}, body: arm("string")},
		{tags: []int{TObject, TArray, TRegexp}, body: arm("object")},
		{tags: []int{TFunction}, body: arm("function")},
		{tags: []int{TSymbol}, body: arm("symbol")},
		{tags: []int{TBigInt}, body: arm("bigint")},
	}

	out = append(out, c.typeSwitch(f, typeIns, cases, arm("undefined"), byte(c.valtype))...)
	out = append(out, c.setLastType(f, TString)...)

	return out, nil
}

func (c *Compilation) update(f *Func, n *Node) ([]wasm.Ins, error) {
	if n.Argument == nil || n.Argument.Type != "Identifier" {
		return nil, todo("update of %v is not supported", nodeKind(n.Argument))
	}

	b, global, ok := c.lookupName(f, n.Argument.Name)
	if !ok {
		out := c.throwIns(f, "ReferenceError", n.Argument.Name+" is not defined")
		return append(out, c.constv(UNDEFINED)), nil
	}

	get, set := getOp(global)

	op := wasm.I(c.ops.Add)
	if n.Operator == "--" {
		op = wasm.I(c.ops.Sub)
	}

	var out []wasm.Ins

	if n.Prefix {
		out = append(out,
			wasm.I(get, int64(b.Idx)),
			c.constv(1),
			op,
			wasm.I(set, int64(b.Idx)),
			wasm.I(get, int64(b.Idx)),
		)
	} else {
		old := f.Scope.Slot(c.valtype, "#upd_tmp")

		out = append(out,
			wasm.I(get, int64(b.Idx)),
			wasm.I(wasm.LocalSet, int64(old.Idx)),
			wasm.I(wasm.LocalGet, int64(old.Idx)),
			c.constv(1),
			op,
			wasm.I(set, int64(b.Idx)),
			wasm.I(wasm.LocalGet, int64(old.Idx)),
		)
	}

	out = append(out,
		wasm.I(wasm.I32Const, TNumber),
		wasm.I(set, int64(b.Idx+1)),
	)

	return out, nil
}

func (c *Compilation) conditional(f *Func, n *Node) ([]wasm.Ins, error) {
	out, err := c.truthyNode(f, n.Test)
	if err != nil {
		return nil, errors.Wrap(err, "test")
	}

	out = append(out, wasm.I(wasm.If, int64(c.valtype)))

	cons, err := c.expr(f, n.Consequent)
	if err != nil {
		return nil, errors.Wrap(err, "consequent")
	}

	out = append(out, cons...)
	out = append(out, c.noteType(f, n.Consequent)...)

	out = append(out, wasm.I(wasm.Else))

	alt, err := c.expr(f, n.Alternate)
	if err != nil {
		return nil, errors.Wrap(err, "alternate")
	}

	out = append(out, alt...)
	out = append(out, c.noteType(f, n.Alternate)...)

	out = append(out, wasm.I(wasm.End))

	return out, nil
}

// member lowers a member read: .length, indexed access, or nothing
// else. Hacked namespace accesses arrive as identifiers instead.
func (c *Compilation) member(f *Func, n *Node) ([]wasm.Ins, error) {
	if n.Optional {
		return nil, todo("optional member access is not supported")
	}

	if !n.Computed && n.Property != nil && n.Property.Type == "Identifier" && n.Property.Name == "length" {
		out, err := c.expr(f, n.Object)
		if err != nil {
			return nil, err
		}

		out = append(out, c.ops.ToI32U...)
		out = append(out, wasm.I(wasm.I32Load, 2, 0))
		out = append(out, c.ops.FromI32U...)
		out = append(out, c.setLastType(f, TNumber)...)

		return out, nil
	}

	if !n.Computed {
		return nil, todo("member access on %v is not supported", nodeKind(n.Object))
	}

	o := f.Scope.Slot(wasm.I32, c.uniqName("#member_obj"))
	ix := f.Scope.Slot(wasm.I32, c.uniqName("#member_ix"))

	out, err := c.expr(f, n.Object)
	if err != nil {
		return nil, errors.Wrap(err, "object")
	}

	objType, ot := c.captureType(f, n.Object, "#member_objtype")
	out = append(out, objType...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(o.Idx)))

	pr, err := c.expr(f, n.Property)
	if err != nil {
		return nil, errors.Wrap(err, "index")
	}

	out = append(out, pr...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(ix.Idx)))

	typeIns := []wasm.Ins{wasm.I(wasm.LocalGet, int64(ot.Idx))}

	// array element
	arr := []wasm.Ins{
		wasm.I(wasm.LocalGet, int64(o.Idx)),
		wasm.I(wasm.LocalGet, int64(ix.Idx)),
		wasm.I(wasm.I32Const, int64(c.ops.Size)),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(c.ops.Load, c.ops.Align, 4),
	}
	arr = append(arr, c.setLastType(f, TNumber)...)

	// single char copied into a scratch page
	scratch := c.Pages.Ptr("string: char scratch", "string")

	str := []wasm.Ins{
		wasm.I(wasm.I32Const, int64(scratch)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.I32Store, 2, 0),

		wasm.I(wasm.I32Const, int64(scratch + 4)),
		wasm.I(wasm.LocalGet, int64(o.Idx)),
		wasm.I(wasm.I32Const, 4),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(ix.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.MemoryCopy),

		wasm.I(wasm.I32Const, int64(scratch)),
	}
	str = append(str, c.ops.FromI32U...)
	str = append(str, c.setLastType(f, TString)...)

	out = append(out, c.typeSwitch(f, typeIns,
		[]typeCase{
			{tags: []int{TArray}, body: arr},
			{tags: []int{TString}, body: str},
		},
		[]wasm.Ins{wasm.I(wasm.Unreachable)},
		byte(c.valtype),
	)...)

	return out, nil
}
