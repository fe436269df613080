package jsc

import (
	"strings"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// assign lowers assignment expressions. Assignments are expressions:
// the stored value is pushed again as the result.
func (c *Compilation) assign(f *Func, n *Node) ([]wasm.Ins, error) {
	if n.Left == nil {
		return nil, todo("assignment without target")
	}

	switch n.Left.Type {
	case "ObjectPattern":
		// destructuring targets are accepted and ignored
		return c.expr(f, n.Right)
	case "Identifier":
		return c.assignIdent(f, n)
	case "MemberExpression":
		return c.assignMember(f, n)
	}

	return nil, todo("assignment to %v is not supported", n.Left.Type)
}

// desugar rewrites compound assignment into the matching binary or
// logical expression over the target.
func desugar(n *Node) *Node {
	op := strings.TrimSuffix(n.Operator, "=")

	switch op {
	case "||", "&&", "??":
		return &Node{Type: "LogicalExpression", Operator: op, Left: n.Left, Right: n.Right}
	}

	return &Node{Type: "BinaryExpression", Operator: op, Left: n.Left, Right: n.Right}
}

func (c *Compilation) assignIdent(f *Func, n *Node) ([]wasm.Ins, error) {
	name := n.Left.Name

	if _, ok := c.builtins.Vars[name]; ok {
		out := c.throwIns(f, "TypeError", "assignment to constant "+name)
		return append(out, c.constv(UNDEFINED)), nil
	}

	b, global, ok := c.lookupName(f, name)
	if !ok {
		// assignment to an undeclared name creates a global
		b = c.Globals.Pair(c.valtype, name)
		global = true
	}

	value := n.Right
	var out []wasm.Ins
	var err error

	if n.Operator != "=" {
		value = desugar(n)

		if value.Type == "BinaryExpression" && value.Operator == "+" {
			// += reuses a page keyed by the target name
			out, err = c.binary(f, value, "string: "+name)
		} else {
			out, err = c.expr(f, value)
		}
	} else {
		out, err = c.expr(f, n.Right)
	}

	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	get, set := getOp(global)

	out = append(out, wasm.I(set, int64(b.Idx)))
	out = append(out, c.nodeType(f, value)...)
	out = append(out, wasm.I(set, int64(b.Idx+1)))
	out = append(out, wasm.I(get, int64(b.Idx)))

	// static knowledge survives only when reassignment agrees
	if b.Known != c.knownType(f, value) {
		b.Known = -1
	}

	return out, nil
}

func (c *Compilation) assignMember(f *Func, n *Node) ([]wasm.Ins, error) {
	target := n.Left

	if n.Operator != "=" {
		return nil, todo("compound assignment to members is not supported")
	}

	if target.Optional {
		return nil, todo("optional member assignment")
	}

	// .length: write the 32-bit prefix and push the new value
	if !target.Computed && target.Property != nil && target.Property.Type == "Identifier" && target.Property.Name == "length" {
		o := f.Scope.Slot(wasm.I32, c.uniqName("#lenassign_obj"))
		v := f.Scope.Slot(c.valtype, c.uniqName("#lenassign_val"))

		out, err := c.expr(f, target.Object)
		if err != nil {
			return nil, errors.Wrap(err, "object")
		}

		out = append(out, c.ops.ToI32U...)
		out = append(out, wasm.I(wasm.LocalSet, int64(o.Idx)))

		ins, err := c.expr(f, n.Right)
		if err != nil {
			return nil, errors.Wrap(err, "value")
		}

		out = append(out, ins...)
		out = append(out, wasm.I(wasm.LocalSet, int64(v.Idx)))

		out = append(out,
			wasm.I(wasm.LocalGet, int64(o.Idx)),
			wasm.I(wasm.LocalGet, int64(v.Idx)),
		)
		out = append(out, c.ops.ToI32U...)
		out = append(out, wasm.I(wasm.I32Store, 2, 0))

		out = append(out, wasm.I(wasm.LocalGet, int64(v.Idx)))
		out = append(out, c.noteType(f, n.Right)...)

		return out, nil
	}

	if !target.Computed {
		return nil, todo("assignment to member %v is not supported", nodeKind(target.Property))
	}

	// indexed assignment, type-switched on the target
	o := f.Scope.Slot(wasm.I32, c.uniqName("#ixassign_obj"))
	ix := f.Scope.Slot(wasm.I32, c.uniqName("#ixassign_ix"))
	v := f.Scope.Slot(c.valtype, c.uniqName("#ixassign_val"))

	out, err := c.expr(f, target.Object)
	if err != nil {
		return nil, errors.Wrap(err, "object")
	}

	objType, ot := c.captureType(f, target.Object, "#ixassign_objtype")
	out = append(out, objType...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(o.Idx)))

	ins, err := c.expr(f, target.Property)
	if err != nil {
		return nil, errors.Wrap(err, "index")
	}

	out = append(out, ins...)
	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(ix.Idx)))

	ins, err = c.expr(f, n.Right)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}

	out = append(out, ins...)
	out = append(out, wasm.I(wasm.LocalSet, int64(v.Idx)))

	arr := []wasm.Ins{
		wasm.I(wasm.LocalGet, int64(o.Idx)),
		wasm.I(wasm.LocalGet, int64(ix.Idx)),
		wasm.I(wasm.I32Const, int64(c.ops.Size)),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(v.Idx)),
		wasm.I(c.ops.Store, c.ops.Align, 4),
		wasm.I(wasm.LocalGet, int64(v.Idx)),
	}

	def := c.throwIns(f, "TypeError", "cannot assign to index of a non-array")
	def = append(def, c.constv(UNDEFINED))

	typeIns := []wasm.Ins{wasm.I(wasm.LocalGet, int64(ot.Idx))}

	out = append(out, c.typeSwitch(f, typeIns,
		[]typeCase{{tags: []int{TArray}, body: arr}},
		def,
		byte(c.valtype),
	)...)

	out = append(out, c.noteType(f, n.Right)...)

	return out, nil
}
