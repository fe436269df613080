package jsc

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"nikand.dev/go/jsc/wasm"
)

// retKnown sentinel: no return statement seen yet.
const retUnset = -2

// makeFunc lowers a function declaration, function expression or
// arrow function into a compiled function.
//
// Generation runs through four states: body lowering, the push into
// the function table (which assigns the index), patching of
// self-referential call sites, and finalization (implicit return).
func (c *Compilation) makeFunc(parent *Func, n *Node) (*Func, error) {
	name := ""
	if n.Id != nil {
		name = n.Id.Name
	}

	if name == "" {
		name = c.uniqName("anonymous")
	}

	fn := c.newFunc(name)
	fn.TypedParams = true
	fn.TypedReturn = true
	fn.retKnown = retUnset

	for _, p := range n.Params {
		if p == nil || p.Type != "Identifier" {
			return nil, todo("pattern parameters are not supported")
		}

		b := fn.Scope.Pair(c.valtype, p.Name)

		if tag := annotationTag(p.TypeAnnotation); tag >= 0 {
			b.Known = tag
		}

		fn.Params = append(fn.Params, c.valtype, wasm.I32)
	}

	stmts, err := funcBody(n)
	if err != nil {
		return nil, err
	}

	// the depth stack is per function body
	saved := c.depth
	c.depth = nil

	for i, s := range stmts {
		ins, err := c.stmt(fn, s, false)
		if err != nil {
			c.depth = saved
			return nil, errors.Wrap(err, "%v: stmt %d", name, i)
		}

		fn.Wasm = append(fn.Wasm, ins...)
	}

	c.depth = saved

	c.finalize(fn)

	return fn, nil
}

// funcBody returns the statement list, wrapping an arrow expression
// body in a synthetic return.
func funcBody(n *Node) ([]*Node, error) {
	body := n.BodyNode
	if body == nil {
		return nil, nil
	}

	if body.Type == "BlockStatement" {
		return body.Body, nil
	}

	if n.Type == "ArrowFunctionExpression" {
		return []*Node{{Type: "ReturnStatement", Argument: body}}, nil
	}

	return nil, todo("unsupported function body %v", body.Type)
}

// finalize pushes the function into the table, patches deferred
// self-call indices and appends the implicit undefined return when
// the body leaves nothing on the stack.
func (c *Compilation) finalize(f *Func) {
	c.push(f)

	for i := range f.Wasm {
		ins := &f.Wasm[i]

		if ins.Op == wasm.Call && len(ins.Arg) > 0 && ins.Arg[0] == -1 {
			ins.Arg[0] = int64(f.Index)
		}
	}

	lo := c.countLeftover(f, f.Wasm)

	endsWithReturn := len(f.Wasm) > 0 && f.Wasm[len(f.Wasm)-1].Op == wasm.Ret

	if lo == 0 && !endsWithReturn {
		f.Wasm = append(f.Wasm,
			c.constv(UNDEFINED),
			wasm.I(wasm.I32Const, TUndefined),
			wasm.I(wasm.Ret),
		)
	}

	if lo != 0 && lo != 2 {
		tlog.V("codegen").Printw("unbalanced body", "func", f.Name, "leftover", lo)
	}

	if f.retKnown >= 0 {
		f.ReturnType = f.retKnown
	}

	f.Throws = f.Throws || f.Scope.Throws
}
