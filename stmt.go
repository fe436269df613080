package jsc

import (
	"strings"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// program lowers the top level into main. Function declarations are
// hoisted so calls from top-level statements resolve regardless of
// order (a function calling a later-declared one does not); the final expression
// statement's value flows to main's implicit return.
func (c *Compilation) program(f *Func, prog *Node) error {
	for _, s := range prog.Body {
		decl, exported := s, false

		if s.Type == "ExportNamedDeclaration" && s.Declaration != nil {
			decl, exported = s.Declaration, true
		}

		if decl.Type != "FunctionDeclaration" {
			continue
		}

		fn, err := c.makeFunc(f, decl)
		if err != nil {
			return errors.Wrap(err, "function %v", nodeKind(decl.Id))
		}

		fn.Export = exported
	}

	for i, s := range prog.Body {
		if isFuncDecl(s) {
			continue
		}

		tail := i == len(prog.Body)-1

		ins, err := c.stmt(f, s, tail)
		if err != nil {
			return errors.Wrap(err, "stmt %d", i)
		}

		f.Wasm = append(f.Wasm, ins...)
	}

	return nil
}

func isFuncDecl(s *Node) bool {
	if s.Type == "ExportNamedDeclaration" && s.Declaration != nil {
		return s.Declaration.Type == "FunctionDeclaration"
	}

	return s.Type == "FunctionDeclaration"
}

// stmt lowers one statement. tail marks main's final statement whose
// expression value is kept for the implicit return.
func (c *Compilation) stmt(f *Func, n *Node, tail bool) ([]wasm.Ins, error) {
	if n == nil {
		return nil, nil
	}

	switch n.Type {
	case "ExpressionStatement":
		return c.exprStmt(f, n.Expression, tail)
	case "EmptyStatement", "DebuggerStatement":
		return nil, nil
	case "BlockStatement":
		var out []wasm.Ins

		for i, s := range n.Body {
			ins, err := c.stmt(f, s, false)
			if err != nil {
				return nil, errors.Wrap(err, "stmt %d", i)
			}

			out = append(out, ins...)
		}

		return out, nil
	case "VariableDeclaration":
		return c.varDecl(f, n)
	case "FunctionDeclaration":
		_, err := c.makeFunc(f, n)
		return nil, err
	case "ExportNamedDeclaration":
		if n.Declaration == nil {
			return nil, nil
		}

		out, err := c.stmt(f, n.Declaration, false)
		if err != nil {
			return nil, err
		}

		if n.Declaration.Type == "FunctionDeclaration" && n.Declaration.Id != nil {
			if fn, ok := c.funcsByName[n.Declaration.Id.Name]; ok {
				fn.Export = true
			}
		}

		return out, nil
	case "ReturnStatement":
		return c.returnStmt(f, n)
	case "IfStatement":
		return c.ifStmt(f, n)
	case "WhileStatement":
		return c.whileStmt(f, n)
	case "ForStatement":
		return c.forStmt(f, n)
	case "ForOfStatement":
		return c.forOfStmt(f, n)
	case "BreakStatement", "ContinueStatement":
		return c.branchStmt(f, n)
	case "ThrowStatement":
		return c.throwStmt(f, n)
	case "TryStatement":
		return c.tryStmt(f, n, tail && f.Name == "main")
	}

	if strings.HasPrefix(n.Type, "TS") {
		return nil, nil
	}

	return nil, todo("%v is not supported", n.Type)
}

func (c *Compilation) exprStmt(f *Func, e *Node, tail bool) ([]wasm.Ins, error) {
	out, err := c.expr(f, e)
	if err != nil {
		return nil, err
	}

	if tail && f.Name == "main" {
		// keep value and tag for the implicit return
		out = append(out, c.nodeType(f, e)...)
		return out, nil
	}

	for lo := c.countLeftover(f, out); lo > 0; lo-- {
		out = append(out, wasm.I(wasm.Drop))
	}

	return out, nil
}

// declTarget routes top-level declarations to module scope.
func (c *Compilation) declTarget(f *Func) (*Scope, bool) {
	if f.Name == "main" {
		return c.Globals, true
	}

	return f.Scope, false
}

func (c *Compilation) varDecl(f *Func, n *Node) (out []wasm.Ins, err error) {
	target, global := c.declTarget(f)
	_, set := getOp(global)

	for _, d := range n.Declarations {
		if d.Id == nil || d.Id.Type != "Identifier" {
			return nil, todo("destructuring declarations are not supported")
		}

		name := d.Id.Name

		if global {
			_, declared := c.Globals.Lookup(name)
			_, bvar := c.builtins.Vars[name]
			_, bfn := c.builtins.Funcs[name]

			if declared || bvar || bfn {
				out = append(out, c.throwIns(f, "SyntaxError", name+" has already been declared")...)
				continue
			}
		}

		b := target.Pair(c.valtype, name)

		var init []wasm.Ins

		if d.Init != nil && d.Init.Type == "ArrayExpression" {
			reason := "array: " + name

			init, err = c.arrayFromElements(f, d.Init.Elements, reason)
			if err != nil {
				return nil, errors.Wrap(err, "%v", name)
			}

			c.arrays[name] = c.Pages.Ptr(reason, "array")
		} else {
			init, err = c.expr(f, d.Init)
			if err != nil {
				return nil, errors.Wrap(err, "%v", name)
			}
		}

		out = append(out, init...)
		out = append(out, wasm.I(set, int64(b.Idx)))
		out = append(out, c.nodeType(f, d.Init)...)
		out = append(out, wasm.I(set, int64(b.Idx+1)))

		if tag := annotationTag(d.Id.TypeAnnotation); tag >= 0 {
			b.Known = tag
		} else {
			b.Known = c.knownType(f, d.Init)
		}
	}

	return out, nil
}

func (c *Compilation) returnStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	f.Scope.Returns = true

	out, err := c.expr(f, n.Argument)
	if err != nil {
		return nil, err
	}

	out = append(out, c.nodeType(f, n.Argument)...)
	out = append(out, wasm.I(wasm.Ret))

	kt := c.knownType(f, n.Argument)

	switch {
	case f.retKnown == retUnset:
		f.retKnown = kt
	case f.retKnown != kt:
		f.retKnown = -1
	}

	return out, nil
}

func (c *Compilation) ifStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	out, err := c.truthyNode(f, n.Test)
	if err != nil {
		return nil, errors.Wrap(err, "test")
	}

	out = append(out, wasm.I(wasm.If, wasm.BlockVoid))

	c.pushDepth("if", 1)

	cons, err := c.stmt(f, n.Consequent, false)
	if err != nil {
		return nil, errors.Wrap(err, "consequent")
	}

	out = append(out, cons...)

	if n.Alternate != nil {
		out = append(out, wasm.I(wasm.Else))

		alt, err := c.stmt(f, n.Alternate, false)
		if err != nil {
			return nil, errors.Wrap(err, "alternate")
		}

		out = append(out, alt...)
	}

	c.popDepth()

	return append(out, wasm.I(wasm.End)), nil
}

func (c *Compilation) whileStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	out := []wasm.Ins{
		wasm.I(wasm.Block, wasm.BlockVoid),
		wasm.I(wasm.Loop, wasm.BlockVoid),
	}

	test, err := c.truthyNode(f, n.Test)
	if err != nil {
		return nil, errors.Wrap(err, "test")
	}

	out = append(out, test...)
	out = append(out, wasm.I(wasm.I32EqZ), wasm.I(wasm.BrIf, 1))

	c.pushDepth("while", 2)

	body, err := c.stmt(f, n.BodyNode, false)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	c.popDepth()

	out = append(out, body...)
	out = append(out,
		wasm.I(wasm.Br, 0),
		wasm.I(wasm.End),
		wasm.I(wasm.End),
	)

	return out, nil
}

func (c *Compilation) forStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	var out []wasm.Ins

	if n.Init != nil {
		init, err := c.forInit(f, n.Init)
		if err != nil {
			return nil, errors.Wrap(err, "init")
		}

		out = append(out, init...)
	}

	out = append(out,
		wasm.I(wasm.Block, wasm.BlockVoid),
		wasm.I(wasm.Loop, wasm.BlockVoid),
	)

	if n.Test != nil {
		test, err := c.truthyNode(f, n.Test)
		if err != nil {
			return nil, errors.Wrap(err, "test")
		}

		out = append(out, test...)
		out = append(out, wasm.I(wasm.I32EqZ), wasm.I(wasm.BrIf, 1))
	}

	out = append(out, wasm.I(wasm.Block, wasm.BlockVoid))

	c.pushDepth("for", 3)

	body, err := c.stmt(f, n.BodyNode, false)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	c.popDepth()

	out = append(out, body...)
	out = append(out, wasm.I(wasm.End))

	if n.Update != nil {
		upd, err := c.exprStmt(f, n.Update, false)
		if err != nil {
			return nil, errors.Wrap(err, "update")
		}

		out = append(out, upd...)
	}

	out = append(out,
		wasm.I(wasm.Br, 0),
		wasm.I(wasm.End),
		wasm.I(wasm.End),
	)

	return out, nil
}

// forInit lowers a for-loop initializer, a declaration or an
// expression.
func (c *Compilation) forInit(f *Func, n *Node) ([]wasm.Ins, error) {
	switch n.Type {
	case "VariableDeclaration":
		return c.varDecl(f, n)
	case "ExpressionStatement":
		return c.exprStmt(f, n.Expression, false)
	}

	return c.exprStmt(f, n, false)
}

func (c *Compilation) branchStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	if n.Label != nil {
		return nil, todo("labeled break/continue is not supported")
	}

	cont := n.Type == "ContinueStatement"

	d, ok := c.branchDepth(cont)
	if !ok {
		return nil, errors.New("%v outside of a loop", strings.ToLower(strings.TrimSuffix(n.Type, "Statement")))
	}

	return []wasm.Ins{wasm.I(wasm.Br, int64(d))}, nil
}

func (c *Compilation) throwStmt(f *Func, n *Node) ([]wasm.Ins, error) {
	arg := n.Argument

	if arg != nil && arg.Type == "NewExpression" && arg.Callee != nil && arg.Callee.Type == "Identifier" {
		msg := ""
		if len(arg.Arguments) > 0 {
			if !arg.Arguments[0].IsLiteralStr() {
				return nil, todo("throw with a non-literal message")
			}

			msg = arg.Arguments[0].Str
		}

		return c.throwIns(f, arg.Callee.Name, msg), nil
	}

	if arg.IsLiteralStr() {
		return c.throwIns(f, "", arg.Str), nil
	}

	return nil, todo("throw of %v is not supported", nodeKind(arg))
}

func (c *Compilation) tryStmt(f *Func, n *Node, tail bool) ([]wasm.Ins, error) {
	if n.Finalizer != nil {
		return nil, todo("finally is not supported")
	}

	if n.Handler == nil {
		return nil, todo("try without catch is not supported")
	}

	var out []wasm.Ins

	if tail {
		// both arms leave their value through the tail slots so
		// it can flow to the implicit return after the handler
		v := f.Scope.Slot(c.valtype, "#tail_val")
		t := f.Scope.Slot(wasm.I32, "#tail_type")

		out = append(out,
			c.constv(UNDEFINED),
			wasm.I(wasm.LocalSet, int64(v.Idx)),
			wasm.I(wasm.I32Const, TUndefined),
			wasm.I(wasm.LocalSet, int64(t.Idx)),
		)
	}

	out = append(out, wasm.I(wasm.Try, wasm.BlockVoid))

	c.pushDepth("try", 1)

	body, err := c.tryArm(f, bodyOf(n.Block), tail)
	if err != nil {
		return nil, errors.Wrap(err, "try")
	}

	out = append(out, body...)

	// the depth entry flips from try to catch at catch_all
	c.popDepth()
	c.pushDepth("catch", 1)

	out = append(out, wasm.I(wasm.CatchAll))

	body, err = c.tryArm(f, bodyOf(n.Handler.BodyNode), tail)
	if err != nil {
		return nil, errors.Wrap(err, "catch")
	}

	out = append(out, body...)

	c.popDepth()

	out = append(out, wasm.I(wasm.End))

	if tail {
		v, _ := f.Scope.Lookup("#tail_val")
		t, _ := f.Scope.Lookup("#tail_type")

		out = append(out,
			wasm.I(wasm.LocalGet, int64(v.Idx)),
			wasm.I(wasm.LocalGet, int64(t.Idx)),
		)
	}

	return out, nil
}

func bodyOf(n *Node) []*Node {
	if n == nil {
		return nil
	}

	return n.Body
}

// tryArm lowers one arm of a try statement. In tail position the
// last expression statement's value is stored into the tail slots.
func (c *Compilation) tryArm(f *Func, stmts []*Node, tail bool) (out []wasm.Ins, err error) {
	for i, s := range stmts {
		if tail && i == len(stmts)-1 && s.Type == "ExpressionStatement" {
			ins, err := c.tailStore(f, s.Expression)
			if err != nil {
				return nil, errors.Wrap(err, "stmt %d", i)
			}

			out = append(out, ins...)

			continue
		}

		ins, err := c.stmt(f, s, false)
		if err != nil {
			return nil, errors.Wrap(err, "stmt %d", i)
		}

		out = append(out, ins...)
	}

	return out, nil
}

func (c *Compilation) tailStore(f *Func, e *Node) ([]wasm.Ins, error) {
	v := f.Scope.Slot(c.valtype, "#tail_val")
	t := f.Scope.Slot(wasm.I32, "#tail_type")

	out, err := c.expr(f, e)
	if err != nil {
		return nil, err
	}

	out = append(out, wasm.I(wasm.LocalSet, int64(v.Idx)))
	out = append(out, c.nodeType(f, e)...)
	out = append(out, wasm.I(wasm.LocalSet, int64(t.Idx)))

	return out, nil
}

func (c *Compilation) pushDepth(kind string, frames int) {
	c.depth = append(c.depth, depthEntry{kind: kind, frames: frames})
}

func (c *Compilation) popDepth() {
	c.depth = c.depth[:len(c.depth)-1]
}

func isLoopKind(kind string) bool {
	switch kind {
	case "while", "for", "forof":
		return true
	}

	return false
}

// branchDepth walks the depth stack to the nearest loop. break
// branches past the loop's outermost frame; continue targets the
// loop's innermost frame.
func (c *Compilation) branchDepth(cont bool) (int, bool) {
	acc := 0

	for i := len(c.depth) - 1; i >= 0; i-- {
		e := c.depth[i]

		if isLoopKind(e.kind) {
			if cont {
				return acc, true
			}

			return acc + e.frames - 1, true
		}

		acc += e.frames
	}

	return 0, false
}
