package jsc

import (
	"strings"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// call lowers call and new expressions. The callee name resolves in
// order: user function, imported function, built-in, internal
// constructor, self-recursion placeholder.
func (c *Compilation) call(f *Func, n *Node, isNew bool) ([]wasm.Ins, error) {
	callee := n.Callee
	if callee == nil {
		return nil, todo("call without callee")
	}

	if callee.Type == "MemberExpression" {
		return c.methodCall(f, n, callee)
	}

	if callee.Type != "Identifier" {
		return nil, todo("calling a %v is not supported", callee.Type)
	}

	name := callee.Name

	if name == "eval" && !isNew {
		return c.evalCall(f, n)
	}

	if isNew {
		if ct, ok := c.builtins.Constructors[name]; ok {
			return c.construct(f, n, name, ct)
		}

		return nil, todo("new %v is not supported", name)
	}

	if fn, ok := c.funcsByName[name]; ok {
		return c.callFunc(f, fn, n.Arguments)
	}

	for i, im := range c.imports {
		if im.Name != name {
			continue
		}

		return c.callImport(f, i, im, n.Arguments)
	}

	if _, ok := c.builtins.Funcs[name]; ok {
		fn, err := c.includeBuiltin(name)
		if err != nil {
			return nil, err
		}

		return c.callFunc(f, fn, n.Arguments)
	}

	if ct, ok := c.builtins.Constructors[name]; ok {
		return c.construct(f, n, name, ct)
	}

	if name == f.Name {
		return c.callSelf(f, n.Arguments)
	}

	// hacked member spelling: prototype dispatch on the receiver
	if method, ok := splitProtoName(name); ok {
		recv, _ := receiverOfProtoName(name)

		if _, _, bound := c.lookupName(f, recv); bound {
			return c.protoCall(f, Ident(recv), method, n.Arguments)
		}
	}

	if strings.HasPrefix(name, "__") {
		out := c.throwIns(f, "TypeError", strings.TrimPrefix(name, "__")+" is not a function")
		return append(out, c.constv(UNDEFINED)), nil
	}

	// a bound but non-callable name is a type error, an unbound
	// one a reference error
	if _, _, bound := c.lookupName(f, name); bound {
		out := c.throwIns(f, "TypeError", name+" is not a function")
		return append(out, c.constv(UNDEFINED)), nil
	}

	out := c.throwIns(f, "ReferenceError", name+" is not defined")

	return append(out, c.constv(UNDEFINED)), nil
}

func (c *Compilation) construct(f *Func, n *Node, name string, ct *Constructor) ([]wasm.Ins, error) {
	out, err := ct.Gen(c, f, n)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	return append(out, c.setLastType(f, ct.Type)...), nil
}

func (c *Compilation) methodCall(f *Func, n, callee *Node) ([]wasm.Ins, error) {
	if callee.Computed || callee.Optional {
		return nil, todo("computed or optional method calls are not supported")
	}

	if callee.Property == nil || callee.Property.Type != "Identifier" {
		return nil, todo("method call without a plain name")
	}

	method := callee.Property.Name

	if callee.Object != nil && callee.Object.Type == "Literal" && callee.Object.Regex != nil {
		return c.regexCall(f, callee.Object, method, n.Arguments)
	}

	return c.protoCall(f, callee.Object, method, n.Arguments)
}

// callFunc pushes normalized arguments and calls a compiled function.
// Argument count is normalized to the parameter count by trailing
// undefined insertions or truncation.
func (c *Compilation) callFunc(f *Func, target *Func, args []*Node) (out []wasm.Ins, err error) {
	params := len(target.Params)
	if target.TypedParams {
		params /= 2
	}

	for i := 0; i < params; i++ {
		if i < len(args) {
			ins, err := c.expr(f, args[i])
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}

			out = append(out, ins...)

			if target.TypedParams {
				out = append(out, c.nodeType(f, args[i])...)
			}

			continue
		}

		out = append(out, c.constv(UNDEFINED))

		if target.TypedParams {
			out = append(out, wasm.I(wasm.I32Const, TUndefined))
		}
	}

	out = append(out, wasm.I(wasm.Call, int64(target.Index)))

	out = c.noteCallResult(f, out, target)

	if target.Throws {
		f.Throws = true
		f.Scope.Throws = true
	}

	return out, nil
}

func (c *Compilation) noteCallResult(f *Func, out []wasm.Ins, target *Func) []wasm.Ins {
	switch len(target.Returns) {
	case 2:
		// (payload, tag) pair: keep the tag in #last_type
		out = append(out, c.setLastTypeDyn(f))
	case 1:
		tag := target.ReturnType
		if tag < 0 {
			tag = TNumber
		}

		out = append(out, c.setLastType(f, tag)...)
	default:
		out = append(out, c.constv(UNDEFINED))
		out = append(out, c.setLastType(f, TUndefined)...)
	}

	return out
}

func (c *Compilation) callImport(f *Func, ind int, im importFunc, args []*Node) (out []wasm.Ins, err error) {
	for i := range im.Params {
		if i < len(args) {
			ins, err := c.expr(f, args[i])
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}

			out = append(out, ins...)

			continue
		}

		out = append(out, c.constv(UNDEFINED))
	}

	out = append(out, wasm.I(wasm.Call, int64(ind)))

	if len(im.Results) == 0 {
		out = append(out, c.constv(UNDEFINED))
	}

	out = append(out, c.setLastType(f, TUndefined)...)

	return out, nil
}

// callSelf emits the -1 placeholder patched to the function's own
// index at finalization.
func (c *Compilation) callSelf(f *Func, args []*Node) (out []wasm.Ins, err error) {
	params := len(f.Params) / 2

	for i := 0; i < params; i++ {
		if i < len(args) {
			ins, err := c.expr(f, args[i])
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}

			out = append(out, ins...)
			out = append(out, c.nodeType(f, args[i])...)

			continue
		}

		out = append(out, c.constv(UNDEFINED), wasm.I(wasm.I32Const, TUndefined))
	}

	out = append(out, wasm.I(wasm.Call, -1))
	out = append(out, c.setLastTypeDyn(f))

	return out, nil
}

// protoCall enumerates type-tag candidates for a method and emits a
// leading type switch on the receiver, each candidate inlined in its
// own arm.
func (c *Compilation) protoCall(f *Func, obj *Node, method string, args []*Node) ([]wasm.Ins, error) {
	tags := c.builtins.protoCandidates(method)
	if len(tags) == 0 {
		out := c.throwIns(f, "TypeError", method+" is not a function")
		return append(out, c.constv(UNDEFINED)), nil
	}

	out, err := c.expr(f, obj)
	if err != nil {
		return nil, errors.Wrap(err, "receiver")
	}

	cap, ot := c.captureType(f, obj, "#proto_type")
	out = append(out, cap...)

	ptr := f.Scope.Slot(wasm.I32, c.uniqName("#proto_ptr"))

	out = append(out, c.ops.ToI32U...)
	out = append(out, wasm.I(wasm.LocalSet, int64(ptr.Idx)))

	g := &ProtoCtx{c: c, f: f, Ptr: ptr}
	g.Length = ProtoLength{g: g, cached: f.Scope.Slot(wasm.I32, c.uniqName("#proto_len"))}

	want := 0
	for _, tag := range tags {
		p, _ := c.builtins.Proto(tag, method)
		if p.Args > want {
			want = p.Args
		}
	}

	for i := 0; i < want; i++ {
		slot := f.Scope.Slot(c.valtype, c.uniqName("#proto_arg"))

		if i < len(args) {
			ins, err := c.expr(f, args[i])
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}

			out = append(out, ins...)
		} else {
			out = append(out, c.constv(UNDEFINED))
		}

		out = append(out, wasm.I(wasm.LocalSet, int64(slot.Idx)))
		g.Args = append(g.Args, []wasm.Ins{wasm.I(wasm.LocalGet, int64(slot.Idx))})
	}

	var cases []typeCase

	for _, tag := range tags {
		p, _ := c.builtins.Proto(tag, method)

		body, err := p.Gen(g)
		if err != nil {
			return nil, errors.Wrap(err, "%v.%v", TagName(tag), method)
		}

		if p.ReturnType >= 0 {
			body = append(body, c.setLastType(f, p.ReturnType)...)
		}

		cases = append(cases, typeCase{tags: []int{tag}, body: body})
	}

	def := c.throwIns(f, "TypeError", method+" is not a function")
	def = append(def, c.constv(UNDEFINED))

	typeIns := []wasm.Ins{wasm.I(wasm.LocalGet, int64(ot.Idx))}

	out = append(out, c.typeSwitch(f, typeIns, cases, def, byte(c.valtype))...)

	return out, nil
}

// regexCall compiles a regex literal through the registered external
// compiler and invokes the resulting function on the string argument.
func (c *Compilation) regexCall(f *Func, lit *Node, method string, args []*Node) ([]wasm.Ins, error) {
	if c.regex == nil {
		return nil, todo("regex literals need a registered regex compiler")
	}

	if method != "test" {
		return nil, todo("regex method %v is not supported", method)
	}

	fn, err := c.regex(c, lit.Regex.Pattern, lit.Regex.Flags)
	if err != nil {
		return nil, errors.Wrap(err, "compile regex %v", lit.Regex.Pattern)
	}

	return c.callFunc(f, fn, args)
}

// evalCall lowers eval of a string literal by parsing it with the
// host parser and lowering it inline; the last expression's value
// and type are kept. Any other form compiles to a ReferenceError.
func (c *Compilation) evalCall(f *Func, n *Node) ([]wasm.Ins, error) {
	if len(n.Arguments) != 1 || !n.Arguments[0].IsLiteralStr() {
		out := c.throwIns(f, "ReferenceError", "eval of a non-literal is not supported")
		return append(out, c.constv(UNDEFINED)), nil
	}

	if c.parse == nil {
		return nil, todo("eval needs a registered parser")
	}

	prog, err := c.parse(n.Arguments[0].Str)
	if err != nil {
		return nil, errors.Wrap(err, "eval parse")
	}

	objectHack(prog)

	var out []wasm.Ins

	body := prog.Body

	for i, s := range body {
		last := i == len(body)-1

		if last && s.Type == "ExpressionStatement" {
			ins, err := c.expr(f, s.Expression)
			if err != nil {
				return nil, errors.Wrap(err, "eval stmt %d", i)
			}

			out = append(out, ins...)
			out = append(out, c.noteType(f, s.Expression)...)

			return out, nil
		}

		ins, err := c.stmt(f, s, false)
		if err != nil {
			return nil, errors.Wrap(err, "eval stmt %d", i)
		}

		out = append(out, ins...)
	}

	out = append(out, c.constv(UNDEFINED))
	out = append(out, c.setLastType(f, TUndefined)...)

	return out, nil
}
