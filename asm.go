package jsc

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"nikand.dev/go/jsc/wasm"
)

// taggedTemplate handles the two recognized tags: asm, a
// line-oriented assembler over the raw template, and
// __internal_print_type, which prints the inferred type tag of its
// argument.
func (c *Compilation) taggedTemplate(f *Func, n *Node) ([]wasm.Ins, error) {
	if n.Tag == nil || n.Tag.Type != "Identifier" {
		return nil, todo("unknown template tag")
	}

	switch n.Tag.Name {
	case "asm":
		return c.asmTemplate(f, n.Quasi)
	case "__internal_print_type":
		return c.printTypeTemplate(f, n.Quasi)
	}

	return nil, todo("template tag %v is not supported", n.Tag.Name)
}

func (c *Compilation) asmTemplate(f *Func, quasi *Node) (out []wasm.Ins, err error) {
	if quasi == nil || len(quasi.Expressions) != 0 {
		return nil, todo("asm templates with substitutions are not supported")
	}

	var raw strings.Builder
	for _, q := range quasi.Quasis {
		raw.WriteString(q.Raw)
	}

	for li, line := range strings.Split(raw.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";;") {
			continue
		}

		ins, err := c.asmLine(f, line)
		if err != nil {
			return nil, errors.Wrap(err, "line %d", li+1)
		}

		out = append(out, ins...)
	}

	return out, nil
}

func (c *Compilation) asmLine(f *Func, line string) ([]wasm.Ins, error) {
	tok := strings.Fields(line)

	switch tok[0] {
	case "local":
		if len(tok) != 4 {
			return nil, errors.New("local directive wants: local <name> <idx> <type>")
		}

		idx, err := strconv.Atoi(tok[2])
		if err != nil {
			return nil, errors.Wrap(err, "local index")
		}

		tp, ok := asmType(tok[3])
		if !ok {
			return nil, errors.New("unknown type: %v", tok[3])
		}

		// fill the gap so the declared index is honored
		for f.Scope.LocalInd < idx {
			f.Scope.Slot(c.valtype, c.uniqName("#asm_pad"))
		}

		f.Scope.Slot(tp, tok[1])

		return nil, nil
	case "returns":
		f.Returns = f.Returns[:0]

		for _, t := range tok[1:] {
			tp, ok := asmType(t)
			if !ok {
				return nil, errors.New("unknown type: %v", t)
			}

			f.Returns = append(f.Returns, tp)
		}

		return nil, nil
	case "memory":
		c.Pages.Alloc("asm intrinsic", "")

		return nil, nil
	}

	op, ok := wasm.OpByName(tok[0])
	if !ok {
		return nil, errors.New("unknown opcode: %v", tok[0])
	}

	ins := wasm.Ins{Op: op}

	for _, t := range tok[1:] {
		if op == wasm.F64Const {
			v, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, errors.Wrap(err, "immediate %v", t)
			}

			ins.F = v

			continue
		}

		if v, err := strconv.ParseInt(t, 0, 64); err == nil {
			ins.Arg = append(ins.Arg, v)
			continue
		}

		// a named local
		if b, ok := f.Scope.Lookup(t); ok {
			ins.Arg = append(ins.Arg, int64(b.Idx))
			continue
		}

		return nil, errors.New("bad immediate: %v", t)
	}

	return []wasm.Ins{ins}, nil
}

func asmType(s string) (wasm.Type, bool) {
	switch s {
	case "i32":
		return wasm.I32, true
	case "i64":
		return wasm.I64, true
	case "f32":
		return wasm.F32, true
	case "f64":
		return wasm.F64, true
	}

	return 0, false
}

// printTypeTemplate prints the inferred type tag of the interpolated
// expression and a newline.
func (c *Compilation) printTypeTemplate(f *Func, quasi *Node) ([]wasm.Ins, error) {
	if quasi == nil || len(quasi.Expressions) != 1 {
		return nil, todo("__internal_print_type wants exactly one substitution")
	}

	arg := quasi.Expressions[0]

	var out, typeIns []wasm.Ins

	if arg.Type == "Identifier" {
		typeIns = c.nodeType(f, arg)

		if b, global, ok := c.lookupName(f, arg.Name); ok && c.knownType(f, arg) < 0 {
			get, _ := getOp(global)
			typeIns = []wasm.Ins{wasm.I(get, int64(b.Idx + 1))}
		}
	} else {
		ins, err := c.expr(f, arg)
		if err != nil {
			return nil, err
		}

		capture, t := c.captureType(f, arg, "#ptype_tmp")

		out = append(out, ins...)
		out = append(out, capture...)
		out = append(out, wasm.I(wasm.Drop))

		typeIns = []wasm.Ins{wasm.I(wasm.LocalGet, int64(t.Idx))}
	}

	out = append(out, typeIns...)
	out = append(out, c.ops.FromI32U...)
	out = append(out, wasm.I(wasm.Call, ImportPrint))

	out = append(out, c.constv('\n'), wasm.I(wasm.Call, ImportPrintChar))

	out = append(out, c.constv(UNDEFINED))
	out = append(out, c.setLastType(f, TUndefined)...)

	return out, nil
}
