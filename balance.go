package jsc

import "nikand.dev/go/jsc/wasm"

// countLeftover is a linear scan over an instruction buffer tracking
// the net stack effect at depth 0. It is not a type checker, just an
// approximation adequate for well-formed bodies: it seeds the
// trailing-drop policy for expression statements and decides whether
// an implicit return is needed at function end.
func (c *Compilation) countLeftover(f *Func, code []wasm.Ins) int {
	count, depth := 0, 0

	for _, ins := range code {
		op := ins.Op

		switch op {
		case wasm.Block, wasm.Loop, wasm.If, wasm.Try:
			if depth == 0 {
				if op == wasm.If {
					count--
				}

				if blocktypeOf(ins) != wasm.BlockVoid {
					count++
				}
			}

			depth++

			continue
		case wasm.End:
			if depth > 0 {
				depth--
			}

			continue
		}

		if depth > 0 {
			continue
		}

		switch op {
		case wasm.I32Const, wasm.I64Const, wasm.F32Const, wasm.F64Const,
			wasm.LocalGet, wasm.GlobalGet, wasm.MemorySize:
			count++
		case wasm.LocalSet, wasm.GlobalSet, wasm.Drop, wasm.BrIf:
			count--
		case wasm.I32Store, wasm.I64Store, wasm.F32Store, wasm.F64Store,
			wasm.I32Store8, wasm.I32Store16, wasm.I64Store32:
			count -= 2
		case wasm.MemoryCopy, wasm.MemoryFill, wasm.MemoryInit:
			count -= 3
		case wasm.Select:
			count -= 2
		case wasm.Throw, wasm.BrTable:
			count--
		case wasm.Ret:
			count = 0
		case wasm.Call:
			count += c.callEffect(f, ins)
		default:
			if isBinaryEffect(op) {
				count--
			}
		}
	}

	return count
}

// callEffect consults the callee's parameter and result counts.
func (c *Compilation) callEffect(f *Func, ins wasm.Ins) int {
	if len(ins.Arg) == 0 {
		return 0
	}

	ind := int(ins.Arg[0])

	if ind == -1 {
		return len(f.Returns) - len(f.Params)
	}

	if ind >= 0 && ind < len(c.imports) {
		im := c.imports[ind]
		return len(im.Results) - len(im.Params)
	}

	for _, fn := range c.Funcs {
		if fn.Index == ind {
			return len(fn.Returns) - len(fn.Params)
		}
	}

	return 0
}

func blocktypeOf(ins wasm.Ins) int64 {
	if len(ins.Arg) == 0 {
		return wasm.BlockVoid
	}

	return ins.Arg[0]
}

// isBinaryEffect covers the two-operand numeric opcodes: compare,
// arithmetic, bit ops. Unary and conversion opcodes are stack
// neutral and fall through.
func isBinaryEffect(op wasm.Opcode) bool {
	switch {
	case op >= wasm.I32Eq && op <= wasm.I32GeU:
	case op >= wasm.I64Eq && op <= 0x5a: // i64 compares
	case op >= 0x5b && op <= wasm.F64Ge: // f32/f64 compares
	case op >= wasm.I32Add && op <= 0x78: // i32 arith incl rotl/rotr
	case op >= wasm.I64Add && op <= 0x8a:
	case op >= 0x92 && op <= 0x98: // f32 binary
	case op >= wasm.F64Add && op <= 0xa6:
	default:
		return false
	}

	return true
}
