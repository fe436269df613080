package wasm

import (
	"encoding/binary"
	"math"
)

type (
	LowEncoder struct{}

	// Encoder serializes a Module into the binary format,
	// including bulk-memory and exception-handling encodings.
	Encoder struct {
		LowEncoder
	}
)

var Magic = []byte("\000asm")

func (e *LowEncoder) Int(b []byte, v int) []byte {
	return e.Uint64(b, uint64(v))
}

func (e *LowEncoder) Uint64(b []byte, v uint64) []byte {
	for {
		x := byte(v) & 0x7f
		v >>= 7

		if v != 0 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e *LowEncoder) Int64(b []byte, v int64) []byte {
	for {
		x := byte(v) & 0x7f
		s := byte(v) & 0x40
		v >>= 7

		if s == 0 && v != 0 || s != 0 && v != -1 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e *LowEncoder) Float64(b []byte, v float64) []byte {
	x := math.Float64bits(v)

	return append(b, byte(x), byte(x>>8), byte(x>>16), byte(x>>24), byte(x>>32), byte(x>>40), byte(x>>48), byte(x>>56))
}

func (e *LowEncoder) Name(b []byte, v string) []byte {
	b = e.Int(b, len(v))
	b = append(b, v...)

	return b
}

func (e *LowEncoder) BasicType(b []byte, tp byte) []byte {
	return append(b, tp)
}

func (e *LowEncoder) ResultType(b []byte, tp ...Type) []byte {
	b = e.Int(b, len(tp))

	for _, t := range tp {
		b = append(b, byte(t))
	}

	return b
}

func (e *LowEncoder) FuncType(b []byte, params, result ResultType) []byte {
	b = append(b, FuncTypeHeader)
	b = e.ResultType(b, params...)
	b = e.ResultType(b, result...)

	return b
}

func (e *LowEncoder) Limits(b []byte, lo, hi int) []byte {
	if hi < 0 {
		b = append(b, LimitLo)
		return e.Int(b, lo)
	}

	b = append(b, LimitLoHi)
	b = e.Int(b, lo)
	b = e.Int(b, hi)

	return b
}

func (e *LowEncoder) GlobalType(b []byte, tp Type, mut byte) []byte {
	return append(b, byte(tp), mut)
}

func (e *LowEncoder) Section(b []byte, id byte, data []byte) []byte {
	b = append(b, id)
	b = e.Int(b, len(data))
	b = append(b, data...)

	return b
}

// Ins encodes one instruction with its immediates.
func (e *Encoder) Ins(b []byte, ins Ins) []byte {
	if ins.Op.Prefixed() {
		b = append(b, 0xfc)
		b = e.Int(b, int(ins.Op&0xff))
	} else {
		b = append(b, byte(ins.Op))
	}

	switch ins.Op {
	case Block, Loop, If, Try:
		b = append(b, blocktype(ins))
	case Br, BrIf, Call, Throw, Rethrow, Delegate,
		LocalGet, LocalSet, LocalTee, GlobalGet, GlobalSet,
		DataDrop:
		b = e.Int(b, int(arg(ins, 0)))
	case CallIndir:
		b = e.Int(b, int(arg(ins, 0)))
		b = e.Int(b, int(arg(ins, 1)))
	case BrTable:
		b = e.Int(b, len(ins.Arg)-1)
		for _, t := range ins.Arg {
			b = e.Int(b, int(t))
		}
	case I32Const:
		b = e.Int64(b, arg(ins, 0))
	case I64Const:
		b = e.Int64(b, arg(ins, 0))
	case F64Const:
		b = e.Float64(b, ins.F)
	case F32Const:
		x := math.Float32bits(float32(ins.F))
		b = binary.LittleEndian.AppendUint32(b, x)
	case I32Load, I64Load, F32Load, F64Load,
		I32Load8S, I32Load8U, I32Load16S, I32Load16U,
		I64Load32S, I64Load32U,
		I32Store, I64Store, F32Store, F64Store,
		I32Store8, I32Store16, I64Store32:
		b = e.Int(b, int(arg(ins, 0)))
		b = e.Int(b, int(arg(ins, 1)))
	case MemorySize, MemoryGrow, MemoryFill:
		b = append(b, 0x00)
	case MemoryCopy:
		b = append(b, 0x00, 0x00)
	case MemoryInit:
		b = e.Int(b, int(arg(ins, 0)))
		b = append(b, 0x00)
	}

	return b
}

func (e *Encoder) Expr(b []byte, code []Ins) []byte {
	for _, ins := range code {
		b = e.Ins(b, ins)
	}

	return append(b, byte(End))
}

// Module encodes the whole module.
// The tag section sits between memory and global, data count
// precedes code.
func (e *Encoder) Module(b []byte, m *Module) []byte {
	b = append(b, Magic...)
	b = binary.LittleEndian.AppendUint32(b, uint32(m.Version))

	var sec []byte

	if len(m.Type) != 0 {
		sec = e.Int(sec[:0], len(m.Type))
		for _, tp := range m.Type {
			sec = e.FuncType(sec, tp.Params, tp.Result)
		}

		b = e.Section(b, TypeSection, sec)
	}

	if len(m.Import) != 0 {
		sec = e.Int(sec[:0], len(m.Import))
		for _, im := range m.Import {
			sec = e.Name(sec, im.Module)
			sec = e.Name(sec, im.Name)
			sec = append(sec, 0x00)
			sec = e.Int(sec, int(im.Type))
		}

		b = e.Section(b, ImportSection, sec)
	}

	if len(m.Function) != 0 {
		sec = e.Int(sec[:0], len(m.Function))
		for _, tp := range m.Function {
			sec = e.Int(sec, int(tp))
		}

		b = e.Section(b, FunctionSection, sec)
	}

	if len(m.Memory) != 0 {
		sec = e.Int(sec[:0], len(m.Memory))
		for _, l := range m.Memory {
			sec = e.Limits(sec, l.Lo, l.Hi)
		}

		b = e.Section(b, MemorySection, sec)
	}

	if len(m.Tag) != 0 {
		sec = e.Int(sec[:0], len(m.Tag))
		for _, t := range m.Tag {
			sec = append(sec, t.Attr)
			sec = e.Int(sec, int(t.Type))
		}

		b = e.Section(b, TagSection, sec)
	}

	if len(m.Global) != 0 {
		sec = e.Int(sec[:0], len(m.Global))
		for _, g := range m.Global {
			sec = e.GlobalType(sec, g.Type, g.Mut)
			sec = e.Expr(sec, g.Expr)
		}

		b = e.Section(b, GlobalSection, sec)
	}

	if len(m.Export) != 0 {
		sec = e.Int(sec[:0], len(m.Export))
		for _, x := range m.Export {
			sec = e.Name(sec, x.Name)
			sec = append(sec, x.ExportType)
			sec = e.Int(sec, int(x.Index))
		}

		b = e.Section(b, ExportSection, sec)
	}

	if len(m.Data) != 0 {
		sec = e.Int(sec[:0], len(m.Data))
		b = e.Section(b, DataCountSection, sec)
	}

	if len(m.Code) != 0 {
		sec = e.Int(sec[:0], len(m.Code))
		var fn []byte

		for _, f := range m.Code {
			fn = e.funcCode(fn[:0], f)
			sec = e.Int(sec, len(fn))
			sec = append(sec, fn...)
		}

		b = e.Section(b, CodeSection, sec)
	}

	if len(m.Data) != 0 {
		sec = e.Int(sec[:0], len(m.Data))
		for _, d := range m.Data {
			sec = append(sec, 0x00)
			sec = e.Expr(sec, []Ins{I(I32Const, int64(d.Offset))})
			sec = e.Int(sec, len(d.Init))
			sec = append(sec, d.Init...)
		}

		b = e.Section(b, DataSection, sec)
	}

	for _, c := range m.Custom {
		sec = e.Name(sec[:0], string(c.Name))
		sec = append(sec, c.Data...)
		b = e.Section(b, CustomSection, sec)
	}

	return b
}

func (e *Encoder) funcCode(b []byte, f FuncCode) []byte {
	// locals are run-length grouped by type
	var runs int
	for i := 0; i < len(f.Locals); {
		j := i
		for j < len(f.Locals) && f.Locals[j] == f.Locals[i] {
			j++
		}
		runs++
		i = j
	}

	b = e.Int(b, runs)

	for i := 0; i < len(f.Locals); {
		j := i
		for j < len(f.Locals) && f.Locals[j] == f.Locals[i] {
			j++
		}

		b = e.Int(b, j-i)
		b = append(b, byte(f.Locals[i]))
		i = j
	}

	return e.Expr(b, f.Expr)
}

func blocktype(ins Ins) byte {
	if len(ins.Arg) == 0 {
		return BlockVoid
	}

	return byte(ins.Arg[0])
}

func arg(ins Ins, i int) int64 {
	if i >= len(ins.Arg) {
		return 0
	}

	return ins.Arg[i]
}
