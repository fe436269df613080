package wasm

import "tlog.app/go/tlog/tlwire"

type (
	Module struct {
		Version int

		Type     []FuncType
		Import   []Import
		Function []Index
		Memory   []Limits
		Tag      []TagType
		Global   []Global
		Export   []Export
		Code     []FuncCode
		Data     []Data

		Custom []Custom
	}

	Index int
	Type  byte
	Code  []byte

	ResultType []Type

	FuncType struct {
		Params ResultType
		Result ResultType
	}

	// Import is a function import. Only function imports are
	// emitted; the generator has no use for the other kinds.
	Import struct {
		Module, Name string

		Type Index // into Module.Type
	}

	Export struct {
		Name string

		ExportType byte

		Index Index
	}

	Limits struct {
		Lo, Hi int
	}

	Global struct {
		Type Type
		Mut  byte
		Expr []Ins
	}

	// TagType is an exception tag (exception-handling proposal).
	TagType struct {
		Attr byte
		Type Index
	}

	Data struct {
		Offset int
		Init   []byte
	}

	Custom struct {
		Name []byte
		Data []byte
	}

	FuncCode struct {
		Locals ResultType
		Expr   []Ins
	}
)

// Export kinds.
const (
	ExportFunc byte = iota
	ExportTable
	ExportMemory
	ExportGlobal
	ExportTag
)

// Basic types.
const (
	I32 = 0x7f
	I64 = 0x7e
	F32 = 0x7d
	F64 = 0x7c

	V128 = 0x7b

	FuncRef   = 0x70
	ExternRef = 0x6f

	FuncTypeHeader = 0x60

	LimitLo   = 0x00
	LimitLoHi = 0x01
)

// Section ids.
const (
	CustomSection = iota
	TypeSection
	ImportSection
	FunctionSection
	TableSection
	MemorySection
	GlobalSection
	ExportSection
	StartSection
	ElementSection
	CodeSection
	DataSection
	DataCountSection
	TagSection

	sectionNext
)

func init() {
	if sectionNext != 14 {
		panic(sectionNext)
	}
}

// AddType returns the index of tp, appending it if not yet present.
func (m *Module) AddType(tp FuncType) Index {
	for i, t := range m.Type {
		if t.Equal(tp) {
			return Index(i)
		}
	}

	m.Type = append(m.Type, tp)

	return Index(len(m.Type) - 1)
}

func (tp FuncType) Equal(tp2 FuncType) bool {
	return tp.Params.Equal(tp2.Params) && tp.Result.Equal(tp2.Result)
}

func (tp ResultType) Equal(tp2 ResultType) bool {
	if len(tp) != len(tp2) {
		return false
	}

	for i := range tp {
		if tp[i] != tp2[i] {
			return false
		}
	}

	return true
}

func (c Code) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendSemantic(b, tlwire.Hex)

	return e.AppendBytes(b, c)
}

func (tp ResultType) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendSemantic(b, tlwire.Hex)
	b = e.AppendArray(b, len(tp))

	for _, t := range tp {
		b = e.AppendInt(b, int(t))
	}

	return b
}

func (ins Ins) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendArray(b, 1+len(ins.Arg))
	b = e.AppendString(b, ins.Op.String())

	for _, a := range ins.Arg {
		b = e.AppendInt64(b, a)
	}

	return b
}
