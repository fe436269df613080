package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowEncoder(tb *testing.T) {
	var (
		b []byte
		e LowEncoder
	)

	tb.Run("Reference", func(tb *testing.T) {
		b = e.Uint64(b[:0], 624485)
		assert.Equal(tb, []byte{0xe5, 0x8e, 0x26}, b)

		b = e.Int64(b[:0], -123456)
		assert.Equal(tb, []byte{0xc0, 0xbb, 0x78}, b)

		b = e.Int64(b[:0], -1)
		assert.Equal(tb, []byte{0x7f}, b)

		b = e.Uint64(b[:0], 0)
		assert.Equal(tb, []byte{0x00}, b)
	})

	tb.Run("Float", func(tb *testing.T) {
		b = e.Float64(b[:0], 1)
		assert.Equal(tb, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, b)
	})

	tb.Run("Name", func(tb *testing.T) {
		b = e.Name(b[:0], "abc")
		assert.Equal(tb, []byte{3, 'a', 'b', 'c'}, b)
	})

	tb.Run("Limits", func(tb *testing.T) {
		b = e.Limits(b[:0], 2, -1)
		assert.Equal(tb, []byte{LimitLo, 2}, b)

		b = e.Limits(b[:0], 2, 4)
		assert.Equal(tb, []byte{LimitLoHi, 2, 4}, b)
	})

	tb.Run("FuncType", func(tb *testing.T) {
		b = e.FuncType(b[:0], ResultType{F64, I32}, ResultType{F64})
		assert.Equal(tb, []byte{FuncTypeHeader, 2, F64, I32, 1, F64}, b)
	})
}

func TestEncoderIns(tb *testing.T) {
	var (
		b []byte
		e Encoder
	)

	tb.Run("Const", func(tb *testing.T) {
		b = e.Ins(b[:0], I(I32Const, 5))
		assert.Equal(tb, []byte{byte(I32Const), 5}, b)

		b = e.Ins(b[:0], F64C(0))
		assert.Equal(tb, []byte{byte(F64Const), 0, 0, 0, 0, 0, 0, 0, 0}, b)
	})

	tb.Run("Load", func(tb *testing.T) {
		b = e.Ins(b[:0], I(I32Load, 2, 0))
		assert.Equal(tb, []byte{byte(I32Load), 2, 0}, b)
	})

	tb.Run("BulkMemory", func(tb *testing.T) {
		b = e.Ins(b[:0], I(MemoryCopy))
		assert.Equal(tb, []byte{0xfc, 10, 0, 0}, b)
	})

	tb.Run("Blocktype", func(tb *testing.T) {
		b = e.Ins(b[:0], I(Block, BlockVoid))
		assert.Equal(tb, []byte{byte(Block), BlockVoid}, b)

		b = e.Ins(b[:0], I(If, F64))
		assert.Equal(tb, []byte{byte(If), F64}, b)
	})

	tb.Run("BrTable", func(tb *testing.T) {
		b = e.Ins(b[:0], Ins{Op: BrTable, Arg: []int64{0, 1, 2}})
		assert.Equal(tb, []byte{byte(BrTable), 2, 0, 1, 2}, b)
	})

	tb.Run("Throw", func(tb *testing.T) {
		b = e.Ins(b[:0], I(Throw, 0))
		assert.Equal(tb, []byte{byte(Throw), 0}, b)
	})
}

func TestEncoderModule(tb *testing.T) {
	var e Encoder

	m := &Module{Version: 1}

	tp := m.AddType(FuncType{Params: ResultType{F64}, Result: nil})
	m.Import = append(m.Import, Import{Module: "env", Name: "print", Type: tp})

	tp = m.AddType(FuncType{Result: ResultType{F64, I32}})
	m.Function = append(m.Function, tp)
	m.Code = append(m.Code, FuncCode{
		Locals: ResultType{F64, I32},
		Expr: []Ins{
			F64C(0),
			I(I32Const, 0x03),
			I(Ret),
		},
	})

	m.Memory = append(m.Memory, Limits{Lo: 1, Hi: -1})
	m.Tag = append(m.Tag, TagType{Type: m.AddType(FuncType{Params: ResultType{I32}})})
	m.Export = append(m.Export, Export{Name: "main", ExportType: ExportFunc, Index: 1})
	m.Data = append(m.Data, Data{Offset: 0x10000, Init: []byte{1, 2, 3}})

	b := e.Module(nil, m)

	require.True(tb, len(b) > 8)
	assert.Equal(tb, Magic, b[:4])
	assert.Equal(tb, []byte{1, 0, 0, 0}, b[4:8])

	// sections appear in the binary format's required order, not by
	// id: tag between memory and global, data count before code
	var order []byte
	d := 8

	for d < len(b) {
		order = append(order, b[d])
		var l LowDecoderStub
		size, next := l.Int(b, d+1)
		d = next + size
	}

	assert.Equal(tb, []byte{
		TypeSection, ImportSection, FunctionSection, MemorySection,
		TagSection, ExportSection, DataCountSection, CodeSection, DataSection,
	}, order)
}

// LowDecoderStub is just enough LEB decoding to walk section headers
// in tests.
type LowDecoderStub struct{}

func (LowDecoderStub) Int(b []byte, st int) (v, i int) {
	var s uint
	i = st

	for {
		v |= int(b[i]&0x7f) << s
		s += 7
		i++

		if b[i-1]&0x80 == 0 {
			return v, i
		}
	}
}
