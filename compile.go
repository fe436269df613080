package jsc

import (
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"unicode/utf16"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"nikand.dev/go/jsc/wasm"
)

type (
	// Options configure one compilation. Zero values mean defaults:
	// f64 valtype, 64 KiB pages.
	Options struct {
		Valtype  string // i32 | i64 | f64
		PageSize int    // bytes

		TypeswitchBrTable      bool
		WellFormedStringApprox bool
		ASTLog                 bool
	}

	// ParseFunc is the host parser, used for eval of string
	// literals.
	ParseFunc func(src string) (*Node, error)

	// RegexFunc compiles a regex literal into a fresh function
	// taking a string pointer and returning a (payload, tag) pair.
	RegexFunc func(c *Compilation, pattern, flags string) (*Func, error)

	// Func is one compiled function.
	Func struct {
		Name    string
		Params  []wasm.Type
		Returns []wasm.Type
		Wasm    []wasm.Ins
		Scope   *Scope
		Index   int
		Export  bool
		Internal bool
		Throws  bool

		TypedParams bool
		TypedReturn bool
		ReturnType  int // type tag, -1 when unknown

		retKnown int
	}

	// Tag is a wasm exception tag.
	Tag struct {
		Params []wasm.Type
	}

	// Exception is one compile-time-assigned throw site.
	Exception struct {
		Constructor string
		Message     string
	}

	importFunc struct {
		Module, Name string

		Params  []wasm.Type
		Results []wasm.Type
	}

	depthEntry struct {
		kind   string
		frames int
	}

	// genOps is the generic opcode table resolved once from the
	// module valtype.
	genOps struct {
		Const wasm.Opcode
		Add   wasm.Opcode
		Sub   wasm.Opcode
		Mul   wasm.Opcode
		Div   wasm.Opcode
		Eq    wasm.Opcode
		Ne    wasm.Opcode
		Lt    wasm.Opcode
		Gt    wasm.Opcode
		Le    wasm.Opcode
		Ge    wasm.Opcode
		Load  wasm.Opcode
		Store wasm.Opcode

		Eqz      []wasm.Ins
		ToI32    []wasm.Ins
		ToI32U   []wasm.Ins
		FromI32  []wasm.Ins
		FromI32U []wasm.Ins

		Size  int
		Align int64
	}

	// Compilation carries all state of one run and doubles as the
	// result record consumed by the serializer.
	Compilation struct {
		Funcs      []*Func
		Globals    *Scope
		Tags       []Tag
		Exceptions []Exception
		Pages      *PageMap
		Data       []DataSegment

		// instruction offsets of string concat sites, collected
		// under -aot-well-formed-string-approximation
		WellFormedSites []int

		opts        Options
		valtype     wasm.Type
		ops         genOps
		imports     []importFunc
		builtins    *Builtins
		funcsByName map[string]*Func
		arrays      map[string]int
		strPool     map[string]int
		depth       []depthEntry
		uniq        int

		parse ParseFunc
		regex RegexFunc
	}
)

var ErrValtype = stderrors.New("unsupported valtype")

// Imported function indices. Function indices of compiled functions
// start after these.
const (
	ImportPrint = iota
	ImportPrintChar

	importCount
)

// New creates a fresh Compilation. State is never shared between
// runs; create a new value for every top-level entry.
func New(opts Options) (*Compilation, error) {
	if opts.Valtype == "" {
		opts.Valtype = "f64"
	}

	if opts.PageSize == 0 {
		opts.PageSize = 64 * 1024
	}

	c := &Compilation{
		Globals:     newScope("#globals"),
		Pages:       newPageMap(opts.PageSize),
		opts:        opts,
		funcsByName: map[string]*Func{},
		arrays:      map[string]int{},
		strPool:     map[string]int{},
	}

	c.Globals.global = true

	switch opts.Valtype {
	case "f64":
		c.valtype = wasm.F64
		c.ops = genOps{
			Const: wasm.F64Const,
			Add:   wasm.F64Add, Sub: wasm.F64Sub, Mul: wasm.F64Mul, Div: wasm.F64Div,
			Eq: wasm.F64Eq, Ne: wasm.F64Ne,
			Lt: wasm.F64Lt, Gt: wasm.F64Gt, Le: wasm.F64Le, Ge: wasm.F64Ge,
			Load: wasm.F64Load, Store: wasm.F64Store,
			Eqz:      []wasm.Ins{wasm.F64C(0), wasm.I(wasm.F64Eq)},
			ToI32:    []wasm.Ins{wasm.I(wasm.I32TruncSatF64S)},
			ToI32U:   []wasm.Ins{wasm.I(wasm.I32TruncSatF64U)},
			FromI32:  []wasm.Ins{wasm.I(wasm.F64ConvertI32S)},
			FromI32U: []wasm.Ins{wasm.I(wasm.F64ConvertI32U)},
			Size:     8, Align: 3,
		}
	case "i32":
		c.valtype = wasm.I32
		c.ops = genOps{
			Const: wasm.I32Const,
			Add:   wasm.I32Add, Sub: wasm.I32Sub, Mul: wasm.I32Mul, Div: wasm.I32DivS,
			Eq: wasm.I32Eq, Ne: wasm.I32Ne,
			Lt: wasm.I32LtS, Gt: wasm.I32GtS, Le: wasm.I32LeS, Ge: wasm.I32GeS,
			Load: wasm.I32Load, Store: wasm.I32Store,
			Eqz:  []wasm.Ins{wasm.I(wasm.I32EqZ)},
			Size: 4, Align: 2,
		}
	case "i64":
		c.valtype = wasm.I64
		c.ops = genOps{
			Const: wasm.I64Const,
			Add:   wasm.I64Add, Sub: wasm.I64Sub, Mul: wasm.I64Mul, Div: wasm.I64DivS,
			Eq: wasm.I64Eq, Ne: wasm.I64Ne,
			Lt: wasm.I64LtS, Gt: wasm.I64GtS, Le: wasm.I64LeS, Ge: wasm.I64GeS,
			Load: wasm.I64Load, Store: wasm.I64Store,
			Eqz:      []wasm.Ins{wasm.I(wasm.I64EqZ)},
			ToI32:    []wasm.Ins{wasm.I(wasm.I32WrapI64)},
			ToI32U:   []wasm.Ins{wasm.I(wasm.I32WrapI64)},
			FromI32:  []wasm.Ins{wasm.I(wasm.I64ExtendI32S)},
			FromI32U: []wasm.Ins{wasm.I(wasm.I64ExtendI32U)},
			Size:     8, Align: 3,
		}
	default:
		return nil, errors.Wrap(ErrValtype, "%v", opts.Valtype)
	}

	c.imports = []importFunc{
		{Module: "env", Name: "print", Params: []wasm.Type{c.valtype}},
		{Module: "env", Name: "printChar", Params: []wasm.Type{c.valtype}},
	}

	c.builtins = newBuiltins(c)

	return c, nil
}

// RegisterParser installs the host parser used by eval of string
// literals.
func (c *Compilation) RegisterParser(p ParseFunc) { c.parse = p }

// RegisterRegexCompiler installs the external regex-to-wasm compiler.
func (c *Compilation) RegisterRegexCompiler(r RegexFunc) { c.regex = r }

// Compile lowers an ESTree program into the compilation record.
func (c *Compilation) Compile(prog *Node) (err error) {
	if prog == nil || prog.Type != "Program" {
		return errors.New("expected Program, got %v", nodeKind(prog))
	}

	if c.opts.ASTLog {
		js, _ := json.Marshal(prog)
		tlog.Printw("ast", "json", string(js))
	}

	objectHack(prog)

	main := c.newFunc("main")
	main.Export = true

	err = c.program(main, prog)
	if err != nil {
		return errors.Wrap(err, "main")
	}

	c.finalize(main)

	if !c.stringCapable() {
		for _, f := range c.Funcs {
			f.Wasm = PruneStringOnly(f.Wasm)
		}
	}

	return nil
}

// stringCapable reports whether the module valtype carries string
// pointers. Only the default f64 mode does; the integer modes target
// pure-numeric kernels and string-only instruction runs are pruned.
func (c *Compilation) stringCapable() bool {
	return c.valtype == wasm.F64
}

// PruneStringOnly drops instruction runs annotated as string-only.
func PruneStringOnly(code []wasm.Ins) []wasm.Ins {
	out := code[:0]
	depth := 0

	for _, ins := range code {
		switch ins.Note {
		case NoteStringOnlyStart:
			depth++
			continue
		case NoteStringOnlyEnd:
			depth--
			continue
		case NoteStringOnly:
			continue
		}

		if depth == 0 {
			out = append(out, ins)
		}
	}

	return out
}

// Annotation aliases re-exported for tests and downstream passes.
const (
	NoteStringOnly      = wasm.NoteStringOnly
	NoteStringOnlyStart = wasm.NoteStringOnlyStart
	NoteStringOnlyEnd   = wasm.NoteStringOnlyEnd
)

func (c *Compilation) newFunc(name string) *Func {
	return &Func{
		Name:       name,
		Scope:      newScope(name),
		Returns:    []wasm.Type{c.valtype, wasm.I32},
		Index:      -1,
		ReturnType: -1,
		retKnown:   retUnset,
	}
}

// push appends the function to the table, assigning its index after
// the imported functions.
func (c *Compilation) push(f *Func) {
	f.Index = importCount + len(c.Funcs)
	c.Funcs = append(c.Funcs, f)

	if f.Name != "" {
		c.funcsByName[f.Name] = f
	}

	tlog.V("codegen").Printw("func", "name", f.Name, "index", f.Index, "throws", f.Throws)
}

func (c *Compilation) uniqName(prefix string) string {
	c.uniq++
	return prefix + "#" + itoa(c.uniq)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}

	var b [20]byte
	i := len(b)

	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}

	return string(b[i:])
}

// internString allocates a page for a literal string and emits its
// bytes into the data section. Repeated literals share one page.
func (c *Compilation) internString(s string) int {
	if ptr, ok := c.strPool[s]; ok {
		return ptr
	}

	units := utf16.Encode([]rune(s))
	ptr := c.Pages.Ptr("string: "+s, "string")

	b := make([]byte, 4+2*len(units))
	binary.LittleEndian.PutUint32(b, uint32(len(units)))

	for i, u := range units {
		binary.LittleEndian.PutUint16(b[4+2*i:], u)
	}

	c.emitData(ptr, b)
	c.strPool[s] = ptr

	return ptr
}

// exception assigns a compile-time index for a throw site.
func (c *Compilation) exception(constructor, message string) int {
	c.Exceptions = append(c.Exceptions, Exception{Constructor: constructor, Message: message})

	if len(c.Tags) == 0 {
		c.Tags = append(c.Tags, Tag{Params: []wasm.Type{wasm.I32}})
	}

	return len(c.Exceptions) - 1
}

// throwIns emits the instruction sequence for throw new
// constructor(message) with the shared tag.
func (c *Compilation) throwIns(f *Func, constructor, message string) []wasm.Ins {
	ind := c.exception(constructor, message)

	f.Scope.Throws = true
	f.Throws = true

	return []wasm.Ins{
		wasm.I(wasm.I32Const, int64(ind)),
		wasm.I(wasm.Throw, 0),
	}
}

// ArrayPtr returns the byte pointer of a named declared array.
func (c *Compilation) ArrayPtr(name string) (int, bool) {
	ptr, ok := c.arrays[name]
	return ptr, ok
}

// CountLeftover reports the net stack effect of a function body.
// Well-formed bodies leave 0, or 2 when the final expression flows
// to the implicit return.
func (c *Compilation) CountLeftover(f *Func) int {
	return c.countLeftover(f, f.Wasm)
}

func (c *Compilation) markWellFormedSite(off int) {
	c.WellFormedSites = append(c.WellFormedSites, off)
}

// Module flattens the compilation record into the binary-level
// module model.
func (c *Compilation) Module() *wasm.Module {
	m := &wasm.Module{Version: 1}

	for _, im := range c.imports {
		tp := m.AddType(wasm.FuncType{Params: wasm.ResultType(im.Params), Result: wasm.ResultType(im.Results)})
		m.Import = append(m.Import, wasm.Import{Module: im.Module, Name: im.Name, Type: tp})
	}

	for _, f := range c.Funcs {
		tp := m.AddType(wasm.FuncType{Params: wasm.ResultType(f.Params), Result: wasm.ResultType(f.Returns)})
		m.Function = append(m.Function, tp)
		m.Code = append(m.Code, wasm.FuncCode{
			Locals: wasm.ResultType(f.Scope.Types[len(f.Params):]),
			Expr:   f.Wasm,
		})

		if f.Export {
			m.Export = append(m.Export, wasm.Export{
				Name:       f.Name,
				ExportType: wasm.ExportFunc,
				Index:      wasm.Index(f.Index),
			})
		}
	}

	for _, t := range c.Tags {
		tp := m.AddType(wasm.FuncType{Params: wasm.ResultType(t.Params)})
		m.Tag = append(m.Tag, wasm.TagType{Type: tp})
	}

	for _, g := range c.Globals.Types {
		init := wasm.Ins{Op: wasm.I32Const, Arg: []int64{0}}

		switch g {
		case wasm.F64:
			init = wasm.F64C(0)
		case wasm.I64:
			init = wasm.I(wasm.I64Const, 0)
		}

		m.Global = append(m.Global, wasm.Global{Type: g, Mut: 1, Expr: []wasm.Ins{init}})
	}

	if c.Pages.Len() > 0 {
		wasmPages := (c.Pages.Len()*c.Pages.PageSize + 0xffff) / 0x10000
		m.Memory = append(m.Memory, wasm.Limits{Lo: wasmPages, Hi: -1})
		m.Export = append(m.Export, wasm.Export{Name: "memory", ExportType: wasm.ExportMemory})
	}

	for _, d := range c.Data {
		m.Data = append(m.Data, wasm.Data{Offset: d.Offset, Init: d.Bytes})
	}

	return m
}

func nodeKind(n *Node) string {
	if n == nil {
		return "<nil>"
	}

	return n.Type
}
