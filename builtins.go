package jsc

import (
	"math"

	"nikand.dev/go/jsc/wasm"
)

type (
	// BuiltinVar is a named constant with a value and a type tag.
	BuiltinVar struct {
		Value float64
		Type  int
	}

	// BuiltinFunc is a pre-written opcode body. Bodies refer to
	// their parameters as locals 0..len(Params)-1.
	BuiltinFunc struct {
		Params  []wasm.Type
		Returns []wasm.Type
		Wasm    []wasm.Ins

		FloatOnly   bool
		TypedParams bool
		TypedReturn bool
		ReturnType  int
	}

	// Constructor is an internal constructor (Array, Array.of).
	Constructor struct {
		Gen  func(c *Compilation, f *Func, n *Node) ([]wasm.Ins, error)
		Type int
	}

	protoKey struct {
		Tag  int
		Name string
	}

	// Builtins holds the four independently-queryable tables.
	Builtins struct {
		Vars         map[string]BuiltinVar
		Funcs        map[string]*BuiltinFunc
		Protos       map[protoKey]*ProtoFunc
		Constructors map[string]*Constructor
	}
)

func (b *Builtins) RegisterVar(name string, v BuiltinVar)        { b.Vars[name] = v }
func (b *Builtins) RegisterFunc(name string, f *BuiltinFunc)     { b.Funcs[name] = f }
func (b *Builtins) RegisterProto(tag int, name string, p *ProtoFunc) {
	b.Protos[protoKey{Tag: tag, Name: name}] = p
}
func (b *Builtins) RegisterConstructor(name string, ct *Constructor) {
	b.Constructors[name] = ct
}

// Proto looks a prototype method up by receiver tag and name.
func (b *Builtins) Proto(tag int, name string) (*ProtoFunc, bool) {
	p, ok := b.Protos[protoKey{Tag: tag, Name: name}]
	return p, ok
}

// protoCandidates enumerates tag-keyed candidates for a method name.
func (b *Builtins) protoCandidates(name string) []int {
	var tags []int

	for tag := 0; tag <= maxTag; tag++ {
		if _, ok := b.Protos[protoKey{Tag: tag, Name: name}]; ok {
			tags = append(tags, tag)
		}
	}

	return tags
}

// singleProto returns the only candidate for a method name, if
// exactly one type's prototype table contains it.
func (b *Builtins) singleProto(name string) (*ProtoFunc, bool) {
	tags := b.protoCandidates(name)
	if len(tags) != 1 {
		return nil, false
	}

	return b.Protos[protoKey{Tag: tags[0], Name: name}], true
}

// splitProtoName extracts the method part of a hacked __obj_method
// identifier.
func splitProtoName(name string) (string, bool) {
	if len(name) < 3 || name[0] != '_' || name[1] != '_' {
		return "", false
	}

	for i := len(name) - 1; i > 2; i-- {
		if name[i] == '_' {
			return name[i+1:], true
		}
	}

	return "", false
}

// receiverOfProtoName extracts the receiver part of __obj_method.
func receiverOfProtoName(name string) (string, bool) {
	if len(name) < 3 || name[0] != '_' || name[1] != '_' {
		return "", false
	}

	for i := len(name) - 1; i > 2; i-- {
		if name[i] == '_' {
			return name[2:i], true
		}
	}

	return "", false
}

func newBuiltins(c *Compilation) *Builtins {
	b := &Builtins{
		Vars:         map[string]BuiltinVar{},
		Funcs:        map[string]*BuiltinFunc{},
		Protos:       map[protoKey]*ProtoFunc{},
		Constructors: map[string]*Constructor{},
	}

	b.RegisterVar("NaN", BuiltinVar{Value: math.NaN(), Type: TNumber})
	b.RegisterVar("Infinity", BuiltinVar{Value: math.Inf(1), Type: TNumber})
	b.RegisterVar("__Math_PI", BuiltinVar{Value: math.Pi, Type: TNumber})
	b.RegisterVar("__Math_E", BuiltinVar{Value: math.E, Type: TNumber})
	b.RegisterVar("__Math_LN2", BuiltinVar{Value: math.Ln2, Type: TNumber})
	b.RegisterVar("__Math_SQRT2", BuiltinVar{Value: math.Sqrt2, Type: TNumber})
	b.RegisterVar("__Number_MAX_SAFE_INTEGER", BuiltinVar{Value: 1<<53 - 1, Type: TNumber})
	b.RegisterVar("__Number_MIN_SAFE_INTEGER", BuiltinVar{Value: -(1<<53 - 1), Type: TNumber})
	b.RegisterVar("__Number_EPSILON", BuiltinVar{Value: 0x1p-52, Type: TNumber})
	b.RegisterVar("__Number_MAX_VALUE", BuiltinVar{Value: math.MaxFloat64, Type: TNumber})

	unop := func(op wasm.Opcode) *BuiltinFunc {
		return &BuiltinFunc{
			Params:  []wasm.Type{wasm.F64},
			Returns: []wasm.Type{wasm.F64},
			Wasm: []wasm.Ins{
				wasm.I(wasm.LocalGet, 0),
				wasm.I(op),
			},
			FloatOnly:  true,
			ReturnType: TNumber,
		}
	}

	binop := func(op wasm.Opcode) *BuiltinFunc {
		return &BuiltinFunc{
			Params:  []wasm.Type{wasm.F64, wasm.F64},
			Returns: []wasm.Type{wasm.F64},
			Wasm: []wasm.Ins{
				wasm.I(wasm.LocalGet, 0),
				wasm.I(wasm.LocalGet, 1),
				wasm.I(op),
			},
			FloatOnly:  true,
			ReturnType: TNumber,
		}
	}

	b.RegisterFunc("__Math_sqrt", unop(wasm.F64Sqrt))
	b.RegisterFunc("__Math_abs", unop(wasm.F64Abs))
	b.RegisterFunc("__Math_floor", unop(wasm.F64Floor))
	b.RegisterFunc("__Math_ceil", unop(wasm.F64Ceil))
	b.RegisterFunc("__Math_trunc", unop(wasm.F64Trunc))
	b.RegisterFunc("__Math_round", unop(wasm.F64Nearest))
	b.RegisterFunc("__Math_min", binop(wasm.F64Min))
	b.RegisterFunc("__Math_max", binop(wasm.F64Max))

	b.RegisterFunc("isNaN", &BuiltinFunc{
		Params:  []wasm.Type{wasm.F64},
		Returns: []wasm.Type{wasm.F64},
		Wasm: []wasm.Ins{
			wasm.I(wasm.LocalGet, 0),
			wasm.I(wasm.LocalGet, 0),
			wasm.I(wasm.F64Ne),
			wasm.I(wasm.F64ConvertI32U),
		},
		FloatOnly:  true,
		ReturnType: TBoolean,
	})

	b.RegisterFunc("isFinite", &BuiltinFunc{
		Params:  []wasm.Type{wasm.F64},
		Returns: []wasm.Type{wasm.F64},
		Wasm: []wasm.Ins{
			wasm.I(wasm.LocalGet, 0),
			wasm.I(wasm.F64Abs),
			wasm.F64C(math.Inf(1)),
			wasm.I(wasm.F64Lt),
			wasm.I(wasm.F64ConvertI32U),
		},
		FloatOnly:  true,
		ReturnType: TBoolean,
	})

	b.RegisterFunc("print", &BuiltinFunc{
		Params: []wasm.Type{c.valtype},
		Wasm: []wasm.Ins{
			wasm.I(wasm.LocalGet, 0),
			wasm.I(wasm.Call, ImportPrint),
		},
		ReturnType: TUndefined,
	})

	b.RegisterFunc("printChar", &BuiltinFunc{
		Params: []wasm.Type{c.valtype},
		Wasm: []wasm.Ins{
			wasm.I(wasm.LocalGet, 0),
			wasm.I(wasm.Call, ImportPrintChar),
		},
		ReturnType: TUndefined,
	})

	registerProtos(b)
	registerConstructors(b)

	return b
}

// includeBuiltin instantiates a builtin body as a module function on
// first use.
func (c *Compilation) includeBuiltin(name string) (*Func, error) {
	if f, ok := c.funcsByName[name]; ok {
		return f, nil
	}

	bf, ok := c.builtins.Funcs[name]
	if !ok {
		return nil, nil
	}

	if bf.FloatOnly && c.valtype != wasm.F64 {
		return nil, todo("builtin %v requires f64 valtype", name)
	}

	f := &Func{
		Name:        name,
		Params:      bf.Params,
		Returns:     bf.Returns,
		Wasm:        bf.Wasm,
		Scope:       newScope(name),
		Internal:    true,
		TypedParams: bf.TypedParams,
		TypedReturn: bf.TypedReturn,
		ReturnType:  bf.ReturnType,
	}

	f.Scope.Types = append(f.Scope.Types, bf.Params...)
	f.Scope.LocalInd = len(bf.Params)

	c.push(f)

	return f, nil
}
