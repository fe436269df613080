package jsc

import (
	"tlog.app/go/tlog"

	"nikand.dev/go/jsc/wasm"
)

type (
	// Binding is one slot in a function or module scope.
	// Named variables own a pair of slots: the payload at Idx and
	// the type tag at Idx+1, registered under name+"#type".
	Binding struct {
		Idx   int
		Type  wasm.Type
		Known int // statically known type tag, -1 when unknown
	}

	Scope struct {
		Name string

		Locals   map[string]*Binding
		Types    []wasm.Type // slot types in index order
		LocalInd int

		Returns bool
		Throws  bool

		global bool
	}
)

const typeSuffix = "#type"

func newScope(name string) *Scope {
	return &Scope{
		Name:   name,
		Locals: map[string]*Binding{},
	}
}

// Pair reserves the payload+tag slot pair for name, memoized.
func (s *Scope) Pair(tp wasm.Type, name string) *Binding {
	if b, ok := s.Locals[name]; ok {
		return b
	}

	b := &Binding{Idx: s.LocalInd, Type: tp, Known: -1}

	s.Locals[name] = b
	s.Locals[name+typeSuffix] = &Binding{Idx: s.LocalInd + 1, Type: wasm.I32, Known: -1}

	s.Types = append(s.Types, tp, wasm.I32)
	s.LocalInd += 2

	tlog.V("scope").Printw("alloc var", "scope", s.Name, "name", name, "idx", b.Idx, "global", s.global)

	return b
}

// Slot reserves a single unpaired slot, memoized per scope.
// Used for temporaries like #typeswitch_tmp and #last_type.
func (s *Scope) Slot(tp wasm.Type, name string) *Binding {
	if b, ok := s.Locals[name]; ok {
		return b
	}

	b := &Binding{Idx: s.LocalInd, Type: tp, Known: -1}

	s.Locals[name] = b
	s.Types = append(s.Types, tp)
	s.LocalInd++

	return b
}

func (s *Scope) Lookup(name string) (*Binding, bool) {
	b, ok := s.Locals[name]
	return b, ok
}

// lookupName resolves name searching function locals first, then
// module globals. The second result reports whether the binding is
// global.
func (c *Compilation) lookupName(f *Func, name string) (*Binding, bool, bool) {
	if b, ok := f.Scope.Lookup(name); ok {
		return b, false, true
	}

	if b, ok := c.Globals.Lookup(name); ok {
		return b, true, true
	}

	return nil, false, false
}
