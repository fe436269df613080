package jsc

import "nikand.dev/go/jsc/wasm"

type (
	// ProtoCtx is handed to a prototype-method generator so it can
	// emit inline specialized code without knowing the caller's
	// locals.
	ProtoCtx struct {
		c *Compilation
		f *Func

		// Ptr is a local holding the receiver pointer (i32).
		Ptr *Binding

		Length ProtoLength

		// Args are instruction runs pushing each argument payload.
		Args [][]wasm.Ins
	}

	// ProtoLength is the cached-length accessor bundle.
	ProtoLength struct {
		g      *ProtoCtx
		cached *Binding
	}

	// ProtoFunc generates inline code for one (type, method) pair.
	ProtoFunc struct {
		Gen        func(g *ProtoCtx) ([]wasm.Ins, error)
		ReturnType int // tag, -1 when the generator sets #last_type
		Args       int
	}
)

// Local allocates a fresh local in the calling function.
func (g *ProtoCtx) Local(prefix string, tp wasm.Type) *Binding {
	return g.f.Scope.Slot(tp, g.c.uniqName(prefix))
}

// GetPtr pushes the receiver pointer.
func (g *ProtoCtx) GetPtr() []wasm.Ins {
	return []wasm.Ins{wasm.I(wasm.LocalGet, int64(g.Ptr.Idx))}
}

// Load pushes the u32 length prefix of the receiver.
func (l ProtoLength) Load() []wasm.Ins {
	out := l.g.GetPtr()
	return append(out, wasm.I(wasm.I32Load, 2, 0))
}

// Cache loads the length into its local once.
func (l ProtoLength) Cache() []wasm.Ins {
	out := l.Load()
	return append(out, wasm.I(wasm.LocalSet, int64(l.cached.Idx)))
}

// Cached pushes the cached length.
func (l ProtoLength) Cached() []wasm.Ins {
	return []wasm.Ins{wasm.I(wasm.LocalGet, int64(l.cached.Idx))}
}

// Set stores the value pushed by v as the new length.
func (l ProtoLength) Set(v []wasm.Ins) []wasm.Ins {
	out := l.g.GetPtr()
	out = append(out, v...)
	return append(out, wasm.I(wasm.I32Store, 2, 0))
}

func registerProtos(b *Builtins) {
	b.RegisterProto(TArray, "push", &ProtoFunc{Gen: genArrayPush, ReturnType: TNumber, Args: 1})
	b.RegisterProto(TArray, "pop", &ProtoFunc{Gen: genArrayPop, ReturnType: -1})
	b.RegisterProto(TString, "charAt", &ProtoFunc{Gen: genCharAt, ReturnType: TString, Args: 1})
	b.RegisterProto(TString, "charCodeAt", &ProtoFunc{Gen: genCharCodeAt, ReturnType: TNumber, Args: 1})
	b.RegisterProto(TString, "toUpperCase", &ProtoFunc{Gen: genToUpper, ReturnType: TString})
	b.RegisterProto(TString, "toLowerCase", &ProtoFunc{Gen: genToLower, ReturnType: TString})
}

// elemAddr pushes the address ptr+4+i*size where i is pushed by ix.
func elemAddr(g *ProtoCtx, ix []wasm.Ins, size int) []wasm.Ins {
	out := g.GetPtr()
	out = append(out, wasm.I(wasm.I32Const, 4), wasm.I(wasm.I32Add))
	out = append(out, ix...)

	if size != 1 {
		out = append(out, wasm.I(wasm.I32Const, int64(size)), wasm.I(wasm.I32Mul))
	}

	return append(out, wasm.I(wasm.I32Add))
}

func genArrayPush(g *ProtoCtx) ([]wasm.Ins, error) {
	c := g.c

	out := g.Length.Cache()

	// store the element at the tail
	out = append(out, elemAddr(g, g.Length.Cached(), c.ops.Size)...)
	out = append(out, g.Args[0]...)
	out = append(out, wasm.I(c.ops.Store, c.ops.Align, 0))

	// bump the length
	newLen := append(g.Length.Cached(), wasm.I(wasm.I32Const, 1), wasm.I(wasm.I32Add))
	out = append(out, g.Length.Set(newLen)...)

	// result is the new length
	out = append(out, newLen...)
	out = append(out, c.ops.FromI32U...)

	return out, nil
}

func genArrayPop(g *ProtoCtx) ([]wasm.Ins, error) {
	c := g.c

	out := g.Length.Cache()

	out = append(out, g.Length.Cached()...)
	out = append(out, wasm.I(wasm.I32EqZ), wasm.I(wasm.If, int64(c.valtype)))

	// empty: undefined
	out = append(out, c.constv(UNDEFINED))
	out = append(out, c.setLastType(g.f, TUndefined)...)

	out = append(out, wasm.I(wasm.Else))

	// shrink, then load the vacated slot
	last := append(g.Length.Cached(), wasm.I(wasm.I32Const, 1), wasm.I(wasm.I32Sub))
	out = append(out, g.Length.Set(last)...)
	out = append(out, elemAddr(g, last, c.ops.Size)...)
	out = append(out, wasm.I(c.ops.Load, c.ops.Align, 0))
	out = append(out, c.setLastType(g.f, TNumber)...)

	out = append(out, wasm.I(wasm.End))

	return out, nil
}

// genCharAt copies one 16-bit unit into a scratch string page and
// pushes the scratch pointer.
func genCharAt(g *ProtoCtx) ([]wasm.Ins, error) {
	c := g.c

	scratch := c.Pages.Ptr("string: char scratch", "string")

	out := []wasm.Ins{
		// scratch length is always 1
		wasm.I(wasm.I32Const, int64(scratch)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.I32Store, 2, 0),

		// dst
		wasm.I(wasm.I32Const, int64(scratch + 4)),
	}

	ix := append([]wasm.Ins{}, g.Args[0]...)
	ix = append(ix, c.ops.ToI32U...)

	out = append(out, elemAddr(g, ix, 2)...)
	out = append(out,
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.MemoryCopy),

		wasm.I(wasm.I32Const, int64(scratch)),
	)
	out = append(out, c.ops.FromI32U...)

	return out, nil
}

func genCharCodeAt(g *ProtoCtx) ([]wasm.Ins, error) {
	c := g.c

	ix := append([]wasm.Ins{}, g.Args[0]...)
	ix = append(ix, c.ops.ToI32U...)

	out := elemAddr(g, ix, 2)
	out = append(out, wasm.I(wasm.I32Load16U, 1, 0))
	out = append(out, c.ops.FromI32U...)

	return out, nil
}

func genToUpper(g *ProtoCtx) ([]wasm.Ins, error) {
	return genCaseFold(g, 'a', 'z', -32)
}

func genToLower(g *ProtoCtx) ([]wasm.Ins, error) {
	return genCaseFold(g, 'A', 'Z', 32)
}

// genCaseFold copies the receiver into a scratch page, shifting
// ASCII letters in [lo, hi] by delta.
func genCaseFold(g *ProtoCtx, lo, hi rune, delta int) ([]wasm.Ins, error) {
	c := g.c

	dst := c.Pages.Ptr("string: case scratch", "string")

	i := g.Local("#case_i", wasm.I32)
	ch := g.Local("#case_ch", wasm.I32)

	out := g.Length.Cache()

	out = append(out,
		wasm.I(wasm.I32Const, int64(dst)),
	)
	out = append(out, g.Length.Cached()...)
	out = append(out,
		wasm.I(wasm.I32Store, 2, 0),

		wasm.I(wasm.I32Const, 0),
		wasm.I(wasm.LocalSet, int64(i.Idx)),

		wasm.I(wasm.Block),
		wasm.I(wasm.Loop),

		wasm.I(wasm.LocalGet, int64(i.Idx)),
	)
	out = append(out, g.Length.Cached()...)
	out = append(out,
		wasm.I(wasm.I32GeU),
		wasm.I(wasm.BrIf, 1),
	)

	// ch = src[i]
	ix := []wasm.Ins{wasm.I(wasm.LocalGet, int64(i.Idx))}
	out = append(out, elemAddr(g, ix, 2)...)
	out = append(out,
		wasm.I(wasm.I32Load16U, 1, 0),
		wasm.I(wasm.LocalSet, int64(ch.Idx)),

		// fold if in range
		wasm.I(wasm.LocalGet, int64(ch.Idx)),
		wasm.I(wasm.I32Const, int64(lo)),
		wasm.I(wasm.I32GeU),
		wasm.I(wasm.LocalGet, int64(ch.Idx)),
		wasm.I(wasm.I32Const, int64(hi)),
		wasm.I(wasm.I32LeU),
		wasm.I(wasm.I32And),
		wasm.I(wasm.If, wasm.BlockVoid),
		wasm.I(wasm.LocalGet, int64(ch.Idx)),
		wasm.I(wasm.I32Const, int64(delta)),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalSet, int64(ch.Idx)),
		wasm.I(wasm.End),

		// dst[i] = ch
		wasm.I(wasm.I32Const, int64(dst+4)),
		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 2),
		wasm.I(wasm.I32Mul),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalGet, int64(ch.Idx)),
		wasm.I(wasm.I32Store16, 1, 0),

		// i++
		wasm.I(wasm.LocalGet, int64(i.Idx)),
		wasm.I(wasm.I32Const, 1),
		wasm.I(wasm.I32Add),
		wasm.I(wasm.LocalSet, int64(i.Idx)),

		wasm.I(wasm.Br, 0),
		wasm.I(wasm.End),
		wasm.I(wasm.End),

		wasm.I(wasm.I32Const, int64(dst)),
	)
	out = append(out, c.ops.FromI32U...)

	return out, nil
}
