package jsc

import (
	"strings"

	"nikand.dev/go/jsc/wasm"
)

// Static type inference. knownType answers with a tag when the type
// of an expression is decidable at compile time and -1 otherwise;
// nodeType pushes the tag at runtime, falling back to the #last_type
// slot maintained by call and logical-result sites.

func (c *Compilation) lastTypeSlot(f *Func) *Binding {
	return f.Scope.Slot(wasm.I32, "#last_type")
}

func (c *Compilation) setLastType(f *Func, tag int) []wasm.Ins {
	t := c.lastTypeSlot(f)

	return []wasm.Ins{
		wasm.I(wasm.I32Const, int64(tag)),
		wasm.I(wasm.LocalSet, int64(t.Idx)),
	}
}

// setLastTypeDyn stores the i32 on the stack into #last_type.
func (c *Compilation) setLastTypeDyn(f *Func) wasm.Ins {
	return wasm.I(wasm.LocalSet, int64(c.lastTypeSlot(f).Idx))
}

func (c *Compilation) getLastType(f *Func) []wasm.Ins {
	return []wasm.Ins{wasm.I(wasm.LocalGet, int64(c.lastTypeSlot(f).Idx))}
}

func (c *Compilation) nodeType(f *Func, n *Node) []wasm.Ins {
	if tag := c.knownType(f, n); tag >= 0 {
		return []wasm.Ins{wasm.I(wasm.I32Const, int64(tag))}
	}

	// a bound name carries its tag in the sibling slot
	if n != nil && n.Type == "Identifier" {
		if b, global, ok := c.lookupName(f, n.Name); ok {
			get, _ := getOp(global)
			return []wasm.Ins{wasm.I(get, int64(b.Idx + 1))}
		}
	}

	return c.getLastType(f)
}

func (c *Compilation) knownType(f *Func, n *Node) int {
	if n == nil {
		return TUndefined
	}

	switch n.Type {
	case "Literal":
		switch n.ValKind {
		case ValNum:
			return TNumber
		case ValStr:
			return TString
		case ValBool:
			return TBoolean
		case ValNull:
			return TObject
		}

		if n.Regex != nil {
			return TRegexp
		}

		return -1
	case "Identifier":
		return c.knownIdentType(f, n.Name)
	case "ArrayExpression":
		return TArray
	case "ArrowFunctionExpression", "FunctionExpression":
		return TFunction
	case "BinaryExpression":
		switch n.Operator {
		case "==", "!=", "===", "!==", "<", ">", "<=", ">=":
			return TBoolean
		case "+":
			l, r := c.knownType(f, n.Left), c.knownType(f, n.Right)

			if l == TString || r == TString {
				return TString
			}

			if l == TNumber && r == TNumber {
				return TNumber
			}

			return -1
		default:
			return TNumber
		}
	case "LogicalExpression", "ConditionalExpression":
		var l, r int

		if n.Type == "LogicalExpression" {
			l, r = c.knownType(f, n.Left), c.knownType(f, n.Right)
		} else {
			l, r = c.knownType(f, n.Consequent), c.knownType(f, n.Alternate)
		}

		if l >= 0 && l == r {
			return l
		}

		return -1
	case "UnaryExpression":
		switch n.Operator {
		case "!", "delete":
			return TBoolean
		case "void":
			return TUndefined
		case "typeof":
			return TString
		case "+", "-", "~":
			return TNumber
		}

		return -1
	case "UpdateExpression":
		return TNumber
	case "AssignmentExpression":
		if n.Operator == "=" {
			return c.knownType(f, n.Right)
		}

		return -1
	case "MemberExpression":
		if !n.Computed && n.Property != nil && n.Property.Type == "Identifier" && n.Property.Name == "length" {
			return TNumber
		}

		if n.Computed && n.Object != nil {
			switch c.knownType(f, n.Object) {
			case TArray:
				return TNumber
			case TString:
				return TString
			}
		}

		return -1
	case "CallExpression", "NewExpression":
		return c.knownCallType(f, n)
	}

	return -1
}

func (c *Compilation) knownIdentType(f *Func, name string) int {
	switch name {
	case "undefined":
		return TUndefined
	case "null":
		return TObject
	}

	if b, _, ok := c.lookupName(f, name); ok {
		return b.Known
	}

	if v, ok := c.builtins.Vars[name]; ok {
		return v.Type
	}

	if _, ok := c.builtins.Funcs[name]; ok {
		return TFunction
	}

	if _, ok := c.funcsByName[name]; ok {
		return TFunction
	}

	// an unknown hacked member access reads as a missing property
	if strings.HasPrefix(name, "__") {
		return TUndefined
	}

	return -1
}

func (c *Compilation) knownCallType(f *Func, n *Node) int {
	if n.Callee == nil || n.Callee.Type != "Identifier" {
		return -1
	}

	name := n.Callee.Name

	if fn, ok := c.funcsByName[name]; ok {
		return fn.ReturnType
	}

	if b, ok := c.builtins.Funcs[name]; ok {
		return b.ReturnType
	}

	if ct, ok := c.builtins.Constructors[name]; ok {
		return ct.Type
	}

	// single-candidate prototype method fast path
	if method, ok := splitProtoName(name); ok {
		if p, one := c.builtins.singleProto(method); one {
			return p.ReturnType
		}
	}

	return -1
}

// annotationTag maps a TS-style type annotation onto a tag.
func annotationTag(ann *Node) int {
	if ann == nil {
		return -1
	}

	if ann.Type == "TSTypeAnnotation" {
		return annotationTag(ann.TypeAnnotation)
	}

	switch ann.Type {
	case "TSNumberKeyword":
		return TNumber
	case "TSStringKeyword":
		return TString
	case "TSBooleanKeyword":
		return TBoolean
	case "TSArrayType":
		return TArray
	case "TSUndefinedKeyword":
		return TUndefined
	case "TSObjectKeyword":
		return TObject
	}

	return -1
}
