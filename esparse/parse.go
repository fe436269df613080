// Package esparse is the host parser: it parses JavaScript source
// with goja and converts the supported subset into the ESTree node
// shape the code generator consumes.
package esparse

import (
	"strings"
	"unicode"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
	"tlog.app/go/errors"

	"nikand.dev/go/jsc"
)

// Parse parses src and returns an ESTree Program node. goja has no
// module syntax in script mode, so `export` markers are blanked out
// before parsing and re-applied to the named declarations.
func Parse(src string) (*jsc.Node, error) {
	src, exported := blankExports(src)

	prog, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}

	n, err := program(prog)
	if err != nil {
		return nil, err
	}

	for i, s := range n.Body {
		if name := declName(s); name != "" && exported[name] {
			n.Body[i] = &jsc.Node{Type: "ExportNamedDeclaration", Declaration: s}
		}
	}

	return n, nil
}

func declName(s *jsc.Node) string {
	switch s.Type {
	case "FunctionDeclaration":
		if s.Id != nil {
			return s.Id.Name
		}
	case "VariableDeclaration":
		if len(s.Declarations) != 0 && s.Declarations[0].Id != nil {
			return s.Declarations[0].Id.Name
		}
	}

	return ""
}

// blankExports replaces statement-leading `export` keywords with
// spaces, remembering the declared names that followed them.
func blankExports(src string) (string, map[string]bool) {
	exported := map[string]bool{}

	lines := strings.Split(src, "\n")

	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")

		if !strings.HasPrefix(trimmed, "export") {
			continue
		}

		rest := trimmed[len("export"):]
		if rest == "" || !unicode.IsSpace(rune(rest[0])) {
			continue
		}

		tok := strings.Fields(rest)
		if len(tok) < 2 {
			continue
		}

		switch tok[0] {
		case "function", "let", "const", "var":
		default:
			continue
		}

		name := tok[1]
		if j := strings.IndexFunc(name, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$'
		}); j >= 0 {
			name = name[:j]
		}

		exported[name] = true

		off := len(line) - len(trimmed)
		lines[i] = line[:off] + "      " + rest
	}

	return strings.Join(lines, "\n"), exported
}

func program(p *ast.Program) (*jsc.Node, error) {
	n := &jsc.Node{Type: "Program"}

	for i, s := range p.Body {
		cs, err := statement(s)
		if err != nil {
			return nil, errors.Wrap(err, "stmt %d", i)
		}

		n.Body = append(n.Body, cs)
	}

	return n, nil
}

func statement(s ast.Statement) (*jsc.Node, error) {
	switch s := s.(type) {
	case *ast.ExpressionStatement:
		e, err := expression(s.Expression)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "ExpressionStatement", Expression: e}, nil
	case *ast.BlockStatement:
		n := &jsc.Node{Type: "BlockStatement"}

		for _, is := range s.List {
			cs, err := statement(is)
			if err != nil {
				return nil, err
			}

			n.Body = append(n.Body, cs)
		}

		return n, nil
	case *ast.VariableStatement:
		return varDecl("var", s.List)
	case *ast.LexicalDeclaration:
		return varDecl(s.Token.String(), s.List)
	case *ast.FunctionDeclaration:
		return functionNode("FunctionDeclaration", s.Function)
	case *ast.ReturnStatement:
		arg, err := optExpression(s.Argument)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "ReturnStatement", Argument: arg}, nil
	case *ast.IfStatement:
		test, err := expression(s.Test)
		if err != nil {
			return nil, err
		}

		cons, err := statement(s.Consequent)
		if err != nil {
			return nil, err
		}

		n := &jsc.Node{Type: "IfStatement", Test: test, Consequent: cons}

		if s.Alternate != nil {
			n.Alternate, err = statement(s.Alternate)
			if err != nil {
				return nil, err
			}
		}

		return n, nil
	case *ast.WhileStatement:
		test, err := expression(s.Test)
		if err != nil {
			return nil, err
		}

		body, err := statement(s.Body)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "WhileStatement", Test: test, BodyNode: body}, nil
	case *ast.ForStatement:
		return forStatement(s)
	case *ast.ForOfStatement:
		return forOfStatement(s)
	case *ast.BranchStatement:
		kind := "BreakStatement"
		if s.Token == token.CONTINUE {
			kind = "ContinueStatement"
		}

		n := &jsc.Node{Type: kind}

		if s.Label != nil {
			n.Label = ident(s.Label)
		}

		return n, nil
	case *ast.ThrowStatement:
		arg, err := expression(s.Argument)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "ThrowStatement", Argument: arg}, nil
	case *ast.TryStatement:
		return tryStatement(s)
	case *ast.DebuggerStatement:
		return &jsc.Node{Type: "DebuggerStatement"}, nil
	case *ast.EmptyStatement:
		return &jsc.Node{Type: "EmptyStatement"}, nil
	}

	return nil, errors.New("unsupported statement: %T", s)
}

func varDecl(kind string, list []*ast.Binding) (*jsc.Node, error) {
	n := &jsc.Node{Type: "VariableDeclaration", Kind: kind}

	for _, b := range list {
		d, err := binding(b)
		if err != nil {
			return nil, err
		}

		n.Declarations = append(n.Declarations, d)
	}

	return n, nil
}

func binding(b *ast.Binding) (*jsc.Node, error) {
	id, ok := b.Target.(*ast.Identifier)
	if !ok {
		return nil, errors.New("unsupported binding target: %T", b.Target)
	}

	d := &jsc.Node{Type: "VariableDeclarator", Id: ident(id)}

	if b.Initializer != nil {
		init, err := expression(b.Initializer)
		if err != nil {
			return nil, err
		}

		d.Init = init
	}

	return d, nil
}

func forStatement(s *ast.ForStatement) (*jsc.Node, error) {
	n := &jsc.Node{Type: "ForStatement"}

	switch init := s.Initializer.(type) {
	case nil:
	case *ast.ForLoopInitializerExpression:
		e, err := expression(init.Expression)
		if err != nil {
			return nil, err
		}

		n.Init = &jsc.Node{Type: "ExpressionStatement", Expression: e}
	case *ast.ForLoopInitializerVarDeclList:
		d, err := varDecl("var", init.List)
		if err != nil {
			return nil, err
		}

		n.Init = d
	case *ast.ForLoopInitializerLexicalDecl:
		d, err := varDecl(init.LexicalDeclaration.Token.String(), init.LexicalDeclaration.List)
		if err != nil {
			return nil, err
		}

		n.Init = d
	default:
		return nil, errors.New("unsupported for initializer: %T", s.Initializer)
	}

	var err error

	if s.Test != nil {
		n.Test, err = expression(s.Test)
		if err != nil {
			return nil, err
		}
	}

	if s.Update != nil {
		n.Update, err = expression(s.Update)
		if err != nil {
			return nil, err
		}
	}

	n.BodyNode, err = statement(s.Body)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func forOfStatement(s *ast.ForOfStatement) (*jsc.Node, error) {
	n := &jsc.Node{Type: "ForOfStatement"}

	switch into := s.Into.(type) {
	case *ast.ForIntoExpression:
		e, err := expression(into.Expression)
		if err != nil {
			return nil, err
		}

		n.Left = e
	case *ast.ForIntoVar:
		d, err := binding(into.Binding)
		if err != nil {
			return nil, err
		}

		n.Left = &jsc.Node{Type: "VariableDeclaration", Kind: "var", Declarations: []*jsc.Node{d}}
	case *ast.ForDeclaration:
		id, ok := into.Target.(*ast.Identifier)
		if !ok {
			return nil, errors.New("unsupported for-of target: %T", into.Target)
		}

		kind := "let"
		if into.IsConst {
			kind = "const"
		}

		n.Left = &jsc.Node{Type: "VariableDeclaration", Kind: kind, Declarations: []*jsc.Node{
			{Type: "VariableDeclarator", Id: ident(id)},
		}}
	default:
		return nil, errors.New("unsupported for-of binding: %T", s.Into)
	}

	var err error

	n.Right, err = expression(s.Source)
	if err != nil {
		return nil, err
	}

	n.BodyNode, err = statement(s.Body)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func tryStatement(s *ast.TryStatement) (*jsc.Node, error) {
	n := &jsc.Node{Type: "TryStatement"}

	block, err := statement(s.Body)
	if err != nil {
		return nil, err
	}

	n.Block = block

	if s.Catch != nil {
		body, err := statement(s.Catch.Body)
		if err != nil {
			return nil, err
		}

		n.Handler = &jsc.Node{Type: "CatchClause", BodyNode: body}

		if id, ok := s.Catch.Parameter.(*ast.Identifier); ok {
			n.Handler.Param = ident(id)
		}
	}

	if s.Finally != nil {
		fin, err := statement(s.Finally)
		if err != nil {
			return nil, err
		}

		n.Finalizer = fin
	}

	return n, nil
}

func functionNode(kind string, fn *ast.FunctionLiteral) (*jsc.Node, error) {
	n := &jsc.Node{Type: kind}

	if fn.Name != nil {
		n.Id = ident(fn.Name)
	}

	for _, p := range fn.ParameterList.List {
		id, ok := p.Target.(*ast.Identifier)
		if !ok {
			return nil, errors.New("unsupported parameter: %T", p.Target)
		}

		n.Params = append(n.Params, ident(id))
	}

	body, err := statement(fn.Body)
	if err != nil {
		return nil, err
	}

	n.BodyNode = body

	return n, nil
}

func ident(id *ast.Identifier) *jsc.Node {
	return jsc.Ident(string(id.Name))
}

func optExpression(e ast.Expression) (*jsc.Node, error) {
	if e == nil {
		return nil, nil
	}

	return expression(e)
}

func expression(e ast.Expression) (*jsc.Node, error) {
	switch e := e.(type) {
	case *ast.Identifier:
		return ident(e), nil
	case *ast.NumberLiteral:
		v := float64(0)

		switch x := e.Value.(type) {
		case int64:
			v = float64(x)
		case float64:
			v = x
		}

		return jsc.NumberLit(v), nil
	case *ast.StringLiteral:
		return jsc.StringLit(string(e.Value)), nil
	case *ast.BooleanLiteral:
		return &jsc.Node{Type: "Literal", ValKind: jsc.ValBool, Bool: e.Value}, nil
	case *ast.NullLiteral:
		return &jsc.Node{Type: "Literal", ValKind: jsc.ValNull}, nil
	case *ast.RegExpLiteral:
		return &jsc.Node{Type: "Literal", Raw: e.Literal, Regex: &jsc.RegexLit{Pattern: e.Pattern, Flags: e.Flags}}, nil
	case *ast.BinaryExpression:
		l, err := expression(e.Left)
		if err != nil {
			return nil, err
		}

		r, err := expression(e.Right)
		if err != nil {
			return nil, err
		}

		op := e.Operator.String()
		kind := "BinaryExpression"

		switch op {
		case "&&", "||", "??":
			kind = "LogicalExpression"
		}

		return &jsc.Node{Type: kind, Operator: op, Left: l, Right: r}, nil
	case *ast.UnaryExpression:
		arg, err := expression(e.Operand)
		if err != nil {
			return nil, err
		}

		op := e.Operator.String()

		if op == "++" || op == "--" {
			return &jsc.Node{Type: "UpdateExpression", Operator: op, Prefix: !e.Postfix, Argument: arg}, nil
		}

		return &jsc.Node{Type: "UnaryExpression", Operator: op, Prefix: true, Argument: arg}, nil
	case *ast.AssignExpression:
		l, err := expression(e.Left)
		if err != nil {
			return nil, err
		}

		r, err := expression(e.Right)
		if err != nil {
			return nil, err
		}

		op := "="
		if e.Operator != token.ASSIGN {
			op = e.Operator.String() + "="
		}

		return &jsc.Node{Type: "AssignmentExpression", Operator: op, Left: l, Right: r}, nil
	case *ast.ConditionalExpression:
		test, err := expression(e.Test)
		if err != nil {
			return nil, err
		}

		cons, err := expression(e.Consequent)
		if err != nil {
			return nil, err
		}

		alt, err := expression(e.Alternate)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "ConditionalExpression", Test: test, Consequent: cons, Alternate: alt}, nil
	case *ast.DotExpression:
		obj, err := expression(e.Left)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{
			Type:     "MemberExpression",
			Object:   obj,
			Property: ident(&e.Identifier),
		}, nil
	case *ast.BracketExpression:
		obj, err := expression(e.Left)
		if err != nil {
			return nil, err
		}

		prop, err := expression(e.Member)
		if err != nil {
			return nil, err
		}

		return &jsc.Node{Type: "MemberExpression", Object: obj, Property: prop, Computed: true}, nil
	case *ast.CallExpression:
		return callNode("CallExpression", e.Callee, e.ArgumentList)
	case *ast.NewExpression:
		return callNode("NewExpression", e.Callee, e.ArgumentList)
	case *ast.ArrayLiteral:
		n := &jsc.Node{Type: "ArrayExpression"}

		for _, el := range e.Value {
			if el == nil {
				n.Elements = append(n.Elements, nil)
				continue
			}

			ce, err := expression(el)
			if err != nil {
				return nil, err
			}

			n.Elements = append(n.Elements, ce)
		}

		return n, nil
	case *ast.FunctionLiteral:
		return functionNode("FunctionExpression", e)
	case *ast.ArrowFunctionLiteral:
		return arrowNode(e)
	case *ast.TemplateLiteral:
		return templateNode(e)
	}

	return nil, errors.New("unsupported expression: %T", e)
}

func callNode(kind string, callee ast.Expression, args []ast.Expression) (*jsc.Node, error) {
	cl, err := expression(callee)
	if err != nil {
		return nil, err
	}

	n := &jsc.Node{Type: kind, Callee: cl}

	for _, a := range args {
		ca, err := expression(a)
		if err != nil {
			return nil, err
		}

		n.Arguments = append(n.Arguments, ca)
	}

	return n, nil
}

func arrowNode(e *ast.ArrowFunctionLiteral) (*jsc.Node, error) {
	n := &jsc.Node{Type: "ArrowFunctionExpression"}

	for _, p := range e.ParameterList.List {
		id, ok := p.Target.(*ast.Identifier)
		if !ok {
			return nil, errors.New("unsupported parameter: %T", p.Target)
		}

		n.Params = append(n.Params, ident(id))
	}

	switch body := e.Body.(type) {
	case *ast.BlockStatement:
		b, err := statement(body)
		if err != nil {
			return nil, err
		}

		n.BodyNode = b
	case *ast.ExpressionBody:
		b, err := expression(body.Expression)
		if err != nil {
			return nil, err
		}

		n.BodyNode = b
		n.ExprFlag = true
	default:
		return nil, errors.New("unsupported arrow body: %T", e.Body)
	}

	return n, nil
}

func templateNode(e *ast.TemplateLiteral) (*jsc.Node, error) {
	tl := &jsc.Node{Type: "TemplateLiteral"}

	for _, el := range e.Elements {
		tl.Quasis = append(tl.Quasis, &jsc.Node{
			Type:   "TemplateElement",
			Raw:    el.Literal,
			Cooked: string(el.Parsed),
		})
	}

	for _, x := range e.Expressions {
		ce, err := expression(x)
		if err != nil {
			return nil, err
		}

		tl.Expressions = append(tl.Expressions, ce)
	}

	if e.Tag == nil {
		return tl, nil
	}

	tag, err := expression(e.Tag)
	if err != nil {
		return nil, err
	}

	return &jsc.Node{Type: "TaggedTemplateExpression", Tag: tag, Quasi: tl}, nil
}
