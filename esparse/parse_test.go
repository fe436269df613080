package esparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/jsc"
)

func TestParseBasics(tb *testing.T) {
	n, err := Parse(`let a = 1; a + 2`)
	require.NoError(tb, err)

	require.Equal(tb, "Program", n.Type)
	require.Len(tb, n.Body, 2)

	decl := n.Body[0]
	require.Equal(tb, "VariableDeclaration", decl.Type)
	assert.Equal(tb, "let", decl.Kind)
	require.Len(tb, decl.Declarations, 1)
	assert.Equal(tb, "a", decl.Declarations[0].Id.Name)
	assert.Equal(tb, jsc.ValNum, decl.Declarations[0].Init.ValKind)

	e := n.Body[1]
	require.Equal(tb, "ExpressionStatement", e.Type)
	require.Equal(tb, "BinaryExpression", e.Expression.Type)
	assert.Equal(tb, "+", e.Expression.Operator)
}

func TestParseExport(tb *testing.T) {
	n, err := Parse("export function add(a, b) { return a + b }\nadd(1, 2)")
	require.NoError(tb, err)

	require.Len(tb, n.Body, 2)
	require.Equal(tb, "ExportNamedDeclaration", n.Body[0].Type)

	fd := n.Body[0].Declaration
	require.Equal(tb, "FunctionDeclaration", fd.Type)
	assert.Equal(tb, "add", fd.Id.Name)
	require.Len(tb, fd.Params, 2)
	assert.Equal(tb, "BlockStatement", fd.BodyNode.Type)
}

func TestParseMember(tb *testing.T) {
	n, err := Parse(`s.length; a[0]; Math.PI`)
	require.NoError(tb, err)

	m := n.Body[0].Expression
	require.Equal(tb, "MemberExpression", m.Type)
	assert.False(tb, m.Computed)
	assert.Equal(tb, "length", m.Property.Name)

	ix := n.Body[1].Expression
	require.Equal(tb, "MemberExpression", ix.Type)
	assert.True(tb, ix.Computed)

	pi := n.Body[2].Expression
	require.Equal(tb, "MemberExpression", pi.Type)
	assert.Equal(tb, "Math", pi.Object.Name)
}

func TestParseLogicalAndAssign(tb *testing.T) {
	n, err := Parse(`a ||= 1; b += 2; c && d`)
	require.NoError(tb, err)

	a := n.Body[0].Expression
	require.Equal(tb, "AssignmentExpression", a.Type)
	assert.Equal(tb, "||=", a.Operator)

	b := n.Body[1].Expression
	assert.Equal(tb, "+=", b.Operator)

	c := n.Body[2].Expression
	require.Equal(tb, "LogicalExpression", c.Type)
	assert.Equal(tb, "&&", c.Operator)
}

func TestParseUpdate(tb *testing.T) {
	n, err := Parse(`i++; --j`)
	require.NoError(tb, err)

	post := n.Body[0].Expression
	require.Equal(tb, "UpdateExpression", post.Type)
	assert.Equal(tb, "++", post.Operator)
	assert.False(tb, post.Prefix)

	pre := n.Body[1].Expression
	require.Equal(tb, "UpdateExpression", pre.Type)
	assert.Equal(tb, "--", pre.Operator)
	assert.True(tb, pre.Prefix)
}

func TestParseForOf(tb *testing.T) {
	n, err := Parse(`for (const x of a) { x }`)
	require.NoError(tb, err)

	fo := n.Body[0]
	require.Equal(tb, "ForOfStatement", fo.Type)
	require.Equal(tb, "VariableDeclaration", fo.Left.Type)
	assert.Equal(tb, "const", fo.Left.Kind)
	assert.Equal(tb, "x", fo.Left.Declarations[0].Id.Name)
	assert.Equal(tb, "a", fo.Right.Name)
	require.NotNil(tb, fo.BodyNode)
}

func TestParseTryThrow(tb *testing.T) {
	n, err := Parse(`try { throw new TypeError("x") } catch { 42 }`)
	require.NoError(tb, err)

	try := n.Body[0]
	require.Equal(tb, "TryStatement", try.Type)
	require.NotNil(tb, try.Block)
	require.NotNil(tb, try.Handler)

	th := try.Block.Body[0]
	require.Equal(tb, "ThrowStatement", th.Type)
	require.Equal(tb, "NewExpression", th.Argument.Type)
	assert.Equal(tb, "TypeError", th.Argument.Callee.Name)
	assert.Equal(tb, "x", th.Argument.Arguments[0].Str)
}

func TestParseArrow(tb *testing.T) {
	n, err := Parse(`let f = (a) => a + 1; let g = () => { return 2 }`)
	require.NoError(tb, err)

	f := n.Body[0].Declarations[0].Init
	require.Equal(tb, "ArrowFunctionExpression", f.Type)
	assert.True(tb, f.ExprFlag)
	require.Len(tb, f.Params, 1)

	g := n.Body[1].Declarations[0].Init
	require.Equal(tb, "ArrowFunctionExpression", g.Type)
	assert.False(tb, g.ExprFlag)
	assert.Equal(tb, "BlockStatement", g.BodyNode.Type)
}

func TestParseTemplate(tb *testing.T) {
	n, err := Parse("asm`i32.const 1\nreturn`")
	require.NoError(tb, err)

	tt := n.Body[0].Expression
	require.Equal(tb, "TaggedTemplateExpression", tt.Type)
	assert.Equal(tb, "asm", tt.Tag.Name)
	require.NotNil(tb, tt.Quasi)
	require.Len(tb, tt.Quasi.Quasis, 1)
	assert.Contains(tb, tt.Quasi.Quasis[0].Raw, "i32.const 1")
}

func TestBlankExports(tb *testing.T) {
	src, names := blankExports("export function add() {}\nexport let x = 1\nlet y = 2\n")

	assert.True(tb, names["add"])
	assert.True(tb, names["x"])
	assert.False(tb, names["y"])
	assert.NotContains(tb, src, "export")
}
