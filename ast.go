package jsc

import (
	"bytes"
	"encoding/json"

	"tlog.app/go/errors"
)

type (
	// Node is an ESTree-shaped AST node. One struct covers every
	// supported kind; unused fields stay zero.
	Node struct {
		Type string

		// Identifier
		Name string

		// Literal
		ValKind byte
		Num     float64
		Str     string
		Bool    bool
		Raw     string
		Regex   *RegexLit

		// statement bodies; BodyNode for single-node bodies
		// (function bodies, loop bodies)
		Body     []*Node
		BodyNode *Node

		// ExpressionStatement / arrow concise flag
		Expression *Node
		ExprFlag   bool

		// VariableDeclaration / VariableDeclarator
		Kind         string
		Declarations []*Node
		Id           *Node
		Init         *Node

		// control flow
		Test       *Node
		Consequent *Node
		Alternate  *Node
		Update     *Node
		Label      *Node

		// operators
		Operator string
		Prefix   bool
		Left     *Node
		Right    *Node
		Argument *Node

		// member / call
		Object    *Node
		Property  *Node
		Computed  bool
		Optional  bool
		Callee    *Node
		Arguments []*Node

		// arrays, functions
		Elements []*Node
		Params   []*Node

		// try/catch
		Block     *Node
		Handler   *Node
		Param     *Node
		Finalizer *Node

		// export
		Declaration *Node

		// template literals
		Tag         *Node
		Quasi       *Node
		Quasis      []*Node
		Expressions []*Node
		Cooked      string

		// TS-style annotation on identifiers
		TypeAnnotation *Node
	}

	RegexLit struct {
		Pattern string `json:"pattern"`
		Flags   string `json:"flags"`
	}
)

// Literal value kinds.
const (
	ValNone byte = iota
	ValNum
	ValStr
	ValBool
	ValNull
)

// Ident makes an Identifier node.
func Ident(name string) *Node {
	return &Node{Type: "Identifier", Name: name}
}

// NumberLit makes a numeric Literal node.
func NumberLit(v float64) *Node {
	return &Node{Type: "Literal", ValKind: ValNum, Num: v}
}

// StringLit makes a string Literal node.
func StringLit(v string) *Node {
	return &Node{Type: "Literal", ValKind: ValStr, Str: v}
}

type nodeJSON struct {
	Type string `json:"type"`

	Name string `json:"name"`

	Value json.RawMessage `json:"value"`
	Raw   string          `json:"raw"`
	Regex *RegexLit       `json:"regex"`

	Body       json.RawMessage `json:"body"`
	Expression json.RawMessage `json:"expression"`

	Kind         string  `json:"kind"`
	Declarations []*Node `json:"declarations"`
	Id           *Node   `json:"id"`
	Init         *Node   `json:"init"`

	Test       *Node `json:"test"`
	Consequent *Node `json:"consequent"`
	Alternate  *Node `json:"alternate"`
	Update     *Node `json:"update"`
	Label      *Node `json:"label"`

	Operator string `json:"operator"`
	Prefix   bool   `json:"prefix"`
	Left     *Node  `json:"left"`
	Right    *Node  `json:"right"`
	Argument *Node  `json:"argument"`

	Object    *Node   `json:"object"`
	Property  *Node   `json:"property"`
	Computed  bool    `json:"computed"`
	Optional  bool    `json:"optional"`
	Callee    *Node   `json:"callee"`
	Arguments []*Node `json:"arguments"`

	Elements []*Node `json:"elements"`
	Params   []*Node `json:"params"`

	Block     *Node `json:"block"`
	Handler   *Node `json:"handler"`
	Param     *Node `json:"param"`
	Finalizer *Node `json:"finalizer"`

	Declaration *Node `json:"declaration"`

	Tag         *Node   `json:"tag"`
	Quasi       *Node   `json:"quasi"`
	Quasis      []*Node `json:"quasis"`
	Expressions []*Node `json:"expressions"`

	TypeAnnotation *Node `json:"typeAnnotation"`
}

// ParseJSON decodes an ESTree JSON document into a Node tree.
func ParseJSON(b []byte) (*Node, error) {
	n := &Node{}

	err := json.Unmarshal(b, n)
	if err != nil {
		return nil, errors.Wrap(err, "estree json")
	}

	return n, nil
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var aux nodeJSON

	err := json.Unmarshal(b, &aux)
	if err != nil {
		return err
	}

	*n = Node{
		Type: aux.Type,
		Name: aux.Name,
		Raw:  aux.Raw,

		Regex: aux.Regex,

		Kind:         aux.Kind,
		Declarations: aux.Declarations,
		Id:           aux.Id,
		Init:         aux.Init,

		Test:       aux.Test,
		Consequent: aux.Consequent,
		Alternate:  aux.Alternate,
		Update:     aux.Update,
		Label:      aux.Label,

		Operator: aux.Operator,
		Prefix:   aux.Prefix,
		Left:     aux.Left,
		Right:    aux.Right,
		Argument: aux.Argument,

		Object:    aux.Object,
		Property:  aux.Property,
		Computed:  aux.Computed,
		Optional:  aux.Optional,
		Callee:    aux.Callee,
		Arguments: aux.Arguments,

		Elements: aux.Elements,
		Params:   aux.Params,

		Block:     aux.Block,
		Handler:   aux.Handler,
		Param:     aux.Param,
		Finalizer: aux.Finalizer,

		Declaration: aux.Declaration,

		Tag:         aux.Tag,
		Quasi:       aux.Quasi,
		Quasis:      aux.Quasis,
		Expressions: aux.Expressions,

		TypeAnnotation: aux.TypeAnnotation,
	}

	err = n.decodeBody(aux.Body)
	if err != nil {
		return errors.Wrap(err, "%v: body", aux.Type)
	}

	err = n.decodeExpression(aux.Expression)
	if err != nil {
		return errors.Wrap(err, "%v: expression", aux.Type)
	}

	err = n.decodeValue(aux.Value)
	if err != nil {
		return errors.Wrap(err, "%v: value", aux.Type)
	}

	return nil
}

// body is a node list for Program/BlockStatement and a single node
// for function and loop bodies.
func (n *Node) decodeBody(raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '[' {
		return json.Unmarshal(raw, &n.Body)
	}

	n.BodyNode = &Node{}

	return json.Unmarshal(raw, n.BodyNode)
}

// expression is a node on ExpressionStatement and a bool flag on
// ArrowFunctionExpression.
func (n *Node) decodeExpression(raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == 't' || raw[0] == 'f' {
		return json.Unmarshal(raw, &n.ExprFlag)
	}

	n.Expression = &Node{}

	return json.Unmarshal(raw, n.Expression)
}

// value is a scalar on Literal and {raw, cooked} on TemplateElement.
func (n *Node) decodeValue(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case 'n':
		n.ValKind = ValNull
		return nil
	case 't', 'f':
		n.ValKind = ValBool
		return json.Unmarshal(raw, &n.Bool)
	case '"':
		n.ValKind = ValStr
		return json.Unmarshal(raw, &n.Str)
	case '{':
		var v struct {
			Raw    string `json:"raw"`
			Cooked string `json:"cooked"`
		}

		err := json.Unmarshal(raw, &v)
		if err != nil {
			return err
		}

		n.Raw = v.Raw
		n.Cooked = v.Cooked

		return nil
	}

	n.ValKind = ValNum

	return json.Unmarshal(raw, &n.Num)
}

// IsLiteralStr reports whether n is a plain string literal.
func (n *Node) IsLiteralStr() bool {
	return n != nil && n.Type == "Literal" && n.ValKind == ValStr
}

// IsLiteralNum reports whether n is a numeric literal, possibly
// wrapped in unary minus/plus.
func (n *Node) IsLiteralNum() (float64, bool) {
	if n == nil {
		return 0, false
	}

	if n.Type == "Literal" && n.ValKind == ValNum {
		return n.Num, true
	}

	if n.Type == "UnaryExpression" && n.Argument != nil {
		v, ok := n.Argument.IsLiteralNum()
		if !ok {
			return 0, false
		}

		switch n.Operator {
		case "-":
			return -v, true
		case "+":
			return v, true
		}
	}

	return 0, false
}
