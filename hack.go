package jsc

// The object hack rewrites non-computed, non-optional member
// expressions whose object resolves to an identifier into a single
// flat identifier __<object>_<property>. That is how well-known
// namespaces (Math.*, Array.*) bind to built-ins at compile time.
// `length` is left alone so .length keeps its meaning.
//
// The rewrite is only sound when the top-level identifier is a
// reserved namespace or a receiver handled by prototype dispatch;
// member access on anything else is unsupported.
//
// The rewrite is idempotent: a rewritten node is an Identifier and
// is never touched again.

func objectHack(n *Node) {
	if n == nil {
		return
	}

	hackChildren(n)

	if n.Type != "MemberExpression" || n.Computed || n.Optional {
		return
	}

	if n.Property == nil || n.Property.Type != "Identifier" || n.Property.Name == "length" {
		return
	}

	// children were rewritten first, so a member chain has already
	// collapsed into an identifier if it was eligible
	if n.Object == nil || n.Object.Type != "Identifier" {
		return
	}

	name := "__" + n.Object.Name + "_" + n.Property.Name

	*n = Node{Type: "Identifier", Name: name}
}

func hackChildren(n *Node) {
	for _, c := range n.Body {
		objectHack(c)
	}

	objectHack(n.BodyNode)
	objectHack(n.Expression)

	for _, c := range n.Declarations {
		objectHack(c)
	}

	objectHack(n.Init)
	objectHack(n.Test)
	objectHack(n.Consequent)
	objectHack(n.Alternate)
	objectHack(n.Update)

	objectHack(n.Left)
	objectHack(n.Right)
	objectHack(n.Argument)

	objectHack(n.Object)
	objectHack(n.Callee)

	for _, c := range n.Arguments {
		objectHack(c)
	}

	for _, c := range n.Elements {
		objectHack(c)
	}

	objectHack(n.Block)
	objectHack(n.Handler)
	objectHack(n.Finalizer)

	objectHack(n.Declaration)

	objectHack(n.Quasi)

	for _, c := range n.Expressions {
		objectHack(c)
	}
}
