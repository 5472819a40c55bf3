package rules

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	exprNode()
}

// LiteralKind distinguishes literal value types.
type LiteralKind int

// Literal kinds.
const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
)

// Literal is a string, number, or boolean literal.
type Literal struct {
	Kind   LiteralKind
	String string
	Number float64
	Bool   bool
}

func (*Literal) exprNode() {}

// Path is a dotted path reference resolved at compile time against the
// identity or record namespace. An @request path keeps the "@request"
// marker as its first part (e.g. ["@request", "auth", "id"]); a bare
// column reference has a single part.
type Path struct {
	Parts []string
}

func (*Path) exprNode() {}

// Root returns the first path segment.
func (p *Path) Root() string {
	if len(p.Parts) == 0 {
		return ""
	}
	return p.Parts[0]
}

// Macro is a macro invocation, opaque until expanded. The parser only
// sees macro nodes when validating raw (unexpanded) rule expressions.
type Macro struct {
	Name string
	Args []Expr
}

func (*Macro) exprNode() {}

// BinaryOp identifies a comparison or boolean combinator.
type BinaryOp string

// Binary operators.
const (
	OpEq  BinaryOp = "="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "AND"
	OpOr  BinaryOp = "OR"
)

// Binary is a comparison or boolean-combination node.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// ContainsMacro reports whether any macro invocation remains in the
// expression tree.
func ContainsMacro(e Expr) bool {
	switch n := e.(type) {
	case *Macro:
		return true
	case *Binary:
		return ContainsMacro(n.Left) || ContainsMacro(n.Right)
	}
	return false
}
