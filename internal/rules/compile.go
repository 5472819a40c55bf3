package rules

import (
	"fmt"
	"strings"

	"basecore/internal/domain"
)

// Identity path namespaces resolved by the compiler.
const (
	userRoot   = "user"
	recordRoot = "record"
	atRequest  = "@request"
)

// Params allocates named bind parameters shared across the predicates of
// one authorization evaluation, so OR-combined predicates never collide.
type Params struct {
	values map[string]any
	n      int
}

// NewParams creates an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Add binds a value and returns its placeholder (":pN").
func (p *Params) Add(v any) string {
	name := fmt.Sprintf("p%d", p.n)
	p.n++
	p.values[name] = v
	return ":" + name
}

// Values returns the accumulated bindings keyed by parameter name.
func (p *Params) Values() map[string]any { return p.values }

// Compile lowers an expanded AST plus a resolved identity into a
// parameterized predicate. Every literal and identity value is bound,
// never inlined; record paths lower to quoted column references.
func Compile(expr Expr, id domain.Identity, params *Params) (string, error) {
	c := &compiler{identity: id, params: params}
	return c.compile(expr)
}

// CompileRule is a convenience wrapper that allocates its own Params.
func CompileRule(expr Expr, id domain.Identity) (string, map[string]any, error) {
	params := NewParams()
	pred, err := Compile(expr, id, params)
	if err != nil {
		return "", nil, err
	}
	return pred, params.Values(), nil
}

type compiler struct {
	identity domain.Identity
	params   *Params
}

func (c *compiler) compile(expr Expr) (string, error) {
	switch n := expr.(type) {
	case *Literal:
		return c.params.Add(literalValue(n)), nil
	case *Path:
		return c.compilePath(n)
	case *Binary:
		left, err := c.compile(n.Left)
		if err != nil {
			return "", err
		}
		right, err := c.compile(n.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, n.Op, right), nil
	case *Macro:
		return "", domain.ErrValidation("unexpanded macro @%s in compiled rule", n.Name)
	default:
		return "", domain.ErrValidation("unsupported expression node %T", expr)
	}
}

func (c *compiler) compilePath(p *Path) (string, error) {
	switch p.Root() {
	case userRoot:
		if len(p.Parts) != 2 {
			return "", domain.ErrValidation("invalid identity path %q", strings.Join(p.Parts, "."))
		}
		return c.identityParam(p.Parts[1], p)
	case atRequest:
		if len(p.Parts) != 3 || p.Parts[1] != "auth" {
			return "", domain.ErrValidation("invalid request path %q", pathString(p))
		}
		return c.identityParam(p.Parts[2], p)
	case recordRoot:
		if len(p.Parts) != 2 {
			return "", domain.ErrValidation("invalid record path %q", pathString(p))
		}
		return quoteIdent(p.Parts[1]), nil
	default:
		// A bare identifier is a raw column of the target record.
		if len(p.Parts) == 1 {
			return quoteIdent(p.Parts[0]), nil
		}
		return "", domain.ErrValidation("unknown path root %q", p.Root())
	}
}

// identityParam binds one field of the resolved identity.
func (c *compiler) identityParam(field string, p *Path) (string, error) {
	switch field {
	case "id":
		return c.params.Add(c.identity.UserID), nil
	case "email":
		return c.params.Add(c.identity.Email), nil
	case "role":
		return c.params.Add(c.identity.Role), nil
	case "account_id":
		return c.params.Add(c.identity.AccountID), nil
	default:
		return "", domain.ErrValidation("unknown identity field %q in path %q", field, pathString(p))
	}
}

func literalValue(l *Literal) any {
	switch l.Kind {
	case LiteralString:
		return l.String
	case LiteralNumber:
		return l.Number
	case LiteralBool:
		return l.Bool
	}
	return nil
}

func pathString(p *Path) string {
	return strings.Join(p.Parts, ".")
}

// quoteIdent double-quotes a column identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
