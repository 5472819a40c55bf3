package rules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"basecore/internal/domain"
)

// requestRoot is the path namespace that shares the '@' sigil with
// macros: @request.auth.* references are copied through expansion
// verbatim and resolved by the compiler.
const requestRoot = "request"

// Built-in macro names. Built-ins are pure string templates compiled
// into the engine; they cannot be shadowed or deleted.
const (
	MacroOwnsRecord = "owns_record"
	MacroHasRole    = "has_role"
	MacroIsPublic   = "is_public"
)

// IsBuiltin reports whether name is a built-in macro.
func IsBuiltin(name string) bool {
	switch name {
	case MacroOwnsRecord, MacroHasRole, MacroIsPublic:
		return true
	}
	return false
}

// MacroSource resolves database-defined macros by name.
type MacroSource interface {
	GetByName(ctx context.Context, name string) (*domain.Macro, error)
}

// Executor runs a query-backed macro and returns its scalar result.
// Implemented by *Engine.
type Executor interface {
	Execute(ctx context.Context, m *domain.Macro, args []string) (any, error)
}

// Expander rewrites macro invocations in raw rule strings into
// parenthesized sub-expressions. Expansion is textual and idempotent:
// a macro-free expression passes through unchanged.
type Expander struct {
	source   MacroSource
	exec     Executor
	identity *domain.Identity
}

// NewExpander creates an Expander. exec may be nil when no query-backed
// macros are expected (e.g. save-time validation of textual macros).
func NewExpander(source MacroSource, exec Executor) *Expander {
	return &Expander{source: source, exec: exec}
}

// WithIdentity attaches the resolved identity, so @request.auth.*
// arguments of query-backed macros bind the caller's values instead of
// raw path text.
func (x *Expander) WithIdentity(id domain.Identity) *Expander {
	x.identity = &id
	return x
}

// Expand returns the expression with every macro invocation replaced.
// The result contains no remaining macro tokens.
func (x *Expander) Expand(ctx context.Context, expr string) (string, error) {
	return x.expand(ctx, expr, nil)
}

// expand scans expr left to right, replacing macro invocations. stack
// holds the names currently being expanded; revisiting one is a cycle.
func (x *Expander) expand(ctx context.Context, expr string, stack []string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(expr) {
		ch := expr[i]

		// String literals pass through untouched ('' escapes a quote).
		if ch == '\'' {
			end, err := skipString(expr, i)
			if err != nil {
				return "", err
			}
			out.WriteString(expr[i:end])
			i = end
			continue
		}

		if ch != '@' {
			out.WriteByte(ch)
			i++
			continue
		}

		name, rest := readIdent(expr[i+1:])
		if name == "" {
			return "", &domain.RuleSyntaxError{Expression: expr, Position: i, Message: "expected identifier after '@'"}
		}

		// @request.auth.* is a path reference, not a macro token.
		if name == requestRoot && strings.HasPrefix(rest, ".") {
			out.WriteByte('@')
			out.WriteString(name)
			i += 1 + len(name)
			continue
		}

		args, consumed, err := readArgs(expr, i+1+len(name))
		if err != nil {
			return "", err
		}

		replacement, err := x.resolve(ctx, name, args, stack)
		if err != nil {
			return "", err
		}
		out.WriteString(replacement)
		i = i + 1 + len(name) + consumed
	}
	return out.String(), nil
}

// resolve produces the parenthesized replacement for one invocation.
func (x *Expander) resolve(ctx context.Context, name string, args []string, stack []string) (string, error) {
	switch name {
	case MacroOwnsRecord:
		switch len(args) {
		case 0:
			return "(created_by = @request.auth.id)", nil
		case 1:
			return fmt.Sprintf("(%s = @request.auth.id)", args[0]), nil
		default:
			return "", domain.ErrValidation("macro @%s takes at most one argument", name)
		}
	case MacroHasRole:
		if len(args) != 1 {
			return "", domain.ErrValidation("macro @%s takes exactly one argument", name)
		}
		return fmt.Sprintf("(@request.auth.role = %s)", args[0]), nil
	case MacroIsPublic:
		if len(args) != 0 {
			return "", domain.ErrValidation("macro @%s takes no arguments", name)
		}
		return "(public = true)", nil
	}

	for _, active := range stack {
		if active == name {
			return "", &domain.MacroCycleError{Name: name, Stack: append(append([]string(nil), stack...), name)}
		}
	}

	m, err := x.source.GetByName(ctx, name)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return "", &domain.UnresolvedMacroError{Name: name}
		}
		return "", fmt.Errorf("resolve macro @%s: %w", name, err)
	}

	if m.QueryBacked() {
		if x.exec == nil {
			return "", &domain.MacroExecutionError{Name: name, Err: errors.New("no execution engine configured")}
		}
		result, err := x.exec.Execute(ctx, m, x.resolveArgs(args))
		if err != nil {
			return "", err
		}
		lit, err := renderScalar(name, result)
		if err != nil {
			return "", err
		}
		return "(" + lit + ")", nil
	}

	body := m.Body
	// A bare macro reference forwards the call arguments verbatim.
	if isBareReference(body) && len(args) > 0 {
		body = body + "(" + strings.Join(args, ", ") + ")"
	} else {
		for n, arg := range args {
			body = strings.ReplaceAll(body, "$"+strconv.Itoa(n+1), arg)
		}
	}

	expanded, err := x.expand(ctx, body, append(stack, name))
	if err != nil {
		return "", err
	}
	return "(" + expanded + ")", nil
}

// resolveArgs substitutes @request.auth.* argument paths with the
// identity's values, quoted so the engine binds them as strings.
func (x *Expander) resolveArgs(args []string) []string {
	if x.identity == nil {
		return args
	}
	out := make([]string, len(args))
	for i, arg := range args {
		v, ok := x.identityValue(arg)
		if ok {
			out[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		} else {
			out[i] = arg
		}
	}
	return out
}

func (x *Expander) identityValue(arg string) (string, bool) {
	switch strings.TrimSpace(arg) {
	case "@request.auth.id":
		return x.identity.UserID, true
	case "@request.auth.email":
		return x.identity.Email, true
	case "@request.auth.role":
		return x.identity.Role, true
	case "@request.auth.account_id":
		return x.identity.AccountID, true
	}
	return "", false
}

// skipString returns the offset just past the string literal starting
// at start.
func skipString(expr string, start int) (int, error) {
	i := start + 1
	for i < len(expr) {
		if expr[i] == '\'' {
			if i+1 < len(expr) && expr[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, &domain.RuleSyntaxError{Expression: expr, Position: start, Message: "unterminated string"}
}

// readIdent reads a leading identifier from s.
func readIdent(s string) (ident, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if isIdentStart(c) || (i > 0 && isDigit(c)) {
			i++
			continue
		}
		break
	}
	return s[:i], s[i:]
}

// readArgs reads an optional parenthesized argument list beginning at
// offset pos. Returns the trimmed argument texts and the number of
// bytes consumed (zero when no list is present).
func readArgs(expr string, pos int) (args []string, consumed int, err error) {
	if pos >= len(expr) || expr[pos] != '(' {
		return nil, 0, nil
	}
	depth := 0
	var current strings.Builder
	i := pos
	for i < len(expr) {
		ch := expr[i]
		switch {
		case ch == '\'':
			end, err := skipString(expr, i)
			if err != nil {
				return nil, 0, err
			}
			current.WriteString(expr[i:end])
			i = end
			continue
		case ch == '(':
			depth++
			if depth > 1 {
				current.WriteByte(ch)
			}
		case ch == ')':
			depth--
			if depth == 0 {
				if arg := strings.TrimSpace(current.String()); arg != "" {
					args = append(args, arg)
				}
				return args, i - pos + 1, nil
			}
			current.WriteByte(ch)
		case ch == ',' && depth == 1:
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
		i++
	}
	return nil, 0, &domain.RuleSyntaxError{Expression: expr, Position: pos, Message: "unterminated argument list"}
}

// isBareReference reports whether body is exactly one macro token with
// no argument list of its own.
func isBareReference(body string) bool {
	body = strings.TrimSpace(body)
	if len(body) < 2 || body[0] != '@' {
		return false
	}
	ident, rest := readIdent(body[1:])
	return ident != "" && ident != requestRoot && rest == ""
}

// renderScalar renders a query-backed macro's scalar result as an
// expression literal.
func renderScalar(name string, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case []byte:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case nil:
		return "", &domain.MacroExecutionError{Name: name, Err: errors.New("query returned NULL")}
	default:
		return "", &domain.MacroExecutionError{Name: name, Err: fmt.Errorf("unsupported scalar type %T", v)}
	}
}
