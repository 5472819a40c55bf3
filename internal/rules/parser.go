package rules

import (
	"fmt"
	"strconv"

	"basecore/internal/domain"
)

// Parser parses rule expressions into an AST.
//
// Grammar:
//
//	expr    := or_expr
//	or_expr := and_expr ('||' and_expr)*
//	and_expr:= cmp ('&&' cmp)*
//	cmp     := atom (('=='|'='|'!='|'<'|'<='|'>'|'>=') atom)?
//	atom    := literal | path | macro | '(' expr ')'
//	macro   := '@' identifier ('(' arglist ')')?
type Parser struct {
	lexer *Lexer
	input string
	token Token // current token
	peek  Token // lookahead token
}

// NewParser creates a new parser for the given rule expression.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), input: input}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a rule expression string into an AST. Malformed input
// yields a *domain.RuleSyntaxError.
func Parse(input string) (Expr, error) {
	p := NewParser(input)
	if p.token.Type == TOKEN_EOF {
		return nil, p.errorf(0, "empty expression")
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.token.Type != TOKEN_EOF {
		return nil, p.errorf(p.token.Pos, "unexpected token %q after expression", p.token.Literal)
	}
	return expr, nil
}

func (p *Parser) nextToken() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(pos int, format string, args ...interface{}) error {
	return &domain.RuleSyntaxError{
		Expression: p.input,
		Position:   pos,
		Message:    fmt.Sprintf(format, args...),
	}
}

func (p *Parser) parseExpr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.token.Type == TOKEN_OR {
		p.nextToken()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.token.Type == TOKEN_AND {
		p.nextToken()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseCmp() (Expr, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	var op BinaryOp
	switch p.token.Type {
	case TOKEN_EQ:
		op = OpEq
	case TOKEN_NE:
		op = OpNe
	case TOKEN_LT:
		op = OpLt
	case TOKEN_LE:
		op = OpLe
	case TOKEN_GT:
		op = OpGt
	case TOKEN_GE:
		op = OpGe
	default:
		return left, nil
	}
	p.nextToken()

	right, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseAtom() (Expr, error) {
	switch p.token.Type {
	case TOKEN_STRING:
		lit := &Literal{Kind: LiteralString, String: p.token.Literal}
		p.nextToken()
		return lit, nil
	case TOKEN_NUMBER:
		n, err := strconv.ParseFloat(p.token.Literal, 64)
		if err != nil {
			return nil, p.errorf(p.token.Pos, "invalid number %q", p.token.Literal)
		}
		lit := &Literal{Kind: LiteralNumber, Number: n}
		p.nextToken()
		return lit, nil
	case TOKEN_TRUE, TOKEN_FALSE:
		lit := &Literal{Kind: LiteralBool, Bool: p.token.Type == TOKEN_TRUE}
		p.nextToken()
		return lit, nil
	case TOKEN_IDENT:
		return p.parsePath(p.token.Literal)
	case TOKEN_AT:
		return p.parseAtRef()
	case TOKEN_LPAREN:
		p.nextToken()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.token.Type != TOKEN_RPAREN {
			return nil, p.errorf(p.token.Pos, "expected ')', got %q", p.token.Literal)
		}
		p.nextToken()
		return expr, nil
	case TOKEN_ILLEGAL:
		return nil, p.errorf(p.token.Pos, "illegal token %q", p.token.Literal)
	default:
		return nil, p.errorf(p.token.Pos, "unexpected token %q", p.token.Literal)
	}
}

// parsePath parses a dotted path starting from the given first segment.
// The current token is the first identifier.
func (p *Parser) parsePath(first string) (Expr, error) {
	parts := []string{first}
	p.nextToken()
	for p.token.Type == TOKEN_DOT {
		p.nextToken()
		if p.token.Type != TOKEN_IDENT {
			return nil, p.errorf(p.token.Pos, "expected identifier after '.', got %q", p.token.Literal)
		}
		parts = append(parts, p.token.Literal)
		p.nextToken()
	}
	return &Path{Parts: parts}, nil
}

// parseAtRef parses either the @request.auth.* path namespace or a macro
// invocation. The current token is '@'.
func (p *Parser) parseAtRef() (Expr, error) {
	atPos := p.token.Pos
	p.nextToken()
	if p.token.Type != TOKEN_IDENT {
		return nil, p.errorf(p.token.Pos, "expected identifier after '@', got %q", p.token.Literal)
	}
	name := p.token.Literal

	// @request.auth.* is a path reference, not a macro.
	if name == requestRoot && p.peek.Type == TOKEN_DOT {
		return p.parsePath("@" + name)
	}

	p.nextToken()
	m := &Macro{Name: name}
	if p.token.Type != TOKEN_LPAREN {
		return m, nil
	}
	p.nextToken()
	if p.token.Type == TOKEN_RPAREN {
		p.nextToken()
		return m, nil
	}
	for {
		arg, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		m.Args = append(m.Args, arg)
		if p.token.Type == TOKEN_COMMA {
			p.nextToken()
			continue
		}
		break
	}
	if p.token.Type != TOKEN_RPAREN {
		return nil, p.errorf(atPos, "unterminated argument list for macro @%s", name)
	}
	p.nextToken()
	return m, nil
}
