// Package rules implements the permission rule expression language: a
// lexer and parser for the boolean/comparison DSL, a macro expansion
// layer over raw rule strings, an execution engine for query-backed
// macros, and a compiler that lowers expanded expressions into
// parameterized SQL predicates.
package rules

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT  // identifier
	TOKEN_NUMBER // 123, 45.67
	TOKEN_STRING // 'hello'
	TOKEN_TRUE   // true
	TOKEN_FALSE  // false

	TOKEN_AT     // @ (macro or @request path)
	TOKEN_DOT    // .
	TOKEN_COMMA  // ,
	TOKEN_LPAREN // (
	TOKEN_RPAREN // )

	TOKEN_EQ // = or ==
	TOKEN_NE // !=
	TOKEN_LT // <
	TOKEN_LE // <=
	TOKEN_GT // >
	TOKEN_GE // >=

	TOKEN_AND // &&
	TOKEN_OR  // ||
)

// Token is one lexical token with its source offset.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// Lexer tokenizes rule expression input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos}

	switch l.ch {
	case 0:
		tok.Type = TOKEN_EOF
		return tok
	case '@':
		tok.Type, tok.Literal = TOKEN_AT, "@"
	case '.':
		tok.Type, tok.Literal = TOKEN_DOT, "."
	case ',':
		tok.Type, tok.Literal = TOKEN_COMMA, ","
	case '(':
		tok.Type, tok.Literal = TOKEN_LPAREN, "("
	case ')':
		tok.Type, tok.Literal = TOKEN_RPAREN, ")"
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_EQ, "=="
		} else {
			tok.Type, tok.Literal = TOKEN_EQ, "="
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_NE, "!="
		} else {
			tok.Type, tok.Literal = TOKEN_ILLEGAL, string(l.ch)
		}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_LE, "<="
		} else {
			tok.Type, tok.Literal = TOKEN_LT, "<"
		}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_GE, ">="
		} else {
			tok.Type, tok.Literal = TOKEN_GT, ">"
		}
	case '&':
		if l.peekChar() == '&' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_AND, "&&"
		} else {
			tok.Type, tok.Literal = TOKEN_ILLEGAL, string(l.ch)
		}
	case '|':
		if l.peekChar() == '|' {
			l.readChar()
			tok.Type, tok.Literal = TOKEN_OR, "||"
		} else {
			tok.Type, tok.Literal = TOKEN_ILLEGAL, string(l.ch)
		}
	case '\'':
		return l.readString()
	default:
		if isIdentStart(l.ch) {
			return l.readIdentifier()
		}
		if isDigit(l.ch) {
			return l.readNumber()
		}
		tok.Type, tok.Literal = TOKEN_ILLEGAL, string(l.ch)
	}

	l.readChar()
	return tok
}

// readString reads a single-quoted string literal. A doubled quote ('')
// inside the literal is an escaped quote.
func (l *Lexer) readString() Token {
	tok := Token{Type: TOKEN_STRING, Pos: l.pos}
	var out []byte
	l.readChar() // consume opening quote
	for {
		if l.ch == 0 {
			return Token{Type: TOKEN_ILLEGAL, Literal: "unterminated string", Pos: tok.Pos}
		}
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				out = append(out, '\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // consume closing quote
			break
		}
		out = append(out, l.ch)
		l.readChar()
	}
	tok.Literal = string(out)
	return tok
}

func (l *Lexer) readIdentifier() Token {
	tok := Token{Pos: l.pos}
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	tok.Literal = l.input[start:l.pos]
	switch tok.Literal {
	case "true":
		tok.Type = TOKEN_TRUE
	case "false":
		tok.Type = TOKEN_FALSE
	default:
		tok.Type = TOKEN_IDENT
	}
	return tok
}

func (l *Lexer) readNumber() Token {
	tok := Token{Type: TOKEN_NUMBER, Pos: l.pos}
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	tok.Literal = l.input[start:l.pos]
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
