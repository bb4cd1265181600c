package ast

import (
	"strings"
)

// Lexer splits warehouse SQL into tokens. Identifiers may contain '$'
// (SYSTEM$WAIT), strings accept both '' and backslash escapes, and $$...$$
// dollar-quoted strings are supported.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Tokenize returns every token in src followed by a single TokEOF.
func Tokenize(src string) ([]Token, error) {
	lx := NewLexer(src)
	var out []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == TokEOF {
			return out, nil
		}
	}
}

func (l *Lexer) peekByte(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) errorf(msg string) error {
	near := ""
	if l.pos < len(l.src) {
		near = string(l.src[l.pos])
	}
	return &SyntaxError{Line: l.line, Pos: l.col - 1, Near: near, Msg: msg}
}

func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			l.advance(1)
		case c == '-' && l.peekByte(1) == '-', c == '/' && l.peekByte(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == '/' && l.peekByte(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf("unterminated comment")
			}
			l.advance(end + 4)
		default:
			return nil
		}
	}
	return nil
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	start, line, col := l.pos, l.line, l.col
	mk := func(kind TokenKind, text string) Token {
		return Token{Kind: kind, Text: text, Start: start, End: l.pos, Line: line, Col: col}
	}
	if l.pos >= len(l.src) {
		return mk(TokEOF, ""), nil
	}

	c := l.src[l.pos]
	switch {
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.advance(1)
		}
		return mk(TokIdent, l.src[start:l.pos]), nil

	case isDigit(c) || (c == '.' && isDigit(l.peekByte(1))):
		l.scanNumber()
		return mk(TokNumber, l.src[start:l.pos]), nil

	case c == '"':
		text, err := l.scanQuoted('"')
		if err != nil {
			return Token{}, err
		}
		return mk(TokQuotedIdent, text), nil

	case c == '\'':
		text, err := l.scanString()
		if err != nil {
			return Token{}, err
		}
		return mk(TokString, text), nil

	case c == '$' && l.peekByte(1) == '$':
		end := strings.Index(l.src[l.pos+2:], "$$")
		if end < 0 {
			return Token{}, l.errorf("unterminated dollar-quoted string")
		}
		text := l.src[l.pos+2 : l.pos+2+end]
		l.advance(end + 4)
		return mk(TokString, text), nil

	case c == '?':
		l.advance(1)
		return mk(TokParam, "?"), nil

	case c == ':' && isDigit(l.peekByte(1)):
		l.advance(1)
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance(1)
		}
		return mk(TokParam, l.src[start:l.pos]), nil
	}

	for _, op := range []string{"::", "||", "<=", ">=", "<>", "!=", "=>"} {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.advance(2)
			return mk(TokOp, op), nil
		}
	}
	if strings.ContainsRune("=<>+-*/%(),.;:[]", rune(c)) {
		l.advance(1)
		return mk(TokOp, string(c)), nil
	}
	return Token{}, l.errorf("unexpected character")
}

func (l *Lexer) scanNumber() {
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.advance(1)
	}
	if l.peekByte(0) == '.' && l.peekByte(1) != '.' {
		l.advance(1)
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance(1)
		}
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		next := l.peekByte(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekByte(2))) {
			l.advance(2)
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.advance(1)
			}
		}
	}
}

func (l *Lexer) scanQuoted(q byte) (string, error) {
	var sb strings.Builder
	l.advance(1)
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == q {
			if l.peekByte(1) == q {
				sb.WriteByte(q)
				l.advance(2)
				continue
			}
			l.advance(1)
			return sb.String(), nil
		}
		sb.WriteByte(c)
		l.advance(1)
	}
	return "", l.errorf("unterminated quoted identifier")
}

func (l *Lexer) scanString() (string, error) {
	var sb strings.Builder
	l.advance(1)
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\'' && l.peekByte(1) == '\'':
			sb.WriteByte('\'')
			l.advance(2)
		case c == '\'':
			l.advance(1)
			return sb.String(), nil
		case c == '\\' && l.pos+1 < len(l.src):
			sb.WriteByte(unescape(l.src[l.pos+1]))
			l.advance(2)
		default:
			sb.WriteByte(c)
			l.advance(1)
		}
	}
	return "", l.errorf("unterminated string literal")
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	}
	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
