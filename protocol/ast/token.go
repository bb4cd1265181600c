package ast

import (
	"fmt"
	"strings"
)

// TokenKind classifies lexer output.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokQuotedIdent
	TokString
	TokNumber
	TokParam
	TokOp
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokIdent:
		return "identifier"
	case TokQuotedIdent:
		return "quoted identifier"
	case TokString:
		return "string"
	case TokNumber:
		return "number"
	case TokParam:
		return "parameter"
	case TokOp:
		return "operator"
	}
	return "unknown"
}

// Token is a lexical unit. Start and End are byte offsets into the input,
// Line and Col are 1-based positions of Start.
type Token struct {
	Kind  TokenKind
	Text  string
	Start int
	End   int
	Line  int
	Col   int
}

// Is reports whether t is the bare keyword kw (case-insensitive).
func (t Token) Is(kw string) bool {
	return t.Kind == TokIdent && strings.EqualFold(t.Text, kw)
}

// IsOp reports whether t is the operator op.
func (t Token) IsOp(op string) bool {
	return t.Kind == TokOp && t.Text == op
}

// Upper returns the upper-cased token text.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// SyntaxError reports unparseable input. Line and Pos locate the offending
// token; Near is its text ("" at end of input).
type SyntaxError struct {
	Line int
	Pos  int
	Near string
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error line %d at position %d unexpected end of input", e.Line, e.Pos)
	}
	if e.Msg != "" {
		return fmt.Sprintf("syntax error line %d at position %d unexpected '%s' (%s)", e.Line, e.Pos, e.Near, e.Msg)
	}
	return fmt.Sprintf("syntax error line %d at position %d unexpected '%s'", e.Line, e.Pos, e.Near)
}

// reserved words never taken as implicit aliases.
var reserved = map[string]bool{
	"ALL": true, "AND": true, "AS": true, "BETWEEN": true, "BY": true,
	"CASE": true, "CROSS": true, "DISTINCT": true, "ELSE": true, "END": true,
	"EXCEPT": true, "EXISTS": true, "FETCH": true, "FROM": true, "FULL": true,
	"GROUP": true, "HAVING": true, "ILIKE": true, "IN": true, "INNER": true,
	"INTERSECT": true, "IS": true, "JOIN": true, "LATERAL": true, "LEFT": true,
	"LIKE": true, "LIMIT": true, "MINUS": true, "NATURAL": true, "NOT": true,
	"NULL": true, "OFFSET": true, "ON": true, "OR": true, "ORDER": true,
	"OUTER": true, "QUALIFY": true, "RIGHT": true, "SELECT": true, "SET": true,
	"THEN": true, "UNION": true, "USING": true, "VALUES": true, "WHEN": true,
	"WHERE": true, "WINDOW": true, "WITH": true,
}

// IsReserved reports whether word cannot be used as a bare alias.
func IsReserved(word string) bool {
	return reserved[strings.ToUpper(word)]
}
