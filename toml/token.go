// Package toml reads the TOML subset used by voxpool configuration files
//
// Supported: comments, [tables], [[arrays of tables]], dotted and quoted keys,
// basic and literal strings, integers (with 0x/0o/0b and _ separators),
// floats, booleans, arrays and inline tables
// Not supported: multi-line strings, dates and times
package toml

import "fmt"

// TokenType is the lexical class of a token
type TokenType int

const (
	TokenError TokenType = iota
	TokenEOF
	TokenNewline
	TokenComment

	TokenBare    // bare key or unquoted word
	TokenString  // "basic" or 'literal', already unescaped
	TokenInteger // 42, -7, 0xff, 1_000
	TokenFloat   // 1.5, -2e3, inf, nan
	TokenBool    // true, false

	TokenEqual    // =
	TokenDot      // .
	TokenComma    // ,
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
)

var tokenNames = [...]string{
	TokenError:    "error",
	TokenEOF:      "end of input",
	TokenNewline:  "newline",
	TokenComment:  "comment",
	TokenBare:     "key",
	TokenString:   "string",
	TokenInteger:  "integer",
	TokenFloat:    "float",
	TokenBool:     "bool",
	TokenEqual:    "'='",
	TokenDot:      "'.'",
	TokenComma:    "','",
	TokenLBracket: "'['",
	TokenRBracket: "']'",
	TokenLBrace:   "'{'",
	TokenRBrace:   "'}'",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Pos is a 1-based source position
type Pos struct {
	Line, Col int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is one lexical unit
type Token struct {
	Type    TokenType
	Literal string
	Pos     Pos
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	case TokenError:
		return "error: " + t.Literal
	}
	lit := t.Literal
	if len(lit) > 24 {
		lit = lit[:24] + "..."
	}
	return fmt.Sprintf("%s %q", t.Type, lit)
}

// Error is a parse or decode failure with its source position when known
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return "toml: " + e.Msg
	}
	return fmt.Sprintf("toml:%s: %s", e.Pos, e.Msg)
}

func errorf(pos Pos, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
