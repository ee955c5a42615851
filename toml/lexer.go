package toml

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lexer splits input into tokens, one call at a time
type Lexer struct {
	input []byte
	pos   int
	line  int
	col   int
}

// NewLexer creates a lexer positioned at the start of input
func NewLexer(input []byte) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRune(l.input[l.pos:])
	return r
}

func (l *Lexer) next() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, w := utf8.DecodeRune(l.input[l.pos:])
	l.pos += w
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) here() Pos {
	return Pos{Line: l.line, Col: l.col}
}

// NextToken returns the next token; after EOF or an error it keeps returning the same type
func (l *Lexer) NextToken() Token {
	for c := l.peek(); c == ' ' || c == '\t' || c == '\r'; c = l.peek() {
		l.next()
	}

	start := l.here()
	tok := func(t TokenType, lit string) Token {
		return Token{Type: t, Literal: lit, Pos: start}
	}

	if l.pos >= len(l.input) {
		return tok(TokenEOF, "")
	}

	switch c := l.peek(); c {
	case '\n':
		l.next()
		return tok(TokenNewline, "\n")
	case '#':
		from := l.pos + 1
		for l.pos < len(l.input) && l.peek() != '\n' {
			l.next()
		}
		return tok(TokenComment, string(l.input[from:l.pos]))
	case '=', '.', ',', '[', ']', '{', '}':
		l.next()
		return tok(punctuation[c], string(c))
	case '"':
		l.next()
		s, err := l.basicString()
		if err != "" {
			return tok(TokenError, err)
		}
		return tok(TokenString, s)
	case '\'':
		l.next()
		from := l.pos
		for {
			switch l.peek() {
			case 0, '\n':
				return tok(TokenError, "unterminated literal string")
			case '\'':
				s := string(l.input[from:l.pos])
				l.next()
				return tok(TokenString, s)
			}
			l.next()
		}
	}

	from := l.pos
	for isBareChar(l.peek()) || l.numberDot() {
		l.next()
	}
	if l.pos == from {
		c := l.next()
		return tok(TokenError, "unexpected character "+strconv.QuoteRune(c))
	}
	return tok(classify(string(l.input[from:l.pos])))
}

var punctuation = map[rune]TokenType{
	'=': TokenEqual,
	'.': TokenDot,
	',': TokenComma,
	'[': TokenLBracket,
	']': TokenRBracket,
	'{': TokenLBrace,
	'}': TokenRBrace,
}

// numberDot reports a '.' inside a numeric word such as 1.5 or -0.25
// A dot after a non-numeric prefix separates keys instead
func (l *Lexer) numberDot() bool {
	if l.peek() != '.' || l.pos+1 >= len(l.input) {
		return false
	}
	word := l.currentWord()
	if word == "" {
		return false
	}
	digits := strings.TrimLeft(word, "+-")
	if digits == "" || strings.ContainsFunc(digits, func(r rune) bool { return !isDigit(r) && r != '_' }) {
		return false
	}
	return isDigit(rune(l.input[l.pos+1]))
}

// currentWord returns the bare word read so far, back to the last delimiter
func (l *Lexer) currentWord() string {
	i := l.pos
	for i > 0 && isBareChar(rune(l.input[i-1])) {
		i--
	}
	return string(l.input[i:l.pos])
}

func (l *Lexer) basicString() (string, string) {
	var sb strings.Builder
	for {
		c := l.next()
		switch c {
		case 0, '\n':
			return "", "unterminated string"
		case '"':
			return sb.String(), ""
		case '\\':
			e := l.next()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case '"', '\\':
				sb.WriteRune(e)
			case 'u', 'U':
				n := 4
				if e == 'U' {
					n = 8
				}
				if l.pos+n > len(l.input) {
					return "", "short unicode escape"
				}
				v, err := strconv.ParseUint(string(l.input[l.pos:l.pos+n]), 16, 32)
				if err != nil || !utf8.ValidRune(rune(v)) {
					return "", "invalid unicode escape"
				}
				for range n {
					l.next()
				}
				sb.WriteRune(rune(v))
			default:
				return "", "invalid escape \\" + string(e)
			}
		default:
			sb.WriteRune(c)
		}
	}
}

// classify decides whether a bare word is a bool, a number or a key
func classify(word string) (TokenType, string) {
	switch word {
	case "true", "false":
		return TokenBool, word
	case "inf", "+inf", "-inf", "nan", "+nan", "-nan":
		return TokenFloat, word
	}
	if _, ok := parseInt(word); ok {
		return TokenInteger, word
	}
	if _, ok := parseFloat(word); ok {
		return TokenFloat, word
	}
	if strings.ContainsAny(word, "+.") {
		return TokenError, "invalid value " + strconv.Quote(word)
	}
	return TokenBare, word
}

func parseInt(word string) (int64, bool) {
	if word == "" || strings.HasPrefix(word, "_") || strings.HasSuffix(word, "_") || strings.Contains(word, "__") {
		return 0, false
	}
	digits := strings.TrimLeft(word, "+-")
	if len(digits) > 1 && digits[0] == '0' && isDigit(rune(digits[1])) {
		return 0, false // Leading zeros
	}
	v, err := strconv.ParseInt(word, 0, 64)
	if err != nil {
		return 0, false
	}
	// Bare 0-prefixed octal is not TOML
	if len(digits) > 1 && digits[0] == '0' && !strings.ContainsAny(digits[1:2], "xXoObB") {
		return 0, false
	}
	return v, true
}

func parseFloat(word string) (float64, bool) {
	if !strings.ContainsAny(word, ".eE") || strings.ContainsAny(word, "xX") {
		return 0, false
	}
	if strings.HasPrefix(strings.TrimLeft(word, "+-"), ".") || strings.HasSuffix(word, ".") || strings.Contains(word, "_.") || strings.Contains(word, "._") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(word, "_", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isBareChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || isDigit(r) || r == '_' || r == '-' || r == '+'
}
