package toml

import "testing"

func lexAll(input string) []Token {
	l := NewLexer([]byte(input))
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return out
		}
	}
}

// TestLexerClassifiesWords tests number, bool and key classification of bare words
func TestLexerClassifiesWords(t *testing.T) {
	cases := []struct {
		input string
		want  TokenType
	}{
		{"42", TokenInteger},
		{"-7", TokenInteger},
		{"1_000", TokenInteger},
		{"0xff", TokenInteger},
		{"0o17", TokenInteger},
		{"0b101", TokenInteger},
		{"1.5", TokenFloat},
		{"-0.25", TokenFloat},
		{"2e3", TokenFloat},
		{"inf", TokenFloat},
		{"-nan", TokenFloat},
		{"true", TokenBool},
		{"false", TokenBool},
		{"sample_rate", TokenBare},
		{"reverb-send", TokenBare},
		{"007", TokenBare},
	}
	for _, c := range cases {
		tokens := lexAll(c.input)
		if tokens[0].Type != c.want {
			t.Errorf("%q: expected %s, got %s", c.input, c.want, tokens[0].Type)
		}
	}
}

// TestLexerDottedKeyAndPositions tests that dots split keys and positions are 1-based
func TestLexerDottedKeyAndPositions(t *testing.T) {
	tokens := lexAll("# header\nengine.rate = 48000\n")
	want := []TokenType{TokenComment, TokenNewline, TokenBare, TokenDot, TokenBare, TokenEqual, TokenInteger, TokenNewline, TokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("Expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i, w := range want {
		if tokens[i].Type != w {
			t.Errorf("Token %d: expected %s, got %s", i, w, tokens[i].Type)
		}
	}
	if p := tokens[6].Pos; p.Line != 2 || p.Col != 15 {
		t.Errorf("Expected integer at 2:15, got %s", p)
	}
}

// TestLexerStrings tests escapes in basic strings and raw literal strings
func TestLexerStrings(t *testing.T) {
	tokens := lexAll(`"a\tb\u00e9\"" 'C:\raw'`)
	if tokens[0].Type != TokenString || tokens[0].Literal != "a\tbé\"" {
		t.Errorf("Expected unescaped basic string, got %s", tokens[0])
	}
	if tokens[1].Type != TokenString || tokens[1].Literal != `C:\raw` {
		t.Errorf("Expected literal string kept raw, got %s", tokens[1])
	}
}

// TestLexerErrors tests malformed input yields error tokens
func TestLexerErrors(t *testing.T) {
	for _, input := range []string{`"open`, `'open`, `"bad \q"`, `"\u12"`, "1.2.3", "@"} {
		tokens := lexAll(input)
		last := tokens[len(tokens)-1]
		if last.Type != TokenError {
			t.Errorf("%q: expected error token, got %v", input, tokens)
		}
	}
}
