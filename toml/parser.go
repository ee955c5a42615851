package toml

import (
	"math"
	"strconv"
	"strings"
)

// Parser builds a generic document: map[string]any with nested maps,
// []any arrays, []map[string]any arrays of tables, string, int64, float64 and bool leaves
type Parser struct {
	lex  *Lexer
	tok  Token
	peek Token

	root    map[string]any
	table   map[string]any  // Target of key/value lines
	defined map[string]bool // Headers already declared, by resolved path
}

// NewParser creates a parser over input
func NewParser(input []byte) *Parser {
	p := &Parser{
		lex:     NewLexer(input),
		root:    make(map[string]any),
		defined: make(map[string]bool),
	}
	p.table = p.root
	p.advance()
	p.advance()
	return p
}

// advance shifts one token, skipping comments
func (p *Parser) advance() {
	p.tok = p.peek
	p.peek = p.lex.NextToken()
	for p.peek.Type == TokenComment {
		p.peek = p.lex.NextToken()
	}
}

// Parse consumes the whole input
func (p *Parser) Parse() (map[string]any, error) {
	for p.tok.Type != TokenEOF {
		switch p.tok.Type {
		case TokenNewline:
			p.advance()
			continue
		case TokenLBracket:
			if err := p.header(); err != nil {
				return nil, err
			}
		case TokenBare, TokenString, TokenInteger, TokenBool:
			if err := p.keyValue(p.table); err != nil {
				return nil, err
			}
		case TokenError:
			return nil, errorf(p.tok.Pos, "%s", p.tok.Literal)
		default:
			return nil, errorf(p.tok.Pos, "unexpected %s", p.tok)
		}
		if p.tok.Type != TokenNewline && p.tok.Type != TokenEOF {
			return nil, errorf(p.tok.Pos, "expected end of line, got %s", p.tok)
		}
	}
	return p.root, nil
}

func (p *Parser) expect(t TokenType) error {
	if p.tok.Type == TokenError {
		return errorf(p.tok.Pos, "%s", p.tok.Literal)
	}
	if p.tok.Type != t {
		return errorf(p.tok.Pos, "expected %s, got %s", t, p.tok)
	}
	p.advance()
	return nil
}

// header handles [a.b] and [[a.b]]
func (p *Parser) header() error {
	pos := p.tok.Pos
	array := p.peek.Type == TokenLBracket
	p.advance()
	if array {
		p.advance()
	}
	keys, err := p.key()
	if err != nil {
		return err
	}
	if err := p.expect(TokenRBracket); err != nil {
		return err
	}
	if array {
		if err := p.expect(TokenRBracket); err != nil {
			return err
		}
	}
	return p.openTable(keys, pos, array)
}

// openTable walks from the root, creating implicit tables and entering the last element of arrays of tables
func (p *Parser) openTable(keys []string, pos Pos, array bool) error {
	cur := p.root
	path := ""
	for i, k := range keys {
		path += "\x00" + k
		last := i == len(keys)-1

		existing, ok := cur[k]
		if last && array {
			var elems []map[string]any
			if ok {
				if elems, ok = existing.([]map[string]any); !ok {
					return errorf(pos, "key %q is already defined as a non-array", strings.Join(keys, "."))
				}
			}
			next := make(map[string]any)
			cur[k] = append(elems, next)
			p.table = next
			return nil
		}

		if !ok {
			next := make(map[string]any)
			cur[k] = next
			cur = next
			continue
		}
		switch v := existing.(type) {
		case map[string]any:
			cur = v
		case []map[string]any:
			if last {
				return errorf(pos, "table %q is already an array of tables", strings.Join(keys, "."))
			}
			cur = v[len(v)-1]
			path += "#" + strconv.Itoa(len(v)-1)
		default:
			return errorf(pos, "key %q is already defined as a value", strings.Join(keys[:i+1], "."))
		}
	}

	if p.defined[path] {
		return errorf(pos, "table %q defined twice", strings.Join(keys, "."))
	}
	p.defined[path] = true
	p.table = cur
	return nil
}

func (p *Parser) keyValue(into map[string]any) error {
	pos := p.tok.Pos
	keys, err := p.key()
	if err != nil {
		return err
	}
	if err := p.expect(TokenEqual); err != nil {
		return err
	}
	v, err := p.value()
	if err != nil {
		return err
	}
	return assign(into, keys, v, pos)
}

func assign(m map[string]any, keys []string, v any, pos Pos) error {
	for _, k := range keys[:len(keys)-1] {
		existing, ok := m[k]
		if !ok {
			next := make(map[string]any)
			m[k] = next
			m = next
			continue
		}
		next, ok := existing.(map[string]any)
		if !ok {
			return errorf(pos, "key %q is not a table", k)
		}
		m = next
	}
	k := keys[len(keys)-1]
	if _, dup := m[k]; dup {
		return errorf(pos, "duplicate key %q", strings.Join(keys, "."))
	}
	m[k] = v
	return nil
}

// key reads a possibly dotted key; integers and bools are valid bare keys
func (p *Parser) key() ([]string, error) {
	var keys []string
	for {
		switch p.tok.Type {
		case TokenBare, TokenString, TokenInteger, TokenBool:
			keys = append(keys, p.tok.Literal)
		case TokenError:
			return nil, errorf(p.tok.Pos, "%s", p.tok.Literal)
		default:
			return nil, errorf(p.tok.Pos, "expected key, got %s", p.tok)
		}
		p.advance()
		if p.tok.Type != TokenDot {
			return keys, nil
		}
		p.advance()
	}
}

func (p *Parser) value() (any, error) {
	t := p.tok
	switch t.Type {
	case TokenString:
		p.advance()
		return t.Literal, nil
	case TokenInteger:
		p.advance()
		v, _ := parseInt(t.Literal)
		return v, nil
	case TokenFloat:
		p.advance()
		switch strings.TrimLeft(t.Literal, "+") {
		case "inf":
			return math.Inf(1), nil
		case "-inf":
			return math.Inf(-1), nil
		case "nan", "-nan":
			return math.NaN(), nil
		}
		v, _ := parseFloat(t.Literal)
		return v, nil
	case TokenBool:
		p.advance()
		return t.Literal == "true", nil
	case TokenLBracket:
		return p.array()
	case TokenLBrace:
		return p.inlineTable()
	case TokenError:
		return nil, errorf(t.Pos, "%s", t.Literal)
	}
	return nil, errorf(t.Pos, "expected value, got %s", t)
}

func (p *Parser) skipNewlines() {
	for p.tok.Type == TokenNewline {
		p.advance()
	}
}

func (p *Parser) array() ([]any, error) {
	p.advance()
	arr := make([]any, 0)
	for {
		p.skipNewlines()
		if p.tok.Type == TokenRBracket {
			p.advance()
			return arr, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
		p.skipNewlines()
		if p.tok.Type == TokenComma {
			p.advance()
			continue
		}
		if p.tok.Type != TokenRBracket {
			return nil, errorf(p.tok.Pos, "expected ',' or ']' in array, got %s", p.tok)
		}
	}
}

// inlineTable reads { k = v, ... } on one line
func (p *Parser) inlineTable() (map[string]any, error) {
	p.advance()
	m := make(map[string]any)
	if p.tok.Type == TokenRBrace {
		p.advance()
		return m, nil
	}
	for {
		if err := p.keyValue(m); err != nil {
			return nil, err
		}
		switch p.tok.Type {
		case TokenComma:
			p.advance()
		case TokenRBrace:
			p.advance()
			return m, nil
		default:
			return nil, errorf(p.tok.Pos, "expected ',' or '}' in inline table, got %s", p.tok)
		}
	}
}
