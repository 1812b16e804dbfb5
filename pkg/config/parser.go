package config

import (
	"fmt"

	"github.com/tidwall/jsonc"
)

// maxDepth bounds nesting so a hostile command line cannot exhaust the stack.
const maxDepth = 64

// SyntaxError describes where a document failed to parse.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parser builds a Node tree from a token stream.
type Parser struct {
	lex   *Lexer
	depth int
}

// NewParser creates a parser over input. The input must already be plain
// JSON; use Parse for JSONC.
func NewParser(input string) *Parser {
	return &Parser{lex: NewLexer(input)}
}

// Parse parses a complete document. Comments and trailing commas are
// accepted and ignored. Anything but whitespace after the top-level
// value is an error.
func Parse(data []byte) (*Node, error) {
	p := NewParser(string(jsonc.ToJSON(data)))
	n, err := p.ParseValue()
	if err != nil {
		return nil, err
	}
	if tok := p.lex.Next(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected %s after document", tok)
	}
	return n, nil
}

// ParsePrefix parses the first value in data and returns it together
// with the unparsed remainder. Boot command lines may carry further
// parameters after the document.
func ParsePrefix(data []byte) (*Node, []byte, error) {
	// jsonc.ToJSON keeps offsets and line breaks, so positions reported
	// here still match the caller's text.
	stripped := jsonc.ToJSON(data)
	p := NewParser(string(stripped))
	n, err := p.ParseValue()
	if err != nil {
		return nil, nil, err
	}
	return n, data[p.lex.Offset():], nil
}

// ParseValue parses one JSON value from the current position.
func (p *Parser) ParseValue() (*Node, error) {
	tok := p.lex.Next()
	return p.value(tok)
}

func (p *Parser) value(tok Token) (*Node, error) {
	pos := func(n *Node) *Node {
		n.Line, n.Column = tok.Line, tok.Column
		return n
	}
	switch tok.Type {
	case TokenLBrace:
		return p.object(tok)
	case TokenLBracket:
		return p.array(tok)
	case TokenString:
		return pos(String(tok.Value)), nil
	case TokenNumber:
		return pos(Number(tok.Value)), nil
	case TokenTrue:
		return pos(Bool(true)), nil
	case TokenFalse:
		return pos(Bool(false)), nil
	case TokenNull:
		return pos(Null()), nil
	case TokenError:
		return nil, p.errorf(tok, "%s", tok.Value)
	default:
		return nil, p.errorf(tok, "expected value, got %s", tok)
	}
}

func (p *Parser) object(open Token) (*Node, error) {
	if err := p.enter(open); err != nil {
		return nil, err
	}
	defer p.leave()

	n := &Node{Kind: KindObject, Line: open.Line, Column: open.Column}
	tok := p.lex.Next()
	if tok.Type == TokenRBrace {
		return n, nil
	}
	for {
		if tok.Type != TokenString {
			return nil, p.errorf(tok, "expected object key, got %s", tok)
		}
		name := tok.Value
		if colon := p.lex.Next(); colon.Type != TokenColon {
			return nil, p.errorf(colon, "expected ':' after key %q, got %s", name, colon)
		}
		v, err := p.ParseValue()
		if err != nil {
			return nil, err
		}
		n.Members = append(n.Members, Member{Name: name, Value: v})

		sep := p.lex.Next()
		switch sep.Type {
		case TokenComma:
			tok = p.lex.Next()
		case TokenRBrace:
			return n, nil
		default:
			return nil, p.errorf(sep, "expected ',' or '}' in object, got %s", sep)
		}
	}
}

func (p *Parser) array(open Token) (*Node, error) {
	if err := p.enter(open); err != nil {
		return nil, err
	}
	defer p.leave()

	n := &Node{Kind: KindArray, Line: open.Line, Column: open.Column}
	tok := p.lex.Next()
	if tok.Type == TokenRBracket {
		return n, nil
	}
	for {
		v, err := p.value(tok)
		if err != nil {
			return nil, err
		}
		n.Elems = append(n.Elems, v)

		sep := p.lex.Next()
		switch sep.Type {
		case TokenComma:
			tok = p.lex.Next()
		case TokenRBracket:
			return n, nil
		default:
			return nil, p.errorf(sep, "expected ',' or ']' in array, got %s", sep)
		}
	}
}

func (p *Parser) enter(tok Token) error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(tok, "nesting deeper than %d", maxDepth)
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Line: tok.Line, Column: tok.Column, Msg: fmt.Sprintf(format, args...)}
}
