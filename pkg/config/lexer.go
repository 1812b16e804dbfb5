// Package config implements the boot configuration document model and
// its JSON, JSONC and YAML readers.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenLBrace   TokenType = iota // {
	TokenRBrace                    // }
	TokenLBracket                  // [
	TokenRBracket                  // ]
	TokenColon                     // :
	TokenComma                     // ,
	TokenString                    // "quoted string"
	TokenNumber                    // -12.5e3
	TokenTrue
	TokenFalse
	TokenNull
	TokenEOF
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenColon:
		return "':'"
	case TokenComma:
		return "','"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenTrue:
		return "true"
	case TokenFalse:
		return "false"
	case TokenNull:
		return "null"
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "error"
	default:
		return "unknown"
	}
}

// Token is a single lexer token.
type Token struct {
	Type   TokenType
	Value  string
	Offset int
	Line   int
	Column int
}

func (t Token) String() string {
	if t.Type == TokenString || t.Type == TokenNumber || t.Type == TokenError {
		return fmt.Sprintf("%s(%q)", t.Type, t.Value)
	}
	return t.Type.String()
}

// Lexer tokenizes JSON text. Comments are not recognized here; Parse
// strips them beforehand.
type Lexer struct {
	input  string
	pos    int
	line   int
	column int
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		line:   1,
		column: 1,
	}
}

// Offset returns the byte offset of the next unread character.
func (l *Lexer) Offset() int {
	return l.pos
}

// Next returns the next token, advancing the position.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Offset: l.pos, Line: l.line, Column: l.column}
	}

	ch := l.input[l.pos]
	off, line, col := l.pos, l.line, l.column

	single := func(tt TokenType) Token {
		l.advance()
		return Token{Type: tt, Value: string(ch), Offset: off, Line: line, Column: col}
	}

	switch ch {
	case '{':
		return single(TokenLBrace)
	case '}':
		return single(TokenRBrace)
	case '[':
		return single(TokenLBracket)
	case ']':
		return single(TokenRBracket)
	case ':':
		return single(TokenColon)
	case ',':
		return single(TokenComma)
	case '"':
		return l.readString(off, line, col)
	}

	if ch == '-' || (ch >= '0' && ch <= '9') {
		return l.readNumber(off, line, col)
	}
	if isLetter(ch) {
		return l.readKeyword(off, line, col)
	}

	l.advance()
	return Token{
		Type:   TokenError,
		Value:  fmt.Sprintf("unexpected character: %q", ch),
		Offset: off,
		Line:   line,
		Column: col,
	}
}

// Peek returns the next token without advancing.
func (l *Lexer) Peek() Token {
	savedPos := l.pos
	savedLine := l.line
	savedCol := l.column
	tok := l.Next()
	l.pos = savedPos
	l.line = savedLine
	l.column = savedCol
	return tok
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) readString(off, line, col int) Token {
	l.advance() // opening quote
	var b strings.Builder
	errTok := func(msg string) Token {
		return Token{Type: TokenError, Value: msg, Offset: off, Line: line, Column: col}
	}
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '"':
			l.advance()
			return Token{Type: TokenString, Value: b.String(), Offset: off, Line: line, Column: col}
		case ch == '\\':
			l.advance()
			if l.pos >= len(l.input) {
				return errTok("unterminated string")
			}
			esc := l.input[l.pos]
			l.advance()
			switch esc {
			case '"', '\\', '/':
				b.WriteByte(esc)
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u':
				r, ok := l.readHex4()
				if !ok {
					return errTok("invalid \\u escape")
				}
				if utf16.IsSurrogate(r) {
					// A high surrogate must be followed by \uDC00-\uDFFF.
					r2 := utf8.RuneError
					if strings.HasPrefix(l.input[l.pos:], "\\u") {
						l.advance()
						l.advance()
						if lo, ok := l.readHex4(); ok {
							r2 = lo
						}
					}
					r = utf16.DecodeRune(r, r2)
				}
				b.WriteRune(r)
			default:
				return errTok(fmt.Sprintf("invalid escape \\%c", esc))
			}
		case ch < 0x20:
			return errTok("control character in string")
		default:
			b.WriteByte(ch)
			l.advance()
		}
	}
	return errTok("unterminated string")
}

func (l *Lexer) readHex4() (rune, bool) {
	if l.pos+4 > len(l.input) {
		return 0, false
	}
	var r rune
	for i := 0; i < 4; i++ {
		c := l.input[l.pos]
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, false
		}
		r = r<<4 | rune(v)
		l.advance()
	}
	return r, true
}

// readNumber accepts the JSON number grammar:
// -?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?
func (l *Lexer) readNumber(off, line, col int) Token {
	start := l.pos
	bad := func() Token {
		return Token{Type: TokenError, Value: "malformed number " + strconv.Quote(l.input[start:l.pos]),
			Offset: off, Line: line, Column: col}
	}
	if l.peekByte() == '-' {
		l.advance()
	}
	switch c := l.peekByte(); {
	case c == '0':
		l.advance()
	case c >= '1' && c <= '9':
		l.digits()
	default:
		return bad()
	}
	if l.peekByte() == '.' {
		l.advance()
		if !isDigit(l.peekByte()) {
			return bad()
		}
		l.digits()
	}
	if c := l.peekByte(); c == 'e' || c == 'E' {
		l.advance()
		if c := l.peekByte(); c == '+' || c == '-' {
			l.advance()
		}
		if !isDigit(l.peekByte()) {
			return bad()
		}
		l.digits()
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Offset: off, Line: line, Column: col}
}

func (l *Lexer) readKeyword(off, line, col int) Token {
	start := l.pos
	for l.pos < len(l.input) && isLetter(l.input[l.pos]) {
		l.advance()
	}
	word := l.input[start:l.pos]
	tok := Token{Value: word, Offset: off, Line: line, Column: col}
	switch word {
	case "true":
		tok.Type = TokenTrue
	case "false":
		tok.Type = TokenFalse
	case "null":
		tok.Type = TokenNull
	default:
		tok.Type = TokenError
		tok.Value = "unexpected word " + strconv.Quote(word)
	}
	return tok
}

func (l *Lexer) digits() {
	for isDigit(l.peekByte()) {
		l.advance()
	}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
