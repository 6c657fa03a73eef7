package kicadsexp

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWhitespace
	TokenLeftParen
	TokenRightParen
	TokenSymbol
	TokenString
)

// Token represents a lexical token. Value holds the raw source text.
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Whitespace is kept as a token so the parser can attach it to the
// following node. Rule names are capitalized for that reason: participle
// elides lower-case rules.
var kicadLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\[\s\S])*"`},
	{Name: "Atom", Pattern: `[^\s()"]+`},
})

var tokenTypes = func() map[lexer.TokenType]TokenType {
	symbols := kicadLexer.Symbols()
	return map[lexer.TokenType]TokenType{
		lexer.EOF:              TokenEOF,
		symbols["Whitespace"]: TokenWhitespace,
		symbols["LParen"]:     TokenLeftParen,
		symbols["RParen"]:     TokenRightParen,
		symbols["String"]:     TokenString,
		symbols["Atom"]:       TokenSymbol,
	}
}()

// Lexer tokenizes KiCad S-expression text.
type Lexer struct {
	src  string
	lex  lexer.Lexer
	done bool
}

// NewLexer creates a new lexer over src. filename is only used in positions.
func NewLexer(filename, src string) (*Lexer, error) {
	lex, err := kicadLexer.LexString(filename, src)
	if err != nil {
		return nil, err
	}
	return &Lexer{src: src, lex: lex}, nil
}

// NextToken reads the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	if l.done {
		return Token{Type: TokenEOF}, nil
	}
	tok, err := l.lex.Next()
	if err != nil {
		return Token{}, l.grammarError(err)
	}
	if tok.EOF() {
		l.done = true
		return Token{Type: TokenEOF, Line: tok.Pos.Line}, nil
	}
	return Token{Type: tokenTypes[tok.Type], Value: tok.Value, Line: tok.Pos.Line}, nil
}

func (l *Lexer) grammarError(err error) error {
	lerr, ok := err.(*lexer.Error)
	if !ok {
		return &GrammarError{Reason: err.Error()}
	}
	reason := "invalid input"
	if off := lerr.Pos.Offset; off >= 0 && off < len(l.src) && l.src[off] == '"' {
		reason = "unterminated string"
	}
	return &GrammarError{File: lerr.Pos.Filename, Line: lerr.Pos.Line, Reason: reason}
}

// unquote decodes a quoted string token.
func unquote(raw string) string {
	body := raw[1 : len(raw)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var result strings.Builder
	result.Grow(len(body))
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' || i == len(body)-1 {
			result.WriteByte(ch)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			result.WriteByte('\n')
		case 't':
			result.WriteByte('\t')
		case 'r':
			result.WriteByte('\r')
		default:
			// \\, \" and unknown escapes keep the escaped character
			result.WriteByte(body[i])
		}
	}
	return result.String()
}

// quote encodes s the way KiCad writes quoted strings.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
