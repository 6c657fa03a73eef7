package kicadsexp

import (
	"fmt"
	"io"
	"os"
)

// Parser builds a lossless tree from a token stream. It keeps an explicit
// stack of open lists, so nesting depth is limited only by memory.
type Parser struct {
	lexer *Lexer
	file  string
}

// NewParser creates a new parser over src.
func NewParser(filename, src string) (*Parser, error) {
	lex, err := NewLexer(filename, src)
	if err != nil {
		return nil, err
	}
	return &Parser{lexer: lex, file: filename}, nil
}

// ParseAll parses all top-level S-expressions from the input
func (p *Parser) ParseAll() (*Tree, error) {
	tree := &Tree{}
	var stack []*List
	pending := ""

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			if gerr, ok := err.(*GrammarError); ok && gerr.File == "" {
				gerr.File = p.file
			}
			return nil, err
		}

		switch tok.Type {
		case TokenWhitespace:
			pending += tok.Value

		case TokenLeftParen:
			list := &List{pre: pending, line: tok.Line}
			pending = ""
			if len(stack) == 0 {
				tree.Nodes = append(tree.Nodes, list)
			} else {
				top := stack[len(stack)-1]
				top.elements = append(top.elements, list)
			}
			stack = append(stack, list)

		case TokenRightParen:
			if len(stack) == 0 {
				return nil, p.errorf(tok.Line, "unexpected ')'")
			}
			top := stack[len(stack)-1]
			top.post = pending
			pending = ""
			stack = stack[:len(stack)-1]

		case TokenSymbol, TokenString:
			if len(stack) == 0 {
				return nil, p.errorf(tok.Line, "atom %q outside of a list", tok.Value)
			}
			sym := &Symbol{pre: pending, raw: tok.Value, value: tok.Value}
			if tok.Type == TokenString {
				sym.quoted = true
				sym.value = unquote(tok.Value)
			}
			pending = ""
			top := stack[len(stack)-1]
			top.elements = append(top.elements, sym)

		case TokenEOF:
			if len(stack) > 0 {
				return nil, p.errorf(stack[len(stack)-1].line, "unterminated list")
			}
			if len(tree.Nodes) == 0 {
				return nil, p.errorf(1, "empty input")
			}
			tree.trailing = pending
			return tree, nil
		}
	}
}

func (p *Parser) errorf(line int, format string, args ...interface{}) error {
	return &GrammarError{File: p.file, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// Parse reads the whole input and parses it into a tree.
func Parse(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseString(string(data))
}

// ParseString parses S-expressions from a string
func ParseString(s string) (*Tree, error) {
	return parseNamed("", s)
}

// ParseFile reads and parses the named file. Grammar errors carry the file
// name.
func ParseFile(filename string) (*Tree, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return parseNamed(filename, string(data))
}

// ParseBytes parses data, using name in error positions.
func ParseBytes(name string, data []byte) (*Tree, error) {
	return parseNamed(name, string(data))
}

func parseNamed(name, s string) (*Tree, error) {
	p, err := NewParser(name, s)
	if err != nil {
		return nil, err
	}
	return p.ParseAll()
}
