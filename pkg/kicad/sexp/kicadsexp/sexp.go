// Package kicadsexp provides a lossless S-expression codec for KiCad files.
//
// Every parsed node remembers the whitespace that preceded it, so a tree that
// is formatted without modification reproduces its input byte for byte.
// Nodes created or edited through this package are re-emitted using the
// layout KiCad 8 writes itself.
package kicadsexp

import (
	"strings"
)

// Sexp represents an S-expression node.
// It can be either a leaf (atom) or a list.
type Sexp interface {
	// IsLeaf returns true if this is an atom (not a list)
	IsLeaf() bool

	// LeafCount returns the number of elements in a list (1 for atoms)
	LeafCount() int

	// Head returns the first element of a list (the atom itself for atoms)
	Head() Sexp

	// String returns the compact single-line representation
	String() string

	leading() string
	isFresh() bool
	clone(fresh bool) Sexp
}

// Symbol represents an atom: a bare symbol, a number or a quoted string.
type Symbol struct {
	pre    string
	raw    string
	value  string
	quoted bool
	fresh  bool
}

func (s *Symbol) IsLeaf() bool   { return true }
func (s *Symbol) LeafCount() int { return 1 }
func (s *Symbol) Head() Sexp     { return s }
func (s *Symbol) String() string { return s.raw }

func (s *Symbol) leading() string { return s.pre }
func (s *Symbol) isFresh() bool   { return s.fresh }

func (s *Symbol) clone(fresh bool) Sexp {
	c := *s
	if fresh {
		c.pre = ""
		c.fresh = true
	}
	return &c
}

// Value returns the decoded atom text. Quoted strings are unescaped.
func (s *Symbol) Value() string { return s.value }

// Raw returns the atom exactly as it appears in the file.
func (s *Symbol) Raw() string { return s.raw }

// Quoted reports whether the atom is a quoted string.
func (s *Symbol) Quoted() bool { return s.quoted }

// Set replaces the atom's value, keeping its quoting style and the
// whitespace before it.
func (s *Symbol) Set(value string) {
	if s.value == value {
		return
	}
	s.value = value
	if s.quoted {
		s.raw = quote(value)
	} else {
		s.raw = value
	}
}

// SetRaw replaces the token text verbatim. Used for numbers, whose textual
// form is produced by FormatNumber.
func (s *Symbol) SetRaw(raw string) {
	if s.raw == raw {
		return
	}
	s.raw = raw
	s.value = raw
	s.quoted = false
}

// List represents a parenthesized list of S-expressions.
type List struct {
	pre      string
	post     string
	elements []Sexp
	line     int
	fresh    bool
	reflow   bool
}

func (l *List) IsLeaf() bool { return false }

func (l *List) LeafCount() int {
	return len(l.elements)
}

func (l *List) Head() Sexp {
	if len(l.elements) == 0 {
		return nil
	}
	return l.elements[0]
}

func (l *List) String() string {
	var b strings.Builder
	l.compact(&b)
	return b.String()
}

func (l *List) compact(b *strings.Builder) {
	b.WriteByte('(')
	for i, elem := range l.elements {
		if i > 0 {
			b.WriteByte(' ')
		}
		if sub, ok := elem.(*List); ok {
			sub.compact(b)
			continue
		}
		b.WriteString(elem.String())
	}
	b.WriteByte(')')
}

func (l *List) leading() string { return l.pre }
func (l *List) isFresh() bool   { return l.fresh }

func (l *List) clone(fresh bool) Sexp {
	c := &List{
		pre:      l.pre,
		post:     l.post,
		line:     l.line,
		fresh:    l.fresh || fresh,
		reflow:   l.reflow,
		elements: make([]Sexp, len(l.elements)),
	}
	if fresh {
		c.pre, c.post = "", ""
	}
	for i, e := range l.elements {
		c.elements[i] = e.clone(fresh)
	}
	return c
}

// Name returns the value of the leading atom, e.g. "symbol" for (symbol ...).
func (l *List) Name() string {
	if len(l.elements) == 0 {
		return ""
	}
	if sym, ok := l.elements[0].(*Symbol); ok {
		return sym.value
	}
	return ""
}

// Line returns the 1-based line of the opening paren, or 0 for built nodes.
func (l *List) Line() int { return l.line }

// Len returns the number of elements.
func (l *List) Len() int { return len(l.elements) }

// Get returns the element at the given index
func (l *List) Get(index int) Sexp {
	if index < 0 || index >= len(l.elements) {
		return nil
	}
	return l.elements[index]
}

// Items returns the list elements. The slice must not be modified.
func (l *List) Items() []Sexp { return l.elements }

// Atom returns the atom at index, or nil if it is missing or a list.
func (l *List) Atom(index int) *Symbol {
	sym, _ := l.Get(index).(*Symbol)
	return sym
}

// Find returns the first child list whose name matches.
func (l *List) Find(name string) *List {
	for _, e := range l.elements {
		if sub, ok := e.(*List); ok && sub.Name() == name {
			return sub
		}
	}
	return nil
}

// FindAll returns every child list whose name matches.
func (l *List) FindAll(name string) []*List {
	var out []*List
	for _, e := range l.elements {
		if sub, ok := e.(*List); ok && sub.Name() == name {
			out = append(out, sub)
		}
	}
	return out
}

// Lists returns the child lists in order.
func (l *List) Lists() []*List {
	var out []*List
	for _, e := range l.elements {
		if sub, ok := e.(*List); ok {
			out = append(out, sub)
		}
	}
	return out
}

// Index returns the position of child in l, or -1.
func (l *List) Index(child Sexp) int {
	for i, e := range l.elements {
		if e == child {
			return i
		}
	}
	return -1
}

// Append adds nodes at the end of the list.
func (l *List) Append(nodes ...Sexp) {
	for _, n := range nodes {
		if _, ok := n.(*List); ok && !l.hasListChild() {
			l.reflow = true
		}
		l.elements = append(l.elements, n)
	}
}

// InsertAfter inserts node right after the given child. If child is not an
// element of l, node is appended.
func (l *List) InsertAfter(child, node Sexp) {
	i := l.Index(child)
	if i < 0 {
		l.Append(node)
		return
	}
	if _, ok := node.(*List); ok && !l.hasListChild() {
		l.reflow = true
	}
	l.elements = append(l.elements, nil)
	copy(l.elements[i+2:], l.elements[i+1:])
	l.elements[i+1] = node
}

// Remove deletes child from the list. It reports whether child was found.
func (l *List) Remove(child Sexp) bool {
	i := l.Index(child)
	if i < 0 {
		return false
	}
	l.elements = append(l.elements[:i], l.elements[i+1:]...)
	return true
}

// Replace swaps old for node, keeping old's position and leading whitespace.
func (l *List) Replace(old, node Sexp) bool {
	i := l.Index(old)
	if i < 0 {
		return false
	}
	switch n := node.(type) {
	case *List:
		if n.fresh && !old.isFresh() {
			n.pre = old.leading()
			n.fresh = false
			n.reflow = true
		}
	case *Symbol:
		if n.fresh && !old.isFresh() {
			n.pre = old.leading()
			n.fresh = false
		}
	}
	l.elements[i] = node
	return true
}

func (l *List) hasListChild() bool {
	for _, e := range l.elements {
		if _, ok := e.(*List); ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that keeps the original whitespace.
func (l *List) Clone() *List {
	return l.clone(false).(*List)
}

// CloneFresh returns a deep copy whose whitespace is recomputed on output,
// suitable for moving a subtree to a different nesting depth.
func (l *List) CloneFresh() *List {
	return l.clone(true).(*List)
}

// Tree is a parsed file: its top-level expressions plus trailing whitespace.
type Tree struct {
	Nodes    []Sexp
	trailing string
}

// NewTree creates a tree holding a single root list, terminated by a newline.
func NewTree(root *List) *Tree {
	return &Tree{Nodes: []Sexp{root}, trailing: "\n"}
}

// Root returns the first top-level list.
func (t *Tree) Root() *List {
	for _, n := range t.Nodes {
		if l, ok := n.(*List); ok {
			return l
		}
	}
	return nil
}
