package kicadsexp

import (
	"bytes"
	"strings"
)

// Format renders the tree. Parsed nodes keep their original whitespace, so
// an unmodified tree formats to exactly the bytes it was parsed from. Built
// nodes follow the KiCad 8 layout: tab indentation, one child list per line,
// all-atom lists inline, runs of xy points on one line.
func Format(t *Tree) []byte {
	var b bytes.Buffer
	for i, n := range t.Nodes {
		if n.isFresh() {
			if i > 0 {
				b.WriteByte('\n')
			}
		} else {
			b.WriteString(n.leading())
		}
		writeNode(&b, n, 0)
	}
	b.WriteString(t.trailing)
	return b.Bytes()
}

// FormatString is Format returning a string.
func FormatString(t *Tree) string {
	return string(Format(t))
}

// writeNode writes n without its leading whitespace; depth is the nesting
// level of n itself.
func writeNode(b *bytes.Buffer, n Sexp, depth int) {
	list, ok := n.(*List)
	if !ok {
		b.WriteString(n.String())
		return
	}

	b.WriteByte('(')
	for i, child := range list.elements {
		b.WriteString(list.gapBefore(i, depth))
		writeNode(b, child, depth+1)
	}
	b.WriteString(list.closingGap(depth))
	b.WriteByte(')')
}

func (l *List) gapBefore(i, depth int) string {
	child := l.elements[i]
	if !child.isFresh() {
		return child.leading()
	}
	if i == 0 {
		return ""
	}

	if sub, ok := child.(*List); ok {
		if prev, ok := l.elements[i-1].(*List); ok && sub.Name() == "xy" && prev.Name() == "xy" {
			return " "
		}
		return "\n" + indent(depth+1)
	}

	for _, prev := range l.elements[1:i] {
		if _, ok := prev.(*List); ok {
			return "\n" + indent(depth+1)
		}
	}
	return " "
}

func (l *List) closingGap(depth int) string {
	if !l.fresh && !l.reflow {
		return l.post
	}
	if l.hasListChild() {
		return "\n" + indent(depth)
	}
	return ""
}

func indent(depth int) string {
	return strings.Repeat("\t", depth)
}
