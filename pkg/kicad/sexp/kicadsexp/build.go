package kicadsexp

import (
	"math"
	"strconv"
)

// NewList builds a list node named name. Its layout is computed when the
// tree is formatted.
func NewList(name string, items ...Sexp) *List {
	l := &List{fresh: true}
	if name != "" {
		l.elements = append(l.elements, Sym(name))
	}
	l.elements = append(l.elements, items...)
	return l
}

// Sym builds a bare symbol atom.
func Sym(s string) *Symbol {
	return &Symbol{raw: s, value: s, fresh: true}
}

// Str builds a quoted string atom.
func Str(s string) *Symbol {
	return &Symbol{raw: quote(s), value: s, quoted: true, fresh: true}
}

// Num builds a numeric atom in KiCad's shortest form.
func Num(f float64) *Symbol {
	return Sym(FormatNumber(f))
}

// Int builds an integer atom.
func Int(i int) *Symbol {
	return Sym(strconv.Itoa(i))
}

// Bool builds a yes/no atom.
func Bool(v bool) *Symbol {
	if v {
		return Sym("yes")
	}
	return Sym("no")
}

// FormatNumber renders f rounded to 4 decimals without trailing zeros.
// Negative zero is written as 0.
func FormatNumber(f float64) string {
	r := math.Round(f*1e4) / 1e4
	if r == 0 {
		return "0"
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Pair builds (name a b), e.g. (at 1 2) or (size 1.27 1.27).
func Pair(name string, a, b float64) *List {
	return NewList(name, Num(a), Num(b))
}

// At builds (at x y rot).
func At(x, y, rot float64) *List {
	return NewList("at", Num(x), Num(y), Num(rot))
}

// UUIDNode builds (uuid "id").
func UUIDNode(id string) *List {
	return NewList("uuid", Str(id))
}
