package sexp

import (
	"math"
	"strconv"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// In-place editing helpers. Every setter leaves the node untouched when the
// new value equals the current one, so unchanged fields keep their original
// text (for example "25.40" is not rewritten as "25.4").

// numberEpsilon is below the 4-decimal precision KiCad writes.
const numberEpsilon = 1e-6

// SetFloat sets the numeric atom at index. Missing trailing atoms are
// appended. It reports whether the text changed.
func SetFloat(l *kicadsexp.List, index int, v float64) bool {
	if index >= l.Len() {
		for l.Len() < index {
			l.Append(kicadsexp.Num(0))
		}
		l.Append(kicadsexp.Num(v))
		return true
	}

	sym := l.Atom(index)
	if sym == nil {
		return false
	}
	if cur, err := strconv.ParseFloat(sym.Value(), 64); err == nil && math.Abs(cur-v) < numberEpsilon {
		return false
	}
	sym.SetRaw(kicadsexp.FormatNumber(v))
	return true
}

// SetString sets the atom at index, keeping its quoting. A missing atom is
// appended as a quoted string.
func SetString(l *kicadsexp.List, index int, v string) bool {
	if index >= l.Len() {
		l.Append(kicadsexp.Str(v))
		return true
	}
	sym := l.Atom(index)
	if sym == nil || sym.Value() == v {
		return false
	}
	sym.Set(v)
	return true
}

// SetPosition updates an (at X Y [rot]) node.
func SetPosition(at *kicadsexp.List, x, y, rot float64) bool {
	changed := SetFloat(at, 1, x)
	changed = SetFloat(at, 2, y) || changed
	if at.Len() > 3 || rot != 0 {
		changed = SetFloat(at, 3, rot) || changed
	}
	return changed
}

// TranslatePosition moves an (at ...) or (xy ...) node by d.
func TranslatePosition(node *kicadsexp.List, d Position) bool {
	pos, err := GetPositionXY(node)
	if err != nil {
		return false
	}
	changed := SetFloat(node, 1, pos.X+d.X)
	return SetFloat(node, 2, pos.Y+d.Y) || changed
}

// SetPropertyValue updates the named property of s. It reports false when
// the property does not exist.
func SetPropertyValue(s *kicadsexp.List, key, value string) (changed, found bool) {
	pn, ok := FindProperty(s, key)
	if !ok {
		return false, false
	}
	return SetString(pn, 2, value), true
}

// RemoveProperty deletes the named property from s.
func RemoveProperty(s *kicadsexp.List, key string) bool {
	pn, ok := FindProperty(s, key)
	if !ok {
		return false
	}
	return s.Remove(pn)
}

// LastNode returns the last child named one of names, or nil.
func LastNode(s *kicadsexp.List, names ...string) *kicadsexp.List {
	var last *kicadsexp.List
	for _, child := range s.Lists() {
		for _, name := range names {
			if child.Name() == name {
				last = child
			}
		}
	}
	return last
}

// InsertGrouped inserts node after the last sibling with the same name, or
// after the last sibling named one of fallback, or at the end. This keeps
// new elements next to their kin the way KiCad orders a file.
func InsertGrouped(parent *kicadsexp.List, node *kicadsexp.List, fallback ...string) {
	if last := LastNode(parent, node.Name()); last != nil {
		parent.InsertAfter(last, node)
		return
	}
	if last := LastNode(parent, fallback...); last != nil {
		parent.InsertAfter(last, node)
		return
	}
	parent.Append(node)
}
