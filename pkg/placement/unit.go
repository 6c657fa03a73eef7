package placement

import (
	"fmt"
	"unicode/utf8"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
)

// Metrics holds the text dimensions used to size labels.
type Metrics struct {
	CharWidth  float64 // advance per character, mm
	TextHeight float64 // glyph height, mm
}

// DefaultMetrics matches KiCad's default 1.27 mm schematic font.
func DefaultMetrics() Metrics {
	return Metrics{CharWidth: 1.27, TextHeight: 1.27}
}

// Label is a net label anchored at a pin connection point.
type Label struct {
	Text        string
	Anchor      sexp.Position
	Orientation Orientation
	Kind        LabelKind
	Pin         string // owning pin number, or sheet pin name
}

// Length returns the rendered length of the label along its orientation,
// including the outline KiCad draws around global and hierarchical labels.
func (l Label) Length(m Metrics) float64 {
	length := float64(utf8.RuneCountInString(l.Text)) * m.CharWidth
	switch l.Kind {
	case Local:
		return length
	case Hierarchical:
		return length + m.TextHeight
	case Global:
		// arrow shape plus margins on both ends
		return length + 2*m.TextHeight
	}
	panic(fmt.Sprintf("placement: unknown label kind %d", int(l.Kind)))
}

// Box returns the area the label covers. It starts at the anchor and
// extends along the orientation only.
func (l Label) Box(m Metrics) sexp.BoundingBox {
	length := l.Length(m)
	h := m.TextHeight
	a := l.Anchor
	switch l.Orientation {
	case Right:
		return sexp.BoundingBox{Min: sexp.Position{X: a.X, Y: a.Y - h}, Max: sexp.Position{X: a.X + length, Y: a.Y + h}}
	case Left:
		return sexp.BoundingBox{Min: sexp.Position{X: a.X - length, Y: a.Y - h}, Max: sexp.Position{X: a.X, Y: a.Y + h}}
	case Up:
		return sexp.BoundingBox{Min: sexp.Position{X: a.X - h, Y: a.Y - length}, Max: sexp.Position{X: a.X + h, Y: a.Y}}
	case Down:
		return sexp.BoundingBox{Min: sexp.Position{X: a.X - h, Y: a.Y}, Max: sexp.Position{X: a.X + h, Y: a.Y + length}}
	}
	panic(fmt.Sprintf("placement: unknown orientation %d", int(l.Orientation)))
}

// UnitKind distinguishes components from sheet symbols.
type UnitKind int

const (
	ComponentKind UnitKind = iota
	SheetKind
)

// Unit is the atomic movable element: a component (or sheet symbol) with
// the labels it owns and the box enclosing both. Translate moves all three
// together; there is no way to move one without the others.
type Unit struct {
	ID     string
	Kind   UnitKind
	Origin sexp.Position    // symbol anchor (at x y)
	Body   sexp.BoundingBox // body extent relative to Origin
	Labels []Label          // absolute anchors
	Placed bool             // position is fixed

	box   sexp.BoundingBox
	order int
}

// NewComponentUnit builds the unit for a component whose body extent,
// relative to origin, is body.
func NewComponentUnit(id string, origin sexp.Position, body sexp.BoundingBox, labels []Label, m Metrics) *Unit {
	u := &Unit{ID: id, Kind: ComponentKind, Origin: origin, Body: body, Labels: labels}
	u.box = u.computeBox(m)
	return u
}

// NewSheetUnit builds the unit for a sheet symbol at pos with the given
// size. Sheet pin labels render outside the rectangle, so the box is the
// rectangle widened on both sides by the longest pin label.
func NewSheetUnit(id string, pos sexp.Position, size sexp.Size, pins []string, m Metrics) *Unit {
	longest := 0.0
	for _, name := range pins {
		l := Label{Text: name, Kind: Hierarchical}
		if n := l.Length(m); n > longest {
			longest = n
		}
	}
	body := sexp.BoundingBox{
		Min: sexp.Position{X: -longest, Y: 0},
		Max: sexp.Position{X: size.Width + longest, Y: size.Height},
	}
	u := &Unit{ID: id, Kind: SheetKind, Origin: pos, Body: body}
	u.box = u.computeBox(m)
	return u
}

func (u *Unit) computeBox(m Metrics) sexp.BoundingBox {
	box := u.Body.Translate(u.Origin)
	for _, l := range u.Labels {
		box.ExpandBox(l.Box(m))
	}
	return box
}

// Box returns the bounding box of the whole unit.
func (u *Unit) Box() sexp.BoundingBox { return u.box }

// Translate moves the unit, its labels and its box by d.
func (u *Unit) Translate(d sexp.Position) {
	u.Origin = u.Origin.Add(d)
	for i := range u.Labels {
		u.Labels[i].Anchor = u.Labels[i].Anchor.Add(d)
	}
	u.box = u.box.Translate(d)
}

// MoveTo translates the unit so that its origin lands on p.
func (u *Unit) MoveTo(p sexp.Position) {
	u.Translate(p.Sub(u.Origin))
}
