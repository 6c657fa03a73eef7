package schematic

import (
	"math"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Symbol geometry. Library symbols use Y up; the schematic uses Y down.
// A symbol instance mirrors in library space first, then rotates
// counter-clockwise, then flips Y.

// toSchematic maps a library point to an offset from the symbol anchor.
func toSchematic(p Position, angle float64, mirror string) Position {
	switch mirror {
	case "x":
		p.Y = -p.Y
	case "y":
		p.X = -p.X
	}
	p = p.Rotate(angle)
	return Position{X: p.X, Y: -p.Y}
}

// PinOffset returns the connection point of pin relative to the anchor of a
// symbol placed with the given rotation and mirror.
func PinOffset(pin Pin, angle float64, mirror string) Position {
	return toSchematic(pin.Position, angle, mirror)
}

// PinPoint returns the absolute connection point of pin on sym.
func PinPoint(sym *Symbol, pin Pin) Position {
	return sym.Position.Add(PinOffset(pin, sym.Angle, sym.Mirror))
}

// PinOrientation returns the direction pointing away from the body at the
// pin's connection point, which is where a label for the pin extends.
func PinOrientation(pin Pin, angle float64, mirror string) placement.Orientation {
	rad := pin.Angle * math.Pi / 180
	inward := Position{X: math.Cos(rad), Y: math.Sin(rad)}
	v := toSchematic(Position{X: -inward.X, Y: -inward.Y}, angle, mirror)
	return orientationOf(v)
}

// orientationOf maps a screen vector to the nearest cardinal direction.
func orientationOf(v Position) placement.Orientation {
	if math.Abs(v.X) >= math.Abs(v.Y) {
		if v.X >= 0 {
			return placement.Right
		}
		return placement.Left
	}
	if v.Y < 0 {
		return placement.Up
	}
	return placement.Down
}

// pinEnd returns the body side end of a pin in library coordinates.
func pinEnd(pin Pin) Position {
	rad := pin.Angle * math.Pi / 180
	return Position{
		X: pin.Position.X + pin.Length*math.Cos(rad),
		Y: pin.Position.Y + pin.Length*math.Sin(rad),
	}
}

// inUnit reports whether an element of the given unit is drawn for unit.
func inUnit(elementUnit, unit int) bool {
	return elementUnit == 0 || elementUnit == unit
}

// BodyBox returns the extent of one unit of lib (graphics and pins)
// relative to the symbol anchor.
func BodyBox(lib *LibSymbol, unit int, angle float64, mirror string) sexp.BoundingBox {
	box := sexp.NewBoundingBox()
	add := func(p Position) { box.Expand(toSchematic(p, angle, mirror)) }

	for _, g := range lib.Graphics {
		if !inUnit(g.Unit, unit) {
			continue
		}
		switch g.Type {
		case "circle":
			add(Position{X: g.Center.X - g.Radius, Y: g.Center.Y - g.Radius})
			add(Position{X: g.Center.X + g.Radius, Y: g.Center.Y + g.Radius})
		default:
			for _, p := range g.Points {
				add(p)
			}
		}
	}
	for _, pin := range lib.Pins {
		if !inUnit(pin.Unit, unit) {
			continue
		}
		add(pin.Position)
		add(pinEnd(pin))
	}

	if box.IsEmpty() {
		return sexp.BoundingBox{Min: Position{X: -sexp.GridMM, Y: -sexp.GridMM}, Max: Position{X: sexp.GridMM, Y: sexp.GridMM}}
	}
	return box
}

// textBox returns the box of centered text at p.
func textBox(text string, p Position, m placement.Metrics) sexp.BoundingBox {
	w := float64(len([]rune(text))) * m.CharWidth / 2
	h := m.TextHeight / 2
	return sexp.BoundingBox{Min: Position{X: p.X - w, Y: p.Y - h}, Max: Position{X: p.X + w, Y: p.Y + h}}
}

// SymbolBox returns the absolute extent of a placed symbol: its unit body
// and its visible fields.
func SymbolBox(sym *Symbol, lib *LibSymbol, m placement.Metrics) sexp.BoundingBox {
	box := BodyBox(lib, sym.Unit, sym.Angle, sym.Mirror).Translate(sym.Position)
	for _, p := range sym.Properties {
		if p.Effects.Hide || p.Value == "" || p.Key == OwnerProperty {
			continue
		}
		box.ExpandBox(textBox(p.Value, p.Position.Position, m))
	}
	return box
}

// SheetPinOrientation returns the side of the sheet the pin sits on, which
// is the direction its parent-side label extends.
func SheetPinOrientation(sh *Sheet, pin SheetPin) placement.Orientation {
	switch {
	case math.Abs(pin.Position.X-sh.Position.X) < 1e-6:
		return placement.Left
	case math.Abs(pin.Position.X-(sh.Position.X+sh.Size.Width)) < 1e-6:
		return placement.Right
	case math.Abs(pin.Position.Y-sh.Position.Y) < 1e-6:
		return placement.Up
	default:
		return placement.Down
	}
}
