package schematic

import (
	"math"
	"sort"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// unitGap separates the units of a new multi-unit part.
const unitGap = 5.08

// PartLayout arranges the units of a new part side by side, left to right.
type PartLayout struct {
	Offsets []Position         // anchor of unit i+1 relative to the unit 1 anchor
	Boxes   []sexp.BoundingBox // body of unit i+1 relative to its own anchor
}

// LayoutPart computes the unit arrangement of lib rotated by angle.
func LayoutPart(lib *LibSymbol, angle float64) PartLayout {
	n := lib.UnitCount
	if n < 1 {
		n = 1
	}
	pl := PartLayout{Offsets: make([]Position, n), Boxes: make([]sexp.BoundingBox, n)}
	for i := 0; i < n; i++ {
		pl.Boxes[i] = BodyBox(lib, i+1, angle, "")
		if i == 0 {
			continue
		}
		prev := pl.Offsets[i-1].X + pl.Boxes[i-1].Max.X
		dx := prev - pl.Boxes[i].Min.X + unitGap
		pl.Offsets[i] = Position{X: math.Ceil(dx/sexp.GridMM-1e-9) * sexp.GridMM}
	}
	return pl
}

// UnitFor returns the lowest unit of lib drawing pin, or 0 when lib has no
// such pin.
func UnitFor(lib *LibSymbol, number string) int {
	best := 0
	for _, p := range lib.Pins {
		if p.Number != number {
			continue
		}
		u := p.Unit
		if u == 0 {
			u = 1
		}
		if best == 0 || u < best {
			best = u
		}
	}
	return best
}

// FindPin returns the definition of pin number as drawn in unit.
func FindPin(lib *LibSymbol, number string, unit int) (Pin, bool) {
	for _, p := range lib.Pins {
		if p.Number == number && inUnit(p.Unit, unit) {
			return p, true
		}
	}
	return Pin{}, false
}

// FieldOffsets returns where the Reference and Value fields of a new unit
// go relative to its anchor: centered above and below the body.
func FieldOffsets(body sexp.BoundingBox) (ref, value Position) {
	cx := math.Round((body.Min.X+body.Max.X)/2/sexp.GridMM) * sexp.GridMM
	return Position{X: cx, Y: body.Min.Y - DefaultFontSize}, Position{X: cx, Y: body.Max.Y + DefaultFontSize}
}

// NetLabel is the label a pin is given for its net.
type NetLabel struct {
	Text string
	Kind placement.LabelKind
}

// NewPartUnit returns the placement unit of a part that is not in the file
// yet, anchored at origin with its units laid out by LayoutPart. labels maps
// pin numbers to the label each pin will get.
func NewPartUnit(id string, origin Position, angle float64, ref, value string, lib *LibSymbol, labels map[string]NetLabel, m placement.Metrics) *placement.Unit {
	pl := LayoutPart(lib, angle)
	body := sexp.NewBoundingBox()
	for i, box := range pl.Boxes {
		body.ExpandBox(box.Translate(pl.Offsets[i]))
		refAt, valueAt := FieldOffsets(box)
		if i == 0 {
			body.ExpandBox(textBox(ref, refAt, m))
		}
		body.ExpandBox(textBox(value, valueAt.Add(pl.Offsets[i]), m))
	}

	var ls []placement.Label
	for number, nl := range labels {
		unit := UnitFor(lib, number)
		pin, ok := FindPin(lib, number, unit)
		if !ok {
			continue
		}
		ls = append(ls, placement.Label{
			Text:        nl.Text,
			Kind:        nl.Kind,
			Pin:         number,
			Orientation: PinOrientation(pin, angle, ""),
			Anchor:      origin.Add(pl.Offsets[unit-1]).Add(PinOffset(pin, angle, "")),
		})
	}
	sortLabels(ls)
	return placement.NewComponentUnit(id, origin, body, ls, m)
}

// ExistingUnit returns the fixed placement unit of a part already in the
// file: its symbols, visible fields and owned labels.
func ExistingUnit(id string, syms []*Symbol, lib *LibSymbol, owned []*Label, m placement.Metrics) *placement.Unit {
	origin := syms[0].Position
	body := sexp.NewBoundingBox()
	for _, s := range syms {
		if lib != nil {
			body.ExpandBox(SymbolBox(s, lib, m))
		} else {
			body.Expand(s.Position)
		}
	}
	var ls []placement.Label
	for _, l := range owned {
		_, pin, _ := l.OwnerParts()
		ls = append(ls, placement.Label{
			Text:        l.Text,
			Kind:        l.Kind,
			Pin:         pin,
			Orientation: placement.OrientationFromAngle(l.Angle),
			Anchor:      l.Position,
		})
	}
	sortLabels(ls)
	u := placement.NewComponentUnit(id, origin, body.Translate(Position{X: -origin.X, Y: -origin.Y}), ls, m)
	u.Placed = true
	return u
}

func sortLabels(ls []placement.Label) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].Pin < ls[j].Pin })
}

// sheet geometry
const (
	sheetPinPitch  = 2.54
	sheetMinWidth  = 25.4
	sheetMinHeight = 10.16
)

// SheetSize returns the size of a new sheet symbol with the given pins:
// tall enough for the longer pin column, wide enough for the pin names.
func SheetSize(s *model.Sheet, m placement.Metrics) Size {
	left, right := 0, 0
	longest := 0.0
	for _, p := range s.Pins {
		if SheetPinSide(p.Direction) == placement.Right {
			right++
		} else {
			left++
		}
		longest = math.Max(longest, float64(len([]rune(p.Name)))*m.CharWidth)
	}
	rows := left
	if right > rows {
		rows = right
	}
	h := math.Max(sheetMinHeight, float64(rows+1)*sheetPinPitch)
	w := math.Max(sheetMinWidth, 2*longest+2*sheetPinPitch)
	snap := func(v float64) float64 { return math.Ceil(v/sexp.GridMM-1e-9) * sexp.GridMM }
	return Size{Width: snap(w), Height: snap(h)}
}

// SheetPinSide returns the edge a new sheet pin goes on: outputs on the
// right, everything else on the left.
func SheetPinSide(direction string) placement.Orientation {
	switch direction {
	case "output", "power_out":
		return placement.Right
	}
	return placement.Left
}

// SheetPinOffset returns the position of the index-th pin on its side,
// relative to the sheet's top-left corner.
func SheetPinOffset(side placement.Orientation, index int, size Size) Position {
	y := float64(index+1) * sheetPinPitch
	switch side {
	case placement.Right:
		return Position{X: size.Width, Y: y}
	case placement.Left:
		return Position{X: 0, Y: y}
	case placement.Up:
		return Position{X: y, Y: 0}
	case placement.Down:
		return Position{X: y, Y: size.Height}
	}
	panic("schematic: unknown orientation " + side.String())
}

// SheetUnit returns the placement unit of a sheet symbol.
func SheetUnit(id string, pos Position, size Size, s *model.Sheet, m placement.Metrics, placed bool) *placement.Unit {
	names := make([]string, len(s.Pins))
	for i, p := range s.Pins {
		names[i] = p.Name
	}
	u := placement.NewSheetUnit(id, pos, size, names, m)
	u.Placed = placed
	return u
}
