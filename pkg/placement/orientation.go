// Package placement computes bounding boxes for movable schematic units and
// lays out the units that have no position yet.
package placement

import (
	"fmt"
	"math"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
)

// Orientation is the cardinal direction a pin points to, and with it the
// direction its label extends. Every switch over Orientation lists all four
// cases and panics otherwise.
type Orientation int

const (
	Right Orientation = iota
	Up
	Left
	Down
)

// OrientationFromAngle maps an angle in degrees (0 = right, 90 = up,
// counter-clockwise on screen) to the nearest cardinal direction.
func OrientationFromAngle(deg float64) Orientation {
	quarter := int(math.Round(sexp.NormalizeAngle(deg)/90)) % 4
	return Orientation(quarter)
}

// Angle returns the label angle KiCad uses for o.
func (o Orientation) Angle() float64 {
	switch o {
	case Right:
		return 0
	case Up:
		return 90
	case Left:
		return 180
	case Down:
		return 270
	}
	panic(fmt.Sprintf("placement: unknown orientation %d", int(o)))
}

// Vector returns the unit step along o in schematic coordinates (Y down).
func (o Orientation) Vector() sexp.Position {
	switch o {
	case Right:
		return sexp.Position{X: 1}
	case Up:
		return sexp.Position{Y: -1}
	case Left:
		return sexp.Position{X: -1}
	case Down:
		return sexp.Position{Y: 1}
	}
	panic(fmt.Sprintf("placement: unknown orientation %d", int(o)))
}

// Opposite returns the reverse direction.
func (o Orientation) Opposite() Orientation {
	switch o {
	case Right:
		return Left
	case Up:
		return Down
	case Left:
		return Right
	case Down:
		return Up
	}
	panic(fmt.Sprintf("placement: unknown orientation %d", int(o)))
}

func (o Orientation) String() string {
	switch o {
	case Right:
		return "right"
	case Up:
		return "up"
	case Left:
		return "left"
	case Down:
		return "down"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// LabelKind tells how far a label's net reaches.
type LabelKind int

const (
	// Local labels connect within one sheet.
	Local LabelKind = iota
	// Hierarchical labels connect to the matching pin of the parent sheet.
	Hierarchical
	// Global labels connect to every same-named global label in the design.
	Global
)

// Keyword returns the element name KiCad uses for the kind.
func (k LabelKind) Keyword() string {
	switch k {
	case Local:
		return "label"
	case Hierarchical:
		return "hierarchical_label"
	case Global:
		return "global_label"
	}
	panic(fmt.Sprintf("placement: unknown label kind %d", int(k)))
}

// LabelKindFromKeyword is the inverse of Keyword.
func LabelKindFromKeyword(name string) (LabelKind, bool) {
	switch name {
	case "label":
		return Local, true
	case "hierarchical_label":
		return Hierarchical, true
	case "global_label":
		return Global, true
	}
	return Local, false
}
