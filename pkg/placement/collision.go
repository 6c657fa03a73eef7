package placement

import (
	"math"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
)

// Collides reports whether two axis-aligned boxes overlap with positive
// area: their intervals overlap on both axes. Touching edges do not collide.
func Collides(a, b sexp.BoundingBox) bool {
	return a.Overlaps(b)
}

// Overlap names two units whose boxes collide.
type Overlap struct {
	A, B string
}

// FindOverlaps returns every colliding pair, in unit order.
func FindOverlaps(units []*Unit) []Overlap {
	var out []Overlap
	for i := 0; i < len(units); i++ {
		for j := i + 1; j < len(units); j++ {
			if Collides(units[i].Box(), units[j].Box()) {
				out = append(out, Overlap{A: units[i].ID, B: units[j].ID})
			}
		}
	}
	return out
}

// OrientedBox is a rectangle rotated about its center.
type OrientedBox struct {
	Center sexp.Position
	HalfW  float64
	HalfH  float64
	Angle  float64 // degrees, counter-clockwise
}

// NewOrientedBox rotates local (relative to origin) by angle around origin.
func NewOrientedBox(local sexp.BoundingBox, origin sexp.Position, angle float64) OrientedBox {
	c := local.Center().Rotate(angle)
	return OrientedBox{
		Center: origin.Add(c),
		HalfW:  local.Width() / 2,
		HalfH:  local.Height() / 2,
		Angle:  angle,
	}
}

// Corners returns the four corners in order.
func (o OrientedBox) Corners() [4]sexp.Position {
	local := [4]sexp.Position{
		{X: -o.HalfW, Y: -o.HalfH},
		{X: o.HalfW, Y: -o.HalfH},
		{X: o.HalfW, Y: o.HalfH},
		{X: -o.HalfW, Y: o.HalfH},
	}
	var out [4]sexp.Position
	for i, p := range local {
		out[i] = o.Center.Add(p.Rotate(o.Angle))
	}
	return out
}

// Bounds returns the axis-aligned box enclosing o.
func (o OrientedBox) Bounds() sexp.BoundingBox {
	bb := sexp.NewBoundingBox()
	for _, p := range o.Corners() {
		bb.Expand(p)
	}
	return bb
}

// Overlaps runs the separating axis test. Boxes that only touch do not
// overlap.
func (o OrientedBox) Overlaps(other OrientedBox) bool {
	a, b := o.Corners(), other.Corners()
	for _, axis := range [4]sexp.Position{
		edgeNormal(a[0], a[1]), edgeNormal(a[1], a[2]),
		edgeNormal(b[0], b[1]), edgeNormal(b[1], b[2]),
	} {
		minA, maxA := project(a, axis)
		minB, maxB := project(b, axis)
		if maxA <= minB+1e-9 || maxB <= minA+1e-9 {
			return false
		}
	}
	return true
}

func edgeNormal(p, q sexp.Position) sexp.Position {
	d := q.Sub(p)
	n := math.Hypot(d.X, d.Y)
	if n == 0 {
		return sexp.Position{X: 1}
	}
	return sexp.Position{X: -d.Y / n, Y: d.X / n}
}

func project(pts [4]sexp.Position, axis sexp.Position) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		v := p.X*axis.X + p.Y*axis.Y
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
