// Package sexp provides shared S-expression navigation, extraction and
// in-place editing helpers for KiCad files, plus the geometry types the
// schematic and board packages share.
package sexp

import "math"

// GridMM is the KiCad schematic connection grid (50 mil).
const GridMM = 1.27

// Position represents a 2D coordinate in millimeters. Schematic Y grows
// downwards.
type Position struct {
	X float64
	Y float64
}

// Add returns p translated by q.
func (p Position) Add(q Position) Position {
	return Position{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y}
}

// Near reports whether p and q are the same point within eps.
func (p Position) Near(q Position, eps float64) bool {
	return math.Abs(p.X-q.X) <= eps && math.Abs(p.Y-q.Y) <= eps
}

// Rotate rotates p counter-clockwise by deg degrees around the origin.
func (p Position) Rotate(deg float64) Position {
	switch NormalizeAngle(deg) {
	case 0:
		return p
	case 90:
		return Position{X: -p.Y, Y: p.X}
	case 180:
		return Position{X: -p.X, Y: -p.Y}
	case 270:
		return Position{X: p.Y, Y: -p.X}
	}
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return Position{X: p.X*cos - p.Y*sin, Y: p.X*sin + p.Y*cos}
}

// Angle represents rotation in degrees
type Angle float64

// NormalizeAngle maps deg into [0, 360).
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// PositionAngle combines position with rotation
type PositionAngle struct {
	Position
	Angle Angle
}

// Size represents dimensions
type Size struct {
	Width  float64 // Width in mm
	Height float64 // Height in mm
}

// BoundingBox represents a rectangular boundary
type BoundingBox struct {
	Min Position // Minimum (top-left) corner
	Max Position // Maximum (bottom-right) corner
}

// Intersects checks if two bounding boxes intersect. Touching edges count.
func (bb BoundingBox) Intersects(other BoundingBox) bool {
	return bb.Min.X <= other.Max.X && bb.Max.X >= other.Min.X &&
		bb.Min.Y <= other.Max.Y && bb.Max.Y >= other.Min.Y
}

// Overlaps reports a positive-area intersection: the open intervals overlap
// on both axes.
func (bb BoundingBox) Overlaps(other BoundingBox) bool {
	return bb.Min.X < other.Max.X && bb.Max.X > other.Min.X &&
		bb.Min.Y < other.Max.Y && bb.Max.Y > other.Min.Y
}

// Contains checks if a position is within the bounding box
func (bb BoundingBox) Contains(pos Position) bool {
	return pos.X >= bb.Min.X && pos.X <= bb.Max.X &&
		pos.Y >= bb.Min.Y && pos.Y <= bb.Max.Y
}

// NewBoundingBox creates an empty bounding box
func NewBoundingBox() BoundingBox {
	return BoundingBox{
		Min: Position{X: 1e9, Y: 1e9},
		Max: Position{X: -1e9, Y: -1e9},
	}
}

// BoxAt returns the box with corner p and the given size.
func BoxAt(p Position, w, h float64) BoundingBox {
	return BoundingBox{Min: p, Max: Position{X: p.X + w, Y: p.Y + h}}
}

// IsEmpty checks if the bounding box is empty
func (bb BoundingBox) IsEmpty() bool {
	return bb.Min.X > bb.Max.X || bb.Min.Y > bb.Max.Y
}

// Expand expands the bounding box to include a position
func (bb *BoundingBox) Expand(pos Position) {
	if pos.X < bb.Min.X {
		bb.Min.X = pos.X
	}
	if pos.Y < bb.Min.Y {
		bb.Min.Y = pos.Y
	}
	if pos.X > bb.Max.X {
		bb.Max.X = pos.X
	}
	if pos.Y > bb.Max.Y {
		bb.Max.Y = pos.Y
	}
}

// ExpandBox expands to include another bounding box
func (bb *BoundingBox) ExpandBox(other BoundingBox) {
	if !other.IsEmpty() {
		bb.Expand(other.Min)
		bb.Expand(other.Max)
	}
}

// Translate returns the box moved by d.
func (bb BoundingBox) Translate(d Position) BoundingBox {
	return BoundingBox{Min: bb.Min.Add(d), Max: bb.Max.Add(d)}
}

// Inflate returns the box grown by m on every side.
func (bb BoundingBox) Inflate(m float64) BoundingBox {
	return BoundingBox{
		Min: Position{X: bb.Min.X - m, Y: bb.Min.Y - m},
		Max: Position{X: bb.Max.X + m, Y: bb.Max.Y + m},
	}
}

// Width returns the width of the bounding box
func (bb BoundingBox) Width() float64 {
	return bb.Max.X - bb.Min.X
}

// Height returns the height of the bounding box
func (bb BoundingBox) Height() float64 {
	return bb.Max.Y - bb.Min.Y
}

// Area returns Width*Height, or 0 for empty boxes.
func (bb BoundingBox) Area() float64 {
	if bb.IsEmpty() {
		return 0
	}
	return bb.Width() * bb.Height()
}

// Center returns the center point of the bounding box
func (bb BoundingBox) Center() Position {
	return Position{
		X: (bb.Min.X + bb.Max.X) / 2.0,
		Y: (bb.Min.Y + bb.Max.Y) / 2.0,
	}
}

// UUID represents a unique identifier (used in KiCad v6+ files)
type UUID string

// Effects represents text effects
type Effects struct {
	Font Font
	Hide bool
}

// Font represents font properties
type Font struct {
	Size   Size
	Bold   bool
	Italic bool
}

// Property represents a key-value property (used in symbols, footprints, etc.)
type Property struct {
	Key      string
	Value    string
	Position PositionAngle
	Effects  Effects
}
