package pcb

import "math"

// OutlineBox returns the extent of the Edge.Cuts graphics. It is empty
// when the board has no outline.
func (b *Board) OutlineBox() BoundingBox {
	bbox := NewBoundingBox()
	for _, e := range b.Outline {
		if e.Kind == "circle" && len(e.Points) == 2 {
			center := e.Points[0]
			d := e.Points[1].Sub(center)
			radius := math.Hypot(d.X, d.Y)
			bbox.Expand(Position{X: center.X - radius, Y: center.Y - radius})
			bbox.Expand(Position{X: center.X + radius, Y: center.Y + radius})
			continue
		}
		// arcs are approximated by their three points
		for _, p := range e.Points {
			bbox.Expand(p)
		}
	}
	return bbox
}

// GetBoundingBox calculates the bounding box of the board's copper and
// outline. Falls back to the footprints when there is no outline.
func (b *Board) GetBoundingBox() BoundingBox {
	bbox := b.OutlineBox()

	for _, track := range b.Tracks {
		bbox.Expand(track.Start)
		bbox.Expand(track.End)
	}
	for _, via := range b.Vias {
		radius := via.Size / 2.0
		bbox.Expand(Position{X: via.Position.X - radius, Y: via.Position.Y - radius})
		bbox.Expand(Position{X: via.Position.X + radius, Y: via.Position.Y + radius})
	}
	for i := range b.Footprints {
		bbox.ExpandBox(b.Footprints[i].GetBoundingBox())
	}
	return bbox
}

// GetBoundingBox calculates the bounding box of a footprint
// Includes all pads with their positions relative to footprint position
func (fp *Footprint) GetBoundingBox() BoundingBox {
	bbox := NewBoundingBox()

	for _, pad := range fp.Pads {
		absPos := fp.TransformPosition(pad.Position)

		// approximate as rectangle
		halfWidth := pad.Size.Width / 2.0
		halfHeight := pad.Size.Height / 2.0

		bbox.Expand(Position{X: absPos.X - halfWidth, Y: absPos.Y - halfHeight})
		bbox.Expand(Position{X: absPos.X + halfWidth, Y: absPos.Y + halfHeight})
	}

	if len(fp.Pads) == 0 {
		bbox.Expand(fp.Position.Position)
	}

	return bbox
}

// TransformPosition transforms a relative position by footprint position and rotation
func (fp *Footprint) TransformPosition(relPos PositionAngle) Position {
	// Board Y points down, so KiCad's counter-clockwise rotation is negated
	p := relPos.Position.Rotate(-float64(fp.Position.Angle))
	return p.Add(fp.Position.Position)
}

// PadAngle returns a pad's absolute rotation. KiCad stores pad angles
// with the footprint rotation already included.
func (fp *Footprint) PadAngle(pad Pad) float64 {
	return float64(pad.Position.Angle)
}
