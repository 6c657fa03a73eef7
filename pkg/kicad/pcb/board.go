package pcb

import (
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// Board is a parsed KiCad PCB. Tree is the lossless document the fields
// were read from; edits go through it.
type Board struct {
	Tree       *kicadsexp.Tree
	File       string
	Version    int         // File format version
	Generator  string      // Generator info (e.g., "pcbnew")
	Thickness  float64     // Board thickness in mm
	Layers     []Layer     // Layer definitions
	Nets       []Net       // Electrical nets
	Footprints []Footprint // Component footprints
	Outline    []Edge      // Edge.Cuts graphics
	Tracks     []Track     // Segments and arcs
	Vias       []Via
}

// Footprint represents a component footprint
type Footprint struct {
	Library   string        // Library name
	Name      string        // Footprint name
	Layer     string        // Layer (F.Cu or B.Cu typically)
	Position  PositionAngle // Position and rotation
	Pads      []Pad
	Reference string // Reference designator (e.g., "R1")
	Value     string
}

// Pad represents a footprint pad
type Pad struct {
	Number   string        // Pad number/name
	Type     string        // Pad type (thru_hole, smd, etc.)
	Shape    string        // Pad shape (circle, rect, oval, etc.)
	Position PositionAngle // Relative to the footprint
	Size     Size
	Drill    float64  // Drill diameter (0 for SMD)
	Layers   LayerSet // Layers the pad appears on
	Net      *Net     // Connected net (if any)
}

// Edge is one Edge.Cuts element. Points depend on Kind: line and rect
// have start and end, arc has start, mid and end, circle has center and a
// point on the circle, poly has its vertices.
type Edge struct {
	Kind   string
	Points []Position
}

// Track represents a copper segment or arc
type Track struct {
	Kind   string // segment or arc
	Start  Position
	Mid    Position // arcs only
	End    Position
	Width  float64 // Track width in mm
	Layer  string
	Net    *Net
	Locked bool
}

// Via represents a via
type Via struct {
	Position Position
	Size     float64  // Via diameter
	Drill    float64  // Drill diameter
	Layers   LayerSet // Layer pair
	Net      *Net
	Locked   bool
}

// GetNet returns a net by name, or nil if not found
func (b *Board) GetNet(name string) *Net {
	for i := range b.Nets {
		if b.Nets[i].Name == name {
			return &b.Nets[i]
		}
	}
	return nil
}

// GetNetTracks returns all tracks connected to a specific net
func (b *Board) GetNetTracks(netName string) []Track {
	var tracks []Track
	for _, track := range b.Tracks {
		if track.Net != nil && track.Net.Name == netName {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// CopperLayers returns the names of the copper layers in stack order.
func (b *Board) CopperLayers() []string {
	var out []string
	for _, l := range b.Layers {
		if l.Copper() {
			out = append(out, l.Name)
		}
	}
	return out
}
