// Package schematic provides a typed view over KiCad schematic files
// (.kicad_sch). Every element keeps a handle to its tree node, so edits go
// through the lossless tree and untouched text is written back verbatim.
package schematic

import (
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Re-export shared types from sexp package for convenience
type Position = sexp.Position
type Angle = sexp.Angle
type Size = sexp.Size
type UUID = sexp.UUID
type Effects = sexp.Effects
type Property = sexp.Property

// OwnerProperty is the hidden label field recording which component pin
// (or sheet pin) a generated label belongs to: "<uuid>:<pin>".
const OwnerProperty = "kisync_owner"

// Schematic represents a complete KiCad schematic file
type Schematic struct {
	Tree *kicadsexp.Tree
	Root *kicadsexp.List // the (kicad_sch ...) node
	File string          // path the schematic was read from, if any

	Version        int        // File format version
	Generator      string     // Generator info (e.g., "eeschema")
	GeneratorVer   string     // Generator version
	UUID           UUID       // Schematic UUID
	Paper          string     // Paper size (e.g., "A4")
	PaperSize      sexp.Size  // dimensions of "User" paper
	Portrait       bool       // paper turned to portrait
	TitleBlock     TitleBlock // Title block information
	LibSymbols     []*LibSymbol
	Symbols        []*Symbol
	Wires          []*Wire
	Junctions      []*Junction
	NoConnects     []*NoConnect
	Labels         []*Label // local, global and hierarchical
	Sheets         []*Sheet
	SheetInstances []SheetInstance
}

// TitleBlock contains schematic title block information
type TitleBlock struct {
	Title    string
	Date     string
	Revision string
	Company  string
}

// LibSymbol represents a library symbol definition, embedded in the
// schematic or loaded from a .kicad_sym file.
type LibSymbol struct {
	Node       *kicadsexp.List
	Name       string // Symbol name (e.g., "Device:R")
	Extends    string
	Power      bool
	Properties []Property
	Pins       []Pin
	Graphics   []SymGraphic
	UnitCount  int
}

// SymGraphic is a body drawing of a library symbol, in symbol
// coordinates (Y up).
type SymGraphic struct {
	Type   string     // rectangle, circle, arc, polyline, text
	Unit   int        // 0 for graphics common to every unit
	Points []Position // corners, vertices or arc start/mid/end
	Center Position
	Radius float64
}

// Pin represents a symbol pin
type Pin struct {
	Unit     int      // 0 for pins common to every unit
	Type     string   // Pin type (input, output, bidirectional, etc.)
	Style    string   // Pin style (line, inverted, clock, etc.)
	Position Position // connection point, symbol coordinates
	Angle    float64  // direction from the connection point into the body
	Length   float64
	Name     string
	Number   string
	Hide     bool
}

// Symbol represents a symbol instance placed on the schematic
type Symbol struct {
	Node       *kicadsexp.List
	LibID      string
	Position   Position
	Angle      float64
	Mirror     string // x, y or empty
	Unit       int
	UUID       UUID
	Properties []Property
	Pins       []PinRef
	Instances  []SymbolInstance
}

// PinRef represents a pin reference in a symbol instance
type PinRef struct {
	Number string
	UUID   UUID
}

// SymbolInstance is one entry of a symbol's (instances ...) block.
type SymbolInstance struct {
	Project   string
	Path      string
	Reference string
	Unit      int
}

// Wire represents a wire connection
type Wire struct {
	Node   *kicadsexp.List
	Points []Position
	UUID   UUID
}

// Junction represents a wire junction
type Junction struct {
	Node     *kicadsexp.List
	Position Position
	UUID     UUID
}

// NoConnect represents a no-connect marker
type NoConnect struct {
	Node     *kicadsexp.List
	Position Position
	UUID     UUID
}

// Label is a local, global or hierarchical label.
type Label struct {
	Node     *kicadsexp.List
	Kind     placement.LabelKind
	Text     string
	Shape    string // input, output, bidirectional, tri_state, passive
	Position Position
	Angle    float64
	UUID     UUID
	Owner    string // "<uuid>:<pin>" when generated for a pin, else empty
}

// OwnerParts splits Owner into the owner UUID and pin.
func (l *Label) OwnerParts() (UUID, string, bool) {
	i := strings.LastIndexByte(l.Owner, ':')
	if i <= 0 {
		return "", "", false
	}
	return UUID(l.Owner[:i]), l.Owner[i+1:], true
}

// Sheet represents a hierarchical sheet reference
type Sheet struct {
	Node       *kicadsexp.List
	Position   Position
	Size       Size
	UUID       UUID
	Name       string // Sheetname property
	FileName   string // Sheetfile property
	Pins       []SheetPin
	Properties []Property
	Instances  []SheetInstance // parent instance paths with page numbers
}

// SheetPin represents a hierarchical pin on a sheet
type SheetPin struct {
	Node     *kicadsexp.List
	Name     string
	Shape    string
	Position Position
	Angle    float64
	UUID     UUID
}

// SheetInstance represents a sheet instance path
type SheetInstance struct {
	Path string
	Page string
}

// Property returns the value of the named property.
func (s *Symbol) Property(key string) (string, bool) {
	for _, p := range s.Properties {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Reference returns the Reference property.
func (s *Symbol) Reference() string {
	ref, _ := s.Property("Reference")
	return ref
}

// Instance returns the instance entry for path.
func (s *Symbol) Instance(path string) (SymbolInstance, bool) {
	for _, inst := range s.Instances {
		if inst.Path == path {
			return inst, true
		}
	}
	return SymbolInstance{}, false
}

// ReferenceFor returns the designator the symbol carries in the sheet
// instance at path, falling back to the Reference property.
func (s *Symbol) ReferenceFor(path string) string {
	if inst, ok := s.Instance(path); ok && inst.Reference != "" {
		return inst.Reference
	}
	return s.Reference()
}

// IsPower reports whether the symbol is a power flag or rail symbol
// (reference starting with '#').
func (s *Symbol) IsPower() bool {
	return strings.HasPrefix(s.Reference(), "#")
}

// GetSymbol returns the symbol with the given reference in the sheet
// instance at path.
func (s *Schematic) GetSymbol(ref, path string) *Symbol {
	for _, sym := range s.Symbols {
		if sym.ReferenceFor(path) == ref {
			return sym
		}
	}
	return nil
}

// GetAllReferences returns the designators of the non-power symbols in the
// sheet instance at path, deduplicated and in natural order.
func (s *Schematic) GetAllReferences(path string) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, sym := range s.Symbols {
		ref := sym.ReferenceFor(path)
		if ref == "" || strings.HasPrefix(ref, "#") || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	model.SortRefs(refs)
	return refs
}

// SymbolByUUID returns the symbol with the given UUID.
func (s *Schematic) SymbolByUUID(id UUID) *Symbol {
	for _, sym := range s.Symbols {
		if sym.UUID == id {
			return sym
		}
	}
	return nil
}

// SheetByName returns the sheet with the given Sheetname.
func (s *Schematic) SheetByName(name string) *Sheet {
	for _, sh := range s.Sheets {
		if sh.Name == name {
			return sh
		}
	}
	return nil
}

// LibSymbol returns the embedded library symbol with the given name.
func (s *Schematic) LibSymbol(name string) *LibSymbol {
	for _, ls := range s.LibSymbols {
		if ls.Name == name {
			return ls
		}
	}
	return nil
}

// GetLabels returns all label names (local + global + hierarchical)
func (s *Schematic) GetLabels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, l := range s.Labels {
		if !seen[l.Text] {
			seen[l.Text] = true
			labels = append(labels, l.Text)
		}
	}
	return labels
}

// GetBoundingBox calculates the bounding box of the anchors and corners of
// every element in the schematic.
func (s *Schematic) GetBoundingBox() sexp.BoundingBox {
	bbox := sexp.NewBoundingBox()

	for _, wire := range s.Wires {
		for _, pt := range wire.Points {
			bbox.Expand(pt)
		}
	}
	for _, sym := range s.Symbols {
		bbox.Expand(sym.Position)
	}
	for _, label := range s.Labels {
		bbox.Expand(label.Position)
	}
	for _, sheet := range s.Sheets {
		bbox.Expand(sheet.Position)
		bbox.Expand(Position{
			X: sheet.Position.X + sheet.Size.Width,
			Y: sheet.Position.Y + sheet.Size.Height,
		})
	}
	for _, junc := range s.Junctions {
		bbox.Expand(junc.Position)
	}
	for _, nc := range s.NoConnects {
		bbox.Expand(nc.Position)
	}

	return bbox
}
