package model

import (
	"math"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// positionTolerance is half of the last digit KiCad writes.
const positionTolerance = 5e-5

type equivConfig struct {
	ignoreLayout bool
}

// EquivalenceOption adjusts Equivalent.
type EquivalenceOption func(*equivConfig)

// IgnoreLayout drops positions and sheet sizes from the comparison.
func IgnoreLayout() EquivalenceOption {
	return func(c *equivConfig) { c.ignoreLayout = true }
}

// electrical is the part of a document that equivalence looks at.
type electrical struct {
	Components map[string]*Component
	Nets       map[string][]string
	Globals    []string
	Sheets     map[string]*Sheet
}

// Equivalent reports whether a and b describe the same circuit once
// volatile identifiers are stripped.
func Equivalent(a, b *Document, opts ...EquivalenceOption) bool {
	return EquivalenceDiff(a, b, opts...) == ""
}

// EquivalenceDiff returns a human readable diff (-a +b) of the electrical
// content of two documents, or "" when they are equivalent.
func EquivalenceDiff(a, b *Document, opts ...EquivalenceOption) string {
	cfg := equivConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	ea, eb := strip(a, cfg), strip(b, cfg)

	// a side without a pin list (typical for hand written descriptions)
	// does not constrain the pins
	for ref, ca := range ea.Components {
		if cb, ok := eb.Components[ref]; ok && (len(ca.Pins) == 0 || len(cb.Pins) == 0) {
			ca.Pins, cb.Pins = nil, nil
		}
	}

	return cmp.Diff(ea, eb,
		cmpopts.EquateEmpty(),
		cmpopts.EquateApprox(0, positionTolerance),
	)
}

// DesignEquivalenceDiff compares two designs file by file.
func DesignEquivalenceDiff(a, b *Design, opts ...EquivalenceOption) string {
	if a.Root != b.Root {
		return cmp.Diff(a.Root, b.Root)
	}
	files := map[string]bool{}
	for f := range a.Documents {
		files[f] = true
	}
	for f := range b.Documents {
		files[f] = true
	}
	names := make([]string, 0, len(files))
	for f := range files {
		names = append(names, f)
	}
	sort.Strings(names)

	var out string
	for _, f := range names {
		da, db := a.Documents[f], b.Documents[f]
		if da == nil || db == nil {
			out += "document " + f + " exists on one side only\n"
			continue
		}
		if d := EquivalenceDiff(da, db, opts...); d != "" {
			out += "document " + f + ":\n" + d
		}
	}
	return out
}

func strip(d *Document, cfg equivConfig) electrical {
	c := d.Clone()
	c.Normalize()
	for _, comp := range c.Components {
		comp.UUID = ""
		if cfg.ignoreLayout {
			comp.Position = nil
		} else if comp.Position != nil {
			comp.Position.Rot = normalizeDegrees(comp.Position.Rot)
		}
		for i := range comp.Pins {
			// offsets come from the symbol library, not from the circuit
			comp.Pins[i].Offset = Point{}
			comp.Pins[i].Angle = 0
		}
	}
	for _, s := range c.Sheets {
		s.UUID = ""
		if cfg.ignoreLayout {
			s.Position = nil
			s.Size = nil
		}
		sort.Slice(s.Pins, func(i, j int) bool { return s.Pins[i].Name < s.Pins[j].Name })
	}
	return electrical{
		Components: c.Components,
		Nets:       c.Nets,
		Globals:    c.Globals,
		Sheets:     c.Sheets,
	}
}

func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// ComponentChanges names the fields that differ between two versions of a
// component: "symbol", "value", "footprint", "position", "rotation",
// "properties". Pins and UUIDs are not compared.
func ComponentChanges(a, b *Component) []string {
	var fields []string
	if a.Symbol != b.Symbol {
		fields = append(fields, "symbol")
	}
	if a.Value != b.Value {
		fields = append(fields, "value")
	}
	if a.Footprint != b.Footprint {
		fields = append(fields, "footprint")
	}
	switch {
	case (a.Position == nil) != (b.Position == nil):
		fields = append(fields, "position")
	case a.Position != nil:
		if math.Abs(a.Position.X-b.Position.X) > positionTolerance || math.Abs(a.Position.Y-b.Position.Y) > positionTolerance {
			fields = append(fields, "position")
		}
		if math.Abs(normalizeDegrees(a.Position.Rot)-normalizeDegrees(b.Position.Rot)) > positionTolerance {
			fields = append(fields, "rotation")
		}
	}
	if !cmp.Equal(a.Properties, b.Properties, cmpopts.EquateEmpty()) {
		fields = append(fields, "properties")
	}
	return fields
}

// SamePosition reports whether two positions match within KiCad's precision.
func SamePosition(a, b *Position) bool {
	if a == nil || b == nil {
		return a == b
	}
	return math.Abs(a.X-b.X) <= positionTolerance &&
		math.Abs(a.Y-b.Y) <= positionTolerance &&
		math.Abs(normalizeDegrees(a.Rot)-normalizeDegrees(b.Rot)) <= positionTolerance
}
