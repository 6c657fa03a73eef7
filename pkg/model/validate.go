package model

import (
	"fmt"
	"sort"
)

// ConnectedNets returns the nets that list a pin of ref, sorted.
func (d *Document) ConnectedNets(ref string) []string {
	var nets []string
	for _, name := range d.NetNames() {
		for _, entry := range d.Nets[name] {
			m, err := ParseMember(entry)
			if err == nil && m.Ref == ref {
				nets = append(nets, name)
				break
			}
		}
	}
	return nets
}

// PinNets maps each "<ref>.<pin>" entry to the nets that list it.
func (d *Document) PinNets() map[string][]string {
	out := make(map[string][]string)
	for _, name := range d.NetNames() {
		for _, entry := range d.Nets[name] {
			out[entry] = append(out[entry], name)
		}
	}
	return out
}

// CheckSymmetry verifies that net membership reads the same from both ends:
// every member names an existing component pin or sheet pin, and every pin
// appears in at most one net, so the pin-to-net view and the net-to-pin view
// agree. Globals must name existing nets.
func (d *Document) CheckSymmetry() error {
	var problems []string

	pinNets := d.PinNets()
	entries := make([]string, 0, len(pinNets))
	for entry := range pinNets {
		entries = append(entries, entry)
	}
	sort.Strings(entries)

	for _, entry := range entries {
		nets := pinNets[entry]
		m, err := ParseMember(entry)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if c, ok := d.Components[m.Ref]; ok {
			if !c.HasPin(m.Pin) {
				problems = append(problems, fmt.Sprintf("%s: component %s has no pin %s", entry, m.Ref, m.Pin))
			}
		} else if s, ok := d.Sheets[m.Ref]; ok {
			if !s.HasPin(m.Pin) {
				problems = append(problems, fmt.Sprintf("%s: sheet %s has no pin %s", entry, m.Ref, m.Pin))
			}
		} else {
			problems = append(problems, fmt.Sprintf("%s: no component or sheet %s", entry, m.Ref))
		}
		if len(nets) > 1 {
			problems = append(problems, fmt.Sprintf("%s is listed in several nets: %v", entry, nets))
		}
	}

	// reverse direction: each net a component reports must list it
	for _, ref := range d.Refs() {
		for _, name := range d.ConnectedNets(ref) {
			found := false
			for _, entry := range d.Nets[name] {
				if m, err := ParseMember(entry); err == nil && m.Ref == ref {
					found = true
					break
				}
			}
			if !found {
				problems = append(problems, fmt.Sprintf("%s reports net %s which does not list it", ref, name))
			}
		}
	}

	for _, g := range d.Globals {
		if _, ok := d.Nets[g]; !ok {
			problems = append(problems, fmt.Sprintf("global %s is not a net", g))
		}
	}

	if len(problems) > 0 {
		return &SymmetryError{Problems: problems}
	}
	return nil
}

// Validate checks a declared document before it is used: non-empty
// references and symbols, and net symmetry.
func (d *Document) Validate() error {
	for _, ref := range d.Refs() {
		c := d.Components[ref]
		if ref == "" {
			return fmt.Errorf("component with empty reference")
		}
		if c == nil {
			return fmt.Errorf("component %s is null", ref)
		}
		if c.Symbol == "" {
			return fmt.Errorf("component %s has no symbol", ref)
		}
		if _, clash := d.Sheets[ref]; clash {
			return fmt.Errorf("%s names both a component and a sheet", ref)
		}
	}
	for _, name := range d.SheetNames() {
		if s := d.Sheets[name]; s == nil || s.File == "" {
			return fmt.Errorf("sheet %s has no file", name)
		}
	}
	return d.CheckSymmetry()
}

// Claim is one use of a reference designator. Units of one multi-unit part
// share a reference; only the same unit claimed twice conflicts.
type Claim struct {
	Ref      string
	Unit     int
	Location string // file:line or description path
}

// CheckReferences returns a *ReferenceConflictError for the first
// reference claimed twice, naming both locations.
func CheckReferences(claims []Claim) error {
	type key struct {
		ref  string
		unit int
	}
	seen := make(map[key]string, len(claims))
	for _, c := range claims {
		k := key{c.Ref, c.Unit}
		if first, ok := seen[k]; ok {
			return &ReferenceConflictError{Ref: c.Ref, First: first, Second: c.Location}
		}
		seen[k] = c.Location
	}
	return nil
}
