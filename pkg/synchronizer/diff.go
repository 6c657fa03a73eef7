package synchronizer

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/OpenTraceLab/kisync/pkg/model"
)

// Side names where a change came from.
type Side int

const (
	// Description is the declared circuit.
	Description Side = iota
	// Baseline is the schematic on disk, including manual edits.
	Baseline
)

func (s Side) String() string {
	switch s {
	case Description:
		return "description"
	case Baseline:
		return "baseline"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Element is the kind of thing a change applies to.
type Element string

const (
	ComponentElement Element = "component"
	NetElement       Element = "net"
	SheetElement     Element = "sheet"
)

// Change is one difference between the description and the baseline.
type Change struct {
	Element Element
	Side    Side
	Ref     string   // component ref, net or sheet name
	OldRef  string   // previous ref of a rename
	Fields  []string // modified fields
}

func (c Change) String() string {
	switch {
	case c.OldRef != "":
		return fmt.Sprintf("%s %s -> %s (%s)", c.Element, c.OldRef, c.Ref, c.Side)
	case len(c.Fields) > 0:
		return fmt.Sprintf("%s %s %v (%s)", c.Element, c.Ref, c.Fields, c.Side)
	}
	return fmt.Sprintf("%s %s (%s)", c.Element, c.Ref, c.Side)
}

// Changeset lists the differences found for one file.
type Changeset struct {
	File     string
	Added    []Change
	Removed  []Change
	Modified []Change
	Renamed  []Change
}

// Empty reports whether the file needs no edits.
func (c Changeset) Empty() bool {
	return len(c.Added)+len(c.Removed)+len(c.Modified)+len(c.Renamed) == 0
}

// resolution is the merged document of one file with the records the
// later steps need.
type resolution struct {
	doc      *model.Document
	matched  map[string]string // resolved ref -> baseline ref
	changes  Changeset
	warnings []Warning
}

// resolve merges the declared document of file with its baseline
// projection. The description is authoritative for the component set,
// symbols, values, footprints and nets. The baseline is authoritative for
// positions, rotations, sheet geometry and the values of custom properties
// it already has. UUIDs come from the baseline.
func resolve(file string, declared, baseline *model.Document) resolution {
	r := resolution{
		doc:     declared.Clone(),
		matched: map[string]string{},
		changes: Changeset{File: file},
	}
	doc := r.doc

	if baseline == nil {
		for _, ref := range doc.Refs() {
			r.changes.Added = append(r.changes.Added, Change{Element: ComponentElement, Side: Description, Ref: ref})
		}
		for _, name := range doc.SheetNames() {
			r.changes.Added = append(r.changes.Added, Change{Element: SheetElement, Side: Description, Ref: name})
		}
		for _, name := range doc.NetNames() {
			r.changes.Added = append(r.changes.Added, Change{Element: NetElement, Side: Description, Ref: name})
		}
		return r
	}

	r.matchComponents(baseline)
	taken := map[string]bool{}
	for _, old := range r.matched {
		taken[old] = true
	}
	for _, ref := range baseline.Refs() {
		if !taken[ref] {
			r.changes.Removed = append(r.changes.Removed, Change{Element: ComponentElement, Side: Description, Ref: ref})
		}
	}

	for _, ref := range doc.Refs() {
		old, ok := r.matched[ref]
		if !ok {
			r.changes.Added = append(r.changes.Added, Change{Element: ComponentElement, Side: Description, Ref: ref})
			continue
		}
		r.mergeComponent(ref, doc.Components[ref], baseline.Components[old])
	}

	r.mergeSheets(baseline)
	r.diffNets(baseline)

	if doc.Metadata.Paper == "" {
		doc.Metadata.Paper = baseline.Metadata.Paper
	}
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = baseline.Metadata.Title
	}
	doc.Metadata.UUID = baseline.Metadata.UUID
	return r
}

// matchComponents pairs refs of the same name, then declared components
// carrying a UUID with the baseline component of that UUID. A UUID match
// under another ref is a rename made in the CAD tool; the declared ref is
// kept.
func (r *resolution) matchComponents(baseline *model.Document) {
	doc := r.doc
	for _, ref := range doc.Refs() {
		if _, ok := baseline.Components[ref]; ok {
			r.matched[ref] = ref
		}
	}
	for _, ref := range doc.Refs() {
		if _, ok := r.matched[ref]; ok {
			continue
		}
		old, ok := baseline.FindByUUID(doc.Components[ref].UUID)
		if !ok {
			continue
		}
		if _, declared := doc.Components[old]; declared {
			continue
		}
		r.matched[ref] = old
		r.changes.Renamed = append(r.changes.Renamed, Change{Element: ComponentElement, Side: Baseline, Ref: ref, OldRef: old})
		r.warnings = append(r.warnings, Warning{
			Kind:    RenameDetected,
			File:    r.changes.File,
			Ref:     ref,
			Message: fmt.Sprintf("renamed to %s in the schematic; the description reference is kept", old),
		})
	}
}

func (r *resolution) mergeComponent(ref string, c, base *model.Component) {
	file := r.changes.File
	if c.UUID == "" {
		c.UUID = base.UUID
	}
	if len(c.Pins) == 0 {
		c.Pins = base.Pins
	}

	var described []string
	if c.Symbol != base.Symbol {
		described = append(described, "symbol")
		r.warnings = append(r.warnings, conflictWarning(file, ref, "symbol", base.Symbol, c.Symbol, Description))
	}
	if c.Value != base.Value {
		described = append(described, "value")
		r.warnings = append(r.warnings, conflictWarning(file, ref, "value", base.Value, c.Value, Description))
	}
	if c.Footprint != base.Footprint {
		described = append(described, "footprint")
		r.warnings = append(r.warnings, conflictWarning(file, ref, "footprint", base.Footprint, c.Footprint, Description))
	}

	var kept []string
	if base.Position != nil {
		if c.Position != nil && !model.SamePosition(c.Position, base.Position) {
			r.warnings = append(r.warnings, conflictWarning(file, ref, "position",
				formatPosition(base.Position), formatPosition(c.Position), Baseline))
			kept = append(kept, "position")
		}
		p := *base.Position
		c.Position = &p
	}

	// custom properties: new keys come from the description, values the
	// schematic already has stay
	merged := make(map[string]string, len(base.Properties)+len(c.Properties))
	for k, v := range base.Properties {
		merged[k] = v
	}
	added, contested := false, false
	for _, k := range sortedKeys(c.Properties) {
		v := c.Properties[k]
		old, ok := base.Properties[k]
		switch {
		case !ok:
			added = true
			merged[k] = v
		case old != v:
			contested = true
			r.warnings = append(r.warnings, conflictWarning(file, ref, k, old, v, Baseline))
		}
	}
	if added {
		described = append(described, "properties")
	}
	if contested || len(base.Properties) > len(c.Properties) {
		kept = append(kept, "properties")
	}
	if len(merged) > 0 {
		c.Properties = merged
	}

	if len(described) > 0 {
		r.changes.Modified = append(r.changes.Modified, Change{Element: ComponentElement, Side: Description, Ref: ref, Fields: described})
	}
	if len(kept) > 0 {
		r.changes.Modified = append(r.changes.Modified, Change{Element: ComponentElement, Side: Baseline, Ref: ref, Fields: kept})
	}
}

// mergeSheets keeps the UUID and geometry of sheets already drawn.
func (r *resolution) mergeSheets(baseline *model.Document) {
	for _, name := range r.doc.SheetNames() {
		s := r.doc.Sheets[name]
		base, ok := baseline.Sheets[name]
		if !ok {
			r.changes.Added = append(r.changes.Added, Change{Element: SheetElement, Side: Description, Ref: name})
			continue
		}
		if s.UUID == "" {
			s.UUID = base.UUID
		}
		if base.Position != nil {
			p := *base.Position
			s.Position = &p
		}
		if base.Size != nil {
			sz := *base.Size
			s.Size = &sz
		}
		var fields []string
		if s.File != base.File {
			fields = append(fields, "file")
		}
		if !reflect.DeepEqual(s.Pins, base.Pins) && !(len(s.Pins) == 0 && len(base.Pins) == 0) {
			fields = append(fields, "pins")
		}
		if len(fields) > 0 {
			r.changes.Modified = append(r.changes.Modified, Change{Element: SheetElement, Side: Description, Ref: name, Fields: fields})
		}
	}
	for _, name := range baseline.SheetNames() {
		if _, ok := r.doc.Sheets[name]; !ok {
			r.changes.Removed = append(r.changes.Removed, Change{Element: SheetElement, Side: Description, Ref: name})
		}
	}
}

func (r *resolution) diffNets(baseline *model.Document) {
	// compare under the references the file will carry
	current := map[string][]string{}
	back := map[string]string{}
	for ref, old := range r.matched {
		back[old] = ref
	}
	for name, members := range baseline.Nets {
		var out []string
		for _, entry := range members {
			m, err := model.ParseMember(entry)
			if err == nil {
				if ref, ok := back[m.Ref]; ok {
					m.Ref = ref
				}
				entry = m.String()
			}
			out = append(out, entry)
		}
		sort.Strings(out)
		current[name] = out
	}

	for _, name := range r.doc.NetNames() {
		want := append([]string(nil), r.doc.Nets[name]...)
		sort.Strings(want)
		have, ok := current[name]
		switch {
		case !ok:
			r.changes.Added = append(r.changes.Added, Change{Element: NetElement, Side: Description, Ref: name})
		case !reflect.DeepEqual(want, have) && !(len(want) == 0 && len(have) == 0):
			r.changes.Modified = append(r.changes.Modified, Change{Element: NetElement, Side: Description, Ref: name, Fields: []string{"members"}})
		}
	}
	for _, name := range baseline.NetNames() {
		if _, ok := r.doc.Nets[name]; !ok {
			r.changes.Removed = append(r.changes.Removed, Change{Element: NetElement, Side: Description, Ref: name})
		}
	}
}

func formatPosition(p *model.Position) string {
	if p == nil {
		return "unplaced"
	}
	return fmt.Sprintf("%g,%g,%g", p.X, p.Y, p.Rot)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
