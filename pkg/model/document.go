// Package model holds the canonical, order-independent circuit model: one
// Document per circuit scope and a Design tying the documents of a project
// together. Documents serialize to the canonical JSON schema.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaVersion is written to Metadata.SchemaVersion.
const SchemaVersion = 1

// Document is the canonical projection of one circuit scope.
type Document struct {
	Components map[string]*Component `json:"components"`
	Nets       map[string][]string   `json:"nets"`
	Globals    []string              `json:"globals,omitempty"` // nets that connect design-wide
	Sheets     map[string]*Sheet     `json:"sheets,omitempty"`  // keyed by sheet name
	Metadata   Metadata              `json:"metadata"`
}

// Metadata carries the volatile and descriptive fields of a document.
type Metadata struct {
	SchemaVersion int    `json:"schema_version"`
	UUID          string `json:"uuid,omitempty"`
	Paper         string `json:"paper,omitempty"`
	Title         string `json:"title,omitempty"`
}

// Component is a placed part.
type Component struct {
	Symbol     string            `json:"symbol"`
	Value      string            `json:"value"`
	Footprint  string            `json:"footprint,omitempty"`
	Position   *Position         `json:"position,omitempty"` // nil until placed
	Properties map[string]string `json:"properties,omitempty"`
	Pins       []Pin             `json:"pins,omitempty"`
	UUID       string            `json:"uuid,omitempty"`
}

// Pin is one electrical connection point of a component.
type Pin struct {
	Number    string  `json:"number"`
	Name      string  `json:"name,omitempty"`
	Direction string  `json:"direction,omitempty"` // input, output, passive, power_in...
	Offset    Point   `json:"offset"`              // symbol coordinates
	Angle     float64 `json:"angle,omitempty"`
}

// Sheet is a reference from this scope to a child scope in another file.
type Sheet struct {
	File     string     `json:"file"`
	Position *Position  `json:"position,omitempty"`
	Size     *Size      `json:"size,omitempty"`
	Pins     []SheetPin `json:"pins,omitempty"`
	UUID     string     `json:"uuid,omitempty"`
}

// SheetPin is a hierarchical connection point on a sheet symbol.
type SheetPin struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Components: make(map[string]*Component),
		Nets:       make(map[string][]string),
		Sheets:     make(map[string]*Sheet),
		Metadata:   Metadata{SchemaVersion: SchemaVersion},
	}
}

// init fills nil maps after decoding.
func (d *Document) init() {
	if d.Components == nil {
		d.Components = make(map[string]*Component)
	}
	if d.Nets == nil {
		d.Nets = make(map[string][]string)
	}
	if d.Sheets == nil {
		d.Sheets = make(map[string]*Sheet)
	}
	if d.Metadata.SchemaVersion == 0 {
		d.Metadata.SchemaVersion = SchemaVersion
	}
}

// Refs returns the component references in natural order (R2 before R10).
func (d *Document) Refs() []string {
	refs := make([]string, 0, len(d.Components))
	for ref := range d.Components {
		refs = append(refs, ref)
	}
	SortRefs(refs)
	return refs
}

// NetNames returns the net names sorted.
func (d *Document) NetNames() []string {
	names := make([]string, 0, len(d.Nets))
	for name := range d.Nets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SheetNames returns the sheet names sorted.
func (d *Document) SheetNames() []string {
	names := make([]string, 0, len(d.Sheets))
	for name := range d.Sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsGlobal reports whether net is listed in Globals.
func (d *Document) IsGlobal(net string) bool {
	for _, g := range d.Globals {
		if g == net {
			return true
		}
	}
	return false
}

// Normalize sorts net members, removes duplicate members and sorts globals.
// Marshal calls it so that output is stable.
func (d *Document) Normalize() {
	d.init()
	for name, members := range d.Nets {
		d.Nets[name] = dedupeSorted(members)
	}
	d.Globals = dedupeSorted(d.Globals)
	for _, c := range d.Components {
		sort.SliceStable(c.Pins, func(i, j int) bool { return lessNatural(c.Pins[i].Number, c.Pins[j].Number) })
	}
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := NewDocument()
	out.Metadata = d.Metadata
	out.Globals = append([]string(nil), d.Globals...)
	for ref, c := range d.Components {
		out.Components[ref] = c.Clone()
	}
	for name, members := range d.Nets {
		out.Nets[name] = append([]string(nil), members...)
	}
	for name, s := range d.Sheets {
		out.Sheets[name] = s.Clone()
	}
	return out
}

// Clone returns a deep copy.
func (c *Component) Clone() *Component {
	out := *c
	if c.Position != nil {
		p := *c.Position
		out.Position = &p
	}
	if c.Properties != nil {
		out.Properties = make(map[string]string, len(c.Properties))
		for k, v := range c.Properties {
			out.Properties[k] = v
		}
	}
	out.Pins = append([]Pin(nil), c.Pins...)
	return &out
}

// HasPin reports whether the component declares pin number. Components
// without a pin list accept any pin.
func (c *Component) HasPin(number string) bool {
	if len(c.Pins) == 0 {
		return true
	}
	for _, p := range c.Pins {
		if p.Number == number {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *Sheet) Clone() *Sheet {
	out := *s
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.Size != nil {
		sz := *s.Size
		out.Size = &sz
	}
	out.Pins = append([]SheetPin(nil), s.Pins...)
	return &out
}

// HasPin reports whether the sheet declares a pin called name.
func (s *Sheet) HasPin(name string) bool {
	for _, p := range s.Pins {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Member is a parsed "<ref>.<pin>" net entry. Ref may also be a sheet name.
type Member struct {
	Ref string
	Pin string
}

func (m Member) String() string { return m.Ref + "." + m.Pin }

// ParseMember splits a net entry at its last dot, so references containing
// dots still parse.
func ParseMember(s string) (Member, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Member{}, fmt.Errorf("invalid net member %q: want <ref>.<pin>", s)
	}
	return Member{Ref: s[:i], Pin: s[i+1:]}, nil
}
