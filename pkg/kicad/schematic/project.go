package schematic

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Project builds the canonical document of sch as seen from the sheet
// instance at path. path selects per-instance reference designators; pass
// "" for a file without instance data. Embedded lib symbols are registered
// in repo.
func Project(sch *Schematic, repo *Repository, path string) (*model.Document, error) {
	repo.AddEmbedded(sch)

	doc := model.NewDocument()
	doc.Metadata.UUID = string(sch.UUID)
	doc.Metadata.Paper = sch.Paper
	doc.Metadata.Title = sch.TitleBlock.Title

	var claims []model.Claim
	lowest := map[string]int{}
	for _, sym := range sch.Symbols {
		ref := sym.ReferenceFor(path)
		if ref == "" || strings.HasPrefix(ref, "#") {
			continue
		}
		unit := sym.Unit
		if inst, ok := sym.Instance(path); ok && inst.Unit > 0 {
			unit = inst.Unit
		}
		claims = append(claims, model.Claim{Ref: ref, Unit: unit, Location: sch.Location(sym.Node)})

		c, seen := doc.Components[ref]
		if !seen {
			c = projectComponent(sym, repo)
			doc.Components[ref] = c
			lowest[ref] = unit
			continue
		}
		// the part's position and identity are those of its first unit
		if unit < lowest[ref] {
			lowest[ref] = unit
			c.Position = &model.Position{X: sym.Position.X, Y: sym.Position.Y, Rot: sym.Angle}
			c.UUID = string(sym.UUID)
		}
	}
	if err := model.CheckReferences(claims); err != nil {
		return nil, err
	}

	for _, n := range Connect(sch, repo, path) {
		doc.Nets[n.Name] = n.Members
		if n.Kind == placement.Global {
			doc.Globals = append(doc.Globals, n.Name)
		}
	}

	for _, sh := range sch.Sheets {
		s := &model.Sheet{
			File:     sh.FileName,
			Position: &model.Position{X: sh.Position.X, Y: sh.Position.Y},
			Size:     &model.Size{Width: sh.Size.Width, Height: sh.Size.Height},
			UUID:     string(sh.UUID),
		}
		for _, p := range sh.Pins {
			s.Pins = append(s.Pins, model.SheetPin{Name: p.Name, Direction: p.Shape})
		}
		doc.Sheets[sh.Name] = s
	}

	doc.Normalize()
	return doc, nil
}

func projectComponent(sym *Symbol, repo *Repository) *model.Component {
	c := &model.Component{
		Symbol:   sym.LibID,
		Position: &model.Position{X: sym.Position.X, Y: sym.Position.Y, Rot: sym.Angle},
		UUID:     string(sym.UUID),
	}
	for _, p := range sym.Properties {
		switch {
		case p.Key == "Value":
			c.Value = p.Value
		case p.Key == "Footprint":
			c.Footprint = p.Value
		case p.Key == "Reference", p.Key == OwnerProperty, strings.HasPrefix(p.Key, "ki_"):
		case (p.Key == "Datasheet" || p.Key == "Description") && (p.Value == "~" || p.Value == ""):
		default:
			if c.Properties == nil {
				c.Properties = map[string]string{}
			}
			c.Properties[p.Key] = p.Value
		}
	}

	if lib, err := repo.Lookup(sym.LibID); err == nil {
		seen := map[string]bool{}
		for _, p := range lib.Pins {
			if seen[p.Number] {
				continue
			}
			seen[p.Number] = true
			c.Pins = append(c.Pins, model.Pin{
				Number:    p.Number,
				Name:      p.Name,
				Direction: p.Type,
				Offset:    model.Point{X: p.Position.X, Y: p.Position.Y},
				Angle:     p.Angle,
			})
		}
	}
	return c
}

// Location returns "file:line" for a node of the schematic.
func (s *Schematic) Location(node *kicadsexp.List) string {
	file := s.File
	if file == "" {
		file = "<schematic>"
	}
	return fmt.Sprintf("%s:%d", file, node.Line())
}
