package description

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/OpenTraceLab/kisync/pkg/model"
)

// hclFile is the top level of an HCL description:
//
//	root = "top.kicad_sch"
//
//	document "top.kicad_sch" {
//	  title   = "${project} divider"
//	  globals = ["GND"]
//
//	  component "R1" {
//	    symbol   = "Device:R"
//	    value    = "10k"
//	    position = [30, 20, 0]
//	  }
//
//	  nets = {
//	    VIN = ["R1.1"]
//	  }
//
//	  sheet "power" {
//	    file = "power.kicad_sch"
//	    pin "EN" { direction = "input" }
//	  }
//	}
type hclFile struct {
	Root      string         `hcl:"root,optional"`
	Documents []*hclDocument `hcl:"document,block"`
}

type hclDocument struct {
	File       string              `hcl:"file,label"`
	Title      string              `hcl:"title,optional"`
	Paper      string              `hcl:"paper,optional"`
	Globals    []string            `hcl:"globals,optional"`
	Nets       map[string][]string `hcl:"nets,optional"`
	Components []*hclComponent     `hcl:"component,block"`
	Sheets     []*hclSheet         `hcl:"sheet,block"`
}

type hclComponent struct {
	Ref        string            `hcl:"ref,label"`
	Symbol     string            `hcl:"symbol"`
	Value      string            `hcl:"value,optional"`
	Footprint  string            `hcl:"footprint,optional"`
	Position   []float64         `hcl:"position,optional"`
	Properties map[string]string `hcl:"properties,optional"`
	DefRange   hcl.Range         `hcl:",def_range"`
}

type hclSheet struct {
	Name     string    `hcl:"name,label"`
	File     string    `hcl:"file"`
	Position []float64 `hcl:"position,optional"`
	Size     []float64 `hcl:"size,optional"`
	Pins     []*hclPin `hcl:"pin,block"`
}

type hclPin struct {
	Name      string `hcl:"name,label"`
	Direction string `hcl:"direction,optional"`
}

// evalContext exposes the project name to expressions.
func evalContext(opts Options) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"project": cty.StringVal(opts.Project),
		},
	}
}

func decodeHCL(data []byte, name string, opts Options) (*model.Design, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL description %s: %w", name, diags)
	}

	var root hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(opts), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL description %s: %w", name, diags)
	}

	d := &model.Design{Root: root.Root, Documents: map[string]*model.Document{}}
	if d.Root == "" {
		d.Root = opts.root()
	}
	for _, hd := range root.Documents {
		if _, dup := d.Documents[hd.File]; dup {
			return nil, fmt.Errorf("%s: document %q declared twice", name, hd.File)
		}
		doc, err := hd.document()
		if err != nil {
			return nil, fmt.Errorf("%s: document %q: %w", name, hd.File, err)
		}
		d.Documents[hd.File] = doc
	}
	if d.Documents[d.Root] == nil {
		return nil, fmt.Errorf("%s: root %q has no document", name, d.Root)
	}
	return d, nil
}

func (hd *hclDocument) document() (*model.Document, error) {
	doc := model.NewDocument()
	doc.Metadata.Title = hd.Title
	doc.Metadata.Paper = hd.Paper
	doc.Globals = append(doc.Globals, hd.Globals...)
	for net, members := range hd.Nets {
		doc.Nets[net] = append([]string(nil), members...)
	}

	declared := map[string]hcl.Range{}
	for _, hc := range hd.Components {
		if first, dup := declared[hc.Ref]; dup {
			return nil, &model.ReferenceConflictError{Ref: hc.Ref, First: rangeLocation(first), Second: rangeLocation(hc.DefRange)}
		}
		declared[hc.Ref] = hc.DefRange
		c := &model.Component{
			Symbol:     hc.Symbol,
			Value:      hc.Value,
			Footprint:  hc.Footprint,
			Properties: hc.Properties,
		}
		if hc.Position != nil {
			p, err := position(hc.Position)
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", hc.Ref, err)
			}
			c.Position = p
		}
		doc.Components[hc.Ref] = c
	}

	for _, hs := range hd.Sheets {
		if _, dup := doc.Sheets[hs.Name]; dup {
			return nil, fmt.Errorf("sheet %s declared twice", hs.Name)
		}
		s := &model.Sheet{File: hs.File}
		if hs.Position != nil {
			p, err := position(hs.Position)
			if err != nil {
				return nil, fmt.Errorf("sheet %s: %w", hs.Name, err)
			}
			s.Position = p
		}
		if hs.Size != nil {
			if len(hs.Size) != 2 {
				return nil, fmt.Errorf("sheet %s: size wants [width, height], got %d numbers", hs.Name, len(hs.Size))
			}
			s.Size = &model.Size{Width: hs.Size[0], Height: hs.Size[1]}
		}
		for _, p := range hs.Pins {
			s.Pins = append(s.Pins, model.SheetPin{Name: p.Name, Direction: p.Direction})
		}
		doc.Sheets[hs.Name] = s
	}

	doc.Normalize()
	return doc, nil
}

func rangeLocation(r hcl.Range) string {
	return fmt.Sprintf("%s:%d", r.Filename, r.Start.Line)
}

func position(v []float64) (*model.Position, error) {
	switch len(v) {
	case 2:
		return &model.Position{X: v[0], Y: v[1]}, nil
	case 3:
		return &model.Position{X: v[0], Y: v[1], Rot: v[2]}, nil
	}
	return nil, fmt.Errorf("position wants [x, y] or [x, y, rot], got %d numbers", len(v))
}
