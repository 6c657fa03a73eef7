package schematic

import (
	"sort"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Element builders. They produce KiCad 8 nodes; the codec lays them out
// with KiCad's indentation when the tree is formatted.

// FileVersion is the format version written to new files (KiCad 8).
const FileVersion = 20231120

// Generator identifies files created by this tool.
const Generator = "kisync"

// DefaultFontSize is KiCad's default schematic text size in mm.
const DefaultFontSize = 1.27

// NewTree returns an empty schematic. Only the root file of a hierarchy
// carries sheet_instances.
func NewTree(id, paper, generatorVersion string, root bool) *kicadsexp.Tree {
	sch := kicadsexp.NewList("kicad_sch",
		kicadsexp.NewList("version", kicadsexp.Int(FileVersion)),
		kicadsexp.NewList("generator", kicadsexp.Str(Generator)),
		kicadsexp.NewList("generator_version", kicadsexp.Str(generatorVersion)),
		kicadsexp.UUIDNode(id),
		kicadsexp.NewList("paper", kicadsexp.Str(paper)),
		kicadsexp.NewList("lib_symbols"),
	)
	if root {
		sch.Append(kicadsexp.NewList("sheet_instances",
			kicadsexp.NewList("path", kicadsexp.Str("/"),
				kicadsexp.NewList("page", kicadsexp.Str("1")))))
	}
	return kicadsexp.NewTree(sch)
}

func effectsNode(hide bool, justify ...string) *kicadsexp.List {
	e := kicadsexp.NewList("effects",
		kicadsexp.NewList("font", kicadsexp.Pair("size", DefaultFontSize, DefaultFontSize)))
	if len(justify) > 0 {
		j := kicadsexp.NewList("justify")
		for _, s := range justify {
			j.Append(kicadsexp.Sym(s))
		}
		e.Append(j)
	}
	if hide {
		e.Append(kicadsexp.NewList("hide", kicadsexp.Bool(true)))
	}
	return e
}

// PropertyNode builds (property "key" "value" (at x y angle) (effects ...)).
func PropertyNode(key, value string, at Position, angle float64, hide bool, justify ...string) *kicadsexp.List {
	return kicadsexp.NewList("property", kicadsexp.Str(key), kicadsexp.Str(value),
		kicadsexp.At(at.X, at.Y, angle),
		effectsNode(hide, justify...))
}

// SymbolSpec describes a new symbol instance.
type SymbolSpec struct {
	LibID      string
	Position   Position
	Angle      float64
	Unit       int
	UUID       string
	Reference  string
	Value      string
	Footprint  string
	RefAt      Position
	ValueAt    Position
	Properties map[string]string // hidden user fields
	Pins       []PinRef
	Instances  []SymbolInstance
}

// BuildSymbol returns a (symbol ...) node.
func BuildSymbol(spec SymbolSpec) *kicadsexp.List {
	node := kicadsexp.NewList("symbol",
		kicadsexp.NewList("lib_id", kicadsexp.Str(spec.LibID)),
		kicadsexp.At(spec.Position.X, spec.Position.Y, spec.Angle),
		kicadsexp.NewList("unit", kicadsexp.Int(spec.Unit)),
		kicadsexp.NewList("exclude_from_sim", kicadsexp.Bool(false)),
		kicadsexp.NewList("in_bom", kicadsexp.Bool(true)),
		kicadsexp.NewList("on_board", kicadsexp.Bool(true)),
		kicadsexp.NewList("dnp", kicadsexp.Bool(false)),
		kicadsexp.UUIDNode(spec.UUID),
		PropertyNode("Reference", spec.Reference, spec.RefAt, 0, false),
		PropertyNode("Value", spec.Value, spec.ValueAt, 0, false),
		PropertyNode("Footprint", spec.Footprint, spec.Position, 0, true),
		PropertyNode("Datasheet", "~", spec.Position, 0, true),
		PropertyNode("Description", "", spec.Position, 0, true),
	)

	keys := make([]string, 0, len(spec.Properties))
	for k := range spec.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.Append(PropertyNode(k, spec.Properties[k], spec.Position, 0, true))
	}

	for _, pin := range spec.Pins {
		node.Append(kicadsexp.NewList("pin", kicadsexp.Str(pin.Number), kicadsexp.UUIDNode(string(pin.UUID))))
	}
	if len(spec.Instances) > 0 {
		node.Append(InstancesNode(spec.Instances))
	}
	return node
}

// InstancesNode builds (instances (project "p" (path "/..." (reference "R1") (unit 1)))).
// Paths of one project are grouped under one project node.
func InstancesNode(instances []SymbolInstance) *kicadsexp.List {
	node := kicadsexp.NewList("instances")
	projects := map[string]*kicadsexp.List{}
	for _, inst := range instances {
		p, ok := projects[inst.Project]
		if !ok {
			p = kicadsexp.NewList("project", kicadsexp.Str(inst.Project))
			projects[inst.Project] = p
			node.Append(p)
		}
		p.Append(instancePathNode(inst))
	}
	return node
}

func instancePathNode(inst SymbolInstance) *kicadsexp.List {
	return kicadsexp.NewList("path", kicadsexp.Str(inst.Path),
		kicadsexp.NewList("reference", kicadsexp.Str(inst.Reference)),
		kicadsexp.NewList("unit", kicadsexp.Int(inst.Unit)))
}

// LabelSpec describes a new label.
type LabelSpec struct {
	Kind        placement.LabelKind
	Text        string
	Shape       string
	Position    Position
	Orientation placement.Orientation
	UUID        string
	Owner       string
}

// BuildLabel returns a label, global_label or hierarchical_label node.
func BuildLabel(spec LabelSpec) *kicadsexp.List {
	angle := spec.Orientation.Angle()
	node := kicadsexp.NewList(spec.Kind.Keyword(), kicadsexp.Str(spec.Text))

	switch spec.Kind {
	case placement.Local:
		node.Append(
			kicadsexp.At(spec.Position.X, spec.Position.Y, angle),
			kicadsexp.NewList("fields_autoplaced", kicadsexp.Bool(true)),
			effectsNode(false, labelJustify(spec.Orientation), "bottom"),
			kicadsexp.UUIDNode(spec.UUID),
		)
	case placement.Global:
		node.Append(
			kicadsexp.NewList("shape", kicadsexp.Sym(shapeOrDefault(spec.Shape))),
			kicadsexp.At(spec.Position.X, spec.Position.Y, angle),
			kicadsexp.NewList("fields_autoplaced", kicadsexp.Bool(true)),
			effectsNode(false, labelJustify(spec.Orientation)),
			kicadsexp.UUIDNode(spec.UUID),
			PropertyNode("Intersheetrefs", "${INTERSHEET_REFS}", spec.Position, angle, true, labelJustify(spec.Orientation)),
		)
	case placement.Hierarchical:
		node.Append(
			kicadsexp.NewList("shape", kicadsexp.Sym(shapeOrDefault(spec.Shape))),
			kicadsexp.At(spec.Position.X, spec.Position.Y, angle),
			kicadsexp.NewList("fields_autoplaced", kicadsexp.Bool(true)),
			effectsNode(false, labelJustify(spec.Orientation)),
			kicadsexp.UUIDNode(spec.UUID),
		)
	}

	if spec.Owner != "" {
		node.Append(PropertyNode(OwnerProperty, spec.Owner, spec.Position, angle, true))
	}
	return node
}

// labelJustify returns the justification KiCad writes for a label whose
// text runs in direction o from its anchor.
func labelJustify(o placement.Orientation) string {
	switch o {
	case placement.Right, placement.Up:
		return "left"
	case placement.Left, placement.Down:
		return "right"
	}
	panic("schematic: unknown orientation " + o.String())
}

// ShapeForDirection maps a pin electrical type to a label shape.
func ShapeForDirection(direction string) string {
	switch direction {
	case "input", "output", "bidirectional", "tri_state", "passive":
		return direction
	case "power_in":
		return "input"
	case "power_out":
		return "output"
	}
	return "passive"
}

func shapeOrDefault(shape string) string {
	if shape == "" {
		return "passive"
	}
	return shape
}

// SheetSpec describes a new sheet symbol.
type SheetSpec struct {
	Name     string
	File     string
	Position Position
	Size     Size
	UUID     string
	Pins      []SheetPinSpec
	Project   string
	Instances []SheetInstance // parent sheet instance paths and page numbers
}

// SheetPinSpec describes a sheet pin.
type SheetPinSpec struct {
	Name        string
	Shape       string
	Position    Position
	Orientation placement.Orientation
	UUID        string
}

// BuildSheet returns a (sheet ...) node.
func BuildSheet(spec SheetSpec) *kicadsexp.List {
	p, s := spec.Position, spec.Size
	node := kicadsexp.NewList("sheet",
		kicadsexp.Pair("at", p.X, p.Y),
		kicadsexp.Pair("size", s.Width, s.Height),
		kicadsexp.NewList("fields_autoplaced", kicadsexp.Bool(true)),
		kicadsexp.NewList("stroke",
			kicadsexp.NewList("width", kicadsexp.Num(0.1524)),
			kicadsexp.NewList("type", kicadsexp.Sym("solid"))),
		kicadsexp.NewList("fill",
			kicadsexp.NewList("color", kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Int(0), kicadsexp.Sym("0.0000"))),
		kicadsexp.UUIDNode(spec.UUID),
		PropertyNode("Sheetname", spec.Name, Position{X: p.X, Y: p.Y - 0.7116}, 0, false, "left", "bottom"),
		PropertyNode("Sheetfile", spec.File, Position{X: p.X, Y: p.Y + s.Height + 0.5846}, 0, false, "left", "top"),
	)
	for _, pin := range spec.Pins {
		node.Append(BuildSheetPin(pin))
	}
	if len(spec.Instances) > 0 {
		project := kicadsexp.NewList("project", kicadsexp.Str(spec.Project))
		for _, inst := range spec.Instances {
			project.Append(kicadsexp.NewList("path", kicadsexp.Str(inst.Path),
				kicadsexp.NewList("page", kicadsexp.Str(inst.Page))))
		}
		node.Append(kicadsexp.NewList("instances", project))
	}
	return node
}

// BuildSheetPin returns a sheet (pin ...) node. Pins on the left edge point
// left (angle 180).
func BuildSheetPin(spec SheetPinSpec) *kicadsexp.List {
	justify := "right"
	if spec.Orientation == placement.Left {
		justify = "left"
	}
	return kicadsexp.NewList("pin", kicadsexp.Str(spec.Name), kicadsexp.Sym(shapeOrDefault(spec.Shape)),
		kicadsexp.At(spec.Position.X, spec.Position.Y, spec.Orientation.Angle()),
		effectsNode(false, justify),
		kicadsexp.UUIDNode(spec.UUID))
}
