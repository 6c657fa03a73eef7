package schematic

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Minimum supported KiCad version for schematics (6.0 = 20211014)
const MinSupportedVersion = 20211014

// ParseFile reads and parses a KiCad schematic file
func ParseFile(filename string) (*Schematic, error) {
	tree, err := kicadsexp.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseTree(tree, filename)
}

// Parse reads and parses a KiCad schematic from an io.Reader
func Parse(r io.Reader) (*Schematic, error) {
	tree, err := kicadsexp.Parse(r)
	if err != nil {
		return nil, err
	}
	return ParseTree(tree, "")
}

// ParseBytes parses a schematic held in memory. name is used in errors.
func ParseBytes(name string, data []byte) (*Schematic, error) {
	tree, err := kicadsexp.ParseBytes(name, data)
	if err != nil {
		return nil, err
	}
	return ParseTree(tree, name)
}

// ParseTree builds the typed view of an already parsed tree.
func ParseTree(tree *kicadsexp.Tree, file string) (*Schematic, error) {
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("empty file or no valid s-expressions found")
	}

	// Verify this is a kicad_sch file
	if root.Name() != "kicad_sch" {
		return nil, fmt.Errorf("not a KiCad schematic file: expected 'kicad_sch', got '%s'", root.Name())
	}

	sch := &Schematic{Tree: tree, Root: root, File: file}
	if err := sch.Reindex(); err != nil {
		return nil, err
	}
	return sch, nil
}

// Reindex rebuilds the typed view from the tree. Call it after editing
// the tree directly.
func (s *Schematic) Reindex() error {
	root := s.Root
	*s = Schematic{Tree: s.Tree, Root: root, File: s.File}

	if err := parseHeader(root, s); err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	if id, err := sexp.GetUUID(root); err == nil {
		s.UUID = id
	}
	if paper, ok := sexp.FindNode(root, "paper"); ok {
		s.Paper, _ = sexp.GetString(paper, 1)
		s.PaperSize.Width, _ = sexp.GetFloat(paper, 2)
		s.PaperSize.Height, _ = sexp.GetFloat(paper, 3)
		s.Portrait = sexp.HasSymbol(paper, "portrait")
	}
	if tb, ok := sexp.FindNode(root, "title_block"); ok {
		s.TitleBlock = parseTitleBlock(tb)
	}
	if ls, ok := sexp.FindNode(root, "lib_symbols"); ok {
		s.LibSymbols = parseLibSymbols(ls)
	}

	s.Symbols = parseSymbols(root)
	s.Wires = parseWires(root)
	s.Junctions = parseJunctions(root)
	s.NoConnects = parseNoConnects(root)
	s.Labels = parseLabels(root)
	s.Sheets = parseSheets(root)

	if si, ok := sexp.FindNode(root, "sheet_instances"); ok {
		s.SheetInstances = parseSheetInstances(si)
	}
	// KiCad 6 keeps symbol instances in one top-level block
	if si, ok := sexp.FindNode(root, "symbol_instances"); ok {
		applyLegacyInstances(s, si)
	}

	return nil
}

// parseHeader extracts version and generator information
func parseHeader(root *kicadsexp.List, sch *Schematic) error {
	versionNode, found := sexp.FindNode(root, "version")
	if !found {
		return fmt.Errorf("missing required 'version' field")
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return fmt.Errorf("failed to parse version: %w", err)
	}
	if ver < MinSupportedVersion {
		return fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}
	sch.Version = ver

	if genNode, found := sexp.FindNode(root, "generator"); found {
		sch.Generator, _ = sexp.GetString(genNode, 1)
	}
	if genVerNode, found := sexp.FindNode(root, "generator_version"); found {
		sch.GeneratorVer, _ = sexp.GetString(genVerNode, 1)
	}

	return nil
}

// parseTitleBlock extracts title block information
func parseTitleBlock(node *kicadsexp.List) TitleBlock {
	tb := TitleBlock{}
	if n, ok := sexp.FindNode(node, "title"); ok {
		tb.Title, _ = sexp.GetString(n, 1)
	}
	if n, ok := sexp.FindNode(node, "date"); ok {
		tb.Date, _ = sexp.GetString(n, 1)
	}
	if n, ok := sexp.FindNode(node, "rev"); ok {
		tb.Revision, _ = sexp.GetString(n, 1)
	}
	if n, ok := sexp.FindNode(node, "company"); ok {
		tb.Company, _ = sexp.GetString(n, 1)
	}
	return tb
}

// parseLibSymbols parses embedded library symbols
func parseLibSymbols(node *kicadsexp.List) []*LibSymbol {
	symbolNodes := node.FindAll("symbol")
	symbols := make([]*LibSymbol, 0, len(symbolNodes))
	for _, symNode := range symbolNodes {
		symbols = append(symbols, parseLibSymbol(symNode))
	}
	return symbols
}

// parseLibSymbol parses a single library symbol definition. Graphics and
// pins live in nested unit symbols named <name>_<unit>_<style>.
func parseLibSymbol(node *kicadsexp.List) *LibSymbol {
	sym := &LibSymbol{Node: node, UnitCount: 1}
	sym.Name, _ = sexp.GetString(node, 1)

	if ext, ok := sexp.FindNode(node, "extends"); ok {
		sym.Extends, _ = sexp.GetString(ext, 1)
	}
	_, sym.Power = sexp.FindNode(node, "power")

	for _, pn := range node.FindAll("property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			sym.Properties = append(sym.Properties, prop)
		}
	}

	// pins and graphics directly under the symbol are common to all units
	collectBody(node, 0, sym)

	for _, unitNode := range node.FindAll("symbol") {
		name, _ := sexp.GetString(unitNode, 1)
		unit, style := unitSuffix(name)
		if style > 1 {
			// alternate body style (De Morgan); only the first is laid out
			continue
		}
		if unit > sym.UnitCount {
			sym.UnitCount = unit
		}
		collectBody(unitNode, unit, sym)
	}

	return sym
}

// unitSuffix parses the trailing _<unit>_<style> of a unit symbol name.
func unitSuffix(name string) (unit, style int) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return 0, 1
	}
	u, err1 := strconv.Atoi(parts[len(parts)-2])
	st, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil {
		return 0, 1
	}
	return u, st
}

func collectBody(node *kicadsexp.List, unit int, sym *LibSymbol) {
	for _, child := range node.Lists() {
		switch child.Name() {
		case "pin":
			pin := parsePin(child)
			pin.Unit = unit
			sym.Pins = append(sym.Pins, pin)
		case "rectangle":
			g := SymGraphic{Type: "rectangle", Unit: unit}
			if n, ok := sexp.FindNode(child, "start"); ok {
				p, _ := sexp.GetPositionXY(n)
				g.Points = append(g.Points, p)
			}
			if n, ok := sexp.FindNode(child, "end"); ok {
				p, _ := sexp.GetPositionXY(n)
				g.Points = append(g.Points, p)
			}
			sym.Graphics = append(sym.Graphics, g)
		case "circle":
			g := SymGraphic{Type: "circle", Unit: unit}
			if n, ok := sexp.FindNode(child, "center"); ok {
				g.Center, _ = sexp.GetPositionXY(n)
			}
			if n, ok := sexp.FindNode(child, "radius"); ok {
				g.Radius, _ = sexp.GetFloat(n, 1)
			}
			sym.Graphics = append(sym.Graphics, g)
		case "arc":
			g := SymGraphic{Type: "arc", Unit: unit}
			for _, key := range []string{"start", "mid", "end"} {
				if n, ok := sexp.FindNode(child, key); ok {
					p, _ := sexp.GetPositionXY(n)
					g.Points = append(g.Points, p)
				}
			}
			sym.Graphics = append(sym.Graphics, g)
		case "polyline", "bezier":
			sym.Graphics = append(sym.Graphics, SymGraphic{Type: child.Name(), Unit: unit, Points: sexp.GetPoints(child)})
		}
	}
}

// parsePin parses a pin definition
func parsePin(node *kicadsexp.List) Pin {
	pin := Pin{}

	pin.Type, _ = sexp.GetString(node, 1)
	pin.Style, _ = sexp.GetString(node, 2)

	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, _ := sexp.GetPosition(atNode)
		pin.Position = pos.Position
		pin.Angle = float64(pos.Angle)
	}
	if lenNode, found := sexp.FindNode(node, "length"); found {
		pin.Length, _ = sexp.GetFloat(lenNode, 1)
	}
	if nameNode, found := sexp.FindNode(node, "name"); found {
		pin.Name, _ = sexp.GetString(nameNode, 1)
	}
	if numNode, found := sexp.FindNode(node, "number"); found {
		pin.Number, _ = sexp.GetString(numNode, 1)
	}
	pin.Hide = sexp.GetFlag(node, "hide")

	return pin
}

// parseSymbols parses symbol instances
func parseSymbols(root *kicadsexp.List) []*Symbol {
	symbolNodes := root.FindAll("symbol")
	symbols := make([]*Symbol, 0, len(symbolNodes))
	for _, symNode := range symbolNodes {
		symbols = append(symbols, parseSymbol(symNode))
	}
	return symbols
}

// parseSymbol parses a single symbol instance
func parseSymbol(node *kicadsexp.List) *Symbol {
	sym := &Symbol{Node: node, Unit: 1}

	if libNode, found := sexp.FindNode(node, "lib_id"); found {
		sym.LibID, _ = sexp.GetString(libNode, 1)
	}
	if atNode, found := sexp.FindNode(node, "at"); found {
		pos, _ := sexp.GetPosition(atNode)
		sym.Position = pos.Position
		sym.Angle = float64(pos.Angle)
	}
	if mirrorNode, found := sexp.FindNode(node, "mirror"); found {
		sym.Mirror, _ = sexp.GetString(mirrorNode, 1)
	}
	if unitNode, found := sexp.FindNode(node, "unit"); found {
		sym.Unit, _ = sexp.GetInt(unitNode, 1)
	}
	sym.UUID, _ = sexp.GetUUID(node)

	for _, pn := range node.FindAll("property") {
		if prop, err := sexp.GetProperty(pn); err == nil {
			sym.Properties = append(sym.Properties, prop)
		}
	}

	for _, pn := range node.FindAll("pin") {
		ref := PinRef{}
		ref.Number, _ = sexp.GetString(pn, 1)
		ref.UUID, _ = sexp.GetUUID(pn)
		sym.Pins = append(sym.Pins, ref)
	}

	if instances, ok := sexp.FindNode(node, "instances"); ok {
		for _, project := range instances.FindAll("project") {
			name, _ := sexp.GetString(project, 1)
			for _, path := range project.FindAll("path") {
				sym.Instances = append(sym.Instances, parseInstancePath(name, path))
			}
		}
	}

	return sym
}

func parseInstancePath(project string, path *kicadsexp.List) SymbolInstance {
	inst := SymbolInstance{Project: project, Unit: 1}
	inst.Path, _ = sexp.GetString(path, 1)
	if n, ok := sexp.FindNode(path, "reference"); ok {
		inst.Reference, _ = sexp.GetString(n, 1)
	}
	if n, ok := sexp.FindNode(path, "unit"); ok {
		inst.Unit, _ = sexp.GetInt(n, 1)
	}
	return inst
}

// applyLegacyInstances maps KiCad 6 (symbol_instances (path "/a/b/<uuid>"))
// entries onto their symbols. The root sheet UUID is prepended so paths
// match the KiCad 7 form.
func applyLegacyInstances(s *Schematic, node *kicadsexp.List) {
	for _, path := range node.FindAll("path") {
		inst := parseInstancePath("", path)
		i := strings.LastIndexByte(inst.Path, '/')
		if i < 0 {
			continue
		}
		sym := s.SymbolByUUID(UUID(inst.Path[i+1:]))
		if sym == nil {
			continue
		}
		inst.Path = "/" + string(s.UUID) + inst.Path[:i]
		inst.Path = strings.TrimSuffix(inst.Path, "/")
		sym.Instances = append(sym.Instances, inst)
	}
}

// parseWires parses wire elements
func parseWires(root *kicadsexp.List) []*Wire {
	nodes := root.FindAll("wire")
	wires := make([]*Wire, 0, len(nodes))
	for _, wn := range nodes {
		w := &Wire{Node: wn, Points: sexp.GetPoints(wn)}
		w.UUID, _ = sexp.GetUUID(wn)
		wires = append(wires, w)
	}
	return wires
}

// parseJunctions parses junction elements
func parseJunctions(root *kicadsexp.List) []*Junction {
	nodes := root.FindAll("junction")
	out := make([]*Junction, 0, len(nodes))
	for _, n := range nodes {
		j := &Junction{Node: n}
		if at, ok := sexp.FindNode(n, "at"); ok {
			j.Position, _ = sexp.GetPositionXY(at)
		}
		j.UUID, _ = sexp.GetUUID(n)
		out = append(out, j)
	}
	return out
}

// parseNoConnects parses no_connect markers
func parseNoConnects(root *kicadsexp.List) []*NoConnect {
	nodes := root.FindAll("no_connect")
	out := make([]*NoConnect, 0, len(nodes))
	for _, n := range nodes {
		nc := &NoConnect{Node: n}
		if at, ok := sexp.FindNode(n, "at"); ok {
			nc.Position, _ = sexp.GetPositionXY(at)
		}
		nc.UUID, _ = sexp.GetUUID(n)
		out = append(out, nc)
	}
	return out
}

// parseLabels parses local, global and hierarchical labels in file order.
func parseLabels(root *kicadsexp.List) []*Label {
	var labels []*Label
	for _, ln := range root.Lists() {
		kind, ok := placement.LabelKindFromKeyword(ln.Name())
		if !ok {
			continue
		}
		label := &Label{Node: ln, Kind: kind}
		label.Text, _ = sexp.GetString(ln, 1)

		if shapeNode, found := sexp.FindNode(ln, "shape"); found {
			label.Shape, _ = sexp.GetString(shapeNode, 1)
		}
		if atNode, found := sexp.FindNode(ln, "at"); found {
			pos, _ := sexp.GetPosition(atNode)
			label.Position = pos.Position
			label.Angle = float64(pos.Angle)
		}
		label.UUID, _ = sexp.GetUUID(ln)
		label.Owner, _ = sexp.GetPropertyValue(ln, OwnerProperty)

		labels = append(labels, label)
	}
	return labels
}

// parseSheets parses hierarchical sheet references
func parseSheets(root *kicadsexp.List) []*Sheet {
	sheetNodes := root.FindAll("sheet")
	sheets := make([]*Sheet, 0, len(sheetNodes))

	for _, sn := range sheetNodes {
		sheet := &Sheet{Node: sn}

		if atNode, found := sexp.FindNode(sn, "at"); found {
			sheet.Position, _ = sexp.GetPositionXY(atNode)
		}
		if sizeNode, found := sexp.FindNode(sn, "size"); found {
			w, _ := sexp.GetFloat(sizeNode, 1)
			h, _ := sexp.GetFloat(sizeNode, 2)
			sheet.Size = Size{Width: w, Height: h}
		}
		sheet.UUID, _ = sexp.GetUUID(sn)

		for _, pn := range sn.FindAll("property") {
			prop, err := sexp.GetProperty(pn)
			if err != nil {
				continue
			}
			switch prop.Key {
			// KiCad 6 wrote "Sheet name" and "Sheet file"
			case "Sheetname", "Sheet name":
				sheet.Name = prop.Value
			case "Sheetfile", "Sheet file":
				sheet.FileName = prop.Value
			default:
				sheet.Properties = append(sheet.Properties, prop)
			}
		}

		for _, pn := range sn.FindAll("pin") {
			pin := SheetPin{Node: pn}
			pin.Name, _ = sexp.GetString(pn, 1)
			pin.Shape, _ = sexp.GetString(pn, 2)
			if atNode, found := sexp.FindNode(pn, "at"); found {
				pos, _ := sexp.GetPosition(atNode)
				pin.Position = pos.Position
				pin.Angle = float64(pos.Angle)
			}
			pin.UUID, _ = sexp.GetUUID(pn)
			sheet.Pins = append(sheet.Pins, pin)
		}

		if instances, ok := sexp.FindNode(sn, "instances"); ok {
			for _, project := range instances.FindAll("project") {
				sheet.Instances = append(sheet.Instances, parseSheetInstances(project)...)
			}
		}

		sheets = append(sheets, sheet)
	}

	return sheets
}

// parseSheetInstances parses sheet instance paths
func parseSheetInstances(node *kicadsexp.List) []SheetInstance {
	pathNodes := node.FindAll("path")
	instances := make([]SheetInstance, 0, len(pathNodes))
	for _, pn := range pathNodes {
		inst := SheetInstance{}
		inst.Path, _ = sexp.GetString(pn, 1)
		if pageNode, found := sexp.FindNode(pn, "page"); found {
			inst.Page, _ = sexp.GetString(pageNode, 1)
		}
		instances = append(instances, inst)
	}
	return instances
}
