package schematic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Instance is one occurrence of a file in the design hierarchy.
type Instance struct {
	Path string            // "/<root uuid>/<sheet uuid>..."
	Refs map[string]string // document ref -> ref in this occurrence; missing means the same
}

// Ref returns the designator ref carries in this occurrence.
func (i Instance) Ref(ref string) string {
	if r, ok := i.Refs[ref]; ok {
		return r
	}
	return ref
}

// UnprojectOptions configures Unproject.
type UnprojectOptions struct {
	Project string
	// Instances lists every occurrence of the file. The first one is the
	// occurrence whose references the document uses.
	Instances []Instance
	// NewUUID returns the identifier of a new element. It must be
	// deterministic in key.
	NewUUID func(key string) string
	// HierNets names the nets that leave the file through a parent sheet
	// pin; they get hierarchical labels.
	HierNets map[string]bool
	// Page returns the page number of a new sheet in the parent occurrence
	// at path.
	Page func(path, sheet string) string
}

// Stats counts what Unproject changed.
type Stats struct {
	Added         int // components
	Removed       int
	Updated       int
	Renamed       int
	SheetsAdded   int
	SheetsRemoved int
	LabelsAdded   int
	LabelsRemoved int
	LabelsUpdated int
}

// Changed reports whether anything was edited.
func (s Stats) Changed() bool {
	return s != Stats{}
}

// kicadOrder is the order KiCad writes top-level schematic elements in.
var kicadOrder = []string{
	"version", "generator", "generator_version", "uuid", "paper", "title_block",
	"lib_symbols", "junction", "no_connect", "bus_entry", "wire", "bus",
	"image", "polyline", "text", "text_box", "label", "global_label",
	"hierarchical_label", "netclass_flag", "symbol", "sheet",
}

// insertOrdered puts node after its kin, or after the last element KiCad
// writes before its kind.
func insertOrdered(root, node *kicadsexp.List) {
	var before []string
	for _, name := range kicadOrder {
		if name == node.Name() {
			break
		}
		before = append(before, name)
	}
	sexp.InsertGrouped(root, node, before...)
}

type unprojector struct {
	doc   *model.Document
	sch   *Schematic
	repo  *Repository
	opts  UnprojectOptions
	stats Stats
}

// Unproject edits sch in place so that it projects to doc. Only fields that
// differ are touched; every other node keeps its original text. Symbols and
// sheets missing from doc are removed with the labels they own, new ones are
// built with their lib symbols embedded, and owned labels are created,
// retexted, moved or removed to match the nets.
func Unproject(doc *model.Document, sch *Schematic, repo *Repository, opts UnprojectOptions) (Stats, error) {
	if len(opts.Instances) == 0 {
		opts.Instances = []Instance{{}}
	}
	if opts.NewUUID == nil {
		return Stats{}, fmt.Errorf("unproject: NewUUID is required")
	}
	repo.AddEmbedded(sch)

	u := &unprojector{doc: doc, sch: sch, repo: repo, opts: opts}
	u.metadata()
	if err := u.components(); err != nil {
		return u.stats, err
	}
	if err := u.sheets(); err != nil {
		return u.stats, err
	}
	if err := sch.Reindex(); err != nil {
		return u.stats, err
	}
	if err := u.labels(); err != nil {
		return u.stats, err
	}
	if err := u.libSymbols(); err != nil {
		return u.stats, err
	}
	return u.stats, sch.Reindex()
}

func (u *unprojector) primary() string { return u.opts.Instances[0].Path }

func (u *unprojector) metadata() {
	root := u.sch.Root
	md := u.doc.Metadata
	if md.Paper != "" && md.Paper != u.sch.Paper {
		if n, ok := sexp.FindNode(root, "paper"); ok {
			sexp.SetString(n, 1, md.Paper)
		} else {
			insertOrdered(root, kicadsexp.NewList("paper", kicadsexp.Str(md.Paper)))
		}
	}
	if md.Title != "" && md.Title != u.sch.TitleBlock.Title {
		tb, ok := sexp.FindNode(root, "title_block")
		if !ok {
			tb = kicadsexp.NewList("title_block")
			insertOrdered(root, tb)
		}
		if n, ok := sexp.FindNode(tb, "title"); ok {
			sexp.SetString(n, 1, md.Title)
		} else {
			tb.Append(kicadsexp.NewList("title", kicadsexp.Str(md.Title)))
		}
	}
}

// groups returns the baseline symbols by reference, units in file order.
func (u *unprojector) groups() (map[string][]*Symbol, map[UUID]string) {
	groups := map[string][]*Symbol{}
	byUUID := map[UUID]string{}
	for _, sym := range u.sch.Symbols {
		ref := sym.ReferenceFor(u.primary())
		if ref == "" || strings.HasPrefix(ref, "#") {
			continue
		}
		groups[ref] = append(groups[ref], sym)
		byUUID[sym.UUID] = ref
	}
	for _, syms := range groups {
		sort.SliceStable(syms, func(i, j int) bool { return syms[i].Unit < syms[j].Unit })
	}
	return groups, byUUID
}

// matchComponents pairs document refs with baseline refs: same ref first,
// then same UUID for refs changed outside the file.
func (u *unprojector) matchComponents(groups map[string][]*Symbol, byUUID map[UUID]string) map[string]string {
	matched := map[string]string{}
	taken := map[string]bool{}
	for _, ref := range u.doc.Refs() {
		if _, ok := groups[ref]; ok {
			matched[ref] = ref
			taken[ref] = true
		}
	}
	for _, ref := range u.doc.Refs() {
		if _, ok := matched[ref]; ok {
			continue
		}
		id := u.doc.Components[ref].UUID
		old, ok := byUUID[UUID(id)]
		if id == "" || !ok || taken[old] {
			continue
		}
		if _, declared := u.doc.Components[old]; declared {
			continue
		}
		matched[ref] = old
		taken[old] = true
	}
	return matched
}

func (u *unprojector) components() error {
	groups, byUUID := u.groups()
	matched := u.matchComponents(groups, byUUID)

	taken := map[string]bool{}
	for _, old := range matched {
		taken[old] = true
	}
	for _, ref := range sortedKeys(groups) {
		if taken[ref] {
			continue
		}
		for _, sym := range groups[ref] {
			u.sch.Root.Remove(sym.Node)
		}
		u.stats.Removed++
	}

	for _, ref := range u.doc.Refs() {
		c := u.doc.Components[ref]
		if old, ok := matched[ref]; ok {
			if u.updateComponent(ref, old, c, groups[old]) {
				u.stats.Updated++
			}
			continue
		}
		if err := u.addComponent(ref, c); err != nil {
			return err
		}
		u.stats.Added++
	}
	return nil
}

func (u *unprojector) updateComponent(ref, old string, c *model.Component, syms []*Symbol) bool {
	changed := false
	if ref != old {
		u.stats.Renamed++
		changed = true
	}

	first := syms[0]
	var delta Position
	moved := false
	if c.Position != nil {
		target := Position{X: c.Position.X, Y: c.Position.Y}
		if !target.Near(first.Position, 1e-6) || sexp.NormalizeAngle(c.Position.Rot) != sexp.NormalizeAngle(first.Angle) {
			delta = target.Sub(first.Position)
			moved = true
		}
	}

	for _, sym := range syms {
		n := sym.Node
		if sym.LibID != c.Symbol && c.Symbol != "" {
			if lib, ok := sexp.FindNode(n, "lib_id"); ok {
				changed = sexp.SetString(lib, 1, c.Symbol) || changed
			}
		}
		changed = setField(n, "Reference", ref, sym.Position, false) || changed
		changed = setField(n, "Value", c.Value, sym.Position, false) || changed
		if c.Footprint != "" {
			changed = setField(n, "Footprint", c.Footprint, sym.Position, true) || changed
		} else if _, ok := sexp.FindProperty(n, "Footprint"); ok {
			changed = setField(n, "Footprint", "", sym.Position, true) || changed
		}
		for _, k := range sortedKeys(c.Properties) {
			changed = setField(n, k, c.Properties[k], sym.Position, true) || changed
		}

		if moved {
			if at, ok := sexp.FindNode(n, "at"); ok {
				p := sym.Position.Add(delta)
				changed = sexp.SetPosition(at, p.X, p.Y, c.Position.Rot) || changed
			}
			if delta != (Position{}) {
				for _, pn := range n.FindAll("property") {
					if at, ok := sexp.FindNode(pn, "at"); ok {
						sexp.TranslatePosition(at, delta)
					}
				}
			}
		}

		changed = u.syncInstances(n, sym.UUID, ref, sym.Unit, c) || changed
	}
	return changed
}

// setField sets or adds a symbol property. New custom fields are hidden.
func setField(n *kicadsexp.List, key, value string, at Position, hide bool) bool {
	changed, found := sexp.SetPropertyValue(n, key, value)
	if found {
		return changed
	}
	prop := PropertyNode(key, value, at, 0, hide)
	if last := sexp.LastNode(n, "property"); last != nil {
		n.InsertAfter(last, prop)
	} else {
		n.Append(prop)
	}
	return true
}

// syncInstances makes the symbol's instances block list every occurrence
// with its designator. Entries of other projects are left alone.
func (u *unprojector) syncInstances(n *kicadsexp.List, id UUID, ref string, unit int, c *model.Component) bool {
	if legacy := u.legacyInstances(); legacy != nil {
		return u.syncLegacy(legacy, id, ref, unit, c)
	}
	changed := false
	instances, ok := sexp.FindNode(n, "instances")
	if !ok {
		instances = kicadsexp.NewList("instances")
		n.Append(instances)
		changed = true
	}
	var project *kicadsexp.List
	for _, p := range instances.FindAll("project") {
		if name, _ := sexp.GetString(p, 1); name == u.opts.Project {
			project = p
		}
	}
	if project == nil {
		project = kicadsexp.NewList("project", kicadsexp.Str(u.opts.Project))
		instances.Append(project)
		changed = true
	}

	for _, inst := range u.opts.Instances {
		want := inst.Ref(ref)
		var path *kicadsexp.List
		for _, p := range project.FindAll("path") {
			if s, _ := sexp.GetString(p, 1); s == inst.Path {
				path = p
			}
		}
		if path == nil {
			project.Append(instancePathNode(SymbolInstance{Path: inst.Path, Reference: want, Unit: unit}))
			changed = true
			continue
		}
		if r, ok := sexp.FindNode(path, "reference"); ok {
			changed = sexp.SetString(r, 1, want) || changed
		}
	}
	return changed
}

// legacyInstances returns the top-level symbol_instances block of a KiCad 6
// file. Such files keep designators there instead of inside each symbol.
func (u *unprojector) legacyInstances() *kicadsexp.List {
	n, _ := sexp.FindNode(u.sch.Root, "symbol_instances")
	return n
}

// legacyPath converts an instance path to the KiCad 6 form, which omits the
// root sheet and ends with the symbol UUID.
func (u *unprojector) legacyPath(path string, id UUID) string {
	return strings.TrimPrefix(path, "/"+string(u.sch.UUID)) + "/" + string(id)
}

func (u *unprojector) syncLegacy(legacy *kicadsexp.List, id UUID, ref string, unit int, c *model.Component) bool {
	changed := false
	for _, inst := range u.opts.Instances {
		want := inst.Ref(ref)
		lp := u.legacyPath(inst.Path, id)
		var path *kicadsexp.List
		for _, p := range legacy.FindAll("path") {
			if s, _ := sexp.GetString(p, 1); s == lp {
				path = p
			}
		}
		if path == nil {
			legacy.Append(kicadsexp.NewList("path", kicadsexp.Str(lp),
				kicadsexp.NewList("reference", kicadsexp.Str(want)),
				kicadsexp.NewList("unit", kicadsexp.Int(unit)),
				kicadsexp.NewList("value", kicadsexp.Str(c.Value)),
				kicadsexp.NewList("footprint", kicadsexp.Str(c.Footprint))))
			changed = true
			continue
		}
		if r, ok := sexp.FindNode(path, "reference"); ok {
			changed = sexp.SetString(r, 1, want) || changed
		}
		if v, ok := sexp.FindNode(path, "value"); ok {
			changed = sexp.SetString(v, 1, c.Value) || changed
		}
		if f, ok := sexp.FindNode(path, "footprint"); ok {
			changed = sexp.SetString(f, 1, c.Footprint) || changed
		}
	}
	return changed
}

func (u *unprojector) addComponent(ref string, c *model.Component) error {
	lib, _ := u.repo.Resolve(c.Symbol, c.Pins)
	pos := Position{}
	rot := 0.0
	if c.Position != nil {
		pos = Position{X: c.Position.X, Y: c.Position.Y}
		rot = c.Position.Rot
	}

	pl := LayoutPart(lib, rot)
	for i := range pl.Offsets {
		unit := i + 1
		anchor := pos.Add(pl.Offsets[i])
		refAt, valueAt := FieldOffsets(pl.Boxes[i])
		id := u.opts.NewUUID(fmt.Sprintf("symbol/%s/%d", ref, unit))
		if unit == 1 && c.UUID != "" && u.sch.SymbolByUUID(UUID(c.UUID)) == nil {
			id = c.UUID
		}

		spec := SymbolSpec{
			LibID:      c.Symbol,
			Position:   anchor,
			Angle:      rot,
			Unit:       unit,
			UUID:       id,
			Reference:  ref,
			Value:      c.Value,
			Footprint:  c.Footprint,
			RefAt:      anchor.Add(refAt),
			ValueAt:    anchor.Add(valueAt),
			Properties: c.Properties,
		}
		seen := map[string]bool{}
		for _, p := range lib.Pins {
			if !inUnit(p.Unit, unit) || seen[p.Number] {
				continue
			}
			seen[p.Number] = true
			spec.Pins = append(spec.Pins, PinRef{Number: p.Number, UUID: UUID(u.opts.NewUUID("pin/" + id + "/" + p.Number))})
		}
		legacy := u.legacyInstances()
		for _, inst := range u.opts.Instances {
			if legacy != nil {
				break
			}
			spec.Instances = append(spec.Instances, SymbolInstance{
				Project:   u.opts.Project,
				Path:      inst.Path,
				Reference: inst.Ref(ref),
				Unit:      unit,
			})
		}
		insertOrdered(u.sch.Root, BuildSymbol(spec))
		if legacy != nil {
			u.syncLegacy(legacy, UUID(id), ref, unit, c)
		}
	}
	return nil
}

func (u *unprojector) sheets() error {
	byName := map[string]*Sheet{}
	byUUID := map[UUID]*Sheet{}
	for _, sh := range u.sch.Sheets {
		byName[sh.Name] = sh
		byUUID[sh.UUID] = sh
	}

	kept := map[*Sheet]bool{}
	var added []string
	for _, name := range u.doc.SheetNames() {
		s := u.doc.Sheets[name]
		sh, ok := byName[name]
		if !ok && s.UUID != "" {
			if cand, found := byUUID[UUID(s.UUID)]; found {
				if _, declared := u.doc.Sheets[cand.Name]; !declared {
					sh, ok = cand, true
				}
			}
		}
		if !ok || kept[sh] {
			added = append(added, name)
			continue
		}
		kept[sh] = true
		u.updateSheet(name, s, sh)
	}

	for _, sh := range u.sch.Sheets {
		if !kept[sh] {
			u.sch.Root.Remove(sh.Node)
			u.stats.SheetsRemoved++
		}
	}
	for _, name := range added {
		u.addSheet(name, u.doc.Sheets[name])
		u.stats.SheetsAdded++
	}
	return nil
}

func (u *unprojector) updateSheet(name string, s *model.Sheet, sh *Sheet) {
	n := sh.Node
	if name != sh.Name {
		if _, ok := sexp.SetPropertyValue(n, "Sheetname", name); !ok {
			sexp.SetPropertyValue(n, "Sheet name", name)
		}
	}
	if s.File != sh.FileName {
		if _, ok := sexp.SetPropertyValue(n, "Sheetfile", s.File); !ok {
			sexp.SetPropertyValue(n, "Sheet file", s.File)
		}
	}

	var delta Position
	if s.Position != nil {
		target := Position{X: s.Position.X, Y: s.Position.Y}
		if !target.Near(sh.Position, 1e-6) {
			delta = target.Sub(sh.Position)
			if at, ok := sexp.FindNode(n, "at"); ok {
				sexp.TranslatePosition(at, delta)
			}
			for _, pn := range n.FindAll("property") {
				if at, ok := sexp.FindNode(pn, "at"); ok {
					sexp.TranslatePosition(at, delta)
				}
			}
		}
	}
	size := sh.Size
	if s.Size != nil && (s.Size.Width != size.Width || s.Size.Height != size.Height) {
		if sz, ok := sexp.FindNode(n, "size"); ok {
			sexp.SetFloat(sz, 1, s.Size.Width)
			sexp.SetFloat(sz, 2, s.Size.Height)
		}
		size = Size{Width: s.Size.Width, Height: s.Size.Height}
	}

	corner := sh.Position.Add(delta)
	occupied := map[string]bool{}
	declared := map[string]string{}
	for _, p := range s.Pins {
		declared[p.Name] = p.Direction
	}
	for _, pin := range sh.Pins {
		dir, ok := declared[pin.Name]
		if !ok {
			n.Remove(pin.Node)
			continue
		}
		side := SheetPinOrientation(sh, pin)
		p := pin.Position.Add(delta)
		if side == placement.Right {
			p.X = corner.X + size.Width
		}
		if at, ok := sexp.FindNode(pin.Node, "at"); ok {
			sexp.SetPosition(at, p.X, p.Y, side.Angle())
		}
		if dir != "" && dir != pin.Shape {
			sexp.SetString(pin.Node, 2, dir)
		}
		occupied[pointKey(p)] = true
		delete(declared, pin.Name)
	}

	for _, p := range s.Pins {
		if _, missing := declared[p.Name]; !missing {
			continue
		}
		side := SheetPinSide(p.Direction)
		pos := corner.Add(SheetPinOffset(side, 0, size))
		for i := 1; occupied[pointKey(pos)]; i++ {
			pos = corner.Add(SheetPinOffset(side, i, size))
		}
		occupied[pointKey(pos)] = true
		pin := BuildSheetPin(SheetPinSpec{
			Name:        p.Name,
			Shape:       ShapeForDirection(p.Direction),
			Position:    pos,
			Orientation: side,
			UUID:        u.opts.NewUUID("sheetpin/" + string(sh.UUID) + "/" + p.Name),
		})
		if last := sexp.LastNode(n, "pin"); last != nil {
			n.InsertAfter(last, pin)
		} else if last := sexp.LastNode(n, "property"); last != nil {
			n.InsertAfter(last, pin)
		} else {
			n.Append(pin)
		}
	}
}

func (u *unprojector) addSheet(name string, s *model.Sheet) {
	size := SheetSize(s, placementMetrics)
	if s.Size != nil {
		size = Size{Width: s.Size.Width, Height: s.Size.Height}
	}
	pos := Position{}
	if s.Position != nil {
		pos = Position{X: s.Position.X, Y: s.Position.Y}
	}
	id := s.UUID
	if id == "" || u.sheetUUIDTaken(id) {
		id = u.opts.NewUUID("sheet/" + name)
	}

	spec := SheetSpec{Name: name, File: s.File, Position: pos, Size: size, UUID: id, Project: u.opts.Project}
	counts := map[placement.Orientation]int{}
	for _, p := range s.Pins {
		side := SheetPinSide(p.Direction)
		spec.Pins = append(spec.Pins, SheetPinSpec{
			Name:        p.Name,
			Shape:       ShapeForDirection(p.Direction),
			Position:    pos.Add(SheetPinOffset(side, counts[side], size)),
			Orientation: side,
			UUID:        u.opts.NewUUID("sheetpin/" + id + "/" + p.Name),
		})
		counts[side]++
	}
	for i, inst := range u.opts.Instances {
		page := ""
		if u.opts.Page != nil {
			page = u.opts.Page(inst.Path, name)
		}
		if page == "" {
			page = strconv.Itoa(len(u.sch.Sheets) + i + 2)
		}
		spec.Instances = append(spec.Instances, SheetInstance{Path: inst.Path, Page: page})
	}
	insertOrdered(u.sch.Root, BuildSheet(spec))
}

func (u *unprojector) sheetUUIDTaken(id string) bool {
	for _, sh := range u.sch.Sheets {
		if string(sh.UUID) == id {
			return u.doc.Sheets[sh.Name] != nil
		}
	}
	return false
}

// placementMetrics sizes new sheets; it matches the placement defaults.
var placementMetrics = placement.DefaultMetrics()

// desiredLabel is the owned label one pin should carry.
type desiredLabel struct {
	owner       string
	member      string
	text        string
	kind        placement.LabelKind
	shape       string
	position    Position
	orientation placement.Orientation
}

func (u *unprojector) netKind(name string) placement.LabelKind {
	switch {
	case u.doc.IsGlobal(name):
		return placement.Global
	case u.opts.HierNets[name]:
		return placement.Hierarchical
	}
	return placement.Local
}

// desired computes the owned label of every net member, keyed by owner.
func (u *unprojector) desired() (map[string]desiredLabel, error) {
	groups, _ := u.groups()
	out := map[string]desiredLabel{}

	for _, name := range u.doc.NetNames() {
		kind := u.netKind(name)
		for _, entry := range u.doc.Nets[name] {
			m, err := model.ParseMember(entry)
			if err != nil {
				return nil, err
			}
			d := desiredLabel{member: entry, text: name, kind: kind}

			if syms, ok := groups[m.Ref]; ok {
				lib, err := u.repo.Lookup(syms[0].LibID)
				if err != nil {
					continue
				}
				var owner *Symbol
				var pin Pin
				for _, sym := range syms {
					if p, found := FindPin(lib, m.Pin, sym.Unit); found {
						owner, pin = sym, p
						break
					}
				}
				if owner == nil {
					continue
				}
				d.owner = string(owner.UUID) + ":" + m.Pin
				d.shape = ShapeForDirection(pin.Type)
				d.position = PinPoint(owner, pin)
				d.orientation = PinOrientation(pin, owner.Angle, owner.Mirror)
			} else if sh := u.sch.SheetByName(m.Ref); sh != nil {
				found := false
				for _, sp := range sh.Pins {
					if sp.Name != m.Pin {
						continue
					}
					d.owner = string(sh.UUID) + ":" + m.Pin
					d.shape = sp.Shape
					d.position = sp.Position
					d.orientation = SheetPinOrientation(sh, sp)
					found = true
					break
				}
				if !found {
					continue
				}
			} else {
				continue
			}
			if _, dup := out[d.owner]; dup {
				continue
			}
			out[d.owner] = d
		}
	}
	return out, nil
}

func (u *unprojector) labels() error {
	want, err := u.desired()
	if err != nil {
		return err
	}

	drawn := map[string]string{} // member -> net the user wired it to
	for _, n := range connect(u.sch, u.repo, u.primary(), true) {
		for _, m := range n.Members {
			drawn[m] = n.Name
		}
	}

	done := map[string]bool{}
	for _, l := range u.sch.Labels {
		if l.Owner == "" {
			continue
		}
		d, ok := want[l.Owner]
		if !ok || done[l.Owner] {
			u.sch.Root.Remove(l.Node)
			u.stats.LabelsRemoved++
			continue
		}
		done[l.Owner] = true

		if d.kind != l.Kind {
			node := BuildLabel(LabelSpec{
				Kind: d.kind, Text: d.text, Shape: d.shape, Position: d.position,
				Orientation: d.orientation, UUID: string(l.UUID), Owner: l.Owner,
			})
			u.sch.Root.Remove(l.Node)
			insertOrdered(u.sch.Root, node)
			u.stats.LabelsUpdated++
			continue
		}

		changed := sexp.SetString(l.Node, 1, d.text)
		angle := d.orientation.Angle()
		if !d.position.Near(l.Position, 1e-6) || sexp.NormalizeAngle(l.Angle) != angle {
			if at, ok := sexp.FindNode(l.Node, "at"); ok {
				sexp.SetPosition(at, d.position.X, d.position.Y, angle)
			}
			if pn, ok := sexp.FindProperty(l.Node, OwnerProperty); ok {
				if at, ok := sexp.FindNode(pn, "at"); ok {
					sexp.SetPosition(at, d.position.X, d.position.Y, angle)
				}
			}
			if eff, ok := sexp.FindNode(l.Node, "effects"); ok {
				if j, ok := sexp.FindNode(eff, "justify"); ok {
					sexp.SetString(j, 1, labelJustify(d.orientation))
				}
			}
			changed = true
		}
		if changed {
			u.stats.LabelsUpdated++
		}
	}

	owners := make([]string, 0, len(want))
	for owner := range want {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		d := want[owner]
		if done[owner] || drawn[d.member] == d.text {
			continue
		}
		insertOrdered(u.sch.Root, BuildLabel(LabelSpec{
			Kind: d.kind, Text: d.text, Shape: d.shape, Position: d.position,
			Orientation: d.orientation, UUID: u.opts.NewUUID("label/" + owner), Owner: owner,
		}))
		u.stats.LabelsAdded++
	}
	return nil
}

// libSymbols embeds the definition of every lib_id in use and drops the
// ones nothing uses any more. Entries stay sorted by name.
func (u *unprojector) libSymbols() error {
	if err := u.sch.Reindex(); err != nil {
		return err
	}
	root := u.sch.Root
	libs, ok := sexp.FindNode(root, "lib_symbols")
	if !ok {
		libs = kicadsexp.NewList("lib_symbols")
		insertOrdered(root, libs)
	}

	used := map[string]bool{}
	for _, sym := range u.sch.Symbols {
		used[sym.LibID] = true
	}
	have := map[string]bool{}
	for _, n := range libs.FindAll("symbol") {
		name, _ := sexp.GetString(n, 1)
		if !used[name] {
			libs.Remove(n)
			continue
		}
		have[name] = true
	}

	pins := map[string][]model.Pin{}
	for _, c := range u.doc.Components {
		if len(c.Pins) > 0 {
			pins[c.Symbol] = c.Pins
		}
	}
	for _, name := range sortedKeys(used) {
		if have[name] {
			continue
		}
		lib, _ := u.repo.Resolve(name, pins[name])
		node := lib.Node.CloneFresh()
		sexp.SetString(node, 1, name)
		insertSorted(libs, node, name)
	}
	return nil
}

func insertSorted(libs, node *kicadsexp.List, name string) {
	var after kicadsexp.Sexp = libs.Get(0)
	for _, n := range libs.FindAll("symbol") {
		if other, _ := sexp.GetString(n, 1); other < name {
			after = n
		}
	}
	libs.InsertAfter(after, node)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
