package schematic

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
)

// NotFoundError reports a lib_id that no embedded symbol or library file
// defines.
type NotFoundError struct {
	LibID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not found in embedded symbols or library paths", e.LibID)
}

// Repository resolves lib_ids to symbol definitions. It is created for one
// synchronization run and discarded afterwards; nothing is cached across
// runs.
type Repository struct {
	paths   []string
	symbols map[string]*LibSymbol                 // full lib_id -> definition
	libs    map[string]map[string]*kicadsexp.List // nickname -> symbol name -> node
}

// NewRepository creates a repository searching .kicad_sym files under
// paths.
func NewRepository(paths ...string) *Repository {
	return &Repository{
		paths:   paths,
		symbols: make(map[string]*LibSymbol),
		libs:    make(map[string]map[string]*kicadsexp.List),
	}
}

// AddEmbedded registers every lib symbol embedded in sch. Symbols already
// known keep their first definition.
func (r *Repository) AddEmbedded(sch *Schematic) {
	for _, ls := range sch.LibSymbols {
		if _, ok := r.symbols[ls.Name]; !ok {
			r.symbols[ls.Name] = ls
		}
	}
}

// Add registers a definition under its name.
func (r *Repository) Add(ls *LibSymbol) {
	r.symbols[ls.Name] = ls
}

// Lookup returns the definition of libID, from embedded symbols first and
// then from <nickname>.kicad_sym files found under the search paths.
func (r *Repository) Lookup(libID string) (*LibSymbol, error) {
	if ls, ok := r.symbols[libID]; ok {
		return ls, nil
	}

	nick, name, ok := strings.Cut(libID, ":")
	if !ok {
		return nil, &NotFoundError{LibID: libID}
	}
	lib, err := r.library(nick)
	if err != nil {
		return nil, err
	}
	node, ok := lib[name]
	if !ok {
		return nil, &NotFoundError{LibID: libID}
	}

	resolved := node.CloneFresh()
	if ext, ok := sexp.FindNode(node, "extends"); ok {
		parentName, _ := sexp.GetString(ext, 1)
		parent, ok := lib[parentName]
		if !ok {
			return nil, fmt.Errorf("symbol %s extends unknown symbol %s", libID, parentName)
		}
		resolved = flattenExtends(parent, node, name, parentName)
	}
	sexp.SetString(resolved, 1, libID)

	ls := parseLibSymbol(resolved)
	r.symbols[libID] = ls
	return ls, nil
}

// Resolve returns the definition of libID, or a generic rectangular symbol
// with the given pins when no library defines it. The generated symbol is
// registered so every component using libID shares it.
func (r *Repository) Resolve(libID string, pins []model.Pin) (*LibSymbol, bool) {
	if ls, err := r.Lookup(libID); err == nil {
		return ls, true
	}
	ls := Synthesize(libID, pins)
	r.symbols[libID] = ls
	return ls, false
}

// library loads and indexes <nick>.kicad_sym from the search paths.
func (r *Repository) library(nick string) (map[string]*kicadsexp.List, error) {
	if lib, ok := r.libs[nick]; ok {
		return lib, nil
	}

	lib := map[string]*kicadsexp.List{}
	r.libs[nick] = lib

	for _, dir := range r.paths {
		matches, err := doublestar.FilepathGlob(filepath.Join(filepath.ToSlash(dir), "**", nick+".kicad_sym"))
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", dir, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			tree, err := kicadsexp.ParseFile(path)
			if err != nil {
				return nil, fmt.Errorf("load symbol library: %w", err)
			}
			root := tree.Root()
			if root == nil || root.Name() != "kicad_symbol_lib" {
				return nil, fmt.Errorf("%s: not a KiCad symbol library", path)
			}
			for _, sym := range root.FindAll("symbol") {
				name, _ := sexp.GetString(sym, 1)
				if _, dup := lib[name]; !dup {
					lib[name] = sym
				}
			}
		}
		if len(lib) > 0 {
			break
		}
	}
	return lib, nil
}

// flattenExtends merges a derived symbol into a copy of its parent: the
// child's properties replace the parent's and unit names are renamed.
func flattenExtends(parent, child *kicadsexp.List, childName, parentName string) *kicadsexp.List {
	out := kicadsexp.NewList("symbol", kicadsexp.Str(childName))
	var units []kicadsexp.Sexp

	for _, item := range parent.Items()[2:] {
		l, ok := item.(*kicadsexp.List)
		if !ok {
			continue
		}
		switch l.Name() {
		case "property":
		case "symbol":
			u := l.CloneFresh()
			unitName, _ := sexp.GetString(u, 1)
			sexp.SetString(u, 1, childName+strings.TrimPrefix(unitName, parentName))
			units = append(units, u)
		default:
			out.Append(l.CloneFresh())
		}
	}
	for _, p := range child.FindAll("property") {
		out.Append(p.CloneFresh())
	}
	out.Append(units...)
	return out
}

var pinTypes = map[string]bool{
	"input": true, "output": true, "bidirectional": true, "tri_state": true,
	"passive": true, "free": true, "unspecified": true, "power_in": true,
	"power_out": true, "open_collector": true, "open_emitter": true, "no_connect": true,
}

// synthetic symbol dimensions
const (
	synthPinLength = 2.54
	synthPitch     = 2.54
	synthHalfWidth = 5.08
)

// Synthesize builds a rectangular symbol for libID. Pins that carry an
// offset keep it; otherwise the first half of the pins goes down the left
// edge and the rest down the right edge.
func Synthesize(libID string, pins []model.Pin) *LibSymbol {
	_, name, ok := strings.Cut(libID, ":")
	if !ok {
		name = libID
	}

	placed := make([]Pin, len(pins))
	explicit := false
	for _, p := range pins {
		if p.Offset != (model.Point{}) {
			explicit = true
		}
	}

	left := (len(pins) + 1) / 2
	rows := left
	if rows < 1 {
		rows = 1
	}
	halfH := float64(rows+1) * synthPitch / 2
	top := float64(rows-1) * synthPitch / 2

	for i, p := range pins {
		pin := Pin{
			Type:   "passive",
			Style:  "line",
			Length: synthPinLength,
			Name:   p.Name,
			Number: p.Number,
			Unit:   1,
		}
		if pinTypes[p.Direction] {
			pin.Type = p.Direction
		}
		if pin.Name == "" {
			pin.Name = "~"
		}
		switch {
		case explicit:
			pin.Position = Position{X: p.Offset.X, Y: p.Offset.Y}
			pin.Angle = p.Angle
		case i < left:
			pin.Position = Position{X: -(synthHalfWidth + synthPinLength), Y: top - float64(i)*synthPitch}
			pin.Angle = 0
		default:
			pin.Position = Position{X: synthHalfWidth + synthPinLength, Y: top - float64(i-left)*synthPitch}
			pin.Angle = 180
		}
		placed[i] = pin
	}

	if explicit {
		halfH = synthPitch
		for _, p := range placed {
			halfH = math.Max(halfH, math.Abs(p.Position.Y)+synthPitch/2)
		}
	}

	return parseLibSymbol(buildLibSymbol(libID, name, placed, synthHalfWidth, halfH))
}

func buildLibSymbol(libID, name string, pins []Pin, halfW, halfH float64) *kicadsexp.List {
	body := kicadsexp.NewList("symbol", kicadsexp.Str(name+"_0_1"),
		kicadsexp.NewList("rectangle",
			kicadsexp.Pair("start", -halfW, halfH),
			kicadsexp.Pair("end", halfW, -halfH),
			kicadsexp.NewList("stroke",
				kicadsexp.NewList("width", kicadsexp.Num(0.254)),
				kicadsexp.NewList("type", kicadsexp.Sym("default"))),
			kicadsexp.NewList("fill", kicadsexp.NewList("type", kicadsexp.Sym("background")))))

	unit := kicadsexp.NewList("symbol", kicadsexp.Str(name+"_1_1"))
	for _, p := range pins {
		unit.Append(kicadsexp.NewList("pin", kicadsexp.Sym(p.Type), kicadsexp.Sym(p.Style),
			kicadsexp.At(p.Position.X, p.Position.Y, p.Angle),
			kicadsexp.NewList("length", kicadsexp.Num(p.Length)),
			kicadsexp.NewList("name", kicadsexp.Str(p.Name), effectsNode(false)),
			kicadsexp.NewList("number", kicadsexp.Str(p.Number), effectsNode(false))))
	}

	return kicadsexp.NewList("symbol", kicadsexp.Str(libID),
		kicadsexp.NewList("pin_names", kicadsexp.NewList("offset", kicadsexp.Num(1.016))),
		kicadsexp.NewList("exclude_from_sim", kicadsexp.Bool(false)),
		kicadsexp.NewList("in_bom", kicadsexp.Bool(true)),
		kicadsexp.NewList("on_board", kicadsexp.Bool(true)),
		PropertyNode("Reference", "U", Position{Y: halfH + DefaultFontSize}, 0, false),
		PropertyNode("Value", name, Position{Y: -(halfH + DefaultFontSize)}, 0, false),
		PropertyNode("Footprint", "", Position{}, 0, true),
		PropertyNode("Datasheet", "~", Position{}, 0, true),
		PropertyNode("Description", "", Position{}, 0, true),
		body,
		unit,
	)
}
