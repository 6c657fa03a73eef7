package synchronizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

const (
	componentPrefix = "component/"
	sheetPrefix     = "sheet/"
	obstaclePrefix  = "obstacle/"
)

// layout collects the placement units of one file.
type layout struct {
	units   []*placement.Unit
	pending int
}

func (l *layout) add(u *placement.Unit) {
	l.units = append(l.units, u)
	if !u.Placed {
		l.pending++
	}
}

// obstacle is a fixed unit covering box.
func obstacle(id string, box sexp.BoundingBox, m placement.Metrics) *placement.Unit {
	body := box.Translate(sexp.Position{X: -box.Min.X, Y: -box.Min.Y})
	u := placement.NewComponentUnit(id, box.Min, body, nil, m)
	u.Placed = true
	return u
}

// symbolGroups returns the symbols of sch by reference at path, and the
// power and other hidden-reference symbols separately.
func symbolGroups(sch *schematic.Schematic, path string) (map[string][]*schematic.Symbol, []*schematic.Symbol) {
	groups := map[string][]*schematic.Symbol{}
	var hidden []*schematic.Symbol
	for _, sym := range sch.Symbols {
		ref := sym.ReferenceFor(path)
		if ref == "" || strings.HasPrefix(ref, "#") {
			hidden = append(hidden, sym)
			continue
		}
		groups[ref] = append(groups[ref], sym)
	}
	return groups, hidden
}

// netLabels returns the label each pin of ref gets.
func netLabels(doc *model.Document, ref string, hierNets map[string]bool) map[string]schematic.NetLabel {
	out := map[string]schematic.NetLabel{}
	for _, name := range doc.NetNames() {
		kind := placement.Local
		switch {
		case doc.IsGlobal(name):
			kind = placement.Global
		case hierNets[name]:
			kind = placement.Hierarchical
		}
		for _, entry := range doc.Nets[name] {
			m, err := model.ParseMember(entry)
			if err != nil || m.Ref != ref {
				continue
			}
			if _, dup := out[m.Pin]; !dup {
				out[m.Pin] = schematic.NetLabel{Text: name, Kind: kind}
			}
		}
	}
	return out
}

// buildLayout returns the units of a file: everything already drawn in
// sch (nil for a new file) is fixed, components and sheets of doc without
// a position are pending. matched maps doc refs to baseline refs.
func buildLayout(sch *schematic.Schematic, path string, doc *model.Document, matched map[string]string,
	repo *schematic.Repository, hierNets map[string]bool, m placement.Metrics) *layout {
	l := &layout{}
	drawnSheets := map[string]bool{}

	if sch != nil {
		groups, hidden := symbolGroups(sch, path)
		owned := map[schematic.UUID][]*schematic.Label{}
		n := 0
		for _, lb := range sch.Labels {
			if id, _, ok := lb.OwnerParts(); ok {
				owned[id] = append(owned[id], lb)
				continue
			}
			pl := placement.Label{
				Text:        lb.Text,
				Anchor:      lb.Position,
				Orientation: placement.OrientationFromAngle(lb.Angle),
				Kind:        lb.Kind,
			}
			l.add(obstacle(obstaclePrefix+"label/"+strconv.Itoa(n), pl.Box(m), m))
			n++
		}

		for _, ref := range doc.Refs() {
			old, ok := matched[ref]
			if !ok {
				continue
			}
			syms := groups[old]
			if len(syms) == 0 {
				continue
			}
			lib, err := repo.Lookup(syms[0].LibID)
			if err != nil {
				lib = nil
			}
			var labels []*schematic.Label
			for _, s := range syms {
				labels = append(labels, owned[s.UUID]...)
			}
			l.add(schematic.ExistingUnit(componentPrefix+ref, syms, lib, labels, m))
		}

		for i, sym := range hidden {
			box := sexp.NewBoundingBox()
			if lib, err := repo.Lookup(sym.LibID); err == nil {
				box = schematic.SymbolBox(sym, lib, m)
			} else {
				box.Expand(sym.Position)
			}
			l.add(obstacle(obstaclePrefix+"symbol/"+strconv.Itoa(i), box, m))
		}

		for i, w := range sch.Wires {
			box := sexp.NewBoundingBox()
			for _, p := range w.Points {
				box.Expand(p)
			}
			if box.IsEmpty() {
				continue
			}
			l.add(obstacle(obstaclePrefix+"wire/"+strconv.Itoa(i), box, m))
		}

		for _, sh := range sch.Sheets {
			s, ok := doc.Sheets[sh.Name]
			if !ok {
				continue
			}
			drawnSheets[sh.Name] = true
			l.add(schematic.SheetUnit(sheetPrefix+sh.Name, sh.Position, sh.Size, s, m, true))
		}
	}

	for _, ref := range doc.Refs() {
		if _, ok := matched[ref]; ok && sch != nil {
			continue
		}
		c := doc.Components[ref]
		lib, _ := repo.Resolve(c.Symbol, c.Pins)
		origin := sexp.Position{}
		rot := 0.0
		if c.Position != nil {
			origin = sexp.Position{X: c.Position.X, Y: c.Position.Y}
			rot = c.Position.Rot
		}
		u := schematic.NewPartUnit(componentPrefix+ref, origin, rot, ref, c.Value, lib, netLabels(doc, ref, hierNets), m)
		u.Placed = c.Position != nil
		l.add(u)
	}

	for _, name := range doc.SheetNames() {
		if drawnSheets[name] {
			continue
		}
		s := doc.Sheets[name]
		size := schematic.SheetSize(s, m)
		if s.Size != nil {
			size = sexp.Size{Width: s.Size.Width, Height: s.Size.Height}
		}
		pos := sexp.Position{}
		if s.Position != nil {
			pos = sexp.Position{X: s.Position.X, Y: s.Position.Y}
		}
		l.add(schematic.SheetUnit(sheetPrefix+name, pos, size, s, m, s.Position != nil))
	}
	return l
}

// overlaps reports fixed components and sheets whose boxes collide.
func overlaps(file string, l *layout) []Warning {
	var fixed []*placement.Unit
	for _, u := range l.units {
		if u.Placed && !strings.HasPrefix(u.ID, obstaclePrefix) {
			fixed = append(fixed, u)
		}
	}
	var out []Warning
	for _, o := range placement.FindOverlaps(fixed) {
		out = append(out, Warning{
			Kind:    OverlapDetected,
			File:    file,
			Ref:     strings.TrimPrefix(o.A, componentPrefix),
			Message: fmt.Sprintf("overlaps %s", o.B),
		})
	}
	return out
}

// paperCandidates lists the papers to try, from current up to max.
func paperCandidates(current, max string) []placement.Paper {
	var out []placement.Paper
	started := false
	for _, p := range placement.Papers {
		if p.Name == current {
			started = true
		}
		if started {
			out = append(out, p)
		}
		if started && p.Name == max {
			break
		}
	}
	return out
}

// place positions the pending units of a file. The layout is tried on
// the current paper first and on each larger one up to MaxPaper; the
// first paper whose usable area holds the result wins.
func (r *Run) place(ctx context.Context, f *fileState) error {
	log := ctxlog.FromContext(ctx)
	m := r.opts.Placement.Metrics

	build := func() *layout {
		return buildLayout(f.baseline, f.primary(), f.doc, f.matched, r.repo, f.hierNets, m)
	}
	l := build()
	r.warn(overlaps(f.key, l)...)
	if l.pending == 0 {
		return nil
	}

	current := f.doc.Metadata.Paper
	candidates := paperCandidates(current, r.opts.MaxPaper)
	custom := len(candidates) == 0
	if custom {
		// custom paper sizes are never grown
		candidates = []placement.Paper{fixedPaper(f)}
	}

	var extent sexp.BoundingBox
	for i, paper := range candidates {
		if i > 0 {
			l = build()
		}
		opts := r.opts.Placement
		opts.Area = r.area(paper)
		res := placement.NewEngine(opts).Place(l.units)
		extent = res.Extent

		if !custom {
			if _, err := placement.FitPaper(res.Extent, paper.Name, paper.Name); err != nil {
				log.Debug("layout does not fit", "file", f.key, "paper", paper.Name)
				continue
			}
		}

		for _, u := range res.Placed {
			r.applyUnit(f.doc, u)
		}
		if !custom && paper.Name != current {
			f.doc.Metadata.Paper = paper.Name
			r.warn(Warning{
				Kind:    PaperGrown,
				File:    f.key,
				Message: fmt.Sprintf("paper grown from %s to %s", current, paper.Name),
			})
		}
		log.Debug("placed", "file", f.key, "units", len(res.Placed), "paper", paper.Name)
		return nil
	}

	max := candidates[len(candidates)-1]
	return fmt.Errorf("%s: %w", f.key, &placement.OverflowError{Need: extent, Max: max})
}

// area is the region new units go into on paper.
// fixedPaper returns the sheet a file without paper growth is packed
// into. Unknown sizes fall back to A4.
func fixedPaper(f *fileState) placement.Paper {
	name := f.doc.Metadata.Paper
	var width, height float64
	portrait := false
	if f.baseline != nil && f.baseline.Paper == name {
		width, height = f.baseline.PaperSize.Width, f.baseline.PaperSize.Height
		portrait = f.baseline.Portrait
	}
	if p, ok := placement.SheetPaper(name, width, height, portrait); ok {
		return p
	}
	return placement.PaperA4
}

func (r *Run) area(paper placement.Paper) sexp.BoundingBox {
	a := placement.Usable(paper)
	if r.opts.CanvasWidth > 0 && a.Min.X+r.opts.CanvasWidth < a.Max.X {
		a.Max.X = a.Min.X + r.opts.CanvasWidth
	}
	return a
}

// applyUnit writes a unit's new position back to the document.
func (r *Run) applyUnit(doc *model.Document, u *placement.Unit) {
	switch {
	case strings.HasPrefix(u.ID, componentPrefix):
		c := doc.Components[strings.TrimPrefix(u.ID, componentPrefix)]
		c.Position = &model.Position{X: u.Origin.X, Y: u.Origin.Y}
	case strings.HasPrefix(u.ID, sheetPrefix):
		s := doc.Sheets[strings.TrimPrefix(u.ID, sheetPrefix)]
		s.Position = &model.Position{X: u.Origin.X, Y: u.Origin.Y}
		if s.Size == nil {
			size := schematic.SheetSize(s, r.opts.Placement.Metrics)
			s.Size = &model.Size{Width: size.Width, Height: size.Height}
		}
	}
}
