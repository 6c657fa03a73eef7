package placement

import (
	"fmt"
	"math"
	"sort"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
)

// Strategy selects the layout algorithm.
type Strategy string

const (
	// Shelf packs rows left to right, largest units first.
	Shelf Strategy = "shelf"
	// Below runs the shelf packer in the area under the existing content.
	Below Strategy = "below"
	// Column packs columns top to bottom, largest units first.
	Column Strategy = "column"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Shelf, Below, Column:
		return Strategy(s), nil
	case "":
		return Shelf, nil
	}
	return "", fmt.Errorf("placement: unknown strategy %q", s)
}

// Options configures the engine.
type Options struct {
	Strategy  Strategy
	Clearance float64          // gap between units, mm
	Grid      float64          // origins snap to this grid
	Area      sexp.BoundingBox // region new units are packed into
	Metrics   Metrics
}

// DefaultOptions packs into the usable area of an A4 sheet.
func DefaultOptions() Options {
	return Options{
		Strategy:  Shelf,
		Clearance: 15,
		Grid:      sexp.GridMM,
		Area:      Usable(PaperA4),
		Metrics:   DefaultMetrics(),
	}
}

// Engine lays out units. It holds no state between calls.
type Engine struct {
	opts Options
}

// NewEngine creates a new placement engine
func NewEngine(opts Options) *Engine {
	if opts.Grid <= 0 {
		opts.Grid = sexp.GridMM
	}
	if opts.Strategy == "" {
		opts.Strategy = Shelf
	}
	return &Engine{opts: opts}
}

// Result describes one layout pass.
type Result struct {
	Placed []*Unit          // units positioned by this pass, in placement order
	Extent sexp.BoundingBox // union of all unit boxes
}

// Place positions every unit with Placed == false. Units already placed are
// fixed obstacles. Unplaced units are taken largest area first, insertion
// order breaking ties, and each is put at the first position along the
// packing direction where it clears every obstacle and every unit placed
// before it. Components and sheets go through the same pass.
func (e *Engine) Place(units []*Unit) Result {
	var obstacles []sexp.BoundingBox
	var pending []*Unit
	extent := sexp.NewBoundingBox()

	for i, u := range units {
		u.order = i
		if u.Placed {
			obstacles = append(obstacles, u.Box())
			extent.ExpandBox(u.Box())
			continue
		}
		pending = append(pending, u)
	}

	sort.SliceStable(pending, func(i, j int) bool {
		ai, aj := pending[i].Box().Area(), pending[j].Box().Area()
		if ai != aj {
			return ai > aj
		}
		return pending[i].order < pending[j].order
	})

	area := e.opts.Area
	axis := horizontal
	switch e.opts.Strategy {
	case Column:
		axis = vertical
	case Below:
		if !extent.IsEmpty() {
			area.Min.Y = math.Max(area.Min.Y, extent.Max.Y+e.opts.Clearance)
		}
	}

	p := &packer{
		axis:      axis,
		area:      area,
		clearance: e.opts.Clearance,
		grid:      e.opts.Grid,
		obstacles: obstacles,
	}
	p.reset()

	result := Result{}
	for _, u := range pending {
		p.place(u)
		u.Placed = true
		extent.ExpandBox(u.Box())
		result.Placed = append(result.Placed, u)
	}
	result.Extent = extent
	return result
}

// axis maps packing coordinates onto the plane. The main axis is the one a
// row (or column) grows along; the cross axis is the one rows stack along.
type axis struct {
	main  func(p sexp.Position) float64
	cross func(p sexp.Position) float64
	point func(main, cross float64) sexp.Position
}

var horizontal = axis{
	main:  func(p sexp.Position) float64 { return p.X },
	cross: func(p sexp.Position) float64 { return p.Y },
	point: func(m, c float64) sexp.Position { return sexp.Position{X: m, Y: c} },
}

var vertical = axis{
	main:  func(p sexp.Position) float64 { return p.Y },
	cross: func(p sexp.Position) float64 { return p.X },
	point: func(m, c float64) sexp.Position { return sexp.Position{X: c, Y: m} },
}

type packer struct {
	axis      axis
	area      sexp.BoundingBox
	clearance float64
	grid      float64
	obstacles []sexp.BoundingBox

	cursor    float64 // main-axis position of the next unit
	line      float64 // cross-axis start of the current row
	lineEnd   float64 // cross-axis end of the tallest unit in the row
	hitEnd    float64 // cross-axis end of the obstacles hit in the row
	lineEmpty bool
}

func (p *packer) reset() {
	p.cursor = p.axis.main(p.area.Min)
	p.line = p.axis.cross(p.area.Min)
	p.lineEnd = p.line
	p.hitEnd = p.line
	p.lineEmpty = true
}

func (p *packer) wrap() {
	next := p.lineEnd + p.clearance
	if p.lineEmpty {
		// nothing fitted in this row; step past whatever blocked it
		next = math.Max(p.hitEnd+p.clearance, p.line+p.grid)
	}
	p.cursor = p.axis.main(p.area.Min)
	p.line = next
	p.lineEnd = next
	p.hitEnd = next
	p.lineEmpty = true
}

func (p *packer) place(u *Unit) {
	limit := p.axis.main(p.area.Max)
	for {
		p.moveTo(u, p.axis.point(p.cursor, p.line))
		box := u.Box()

		if p.axis.main(box.Max) > limit && !p.lineEmpty {
			p.wrap()
			continue
		}
		if p.axis.main(box.Max) > limit && p.cursor > p.axis.main(p.area.Min) {
			// alone in the row but pushed right by obstacles
			p.wrap()
			continue
		}

		if hit, ok := p.firstHit(box); ok {
			p.cursor = p.axis.main(hit.Max) + p.clearance
			p.hitEnd = math.Max(p.hitEnd, p.axis.cross(hit.Max))
			continue
		}

		p.obstacles = append(p.obstacles, box)
		p.cursor = p.axis.main(box.Max) + p.clearance
		p.lineEnd = math.Max(p.lineEnd, p.axis.cross(box.Max))
		p.lineEmpty = false
		return
	}
}

// moveTo puts the unit's box corner at min (or just after it), keeping the
// unit origin on the grid.
func (p *packer) moveTo(u *Unit, min sexp.Position) {
	box := u.Box()
	target := u.Origin.Add(min.Sub(box.Min))
	target.X = snapUp(target.X, p.grid)
	target.Y = snapUp(target.Y, p.grid)
	u.MoveTo(target)
}

func (p *packer) firstHit(box sexp.BoundingBox) (sexp.BoundingBox, bool) {
	candidate := box.Inflate(p.clearance)
	var found sexp.BoundingBox
	hit := false
	for _, ob := range p.obstacles {
		if !Collides(candidate, ob) {
			continue
		}
		// jump past the hit that reaches furthest along the main axis
		if !hit || p.axis.main(ob.Max) > p.axis.main(found.Max) {
			found = ob
			hit = true
		}
	}
	return found, hit
}

// snapUp rounds v up to the next multiple of grid, tolerating float noise.
func snapUp(v, grid float64) float64 {
	n := math.Ceil(v/grid - 1e-9)
	return n * grid
}
