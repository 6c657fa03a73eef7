package pcb

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// Job is what an external router needs to route a board: the outline,
// the copper stack and every net with two or more pads.
type Job struct {
	Board   string     `json:"board"`
	Layers  []string   `json:"layers"`
	Outline []JobEdge  `json:"outline"`
	Bounds  [4]float64 `json:"bounds"`
	Nets    []JobNet   `json:"nets"`
}

// JobEdge is one outline element.
type JobEdge struct {
	Kind   string       `json:"kind"`
	Points [][2]float64 `json:"points"`
}

// JobNet is a net and the absolute positions of its pads.
type JobNet struct {
	Name string   `json:"name"`
	Pads []JobPad `json:"pads"`
}

// JobPad is a pad in board coordinates.
type JobPad struct {
	Ref    string   `json:"ref"`
	Pad    string   `json:"pad"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Rot    float64  `json:"rot,omitempty"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Shape  string   `json:"shape"`
	Layers []string `json:"layers"`
	Drill  float64  `json:"drill,omitempty"`
}

// ExportJob builds the routing job for a board. Nets are sorted by name
// and pads by reference then pad number.
func ExportJob(b *Board) *Job {
	copper := b.CopperLayers()
	job := &Job{
		Board:   b.File,
		Layers:  copper,
		Outline: []JobEdge{},
		Nets:    []JobNet{},
	}

	if box := b.OutlineBox(); !box.IsEmpty() {
		job.Bounds = [4]float64{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y}
	}
	for _, e := range b.Outline {
		je := JobEdge{Kind: e.Kind}
		for _, p := range e.Points {
			je.Points = append(je.Points, [2]float64{p.X, p.Y})
		}
		job.Outline = append(job.Outline, je)
	}

	pads := map[string][]JobPad{}
	for i := range b.Footprints {
		fp := &b.Footprints[i]
		for _, pad := range fp.Pads {
			if pad.Net == nil || pad.Net.Name == "" {
				continue
			}
			abs := fp.TransformPosition(pad.Position)
			pads[pad.Net.Name] = append(pads[pad.Net.Name], JobPad{
				Ref:    fp.Reference,
				Pad:    pad.Number,
				X:      abs.X,
				Y:      abs.Y,
				Rot:    fp.PadAngle(pad),
				Width:  pad.Size.Width,
				Height: pad.Size.Height,
				Shape:  pad.Shape,
				Layers: pad.Layers.Expand(copper),
				Drill:  pad.Drill,
			})
		}
	}

	for name, list := range pads {
		if len(list) < 2 {
			continue
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Ref != list[j].Ref {
				return list[i].Ref < list[j].Ref
			}
			return list[i].Pad < list[j].Pad
		})
		job.Nets = append(job.Nets, JobNet{Name: name, Pads: list})
	}
	sort.Slice(job.Nets, func(i, j int) bool { return job.Nets[i].Name < job.Nets[j].Name })
	return job
}

// WriteTo writes the job as indented JSON.
func (j *Job) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return 0, err
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}

// IngestStats counts what Ingest changed.
type IngestStats struct {
	Removed  int
	Segments int
	Arcs     int
	Vias     int
}

// UnknownNetError reports a routed element on a net the board lacks.
type UnknownNetError struct {
	Net  string
	Line int
}

func (e *UnknownNetError) Error() string {
	return fmt.Sprintf("routed element at line %d is on net %q, which the board does not define", e.Line, e.Net)
}

var copperNodes = []string{"segment", "arc", "via"}

func isCopper(name string) bool {
	for _, n := range copperNodes {
		if n == name {
			return true
		}
	}
	return false
}

// Ingest replaces the board's top-level segments, arcs and vias with the
// ones in routed. Routed elements are copied verbatim except for their net
// number, which is remapped through the net name onto the board's table.
// The board's Tree is edited in place; b's parsed fields are refreshed.
func Ingest(b *Board, routed *kicadsexp.Tree) (IngestStats, error) {
	var stats IngestStats
	src := routed.Root()
	if src == nil {
		return stats, fmt.Errorf("routed file is empty")
	}
	dst := b.Tree.Root()

	routedNets := map[int]string{}
	for _, n := range src.FindAll("net") {
		num, err := sexp.GetInt(n, 1)
		if err != nil {
			continue
		}
		name, _ := sexp.GetString(n, 2)
		routedNets[num] = name
	}
	boardNets := NewNetMap(b.Nets)

	// Build every clone first so a bad net leaves the board untouched.
	var clones []*kicadsexp.List
	for _, node := range src.Lists() {
		if !isCopper(node.Name()) {
			continue
		}
		clone := node.Clone()
		if err := remapNet(clone, node.Line(), routedNets, boardNets); err != nil {
			return stats, err
		}
		clones = append(clones, clone)
	}

	for _, node := range dst.Lists() {
		if isCopper(node.Name()) {
			dst.Remove(node)
			stats.Removed++
		}
	}
	for _, clone := range clones {
		sexp.InsertGrouped(dst, clone, "segment", "arc", "via", "footprint", "gr_line", "gr_rect", "gr_arc", "gr_circle", "gr_poly")
		switch clone.Name() {
		case "segment":
			stats.Segments++
		case "arc":
			stats.Arcs++
		case "via":
			stats.Vias++
		}
	}

	b.Tracks, b.Vias = parseCopper(dst, boardNets)
	return stats, nil
}

// remapNet rewrites the (net ...) child of a routed element to the board's
// numbering. Elements without a net are left alone.
func remapNet(node *kicadsexp.List, line int, routedNets map[int]string, board *NetMap) error {
	netNode := node.Find("net")
	if netNode == nil {
		return nil
	}
	atom := netNode.Atom(1)
	if atom == nil {
		return nil
	}

	name, hasName := "", false
	if num, err := strconv.Atoi(atom.Value()); err == nil {
		if n, ok := routedNets[num]; ok {
			name, hasName = n, true
		} else if inline, err := sexp.GetString(netNode, 2); err == nil {
			name, hasName = inline, true
		} else if _, ok := board.GetByNumber(num); ok {
			// no table to go by; trust the number
			return nil
		} else {
			return &UnknownNetError{Net: atom.Value(), Line: line}
		}
	} else {
		// (net "GND")
		name, hasName = atom.Value(), true
	}

	if !hasName || name == "" {
		atom.Set("0")
		return nil
	}
	net, ok := board.GetByName(name)
	if !ok {
		return &UnknownNetError{Net: name, Line: line}
	}
	if _, err := strconv.Atoi(atom.Value()); err == nil {
		atom.Set(strconv.Itoa(net.Number))
	}
	return nil
}
