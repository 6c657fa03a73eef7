package schematic

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Net is one connected set of a single schematic file.
type Net struct {
	Name    string
	Kind    placement.LabelKind // kind of the label that named the net
	Named   bool                // false for auto-generated names
	Members []string            // "<ref>.<pin>" and "<sheet>.<pin>", sorted
	Hier    []string            // hierarchical label texts on the net
	Global  []string            // global label texts and power nets on the net
}

// unionFind keeps equivalence classes over string node keys.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(x string) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
}

func (u *unionFind) find(x string) string {
	u.add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// smaller key wins so that roots do not depend on insertion order
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

const pointResolution = 1e4

func pointKey(p Position) string {
	return fmt.Sprintf("pt:%d,%d", int64(math.Round(p.X*pointResolution)), int64(math.Round(p.Y*pointResolution)))
}

// onSegment reports whether p lies on the segment a-b.
func onSegment(p, a, b Position) bool {
	const eps = 1e-4
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	length := math.Hypot(b.X-a.X, b.Y-a.Y)
	if length == 0 || math.Abs(cross)/length > eps {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-eps && p.X <= math.Max(a.X, b.X)+eps &&
		p.Y >= math.Min(a.Y, b.Y)-eps && p.Y <= math.Max(a.Y, b.Y)+eps
}

// Connect computes the nets of sch as seen from the sheet instance at path.
// Pins connect through owned labels, through coincident points and along
// wires; labels with the same text connect by name (global labels and power
// symbols design-wide, others within the file). Unconnected single pins are
// not reported.
func Connect(sch *Schematic, repo *Repository, path string) []*Net {
	return connect(sch, repo, path, false)
}

// connect with skipOwned ignores generated labels, leaving the
// connectivity the user drew.
func connect(sch *Schematic, repo *Repository, path string, skipOwned bool) []*Net {
	uf := newUnionFind()
	var points []Position
	addPoint := func(node string, p Position) {
		uf.union(node, pointKey(p))
		points = append(points, p)
	}

	members := map[string]string{} // node -> member text
	owners := map[string]string{}  // "<uuid>:<pin>" -> node

	for _, sym := range sch.Symbols {
		ref := sym.ReferenceFor(path)
		lib, err := repo.Lookup(sym.LibID)
		power := strings.HasPrefix(ref, "#")
		if err == nil {
			for _, pin := range lib.Pins {
				if !inUnit(pin.Unit, sym.Unit) {
					continue
				}
				pt := PinPoint(sym, pin)
				if power {
					node := pointKey(pt)
					if lib.Power && pin.Type == "power_in" {
						if value, _ := sym.Property("Value"); value != "" {
							uf.union(node, "global:"+value)
						}
					}
					addPoint(node, pt)
					continue
				}
				node := "pin:" + ref + "." + pin.Number
				members[node] = ref + "." + pin.Number
				addPoint(node, pt)
			}
		}
		if power {
			continue
		}
		for _, p := range sym.Pins {
			node := "pin:" + ref + "." + p.Number
			members[node] = ref + "." + p.Number
			uf.add(node)
			owners[string(sym.UUID)+":"+p.Number] = node
		}
		if err == nil {
			for _, pin := range lib.Pins {
				if inUnit(pin.Unit, sym.Unit) {
					owners[string(sym.UUID)+":"+pin.Number] = "pin:" + ref + "." + pin.Number
				}
			}
		}
	}

	for _, sh := range sch.Sheets {
		for _, pin := range sh.Pins {
			node := "sheetpin:" + sh.Name + "." + pin.Name
			members[node] = sh.Name + "." + pin.Name
			addPoint(node, pin.Position)
			owners[string(sh.UUID)+":"+pin.Name] = node
		}
	}

	labels := sch.Labels
	if skipOwned {
		labels = nil
		for _, l := range sch.Labels {
			if l.Owner == "" {
				labels = append(labels, l)
			}
		}
	}

	for _, l := range labels {
		var node string
		switch l.Kind {
		case placement.Global:
			node = "global:" + l.Text
		case placement.Local, placement.Hierarchical:
			node = "sheet:" + l.Text
		default:
			panic(fmt.Sprintf("schematic: unknown label kind %d", int(l.Kind)))
		}
		if l.Owner != "" {
			if owner, ok := owners[l.Owner]; ok {
				uf.union(node, owner)
				continue
			}
		}
		addPoint(node, l.Position)
	}

	for _, w := range sch.Wires {
		for i := range w.Points {
			uf.add(pointKey(w.Points[i]))
			points = append(points, w.Points[i])
			if i > 0 {
				uf.union(pointKey(w.Points[i-1]), pointKey(w.Points[i]))
			}
		}
	}
	// a point on a segment interior joins that wire (T junctions, labels)
	for _, w := range sch.Wires {
		for i := 1; i < len(w.Points); i++ {
			a, b := w.Points[i-1], w.Points[i]
			for _, p := range points {
				if onSegment(p, a, b) {
					uf.union(pointKey(p), pointKey(a))
				}
			}
		}
	}

	type set struct {
		members []string
		local   []string
		hier    []string
		global  []string
	}
	sets := map[string]*set{}
	get := func(node string) *set {
		root := uf.find(node)
		s, ok := sets[root]
		if !ok {
			s = &set{}
			sets[root] = s
		}
		return s
	}
	for node, m := range members {
		s := get(node)
		s.members = append(s.members, m)
	}
	for _, l := range labels {
		node := "sheet:" + l.Text
		if l.Kind == placement.Global {
			node = "global:" + l.Text
		}
		s := get(node)
		switch l.Kind {
		case placement.Global:
			s.global = append(s.global, l.Text)
		case placement.Hierarchical:
			s.hier = append(s.hier, l.Text)
		case placement.Local:
			s.local = append(s.local, l.Text)
		}
	}
	for node := range uf.parent {
		if strings.HasPrefix(node, "global:") {
			s := get(node)
			s.global = append(s.global, strings.TrimPrefix(node, "global:"))
		}
	}

	byName := map[string]*Net{}
	for _, s := range sets {
		ms := uniqueSorted(s.members)
		global, hier, local := uniqueSorted(s.global), uniqueSorted(s.hier), uniqueSorted(s.local)

		n := &Net{Members: ms, Hier: hier, Global: global, Named: true}
		switch {
		case len(global) > 0:
			n.Name, n.Kind = global[0], placement.Global
		case len(hier) > 0:
			n.Name, n.Kind = hier[0], placement.Hierarchical
		case len(local) > 0:
			n.Name, n.Kind = local[0], placement.Local
		default:
			if len(ms) < 2 {
				continue
			}
			n.Name, n.Named = AutoNetName(ms[0]), false
		}
		if len(ms) == 0 {
			continue
		}
		if prev, ok := byName[n.Name]; ok {
			prev.Members = uniqueSorted(append(prev.Members, n.Members...))
			prev.Hier = uniqueSorted(append(prev.Hier, n.Hier...))
			prev.Global = uniqueSorted(append(prev.Global, n.Global...))
			continue
		}
		byName[n.Name] = n
	}

	nets := make([]*Net, 0, len(byName))
	for _, n := range byName {
		nets = append(nets, n)
	}
	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })
	return nets
}

// AutoNetName returns the KiCad style name of an unnamed net whose first
// member is "<ref>.<pin>".
func AutoNetName(member string) string {
	i := strings.LastIndexByte(member, '.')
	if i < 0 {
		return "Net-(" + member + ")"
	}
	return fmt.Sprintf("Net-(%s-Pad%s)", member[:i], member[i+1:])
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
