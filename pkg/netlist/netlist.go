package netlist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/model"
)

// Node is one component pin on a net.
type Node struct {
	Ref     string `json:"ref"`
	Pin     string `json:"pin"`
	PinType string `json:"pintype,omitempty"`
}

func (n Node) String() string { return n.Ref + "." + n.Pin }

// Net is a design-wide connected set of component pins.
type Net struct {
	Code  int    `json:"code"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
}

// Component is one part of the flattened design.
type Component struct {
	Ref       string `json:"ref"`
	Value     string `json:"value"`
	Footprint string `json:"footprint,omitempty"`
	Symbol    string `json:"symbol"`
	SheetPath string `json:"sheet_path"` // sheet names, "/" for the root
	Scope     string `json:"scope"`      // instance path
	UUID      string `json:"uuid,omitempty"`
}

// Scope is one occurrence of a document in the design.
type Scope struct {
	Path      string // instance path
	Parent    string // instance path of the parent; empty for the root
	SheetName string // sheet in the parent that instantiates this scope
	SheetPath string // "/" for the root, "/power/" for a child sheet named power
	Doc       *model.Document
}

// Netlist manages design-wide connectivity using a union-find data
// structure. Nodes are keyed by scope so that equal net names in different
// sheets stay apart.
type Netlist struct {
	// Union-find data structures
	parent map[string]string
	rank   map[string]int

	// Final nets after calling Finalize()
	Nets       []*Net
	Components []Component

	pins  map[string]Node // pin key -> node
	names map[string][]netName
}

// netName is a candidate name attached to a union-find node.
type netName struct {
	name  string
	depth int // 0 for globals, else sheet depth + 1
}

// New creates an empty netlist.
func New() *Netlist {
	return &Netlist{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		pins:   make(map[string]Node),
		names:  make(map[string][]netName),
	}
}

func (nl *Netlist) add(key string) {
	if _, ok := nl.parent[key]; !ok {
		nl.parent[key] = key
		nl.rank[key] = 0
	}
}

// Connect merges the nets of two node keys.
func (nl *Netlist) Connect(a, b string) {
	rootA := nl.Find(a)
	rootB := nl.Find(b)
	if rootA == rootB {
		return
	}

	// Union by rank
	if nl.rank[rootA] < nl.rank[rootB] {
		nl.parent[rootA] = rootB
	} else if nl.rank[rootA] > nl.rank[rootB] {
		nl.parent[rootB] = rootA
	} else {
		nl.parent[rootB] = rootA
		nl.rank[rootA]++
	}
}

// Find returns the representative key of the set containing key.
// Uses path compression for O(α(n)) amortized time complexity.
func (nl *Netlist) Find(key string) string {
	nl.add(key)
	root := key
	for nl.parent[root] != root {
		root = nl.parent[root]
	}
	for key != root {
		next := nl.parent[key]
		nl.parent[key] = root
		key = next
	}
	return root
}

func pinKey(scope, ref, pin string) string { return "pin:" + scope + "|" + ref + "." + pin }
func sheetKey(scope, sheet, pin string) string { return "sheet:" + scope + "|" + sheet + "." + pin }
func netKey(scope, name string) string { return "net:" + scope + "|" + name }
func globalKey(name string) string { return "global:" + name }

// Build flattens the scopes of a design. Nets listed as global connect by
// name everywhere; a child net connects to its parent through the sheet pin
// of the same name; any other net stays inside its scope.
func Build(scopes []Scope) (*Netlist, error) {
	nl := New()
	byPath := make(map[string]Scope, len(scopes))
	for _, s := range scopes {
		byPath[s.Path] = s
	}

	for _, s := range scopes {
		doc := s.Doc
		depth := strings.Count(s.SheetPath, "/")
		for _, ref := range doc.Refs() {
			c := doc.Components[ref]
			nl.Components = append(nl.Components, Component{
				Ref:       ref,
				Value:     c.Value,
				Footprint: c.Footprint,
				Symbol:    c.Symbol,
				SheetPath: s.SheetPath,
				Scope:     s.Path,
				UUID:      c.UUID,
			})
		}

		for _, name := range doc.NetNames() {
			node := netKey(s.Path, name)
			if doc.IsGlobal(name) {
				node = globalKey(name)
				nl.names[node] = append(nl.names[node], netName{name: name})
			} else {
				nl.names[node] = append(nl.names[node], netName{name: s.SheetPath + name, depth: depth})
			}
			nl.add(node)

			for _, entry := range doc.Nets[name] {
				m, err := model.ParseMember(entry)
				if err != nil {
					return nil, fmt.Errorf("scope %s: net %s: %w", s.Path, name, err)
				}
				if c, ok := doc.Components[m.Ref]; ok {
					key := pinKey(s.Path, m.Ref, m.Pin)
					nl.pins[key] = Node{Ref: m.Ref, Pin: m.Pin, PinType: pinType(c, m.Pin)}
					nl.Connect(node, key)
					continue
				}
				if _, ok := doc.Sheets[m.Ref]; ok {
					nl.Connect(node, sheetKey(s.Path, m.Ref, m.Pin))
					continue
				}
				return nil, fmt.Errorf("scope %s: net %s: unknown member %s", s.Path, name, entry)
			}
		}
	}

	// link each child's hierarchical nets to the sheet pins of its parent
	for _, s := range scopes {
		parent, ok := byPath[s.Parent]
		if !ok || s.Parent == "" {
			continue
		}
		sheet, ok := parent.Doc.Sheets[s.SheetName]
		if !ok {
			continue
		}
		for _, p := range sheet.Pins {
			if _, ok := s.Doc.Nets[p.Name]; ok && !s.Doc.IsGlobal(p.Name) {
				nl.Connect(netKey(s.Path, p.Name), sheetKey(parent.Path, s.SheetName, p.Name))
			}
		}
	}

	nl.Finalize()
	return nl, nil
}

func pinType(c *model.Component, number string) string {
	for _, p := range c.Pins {
		if p.Number == number {
			return p.Direction
		}
	}
	return ""
}

// Finalize builds the final net list from the union-find structure.
// Sets without a component pin are skipped. A set takes the global name on
// it, else the name declared closest to the root, else the KiCad auto name
// of its first pin.
func (nl *Netlist) Finalize() {
	members := make(map[string][]Node)
	for key, node := range nl.pins {
		root := nl.Find(key)
		members[root] = append(members[root], node)
	}
	names := make(map[string][]netName)
	for key, ns := range nl.names {
		root := nl.Find(key)
		names[root] = append(names[root], ns...)
	}

	nl.Nets = make([]*Net, 0, len(members))
	for root, nodes := range members {
		sort.Slice(nodes, func(i, j int) bool {
			if nodes[i].Ref != nodes[j].Ref {
				return nodes[i].Ref < nodes[j].Ref
			}
			return nodes[i].Pin < nodes[j].Pin
		})
		nl.Nets = append(nl.Nets, &Net{Name: pickName(names[root], nodes[0]), Nodes: nodes})
	}

	sort.Slice(nl.Nets, func(i, j int) bool { return nl.Nets[i].Name < nl.Nets[j].Name })
	for i, n := range nl.Nets {
		n.Code = i + 1
	}
	sort.SliceStable(nl.Components, func(i, j int) bool {
		if nl.Components[i].SheetPath != nl.Components[j].SheetPath {
			return nl.Components[i].SheetPath < nl.Components[j].SheetPath
		}
		return nl.Components[i].Ref < nl.Components[j].Ref
	})
}

func pickName(names []netName, first Node) string {
	best := ""
	bestDepth := -1
	for _, n := range names {
		if bestDepth < 0 || n.depth < bestDepth || (n.depth == bestDepth && n.name < best) {
			best, bestDepth = n.name, n.depth
		}
	}
	if best == "" {
		return fmt.Sprintf("Net-(%s-Pad%s)", first.Ref, first.Pin)
	}
	// auto names written by an import keep their bare form
	if i := strings.LastIndex(best, "/Net-("); i >= 0 && bestDepth > 0 {
		return best[i+1:]
	}
	return best
}

// NetCount returns the number of nets.
// Only valid after calling Finalize().
func (nl *Netlist) NetCount() int {
	return len(nl.Nets)
}

// NetOf returns the name of the net holding ref.pin, or "".
func (nl *Netlist) NetOf(ref, pin string) string {
	for _, n := range nl.Nets {
		for _, node := range n.Nodes {
			if node.Ref == ref && node.Pin == pin {
				return n.Name
			}
		}
	}
	return ""
}

// ExportJSON exports the netlist to JSON format.
func (nl *Netlist) ExportJSON() ([]byte, error) {
	if nl.Nets == nil {
		return nil, fmt.Errorf("netlist: not finalized")
	}

	output := struct {
		Version     string      `json:"version"`
		NetCount    int         `json:"net_count"`
		Components  []Component `json:"components"`
		Nets        []*Net      `json:"nets"`
		GeneratedBy string      `json:"generated_by"`
	}{
		Version:     "1.0",
		NetCount:    nl.NetCount(),
		Components:  nl.Components,
		Nets:        nl.Nets,
		GeneratedBy: "kisync",
	}

	return json.MarshalIndent(output, "", "  ")
}
