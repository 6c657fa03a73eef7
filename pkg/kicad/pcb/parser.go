// Package pcb reads the parts of a KiCad board the router hand-off needs
// (outline, nets, footprint pads and existing copper) and swaps routed
// copper into the board file without touching anything else.
package pcb

import (
	"fmt"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version (6.0 = 20211014)
const MinSupportedVersion = 20211014

// ParseFile reads and parses a KiCad board file
func ParseFile(filename string) (*Board, error) {
	tree, err := kicadsexp.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseTree(tree, filename)
}

// ParseBytes parses a board held in memory. name is used in errors.
func ParseBytes(name string, data []byte) (*Board, error) {
	tree, err := kicadsexp.ParseBytes(name, data)
	if err != nil {
		return nil, err
	}
	return ParseTree(tree, name)
}

// ParseTree reads a board from a parsed tree.
func ParseTree(tree *kicadsexp.Tree, file string) (*Board, error) {
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("%s: empty file or no valid s-expressions found", file)
	}
	if root.Name() != "kicad_pcb" {
		return nil, fmt.Errorf("%s: not a KiCad PCB file: expected 'kicad_pcb', got '%s'", file, root.Name())
	}

	version, generator, err := parseHeader(root)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse header: %w", file, err)
	}

	board := &Board{
		Tree:      tree,
		File:      file,
		Version:   version,
		Generator: generator,
	}

	if general := root.Find("general"); general != nil {
		if th := general.Find("thickness"); th != nil {
			board.Thickness, _ = sexp.GetFloat(th, 1)
		}
	}

	if layersNode := root.Find("layers"); layersNode != nil {
		layers, err := parseLayers(layersNode)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse layers section: %w", file, err)
		}
		board.Layers = layers
	}

	nets, err := parseNets(root)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse nets: %w", file, err)
	}
	board.Nets = nets
	netMap := NewNetMap(board.Nets)

	board.Outline = parseOutline(root)
	board.Tracks, board.Vias = parseCopper(root, netMap)

	footprints, err := parseFootprints(root, netMap)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse footprints: %w", file, err)
	}
	board.Footprints = footprints

	return board, nil
}

// parseHeader extracts version and generator information from the root node
// Expected format: (kicad_pcb (version 20221018) (generator pcbnew) ...)
func parseHeader(root *kicadsexp.List) (version int, generator string, err error) {
	versionNode := root.Find("version")
	if versionNode == nil {
		return 0, "", fmt.Errorf("missing required 'version' field")
	}

	ver, err := sexp.GetInt(versionNode, 1)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}

	// Validate version (must be KiCad 6.0 or later)
	if ver < MinSupportedVersion {
		return 0, "", fmt.Errorf("unsupported KiCad version: %d (minimum required: %d / KiCad 6.0)", ver, MinSupportedVersion)
	}

	gen := "unknown"
	if hostNode := root.Find("host"); hostNode != nil {
		// Example: (host pcbnew "(6.0.0)")
		if toolName, err := sexp.GetString(hostNode, 1); err == nil {
			gen = toolName
		}
	} else if genNode := root.Find("generator"); genNode != nil {
		if generatorName, err := sexp.GetString(genNode, 1); err == nil {
			gen = generatorName
		}
	}

	return ver, gen, nil
}

// parseLayers extracts layer definitions
// Expected format: (layers (0 "F.Cu" signal) (31 "B.Cu" signal) ...)
func parseLayers(node *kicadsexp.List) ([]Layer, error) {
	layerNodes := node.Lists()
	if len(layerNodes) == 0 {
		return nil, fmt.Errorf("no layers defined")
	}

	var layers []Layer
	for _, layerNode := range layerNodes {
		number, err := sexp.GetInt(layerNode, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layer number: %w", err)
		}

		name, err := sexp.GetString(layerNode, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse layer name: %w", err)
		}

		layerType, err := sexp.GetString(layerNode, 2)
		if err != nil {
			// Layer type is optional in some cases
			layerType = "user"
		}

		layers = append(layers, Layer{Number: number, Name: name, Type: layerType})
	}

	return layers, nil
}

// parseNets extracts the top-level net table
// Expected format: (net 0 "") (net 1 "GND") (net 2 "+5V") ...
func parseNets(root *kicadsexp.List) ([]Net, error) {
	nets := []Net{}
	for _, netNode := range root.FindAll("net") {
		number, err := sexp.GetInt(netNode, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to parse net number: %w", err)
		}

		// Name is optional (net 0 often has empty name)
		name, _ := sexp.GetString(netNode, 2)
		nets = append(nets, Net{Number: number, Name: name})
	}
	return nets, nil
}

// netOf resolves an element's (net N ["name"]) child.
func netOf(node *kicadsexp.List, netMap *NetMap) *Net {
	netNode := node.Find("net")
	if netNode == nil {
		return nil
	}
	if num, err := sexp.GetInt(netNode, 1); err == nil {
		if net, ok := netMap.GetByNumber(num); ok && net.Number != 0 {
			return net
		}
		return nil
	}
	// newer boards name the net directly
	if name, err := sexp.GetString(netNode, 1); err == nil {
		if net, ok := netMap.GetByName(name); ok {
			return net
		}
	}
	return nil
}

// parseOutline collects the Edge.Cuts graphics.
func parseOutline(root *kicadsexp.List) []Edge {
	var edges []Edge
	for _, node := range root.Lists() {
		kind := ""
		switch node.Name() {
		case "gr_line":
			kind = "line"
		case "gr_arc":
			kind = "arc"
		case "gr_rect":
			kind = "rect"
		case "gr_circle":
			kind = "circle"
		case "gr_poly":
			kind = "poly"
		default:
			continue
		}
		if layer, _ := childValue(node, "layer"); layer != "Edge.Cuts" {
			continue
		}

		e := Edge{Kind: kind}
		switch kind {
		case "poly":
			e.Points = sexp.GetPoints(node)
		case "circle":
			e.Points = points(node, "center", "end")
		case "arc":
			e.Points = points(node, "start", "mid", "end")
		default:
			e.Points = points(node, "start", "end")
		}
		if len(e.Points) > 0 {
			edges = append(edges, e)
		}
	}
	return edges
}

// points reads the named (name X Y) children in order.
func points(node *kicadsexp.List, names ...string) []Position {
	var out []Position
	for _, name := range names {
		child := node.Find(name)
		if child == nil {
			return nil
		}
		p, err := sexp.GetPositionXY(child)
		if err != nil {
			return nil
		}
		out = append(out, p)
	}
	return out
}

// parseCopper reads the top-level segments, arcs and vias.
func parseCopper(root *kicadsexp.List, netMap *NetMap) ([]Track, []Via) {
	var tracks []Track
	var vias []Via
	for _, node := range root.Lists() {
		switch node.Name() {
		case "segment", "arc":
			names := []string{"start", "end"}
			if node.Name() == "arc" {
				names = []string{"start", "mid", "end"}
			}
			pts := points(node, names...)
			if pts == nil {
				continue
			}
			t := Track{
				Kind:   node.Name(),
				Start:  pts[0],
				End:    pts[len(pts)-1],
				Net:    netOf(node, netMap),
				Locked: sexp.GetFlag(node, "locked"),
			}
			if len(pts) == 3 {
				t.Mid = pts[1]
			}
			if w := node.Find("width"); w != nil {
				t.Width, _ = sexp.GetFloat(w, 1)
			}
			t.Layer, _ = childValue(node, "layer")
			tracks = append(tracks, t)

		case "via":
			at := node.Find("at")
			if at == nil {
				continue
			}
			pos, err := sexp.GetPositionXY(at)
			if err != nil {
				continue
			}
			v := Via{Position: pos, Net: netOf(node, netMap), Locked: sexp.GetFlag(node, "locked")}
			if s := node.Find("size"); s != nil {
				v.Size, _ = sexp.GetFloat(s, 1)
			}
			if d := node.Find("drill"); d != nil {
				v.Drill, _ = sexp.GetFloat(d, 1)
			}
			v.Layers = layerList(node)
			vias = append(vias, v)
		}
	}
	return tracks, vias
}

// layerList reads a (layers "A" "B" ...) child.
func layerList(node *kicadsexp.List) LayerSet {
	ln := node.Find("layers")
	if ln == nil {
		return nil
	}
	var out LayerSet
	for i := 1; i < ln.Len(); i++ {
		if a := ln.Atom(i); a != nil && a.Value() != "" {
			out = append(out, a.Value())
		}
	}
	return out
}

// childValue returns the first value of a (name value) child.
func childValue(node *kicadsexp.List, name string) (string, bool) {
	child := node.Find(name)
	if child == nil {
		return "", false
	}
	v, err := sexp.GetString(child, 1)
	return v, err == nil
}
