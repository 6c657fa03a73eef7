package pcb

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// parsePad extracts a pad definition from a footprint
// Expected format: (pad "number" type shape (at x y [angle]) (size w h) (layers ...) (net n "name") ...)
func parsePad(node *kicadsexp.List, netMap *NetMap) (*Pad, error) {
	pad := &Pad{}

	number, err := sexp.GetString(node, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pad number: %w", err)
	}
	pad.Number = number

	// thru_hole, smd, connect, np_thru_hole
	if pad.Type, err = sexp.GetString(node, 2); err != nil {
		return nil, fmt.Errorf("pad %s: failed to parse type: %w", number, err)
	}
	// circle, rect, oval, roundrect, trapezoid, custom
	if pad.Shape, err = sexp.GetString(node, 3); err != nil {
		return nil, fmt.Errorf("pad %s: failed to parse shape: %w", number, err)
	}

	atNode := node.Find("at")
	if atNode == nil {
		return nil, fmt.Errorf("pad %s: missing required 'at' position", number)
	}
	if pad.Position, err = sexp.GetPosition(atNode); err != nil {
		return nil, fmt.Errorf("pad %s: %w", number, err)
	}

	sizeNode := node.Find("size")
	if sizeNode == nil {
		return nil, fmt.Errorf("pad %s: missing required 'size' field", number)
	}
	width, err := sexp.GetFloat(sizeNode, 1)
	if err != nil {
		return nil, fmt.Errorf("pad %s: failed to parse width: %w", number, err)
	}
	height, err := sexp.GetFloat(sizeNode, 2)
	if err != nil {
		return nil, fmt.Errorf("pad %s: failed to parse height: %w", number, err)
	}
	pad.Size = Size{Width: width, Height: height}

	// Drill can be (drill d) or (drill oval w h); the first number wins
	if drillNode := node.Find("drill"); drillNode != nil {
		for i := 1; i < drillNode.Len(); i++ {
			if d, err := sexp.GetFloat(drillNode, i); err == nil {
				pad.Drill = d
				break
			}
		}
	}

	pad.Layers = layerList(node)
	if pad.Layers == nil {
		return nil, fmt.Errorf("pad %s: missing required 'layers' field", number)
	}

	pad.Net = padNet(node, netMap)
	return pad, nil
}

// padNet resolves a pad's (net N "name"). The name is preferred since
// boards exported mid-edit can carry stale numbers.
func padNet(node *kicadsexp.List, netMap *NetMap) *Net {
	netNode := node.Find("net")
	if netNode == nil || netMap == nil {
		return nil
	}
	if name, err := sexp.GetString(netNode, 2); err == nil && name != "" {
		if net, ok := netMap.GetByName(name); ok {
			return net
		}
	}
	return netOf(node, netMap)
}

// parseFootprint extracts a footprint (component) definition
// Expected format: (footprint "library:name" (layer "layer") (at x y [angle]) ...)
func parseFootprint(node *kicadsexp.List, netMap *NetMap) (*Footprint, error) {
	footprint := &Footprint{}

	fpName, err := sexp.GetString(node, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to parse footprint name: %w", err)
	}
	if lib, name, ok := strings.Cut(fpName, ":"); ok && lib != "" {
		footprint.Library = lib
		footprint.Name = name
	} else {
		footprint.Name = fpName
	}

	layer, ok := childValue(node, "layer")
	if !ok {
		return nil, fmt.Errorf("footprint %s: missing required 'layer' field", fpName)
	}
	footprint.Layer = layer

	atNode := node.Find("at")
	if atNode == nil {
		return nil, fmt.Errorf("footprint %s: missing required 'at' position", fpName)
	}
	if footprint.Position, err = sexp.GetPosition(atNode); err != nil {
		return nil, fmt.Errorf("footprint %s: %w", fpName, err)
	}

	// KiCad 8 writes (property "Reference" "R1"), KiCad 6 and 7 (fp_text reference "R1")
	if v, ok := sexp.GetPropertyValue(node, "Reference"); ok {
		footprint.Reference = v
	}
	if v, ok := sexp.GetPropertyValue(node, "Value"); ok {
		footprint.Value = v
	}
	for _, text := range node.FindAll("fp_text") {
		kind, _ := sexp.GetString(text, 1)
		value, _ := sexp.GetString(text, 2)
		switch {
		case kind == "reference" && footprint.Reference == "":
			footprint.Reference = value
		case kind == "value" && footprint.Value == "":
			footprint.Value = value
		}
	}

	for _, padNode := range node.FindAll("pad") {
		pad, err := parsePad(padNode, netMap)
		if err != nil {
			return nil, fmt.Errorf("footprint %s: %w", footprint.Reference, err)
		}
		footprint.Pads = append(footprint.Pads, *pad)
	}

	return footprint, nil
}

// parseFootprints extracts all footprint definitions from the root node
func parseFootprints(root *kicadsexp.List, netMap *NetMap) ([]Footprint, error) {
	footprints := []Footprint{}
	for _, fpNode := range root.FindAll("footprint") {
		footprint, err := parseFootprint(fpNode, netMap)
		if err != nil {
			return nil, err
		}
		footprints = append(footprints, *footprint)
	}
	return footprints, nil
}

// FindFootprint returns the footprint with the given reference.
func (b *Board) FindFootprint(ref string) *Footprint {
	for i := range b.Footprints {
		if b.Footprints[i].Reference == ref {
			return &b.Footprints[i]
		}
	}
	return nil
}
