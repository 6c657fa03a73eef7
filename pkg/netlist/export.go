package netlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

// ExportKiCad exports the netlist in KiCad's (export (version "E") ...)
// format, readable by Pcbnew and third-party tools. source names the root
// schematic.
func (nl *Netlist) ExportKiCad(source string) ([]byte, error) {
	if nl.Nets == nil {
		return nil, fmt.Errorf("netlist: not finalized")
	}

	design := kicadsexp.NewList("design",
		kicadsexp.NewList("source", kicadsexp.Str(source)),
		kicadsexp.NewList("tool", kicadsexp.Str("kisync")))

	comps := kicadsexp.NewList("components")
	for _, c := range nl.Components {
		comp := kicadsexp.NewList("comp",
			kicadsexp.NewList("ref", kicadsexp.Str(c.Ref)),
			kicadsexp.NewList("value", kicadsexp.Str(c.Value)))
		if c.Footprint != "" {
			comp.Append(kicadsexp.NewList("footprint", kicadsexp.Str(c.Footprint)))
		}
		lib, part, ok := strings.Cut(c.Symbol, ":")
		if !ok {
			lib, part = "", c.Symbol
		}
		comp.Append(
			kicadsexp.NewList("libsource",
				kicadsexp.NewList("lib", kicadsexp.Str(lib)),
				kicadsexp.NewList("part", kicadsexp.Str(part))),
			kicadsexp.NewList("sheetpath",
				kicadsexp.NewList("names", kicadsexp.Str(c.SheetPath)),
				kicadsexp.NewList("tstamps", kicadsexp.Str(tstamps(c.Scope)))))
		if c.UUID != "" {
			comp.Append(kicadsexp.NewList("tstamps", kicadsexp.Str(c.UUID)))
		}
		comps.Append(comp)
	}

	nets := kicadsexp.NewList("nets")
	for _, n := range nl.Nets {
		net := kicadsexp.NewList("net",
			kicadsexp.NewList("code", kicadsexp.Str(strconv.Itoa(n.Code))),
			kicadsexp.NewList("name", kicadsexp.Str(n.Name)))
		for _, node := range n.Nodes {
			nn := kicadsexp.NewList("node",
				kicadsexp.NewList("ref", kicadsexp.Str(node.Ref)),
				kicadsexp.NewList("pin", kicadsexp.Str(node.Pin)))
			if node.PinType != "" {
				nn.Append(kicadsexp.NewList("pintype", kicadsexp.Str(node.PinType)))
			}
			net.Append(nn)
		}
		nets.Append(net)
	}

	root := kicadsexp.NewList("export",
		kicadsexp.NewList("version", kicadsexp.Str("E")),
		design, comps, nets)
	return kicadsexp.Format(kicadsexp.NewTree(root)), nil
}

// tstamps converts an instance path to the sheet part of KiCad's tstamps
// path: the root UUID is dropped and a trailing slash added.
func tstamps(scope string) string {
	parts := strings.Split(strings.Trim(scope, "/"), "/")
	if len(parts) <= 1 {
		return "/"
	}
	return "/" + strings.Join(parts[1:], "/") + "/"
}
