// Package netlist flattens the per-file circuit documents of a design into
// design-wide nets.
//
// Each sheet occurrence contributes its document. Nets connect across
// occurrences in two ways:
//
//   - a net listed in a document's globals joins every net of that name,
//   - a net in a child document whose name matches a pin of the parent's
//     sheet symbol joins the parent net wired to that sheet pin.
//
// Connectivity is tracked with a union-find over keys scoped by instance
// path. The result exports to JSON or to KiCad's netlist format:
//
//	nl, err := netlist.Build(netlist.ScopesOf(h, docs))
//	if err != nil {
//		return err
//	}
//	data, err := nl.ExportKiCad("top.kicad_sch")
package netlist
