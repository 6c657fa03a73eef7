package netlist

import (
	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/model"
)

// ScopesOf pairs every occurrence of h with its projected document. docs is
// keyed by instance path; occurrences without a document are skipped.
func ScopesOf(h *hierarchy.Hierarchy, docs map[string]*model.Document) []Scope {
	sheetPaths := map[*hierarchy.Scope]string{}
	var out []Scope
	for _, s := range h.Scopes {
		sp := "/"
		parent := ""
		if s.Parent != nil {
			sp = sheetPaths[s.Parent] + s.SheetName + "/"
			parent = s.Parent.Path
		}
		sheetPaths[s] = sp

		doc, ok := docs[s.Path]
		if !ok {
			continue
		}
		out = append(out, Scope{
			Path:      s.Path,
			Parent:    parent,
			SheetName: s.SheetName,
			SheetPath: sp,
			Doc:       doc,
		})
	}
	return out
}
