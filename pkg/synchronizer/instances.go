package synchronizer

import (
	"path"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/model"
)

// InstanceOffset separates the references of successive occurrences of one
// file: R1 in the first occurrence is R101 in the second.
const InstanceOffset = 100

// scope is one occurrence of a declared document.
type scope struct {
	file   string // design key
	path   string // instance path
	sheet  string // sheet name in the parent
	parent *scope
	page   string
}

// planScopes walks the declared sheet tree from the root document. Sheet
// UUIDs must already be assigned. Each work item carries the files on its
// path so a file that includes itself is reported with the whole cycle.
func planScopes(design *model.Design, rootUUID string) ([]*scope, error) {
	type item struct {
		s     *scope
		chain []string
	}
	root := &scope{file: design.Root, path: "/" + rootUUID}
	stack := []item{{s: root, chain: []string{design.Root}}}

	var out []*scope
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, it.s)
		it.s.page = strconv.Itoa(len(out))

		doc := design.Documents[it.s.file]
		names := doc.SheetNames()
		children := make([]item, 0, len(names))
		for _, name := range names {
			sh := doc.Sheets[name]
			file := sheetFile(it.s.file, sh.File)
			for i, f := range it.chain {
				if f == file {
					cycle := append(append([]string(nil), it.chain[i:]...), file)
					return nil, &hierarchy.CycleError{Path: cycle}
				}
			}
			if design.Documents[file] == nil {
				return nil, &MissingDocumentError{File: file, Sheet: name, Parent: it.s.file}
			}
			chain := make([]string, len(it.chain)+1)
			copy(chain, it.chain)
			chain[len(it.chain)] = file
			children = append(children, item{
				s:     &scope{file: file, path: it.s.path + "/" + sh.UUID, sheet: name, parent: it.s},
				chain: chain,
			})
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return out, nil
}

// MissingDocumentError reports a declared sheet whose file has no document
// in the description.
type MissingDocumentError struct {
	File   string
	Sheet  string
	Parent string
}

func (e *MissingDocumentError) Error() string {
	return "sheet " + e.Sheet + " in " + e.Parent + " uses " + e.File + ", which the description does not define"
}

// sheetFile resolves a Sheetfile value against the including design key.
func sheetFile(parent, file string) string {
	return path.Clean(path.Join(path.Dir(parent), strings.ReplaceAll(file, "\\", "/")))
}

// offsetRef renumbers ref for the n-th additional occurrence of its file.
func offsetRef(ref string, n int) string {
	i := len(ref)
	for i > 0 && ref[i-1] >= '0' && ref[i-1] <= '9' {
		i--
	}
	num := 0
	if i < len(ref) {
		num, _ = strconv.Atoi(ref[i:])
	}
	return ref[:i] + strconv.Itoa(num+n*InstanceOffset)
}

// annotate returns the occurrences of a file for Unproject. The first
// occurrence uses the document's references. Later ones keep the
// designators the baseline already gives them and are otherwise offset by
// InstanceOffset per occurrence.
func annotate(scopes []*scope, doc *model.Document, baseline *schematic.Schematic, matched map[string]string) []schematic.Instance {
	out := make([]schematic.Instance, len(scopes))
	for k, s := range scopes {
		out[k] = schematic.Instance{Path: s.path}
		if k == 0 {
			continue
		}
		out[k].Refs = map[string]string{}
		for _, ref := range doc.Refs() {
			want := offsetRef(ref, k)
			if baseline != nil {
				if old, ok := matched[ref]; ok && old == ref {
					if sym := baseline.GetSymbol(old, scopes[0].path); sym != nil {
						if inst, ok := sym.Instance(s.path); ok && inst.Reference != "" {
							want = inst.Reference
						}
					}
				}
			}
			out[k].Refs[ref] = want
		}
	}
	return out
}
