// Package hierarchy discovers the sheet tree of a KiCad project. Files are
// parsed once into an arena keyed by path; every sheet occurrence becomes
// its own Scope, so a file used by two sheets is two scopes sharing one
// parsed schematic.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
)

// CycleError reports a file that includes itself through its sheets. Path
// runs from the first occurrence of the file to its repetition.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "hierarchy cycle: " + strings.Join(e.Path, " -> ")
}

// Scope is one occurrence of a file in the design.
type Scope struct {
	Path      string // instance path: "/<root uuid>" then one "/<sheet uuid>" per level
	File      string
	SheetName string // name of the sheet in the parent; empty for the root
	Sheet     *schematic.Sheet
	Parent    *Scope
	Children  []*Scope
	Schematic *schematic.Schematic // nil when the file does not exist yet
}

// Depth returns the number of sheets between s and the root.
func (s *Scope) Depth() int {
	d := 0
	for p := s.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Hierarchy is the resolved sheet tree.
type Hierarchy struct {
	Root   *Scope
	Scopes []*Scope                         // depth first, children in file order
	Files  map[string]*schematic.Schematic // arena; nil entries are missing files
}

// FileOrder returns every file once, in the order scopes first reach it.
func (h *Hierarchy) FileOrder() []string {
	seen := map[string]bool{}
	var files []string
	for _, s := range h.Scopes {
		if !seen[s.File] {
			seen[s.File] = true
			files = append(files, s.File)
		}
	}
	return files
}

// ScopesOf returns the occurrences of file in depth-first order.
func (h *Hierarchy) ScopesOf(file string) []*Scope {
	var out []*Scope
	for _, s := range h.Scopes {
		if s.File == file {
			out = append(out, s)
		}
	}
	return out
}

// Scope returns the scope with the given instance path.
func (h *Hierarchy) Scope(path string) *Scope {
	for _, s := range h.Scopes {
		if s.Path == path {
			return s
		}
	}
	return nil
}

// ParentPins returns the pin names declared on every sheet that includes
// file. Nets of that name leave the file and get hierarchical labels.
func (h *Hierarchy) ParentPins(file string) map[string]bool {
	pins := map[string]bool{}
	for _, s := range h.ScopesOf(file) {
		if s.Sheet == nil {
			continue
		}
		for _, p := range s.Sheet.Pins {
			pins[p.Name] = true
		}
	}
	return pins
}

// ResolveOptions configures Resolve.
type ResolveOptions struct {
	// AllowMissing records sheets whose file does not exist with a nil
	// schematic instead of failing. Generation uses it: the file is about
	// to be created.
	AllowMissing bool
}

// Resolver walks sheet trees through a Loader.
type Resolver struct {
	Loader  Loader
	Options ResolveOptions
}

// NewResolver returns a resolver reading files through loader.
func NewResolver(loader Loader, opts ResolveOptions) *Resolver {
	return &Resolver{Loader: loader, Options: opts}
}

// workItem is a scope waiting to have its sheets expanded, with the files
// on its path from the root.
type workItem struct {
	scope *Scope
	chain []string
}

// Resolve loads root and every file its sheets reach. The walk uses an
// explicit stack, so arbitrarily deep hierarchies do not grow the Go stack.
func (r *Resolver) Resolve(ctx context.Context, root string) (*Hierarchy, error) {
	log := ctxlog.FromContext(ctx)
	root = filepath.Clean(root)

	h := &Hierarchy{Files: map[string]*schematic.Schematic{}}
	rootSch, err := r.load(h, root)
	if err != nil {
		return nil, err
	}
	h.Root = &Scope{File: root, Schematic: rootSch}
	if rootSch != nil {
		h.Root.Path = "/" + string(rootSch.UUID)
	}

	stack := []workItem{{scope: h.Root, chain: []string{root}}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		scope := item.scope
		h.Scopes = append(h.Scopes, scope)
		if scope.Schematic == nil {
			continue
		}

		for _, sh := range scope.Schematic.Sheets {
			if sh.FileName == "" {
				return nil, fmt.Errorf("%s: sheet %q has no file", scope.File, sh.Name)
			}
			file := childPath(scope.File, sh.FileName)
			for i, f := range item.chain {
				if f == file {
					path := append(append([]string(nil), item.chain[i:]...), file)
					return nil, &CycleError{Path: path}
				}
			}

			sch, err := r.load(h, file)
			if err != nil {
				return nil, fmt.Errorf("%s: sheet %q: %w", scope.File, sh.Name, err)
			}
			child := &Scope{
				Path:      scope.Path + "/" + string(sh.UUID),
				File:      file,
				SheetName: sh.Name,
				Sheet:     sh,
				Parent:    scope,
				Schematic: sch,
			}
			scope.Children = append(scope.Children, child)
		}

		// push in reverse so children pop in file order
		for i := len(scope.Children) - 1; i >= 0; i-- {
			chain := make([]string, len(item.chain)+1)
			copy(chain, item.chain)
			chain[len(item.chain)] = scope.Children[i].File
			stack = append(stack, workItem{scope: scope.Children[i], chain: chain})
		}
	}

	log.Debug("hierarchy resolved", "root", root, "scopes", len(h.Scopes), "files", len(h.Files))
	return h, nil
}

// load returns the arena entry for file, parsing it on first use.
func (r *Resolver) load(h *Hierarchy, file string) (*schematic.Schematic, error) {
	if sch, ok := h.Files[file]; ok {
		return sch, nil
	}
	sch, err := r.Loader.Load(file)
	if err != nil {
		if !r.Options.AllowMissing || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		sch = nil
	}
	h.Files[file] = sch
	return sch, nil
}

// childPath resolves a Sheetfile value against the including file.
func childPath(parent, sheetFile string) string {
	return filepath.Clean(filepath.Join(filepath.Dir(parent), filepath.FromSlash(sheetFile)))
}

// sortedFiles returns the arena keys sorted.
func (h *Hierarchy) sortedFiles() []string {
	files := make([]string, 0, len(h.Files))
	for f := range h.Files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
