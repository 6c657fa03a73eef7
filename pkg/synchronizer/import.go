package synchronizer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// Projection is a project read from disk: the sheet tree and the document
// of every occurrence.
type Projection struct {
	Dir       string
	Root      string // design key of the root file
	Hierarchy *hierarchy.Hierarchy
	Docs      map[string]*model.Document // by instance path
	Repo      *schematic.Repository
}

// Key returns the design key of a hierarchy file.
func (p *Projection) Key(file string) string {
	rel, err := filepath.Rel(p.Dir, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// ProjectHierarchy resolves the sheet tree under root and projects each
// occurrence with its own reference designators.
func ProjectHierarchy(ctx context.Context, root string, libraryPaths []string) (*Projection, error) {
	h, err := hierarchy.NewResolver(hierarchy.FileLoader{}, hierarchy.ResolveOptions{}).Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	p := &Projection{
		Dir:       filepath.Dir(h.Root.File),
		Hierarchy: h,
		Docs:      map[string]*model.Document{},
		Repo:      schematic.NewRepository(libraryPaths...),
	}
	p.Root = p.Key(h.Root.File)

	for _, s := range h.Scopes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := schematic.Project(s.Schematic, p.Repo, s.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.File, err)
		}
		p.Docs[s.Path] = doc
	}
	return p, nil
}

// Design returns one document per file, each as seen from the first
// occurrence of the file.
func (p *Projection) Design() *model.Design {
	d := model.NewDesign(p.Root)
	for _, file := range p.Hierarchy.FileOrder() {
		d.Documents[p.Key(file)] = p.Docs[p.Hierarchy.ScopesOf(file)[0].Path]
	}
	return d
}

// Import reads the project rooted at root back into a design. It is the
// inverse of Generate: importing what Generate wrote yields a design
// equivalent to the one it was given.
func Import(ctx context.Context, root string, opts Options) (*model.Design, []Warning, error) {
	log := ctxlog.FromContext(ctx)

	p, err := ProjectHierarchy(ctx, root, opts.LibraryPaths)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := p.fileWarnings()
	if err != nil {
		return nil, nil, err
	}
	d := p.Design()
	log.Info("imported", "root", p.Root, "files", len(d.Documents), "scopes", len(p.Hierarchy.Scopes))
	return d, warnings, nil
}

// fileWarnings reports newer generators and orphan files.
func (p *Projection) fileWarnings() ([]Warning, error) {
	var out []Warning
	for _, file := range p.Hierarchy.FileOrder() {
		out = append(out, generatorWarnings(p.Key(file), p.Hierarchy.Files[file])...)
	}
	orphans, err := hierarchy.FindOrphans(p.Dir, p.Hierarchy)
	if err != nil {
		return nil, err
	}
	for _, o := range orphans {
		out = append(out, Warning{
			Kind:    OrphanSheet,
			File:    p.Key(o),
			Message: "not referenced by any sheet",
		})
	}
	return out, nil
}

// Check inspects a project without changing it. Fatal problems (grammar
// errors, reference conflicts, cycles) are returned as the error; the
// rest are warnings. Net asymmetries are reported as errors joined into
// one.
func Check(ctx context.Context, root string, opts Options) ([]Warning, error) {
	p, err := ProjectHierarchy(ctx, root, opts.LibraryPaths)
	if err != nil {
		return nil, err
	}
	warnings, err := p.fileWarnings()
	if err != nil {
		return nil, err
	}

	m := opts.Placement.Metrics
	if m == (placement.Metrics{}) {
		m = placement.DefaultMetrics()
	}

	var problems []string
	for _, file := range p.Hierarchy.FileOrder() {
		key := p.Key(file)
		s := p.Hierarchy.ScopesOf(file)[0]
		doc := p.Docs[s.Path]
		if err := doc.CheckSymmetry(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}

		matched := map[string]string{}
		for _, ref := range doc.Refs() {
			matched[ref] = ref
		}
		l := buildLayout(s.Schematic, s.Path, doc, matched, p.Repo, p.Hierarchy.ParentPins(file), m)
		warnings = append(warnings, overlaps(key, l)...)
	}
	sort.Strings(problems)
	if len(problems) > 0 {
		return warnings, &CheckError{Problems: problems}
	}
	return warnings, nil
}

// CheckError lists the problems Check found that are not fatal to parsing.
type CheckError struct {
	Problems []string
}

func (e *CheckError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%s (and %d more)", e.Problems[0], len(e.Problems)-1)
}
