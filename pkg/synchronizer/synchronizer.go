// Package synchronizer merges a declared circuit with the schematic files
// on disk and writes the result back. Manual edits made in the CAD tool
// survive: the description decides what exists and how it is connected,
// the files keep where things are.
//
// A generation run moves through LoadBaseline, DiffModel,
// ResolveConflicts, Place and Emit, and ends in Done or Aborted. Nothing
// is written unless every file was produced and validated.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mcuadros/go-version"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

// SupportedGenerator is the first KiCad release whose files may use
// syntax this tool does not know.
const SupportedGenerator = "9.0"

// Options configures a run.
type Options struct {
	// Dir is the project directory. Design keys are relative to it.
	Dir string
	// Project keys symbol instances and seeds generated UUIDs.
	Project string
	// LibraryPaths are searched for .kicad_sym files.
	LibraryPaths []string

	// Placement configures the engine. Area is set per paper.
	Placement placement.Options
	// CanvasWidth limits the width new units are packed into; 0 uses the
	// paper.
	CanvasWidth float64
	// Paper is used for new files.
	Paper string
	// MaxPaper bounds paper growth.
	MaxPaper string

	// GeneratorVersion is written to new files.
	GeneratorVersion string
	// DryRun computes everything but writes nothing.
	DryRun bool
	// Metrics, when set, records the run.
	Metrics *Metrics
}

// DefaultOptions returns options for a project in dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:              dir,
		Project:          "kisync",
		Placement:        placement.DefaultOptions(),
		Paper:            placement.PaperA4.Name,
		MaxPaper:         placement.PaperA0.Name,
		GeneratorVersion: "8.0",
	}
}

// FileResult reports one emitted file.
type FileResult struct {
	File    string // design key
	Path    string // on disk
	Written bool   // false when the content was already up to date
	Stats   schematic.Stats
	Changes Changeset
}

// Result is the outcome of a generation run.
type Result struct {
	Files    []FileResult
	Warnings []Warning
}

// Written returns the paths that were (or, in a dry run, would be)
// rewritten.
func (r *Result) Written() []string {
	var out []string
	for _, f := range r.Files {
		if f.Written {
			out = append(out, f.Path)
		}
	}
	return out
}

// fileState is the working set of one schematic file.
type fileState struct {
	key      string
	abs      string
	root     bool
	uuid     string
	baseline *schematic.Schematic // nil for a new file
	base     snapshot             // content hash taken at LoadBaseline
	baseDoc  *model.Document
	declared *model.Document
	doc      *model.Document // resolved
	matched  map[string]string
	scopes   []*scope
	hierNets map[string]bool
	changes  Changeset
}

func (f *fileState) primary() string { return f.scopes[0].path }

// Run is one generation. A Run is used once.
type Run struct {
	opts     Options
	state    State
	ids      IDSource
	repo     *schematic.Repository
	warnings []Warning
}

// NewRun prepares a run. Symbol lookups are cached for the run only.
func NewRun(opts Options) *Run {
	if opts.Paper == "" {
		opts.Paper = placement.PaperA4.Name
	}
	if opts.MaxPaper == "" {
		opts.MaxPaper = placement.PaperA0.Name
	}
	if opts.GeneratorVersion == "" {
		opts.GeneratorVersion = "8.0"
	}
	if opts.Placement.Metrics == (placement.Metrics{}) {
		opts.Placement.Metrics = placement.DefaultMetrics()
	}
	return &Run{
		opts: opts,
		ids:  NewIDSource(opts.Project),
		repo: schematic.NewRepository(opts.LibraryPaths...),
	}
}

// Generate runs a generation with default bookkeeping.
func Generate(ctx context.Context, design *model.Design, opts Options) (*Result, error) {
	return NewRun(opts).Generate(ctx, design)
}

// State reports where the run is.
func (r *Run) State() State { return r.state }

func (r *Run) transition(ctx context.Context, s State) {
	ctxlog.FromContext(ctx).Debug("state transition", "from", r.state.String(), "state", s.String())
	r.state = s
}

func (r *Run) warn(ws ...Warning) {
	r.warnings = append(r.warnings, ws...)
}

// Generate brings the files of design up to date with it.
func (r *Run) Generate(ctx context.Context, design *model.Design) (res *Result, err error) {
	if r.state != Idle {
		return nil, fmt.Errorf("run already used (state %s)", r.state)
	}
	log := ctxlog.FromContext(ctx)
	start := time.Now()
	defer func() {
		if err != nil {
			log.Error("run aborted", "state", r.state.String(), "error", err)
			r.transition(ctx, Aborted)
		}
		r.opts.Metrics.observeRun(r.state, time.Since(start).Seconds(), r.warnings)
	}()

	for _, key := range design.Files() {
		if err := design.Documents[key].Validate(); err != nil {
			return nil, fmt.Errorf("description %s: %w", key, err)
		}
	}

	r.transition(ctx, LoadBaseline)
	files, err := r.loadBaseline(ctx, design)
	if err != nil {
		return nil, err
	}

	r.transition(ctx, DiffModel)
	order, err := r.diff(ctx, design, files)
	if err != nil {
		return nil, err
	}

	r.transition(ctx, ResolveConflicts)
	r.resolveConflicts(order, files)

	r.transition(ctx, Place)
	for _, f := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.place(ctx, f); err != nil {
			return nil, err
		}
	}

	r.transition(ctx, Emit)
	res, err = r.emit(ctx, order)
	if err != nil {
		return nil, err
	}
	res.Warnings = r.warnings

	r.transition(ctx, Done)
	log.Info("generation finished", "files", len(res.Files), "written", len(res.Written()), "warnings", len(res.Warnings))
	return res, nil
}

// path returns the location of a design key on disk.
func (r *Run) path(key string) string {
	return filepath.Join(r.opts.Dir, filepath.FromSlash(key))
}

// key returns the design key of a path on disk.
func (r *Run) key(path string) string {
	rel, err := filepath.Rel(r.opts.Dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// loadBaseline parses the existing hierarchy and every declared file on
// disk. Grammar and hierarchy errors abort the run here, before anything
// is written.
func (r *Run) loadBaseline(ctx context.Context, design *model.Design) (map[string]*fileState, error) {
	log := ctxlog.FromContext(ctx)
	baseline := map[string]*schematic.Schematic{}

	// hashed before parsing so an edit made after this point is caught at
	// commit
	snapshots := map[string]snapshot{}
	for _, key := range design.Files() {
		snap, err := takeSnapshot(r.path(key))
		if err != nil {
			return nil, err
		}
		snapshots[key] = snap
	}

	rootPath := r.path(design.Root)
	if _, err := os.Stat(rootPath); err == nil {
		h, err := hierarchy.NewResolver(hierarchy.FileLoader{}, hierarchy.ResolveOptions{AllowMissing: true}).Resolve(ctx, rootPath)
		if err != nil {
			return nil, err
		}
		for path, sch := range h.Files {
			if sch != nil {
				baseline[r.key(path)] = sch
			}
		}
		for _, key := range h.FileOrder() {
			if design.Documents[r.key(key)] == nil {
				r.warn(Warning{Kind: OrphanSheet, File: r.key(key), Message: "no longer referenced by the description"})
			}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	files := map[string]*fileState{}
	for _, key := range design.Files() {
		sch, ok := baseline[key]
		if !ok {
			loaded, err := schematic.ParseFile(r.path(key))
			switch {
			case err == nil:
				sch = loaded
			case errors.Is(err, fs.ErrNotExist):
			default:
				return nil, err
			}
		}
		if sch != nil {
			r.warn(generatorWarnings(key, sch)...)
		}
		files[key] = &fileState{
			key:      key,
			abs:      r.path(key),
			root:     key == design.Root,
			baseline: sch,
			base:     snapshots[key],
			declared: design.Documents[key],
		}
		log.Debug("baseline loaded", "file", key, "exists", sch != nil)
	}
	return files, nil
}

// generatorWarnings flags files written by a newer KiCad than the one
// this package targets.
func generatorWarnings(key string, sch *schematic.Schematic) []Warning {
	var out []Warning
	if sch.GeneratorVer != "" && version.CompareSimple(sch.GeneratorVer, SupportedGenerator) >= 0 {
		out = append(out, Warning{
			Kind:    NewerGenerator,
			File:    key,
			Message: fmt.Sprintf("written by %s %s; newer syntax is passed through unchanged", sch.Generator, sch.GeneratorVer),
		})
	}
	if sch.Version > schematic.FileVersion {
		out = append(out, Warning{
			Kind:    NewerGenerator,
			File:    key,
			Message: fmt.Sprintf("file format %d is newer than %d", sch.Version, schematic.FileVersion),
		})
	}
	return out
}

// diff assigns identities, expands the declared hierarchy into scopes and
// compares every file with its baseline. It returns the files in the order
// the hierarchy first reaches them.
func (r *Run) diff(ctx context.Context, design *model.Design, files map[string]*fileState) ([]*fileState, error) {
	log := ctxlog.FromContext(ctx)
	work := design.Clone()

	for _, key := range work.Files() {
		f := files[key]
		f.uuid = r.ids.ID(key, "file")
		if f.baseline != nil {
			f.uuid = string(f.baseline.UUID)
		}
		doc := work.Documents[key]
		for _, name := range doc.SheetNames() {
			s := doc.Sheets[name]
			if s.UUID != "" {
				continue
			}
			if f.baseline != nil {
				if sh := f.baseline.SheetByName(name); sh != nil {
					s.UUID = string(sh.UUID)
					continue
				}
			}
			s.UUID = r.ids.ID(key, "sheet/"+name)
		}
	}

	scopes, err := planScopes(work, files[work.Root].uuid)
	if err != nil {
		return nil, err
	}

	var order []*fileState
	for _, s := range scopes {
		f := files[s.file]
		if len(f.scopes) == 0 {
			order = append(order, f)
		}
		f.scopes = append(f.scopes, s)
	}
	for _, key := range work.Files() {
		if len(files[key].scopes) == 0 {
			r.warn(Warning{Kind: OrphanSheet, File: key, Message: "document is not reachable from the root; skipped"})
		}
	}

	for _, f := range order {
		if f.baseline != nil {
			base, err := schematic.Project(f.baseline, r.repo, f.primary())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.key, err)
			}
			f.baseDoc = base
		}
		res := resolve(f.key, work.Documents[f.key], f.baseDoc)
		f.doc = res.doc
		f.matched = res.matched
		f.changes = res.changes
		r.warn(res.warnings...)
		if f.doc.Metadata.Paper == "" {
			f.doc.Metadata.Paper = r.opts.Paper
		}
		log.Debug("diffed", "file", f.key,
			"added", len(f.changes.Added), "removed", len(f.changes.Removed),
			"modified", len(f.changes.Modified), "renamed", len(f.changes.Renamed))
	}
	return order, nil
}

// resolveConflicts settles what the authority rules in resolve leave
// open: the label kind of every net, and symbols no library defines.
func (r *Run) resolveConflicts(order []*fileState, files map[string]*fileState) {
	for _, f := range order {
		f.hierNets = map[string]bool{}
		for _, s := range f.scopes {
			if s.parent == nil {
				continue
			}
			sheet := files[s.parent.file].doc.Sheets[s.sheet]
			for _, p := range sheet.Pins {
				if !f.doc.IsGlobal(p.Name) {
					f.hierNets[p.Name] = true
				}
			}
		}

		seen := map[string]bool{}
		for _, ref := range f.doc.Refs() {
			c := f.doc.Components[ref]
			if seen[c.Symbol] {
				continue
			}
			seen[c.Symbol] = true
			if _, found := r.repo.Resolve(c.Symbol, c.Pins); !found {
				r.warn(Warning{
					Kind:    SymbolNotFound,
					File:    f.key,
					Ref:     ref,
					Message: fmt.Sprintf("no library defines %s; a generic symbol is used", c.Symbol),
				})
			}
		}
	}
}

// emit applies every resolved document to its file, validates the output
// and commits the changed files together.
func (r *Run) emit(ctx context.Context, order []*fileState) (*Result, error) {
	pages := map[string]string{}
	for _, f := range order {
		for _, s := range f.scopes {
			if s.parent != nil {
				pages[s.parent.path+"\x00"+s.sheet] = s.page
			}
		}
	}
	page := func(path, sheet string) string { return pages[path+"\x00"+sheet] }

	res := &Result{}
	var writes []*pendingWrite
	for _, f := range order {
		sch := f.baseline
		if sch == nil {
			tree := schematic.NewTree(f.uuid, f.doc.Metadata.Paper, r.opts.GeneratorVersion, f.root)
			var err error
			if sch, err = schematic.ParseTree(tree, f.abs); err != nil {
				return nil, fmt.Errorf("%s: %w", f.key, err)
			}
		}

		stats, err := schematic.Unproject(f.doc, sch, r.repo, schematic.UnprojectOptions{
			Project:   r.opts.Project,
			Instances: annotate(f.scopes, f.doc, f.baseline, f.matched),
			NewUUID:   r.ids.For(f.key),
			HierNets:  f.hierNets,
			Page:      page,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}

		data := kicadsexp.Format(sch.Tree)
		if _, err := schematic.ParseBytes(f.abs, data); err != nil {
			return nil, fmt.Errorf("%s: emitted file does not parse: %w", f.key, err)
		}
		same, err := f.base.holds(data)
		if err != nil {
			return nil, err
		}

		fr := FileResult{File: f.key, Path: f.abs, Written: !same, Stats: stats, Changes: f.changes}
		if !same {
			writes = append(writes, &pendingWrite{path: f.abs, data: data, base: f.base})
		}
		res.Files = append(res.Files, fr)
	}

	if !r.opts.DryRun && len(writes) > 0 {
		if err := commit(ctx, writes); err != nil {
			return nil, err
		}
	}
	for _, f := range res.Files {
		r.opts.Metrics.observeFile(f)
	}
	return res, nil
}
