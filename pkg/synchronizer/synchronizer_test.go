package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/kisync/pkg/hierarchy"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

const deviceLibrary = `(kicad_symbol_lib
	(version 20231120)
	(generator "kicad_symbol_editor")
	(symbol "R"
		(pin_numbers hide)
		(property "Reference" "R" (at 2.032 0 90) (effects (font (size 1.27 1.27))))
		(property "Value" "R" (at 0 0 90) (effects (font (size 1.27 1.27))))
		(symbol "R_0_1"
			(rectangle (start -1.016 -2.54) (end 1.016 2.54)
				(stroke (width 0.254) (type default))
				(fill (type none))
			)
		)
		(symbol "R_1_1"
			(pin passive line (at 0 3.81 270) (length 1.27)
				(name "~" (effects (font (size 1.27 1.27))))
				(number "1" (effects (font (size 1.27 1.27))))
			)
			(pin passive line (at 0 -3.81 90) (length 1.27)
				(name "~" (effects (font (size 1.27 1.27))))
				(number "2" (effects (font (size 1.27 1.27))))
			)
		)
	)
)
`

const rootFile = "top.kicad_sch"

// newProject returns options for an empty project directory with the
// Device library on the search path.
func newProject(t *testing.T) Options {
	t.Helper()
	lib := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(lib, "Device.kicad_sym"), []byte(deviceLibrary), 0o644))

	opts := DefaultOptions(t.TempDir())
	opts.Project = "demo"
	opts.LibraryPaths = []string{lib}
	return opts
}

func resistor(value string, pos *model.Position) *model.Component {
	return &model.Component{Symbol: "Device:R", Value: value, Position: pos}
}

// twoResistors is a divider: R1 fixed at (30, 20), R2 left to placement.
func twoResistors() *model.Design {
	d := model.NewDesign(rootFile)
	doc := d.RootDocument()
	doc.Components["R1"] = resistor("10k", &model.Position{X: 30, Y: 20})
	doc.Components["R2"] = resistor("4k7", nil)
	doc.Nets["VIN"] = []string{"R1.1"}
	doc.Nets["MID"] = []string{"R1.2", "R2.1"}
	doc.Nets["GND"] = []string{"R2.2"}
	doc.Globals = []string{"GND"}
	return d
}

func generate(t *testing.T, d *model.Design, opts Options) *Result {
	t.Helper()
	res, err := Generate(context.Background(), d, opts)
	require.NoError(t, err)
	return res
}

func importDesign(t *testing.T, opts Options) *model.Design {
	t.Helper()
	d, _, err := Import(context.Background(), filepath.Join(opts.Dir, rootFile), opts)
	require.NoError(t, err)
	return d
}

func readFile(t *testing.T, opts Options, key string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(opts.Dir, key))
	require.NoError(t, err)
	return string(data)
}

// symbolBlock returns the top-level (symbol ...) block carrying ref.
func symbolBlock(t *testing.T, text, ref string) string {
	t.Helper()
	i := strings.Index(text, `(property "Reference" "`+ref+`"`)
	require.GreaterOrEqual(t, i, 0, "no symbol %s", ref)
	start := strings.LastIndex(text[:i], "\n\t(symbol")
	require.GreaterOrEqual(t, start, 0)
	end := strings.Index(text[start+1:], "\n\t)")
	require.GreaterOrEqual(t, end, 0)
	return text[start : start+1+end+3]
}

func warningsOf(ws []Warning, kind WarningKind) []Warning {
	var out []Warning
	for _, w := range ws {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, TempPrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "staged files left behind")
}

func TestGenerateTwoResistors(t *testing.T) {
	opts := newProject(t)
	d := twoResistors()

	run := NewRun(opts)
	res, err := run.Generate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, Done, run.State())
	require.Len(t, res.Files, 1)
	assert.True(t, res.Files[0].Written)
	assert.Equal(t, 2, res.Files[0].Stats.Added)
	assert.Empty(t, warningsOf(res.Warnings, SymbolNotFound))
	assert.Empty(t, warningsOf(res.Warnings, OverlapDetected))

	text := readFile(t, opts, rootFile)
	assert.Contains(t, text, `(lib_id "Device:R")`)
	assert.Contains(t, text, `(global_label "GND"`)
	assertNoTempFiles(t, opts.Dir)

	back := importDesign(t, opts)
	assert.Empty(t, model.DesignEquivalenceDiff(d, back, model.IgnoreLayout()))

	r1 := back.RootDocument().Components["R1"]
	require.NotNil(t, r1.Position)
	assert.InDelta(t, 30, r1.Position.X, 1e-6)
	assert.InDelta(t, 20, r1.Position.Y, 1e-6)
	r2 := back.RootDocument().Components["R2"]
	require.NotNil(t, r2.Position)
	assert.False(t, model.SamePosition(r1.Position, r2.Position))
}

func TestGenerateIsIdempotent(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)
	first := readFile(t, opts, rootFile)

	res := generate(t, twoResistors(), opts)
	assert.Empty(t, res.Written())
	assert.False(t, res.Files[0].Stats.Changed(), "second run changed %+v", res.Files[0].Stats)
	assert.Equal(t, first, readFile(t, opts, rootFile))

	// the imported design is a fixed point as well
	res = generate(t, importDesign(t, opts), opts)
	assert.Empty(t, res.Written())
	assert.Equal(t, first, readFile(t, opts, rootFile))
}

func TestGeneratePreservesPosition(t *testing.T) {
	opts := newProject(t)
	d := model.NewDesign(rootFile)
	doc := d.RootDocument()
	doc.Components["R1"] = resistor("10k", &model.Position{X: 30, Y: 20})
	doc.Nets["VIN"] = []string{"R1.1"}
	doc.Nets["MID"] = []string{"R1.2"}
	generate(t, d, opts)

	// R2 is added and the description no longer says where R1 goes
	d = twoResistors()
	d.RootDocument().Components["R1"].Position = nil
	generate(t, d, opts)

	r1 := importDesign(t, opts).RootDocument().Components["R1"]
	require.NotNil(t, r1.Position)
	assert.InDelta(t, 30, r1.Position.X, 1e-6)
	assert.InDelta(t, 20, r1.Position.Y, 1e-6)
	assert.InDelta(t, 0, r1.Position.Rot, 1e-6)
}

func TestGenerateKeepsManualMoves(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)

	// move R1 in the editor
	text := readFile(t, opts, rootFile)
	block := symbolBlock(t, text, "R1")
	require.Contains(t, block, "(at 30 20 0)")
	movedBlock := strings.Replace(block, "(at 30 20 0)", "(at 60.96 40.64 90)", 1)
	text = strings.Replace(text, block, movedBlock, 1)
	require.NoError(t, os.WriteFile(filepath.Join(opts.Dir, rootFile), []byte(text), 0o644))

	// the declared position (30, 20) loses against the one in the file
	res := generate(t, twoResistors(), opts)
	conflicts := warningsOf(res.Warnings, ConflictResolution)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "R1", conflicts[0].Ref)
	assert.Equal(t, "position", conflicts[0].Field)
	assert.Contains(t, conflicts[0].Message, "baseline wins")

	r1 := importDesign(t, opts).RootDocument().Components["R1"]
	assert.InDelta(t, 60.96, r1.Position.X, 1e-6)
	assert.InDelta(t, 90, r1.Position.Rot, 1e-6)
}

func TestGenerateValueConflict(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)

	d := twoResistors()
	d.RootDocument().Components["R2"].Value = "2k2"
	res := generate(t, d, opts)

	conflicts := warningsOf(res.Warnings, ConflictResolution)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "R2", conflicts[0].Ref)
	assert.Equal(t, "value", conflicts[0].Field)
	assert.Contains(t, conflicts[0].Message, "description wins")
	assert.Equal(t, "2k2", importDesign(t, opts).RootDocument().Components["R2"].Value)
}

func TestGenerateRemovesComponent(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)
	before := readFile(t, opts, rootFile)

	d := twoResistors()
	doc := d.RootDocument()
	delete(doc.Components, "R2")
	doc.Nets["MID"] = []string{"R1.2"}
	delete(doc.Nets, "GND")
	doc.Globals = nil
	res := generate(t, d, opts)
	assert.Equal(t, 1, res.Files[0].Stats.Removed)

	after := readFile(t, opts, rootFile)
	assert.Equal(t, symbolBlock(t, before, "R1"), symbolBlock(t, after, "R1"))
	assert.NotContains(t, after, `"R2"`)
	assert.NotContains(t, after, `(global_label "GND"`)
	assert.Empty(t, model.DesignEquivalenceDiff(d, importDesign(t, opts), model.IgnoreLayout()))
}

func TestImportPropagatesRename(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)
	described := importDesign(t, opts)

	// rename R1 to R100 the way the schematic editor would
	path := filepath.Join(opts.Dir, rootFile)
	text := readFile(t, opts, rootFile)
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(text, `"R1"`, `"R100"`)), 0o644))

	doc := importDesign(t, opts).RootDocument()
	assert.NotContains(t, doc.Components, "R1")
	assert.Contains(t, doc.Components, "R100")
	assert.Equal(t, []string{"R100.1"}, doc.Nets["VIN"])
	assert.ElementsMatch(t, []string{"R100.2", "R2.1"}, doc.Nets["MID"])
	for name, members := range doc.Nets {
		for _, m := range members {
			assert.False(t, strings.HasPrefix(m, "R1."), "net %s still lists %s", name, m)
		}
	}

	// the description still says R1: the UUID pairs them and the
	// description's reference wins
	res := generate(t, described, opts)
	renames := warningsOf(res.Warnings, RenameDetected)
	require.Len(t, renames, 1)
	assert.Equal(t, "R1", renames[0].Ref)

	doc = importDesign(t, opts).RootDocument()
	assert.Contains(t, doc.Components, "R1")
	assert.NotContains(t, doc.Components, "R100")
}

func TestGenerateCycleAborts(t *testing.T) {
	opts := newProject(t)
	d := model.NewDesign(rootFile)
	d.RootDocument().Sheets["a"] = &model.Sheet{File: "a.kicad_sch"}
	a := model.NewDocument()
	a.Sheets["back"] = &model.Sheet{File: rootFile}
	d.Documents["a.kicad_sch"] = a

	run := NewRun(opts)
	_, err := run.Generate(context.Background(), d)
	var cycle *hierarchy.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{rootFile, "a.kicad_sch", rootFile}, cycle.Path)
	assert.Equal(t, Aborted, run.State())

	entries, err := os.ReadDir(opts.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenerateGrammarErrorAborts(t *testing.T) {
	opts := newProject(t)
	broken := "(kicad_sch (version 20231120)\n\t(uuid \"x\")\n"
	path := filepath.Join(opts.Dir, rootFile)
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	_, err := Generate(context.Background(), twoResistors(), opts)
	var grammar *kicadsexp.GrammarError
	require.ErrorAs(t, err, &grammar)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, broken, string(data))
	assertNoTempFiles(t, opts.Dir)
}

func TestGenerateRejectsInvalidDescription(t *testing.T) {
	opts := newProject(t)
	d := twoResistors()
	d.RootDocument().Nets["MID"] = append(d.RootDocument().Nets["MID"], "R9.1")

	_, err := Generate(context.Background(), d, opts)
	var sym *model.SymmetryError
	require.ErrorAs(t, err, &sym)
	_, err = os.Stat(filepath.Join(opts.Dir, rootFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerateDryRun(t *testing.T) {
	opts := newProject(t)
	opts.DryRun = true

	res := generate(t, twoResistors(), opts)
	assert.Len(t, res.Written(), 1)
	_, err := os.Stat(filepath.Join(opts.Dir, rootFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// channelDesign instantiates channel.kicad_sch twice.
func channelDesign() *model.Design {
	d := model.NewDesign(rootFile)
	root := d.RootDocument()
	for _, name := range []string{"ch_a", "ch_b"} {
		root.Sheets[name] = &model.Sheet{
			File: "channel.kicad_sch",
			Pins: []model.SheetPin{{Name: "IN", Direction: "input"}},
		}
	}
	ch := model.NewDocument()
	ch.Components["R1"] = resistor("1k", nil)
	ch.Nets["IN"] = []string{"R1.1"}
	ch.Nets["GND"] = []string{"R1.2"}
	ch.Globals = []string{"GND"}
	d.Documents["channel.kicad_sch"] = ch
	return d
}

func TestGenerateMultiInstance(t *testing.T) {
	opts := newProject(t)
	res := generate(t, channelDesign(), opts)
	assert.Len(t, res.Written(), 2)

	text := readFile(t, opts, "channel.kicad_sch")
	assert.Contains(t, text, `(reference "R1")`)
	assert.Contains(t, text, `(reference "R101")`)
	assert.Contains(t, text, `(hierarchical_label "IN"`)

	p, err := ProjectHierarchy(context.Background(), filepath.Join(opts.Dir, rootFile), opts.LibraryPaths)
	require.NoError(t, err)
	require.Len(t, p.Hierarchy.Scopes, 3)

	var refs []string
	for _, s := range p.Hierarchy.ScopesOf(filepath.Join(opts.Dir, "channel.kicad_sch")) {
		refs = append(refs, p.Docs[s.Path].Refs()...)
	}
	assert.ElementsMatch(t, []string{"R1", "R101"}, refs)

	// a second run keeps the annotation
	res = generate(t, channelDesign(), opts)
	assert.Empty(t, res.Written())
}

func TestGenerateMissingSheetDocument(t *testing.T) {
	opts := newProject(t)
	d := model.NewDesign(rootFile)
	d.RootDocument().Sheets["io"] = &model.Sheet{File: "io.kicad_sch"}

	_, err := Generate(context.Background(), d, opts)
	var missing *MissingDocumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "io.kicad_sch", missing.File)
}

// manyResistors declares n unplaced resistors with private nets.
func manyResistors(n int) *model.Design {
	d := model.NewDesign(rootFile)
	doc := d.RootDocument()
	for i := 1; i <= n; i++ {
		ref := fmt.Sprintf("R%d", i)
		doc.Components[ref] = resistor("1k", nil)
		doc.Nets[fmt.Sprintf("A%d", i)] = []string{ref + ".1"}
		doc.Nets[fmt.Sprintf("B%d", i)] = []string{ref + ".2"}
	}
	return d
}

func TestGenerateGrowsPaper(t *testing.T) {
	opts := newProject(t)
	res := generate(t, manyResistors(200), opts)

	grown := warningsOf(res.Warnings, PaperGrown)
	require.Len(t, grown, 1)

	doc := importDesign(t, opts).RootDocument()
	assert.NotEqual(t, placement.PaperA4.Name, doc.Metadata.Paper)
	assert.Len(t, doc.Components, 200)
}

func TestGenerateOverflow(t *testing.T) {
	opts := newProject(t)
	opts.MaxPaper = placement.PaperA4.Name

	_, err := Generate(context.Background(), manyResistors(200), opts)
	var overflow *placement.OverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, placement.PaperA4.Name, overflow.Max.Name)
	_, err = os.Stat(filepath.Join(opts.Dir, rootFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerateUsesUserPaperSize(t *testing.T) {
	opts := newProject(t)
	d := twoResistors()
	d.RootDocument().Metadata.Paper = placement.UserPaper
	generate(t, d, opts)

	path := filepath.Join(opts.Dir, rootFile)
	text := readFile(t, opts, rootFile)
	require.Contains(t, text, `(paper "User")`)
	text = strings.Replace(text, `(paper "User")`, `(paper "User" 600 400)`, 1)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	d = manyResistors(60)
	d.RootDocument().Metadata.Paper = placement.UserPaper
	res := generate(t, d, opts)
	assert.Empty(t, warningsOf(res.Warnings, PaperGrown))
	assert.Contains(t, readFile(t, opts, rootFile), `(paper "User" 600 400)`)

	maxX := 0.0
	for _, c := range importDesign(t, opts).RootDocument().Components {
		require.NotNil(t, c.Position)
		maxX = math.Max(maxX, c.Position.X)
	}
	assert.Greater(t, maxX, placement.Usable(placement.PaperA4).Max.X, "layout confined to A4")
	assert.LessOrEqual(t, maxX, placement.Usable(placement.Paper{Width: 600, Height: 400}).Max.X)
}

func TestGenerateCancelled(t *testing.T) {
	opts := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Generate(ctx, twoResistors(), opts)
	require.ErrorIs(t, err, context.Canceled)
	assertNoTempFiles(t, opts.Dir)
}

func TestGenerateMetrics(t *testing.T) {
	opts := newProject(t)
	m := NewMetrics()
	opts.Metrics = m

	generate(t, twoResistors(), opts)
	generate(t, twoResistors(), opts)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("unchanged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.components.WithLabelValues("added")))

	textfile := filepath.Join(t.TempDir(), "kisync.prom")
	require.NoError(t, m.WriteTextfile(textfile))
	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `kisync_runs_total{state="done"} 2`)
}

func TestCheckReportsOrphans(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)
	stray := filepath.Join(opts.Dir, "old.kicad_sch")
	require.NoError(t, os.WriteFile(stray, []byte(readFile(t, opts, rootFile)), 0o644))

	warnings, err := Check(context.Background(), filepath.Join(opts.Dir, rootFile), opts)
	require.NoError(t, err)
	orphans := warningsOf(warnings, OrphanSheet)
	require.Len(t, orphans, 1)
	assert.Equal(t, "old.kicad_sch", orphans[0].File)
	assert.Empty(t, warningsOf(warnings, OverlapDetected))
}

func TestImportMissingRoot(t *testing.T) {
	opts := newProject(t)
	_, _, err := Import(context.Background(), filepath.Join(opts.Dir, rootFile), opts)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.kicad_pcb")
	ctx := context.Background()

	written, err := WriteFile(ctx, path, []byte("(kicad_pcb)\n"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = WriteFile(ctx, path, []byte("(kicad_pcb)\n"))
	require.NoError(t, err)
	assert.False(t, written, "identical content is not rewritten")

	written, err = WriteFile(ctx, path, []byte("(kicad_pcb (version 20240108))\n"))
	require.NoError(t, err)
	assert.True(t, written)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "(kicad_pcb (version 20240108))\n", string(data))
	assertNoTempFiles(t, dir)
}
