package synchronizer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

func TestStateNames(t *testing.T) {
	assert.Equal(t, "resolve_conflicts", ResolveConflicts.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, Done.Terminal())
	assert.True(t, Aborted.Terminal())
	assert.False(t, Emit.Terminal())
}

func TestOffsetRef(t *testing.T) {
	tests := []struct {
		ref  string
		n    int
		want string
	}{
		{"R1", 1, "R101"},
		{"R1", 2, "R201"},
		{"U12", 1, "U112"},
		{"TP", 1, "TP100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, offsetRef(tt.ref, tt.n), "offsetRef(%q, %d)", tt.ref, tt.n)
	}
}

func TestIDSourceIsDeterministic(t *testing.T) {
	a := NewIDSource("demo")
	b := NewIDSource("demo")
	assert.Equal(t, a.ID("top.kicad_sch", "symbol/R1/1"), b.ID("top.kicad_sch", "symbol/R1/1"))
	assert.NotEqual(t, a.ID("top.kicad_sch", "symbol/R1/1"), a.ID("sub.kicad_sch", "symbol/R1/1"))
	assert.NotEqual(t, a.ID("top.kicad_sch", "x"), NewIDSource("other").ID("top.kicad_sch", "x"))
	assert.Equal(t, a.ID("top.kicad_sch", "x"), a.For("top.kicad_sch")("x"))
}

func TestPlanScopes(t *testing.T) {
	d := model.NewDesign("top.kicad_sch")
	d.RootDocument().Sheets["b"] = &model.Sheet{File: "sub/ch.kicad_sch", UUID: "sb"}
	d.RootDocument().Sheets["a"] = &model.Sheet{File: "sub/ch.kicad_sch", UUID: "sa"}
	ch := model.NewDocument()
	ch.Sheets["leaf"] = &model.Sheet{File: "leaf.kicad_sch", UUID: "sl"}
	d.Documents["sub/ch.kicad_sch"] = ch
	d.Documents["sub/leaf.kicad_sch"] = model.NewDocument()

	scopes, err := planScopes(d, "root")
	require.NoError(t, err)

	var paths, pages []string
	for _, s := range scopes {
		paths = append(paths, s.path)
		pages = append(pages, s.page)
	}
	assert.Equal(t, []string{"/root", "/root/sa", "/root/sa/sl", "/root/sb", "/root/sb/sl"}, paths)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, pages)
	assert.Equal(t, "sub/leaf.kicad_sch", scopes[2].file)
	assert.Equal(t, "a", scopes[1].sheet)
}

func TestPaperCandidates(t *testing.T) {
	var names []string
	for _, p := range paperCandidates("A3", "A1") {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"A3", "A2", "A1"}, names)
	assert.Empty(t, paperCandidates("User", "A0"))
	assert.Len(t, paperCandidates(placement.PaperA4.Name, placement.PaperA4.Name), 1)
}

func TestFixedPaper(t *testing.T) {
	user := &schematic.Schematic{Paper: "User", PaperSize: sexp.Size{Width: 600, Height: 400}}
	tests := []struct {
		name     string
		paper    string
		baseline *schematic.Schematic
		want     placement.Paper
	}{
		{"user size from file", "User", user, placement.Paper{Name: "User", Width: 600, Height: 400}},
		{"user without size", "User", nil, placement.PaperA4},
		{"named", "USLetter", nil, placement.Paper{Name: "USLetter", Width: 279.4, Height: 215.9}},
		{"portrait", "A", &schematic.Schematic{Paper: "A", Portrait: true}, placement.Paper{Name: "A", Width: 215.9, Height: 279.4}},
		{"unknown", "Napkin", nil, placement.PaperA4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := model.NewDocument()
			doc.Metadata.Paper = tt.paper
			f := &fileState{doc: doc, baseline: tt.baseline}
			assert.Equal(t, tt.want, fixedPaper(f))
		})
	}
}

func TestCommitIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.kicad_sch")
	require.NoError(t, os.WriteFile(good, []byte("old"), 0o600))

	// a regular file where a directory should be makes staging fail
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	base, err := takeSnapshot(good)
	require.NoError(t, err)
	err = commit(context.Background(), []*pendingWrite{
		{path: good, data: []byte("new"), base: base},
		{path: filepath.Join(blocker, "bad.kicad_sch"), data: []byte("new")},
	})
	require.Error(t, err)

	data, err := os.ReadFile(good)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assertNoTempFiles(t, dir)
}

func TestCommitKeepsMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "top.kicad_sch")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	base, err := takeSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, commit(context.Background(), []*pendingWrite{{path: path, data: []byte("new"), base: base}}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "top.kicad_sch")

	missing, err := takeSnapshot(path)
	require.NoError(t, err)
	assert.False(t, missing.exists)
	same, err := missing.holds(nil)
	require.NoError(t, err)
	assert.False(t, same, "a missing file holds nothing")

	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))
	snap, err := takeSnapshot(path)
	require.NoError(t, err)
	same, err = snap.holds([]byte("new"))
	require.NoError(t, err)
	assert.True(t, same)
	same, err = snap.holds([]byte("neW"))
	require.NoError(t, err)
	assert.False(t, same)
}

func TestCommitRejectsConcurrentEdit(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.kicad_sch")
	b := filepath.Join(dir, "b.kicad_sch")
	require.NoError(t, os.WriteFile(a, []byte("a0"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b0"), 0o644))
	baseA, err := takeSnapshot(a)
	require.NoError(t, err)
	baseB, err := takeSnapshot(b)
	require.NoError(t, err)

	// someone saves b in the editor after it was read
	require.NoError(t, os.WriteFile(b, []byte("b1"), 0o644))

	err = commit(context.Background(), []*pendingWrite{
		{path: a, data: []byte("a2"), base: baseA},
		{path: b, data: []byte("b2"), base: baseB},
	})
	var concurrent *ConcurrentEditError
	require.ErrorAs(t, err, &concurrent)
	assert.Equal(t, b, concurrent.File)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "a0", string(data), "no target is renamed once one has changed")
	data, err = os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "b1", string(data))
	assertNoTempFiles(t, dir)
}

func TestCommitRejectsFileCreatedDuringRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.kicad_sch")
	base, err := takeSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("theirs"), 0o644))

	err = commit(context.Background(), []*pendingWrite{{path: path, data: []byte("ours"), base: base}})
	var concurrent *ConcurrentEditError
	require.ErrorAs(t, err, &concurrent)
}

func TestEmitAbortsWhenFileChangesAfterLoad(t *testing.T) {
	opts := newProject(t)
	generate(t, twoResistors(), opts)

	d := twoResistors()
	d.RootDocument().Components["R2"].Value = "1k"
	ctx := context.Background()
	r := NewRun(opts)
	files, err := r.loadBaseline(ctx, d)
	require.NoError(t, err)
	order, err := r.diff(ctx, d, files)
	require.NoError(t, err)
	r.resolveConflicts(order, files)
	for _, f := range order {
		require.NoError(t, r.place(ctx, f))
	}

	path := filepath.Join(opts.Dir, rootFile)
	edited := readFile(t, opts, rootFile) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	_, err = r.emit(ctx, order)
	var concurrent *ConcurrentEditError
	require.ErrorAs(t, err, &concurrent)
	assert.Equal(t, path, concurrent.File)
	assert.Equal(t, edited, readFile(t, opts, rootFile))
	assertNoTempFiles(t, opts.Dir)
}

func TestResolveAuthority(t *testing.T) {
	base := model.NewDocument()
	base.Components["R1"] = &model.Component{
		Symbol:     "Device:R",
		Value:      "10k",
		Position:   &model.Position{X: 10, Y: 10},
		Properties: map[string]string{"MPN": "RC0603", "Tol": "1%"},
		UUID:       "u1",
	}
	base.Components["R9"] = &model.Component{Symbol: "Device:R", Value: "1k", UUID: "u9"}

	declared := model.NewDocument()
	declared.Components["R1"] = &model.Component{
		Symbol:     "Device:R",
		Value:      "22k",
		Properties: map[string]string{"MPN": "RC0402", "LCSC": "C25744"},
	}

	r := resolve("top.kicad_sch", declared, base)
	c := r.doc.Components["R1"]
	assert.Equal(t, "22k", c.Value)
	assert.Equal(t, "u1", c.UUID)
	assert.Equal(t, &model.Position{X: 10, Y: 10}, c.Position)
	assert.Equal(t, map[string]string{"MPN": "RC0603", "Tol": "1%", "LCSC": "C25744"}, c.Properties)

	require.Len(t, r.changes.Removed, 1)
	assert.Equal(t, "R9", r.changes.Removed[0].Ref)

	var fields []string
	for _, w := range r.warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"value", "MPN"}, fields)
}
