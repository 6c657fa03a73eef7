package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sheetText(uuid, name, file string) string {
	return fmt.Sprintf(`	(sheet (at 50.8 30.48) (size 25.4 10.16)
		(uuid "%s")
		(property "Sheetname" "%s" (at 50.8 29.77 0) (effects (font (size 1.27 1.27))))
		(property "Sheetfile" "%s" (at 50.8 41.2 0) (effects (font (size 1.27 1.27))))
		(pin "EN" input (at 50.8 33.02 180) (effects (font (size 1.27 1.27))) (uuid "%s-en"))
	)
`, uuid, name, file, uuid)
}

func fileText(uuid string, sheets ...string) string {
	return `(kicad_sch (version 20231120) (generator "eeschema")
	(uuid "` + uuid + `")
	(paper "A4")
	(lib_symbols)
` + strings.Join(sheets, "") + `)
`
}

func resolve(t *testing.T, loader Loader, root string, opts ResolveOptions) (*Hierarchy, error) {
	t.Helper()
	return NewResolver(loader, opts).Resolve(context.Background(), root)
}

func TestResolveScopes(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("top.kicad_sch", fileText("root",
		sheetText("s-a", "chan_a", "channel.kicad_sch"),
		sheetText("s-b", "chan_b", "channel.kicad_sch"),
		sheetText("s-p", "power", "sub/power.kicad_sch")))
	m.Add("channel.kicad_sch", fileText("chan"))
	m.Add("sub/power.kicad_sch", fileText("pwr", sheetText("s-r", "reg", "reg.kicad_sch")))
	m.Add("sub/reg.kicad_sch", fileText("reg"))

	h, err := resolve(t, m, "top.kicad_sch", ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	var paths []string
	for _, s := range h.Scopes {
		paths = append(paths, s.Path)
	}
	want := []string{"/root", "/root/s-a", "/root/s-b", "/root/s-p", "/root/s-p/s-r"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("scope paths = %v, want %v", paths, want)
	}

	if got := h.FileOrder(); !reflect.DeepEqual(got, []string{
		"top.kicad_sch", "channel.kicad_sch", filepath.Join("sub", "power.kicad_sch"), filepath.Join("sub", "reg.kicad_sch"),
	}) {
		t.Errorf("FileOrder() = %v", got)
	}

	chans := h.ScopesOf("channel.kicad_sch")
	if len(chans) != 2 {
		t.Fatalf("Expected 2 channel scopes, got %d", len(chans))
	}
	if chans[0].Schematic != chans[1].Schematic {
		t.Error("both occurrences should share the parsed file")
	}
	if chans[1].SheetName != "chan_b" || chans[1].Parent != h.Root {
		t.Errorf("unexpected scope %+v", chans[1])
	}
	if reg := h.Scope("/root/s-p/s-r"); reg == nil || reg.Depth() != 2 {
		t.Errorf("reg scope = %+v", reg)
	}
	if pins := h.ParentPins("channel.kicad_sch"); !pins["EN"] || len(pins) != 1 {
		t.Errorf("ParentPins = %v", pins)
	}
}

func TestResolveCycle(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("a.kicad_sch", fileText("a", sheetText("s1", "b", "b.kicad_sch")))
	m.Add("b.kicad_sch", fileText("b", sheetText("s2", "a", "a.kicad_sch")))

	_, err := resolve(t, m, "a.kicad_sch", ResolveOptions{})
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	want := []string{"a.kicad_sch", "b.kicad_sch", "a.kicad_sch"}
	if !reflect.DeepEqual(cycle.Path, want) {
		t.Errorf("cycle path = %v, want %v", cycle.Path, want)
	}
}

func TestResolveSelfReference(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("a.kicad_sch", fileText("a", sheetText("s1", "me", "a.kicad_sch")))

	_, err := resolve(t, m, "a.kicad_sch", ResolveOptions{})
	var cycle *CycleError
	if !errors.As(err, &cycle) || len(cycle.Path) != 2 {
		t.Fatalf("expected a two-entry CycleError, got %v", err)
	}
}

func TestResolveDeepChain(t *testing.T) {
	const depth = 1000
	name := func(i int) string { return fmt.Sprintf("f%04d.kicad_sch", i) }

	m := NewMemoryLoader()
	for i := 0; i < depth; i++ {
		var sheets []string
		if i < depth-1 {
			sheets = append(sheets, sheetText(fmt.Sprintf("s%d", i), fmt.Sprintf("n%d", i), name(i+1)))
		}
		m.Add(name(i), fileText(fmt.Sprintf("u%d", i), sheets...))
	}

	h, err := resolve(t, m, name(0), ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(h.Scopes) != depth {
		t.Errorf("Expected %d scopes, got %d", depth, len(h.Scopes))
	}
	if last := h.Scopes[depth-1]; last.Depth() != depth-1 {
		t.Errorf("last scope depth = %d", last.Depth())
	}

	// closing the chain into a loop must be detected, not followed
	m.Add(name(depth-1), fileText("last", sheetText("back", "back", name(0))))
	_, err = resolve(t, m, name(0), ResolveOptions{})
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycle.Path) != depth+1 {
		t.Errorf("cycle length = %d, want %d", len(cycle.Path), depth+1)
	}
}

func TestResolveMissingChild(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("top.kicad_sch", fileText("root", sheetText("s1", "new", "new.kicad_sch")))

	if _, err := resolve(t, m, "top.kicad_sch", ResolveOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}

	h, err := resolve(t, m, "top.kicad_sch", ResolveOptions{AllowMissing: true})
	if err != nil {
		t.Fatalf("Resolve with AllowMissing failed: %v", err)
	}
	child := h.Scope("/root/s1")
	if child == nil || child.Schematic != nil {
		t.Fatalf("missing child scope = %+v", child)
	}
	if _, ok := h.Files["new.kicad_sch"]; !ok {
		t.Error("missing file should be recorded in the arena")
	}
}

func TestResolveGrammarErrorIsFatal(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("top.kicad_sch", fileText("root", sheetText("s1", "bad", "bad.kicad_sch")))
	m.Add("bad.kicad_sch", "(kicad_sch (version 20231120)")

	if _, err := resolve(t, m, "top.kicad_sch", ResolveOptions{AllowMissing: true}); err == nil {
		t.Error("expected a grammar error")
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	m := NewMemoryLoader()
	m.Add("top.kicad_sch", fileText("root"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewResolver(m, ResolveOptions{}).Resolve(ctx, "top.kicad_sch"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFindOrphans(t *testing.T) {
	dir := t.TempDir()
	write := func(name, text string) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("top.kicad_sch", fileText("root", sheetText("s1", "child", "sheets/child.kicad_sch")))
	write("sheets/child.kicad_sch", fileText("child"))
	write("sheets/old.kicad_sch", fileText("old"))
	write("top-backups/top.kicad_sch", fileText("root"))
	write("_autosave-top.kicad_sch", fileText("root"))

	h, err := resolve(t, FileLoader{}, filepath.Join(dir, "top.kicad_sch"), ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	orphans, err := FindOrphans(dir, h)
	if err != nil {
		t.Fatalf("FindOrphans failed: %v", err)
	}
	want := []string{filepath.Join(dir, "sheets", "old.kicad_sch")}
	if !reflect.DeepEqual(orphans, want) {
		t.Errorf("orphans = %v, want %v", orphans, want)
	}
}
