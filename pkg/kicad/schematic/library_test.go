package schematic

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
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
	(symbol "R_Small"
		(extends "R")
		(property "Reference" "R" (at 1.27 0 0) (effects (font (size 1.27 1.27))))
		(property "Value" "R_Small" (at 1.27 -1.27 0) (effects (font (size 1.27 1.27))))
	)
)
`

func libraryDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sub := filepath.Join(dir, "symbols")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "Device.kicad_sym"), []byte(deviceLibrary), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLookupFromLibraryFile(t *testing.T) {
	repo := NewRepository(libraryDir(t))

	r, err := repo.Lookup("Device:R")
	if err != nil {
		t.Fatalf("Lookup(Device:R) failed: %v", err)
	}
	if r.Name != "Device:R" || len(r.Pins) != 2 {
		t.Errorf("Unexpected symbol %s with %d pins", r.Name, len(r.Pins))
	}

	again, _ := repo.Lookup("Device:R")
	if again != r {
		t.Error("second lookup should return the cached definition")
	}
}

func TestLookupFlattensExtends(t *testing.T) {
	repo := NewRepository(libraryDir(t))

	small, err := repo.Lookup("Device:R_Small")
	if err != nil {
		t.Fatalf("Lookup(Device:R_Small) failed: %v", err)
	}
	if len(small.Pins) != 2 {
		t.Errorf("Expected the parent's 2 pins, got %d", len(small.Pins))
	}
	if small.Extends != "" {
		t.Errorf("flattened symbol still extends %q", small.Extends)
	}

	var value string
	for _, p := range small.Properties {
		if p.Key == "Value" {
			value = p.Value
		}
	}
	if value != "R_Small" {
		t.Errorf("Value = %q, want the child's R_Small", value)
	}

	units := map[string]bool{}
	for _, u := range small.Node.FindAll("symbol") {
		name, _ := sexp.GetString(u, 1)
		units[name] = true
	}
	if !units["R_Small_0_1"] || !units["R_Small_1_1"] {
		t.Errorf("units not renamed: %v", units)
	}
}

func TestLookupNotFound(t *testing.T) {
	repo := NewRepository(libraryDir(t))

	for _, id := range []string{"Device:C", "Missing:R", "nolibrary"} {
		_, err := repo.Lookup(id)
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Lookup(%q) error = %v, want NotFoundError", id, err)
			continue
		}
		if nf.LibID != id {
			t.Errorf("NotFoundError.LibID = %q, want %q", nf.LibID, id)
		}
	}
}

func TestEmbeddedSymbolsWin(t *testing.T) {
	repo := NewRepository(libraryDir(t))
	repo.AddEmbedded(mustParseSchematic(t, "r.kicad_sch", schematicText("")))

	r, err := repo.Lookup("Device:R")
	if err != nil {
		t.Fatal(err)
	}
	if r.Node.Find("exclude_from_sim") == nil {
		t.Error("expected the embedded definition, got the library one")
	}
}

func TestSynthesize(t *testing.T) {
	pins := []model.Pin{
		{Number: "1", Name: "IN", Direction: "input"},
		{Number: "2", Name: "GND", Direction: "power_in"},
		{Number: "3", Name: "OUT", Direction: "weird"},
	}
	ls := Synthesize("Regulator:LDO", pins)

	if ls.Name != "Regulator:LDO" || ls.UnitCount != 1 {
		t.Errorf("Unexpected symbol %s with %d units", ls.Name, ls.UnitCount)
	}
	if len(ls.Pins) != 3 {
		t.Fatalf("Expected 3 pins, got %d", len(ls.Pins))
	}

	tests := []struct {
		number string
		pos    Position
		angle  float64
		typ    string
	}{
		{"1", Position{X: -7.62, Y: 1.27}, 0, "input"},
		{"2", Position{X: -7.62, Y: -1.27}, 0, "power_in"},
		{"3", Position{X: 7.62, Y: 1.27}, 180, "passive"},
	}
	for _, tt := range tests {
		p, ok := FindPin(ls, tt.number, 1)
		if !ok {
			t.Errorf("pin %s missing", tt.number)
			continue
		}
		if !p.Position.Near(tt.pos, 1e-9) || p.Angle != tt.angle || p.Type != tt.typ {
			t.Errorf("pin %s = %+v, want at %v angle %v type %s", tt.number, p, tt.pos, tt.angle, tt.typ)
		}
	}

	box := BodyBox(ls, 1, 0, "")
	if box.Min.X > -7.62 || box.Max.X < 7.62 {
		t.Errorf("body box %v does not reach the pin tips", box)
	}
}

func TestSynthesizeKeepsExplicitOffsets(t *testing.T) {
	ls := Synthesize("x:custom", []model.Pin{
		{Number: "A", Offset: model.Point{X: 0, Y: 7.62}, Angle: 270},
		{Number: "B", Offset: model.Point{X: 0, Y: -7.62}, Angle: 90},
	})
	a, _ := FindPin(ls, "A", 1)
	if !a.Position.Near(Position{X: 0, Y: 7.62}, 1e-9) || a.Angle != 270 || a.Name != "~" {
		t.Errorf("pin A = %+v", a)
	}
}

func TestResolveFallsBackToSynthesized(t *testing.T) {
	repo := NewRepository()
	pins := []model.Pin{{Number: "1"}, {Number: "2"}}

	ls, found := repo.Resolve("Foo:Bar", pins)
	if found {
		t.Error("Resolve should report a synthesized symbol")
	}
	again, err := repo.Lookup("Foo:Bar")
	if err != nil || again != ls {
		t.Errorf("synthesized symbol not registered: %v", err)
	}
}
