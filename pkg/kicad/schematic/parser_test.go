package schematic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

func TestParseMinimalSchematic(t *testing.T) {
	input := `(kicad_sch
		(version 20231120)
		(generator "eeschema")
		(generator_version "8.0")
		(uuid 862335ee-c981-4fe1-9eb9-84db19301dd4)
		(paper "A4")
		(title_block (title "Blinky") (rev "B"))
		(lib_symbols)
		(sheet_instances
			(path "/"
				(page "1")
			)
		)
	)`

	sch, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Failed to parse schematic: %v", err)
	}

	if sch.Version != 20231120 {
		t.Errorf("Expected version 20231120, got %d", sch.Version)
	}
	if sch.Generator != "eeschema" {
		t.Errorf("Expected generator 'eeschema', got '%s'", sch.Generator)
	}
	if sch.GeneratorVer != "8.0" {
		t.Errorf("Expected generator version '8.0', got '%s'", sch.GeneratorVer)
	}
	if sch.UUID != "862335ee-c981-4fe1-9eb9-84db19301dd4" {
		t.Errorf("Expected uuid, got '%s'", sch.UUID)
	}
	if sch.Paper != "A4" {
		t.Errorf("Expected paper 'A4', got '%s'", sch.Paper)
	}
	if sch.TitleBlock.Title != "Blinky" || sch.TitleBlock.Revision != "B" {
		t.Errorf("Unexpected title block %+v", sch.TitleBlock)
	}
	if len(sch.SheetInstances) != 1 || sch.SheetInstances[0].Page != "1" {
		t.Errorf("Expected 1 sheet instance on page 1, got %+v", sch.SheetInstances)
	}
}

func TestParseSchematicWithSymbol(t *testing.T) {
	sch := mustParseSchematic(t, "r.kicad_sch", schematicText(resistorText("R1", "10k", 100, 50, 90)))

	if len(sch.LibSymbols) != 2 {
		t.Fatalf("Expected 2 lib symbols, got %d", len(sch.LibSymbols))
	}
	lib := sch.LibSymbol("Device:R")
	if lib == nil {
		t.Fatal("LibSymbol('Device:R') returned nil")
	}
	if len(lib.Pins) != 2 || lib.UnitCount != 1 {
		t.Errorf("Expected 2 pins in 1 unit, got %d pins, %d units", len(lib.Pins), lib.UnitCount)
	}
	if lib.Pins[0].Unit != 1 || lib.Pins[0].Angle != 270 || lib.Pins[0].Length != 1.27 {
		t.Errorf("Unexpected pin %+v", lib.Pins[0])
	}
	if len(lib.Graphics) != 1 || lib.Graphics[0].Type != "rectangle" || lib.Graphics[0].Unit != 0 {
		t.Errorf("Unexpected graphics %+v", lib.Graphics)
	}
	if gnd := sch.LibSymbol("power:GND"); gnd == nil || !gnd.Power {
		t.Error("power:GND should be a power symbol")
	}

	if len(sch.Symbols) != 1 {
		t.Fatalf("Expected 1 symbol instance, got %d", len(sch.Symbols))
	}
	r1 := sch.Symbols[0]
	if r1.LibID != "Device:R" || r1.Angle != 90 || r1.Position != (Position{X: 100, Y: 50}) {
		t.Errorf("Unexpected symbol %+v", r1)
	}
	if v, _ := r1.Property("Value"); v != "10k" {
		t.Errorf("Expected value '10k', got '%s'", v)
	}
	if len(r1.Pins) != 2 || r1.Pins[1].UUID != "r1-uuid-p2" {
		t.Errorf("Unexpected pins %+v", r1.Pins)
	}
	if len(r1.Instances) != 1 || r1.Instances[0].Project != "demo" || r1.Instances[0].Reference != "R1" {
		t.Errorf("Unexpected instances %+v", r1.Instances)
	}

	if sch.GetSymbol("R1", "/"+rootUUID) == nil {
		t.Error("GetSymbol('R1') returned nil")
	}
	if sch.SymbolByUUID("r1-uuid") != r1 {
		t.Error("SymbolByUUID did not find R1")
	}
	if refs := sch.GetAllReferences("/" + rootUUID); len(refs) != 1 || refs[0] != "R1" {
		t.Errorf("Expected refs ['R1'], got %v", refs)
	}
}

func TestReferenceForInstance(t *testing.T) {
	text := strings.Replace(resistorText("R1", "10k", 100, 50, 0),
		`(path "/`+rootUUID+`" (reference "R1") (unit 1))`,
		`(path "/`+rootUUID+`/a" (reference "R1") (unit 1))
				(path "/`+rootUUID+`/b" (reference "R101") (unit 1))`, 1)
	sch := mustParseSchematic(t, "multi.kicad_sch", schematicText(text))
	sym := sch.Symbols[0]

	tests := []struct {
		path string
		want string
	}{
		{"/" + rootUUID + "/a", "R1"},
		{"/" + rootUUID + "/b", "R101"},
		{"/elsewhere", "R1"}, // falls back to the Reference property
	}
	for _, tt := range tests {
		if got := sym.ReferenceFor(tt.path); got != tt.want {
			t.Errorf("ReferenceFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParseSchematicWithWires(t *testing.T) {
	input := schematicText(`	(wire (pts (xy 100 50) (xy 150 50))
		(stroke (width 0) (type default))
		(uuid wire-1)
	)
	(wire (pts (xy 150 50) (xy 150 100))
		(stroke (width 0) (type default))
		(uuid wire-2)
	)
	(junction (at 150 50) (diameter 0) (color 0 0 0 0)
		(uuid junc-1)
	)
	(no_connect (at 10 10) (uuid nc-1))`)

	sch := mustParseSchematic(t, "wires.kicad_sch", input)

	if len(sch.Wires) != 2 {
		t.Errorf("Expected 2 wires, got %d", len(sch.Wires))
	}
	if got := sch.Wires[1].Points; len(got) != 2 || got[1] != (Position{X: 150, Y: 100}) {
		t.Errorf("Unexpected wire points %v", got)
	}
	if len(sch.Junctions) != 1 || sch.Junctions[0].Position != (Position{X: 150, Y: 50}) {
		t.Errorf("Unexpected junctions %+v", sch.Junctions)
	}
	if len(sch.NoConnects) != 1 {
		t.Errorf("Expected 1 no-connect, got %d", len(sch.NoConnects))
	}
}

func TestParseSchematicWithLabels(t *testing.T) {
	input := schematicText(`	(label "VCC" (at 100 50 0)
		(effects (font (size 1.27 1.27)))
		(uuid label-1)
	)
	(global_label "GND" (shape input) (at 100 100 180)
		(effects (font (size 1.27 1.27)))
		(uuid glabel-1)
		(property "kisync_owner" "r1-uuid:2" (at 100 100 0) (effects (font (size 1.27 1.27)) hide))
	)
	(hierarchical_label "EN" (shape output) (at 10 20 90)
		(effects (font (size 1.27 1.27)))
		(uuid hlabel-1)
	)`)

	sch := mustParseSchematic(t, "labels.kicad_sch", input)

	if len(sch.Labels) != 3 {
		t.Fatalf("Expected 3 labels, got %d", len(sch.Labels))
	}
	want := []struct {
		text  string
		kind  placement.LabelKind
		shape string
		angle float64
	}{
		{"VCC", placement.Local, "", 0},
		{"GND", placement.Global, "input", 180},
		{"EN", placement.Hierarchical, "output", 90},
	}
	for i, w := range want {
		l := sch.Labels[i]
		if l.Text != w.text || l.Kind != w.kind || l.Shape != w.shape || l.Angle != w.angle {
			t.Errorf("label %d = %+v, want %+v", i, l, w)
		}
	}

	id, pin, ok := sch.Labels[1].OwnerParts()
	if !ok || id != "r1-uuid" || pin != "2" {
		t.Errorf("OwnerParts() = %q, %q, %v", id, pin, ok)
	}
	if _, _, ok := sch.Labels[0].OwnerParts(); ok {
		t.Error("user label should have no owner")
	}

	if labels := sch.GetLabels(); len(labels) != 3 {
		t.Errorf("Expected 3 label names, got %v", labels)
	}
}

func TestParseSheets(t *testing.T) {
	input := schematicText(`	(sheet (at 50.8 30.48) (size 25.4 12.7)
		(fields_autoplaced yes)
		(stroke (width 0.1524) (type solid))
		(fill (color 0 0 0 0.0000))
		(uuid "sheet-1")
		(property "Sheetname" "power" (at 50.8 29.7684 0) (effects (font (size 1.27 1.27)) (justify left bottom)))
		(property "Sheetfile" "power.kicad_sch" (at 50.8 43.7646 0) (effects (font (size 1.27 1.27)) (justify left top)))
		(pin "EN" input (at 50.8 33.02 180) (effects (font (size 1.27 1.27)) (justify left)) (uuid "pin-en"))
		(pin "VOUT" output (at 76.2 33.02 0) (effects (font (size 1.27 1.27)) (justify right)) (uuid "pin-vout"))
		(instances (project "demo" (path "/` + rootUUID + `" (page "2"))))
	)`)

	sch := mustParseSchematic(t, "top.kicad_sch", input)
	if len(sch.Sheets) != 1 {
		t.Fatalf("Expected 1 sheet, got %d", len(sch.Sheets))
	}
	sh := sch.SheetByName("power")
	if sh == nil {
		t.Fatal("SheetByName('power') returned nil")
	}
	if sh.FileName != "power.kicad_sch" || sh.Size != (Size{Width: 25.4, Height: 12.7}) {
		t.Errorf("Unexpected sheet %+v", sh)
	}
	if len(sh.Pins) != 2 || sh.Pins[0].Shape != "input" || sh.Pins[1].Name != "VOUT" {
		t.Errorf("Unexpected sheet pins %+v", sh.Pins)
	}
	if got := SheetPinOrientation(sh, sh.Pins[0]); got != placement.Left {
		t.Errorf("EN side = %v, want left", got)
	}
	if got := SheetPinOrientation(sh, sh.Pins[1]); got != placement.Right {
		t.Errorf("VOUT side = %v, want right", got)
	}
	if len(sh.Instances) != 1 || sh.Instances[0].Page != "2" {
		t.Errorf("Unexpected sheet instances %+v", sh.Instances)
	}
}

func TestParseLegacySymbolInstances(t *testing.T) {
	input := `(kicad_sch (version 20211123) (generator eeschema)
  (uuid root-6)
  (paper "A4")
  (lib_symbols)
  (symbol (lib_id "Device:R") (at 10 10 0) (unit 1)
    (uuid r-6)
    (property "Reference" "R?" (id 0) (at 10 8 0))
  )
  (sheet_instances (path "/" (page "1")))
  (symbol_instances
    (path "/r-6" (reference "R7") (unit 1) (value "1k") (footprint ""))
  )
)
`
	sch := mustParseSchematic(t, "legacy.kicad_sch", input)
	if got := sch.Symbols[0].ReferenceFor("/root-6"); got != "R7" {
		t.Errorf("ReferenceFor() = %q, want R7", got)
	}
}

func TestParseRejectsOldAndForeignFiles(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"board file", `(kicad_pcb (version 20231120))`},
		{"kicad 5", `(kicad_sch (version 20200310) (generator eeschema))`},
		{"no version", `(kicad_sch (generator eeschema))`},
		{"unbalanced", `(kicad_sch (version 20231120)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.kicad_sch")
	if err := os.WriteFile(path, []byte(schematicText("")), 0o644); err != nil {
		t.Fatal(err)
	}

	sch, err := ParseFile(path)
	if err != nil {
		t.Fatalf("Failed to parse test file: %v", err)
	}
	if sch.File != path {
		t.Errorf("File = %q, want %q", sch.File, path)
	}
	if sch.Version == 0 {
		t.Error("Version should not be 0")
	}
	if sch.Paper != "A4" {
		t.Errorf("Expected paper 'A4', got '%s'", sch.Paper)
	}
}

func TestParsePaper(t *testing.T) {
	tests := []struct {
		paper    string
		name     string
		size     sexp.Size
		portrait bool
	}{
		{`(paper "A3")`, "A3", sexp.Size{}, false},
		{`(paper "User" 431.8 279.4)`, "User", sexp.Size{Width: 431.8, Height: 279.4}, false},
		{`(paper "A4" portrait)`, "A4", sexp.Size{}, true},
	}
	for _, tt := range tests {
		text := strings.Replace(schematicText(""), `(paper "A4")`, tt.paper, 1)
		sch := mustParseSchematic(t, "paper.kicad_sch", text)
		if sch.Paper != tt.name || sch.PaperSize != tt.size || sch.Portrait != tt.portrait {
			t.Errorf("%s: got %q %+v portrait=%v", tt.paper, sch.Paper, sch.PaperSize, sch.Portrait)
		}
	}
}
