package sexp

import (
	"math"
	"strings"
	"testing"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
)

func mustParse(t *testing.T, input string) *kicadsexp.List {
	t.Helper()
	tree, err := kicadsexp.ParseString(input)
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	return tree.Root()
}

func TestGetPosition(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PositionAngle
		wantErr bool
	}{
		{"with angle", "(at 25.4 15.24 90)", PositionAngle{Position{25.4, 15.24}, 90}, false},
		{"without angle", "(at 1 2)", PositionAngle{Position{1, 2}, 0}, false},
		{"wrong key", "(xy 1 2)", PositionAngle{}, true},
		{"bad number", "(at one 2)", PositionAngle{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetPosition(mustParse(t, tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetPosition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetPosition() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPropertyHelpers(t *testing.T) {
	node := mustParse(t, `(symbol (lib_id "Device:R")
		(property "Reference" "R1" (at 1 2 0) (effects (font (size 1.27 1.27)) (hide yes)))
		(property "Value" "10k"))`)

	ref, err := GetProperty(node.Find("property"))
	if err != nil {
		t.Fatalf("GetProperty failed: %v", err)
	}
	if ref.Key != "Reference" || ref.Value != "R1" {
		t.Errorf("unexpected property %+v", ref)
	}
	if !ref.Effects.Hide {
		t.Error("expected hidden effects")
	}
	if ref.Effects.Font.Size.Height != 1.27 {
		t.Errorf("expected font height 1.27, got %v", ref.Effects.Font.Size.Height)
	}

	if v, ok := GetPropertyValue(node, "Value"); !ok || v != "10k" {
		t.Errorf("GetPropertyValue = %q, %v", v, ok)
	}

	changed, found := SetPropertyValue(node, "Value", "10k")
	if changed || !found {
		t.Errorf("setting the same value should be a no-op: changed=%v found=%v", changed, found)
	}
	changed, _ = SetPropertyValue(node, "Value", "4k7")
	if !changed {
		t.Error("expected value change")
	}
	if !strings.Contains(node.String(), `(property "Value" "4k7")`) {
		t.Errorf("value not updated: %s", node.String())
	}

	if !RemoveProperty(node, "Value") {
		t.Error("expected property removal")
	}
	if _, ok := FindProperty(node, "Value"); ok {
		t.Error("property still present")
	}
}

func TestSetFloatKeepsEquivalentText(t *testing.T) {
	at := mustParse(t, "(at 25.40 15.2400 0)")

	if SetPosition(at, 25.4, 15.24, 0) {
		t.Error("equal coordinates must not rewrite text")
	}
	if at.String() != "(at 25.40 15.2400 0)" {
		t.Errorf("text changed: %s", at.String())
	}

	if !SetPosition(at, 30, 15.24, 90) {
		t.Error("expected change")
	}
	if at.String() != "(at 30 15.2400 90)" {
		t.Errorf("unexpected text: %s", at.String())
	}

	short := mustParse(t, "(at 1 2)")
	SetPosition(short, 1, 2, 180)
	if short.String() != "(at 1 2 180)" {
		t.Errorf("rotation not appended: %s", short.String())
	}
}

func TestGetFlag(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"(effects hide)", true},
		{"(effects (hide yes))", true},
		{"(effects (hide no))", false},
		{"(effects (font))", false},
		{`(effects "hide")`, false},
	}
	for _, tt := range tests {
		if got := GetFlag(mustParse(t, tt.input), "hide"); got != tt.want {
			t.Errorf("GetFlag(%s) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRotate(t *testing.T) {
	p := Position{X: 1, Y: 0}
	tests := []struct {
		deg  float64
		want Position
	}{
		{0, Position{1, 0}},
		{90, Position{0, 1}},
		{180, Position{-1, 0}},
		{270, Position{0, -1}},
		{-90, Position{0, -1}},
	}
	for _, tt := range tests {
		got := p.Rotate(tt.deg)
		if !got.Near(tt.want, 1e-9) {
			t.Errorf("Rotate(%v) = %+v, want %+v", tt.deg, got, tt.want)
		}
	}

	diag := p.Rotate(45)
	if math.Abs(diag.X-diag.Y) > 1e-9 {
		t.Errorf("Rotate(45) = %+v", diag)
	}
}

func TestBoundingBoxOverlap(t *testing.T) {
	a := BoxAt(Position{0, 0}, 10, 10)
	touching := BoxAt(Position{10, 0}, 5, 5)
	inside := BoxAt(Position{2, 2}, 1, 1)

	if a.Overlaps(touching) {
		t.Error("touching boxes must not overlap")
	}
	if !a.Intersects(touching) {
		t.Error("touching boxes intersect")
	}
	if !a.Overlaps(inside) {
		t.Error("nested boxes overlap")
	}
	if got := a.Inflate(1).Width(); got != 12 {
		t.Errorf("Inflate width = %v", got)
	}
}

func TestInsertGrouped(t *testing.T) {
	root := mustParse(t, "(kicad_sch (lib_symbols) (symbol (lib_id \"A\")) (wire) (sheet_instances))")

	InsertGrouped(root, kicadsexp.NewList("symbol", kicadsexp.NewList("lib_id", kicadsexp.Str("B"))))
	InsertGrouped(root, kicadsexp.NewList("label", kicadsexp.Str("X")), "wire")
	InsertGrouped(root, kicadsexp.NewList("sheet"), "nothing")

	var names []string
	for _, l := range root.Lists() {
		names = append(names, l.Name())
	}
	want := "lib_symbols symbol symbol wire label sheet_instances sheet"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("order = %q, want %q", got, want)
	}
}
