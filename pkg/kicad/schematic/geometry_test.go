package schematic

import (
	"testing"

	"github.com/OpenTraceLab/kisync/pkg/placement"
)

func resistorLib(t *testing.T) *LibSymbol {
	t.Helper()
	lib := mustParseSchematic(t, "lib.kicad_sch", schematicText("")).LibSymbol("Device:R")
	if lib == nil {
		t.Fatal("Device:R not embedded")
	}
	return lib
}

func TestPinOffsetAndOrientation(t *testing.T) {
	lib := resistorLib(t)
	pin1, ok := FindPin(lib, "1", 1)
	if !ok {
		t.Fatal("pin 1 not found")
	}

	tests := []struct {
		angle  float64
		mirror string
		offset Position
		orient placement.Orientation
	}{
		{0, "", Position{X: 0, Y: -3.81}, placement.Up},
		{90, "", Position{X: -3.81, Y: 0}, placement.Left},
		{180, "", Position{X: 0, Y: 3.81}, placement.Down},
		{270, "", Position{X: 3.81, Y: 0}, placement.Right},
		{0, "x", Position{X: 0, Y: 3.81}, placement.Down},
		{0, "y", Position{X: 0, Y: -3.81}, placement.Up},
	}
	for _, tt := range tests {
		got := PinOffset(pin1, tt.angle, tt.mirror)
		if !got.Near(tt.offset, 1e-9) {
			t.Errorf("PinOffset(rot %v, mirror %q) = %v, want %v", tt.angle, tt.mirror, got, tt.offset)
		}
		if o := PinOrientation(pin1, tt.angle, tt.mirror); o != tt.orient {
			t.Errorf("PinOrientation(rot %v, mirror %q) = %v, want %v", tt.angle, tt.mirror, o, tt.orient)
		}
	}
}

func TestPinPoint(t *testing.T) {
	sch := mustParseSchematic(t, "r.kicad_sch", schematicText(resistorText("R1", "10k", 100, 50, 0)))
	lib := sch.LibSymbol("Device:R")
	sym := sch.Symbols[0]

	p1, _ := FindPin(lib, "1", 1)
	p2, _ := FindPin(lib, "2", 1)
	if got := PinPoint(sym, p1); !got.Near(Position{X: 100, Y: 46.19}, 1e-9) {
		t.Errorf("pin 1 at %v", got)
	}
	if got := PinPoint(sym, p2); !got.Near(Position{X: 100, Y: 53.81}, 1e-9) {
		t.Errorf("pin 2 at %v", got)
	}
}

func TestBodyBox(t *testing.T) {
	lib := resistorLib(t)

	box := BodyBox(lib, 1, 0, "")
	if !box.Min.Near(Position{X: -1.016, Y: -3.81}, 1e-9) || !box.Max.Near(Position{X: 1.016, Y: 3.81}, 1e-9) {
		t.Errorf("BodyBox(rot 0) = %v", box)
	}

	box = BodyBox(lib, 1, 90, "")
	if !box.Min.Near(Position{X: -3.81, Y: -1.016}, 1e-9) || !box.Max.Near(Position{X: 3.81, Y: 1.016}, 1e-9) {
		t.Errorf("BodyBox(rot 90) = %v", box)
	}

	empty := &LibSymbol{Name: "x:empty", UnitCount: 1}
	if box := BodyBox(empty, 1, 0, ""); box.Width() <= 0 || box.Height() <= 0 {
		t.Errorf("empty symbol should get a default box, got %v", box)
	}
}

func TestInUnit(t *testing.T) {
	if !inUnit(0, 3) {
		t.Error("unit 0 elements belong to every unit")
	}
	if inUnit(2, 1) {
		t.Error("unit 2 element drawn in unit 1")
	}
}
