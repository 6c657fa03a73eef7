package schematic

import (
	"fmt"
	"strings"
	"testing"
)

const resistorSymbol = `(symbol "Device:R"
			(pin_numbers hide)
			(pin_names (offset 0))
			(exclude_from_sim no)
			(in_bom yes)
			(on_board yes)
			(property "Reference" "R" (at 2.032 0 90) (effects (font (size 1.27 1.27))))
			(property "Value" "R" (at 0 0 90) (effects (font (size 1.27 1.27))))
			(property "Footprint" "" (at -1.778 0 90) (effects (font (size 1.27 1.27)) hide))
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
		)`

const groundSymbol = `(symbol "power:GND"
			(power)
			(pin_names (offset 0) hide)
			(property "Reference" "#PWR" (at 0 -6.35 0) (effects (font (size 1.27 1.27)) hide))
			(property "Value" "GND" (at 0 -3.81 0) (effects (font (size 1.27 1.27))))
			(symbol "GND_0_1"
				(polyline (pts (xy 0 0) (xy 0 -1.27) (xy 1.27 -1.27) (xy 0 -2.54) (xy -1.27 -1.27) (xy 0 -1.27))
					(stroke (width 0) (type default))
					(fill (type none))
				)
			)
			(symbol "GND_1_1"
				(pin power_in line (at 0 0 270) (length 0) hide
					(name "GND" (effects (font (size 1.27 1.27))))
					(number "1" (effects (font (size 1.27 1.27))))
				)
			)
		)`

const rootUUID = "6f5d2a1e-0000-4000-8000-000000000001"

// schematicText wraps body in a KiCad 8 file with the resistor and ground
// symbols embedded.
func schematicText(body string) string {
	return `(kicad_sch
	(version 20231120)
	(generator "eeschema")
	(generator_version "8.0")
	(uuid "` + rootUUID + `")
	(paper "A4")
	(lib_symbols
		` + resistorSymbol + `
		` + groundSymbol + `
	)
` + body + `
	(sheet_instances
		(path "/" (page "1"))
	)
)
`
}

// resistorText returns a placed Device:R symbol with its instance block.
func resistorText(ref, value string, x, y, angle float64) string {
	id := strings.ToLower(ref) + "-uuid"
	return fmt.Sprintf(`	(symbol (lib_id "Device:R") (at %g %g %g) (unit 1)
		(in_bom yes) (on_board yes) (dnp no)
		(uuid "%s")
		(property "Reference" "%s" (at %g %g 0) (effects (font (size 1.27 1.27))))
		(property "Value" "%s" (at %g %g 0) (effects (font (size 1.27 1.27))))
		(property "Footprint" "" (at %g %g 0) (effects (font (size 1.27 1.27)) hide))
		(pin "1" (uuid "%s-p1"))
		(pin "2" (uuid "%s-p2"))
		(instances
			(project "demo"
				(path "/%s" (reference "%s") (unit 1))
			)
		)
	)
`, x, y, angle, id, ref, x+2.54, y, value, x+2.54, y+2.54, x, y, id, id, rootUUID, ref)
}

func groundText(ref string, x, y float64) string {
	return fmt.Sprintf(`	(symbol (lib_id "power:GND") (at %g %g 0) (unit 1)
		(uuid "%s-uuid")
		(property "Reference" "%s" (at %g %g 0) (effects (font (size 1.27 1.27)) hide))
		(property "Value" "GND" (at %g %g 0) (effects (font (size 1.27 1.27))))
		(pin "1" (uuid "%s-p1"))
		(instances
			(project "demo"
				(path "/%s" (reference "%s") (unit 1))
			)
		)
	)
`, x, y, strings.ToLower(ref), ref, x, y+6.35, x, y+3.81, strings.ToLower(ref), rootUUID, ref)
}

func mustParseSchematic(t *testing.T, name, text string) *Schematic {
	t.Helper()
	sch, err := ParseBytes(name, []byte(text))
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return sch
}

// testUUID returns readable deterministic identifiers.
func testUUID(key string) string {
	return "id-" + strings.NewReplacer("/", "-", ":", "-").Replace(key)
}
