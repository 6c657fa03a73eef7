package kicadsexp

import (
	"strings"
	"testing"
)

func TestFormatBuiltTree(t *testing.T) {
	root := NewList("kicad_sch",
		NewList("version", Int(20231120)),
		NewList("generator", Str("kisync")),
		NewList("lib_symbols"),
		NewList("polyline",
			NewList("pts", Pair("xy", 0, 0), Pair("xy", 10.16, -2.54)),
			NewList("stroke", NewList("width", Num(0)), NewList("type", Sym("default"))),
		),
		NewList("property", Str("Reference"), Str("R1"),
			At(27.94, 13.97, 0),
			NewList("effects", NewList("font", Pair("size", 1.27, 1.27)), Sym("hide")),
		),
	)

	want := `(kicad_sch
	(version 20231120)
	(generator "kisync")
	(lib_symbols)
	(polyline
		(pts
			(xy 0 0) (xy 10.16 -2.54)
		)
		(stroke
			(width 0)
			(type default)
		)
	)
	(property "Reference" "R1"
		(at 27.94 13.97 0)
		(effects
			(font
				(size 1.27 1.27)
			)
			hide
		)
	)
)
`
	if got := FormatString(NewTree(root)); got != want {
		t.Errorf("unexpected layout\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{-0.00001, "0"},
		{1.27, "1.27"},
		{25.4, "25.4"},
		{100, "100"},
		{-2.54, "-2.54"},
		{1.000049, "1"},
		{3.14159265, "3.1416"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEditKeepsUntouchedBytes(t *testing.T) {
	input := "(kicad_sch\n  (symbol   (lib_id \"Device:R\")\n    (property \"Value\" \"10k\")  (at 1 2 0))\n  (text \"keep   me\")\n)\n"
	tree, err := ParseString(input)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sym := tree.Root().Find("symbol")
	sym.Find("property").Atom(2).Set("4k7")
	sym.Find("at").Atom(1).SetRaw(FormatNumber(30))

	want := strings.Replace(input, `"10k"`, `"4k7"`, 1)
	want = strings.Replace(want, "(at 1 2 0)", "(at 30 2 0)", 1)
	if got := FormatString(tree); got != want {
		t.Errorf("edit changed unrelated text\nwant %q\ngot  %q", want, got)
	}
}

func TestAppendIntoParsedList(t *testing.T) {
	input := "(kicad_sch\n\t(version 20231120)\n\t(lib_symbols)\n)\n"
	tree, err := ParseString(input)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	root := tree.Root()
	root.Find("lib_symbols").Append(NewList("symbol", Str("Device:R"), NewList("in_bom", Bool(true))))
	root.Append(NewList("label", Str("VCC"), At(1, 2, 0)))

	want := "(kicad_sch\n\t(version 20231120)\n\t(lib_symbols\n\t\t(symbol \"Device:R\"\n\t\t\t(in_bom yes)\n\t\t)\n\t)\n\t(label \"VCC\"\n\t\t(at 1 2 0)\n\t)\n)\n"
	if got := FormatString(tree); got != want {
		t.Errorf("unexpected output\nwant %q\ngot  %q", want, got)
	}
}

func TestRemoveAndReplace(t *testing.T) {
	input := "(root\n\t(a 1)\n\t(b 2)\n\t(c 3)\n)\n"
	tree, err := ParseString(input)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	root := tree.Root()
	if !root.Remove(root.Find("b")) {
		t.Fatal("expected b to be removed")
	}
	root.Replace(root.Find("c"), NewList("c", Int(4)))

	want := "(root\n\t(a 1)\n\t(c 4)\n)\n"
	if got := FormatString(tree); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}

func TestCloneFreshReindents(t *testing.T) {
	tree, err := ParseString("(lib\n  (symbol \"R\"\n    (pin passive line)\n  )\n)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	moved := tree.Root().Find("symbol").CloneFresh()
	out := NewTree(NewList("kicad_sch", NewList("lib_symbols", moved)))

	want := "(kicad_sch\n\t(lib_symbols\n\t\t(symbol \"R\"\n\t\t\t(pin passive line)\n\t\t)\n\t)\n)\n"
	if got := FormatString(out); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
}
