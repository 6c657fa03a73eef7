package netlist

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/model"
)

func TestConnectAndFind(t *testing.T) {
	nl := New()

	if nl.Find("a") != "a" {
		t.Error("a should be its own root initially")
	}

	nl.Connect("a", "b")
	if nl.Find("a") != nl.Find("b") {
		t.Errorf("a and b should have same root after Connect")
	}
	if nl.Find("c") == nl.Find("a") {
		t.Errorf("c should have different root from a/b")
	}

	// transitive: a-b-c
	nl.Connect("b", "c")
	if nl.Find("a") != nl.Find("c") {
		t.Errorf("all keys should have same root after transitive connection")
	}
}

func resistor(value string) *model.Component {
	return &model.Component{
		Symbol: "Device:R",
		Value:  value,
		Pins: []model.Pin{
			{Number: "1", Direction: "passive"},
			{Number: "2", Direction: "passive"},
		},
	}
}

// twoChannelDesign is a root sheet feeding one child file used twice.
func twoChannelDesign() []Scope {
	root := model.NewDocument()
	root.Components["R1"] = resistor("10k")
	root.Nets["EN"] = []string{"R1.2", "chan_a.EN", "chan_b.EN"}
	root.Nets["VIN"] = []string{"R1.1"}
	root.Sheets["chan_a"] = &model.Sheet{File: "chan.kicad_sch", Pins: []model.SheetPin{{Name: "EN", Direction: "input"}}}
	root.Sheets["chan_b"] = &model.Sheet{File: "chan.kicad_sch", Pins: []model.SheetPin{{Name: "EN", Direction: "input"}}}

	chanDoc := func(ref string) *model.Document {
		d := model.NewDocument()
		d.Components[ref] = resistor("1k")
		d.Nets["EN"] = []string{ref + ".1"}
		d.Nets["GND"] = []string{ref + ".2"}
		d.Nets["LOCAL"] = nil
		d.Globals = []string{"GND"}
		return d
	}

	return []Scope{
		{Path: "/r", SheetPath: "/", Doc: root},
		{Path: "/r/a", Parent: "/r", SheetName: "chan_a", SheetPath: "/chan_a/", Doc: chanDoc("R2")},
		{Path: "/r/b", Parent: "/r", SheetName: "chan_b", SheetPath: "/chan_b/", Doc: chanDoc("R102")},
	}
}

func TestBuildFlattensHierarchy(t *testing.T) {
	nl, err := Build(twoChannelDesign())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	got := map[string][]string{}
	for _, n := range nl.Nets {
		var nodes []string
		for _, node := range n.Nodes {
			nodes = append(nodes, node.String())
		}
		got[n.Name] = nodes
	}
	want := map[string][]string{
		"/EN":  {"R1.2", "R102.1", "R2.1"},
		"/VIN": {"R1.1"},
		"GND":  {"R102.2", "R2.2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("nets = %v, want %v", got, want)
	}

	if nl.NetOf("R2", "1") != "/EN" {
		t.Errorf("NetOf(R2.1) = %q", nl.NetOf("R2", "1"))
	}
	if len(nl.Components) != 3 {
		t.Errorf("expected 3 components, got %d", len(nl.Components))
	}
	for i, n := range nl.Nets {
		if n.Code != i+1 {
			t.Errorf("net %s has code %d, want %d", n.Name, n.Code, i+1)
		}
	}
}

func TestBuildKeepsScopesApart(t *testing.T) {
	scopes := twoChannelDesign()
	// without the sheet pin the two EN nets are unrelated
	scopes[0].Doc.Sheets["chan_b"].Pins = nil

	nl, err := Build(scopes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if nl.NetOf("R102", "1") != "/chan_b/EN" {
		t.Errorf("NetOf(R102.1) = %q, want /chan_b/EN", nl.NetOf("R102", "1"))
	}
	if nl.NetOf("R2", "1") != "/EN" {
		t.Errorf("NetOf(R2.1) = %q, want /EN", nl.NetOf("R2", "1"))
	}
}

func TestBuildAutoNames(t *testing.T) {
	doc := model.NewDocument()
	doc.Components["R1"] = resistor("1k")
	doc.Components["R2"] = resistor("1k")
	doc.Nets["Net-(R1-Pad2)"] = []string{"R1.2", "R2.1"}

	nl, err := Build([]Scope{{Path: "/r", SheetPath: "/", Doc: doc}})
	if err != nil {
		t.Fatal(err)
	}
	if len(nl.Nets) != 1 || nl.Nets[0].Name != "Net-(R1-Pad2)" {
		t.Errorf("unexpected nets %+v", nl.Nets)
	}
}

func TestBuildRejectsUnknownMember(t *testing.T) {
	doc := model.NewDocument()
	doc.Nets["X"] = []string{"U9.1"}
	if _, err := Build([]Scope{{Path: "/r", SheetPath: "/", Doc: doc}}); err == nil {
		t.Error("expected an error for a member without a component")
	}
}

func TestExportJSON(t *testing.T) {
	nl, err := Build(twoChannelDesign())
	if err != nil {
		t.Fatal(err)
	}
	data, err := nl.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var out struct {
		NetCount int `json:"net_count"`
		Nets     []struct {
			Name string `json:"name"`
		} `json:"nets"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.NetCount != 3 || len(out.Nets) != 3 {
		t.Errorf("unexpected export %s", data)
	}

	if _, err := New().ExportJSON(); err == nil {
		t.Error("expected an error before Finalize")
	}
}

func TestExportKiCad(t *testing.T) {
	nl, err := Build(twoChannelDesign())
	if err != nil {
		t.Fatal(err)
	}
	data, err := nl.ExportKiCad("top.kicad_sch")
	if err != nil {
		t.Fatalf("ExportKiCad failed: %v", err)
	}

	tree, err := kicadsexp.ParseBytes("netlist", data)
	if err != nil {
		t.Fatalf("export does not parse: %v", err)
	}
	root := tree.Root()
	if root.Name() != "export" {
		t.Fatalf("root = %s", root.Name())
	}
	nets := root.Find("nets")
	if nets == nil || len(nets.FindAll("net")) != 3 {
		t.Fatalf("expected 3 nets in %s", data)
	}
	for _, want := range []string{`(name "/EN")`, `(ref "R102")`, `(part "R")`, `(tstamps "/b/")`, `(pintype "passive")`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %s", want)
		}
	}
}
