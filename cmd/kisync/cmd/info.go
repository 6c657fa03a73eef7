package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/pkg/kicad/pcb"
	"github.com/OpenTraceLab/kisync/pkg/kicad/schematic"
	"github.com/OpenTraceLab/kisync/pkg/placement"
)

var infoCmd = &cobra.Command{
	Use:   "info <file> [component]",
	Short: "Show schematic or board information",
	Long: `Display a summary of a KiCad schematic (.kicad_sch) or board (.kicad_pcb).

Without component argument: shows the file summary
With component argument: shows details for that component`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	filename := args[0]
	w := cmd.OutOrStdout()

	if filepath.Ext(filename) == ".kicad_pcb" {
		board, err := pcb.ParseFile(filename)
		if err != nil {
			return fmt.Errorf("error parsing board: %w", err)
		}
		showBoardSummary(w, board)
		return nil
	}

	sch, err := schematic.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("error parsing schematic: %w", err)
	}
	if len(args) >= 2 {
		return showComponentDetails(w, sch, args[1])
	}
	showSchemSummary(w, sch, filename)
	return nil
}

func showSchemSummary(w io.Writer, sch *schematic.Schematic, filename string) {
	fmt.Fprintf(w, "Schematic: %s\n", filename)
	fmt.Fprintf(w, "Version: %d\n", sch.Version)
	fmt.Fprintf(w, "Generator: %s", sch.Generator)
	if sch.GeneratorVer != "" {
		fmt.Fprintf(w, " v%s", sch.GeneratorVer)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Paper: %s\n", sch.Paper)
	if sch.TitleBlock.Title != "" {
		fmt.Fprintf(w, "Title: %s\n", sch.TitleBlock.Title)
	}
	fmt.Fprintln(w)

	counts := map[placement.LabelKind]int{}
	for _, l := range sch.Labels {
		counts[l.Kind]++
	}
	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Components: %d\n", len(sch.Symbols))
	fmt.Fprintf(w, "  Library symbols: %d\n", len(sch.LibSymbols))
	fmt.Fprintf(w, "  Wires: %d\n", len(sch.Wires))
	fmt.Fprintf(w, "  Junctions: %d\n", len(sch.Junctions))
	fmt.Fprintf(w, "  Labels: %d\n", counts[placement.Local])
	fmt.Fprintf(w, "  Global labels: %d\n", counts[placement.Global])
	fmt.Fprintf(w, "  Hierarchical labels: %d\n", counts[placement.Hierarchical])
	fmt.Fprintf(w, "  Sheets: %d\n", len(sch.Sheets))
	fmt.Fprintf(w, "  No-connects: %d\n", len(sch.NoConnects))
	fmt.Fprintln(w)

	refs := sch.GetAllReferences("")
	if len(refs) > 0 {
		fmt.Fprintln(w, "Components:")

		// Group by reference prefix
		byPrefix := make(map[string][]string)
		var prefixes []string
		for _, ref := range refs {
			prefix := getRefPrefix(ref)
			if _, ok := byPrefix[prefix]; !ok {
				prefixes = append(prefixes, prefix)
			}
			byPrefix[prefix] = append(byPrefix[prefix], ref)
		}
		sort.Strings(prefixes)
		for _, prefix := range prefixes {
			fmt.Fprintf(w, "  %s: %s\n", prefix, strings.Join(byPrefix[prefix], ", "))
		}
		fmt.Fprintln(w)
	}

	labels := sch.GetLabels()
	if len(labels) > 0 {
		fmt.Fprintln(w, "Net Labels:")
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Fprintf(w, "  %s\n", l)
		}
		fmt.Fprintln(w)
	}

	if len(sch.Sheets) > 0 {
		fmt.Fprintln(w, "Hierarchical Sheets:")
		for _, sheet := range sch.Sheets {
			fmt.Fprintf(w, "  %s (%s)\n", sheet.Name, sheet.FileName)
			if len(sheet.Pins) > 0 {
				var pinNames []string
				for _, p := range sheet.Pins {
					pinNames = append(pinNames, p.Name)
				}
				fmt.Fprintf(w, "    Pins: %s\n", strings.Join(pinNames, ", "))
			}
		}
	}
}

func showComponentDetails(w io.Writer, sch *schematic.Schematic, ref string) error {
	sym := sch.GetSymbol(ref, "")
	if sym == nil {
		return fmt.Errorf("component '%s' not found", ref)
	}

	fmt.Fprintf(w, "Component: %s\n", ref)
	fmt.Fprintf(w, "Library: %s\n", sym.LibID)
	fmt.Fprintf(w, "UUID: %s\n", sym.UUID)
	fmt.Fprintf(w, "Position: (%.2f, %.2f)\n", sym.Position.X, sym.Position.Y)
	if sym.Angle != 0 {
		fmt.Fprintf(w, "Rotation: %.1f°\n", sym.Angle)
	}
	if sym.Mirror != "" {
		fmt.Fprintf(w, "Mirror: %s\n", sym.Mirror)
	}
	fmt.Fprintf(w, "Unit: %d\n", sym.Unit)
	fmt.Fprintln(w)

	if len(sym.Properties) > 0 {
		fmt.Fprintln(w, "Properties:")
		for _, prop := range sym.Properties {
			fmt.Fprintf(w, "  %s: %s\n", prop.Key, prop.Value)
		}
		fmt.Fprintln(w)
	}

	if libSym := sch.LibSymbol(sym.LibID); libSym != nil && len(libSym.Pins) > 0 {
		fmt.Fprintln(w, "Pins:")
		for _, pin := range libSym.Pins {
			fmt.Fprintf(w, "  %s (%s): %s %s\n", pin.Number, pin.Name, pin.Type, pin.Style)
		}
	}

	return nil
}

func showBoardSummary(w io.Writer, b *pcb.Board) {
	fmt.Fprintf(w, "Board: %s\n", b.File)
	fmt.Fprintf(w, "Version: %d\n", b.Version)
	fmt.Fprintf(w, "Generator: %s\n", b.Generator)
	fmt.Fprintf(w, "Thickness: %.2f mm\n", b.Thickness)
	fmt.Fprintf(w, "Copper layers: %s\n", strings.Join(b.CopperLayers(), ", "))
	if box := b.OutlineBox(); !box.IsEmpty() {
		fmt.Fprintf(w, "Outline: %.2f x %.2f mm\n", box.Width(), box.Height())
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Footprints: %d\n", len(b.Footprints))
	fmt.Fprintf(w, "  Nets: %d\n", len(b.Nets))
	fmt.Fprintf(w, "  Tracks: %d\n", len(b.Tracks))
	fmt.Fprintf(w, "  Vias: %d\n", len(b.Vias))
}

func getRefPrefix(ref string) string {
	// Extract prefix (letters before numbers)
	for i, c := range ref {
		if c >= '0' && c <= '9' {
			return ref[:i]
		}
	}
	return ref
}
