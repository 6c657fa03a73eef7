package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/pkg/netlist"
	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var (
	netlistFormat string
	netlistOutput string
)

var netlistCmd = &cobra.Command{
	Use:   "netlist <root_schematic>",
	Short: "Export the flattened netlist of a schematic hierarchy",
	Long: `Resolve the hierarchy under a root schematic, connect nets across sheets and
export the result in KiCad's netlist format or as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runNetlist,
}

func init() {
	rootCmd.AddCommand(netlistCmd)
	netlistCmd.Flags().StringVarP(&netlistFormat, "format", "f", "kicad", "output format: kicad or json")
	netlistCmd.Flags().StringVarP(&netlistOutput, "output", "o", "", "write to a file instead of stdout")
}

func runNetlist(cmd *cobra.Command, args []string) error {
	p, err := synchronizer.ProjectHierarchy(cmd.Context(), args[0], syncOptions(".").LibraryPaths)
	if err != nil {
		return err
	}
	nl, err := netlist.Build(netlist.ScopesOf(p.Hierarchy, p.Docs))
	if err != nil {
		return err
	}

	var data []byte
	switch netlistFormat {
	case "kicad":
		data, err = nl.ExportKiCad(filepath.Base(args[0]))
	case "json":
		data, err = nl.ExportJSON()
	default:
		return fmt.Errorf("unknown netlist format %q", netlistFormat)
	}
	if err != nil {
		return err
	}

	if netlistOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(netlistOutput, data, 0o644)
}
