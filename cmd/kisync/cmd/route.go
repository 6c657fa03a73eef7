package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/kicad/pcb"
	"github.com/OpenTraceLab/kisync/pkg/kicad/sexp/kicadsexp"
	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var routeOutput string

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Hand a board to an external router and take the result back",
}

var routeExportCmd = &cobra.Command{
	Use:   "export <board_file>",
	Short: "Write the routing job (outline, layers, nets and pads) as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteExport,
}

var routeIngestCmd = &cobra.Command{
	Use:   "ingest <board_file> <routed_file>",
	Short: "Replace the board's tracks and vias with routed ones",
	Long: `Replace every segment, arc and via of a board with the ones in a routed
file. Routed elements are copied verbatim apart from their net numbers, which
are matched to the board by net name. Everything else in the board is kept
byte for byte.`,
	Args: cobra.ExactArgs(2),
	RunE: runRouteIngest,
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.AddCommand(routeExportCmd, routeIngestCmd)
	routeExportCmd.Flags().StringVarP(&routeOutput, "output", "o", "", "write the job to a file instead of stdout")
}

func runRouteExport(cmd *cobra.Command, args []string) error {
	board, err := pcb.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("error parsing board: %w", err)
	}
	job := pcb.ExportJob(board)

	if routeOutput == "" {
		_, err = job.WriteTo(cmd.OutOrStdout())
		return err
	}
	f, err := os.Create(routeOutput)
	if err != nil {
		return err
	}
	if _, err := job.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runRouteIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := ctxlog.FromContext(ctx)

	board, err := pcb.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("error parsing board: %w", err)
	}
	routed, err := kicadsexp.ParseFile(args[1])
	if err != nil {
		return fmt.Errorf("error parsing routed file: %w", err)
	}

	stats, err := pcb.Ingest(board, routed)
	if err != nil {
		return err
	}
	written, err := synchronizer.WriteFile(ctx, args[0], kicadsexp.Format(board.Tree))
	if err != nil {
		return err
	}
	log.Info("routed copper ingested", "board", args[0], "removed", stats.Removed,
		"segments", stats.Segments, "arcs", stats.Arcs, "vias", stats.Vias, "written", written)
	return nil
}
