package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/description"
	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var (
	outputDir string
	rootFile  string
	dryRun    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [description]",
	Short: "Write or update schematics from a description",
	Long: `Merge a circuit description (JSON or HCL, path or URL) into the schematic
files of the output directory.

The description decides which components, nets and sheets exist. Positions
and other layout edits already in the files are kept. Running generate twice
with the same description writes nothing the second time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&outputDir, "out", "o", "", "output directory (default from config)")
	generateCmd.Flags().StringVar(&rootFile, "root", "", "root schematic for descriptions that do not name one")
	generateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report what would change without writing")
}

func descriptionLocation(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return configPathFor(cfg.Description)
}

func outputDirectory() string {
	if outputDir != "" {
		return outputDir
	}
	return configPathFor(cfg.OutputDir)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	res, err := generateOnce(cmd.Context(), descriptionLocation(args))
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
		printWarnings(cmd, res.Warnings)
	}
	return err
}

// generateOnce loads the description and runs one generation, recording
// metrics when the configuration asks for them.
func generateOnce(ctx context.Context, location string) (*synchronizer.Result, error) {
	log := ctxlog.FromContext(ctx)

	design, err := description.Load(ctx, location, description.Options{Project: cfg.Project, Root: rootFile})
	if err != nil {
		return nil, err
	}

	opts := syncOptions(outputDirectory())
	opts.DryRun = dryRun
	if cfg.MetricsFile != "" {
		opts.Metrics = metrics()
	}

	res, err := synchronizer.Generate(ctx, design, opts)
	if opts.Metrics != nil {
		if werr := opts.Metrics.WriteTextfile(configPathFor(cfg.MetricsFile)); werr != nil {
			log.Warn("failed to write metrics", "file", cfg.MetricsFile, "error", werr)
		}
	}
	return res, err
}

var runMetrics *synchronizer.Metrics

// metrics is shared by every run of the process so watch accumulates.
func metrics() *synchronizer.Metrics {
	if runMetrics == nil {
		runMetrics = synchronizer.NewMetrics()
	}
	return runMetrics
}

func printResult(w io.Writer, res *synchronizer.Result) {
	verb := "wrote"
	if dryRun {
		verb = "would write"
	}
	for _, f := range res.Files {
		if !f.Written {
			fmt.Fprintf(w, "unchanged %s\n", f.File)
			continue
		}
		s := f.Stats
		fmt.Fprintf(w, "%s %s (components +%d -%d ~%d, sheets +%d -%d, labels +%d -%d ~%d)\n",
			verb, f.File, s.Added, s.Removed, s.Updated,
			s.SheetsAdded, s.SheetsRemoved,
			s.LabelsAdded, s.LabelsRemoved, s.LabelsUpdated)
	}
}
