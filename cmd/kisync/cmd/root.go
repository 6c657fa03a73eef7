package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/internal/config"
	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/pkg/description"
	"github.com/OpenTraceLab/kisync/pkg/placement"
	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// set by the persistent pre-run
	cfg    *config.Config
	cfgDir string
)

var rootCmd = &cobra.Command{
	Use:   "kisync",
	Short: "kisync - keep KiCad schematics in sync with a circuit description",
	Long: `kisync generates KiCad schematics from a declarative circuit description
and reads them back, keeping manual layout edits made in Eeschema.

Examples:
  kisync generate circuit.json        # Write or update the schematics
  kisync import top.kicad_sch         # Read the schematics back to JSON
  kisync check top.kicad_sch          # Report structural problems
  kisync netlist top.kicad_sch        # Export the flattened netlist
  kisync watch                        # Regenerate when the description changes
  kisync route export board.kicad_pcb # Write a routing job`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		log.Error(err.Error(), errorAttrs(err)...)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ./"+config.FileName+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// setup loads the configuration and puts the logger in the command's
// context.
func setup(cmd *cobra.Command) error {
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		cfgDir = filepath.Dir(configPath)
	} else {
		cfgDir = "."
		cfg, err = config.LoadDir(cfgDir)
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := ctxlog.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return err
	}
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return nil
}

// configPathFor resolves a path from the configuration against the
// configuration's directory. URLs are returned unchanged.
func configPathFor(p string) string {
	if p == "" || filepath.IsAbs(p) || description.IsURL(p) {
		return p
	}
	return filepath.Join(cfgDir, p)
}

// syncOptions builds synchronizer options for a project in dir.
func syncOptions(dir string) synchronizer.Options {
	opts := synchronizer.DefaultOptions(dir)
	opts.Project = cfg.Project
	for _, p := range cfg.LibraryPaths {
		opts.LibraryPaths = append(opts.LibraryPaths, configPathFor(p))
	}
	paper, _ := placement.LookupPaper(cfg.Placement.Paper)
	opts.Placement = cfg.PlacementOptions(paper)
	opts.CanvasWidth = cfg.Placement.CanvasWidth
	opts.Paper = cfg.Placement.Paper
	opts.MaxPaper = cfg.Placement.MaxPaper
	return opts
}

func printWarnings(cmd *cobra.Command, warnings []synchronizer.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
}
