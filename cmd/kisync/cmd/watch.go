package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/internal/config"
	"github.com/OpenTraceLab/kisync/internal/ctxlog"
	"github.com/OpenTraceLab/kisync/internal/watch"
	"github.com/OpenTraceLab/kisync/pkg/description"
)

var watchCmd = &cobra.Command{
	Use:   "watch [description]",
	Short: "Regenerate whenever the description changes",
	Long: `Generate once, then watch the description file and regenerate after each
burst of changes. Stops on interrupt.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&outputDir, "out", "o", "", "output directory (default from config)")
	watchCmd.Flags().StringVar(&rootFile, "root", "", "root schematic for descriptions that do not name one")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := ctxlog.FromContext(ctx)

	location := descriptionLocation(args)
	if description.IsURL(location) {
		log.Warn("remote descriptions are not watched; generating once", "location", location)
		_, err := generateOnce(ctx, location)
		return err
	}

	paths := []string{location}
	if configPath != "" {
		paths = append(paths, configPath)
	}
	w, err := watch.New(watch.Config{Paths: paths, Debounce: cfg.Watch.Debounce})
	if err != nil {
		return err
	}
	defer w.Close()

	job := func(ctx context.Context, changed []string) error {
		if configPath != "" && slices.Contains(changed, absPath(configPath)) {
			reloaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := reloaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = reloaded
			log.Info("configuration reloaded", "file", configPath)
		}
		res, err := generateOnce(ctx, location)
		if res != nil {
			printResult(cmd.OutOrStdout(), res)
			printWarnings(cmd, res.Warnings)
		}
		return err
	}
	if err := job(ctx, nil); err != nil {
		log.Error("initial run failed", "error", err)
	}

	err = w.Run(ctx, job)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
