package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var importOutput string

var importCmd = &cobra.Command{
	Use:   "import <root_schematic>",
	Short: "Read schematics back into a description",
	Long: `Read the hierarchy under a root schematic and print its canonical JSON
description. Feeding the output to generate leaves the files unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "write the description to a file instead of stdout")
}

func runImport(cmd *cobra.Command, args []string) error {
	opts := syncOptions(".")
	design, warnings, err := synchronizer.Import(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}
	printWarnings(cmd, warnings)

	data, err := design.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode description: %w", err)
	}
	if importOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(importOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write description: %w", err)
	}
	return nil
}
