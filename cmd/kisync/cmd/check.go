package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/kisync/pkg/synchronizer"
)

var checkCmd = &cobra.Command{
	Use:   "check <root_schematic>",
	Short: "Report structural problems in a schematic hierarchy",
	Long: `Read the hierarchy under a root schematic and report problems without
changing anything: asymmetric net memberships, overlapping units, orphaned
sheet files and files written by a newer KiCad.

Grammar errors, duplicate references and sheet cycles are fatal.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	warnings, err := synchronizer.Check(cmd.Context(), args[0], syncOptions("."))
	printWarnings(cmd, warnings)

	var problems *synchronizer.CheckError
	if errors.As(err, &problems) {
		for _, p := range problems.Problems {
			fmt.Fprintf(cmd.OutOrStdout(), "problem: %s\n", p)
		}
		return err
	}
	if err != nil {
		return err
	}
	if len(warnings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no problems found")
	}
	return nil
}
