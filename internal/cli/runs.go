// internal/cli/runs.go
package agenteval

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/agenteval/internal/report"
)

var runsShowOpts struct {
	maxRows  int
	export   string
	exportMD string
}

// runsCmd groups commands that read stored runs.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored evaluation runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		return report.WriteList(cmd.OutOrStdout(), list)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its per-record results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context(), GetConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := report.Write(out, run, report.Options{MaxRows: runsShowOpts.maxRows}); err != nil {
			return err
		}
		return exportRun(out, run, runsShowOpts.export, runsShowOpts.exportMD)
	},
}

func init() {
	runsShowCmd.Flags().IntVar(&runsShowOpts.maxRows, "max-rows", 0, "limit the per-record table (0 for all)")
	runsShowCmd.Flags().StringVar(&runsShowOpts.export, "export", "", "write the run as JSON to this file or directory")
	runsShowCmd.Flags().StringVar(&runsShowOpts.exportMD, "export-md", "", "write the run as Markdown to this file or directory")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
