// internal/cli/review.go
package agenteval

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/agenteval/internal/evaluator"
	"github.com/mwiater/agenteval/internal/util"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect outputs queued for human review",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued review items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := GetConfig().ReviewQueuePath()
		items, err := evaluator.ReadQueue(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintf(out, "No review items in %s.\n", path)
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(out, "%s  %s  %-20s %s\n",
				item.QueuedAt.Format("2006-01-02 15:04"),
				item.ID,
				util.TruncateRunes(item.Evaluator, 20),
				util.TruncateRunes(evaluator.Stringify(item.Actual), 60))
		}
		fmt.Fprintf(out, "%d items pending review\n", len(items))
		return nil
	},
}

func init() {
	reviewCmd.AddCommand(reviewListCmd)
	rootCmd.AddCommand(reviewCmd)
}
