package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"speedlog/internal/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show aggregate statistics of the record log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")

		recs, err := appInstance.Store.List(cmd.Context(), 0)
		if err != nil {
			return fmt.Errorf("failed to read records: %w", err)
		}
		if since > 0 {
			recs = summary.Since(recs, time.Now().Add(-since))
		}
		return summary.Compute(recs).Write(cmd.OutOrStdout())
	},
}

func init() {
	summaryCmd.Flags().Duration("since", 0, "only include records from this far back (0 for all)")
	summaryCmd.RegisterFlagCompletionFunc("since", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"24h", "168h", "720h"}, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.AddCommand(summaryCmd)
}
