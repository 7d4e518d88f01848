package cli

import (
	"fmt"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"speedlog/internal/measure"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Show how a server would be chosen",
	Long: `Rank the closest servers by latency and probe the fastest ones, printing
every step. Nothing is written to the record log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Finding server with best latency...")
		res := appInstance.NewSelector().Rank(ctx)
		if res.Err != nil {
			return fmt.Errorf("cannot list servers: %w", res.Err)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tID\tSPONSOR\tNAME\tDISTANCE\tLATENCY")
		for i, r := range res.Ranked {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.0fkm\t%.2fms\n",
				i+1, r.Server.ID, r.Server.Sponsor, r.Server.Name, r.Server.Distance, r.Latency)
		}
		w.Flush()

		if len(res.Probed) > 0 {
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROBED\tSPONSOR\tDOWNLOAD\tUPLOAD")
			for _, p := range res.Probed {
				fmt.Fprintf(w, "%s\t%s\t%.2f Mbps\t%.2f Mbps\n",
					p.Server.ID, p.Server.Sponsor, measure.Mbps(p.Download), measure.Mbps(p.Upload))
			}
			w.Flush()
		}

		fmt.Fprintln(out)
		if id, ok := res.ID(); ok {
			fmt.Fprintf(out, "Selected server %s: %s (%s)\n", id, res.Best.Server.Sponsor, res.Best.Server.Name)
		} else {
			fmt.Fprintln(out, "No server could be probed.")
		}
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Stopped by user.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selectCmd)
}
