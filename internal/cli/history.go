package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"speedlog/internal/measure"
	"speedlog/internal/storage/models"
	"speedlog/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded measurements",
	Long: `Print the most recent records, oldest first.

With --tui the records are shown in an interactive viewer that can also
start a measurement.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		useTUI, _ := cmd.Flags().GetBool("tui")
		if limit < 0 {
			return fmt.Errorf("invalid limit %d", limit)
		}

		if useTUI {
			return runHistoryTUI(cmd, limit)
		}

		recs, err := appInstance.Store.List(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to read records: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No records yet.")
			return nil
		}
		writeHistory(out, recs)
		return nil
	},
}

func runHistoryTUI(cmd *cobra.Command, limit int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	p := tui.NewProgram(ctx, tui.Deps{
		Store: appInstance.Store,
		Measure: func(ctx context.Context) *measure.Outcome {
			return appInstance.MeasureOnce(ctx, io.Discard)
		},
		Limit: limit,
	})
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func writeHistory(out io.Writer, recs []*models.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERVER\tSPONSOR\tLATENCY\tDOWN\tUP\tPING\tSTATUS")
	for _, rec := range recs {
		server := optString(rec.ServerIDResolved)
		if server == "-" {
			server = optString(rec.ServerIDRequested)
		}
		status := "ok"
		if !rec.Success() {
			status = "failed"
			if rec.Error != "" {
				status = "failed: " + rec.Error
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.TimestampISO,
			server,
			optString(rec.ServerSponsor),
			optFloat(rec.Latency, "ms"),
			optFloat(rec.DownloadSpeedMbps, " Mbps"),
			optFloat(rec.UploadSpeedMbps, " Mbps"),
			optFloat(rec.Ping, "ms"),
			status,
		)
	}
	w.Flush()
}

func optString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func optFloat(f *float64, unit string) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%s", *f, unit)
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of records to show (0 for all)")
	historyCmd.Flags().Bool("tui", false, "open the interactive viewer")
	historyCmd.RegisterFlagCompletionFunc("limit", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"20", "100", "500", "0"}, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.AddCommand(historyCmd)
}
