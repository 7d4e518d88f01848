package cli

import (
	"context"
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"speedlog/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Measure at a fixed interval until interrupted",
	Long: `Run measurement cycles every --interval until interrupted.

A cycle that takes longer than the interval is followed immediately by the
next one. When metrics.addr is set, Prometheus metrics and the most recent
records are served over HTTP while the loop runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(cmd, 0)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single measurement cycle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(cmd, 1)
	},
}

// runLoop runs the measurement loop together with the metrics server and
// the background jobs. Interrupting it is not an error.
func runLoop(cmd *cobra.Command, maxCycles int) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	logger := appInstance.Logger
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if addr := appInstance.Config.Metrics.Addr; addr != "" {
		h := metrics.NewHandler(appInstance.Metrics, appInstance.Store, logger.Named("http"))
		g.Go(func() error {
			return metrics.Serve(runCtx, addr, h, logger.Named("http"))
		})
	}

	if maxCycles == 0 {
		sched, err := appInstance.NewScheduler(runCtx)
		if err != nil {
			return err
		}
		if sched.Jobs() > 0 {
			if err := sched.Start(); err != nil {
				return err
			}
			defer func() {
				if err := sched.Stop(); err != nil {
					logger.Warn("cannot stop scheduler", zap.Error(err))
				}
			}()
		}
	}

	loop := appInstance.NewLoop(maxCycles)
	g.Go(func() error {
		defer cancel()
		return loop.Run(runCtx)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Stopped by user.")
		return nil
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}
