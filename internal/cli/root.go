package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"speedlog/internal/app"
	"speedlog/internal/config"
)

// noApp marks commands that run without loading the configuration.
const noApp = "speedlog.no-app"

var (
	appInstance *app.App
	v           = config.New()
	version     = "dev"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "speedlog",
	Short: "Periodic internet speed logger",
	Long: `speedlog measures download speed, upload speed and latency at a fixed
interval and appends one record per cycle to a local log.

  Each cycle ranks the closest servers by latency, probes the fastest
  few with a short throughput test and measures the best of them.
  Failed cycles are logged too.

  Quick start:
    speedlog                 # measure every 30 minutes until interrupted
    speedlog once            # a single cycle
    speedlog history --tui   # browse the log`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[noApp] != "" || isCompletionRequest(cmd) {
			return nil
		}
		closeApp()
		file, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(v, file)
		if err != nil {
			return err
		}
		appInstance, err = app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		appInstance.Out = cmd.OutOrStdout()
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop(cmd, 0)
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// PersistentPostRunE does not run after a failed command.
		closeApp()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func isCompletionRequest(cmd *cobra.Command) bool {
	return cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == cobra.ShellCompNoDescRequestCmd
}

func closeApp() error {
	if appInstance == nil {
		return nil
	}
	err := appInstance.Close()
	appInstance = nil
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Duration("interval", config.DefaultInterval, "time between cycle starts")
	flags.String("storage", config.DriverFile, "record log driver (file, sqlite, postgres)")
	flags.String("log-file", config.DefaultLogPath, "record log path for the file and sqlite drivers")
	flags.String("metrics-addr", "", "serve metrics and records on this address")

	bindFlag(v, "log.level", "log-level")
	bindFlag(v, "interval", "interval")
	bindFlag(v, "storage.driver", "storage")
	bindFlag(v, "storage.path", "log-file")
	bindFlag(v, "metrics.addr", "metrics-addr")

	rootCmd.RegisterFlagCompletionFunc("storage", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{config.DriverFile, config.DriverSQLite, config.DriverPostgres}, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(versionCmd)
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{noApp: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "speedlog %s\n", version)
	},
}
