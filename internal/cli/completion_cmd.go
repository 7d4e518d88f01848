package cli

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for speedlog.

Besides subcommands and flag names, the scripts complete flag values:
  --storage        file, sqlite, postgres
  --log-level      debug, info, warn, error
  history --limit  common record counts (0 shows the whole log)
  summary --since  24h, 168h, 720h

To load completions:

Bash:
  $ source <(speedlog completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ speedlog completion bash > /etc/bash_completion.d/speedlog
  # macOS:
  $ speedlog completion bash > $(brew --prefix)/etc/bash_completion.d/speedlog

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ speedlog completion zsh > "${fpath[1]}/_speedlog"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ speedlog completion fish | source
  # To load completions for each session, execute once:
  $ speedlog completion fish > ~/.config/fish/completions/speedlog.fish

PowerShell:
  PS> speedlog completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, run:
  PS> speedlog completion powershell > speedlog.ps1
  # and source this file from your PowerShell profile.
`,
	Annotations:           map[string]string{noApp: "true"},
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
