package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for capfetch.

To load completions:

Bash:
  $ source <(capfetch completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ capfetch completion bash > /etc/bash_completion.d/capfetch
  # macOS:
  $ capfetch completion bash > $(brew --prefix)/etc/bash_completion.d/capfetch

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ capfetch completion zsh > "${fpath[1]}/_capfetch"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ capfetch completion fish | source

  # To load completions for each session, execute once:
  $ capfetch completion fish > ~/.config/fish/completions/capfetch.fish

PowerShell:
  PS> capfetch completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> capfetch completion powershell > capfetch.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  usageArgs(cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs)),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
