package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCompletionCommand creates the 'completion' command. The generated
// scripts also complete --resource values, read from the database copy that
// an earlier run left in the working directory.
func NewCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script for cachetool.

Resource names offered for --resource come from the decrypted database that
decode, encode or list leave in the working directory (--workdir, or the
current directory). Run one of them once before relying on it; completion
never touches the cache itself.

Bash (current session):
  $ source <(cachetool completion bash)

Zsh (all sessions, compinit must be enabled):
  $ cachetool completion zsh > "${fpath[1]}/_cachetool"

Fish:
  $ cachetool completion fish > ~/.config/fish/completions/cachetool.fish

PowerShell:
  PS> cachetool completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}
}
