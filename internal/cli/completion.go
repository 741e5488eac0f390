package cli

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/matzehuels/keyforge/pkg/layout"
	"github.com/matzehuels/keyforge/pkg/solid"
	"github.com/matzehuels/keyforge/pkg/template"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for keyforge.

  $ source <(keyforge completion bash)
  $ keyforge completion zsh > "${fpath[1]}/_keyforge"
  $ keyforge completion fish | source
  PS> keyforge completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
}

// flagValues lists the fixed choices offered for option flags.
func flagValues() map[string][]string {
	var machines []string
	for _, v := range template.Machines() {
		machines = append(machines, string(v.Machine))
	}
	return map[string][]string{
		"machine":  machines,
		"mode":     keys(solid.ValidModes),
		"face":     keys(solid.ValidFaces),
		"scale":    keys(layout.ValidScaleModes),
		"shaper":   keys(layout.ValidShapers),
		"overflow": keys(layout.ValidOverflows),
	}
}

func keys[K ~string](m map[K]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// registerFlagCompletions offers the fixed choices for every command that
// has the corresponding flag.
func registerFlagCompletions(cmds ...*cobra.Command) {
	values := flagValues()
	for _, cmd := range cmds {
		for name, choices := range values {
			if cmd.Flags().Lookup(name) == nil {
				continue
			}
			choices := choices
			_ = cmd.RegisterFlagCompletionFunc(name, func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
				return choices, cobra.ShellCompDirectiveNoFileComp
			})
		}
	}
}
