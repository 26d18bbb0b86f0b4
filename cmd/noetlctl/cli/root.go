// Package cli wires the noetlctl root Cobra command and its subcommands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/noetl/noetl/cmd/noetlctl/cli/commands"
)

// NewRootCommand constructs noetlctl's root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "noetlctl",
		Short:         "noetlctl controls a NoETL server's playbook executions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("server", "s", "http://localhost:8080", "base URL of the noetl server")

	cmd.AddCommand(commands.NewCancelCommand())
	cmd.AddCommand(commands.NewRunCommand())
	cmd.AddCommand(commands.NewStatusCommand())

	return cmd
}
