package commands

import (
	"github.com/spf13/cobra"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

// clientFromCmd builds an apiclient.Client against the --server persistent
// flag registered on the root command.
func clientFromCmd(cmd *cobra.Command) (*apiclient.Client, error) {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return nil, err
	}
	return apiclient.New(server), nil
}
