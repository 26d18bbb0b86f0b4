package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

// NewCancelCommand builds `noetlctl cancel`.
func NewCancelCommand() *cobra.Command {
	var reason string
	var cascade bool

	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Request cancellation of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			executionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: execution id must be an integer: %v", apiclient.ErrValidation, err)
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			if err := client.CancelExecution(cmd.Context(), executionID, apiclient.CancelRequest{
				Reason:  reason,
				Cascade: cascade,
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "execution_id=%d cancellation accepted\n", executionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the cancellation")
	cmd.Flags().BoolVar(&cascade, "cascade", false, "send cascade=true with the request; the server records it but cancels only the named execution")

	return cmd
}
