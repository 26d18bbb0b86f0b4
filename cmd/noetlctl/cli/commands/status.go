package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

// NewStatusCommand builds `noetlctl status`.
func NewStatusCommand() *cobra.Command {
	var wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Print an execution's current state",
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

			for {
				exec, err := client.GetExecution(cmd.Context(), executionID)
				if err != nil {
					return err
				}

				if !wait || exec.Terminal() {
					fmt.Fprintf(cmd.OutOrStdout(), "execution_id=%d status=%s failed_steps=%v\n",
						exec.Workflow.ExecutionID, exec.Workflow.Status, exec.FailedSteps)
					return nil
				}

				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(pollInterval):
				}
			}
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the execution reaches a terminal state")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "interval between polls when --wait is set")

	return cmd
}
