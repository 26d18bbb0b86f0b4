// Package commands implements noetlctl's Cobra subcommands.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

// NewRunCommand builds `noetlctl run`.
func NewRunCommand() *cobra.Command {
	var payloadJSON string

	cmd := &cobra.Command{
		Use:   "run <playbook-path>",
		Short: "Submit a playbook for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{}
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("%w: --payload is not valid JSON: %v", apiclient.ErrValidation, err)
				}
			}

			client, err := clientFromCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := client.RunPlaybook(cmd.Context(), apiclient.RunRequest{
				Path:    args[0],
				Payload: payload,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "execution_id=%d status=%s\n", resp.ExecutionID, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadJSON, "payload", "", "JSON payload passed as the run's initial workload")

	return cmd
}
