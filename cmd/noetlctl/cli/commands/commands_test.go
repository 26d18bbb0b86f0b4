package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootForTest(t *testing.T, sub *cobra.Command) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "noetlctl"}
	root.PersistentFlags().StringP("server", "s", "http://localhost:8080", "base URL of the noetl server")
	root.AddCommand(sub)
	return root
}

func TestClientFromCmdUsesServerFlag(t *testing.T) {
	run := NewRunCommand()
	run.RunE = func(cmd *cobra.Command, args []string) error {
		client, err := clientFromCmd(cmd)
		require.NoError(t, err)
		assert.Equal(t, "http://example.com:9000", client.BaseURL)
		return nil
	}
	root := rootForTest(t, run)
	root.SetArgs([]string{"run", "playbook.yaml", "--server", "http://example.com:9000"})
	require.NoError(t, root.Execute())
}

func TestRunCommandRejectsInvalidPayloadJSON(t *testing.T) {
	run := NewRunCommand()
	root := rootForTest(t, run)
	root.SetArgs([]string{"run", "playbook.yaml", "--payload", "{not-json"})
	err := root.Execute()
	require.Error(t, err)
}

func TestStatusCommandRejectsNonIntegerID(t *testing.T) {
	status := NewStatusCommand()
	root := rootForTest(t, status)
	root.SetArgs([]string{"status", "not-an-id"})
	err := root.Execute()
	require.Error(t, err)
}

func TestCancelCommandRejectsNonIntegerID(t *testing.T) {
	cancel := NewCancelCommand()
	root := rootForTest(t, cancel)
	root.SetArgs([]string{"cancel", "not-an-id"})
	err := root.Execute()
	require.Error(t, err)
}
