// Command noetlctl is the CLI surface over the control plane's REST API
// (spec §6): submit playbook runs, poll execution status, and request
// cancellation, with exit codes a CI pipeline or shell script can branch
// on (0 accepted/terminal, 2 validation, 3 not found, 4 conflict, 5
// internal).
package main

import (
	"fmt"
	"os"

	"github.com/noetl/noetl/cmd/noetlctl/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCodeFor(err))
	}
}
