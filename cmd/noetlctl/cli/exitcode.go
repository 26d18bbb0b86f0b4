package cli

import (
	"errors"
	"net/http"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

// Exit codes for the CLI surface: 0 accepted/terminal, 2 validation error,
// 3 not found, 4 conflict, 5 internal.
const (
	ExitOK         = 0
	ExitValidation = 2
	ExitNotFound   = 3
	ExitConflict   = 4
	ExitInternal   = 5
)

// ExitCodeFor maps an error returned by cobra's Execute to a process exit
// code. main only calls this in the error branch; a nil err maps to
// ExitOK.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return ExitNotFound
		case apiErr.StatusCode == http.StatusConflict:
			return ExitConflict
		case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity:
			return ExitValidation
		default:
			return ExitInternal
		}
	}

	if errors.Is(err, apiclient.ErrValidation) {
		return ExitValidation
	}

	return ExitInternal
}
