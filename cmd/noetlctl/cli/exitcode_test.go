package cli

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noetl/noetl/cmd/noetlctl/cli/apiclient"
)

func TestExitCodeForNil(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCodeFor(nil))
}

func TestExitCodeForAPIErrors(t *testing.T) {
	cases := []struct {
		status int
		want   int
	}{
		{http.StatusNotFound, ExitNotFound},
		{http.StatusConflict, ExitConflict},
		{http.StatusBadRequest, ExitValidation},
		{http.StatusUnprocessableEntity, ExitValidation},
		{http.StatusInternalServerError, ExitInternal},
		{http.StatusTeapot, ExitInternal},
	}
	for _, tc := range cases {
		err := &apiclient.APIError{StatusCode: tc.status}
		assert.Equal(t, tc.want, ExitCodeFor(err), "status=%d", tc.status)
	}
}

func TestExitCodeForValidationError(t *testing.T) {
	err := fmt.Errorf("%w: bad flag", apiclient.ErrValidation)
	assert.Equal(t, ExitValidation, ExitCodeFor(err))
}

func TestExitCodeForUnknownError(t *testing.T) {
	assert.Equal(t, ExitInternal, ExitCodeFor(errors.New("boom")))
}
