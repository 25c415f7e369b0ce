package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMatchesTemplate(t *testing.T) {
	err := Clone(ErrNotFound, "report not found")
	wrapped := fmt.Errorf("load: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrForbidden))
	assert.Equal(t, "report not found", err.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
}

func TestInvalidTransitionNamesStates(t *testing.T) {
	err := InvalidTransition("resolved", "pending")
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Contains(t, err.Message, `"resolved"`)
	assert.Contains(t, err.Message, `"pending"`)
}

func TestDependencyWrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Dependency(cause, "forecast service")
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrDependencyUnavailable))
}
