package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"conflict", Conflict("SOS already active"), http.StatusConflict},
		{"not found", NotFound("No active SOS"), http.StatusNotFound},
		{"validation", Validation("latitude is required"), http.StatusBadRequest},
		{"dependency", Dependency(errors.New("dial tcp"), "store unavailable"), http.StatusServiceUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("start: %w", Conflict("dup")), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := Dependency(errors.New("password authentication failed"), "Failed to create SOS alert")
	assert.Equal(t, "Failed to create SOS alert", Message(err))
	assert.Contains(t, err.Error(), "password authentication failed")
	assert.Equal(t, "Internal server error", Message(errors.New("raw")))
}

func TestIsAndUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Dependency(cause, "wrap")
	assert.True(t, Is(err, KindDependency))
	assert.False(t, Is(err, KindConflict))
	assert.False(t, Is(nil, KindConflict))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "dependency_failure", KindOf(err).String())
}
