package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("message includes code and text", func(t *testing.T) {
		err := New(CodeForbidden, "invalid CSRF token")
		assert.Equal(t, "forbidden: invalid CSRF token", err.Error())
	})

	t.Run("wrapped cause is reachable via Unwrap", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeUnavailable, "downstream call failed")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("wrapping nil returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInternal, "nothing happened"))
	})

	t.Run("Newf formats the message", func(t *testing.T) {
		err := Newf(CodeRateLimited, "try again in %d minute(s)", 15)
		assert.Equal(t, "rate_limited: try again in 15 minute(s)", err.Error())
	})
}

func TestCodeOf(t *testing.T) {
	t.Run("extracts the code through wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeUnauthorized, "invalid token"))
		assert.Equal(t, CodeUnauthorized, CodeOf(err))
	})

	t.Run("foreign errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
		{Code("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.code), string(tt.code))
	}
}
