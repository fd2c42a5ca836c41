package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsExistingCode(t *testing.T) {
	inner := New(ErrBackendProtocol, "no messages")
	wrapped := Wrap(fmt.Errorf("invoke: %w", inner), ErrBackendTransport)

	assert.Equal(t, ErrBackendProtocol, wrapped.Code)
	assert.True(t, Is(wrapped, ErrBackendProtocol))
	assert.False(t, Is(wrapped, ErrBackendTransport))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternalServer))
}

func TestUnwrap(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, ErrBackendTransport, "POST /responses")

	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, ErrBackendTransport, ExtractCode(err))
	assert.Equal(t, "POST /responses", GetDetails(err))
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestExtractCodeDefaults(t *testing.T) {
	assert.Equal(t, ErrInternalServer, ExtractCode(stderrors.New("plain")))
	assert.Equal(t, "plain", GetDetails(stderrors.New("plain")))
	assert.Equal(t, "", GetDetails(nil))
}

func TestCodeTable(t *testing.T) {
	tests := []struct {
		code   int
		status int
	}{
		{ErrAuthenticationFailed, http.StatusUnauthorized},
		{ErrBackendProtocol, http.StatusBadGateway},
		{ErrUnmatchedToolResult, http.StatusInternalServerError},
		{ErrSpaceTimeout, http.StatusGatewayTimeout},
		{99999, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, GetHTTPStatus(tt.code), "code %d", tt.code)
	}

	assert.Equal(t, "Authentication failed: no token", FormatError(ErrAuthenticationFailed, "no token"))
	assert.Equal(t, "[3000] Unexpected serving endpoint response format: empty", New(ErrBackendProtocol, "empty").Error())
}
