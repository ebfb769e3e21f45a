package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	e := NewError(ErrPlanParse, "bad plan")
	assert.Equal(t, "[PLAN_PARSE] bad plan", e.Error())

	cause := errors.New("unexpected token")
	e = e.WithCause(cause)
	assert.Equal(t, "[PLAN_PARSE] bad plan: unexpected token", e.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := NewBrowserError(cause)
	require.ErrorIs(t, e, cause)
}

func TestError_Builders(t *testing.T) {
	e := NewError(ErrUpstreamError, "upstream down").
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, 502, e.HTTPStatus)
	assert.True(t, e.Retryable)
	assert.Equal(t, "openai", e.Provider)
}

func TestNewUnknownToolError(t *testing.T) {
	e := NewUnknownToolError("teleport")
	assert.Equal(t, ErrUnknownTool, e.Code)
	assert.Contains(t, e.Message, "teleport")
}

func TestNewToolValidationError(t *testing.T) {
	e := NewToolValidationError("click", "selector is required")
	assert.Equal(t, ErrToolValidation, e.Code)
	assert.Contains(t, e.Message, "click")
	assert.Contains(t, e.Message, "selector is required")
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(NewError(ErrInternalError, "x")))
	assert.True(t, IsRetryable(NewError(ErrTimeout, "x").WithRetryable(true)))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, ErrBrowser, GetErrorCode(NewBrowserError(errors.New("x"))))
}
