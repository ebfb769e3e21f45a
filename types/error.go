package types

import "fmt"

// ErrorCode represents a unified error code across the execution core.
type ErrorCode string

// Planning and tool error codes
const (
	ErrPlanParse      ErrorCode = "PLAN_PARSE"
	ErrUnknownTool    ErrorCode = "UNKNOWN_TOOL"
	ErrToolValidation ErrorCode = "TOOL_VALIDATION"
	ErrToolExecution  ErrorCode = "TOOL_EXECUTION"
	ErrBrowser        ErrorCode = "BROWSER_ERROR"
)

// Agent error codes
const (
	ErrAgentNotReady     ErrorCode = "AGENT_NOT_READY"
	ErrAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentBusy         ErrorCode = "AGENT_BUSY"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrProviderNotSet    ErrorCode = "PROVIDER_NOT_SET"
)

// Workflow error codes
const (
	ErrInvalidGraphEdit    ErrorCode = "INVALID_GRAPH_EDIT"
	ErrWorkflowNotFound    ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrExecutionNotFound   ErrorCode = "EXECUTION_NOT_FOUND"
	ErrExecutionNotRunning ErrorCode = "EXECUTION_NOT_RUNNING"
)

// Transport and infrastructure error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrNotFound            ErrorCode = "NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewPlanParseError wraps a planner output that could not be parsed.
func NewPlanParseError(cause error) *Error {
	return NewError(ErrPlanParse, "failed to parse execution plan").WithCause(cause)
}

// NewUnknownToolError reports a plan step referencing an unregistered tool.
func NewUnknownToolError(tool string) *Error {
	return NewError(ErrUnknownTool, fmt.Sprintf("unknown tool: %s", tool))
}

// NewToolValidationError reports parameter validation failures for a tool.
func NewToolValidationError(tool string, detail string) *Error {
	return NewError(ErrToolValidation, fmt.Sprintf("invalid parameters for %s: %s", tool, detail))
}

// NewBrowserError normalizes a backend failure into the browser error code.
func NewBrowserError(cause error) *Error {
	return NewError(ErrBrowser, "browser operation failed").WithCause(cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
