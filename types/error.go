package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the mesh.
type ErrorCode string

// Coordination error codes
const (
	ErrInvalidRegistration          ErrorCode = "INVALID_REGISTRATION"
	ErrNoEligibleAgents             ErrorCode = "NO_ELIGIBLE_AGENTS"
	ErrAgentNotFound                ErrorCode = "AGENT_NOT_FOUND"
	ErrDiscoveryTimeout             ErrorCode = "DISCOVERY_TIMEOUT"
	ErrCoordinationExecutionFailure ErrorCode = "COORDINATION_EXECUTION_FAILURE"
)

// Transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
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

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewInvalidRegistrationError creates an INVALID_REGISTRATION error.
func NewInvalidRegistrationError(message string) *Error {
	return NewError(ErrInvalidRegistration, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewNoEligibleAgentsError creates a NO_ELIGIBLE_AGENTS error.
func NewNoEligibleAgentsError(message string) *Error {
	return NewError(ErrNoEligibleAgents, message).WithHTTPStatus(http.StatusUnprocessableEntity)
}

// NewAgentNotFoundError creates an AGENT_NOT_FOUND error naming the missing agent.
func NewAgentNotFoundError(agent string) *Error {
	return NewError(ErrAgentNotFound, "Agent not found: "+agent).WithHTTPStatus(http.StatusNotFound)
}

// NewInvalidRequestError creates an INVALID_REQUEST error.
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(http.StatusBadRequest)
}

// NewInternalError creates an INTERNAL_ERROR error.
func NewInternalError(message string) *Error {
	return NewError(ErrInternalError, message).WithHTTPStatus(http.StatusInternalServerError)
}
