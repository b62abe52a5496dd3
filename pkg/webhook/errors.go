package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies delivery failures for retry decisions
type ErrorType string

// Failure taxonomy. Only network, timeout, retryable-HTTP and unknown
// failures are retried; everything else fails fast.
const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeHTTP              ErrorType = "http"
	ErrorTypeCircuitOpen       ErrorType = "circuit_open"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error is the typed error surfaced by Send. Callers branch on Type or
// Retryable rather than parsing messages.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *Error) Unwrap() error { return e.Err }

// NewValidationError reports a bad payload or configuration; never retried
func NewValidationError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeValidation, Message: message, Err: cause}
}

// NewNetworkError reports a connection-level failure; retried
func NewNetworkError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: message, Retryable: true, Err: cause}
}

// NewTimeoutError reports a per-attempt timeout or a cancellation; retried
// within the same call unless the caller's context is gone
func NewTimeoutError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeTimeout, Message: message, Retryable: true, Err: cause}
}

// NewHTTPError reports a non-2xx response, or a 2xx response the remote
// explicitly rejected. Retryable only for 5xx, 408 and 429.
func NewHTTPError(statusCode int, message string) *Error {
	return &Error{
		Type:       ErrorTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500 || statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests,
	}
}

// NewRejectionError reports a structurally valid response with
// success=false: the remote explicitly rejected the request, so a retry
// would only repeat the rejection
func NewRejectionError(message string) *Error {
	return &Error{
		Type:       ErrorTypeHTTP,
		Message:    message,
		StatusCode: http.StatusOK,
	}
}

// NewCircuitOpenError reports a short-circuited call; never retried and
// never consumes a retry attempt
func NewCircuitOpenError(cause error) *Error {
	return &Error{
		Type:       ErrorTypeCircuitOpen,
		Message:    "circuit breaker is open, request rejected without attempt",
		StatusCode: http.StatusServiceUnavailable,
		Err:        cause,
	}
}

// NewMalformedResponseError reports an unparseable or schema-invalid body
// on an otherwise successful transport call; never retried
func NewMalformedResponseError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeMalformedResponse, Message: message, Err: cause}
}

// NewUnknownError is the conservative catch-all; retried by default
func NewUnknownError(message string, cause error) *Error {
	return &Error{Type: ErrorTypeUnknown, Message: message, Retryable: true, Err: cause}
}

// IsRetryable reports whether the error may be retried within a call
func IsRetryable(err error) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Retryable
	}
	// Unclassified errors are treated as retryable, matching the
	// unknown-error default.
	return true
}

// TypeOf extracts the taxonomy type, or ErrorTypeUnknown for foreign errors
func TypeOf(err error) ErrorType {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Type
	}
	return ErrorTypeUnknown
}
