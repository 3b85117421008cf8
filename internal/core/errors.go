package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream failures for retry and logging decisions.
type ErrorKind string

const (
	// ErrorKindTransport indicates a transport-level failure such as a
	// connection reset or DNS error. Retryable.
	ErrorKindTransport ErrorKind = "transport_error"
	// ErrorKindRateLimited indicates the provider signaled throttling (429).
	// Retryable.
	ErrorKindRateLimited ErrorKind = "rate_limit_error"
	// ErrorKindProtocol indicates a malformed or otherwise unexpected
	// provider response. Not retryable.
	ErrorKindProtocol ErrorKind = "protocol_error"
	// ErrorKindCircuitOpen indicates the circuit breaker rejected the call
	// without contacting the provider. Converted to the fallback response
	// before reaching any caller.
	ErrorKindCircuitOpen ErrorKind = "circuit_open"
	// ErrorKindTimeout indicates the overall request deadline was exceeded.
	// Not retryable once triggered.
	ErrorKindTimeout ErrorKind = "timeout_error"
)

// UpstreamError is the error type for all failures talking to the provider.
type UpstreamError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	// Original error for debugging (not exposed to clients).
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error may succeed on a later attempt.
// Only transport failures and rate limiting qualify.
func (e *UpstreamError) Retryable() bool {
	return e.Kind == ErrorKindTransport || e.Kind == ErrorKindRateLimited
}

// NewTransportError creates a transport-level upstream error.
func NewTransportError(message string, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrorKindTransport, Message: message, Err: err}
}

// NewRateLimitError creates a rate-limit upstream error.
func NewRateLimitError(message string) *UpstreamError {
	return &UpstreamError{Kind: ErrorKindRateLimited, Message: message, StatusCode: 429}
}

// NewProtocolError creates a protocol-level upstream error for an
// unexpected status code or response shape.
func NewProtocolError(statusCode int, message string, err error) *UpstreamError {
	return &UpstreamError{Kind: ErrorKindProtocol, Message: message, StatusCode: statusCode, Err: err}
}

// NewCircuitOpenError creates an error signaling the breaker is open.
func NewCircuitOpenError(name string) *UpstreamError {
	return &UpstreamError{Kind: ErrorKindCircuitOpen, Message: "circuit breaker open for " + name}
}

// NewTimeoutError creates an error signaling the request deadline passed.
func NewTimeoutError(err error) *UpstreamError {
	return &UpstreamError{Kind: ErrorKindTimeout, Message: "request deadline exceeded", Err: err}
}

// KindOf returns the ErrorKind of err, or ErrorKindProtocol when err is not
// an UpstreamError. Unknown failures are treated as non-retryable.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ErrorKindProtocol
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return false
}
