// Package errors provides the error taxonomy used across a hunt.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for propagation decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Navigation means a page failed to load or timed out.
	Navigation
	// Interaction means a simulated click or scroll failed.
	Interaction
	// AuthFailure means login fields were missing, credentials were rejected or 2FA was exhausted.
	AuthFailure
	// Capture means a response body could not be decoded as text.
	Capture
	// Analysis means a body could not be parsed during schema inference.
	Analysis
	// Fatal ends the run early: user cancellation or a dead browser session.
	Fatal
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Navigation:
		return "navigation"
	case Interaction:
		return "interaction"
	case AuthFailure:
		return "auth_failure"
	case Capture:
		return "capture"
	case Analysis:
		return "analysis"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// IsRecoverable reports whether the run continues after an error of this type.
func (t ErrorType) IsRecoverable() bool {
	return t != Fatal
}

// HuntError is a categorized error carrying the page and operation it came from.
type HuntError struct {
	Type      ErrorType
	URL       string
	Operation string
	Message   string
	Cause     error
	Retryable bool
}

// Error implements the error interface.
func (e *HuntError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *HuntError) Unwrap() error {
	return e.Cause
}

// Is matches another HuntError of the same type.
func (e *HuntError) Is(target error) bool {
	t, ok := target.(*HuntError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new HuntError.
func New(errType ErrorType, url, operation, message string, cause error) *HuntError {
	return &HuntError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNavigationError creates a navigation error.
func NewNavigationError(url string, cause error) *HuntError {
	err := New(Navigation, url, "navigate", "page failed to load", cause)
	err.Retryable = isTimeout(cause) || isNetworkError(cause)
	return err
}

// NewInteractionError creates an interaction error for one element.
func NewInteractionError(url, selector string, cause error) *HuntError {
	return New(Interaction, url, "interact", "element interaction failed: "+selector, cause)
}

// NewAuthError creates an authentication failure.
func NewAuthError(url, reason string, cause error) *HuntError {
	return New(AuthFailure, url, "authenticate", reason, cause)
}

// NewCaptureError creates a capture error for an undecodable body.
func NewCaptureError(url string, cause error) *HuntError {
	return New(Capture, url, "capture", "response body is not valid text", cause)
}

// NewAnalysisError creates an analysis error for a malformed body.
func NewAnalysisError(url string, cause error) *HuntError {
	return New(Analysis, url, "analyze", "malformed JSON body", cause)
}

// NewFatalError creates an error that ends the run.
func NewFatalError(url, operation string, cause error) *HuntError {
	return New(Fatal, url, operation, "run aborted", cause)
}

// NewCancelledError creates a fatal error for user cancellation.
func NewCancelledError(url, operation string) *HuntError {
	return New(Fatal, url, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, url string) *HuntError {
	if err == nil {
		return nil
	}

	var huntErr *HuntError
	if errors.As(err, &huntErr) {
		return huntErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(url, "run")
	}

	if isTimeout(err) || isNetworkError(err) {
		return NewNavigationError(url, err)
	}

	return New(Unknown, url, "run", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "net::ERR_")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var huntErr *HuntError
	if errors.As(err, &huntErr) {
		return huntErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsFatal reports whether err ends the run.
func IsFatal(err error) bool {
	return GetErrorType(err) == Fatal
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var huntErr *HuntError
	if errors.As(err, &huntErr) {
		return huntErr.Type
	}
	return Unknown
}
