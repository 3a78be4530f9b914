// Package store defines the shared types and error taxonomy for the
// replicated attendance store.
package store

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents store-specific error codes.
type ErrorCode int

const (
	// ErrUnknown represents an unknown error.
	ErrUnknown ErrorCode = iota
	// ErrKeyNotFound indicates the key was not found in the store.
	ErrKeyNotFound
	// ErrKeyInvalid indicates a malformed key or key component.
	ErrKeyInvalid
	// ErrValueInvalid indicates a malformed stored value.
	ErrValueInvalid
	// ErrValidationFailed indicates a malformed request shape.
	ErrValidationFailed
	// ErrPermissionDenied indicates the caller's role does not permit the operation.
	ErrPermissionDenied
	// ErrConfigInvalid indicates missing or invalid configuration (e.g. an empty instance group).
	ErrConfigInvalid
	// ErrStoreUnavailable indicates one or more store instances are unreachable.
	ErrStoreUnavailable
	// ErrUpstreamFailed indicates a primary/backup tier fetch failure.
	ErrUpstreamFailed
	// ErrTimedOut indicates an operation exceeded its deadline.
	ErrTimedOut
)

// String returns the string representation of ErrorCode.
func (c ErrorCode) String() string {
	switch c {
	case ErrKeyNotFound:
		return "key_not_found"
	case ErrKeyInvalid:
		return "key_invalid"
	case ErrValueInvalid:
		return "value_invalid"
	case ErrValidationFailed:
		return "validation_failed"
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrStoreUnavailable:
		return "store_unavailable"
	case ErrUpstreamFailed:
		return "upstream_failed"
	case ErrTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Error represents a store-specific error.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *Error) Is(target error) bool {
	var storeErr *Error
	if errors.As(target, &storeErr) {
		return e.Code == storeErr.Code
	}
	return false
}

// ToHTTPStatus maps error code to HTTP status.
func (e *Error) ToHTTPStatus() int {
	switch e.Code {
	case ErrKeyNotFound:
		return http.StatusNotFound
	case ErrKeyInvalid, ErrValueInvalid, ErrValidationFailed:
		return http.StatusBadRequest
	case ErrPermissionDenied:
		return http.StatusForbidden
	case ErrStoreUnavailable, ErrTimedOut:
		return http.StatusServiceUnavailable
	case ErrUpstreamFailed:
		return http.StatusBadGateway
	case ErrConfigInvalid, ErrUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new store error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a base error for error chain.
func WrapError(base *Error, message string, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: message,
		Cause:   cause,
	}
}

// Predefined errors for common cases.
var (
	ErrNotFound         = NewError(ErrKeyNotFound, "key not found")
	ErrInvalidKey       = NewError(ErrKeyInvalid, "key is invalid")
	ErrInvalidValue     = NewError(ErrValueInvalid, "value is invalid")
	ErrInvalidRequest   = NewError(ErrValidationFailed, "request shape is invalid")
	ErrForbidden        = NewError(ErrPermissionDenied, "operation not permitted for role")
	ErrBadConfig        = NewError(ErrConfigInvalid, "configuration is invalid")
	ErrUnavailable      = NewError(ErrStoreUnavailable, "store instance is unavailable")
	ErrUpstream         = NewError(ErrUpstreamFailed, "upstream fetch failed")
	ErrDeadlineExceeded = NewError(ErrTimedOut, "operation timed out")
)

// IsNotFound checks if the error is a key not found error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrKeyNotFound)
}

// IsPermissionDenied checks if the error is a permission denial.
func IsPermissionDenied(err error) bool {
	return hasCode(err, ErrPermissionDenied)
}

// IsValidation checks if the error is a request validation failure.
func IsValidation(err error) bool {
	return hasCode(err, ErrValidationFailed) || hasCode(err, ErrKeyInvalid) || hasCode(err, ErrValueInvalid)
}

// IsStoreUnavailable checks if the error indicates an unreachable instance.
func IsStoreUnavailable(err error) bool {
	return hasCode(err, ErrStoreUnavailable) || hasCode(err, ErrTimedOut)
}

// IsConfig checks if the error is a configuration error.
func IsConfig(err error) bool {
	return hasCode(err, ErrConfigInvalid)
}

func hasCode(err error, code ErrorCode) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}

// ToHTTPStatus converts any error to an HTTP status code.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.ToHTTPStatus()
	}
	return http.StatusInternalServerError
}
