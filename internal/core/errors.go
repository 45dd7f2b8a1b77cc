package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatConflict   ErrorCategory = "conflict"   // Exclusive resource held / operation in flight
	ErrCatAuth       ErrorCategory = "auth"       // Owner mismatch or bad shared secret
	ErrCatState      ErrorCategory = "state"      // Requested operation invalid for current state
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation exceeded its ceiling
	ErrCatNetwork    ErrorCategory = "network"    // Remote endpoint unreachable
	ErrCatUpstream   ErrorCategory = "upstream"   // Backend notification delivery failure
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrConflict creates a conflict error (resource already held or busy).
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatConflict,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrAuth creates an authorization error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatAuth,
		Code:      "NOT_AUTHORIZED",
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrUnreachable creates a network error for a transient connection failure.
func ErrUnreachable(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      "UNREACHABLE",
		Message:   message,
		Retryable: true,
	}
}

// ErrUpstream creates an upstream delivery error. These are logged and
// swallowed; they must never abort the local state transition that
// triggered the notification.
func ErrUpstream(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatUpstream,
		Code:      "UPSTREAM_DELIVERY_FAILED",
		Message:   message,
		Retryable: true,
	}
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrInternal creates an internal error wrapping an unexpected cause.
func ErrInternal(message string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      "INTERNAL",
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// GetCode extracts the error code, or "" for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// Predefined error codes
const (
	CodeAlreadyRunning          = "ALREADY_RUNNING"
	CodeAlreadyRunningSameOwner = "ALREADY_RUNNING_SAME_OWNER"
	CodeNotRunning              = "NOT_RUNNING"
	CodeNotLinked               = "NOT_LINKED"
	CodeSyncInProgress          = "SYNC_IN_PROGRESS"
	CodeStaleSyncToken          = "STALE_SYNC_TOKEN"
	CodeSpawnFailed             = "SPAWN_FAILED"
	CodeCommandFailed           = "COMMAND_FAILED"

	// Validation error codes
	CodeEmptyOwner    = "EMPTY_OWNER"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeEmptyChatList = "EMPTY_CHAT_LIST"
)
