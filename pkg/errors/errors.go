// Package errors carries the application error taxonomy. Dispatch
// failures are classified here so the orchestrator can tell a
// retryable rate limit from a dead access token.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the classification of an error.
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeDuplicate  ErrorType = "DUPLICATE"

	// Dispatch errors
	ErrorTypeRateLimit  ErrorType = "RATE_LIMIT"
	ErrorTypeCredential ErrorType = "CREDENTIAL"
	ErrorTypeRecipient  ErrorType = "RECIPIENT"
	ErrorTypeNetwork    ErrorType = "NETWORK"

	// Infrastructure errors
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeInternal ErrorType = "INTERNAL"
	ErrorTypeTimeout  ErrorType = "TIMEOUT"
)

// AppError is the application-specific error carrying its
// classification, the upstream cause and, for rate limits, the
// server-provided backoff hint.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`

	// RetryAfter is the backoff the remote service asked for, zero
	// when none was supplied.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds a channel-specific error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithDetails adds structured error details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithRetryAfter records a server-supplied backoff hint.
func (e *AppError) WithRetryAfter(d time.Duration) *AppError {
	e.RetryAfter = d
	return e
}

// Retryable reports whether another attempt may succeed: network
// failures, timeouts and rate limits qualify; credential and
// recipient errors never do.
func (e *AppError) Retryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// Constructor functions for common error types

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error, used for lost
// conditional updates.
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicateError marks an already-processed external message id.
func NewDuplicateError(externalMessageID string) *AppError {
	return &AppError{
		Type:       ErrorTypeDuplicate,
		Message:    fmt.Sprintf("message %s already processed", externalMessageID),
		HTTPStatus: http.StatusConflict,
	}
}

// NewRateLimitError creates a retryable rate-limit error.
func NewRateLimitError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewCredentialError marks an expired or invalid access token. The
// caller should stop sending on this integration.
func NewCredentialError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCredential,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewRecipientError marks a recipient or permission failure for this
// turn only.
func NewRecipientError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRecipient,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewNetworkError creates a retryable transport-level error.
func NewNetworkError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		HTTPStatus: http.StatusRequestTimeout,
	}
}

// NewDatabaseError creates a database error.
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("database operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Helper functions

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type.
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks for a not found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflict checks for a lost conditional update.
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsDuplicate checks for an idempotency hit.
func IsDuplicate(err error) bool {
	return IsType(err, ErrorTypeDuplicate)
}

// IsCredential checks for a dead access token.
func IsCredential(err error) bool {
	return IsType(err, ErrorTypeCredential)
}

// IsRetryable reports whether the dispatcher may try again.
func IsRetryable(err error) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Retryable()
	}
	// Unclassified errors are treated as transport-level failures.
	return true
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
