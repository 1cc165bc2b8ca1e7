// Package errors provides structured error handling for the application
// Following enterprise patterns for error management and observability
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

// Error codes used across the formula engine
const (
	// Client errors (4xx)
	CodeBadRequest ErrorCode = "BAD_REQUEST"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeConflict   ErrorCode = "CONFLICT"

	// Server errors (5xx)
	CodeInternal    ErrorCode = "INTERNAL_ERROR"
	CodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// Provider errors. Transient errors have already been retried by the
	// gateway before they surface with this code; fatal errors are never
	// retried.
	CodeProviderTransient ErrorCode = "PROVIDER_TRANSIENT"
	CodeProviderFatal     ErrorCode = "PROVIDER_FATAL"

	// Business logic errors
	CodeFormulaNotFound    ErrorCode = "FORMULA_NOT_FOUND"
	CodeGenerationFailed   ErrorCode = "GENERATION_FAILED"
	CodeProviderUnknown    ErrorCode = "PROVIDER_UNKNOWN"
	CodeCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	CodeChangeLogWrite     ErrorCode = "CHANGE_LOG_WRITE_FAILED"
	CodeVersionConflict    ErrorCode = "VERSION_CONFLICT"
	CodeInvalidCapsuleSize ErrorCode = "INVALID_CAPSULE_COUNT"
)

// AppError represents an application error with structured information
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Cause    error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the appropriate HTTP status code
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeBadRequest, CodeInvalidCapsuleSize:
		return http.StatusBadRequest
	case CodeNotFound, CodeFormulaNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeVersionConflict:
		return http.StatusConflict
	case CodeProviderTransient, CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case CodeProviderFatal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithCause adds a cause error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates a new application error
func New(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *AppError {
	return New(CodeBadRequest, message, "")
}

// NewFormulaNotFoundError creates a formula not found error
func NewFormulaNotFoundError(formulaID string) *AppError {
	return New(
		CodeFormulaNotFound,
		"Formula not found",
		fmt.Sprintf("Formula with ID %s does not exist", formulaID),
	).WithMetadata("formula_id", formulaID)
}

// NewPersistenceError creates a persistence error. Persistence failures are
// always fatal to the request that triggered them.
func NewPersistenceError(operation string, cause error) *AppError {
	return New(
		CodePersistence,
		"Persistence operation failed",
		fmt.Sprintf("Failed to %s", operation),
	).WithCause(cause)
}

// NewProviderTransientError creates a transient provider error, surfaced only
// after the gateway's retry budget is exhausted.
func NewProviderTransientError(provider string, cause error) *AppError {
	return New(
		CodeProviderTransient,
		"AI provider temporarily unavailable",
		fmt.Sprintf("Provider %s failed after retries", provider),
	).WithMetadata("provider", provider).WithCause(cause)
}

// NewProviderFatalError creates a non-retriable provider error (bad
// credentials, malformed request).
func NewProviderFatalError(provider string, status int, cause error) *AppError {
	return New(
		CodeProviderFatal,
		"AI provider rejected the request",
		fmt.Sprintf("Provider %s returned status %d", provider, status),
	).WithMetadata("provider", provider).WithMetadata("status", status).WithCause(cause)
}

// NewChangeLogWriteError creates an audit log write error. The change log is a
// compliance requirement, so these never downgrade to warnings.
func NewChangeLogWriteError(formulaID string, cause error) *AppError {
	return New(
		CodeChangeLogWrite,
		"Change log write failed",
		fmt.Sprintf("Could not record change for formula %s", formulaID),
	).WithMetadata("formula_id", formulaID).WithCause(cause)
}

// NewVersionConflictError signals a lost race on per-user version allocation.
// The repository retries these internally; callers only see one if the retry
// budget is exhausted.
func NewVersionConflictError(userID string) *AppError {
	return New(
		CodeVersionConflict,
		"Formula version conflict",
		fmt.Sprintf("Concurrent formula creation for user %s", userID),
	).WithMetadata("user_id", userID)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return New(CodeInternal, message, "")
}

// Wrap wraps an error as an internal error if it's not already an AppError
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Is checks if an error carries a specific error code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// IsRetriable reports whether the error is worth a fresh generation attempt.
// Fatal provider errors and persistence errors are not.
func IsRetriable(err error) bool {
	return Is(err, CodeProviderTransient) || Is(err, CodeCircuitOpen)
}
