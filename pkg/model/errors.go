package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an error for display and for the JSON API.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrSessionExpired ErrorCode = "SESSION_EXPIRED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// APIError is a classified error whose Message is safe to show to the user.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`

	// Cause is the underlying error, kept for logs only.
	Cause error `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// FieldError describes a validation error on a specific form field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates a VALIDATION_ERROR with optional field details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND error.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// NewUnauthorizedError creates an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *APIError {
	return &APIError{Code: ErrUnauthorized, Message: msg}
}

// NewRateLimitError creates a RATE_LIMITED error.
func NewRateLimitError(msg string) *APIError {
	return &APIError{Code: ErrRateLimited, Message: msg}
}

// NewUpstreamError wraps a failure of an external collaborator (LLM, auth service, PDF library).
func NewUpstreamError(msg string, cause error) *APIError {
	return &APIError{Code: ErrUpstream, Message: msg, Cause: cause}
}

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = NewUnauthorizedError("User not authenticated")

// ErrSessionTimedOut is returned when an idle session was expired and reset.
var ErrSessionTimedOut = &APIError{Code: ErrSessionExpired, Message: "Session expired. Please login again."}

// CodeOf returns the ErrorCode of err, or ErrInternal if err is not an *APIError.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternal
}

// UserMessage returns a message that can be shown to the user for any error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Something went wrong. Please try again."
}

// InvalidTransitionError is returned when a session state transition is invalid.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}
