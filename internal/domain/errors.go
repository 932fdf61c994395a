// Package domain provides the identity, session and room event types and domain-specific errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of domain error
type ErrorType string

const (
	// ValidationError represents validation failures
	ValidationError ErrorType = "VALIDATION_ERROR"
	// NotFoundError represents resource not found
	NotFoundError ErrorType = "NOT_FOUND_ERROR"
	// AuthenticationError represents authentication failures
	AuthenticationError ErrorType = "AUTHENTICATION_ERROR"
	// InternalError represents internal system errors
	InternalError ErrorType = "INTERNAL_ERROR"
	// ExternalServiceError represents external service failures
	ExternalServiceError ErrorType = "EXTERNAL_SERVICE_ERROR"
)

// Error codes surfaced by the login flow and the authorization gate.
const (
	CodeInvalidState     = "INVALID_STATE"
	CodeUpstreamExchange = "UPSTREAM_EXCHANGE_FAILED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeUnknownProvider  = "UNKNOWN_PROVIDER"
	CodeProfileNotFound  = "PROFILE_NOT_FOUND"
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *DomainError {
	return &DomainError{
		Type:    ValidationError,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{
		Type:    NotFoundError,
		Code:    code,
		Message: message,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *DomainError {
	return &DomainError{
		Type:    AuthenticationError,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *DomainError {
	return &DomainError{
		Type:    InternalError,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewExternalServiceError creates a new external service error
func NewExternalServiceError(code, message string, cause error) *DomainError {
	return &DomainError{
		Type:    ExternalServiceError,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidStateError reports a missing, forged, reused or expired anti-CSRF state.
// The user has to restart the login.
func NewInvalidStateError(message string) *DomainError {
	return NewValidationError(CodeInvalidState, message, map[string]interface{}{"field": "state"})
}

// NewUpstreamError reports a failed code exchange or profile fetch.
func NewUpstreamError(message string, cause error) *DomainError {
	return NewExternalServiceError(CodeUpstreamExchange, message, cause)
}

// NewUnauthorizedError reports a missing, invalid or expired session token.
func NewUnauthorizedError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    AuthenticationError,
		Code:    CodeUnauthorized,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// TypeOf returns the ErrorType of err, or InternalError when err is not a DomainError.
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return InternalError
}
