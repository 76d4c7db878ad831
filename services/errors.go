package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeProtocol    ErrorType = "protocol"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || e.Message == t.Message)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrProjectNotFound            = NewDomainError(ErrorTypeNotFound, "project not found", nil)
	ErrChatPromptNotFound         = NewDomainError(ErrorTypeNotFound, "chat prompt not found", nil)
	ErrChatResponseNotFound       = NewDomainError(ErrorTypeNotFound, "chat response not found", nil)
	ErrCompletionPromptNotFound   = NewDomainError(ErrorTypeNotFound, "completion prompt not found", nil)
	ErrCompletionResponseNotFound = NewDomainError(ErrorTypeNotFound, "completion response not found", nil)

	// Validation Errors
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidProjectName = NewDomainError(ErrorTypeValidation, "invalid project name", nil)
	ErrInvalidPatch       = NewDomainError(ErrorTypeValidation, "invalid patch document", nil)

	// Conflict Errors
	ErrDuplicateRecord = NewDomainError(ErrorTypeConflict, "record already exists", nil)

	// Protocol Errors
	ErrUnknownField = NewDomainError(ErrorTypeProtocol, "unknown field", nil)

	// Unavailable Errors
	ErrShuttingDown = NewDomainError(ErrorTypeUnavailable, "server is shutting down", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
)

// Derive returns a fresh copy of a sentinel wrapping err, so details can be
// attached without mutating the shared variable.
func Derive(sentinel *DomainError, err error) *DomainError {
	return NewDomainError(sentinel.Type, sentinel.Message, err)
}

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsProtocolError checks if an error is a streaming protocol error
func IsProtocolError(err error) bool {
	return GetErrorType(err) == ErrorTypeProtocol
}

// IsUnavailableError checks if an error is an unavailable error
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
