package model

import (
	"errors"
	"fmt"
)

// ErrorType classifies model-service errors for reporting. The attempt loop
// treats every kind as a recoverable attempt failure; the classification only
// shapes the message surfaced to the user.
type ErrorType int8

const (
	// ErrorTypeTransport covers network failures, timeouts, and bad HTTP status.
	ErrorTypeTransport ErrorType = iota
	// ErrorTypeRateLimit covers rate limiting and quota errors.
	ErrorTypeRateLimit
	// ErrorTypeAuth covers authentication errors (bad or missing API key).
	ErrorTypeAuth
	// ErrorTypeMalformed covers responses that cannot be normalized into an envelope.
	ErrorTypeMalformed
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeMalformed:
		return "malformed"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified model-service error.
type Error struct {
	Err     error
	Message string
	Type    ErrorType
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("model error (%s): %s", e.Type.String(), e.Message)
	}
	return fmt.Sprintf("model error (%s): %v", e.Type.String(), e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new classified model error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a new classified model error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr.Type
	}
	return ErrorTypeUnknown
}
