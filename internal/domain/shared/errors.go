// Package shared contains common domain errors and value objects used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound = errors.New("entity not found")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")

	// Processing errors
	ErrHashing          = errors.New("hashing failed")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "identity", "leaderboard", "session"
	Op      string // Operation that failed, e.g., "Resolve", "FetchPage"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Identity domain errors
var (
	ErrEmptyToken      = NewDomainError("identity", "Validate", ErrEmptyValue, "user token cannot be empty")
	ErrTokenHashFailed = NewDomainError("identity", "Hash", ErrHashing, "failed to hash user token")
	ErrUserNotFound    = NewDomainError("identity", "Resolve", ErrNotFound, "user not found on any track")
)

// Leaderboard domain errors
var (
	ErrInvalidPage     = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "page number out of range")
	ErrInvalidTrack    = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "unknown track id")
	ErrEmptyCatalog    = NewDomainError("leaderboard", "Validate", ErrEmptyValue, "track catalog is empty")
	ErrTrackExhausted  = NewDomainError("leaderboard", "Resolve", ErrRetriesExhausted, "track resolution retries exhausted")
	ErrSessionNotFound = NewDomainError("session", "Find", ErrNotFound, "resolution session not found")
	ErrSessionStale    = NewDomainError("session", "Apply", ErrExpired, "resolution session superseded")
)

// External service errors
var (
	ErrPolytrackUnavailable     = NewDomainError("polytrack", "Request", ErrServiceUnavailable, "Polytrack API is unavailable")
	ErrPolytrackRateLimited     = NewDomainError("polytrack", "Request", ErrRateLimited, "Polytrack API rate limit exceeded")
	ErrPolytrackTimeout         = NewDomainError("polytrack", "Request", ErrTimeout, "Polytrack API request timeout")
	ErrPolytrackInvalidResponse = NewDomainError("polytrack", "Parse", ErrInvalidFormat, "invalid response from Polytrack API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
