// Package errors provides centralized error definitions and error handling
// utilities for the onboard codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// The taxonomy follows the failure modes of the onboarding engine:
//
//   - APIError: the progress/auth/form API was unreachable or returned a
//     failure status. Transport failures and 5xx responses are retryable;
//     the next timer tick or user retry re-attempts them.
//   - ValidationError: a local, blocking rule failure carrying a structured
//     list of field violations. No network call is made.
//   - AuthError: the session is no longer usable (expired token, failed
//     refresh). Fatal to the session only; durably saved progress and
//     drafts are unaffected.
//   - StorageError: a persistence tier failed. Callers degrade to a lower
//     tier silently rather than surfacing the failure.
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrAuthExpired) { ... }
//
//	var vErr *errors.ValidationError
//	if errors.As(err, &vErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrAuthExpired indicates the access token is expired or was rejected.
	ErrAuthExpired = New("authentication expired")
	// ErrRefreshFailed indicates the refresh-token exchange did not succeed.
	ErrRefreshFailed = New("token refresh failed")
	// ErrNoSession indicates no token pair is currently held.
	ErrNoSession = New("no active session")
)

// Progress-related sentinel errors
var (
	// ErrAdvanceInFlight indicates an advancement attempt is already being
	// processed; the triggering signal was dropped.
	ErrAdvanceInFlight = New("advancement already in flight")
	// ErrStepOutOfRange indicates a step outside the onboarding sequence.
	ErrStepOutOfRange = New("step out of range")
)

// Persistence-related sentinel errors
var (
	// ErrNotFound indicates the requested key does not exist in a store.
	ErrNotFound = New("not found")
	// ErrStorageUnavailable indicates no persistence tier accepted a write.
	ErrStorageUnavailable = New("no storage tier available")
	// ErrDraftSubmitted indicates the server reports the form as already
	// submitted; local draft data must not overwrite it.
	ErrDraftSubmitted = New("form already submitted")
)

// -----------------------------------------------------------------------------
// APIError
// -----------------------------------------------------------------------------

// APIError represents a failure talking to the onboarding API.
// StatusCode is zero when the request never reached the server.
type APIError struct {
	Op         string // logical operation, e.g. "advance-step"
	StatusCode int
	Err        error
}

// NewAPIError creates an APIError wrapping the underlying cause.
func NewAPIError(op string, statusCode int, err error) *APIError {
	return &APIError{Op: op, StatusCode: statusCode, Err: err}
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("api: ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: a transport error or
// a server-side (5xx) response. Client errors other than 401 are permanent.
func (e *APIError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// FieldViolation identifies one unmet requirement in a draft form. Label is
// the human-readable name the caller may display; FieldID addresses the field.
type FieldViolation struct {
	FieldID string `json:"field_id"`
	Label   string `json:"label"`
}

// ValidationError carries the ordered list of field violations that blocked
// a step advancement. It is produced locally; no network call was made.
type ValidationError struct {
	Step       int
	Violations []FieldViolation
}

// NewValidationError creates a ValidationError for the given step.
func NewValidationError(step int, violations []FieldViolation) *ValidationError {
	return &ValidationError{Step: step, Violations: violations}
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		fields[i] = v.FieldID
	}
	return fmt.Sprintf("validation failed for step %d: missing %s",
		e.Step, strings.Join(fields, ", "))
}

// -----------------------------------------------------------------------------
// AuthError
// -----------------------------------------------------------------------------

// AuthError represents a session-fatal authentication failure.
type AuthError struct {
	Reason string
	Err    error
}

// NewAuthError creates an AuthError wrapping the underlying cause.
func NewAuthError(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// StorageError
// -----------------------------------------------------------------------------

// StorageError represents a failure in one persistence tier.
type StorageError struct {
	Tier string // e.g. "remote", "file", "memory"
	Op   string // "save", "load", "delete"
	Err  error
}

// NewStorageError creates a StorageError for the given tier and operation.
func NewStorageError(tier, op string, err error) *StorageError {
	return &StorageError{Tier: tier, Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error is transient and a later attempt
// (next poll tick, user retry) may succeed without any state repair.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var storErr *StorageError
	if As(err, &storErr) {
		return true
	}
	return false
}

// IsAuthFatal reports whether the error terminates the session. Auth-fatal
// errors force a logout but never corrupt durably saved progress or drafts.
func IsAuthFatal(err error) bool {
	if Is(err, ErrAuthExpired) || Is(err, ErrRefreshFailed) {
		return true
	}
	var authErr *AuthError
	return As(err, &authErr)
}

// IsValidation reports whether the error is a local validation failure.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return As(err, &vErr)
}
