package apperrors

import (
	"context"
	"errors"
)

// FieldError describes one malformed or missing input field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Error is the domain error type with a stable code.
type Error struct {
	Code    Code         // Machine-readable error code
	Message string       // Human-readable message
	Fields  []FieldError // Per-field validation failures
	Cause   error        // Wrapped underlying error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation creates a VALIDATION_FAILED error carrying field details.
func Validation(message string, fields ...FieldError) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Fields: fields}
}

// Sentinels usable with errors.Is.
var (
	ErrEventFull                   = New(CodeEventFull, "event is already full")
	ErrAlreadyAssigned             = New(CodeAlreadyAssigned, "volunteer is already assigned to this event")
	ErrEventNotFound               = New(CodeEventNotFound, "event not found")
	ErrVolunteerNotFound           = New(CodeVolunteerNotFound, "volunteer not found")
	ErrEventNotAcceptingVolunteers = New(CodeEventNotAcceptingVolunteer, "event is not accepting volunteers")
	ErrAssignmentNotFound          = New(CodeAssignmentNotFound, "volunteer not found in this event")
	ErrHistoryNotFound             = New(CodeHistoryNotFound, "volunteer history record not found")
	ErrNotificationNotFound        = New(CodeNotificationNotFound, "notification not found")
	ErrInvalidStatus               = New(CodeInvalidStatus, "invalid status")
	ErrInvalidTransition           = New(CodeInvalidTransition, "invalid status transition")
	ErrVersionConflict             = New(CodeVersionConflict, "document was modified concurrently")
	ErrStoreUnavailable            = New(CodeStoreUnavailable, "store unavailable")
)

// CodeOf extracts the code from err. Context deadline errors are reported as
// STORE_UNAVAILABLE so callers treat them as retryable.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeStoreUnavailable
	}
	return CodeInternal
}

// From normalizes any error into an *Error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeStoreUnavailable, "operation timed out", err)
	}
	return Wrap(CodeInternal, "internal error", err)
}

// IsRetryable reports whether err is a transient infrastructure failure.
func IsRetryable(err error) bool {
	return CodeOf(err).Retryable()
}
