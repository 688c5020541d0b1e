// Package apperrors provides the stable error codes returned by the
// assignment engine and their mapping onto HTTP statuses.
package apperrors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validation
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeInvalidID        Code = "INVALID_ID"

	// Not found
	CodeEventNotFound        Code = "EVENT_NOT_FOUND"
	CodeVolunteerNotFound    Code = "VOLUNTEER_NOT_FOUND"
	CodeAssignmentNotFound   Code = "ASSIGNMENT_NOT_FOUND"
	CodeHistoryNotFound      Code = "HISTORY_NOT_FOUND"
	CodeNotificationNotFound Code = "NOTIFICATION_NOT_FOUND"

	// Conflicts
	CodeEventFull                  Code = "EVENT_FULL"
	CodeAlreadyAssigned            Code = "ALREADY_ASSIGNED"
	CodeEventNotAcceptingVolunteer Code = "EVENT_NOT_ACCEPTING_VOLUNTEERS"
	CodeInvalidTransition          Code = "INVALID_TRANSITION"
	CodeVersionConflict            Code = "VERSION_CONFLICT"

	// Infrastructure
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodeInternal         Code = "INTERNAL"

	// Access
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
)

// Kind groups codes by how a caller is expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTransient
)

// Kind returns the category of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidationFailed, CodeInvalidStatus, CodeInvalidID:
		return KindValidation
	case CodeEventNotFound, CodeVolunteerNotFound, CodeAssignmentNotFound,
		CodeHistoryNotFound, CodeNotificationNotFound:
		return KindNotFound
	case CodeEventFull, CodeAlreadyAssigned, CodeEventNotAcceptingVolunteer,
		CodeInvalidTransition:
		return KindConflict
	case CodeVersionConflict, CodeStoreUnavailable:
		return KindTransient
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeForbidden:
		return KindForbidden
	default:
		return KindInternal
	}
}

// HTTPStatus maps the code onto the status written by the handlers.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed if repeated.
func (c Code) Retryable() bool {
	return c.Kind() == KindTransient
}
