// Package core implements the booking aggregate state machine and the
// four public commands (Book, Reserve, Confirm, Cancel) that mutate it.
package core

import "fmt"

// Kind classifies a core error the way the teacher's repository package
// classifies ErrForbidden/ErrConflict, extended to the full set of error
// kinds §7 requires so the HTTP adapter can map them to status codes
// without re-deriving the classification itself.
type Kind string

const (
	KindBadRequest    Kind = "BAD_REQUEST"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindForbidden     Kind = "FORBIDDEN"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindInvalidState  Kind = "INVALID_BOOKING_STATE"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindUnavailable   Kind = "SERVICE_UNAVAILABLE"
	KindInternal      Kind = "INTERNAL"
)

// Error is the typed error every command and query returns on failure.
// Code mirrors spec §7's stable wire codes (a Conflict carries
// "INSUFFICIENT_SEATS" or "CONFLICT_VERSION" here); SubReason carries
// detail such as "reservation expired" without overloading Message,
// which stays human-readable.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	SubReason  string
	Details    map[string]string
	// CurrentStatus carries the booking's status for InvalidBookingState
	// errors, per spec §4.1.3/§4.6 ("carrying the current status").
	CurrentStatus string
}

func (e *Error) Error() string {
	if e.SubReason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.SubReason)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// BadRequest builds a KindBadRequest error (missing/invalid field,
// non-positive price, reservationDurationMinutes out of range, etc).
func BadRequest(message string) *Error {
	return newError(KindBadRequest, "BAD_REQUEST", message)
}

// Forbidden builds a KindForbidden error (caller does not own the booking).
func Forbidden(message string) *Error {
	return newError(KindForbidden, "FORBIDDEN", message)
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error {
	return newError(KindNotFound, "NOT_FOUND", message)
}

// InsufficientSeats builds the Conflict error raised when a requested seat
// is not acquirable (§4.1.1, §4.1.2).
func InsufficientSeats() *Error {
	e := newError(KindConflict, "INSUFFICIENT_SEATS", "requested seat is not available")
	return e
}

// ConflictVersion builds the Conflict error raised when two concurrent
// transactions race to insert the same (aggregateId, version) row and
// this one loses (§4.1.5).
func ConflictVersion() *Error {
	return newError(KindConflict, "CONFLICT_VERSION", "concurrent modification, retry")
}

// InvalidState builds the InvalidBookingState error, carrying the current
// status as spec §4.6 requires for any attempted transition not listed.
func InvalidState(currentStatus string, subReason string) *Error {
	e := newError(KindInvalidState, "INVALID_BOOKING_STATE", "illegal state transition")
	e.CurrentStatus = currentStatus
	e.SubReason = subReason
	return e
}

// Unavailable builds a ServiceUnavailable error for a downstream
// dependency failure during command execution (§7 propagation policy).
func Unavailable(message string) *Error {
	return newError(KindUnavailable, "SERVICE_UNAVAILABLE", message)
}

// Internal builds an unclassified Internal error.
func Internal(message string) *Error {
	return newError(KindInternal, "INTERNAL", message)
}
