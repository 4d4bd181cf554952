package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide how to react without
// inspecting messages.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindUnauthorized  Kind = "unauthenticated"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Error carries a stable machine readable code next to a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors sharing the same code, so a wrapped copy produced by
// Wrap or Detail still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// New builds a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Detail returns a copy of the sentinel with a more specific message.
func (e *Error) Detail(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of the sentinel that carries the underlying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// KindOf resolves the kind of err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf resolves the machine readable code of err.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal_error"
}

// MessageOf returns the client facing message. Internal errors never leak
// their cause.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// IsRetryable reports whether err is transient and safe to retry.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUnavailable
}

var (
	// ErrValidation is the generic malformed input failure.
	ErrValidation = New(KindValidation, "validation_failed", "invalid payload")
	// ErrInvalidTransition indicates a state change outside the workflow graph.
	ErrInvalidTransition = New(KindValidation, "invalid_transition", "invalid state transition")
	// ErrPointsCeilingExceeded indicates a ticket batch would push a student past maxPoints.
	ErrPointsCeilingExceeded = New(KindValidation, "points_ceiling_exceeded", "ticket points exceed detail maximum")
	// ErrDetailMismatch indicates a ticket references a detail of another activity.
	ErrDetailMismatch = New(KindValidation, "detail_mismatch", "detail does not belong to activity")
	// ErrReviewerUnassigned indicates an activity lacks an instructor or committee.
	ErrReviewerUnassigned = New(KindValidation, "reviewer_unassigned", "activity has no assigned reviewer")
	// ErrInvalidReviewer indicates an instructor or committee assignment that
	// does not name a registered reviewer of the right type.
	ErrInvalidReviewer = New(KindValidation, "invalid_reviewer", "reviewer assignment is invalid")
	// ErrNotEditable indicates the activity state forbids modification.
	ErrNotEditable = New(KindValidation, "not_editable", "activity can not be modified in its current state")
	// ErrIssuanceClosed indicates tickets can not be issued in the current state.
	ErrIssuanceClosed = New(KindValidation, "issuance_closed", "activity does not accept tickets in its current state")

	// ErrUnauthenticated indicates missing or invalid credentials.
	ErrUnauthenticated = New(KindUnauthorized, "unauthenticated", "authentication required")
	// ErrInvalidCredentials indicates a failed sign-in.
	ErrInvalidCredentials = New(KindUnauthorized, "invalid_credentials", "invalid name or password")

	// ErrForbidden is the generic authorization failure.
	ErrForbidden = New(KindAuthorization, "forbidden", "insufficient permissions")
	// ErrNotOwner indicates the actor does not own the activity.
	ErrNotOwner = New(KindAuthorization, "not_owner", "only the activity owner may perform this action")
	// ErrNotReviewer indicates the actor is not assigned to the review.
	ErrNotReviewer = New(KindAuthorization, "not_reviewer", "actor is not an assigned reviewer")

	ErrActivityNotFound = New(KindNotFound, "activity_not_found", "activity not found")
	ErrDetailNotFound   = New(KindNotFound, "detail_not_found", "detail not found")
	ErrTicketNotFound   = New(KindNotFound, "ticket_not_found", "ticket not found")
	ErrReviewNotFound   = New(KindNotFound, "review_not_found", "review not found")
	ErrUserNotFound     = New(KindNotFound, "user_not_found", "user not found")
	ErrStudentNotFound  = New(KindNotFound, "student_not_found", "student not found")

	// ErrAlreadyDecided indicates a review stage has already been decided.
	ErrAlreadyDecided = New(KindConflict, "already_decided", "review has already been decided")
	// ErrStateMismatch indicates the activity moved while a review was open.
	ErrStateMismatch = New(KindConflict, "state_mismatch", "activity state changed concurrently")
	// ErrDuplicate indicates a unique key collision.
	ErrDuplicate = New(KindConflict, "duplicate", "resource already exists")

	// ErrUnavailable indicates a transient storage or network failure.
	ErrUnavailable = New(KindUnavailable, "unavailable", "service temporarily unavailable")
)
