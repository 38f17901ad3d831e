package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned and wrapped variants compare equal to
// their predefined sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrDraftNotFound       = New("DRAFT_NOT_FOUND", http.StatusNotFound, "draft not found")
	ErrSessionNotFound     = New("SESSION_NOT_FOUND", http.StatusNotFound, "session not found")
	ErrNoSelection         = New("NO_SELECTION", http.StatusConflict, "no course offering and date selected")
	ErrSelectionSuperseded = New("SELECTION_SUPERSEDED", http.StatusConflict, "selection superseded by a newer one")
	ErrNothingToSubmit     = New("NOTHING_TO_SUBMIT", http.StatusUnprocessableEntity, "no annotated records to submit")
	ErrRequestAborted      = New("REQUEST_ABORTED", http.StatusRequestTimeout, "request abandoned before completion")
	ErrSubmissionInFlight  = New("SUBMISSION_IN_FLIGHT", http.StatusConflict, "a submission for this roster is already in progress")
	ErrPrerequisiteMissing = New("PREREQUISITE_MISSING", http.StatusPreconditionFailed, "attendance must be submitted before grades")
	ErrIneligible          = New("ENTITY_INELIGIBLE", http.StatusUnprocessableEntity, "student is not eligible for this annotation")
	ErrUpstream            = New("UPSTREAM_UNAVAILABLE", http.StatusBadGateway, "roster service unavailable")
	ErrUpstreamTimeout     = New("UPSTREAM_TIMEOUT", http.StatusGatewayTimeout, "roster service timed out")
	ErrUpstreamRejected    = New("UPSTREAM_REJECTED", http.StatusBadRequest, "roster service rejected the request")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured details.
func WithDetails(err *Error, details interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}
