// Package apperror defines the errors the HTTP layer knows how to render.
// Every error carries a stable machine code and a caller-safe message; the
// wrapped cause is logged but never sent to clients.
package apperror

import (
	"errors"
	"net/http"
	"time"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	// RetryAfter, when set, is sent as a Retry-After header.
	RetryAfter time.Duration
	Internal   error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return e.Code + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches any *Error with the same code, so wrapped copies of a
// sentinel satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Temporary reports whether the client is expected to retry.
func (e *Error) Temporary() bool {
	return e.RetryAfter > 0
}

func def(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, StatusCode: status}
}

// Sentinels, grouped by status.
var (
	ErrBadRequest      = def(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrInvalidFileType = def(http.StatusBadRequest, "invalid_file_type", "Only video files are allowed")

	ErrUnauthorized = def(http.StatusUnauthorized, "unauthorized", "Authentication required")
	ErrInvalidToken = def(http.StatusUnauthorized, "invalid_token", "Invalid or expired token")

	ErrEntitlementRequired = def(http.StatusPaymentRequired, "entitlement_required",
		"No upload credits remaining. Purchase credits or subscribe to continue")

	ErrForbidden = def(http.StatusForbidden, "forbidden", "You don't have permission to access this resource")

	ErrNotFound     = def(http.StatusNotFound, "not_found", "The requested resource was not found")
	ErrJobNotFound  = def(http.StatusNotFound, "job_not_found", "Job not found")
	ErrFileNotFound = def(http.StatusNotFound, "file_not_found", "Video file not found")

	ErrInvalidStatus = def(http.StatusConflict, "invalid_status", "The job is not in a state that allows this action")
	ErrNotReady      = def(http.StatusConflict, "not_ready", "The processed video is not available yet")

	ErrFileTooLarge = def(http.StatusRequestEntityTooLarge, "file_too_large",
		"The uploaded file exceeds the maximum allowed size")

	ErrRangeNotSatisfiable = def(http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable",
		"Requested range not satisfiable")

	ErrRateLimited = &Error{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: time.Second,
	}

	ErrInternal = def(http.StatusInternalServerError, "internal_error",
		"An unexpected error occurred. Please try again later")

	ErrQueueFull = &Error{
		Code:       "queue_full",
		Message:    "Processing capacity is exhausted. Please try again shortly",
		StatusCode: http.StatusServiceUnavailable,
		RetryAfter: 30 * time.Second,
	}
	ErrServiceUnavailable = def(http.StatusServiceUnavailable, "service_unavailable",
		"Service temporarily unavailable. Please try again later")
)

func New(code, message string, statusCode int) *Error {
	return def(statusCode, code, message)
}

// Wrap attaches cause to a copy of kind.
func Wrap(cause error, kind *Error) *Error {
	e := *kind
	e.Internal = cause
	return &e
}

func WrapWithMessage(cause error, code, message string, statusCode int) *Error {
	e := def(statusCode, code, message)
	e.Internal = cause
	return e
}

// Validation builds a 400 with a caller-facing message.
func Validation(message string) *Error {
	return New(ErrBadRequest.Code, message, http.StatusBadRequest)
}

// From returns the *Error in err's chain, or ErrInternal wrapping err.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrInternal)
}
