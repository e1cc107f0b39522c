package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error codes
const (
	// Local rejections, no network call was made
	InvalidArgument    = "INVALID_ARGUMENT"
	FailedPrecondition = "FAILED_PRECONDITION"
	Unauthenticated    = "UNAUTHENTICATED"

	// Remote rejections
	Forbidden          = "FORBIDDEN"
	NotFound           = "NOT_FOUND"
	Conflict           = "CONFLICT"
	TooManyRequests    = "TOO_MANY_REQUESTS"
	Internal           = "INTERNAL_ERROR"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	DeadlineExceeded   = "DEADLINE_EXCEEDED"

	// Backend answered 2xx with a body we could not decode
	MalformedResponse = "MALFORMED_RESPONSE"
)

// Fallback user-facing messages
const (
	msgUnauthenticated = "Please log in to continue"
	msgTimeout         = "The request timed out, please try again"
	msgUnavailable     = "Unable to reach the store right now"
	msgGeneric         = "Something went wrong, please try again"
)

// Error represents a structured error
type Error struct {
	Code          string      `json:"code"`
	Message       string      `json:"message"`
	Status        int         `json:"status,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Details       interface{} `json:"details,omitempty"`

	cause error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s: %s", e.CorrelationID, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP status code for the error
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case InvalidArgument, FailedPrecondition:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case TooManyRequests:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case MalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRemote reports whether the error came back from (or on the way to) the backend
func (e *Error) IsRemote() bool {
	if e.Status != 0 {
		return true
	}
	switch e.Code {
	case ServiceUnavailable, DeadlineExceeded, MalformedResponse:
		return true
	}
	return false
}

// New creates a new error
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCorrelationID adds correlation ID to an error
func (e *Error) WithCorrelationID(correlationID string) *Error {
	e.CorrelationID = correlationID
	return e
}

// WithCause attaches the underlying error
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithStatus records the HTTP status the backend answered with
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// FromHTTPStatus maps a non-2xx backend status to an error code
func FromHTTPStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return InvalidArgument
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusForbidden:
		return Forbidden
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict, http.StatusGone:
		return Conflict
	case http.StatusTooManyRequests:
		return TooManyRequests
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return ServiceUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return DeadlineExceeded
	default:
		if status >= 400 && status < 500 {
			return FailedPrecondition
		}
		return Internal
	}
}

// CodeOf returns the code of a structured error, or Internal for anything else
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Internal
}

// Is reports whether err carries the given code
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// UserMessage returns the human-readable message to surface for err.
// Backend-provided messages win; otherwise a generic text per code, then fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if msg := strings.TrimSpace(e.Message); msg != "" {
			return msg
		}
		switch e.Code {
		case Unauthenticated:
			return msgUnauthenticated
		case DeadlineExceeded:
			return msgTimeout
		case ServiceUnavailable:
			return msgUnavailable
		}
	}
	if fallback != "" {
		return fallback
	}
	return msgGeneric
}

// CorrelationID returns a time-based id for errors raised locally
func CorrelationID(prefix string) string {
	if prefix == "" {
		prefix = "cid"
	}
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// E creates a domain-coded error with a generated correlation_id.
func E(code, message string) *Error {
	return New(code, message).WithCorrelationID(CorrelationID(""))
}

// Validation creates an INVALID_ARGUMENT error
func Validation(message string) *Error {
	return New(InvalidArgument, message)
}

// AuthRequired creates an UNAUTHENTICATED error for a locally rejected operation
func AuthRequired() *Error {
	return New(Unauthenticated, msgUnauthenticated)
}
