// Package errors provides the gateway's error taxonomy: structured errors with
// a type, an HTTP status mapping and an optional underlying cause.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an error. It selects the HTTP status code and
// the log level used when the error reaches the request boundary.
type ErrorType string

const (
	// TypeNotFound indicates an unknown session or layer (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeAlreadyExists indicates a duplicate session create (HTTP 409)
	TypeAlreadyExists ErrorType = "already_exists"
	// TypeBadRequest indicates a missing or invalid parameter (HTTP 400)
	TypeBadRequest ErrorType = "bad_request"
	// TypeRenderFailed indicates the render collaborator failed (HTTP 502)
	TypeRenderFailed ErrorType = "render_failed"
	// TypeDispatchTimeout indicates a render exceeded its budget (HTTP 504)
	TypeDispatchTimeout ErrorType = "dispatch_timeout"
	// TypeUnavailable indicates the dispatcher refused work (HTTP 503)
	TypeUnavailable ErrorType = "unavailable"
	// TypeClientClosed indicates the client went away before the response
	// was ready (HTTP 499, nginx convention)
	TypeClientClosed ErrorType = "client_closed"
	// TypeInternal indicates a server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// StatusClientClosedRequest is the non-standard status recorded when the
// client disconnects. The client never sees it.
const StatusClientClosedRequest = 499

// Sentinels for errors.Is checks. Every *Error of a type matches the sentinel
// of that type.
var (
	ErrNotFound        = &Error{Type: TypeNotFound, Message: "not found"}
	ErrAlreadyExists   = &Error{Type: TypeAlreadyExists, Message: "already exists"}
	ErrBadRequest      = &Error{Type: TypeBadRequest, Message: "bad request"}
	ErrRenderFailed    = &Error{Type: TypeRenderFailed, Message: "render failed"}
	ErrDispatchTimeout = &Error{Type: TypeDispatchTimeout, Message: "dispatch timed out"}
	ErrQueueFull       = &Error{Type: TypeUnavailable, Message: "dispatch queue is full"}
	ErrClosed          = &Error{Type: TypeUnavailable, Message: "dispatcher is closed"}
	ErrClientClosed    = &Error{Type: TypeClientClosed, Message: "client closed request"}
)

// Error is a structured error with type, message and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same type. The availability
// sentinels are also distinguished by message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	if e.Type == TypeUnavailable && t.Message != "" && e.Message != t.Message {
		return false
	}
	return true
}

// HTTPStatus returns the HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeNotFound:
		return http.StatusNotFound
	case TypeAlreadyExists:
		return http.StatusConflict
	case TypeBadRequest:
		return http.StatusBadRequest
	case TypeRenderFailed:
		return http.StatusBadGateway
	case TypeDispatchTimeout:
		return http.StatusGatewayTimeout
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeClientClosed:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// WithContext adds a context field to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

// NotFound creates a new not-found error.
func NotFound(format string, args ...any) *Error {
	return newError(TypeNotFound, fmt.Sprintf(format, args...), nil)
}

// AlreadyExists creates a new conflict error.
func AlreadyExists(format string, args ...any) *Error {
	return newError(TypeAlreadyExists, fmt.Sprintf(format, args...), nil)
}

// BadRequest creates a new validation error.
func BadRequest(format string, args ...any) *Error {
	return newError(TypeBadRequest, fmt.Sprintf(format, args...), nil)
}

// Internal creates a new internal error wrapping cause.
func Internal(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// DispatchTimeout creates a timeout error wrapping the context error.
func DispatchTimeout(cause error) *Error {
	return newError(TypeDispatchTimeout, "render did not complete in time", cause)
}

// RenderFailedError is returned when the render collaborator raised an error,
// panicked or produced an unusable result.
type RenderFailedError struct {
	Cause error
}

// RenderFailed wraps cause as a render failure.
func RenderFailed(cause error) *RenderFailedError {
	return &RenderFailedError{Cause: cause}
}

func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("%s: %v", TypeRenderFailed, e.Cause)
}

func (e *RenderFailedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrRenderFailed) hold.
func (e *RenderFailedError) Is(target error) bool {
	return target == ErrRenderFailed
}

// ErrorResponse is the JSON body sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	ctx := e.Context
	if len(ctx) == 0 {
		ctx = nil
	}
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: ctx,
	}
}

// AsStructuredError converts any error into a structured Error. Render
// failures keep their cause for logging but expose only a generic message.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	// Checked first so a structured cause inside a render failure does not
	// leak its own status.
	var renderErr *RenderFailedError
	if errors.As(err, &renderErr) {
		return newError(TypeRenderFailed, "tile render failed", renderErr.Cause)
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	if errors.Is(err, context.Canceled) {
		return newError(TypeClientClosed, "client closed request", err)
	}

	return Internal("internal server error", err)
}
