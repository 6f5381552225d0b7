// Package errors provides error types and handling for range-fetch operations.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error represents a failed operation with context about the object it targeted.
// It wraps the underlying SDK or transport error.
type Error struct {
	// Op is the operation that failed (e.g., "fetch", "list", "completeMultipart")
	Op string

	// Backend is the backend kind the operation ran against (if applicable)
	Backend string

	// Container is the bucket or container name (if applicable)
	Container string

	// Key is the object key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	op := e.Op
	if e.Backend != "" {
		op = e.Backend + "." + e.Op
	}
	if e.Container != "" && e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v", op, e.Container, e.Key, e.Err)
	}
	if e.Container != "" {
		return fmt.Sprintf("%s container %s: %v", op, e.Container, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("%s object %s: %v", op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBackend adds backend context to an existing error.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// WithContainer adds bucket/container context to an existing error.
func (e *Error) WithContainer(container string) *Error {
	e.Container = container
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with container and key context.
func NewObjectError(op, container, key string, err error) *Error {
	return &Error{
		Op:        op,
		Container: container,
		Key:       key,
		Err:       err,
	}
}

// ResponseError is an application-level failure: the remote end answered,
// but with an error status. These are never retried.
type ResponseError struct {
	// StatusCode is the HTTP status of the response, zero if the SDK did not expose one
	StatusCode int

	// Code is the provider error code (e.g. "NoSuchKey"), if any
	Code string

	// Message is the provider error message, if any
	Message string

	// Body is the raw response body, if it was captured
	Body []byte

	// Err is the SDK error this was derived from
	Err error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Payload())
}

// Unwrap returns the SDK error this response error was derived from.
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// Is reports not-found responses as ErrObjectNotFound.
func (e *ResponseError) Is(target error) bool {
	return target == ErrObjectNotFound && e.StatusCode == http.StatusNotFound
}

// Payload returns the part of the response the caller should see:
// the raw body when captured, otherwise "Code: Message".
func (e *ResponseError) Payload() string {
	if len(e.Body) > 0 {
		return string(e.Body)
	}
	if e.Code != "" {
		if e.Message != "" {
			return e.Code + ": " + e.Message
		}
		return e.Code
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.StatusCode)
}

// Sentinel errors for common failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrBadPath indicates that an object path has no "container/key" separator
	ErrBadPath = errors.New("bad path")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRange indicates that the requested range is invalid
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidConfig indicates that a backend configuration cannot be used
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("invalid object key")

	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrNotImplemented indicates that the backend does not support the operation
	ErrNotImplemented = errors.New("not implemented")

	// ErrCompleteFailed indicates that the backend rejected a multipart completion
	ErrCompleteFailed = errors.New("multipart completion failed")

	// ErrSessionClosed indicates use of a multipart session after it was completed or aborted
	ErrSessionClosed = errors.New("multipart session closed")

	// ErrListingIncomplete indicates that a listing failed after at least one page was read
	ErrListingIncomplete = errors.New("listing incomplete")
)

// AsResponse extracts the ResponseError from err's chain, if there is one.
func AsResponse(err error) (*ResponseError, bool) {
	var re *ResponseError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsApplication reports whether err carries an error response from the backend.
func IsApplication(err error) bool {
	_, ok := AsResponse(err)
	return ok
}

// Retryable reports whether err is a transport-level failure worth one more attempt.
// Application responses, caller mistakes and cancellation are final.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case IsApplication(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrBadPath),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidObjectKey),
		errors.Is(err, ErrNotImplemented),
		errors.Is(err, ErrSessionClosed):
		return false
	}
	return true
}

// IsObjectNotFound checks if an error indicates that an object was not found.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsListingIncomplete checks if an error stopped a listing after some pages were read.
func IsListingIncomplete(err error) bool {
	return errors.Is(err, ErrListingIncomplete)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
