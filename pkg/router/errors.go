package router

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCursor is returned by Next when it is called outside a filter invocation.
	ErrNoCursor = errors.New("sdispatch(router): no filter cursor in context")
	// ErrShuttingDown is returned for requests arriving after Shutdown started.
	ErrShuttingDown = errors.New("sdispatch(router): dispatcher is shutting down")
)

// HTTPError represents an HTTP error with a status code and message.
// When a handler returns it, the net/http adapter answers with its status
// code and message instead of a generic 500.
type HTTPError struct {
	StatusCode int    // HTTP status code (e.g., 400, 404, 500)
	Message    string // Error message to be sent in the response body
	Err        error  // Underlying cause, if any (not sent to clients)
}

// Error implements the error interface.
// It returns a string representation of the HTTP error in the format "status: message".
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a new HTTPError with the specified status code and message.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
	}
}

// WrapHTTPError creates an HTTPError that carries err as its cause.
func WrapHTTPError(statusCode int, message string, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// PanicError is the error the net/http adapter reports for a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
