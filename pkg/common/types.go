// Package common provides shared types and utilities used across the SDispatch framework.
package common

import (
	"context"
	"io"
	"net/http"
)

// Attribute names set by the framework and its built-in filters.
const (
	// ConversationAttribute holds the component-framework conversation handle.
	// When present and non-nil, the dispatcher asks its ConversationChecker to
	// validate the handle before a terminal handler runs.
	ConversationAttribute = "sdispatch.conversation"

	// TraceIDAttribute holds the trace ID assigned by the trace filter.
	TraceIDAttribute = "sdispatch.trace_id"

	// ClientIPAttribute holds the client IP resolved by the client IP filter.
	ClientIPAttribute = "sdispatch.client_ip"
)

// Request is the transport-neutral view of an incoming request.
// Attributes form a per-request bag shared by filters and handlers.
type Request interface {
	Method() string
	// RequestURI returns the request path, without query string.
	RequestURI() string
	Header() http.Header
	Body() io.ReadCloser
	RemoteAddr() string
	Attribute(name string) any
	SetAttribute(name string, value any)
}

// ServletRequest is a Request mounted below a context path. The dispatcher
// computes the effective path from ContextPath and ServletPath instead of
// RequestURI when a request implements it.
type ServletRequest interface {
	Request
	ContextPath() string
	ServletPath() string
}

// Response is the sink handlers write to.
type Response = http.ResponseWriter

// Handler services a dispatched request. Filters and terminal handlers share
// this interface.
type Handler interface {
	Handle(ctx context.Context, req Request, resp Response) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request, resp Response) error

// Handle calls f(ctx, req, resp).
func (f HandlerFunc) Handle(ctx context.Context, req Request, resp Response) error {
	return f(ctx, req, resp)
}

// FilterID identifies one filter registration. IDs are assigned at
// registration time, are unique per process and are never reused.
// The zero value means "no filter".
type FilterID uint64

// Middleware is a function that wraps an http.Handler.
// It is used around the dispatcher's net/http adapter, outside the
// pattern-matched filter chain.
type Middleware func(http.Handler) http.Handler
