// Package router provides the SDispatch dispatcher: regular-expression
// routing with a flat, resumable filter chain and a net/http adapter.
package router

import (
	"context"
	"net/http"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"go.uber.org/zap"
)

// DispatcherConfig defines the configuration for a Dispatcher.
type DispatcherConfig struct {
	Logger           *zap.Logger         // Logger for all dispatcher operations
	Metrics          metrics.Recorder    // Metrics recorder (optional)
	Conversations    ConversationChecker // Conversation collaborator notified before terminal handlers (optional)
	PatternCacheSize int                 // Maximum number of cached compiled patterns (0 uses the default)
	ContextPath      string              // Mount point; requests below it expose context path and servlet path
	CleanPath        bool                // Normalize request paths before dispatch
	EnableTraceID    bool                // Include trace IDs in adapter logs
	Middlewares      []common.Middleware // net/http middlewares wrapped around the adapter
	Routes           []RouteConfig       // Routes registered at construction
	Filters          []FilterConfig      // Filters registered at construction, in order
}

// RouteConfig is a route registered at construction.
type RouteConfig struct {
	Pattern string         // Regular expression matched against the effective path
	Handler common.Handler // Terminal handler
}

// FilterConfig is a filter registered at construction.
type FilterConfig struct {
	Pattern string         // Regular expression matched against the effective path
	Handler common.Handler // Filter handler; continues the chain with Next
}

// ConversationChecker validates and refreshes long-lived conversation state
// attached to a request before its terminal handler runs.
type ConversationChecker interface {
	CheckAndRefresh(ctx context.Context, handle any) error
}

// ConversationCheckerFunc adapts a function to ConversationChecker.
type ConversationCheckerFunc func(ctx context.Context, handle any) error

// CheckAndRefresh calls f(ctx, handle).
func (f ConversationCheckerFunc) CheckAndRefresh(ctx context.Context, handle any) error {
	return f(ctx, handle)
}

// GenericHandler defines a handler function with generic request and response types.
// When wrapped with NewGenericHandler, the request body is decoded into T and the
// returned U is encoded with the handler's Codec.
type GenericHandler[T any, U any] func(ctx context.Context, req common.Request, data T) (U, error)

// Codec defines an interface for marshaling and unmarshaling request and response data.
// The codec package provides JSON and Protocol Buffers implementations.
type Codec[T any, U any] interface {
	// Decode reads the request body and converts it into a value of type T.
	Decode(req common.Request) (T, error)

	// Encode serializes resp, sets the content type and writes it.
	Encode(w http.ResponseWriter, resp U) error
}
