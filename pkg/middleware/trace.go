// Package middleware provides built-in filters for the SDispatch dispatcher.
//
// Every filter is a common.Handler meant to be registered with
// Dispatcher.AddFilter. A filter that lets the request through continues the
// chain with router.Next; one that answers the request itself simply returns.
package middleware

import (
	"context"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/google/uuid"
)

// TraceIDHeader is the response header carrying the trace ID.
const TraceIDHeader = "X-Trace-ID"

// TraceFilter creates a filter that assigns a unique trace ID to each request.
// The ID is stored in the request attribute common.TraceIDAttribute and echoed
// in the X-Trace-ID response header. A request that already carries a trace ID,
// for example because the filter matched it twice, keeps it.
func TraceFilter() common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		traceID := GetTraceID(req)
		if traceID == "" {
			// Generate a unique trace ID
			traceID = uuid.New().String()
			req.SetAttribute(common.TraceIDAttribute, traceID)
		}
		resp.Header().Set(TraceIDHeader, traceID)

		return router.Next(ctx, req, resp)
	})
}

// GetTraceID extracts the trace ID from the request.
// Returns an empty string if no trace ID is found.
func GetTraceID(req common.Request) string {
	if traceID, ok := req.Attribute(common.TraceIDAttribute).(string); ok {
		return traceID
	}
	return ""
}
