package middleware

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/zap"
)

// RecoveryFilter creates a filter that recovers from panics raised further
// down the chain and reports them as a 500 HTTPError.
func RecoveryFilter(logger *zap.Logger) common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", req.Method()),
					zap.String("path", req.RequestURI()),
				)
				err = router.WrapHTTPError(http.StatusInternalServerError, "Internal Server Error", &router.PanicError{Value: rec})
			}
		}()

		return router.Next(ctx, req, resp)
	})
}

// LoggingFilter creates a filter that logs every request it sees once the
// rest of the chain has returned.
func LoggingFilter(logger *zap.Logger) common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		start := time.Now()

		// Create a response writer that captures the status code
		rw := &responseWriter{
			ResponseWriter: resp,
			statusCode:     http.StatusOK,
		}

		err := router.Next(ctx, req, rw)

		duration := time.Since(start)
		status := rw.statusCode
		if err != nil && !rw.wroteHeader {
			status = http.StatusInternalServerError
			var httpErr *router.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.StatusCode
			}
		}

		fields := []zap.Field{
			zap.String("method", req.Method()),
			zap.String("path", req.RequestURI()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		}
		if traceID := GetTraceID(req); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}

		// Use appropriate log level based on status code and duration
		switch {
		case status >= 500:
			logger.Error("Server error", append(fields, zap.String("remote_addr", req.RemoteAddr()))...)
		case status >= 400:
			logger.Warn("Client error", fields...)
		case duration > 1*time.Second:
			logger.Warn("Slow request", fields...)
		default:
			// Normal requests at Debug level to avoid log spam
			logger.Debug("Request", fields...)
		}

		return err
	})
}

// MaxBodySizeFilter creates a filter that limits the size of the request
// body read by later handlers. It only applies to net/http backed requests.
func MaxBodySizeFilter(maxSize int64) common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		if raw, ok := req.(interface{ Raw() *http.Request }); ok {
			r := raw.Raw()
			if r.Body != nil {
				r.Body = http.MaxBytesReader(resp, r.Body, maxSize)
			}
		}
		return router.Next(ctx, req, resp)
	})
}

// TimeoutFilter creates a filter that gives the rest of the chain a deadline.
// Handlers are expected to honor ctx; when the deadline passes the filter
// reports a 408 HTTPError.
func TimeoutFilter(timeout time.Duration) common.Handler {
	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := router.Next(ctx, req, resp)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && (err == nil || errors.Is(err, context.DeadlineExceeded)) {
			return router.WrapHTTPError(http.StatusRequestTimeout, "Request Timeout", ctx.Err())
		}
		return err
	})
}

// CORSFilter creates a filter that adds CORS headers to the response.
// Preflight requests are answered directly.
func CORSFilter(origins []string, methods []string, headers []string) common.Handler {
	allowOrigin := strings.Join(origins, ", ")
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")

	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		if allowOrigin != "" {
			resp.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		}
		if allowMethods != "" {
			resp.Header().Set("Access-Control-Allow-Methods", allowMethods)
		}
		if allowHeaders != "" {
			resp.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		}

		// Handle preflight requests
		if req.Method() == http.MethodOptions {
			resp.WriteHeader(http.StatusOK)
			return nil
		}

		return router.Next(ctx, req, resp)
	})
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.WriteHeader
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter.Write
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
