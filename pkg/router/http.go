package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// ServeHTTP implements the http.Handler interface. It wraps the request,
// dispatches it and turns the result into a response: handler errors become
// error responses, and requests that reached no terminal handler and wrote
// nothing are answered with 404.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.handler.ServeHTTP(w, r)
}

func (d *Dispatcher) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if d.config.CleanPath {
		if cleaned := httprouter.CleanPath(r.URL.Path); cleaned != r.URL.Path {
			r2 := new(http.Request)
			*r2 = *r
			u := *r.URL
			u.Path = cleaned
			u.RawPath = ""
			r2.URL = &u
			r = r2
		}
	}

	hr := common.NewHTTPRequest(r)
	var req common.Request = hr
	if d.config.ContextPath != "" {
		if m := common.Mount(hr, d.config.ContextPath); m != nil {
			req = m
		}
	}

	// Get a metricsResponseWriter from the pool
	mrw := d.writerPool.Get().(*metricsResponseWriter)
	mrw.ResponseWriter = w
	mrw.statusCode = http.StatusOK
	mrw.bytesWritten = 0
	mrw.wroteHeader = false
	defer func() {
		// Reset fields that might hold references to prevent memory leaks
		mrw.ResponseWriter = nil
		d.writerPool.Put(mrw)
	}()

	start := time.Now()
	ctx, sc := d.holder.Enter(r.Context())
	err := d.safeDispatch(ctx, req, mrw)

	switch {
	case err != nil:
		d.handleError(mrw, req, err)
	case !sc.Routed() && !mrw.wroteHeader:
		http.NotFound(mrw, r)
	}

	d.logRequest(req, mrw, time.Since(start))
}

// safeDispatch runs OnMessage and converts a panic into a *PanicError.
func (d *Dispatcher) safeDispatch(ctx context.Context, req common.Request, w http.ResponseWriter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			fields := append(d.traceFields(req),
				zap.Any("panic", rec),
				zap.String("method", req.Method()),
				zap.String("path", req.RequestURI()),
			)
			d.logger.Error("Panic recovered", fields...)
			err = &PanicError{Value: rec}
		}
	}()
	return d.OnMessage(ctx, req, w)
}

// handleError logs err and writes the matching error response.
func (d *Dispatcher) handleError(w *metricsResponseWriter, req common.Request, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal Server Error"

	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		statusCode = httpErr.StatusCode
		message = httpErr.Message
	case errors.Is(err, ErrShuttingDown):
		statusCode = http.StatusServiceUnavailable
		message = "Service Unavailable"
	}

	fields := append(d.traceFields(req),
		zap.Error(err),
		zap.String("method", req.Method()),
		zap.String("path", req.RequestURI()),
		zap.Int("status", statusCode),
	)
	if statusCode >= 500 {
		d.logger.Error("Handler error", fields...)
	} else {
		d.logger.Warn("Handler error", fields...)
	}

	if w.wroteHeader {
		// Too late to change the status; the handler already answered.
		return
	}
	http.Error(w, message, statusCode)
}

// logRequest logs a served request. Normal requests are logged at Debug level
// to avoid log spam.
func (d *Dispatcher) logRequest(req common.Request, w *metricsResponseWriter, duration time.Duration) {
	fields := append(d.traceFields(req),
		zap.String("method", req.Method()),
		zap.String("path", req.RequestURI()),
		zap.Int("status", w.statusCode),
		zap.Duration("duration", duration),
		zap.Int64("bytes", w.bytesWritten),
	)

	switch {
	case w.statusCode >= 500:
		d.logger.Error("Server error", fields...)
	case w.statusCode >= 400:
		d.logger.Warn("Client error", fields...)
	case duration > 1*time.Second:
		d.logger.Warn("Slow request", fields...)
	default:
		d.logger.Debug("Request", fields...)
	}
}

// traceFields returns the trace ID field if enabled and present.
func (d *Dispatcher) traceFields(req common.Request) []zap.Field {
	if !d.config.EnableTraceID {
		return nil
	}
	if traceID, ok := req.Attribute(common.TraceIDAttribute).(string); ok && traceID != "" {
		return []zap.Field{zap.String("trace_id", traceID)}
	}
	return nil
}

// metricsResponseWriter is a wrapper around http.ResponseWriter that captures
// the status code and the number of bytes written.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.WriteHeader.
func (rw *metricsResponseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = statusCode
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write captures the number of bytes written and calls the underlying ResponseWriter.Write.
func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher.
func (rw *metricsResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
