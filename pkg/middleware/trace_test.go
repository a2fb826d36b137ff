package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/google/uuid"
)

// TestTraceFilter tests that a trace ID is generated and exposed
func TestTraceFilter(t *testing.T) {
	var traceID string
	d := newDispatcher(t, TraceFilter(), common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		traceID = GetTraceID(req)
		return nil
	}))

	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	if traceID == "" {
		t.Fatal("Expected trace ID to be set")
	}
	if _, err := uuid.Parse(traceID); err != nil {
		t.Errorf("Expected trace ID to be a UUID, got %q", traceID)
	}
	if rr.Header().Get(TraceIDHeader) != traceID {
		t.Errorf("Expected header %q, got %q", traceID, rr.Header().Get(TraceIDHeader))
	}
}

// TestTraceFilterUniqueIDs tests that each request gets its own trace ID
func TestTraceFilterUniqueIDs(t *testing.T) {
	d := newDispatcher(t, TraceFilter(), okRoute("ok"))

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		d.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
		id := rr.Header().Get(TraceIDHeader)
		if seen[id] {
			t.Fatalf("Duplicate trace ID %q", id)
		}
		seen[id] = true
	}
}

// TestTraceFilterKeepsExistingID tests that a trace filter matched twice does
// not replace the first ID
func TestTraceFilterKeepsExistingID(t *testing.T) {
	var traceID string
	d := newDispatcher(t, TraceFilter(), common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		traceID = GetTraceID(req)
		return nil
	}))
	if _, err := d.AddFilter("/te.*", TraceFilter()); err != nil {
		t.Fatalf("Failed to add filter: %v", err)
	}

	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))
	if traceID == "" || rr.Header().Get(TraceIDHeader) != traceID {
		t.Errorf("Expected a single stable trace ID, got attribute %q header %q", traceID, rr.Header().Get(TraceIDHeader))
	}
}

// TestGetTraceIDMissing tests that GetTraceID returns empty without a trace ID
func TestGetTraceIDMissing(t *testing.T) {
	req := common.NewHTTPRequest(httptest.NewRequest("GET", "/test", nil))
	if id := GetTraceID(req); id != "" {
		t.Errorf("Expected empty trace ID, got %q", id)
	}
}
