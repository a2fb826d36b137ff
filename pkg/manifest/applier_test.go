package manifest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/zap"
)

// headerFilter returns a filter factory entry that tags the response and continues
func headerFilter(name string) func() common.Handler {
	return func() common.Handler {
		return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
			resp.Header().Add("X-Filters", name)
			return router.Next(ctx, req, resp)
		})
	}
}

func testFactory() FilterFactory {
	return FilterFactory{
		"a": headerFilter("a"),
		"b": headerFilter("b"),
	}
}

func serve(d *router.Dispatcher, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	d.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
	return rr
}

// TestApply tests that routes and filters from a manifest are served
func TestApply(t *testing.T) {
	d := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	a := NewApplier(d, testFactory(), zap.NewNop())

	m := &Manifest{
		Routes:  []RouteSpec{{Pattern: "/health", Body: "ok"}},
		Filters: []FilterSpec{{Pattern: "/.*", Use: []string{"a", "b"}}},
	}
	if err := a.Apply(m); err != nil {
		t.Fatalf("Failed to apply manifest: %v", err)
	}
	if a.Current() != m {
		t.Error("Expected the applied manifest to be current")
	}

	rr := serve(d, "/health")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Values("X-Filters"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected filters [a b], got %v", got)
	}
}

// TestApplyReconciles tests that a second manifest replaces the first
func TestApplyReconciles(t *testing.T) {
	d := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	// Routes registered in code are not owned by the applier.
	if err := d.AddRoute("/manual", common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		return nil
	})); err != nil {
		t.Fatalf("Failed to add route: %v", err)
	}
	a := NewApplier(d, testFactory(), nil)

	first := &Manifest{
		Routes: []RouteSpec{
			{Pattern: "/keep", Body: "v1"},
			{Pattern: "/drop", Body: "gone soon"},
		},
		Filters: []FilterSpec{
			{Pattern: "/keep", Use: []string{"a"}},
			{Pattern: "/drop", Use: []string{"b"}},
		},
	}
	if err := a.Apply(first); err != nil {
		t.Fatalf("Failed to apply first manifest: %v", err)
	}

	second := &Manifest{
		Routes:  []RouteSpec{{Pattern: "/keep", Body: "v2"}},
		Filters: []FilterSpec{{Pattern: "/keep", Use: []string{"b", "a"}}},
	}
	if err := a.Apply(second); err != nil {
		t.Fatalf("Failed to apply second manifest: %v", err)
	}

	rr := serve(d, "/keep")
	if rr.Body.String() != "v2" {
		t.Errorf("Expected v2, got %q", rr.Body.String())
	}
	if got := rr.Header().Values("X-Filters"); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("Expected filters [b a], got %v", got)
	}
	if rr := serve(d, "/drop"); rr.Code != http.StatusNotFound {
		t.Errorf("Expected the dropped route to be removed, got %d", rr.Code)
	}
	if rr := serve(d, "/manual"); rr.Code != http.StatusOK {
		t.Errorf("Expected the manual route to survive, got %d", rr.Code)
	}

	groups := 0
	for _, f := range d.Filters() {
		if f.Pattern.String() == "/drop" {
			groups++
		}
	}
	if groups != 0 {
		t.Errorf("Expected the /drop filters to be removed, found %d", groups)
	}
}

// TestApplyReorderMatchesFreshStart tests that a reload which reorders
// patterns dispatches like the same manifest applied to a new dispatcher
func TestApplyReorderMatchesFreshStart(t *testing.T) {
	first := &Manifest{
		Routes: []RouteSpec{
			{Pattern: "/x", Body: "literal"},
			{Pattern: "/.*", Body: "catch-all"},
		},
		Filters: []FilterSpec{
			{Pattern: "/x", Use: []string{"a"}},
			{Pattern: "/.*", Use: []string{"b"}},
		},
	}
	second := &Manifest{
		Routes: []RouteSpec{
			{Pattern: "/.*", Body: "catch-all"},
			{Pattern: "/new", Body: "new"},
			{Pattern: "/x", Body: "literal"},
		},
		Filters: []FilterSpec{
			{Pattern: "/.*", Use: []string{"b"}},
			{Pattern: "/x", Use: []string{"a"}},
		},
	}

	reloaded := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	a := NewApplier(reloaded, testFactory(), zap.NewNop())
	if err := a.Apply(first); err != nil {
		t.Fatalf("Failed to apply first manifest: %v", err)
	}
	if err := a.Apply(second); err != nil {
		t.Fatalf("Failed to apply second manifest: %v", err)
	}

	fresh := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	if err := NewApplier(fresh, testFactory(), zap.NewNop()).Apply(second); err != nil {
		t.Fatalf("Failed to apply manifest: %v", err)
	}

	for _, d := range []*router.Dispatcher{reloaded, fresh} {
		rr := serve(d, "/x")
		if got := rr.Header().Values("X-Filters"); len(got) != 2 || got[0] != "b" || got[1] != "a" {
			t.Errorf("Expected filters [b a], got %v", got)
		}
		if rr.Body.String() != "catch-all" {
			t.Errorf("Expected the first route in manifest order to win, got %q", rr.Body.String())
		}
		if len(d.Routes()) != 3 || d.Routes()[1].Pattern.String() != "/new" {
			t.Errorf("Expected /new in second position, got %d routes", len(d.Routes()))
		}
	}
}

// TestApplyUnknownFilter tests that nothing changes when a filter name is unknown
func TestApplyUnknownFilter(t *testing.T) {
	d := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	a := NewApplier(d, testFactory(), zap.NewNop())

	err := a.Apply(&Manifest{
		Routes:  []RouteSpec{{Pattern: "/x", Body: "x"}},
		Filters: []FilterSpec{{Pattern: "/.*", Use: []string{"a", "nope"}}},
	})
	if !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("Expected ErrUnknownFilter, got %v", err)
	}
	if !strings.Contains(err.Error(), "known: a, b") {
		t.Errorf("Expected the known filter names in %q", err.Error())
	}
	if len(d.Routes()) != 0 || len(d.Filters()) != 0 {
		t.Error("Expected the dispatcher to be unchanged")
	}
	if a.Current() != nil {
		t.Error("Expected no current manifest")
	}
}

// TestApplyInvalid tests that invalid manifests are rejected before any change
func TestApplyInvalid(t *testing.T) {
	d := router.NewDispatcher(router.DispatcherConfig{Logger: zap.NewNop()})
	a := NewApplier(d, testFactory(), zap.NewNop())

	err := a.Apply(&Manifest{Routes: []RouteSpec{{Pattern: "/ok", Body: "ok"}, {Pattern: "("}}})
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("Expected ErrInvalidManifest, got %v", err)
	}
	if len(d.Routes()) != 0 {
		t.Error("Expected no routes to be registered")
	}
}

// TestFilterFactoryNames tests the sorted name list
func TestFilterFactoryNames(t *testing.T) {
	names := FilterFactory{"logging": nil, "cors": nil, "trace": nil}.Names()
	if len(names) != 3 || names[0] != "cors" || names[1] != "logging" || names[2] != "trace" {
		t.Errorf("Expected sorted names, got %v", names)
	}
}
