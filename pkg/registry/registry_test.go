package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
)

// namedHandler is a handler that can be told apart in assertions
type namedHandler struct {
	name string
}

func (h *namedHandler) Handle(ctx context.Context, req common.Request, resp common.Response) error {
	return nil
}

func handlerName(h common.Handler) string {
	if nh, ok := h.(*namedHandler); ok {
		return nh.name
	}
	return ""
}

func routePatterns(routes []Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Pattern.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddRouteKeepsRegistrationOrder(t *testing.T) {
	tbl := New(nil)
	for _, p := range []string{"/c", "/a", "/b"} {
		if err := tbl.AddRoute(p, &namedHandler{name: p}); err != nil {
			t.Fatalf("Failed to add route %q: %v", p, err)
		}
	}

	got := routePatterns(tbl.Routes())
	want := []string{"/c", "/a", "/b"}
	if !equalStrings(got, want) {
		t.Errorf("Expected routes %v, got %v", want, got)
	}
}

func TestAddRouteReplacesInPlace(t *testing.T) {
	tbl := New(nil)
	_ = tbl.AddRoute("/a", &namedHandler{name: "first"})
	_ = tbl.AddRoute("/b", &namedHandler{name: "b"})
	_ = tbl.AddRoute("/a", &namedHandler{name: "second"})

	routes := tbl.Routes()
	if len(routes) != 2 {
		t.Fatalf("Expected 2 routes, got %d", len(routes))
	}
	if routes[0].Pattern.String() != "/a" || handlerName(routes[0].Handler) != "second" {
		t.Errorf("Expected /a to be replaced in place by second, got %s -> %s", routes[0].Pattern, handlerName(routes[0].Handler))
	}
}

func TestRemoveRoute(t *testing.T) {
	tbl := New(nil)
	_ = tbl.AddRoute("/a", &namedHandler{name: "a"})
	_ = tbl.AddRoute("/b", &namedHandler{name: "b"})

	h, ok := tbl.RemoveRoute("/a")
	if !ok || handlerName(h) != "a" {
		t.Errorf("Expected to remove handler a, got %q, %v", handlerName(h), ok)
	}

	h, ok = tbl.RemoveRoute("/missing")
	if ok || h != nil {
		t.Errorf("Expected absence for an unknown pattern, got %v, %v", h, ok)
	}

	if got := routePatterns(tbl.Routes()); !equalStrings(got, []string{"/b"}) {
		t.Errorf("Expected routes [/b], got %v", got)
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	tbl := New(nil)
	_ = tbl.AddRoute("/a", &namedHandler{name: "a"})
	_, _ = tbl.AddFilter("/f", &namedHandler{name: "f1"})

	routes := tbl.Routes()
	filters := tbl.Filters()

	_ = tbl.AddRoute("/b", &namedHandler{name: "b"})
	_ = tbl.AddRoute("/a", &namedHandler{name: "a2"})
	_, _ = tbl.AddFilter("/f", &namedHandler{name: "f2"})
	tbl.RemoveFilter("/f")

	if len(routes) != 1 || handlerName(routes[0].Handler) != "a" {
		t.Errorf("Expected the old route snapshot to be unchanged, got %v", routePatterns(routes))
	}
	if len(filters) != 1 || handlerName(filters[0].Handler) != "f1" {
		t.Errorf("Expected the old filter snapshot to be unchanged, got %d filters", len(filters))
	}
}

func TestInvalidPattern(t *testing.T) {
	tbl := New(nil)
	if err := tbl.AddRoute("/a(", &namedHandler{}); !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Errorf("Expected ErrInvalidPattern from AddRoute, got %v", err)
	}
	if _, err := tbl.AddFilter("[", &namedHandler{}); !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Errorf("Expected ErrInvalidPattern from AddFilter, got %v", err)
	}
	if r, f := tbl.Len(); r != 0 || f != 0 {
		t.Errorf("Expected empty tables, got %d routes and %d filters", r, f)
	}
}

func TestNilHandler(t *testing.T) {
	tbl := New(nil)
	if err := tbl.AddRoute("/a", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler from AddRoute, got %v", err)
	}
	if _, err := tbl.AddFilter("/a", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler from AddFilter, got %v", err)
	}
	if _, err := tbl.SetFilters("/a", &namedHandler{}, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler from SetFilters, got %v", err)
	}
}

func TestFiltersFlattenInOrder(t *testing.T) {
	tbl := New(nil)
	_, _ = tbl.AddFilter("/a.*", &namedHandler{name: "a1"})
	_, _ = tbl.AddFilter("/b.*", &namedHandler{name: "b1"})
	_, _ = tbl.AddFilter("/a.*", &namedHandler{name: "a2"})

	var got []string
	for _, f := range tbl.Filters() {
		got = append(got, handlerName(f.Handler))
	}
	want := []string{"a1", "a2", "b1"}
	if !equalStrings(got, want) {
		t.Errorf("Expected flattened filters %v, got %v", want, got)
	}

	groups := tbl.FilterGroups()
	if len(groups) != 2 || groups[0].Pattern.String() != "/a.*" || len(groups[0].Filters) != 2 {
		t.Errorf("Expected two groups with /a.* first holding two filters, got %+v", groups)
	}
}

func TestFilterIDsAreUnique(t *testing.T) {
	tbl := New(nil)
	shared := &namedHandler{name: "shared"}
	id1, _ := tbl.AddFilter("/x", shared)
	id2, _ := tbl.AddFilter("/x", shared)
	id3, _ := New(nil).AddFilter("/x", shared)

	if id1 == 0 || id1 == id2 || id2 == id3 || id1 == id3 {
		t.Errorf("Expected distinct non-zero IDs, got %d, %d, %d", id1, id2, id3)
	}
}

func TestRemoveFilter(t *testing.T) {
	tbl := New(nil)
	_, _ = tbl.AddFilter("/a", &namedHandler{name: "a1"})
	_, _ = tbl.AddFilter("/a", &namedHandler{name: "a2"})
	_, _ = tbl.AddFilter("/b", &namedHandler{name: "b1"})

	removed, ok := tbl.RemoveFilter("/a")
	if !ok || len(removed) != 2 || handlerName(removed[0]) != "a1" || handlerName(removed[1]) != "a2" {
		t.Errorf("Expected to remove [a1 a2], got %v, %v", removed, ok)
	}

	if _, ok := tbl.RemoveFilter("/a"); ok {
		t.Error("Expected a second removal to report absence")
	}

	if _, f := tbl.Len(); f != 1 {
		t.Errorf("Expected 1 remaining filter, got %d", f)
	}
}

func TestSetFilters(t *testing.T) {
	tbl := New(nil)
	_, _ = tbl.AddFilter("/a", &namedHandler{name: "a1"})
	_, _ = tbl.AddFilter("/b", &namedHandler{name: "b1"})

	ids, err := tbl.SetFilters("/a", &namedHandler{name: "x"}, &namedHandler{name: "y"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 IDs, got %d", len(ids))
	}

	var got []string
	for _, f := range tbl.Filters() {
		got = append(got, handlerName(f.Handler))
	}
	if want := []string{"x", "y", "b1"}; !equalStrings(got, want) {
		t.Errorf("Expected filters %v, got %v", want, got)
	}

	if _, err := tbl.SetFilters("/a"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, f := tbl.Len(); f != 1 {
		t.Errorf("Expected an empty SetFilters to remove the pattern, %d filters left", f)
	}
}

func TestSharedCompilerCache(t *testing.T) {
	misses := 0
	cache := pattern.NewCache(10, func(event string) {
		if event == pattern.EventMiss {
			misses++
		}
	})
	tbl := New(cache)
	_ = tbl.AddRoute("/a", &namedHandler{})
	_, _ = tbl.AddFilter("/a", &namedHandler{})
	_ = tbl.AddRoute("/a", &namedHandler{})

	if misses != 1 {
		t.Errorf("Expected a single compile miss, got %d", misses)
	}
}

func TestReplaceRoutesFollowsGivenOrder(t *testing.T) {
	tbl := New(nil)
	for _, p := range []string{"/manual", "/x", "/y"} {
		_ = tbl.AddRoute(p, &namedHandler{name: p})
	}

	err := tbl.ReplaceRoutes([]string{"/x", "/y"}, []RouteEntry{
		{Pattern: "/z", Handler: &namedHandler{name: "z"}},
		{Pattern: "/y", Handler: &namedHandler{name: "y2"}},
		{Pattern: "/x", Handler: &namedHandler{name: "x2"}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	routes := tbl.Routes()
	if got, want := routePatterns(routes), []string{"/manual", "/z", "/y", "/x"}; !equalStrings(got, want) {
		t.Errorf("Expected routes %v, got %v", want, got)
	}
	if handlerName(routes[2].Handler) != "y2" {
		t.Errorf("Expected /y to be replaced, got %q", handlerName(routes[2].Handler))
	}

	// Owned patterns missing from the new set are removed.
	if err := tbl.ReplaceRoutes([]string{"/z", "/y", "/x"}, []RouteEntry{{Pattern: "/x", Handler: &namedHandler{name: "x3"}}}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got, want := routePatterns(tbl.Routes()), []string{"/manual", "/x"}; !equalStrings(got, want) {
		t.Errorf("Expected routes %v, got %v", want, got)
	}
}

func TestReplaceRoutesInvalidLeavesTableUnchanged(t *testing.T) {
	tbl := New(nil)
	_ = tbl.AddRoute("/a", &namedHandler{name: "a"})

	err := tbl.ReplaceRoutes([]string{"/a"}, []RouteEntry{
		{Pattern: "/b", Handler: &namedHandler{name: "b"}},
		{Pattern: "(", Handler: &namedHandler{name: "bad"}},
	})
	if !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Fatalf("Expected ErrInvalidPattern, got %v", err)
	}
	if got := routePatterns(tbl.Routes()); !equalStrings(got, []string{"/a"}) {
		t.Errorf("Expected the table to be unchanged, got %v", got)
	}

	err = tbl.ReplaceRoutes(nil, []RouteEntry{{Pattern: "/b"}})
	if !errors.Is(err, ErrNilHandler) {
		t.Errorf("Expected ErrNilHandler, got %v", err)
	}
}

func TestReplaceFiltersFollowsGivenOrder(t *testing.T) {
	tbl := New(nil)
	_, _ = tbl.AddFilter("/manual", &namedHandler{name: "m"})
	_, _ = tbl.AddFilter("/x", &namedHandler{name: "a"})
	_, _ = tbl.AddFilter("/.*", &namedHandler{name: "b"})

	ids, err := tbl.ReplaceFilters([]string{"/x", "/.*"}, []FilterEntry{
		{Pattern: "/.*", Handlers: []common.Handler{&namedHandler{name: "b2"}}},
		{Pattern: "/x", Handlers: []common.Handler{&namedHandler{name: "a2"}, &namedHandler{name: "a3"}}},
		{Pattern: "/empty"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var got []string
	var gotIDs []common.FilterID
	for _, f := range tbl.Filters() {
		got = append(got, handlerName(f.Handler))
		if f.Pattern.String() != "/manual" {
			gotIDs = append(gotIDs, f.ID)
		}
	}
	if want := []string{"m", "b2", "a2", "a3"}; !equalStrings(got, want) {
		t.Errorf("Expected filters %v, got %v", want, got)
	}
	if len(ids) != len(gotIDs) {
		t.Fatalf("Expected %d IDs, got %d", len(gotIDs), len(ids))
	}
	for i := range ids {
		if ids[i] != gotIDs[i] {
			t.Errorf("Expected ID %d at %d, got %d", gotIDs[i], i, ids[i])
		}
	}
	if len(tbl.FilterGroups()) != 3 {
		t.Errorf("Expected the empty group to be skipped, got %d groups", len(tbl.FilterGroups()))
	}
}

func TestReplaceFiltersNilHandler(t *testing.T) {
	tbl := New(nil)
	_, _ = tbl.AddFilter("/a", &namedHandler{name: "a"})

	_, err := tbl.ReplaceFilters([]string{"/a"}, []FilterEntry{{Pattern: "/b", Handlers: []common.Handler{nil}}})
	if !errors.Is(err, ErrNilHandler) {
		t.Fatalf("Expected ErrNilHandler, got %v", err)
	}
	if _, f := tbl.Len(); f != 1 {
		t.Errorf("Expected the table to be unchanged, got %d filters", f)
	}
}
