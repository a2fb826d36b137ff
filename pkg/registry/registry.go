// Package registry holds the dispatcher's pattern tables: an ordered route
// table mapping a pattern to one terminal handler, and an ordered filter
// table mapping a pattern to a list of filter handlers.
//
// Both tables are copy-on-write. Writers serialize on a per-table mutex and
// publish a fresh immutable snapshot; readers load the current snapshot
// without locking and may iterate it for as long as they like.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
)

// ErrNilHandler is returned when a nil handler is registered.
var ErrNilHandler = errors.New("sdispatch(registry): nil handler")

// Route is one entry of the route table.
type Route struct {
	Pattern *pattern.Pattern
	Handler common.Handler
}

// Filter is one filter registration in a flattened filter snapshot.
type Filter struct {
	ID      common.FilterID
	Pattern *pattern.Pattern
	Handler common.Handler
}

// FilterGroup is the ordered list of filters registered under one pattern.
type FilterGroup struct {
	Pattern *pattern.Pattern
	Filters []Filter
}

// Compiler turns pattern strings into compiled patterns.
type Compiler interface {
	Compile(raw string) (*pattern.Pattern, error)
}

type compilerFunc func(string) (*pattern.Pattern, error)

func (f compilerFunc) Compile(raw string) (*pattern.Pattern, error) { return f(raw) }

// lastFilterID is shared by all tables so that filter IDs are process-unique.
var lastFilterID atomic.Uint64

func nextFilterID() common.FilterID {
	return common.FilterID(lastFilterID.Add(1))
}

// Table holds the route and filter tables.
type Table struct {
	compiler Compiler

	routesMu sync.Mutex
	routes   atomic.Pointer[[]Route]

	filtersMu sync.Mutex
	filters   atomic.Pointer[filterSnapshot]
}

// filterSnapshot is the grouped filter table and its flattened view,
// published together.
type filterSnapshot struct {
	groups []FilterGroup
	flat   []Filter
}

// New creates an empty table. A nil compiler compiles every pattern afresh.
func New(compiler Compiler) *Table {
	if compiler == nil {
		compiler = compilerFunc(pattern.Compile)
	}
	t := &Table{compiler: compiler}
	t.routes.Store(&[]Route{})
	t.filters.Store(&filterSnapshot{})
	return t
}

// AddRoute registers h for raw. An existing route with the same pattern is
// replaced in place and keeps its position in the table.
func (t *Table) AddRoute(raw string, h common.Handler) error {
	if h == nil {
		return fmt.Errorf("%w for route %q", ErrNilHandler, raw)
	}
	p, err := t.compiler.Compile(raw)
	if err != nil {
		return err
	}

	t.routesMu.Lock()
	defer t.routesMu.Unlock()

	current := *t.routes.Load()
	next := make([]Route, len(current), len(current)+1)
	copy(next, current)

	entry := Route{Pattern: p, Handler: h}
	for i := range next {
		if next[i].Pattern.String() == raw {
			next[i] = entry
			t.routes.Store(&next)
			return nil
		}
	}
	next = append(next, entry)
	t.routes.Store(&next)
	return nil
}

// RemoveRoute removes the route registered for raw and returns its handler.
// The boolean is false when no such route exists.
func (t *Table) RemoveRoute(raw string) (common.Handler, bool) {
	t.routesMu.Lock()
	defer t.routesMu.Unlock()

	current := *t.routes.Load()
	for i := range current {
		if current[i].Pattern.String() != raw {
			continue
		}
		next := make([]Route, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		t.routes.Store(&next)
		return current[i].Handler, true
	}
	return nil, false
}

// Routes returns the current route snapshot in registration order.
// The returned slice must not be modified.
func (t *Table) Routes() []Route {
	return *t.routes.Load()
}

// AddFilter appends h to the filter list of raw, creating the list if
// needed, and returns the ID of the new registration.
func (t *Table) AddFilter(raw string, h common.Handler) (common.FilterID, error) {
	if h == nil {
		return 0, fmt.Errorf("%w for filter %q", ErrNilHandler, raw)
	}
	p, err := t.compiler.Compile(raw)
	if err != nil {
		return 0, err
	}

	t.filtersMu.Lock()
	defer t.filtersMu.Unlock()

	f := Filter{ID: nextFilterID(), Pattern: p, Handler: h}
	current := t.filters.Load().groups
	next := make([]FilterGroup, len(current), len(current)+1)
	copy(next, current)

	for i := range next {
		if next[i].Pattern.String() == raw {
			filters := make([]Filter, len(next[i].Filters), len(next[i].Filters)+1)
			copy(filters, next[i].Filters)
			next[i].Filters = append(filters, f)
			t.publishFiltersLocked(next)
			return f.ID, nil
		}
	}
	next = append(next, FilterGroup{Pattern: p, Filters: []Filter{f}})
	t.publishFiltersLocked(next)
	return f.ID, nil
}

// SetFilters replaces the whole filter list of raw in one step. The group
// keeps its position when it already exists. An empty list removes the
// pattern. The IDs of the new registrations are returned in order.
func (t *Table) SetFilters(raw string, handlers ...common.Handler) ([]common.FilterID, error) {
	if len(handlers) == 0 {
		t.RemoveFilter(raw)
		return nil, nil
	}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w for filter %q", ErrNilHandler, raw)
		}
	}
	p, err := t.compiler.Compile(raw)
	if err != nil {
		return nil, err
	}

	t.filtersMu.Lock()
	defer t.filtersMu.Unlock()

	filters := make([]Filter, len(handlers))
	ids := make([]common.FilterID, len(handlers))
	for i, h := range handlers {
		filters[i] = Filter{ID: nextFilterID(), Pattern: p, Handler: h}
		ids[i] = filters[i].ID
	}

	current := t.filters.Load().groups
	next := make([]FilterGroup, len(current), len(current)+1)
	copy(next, current)
	replaced := false
	for i := range next {
		if next[i].Pattern.String() == raw {
			next[i] = FilterGroup{Pattern: p, Filters: filters}
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, FilterGroup{Pattern: p, Filters: filters})
	}
	t.publishFiltersLocked(next)
	return ids, nil
}

// RemoveFilter removes every filter registered under raw and returns their
// handlers in registration order. The boolean is false when raw has no filters.
func (t *Table) RemoveFilter(raw string) ([]common.Handler, bool) {
	t.filtersMu.Lock()
	defer t.filtersMu.Unlock()

	current := t.filters.Load().groups
	for i := range current {
		if current[i].Pattern.String() != raw {
			continue
		}
		next := make([]FilterGroup, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		t.publishFiltersLocked(next)

		handlers := make([]common.Handler, len(current[i].Filters))
		for j, f := range current[i].Filters {
			handlers[j] = f.Handler
		}
		return handlers, true
	}
	return nil, false
}

// RouteEntry is one route of an ordered ReplaceRoutes set.
type RouteEntry struct {
	Pattern string
	Handler common.Handler
}

// FilterEntry is one filter list of an ordered ReplaceFilters set.
type FilterEntry struct {
	Pattern  string
	Handlers []common.Handler
}

// ReplaceRoutes swaps a set of routes in one step. Routes whose pattern is
// listed in owned or named by routes are removed; the remaining routes keep
// their order and routes follow them in the given order. The result matches
// registering routes one by one after the remaining routes. Nothing changes
// when a pattern fails to compile or a handler is nil.
func (t *Table) ReplaceRoutes(owned []string, routes []RouteEntry) error {
	entries := make([]Route, 0, len(routes))
	drop := make(map[string]bool, len(owned)+len(routes))
	for _, raw := range owned {
		drop[raw] = true
	}
	for _, r := range routes {
		if r.Handler == nil {
			return fmt.Errorf("%w for route %q", ErrNilHandler, r.Pattern)
		}
		p, err := t.compiler.Compile(r.Pattern)
		if err != nil {
			return err
		}
		// A repeated pattern replaces the earlier entry in place.
		if i := indexRoute(entries, r.Pattern); i >= 0 {
			entries[i] = Route{Pattern: p, Handler: r.Handler}
			continue
		}
		drop[r.Pattern] = true
		entries = append(entries, Route{Pattern: p, Handler: r.Handler})
	}

	t.routesMu.Lock()
	defer t.routesMu.Unlock()

	current := *t.routes.Load()
	next := make([]Route, 0, len(current)+len(entries))
	for _, r := range current {
		if !drop[r.Pattern.String()] {
			next = append(next, r)
		}
	}
	next = append(next, entries...)
	t.routes.Store(&next)
	return nil
}

func indexRoute(routes []Route, raw string) int {
	for i := range routes {
		if routes[i].Pattern.String() == raw {
			return i
		}
	}
	return -1
}

// ReplaceFilters swaps a set of filter lists in one step, the way
// ReplaceRoutes swaps routes. Groups whose pattern is listed in owned or
// named by groups are removed; the remaining groups keep their order and the
// non-empty groups follow in the given order. Handlers of a repeated pattern
// join the earlier group. The IDs of the new registrations are returned in
// table order.
func (t *Table) ReplaceFilters(owned []string, groups []FilterEntry) ([]common.FilterID, error) {
	drop := make(map[string]bool, len(owned)+len(groups))
	for _, raw := range owned {
		drop[raw] = true
	}
	compiled := make([]*pattern.Pattern, len(groups))
	for i, g := range groups {
		for _, h := range g.Handlers {
			if h == nil {
				return nil, fmt.Errorf("%w for filter %q", ErrNilHandler, g.Pattern)
			}
		}
		p, err := t.compiler.Compile(g.Pattern)
		if err != nil {
			return nil, err
		}
		compiled[i] = p
	}

	t.filtersMu.Lock()
	defer t.filtersMu.Unlock()

	var added []FilterGroup
	for i, g := range groups {
		if len(g.Handlers) == 0 {
			drop[g.Pattern] = true
			continue
		}
		filters := make([]Filter, len(g.Handlers))
		for j, h := range g.Handlers {
			filters[j] = Filter{ID: nextFilterID(), Pattern: compiled[i], Handler: h}
		}
		merged := false
		for k := range added {
			if added[k].Pattern.String() == g.Pattern {
				added[k].Filters = append(added[k].Filters, filters...)
				merged = true
				break
			}
		}
		if !merged {
			added = append(added, FilterGroup{Pattern: compiled[i], Filters: filters})
		}
		drop[g.Pattern] = true
	}

	current := t.filters.Load().groups
	next := make([]FilterGroup, 0, len(current)+len(added))
	for _, g := range current {
		if !drop[g.Pattern.String()] {
			next = append(next, g)
		}
	}
	next = append(next, added...)
	t.publishFiltersLocked(next)

	var ids []common.FilterID
	for _, g := range added {
		for _, f := range g.Filters {
			ids = append(ids, f.ID)
		}
	}
	return ids, nil
}

// Filters returns the current flattened filter snapshot: groups in
// registration order, filters within a group in list order.
// The returned slice must not be modified.
func (t *Table) Filters() []Filter {
	return t.filters.Load().flat
}

// FilterGroups returns the current filter snapshot grouped by pattern.
// The returned slice must not be modified.
func (t *Table) FilterGroups() []FilterGroup {
	return t.filters.Load().groups
}

// Len returns the number of routes and of filter registrations.
func (t *Table) Len() (routes, filters int) {
	return len(t.Routes()), len(t.Filters())
}

// publishFiltersLocked stores groups and their flattened view.
// t.filtersMu must be held.
func (t *Table) publishFiltersLocked(groups []FilterGroup) {
	n := 0
	for _, g := range groups {
		n += len(g.Filters)
	}
	flat := make([]Filter, 0, n)
	for _, g := range groups {
		flat = append(flat, g.Filters...)
	}
	t.filters.Store(&filterSnapshot{groups: groups, flat: flat})
}
