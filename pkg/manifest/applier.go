package manifest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/registry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Target is the registry a manifest is applied to. *router.Dispatcher
// satisfies it.
type Target interface {
	ReplaceRoutes(owned []string, routes []registry.RouteEntry) error
	ReplaceFilters(owned []string, groups []registry.FilterEntry) ([]common.FilterID, error)
}

// FilterFactory maps the filter names a manifest may use to constructors.
// Each application builds fresh filter instances.
type FilterFactory map[string]func() common.Handler

// Names returns the registered filter names in sorted order.
func (f FilterFactory) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Applier reconciles a Target with successive manifests. The patterns named by
// the last applied manifest are owned by the Applier: applying the next
// manifest removes routes and filter lists the next one no longer declares.
type Applier struct {
	target  Target
	filters FilterFactory
	logger  *zap.Logger

	mu      sync.Mutex
	current *Manifest
}

// NewApplier creates an Applier for target.
func NewApplier(target Target, filters FilterFactory, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		target:  target,
		filters: filters,
		logger:  logger,
	}
}

// Current returns the last successfully applied manifest, or nil.
func (a *Applier) Current() *Manifest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Apply validates m, resolves its filters and reconciles the target. Nothing
// is changed when validation or filter resolution fails. The patterns of the
// previous manifest are swapped for those of m in one step per table, and m's
// entries are placed in manifest order after entries the Applier does not
// own, so a reload dispatches exactly like a fresh start with m.
func (a *Applier) Apply(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	resolved, err := a.resolve(m)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var ownedRoutes, ownedFilters []string
	if prev := a.current; prev != nil {
		for _, r := range prev.Routes {
			ownedRoutes = append(ownedRoutes, r.Pattern)
		}
		for _, f := range prev.Filters {
			ownedFilters = append(ownedFilters, f.Pattern)
		}
	}

	routes := make([]registry.RouteEntry, len(m.Routes))
	for i, r := range m.Routes {
		routes[i] = registry.RouteEntry{Pattern: r.Pattern, Handler: r.Handler()}
	}
	groups := make([]registry.FilterEntry, len(m.Filters))
	for i, f := range m.Filters {
		groups[i] = registry.FilterEntry{Pattern: f.Pattern, Handlers: resolved[i]}
	}

	if err := a.target.ReplaceRoutes(ownedRoutes, routes); err != nil {
		return err
	}
	if _, err := a.target.ReplaceFilters(ownedFilters, groups); err != nil {
		return err
	}

	a.current = m
	a.logger.Info("Manifest applied",
		zap.Int("routes", len(m.Routes)),
		zap.Int("filters", len(m.Filters)),
	)
	return nil
}

// resolve builds the filter handlers of every manifest filter entry.
func (a *Applier) resolve(m *Manifest) ([][]common.Handler, error) {
	var errs error
	resolved := make([][]common.Handler, len(m.Filters))
	for i, f := range m.Filters {
		handlers := make([]common.Handler, 0, len(f.Use))
		for _, name := range f.Use {
			build, ok := a.filters[name]
			if !ok {
				errs = multierr.Append(errs, fmt.Errorf("filters[%d]: %w %q (known: %s)",
					i, ErrUnknownFilter, name, strings.Join(a.filters.Names(), ", ")))
				continue
			}
			handlers = append(handlers, build())
		}
		resolved[i] = handlers
	}
	return resolved, errs
}
