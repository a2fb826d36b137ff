package router

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"github.com/Suhaibinator/SDispatch/pkg/pattern"
	"github.com/Suhaibinator/SDispatch/pkg/registry"
	"github.com/Suhaibinator/SDispatch/pkg/scope"
	"go.uber.org/zap"
)

// Dispatcher decides which filter or terminal handler services a request.
//
// Routes map a pattern to one terminal handler. Filters map a pattern to an
// ordered list of handlers that run before the terminal handler. The filter
// table is a single flat list: a filter passes control along by calling Next,
// which re-enters the dispatcher and resumes the scan right after itself.
//
// Dispatcher implements http.Handler.
type Dispatcher struct {
	config     DispatcherConfig
	table      *registry.Table
	cache      *pattern.Cache
	holder     *scope.Holder
	logger     *zap.Logger
	metrics    metrics.Recorder
	handler    http.Handler
	wg         sync.WaitGroup
	shutdown   bool
	shutdownMu sync.RWMutex
	writerPool sync.Pool // Pool for reusing metricsResponseWriter objects
}

// outcome is how a single dispatch call ended.
type outcome int

const (
	outcomeNoMatch outcome = iota
	outcomeFilter
	outcomeRoute
)

func (o outcome) String() string {
	switch o {
	case outcomeFilter:
		return metrics.OutcomeFilter
	case outcomeRoute:
		return metrics.OutcomeRoute
	default:
		return metrics.OutcomeNoMatch
	}
}

// NewDispatcher creates a Dispatcher with the given configuration.
// Routes and filters listed in the configuration are registered in order;
// entries with invalid patterns are logged and skipped.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	recorder := config.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	d := &Dispatcher{
		config:  config,
		holder:  scope.NewHolder(),
		logger:  logger,
		metrics: recorder,
		writerPool: sync.Pool{
			New: func() interface{} {
				return &metricsResponseWriter{}
			},
		},
	}
	d.cache = pattern.NewCache(config.PatternCacheSize, recorder.ObservePatternCache)
	d.table = registry.New(d.cache)
	d.handler = common.NewMiddlewareChain(config.Middlewares...).Then(http.HandlerFunc(d.serveHTTP))

	for _, f := range config.Filters {
		if _, err := d.AddFilter(f.Pattern, f.Handler); err != nil {
			logger.Error("Failed to register filter", zap.String("pattern", f.Pattern), zap.Error(err))
		}
	}
	for _, r := range config.Routes {
		if err := d.AddRoute(r.Pattern, r.Handler); err != nil {
			logger.Error("Failed to register route", zap.String("pattern", r.Pattern), zap.Error(err))
		}
	}
	d.reportSizes()

	return d
}

// AddRoute registers handler as the terminal handler for pattern, replacing
// any handler already registered for the same pattern string.
func (d *Dispatcher) AddRoute(pattern string, handler common.Handler) error {
	if err := d.table.AddRoute(pattern, handler); err != nil {
		return err
	}
	d.logger.Debug("Route registered", zap.String("pattern", pattern))
	d.reportSizes()
	return nil
}

// RemoveRoute removes the route registered for pattern and returns its
// handler. The boolean is false when no such route exists.
func (d *Dispatcher) RemoveRoute(pattern string) (common.Handler, bool) {
	h, ok := d.table.RemoveRoute(pattern)
	if ok {
		d.logger.Debug("Route removed", zap.String("pattern", pattern))
		d.reportSizes()
	}
	return h, ok
}

// AddFilter appends handler to the filters of pattern.
func (d *Dispatcher) AddFilter(pattern string, handler common.Handler) (common.FilterID, error) {
	id, err := d.table.AddFilter(pattern, handler)
	if err != nil {
		return 0, err
	}
	d.logger.Debug("Filter registered", zap.String("pattern", pattern), zap.Uint64("filter_id", uint64(id)))
	d.reportSizes()
	return id, nil
}

// SetFilters atomically replaces the filters of pattern. An empty list
// removes the pattern.
func (d *Dispatcher) SetFilters(pattern string, handlers ...common.Handler) ([]common.FilterID, error) {
	ids, err := d.table.SetFilters(pattern, handlers...)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Filters replaced", zap.String("pattern", pattern), zap.Int("count", len(handlers)))
	d.reportSizes()
	return ids, nil
}

// RemoveFilter removes every filter registered under pattern and returns
// their handlers. The boolean is false when pattern has no filters.
func (d *Dispatcher) RemoveFilter(pattern string) ([]common.Handler, bool) {
	handlers, ok := d.table.RemoveFilter(pattern)
	if ok {
		d.logger.Debug("Filters removed", zap.String("pattern", pattern), zap.Int("count", len(handlers)))
		d.reportSizes()
	}
	return handlers, ok
}

// ReplaceRoutes removes the routes named by owned and appends routes in the
// given order, publishing one route table. Routes not named by either keep
// their positions ahead of the new ones.
func (d *Dispatcher) ReplaceRoutes(owned []string, routes []registry.RouteEntry) error {
	if err := d.table.ReplaceRoutes(owned, routes); err != nil {
		return err
	}
	d.logger.Debug("Routes replaced", zap.Int("removed", len(owned)), zap.Int("count", len(routes)))
	d.reportSizes()
	return nil
}

// ReplaceFilters removes the filter lists named by owned and appends groups
// in the given order, publishing one filter table.
func (d *Dispatcher) ReplaceFilters(owned []string, groups []registry.FilterEntry) ([]common.FilterID, error) {
	ids, err := d.table.ReplaceFilters(owned, groups)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Filters replaced", zap.Int("removed", len(owned)), zap.Int("count", len(ids)))
	d.reportSizes()
	return ids, nil
}

// Routes returns a snapshot of the route table in registration order.
func (d *Dispatcher) Routes() []registry.Route {
	return d.table.Routes()
}

// Filters returns a flattened snapshot of the filter table.
func (d *Dispatcher) Filters() []registry.Filter {
	return d.table.Filters()
}

// SetResumeOrigin marks origin as the filter after which the next OnMessage
// call made with the returned context resumes scanning. The zero FilterID
// clears the marker. Filters normally call Next instead.
func (d *Dispatcher) SetResumeOrigin(ctx context.Context, origin common.FilterID) context.Context {
	ctx, sc := d.holder.Enter(ctx)
	if origin == 0 {
		sc.ClearResumeOrigin()
	} else {
		sc.SetResumeOrigin(origin)
	}
	return ctx
}

// CurrentRequest returns the request being dispatched by ctx's task.
func (d *Dispatcher) CurrentRequest(ctx context.Context) (common.Request, bool) {
	return d.holder.CurrentRequest(ctx)
}

// OnMessage dispatches req to at most one filter or terminal handler.
// It returns nil without invoking anything when no pattern matches; the
// caller decides how to answer such requests. Handler errors are returned
// unchanged.
func (d *Dispatcher) OnMessage(ctx context.Context, req common.Request, resp common.Response) error {
	_, err := d.dispatch(ctx, req, resp)
	return err
}

func (d *Dispatcher) dispatch(ctx context.Context, req common.Request, resp common.Response) (result outcome, err error) {
	start := time.Now()
	path := EffectivePath(req)

	ctx, sc := d.holder.Enter(ctx)
	origin, resuming := sc.ResumeOrigin()
	filters := d.table.Filters()

	outermost := sc.BindRequest(req)
	defer func() {
		if !resuming {
			sc.ClearResumeOrigin()
		}
		if outermost {
			if sc.Routed() {
				result = outcomeRoute
			}
			d.metrics.ObserveDispatch(result.String(), time.Since(start), err)
			sc.ClearCurrentRequest()
		}
	}()

	if outermost {
		if !d.acquire() {
			return outcomeNoMatch, ErrShuttingDown
		}
		defer d.wg.Done()
	}

	pastOrigin := !resuming
	for _, f := range filters {
		if pastOrigin && f.Pattern.Matches(path) {
			return outcomeFilter, f.Handler.Handle(withCursor(ctx, Cursor{dispatcher: d, filter: f.ID}), req, resp)
		}
		if f.ID == origin {
			pastOrigin = true
		}
	}
	if resuming && !pastOrigin {
		d.logger.Debug("Resume origin not registered, continuing with routes",
			zap.Uint64("filter_id", uint64(origin)),
			zap.String("path", path),
		)
	}

	for _, r := range d.table.Routes() {
		if !r.Pattern.Matches(path) && !r.Pattern.Equals(path) {
			continue
		}
		if d.config.Conversations != nil {
			if handle := req.Attribute(common.ConversationAttribute); handle != nil {
				if err := d.config.Conversations.CheckAndRefresh(ctx, handle); err != nil {
					return outcomeRoute, err
				}
			}
		}
		sc.MarkRouted()
		if _, ok := CursorFromContext(ctx); ok {
			// Terminal handlers are not part of the chain.
			ctx = withCursor(ctx, Cursor{})
		}
		return outcomeRoute, r.Handler.Handle(ctx, req, resp)
	}

	return outcomeNoMatch, nil
}

// EffectivePath returns the path a request is dispatched on: context path
// and servlet path joined by a slash for a ServletRequest, the request URI
// otherwise.
func EffectivePath(req common.Request) string {
	sr, ok := req.(common.ServletRequest)
	if !ok {
		return req.RequestURI()
	}
	servletPath := sr.ServletPath()
	if !strings.HasPrefix(servletPath, "/") {
		return sr.ContextPath() + "/" + servletPath
	}
	return sr.ContextPath() + servletPath
}

// acquire registers an in-flight dispatch unless the dispatcher is shutting down.
func (d *Dispatcher) acquire() bool {
	// First add to the wait group before checking shutdown status
	d.wg.Add(1)

	d.shutdownMu.RLock()
	isShutdown := d.shutdown
	d.shutdownMu.RUnlock()

	if isShutdown {
		d.wg.Done()
		return false
	}
	return true
}

// Shutdown stops accepting new requests and waits for in-flight dispatches
// to complete. If the context is canceled first, it returns the context's error.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownMu.Lock()
	d.shutdown = true
	d.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) reportSizes() {
	routes, filters := d.table.Len()
	d.metrics.SetRegistered(metrics.KindRoute, routes)
	d.metrics.SetRegistered(metrics.KindFilter, filters)
}
