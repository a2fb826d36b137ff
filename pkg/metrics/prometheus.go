package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusConfig configures a PrometheusRecorder.
type PrometheusConfig struct {
	Registerer prometheus.Registerer // Registry to register collectors with (defaults to prometheus.DefaultRegisterer)
	Namespace  string                // Namespace for metrics
	Subsystem  string                // Subsystem for metrics
	Buckets    []float64             // Latency histogram buckets (defaults to prometheus.DefBuckets)
}

// PrometheusRecorder is a Recorder backed by Prometheus collectors.
type PrometheusRecorder struct {
	requests    *prometheus.CounterVec
	errors      prometheus.Counter
	duration    *prometheus.HistogramVec
	registered  *prometheus.GaugeVec
	cacheEvents *prometheus.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them.
// Collectors that are already registered with an identical description are
// reused, so two dispatchers may share one registry.
func NewPrometheusRecorder(config PrometheusConfig) (*PrometheusRecorder, error) {
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := config.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	r := &PrometheusRecorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dispatch_requests_total",
			Help:      "Number of dispatched requests by outcome.",
		}, []string{"outcome"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dispatch_errors_total",
			Help:      "Number of dispatches that returned an error.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency in seconds by outcome.",
			Buckets:   buckets,
		}, []string{"outcome"}),
		registered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "registered_entries",
			Help:      "Number of registered routes and filters.",
		}, []string{"kind"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Subsystem: config.Subsystem,
			Name:      "pattern_cache_events_total",
			Help:      "Pattern cache hits, misses and evictions.",
		}, []string{"event"}),
	}

	var err error
	if r.requests, err = register(reg, r.requests); err != nil {
		return nil, err
	}
	if r.errors, err = register(reg, r.errors); err != nil {
		return nil, err
	}
	if r.duration, err = register(reg, r.duration); err != nil {
		return nil, err
	}
	if r.registered, err = register(reg, r.registered); err != nil {
		return nil, err
	}
	if r.cacheEvents, err = register(reg, r.cacheEvents); err != nil {
		return nil, err
	}
	return r, nil
}

// register registers c, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveDispatch implements Recorder.
func (r *PrometheusRecorder) ObserveDispatch(outcome string, duration time.Duration, err error) {
	r.requests.WithLabelValues(outcome).Inc()
	r.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	if err != nil {
		r.errors.Inc()
	}
}

// SetRegistered implements Recorder.
func (r *PrometheusRecorder) SetRegistered(kind string, n int) {
	r.registered.WithLabelValues(kind).Set(float64(n))
}

// ObservePatternCache implements Recorder.
func (r *PrometheusRecorder) ObservePatternCache(event string) {
	r.cacheEvents.WithLabelValues(event).Inc()
}
