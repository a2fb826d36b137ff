// Command sdispatch serves routes and filters declared in a YAML manifest.
//
// Configuration comes from SDISPATCH_* environment variables (see
// pkg/config). Without a manifest a built-in one answers /health.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/config"
	"github.com/Suhaibinator/SDispatch/pkg/manifest"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// defaultManifest is applied when SDISPATCH_MANIFEST is not set.
var defaultManifest = &manifest.Manifest{
	Routes: []manifest.RouteSpec{
		{Pattern: "/health", Body: "ok", ContentType: "text/plain; charset=utf-8"},
	},
	Filters: []manifest.FilterSpec{
		{Pattern: "/.*", Use: []string{"recovery", "trace", "clientip", "logging"}},
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	mux := http.NewServeMux()

	var recorder metrics.Recorder
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err = metrics.NewPrometheusRecorder(metrics.PrometheusConfig{
			Registerer: reg,
			Namespace:  cfg.MetricsNS,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	d := router.NewDispatcher(router.DispatcherConfig{
		Logger:        logger,
		Metrics:       recorder,
		ContextPath:   cfg.ContextPath,
		CleanPath:     cfg.CleanPath,
		EnableTraceID: true,
	})
	mux.Handle("/", d)

	filters := builtinFilters(cfg, logger)
	logger.Debug("Built-in filters", zap.Strings("names", filters.Names()))
	applier := manifest.NewApplier(d, filters, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case cfg.Manifest == "":
		if err := applier.Apply(defaultManifest); err != nil {
			return err
		}
	case cfg.WatchManifest:
		w, err := manifest.NewWatcher(cfg.Manifest, applier,
			manifest.WithLogger(logger),
			manifest.WithErrorCallback(func(err error) {
				logger.Warn("Keeping previous manifest", zap.Error(err))
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to watch manifest: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			w.Stop()
			return err
		}
		defer w.Stop()
	default:
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}
		if err := applier.Apply(m); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop the dispatcher first so new requests get 503 while the
	// listener drains.
	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Error("Dispatcher shutdown failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zcfg.Build()
}

// builtinFilters returns the filters a manifest may name.
func builtinFilters(cfg *config.Config, logger *zap.Logger) manifest.FilterFactory {
	limiter := middleware.NewUberRateLimiter()
	return manifest.FilterFactory{
		"trace":    middleware.TraceFilter,
		"recovery": func() common.Handler { return middleware.RecoveryFilter(logger) },
		"logging":  func() common.Handler { return middleware.LoggingFilter(logger) },
		"clientip": func() common.Handler { return middleware.ClientIPFilter(nil) },
		"cors": func() common.Handler {
			return middleware.CORSFilter([]string{"*"}, []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}, []string{"Content-Type", "Authorization"})
		},
		"timeout": func() common.Handler { return middleware.TimeoutFilter(30 * time.Second) },
		"ratelimit": func() common.Handler {
			return middleware.RateLimitFilter(&middleware.RateLimitConfig{
				BucketName: "global",
				Limit:      cfg.RateLimit,
				Window:     cfg.RateLimitWindow,
				Strategy:   middleware.RateLimitByIP,
			}, limiter, logger)
		},
	}
}
