package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/router"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// RateLimitStrategy selects how clients are identified.
type RateLimitStrategy string

const (
	// RateLimitByIP keys requests by client IP.
	RateLimitByIP RateLimitStrategy = "ip"
	// RateLimitByCustomKey keys requests with RateLimitConfig.KeyExtractor.
	RateLimitByCustomKey RateLimitStrategy = "custom"
)

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Unique identifier for this rate limit bucket
	// If multiple filters share the same BucketName, they share the same rate limit
	BucketName string

	// Maximum number of requests allowed in the time window
	Limit int

	// Time window for the rate limit (e.g., 1 minute, 1 hour)
	Window time.Duration

	// Strategy for identifying clients; defaults to RateLimitByIP
	Strategy RateLimitStrategy

	// Custom key extractor function (used when Strategy is RateLimitByCustomKey)
	KeyExtractor func(common.Request) (string, error)

	// Handler answering requests over the limit
	// If nil, a 429 Too Many Requests error is returned
	ExceededHandler common.Handler
}

// RateLimiter defines the interface for rate limiting algorithms
type RateLimiter interface {
	// Allow checks if a request is allowed based on the key and rate limit config
	// Returns true if the request is allowed, false otherwise
	// Also returns the number of remaining requests and time until reset
	Allow(key string, limit int, window time.Duration) (bool, int, time.Duration)
}

// fixedWindow is the counter of one key for the current window.
type fixedWindow struct {
	start time.Time
	count int
}

// UberRateLimiter implements RateLimiter with a fixed-window counter per key.
// Admitted requests are additionally paced by a go.uber.org/ratelimit limiter
// so that a window's budget is spread over the window instead of arriving as
// one burst.
type UberRateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*fixedWindow
	limiters map[string]ratelimit.Limiter
	opts     []ratelimit.Option
	now      func() time.Time
}

// NewUberRateLimiter creates a new rate limiter. The options are passed to
// every ratelimit.New call, for example ratelimit.WithSlack.
func NewUberRateLimiter(opts ...ratelimit.Option) *UberRateLimiter {
	return &UberRateLimiter{
		windows:  make(map[string]*fixedWindow),
		limiters: make(map[string]ratelimit.Limiter),
		opts:     opts,
		now:      time.Now,
	}
}

// getLimiter gets or creates the pacing limiter for key. Callers hold u.mu.
func (u *UberRateLimiter) getLimiter(key string, limit int, window time.Duration) ratelimit.Limiter {
	if limiter, ok := u.limiters[key]; ok {
		return limiter
	}
	opts := append([]ratelimit.Option{ratelimit.Per(window)}, u.opts...)
	limiter := ratelimit.New(limit, opts...)
	u.limiters[key] = limiter
	return limiter
}

// Allow checks if a request is allowed based on the key and rate limit config
func (u *UberRateLimiter) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	// Handle zero window (default to 1 second) and zero limit (treat as 1)
	if window <= 0 {
		window = time.Second
	}
	if limit <= 0 {
		limit = 1
	}

	u.mu.Lock()
	now := u.now()
	w, ok := u.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &fixedWindow{start: now}
		u.windows[key] = w
	}
	reset := window - now.Sub(w.start)

	if w.count >= limit {
		u.mu.Unlock()
		return false, 0, reset
	}
	w.count++
	remaining := limit - w.count
	limiter := u.getLimiter(key, limit, window)
	u.mu.Unlock()

	// Pace outside the lock; Take blocks until the next slot.
	limiter.Take()
	return true, remaining, reset
}

// extractIP returns the client IP stored by ClientIPFilter, falling back to
// the default extraction when that filter did not run.
func extractIP(req common.Request) string {
	if ip := ClientIP(req); ip != "" {
		return ip
	}
	return extractClientIP(req, DefaultIPConfig())
}

// RateLimitFilter creates a filter that enforces rate limits. Requests over
// the limit are answered and do not continue the chain.
func RateLimitFilter(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) common.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return common.HandlerFunc(func(ctx context.Context, req common.Request, resp common.Response) error {
		// Skip rate limiting if config is nil
		if config == nil || limiter == nil {
			return router.Next(ctx, req, resp)
		}

		// Extract key based on strategy
		var key string
		switch config.Strategy {
		case RateLimitByCustomKey:
			if config.KeyExtractor == nil {
				key = extractIP(req)
				break
			}
			var err error
			key, err = config.KeyExtractor(req)
			if err != nil {
				logger.Error("Failed to extract rate limit key",
					zap.Error(err),
					zap.String("method", req.Method()),
					zap.String("path", req.RequestURI()),
				)
				return router.WrapHTTPError(http.StatusInternalServerError, "Internal Server Error", err)
			}
		default:
			key = extractIP(req)
		}

		// Combine bucket name and key to create a unique identifier
		bucketKey := config.BucketName + ":" + key

		allowed, remaining, reset := limiter.Allow(bucketKey, config.Limit, config.Window)

		resp.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		resp.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		resp.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if allowed {
			return router.Next(ctx, req, resp)
		}

		resp.Header().Set("Retry-After", strconv.FormatInt(int64(reset.Seconds()), 10))
		logger.Warn("Rate limit exceeded",
			zap.String("method", req.Method()),
			zap.String("path", req.RequestURI()),
			zap.String("key", key),
			zap.Int("limit", config.Limit),
			zap.Int("remaining", remaining),
		)

		if config.ExceededHandler != nil {
			return config.ExceededHandler.Handle(ctx, req, resp)
		}
		return router.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
	})
}
