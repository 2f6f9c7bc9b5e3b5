package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Limiter applies class limits to clients on top of a Store.
type Limiter struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// NewLimiter creates a limiter backed by store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckAndConsume counts one request from clientID against cfg.
// It never fails; an unusable config or a store error admits the request.
func (l *Limiter) CheckAndConsume(ctx context.Context, clientID string, cfg Config) Result {
	now := l.now()

	if cfg.Validate() != nil || l.store == nil {
		requestsTotal.WithLabelValues(cfg.Name, outcomeError).Inc()
		return openResult(cfg, now)
	}

	w, allowed, err := l.store.Take(ctx, windowKey(cfg.Name, clientID), cfg.MaxRequests, cfg.Window, now)
	if err != nil {
		l.logger.Warn("rate limit store failed, admitting request",
			"class", cfg.Name,
			"client", clientID,
			"error", err,
		)
		requestsTotal.WithLabelValues(cfg.Name, outcomeError).Inc()
		return openResult(cfg, now)
	}

	res := Result{
		Allowed: allowed,
		Limit:   cfg.MaxRequests,
		ResetAt: w.Start.Add(cfg.Window),
	}
	if allowed {
		res.Remaining = max(cfg.MaxRequests-w.Count, 0)
		requestsTotal.WithLabelValues(cfg.Name, outcomeAllowed).Inc()
	} else {
		res.RetryAfterSeconds = retryAfterSeconds(res.ResetAt.Sub(now))
		requestsTotal.WithLabelValues(cfg.Name, outcomeLimited).Inc()
	}
	return res
}

// Sweep removes expired windows from the store, at most max per call.
func (l *Limiter) Sweep(ctx context.Context, max int) int {
	if l.store == nil {
		return 0
	}
	n, err := l.store.Sweep(ctx, l.now(), max)
	if err != nil {
		l.logger.Warn("rate limit sweep failed", "error", err)
	}
	return n
}

func windowKey(class, clientID string) string {
	if class == "" {
		return clientID
	}
	return class + ":" + clientID
}

// openResult describes a fresh window that has just admitted one request.
func openResult(cfg Config, now time.Time) Result {
	return Result{
		Allowed:   true,
		Limit:     cfg.MaxRequests,
		Remaining: max(cfg.MaxRequests-1, 0),
		ResetAt:   now.Add(cfg.Window),
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
