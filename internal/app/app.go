// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the CareDraft API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"caredraft/config"
	"caredraft/internal/assist"
	"caredraft/internal/cache"
	"caredraft/internal/deadlines"
	"caredraft/internal/documents"
	"caredraft/internal/llmclient"
	"caredraft/internal/ratelimit"
	"caredraft/internal/server"
	"caredraft/internal/sweep"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config    *config.Config
	logger    *slog.Logger
	documents *documents.Result
	limits    ratelimit.Store
	limiter   *ratelimit.Limiter
	caches    server.Caches
	assist    *cache.Store[*assist.Result]
	deadlines *deadlines.Processor
	loops     *sweep.Group
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized and its
// maintenance loops running. The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var bodySizeLimit int64
	if cfg.Server.BodySizeLimit != "" {
		n, err := config.ParseBodySizeLimit(cfg.Server.BodySizeLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid body size limit: %w", err)
		}
		bodySizeLimit = n
	}

	app := &App{
		config: cfg,
		logger: logger,
		loops:  sweep.NewGroup(),
	}

	docs, err := documents.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	app.documents = docs

	if cfg.RateLimit.Enabled {
		limits, err := ratelimit.NewStore(cfg.RateLimit.Backend, ratelimit.RedisConfig{
			URL:    cfg.RateLimit.RedisURL,
			Prefix: cfg.RateLimit.RedisPrefix,
		})
		if err != nil {
			closeErr := app.documents.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("failed to initialize rate limiting: %w (also: document store close error: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("failed to initialize rate limiting: %w", err)
		}
		app.limits = limits
		app.limiter = ratelimit.NewLimiter(limits, ratelimit.WithLogger(logger))
	}

	app.caches = server.NewCaches(cfg.Cache.MaxEntries, cfg.Cache.SingleFlight)
	app.assist = cache.New[*assist.Result](cache.Options{
		Name:         "assist",
		MaxEntries:   cfg.Cache.MaxEntries,
		DefaultTTL:   cache.PresetResearch.TTL(),
		SingleFlight: cfg.Cache.SingleFlight,
	})

	var completer assist.Completer
	if cfg.AI.BaseURL != "" {
		clientCfg := llmclient.DefaultConfig(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)
		if cfg.AI.Timeout > 0 {
			clientCfg.Timeout = cfg.AI.Timeout
		}
		clientCfg.MaxRetries = cfg.AI.MaxRetries
		completer = llmclient.New(clientCfg)
	}
	router := assist.NewRouter(completer, app.assist)

	app.deadlines = deadlines.NewProcessor(docs.Store,
		deadlines.WithReminderWindow(cfg.Deadlines.ReminderWindow),
		deadlines.WithInvalidators(app.caches),
		deadlines.WithLogger(logger),
	)

	app.server = server.New(server.NewHandler(docs.Store, router, app.caches), &server.Config{
		APIKeys:         cfg.Server.APIKeys,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   bodySizeLimit,
		Limiter:         app.limiter,
		Classes:         cfg.RateLimitClasses(),
		Logger:          logger,
	})

	app.startLoops()
	app.logStartupInfo(completer != nil)

	return app, nil
}

func (a *App) startLoops() {
	batch := a.config.Cache.SweepBatch

	a.loops.Go(a.config.Cache.SweepInterval, func() {
		if n := a.caches.Sweep(batch) + a.assist.Sweep(batch); n > 0 {
			a.logger.Debug("swept expired cache entries", "count", n)
		}
	})

	if a.limiter != nil {
		a.loops.Go(a.config.RateLimit.SweepInterval, func() {
			if n := a.limiter.Sweep(context.Background(), batch); n > 0 {
				a.logger.Debug("swept expired rate limit windows", "count", n)
			}
		})
	}

	if a.config.Deadlines.Enabled {
		a.loops.Go(a.config.Deadlines.Interval, a.deadlines.Tick)
	}
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.server
}

// Deadlines returns the deadline processor.
func (a *App) Deadlines() *deadlines.Processor {
	return a.deadlines
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	a.logger.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			a.logger.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server, the maintenance loops, the rate limit store, then the document store.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns the joined failures.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	a.logger.Info("shutting down application...")

	var errs []error

	// Stop accepting new requests first
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	a.loops.Stop()

	if a.limits != nil {
		if err := a.limits.Close(); err != nil {
			a.logger.Error("rate limit store close error", "error", err)
			errs = append(errs, fmt.Errorf("rate limit close: %w", err))
		}
	}

	if a.documents != nil {
		if err := a.documents.Close(); err != nil {
			a.logger.Error("document store close error", "error", err)
			errs = append(errs, fmt.Errorf("documents close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo(aiEnabled bool) {
	cfg := a.config

	if len(cfg.Server.APIKeys) == 0 {
		a.logger.Warn("SECURITY WARNING: CAREDRAFT_API_KEYS not set - API running without authentication",
			"recommendation", "set CAREDRAFT_API_KEYS to a comma separated list of keys")
	} else {
		a.logger.Info("authentication enabled", "keys", len(cfg.Server.APIKeys))
	}

	if cfg.Metrics.Enabled {
		a.logger.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		a.logger.Info("prometheus metrics disabled")
	}

	a.logger.Info("storage configured", "type", cfg.Storage.Type)

	a.logger.Info("request cache configured",
		"max_entries", cfg.Cache.MaxEntries,
		"single_flight", cfg.Cache.SingleFlight,
		"sweep_interval", cfg.Cache.SweepInterval,
	)

	if cfg.RateLimit.Enabled {
		classes := cfg.RateLimitClasses()
		a.logger.Info("rate limiting enabled",
			"backend", cfg.RateLimit.Backend,
			"general", classes[ratelimit.ClassGeneral].MaxRequests,
			"ai", classes[ratelimit.ClassAI].MaxRequests,
			"extraction", classes[ratelimit.ClassExtraction].MaxRequests,
		)
	} else {
		a.logger.Warn("rate limiting disabled")
	}

	if aiEnabled {
		a.logger.Info("AI assist enabled", "base_url", cfg.AI.BaseURL, "model", cfg.AI.Model)
	} else {
		a.logger.Warn("AI assist disabled: AI_BASE_URL not set")
	}

	if cfg.Deadlines.Enabled {
		a.logger.Info("deadline processing enabled",
			"interval", cfg.Deadlines.Interval,
			"reminder_window", cfg.Deadlines.ReminderWindow,
		)
	} else {
		a.logger.Info("deadline processing disabled")
	}
}
