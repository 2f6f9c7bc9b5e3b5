package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caredraft/config"
	"caredraft/internal/ratelimit"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	APIKeys         []string // Optional: bearer keys accepted on /api routes
	MetricsEnabled  bool     // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string   // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   int64    // Max request body size in bytes (default: 1MB)

	// Limiter gates /api routes. Nil disables rate limiting.
	Limiter *ratelimit.Limiter
	// Classes maps endpoint classes to their limits; missing classes use ratelimit.DefaultClasses.
	Classes map[string]ratelimit.Config

	Logger *slog.Logger
}

// New creates a new HTTP server
func New(handler *Handler, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware stack (order matters)
	e.Use(RequestID())
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(logger)))
	e.Use(middleware.Recover())

	bodySizeLimit := config.DefaultBodySizeLimit
	if cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath(cfg.MetricsEndpoint), echo.WrapHandler(promhttp.Handler()))
	}

	var apiMiddleware []echo.MiddlewareFunc
	if len(cfg.APIKeys) > 0 {
		apiMiddleware = append(apiMiddleware, AuthMiddleware(cfg.APIKeys))
	}
	api := e.Group("/api", apiMiddleware...)

	general := RateLimit(cfg.Limiter, classConfig(cfg.Classes, ratelimit.ClassGeneral))
	ai := RateLimit(cfg.Limiter, classConfig(cfg.Classes, ratelimit.ClassAI))
	extraction := RateLimit(cfg.Limiter, classConfig(cfg.Classes, ratelimit.ClassExtraction))

	api.GET("/documents", handler.ListDocuments, general)
	api.POST("/documents", handler.CreateDocument, general)
	api.GET("/documents/:id", handler.GetDocument, general)
	api.PUT("/documents/:id", handler.UpdateDocument, general)
	api.DELETE("/documents/:id", handler.DeleteDocument, general)
	api.GET("/search", handler.Search, general)
	api.POST("/ai/:operation", handler.Assist, ai)
	api.POST("/extract", handler.Extract, extraction)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// metricsPath cleans p and refuses paths that would shadow the API.
func metricsPath(p string) string {
	if p == "" {
		return "/metrics"
	}
	// Normalize path to prevent traversal attacks
	cleaned := path.Clean("/" + p)
	if cleaned == "/" || cleaned == "/api" || strings.HasPrefix(cleaned, "/api/") || cleaned == "/health" {
		return "/metrics"
	}
	return cleaned
}

func classConfig(classes map[string]ratelimit.Config, name string) ratelimit.Config {
	if c, ok := classes[name]; ok {
		c.Name = name
		return c
	}
	return ratelimit.DefaultClasses()[name]
}

func requestLoggerConfig(logger *slog.Logger) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
