package server

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"caredraft/internal/core"
	"caredraft/internal/ratelimit"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestID echoes the caller's X-Request-ID or generates one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, requestID)
			return next(c)
		}
	}
}

// RateLimit counts each request against cfg for the calling client and
// rejects it with 429 once the window is used up. A nil limiter admits everything.
func RateLimit(limiter *ratelimit.Limiter, cfg ratelimit.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			res := limiter.CheckAndConsume(req.Context(), ratelimit.ClientID(req), cfg)
			ratelimit.SetHeaders(c.Response().Header(), res)
			if !res.Allowed {
				msg := fmt.Sprintf("too many %s requests, retry in %d seconds", cfg.Name, res.RetryAfterSeconds)
				return handleError(c, core.NewRateLimitError(msg, res.RetryAfterSeconds))
			}
			return next(c)
		}
	}
}
