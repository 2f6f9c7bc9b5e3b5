package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"caredraft/internal/core"
)

// AuthMiddleware creates an Echo middleware that accepts a request only when
// its bearer token is one of keys. An empty key list disables authentication.
func AuthMiddleware(keys []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(keys) == 0 {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return handleError(c, core.NewAuthenticationError("missing authorization header"))
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return handleError(c, core.NewAuthenticationError("invalid authorization header format, expected 'Bearer <token>'"))
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if !validKey(keys, token) {
				return handleError(c, core.NewAuthenticationError("invalid API key"))
			}

			return next(c)
		}
	}
}

func validKey(keys []string, token string) bool {
	if token == "" {
		return false
	}
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare([]byte(k), []byte(token))
	}
	return ok == 1
}
