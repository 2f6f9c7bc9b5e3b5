package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient identifies requests that carry neither a token nor a client address.
// All such requests share one window.
const UnknownClient = "unknown"

// tokenPrefixLen is how much of a bearer token ends up in a client id.
// The full token is never used as a key.
const tokenPrefixLen = 16

// ClientID derives the limiter identity of a request.
// Precedence: bearer token, first X-Forwarded-For entry, X-Real-IP.
func ClientID(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		if len(token) > tokenPrefixLen {
			token = token[:tokenPrefixLen]
		}
		return "token:" + token
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return "ip:" + first
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return "ip:" + ip
	}

	return UnknownClient
}

func bearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
