package ratelimit

import (
	"net/http"
	"strconv"
)

// Response header names.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders writes the rate limit headers for res.
// X-RateLimit-Reset is a unix timestamp in seconds; Retry-After is only set on rejection.
func SetHeaders(h http.Header, res Result) {
	h.Set(HeaderLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set(HeaderRetryAfter, strconv.Itoa(res.RetryAfterSeconds))
	}
}
