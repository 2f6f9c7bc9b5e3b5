// Package ratelimit throttles requests per client and endpoint class.
//
// Each (class, client) pair owns one fixed counting window. A window has two
// transitions only: it accumulates while inside its period, and it rolls over
// to a fresh start once the period has elapsed. A request is admitted when,
// after any roll-over, the window's count is below the class limit.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore())
//	res := limiter.CheckAndConsume(ctx, ratelimit.ClientID(r), classes[ratelimit.ClassAI])
//	ratelimit.SetHeaders(w.Header(), res)
//	if !res.Allowed {
//	    // respond 429
//	}
//
// # Backends
//
//   - memory: process-local windows (default). With N instances the effective
//     limit is N times the configured one.
//   - redis: windows shared across instances through a Lua script.
//
// The limiter never returns an error. If the store fails, the request is
// admitted and the failure is logged.
package ratelimit
