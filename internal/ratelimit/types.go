package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Endpoint classes.
const (
	ClassGeneral    = "general"
	ClassAI         = "ai"
	ClassExtraction = "extraction"
)

// Config is the limit for one endpoint class.
type Config struct {
	// Name is the endpoint class. Clients get an independent window per class.
	Name string

	// Window is the length of the counting window.
	Window time.Duration

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
}

// Validate checks that the window and limit are usable.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("rate limit class %q: window must be positive", c.Name)
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("rate limit class %q: max requests must be positive", c.Name)
	}
	return nil
}

// DefaultClasses returns the built-in limits: general browsing is loose,
// paid AI and extraction calls are strict.
func DefaultClasses() map[string]Config {
	return map[string]Config{
		ClassGeneral:    {Name: ClassGeneral, Window: time.Minute, MaxRequests: 100},
		ClassAI:         {Name: ClassAI, Window: time.Minute, MaxRequests: 10},
		ClassExtraction: {Name: ClassExtraction, Window: time.Minute, MaxRequests: 5},
	}
}

// Result is the outcome of one CheckAndConsume call.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfterSeconds is set only when Allowed is false.
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// Window is the counting state of one client in one class.
type Window struct {
	Start time.Time
	Count int
}

// Store persists windows.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Take rolls the window for key over if it has expired, then increments it
	// when its count is below limit. It returns the window after the call and
	// whether the request was admitted.
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error)

	// Sweep deletes up to max windows whose period ended before now.
	Sweep(ctx context.Context, now time.Time, max int) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Ensure interface compliance at compile time.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
