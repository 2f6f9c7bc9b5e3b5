package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"caredraft/internal/ratelimit"
	"caredraft/internal/storage"
)

// DefaultBodySizeLimit applies when server.body_size_limit is empty.
const DefaultBodySizeLimit int64 = 1 << 20

// Body size bounds accepted by ValidateBodySizeLimit.
const (
	minBodySize = 1 << 10
	maxBodySize = 100 << 20
)

var bodySizePattern = regexp.MustCompile(`^(\d+)(?:([KkMmGg])[Bb]?)?$`)

// ParseBodySizeLimit converts "10M", "512KB" or a plain byte count into bytes.
func ParseBodySizeLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	m := bodySizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid body size limit %q: expected a number with optional K, M or G unit", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid body size limit %q: %w", s, err)
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		n <<= 10
	case "M":
		n <<= 20
	case "G":
		n <<= 30
	}
	return n, nil
}

// ValidateBodySizeLimit checks that s is empty or a size between 1KB and 100MB.
func ValidateBodySizeLimit(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := ParseBodySizeLimit(s)
	if err != nil {
		return err
	}
	if n < minBodySize || n > maxBodySize {
		return fmt.Errorf("body size limit %q out of range (1K to 100M)", s)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if err := ValidateBodySizeLimit(c.Server.BodySizeLimit); err != nil {
		errs = append(errs, err)
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	switch c.Logging.Format {
	case "", "auto", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (valid: auto, json, pretty)", c.Logging.Format))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}

	if !storage.ValidType(c.Storage.Type) {
		errs = append(errs, fmt.Errorf("unknown storage type %q (valid: memory, sqlite, postgresql, mongodb)", c.Storage.Type))
	}
	if c.Storage.Type == storage.TypePostgreSQL && c.Storage.PostgreSQL.URL == "" {
		errs = append(errs, errors.New("storage.postgresql.url is required for postgresql storage"))
	}
	if c.Storage.Type == storage.TypeMongoDB && c.Storage.MongoDB.URL == "" {
		errs = append(errs, errors.New("storage.mongodb.url is required for mongodb storage"))
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}

	switch c.RateLimit.Backend {
	case ratelimit.BackendMemory, "":
	case ratelimit.BackendRedis:
		if c.RateLimit.RedisURL == "" {
			errs = append(errs, errors.New("rate_limit.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q (valid: memory, redis)", c.RateLimit.Backend))
	}
	for _, class := range c.RateLimitClasses() {
		if err := class.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.AI.Timeout < 0 {
		errs = append(errs, errors.New("ai.timeout must not be negative"))
	}
	if c.AI.MaxRetries < 0 {
		errs = append(errs, errors.New("ai.max_retries must not be negative"))
	}

	if c.Deadlines.Enabled && c.Deadlines.Interval <= 0 {
		errs = append(errs, errors.New("deadlines.interval must be positive when enabled"))
	}
	if c.Deadlines.ReminderWindow < 0 {
		errs = append(errs, errors.New("deadlines.reminder_window must not be negative"))
	}

	return errors.Join(errs...)
}
