package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys in a shared Redis.
const DefaultRedisPrefix = "caredraft:ratelimit:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix is prepended to every window key (defaults to DefaultRedisPrefix)
	Prefix string
}

// takeScript applies the roll-over and increment atomically.
// Returns {allowed, count, start_ms}.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
if start == nil or count == nil or now - start >= window then
	start = now
	count = 0
end

local allowed = 0
if count < limit then
	count = count + 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'start', start, 'count', count)
local ttl = window - (now - start)
if ttl < 1 then
	ttl = 1
end
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, count, start}
`)

// RedisStore shares windows across instances through Redis.
// Redis key expiry removes finished windows, so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	slog.Info("redis rate limit store connected", "prefix", prefix)

	return &RedisStore{client: client, prefix: prefix}, nil
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error) {
	vals, err := takeScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit,
	).Int64Slice()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis take: %w", err)
	}
	if len(vals) != 3 {
		return Window{}, false, fmt.Errorf("redis take: unexpected reply length %d", len(vals))
	}

	return Window{
		Start: time.UnixMilli(vals[2]),
		Count: int(vals[1]),
	}, vals[0] == 1, nil
}

// Sweep implements Store.
func (s *RedisStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
