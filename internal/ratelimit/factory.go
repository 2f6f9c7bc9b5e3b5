package ratelimit

import "fmt"

// Backend names accepted by NewStore.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// NewStore creates the window store for backend. An empty backend means memory.
func NewStore(backend string, redisCfg RedisConfig) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if redisCfg.URL == "" {
			return nil, fmt.Errorf("redis rate limit backend requires a redis URL")
		}
		return NewRedisStore(redisCfg)
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", backend)
	}
}
