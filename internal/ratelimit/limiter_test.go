package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(store Store) (*Limiter, *testClock) {
	clock := newTestClock()
	l := NewLimiter(store,
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return l, clock
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, int, time.Duration, time.Time) (Window, bool, error) {
	return Window{}, false, errors.New("connection refused")
}

func (failingStore) Sweep(context.Context, time.Time, int) (int, error) {
	return 0, errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestLimiter_CountsDownToRejection(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore())
	cfg := Config{Name: "test", Window: time.Minute, MaxRequests: 3}
	ctx := context.Background()
	start := clock.Now()

	for _, wantRemaining := range []int{2, 1, 0} {
		res := l.CheckAndConsume(ctx, "ip:10.0.0.1", cfg)
		require.True(t, res.Allowed)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, wantRemaining, res.Remaining)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
		assert.Zero(t, res.RetryAfterSeconds)
	}

	clock.Advance(15 * time.Second)
	res := l.CheckAndConsume(ctx, "ip:10.0.0.1", cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 45, res.RetryAfterSeconds)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt, "rejection does not move the window")
}

func TestLimiter_WindowRollsOver(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore())
	cfg := Config{Name: "test", Window: time.Minute, MaxRequests: 1}
	ctx := context.Background()

	require.True(t, l.CheckAndConsume(ctx, "c", cfg).Allowed)
	require.False(t, l.CheckAndConsume(ctx, "c", cfg).Allowed)

	clock.Advance(time.Minute)
	res := l.CheckAndConsume(ctx, "c", cfg)
	assert.True(t, res.Allowed, "a full window later the client starts fresh")
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestLimiter_ClientsAndClassesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(NewMemoryStore())
	ai := Config{Name: ClassAI, Window: time.Minute, MaxRequests: 1}
	general := Config{Name: ClassGeneral, Window: time.Minute, MaxRequests: 1}
	ctx := context.Background()

	require.True(t, l.CheckAndConsume(ctx, "token:a", ai).Allowed)
	assert.False(t, l.CheckAndConsume(ctx, "token:a", ai).Allowed)
	assert.True(t, l.CheckAndConsume(ctx, "token:b", ai).Allowed)
	assert.True(t, l.CheckAndConsume(ctx, "token:a", general).Allowed)
}

func TestLimiter_AIClassScenario(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore())
	cfg := DefaultClasses()[ClassAI]
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.True(t, l.CheckAndConsume(ctx, "token:abc", cfg).Allowed, "request %d", i+1)
		clock.Advance(time.Second)
	}

	res := l.CheckAndConsume(ctx, "token:abc", cfg)
	require.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, res.RetryAfterSeconds, 60)
}

func TestLimiter_FailsOpen(t *testing.T) {
	l, clock := newTestLimiter(failingStore{})
	cfg := Config{Name: "test", Window: time.Minute, MaxRequests: 5}

	res := l.CheckAndConsume(context.Background(), "c", cfg)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)

	assert.Equal(t, 0, l.Sweep(context.Background(), 10))
}

func TestLimiter_InvalidConfigAdmits(t *testing.T) {
	l, _ := newTestLimiter(NewMemoryStore())
	res := l.CheckAndConsume(context.Background(), "c", Config{Name: "broken"})
	assert.True(t, res.Allowed)
}

func TestLimiter_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	l, _ := newTestLimiter(NewMemoryStore())
	cfg := Config{Name: "test", Window: time.Minute, MaxRequests: 20}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CheckAndConsume(context.Background(), "shared", cfg).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{-time.Second, 1},
		{100 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	for name, cfg := range DefaultClasses() {
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Error(t, Config{Name: "x", Window: 0, MaxRequests: 1}.Validate())
	assert.Error(t, Config{Name: "x", Window: time.Second, MaxRequests: 0}.Validate())
}
