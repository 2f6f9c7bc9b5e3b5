package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, key := range []string{"a", "b", "c"} {
		if _, _, err := s.Take(ctx, key, 10, time.Minute, now); err != nil {
			t.Fatalf("Take(%s): %v", key, err)
		}
	}
	if _, _, err := s.Take(ctx, "long", 10, time.Hour, now); err != nil {
		t.Fatalf("Take(long): %v", err)
	}

	later := now.Add(2 * time.Minute)
	n, err := s.Sweep(ctx, later, 2)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("bounded sweep removed %d, want 2", n)
	}

	n, _ = s.Sweep(ctx, later, 0)
	if n != 1 {
		t.Errorf("unbounded sweep removed %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("expected only the long window to remain, got %d", s.Len())
	}
}

func TestMemoryStore_SweepInspectionIsBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _, _ = s.Take(ctx, fmt.Sprintf("short-%d", i), 10, time.Minute, now)
	}
	for i := 0; i < 1000; i++ {
		_, _, _ = s.Take(ctx, fmt.Sprintf("live-%d", i), 10, time.Hour, now)
	}
	later := now.Add(2 * time.Minute)

	removed, inspected := s.sweep(later, 2)
	if removed != 2 || inspected != 2 {
		t.Errorf("sweep(max=2) removed=%d inspected=%d, want 2 and 2", removed, inspected)
	}

	removed, inspected = s.sweep(later, 100)
	if removed != 3 {
		t.Errorf("second sweep removed %d, want 3", removed)
	}
	if inspected != 4 {
		t.Errorf("sweep must stop at the first live window; inspected %d, want 4", inspected)
	}
	if s.Len() != 1000 {
		t.Errorf("live windows must survive, got %d", s.Len())
	}
}

func TestMemoryStore_SweepKeepsRenewedWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _, _ = s.Take(ctx, "k", 10, time.Minute, now)
	renewed := now.Add(90 * time.Second)
	w, _, _ := s.Take(ctx, "k", 10, time.Minute, renewed)
	if !w.Start.Equal(renewed) {
		t.Fatalf("expected a fresh window, start = %v", w.Start)
	}

	n, _ := s.Sweep(ctx, renewed.Add(time.Second), 0)
	if n != 0 {
		t.Errorf("renewed window must not be swept, removed %d", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	n, _ = s.Sweep(ctx, renewed.Add(time.Minute), 0)
	if n != 1 || s.Len() != 0 {
		t.Errorf("expired renewed window: removed %d, Len %d", n, s.Len())
	}
}

func TestMemoryStore_TakeAtLimitKeepsCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	w, ok, _ := s.Take(ctx, "k", 1, time.Minute, now)
	if !ok || w.Count != 1 {
		t.Fatalf("first take: ok=%v count=%d", ok, w.Count)
	}
	w, ok, _ = s.Take(ctx, "k", 1, time.Minute, now)
	if ok || w.Count != 1 {
		t.Errorf("rejected take must not increment: ok=%v count=%d", ok, w.Count)
	}
}

func TestNewStore(t *testing.T) {
	for _, backend := range []string{"", BackendMemory} {
		s, err := NewStore(backend, RedisConfig{})
		if err != nil {
			t.Fatalf("NewStore(%q): %v", backend, err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Errorf("NewStore(%q) = %T, want *MemoryStore", backend, s)
		}
	}

	if _, err := NewStore(BackendRedis, RedisConfig{}); err == nil {
		t.Error("redis backend without URL should fail")
	}
	if _, err := NewStore("memcached", RedisConfig{}); err == nil {
		t.Error("unknown backend should fail")
	}
}
