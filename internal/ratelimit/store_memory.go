package ratelimit

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	key    string
	start  time.Time
	count  int
	length time.Duration
}

func (w *memoryWindow) resetAt() time.Time {
	return w.start.Add(w.length)
}

func (w *memoryWindow) expired(now time.Time) bool {
	return now.Sub(w.start) >= w.length
}

// expiryQueue orders windows by reset time. A window replaced in the map stays
// queued until it is popped and dropped.
type expiryQueue []*memoryWindow

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].resetAt().Before(q[j].resetAt()) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *expiryQueue) Push(x any)        { *q = append(*q, x.(*memoryWindow)) }
func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return w
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	queue   expiryQueue
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*memoryWindow),
	}
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || w.expired(now) {
		w = &memoryWindow{key: key, start: now, length: window}
		s.windows[key] = w
		heap.Push(&s.queue, w)
	}

	allowed := w.count < limit
	if allowed {
		w.count++
	}
	return Window{Start: w.start, Count: w.count}, allowed, nil
}

// Sweep implements Store. It inspects at most max queued windows, soonest reset
// first, and stops at the first one still live. A non-positive max sweeps every
// expired window.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, max int) (int, error) {
	removed, _ := s.sweep(now, max)
	return removed, nil
}

func (s *MemoryStore) sweep(now time.Time, max int) (removed, inspected int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queue.Len() > 0 && (max <= 0 || inspected < max) {
		w := s.queue[0]
		inspected++
		if !w.expired(now) {
			break
		}
		heap.Pop(&s.queue)
		if s.windows[w.key] == w {
			delete(s.windows, w.key)
			removed++
		}
	}
	return removed, inspected
}

// Len returns the number of tracked windows, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
