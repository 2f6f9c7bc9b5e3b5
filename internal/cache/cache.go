// Package cache provides the in-process request cache used by read paths.
//
// A Store memoizes expensive fetches (database reads, AI completions) behind a
// per-entry TTL, bounds its size with LRU eviction, and supports bulk
// invalidation by tag. Stores are constructed explicitly and passed to the
// handlers that use them; nothing here is a process-wide singleton.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds a store when Options.MaxEntries is not set.
const DefaultMaxEntries = 1000

// Clock supplies the current time. Tests substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a Store.
type Options struct {
	// Name labels the store's metrics (e.g. "documents", "assist").
	Name string

	// MaxEntries is the LRU bound (default: DefaultMaxEntries).
	MaxEntries int

	// DefaultTTL applies when SetOptions.TTL is not positive (default: session preset).
	DefaultTTL time.Duration

	// SingleFlight makes concurrent GetOrFetch misses for one key share a single fetch.
	SingleFlight bool

	// Clock defaults to the system clock.
	Clock Clock
}

// SetOptions controls how a single value is stored.
type SetOptions struct {
	TTL  time.Duration
	Tags []string
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
	tags      []string
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Store is a TTL + LRU cache with a tag index. It is safe for concurrent use.
type Store[V any] struct {
	mu     sync.Mutex
	lru    *simplelru.LRU[string, *entry[V]]
	tags   map[string]map[string]struct{}
	clock  Clock
	ttl    time.Duration
	single bool
	flight singleflight.Group
	// epoch advances on every invalidation; fetches that straddle one are not stored.
	epoch uint64
	m      storeMetrics
}

// New creates an empty store.
func New[V any](opts Options) *Store[V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = PresetSession.TTL()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	s := &Store[V]{
		tags:   make(map[string]map[string]struct{}),
		clock:  opts.Clock,
		ttl:    opts.DefaultTTL,
		single: opts.SingleFlight,
		m:      newStoreMetrics(opts.Name),
	}
	// NewLRU only fails on a non-positive size, which was normalised above.
	s.lru, _ = simplelru.NewLRU[string, *entry[V]](opts.MaxEntries, s.onEvict)
	return s
}

// onEvict runs for every removal path while s.mu is held.
func (s *Store[V]) onEvict(key string, e *entry[V]) {
	s.unindex(key, e.tags)
}

// Get returns the live value for key. An expired entry is removed and reported absent.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	v, ok := s.getLocked(key)
	s.mu.Unlock()

	if ok {
		s.m.hits.Inc()
	} else {
		s.m.misses.Inc()
	}
	return v, ok
}

func (s *Store[V]) getLocked(key string) (V, bool) {
	var zero V
	e, ok := s.lru.Peek(key)
	if !ok {
		return zero, false
	}
	if e.expired(s.clock.Now()) {
		s.lru.Remove(key)
		s.m.expired.Inc()
		return zero, false
	}
	s.lru.Get(key) // mark as recently used
	return e.value, true
}

// Has reports whether key holds a live entry without changing its recency.
func (s *Store[V]) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(key)
	if !ok {
		return false
	}
	if e.expired(s.clock.Now()) {
		s.lru.Remove(key)
		s.m.expired.Inc()
		return false
	}
	return true
}

// Set stores value under key, restarting its TTL and replacing its tags.
func (s *Store[V]) Set(key string, value V, opts SetOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, opts)
}

// setIfEpoch stores value only if no invalidation happened since epoch was read.
func (s *Store[V]) setIfEpoch(key string, value V, opts SetOptions, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.setLocked(key, value, opts)
}

func (s *Store[V]) setLocked(key string, value V, opts SetOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	tags := normalizeTags(opts.Tags)

	// Add on an existing key does not fire the evict callback.
	if old, ok := s.lru.Peek(key); ok {
		s.unindex(key, old.tags)
	}

	e := &entry[V]{
		value:     value,
		createdAt: s.clock.Now(),
		ttl:       ttl,
		tags:      tags,
	}
	if evicted := s.lru.Add(key, e); evicted {
		s.m.capacity.Inc()
	}
	s.index(key, tags)
}

// GetOrFetch returns the cached value for key, or calls fetch and caches its result.
// A fetch error is returned unchanged and nothing is cached. A value fetched while
// the store was invalidated is returned but not cached.
//
// With single-flight the shared fetch ignores the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done.
func (s *Store[V]) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (V, error), opts SetOptions) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	if !s.single {
		return s.fetchAndStore(ctx, key, fetch, opts)
	}

	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		// Another flight may have filled the key between our miss and this call.
		s.mu.Lock()
		v, ok := s.getLocked(key)
		s.mu.Unlock()
		if ok {
			return v, nil
		}
		return s.fetchAndStore(shared, key, fetch, opts)
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

func (s *Store[V]) fetchAndStore(ctx context.Context, key string, fetch func(context.Context) (V, error), opts SetOptions) (V, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	s.setIfEpoch(key, v, opts, epoch)
	return v, nil
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.lru.Remove(key) {
		s.m.deleted.Inc()
		return true
	}
	return false
}

// InvalidateByTag removes every entry carrying tag and returns how many were removed.
func (s *Store[V]) InvalidateByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Advance even for an unindexed tag; an in-flight fetch may be about to add it.
	s.epoch++
	set, ok := s.tags[tag]
	if !ok {
		return 0
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	removed := 0
	for _, k := range keys {
		if s.lru.Remove(k) {
			removed++
		}
	}
	delete(s.tags, tag)
	s.m.invalidated.Add(float64(removed))
	return removed
}

// Clear empties the store.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.lru.Purge()
	s.tags = make(map[string]map[string]struct{})
}

// Sweep removes up to max expired entries, oldest first, and returns the count.
// A non-positive max sweeps the whole store.
func (s *Store[V]) Sweep(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for _, k := range s.lru.Keys() {
		if max > 0 && removed >= max {
			break
		}
		e, ok := s.lru.Peek(k)
		if !ok || !e.expired(now) {
			continue
		}
		s.lru.Remove(k)
		removed++
	}
	s.m.expired.Add(float64(removed))
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Tags returns the indexed tags in sorted order.
func (s *Store[V]) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Store[V]) index(key string, tags []string) {
	for _, t := range tags {
		set, ok := s.tags[t]
		if !ok {
			set = make(map[string]struct{})
			s.tags[t] = set
		}
		set[key] = struct{}{}
	}
}

func (s *Store[V]) unindex(key string, tags []string) {
	for _, t := range tags {
		set, ok := s.tags[t]
		if !ok {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(s.tags, t)
		}
	}
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type storeMetrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	capacity    prometheus.Counter
	expired     prometheus.Counter
	invalidated prometheus.Counter
	deleted     prometheus.Counter
}

func newStoreMetrics(name string) storeMetrics {
	return storeMetrics{
		hits:        cacheHits.WithLabelValues(name),
		misses:      cacheMisses.WithLabelValues(name),
		capacity:    cacheEvictions.WithLabelValues(name, "capacity"),
		expired:     cacheEvictions.WithLabelValues(name, "expired"),
		invalidated: cacheEvictions.WithLabelValues(name, "invalidated"),
		deleted:     cacheEvictions.WithLabelValues(name, "deleted"),
	}
}
