package llmclient

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// breaker opens after failureThreshold consecutive failures, rejects calls for
// cooldown, then lets trial calls through until successThreshold succeed.
// Any failure during the trial reopens it.
type breaker struct {
	mu               sync.Mutex
	state            breakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	now              func() time.Time
}

func newBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *breaker {
	return &breaker{
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		cooldown:         cooldown,
		now:              time.Now,
	}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
		b.successes = 0
	}
	return true
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == stateHalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = stateClosed
		}
	}
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == stateHalfOpen || (b.state == stateClosed && b.failures >= b.failureThreshold) {
		b.state = stateOpen
		b.openedAt = b.now()
		b.successes = 0
	}
}

func (b *breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
