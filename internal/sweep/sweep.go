// Package sweep runs periodic maintenance work such as purging expired
// cache entries and rate-limit windows.
package sweep

import (
	"sync"
	"time"
)

// RunLoop calls fn every interval until stop is closed.
// The first call happens one interval after start. A non-positive interval disables the loop.
func RunLoop(stop <-chan struct{}, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-stop:
			return
		}
	}
}

// Group starts loops and stops them together.
type Group struct {
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{stop: make(chan struct{})}
}

// Go starts fn on its own loop.
func (g *Group) Go(interval time.Duration, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		RunLoop(g.stop, interval, fn)
	}()
}

// Stop signals every loop and waits for them to return. It is safe to call more than once.
func (g *Group) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	g.wg.Wait()
}
