package countdown

import (
	"sync"
	"time"
)

// TickSource delivers ticks to a single handler, one at a time. The handler
// returns false when it wants no further ticks.
type TickSource interface {
	Start(fn func() bool)
	Stop()
}

// WallClock ticks once per interval of real time.
type WallClock struct {
	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewWallClock returns a tick source that fires once per second.
func NewWallClock() TickSource {
	return NewWallClockEvery(time.Second)
}

// NewWallClockEvery returns a wall clock with a custom interval.
func NewWallClockEvery(interval time.Duration) *WallClock {
	return &WallClock{
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the ticking goroutine.
func (c *WallClock) Start(fn func() bool) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if !fn() {
					return
				}
			}
		}
	}()
}

// Stop ends the ticking goroutine. Safe to call more than once.
func (c *WallClock) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// VirtualClock is a tick source driven by the caller. Ticks are delivered
// synchronously on the goroutine that calls Advance.
type VirtualClock struct {
	mu      sync.Mutex
	fn      func() bool
	stopped bool
}

// NewVirtualClock returns a stopped virtual clock.
func NewVirtualClock() *VirtualClock {
	return &VirtualClock{}
}

// Start registers the tick handler.
func (c *VirtualClock) Start(fn func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fn = fn
	c.stopped = false
}

// Stop prevents any further ticks from being delivered.
func (c *VirtualClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// Advance delivers up to n ticks and reports how many were delivered.
func (c *VirtualClock) Advance(n int) int {
	for i := 0; i < n; i++ {
		c.mu.Lock()
		fn, stopped := c.fn, c.stopped
		c.mu.Unlock()

		if fn == nil || stopped {
			return i
		}
		if !fn() {
			c.Stop()
			return i + 1
		}
	}
	return n
}
