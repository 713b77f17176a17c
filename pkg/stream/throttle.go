package stream

import (
	"sync"
	"time"
)

// DefaultFlushInterval bounds how often streamed content is committed
const DefaultFlushInterval = 50 * time.Millisecond

// Throttler rate-limits calls to fn. The first Trigger after a quiet period
// runs fn immediately; triggers inside the interval are collapsed into one
// trailing call at the end of the interval.
type Throttler struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()

	last    time.Time
	timer   *time.Timer
	pending bool
	gen     uint64
}

// NewThrottler creates a throttler for fn
func NewThrottler(interval time.Duration, fn func()) *Throttler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Throttler{interval: interval, fn: fn}
}

// Trigger requests a call to fn
func (t *Throttler) Trigger() {
	t.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(t.last)
	if t.timer == nil && elapsed >= t.interval {
		t.last = now
		t.mu.Unlock()
		t.fn()
		return
	}

	t.pending = true
	if t.timer == nil {
		gen := t.gen
		t.timer = time.AfterFunc(t.interval-elapsed, func() { t.fire(gen) })
	}
	t.mu.Unlock()
}

func (t *Throttler) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	if !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.last = time.Now()
	t.mu.Unlock()
	t.fn()
}

// Flush runs a pending trailing call now. It reports whether one was pending.
func (t *Throttler) Flush() bool {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return false
	}
	t.stopLocked()
	t.last = time.Now()
	t.mu.Unlock()
	t.fn()
	return true
}

// Cancel drops any pending trailing call. The next Trigger runs immediately.
func (t *Throttler) Cancel() {
	t.mu.Lock()
	t.stopLocked()
	t.last = time.Time{}
	t.mu.Unlock()
}

// Pending reports whether a trailing call is scheduled
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Throttler) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
}
