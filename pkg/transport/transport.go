// Package transport delivers skill invocations to the server and streams
// the resulting events back. Two variants exist behind one interface: HTTP
// server-sent events (web) and a long-lived message port (extension).
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
)

var (
	ErrPortClosed     = errors.New("message port closed")
	ErrUnknownRuntime = errors.New("unknown runtime")
)

// Transport opens one streaming skill invocation at a time per handle
type Transport interface {
	// Name returns the runtime this transport serves
	Name() string

	// Open sends task and streams its events to h on a background goroutine.
	// Failures after Open returns are reported through h.OnError.
	Open(ctx context.Context, task skill.InvokeRequest, h stream.Handler) (*Handle, error)

	// Close cancels the invocation behind handle. Closing twice is a no-op.
	Close(handle *Handle) error
}

// Handle identifies one open invocation
type Handle struct {
	ID string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closed bool
}

// NewHandle creates a handle whose Close hook is cancel
func NewHandle(id string, cancel context.CancelFunc) *Handle {
	return &Handle{
		ID:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Done is closed once the invocation has finished or was closed
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Closed reports whether Close was called on the handle
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// markClosed flags the handle as closed and reports whether this call did it
func (h *Handle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}

// finish closes Done and reports whether this call did it
func (h *Handle) finish() bool {
	first := false
	h.once.Do(func() {
		close(h.done)
		first = true
	})
	return first
}

// deliver runs fn unless the handle was closed, so events of a cancelled
// invocation never reach the handler
func (h *Handle) deliver(fn func()) bool {
	if h.Closed() {
		return false
	}
	fn()
	return true
}
