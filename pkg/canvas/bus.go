package canvas

import (
	"sort"
	"sync"
)

// EventName identifies an editor bus signal
type EventName string

const (
	StreamCanvasContent     EventName = "streamCanvasContent"
	StreamEditCanvasContent EventName = "streamEditCanvasContent"
	ExitFullScreen          EventName = "exitFullScreen"
)

// StreamPayload is the incremental document content sent to the editor
type StreamPayload struct {
	CanvasID string `json:"canvasId"`
	IsFirst  bool   `json:"isFirst"`
	Content  string `json:"content"`
}

// Listener receives bus events. payload is nil for ExitFullScreen.
type Listener func(name EventName, payload *StreamPayload)

// Bus is a small synchronous event bus for editor signals
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventName]map[int]Listener
	next      int
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{listeners: make(map[EventName]map[int]Listener)}
}

// On registers l for name and returns a function that removes it. Calling
// the returned function more than once is a no-op.
func (b *Bus) On(name EventName, l Listener) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.listeners[name] == nil {
		b.listeners[name] = make(map[int]Listener)
	}
	b.listeners[name][id] = l
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners[name], id)
		b.mu.Unlock()
	}
}

// Emit calls every listener of name on the caller's goroutine
func (b *Bus) Emit(name EventName, payload *StreamPayload) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners[name]))
	for id := range b.listeners[name] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, b.listeners[name][id])
	}
	b.mu.RUnlock()

	for _, l := range ls {
		l(name, payload)
	}
}

// EditorState tracks whether the AI is currently writing into the document
type EditorState struct {
	mu        sync.Mutex
	aiEditing bool
}

// SetAIEditing updates the flag and reports whether it changed
func (e *EditorState) SetAIEditing(v bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aiEditing == v {
		return false
	}
	e.aiEditing = v
	return true
}

// IsAIEditing returns the current flag
func (e *EditorState) IsAIEditing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aiEditing
}

// Track updates the flag from the streamed content so far: an open canvas
// region means editing, a closed one means done.
func (e *EditorState) Track(content string) {
	if !HasOpenTag(content) {
		return
	}
	e.SetAIEditing(!HasCloseTag(content))
}
