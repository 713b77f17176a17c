// Package testutil provides a scripted transport for exercising the
// orchestrator and the runner without a server.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/transport"
)

// FakeTransport implements transport.Transport. With a script it plays the
// events back on a goroutine; in manual mode the test drives the handler
// through Emit, Complete and Fail.
type FakeTransport struct {
	mu sync.Mutex

	name         string
	script       []skill.Event
	manual       bool
	chunkDelay   time.Duration
	failAfter    int    // fail after N events (0 = no failure)
	errorMessage string // custom error message
	openErr      error

	opened   []skill.InvokeRequest
	handlers []stream.Handler
	cancels  map[*transport.Handle]context.CancelFunc
	closed   int
}

// NewFakeTransport creates a transport that plays script on every Open.
// Without events it runs in manual mode.
func NewFakeTransport(script ...skill.Event) *FakeTransport {
	return &FakeTransport{
		name:    "fake",
		script:  script,
		manual:  len(script) == 0,
		cancels: make(map[*transport.Handle]context.CancelFunc),
	}
}

// SetChunkDelay sets the delay between scripted events
func (f *FakeTransport) SetChunkDelay(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkDelay = delay
}

// SetFailAfter configures the transport to fail after N events
func (f *FakeTransport) SetFailAfter(events int, errorMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = events
	f.errorMessage = errorMessage
}

// SetOpenError makes Open fail with err
func (f *FakeTransport) SetOpenError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

func (f *FakeTransport) Name() string {
	return f.name
}

// Open records the task and starts playback
func (f *FakeTransport) Open(ctx context.Context, task skill.InvokeRequest, h stream.Handler) (*transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openErr != nil {
		return nil, f.openErr
	}

	playCtx, cancel := context.WithCancel(ctx)
	handle := transport.NewHandle(uuid.NewString(), cancel)
	f.opened = append(f.opened, task)
	f.handlers = append(f.handlers, h)
	f.cancels[handle] = cancel

	if !f.manual {
		go f.play(playCtx, h, append([]skill.Event(nil), f.script...), f.chunkDelay, f.failAfter, f.errorMessage)
	}
	return handle, nil
}

func (f *FakeTransport) play(ctx context.Context, h stream.Handler, script []skill.Event, delay time.Duration, failAfter int, errMsg string) {
	h.OnStart()
	for i, ev := range script {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				h.OnError(ctx.Err())
				return
			}
		}
		if ctx.Err() != nil {
			h.OnError(ctx.Err())
			return
		}
		if failAfter > 0 && i >= failAfter {
			if errMsg == "" {
				errMsg = "simulated streaming error"
			}
			h.OnError(errors.New(errMsg))
			return
		}
		if stream.Dispatch(h, ev) {
			return
		}
	}
	h.OnCompleted()
}

// Close cancels playback
func (f *FakeTransport) Close(handle *transport.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	if cancel, ok := f.cancels[handle]; ok {
		cancel()
		delete(f.cancels, handle)
	}
	return nil
}

// Handler returns the handler of the latest Open
func (f *FakeTransport) Handler() stream.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handlers) == 0 {
		return stream.HandlerFunc{}
	}
	return f.handlers[len(f.handlers)-1]
}

// HandlerAt returns the handler of the i-th Open
func (f *FakeTransport) HandlerAt(i int) stream.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[i]
}

// Emit delivers ev to the latest handler on the caller's goroutine
func (f *FakeTransport) Emit(events ...skill.Event) {
	h := f.Handler()
	for _, ev := range events {
		stream.Dispatch(h, ev)
	}
}

// Complete delivers the completed event to the latest handler
func (f *FakeTransport) Complete() {
	f.Handler().OnCompleted()
}

// Fail delivers err to the latest handler
func (f *FakeTransport) Fail(err error) {
	f.Handler().OnError(err)
}

// Opened returns every task passed to Open
func (f *FakeTransport) Opened() []skill.InvokeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]skill.InvokeRequest(nil), f.opened...)
}

// CloseCount returns how many times Close was called
func (f *FakeTransport) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// StreamEvents splits response into skill-stream events of chunkSize bytes
func StreamEvents(meta skill.Meta, spanID, response string, chunkSize int) []skill.Event {
	if chunkSize <= 0 {
		chunkSize = 5
	}
	var events []skill.Event
	for i := 0; i < len(response); i += chunkSize {
		end := i + chunkSize
		if end > len(response) {
			end = len(response)
		}
		events = append(events, skill.Event{
			Type:      skill.EventSkillStream,
			SkillMeta: meta,
			SpanID:    spanID,
			Content:   response[i:end],
		})
	}
	return events
}

// Conversation builds a full scripted skill run: start, the chunked
// response and end
func Conversation(meta skill.Meta, spanID, response string, chunkSize int) []skill.Event {
	events := []skill.Event{{Type: skill.EventSkillStart, SkillMeta: meta, SpanID: spanID}}
	events = append(events, StreamEvents(meta, spanID, response, chunkSize)...)
	return append(events, skill.Event{Type: skill.EventSkillEnd, SkillMeta: meta, SpanID: spanID})
}

var _ transport.Transport = (*FakeTransport)(nil)
