package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/transport"
)

var (
	// ErrAborted is the cancellation cause of a session stopped by Shutdown
	ErrAborted = errors.New("session aborted")

	errSessionFinished = errors.New("session finished")
)

// Session is one in-flight skill invocation. Its ID is the generation
// counter used to recognise events from superseded sessions.
type Session struct {
	ID   uint64
	Task skill.InvokeRequest

	ctx    context.Context
	cancel context.CancelCauseFunc
	handle *transport.Handle

	mu      sync.Mutex
	state   stream.State
	aborted bool
	err     error

	done     chan struct{}
	doneOnce sync.Once
}

func newSession(ctx context.Context, id uint64, task skill.InvokeRequest) *Session {
	sctx, cancel := context.WithCancelCause(ctx)
	return &Session{
		ID:     id,
		Task:   task,
		ctx:    sctx,
		cancel: cancel,
		state:  stream.StateIdle,
		done:   make(chan struct{}),
	}
}

// Context is cancelled when the session ends
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current lifecycle state
func (s *Session) State() stream.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that ended an errored session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Aborted is the single cancellation token of the session: true once
// Shutdown ran or the caller's context was cancelled.
func (s *Session) Aborted() bool {
	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return true
	}
	return s.ctx.Err() != nil && !errors.Is(context.Cause(s.ctx), errSessionFinished)
}

// Done is closed once the session reached a terminal state
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setState(next stream.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == next {
		return true
	}
	if !s.state.CanTransition(next) {
		return false
	}
	s.state = next
	return true
}

func (s *Session) markAborted() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	s.cancel(ErrAborted)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) terminal() bool {
	return s.State().IsTerminal()
}

// release frees the session context and wakes Wait
func (s *Session) release() {
	s.cancel(errSessionFinished)
	s.doneOnce.Do(func() { close(s.done) })
}
