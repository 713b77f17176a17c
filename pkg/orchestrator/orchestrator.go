// Package orchestrator owns the lifecycle of a skill invocation: it starts
// the stream, applies every event to the message store and the editor
// collaborators, throttles re-renders and handles cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/killallgit/skillstream/pkg/canvas"
	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/search"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
	"github.com/killallgit/skillstream/pkg/transport"
)

// ErrNoSession is returned by Wait when nothing was started
var ErrNoSession = errors.New("no active session")

const archiveTimeout = 5 * time.Second

// MessageState is the reply bookkeeping the UI reads to show spinners
type MessageState struct {
	Pending           bool
	PendingFirstToken bool
	Error             bool
	NowInvokeSkillID  string
	PendingReplyMsgID string
}

// ChatState is the chat-level state touched while streaming
type ChatState struct {
	InputText            string
	IntentMatcher        *canvas.IntentResult
	IsFirstStreamContent bool
	MessageIntentContext map[string]any
}

// Orchestrator runs one StreamSession at a time against a transport. All
// handler bodies run under one lock, in arrival order.
type Orchestrator struct {
	mu sync.Mutex

	transport transport.Transport
	store     *chat.Store
	throttle  *stream.Throttler

	notifier Notifier
	archiver Archiver
	catalog  SkillCatalog
	bus      *canvas.Bus
	editor   *canvas.EditorState
	intents  IntentHandler
	search   *search.Store

	flushInterval time.Duration

	nextID    uint64
	session   *Session
	msgState  MessageState
	chatState ChatState

	// streamed reply text before citation rewriting, keyed by message id
	raw map[string]string
}

// New creates an orchestrator that streams through t into store
func New(t transport.Transport, store *chat.Store, options ...Option) (*Orchestrator, error) {
	if t == nil {
		return nil, fmt.Errorf("transport must not be nil")
	}
	if store == nil {
		store = chat.NewStore()
	}

	o := &Orchestrator{
		transport:     t,
		store:         store,
		flushInterval: stream.DefaultFlushInterval,
		chatState:     ChatState{IsFirstStreamContent: true},
		raw:           make(map[string]string),
	}

	for _, opt := range options {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if o.bus == nil {
		o.bus = canvas.NewBus()
	}
	if o.editor == nil {
		o.editor = &canvas.EditorState{}
	}
	if o.intents == nil {
		o.intents = canvas.NewIntentStore(nil)
	}
	if o.search == nil {
		o.search = search.NewStore()
	}
	o.throttle = stream.NewThrottler(o.flushInterval, o.store.Commit)

	logger.Debug("Orchestrator initialized with %s transport, flush interval %s", t.Name(), o.flushInterval)
	return o, nil
}

// Start tears down any running session, appends the question and a pending
// reply placeholder in one commit, and opens the transport.
func (o *Orchestrator) Start(ctx context.Context, task skill.InvokeRequest) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev := o.session; prev != nil && !prev.terminal() {
		logger.Info("Superseding session %d", prev.ID)
		o.shutdownLocked(prev, stream.StateAborted)
	}

	o.nextID++
	sess := newSession(ctx, o.nextID, task)
	o.session = sess

	questionMeta, replyMeta := o.resolveSkill(task)
	question := chat.NewQuestionMessage(task.Input.Query, questionMeta, task.Context)
	reply := chat.NewReplyMessage(replyMeta, "", true)

	o.msgState = MessageState{
		Pending:           true,
		PendingFirstToken: true,
		NowInvokeSkillID:  task.SkillID,
		PendingReplyMsgID: reply.MsgID,
	}
	o.chatState.IsFirstStreamContent = true
	o.chatState.MessageIntentContext = task.Context
	o.raw = make(map[string]string)

	o.throttle.Cancel()
	o.store.Append(question, reply)
	sess.setState(stream.StateStarting)
	logger.Info("Starting session %d: skill=%q query=%q", sess.ID, task.SkillID, task.Input.Query)

	handle, err := o.transport.Open(sess.ctx, task, o.handlerFor(sess))
	if err != nil {
		err = fmt.Errorf("open %s transport: %w", o.transport.Name(), err)
		o.failLocked(sess, err)
		return sess, err
	}
	sess.handle = handle
	return sess, nil
}

// resolveSkill returns the skill meta of the question and of the reply
// placeholder. Without a selected skill the reply uses the scheduler.
func (o *Orchestrator) resolveSkill(task skill.InvokeRequest) (skill.Meta, skill.Meta) {
	if task.SkillID == "" {
		return skill.Meta{}, skill.SchedulerMeta
	}
	if o.catalog != nil {
		if meta, ok := o.catalog.Lookup(task.SkillID); ok {
			return meta, meta
		}
	}
	meta := skill.Meta{SkillID: task.SkillID, TplName: task.TplName}
	return meta, meta
}

// Shutdown aborts the current session. It is idempotent and safe to call
// when nothing is running.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.session
	if sess == nil || sess.terminal() {
		return
	}
	logger.Info("Shutting down session %d", sess.ID)
	o.shutdownLocked(sess, stream.StateAborted)
}

// shutdownLocked cancels the transport, marks the session aborted so late
// errors are suppressed, and unfreezes the UI.
func (o *Orchestrator) shutdownLocked(sess *Session, final stream.State) {
	o.throttle.Cancel()
	sess.markAborted()

	if sess.handle != nil {
		if err := o.transport.Close(sess.handle); err != nil {
			logger.Warn("Failed to close %s transport for session %d: %v", o.transport.Name(), sess.ID, err)
		}
	}

	o.store.UpdateLast(func(m *chat.Message) {
		m.Pending = false
	})
	o.store.Commit()

	o.msgState = MessageState{}
	sess.setState(final)
	sess.release()
}

// failLocked surfaces err and ends the session as errored
func (o *Orchestrator) failLocked(sess *Session, err error) {
	logger.Error("Session %d failed: %v", sess.ID, err)
	sess.fail(err)
	if o.notifier != nil {
		o.notifier.Notify(err)
	}
	o.shutdownLocked(sess, stream.StateErrored)
	o.msgState.Error = true
}

// commitLocked publishes the store now and drops any pending throttled
// commit, which would only repeat this one
func (o *Orchestrator) commitLocked() {
	o.throttle.Cancel()
	o.store.Commit()
}

// Wait blocks until the current session reaches a terminal state
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}
	select {
	case <-sess.Done():
		return sess.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns the current session, if any
func (o *Orchestrator) Session() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Store returns the message store
func (o *Orchestrator) Store() *chat.Store {
	return o.store
}

// Search returns the multi-step search store
func (o *Orchestrator) Search() *search.Store {
	return o.search
}

// Bus returns the editor event bus
func (o *Orchestrator) Bus() *canvas.Bus {
	return o.bus
}

// Editor returns the AI-editing flag holder
func (o *Orchestrator) Editor() *canvas.EditorState {
	return o.editor
}

// MessageState returns a copy of the reply bookkeeping
func (o *Orchestrator) MessageState() MessageState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msgState
}

// ChatState returns a copy of the chat-level state
func (o *Orchestrator) ChatState() ChatState {
	o.mu.Lock()
	defer o.mu.Unlock()
	cs := o.chatState
	if cs.IntentMatcher != nil {
		r := *cs.IntentMatcher
		cs.IntentMatcher = &r
	}
	return cs
}

// SetInputText records the text currently typed by the user
func (o *Orchestrator) SetInputText(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chatState.InputText = text
}
