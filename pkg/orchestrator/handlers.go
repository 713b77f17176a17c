package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/killallgit/skillstream/pkg/canvas"
	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/search"
	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/killallgit/skillstream/pkg/stream"
)

// handlerFor binds the event handlers to sess. Events are dropped once
// sess is superseded, aborted or finished.
func (o *Orchestrator) handlerFor(sess *Session) stream.Handler {
	return stream.HandlerFunc{
		StartFunc:          func() { o.guard(sess, "start", o.onStart) },
		SkillStartFunc:     func(ev skill.Event) { o.guard(sess, "skill-start", func() { o.onSkillStart(sess, ev) }) },
		SkillLogFunc:       func(ev skill.Event) { o.guard(sess, "skill-log", func() { o.onSkillLog(ev) }) },
		SkillStreamFunc:    func(ev skill.Event) { o.guard(sess, "skill-stream", func() { o.onSkillStream(ev) }) },
		StructuredDataFunc: func(ev skill.Event) { o.guard(sess, "skill-structuredData", func() { o.onSkillStructuredData(ev) }) },
		UsageFunc:          func(ev skill.Event) { o.guard(sess, "usage", func() { o.onSkillUsage(ev) }) },
		SkillEndFunc:       func(ev skill.Event) { o.guard(sess, "skill-end", func() { o.onSkillEnd(ev) }) },
		CompletedFunc:      func() { o.onCompleted(sess) },
		ErrorFunc:          func(err error) { o.onError(sess, err) },
	}
}

func (o *Orchestrator) guard(sess *Session, name string, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.liveLocked(sess) {
		logger.Debug("Dropping %s event of stale session %d", name, sess.ID)
		return
	}
	fn()
}

func (o *Orchestrator) liveLocked(sess *Session) bool {
	return o.session == sess && !sess.Aborted() && !sess.terminal()
}

func (o *Orchestrator) onStart() {
	o.msgState.Pending = true
}

// onSkillStart reuses the last message when it is a reply of the same skill
// (or the untouched placeholder), so repeated starts show one message
func (o *Orchestrator) onSkillStart(sess *Session, ev skill.Event) {
	last, ok := o.store.Last()
	if ok && o.coalesces(last, ev) {
		o.store.UpdateLast(func(m *chat.Message) {
			m.SpanID = ev.SpanID
			if !ev.SkillMeta.IsZero() {
				m.SkillMeta = ev.SkillMeta
			}
		})
		o.commitLocked()
	} else {
		reply := chat.NewReplyMessage(ev.SkillMeta, ev.SpanID, true)
		o.msgState.PendingReplyMsgID = reply.MsgID
		o.msgState.Pending = true
		o.msgState.PendingFirstToken = true
		o.msgState.NowInvokeSkillID = ev.SkillMeta.SkillID

		o.throttle.Cancel()
		o.store.Append(reply)
	}

	o.chatState.IsFirstStreamContent = true
	sess.setState(stream.StateStreaming)
}

func (o *Orchestrator) coalesces(last chat.Message, ev skill.Event) bool {
	if !last.IsAI() {
		return false
	}
	if last.SkillMeta.SkillID == ev.SkillMeta.SkillID {
		return true
	}
	return last.MsgID == o.msgState.PendingReplyMsgID && last.SpanID == "" && last.IsEmpty()
}

func (o *Orchestrator) onSkillLog(ev skill.Event) {
	id, ok := o.store.FindLastRelated(ev)
	if !ok {
		return
	}
	o.store.Update(id, func(m *chat.Message) {
		m.Logs = append(m.Logs, ev.Content)
	})
	o.commitLocked()
}

func (o *Orchestrator) onSkillUsage(ev skill.Event) {
	id, ok := o.store.FindLastRelated(ev)
	if !ok {
		return
	}
	usage := skill.DecodeTokenUsage(ev.Content)
	if len(usage) == 0 {
		return
	}
	o.store.Update(id, func(m *chat.Message) {
		m.TokenUsage = usage
	})
	o.commitLocked()
}

// onSkillStream appends the chunk, forwards the new canvas text to the
// editor and schedules a throttled commit
func (o *Orchestrator) onSkillStream(ev skill.Event) {
	if ev.Content == "" {
		return
	}
	id, ok := o.store.FindLastRelated(ev)
	if !ok {
		return
	}

	var (
		content string
		delta   string
		intent  canvas.IntentResult
		matched bool
	)
	o.store.Update(id, func(m *chat.Message) {
		prev, ok := o.raw[id]
		if !ok {
			prev = m.Content
		}
		cur := prev + ev.Content
		o.raw[id] = cur
		o.editor.Track(cur)
		delta = canvas.Delta(prev, cur)
		m.Content = chat.NormalizeCitations(m.Content + ev.Content)
		content = m.Content
		intent, matched = canvas.ParseIntent(m.StructuredData[skill.KeyIntentMatcher])
	})
	o.throttle.Trigger()

	if o.msgState.PendingFirstToken && strings.TrimSpace(content) != "" {
		o.msgState.PendingFirstToken = false
	}

	if !matched {
		return
	}
	switch {
	case intent.Type.StreamsToEditor() && delta != "":
		name := canvas.StreamCanvasContent
		if intent.Type == canvas.IntentEditDocument {
			name = canvas.StreamEditCanvasContent
		}
		o.bus.Emit(name, &canvas.StreamPayload{
			CanvasID: intent.CanvasID,
			IsFirst:  o.chatState.IsFirstStreamContent,
			Content:  delta,
		})
		if o.chatState.IsFirstStreamContent {
			o.chatState.IsFirstStreamContent = false
			o.intents.BeforeStream()
			o.bus.Emit(canvas.ExitFullScreen, nil)
		}
	case intent.Type == canvas.IntentOther:
		if o.chatState.IsFirstStreamContent {
			o.chatState.IsFirstStreamContent = false
			o.intents.BeforeStream()
		}
	}
}

// onSkillStructuredData merges the payload into the related message and
// feeds the intent and search collaborators
func (o *Orchestrator) onSkillStructuredData(ev skill.Event) {
	id, ok := o.store.FindLastRelated(ev)
	if !ok {
		return
	}

	data, err := skill.DecodeStructuredData(ev)
	if err != nil {
		if !errors.Is(err, skill.ErrUnimplementedKey) {
			logger.Debug("Dropping structured data %q: %v", ev.StructuredDataKey, err)
		}
		return
	}

	key := ev.StructuredDataKey
	var merged any
	o.store.Update(id, func(m *chat.Message) {
		if m.StructuredData == nil {
			m.StructuredData = make(map[string]any)
		}
		existing, exists := m.StructuredData[key]
		m.StructuredData[key] = chat.MergeStructuredData(existing, exists, data)
		merged = m.StructuredData[key]
	})
	o.commitLocked()

	switch key {
	case skill.KeyIntentMatcher:
		if r, ok := canvas.ParseIntent(merged); ok {
			o.intents.SetIntentResult(r)
			o.chatState.IntentMatcher = &r
			o.chatState.InputText = ""
			logger.Debug("Matched intent %s for canvas %q", r.Type, r.CanvasID)
		}
	case skill.KeyMultiLingualSearchStepUpdate:
		if step, ok := search.ParseStep(data); ok {
			o.search.Apply(step)
		}
	case skill.KeyMultiLingualSearchResult:
		if results, ok := search.ParseResults(data); ok {
			o.search.SetResults(results)
		}
	}
}

func (o *Orchestrator) onSkillEnd(ev skill.Event) {
	id, ok := o.store.FindLastRelated(ev)
	if !ok {
		return
	}
	o.store.Update(id, func(m *chat.Message) {
		m.Pending = false
	})
	o.commitLocked()
	o.chatState.MessageIntentContext = nil
}

// onCompleted finalises the session and archives the exchange outside the lock
func (o *Orchestrator) onCompleted(sess *Session) {
	o.mu.Lock()
	if !o.liveLocked(sess) {
		o.mu.Unlock()
		logger.Debug("Dropping completed event of stale session %d", sess.ID)
		return
	}

	o.msgState.Pending = false
	o.store.UpdateAll(func(m *chat.Message) {
		m.Pending = false
	})
	o.commitLocked()
	sess.setState(stream.StateCompleted)
	logger.Info("Session %d completed", sess.ID)

	archiver := o.archiver
	var messages []chat.Message
	if archiver != nil {
		messages = o.store.Messages()
	}
	o.mu.Unlock()

	if archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		if err := archiver.Archive(ctx, sess.Task.ConvID, messages); err != nil {
			logger.Warn("Failed to archive session %d: %v", sess.ID, err)
		}
		cancel()
	}
	sess.release()
}

// onError ends the session as errored unless it was aborted, in which case
// the error is the expected echo of the cancellation and is not surfaced
func (o *Orchestrator) onError(sess *Session, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != sess || sess.terminal() {
		logger.Debug("Dropping error of stale session %d: %v", sess.ID, err)
		return
	}
	if sess.Aborted() {
		logger.Info("Session %d aborted, suppressing error: %v", sess.ID, err)
		o.shutdownLocked(sess, stream.StateAborted)
		return
	}
	o.failLocked(sess, err)
}
