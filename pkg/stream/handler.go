package stream

import (
	"github.com/killallgit/skillstream/pkg/skill"
)

// Handler receives the decoded events of one skill invocation. Transports
// call it from a single reader goroutine, in arrival order.
type Handler interface {
	// OnStart is called once the transport has accepted the task
	OnStart()

	OnSkillStart(ev skill.Event)
	OnSkillLog(ev skill.Event)
	OnSkillStream(ev skill.Event)
	OnSkillStructuredData(ev skill.Event)
	OnSkillUsage(ev skill.Event)
	OnSkillEnd(ev skill.Event)

	// OnCompleted is called when the stream ends cleanly
	OnCompleted()

	// OnError is called on a server error event or a transport failure.
	// No further callbacks follow it.
	OnError(err error)
}

// HandlerFunc is a function adapter for Handler interface
type HandlerFunc struct {
	StartFunc          func()
	SkillStartFunc     func(ev skill.Event)
	SkillLogFunc       func(ev skill.Event)
	SkillStreamFunc    func(ev skill.Event)
	StructuredDataFunc func(ev skill.Event)
	UsageFunc          func(ev skill.Event)
	SkillEndFunc       func(ev skill.Event)
	CompletedFunc      func()
	ErrorFunc          func(err error)
}

// OnStart implements Handler
func (h HandlerFunc) OnStart() {
	if h.StartFunc != nil {
		h.StartFunc()
	}
}

// OnSkillStart implements Handler
func (h HandlerFunc) OnSkillStart(ev skill.Event) {
	if h.SkillStartFunc != nil {
		h.SkillStartFunc(ev)
	}
}

// OnSkillLog implements Handler
func (h HandlerFunc) OnSkillLog(ev skill.Event) {
	if h.SkillLogFunc != nil {
		h.SkillLogFunc(ev)
	}
}

// OnSkillStream implements Handler
func (h HandlerFunc) OnSkillStream(ev skill.Event) {
	if h.SkillStreamFunc != nil {
		h.SkillStreamFunc(ev)
	}
}

// OnSkillStructuredData implements Handler
func (h HandlerFunc) OnSkillStructuredData(ev skill.Event) {
	if h.StructuredDataFunc != nil {
		h.StructuredDataFunc(ev)
	}
}

// OnSkillUsage implements Handler
func (h HandlerFunc) OnSkillUsage(ev skill.Event) {
	if h.UsageFunc != nil {
		h.UsageFunc(ev)
	}
}

// OnSkillEnd implements Handler
func (h HandlerFunc) OnSkillEnd(ev skill.Event) {
	if h.SkillEndFunc != nil {
		h.SkillEndFunc(ev)
	}
}

// OnCompleted implements Handler
func (h HandlerFunc) OnCompleted() {
	if h.CompletedFunc != nil {
		h.CompletedFunc()
	}
}

// OnError implements Handler
func (h HandlerFunc) OnError(err error) {
	if h.ErrorFunc != nil {
		h.ErrorFunc(err)
	}
}

// Dispatch routes ev to the matching handler method. It reports whether ev
// was terminal (error or completed).
func Dispatch(h Handler, ev skill.Event) bool {
	switch ev.Type {
	case skill.EventStart:
		h.OnStart()
	case skill.EventSkillStart:
		h.OnSkillStart(ev)
	case skill.EventSkillLog:
		h.OnSkillLog(ev)
	case skill.EventSkillStream:
		h.OnSkillStream(ev)
	case skill.EventSkillStructuredData:
		h.OnSkillStructuredData(ev)
	case skill.EventUsage:
		h.OnSkillUsage(ev)
	case skill.EventSkillEnd:
		h.OnSkillEnd(ev)
	case skill.EventCompleted:
		h.OnCompleted()
	case skill.EventError:
		if ev.Err == nil {
			h.OnError(&skill.StreamError{})
		} else {
			h.OnError(ev.Err)
		}
	}
	return ev.Type.IsTerminal()
}

// Ensure implementations satisfy the interface
var _ Handler = HandlerFunc{}
