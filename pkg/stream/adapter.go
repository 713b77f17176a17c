package stream

import (
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/killallgit/skillstream/pkg/skill"
)

// MultiHandler broadcasts events to multiple handlers, in order.
// Similar to io.MultiWriter but for our Handler interface.
type MultiHandler struct {
	handlers []Handler
}

// NewMultiHandler creates a handler that forwards to multiple handlers
func NewMultiHandler(handlers ...Handler) *MultiHandler {
	return &MultiHandler{
		handlers: handlers,
	}
}

func (m *MultiHandler) each(fn func(h Handler)) {
	for _, h := range m.handlers {
		fn(h)
	}
}

func (m *MultiHandler) OnStart() { m.each(func(h Handler) { h.OnStart() }) }

func (m *MultiHandler) OnSkillStart(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillStart(ev) })
}

func (m *MultiHandler) OnSkillLog(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillLog(ev) })
}

func (m *MultiHandler) OnSkillStream(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillStream(ev) })
}

func (m *MultiHandler) OnSkillStructuredData(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillStructuredData(ev) })
}

func (m *MultiHandler) OnSkillUsage(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillUsage(ev) })
}

func (m *MultiHandler) OnSkillEnd(ev skill.Event) {
	m.each(func(h Handler) { h.OnSkillEnd(ev) })
}

func (m *MultiHandler) OnCompleted() { m.each(func(h Handler) { h.OnCompleted() }) }

func (m *MultiHandler) OnError(err error) { m.each(func(h Handler) { h.OnError(err) }) }

// LogHandler writes every event to the debug log
type LogHandler struct {
	Transport string
}

func (l LogHandler) OnStart() {
	logger.Debug("[%s] stream started", l.Transport)
}

func (l LogHandler) OnSkillStart(ev skill.Event) {
	logger.Debug("[%s] skill start: skill=%s tpl=%s span=%s", l.Transport, ev.SkillMeta.SkillID, ev.SkillMeta.TplName, ev.SpanID)
}

func (l LogHandler) OnSkillLog(ev skill.Event) {
	logger.Debug("[%s] skill log: span=%s %s", l.Transport, ev.SpanID, ev.Content)
}

func (l LogHandler) OnSkillStream(ev skill.Event) {
	logger.Debug("[%s] skill stream: span=%s %d bytes", l.Transport, ev.SpanID, len(ev.Content))
}

func (l LogHandler) OnSkillStructuredData(ev skill.Event) {
	logger.Debug("[%s] structured data: span=%s key=%s", l.Transport, ev.SpanID, ev.StructuredDataKey)
}

func (l LogHandler) OnSkillUsage(ev skill.Event) {
	logger.Debug("[%s] usage: span=%s", l.Transport, ev.SpanID)
}

func (l LogHandler) OnSkillEnd(ev skill.Event) {
	logger.Debug("[%s] skill end: span=%s", l.Transport, ev.SpanID)
}

func (l LogHandler) OnCompleted() {
	logger.Debug("[%s] stream completed", l.Transport)
}

func (l LogHandler) OnError(err error) {
	logger.Error("[%s] streaming error: %v", l.Transport, err)
}

// Ensure implementations satisfy the interface
var (
	_ Handler = (*MultiHandler)(nil)
	_ Handler = LogHandler{}
)
