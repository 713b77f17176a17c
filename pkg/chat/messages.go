package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/killallgit/skillstream/pkg/skill"
)

// MessageType distinguishes question, reply and error messages
type MessageType string

const (
	TypeQuestion MessageType = "question"
	TypeAI       MessageType = "ai"
	TypeError    MessageType = "error"
)

// InvokeParam records what a question was asked with
type InvokeParam struct {
	Context map[string]any `json:"context,omitempty"`
}

// Message is a chat message. Replies are mutated while their skill streams
// and frozen once Pending drops to false.
type Message struct {
	MsgID          string             `json:"msgId"`
	Type           MessageType        `json:"type"`
	Content        string             `json:"content"`
	SkillMeta      skill.Meta         `json:"skillMeta"`
	SpanID         string             `json:"spanId"`
	Logs           []string           `json:"logs,omitempty"`
	StructuredData map[string]any     `json:"structuredData,omitempty"`
	TokenUsage     []skill.TokenUsage `json:"tokenUsage,omitempty"`
	Pending        bool               `json:"pending"`
	InvokeParam    *InvokeParam       `json:"invokeParam,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func newMessage(t MessageType, content string) Message {
	return Message{
		MsgID:     uuid.NewString(),
		Type:      t,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewQuestionMessage builds the user's question
func NewQuestionMessage(content string, meta skill.Meta, ctx map[string]any) Message {
	m := newMessage(TypeQuestion, strings.TrimSpace(content))
	m.SkillMeta = meta
	if len(ctx) > 0 {
		m.InvokeParam = &InvokeParam{Context: ctx}
	}
	return m
}

// NewReplyMessage builds a reply placeholder that streaming fills in
func NewReplyMessage(meta skill.Meta, spanID string, pending bool) Message {
	m := newMessage(TypeAI, "")
	m.SkillMeta = meta
	m.SpanID = spanID
	m.Pending = pending
	return m
}

// NewErrorMessage builds a message that keeps a failure visible in the list
func NewErrorMessage(content string) Message {
	return newMessage(TypeError, content)
}

func (m Message) IsQuestion() bool {
	return m.Type == TypeQuestion
}

func (m Message) IsAI() bool {
	return m.Type == TypeAI
}

func (m Message) IsError() bool {
	return m.Type == TypeError
}

func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// RelatesTo reports whether ev should update this message
func (m Message) RelatesTo(ev skill.Event) bool {
	return m.IsAI() && m.SkillMeta.TplName == ev.SkillMeta.TplName && m.SpanID == ev.SpanID
}

// Clone returns a copy that shares no mutable state with m
func (m Message) Clone() Message {
	c := m
	if m.Logs != nil {
		c.Logs = append([]string(nil), m.Logs...)
	}
	if m.StructuredData != nil {
		c.StructuredData = make(map[string]any, len(m.StructuredData))
		for k, v := range m.StructuredData {
			c.StructuredData[k] = cloneValue(v)
		}
	}
	if m.TokenUsage != nil {
		c.TokenUsage = append([]skill.TokenUsage(nil), m.TokenUsage...)
	}
	if m.InvokeParam != nil {
		p := *m.InvokeParam
		c.InvokeParam = &p
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
