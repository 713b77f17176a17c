// Package skill holds the wire types of a skill invocation and decodes raw
// stream chunks (SSE frames or message-port envelopes) into typed events.
package skill

import (
	"fmt"
)

// EventType discriminates a skill Event
type EventType string

const (
	EventStart               EventType = "start"
	EventSkillStart          EventType = "skill-start"
	EventSkillLog            EventType = "skill-log"
	EventSkillStream         EventType = "skill-stream"
	EventSkillStructuredData EventType = "skill-structuredData"
	EventUsage               EventType = "usage"
	EventSkillEnd            EventType = "skill-end"
	EventError               EventType = "error"
	EventCompleted           EventType = "completed"
)

// IsTerminal reports whether the event ends the whole stream
func (t EventType) IsTerminal() bool {
	return t == EventError || t == EventCompleted
}

// Icon is the display icon attached to skill metadata
type Icon struct {
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// Meta identifies the skill instance that produced an event
type Meta struct {
	SkillID     string `json:"skillId,omitempty"`
	TplName     string `json:"tplName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Icon        *Icon  `json:"icon,omitempty"`
}

// IsZero reports whether no field of the meta is set
func (m Meta) IsZero() bool {
	return m.SkillID == "" && m.TplName == "" && m.DisplayName == "" && m.Icon == nil
}

// SchedulerMeta is used for reply placeholders when no skill was selected
var SchedulerMeta = Meta{
	TplName:     "scheduler",
	DisplayName: "Assistant",
	Icon:        &Icon{Type: "emoji", Value: "🧙‍♂️"},
}

// Event is a single decoded skill event
type Event struct {
	Type              EventType    `json:"type"`
	SkillMeta         Meta         `json:"skillMeta"`
	SpanID            string       `json:"spanId,omitempty"`
	Content           string       `json:"content,omitempty"`
	StructuredDataKey string       `json:"structuredDataKey,omitempty"`
	Err               *StreamError `json:"-"`
}

// Input is the user input of an invocation
type Input struct {
	Query string `json:"query"`
}

// InvokeRequest is the task sent to the server to start a skill
type InvokeRequest struct {
	SkillID string         `json:"skillId,omitempty"`
	TplName string         `json:"tplName,omitempty"`
	ConvID  string         `json:"convId,omitempty"`
	Locale  string         `json:"locale,omitempty"`
	Input   Input          `json:"input"`
	Context map[string]any `json:"context,omitempty"`
}

// StreamError is a failure reported by the server or the transport
type StreamError struct {
	ErrCode string `json:"errCode,omitempty"`
	ErrMsg  string `json:"errMsg,omitempty"`
	Status  int    `json:"-"`
}

func (e *StreamError) Error() string {
	switch {
	case e.ErrCode != "" && e.ErrMsg != "":
		return fmt.Sprintf("skill error %s: %s", e.ErrCode, e.ErrMsg)
	case e.ErrMsg != "":
		return "skill error: " + e.ErrMsg
	case e.ErrCode != "":
		return "skill error " + e.ErrCode
	case e.Status != 0:
		return fmt.Sprintf("skill error: HTTP %d", e.Status)
	default:
		return "skill error"
	}
}
