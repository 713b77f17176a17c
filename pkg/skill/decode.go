package skill

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// envelopeTypes maps the `type` discriminator of port/SSE envelopes onto event types
var envelopeTypes = map[string]EventType{
	"start":                EventStart,
	"skill-start":          EventSkillStart,
	"skill-thought":        EventSkillLog,
	"skill-log":            EventSkillLog,
	"skill-stream":         EventSkillStream,
	"skill-structuredData": EventSkillStructuredData,
	"skill-end":            EventSkillEnd,
	"usage":                EventUsage,
	"error":                EventError,
	"completed":            EventCompleted,
}

// serverEvents maps the `event` field of a bare server skill event
var serverEvents = map[string]EventType{
	"start":           EventSkillStart,
	"log":             EventSkillLog,
	"stream":          EventSkillStream,
	"structured_data": EventSkillStructuredData,
	"usage":           EventUsage,
	"end":             EventSkillEnd,
	"error":           EventError,
}

type wireEvent struct {
	SkillMeta         Meta   `json:"skillMeta"`
	SpanID            string `json:"spanId"`
	Content           string `json:"content"`
	StructuredDataKey string `json:"structuredDataKey"`
}

// Decode turns one raw chunk into an event. Chunks carrying a `type` key are
// treated as envelopes, anything else as a bare server event. Malformed or
// unrecognised chunks yield ok == false.
func Decode(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Event{}, false
	}
	if root.Get("type").Exists() {
		return decodeEnvelope(root)
	}
	return decodeServerEvent(root)
}

// DecodeEnvelope decodes a `{type, message}` envelope
func DecodeEnvelope(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Event{}, false
	}
	return decodeEnvelope(root)
}

// DecodeSkillEvent decodes a bare `{event, skillMeta, spanId, content}` server event
func DecodeSkillEvent(raw []byte) (Event, bool) {
	if !gjson.ValidBytes(raw) {
		return Event{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Event{}, false
	}
	return decodeServerEvent(root)
}

// UniqueID returns the correlation id an envelope carries, if any
func UniqueID(raw []byte) string {
	return gjson.GetBytes(raw, "uniqueId").String()
}

func decodeEnvelope(root gjson.Result) (Event, bool) {
	typ, ok := envelopeTypes[root.Get("type").String()]
	if !ok {
		return Event{}, false
	}

	msg := root.Get("message")
	if typ == EventError {
		return Event{Type: EventError, Err: errorFromResult(msg)}, true
	}
	if !msg.IsObject() {
		return Event{Type: typ}, true
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(msg.Raw), &w); err != nil {
		return Event{}, false
	}
	return w.event(typ), true
}

func decodeServerEvent(root gjson.Result) (Event, bool) {
	typ, ok := serverEvents[root.Get("event").String()]
	if !ok {
		return Event{}, false
	}

	var w wireEvent
	if err := json.Unmarshal([]byte(root.Raw), &w); err != nil {
		return Event{}, false
	}
	ev := w.event(typ)
	if typ == EventError {
		ev.Err = errorFromResult(root.Get("content"))
	}
	return ev, true
}

func (w wireEvent) event(typ EventType) Event {
	return Event{
		Type:              typ,
		SkillMeta:         w.SkillMeta,
		SpanID:            w.SpanID,
		Content:           w.Content,
		StructuredDataKey: w.StructuredDataKey,
	}
}

// errorFromResult accepts an error object, a JSON-encoded error object, or plain text
func errorFromResult(r gjson.Result) *StreamError {
	if r.Type == gjson.String && gjson.Valid(r.String()) {
		if inner := gjson.Parse(r.String()); inner.IsObject() {
			r = inner
		}
	}

	switch {
	case r.IsObject():
		return &StreamError{
			ErrCode: r.Get("errCode").String(),
			ErrMsg:  r.Get("errMsg").String(),
		}
	case r.Exists() && r.String() != "":
		return &StreamError{ErrMsg: r.String()}
	default:
		return &StreamError{}
	}
}

// DecodeError builds a StreamError from an HTTP error response body
func DecodeError(body []byte, status int) *StreamError {
	e := &StreamError{Status: status}
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		if root.IsObject() {
			e.ErrCode = root.Get("errCode").String()
			e.ErrMsg = root.Get("errMsg").String()
			return e
		}
	}
	if len(body) > 0 {
		e.ErrMsg = string(body)
	}
	return e
}
