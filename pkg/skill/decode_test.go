package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("maps every port type", func(t *testing.T) {
		tests := map[string]EventType{
			"start":                EventStart,
			"skill-start":          EventSkillStart,
			"skill-thought":        EventSkillLog,
			"skill-stream":         EventSkillStream,
			"skill-structuredData": EventSkillStructuredData,
			"skill-end":            EventSkillEnd,
			"usage":                EventUsage,
			"error":                EventError,
			"completed":            EventCompleted,
		}

		for wire, expected := range tests {
			ev, ok := Decode([]byte(`{"type":"` + wire + `"}`))
			require.True(t, ok, wire)
			assert.Equal(t, expected, ev.Type, wire)
		}
	})

	t.Run("carries the message payload", func(t *testing.T) {
		raw := `{"type":"skill-stream","uniqueId":"u-1","message":{"skillMeta":{"skillId":"s1","tplName":"commonQnA"},"spanId":"span-1","content":"Hello"}}`

		ev, ok := Decode([]byte(raw))
		require.True(t, ok)
		assert.Equal(t, EventSkillStream, ev.Type)
		assert.Equal(t, "s1", ev.SkillMeta.SkillID)
		assert.Equal(t, "commonQnA", ev.SkillMeta.TplName)
		assert.Equal(t, "span-1", ev.SpanID)
		assert.Equal(t, "Hello", ev.Content)
		assert.Equal(t, "u-1", UniqueID([]byte(raw)))
	})

	t.Run("error envelope carries a StreamError", func(t *testing.T) {
		ev, ok := DecodeEnvelope([]byte(`{"type":"error","message":{"success":false,"errCode":"E1001","errMsg":"quota exceeded"}}`))
		require.True(t, ok)
		require.NotNil(t, ev.Err)
		assert.Equal(t, "E1001", ev.Err.ErrCode)
		assert.Equal(t, "quota exceeded", ev.Err.ErrMsg)
		assert.Contains(t, ev.Err.Error(), "quota exceeded")
	})

	t.Run("unknown type is no event", func(t *testing.T) {
		_, ok := DecodeEnvelope([]byte(`{"type":"skill-dance"}`))
		assert.False(t, ok)
	})
}

func TestDecodeSkillEvent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected EventType
	}{
		{"start", `{"event":"start","spanId":"a"}`, EventSkillStart},
		{"log", `{"event":"log","content":"searching"}`, EventSkillLog},
		{"stream", `{"event":"stream","content":"tok"}`, EventSkillStream},
		{"structured", `{"event":"structured_data","structuredDataKey":"sources","content":"[]"}`, EventSkillStructuredData},
		{"usage", `{"event":"usage","content":"{}"}`, EventUsage},
		{"end", `{"event":"end"}`, EventSkillEnd},
		{"error", `{"event":"error","content":"boom"}`, EventError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Decode([]byte(tt.raw))
			require.True(t, ok)
			assert.Equal(t, tt.expected, ev.Type)
		})
	}

	t.Run("error content as encoded json", func(t *testing.T) {
		ev, ok := DecodeSkillEvent([]byte(`{"event":"error","content":"{\"errCode\":\"E2\",\"errMsg\":\"bad\"}"}`))
		require.True(t, ok)
		assert.Equal(t, "E2", ev.Err.ErrCode)
		assert.Equal(t, "bad", ev.Err.ErrMsg)
	})

	t.Run("error content as plain text", func(t *testing.T) {
		ev, ok := DecodeSkillEvent([]byte(`{"event":"error","content":"boom"}`))
		require.True(t, ok)
		assert.Equal(t, "boom", ev.Err.ErrMsg)
	})
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		``,
		`not json`,
		`{"type":"skill-stream","message":`,
		`[1,2,3]`,
		`"skill-stream"`,
		`{"event":"stream","content":42}`,
		`{"nothing":"here"}`,
	}

	for _, in := range inputs {
		_, ok := Decode([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestDecodeError(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		e := DecodeError([]byte(`{"success":false,"errCode":"E401","errMsg":"unauthorized"}`), 401)
		assert.Equal(t, "E401", e.ErrCode)
		assert.Equal(t, "unauthorized", e.ErrMsg)
		assert.Equal(t, 401, e.Status)
	})

	t.Run("text body", func(t *testing.T) {
		e := DecodeError([]byte("bad gateway"), 502)
		assert.Equal(t, "bad gateway", e.ErrMsg)
	})

	t.Run("empty body", func(t *testing.T) {
		e := DecodeError(nil, 500)
		assert.Equal(t, "skill error: HTTP 500", e.Error())
	})
}
