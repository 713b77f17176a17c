package chat

import (
	"sync"
	"testing"

	"github.com/killallgit/skillstream/pkg/skill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAppendAndCommit(t *testing.T) {
	store := NewStore()

	var commits [][]Message
	unsubscribe := store.Subscribe(func(msgs []Message) {
		commits = append(commits, msgs)
	})

	q := NewQuestionMessage("  what is go?  ", skill.Meta{SkillID: "s1"}, nil)
	r := NewReplyMessage(skill.SchedulerMeta, "", true)
	store.Append(q, r)

	require.Len(t, commits, 1, "append commits once for all messages")
	assert.Len(t, commits[0], 2)
	assert.Equal(t, "what is go?", commits[0][0].Content)
	assert.Equal(t, TypeQuestion, commits[0][0].Type)
	assert.True(t, commits[0][1].Pending)
	assert.Equal(t, uint64(1), store.Version())

	unsubscribe()
	unsubscribe()
	store.Commit()
	assert.Len(t, commits, 1, "unsubscribed observers are not called")
}

func TestStoreUpdateDoesNotCommit(t *testing.T) {
	store := NewStore()
	reply := NewReplyMessage(skill.Meta{TplName: "commonQnA"}, "span-1", true)
	store.Append(reply)

	calls := 0
	store.Subscribe(func([]Message) { calls++ })

	ok := store.Update(reply.MsgID, func(m *Message) {
		m.Content += "hello"
	})
	require.True(t, ok)
	assert.Equal(t, 0, calls)

	got, ok := store.Get(reply.MsgID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)

	assert.False(t, store.Update("missing", func(m *Message) {}))
}

func TestStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewStore()
	reply := NewReplyMessage(skill.Meta{}, "", true)
	reply.Logs = []string{"a"}
	reply.StructuredData = map[string]any{"sources": []any{"x"}}
	store.Append(reply)

	snap := store.Messages()
	snap[0].Logs[0] = "mutated"
	snap[0].StructuredData["sources"].([]any)[0] = "mutated"

	fresh := store.Messages()
	assert.Equal(t, "a", fresh[0].Logs[0])
	assert.Equal(t, "x", fresh[0].StructuredData["sources"].([]any)[0])
}

func TestStoreFindLastRelated(t *testing.T) {
	store := NewStore()
	meta := skill.Meta{SkillID: "s1", TplName: "commonQnA"}

	older := NewReplyMessage(meta, "span-1", false)
	question := NewQuestionMessage("q", meta, nil)
	question.SpanID = "span-1"
	newer := NewReplyMessage(meta, "span-1", true)
	other := NewReplyMessage(meta, "span-2", true)
	store.Append(older, question, newer, other)

	id, ok := store.FindLastRelated(skill.Event{SkillMeta: meta, SpanID: "span-1"})
	require.True(t, ok)
	assert.Equal(t, newer.MsgID, id)

	_, ok = store.FindLastRelated(skill.Event{SkillMeta: skill.Meta{TplName: "other"}, SpanID: "span-1"})
	assert.False(t, ok)
}

func TestStoreReplaceAt(t *testing.T) {
	store := NewStore()
	store.Append(NewReplyMessage(skill.Meta{}, "", true))

	replacement := NewErrorMessage("failed")
	require.NoError(t, store.ReplaceAt(0, replacement))
	assert.Error(t, store.ReplaceAt(3, replacement))
	assert.Error(t, store.ReplaceAt(-1, replacement))

	last, ok := store.Last()
	require.True(t, ok)
	assert.True(t, last.IsError())
	assert.Equal(t, 0, store.IndexOf(replacement.MsgID))
}

func TestStoreUpdateLastAndReset(t *testing.T) {
	store := NewStore()
	assert.False(t, store.UpdateLast(func(m *Message) {}))

	store.Append(NewReplyMessage(skill.Meta{}, "", true))
	assert.True(t, store.UpdateLast(func(m *Message) { m.Pending = false }))

	last, _ := store.Last()
	assert.False(t, last.Pending)

	store.Reset()
	assert.Equal(t, 0, store.Len())
	_, ok := store.Last()
	assert.False(t, ok)
}

func TestStoreConcurrentCommits(t *testing.T) {
	store := NewStore()
	reply := NewReplyMessage(skill.Meta{}, "", true)
	store.Append(reply)

	var mu sync.Mutex
	var lengths []int
	store.Subscribe(func(msgs []Message) {
		mu.Lock()
		lengths = append(lengths, len(msgs[0].Content))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Update(reply.MsgID, func(m *Message) { m.Content += "x" })
			store.Commit()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lengths, 20)
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1], "observers never see content shrink")
	}
	assert.Equal(t, 20, lengths[len(lengths)-1])
}
