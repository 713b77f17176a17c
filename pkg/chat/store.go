package chat

import (
	"fmt"
	"sync"

	"github.com/killallgit/skillstream/pkg/skill"
)

// Observer receives a snapshot of the message list on every commit
type Observer func(messages []Message)

// Store is the ordered list of chat messages. Mutations (Update, ReplaceAt)
// change the list in place; Commit publishes a snapshot to observers and is
// what counts as a write for re-render purposes. Append, Set and Reset commit
// on their own.
type Store struct {
	mu       sync.RWMutex
	messages []Message

	// commitMu keeps snapshot order and notification order identical
	commitMu     sync.Mutex
	observers    map[int]Observer
	nextObserver int
	version      uint64
}

// NewStore creates an empty message store
func NewStore() *Store {
	return &Store{
		observers: make(map[int]Observer),
	}
}

// Messages returns a deep copy of the current list
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Get looks a message up by id
func (s *Store) Get(msgID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(msgID); i >= 0 {
		return s.messages[i].Clone(), true
	}
	return Message{}, false
}

// IndexOf returns the position of msgID or -1
func (s *Store) IndexOf(msgID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(msgID)
}

func (s *Store) indexLocked(msgID string) int {
	for i := range s.messages {
		if s.messages[i].MsgID == msgID {
			return i
		}
	}
	return -1
}

// FindLastRelated returns the id of the newest reply that ev correlates with
func (s *Store) FindLastRelated(ev skill.Event) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].RelatesTo(ev) {
			return s.messages[i].MsgID, true
		}
	}
	return "", false
}

// Update mutates the message with msgID in place without committing
func (s *Store) Update(msgID string, fn func(m *Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(msgID)
	if i < 0 {
		return false
	}
	fn(&s.messages[i])
	return true
}

// UpdateLast mutates the most recent message in place without committing
func (s *Store) UpdateLast(fn func(m *Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return false
	}
	fn(&s.messages[len(s.messages)-1])
	return true
}

// UpdateAll mutates every message in place without committing
func (s *Store) UpdateAll(fn func(m *Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		fn(&s.messages[i])
	}
}

// ReplaceAt swaps the message at index i without committing
func (s *Store) ReplaceAt(i int, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.messages) {
		return fmt.Errorf("replace message: index %d out of range [0,%d)", i, len(s.messages))
	}
	s.messages[i] = m.Clone()
	return nil
}

// Append adds messages to the end of the list and commits once
func (s *Store) Append(msgs ...Message) {
	s.mu.Lock()
	for _, m := range msgs {
		s.messages = append(s.messages, m.Clone())
	}
	s.mu.Unlock()
	s.Commit()
}

// Set replaces the whole list and commits
func (s *Store) Set(msgs []Message) {
	s.mu.Lock()
	s.messages = make([]Message, len(msgs))
	for i, m := range msgs {
		s.messages[i] = m.Clone()
	}
	s.mu.Unlock()
	s.Commit()
}

// Reset clears the list and commits
func (s *Store) Reset() {
	s.Set(nil)
}

// Commit publishes the current list to every observer. Observers run on the
// committing goroutine and must not call Commit themselves.
func (s *Store) Commit() {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	s.version++
	snapshot := s.snapshotLocked()
	observers := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(snapshot)
	}
}

// Version returns how many commits have happened
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers an observer and returns a function that removes it
func (s *Store) Subscribe(o Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = o
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}
