package canvas

import (
	"sync"
)

// IntentType is the document intent the server matched for a question
type IntentType string

const (
	IntentGenerateDocument IntentType = "generateDocument"
	IntentEditDocument     IntentType = "editDocument"
	IntentRewriteDocument  IntentType = "rewriteDocument"
	IntentOther            IntentType = "other"
)

// StreamsToEditor reports whether replies under this intent feed the editor
func (t IntentType) StreamsToEditor() bool {
	return t == IntentGenerateDocument || t == IntentEditDocument
}

// IntentResult is the payload of the intentMatcher structured data key
type IntentResult struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	CanvasID   string     `json:"canvasId,omitempty"`
	ProjectID  string     `json:"projectId,omitempty"`
	ConvID     string     `json:"convId,omitempty"`
}

// ParseIntent reads an intent result out of decoded structured data
func ParseIntent(v any) (IntentResult, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return IntentResult{}, false
	}
	typ, _ := m["type"].(string)
	if typ == "" {
		return IntentResult{}, false
	}
	r := IntentResult{Type: IntentType(typ)}
	r.Confidence, _ = m["confidence"].(float64)
	r.Reason, _ = m["reason"].(string)
	r.CanvasID, _ = m["canvasId"].(string)
	r.ProjectID, _ = m["projectId"].(string)
	r.ConvID, _ = m["convId"].(string)
	return r, true
}

// IntentStore keeps the latest intent result and runs the hook that
// prepares the editor before the first streamed chunk.
type IntentStore struct {
	mu           sync.Mutex
	latest       *IntentResult
	beforeStream func(IntentResult)
	hookRuns     int
}

// NewIntentStore creates a store. hook may be nil.
func NewIntentStore(hook func(IntentResult)) *IntentStore {
	return &IntentStore{beforeStream: hook}
}

// SetIntentResult records the intent matched for the current question
func (s *IntentStore) SetIntentResult(r IntentResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &r
}

// Latest returns the last recorded intent
func (s *IntentStore) Latest() (IntentResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return IntentResult{}, false
	}
	return *s.latest, true
}

// BeforeStream runs the before-stream hook with the latest intent
func (s *IntentStore) BeforeStream() {
	s.mu.Lock()
	s.hookRuns++
	hook := s.beforeStream
	var r IntentResult
	if s.latest != nil {
		r = *s.latest
	}
	s.mu.Unlock()

	if hook != nil {
		hook(r)
	}
}

// HookRuns returns how many times BeforeStream has run
func (s *IntentStore) HookRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hookRuns
}

// Reset forgets the latest intent
func (s *IntentStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = nil
}
