package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/killallgit/skillstream/pkg/canvas"
	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/search"
	"github.com/killallgit/skillstream/pkg/skill"
)

// Notifier surfaces a failure to the user
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }

// Archiver stores a finished exchange
type Archiver interface {
	Archive(ctx context.Context, convID string, messages []chat.Message) error
}

// SkillCatalog resolves the skill a task selected
type SkillCatalog interface {
	Lookup(skillID string) (skill.Meta, bool)
}

// CatalogMap is a SkillCatalog backed by a map keyed by skill id
type CatalogMap map[string]skill.Meta

func (c CatalogMap) Lookup(skillID string) (skill.Meta, bool) {
	m, ok := c[skillID]
	return m, ok
}

// IntentHandler receives matched intents and prepares the editor before the
// first streamed chunk
type IntentHandler interface {
	SetIntentResult(r canvas.IntentResult)
	BeforeStream()
}

// Option is a functional option for configuring the orchestrator
type Option func(*Orchestrator) error

// WithNotifier sets where user-visible failures go
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) error {
		o.notifier = n
		return nil
	}
}

// WithArchiver stores every completed exchange
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) error {
		o.archiver = a
		return nil
	}
}

// WithSkillCatalog sets how selected skills are resolved
func WithSkillCatalog(c SkillCatalog) Option {
	return func(o *Orchestrator) error {
		o.catalog = c
		return nil
	}
}

// WithEditorBus sets the bus canvas content is streamed to
func WithEditorBus(b *canvas.Bus) Option {
	return func(o *Orchestrator) error {
		if b == nil {
			return fmt.Errorf("editor bus must not be nil")
		}
		o.bus = b
		return nil
	}
}

// WithEditorState sets the AI-editing flag holder
func WithEditorState(e *canvas.EditorState) Option {
	return func(o *Orchestrator) error {
		if e == nil {
			return fmt.Errorf("editor state must not be nil")
		}
		o.editor = e
		return nil
	}
}

// WithIntentHandler sets the canvas-intent collaborator
func WithIntentHandler(h IntentHandler) Option {
	return func(o *Orchestrator) error {
		if h == nil {
			return fmt.Errorf("intent handler must not be nil")
		}
		o.intents = h
		return nil
	}
}

// WithSearchStore sets the multi-step search store
func WithSearchStore(s *search.Store) Option {
	return func(o *Orchestrator) error {
		if s == nil {
			return fmt.Errorf("search store must not be nil")
		}
		o.search = s
		return nil
	}
}

// WithFlushInterval sets how often streamed content is committed
func WithFlushInterval(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d < 0 {
			return fmt.Errorf("flush interval must not be negative")
		}
		o.flushInterval = d
		return nil
	}
}
