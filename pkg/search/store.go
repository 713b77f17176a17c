// Package search keeps the state of a multi-lingual search run as reported
// through structured data: the ordered step list and the final results.
package search

import (
	"sync"
)

const (
	// StepProcessing is the synthetic marker shown while more steps are expected
	StepProcessing = "processing"
	// StepFinish is the step name that ends a run
	StepFinish = "finish"
)

// Step is one reported stage of the search
type Step struct {
	Step     string `json:"step"`
	Duration int64  `json:"duration,omitempty"`
	Result   any    `json:"result,omitempty"`
}

// Store is the multi-step search state the UI renders
type Store struct {
	mu      sync.RWMutex
	steps   []Step
	results []any
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// AddStep appends s, dropping a trailing processing marker first
func (s *Store) AddStep(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimProcessingLocked()
	s.steps = append(s.steps, step)
}

// SetProcessingStep makes sure the processing marker is the last step
func (s *Store) SetProcessingStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimProcessingLocked()
	s.steps = append(s.steps, Step{Step: StepProcessing})
}

// Apply records a reported step and re-adds the processing marker unless
// the step finished the run.
func (s *Store) Apply(step Step) {
	s.AddStep(step)
	if step.Step != StepFinish {
		s.SetProcessingStep()
	}
}

func (s *Store) trimProcessingLocked() {
	if n := len(s.steps); n > 0 && s.steps[n-1].Step == StepProcessing {
		s.steps = s.steps[:n-1]
	}
}

// SetResults replaces the search results wholesale
func (s *Store) SetResults(results []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append([]any(nil), results...)
}

// Steps returns a copy of the step list
func (s *Store) Steps() []Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Step(nil), s.steps...)
}

// Results returns a copy of the results
func (s *Store) Results() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]any(nil), s.results...)
}

// Reset clears steps and results
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = nil
	s.results = nil
}

// ParseStep reads the first step of a multiLingualSearchStepUpdate payload.
// The payload is either a list of steps or a single step object.
func ParseStep(v any) (Step, bool) {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return Step{}, false
		}
		v = list[0]
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Step{}, false
	}
	name, _ := m["step"].(string)
	if name == "" {
		return Step{}, false
	}
	step := Step{Step: name, Result: m["result"]}
	if d, ok := m["duration"].(float64); ok {
		step.Duration = int64(d)
	}
	return step, true
}

// ParseResults reads a multiLingualSearchResult payload
func ParseResults(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		return []any{t}, true
	default:
		return nil, false
	}
}
