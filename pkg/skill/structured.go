package skill

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Structured data keys understood by the orchestrator
const (
	KeySources                      = "sources"
	KeyRelatedQuestions             = "relatedQuestions"
	KeyIntentMatcher                = "intentMatcher"
	KeyMultiLingualSearchStepUpdate = "multiLingualSearchStepUpdate"
	KeyMultiLingualSearchResult     = "multiLingualSearchResult"
	KeyAskUserForm                  = "AskUserForm"
)

var (
	ErrUnknownKey       = errors.New("unknown structured data key")
	ErrUnimplementedKey = errors.New("structured data key not implemented")
	ErrEmptyPayload     = errors.New("empty structured data payload")
)

var recognizedKeys = map[string]bool{
	KeySources:                      true,
	KeyRelatedQuestions:             true,
	KeyIntentMatcher:                true,
	KeyMultiLingualSearchStepUpdate: true,
	KeyMultiLingualSearchResult:     true,
}

// IsRecognizedKey reports whether key is merged into a message's structured data
func IsRecognizedKey(key string) bool {
	return recognizedKeys[key]
}

// DecodeStructuredData parses the JSON payload of a structured-data event.
// Values come back as the generic encoding/json shapes (map[string]any, []any,
// float64, string, bool).
func DecodeStructuredData(ev Event) (any, error) {
	key := ev.StructuredDataKey
	if key == KeyAskUserForm {
		return nil, ErrUnimplementedKey
	}
	if !IsRecognizedKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	var v any
	if err := json.Unmarshal([]byte(ev.Content), &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", key, err)
	}
	if v == nil {
		return nil, ErrEmptyPayload
	}
	return v, nil
}

// TokenUsage is one model's token accounting for a skill run
type TokenUsage struct {
	ModelName     string `json:"modelName,omitempty"`
	ModelProvider string `json:"modelProvider,omitempty"`
	InputTokens   int    `json:"inputTokens"`
	OutputTokens  int    `json:"outputTokens"`
}

// DecodeTokenUsage extracts the `token` array from a usage event payload.
// It returns nil when the payload is malformed or the array is empty.
func DecodeTokenUsage(content string) []TokenUsage {
	if !gjson.Valid(content) {
		return nil
	}
	tokens := gjson.Get(content, "token")
	if !tokens.IsArray() || len(tokens.Array()) == 0 {
		return nil
	}

	var usage []TokenUsage
	if err := json.Unmarshal([]byte(tokens.Raw), &usage); err != nil {
		return nil
	}
	return usage
}
