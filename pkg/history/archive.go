// Package history keeps finished exchanges in redis, keyed by conversation id.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/killallgit/skillstream/pkg/chat"
	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultMaxMessages = 50
	keyPrefix          = "skillstream:conversation:"
)

// ErrNoConversation is returned when an exchange has no conversation id
var ErrNoConversation = errors.New("conversation id is required")

// Archive stores conversation messages in redis
type Archive struct {
	rdb         redis.Cmdable
	ttl         time.Duration
	maxMessages int
}

// NewArchive wraps an existing client. Zero ttl or maxMessages use the defaults.
func NewArchive(rdb redis.Cmdable, ttl time.Duration, maxMessages int) *Archive {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Archive{rdb: rdb, ttl: ttl, maxMessages: maxMessages}
}

// Connect dials redis from cfg and checks the connection
func Connect(ctx context.Context, cfg config.HistoryConfig) (*Archive, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Connected to redis at %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	return NewArchive(client, cfg.TTL, cfg.MaxMessages), client, nil
}

// Key returns the redis key of a conversation
func Key(convID string) string {
	return keyPrefix + convID
}

// Load returns the stored messages of a conversation, oldest first
func (a *Archive) Load(ctx context.Context, convID string) ([]chat.Message, error) {
	if convID == "" {
		return nil, ErrNoConversation
	}
	data, err := a.rdb.Get(ctx, Key(convID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return msgs, nil
}

// Save replaces the stored messages and refreshes the ttl
func (a *Archive) Save(ctx context.Context, convID string, msgs []chat.Message) error {
	if convID == "" {
		return ErrNoConversation
	}
	data, err := json.Marshal(Trim(msgs, a.maxMessages))
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := a.rdb.Set(ctx, Key(convID), data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Archive merges a finished exchange into the stored conversation
func (a *Archive) Archive(ctx context.Context, convID string, msgs []chat.Message) error {
	stored, err := a.Load(ctx, convID)
	if err != nil {
		return err
	}
	merged := Merge(stored, msgs)
	if err := a.Save(ctx, convID, merged); err != nil {
		return err
	}
	logger.Debug("Archived %d messages to conversation %s", len(msgs), convID)
	return nil
}

// Delete forgets a conversation
func (a *Archive) Delete(ctx context.Context, convID string) error {
	if err := a.rdb.Del(ctx, Key(convID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Merge appends incoming to stored. Messages already stored under the same id
// are replaced in place, so re-archiving a session does not duplicate it.
func Merge(stored, incoming []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(stored)+len(incoming))
	index := make(map[string]int, len(stored))
	for _, m := range stored {
		index[m.MsgID] = len(out)
		out = append(out, m)
	}
	for _, m := range incoming {
		if i, ok := index[m.MsgID]; ok {
			out[i] = m
			continue
		}
		index[m.MsgID] = len(out)
		out = append(out, m)
	}
	return out
}

// Trim keeps the newest limit messages
func Trim(msgs []chat.Message, limit int) []chat.Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
