package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"medichat/internal/model"
)

// HistoryCache keeps recently read transcripts in redis. Every mutation
// drops the cached transcript and arms a short-lived dirty marker; while the
// marker lives, reads bypass the cache and writes are refused, so a
// concurrent reader cannot re-cache a transcript that predates the write.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// GetFresh returns the cached transcript, or ok=false on a miss or while the
// session's dirty marker is armed. Marker and payload are fetched in one
// round trip.
func (c *HistoryCache) GetFresh(ctx context.Context, sessionID uint) ([]model.Message, bool, error) {
	pipe := c.client.Pipeline()
	dirtyCmd := pipe.Exists(ctx, c.dirtyKey(sessionID))
	getCmd := pipe.Get(ctx, c.historyKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil && err != redisv9.Nil {
		return nil, false, fmt.Errorf("redis read history failed: %w", err)
	}

	if dirtyCmd.Val() > 0 {
		return nil, false, nil
	}
	raw, err := getCmd.Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Store caches a transcript just read from the database, unless the session
// went dirty in the meantime.
func (c *HistoryCache) Store(ctx context.Context, sessionID uint, messages []model.Message) error {
	dirty, err := c.client.Exists(ctx, c.dirtyKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	if dirty > 0 {
		return nil
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(sessionID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate arms the dirty marker and drops the cached transcript.
func (c *HistoryCache) Invalidate(ctx context.Context, sessionID uint) error {
	pipe := c.client.Pipeline()
	pipe.Set(ctx, c.dirtyKey(sessionID), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, c.historyKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) historyKey(sessionID uint) string {
	return fmt.Sprintf("chatbot:history:%d", sessionID)
}

func (c *HistoryCache) dirtyKey(sessionID uint) string {
	return fmt.Sprintf("chatbot:history:dirty:%d", sessionID)
}
