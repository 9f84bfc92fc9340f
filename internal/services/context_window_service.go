package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"memoria/internal/database"
	"memoria/internal/models"
)

// ContextWindowService manages the short-term context window: a bounded
// newest-first Redis list per user with a sliding expiry.
type ContextWindowService struct {
	redis      *database.Redis
	windowSize int
	ttl        time.Duration
}

// NewContextWindowService creates a context window service. The size is
// clamped to the allowed range before use.
func NewContextWindowService(redis *database.Redis, windowSize int, ttl time.Duration) *ContextWindowService {
	return &ContextWindowService{
		redis:      redis,
		windowSize: clampWindowSize(windowSize),
		ttl:        ttl,
	}
}

func clampWindowSize(size int) int {
	if size < 20 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}

// WindowSize returns the effective (clamped) window size.
func (s *ContextWindowService) WindowSize() int {
	return s.windowSize
}

func contextKey(userID string) string {
	return "context:" + userID
}

// Append pushes an item onto the front of the user's window, trims to the
// window size and resets the sliding expiry. The three commands run in one
// transactional pipeline so a concurrent reader never observes an over-length
// buffer or a stale expiry.
func (s *ContextWindowService) Append(ctx context.Context, userID string, item *models.MemoryItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal memory item: %w", err)
	}

	key := contextKey(userID)
	pipe := s.redis.Client().TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(s.windowSize-1))
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return &models.ConnectivityError{Service: "redis", Err: err}
	}

	return nil
}

// Read returns up to limit items, newest first. Corrupt entries are logged
// and skipped; a single bad record never aborts the read.
func (s *ContextWindowService) Read(ctx context.Context, userID string, limit int) ([]*models.MemoryItem, error) {
	if limit <= 0 || limit > s.windowSize {
		limit = s.windowSize
	}

	key := contextKey(userID)
	raw, err := s.redis.Client().LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, &models.ConnectivityError{Service: "redis", Err: err}
	}

	return decodeWindow(key, raw), nil
}

// decodeWindow unmarshals stored entries, skipping anything undecodable.
func decodeWindow(key string, raw []string) []*models.MemoryItem {
	items := make([]*models.MemoryItem, 0, len(raw))
	for _, entry := range raw {
		var item models.MemoryItem
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			decodeErr := &models.DecodeError{Key: key, Err: err}
			log.Printf("⚠️ [CONTEXT] %v", decodeErr)
			continue
		}
		items = append(items, &item)
	}
	return items
}

// Clear removes the user's context window entirely.
func (s *ContextWindowService) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Client().Del(ctx, contextKey(userID)).Err(); err != nil {
		return &models.ConnectivityError{Service: "redis", Err: err}
	}
	return nil
}

// Size returns the current number of items in the user's window.
func (s *ContextWindowService) Size(ctx context.Context, userID string) (int64, error) {
	size, err := s.redis.Client().LLen(ctx, contextKey(userID)).Result()
	if err != nil {
		return 0, &models.ConnectivityError{Service: "redis", Err: err}
	}
	return size, nil
}
