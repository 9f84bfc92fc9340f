package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"memoria/internal/database"
	"memoria/internal/models"
)

// RateLimiterService enforces per-user memory-operation quotas. Counters live
// in Redis so limits hold across instances; a small in-process token bucket
// backstops the engine when Redis itself is the thing falling over.
type RateLimiterService struct {
	redis  *database.Redis
	limit  int64
	window time.Duration

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiterService creates a rate limiter with the given per-window limit.
func NewRateLimiterService(redis *database.Redis, limit int64, window time.Duration) *RateLimiterService {
	return &RateLimiterService{
		redis:  redis,
		limit:  limit,
		window: window,
		local:  make(map[string]*rate.Limiter),
	}
}

// Allow checks whether userID may perform one more operation of the given kind
// in the current window. Exceeding the quota fails fast with a
// QuotaExceededError; the request is never queued.
func (s *RateLimiterService) Allow(ctx context.Context, userID, operation string) error {
	if !s.localLimiter(userID).Allow() {
		return &models.QuotaExceededError{
			UserID:    userID,
			Operation: operation,
			Limit:     s.limit,
			Used:      s.limit,
			ResetAt:   time.Now().Add(s.window),
		}
	}

	// Without a Redis backend the local bucket alone bounds the user.
	if s.redis == nil {
		return nil
	}

	key := fmt.Sprintf("quota:%s:%s", operation, userID)
	count, err := s.redis.CountInWindow(ctx, key, s.window)
	if err != nil {
		// Fail open on Redis trouble; the local bucket still bounds us.
		log.Printf("⚠️ [RATE-LIMIT] Redis counter failed for %s: %v", userID, err)
		return nil
	}

	if count > s.limit {
		ttl, _ := s.redis.Client().TTL(ctx, key).Result()
		return &models.QuotaExceededError{
			UserID:    userID,
			Operation: operation,
			Limit:     s.limit,
			Used:      count,
			ResetAt:   time.Now().Add(ttl),
		}
	}

	return nil
}

// localLimiter returns the in-process token bucket for a user, creating it on
// first use. Buckets allow the full window quota with a small burst.
func (s *RateLimiterService) localLimiter(userID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.local[userID]
	if !ok {
		perSecond := float64(s.limit) / s.window.Seconds()
		limiter = rate.NewLimiter(rate.Limit(perSecond), int(s.limit/4)+1)
		s.local[userID] = limiter
	}
	return limiter
}
