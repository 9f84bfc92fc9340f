package services

import (
	"context"
	"testing"
	"time"

	"memoria/internal/models"
)

// TestRateLimiterFailsFastOverQuota verifies the local bucket rejects a burst
// beyond the window quota with a typed quota error, never by blocking.
func TestRateLimiterFailsFastOverQuota(t *testing.T) {
	limiter := NewRateLimiterService(nil, 8, time.Minute)
	ctx := context.Background()

	var rejected *models.QuotaExceededError
	allowed := 0
	for i := 0; i < 100; i++ {
		err := limiter.Allow(ctx, "u1", "store")
		if err == nil {
			allowed++
			continue
		}
		qe, ok := err.(*models.QuotaExceededError)
		if !ok {
			t.Fatalf("Expected QuotaExceededError, got %T", err)
		}
		rejected = qe
		break
	}

	if rejected == nil {
		t.Fatal("Expected the burst to exhaust the quota")
	}
	if allowed == 0 || allowed > 8 {
		t.Errorf("Burst allowance out of bounds: %d", allowed)
	}
	if rejected.UserID != "u1" || rejected.Operation != "store" {
		t.Errorf("Quota error missing context: %+v", rejected)
	}
	if rejected.ResetAt.Before(time.Now()) {
		t.Error("ResetAt should point into the future")
	}
}

// TestRateLimiterIsolatesUsers verifies one user's exhaustion never affects
// another user's bucket.
func TestRateLimiterIsolatesUsers(t *testing.T) {
	limiter := NewRateLimiterService(nil, 4, time.Minute)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_ = limiter.Allow(ctx, "heavy", "store")
	}
	if err := limiter.Allow(ctx, "light", "store"); err != nil {
		t.Errorf("Independent user should not be limited: %v", err)
	}
}
