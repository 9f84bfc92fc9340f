package services

import (
	"context"
	"fmt"
	"testing"

	"memoria/internal/config"
	"memoria/internal/models"
)

func newTestMemoryService(graph *fakeGraph, embedder *fakeEmbedder, classifier *fakeClassifier) *MemoryService {
	cfg := config.Load()
	limiter := NewRateLimiterService(nil, cfg.MemoryOpsPerMinute, cfg.QuotaWindow)
	forgetting := NewForgettingService(graph, cfg)
	longTerm := NewLongTermStoreService(graph, embedder, limiter, forgetting, cfg)
	activation := NewSpreadingActivationService(graph, embedder, limiter, forgetting, cfg)
	consolidation := NewConsolidationService(graph, nil, embedder, &fakeSummarizer{}, forgetting, cfg)
	window := NewContextWindowService(nil, cfg.ContextWindowSize, cfg.ContextWindowTTL)
	return NewMemoryService(window, longTerm, activation, forgetting, consolidation, classifier, cfg)
}

// TestStoreMessageValidation verifies bad input is rejected before any write.
func TestStoreMessageValidation(t *testing.T) {
	service := newTestMemoryService(newFakeGraph(), newFakeEmbedder(3), &fakeClassifier{})
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  string
		content string
		role    string
	}{
		{"Empty user", "", "hello", models.RoleUser},
		{"Empty content", "u1", "", models.RoleUser},
		{"Unknown role", "u1", "hello", "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.StoreMessage(ctx, tt.userID, tt.content, tt.role)
			if _, ok := err.(*models.ValidationError); !ok {
				t.Errorf("Expected ValidationError, got %v", err)
			}
		})
	}
}

// TestRetrieveMemoriesDegradesToEmpty verifies infrastructure failure yields a
// flagged empty result instead of an error.
func TestRetrieveMemoriesDegradesToEmpty(t *testing.T) {
	embedder := newFakeEmbedder(3)
	embedder.err = fmt.Errorf("embedder down")
	service := newTestMemoryService(newFakeGraph(), embedder, &fakeClassifier{})

	result, err := service.RetrieveMemories(context.Background(), "u1", "query", 10)
	if err != nil {
		t.Fatalf("Degraded retrieval must not error, got %v", err)
	}
	if !result.Degraded {
		t.Error("Expected the Degraded flag to be set")
	}
	if len(result.Memories) != 0 {
		t.Errorf("Expected empty memories, got %d", len(result.Memories))
	}
}

// TestActivateMemoriesDegradesToEmpty verifies the activation path degrades
// the same way.
func TestActivateMemoriesDegradesToEmpty(t *testing.T) {
	embedder := newFakeEmbedder(3)
	embedder.err = fmt.Errorf("embedder down")
	service := newTestMemoryService(newFakeGraph(), embedder, &fakeClassifier{})

	activated, err := service.ActivateMemories(context.Background(), "u1", "query", nil, 10)
	if err != nil {
		t.Fatalf("Degraded activation must not error, got %v", err)
	}
	if len(activated) != 0 {
		t.Errorf("Expected empty activation, got %d", len(activated))
	}
}
