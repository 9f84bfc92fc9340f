package services

import (
	"context"
	"log"
	"time"

	"memoria/internal/config"
	"memoria/internal/models"
)

// ForgettingService implements the forgetting curve: aging, access
// reinforcement, retention metrics, and threshold-driven cleanup.
type ForgettingService struct {
	graph MemoryGraph
	cfg   *config.Config
}

// NewForgettingService creates the forgetting curve engine.
func NewForgettingService(graph MemoryGraph, cfg *config.Config) *ForgettingService {
	return &ForgettingService{graph: graph, cfg: cfg}
}

// AgingPass drops retention weight on episodic memories past the aging
// horizon. Consolidated memories keep partial retention because their
// knowledge persists in semantic form; everything else decays hard.
func (s *ForgettingService) AgingPass(ctx context.Context, userID string) (int, error) {
	cutoff := time.Now().Add(-s.cfg.AgingAfter)
	updated, err := s.graph.ApplyAging(ctx, userID, cutoff, s.cfg.ConsolidatedWeight, s.cfg.UnconsolidatedWeight)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		log.Printf("📉 [FORGETTING] Aged %d memories for user %s", updated, userID)
	}
	return updated, nil
}

// RecordAccess marks memories as retrieved: access_count goes up and
// retention weight is reinforced upward, capped at 1.0. This is the only
// upward path for retention weight.
func (s *ForgettingService) RecordAccess(ctx context.Context, userID string, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	return s.graph.ReinforceAccess(ctx, userID, memoryIDs, s.cfg.AccessReinforcement)
}

// Metrics returns per-node retention stats with each node classified by its
// current retention weight, weakest first.
func (s *ForgettingService) Metrics(ctx context.Context, userID string, limit int) ([]*models.RetentionStat, error) {
	if limit <= 0 {
		limit = 100
	}
	stats, err := s.graph.RetentionStats(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	for _, stat := range stats {
		stat.RetentionState = s.Classify(stat.RetentionWeight)
	}
	return stats, nil
}

// Classify maps a retention weight onto the active/fading/forgotten scale
// using the configured thresholds.
func (s *ForgettingService) Classify(weight float64) string {
	switch {
	case weight >= s.cfg.ActiveThreshold:
		return models.RetentionActive
	case weight <= s.cfg.ForgottenThreshold:
		return models.RetentionForgotten
	default:
		return models.RetentionFading
	}
}

// Cleanup deletes episodic memories whose retention weight has decayed to or
// below the threshold. With dryRun it computes the same candidate set without
// touching storage.
func (s *ForgettingService) Cleanup(ctx context.Context, userID string, retentionThreshold float64, dryRun bool) (*models.CleanupResult, error) {
	ids, err := s.graph.LowRetentionIDs(ctx, userID, retentionThreshold)
	if err != nil {
		return nil, err
	}

	result := &models.CleanupResult{DryRun: dryRun, Count: len(ids), MemoryIDs: ids}
	if dryRun || len(ids) == 0 {
		return result, nil
	}

	deleted, err := s.graph.DeleteNodes(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	result.Count = deleted
	log.Printf("🧹 [FORGETTING] Cleaned up %d forgotten memories for user %s", deleted, userID)
	return result, nil
}
