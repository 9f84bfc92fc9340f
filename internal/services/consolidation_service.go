package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"memoria/internal/config"
	"memoria/internal/database"
	"memoria/internal/models"
)

const (
	consolidationLockTTL = 10 * time.Minute
	maxPatternSamples    = 10
)

// ConsolidationService is the batch pipeline that turns repeated episodic
// experience into semantic knowledge. One run per user at a time, enforced by
// a Redis lock; independent users run in parallel.
type ConsolidationService struct {
	graph      MemoryGraph
	redis      *database.Redis
	embedder   Embedder
	summarizer Summarizer
	forgetting *ForgettingService
	cfg        *config.Config
	entropy    *ulid.MonotonicEntropy
}

// NewConsolidationService creates the consolidation pipeline.
func NewConsolidationService(graph MemoryGraph, redis *database.Redis, embedder Embedder, summarizer Summarizer, forgetting *ForgettingService, cfg *config.Config) *ConsolidationService {
	return &ConsolidationService{
		graph:      graph,
		redis:      redis,
		embedder:   embedder,
		summarizer: summarizer,
		forgetting: forgetting,
		cfg:        cfg,
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Consolidate runs the full pipeline for one user: lock, candidates, pattern
// detection, summarization, semantic node creation, progress record, aging.
// Infrastructure failures are retried with backoff; a bad pattern is logged
// and skipped without aborting the batch.
func (s *ConsolidationService) Consolidate(ctx context.Context, userID string) (*models.ConsolidationResult, error) {
	lockKey := "consolidation:lock:" + userID
	lockValue := uuid.New().String()

	acquired, err := s.redis.AcquireLock(ctx, lockKey, lockValue, consolidationLockTTL)
	if err != nil {
		return nil, &models.ConnectivityError{Service: "redis", Err: err}
	}
	if !acquired {
		log.Printf("⏭️ [CONSOLIDATION] Run already in progress for user %s, skipping", userID)
		return &models.ConsolidationResult{UserID: userID, CompletedAt: time.Now()}, nil
	}
	defer func() {
		if _, err := s.redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
			log.Printf("⚠️ [CONSOLIDATION] Lock release failed for user %s: %v", userID, err)
		}
	}()

	var result *models.ConsolidationResult
	for attempt := 1; attempt <= s.cfg.ConsolidationRetries; attempt++ {
		result, err = s.runOnce(ctx, userID)
		if err == nil {
			break
		}
		if !models.IsRetryable(err) || attempt == s.cfg.ConsolidationRetries {
			return nil, err
		}
		backoff := s.cfg.ConsolidationBackoff * time.Duration(attempt)
		log.Printf("🔄 [CONSOLIDATION] Attempt %d failed for user %s, retrying in %v: %v", attempt, userID, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, nil
}

func (s *ConsolidationService) runOnce(ctx context.Context, userID string) (*models.ConsolidationResult, error) {
	start := time.Now()
	result := &models.ConsolidationResult{UserID: userID}

	since := time.Now().Add(-s.cfg.ConsolidationWindow)
	candidates, err := s.graph.ConsolidationCandidates(ctx, userID, since, s.cfg.ConsolidationBatchSize)
	if err != nil {
		return nil, err
	}
	result.EpisodesProcessed = len(candidates)

	patterns := append(
		s.detectEmotionalPatterns(candidates),
		s.detectSemanticPatterns(candidates)...,
	)
	result.PatternsFound = len(patterns)

	consolidatedIDs := make([]string, 0)
	for _, pattern := range patterns {
		created, err := s.consolidatePattern(ctx, userID, pattern)
		if err != nil {
			// Partial failure: record and move on to the next pattern.
			log.Printf("⚠️ [CONSOLIDATION] Pattern skipped for user %s: %v", userID, err)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.SemanticCreated++
		consolidatedIDs = append(consolidatedIDs, created...)
	}

	if err := s.recordProgress(ctx, userID, consolidatedIDs); err != nil {
		log.Printf("⚠️ [CONSOLIDATION] Progress record failed for user %s: %v", userID, err)
		result.Errors = append(result.Errors, err.Error())
	}

	if _, err := s.forgetting.AgingPass(ctx, userID); err != nil {
		log.Printf("⚠️ [CONSOLIDATION] Aging pass failed for user %s: %v", userID, err)
		result.Errors = append(result.Errors, err.Error())
	}

	result.CompletedAt = time.Now()
	log.Printf("✅ [CONSOLIDATION] user=%s episodes=%d patterns=%d semantic=%d errors=%d in %v",
		userID, result.EpisodesProcessed, result.PatternsFound, result.SemanticCreated,
		len(result.Errors), time.Since(start))
	return result, nil
}

// detectEmotionalPatterns buckets candidates by primary emotion and keeps
// buckets that reach the repetition threshold.
func (s *ConsolidationService) detectEmotionalPatterns(candidates []*models.LongTermNode) []*models.Pattern {
	buckets := make(map[string][]*models.LongTermNode)
	for _, node := range candidates {
		if node.EmotionalState == nil || node.EmotionalState.PrimaryEmotion == "" {
			continue
		}
		emotion := node.EmotionalState.PrimaryEmotion
		buckets[emotion] = append(buckets[emotion], node)
	}

	var patterns []*models.Pattern
	for emotion, nodes := range buckets {
		if len(nodes) < s.cfg.RepetitionThreshold {
			continue
		}
		patterns = append(patterns, &models.Pattern{
			Type:           models.PatternEmotional,
			PrimaryEmotion: emotion,
			Memories:       nodes,
			EpisodeIDs:     nodeIDs(nodes),
			Count:          len(nodes),
		})
	}
	return patterns
}

// detectSemanticPatterns greedily clusters candidates by embedding similarity:
// each ungrouped node pulls every remaining node above the cluster similarity
// into its cluster, single pass.
func (s *ConsolidationService) detectSemanticPatterns(candidates []*models.LongTermNode) []*models.Pattern {
	grouped := make(map[string]bool)
	var patterns []*models.Pattern

	for _, anchor := range candidates {
		if grouped[anchor.ID] || len(anchor.Embedding) == 0 {
			continue
		}

		cluster := []*models.LongTermNode{anchor}
		for _, other := range candidates {
			if other.ID == anchor.ID || grouped[other.ID] || len(other.Embedding) == 0 {
				continue
			}
			if CosineSimilarity(anchor.Embedding, other.Embedding) > s.cfg.ClusterSimilarity {
				cluster = append(cluster, other)
			}
		}
		if len(cluster) < s.cfg.RepetitionThreshold {
			continue
		}

		for _, node := range cluster {
			grouped[node.ID] = true
		}
		patterns = append(patterns, &models.Pattern{
			Type:       models.PatternSemantic,
			Memories:   cluster,
			EpisodeIDs: nodeIDs(cluster),
			Count:      len(cluster),
		})
	}
	return patterns
}

// consolidatePattern summarizes one pattern into a semantic node, links
// provenance, and marks the sources consolidated. Returns the source ids it
// consolidated.
func (s *ConsolidationService) consolidatePattern(ctx context.Context, userID string, pattern *models.Pattern) ([]string, error) {
	contents := make([]string, 0, maxPatternSamples)
	for _, node := range pattern.Memories {
		contents = append(contents, node.Content)
		if len(contents) == maxPatternSamples {
			break
		}
	}

	summaryCtx, cancel := context.WithTimeout(ctx, s.cfg.CapabilityTimeout)
	summary, err := s.summarizer.Summarize(summaryCtx, contents, pattern.Type)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("summarization failed for %s pattern: %w", pattern.Type, err)
	}
	if !summary.Valid() {
		return nil, fmt.Errorf("summarizer returned malformed response for %s pattern, discarded", pattern.Type)
	}

	embedding, err := s.embedder.Embed(ctx, summary.Title+" "+summary.Summary)
	if err != nil {
		return nil, fmt.Errorf("semantic embedding failed: %w", err)
	}

	semantic := &models.SemanticNode{
		ID:              ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		UserID:          userID,
		Title:           summary.Title,
		Summary:         summary.Summary,
		Category:        summary.Category,
		Confidence:      summary.Confidence,
		PatternType:     pattern.Type,
		SourceCount:     pattern.Count,
		SourceIDs:       pattern.EpisodeIDs,
		Embedding:       embedding,
		CreatedAt:       time.Now().UTC(),
		RetentionWeight: 1.0,
	}

	if err := s.graph.CreateSemanticNode(ctx, semantic); err != nil {
		return nil, err
	}
	if err := s.graph.LinkConsolidatedFrom(ctx, semantic.ID, pattern.EpisodeIDs, summary.Confidence); err != nil {
		return nil, err
	}
	if err := s.graph.MarkConsolidated(ctx, userID, pattern.EpisodeIDs, time.Now().UTC()); err != nil {
		return nil, err
	}

	log.Printf("🧠 [CONSOLIDATION] Created semantic memory %q (%s, %d sources) for user %s",
		semantic.Title, pattern.Type, pattern.Count, userID)
	return pattern.EpisodeIDs, nil
}

func (s *ConsolidationService) recordProgress(ctx context.Context, userID string, episodeIDs []string) error {
	progress := models.ConsolidationProgress{
		LastConsolidation:    time.Now().UTC(),
		EpisodesConsolidated: len(episodeIDs),
		EpisodeIDs:           episodeIDs,
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	key := "consolidation:progress:" + userID
	if err := s.redis.Client().Set(ctx, key, payload, s.cfg.ProgressTTL).Err(); err != nil {
		return &models.ConnectivityError{Service: "redis", Err: err}
	}
	return nil
}

// Progress returns the last recorded consolidation summary for a user, or nil
// when none exists (or it expired).
func (s *ConsolidationService) Progress(ctx context.Context, userID string) (*models.ConsolidationProgress, error) {
	raw, err := s.redis.Client().Get(ctx, "consolidation:progress:"+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &models.ConnectivityError{Service: "redis", Err: err}
	}
	var progress models.ConsolidationProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, &models.DecodeError{Key: "consolidation:progress:" + userID, Err: err}
	}
	return &progress, nil
}

func nodeIDs(nodes []*models.LongTermNode) []string {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}
	return ids
}
