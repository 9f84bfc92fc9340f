package services

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"memoria/internal/config"
	"memoria/internal/models"
)

// MemoryService is the façade the rest of the system talks to. It composes
// the context window, the long-term store, spreading activation, forgetting
// and consolidation behind a handful of operations, and owns the promotion
// decision for every incoming message.
type MemoryService struct {
	window        *ContextWindowService
	longTerm      *LongTermStoreService
	activation    *SpreadingActivationService
	forgetting    *ForgettingService
	consolidation *ConsolidationService
	classifier    AffectClassifier
	cfg           *config.Config
	entropy       *ulid.MonotonicEntropy
}

// NewMemoryService wires the memory engine façade.
func NewMemoryService(
	window *ContextWindowService,
	longTerm *LongTermStoreService,
	activation *SpreadingActivationService,
	forgetting *ForgettingService,
	consolidation *ConsolidationService,
	classifier AffectClassifier,
	cfg *config.Config,
) *MemoryService {
	return &MemoryService{
		window:        window,
		longTerm:      longTerm,
		activation:    activation,
		forgetting:    forgetting,
		consolidation: consolidation,
		classifier:    classifier,
		cfg:           cfg,
		entropy:       ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// StoreMessage records one conversation turn. The message always lands in the
// context window; it is additionally promoted to the long-term graph when the
// promotion policy says so. Affect classification failure downgrades the item
// to no-affect rather than failing the store.
func (s *MemoryService) StoreMessage(ctx context.Context, userID, content, role string) (*models.MemoryItem, error) {
	if userID == "" || content == "" {
		return nil, &models.ValidationError{Reason: "store requires user_id and content"}
	}
	if role != models.RoleUser && role != models.RoleAssistant {
		return nil, &models.ValidationError{Reason: "role must be user or assistant"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	item := &models.MemoryItem{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String(),
		UserID:    userID,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Role:      role,
	}

	affect, err := s.classifier.Classify(ctx, content)
	if err != nil {
		log.Printf("⚠️ [MEMORY] Affect classification failed for user %s, storing without affect: %v", userID, err)
	} else {
		item.EmotionalState = affect
	}

	if err := s.window.Append(ctx, userID, item); err != nil {
		return nil, err
	}

	promoted := false
	if s.longTerm.ShouldPromote(item) {
		if err := s.longTerm.Store(ctx, item); err != nil {
			if models.IsQuotaExceeded(err) {
				GetMetrics().RecordQuotaRejection("store")
				return nil, err
			}
			// Long-term promotion is best-effort once the window write landed.
			log.Printf("⚠️ [MEMORY] Long-term promotion failed for %s: %v", item.ID, err)
		} else {
			promoted = true
		}
	}

	GetMetrics().RecordStore(role, promoted, time.Since(start))
	return item, nil
}

// GetContext returns the most recent context-window items, newest first.
func (s *MemoryService) GetContext(ctx context.Context, userID string, limit int) ([]*models.MemoryItem, error) {
	return s.window.Read(ctx, userID, limit)
}

// RetrieveMemories runs similarity retrieval over the long-term store. On
// infrastructure failure it degrades to an empty, flagged result instead of
// propagating the error, so a conversation can continue without memories.
// Quota errors are not degradation and pass through.
func (s *MemoryService) RetrieveMemories(ctx context.Context, userID, query string, limit int) (*models.RetrievalResult, error) {
	result, err := s.longTerm.SimilaritySearch(ctx, userID, query, limit, s.cfg.SimilarityThreshold)
	if err != nil {
		if models.IsQuotaExceeded(err) {
			GetMetrics().RecordQuotaRejection("retrieve")
			return nil, err
		}
		log.Printf("⚠️ [MEMORY] Retrieval degraded to empty for user %s: %v", userID, err)
		GetMetrics().RecordRetrieval("similarity", false, true, 0)
		return &models.RetrievalResult{Memories: []models.ScoredMemory{}, Degraded: true}, nil
	}
	GetMetrics().RecordRetrieval("similarity", result.FromCache, false, result.RetrievalTime)
	return result, nil
}

// ActivateMemories runs spreading activation from the query, biased by the
// user's current emotional state. Degrades to empty on failure like
// RetrieveMemories.
func (s *MemoryService) ActivateMemories(ctx context.Context, userID, query string, currentAffect *models.EmotionalState, maxResults int) ([]models.ActivatedMemory, error) {
	start := time.Now()
	activated, err := s.activation.Activate(ctx, userID, query, currentAffect, maxResults)
	if err != nil {
		if models.IsQuotaExceeded(err) {
			GetMetrics().RecordQuotaRejection("activate")
			return nil, err
		}
		log.Printf("⚠️ [MEMORY] Activation degraded to empty for user %s: %v", userID, err)
		GetMetrics().RecordRetrieval("activation", false, true, time.Since(start))
		return []models.ActivatedMemory{}, nil
	}
	GetMetrics().RecordRetrieval("activation", false, false, time.Since(start))
	return activated, nil
}

// Consolidate triggers an on-demand consolidation run for the user.
func (s *MemoryService) Consolidate(ctx context.Context, userID string) (*models.ConsolidationResult, error) {
	return s.consolidation.Consolidate(ctx, userID)
}

// RetentionMetrics exposes the forgetting curve's per-node stats.
func (s *MemoryService) RetentionMetrics(ctx context.Context, userID string, limit int) ([]*models.RetentionStat, error) {
	return s.forgetting.Metrics(ctx, userID, limit)
}

// Cleanup deletes (or previews, with dryRun) forgotten memories.
func (s *MemoryService) Cleanup(ctx context.Context, userID string, retentionThreshold float64, dryRun bool) (*models.CleanupResult, error) {
	return s.forgetting.Cleanup(ctx, userID, retentionThreshold, dryRun)
}

// CleanupUserData wipes a user's short-term window and long-term memories.
func (s *MemoryService) CleanupUserData(ctx context.Context, userID string) error {
	if err := s.window.Clear(ctx, userID); err != nil {
		return err
	}
	deleted, err := s.longTerm.PurgeOlderThan(ctx, userID, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}
	log.Printf("🧹 [MEMORY] Removed all data for user %s (%d long-term memories)", userID, deleted)
	return nil
}
