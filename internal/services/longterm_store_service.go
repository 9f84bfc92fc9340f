package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"memoria/internal/config"
	"memoria/internal/models"
)

// LongTermStoreService owns the durable episodic graph: promotion-gated writes,
// similarity retrieval with a short-lived result cache, associative linking,
// and bulk purges. It never touches the context window.
type LongTermStoreService struct {
	graph      MemoryGraph
	embedder   Embedder
	limiter    *RateLimiterService
	forgetting *ForgettingService
	cfg        *config.Config

	// Retrieval result cache. Invalidated wholesale per user on every write,
	// so a cached result can never outlive a newer memory that should appear in it.
	queryCache *gocache.Cache
}

// NewLongTermStoreService creates the long-term store.
func NewLongTermStoreService(graph MemoryGraph, embedder Embedder, limiter *RateLimiterService, forgetting *ForgettingService, cfg *config.Config) *LongTermStoreService {
	return &LongTermStoreService{
		graph:      graph,
		embedder:   embedder,
		limiter:    limiter,
		forgetting: forgetting,
		cfg:        cfg,
		queryCache: gocache.New(cfg.SimilarityCacheTTL, 2*cfg.SimilarityCacheTTL),
	}
}

// ShouldPromote decides whether a context-window item also belongs in the
// long-term graph. Pure function of the item: emotionally intense, long,
// assistant-authored, or explicitly flagged important by the user.
func (s *LongTermStoreService) ShouldPromote(item *models.MemoryItem) bool {
	if item.EmotionalState.Intensity() > s.cfg.PromotionIntensity {
		return true
	}
	if len(item.Content) > s.cfg.PromotionMinLength {
		return true
	}
	if item.Role == models.RoleAssistant {
		return true
	}

	lowered := strings.ToLower(item.Content)
	for _, phrase := range s.cfg.ImportancePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// Store writes an item to the long-term graph. The embedding is computed here
// when the caller did not supply one. Associative edges to existing memories
// are created best-effort after the node lands; a linking failure never fails
// the store.
func (s *LongTermStoreService) Store(ctx context.Context, item *models.MemoryItem) error {
	if item.UserID == "" || item.Content == "" {
		return &models.ValidationError{Reason: "memory item requires user_id and content"}
	}

	if err := s.limiter.Allow(ctx, item.UserID, "store"); err != nil {
		return err
	}

	// A node without a vector would be permanently invisible to similarity
	// search and seeding, so an embed failure rejects the item instead of
	// storing it blind.
	if len(item.Embedding) == 0 {
		embedding, err := s.embedder.Embed(ctx, item.Content)
		if err != nil {
			return &models.ValidationError{Reason: fmt.Sprintf("embedding unavailable for %s: %v", item.ID, err)}
		}
		item.Embedding = embedding
	}

	node := &models.LongTermNode{
		MemoryItem:      *item,
		RetentionWeight: 1.0,
	}

	// Find the previous episode before the new node exists, so the TEMPORAL
	// edge never points at the node itself.
	previous, prevErr := s.graph.LatestEpisode(ctx, item.UserID)

	if err := s.graph.CreateNode(ctx, node); err != nil {
		return err
	}

	s.invalidateUser(item.UserID)

	if prevErr != nil {
		log.Printf("⚠️ [MEMORY-STORAGE] Skipping associative links for %s: %v", node.ID, prevErr)
		return nil
	}
	s.linkNode(ctx, node, previous)

	log.Printf("✅ [MEMORY-STORAGE] Stored long-term memory %s for user %s", node.ID, item.UserID)
	return nil
}

// linkNode creates the associative edges for a freshly stored node:
// TEMPORAL to the immediately preceding episode, SIMILAR to sufficiently
// close embeddings, EMOTIONAL to recent episodes sharing the primary emotion.
// All best-effort.
func (s *LongTermStoreService) linkNode(ctx context.Context, node *models.LongTermNode, previous *models.LongTermNode) {
	if previous != nil && previous.ID != node.ID {
		if err := s.graph.CreateEdge(ctx, node.UserID, previous.ID, node.ID, models.EdgeTemporal, s.cfg.EdgeWeightDefault); err != nil {
			log.Printf("⚠️ [MEMORY-STORAGE] TEMPORAL edge failed for %s: %v", node.ID, err)
		}
	}

	if len(node.Embedding) > 0 {
		candidates, err := s.graph.EmbeddedNodes(ctx, node.UserID)
		if err != nil {
			log.Printf("⚠️ [MEMORY-STORAGE] SIMILAR linking skipped for %s: %v", node.ID, err)
		} else {
			for _, candidate := range candidates {
				if candidate.ID == node.ID {
					continue
				}
				similarity := CosineSimilarity(node.Embedding, candidate.Embedding)
				if similarity < s.cfg.LinkSimilarityThreshold {
					continue
				}
				if err := s.graph.CreateEdge(ctx, node.UserID, node.ID, candidate.ID, models.EdgeSimilar, similarity); err != nil {
					log.Printf("⚠️ [MEMORY-STORAGE] SIMILAR edge failed for %s: %v", node.ID, err)
				}
			}
		}
	}

	if node.EmotionalState != nil && node.EmotionalState.PrimaryEmotion != "" && node.EmotionalState.PrimaryEmotion != "neutral" {
		recent, err := s.graph.RecentByEmotion(ctx, node.UserID, node.EmotionalState.PrimaryEmotion, s.cfg.LinkEmotionalWindow)
		if err != nil {
			log.Printf("⚠️ [MEMORY-STORAGE] EMOTIONAL linking skipped for %s: %v", node.ID, err)
			return
		}
		for _, peer := range recent {
			if peer.ID == node.ID {
				continue
			}
			weight := node.EmotionalState.Intensity()
			if weight < s.cfg.EdgeWeightDefault {
				weight = s.cfg.EdgeWeightDefault
			}
			if err := s.graph.CreateEdge(ctx, node.UserID, node.ID, peer.ID, models.EdgeEmotional, weight); err != nil {
				log.Printf("⚠️ [MEMORY-STORAGE] EMOTIONAL edge failed for %s: %v", node.ID, err)
			}
		}
	}
}

// SimilaritySearch retrieves the user's most similar long-term memories to the
// query. Results are cached per (user, query, limit, threshold) for the
// configured TTL, and every returned memory counts as an access for the
// forgetting curve.
func (s *LongTermStoreService) SimilaritySearch(ctx context.Context, userID, query string, limit int, threshold float64) (*models.RetrievalResult, error) {
	start := time.Now()

	if limit <= 0 {
		limit = 10
	}
	if threshold <= 0 {
		threshold = s.cfg.SimilarityThreshold
	}

	if err := s.limiter.Allow(ctx, userID, "retrieve"); err != nil {
		return nil, err
	}

	cacheKey := retrievalCacheKey(userID, query, limit, threshold)
	if cached, found := s.queryCache.Get(cacheKey); found {
		result := cached.(*models.RetrievalResult)
		// A cache hit is still a retrieval hit for the forgetting curve.
		s.reinforce(ctx, userID, result.Memories)
		return &models.RetrievalResult{
			Memories:       result.Memories,
			TotalRetrieved: result.TotalRetrieved,
			RetrievalTime:  time.Since(start),
			FromCache:      true,
		}, nil
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &models.ConnectivityError{Service: "embedder", Err: err}
	}

	candidates, err := s.graph.EmbeddedNodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredMemory, 0, len(candidates))
	for _, candidate := range candidates {
		similarity := CosineSimilarity(queryEmbedding, candidate.Embedding)
		if similarity >= threshold {
			scored = append(scored, models.ScoredMemory{Node: candidate, Similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}

	result := &models.RetrievalResult{
		Memories:       scored,
		TotalRetrieved: len(scored),
		RetrievalTime:  time.Since(start),
	}
	s.queryCache.Set(cacheKey, result, gocache.DefaultExpiration)
	s.reinforce(ctx, userID, scored)

	return result, nil
}

// reinforce records a retrieval hit for each returned memory. Best-effort.
func (s *LongTermStoreService) reinforce(ctx context.Context, userID string, memories []models.ScoredMemory) {
	if len(memories) == 0 {
		return
	}
	ids := make([]string, len(memories))
	for i, m := range memories {
		ids[i] = m.Node.ID
	}
	if err := s.forgetting.RecordAccess(ctx, userID, ids); err != nil {
		log.Printf("⚠️ [MEMORY-STORAGE] Access reinforcement failed for user %s: %v", userID, err)
	}
}

// NodesByID exposes direct lookups for the activation engine and handlers.
func (s *LongTermStoreService) NodesByID(ctx context.Context, userID string, ids []string) ([]*models.LongTermNode, error) {
	return s.graph.NodesByID(ctx, userID, ids)
}

// PurgeOlderThan hard-deletes episodic memories older than cutoff. Semantic
// knowledge derived from them survives; provenance lives on as the semantic
// node's source id snapshot.
func (s *LongTermStoreService) PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	deleted, err := s.graph.PurgeOlderThan(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	s.invalidateUser(userID)
	log.Printf("🧹 [MEMORY-STORAGE] Purged %d memories older than %s for user %s", deleted, cutoff.Format(time.RFC3339), userID)
	return deleted, nil
}

func (s *LongTermStoreService) invalidateUser(userID string) {
	prefix := userID + "|"
	for key := range s.queryCache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.queryCache.Delete(key)
		}
	}
}

func retrievalCacheKey(userID, query string, limit int, threshold float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%.4f", query, limit, threshold)))
	return userID + "|" + hex.EncodeToString(sum[:])
}
