package services

import (
	"container/heap"
	"context"
	"log"
	"math"
	"sort"
	"time"

	"memoria/internal/config"
	"memoria/internal/models"
)

// SpreadingActivationService ranks a user's long-term memories by traversing
// the associative graph outward from similarity-selected seeds. Activation
// decays per hop and is modulated by edge weight, affect overlap with the
// current emotional state, and recency. Read-only over the graph.
type SpreadingActivationService struct {
	graph      MemoryGraph
	embedder   Embedder
	limiter    *RateLimiterService
	forgetting *ForgettingService
	cfg        *config.Config
}

// NewSpreadingActivationService creates the activation engine.
func NewSpreadingActivationService(graph MemoryGraph, embedder Embedder, limiter *RateLimiterService, forgetting *ForgettingService, cfg *config.Config) *SpreadingActivationService {
	return &SpreadingActivationService{graph: graph, embedder: embedder, limiter: limiter, forgetting: forgetting, cfg: cfg}
}

// activationRecord is one node's best-known traversal state.
type activationRecord struct {
	id         string
	activation float64
	depth      int
	path       []string
	seq        int64 // insertion order, ties on activation break earliest-first
	index      int   // heap bookkeeping
}

// activationQueue is a max-heap on activation. Equal activations pop in
// insertion order so traversal is deterministic.
type activationQueue []*activationRecord

func (q activationQueue) Len() int { return len(q) }

func (q activationQueue) Less(i, j int) bool {
	if q[i].activation != q[j].activation {
		return q[i].activation > q[j].activation
	}
	return q[i].seq < q[j].seq
}

func (q activationQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *activationQueue) Push(x any) {
	record := x.(*activationRecord)
	record.index = len(*q)
	*q = append(*q, record)
}

func (q *activationQueue) Pop() any {
	old := *q
	n := len(old)
	record := old[n-1]
	old[n-1] = nil
	record.index = -1
	*q = old[:n-1]
	return record
}

// Activate runs spreading activation for one query. Each call owns its heap
// and visited set, so concurrent queries never share traversal state.
func (s *SpreadingActivationService) Activate(ctx context.Context, userID, query string, currentAffect *models.EmotionalState, maxResults int) ([]models.ActivatedMemory, error) {
	start := time.Now()

	if maxResults <= 0 {
		maxResults = 10
	}

	if err := s.limiter.Allow(ctx, userID, "activate"); err != nil {
		return nil, err
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &models.ConnectivityError{Service: "embedder", Err: err}
	}

	seeds, err := s.selectSeeds(ctx, userID, queryEmbedding)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return []models.ActivatedMemory{}, nil
	}

	var currentLabels map[string]float64
	if currentAffect != nil {
		currentLabels = currentAffect.EmotionScores
	}

	queue := &activationQueue{}
	heap.Init(queue)
	records := make(map[string]*activationRecord, len(seeds))
	visited := make(map[string]bool)
	var seq int64

	for _, seed := range seeds {
		record := &activationRecord{
			id:         seed.id,
			activation: seed.activation,
			depth:      0,
			path:       []string{seed.id},
			seq:        seq,
		}
		seq++
		records[seed.id] = record
		heap.Push(queue, record)
	}

	for queue.Len() > 0 && len(visited) < s.cfg.MaxActivatedNodes {
		current := heap.Pop(queue).(*activationRecord)
		if visited[current.id] {
			continue
		}
		visited[current.id] = true

		if current.depth >= s.cfg.MaxDepth {
			continue
		}

		neighbors, err := s.graph.Neighbors(ctx, userID, current.id)
		if err != nil {
			log.Printf("⚠️ [ACTIVATION] Neighbor fetch failed at %s, branch abandoned: %v", current.id, err)
			continue
		}

		for _, neighbor := range neighbors {
			if visited[neighbor.Node.ID] {
				continue
			}

			propagated := current.activation * s.cfg.ActivationDecay *
				s.edgeWeight(neighbor) *
				s.emotionalMultiplier(neighbor.Node, currentLabels) *
				s.temporalMultiplier(neighbor.Node)
			if propagated < s.cfg.ActivationThreshold {
				continue
			}

			existing, known := records[neighbor.Node.ID]
			if known && existing.activation >= propagated {
				continue
			}

			path := append(append([]string{}, current.path...), neighbor.Node.ID)
			if known {
				existing.depth = current.depth + 1
				existing.path = path
				queue.update(existing, propagated)
			} else {
				record := &activationRecord{
					id:         neighbor.Node.ID,
					activation: propagated,
					depth:      current.depth + 1,
					path:       path,
					seq:        seq,
				}
				seq++
				records[neighbor.Node.ID] = record
				heap.Push(queue, record)
			}
		}
	}

	result := s.collect(ctx, userID, records, visited, maxResults)
	log.Printf("🔍 [ACTIVATION] user=%s seeds=%d activated=%d returned=%d in %v",
		userID, len(seeds), len(visited), len(result), time.Since(start))
	return result, nil
}

func (q *activationQueue) update(record *activationRecord, activation float64) {
	record.activation = activation
	if record.index >= 0 {
		heap.Fix(q, record.index)
	} else {
		heap.Push(q, record)
	}
}

type seedCandidate struct {
	id         string
	activation float64
}

func (s *SpreadingActivationService) selectSeeds(ctx context.Context, userID string, queryEmbedding []float32) ([]seedCandidate, error) {
	nodes, err := s.graph.EmbeddedNodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]seedCandidate, 0, len(nodes))
	for _, node := range nodes {
		similarity := CosineSimilarity(queryEmbedding, node.Embedding)
		if similarity >= s.cfg.SeedMinSimilarity {
			candidates = append(candidates, seedCandidate{id: node.ID, activation: similarity})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].activation > candidates[j].activation
	})
	if len(candidates) > s.cfg.SeedCount {
		candidates = candidates[:s.cfg.SeedCount]
	}
	return candidates, nil
}

// edgeWeight applies the per-type boost to the stored weight, capped at 1.0.
// Emotional links carry the strongest pull, similarity links a mild one.
func (s *SpreadingActivationService) edgeWeight(neighbor models.Neighbor) float64 {
	weight := neighbor.Weight
	if weight <= 0 {
		weight = s.cfg.EdgeWeightDefault
	}

	switch neighbor.EdgeType {
	case models.EdgeEmotional:
		weight *= 1.3
	case models.EdgeSimilar:
		weight *= 1.1
	}

	if weight > 1.0 {
		return 1.0
	}
	return weight
}

// emotionalMultiplier boosts propagation toward memories whose emotion labels
// overlap the querying user's current affect. Always >= 1.
func (s *SpreadingActivationService) emotionalMultiplier(node *models.LongTermNode, currentLabels map[string]float64) float64 {
	if node.EmotionalState == nil {
		return 1.0
	}
	overlap := EmotionOverlapSimilarity(node.EmotionalState.EmotionScores, currentLabels)
	return 1.0 + s.cfg.EmotionalWeightFactor*overlap
}

// temporalMultiplier decays propagation with memory age on an exponential
// half-life curve, floored so old memories stay reachable.
func (s *SpreadingActivationService) temporalMultiplier(node *models.LongTermNode) float64 {
	if node.Timestamp.IsZero() {
		return 0.5
	}
	hours := time.Since(node.Timestamp).Hours()
	if hours < 0 {
		hours = 0
	}
	decayed := math.Exp(-hours / s.cfg.TemporalHalfLife.Hours())
	return math.Max(s.cfg.TemporalFloor, decayed)
}

func (s *SpreadingActivationService) collect(ctx context.Context, userID string, records map[string]*activationRecord, visited map[string]bool, maxResults int) []models.ActivatedMemory {
	activated := make([]*activationRecord, 0, len(visited))
	for id := range visited {
		activated = append(activated, records[id])
	}

	sort.SliceStable(activated, func(i, j int) bool {
		if activated[i].activation != activated[j].activation {
			return activated[i].activation > activated[j].activation
		}
		return activated[i].seq < activated[j].seq
	})
	if len(activated) > maxResults {
		activated = activated[:maxResults]
	}

	ids := make([]string, len(activated))
	for i, record := range activated {
		ids[i] = record.id
	}

	nodes, err := s.graph.NodesByID(ctx, userID, ids)
	if err != nil {
		log.Printf("⚠️ [ACTIVATION] Node hydration failed for user %s: %v", userID, err)
		return []models.ActivatedMemory{}
	}
	byID := make(map[string]*models.LongTermNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	result := make([]models.ActivatedMemory, 0, len(activated))
	for _, record := range activated {
		node, ok := byID[record.id]
		if !ok {
			continue
		}
		result = append(result, models.ActivatedMemory{
			Node:       node,
			Activation: record.activation,
			Depth:      record.depth,
			Path:       record.path,
		})
	}

	if len(result) > 0 {
		resultIDs := make([]string, len(result))
		for i, m := range result {
			resultIDs[i] = m.Node.ID
		}
		if err := s.forgetting.RecordAccess(ctx, userID, resultIDs); err != nil {
			log.Printf("⚠️ [ACTIVATION] Access reinforcement failed for user %s: %v", userID, err)
		}
	}

	return result
}
