package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memoria/internal/models"
)

// fakeEmbedder returns canned vectors per text, zero vector for unknown text.
type fakeEmbedder struct {
	vectors map[string][]float32
	dim     int
	err     error
	calls   int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32), dim: dim}
}

func (f *fakeEmbedder) set(text string, vector []float32) {
	f.vectors[text] = vector
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vector
	}
	return out, nil
}

// fakeClassifier returns a fixed affect record.
type fakeClassifier struct {
	state *models.EmotionalState
	err   error
}

func (f *fakeClassifier) Classify(context.Context, string) (*models.EmotionalState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

// fakeSummarizer returns a canned summary, or an error, or a malformed one.
type fakeSummarizer struct {
	summary *models.SemanticSummary
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(context.Context, []string, string) (*models.SemanticSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeEdge struct {
	from, to, kind string
	weight         float64
}

// fakeGraph is an in-memory MemoryGraph used to test the engines without Neo4j.
type fakeGraph struct {
	mu       sync.Mutex
	nodes    map[string]*models.LongTermNode
	semantic map[string]*models.SemanticNode
	edges    []fakeEdge

	failNeighbors bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		nodes:    make(map[string]*models.LongTermNode),
		semantic: make(map[string]*models.SemanticNode),
	}
}

func (g *fakeGraph) add(node *models.LongTermNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.RetentionWeight == 0 {
		node.RetentionWeight = 1.0
	}
	g.nodes[node.ID] = node
}

func (g *fakeGraph) link(from, to, kind string, weight float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, fakeEdge{from: from, to: to, kind: kind, weight: weight})
}

func (g *fakeGraph) CreateNode(_ context.Context, node *models.LongTermNode) error {
	g.add(node)
	return nil
}

func (g *fakeGraph) CreateSemanticNode(_ context.Context, node *models.SemanticNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.semantic[node.ID] = node
	return nil
}

func (g *fakeGraph) NodesByID(_ context.Context, userID string, ids []string) ([]*models.LongTermNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.LongTermNode
	for _, id := range ids {
		if node, ok := g.nodes[id]; ok && node.UserID == userID {
			out = append(out, node)
		}
	}
	return out, nil
}

func (g *fakeGraph) EmbeddedNodes(_ context.Context, userID string) ([]*models.LongTermNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.LongTermNode
	for _, node := range g.nodes {
		if node.UserID == userID && len(node.Embedding) > 0 {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *fakeGraph) LatestEpisode(_ context.Context, userID string) (*models.LongTermNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var latest *models.LongTermNode
	for _, node := range g.nodes {
		if node.UserID != userID {
			continue
		}
		if latest == nil || node.Timestamp.After(latest.Timestamp) {
			latest = node
		}
	}
	return latest, nil
}

func (g *fakeGraph) RecentByEmotion(_ context.Context, userID, emotion string, limit int) ([]*models.LongTermNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.LongTermNode
	for _, node := range g.nodes {
		if node.UserID == userID && node.EmotionalState != nil && node.EmotionalState.PrimaryEmotion == emotion {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) CreateEdge(_ context.Context, _, fromID, toID, edgeType string, weight float64) error {
	g.link(fromID, toID, edgeType, weight)
	return nil
}

func (g *fakeGraph) LinkConsolidatedFrom(_ context.Context, semanticID string, episodeIDs []string, confidence float64) error {
	for _, id := range episodeIDs {
		g.link(semanticID, id, models.EdgeConsolidatedFrom, confidence)
	}
	return nil
}

func (g *fakeGraph) Neighbors(_ context.Context, userID, nodeID string) ([]models.Neighbor, error) {
	if g.failNeighbors {
		return nil, fmt.Errorf("neighbors unavailable")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.Neighbor
	for _, edge := range g.edges {
		if edge.kind == models.EdgeConsolidatedFrom {
			continue
		}
		var otherID string
		switch nodeID {
		case edge.from:
			otherID = edge.to
		case edge.to:
			otherID = edge.from
		default:
			continue
		}
		node, ok := g.nodes[otherID]
		if !ok || node.UserID != userID {
			continue
		}
		out = append(out, models.Neighbor{Node: node, EdgeType: edge.kind, Weight: edge.weight})
	}
	return out, nil
}

func (g *fakeGraph) ConsolidationCandidates(_ context.Context, userID string, since time.Time, limit int) ([]*models.LongTermNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*models.LongTermNode
	for _, node := range g.nodes {
		if node.UserID == userID && !node.Consolidated && node.Timestamp.After(since) {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *fakeGraph) MarkConsolidated(_ context.Context, userID string, ids []string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if node, ok := g.nodes[id]; ok && node.UserID == userID {
			node.Consolidated = true
			node.ConsolidatedAt = &at
		}
	}
	return nil
}

func (g *fakeGraph) ApplyAging(_ context.Context, userID string, olderThan time.Time, consolidatedWeight, defaultWeight float64) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	updated := 0
	for _, node := range g.nodes {
		if node.UserID != userID || !node.Timestamp.Before(olderThan) {
			continue
		}
		if node.RetentionWeight <= defaultWeight {
			continue
		}
		if node.Consolidated {
			node.RetentionWeight = consolidatedWeight
		} else {
			node.RetentionWeight = defaultWeight
		}
		updated++
	}
	return updated, nil
}

func (g *fakeGraph) ReinforceAccess(_ context.Context, userID string, ids []string, boost float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		node, ok := g.nodes[id]
		if !ok || node.UserID != userID {
			continue
		}
		node.AccessCount++
		node.LastAccessedAt = &now
		node.RetentionWeight += boost
		if node.RetentionWeight > 1.0 {
			node.RetentionWeight = 1.0
		}
	}
	return nil
}

func (g *fakeGraph) RetentionStats(_ context.Context, userID string, limit int) ([]*models.RetentionStat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var stats []*models.RetentionStat
	for _, node := range g.nodes {
		if node.UserID != userID {
			continue
		}
		stats = append(stats, &models.RetentionStat{
			MemoryID:        node.ID,
			RetentionWeight: node.RetentionWeight,
			AccessCount:     node.AccessCount,
			Consolidated:    node.Consolidated,
			LastAccessedAt:  node.LastAccessedAt,
			Timestamp:       node.Timestamp,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].RetentionWeight < stats[j].RetentionWeight })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (g *fakeGraph) LowRetentionIDs(_ context.Context, userID string, threshold float64) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []string
	for _, node := range g.nodes {
		if node.UserID == userID && node.RetentionWeight <= threshold {
			ids = append(ids, node.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *fakeGraph) DeleteNodes(_ context.Context, userID string, ids []string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if node, ok := g.nodes[id]; ok && node.UserID == userID {
			delete(g.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (g *fakeGraph) PurgeOlderThan(_ context.Context, userID string, cutoff time.Time) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deleted := 0
	for id, node := range g.nodes {
		if node.UserID == userID && node.Timestamp.Before(cutoff) {
			delete(g.nodes, id)
			deleted++
		}
	}
	return deleted, nil
}
