package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"

	"memoria/internal/database"
	"memoria/internal/models"
)

// timestampLayout is fixed-width on purpose: timestamps are compared as
// strings in Cypher, and RFC3339Nano trims trailing fractional zeros, which
// makes lexicographic order diverge from time order ("...00.5Z" sorts after
// "...00.51Z"). Parsing still goes through time.RFC3339Nano, which accepts
// both forms.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// MemoryGraphService is the Neo4j-backed implementation of MemoryGraph.
// Episodic nodes carry the :Memory label, semantic nodes :Memory:Semantic.
type MemoryGraphService struct {
	db *database.Neo4j
}

// NewMemoryGraphService creates the Neo4j graph repository.
func NewMemoryGraphService(db *database.Neo4j) *MemoryGraphService {
	return &MemoryGraphService{db: db}
}

// CreateNode writes an episodic node with all of its fields.
func (s *MemoryGraphService) CreateNode(ctx context.Context, node *models.LongTermNode) error {
	query := `
		CREATE (m:Memory {
			id: $id,
			user_id: $user_id,
			content: $content,
			timestamp: $timestamp,
			role: $role,
			embedding: $embedding,
			valence: $valence,
			arousal: $arousal,
			dominance: $dominance,
			affect_confidence: $affect_confidence,
			primary_emotion: $primary_emotion,
			emotion_scores: $emotion_scores,
			metadata: $metadata,
			retention_weight: $retention_weight,
			consolidated: $consolidated,
			access_count: $access_count
		})
	`

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, episodicProps(node))
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// CreateSemanticNode writes a semantic node. The provenance snapshot
// (source_ids, source_count) is written at creation and never touched again.
func (s *MemoryGraphService) CreateSemanticNode(ctx context.Context, node *models.SemanticNode) error {
	query := `
		CREATE (m:Memory:Semantic {
			id: $id,
			user_id: $user_id,
			title: $title,
			summary: $summary,
			category: $category,
			confidence: $confidence,
			pattern_type: $pattern_type,
			source_count: $source_count,
			source_ids: $source_ids,
			embedding: $embedding,
			timestamp: $timestamp,
			retention_weight: $retention_weight,
			consolidated: true,
			access_count: 0
		})
	`

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"id":               node.ID,
			"user_id":          node.UserID,
			"title":            node.Title,
			"summary":          node.Summary,
			"category":         node.Category,
			"confidence":       node.Confidence,
			"pattern_type":     node.PatternType,
			"source_count":     node.SourceCount,
			"source_ids":       node.SourceIDs,
			"embedding":        floatsToAny(node.Embedding),
			"timestamp":        formatTimestamp(node.CreatedAt),
			"retention_weight": node.RetentionWeight,
		})
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// CreateEdge merges an associative edge between two of the user's nodes.
func (s *MemoryGraphService) CreateEdge(ctx context.Context, userID, fromID, toID, edgeType string, weight float64) error {
	switch edgeType {
	case models.EdgeTemporal, models.EdgeSimilar, models.EdgeEmotional:
	default:
		return &models.ValidationError{Reason: fmt.Sprintf("unsupported edge type %q", edgeType)}
	}

	query := fmt.Sprintf(`
		MATCH (a:Memory {id: $from_id, user_id: $user_id})
		MATCH (b:Memory {id: $to_id, user_id: $user_id})
		MERGE (a)-[r:%s]->(b)
		SET r.weight = $weight
	`, edgeType)

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"from_id": fromID,
			"to_id":   toID,
			"user_id": userID,
			"weight":  clamp01(weight),
		})
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// LinkConsolidatedFrom creates provenance edges from a semantic node to each
// of its episodic sources, carrying the pattern's confidence.
func (s *MemoryGraphService) LinkConsolidatedFrom(ctx context.Context, semanticID string, episodeIDs []string, confidence float64) error {
	query := `
		MATCH (s:Memory:Semantic {id: $semantic_id})
		MATCH (e:Memory)
		WHERE e.id IN $episode_ids
		MERGE (s)-[r:CONSOLIDATED_FROM]->(e)
		SET r.confidence = $confidence, r.timestamp = $timestamp
	`

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"semantic_id": semanticID,
			"episode_ids": episodeIDs,
			"confidence":  confidence,
			"timestamp":   formatTimestamp(time.Now()),
		})
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// NodesByID fetches full nodes for the given ids, episodic and semantic alike.
func (s *MemoryGraphService) NodesByID(ctx context.Context, userID string, ids []string) ([]*models.LongTermNode, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE m.id IN $ids
		RETURN m
	`
	return s.readNodes(ctx, query, map[string]any{"user_id": userID, "ids": ids})
}

// EmbeddedNodes returns every node of the user that has an embedding.
// Semantic nodes are included so consolidated knowledge stays retrievable.
func (s *MemoryGraphService) EmbeddedNodes(ctx context.Context, userID string) ([]*models.LongTermNode, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE m.embedding IS NOT NULL
		RETURN m
	`
	return s.readNodes(ctx, query, map[string]any{"user_id": userID})
}

// LatestEpisode returns the user's most recent episodic node, or nil.
func (s *MemoryGraphService) LatestEpisode(ctx context.Context, userID string) (*models.LongTermNode, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic
		RETURN m
		ORDER BY m.timestamp DESC
		LIMIT 1
	`
	nodes, err := s.readNodes(ctx, query, map[string]any{"user_id": userID})
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// RecentByEmotion returns the user's most recent episodic nodes sharing a
// primary emotion.
func (s *MemoryGraphService) RecentByEmotion(ctx context.Context, userID, emotion string, limit int) ([]*models.LongTermNode, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id, primary_emotion: $emotion})
		WHERE NOT m:Semantic
		RETURN m
		ORDER BY m.timestamp DESC
		LIMIT $limit
	`
	return s.readNodes(ctx, query, map[string]any{
		"user_id": userID,
		"emotion": emotion,
		"limit":   limit,
	})
}

// Neighbors returns nodes adjacent through the three associative edge types,
// regardless of edge direction, with their stored weights.
func (s *MemoryGraphService) Neighbors(ctx context.Context, userID, nodeID string) ([]models.Neighbor, error) {
	query := `
		MATCH (m:Memory {id: $node_id, user_id: $user_id})
		MATCH (m)-[r]-(n:Memory {user_id: $user_id})
		WHERE type(r) IN ['TEMPORAL', 'SIMILAR', 'EMOTIONAL']
		RETURN n, type(r) AS edge_type, r.weight AS weight
	`

	result, err := s.db.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"node_id": nodeID, "user_id": userID})
		if err != nil {
			return nil, err
		}

		var neighbors []models.Neighbor
		for res.Next(ctx) {
			record := res.Record()
			rawNode, _ := record.Get("n")
			node, err := nodeFromProps(rawNode.(neo4j.Node).Props)
			if err != nil {
				continue
			}

			edgeType, _ := record.Get("edge_type")
			weight := 0.0
			if rawWeight, _ := record.Get("weight"); rawWeight != nil {
				weight, _ = rawWeight.(float64)
			}

			neighbors = append(neighbors, models.Neighbor{
				Node:     node,
				EdgeType: edgeType.(string),
				Weight:   weight,
			})
		}
		return neighbors, res.Err()
	})
	if err != nil {
		return nil, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	return result.([]models.Neighbor), nil
}

// ConsolidationCandidates returns unconsolidated episodic nodes newer than
// since, newest first, capped at limit.
func (s *MemoryGraphService) ConsolidationCandidates(ctx context.Context, userID string, since time.Time, limit int) ([]*models.LongTermNode, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic
		AND (m.consolidated IS NULL OR m.consolidated = false)
		AND m.timestamp > $since
		RETURN m
		ORDER BY m.timestamp DESC
		LIMIT $limit
	`
	return s.readNodes(ctx, query, map[string]any{
		"user_id": userID,
		"since":   formatTimestamp(since),
		"limit":   limit,
	})
}

// MarkConsolidated flags the given episodes as consolidated.
func (s *MemoryGraphService) MarkConsolidated(ctx context.Context, userID string, ids []string, at time.Time) error {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE m.id IN $ids
		SET m.consolidated = true, m.consolidated_at = $at
	`

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"user_id": userID,
			"ids":     ids,
			"at":      formatTimestamp(at),
		})
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// ApplyAging sets the forgetting-curve retention weight on every episodic node
// older than olderThan: consolidatedWeight when the node was consolidated,
// defaultWeight otherwise. Returns the number of nodes touched.
func (s *MemoryGraphService) ApplyAging(ctx context.Context, userID string, olderThan time.Time, consolidatedWeight, defaultWeight float64) (int, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic
		AND m.timestamp < $older_than
		AND (m.retention_weight IS NULL OR m.retention_weight > $default_weight)
		SET m.retention_weight =
			CASE
				WHEN m.consolidated = true THEN $consolidated_weight
				ELSE $default_weight
			END
		RETURN count(m) AS updated
	`

	result, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"user_id":             userID,
			"older_than":          formatTimestamp(olderThan),
			"consolidated_weight": consolidatedWeight,
			"default_weight":      defaultWeight,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		updated, _ := record.Get("updated")
		return updated, nil
	})
	if err != nil {
		return 0, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	return int(result.(int64)), nil
}

// ReinforceAccess increments access counters and nudges retention weight back
// up, capped at 1.0. This is the only upward writer of retention weight.
func (s *MemoryGraphService) ReinforceAccess(ctx context.Context, userID string, ids []string, boost float64) error {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE m.id IN $ids
		SET m.access_count = coalesce(m.access_count, 0) + 1,
			m.last_accessed_at = $now,
			m.retention_weight =
				CASE
					WHEN coalesce(m.retention_weight, 1.0) + $boost > 1.0 THEN 1.0
					ELSE coalesce(m.retention_weight, 1.0) + $boost
				END
	`

	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"user_id": userID,
			"ids":     ids,
			"now":     formatTimestamp(time.Now()),
			"boost":   boost,
		})
	})
	if err != nil {
		return &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return nil
}

// RetentionStats returns per-node retention bookkeeping, weakest first.
func (s *MemoryGraphService) RetentionStats(ctx context.Context, userID string, limit int) ([]*models.RetentionStat, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic
		RETURN m.id AS id,
			coalesce(m.retention_weight, 1.0) AS retention_weight,
			coalesce(m.access_count, 0) AS access_count,
			coalesce(m.consolidated, false) AS consolidated,
			m.last_accessed_at AS last_accessed_at,
			m.timestamp AS timestamp
		ORDER BY retention_weight ASC
		LIMIT $limit
	`

	result, err := s.db.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"user_id": userID, "limit": limit})
		if err != nil {
			return nil, err
		}

		var stats []*models.RetentionStat
		for res.Next(ctx) {
			record := res.Record()
			stat := &models.RetentionStat{}

			if v, _ := record.Get("id"); v != nil {
				stat.MemoryID = v.(string)
			}
			if v, _ := record.Get("retention_weight"); v != nil {
				stat.RetentionWeight = v.(float64)
			}
			if v, _ := record.Get("access_count"); v != nil {
				stat.AccessCount = v.(int64)
			}
			if v, _ := record.Get("consolidated"); v != nil {
				stat.Consolidated = v.(bool)
			}
			if v, _ := record.Get("last_accessed_at"); v != nil {
				if ts, err := time.Parse(time.RFC3339Nano, v.(string)); err == nil {
					stat.LastAccessedAt = &ts
				}
			}
			if v, _ := record.Get("timestamp"); v != nil {
				stat.Timestamp, _ = time.Parse(time.RFC3339Nano, v.(string))
			}

			stats = append(stats, stat)
		}
		return stats, res.Err()
	})
	if err != nil {
		return nil, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	return result.([]*models.RetentionStat), nil
}

// LowRetentionIDs returns ids of episodic nodes at or below the threshold.
func (s *MemoryGraphService) LowRetentionIDs(ctx context.Context, userID string, threshold float64) ([]string, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic AND m.retention_weight <= $threshold
		RETURN m.id AS id
	`

	result, err := s.db.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"user_id": userID, "threshold": threshold})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if v, _ := res.Record().Get("id"); v != nil {
				ids = append(ids, v.(string))
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	return result.([]string), nil
}

// DeleteNodes hard-deletes the given episodic nodes and their edges.
// CONSOLIDATED_FROM provenance survives as the source_ids snapshot written on
// the semantic node at creation time.
func (s *MemoryGraphService) DeleteNodes(ctx context.Context, userID string, ids []string) (int, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE m.id IN $ids AND NOT m:Semantic
		DETACH DELETE m
		RETURN count(m) AS deleted
	`
	return s.deleteCount(ctx, query, map[string]any{"user_id": userID, "ids": ids})
}

// PurgeOlderThan hard-deletes episodic nodes strictly older than cutoff.
func (s *MemoryGraphService) PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	query := `
		MATCH (m:Memory {user_id: $user_id})
		WHERE NOT m:Semantic AND m.timestamp < $cutoff
		DETACH DELETE m
		RETURN count(m) AS deleted
	`
	return s.deleteCount(ctx, query, map[string]any{
		"user_id": userID,
		"cutoff":  formatTimestamp(cutoff),
	})
}

func (s *MemoryGraphService) deleteCount(ctx context.Context, query string, params map[string]any) (int, error) {
	result, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		deleted, _ := record.Get("deleted")
		return deleted, nil
	})
	if err != nil {
		return 0, &models.ConnectivityError{Service: "neo4j", Err: err}
	}
	return int(result.(int64)), nil
}

func (s *MemoryGraphService) readNodes(ctx context.Context, query string, params map[string]any) ([]*models.LongTermNode, error) {
	result, err := s.db.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		var nodes []*models.LongTermNode
		for res.Next(ctx) {
			rawNode, _ := res.Record().Get("m")
			node, err := nodeFromProps(rawNode.(neo4j.Node).Props)
			if err != nil {
				// Corrupt node: log-and-skip is handled by the caller's result
				// size; a single bad node never aborts the read.
				continue
			}
			nodes = append(nodes, node)
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	return result.([]*models.LongTermNode), nil
}

func episodicProps(node *models.LongTermNode) map[string]any {
	valence, arousal, dominance, affectConfidence := 0.0, 0.0, 0.0, 0.0
	primaryEmotion := "neutral"
	emotionScores := "{}"
	if node.EmotionalState != nil {
		valence = node.EmotionalState.Valence
		arousal = node.EmotionalState.Arousal
		dominance = node.EmotionalState.Dominance
		affectConfidence = node.EmotionalState.Confidence
		primaryEmotion = node.EmotionalState.PrimaryEmotion
		if raw, err := json.Marshal(node.EmotionalState.EmotionScores); err == nil {
			emotionScores = string(raw)
		}
	}

	metadata := "{}"
	if raw, err := json.Marshal(node.Metadata); err == nil && node.Metadata != nil {
		metadata = string(raw)
	}

	return map[string]any{
		"id":                node.ID,
		"user_id":           node.UserID,
		"content":           node.Content,
		"timestamp":         formatTimestamp(node.Timestamp),
		"role":              node.Role,
		"embedding":         floatsToAny(node.Embedding),
		"valence":           valence,
		"arousal":           arousal,
		"dominance":         dominance,
		"affect_confidence": affectConfidence,
		"primary_emotion":   primaryEmotion,
		"emotion_scores":    emotionScores,
		"metadata":          metadata,
		"retention_weight":  node.RetentionWeight,
		"consolidated":      node.Consolidated,
		"access_count":      node.AccessCount,
	}
}

func nodeFromProps(props map[string]any) (*models.LongTermNode, error) {
	node := &models.LongTermNode{}

	id, ok := props["id"].(string)
	if !ok {
		return nil, &models.DecodeError{Key: "memory node", Err: fmt.Errorf("missing id")}
	}
	node.ID = id
	node.UserID, _ = props["user_id"].(string)
	node.Content, _ = props["content"].(string)
	node.Role, _ = props["role"].(string)

	// Semantic nodes carry no content; project title and summary so they
	// surface through similarity search and activation like any other memory.
	if node.Content == "" {
		if title, ok := props["title"].(string); ok && title != "" {
			node.Content = title
			if summary, ok := props["summary"].(string); ok && summary != "" {
				node.Content = title + ": " + summary
			}
		}
	}

	if raw, ok := props["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			node.Timestamp = ts
		}
	}

	if raw, ok := props["embedding"].([]any); ok {
		node.Embedding = anyToFloats(raw)
	}

	state := &models.EmotionalState{PrimaryEmotion: "neutral"}
	state.Valence, _ = props["valence"].(float64)
	state.Arousal, _ = props["arousal"].(float64)
	state.Dominance, _ = props["dominance"].(float64)
	state.Confidence, _ = props["affect_confidence"].(float64)
	if emotion, ok := props["primary_emotion"].(string); ok {
		state.PrimaryEmotion = emotion
	}
	if raw, ok := props["emotion_scores"].(string); ok && raw != "" {
		scores := map[string]float64{}
		if err := json.Unmarshal([]byte(raw), &scores); err == nil {
			state.EmotionScores = scores
		}
	}
	node.EmotionalState = state

	if raw, ok := props["metadata"].(string); ok && raw != "" && raw != "{}" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &metadata); err == nil {
			node.Metadata = metadata
		}
	}

	if weight, ok := props["retention_weight"].(float64); ok {
		node.RetentionWeight = weight
	} else {
		node.RetentionWeight = 1.0
	}
	node.Consolidated, _ = props["consolidated"].(bool)
	node.AccessCount, _ = props["access_count"].(int64)

	if raw, ok := props["consolidated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			node.ConsolidatedAt = &ts
		}
	}
	if raw, ok := props["last_accessed_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			node.LastAccessedAt = &ts
		}
	}

	return node, nil
}

func floatsToAny(values []float32) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

func anyToFloats(values []any) []float32 {
	out := make([]float32, 0, len(values))
	for _, v := range values {
		if f, ok := v.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
