package services

import (
	"context"
	"time"

	"memoria/internal/models"
)

// MemoryGraph is the storage contract for the long-term memory graph.
// The production implementation is Neo4j-backed; tests use an in-memory fake.
type MemoryGraph interface {
	// Nodes
	CreateNode(ctx context.Context, node *models.LongTermNode) error
	CreateSemanticNode(ctx context.Context, node *models.SemanticNode) error
	NodesByID(ctx context.Context, userID string, ids []string) ([]*models.LongTermNode, error)
	EmbeddedNodes(ctx context.Context, userID string) ([]*models.LongTermNode, error)
	LatestEpisode(ctx context.Context, userID string) (*models.LongTermNode, error)
	RecentByEmotion(ctx context.Context, userID, emotion string, limit int) ([]*models.LongTermNode, error)

	// Edges
	CreateEdge(ctx context.Context, userID, fromID, toID, edgeType string, weight float64) error
	LinkConsolidatedFrom(ctx context.Context, semanticID string, episodeIDs []string, confidence float64) error
	Neighbors(ctx context.Context, userID, nodeID string) ([]models.Neighbor, error)

	// Consolidation bookkeeping
	ConsolidationCandidates(ctx context.Context, userID string, since time.Time, limit int) ([]*models.LongTermNode, error)
	MarkConsolidated(ctx context.Context, userID string, ids []string, at time.Time) error

	// Forgetting curve
	ApplyAging(ctx context.Context, userID string, olderThan time.Time, consolidatedWeight, defaultWeight float64) (int, error)
	ReinforceAccess(ctx context.Context, userID string, ids []string, boost float64) error
	RetentionStats(ctx context.Context, userID string, limit int) ([]*models.RetentionStat, error)
	LowRetentionIDs(ctx context.Context, userID string, threshold float64) ([]string, error)
	DeleteNodes(ctx context.Context, userID string, ids []string) (int, error)
	PurgeOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)
}
