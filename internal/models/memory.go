package models

import (
	"time"
)

// MessageRole identifies who produced a memory item.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Retention states derived from a node's current retention weight.
const (
	RetentionActive    = "active"
	RetentionFading    = "fading"
	RetentionForgotten = "forgotten"
)

// Pattern types detected by the consolidation pipeline.
const (
	PatternEmotional = "emotional"
	PatternSemantic  = "semantic"
)

// Edge types in the long-term memory graph.
const (
	EdgeTemporal         = "TEMPORAL"
	EdgeSimilar          = "SIMILAR"
	EdgeEmotional        = "EMOTIONAL"
	EdgeConsolidatedFrom = "CONSOLIDATED_FROM"
)

// EmotionalState represents a VAD (Valence-Arousal-Dominance) affect record
// produced by the external classifier.
type EmotionalState struct {
	Valence        float64            `json:"valence"`   // -1 to 1
	Arousal        float64            `json:"arousal"`   // 0 to 1
	Dominance      float64            `json:"dominance"` // -1 to 1
	Confidence     float64            `json:"confidence"`
	PrimaryEmotion string             `json:"primary_emotion"`
	EmotionScores  map[string]float64 `json:"emotion_scores,omitempty"`
}

// Intensity calculates the emotional intensity used for memory weighting:
// arousal dominates, absolute valence contributes, confidence scales the result.
func (e *EmotionalState) Intensity() float64 {
	if e == nil {
		return 0.0
	}
	intensity := (0.4 * abs(e.Valence)) + (0.6 * e.Arousal)
	intensity *= e.Confidence
	if intensity < 0 {
		return 0
	}
	if intensity > 1 {
		return 1
	}
	return intensity
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MemoryItem is a single episodic interaction record. It lives in the context
// window verbatim and, when promoted, as a long-term graph node.
type MemoryItem struct {
	ID             string            `json:"id"` // ULID, time-sortable
	UserID         string            `json:"user_id"`
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	Role           string            `json:"role"` // RoleUser or RoleAssistant
	Embedding      []float32         `json:"embedding,omitempty"`
	EmotionalState *EmotionalState   `json:"emotional_state,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// LongTermNode is a MemoryItem projected into the long-term graph with
// retention bookkeeping. Owned exclusively by the long-term store.
type LongTermNode struct {
	MemoryItem

	RetentionWeight float64    `json:"retention_weight"` // 0.0-1.0
	Consolidated    bool       `json:"consolidated"`
	ConsolidatedAt  *time.Time `json:"consolidated_at,omitempty"`
	AccessCount     int64      `json:"access_count"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
}

// SemanticNode is knowledge distilled from a pattern of episodic memories.
// Created only by the consolidation pipeline; immutable except decay fields.
type SemanticNode struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	Category    string     `json:"category"`
	Confidence  float64    `json:"confidence"` // 0.0-1.0
	PatternType string     `json:"pattern_type"`
	SourceCount int        `json:"source_count"`
	SourceIDs   []string   `json:"source_ids"` // provenance snapshot, survives source purges
	Embedding   []float32  `json:"embedding,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	RetentionWeight float64 `json:"retention_weight"`
	AccessCount     int64   `json:"access_count"`
}

// SemanticSummary is the structured output of the external summarizer.
type SemanticSummary struct {
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Valid reports whether the summarizer returned every required field.
// A malformed response is discarded and its pattern skipped.
func (s *SemanticSummary) Valid() bool {
	return s != nil && s.Title != "" && s.Summary != "" && s.Category != "" &&
		s.Confidence >= 0.0 && s.Confidence <= 1.0
}

// Neighbor is an adjacent node in the long-term graph with its edge metadata.
type Neighbor struct {
	Node     *LongTermNode `json:"node"`
	EdgeType string        `json:"edge_type"`
	Weight   float64       `json:"weight"` // stored weight, 0.0-1.0
}

// ScoredMemory pairs a retrieved node with its similarity score.
type ScoredMemory struct {
	Node       *LongTermNode `json:"node"`
	Similarity float64       `json:"similarity"`
}

// RetrievalResult is the outcome of a similarity search.
type RetrievalResult struct {
	Memories       []ScoredMemory `json:"memories"`
	TotalRetrieved int            `json:"total_retrieved"`
	RetrievalTime  time.Duration  `json:"retrieval_time"`
	FromCache      bool           `json:"from_cache"`
	Degraded       bool           `json:"degraded"` // true when retrieval failed and fell back to empty
}

// ActivatedMemory is a node reached by spreading activation, with the
// traversal explanation attached.
type ActivatedMemory struct {
	Node       *LongTermNode `json:"node"`
	Activation float64       `json:"activation"`
	Depth      int           `json:"depth"`
	Path       []string      `json:"path"` // node ids from seed to this node
}

// Pattern is a group of episodic memories detected as repeated experience.
type Pattern struct {
	Type           string          `json:"type"` // PatternEmotional or PatternSemantic
	PrimaryEmotion string          `json:"primary_emotion,omitempty"`
	Memories       []*LongTermNode `json:"memories"`
	EpisodeIDs     []string        `json:"episode_ids"`
	Count          int             `json:"count"`
}

// ConsolidationResult summarizes one consolidation run for one user.
type ConsolidationResult struct {
	UserID            string    `json:"user_id"`
	EpisodesProcessed int       `json:"episodes_processed"`
	PatternsFound     int       `json:"patterns_found"`
	SemanticCreated   int       `json:"semantic_created"`
	Errors            []string  `json:"errors,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}

// ConsolidationProgress is the TTL-bounded per-user progress record kept in
// Redis after each run, for idempotence checks and observability.
type ConsolidationProgress struct {
	LastConsolidation    time.Time `json:"last_consolidation"`
	EpisodesConsolidated int       `json:"episodes_consolidated"`
	EpisodeIDs           []string  `json:"episode_ids"`
}

// RetentionStat is one node's forgetting-curve bookkeeping.
type RetentionStat struct {
	MemoryID        string     `json:"memory_id"`
	RetentionWeight float64    `json:"retention_weight"`
	RetentionState  string     `json:"retention_state"`
	AccessCount     int64      `json:"access_count"`
	Consolidated    bool       `json:"consolidated"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// CleanupResult reports what a cleanup pass deleted (or would delete).
type CleanupResult struct {
	DryRun    bool     `json:"dry_run"`
	Count     int      `json:"count"`
	MemoryIDs []string `json:"memory_ids"`
}
