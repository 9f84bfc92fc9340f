package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all engine configuration
type Config struct {
	Port          string
	RedisURL      string
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Context window (short-term memory)
	ContextWindowSize int           // clamped to [MinContextWindow, MaxContextWindow]
	ContextWindowTTL  time.Duration // sliding expiry, reset on every write

	// Long-term promotion and retrieval
	EmbeddingDim        int
	PromotionIntensity  float64 // affect intensity above which a message is promoted
	PromotionMinLength  int     // content length above which a message is promoted
	ImportancePhrases   []string
	SimilarityThreshold float64
	SimilarityCacheTTL  time.Duration

	// Associative edges created after each long-term store
	LinkSimilarityThreshold float64
	LinkEmotionalWindow     int // how many recent nodes to consider for EMOTIONAL edges

	// Spreading activation
	ActivationDecay       float64
	ActivationThreshold   float64
	MaxDepth              int
	MaxActivatedNodes     int
	SeedCount             int
	SeedMinSimilarity     float64
	EdgeWeightDefault     float64
	EmotionalWeightFactor float64
	TemporalHalfLife      time.Duration
	TemporalFloor         float64

	// Consolidation
	ConsolidationWindow    time.Duration // candidate lookback
	ConsolidationBatchSize int
	RepetitionThreshold    int
	ClusterSimilarity      float64
	ConsolidationRetries   int
	ConsolidationBackoff   time.Duration
	ConsolidationSchedule  string // cron expression
	ProgressTTL            time.Duration

	// Forgetting curve
	AgingAfter           time.Duration // episodic age before the aging pass touches a node
	ConsolidatedWeight   float64       // retention weight after aging, consolidated nodes
	UnconsolidatedWeight float64       // retention weight after aging, everything else
	AccessReinforcement  float64       // retention boost per recorded access
	ActiveThreshold      float64       // weight >= this is "active"
	ForgottenThreshold   float64       // weight <= this is "forgotten"

	// Quotas (per user per window, enforced in Redis)
	MemoryOpsPerMinute int64
	QuotaWindow        time.Duration

	// External call bounds
	StoreTimeout      time.Duration
	CapabilityTimeout time.Duration
}

// Context window bounds. The configured size is always clamped into this range.
const (
	MinContextWindow = 20
	MaxContextWindow = 100
)

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),

		ContextWindowSize: clampWindow(getIntEnv("CONTEXT_WINDOW_SIZE", 50)),
		ContextWindowTTL:  getDurationEnv("CONTEXT_WINDOW_TTL", 24*time.Hour),

		EmbeddingDim:        getIntEnv("EMBEDDING_DIM", 384),
		PromotionIntensity:  getFloatEnv("PROMOTION_INTENSITY", 0.6),
		PromotionMinLength:  getIntEnv("PROMOTION_MIN_LENGTH", 50),
		ImportancePhrases:   getListEnv("IMPORTANCE_PHRASES", []string{"remember", "important", "never forget", "always"}),
		SimilarityThreshold: getFloatEnv("SIMILARITY_THRESHOLD", 0.7),
		SimilarityCacheTTL:  getDurationEnv("SIMILARITY_CACHE_TTL", 5*time.Minute),

		LinkSimilarityThreshold: getFloatEnv("LINK_SIMILARITY_THRESHOLD", 0.75),
		LinkEmotionalWindow:     getIntEnv("LINK_EMOTIONAL_WINDOW", 20),

		ActivationDecay:       getFloatEnv("ACTIVATION_DECAY", 0.6),
		ActivationThreshold:   getFloatEnv("ACTIVATION_THRESHOLD", 0.3),
		MaxDepth:              getIntEnv("ACTIVATION_MAX_DEPTH", 5),
		MaxActivatedNodes:     getIntEnv("ACTIVATION_MAX_NODES", 500),
		SeedCount:             getIntEnv("ACTIVATION_SEED_COUNT", 5),
		SeedMinSimilarity:     getFloatEnv("ACTIVATION_SEED_MIN_SIMILARITY", 0.5),
		EdgeWeightDefault:     getFloatEnv("ACTIVATION_EDGE_WEIGHT_DEFAULT", 0.5),
		EmotionalWeightFactor: getFloatEnv("ACTIVATION_EMOTIONAL_FACTOR", 0.5),
		TemporalHalfLife:      getDurationEnv("ACTIVATION_TEMPORAL_HALFLIFE", 168*time.Hour),
		TemporalFloor:         getFloatEnv("ACTIVATION_TEMPORAL_FLOOR", 0.1),

		ConsolidationWindow:    getDurationEnv("CONSOLIDATION_WINDOW", 7*24*time.Hour),
		ConsolidationBatchSize: getIntEnv("CONSOLIDATION_BATCH_SIZE", 1000),
		RepetitionThreshold:    getIntEnv("CONSOLIDATION_REPETITION_THRESHOLD", 3),
		ClusterSimilarity:      getFloatEnv("CONSOLIDATION_CLUSTER_SIMILARITY", 0.7),
		ConsolidationRetries:   getIntEnv("CONSOLIDATION_RETRIES", 3),
		ConsolidationBackoff:   getDurationEnv("CONSOLIDATION_BACKOFF", 30*time.Second),
		ConsolidationSchedule:  getEnv("CONSOLIDATION_SCHEDULE", "0 */6 * * *"),
		ProgressTTL:            getDurationEnv("CONSOLIDATION_PROGRESS_TTL", 24*time.Hour),

		AgingAfter:           getDurationEnv("AGING_AFTER", 30*24*time.Hour),
		ConsolidatedWeight:   getFloatEnv("AGING_CONSOLIDATED_WEIGHT", 0.5),
		UnconsolidatedWeight: getFloatEnv("AGING_UNCONSOLIDATED_WEIGHT", 0.1),
		AccessReinforcement:  getFloatEnv("ACCESS_REINFORCEMENT", 0.05),
		ActiveThreshold:      getFloatEnv("RETENTION_ACTIVE_THRESHOLD", 0.6),
		ForgottenThreshold:   getFloatEnv("RETENTION_FORGOTTEN_THRESHOLD", 0.2),

		MemoryOpsPerMinute: int64(getIntEnv("MEMORY_OPS_PER_MINUTE", 120)),
		QuotaWindow:        getDurationEnv("QUOTA_WINDOW", time.Minute),

		StoreTimeout:      getDurationEnv("STORE_TIMEOUT", 10*time.Second),
		CapabilityTimeout: getDurationEnv("CAPABILITY_TIMEOUT", 60*time.Second),
	}
}

func clampWindow(size int) int {
	if size < MinContextWindow {
		return MinContextWindow
	}
	if size > MaxContextWindow {
		return MaxContextWindow
	}
	return size
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
