package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"memoria/internal/models"
)

// Embedder turns text into a fixed-length vector. Implementations are external
// (ONNX runtime, remote embedding API); the engine only depends on this contract.
// Embeddings are assumed deterministic for a given text and model version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// AffectClassifier produces a VAD record for a piece of text.
type AffectClassifier interface {
	Classify(ctx context.Context, text string) (*models.EmotionalState, error)
}

// Summarizer distills a pattern of episodic contents into structured semantic
// knowledge. A malformed response is the caller's problem to discard.
type Summarizer interface {
	Summarize(ctx context.Context, contents []string, patternType string) (*models.SemanticSummary, error)
}

// CachedEmbedder wraps an Embedder with a TTL cache keyed by content hash.
// Determinism of the underlying model makes this safe.
type CachedEmbedder struct {
	inner Embedder
	cache *gocache.Cache
}

// NewCachedEmbedder creates a caching wrapper around inner.
func NewCachedEmbedder(inner Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if cached, found := c.cache.Get(key); found {
		return cached.([]float32), nil
	}

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, embedding, gocache.DefaultExpiration)
	return embedding, nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if cached, found := c.cache.Get(hashText(text)); found {
			result[i] = cached.([]float32)
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	embeddings, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, embedding := range embeddings {
		result[missingIdx[j]] = embedding
		c.cache.Set(hashText(missing[j]), embedding, gocache.DefaultExpiration)
	}

	return result, nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CosineSimilarity computes cosine similarity between two vectors,
// clamped to [0, 1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0.0, math.Min(1.0, similarity))
}

// EmotionOverlapSimilarity computes cosine similarity between two per-label
// emotion score maps over their shared labels. Returns 0 when there is no
// overlap or either side is empty.
func EmotionOverlapSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	shared := false
	for label, scoreA := range a {
		scoreB, ok := b[label]
		if !ok {
			continue
		}
		shared = true
		dot += scoreA * scoreB
		normA += scoreA * scoreA
		normB += scoreB * scoreB
	}

	if !shared || normA == 0 || normB == 0 {
		return 0.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0.0, similarity)
}
