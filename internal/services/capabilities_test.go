package services

import (
	"context"
	"math"
	"testing"
	"time"
)

// TestCosineSimilarity tests vector similarity edge cases and clamping
func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name      string
		a, b      []float32
		expected  float64
		tolerance float64
	}{
		{
			name:      "Identical vectors",
			a:         []float32{1, 2, 3},
			b:         []float32{1, 2, 3},
			expected:  1.0,
			tolerance: 0.0001,
		},
		{
			name:      "Orthogonal vectors",
			a:         []float32{1, 0},
			b:         []float32{0, 1},
			expected:  0.0,
			tolerance: 0.0001,
		},
		{
			name:      "Opposite vectors clamp to zero",
			a:         []float32{1, 0},
			b:         []float32{-1, 0},
			expected:  0.0,
			tolerance: 0.0001,
		},
		{
			name:      "Known angle",
			a:         []float32{1, 0, 0},
			b:         []float32{0.9, 0.43589, 0},
			expected:  0.9,
			tolerance: 0.001,
		},
		{
			name:     "Mismatched lengths",
			a:        []float32{1, 2},
			b:        []float32{1, 2, 3},
			expected: 0.0,
		},
		{
			name:     "Empty vectors",
			a:        nil,
			b:        nil,
			expected: 0.0,
		},
		{
			name:     "Zero vector",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 2, 3},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Expected %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

// TestEmotionOverlapSimilarity tests label-map similarity over shared labels
func TestEmotionOverlapSimilarity(t *testing.T) {
	tests := []struct {
		name      string
		a, b      map[string]float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "Identical maps",
			a:         map[string]float64{"joy": 0.8, "trust": 0.4},
			b:         map[string]float64{"joy": 0.8, "trust": 0.4},
			expected:  1.0,
			tolerance: 0.0001,
		},
		{
			name:     "No shared labels",
			a:        map[string]float64{"joy": 0.8},
			b:        map[string]float64{"sadness": 0.9},
			expected: 0.0,
		},
		{
			name:     "Empty side",
			a:        map[string]float64{},
			b:        map[string]float64{"joy": 0.8},
			expected: 0.0,
		},
		{
			name:     "Both nil",
			a:        nil,
			b:        nil,
			expected: 0.0,
		},
		{
			name:      "Partial overlap only counts shared labels",
			a:         map[string]float64{"joy": 0.6, "anger": 0.2},
			b:         map[string]float64{"joy": 0.9, "fear": 0.5},
			expected:  1.0,
			tolerance: 0.0001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmotionOverlapSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Expected %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

// TestCachedEmbedderReusesVectors verifies the content-hash cache short-circuits
// repeat embeddings of the same text.
func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := newFakeEmbedder(3)
	inner.set("hello", []float32{1, 0, 0})

	cached := NewCachedEmbedder(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vector, err := cached.Embed(ctx, "hello")
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		if vector[0] != 1 {
			t.Errorf("Unexpected vector: %v", vector)
		}
	}

	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", inner.calls)
	}
}

// TestCachedEmbedderBatchFillsOnlyMisses verifies batch embedding hits the
// upstream only for uncached texts.
func TestCachedEmbedderBatchFillsOnlyMisses(t *testing.T) {
	inner := newFakeEmbedder(3)
	inner.set("a", []float32{1, 0, 0})
	inner.set("b", []float32{0, 1, 0})

	cached := NewCachedEmbedder(inner, time.Minute)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "a"); err != nil {
		t.Fatalf("warm-up failed: %v", err)
	}
	inner.calls = 0

	vectors, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("Unexpected vectors: %v", vectors)
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 upstream call for the miss, got %d", inner.calls)
	}
}
