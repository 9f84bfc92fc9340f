package models

import (
	"math"
	"testing"
)

// TestEmotionalIntensity tests the intensity weighting formula
func TestEmotionalIntensity(t *testing.T) {
	tests := []struct {
		name      string
		state     *EmotionalState
		expected  float64
		tolerance float64
	}{
		{
			name:      "Strong positive affect",
			state:     &EmotionalState{Valence: 0.8, Arousal: 0.9, Confidence: 1.0},
			expected:  0.86,
			tolerance: 0.001,
		},
		{
			name:      "Negative valence counts by magnitude",
			state:     &EmotionalState{Valence: -0.8, Arousal: 0.9, Confidence: 1.0},
			expected:  0.86,
			tolerance: 0.001,
		},
		{
			name:      "Confidence scales intensity down",
			state:     &EmotionalState{Valence: 0.8, Arousal: 0.9, Confidence: 0.5},
			expected:  0.43,
			tolerance: 0.001,
		},
		{
			name:      "Zero confidence kills intensity",
			state:     &EmotionalState{Valence: 1.0, Arousal: 1.0, Confidence: 0.0},
			expected:  0.0,
			tolerance: 0.0001,
		},
		{
			name:      "Nil state",
			state:     nil,
			expected:  0.0,
			tolerance: 0.0001,
		},
		{
			name:      "Arousal dominates valence",
			state:     &EmotionalState{Valence: 0.0, Arousal: 1.0, Confidence: 1.0},
			expected:  0.6,
			tolerance: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.Intensity()
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("Intensity() = %.4f, want ~%.4f", got, tt.expected)
			}
		})
	}
}

// TestSemanticSummaryValid tests required-field validation of summarizer output
func TestSemanticSummaryValid(t *testing.T) {
	tests := []struct {
		name     string
		summary  *SemanticSummary
		expected bool
	}{
		{"Complete", &SemanticSummary{Title: "t", Summary: "s", Category: "c", Confidence: 0.5}, true},
		{"Boundary confidence low", &SemanticSummary{Title: "t", Summary: "s", Category: "c", Confidence: 0.0}, true},
		{"Boundary confidence high", &SemanticSummary{Title: "t", Summary: "s", Category: "c", Confidence: 1.0}, true},
		{"Missing title", &SemanticSummary{Summary: "s", Category: "c", Confidence: 0.5}, false},
		{"Missing summary", &SemanticSummary{Title: "t", Category: "c", Confidence: 0.5}, false},
		{"Missing category", &SemanticSummary{Title: "t", Summary: "s", Confidence: 0.5}, false},
		{"Confidence above one", &SemanticSummary{Title: "t", Summary: "s", Category: "c", Confidence: 1.1}, false},
		{"Negative confidence", &SemanticSummary{Title: "t", Summary: "s", Category: "c", Confidence: -0.1}, false},
		{"Nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Valid(); got != tt.expected {
				t.Errorf("Valid() = %v, want %v", got, tt.expected)
			}
		})
	}
}
