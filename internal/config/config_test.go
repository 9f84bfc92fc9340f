package config

import (
	"testing"
	"time"
)

// TestClampWindow tests the context window bounds
func TestClampWindow(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"Below minimum", 1, MinContextWindow},
		{"At minimum", MinContextWindow, MinContextWindow},
		{"Default", 50, 50},
		{"At maximum", MaxContextWindow, MaxContextWindow},
		{"Above maximum", 1000, MaxContextWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampWindow(tt.input); got != tt.expected {
				t.Errorf("clampWindow(%d) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

// TestLoadDefaults verifies the documented engine defaults.
func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ContextWindowSize != 50 {
		t.Errorf("ContextWindowSize = %d, want 50", cfg.ContextWindowSize)
	}
	if cfg.ContextWindowTTL != 24*time.Hour {
		t.Errorf("ContextWindowTTL = %v, want 24h", cfg.ContextWindowTTL)
	}
	if cfg.ActivationDecay != 0.6 {
		t.Errorf("ActivationDecay = %v, want 0.6", cfg.ActivationDecay)
	}
	if cfg.ActivationThreshold != 0.3 {
		t.Errorf("ActivationThreshold = %v, want 0.3", cfg.ActivationThreshold)
	}
	if cfg.MaxDepth != 5 || cfg.MaxActivatedNodes != 500 {
		t.Errorf("Traversal bounds = %d/%d, want 5/500", cfg.MaxDepth, cfg.MaxActivatedNodes)
	}
	if cfg.RepetitionThreshold != 3 {
		t.Errorf("RepetitionThreshold = %d, want 3", cfg.RepetitionThreshold)
	}
	if cfg.ConsolidatedWeight != 0.5 || cfg.UnconsolidatedWeight != 0.1 {
		t.Errorf("Aging weights = %v/%v, want 0.5/0.1", cfg.ConsolidatedWeight, cfg.UnconsolidatedWeight)
	}
	if cfg.ActiveThreshold != 0.6 || cfg.ForgottenThreshold != 0.2 {
		t.Errorf("Retention thresholds = %v/%v, want 0.6/0.2", cfg.ActiveThreshold, cfg.ForgottenThreshold)
	}
}
