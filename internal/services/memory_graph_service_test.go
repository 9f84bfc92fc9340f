package services

import (
	"testing"
	"time"
)

// TestFormatTimestampOrdering verifies stored timestamp strings sort exactly
// like the instants they encode, since Cypher compares them as strings. A
// variable-width fraction would invert the order of values like .5 and .51.
func TestFormatTimestampOrdering(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		earlier time.Time
		later   time.Time
	}{
		{"Trailing zero fraction", base.Add(500 * time.Millisecond), base.Add(510 * time.Millisecond)},
		{"Whole second vs nanosecond", base, base.Add(time.Nanosecond)},
		{"Fraction vs next second", base.Add(999 * time.Millisecond), base.Add(time.Second)},
		{"Non-UTC input", base.In(time.FixedZone("CET", 3600)), base.Add(time.Millisecond)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			earlier, later := formatTimestamp(tt.earlier), formatTimestamp(tt.later)
			if earlier >= later {
				t.Errorf("String order diverges from time order: %q >= %q", earlier, later)
			}
			parsed, err := time.Parse(time.RFC3339Nano, earlier)
			if err != nil {
				t.Fatalf("Stored timestamp must parse back: %v", err)
			}
			if !parsed.Equal(tt.earlier) {
				t.Errorf("Round trip changed the instant: %v vs %v", parsed, tt.earlier)
			}
		})
	}
}

// TestNodeFromPropsSemanticProjection verifies semantic nodes decode with
// title and summary projected as content, so similarity search and activation
// can rank and return consolidated knowledge like any other memory.
func TestNodeFromPropsSemanticProjection(t *testing.T) {
	props := map[string]any{
		"id":               "sem1",
		"user_id":          "u1",
		"title":            "Morning runs",
		"summary":          "Runs every morning before work",
		"category":         "habits",
		"confidence":       0.9,
		"embedding":        []any{0.1, 0.2, 0.3},
		"timestamp":        formatTimestamp(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)),
		"retention_weight": 0.8,
		"consolidated":     true,
	}

	node, err := nodeFromProps(props)
	if err != nil {
		t.Fatalf("nodeFromProps failed: %v", err)
	}
	if node.Content != "Morning runs: Runs every morning before work" {
		t.Errorf("Unexpected content projection: %q", node.Content)
	}
	if !node.Consolidated {
		t.Error("Semantic nodes must decode as consolidated")
	}
	if len(node.Embedding) != 3 {
		t.Errorf("Embedding not decoded, got %v", node.Embedding)
	}
	if node.RetentionWeight != 0.8 {
		t.Errorf("Expected retention weight 0.8, got %.2f", node.RetentionWeight)
	}
}

// TestNodeFromPropsEpisodicRoundTrip verifies the episodic property mapping
// reads back what it wrote.
func TestNodeFromPropsEpisodicRoundTrip(t *testing.T) {
	original := chainNode("m1", []float32{0.5, 0.5, 0})
	original.Timestamp = time.Date(2026, 8, 30, 12, 0, 0, 510*1e6, time.UTC)
	original.RetentionWeight = 0.7

	node, err := nodeFromProps(episodicProps(original))
	if err != nil {
		t.Fatalf("nodeFromProps failed: %v", err)
	}
	if node.ID != original.ID || node.UserID != original.UserID || node.Content != original.Content {
		t.Errorf("Identity fields changed: %+v", node)
	}
	if !node.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp changed: %v vs %v", node.Timestamp, original.Timestamp)
	}
	if node.RetentionWeight != 0.7 {
		t.Errorf("Expected retention weight 0.7, got %.2f", node.RetentionWeight)
	}
}
