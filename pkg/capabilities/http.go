// Package capabilities provides HTTP-backed implementations of the external
// capabilities the memory engine consumes: text embedding, affect
// classification, and pattern summarization. Each talks to a deployment-
// configured endpoint with a bounded timeout.
package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"memoria/internal/models"
)

// HTTPEmbedder calls an embedding endpoint that accepts
// {"texts": [...]} and returns {"embeddings": [[...], ...]}.
type HTTPEmbedder struct {
	url    string
	dim    int
	client *http.Client
}

// NewHTTPEmbedder creates an embedder against the given endpoint.
func NewHTTPEmbedder(url string, dim int, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{
		url:    url,
		dim:    dim,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := postJSON(ctx, e.client, e.url, map[string]any{"texts": texts}, &response); err != nil {
		return nil, &models.ConnectivityError{Service: "embedder", Err: err}
	}
	if len(response.Embeddings) != len(texts) {
		return nil, &models.ConnectivityError{
			Service: "embedder",
			Err:     fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)),
		}
	}
	for _, embedding := range response.Embeddings {
		if len(embedding) != e.dim {
			return nil, &models.ConnectivityError{
				Service: "embedder",
				Err:     fmt.Errorf("expected %d-dimensional embedding, got %d", e.dim, len(embedding)),
			}
		}
	}
	return response.Embeddings, nil
}

// HTTPAffectClassifier calls an affect endpoint that accepts {"text": ...}
// and returns a VAD record.
type HTTPAffectClassifier struct {
	url    string
	client *http.Client
}

// NewHTTPAffectClassifier creates a classifier against the given endpoint.
func NewHTTPAffectClassifier(url string, timeout time.Duration) *HTTPAffectClassifier {
	return &HTTPAffectClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPAffectClassifier) Classify(ctx context.Context, text string) (*models.EmotionalState, error) {
	var state models.EmotionalState
	if err := postJSON(ctx, c.client, c.url, map[string]any{"text": text}, &state); err != nil {
		return nil, &models.ConnectivityError{Service: "classifier", Err: err}
	}
	return &state, nil
}

// HTTPSummarizer calls a summarization endpoint that accepts
// {"contents": [...], "pattern_type": ...} and returns a structured summary.
type HTTPSummarizer struct {
	url    string
	client *http.Client
}

// NewHTTPSummarizer creates a summarizer against the given endpoint.
func NewHTTPSummarizer(url string, timeout time.Duration) *HTTPSummarizer {
	return &HTTPSummarizer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, contents []string, patternType string) (*models.SemanticSummary, error) {
	var summary models.SemanticSummary
	payload := map[string]any{"contents": contents, "pattern_type": patternType}
	if err := postJSON(ctx, s.client, s.url, payload, &summary); err != nil {
		return nil, &models.ConnectivityError{Service: "summarizer", Err: err}
	}
	return &summary, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
