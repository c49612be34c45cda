// Package embedding implements the Embedding Client component (spec §4,
// C4): a stateless embed/embed_batch boundary over whatever embedding
// service the deployment targets. Grounded on the teacher's
// internal/platform/openai/client.go Embed method; restated as its own
// hand-rolled net/http client because no first-party or ecosystem Go SDK
// for this surface appears anywhere in the retrieved pack (see
// DESIGN.md's standard-library justifications).
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/archivescribe/ytingest/internal/pkg/errs"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// Client is the embed/embed_batch contract spec §4 C4 names. Safe for
// concurrent use (spec §5: "Embedding Client: stateless; safe to call
// concurrently").
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPClient calls an OpenAI-compatible /embeddings endpoint. model is a
// parameter per spec §2 C4 ("model name is a parameter").
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

// New constructs an HTTPClient against baseURL (an OpenAI-compatible
// embeddings endpoint), using model for every call unless overridden per
// request by a future extension. apiKey may be empty for unauthenticated
// local embedding servers.
func New(baseURL, apiKey, model string, log *logger.Logger) *HTTPClient {
	if log == nil {
		log, _ = logger.New("")
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With("component", "embedding.HTTPClient"),
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the vector for a single text, via EmbedBatch.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("embedding: empty response")
	}
	return out[0], nil
}

// EmbedBatch embeds every text in a single upstream call, returning vectors
// in the same order as texts regardless of the upstream's reported index
// ordering.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding request: %v", errs.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: embedding service", errs.ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: embedding service status %d", errs.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: status %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			c.log.Warn("embedding response index out of range", "index", d.Index, "texts", len(texts))
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
