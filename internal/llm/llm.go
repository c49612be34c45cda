// Package llm provides the minimal LLM client contract the generate_tags
// step (spec §4.6 C7 item 4) depends on. Grounded on the teacher's
// internal/platform/openai/client.go GenerateJSON method, restated as a
// hand-rolled net/http client since no first-party or ecosystem Go SDK for
// this surface appears anywhere in the retrieved pack (see DESIGN.md).
package llm

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

// Client is the structured-output contract generate_tags needs: a system
// prompt, a user prompt, a JSON schema, and a parsed result.
type Client interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]interface{}) (map[string]interface{}, error)
}

// HTTPClient calls an OpenAI-compatible chat-completions endpoint with a
// json_schema response format.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

// New constructs an HTTPClient against baseURL using model for every call.
func New(baseURL, apiKey, model string, log *logger.Logger) *HTTPClient {
	if log == nil {
		log, _ = logger.New("")
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        log.With("component", "llm.HTTPClient"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Type       string                 `json:"type"`
	JSONSchema jsonSchemaFormatDetail `json:"json_schema"`
}

type jsonSchemaFormatDetail struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []chatMessage    `json:"messages"`
	ResponseFormat jsonSchemaFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateJSON sends system/user as a two-message chat completion request
// constrained to schema, and returns the parsed structured output.
func (c *HTTPClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]interface{}) (map[string]interface{}, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: jsonSchemaFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormatDetail{
				Name:   schemaName,
				Schema: schema,
				Strict: true,
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: llm request: %v", errs.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: llm service", errs.ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: llm service status %d", errs.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices returned")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("llm: decode structured content: %w", err)
	}
	return out, nil
}

var _ Client = (*HTTPClient)(nil)
