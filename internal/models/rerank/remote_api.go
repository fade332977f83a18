package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/climatequery/engine/internal/logger"
)

// OpenAIReranker scores candidate passages against a query via an
// OpenAI-compatible /rerank endpoint. Candidate pools are small (capped at
// ten before reranking) so each request is a single round trip.
type OpenAIReranker struct {
	modelName string
	modelID   string
	apiKey    string
	baseURL   string
	client    *http.Client
}

// RerankRequest is the wire request for one rerank call.
type RerankRequest struct {
	Model                string   `json:"model"`
	Query                string   `json:"query"`
	Documents            []string `json:"documents"`
	TruncatePromptTokens int      `json:"truncate_prompt_tokens"`
}

// RerankResponse is the wire response for one rerank call.
type RerankResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Usage   UsageInfo    `json:"usage"`
	Results []RankResult `json:"results"`
}

// UsageInfo reports token accounting for a rerank call.
type UsageInfo struct {
	TotalTokens int `json:"total_tokens"`
}

// NewOpenAIReranker builds a reranker against the configured endpoint.
func NewOpenAIReranker(config *RerankerConfig) (*OpenAIReranker, error) {
	baseURL := "https://api.openai.com/v1"
	if config.BaseURL != "" {
		baseURL = config.BaseURL
	}

	return &OpenAIReranker{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		apiKey:    config.APIKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Rerank scores documents against the query and returns per-document
// relevance results; the caller maps indices back onto its passage set.
func (r *OpenAIReranker) Rerank(ctx context.Context, query string, documents []string) ([]RankResult, error) {
	payload, err := json.Marshal(&RerankRequest{
		Model:                r.modelName,
		Query:                query,
		Documents:            documents,
		TruncatePromptTokens: 511,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	logger.GetLogger(ctx).Debugf("reranking %d documents via %s", len(documents), r.modelName)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send rerank request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank endpoint status %s", resp.Status)
	}

	var response RerankResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unmarshal rerank response: %w", err)
	}
	return response.Results, nil
}

// GetModelName returns the rerank model name.
func (r *OpenAIReranker) GetModelName() string {
	return r.modelName
}

// GetModelID returns the configured model ID.
func (r *OpenAIReranker) GetModelID() string {
	return r.modelID
}
