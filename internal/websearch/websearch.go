// Package websearch implements the WebSearchFallback collaborator
// consulted when vector retrieval returns no usable evidence. There is no
// shared Go SDK across web search providers, so this talks to a generic
// JSON search endpoint over plain net/http - the same hand-rolled HTTP
// client pattern used elsewhere in this module (e.g. the OpenAI-compatible
// embedding client) rather than a generated or vendored client.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/utils"
)

// Client is a thin HTTP binding to an external web search API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a WebSearchFallback from configuration.
func NewClient(cfg *config.WebSearchConfig, timeout *http.Client) *Client {
	httpClient := timeout
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search queries the configured endpoint and shapes the response as
// Passages so the rest of the pipeline treats them like indexed evidence.
// Web results never carry a dense or rerank score until the Reranker
// scores them alongside any other candidate passages.
func (c *Client) Search(ctx context.Context, query string) ([]types.Passage, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("web search fallback is not configured")
	}

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode web search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build web search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search request failed with status: %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}

	passages := make([]types.Passage, 0, len(parsed.Results))
	for i, r := range parsed.Results {
		if !utils.IsValidURL(r.URL) {
			continue
		}
		url := r.URL
		passages = append(passages, types.Passage{
			ID:    fmt.Sprintf("web:%d:%s", i, url),
			Title: common.CleanInvalidUTF8(r.Title),
			URL:   &url,
			Text:  common.CleanInvalidUTF8(r.Snippet),
		})
	}
	return passages, nil
}
