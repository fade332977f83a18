package embedding

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

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint. The
// climate passage index and every query embedding are produced by the same
// multilingual model, so a single embedder instance is shared across all
// requests.
type OpenAIEmbedder struct {
	apiKey               string
	baseURL              string
	modelName            string
	truncatePromptTokens int
	dimensions           int
	modelID              string
	httpClient           *http.Client
	maxRetries           int
	EmbedderPooler
}

type openAIEmbedRequest struct {
	Model                string   `json:"model"`
	Input                []string `json:"input"`
	TruncatePromptTokens int      `json:"truncate_prompt_tokens"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewOpenAIEmbedder builds an embedder against the given OpenAI-compatible
// endpoint. Queries are short, so the truncation budget mostly matters for
// the synthetic conversation-context passages that get embedded alongside
// them.
func NewOpenAIEmbedder(apiKey, baseURL, modelName string,
	truncatePromptTokens int, dimensions int, modelID string, pooler EmbedderPooler,
) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if truncatePromptTokens == 0 {
		truncatePromptTokens = 511
	}

	return &OpenAIEmbedder{
		apiKey:               apiKey,
		baseURL:              baseURL,
		modelName:            modelName,
		httpClient:           &http.Client{Timeout: 60 * time.Second},
		truncatePromptTokens: truncatePromptTokens,
		EmbedderPooler:       pooler,
		dimensions:           dimensions,
		modelID:              modelID,
		maxRetries:           3,
	}, nil
}

// Embed vectorizes a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	return embeddings[0], nil
}

// BatchEmbed vectorizes texts in one API round trip, retrying transport
// failures with capped exponential backoff.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(openAIEmbedRequest{
		Model:                e.modelName,
		Input:                texts,
		TruncatePromptTokens: e.truncatePromptTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	resp, err := e.postWithRetry(ctx, payload)
	if err != nil {
		logger.GetLogger(ctx).Errorf("embedding request failed after retries: %v", err)
		return nil, fmt.Errorf("send embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.GetLogger(ctx).Errorf("embedding endpoint returned %s", resp.Status)
		return nil, fmt.Errorf("embed endpoint status %s", resp.Status)
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}

	vectors := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		vectors = append(vectors, d.Embedding)
	}
	return vectors, nil
}

// postWithRetry rebuilds the request on every attempt so the body reader is
// fresh, and respects context cancellation between backoff sleeps.
func (e *OpenAIEmbedder) postWithRetry(ctx context.Context, payload []byte) (*http.Response, error) {
	url := e.baseURL + "/embeddings"
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			logger.GetLogger(ctx).Infof("retrying embedding request (%d/%d) after %v", attempt, e.maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// GetModelName returns the model name.
func (e *OpenAIEmbedder) GetModelName() string {
	return e.modelName
}

// GetDimensions returns the dense vector width.
func (e *OpenAIEmbedder) GetDimensions() int {
	return e.dimensions
}

// GetModelID returns the configured model ID.
func (e *OpenAIEmbedder) GetModelID() string {
	return e.modelID
}
