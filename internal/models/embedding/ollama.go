package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/models/utils/ollama"
	ollamaapi "github.com/ollama/ollama/api"
)

// OllamaEmbedder vectorizes text with a locally served Ollama model, the
// offline-development counterpart of OpenAIEmbedder.
type OllamaEmbedder struct {
	modelName            string
	truncatePromptTokens int
	ollamaService        *ollama.OllamaService
	dimensions           int
	modelID              string
	EmbedderPooler
}

// NewOllamaEmbedder builds an embedder over the shared Ollama service. The
// model is pulled on first use rather than at startup, so a missing local
// model costs the first request its latency instead of failing the boot.
func NewOllamaEmbedder(baseURL,
	modelName string,
	truncatePromptTokens int,
	dimensions int,
	modelID string,
	pooler EmbedderPooler,
	ollamaService *ollama.OllamaService,
) (*OllamaEmbedder, error) {
	if modelName == "" {
		modelName = "nomic-embed-text"
	}
	if truncatePromptTokens == 0 {
		truncatePromptTokens = 511
	}

	return &OllamaEmbedder{
		modelName:            modelName,
		truncatePromptTokens: truncatePromptTokens,
		ollamaService:        ollamaService,
		EmbedderPooler:       pooler,
		dimensions:           dimensions,
		modelID:              modelID,
	}, nil
}

// Embed vectorizes a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed text: model returned no vector")
	}
	return vectors[0], nil
}

// BatchEmbed vectorizes texts in one Ollama call, pulling the model first
// if it isn't present locally.
func (e *OllamaEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.ollamaService.EnsureModelAvailable(ctx, e.modelName); err != nil {
		return nil, err
	}

	req := &ollamaapi.EmbedRequest{
		Model:   e.modelName,
		Input:   texts,
		Options: make(map[string]interface{}),
	}
	if e.truncatePromptTokens > 0 {
		req.Options["truncate"] = e.truncatePromptTokens
	}

	started := time.Now()
	resp, err := e.ollamaService.Embeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get embedding vectors: %w", err)
	}
	logger.GetLogger(ctx).Debugf("ollama embedding of %d texts took %v", len(texts), time.Since(started))
	return resp.Embeddings, nil
}

// GetModelName returns the model name.
func (e *OllamaEmbedder) GetModelName() string {
	return e.modelName
}

// GetDimensions returns the dense vector width.
func (e *OllamaEmbedder) GetDimensions() int {
	return e.dimensions
}

// GetModelID returns the configured model ID.
func (e *OllamaEmbedder) GetModelID() string {
	return e.modelID
}
