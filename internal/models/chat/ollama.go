package chat

import (
	"context"
	"fmt"

	"github.com/ollama/ollama/api"

	"github.com/climatequery/engine/internal/models/utils/ollama"
)

// OllamaChat is the local-model backend for LLMProvider: it runs a model
// family against a local Ollama instance when that family's models[]
// entry selects the local source. It is not switched in automatically
// when a remote provider is unavailable.
type OllamaChat struct {
	modelName string
	modelID   string
	service   *ollama.OllamaService
}

// NewOllamaChat builds a Chat backed by a local Ollama model.
func NewOllamaChat(config *ChatConfig, service *ollama.OllamaService) (*OllamaChat, error) {
	return &OllamaChat{
		modelName: config.ModelName,
		modelID:   config.ModelID,
		service:   service,
	}, nil
}

// Chat sends a non-streaming completion request to the local model.
func (c *OllamaChat) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	req := &api.ChatRequest{
		Model:    c.modelName,
		Messages: toOllamaMessages(messages),
		Options:  toOllamaOptions(opts),
	}
	stream := false
	req.Stream = &stream

	var content string
	err := c.service.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &Response{Content: content}, nil
}

func toOllamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, len(messages))
	for i, m := range messages {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func toOllamaOptions(opts *ChatOptions) map[string]interface{} {
	if opts == nil {
		return nil
	}
	options := map[string]interface{}{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		options["top_p"] = opts.TopP
	}
	if opts.Seed != 0 {
		options["seed"] = opts.Seed
	}
	return options
}

// GetModelName returns the model name.
func (c *OllamaChat) GetModelName() string {
	return c.modelName
}

// GetModelID returns the model ID.
func (c *OllamaChat) GetModelID() string {
	return c.modelID
}
