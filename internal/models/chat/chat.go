package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/climatequery/engine/internal/models/utils/ollama"
	"github.com/climatequery/engine/internal/runtime"
	"github.com/climatequery/engine/internal/types"
)

// ChatOptions carries the optional sampling parameters for one completion.
type ChatOptions struct {
	Temperature         float64 `json:"temperature"`
	TopP                float64 `json:"top_p"`
	Seed                int     `json:"seed"`
	MaxTokens           int     `json:"max_tokens"`
	MaxCompletionTokens int     `json:"max_completion_tokens"`
	FrequencyPenalty    float64 `json:"frequency_penalty"`
	PresencePenalty     float64 `json:"presence_penalty"`
}

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a non-streaming chat completion.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Chat is the low-level model binding every LLMProvider implementation is
// built on. The orchestrator never calls this directly; it goes through
// the Complete/Translate surface in provider.go.
type Chat interface {
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)
	GetModelName() string
	GetModelID() string
}

// ChatConfig selects and configures one Chat backend.
type ChatConfig struct {
	Source    types.ModelSource
	BaseURL   string
	ModelName string
	APIKey    string
	ModelID   string
}

// NewChat constructs a Chat backend for the configured source: a local
// Ollama model, or a remote OpenAI-compatible API.
func NewChat(config *ChatConfig) (Chat, error) {
	switch strings.ToLower(string(config.Source)) {
	case string(types.ModelSourceLocal):
		var chat Chat
		var err error
		invokeErr := runtime.GetContainer().Invoke(func(ollamaService *ollama.OllamaService) {
			chat, err = NewOllamaChat(config, ollamaService)
		})
		if invokeErr != nil {
			return nil, invokeErr
		}
		if err != nil {
			return nil, err
		}
		return chat, nil
	case string(types.ModelSourceRemote):
		return NewRemoteAPIChat(config)
	default:
		return nil, fmt.Errorf("unsupported chat model source: %s", config.Source)
	}
}
