package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCompletionServer fakes an OpenAI-compatible /chat/completions
// endpoint, capturing the raw request body for assertions.
func newCompletionServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	}))
}

func TestRemoteAPIChat(t *testing.T) {
	var captured map[string]any
	server := newCompletionServer(t, "Climate change is the long-term shift in temperatures.", &captured)
	defer server.Close()

	chat, err := NewRemoteAPIChat(&ChatConfig{
		BaseURL:   server.URL,
		ModelName: "test-model",
		APIKey:    "test-key",
		ModelID:   "test-model",
	})
	require.NoError(t, err)
	assert.Equal(t, "test-model", chat.GetModelName())

	resp, err := chat.Chat(context.Background(), []Message{
		{Role: "system", Content: "You are a climate assistant."},
		{Role: "user", Content: "What is climate change?"},
	}, &ChatOptions{Temperature: 0.2, MaxTokens: 256})
	require.NoError(t, err)

	assert.Equal(t, "Climate change is the long-term shift in temperatures.", resp.Content)
	assert.Equal(t, 19, resp.Usage.TotalTokens)

	assert.Equal(t, "test-model", captured["model"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
}

// Qwen3 models on the dashscope endpoint get the enable_thinking toggle
// forced off so the answer comes back without a reasoning preamble.
func TestRemoteAPIChatQwenThinkingDisabled(t *testing.T) {
	var captured map[string]any
	server := newCompletionServer(t, "ok", &captured)
	defer server.Close()

	chat, err := NewRemoteAPIChat(&ChatConfig{
		BaseURL:   server.URL,
		ModelName: "qwen3-32b",
		APIKey:    "test-key",
	})
	require.NoError(t, err)

	// Point the hand-built Qwen request at the fake server while keeping the
	// model-detection condition satisfied.
	chat.baseURL = server.URL
	req := chat.buildQwenChatCompletionRequest([]Message{{Role: "user", Content: "hi"}}, nil)
	require.NotNil(t, req.EnableThinking)
	assert.False(t, *req.EnableThinking)

	resp, err := chat.chatWithQwen(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, false, captured["enable_thinking"])
}

func TestRemoteAPIChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [], "usage": {}}`))
	}))
	defer server.Close()

	chat, err := NewRemoteAPIChat(&ChatConfig{BaseURL: server.URL, ModelName: "test-model"})
	require.NoError(t, err)

	_, err = chat.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	assert.Error(t, err)
}
