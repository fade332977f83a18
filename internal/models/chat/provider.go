package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// Provider adapts a Chat backend to the orchestrator-facing
// interfaces.LLMProvider contract. One Provider is constructed per model
// family (HighQuality, HighCoverage) at startup and held for the life of
// the process.
type Provider struct {
	chat        Chat
	family      types.ModelFamily
	opts        *ChatOptions
	callTimeout time.Duration
}

// NewProvider wraps a Chat backend for the given model family.
// callTimeout bounds each individual completion or translation call; zero
// means no per-call bound beyond the request deadline.
func NewProvider(c Chat, family types.ModelFamily, opts *ChatOptions, callTimeout time.Duration) *Provider {
	return &Provider{chat: c, family: family, opts: opts, callTimeout: callTimeout}
}

var _ interfaces.LLMProvider = (*Provider)(nil)

func (p *Provider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout > 0 {
		return context.WithTimeout(ctx, p.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Complete runs a single system/user(/assistant) completion. Every
// pipeline stage that calls an LLM - classification, rewriting,
// generation, guarding - goes through this one method. A non-empty
// JSONSchema is appended to the system text so the model answers in the
// requested structured shape.
func (p *Provider) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	system := req.System
	if req.JSONSchema != "" {
		system += "\nRespond with a single JSON object matching this schema, no prose: " + req.JSONSchema
	}
	messages := make([]Message, 0, 3)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	if req.Assistant != "" {
		messages = append(messages, Message{Role: "assistant", Content: req.Assistant})
	}
	messages = append(messages, Message{Role: "user", Content: req.User})

	ctx, cancel := p.callContext(ctx)
	defer cancel()
	resp, err := p.chat.Chat(ctx, messages, p.opts)
	if err != nil {
		return "", fmt.Errorf("complete via %s: %w", p.chat.GetModelName(), err)
	}
	return resp.Content, nil
}

// Translate asks the model to translate text between two language codes,
// used both for pre-retrieval normalization to English and for
// translating an answer back to the caller's detected language.
func (p *Provider) Translate(ctx context.Context, text, fromLang, toLang string) (string, error) {
	system := fmt.Sprintf(
		"You are a precise translator. Translate the user's text from %s to %s. "+
			"Preserve meaning and tone exactly. Output only the translation, nothing else.",
		fromLang, toLang,
	)
	ctx, cancel := p.callContext(ctx)
	defer cancel()
	resp, err := p.chat.Chat(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: text},
	}, p.opts)
	if err != nil {
		return "", fmt.Errorf("translate via %s: %w", p.chat.GetModelName(), err)
	}
	return resp.Content, nil
}

// ModelFamily reports which tier this provider serves.
func (p *Provider) ModelFamily() types.ModelFamily {
	return p.family
}
