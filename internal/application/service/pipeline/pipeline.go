// Package pipeline implements the PipelineOrchestrator state machine and
// the pluggable stages it runs in order: ConversationParser,
// QueryClassifier/Rewriter, MultilingualRouter, CacheStore lookup,
// Retriever, ResponseGenerator, FaithfulnessGuard, WebSearchFallback, and
// the translate/cache-write tail stages. Stages are chain-of-responsibility
// Plugins registered against one or more EventTypes, each operating on
// the request's PipelineState.
package pipeline

import (
	"context"

	"github.com/climatequery/engine/internal/types"
)

// Plugin handles one or more pipeline EventTypes.
type Plugin interface {
	OnEvent(
		ctx context.Context,
		eventType types.EventType,
		state *types.PipelineState,
		next func() *PluginError,
	) *PluginError
	ActivationEvents() []types.EventType
}

// EventManager chains registered Plugins per EventType and triggers them
// in registration order.
type EventManager struct {
	listeners map[types.EventType][]Plugin
	handlers  map[types.EventType]func(context.Context, types.EventType, *types.PipelineState) *PluginError
}

// NewEventManager creates an empty EventManager.
func NewEventManager() *EventManager {
	return &EventManager{
		listeners: make(map[types.EventType][]Plugin),
		handlers:  make(map[types.EventType]func(context.Context, types.EventType, *types.PipelineState) *PluginError),
	}
}

// Register adds a plugin and rebuilds the handler chain for every
// EventType it activates on.
func (e *EventManager) Register(plugin Plugin) {
	if e.listeners == nil {
		e.listeners = make(map[types.EventType][]Plugin)
	}
	if e.handlers == nil {
		e.handlers = make(map[types.EventType]func(context.Context, types.EventType, *types.PipelineState) *PluginError)
	}
	for _, eventType := range plugin.ActivationEvents() {
		e.listeners[eventType] = append(e.listeners[eventType], plugin)
		e.handlers[eventType] = e.buildHandler(e.listeners[eventType])
	}
}

func (e *EventManager) buildHandler(plugins []Plugin) func(
	ctx context.Context, eventType types.EventType, state *types.PipelineState,
) *PluginError {
	next := func(context.Context, types.EventType, *types.PipelineState) *PluginError { return nil }
	for i := len(plugins) - 1; i >= 0; i-- {
		current := plugins[i]
		prevNext := next
		next = func(ctx context.Context, eventType types.EventType, state *types.PipelineState) *PluginError {
			return current.OnEvent(ctx, eventType, state, func() *PluginError {
				return prevNext(ctx, eventType, state)
			})
		}
	}
	return next
}

// Trigger runs the handler chain registered for eventType, if any.
func (e *EventManager) Trigger(ctx context.Context, eventType types.EventType, state *types.PipelineState) *PluginError {
	if handler, ok := e.handlers[eventType]; ok {
		return handler(ctx, eventType, state)
	}
	return nil
}

// PluginError carries an error kind string through the plugin chain
// without each plugin needing to know about HTTP status codes.
type PluginError struct {
	Err         error
	Description string
	ErrorKind   string
}

var (
	ErrInvalidHistory       = &PluginError{Description: "conversation history is unrecognizable", ErrorKind: "InvalidHistory"}
	ErrClassifierUnavailable = &PluginError{Description: "query classifier unavailable", ErrorKind: "ClassifierUnavailable"}
	ErrLanguageUndetected   = &PluginError{Description: "language could not be determined", ErrorKind: "LanguageUndetected"}
	ErrTranslationError     = &PluginError{Description: "translation failed", ErrorKind: "TranslationError"}
	ErrRetrieverUnavailable = &PluginError{Description: "vector index unavailable", ErrorKind: "RetrieverUnavailable"}
	ErrNoEvidence           = &PluginError{Description: "no supporting passages found", ErrorKind: "NoEvidence"}
	ErrGenerationError      = &PluginError{Description: "answer generation failed", ErrorKind: "GenerationError"}
	ErrProviderSaturated    = &PluginError{Description: "model provider pool saturated", ErrorKind: "ProviderSaturated"}
	ErrTimeout              = &PluginError{Description: "request deadline exceeded", ErrorKind: "Timeout"}
	ErrInternal             = &PluginError{Description: "internal pipeline error", ErrorKind: "Internal"}
)

func (p *PluginError) clone() *PluginError {
	return &PluginError{Description: p.Description, ErrorKind: p.ErrorKind}
}

// WithError attaches the underlying cause to a copy of the sentinel error.
func (p *PluginError) WithError(err error) *PluginError {
	pp := p.clone()
	pp.Err = err
	return pp
}
