package pipeline

import (
	"context"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// WebFallback is invoked by the orchestrator, not as a regular chained
// stage: it only runs when retrieval found no evidence or the faithfulness
// guard rejected the first answer.
type WebFallback struct {
	search interfaces.WebSearchFallback
}

// NewWebFallback registers a WebFallback against EventWebFallback.
func NewWebFallback(eventManager *EventManager, search interfaces.WebSearchFallback) *WebFallback {
	w := &WebFallback{search: search}
	eventManager.Register(w)
	return w
}

func (w *WebFallback) ActivationEvents() []types.EventType { return []types.EventType{types.EventWebFallback} }

func (w *WebFallback) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if w.search == nil {
		return next()
	}
	passages, err := w.search.Search(ctx, state.RetrievalQuery)
	if err != nil {
		logger.GetLogger(ctx).Warnf("web search fallback failed for request %s: %v", state.RequestID, err)
		return next()
	}
	state.Passages = passages
	state.UsedWebFallback = true
	state.State = types.StateFallback
	return next()
}
