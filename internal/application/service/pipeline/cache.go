package pipeline

import (
	"context"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// CacheLookup computes the fingerprinted CacheKey and short-circuits to
// Returned on a hit. The key is independent of
// which model family would have generated the answer.
type CacheLookup struct {
	store interfaces.CacheStore
}

// NewCacheLookup registers a CacheLookup against EventCacheLookup.
func NewCacheLookup(eventManager *EventManager, store interfaces.CacheStore) *CacheLookup {
	c := &CacheLookup{store: store}
	eventManager.Register(c)
	return c
}

func (c *CacheLookup) ActivationEvents() []types.EventType { return []types.EventType{types.EventCacheLookup} }

func (c *CacheLookup) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil {
		return next()
	}

	state.CacheKey = types.NewCacheKey(state.Language.DetectedCode, state.Query.Text)
	if state.Query.SkipCache {
		return next()
	}

	entry, err := c.store.Get(ctx, state.CacheKey)
	if err != nil {
		logger.GetLogger(ctx).Warnf("cache lookup failed, treating as miss: %v", err)
		return next()
	}
	if entry != nil {
		state.CacheHit = true
		state.CacheEntry = entry
		state.Answer = &entry.Answer
		state.State = types.StateReturned
		logger.GetLogger(ctx).Infof("cache hit for request %s", state.RequestID)
	}
	return next()
}

// CacheWrite persists the finalized Answer only when it qualifies:
// on_topic classification, vector retrieval source, and faithfulness at
// or above threshold. A failed write is logged and never
// fails the request.
type CacheWrite struct {
	store     interfaces.CacheStore
	threshold float64
}

// NewCacheWrite registers a CacheWrite against EventCacheWrite.
func NewCacheWrite(eventManager *EventManager, store interfaces.CacheStore, faithfulnessThreshold float64) *CacheWrite {
	w := &CacheWrite{store: store, threshold: faithfulnessThreshold}
	eventManager.Register(w)
	return w
}

func (w *CacheWrite) ActivationEvents() []types.EventType { return []types.EventType{types.EventCacheWrite} }

func (w *CacheWrite) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CacheHit || state.CannedResponse != nil || state.Answer == nil {
		return next()
	}
	if state.Classification == nil || state.Classification.Label != types.ClassOnTopic {
		return next()
	}
	if state.Answer.RetrievalSource != types.RetrievalVector {
		return next()
	}
	if state.Answer.FaithfulnessScore < w.threshold {
		return next()
	}

	entry := types.CacheEntry{Key: state.CacheKey, Answer: *state.Answer}
	if err := w.store.Put(ctx, entry); err != nil {
		logger.GetLogger(ctx).Warnf("cache write failed for request %s: %v", state.RequestID, err)
	}
	state.State = types.StateCached
	return next()
}
