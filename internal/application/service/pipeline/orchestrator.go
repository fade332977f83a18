package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/errors"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// PipelineOrchestrator drives a single process_query call through the
// Received -> ... -> Returned state machine, triggering each registered
// stage in order and applying the short-circuit and retry policies the
// stages themselves don't own.
type PipelineOrchestrator struct {
	events          *EventManager
	llmByFamily     map[types.ModelFamily]interfaces.LLMProvider
	webSearch       interfaces.WebSearchFallback
	requestDeadline time.Duration
	noSourcesText   string
	noAnswerText    string
}

// New builds a PipelineOrchestrator with every stage plugin already
// registered against events. Callers construct the stage plugins (each
// NewXxx call registers itself) before calling New.
func New(
	events *EventManager,
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider,
	webSearch interfaces.WebSearchFallback,
	cfg *config.PipelineConfig,
) *PipelineOrchestrator {
	deadline := time.Duration(cfg.RequestDeadlineMs) * time.Millisecond
	if deadline == 0 {
		deadline = 60 * time.Second
	}
	return &PipelineOrchestrator{
		events:          events,
		llmByFamily:     llmByFamily,
		webSearch:       webSearch,
		requestDeadline: deadline,
		noSourcesText:   cfg.Prompts.CannedNoSources,
		noAnswerText:    cfg.Prompts.CannedNoAnswer,
	}
}

// ProcessQuery is the orchestrator's single exposed operation. sink may
// be nil; every emit call degrades to a no-op.
func (o *PipelineOrchestrator) ProcessQuery(
	ctx context.Context, query types.UserQuery, sink types.ProgressSink,
) types.QueryResult {
	if sink == nil {
		sink = types.NoopProgressSink
	}
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)
	ctx, cancel := context.WithTimeout(ctx, o.requestDeadline)
	defer cancel()

	state := &types.PipelineState{
		RequestID: requestID,
		StartedAt: time.Now(),
		State:     types.StateReceived,
		Query:     query,
	}
	log := logger.GetLogger(ctx)

	sink(types.ProgressValidatingInput)
	if pluginErr := o.events.Trigger(ctx, types.EventParseConversation, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}
	sink(types.ProgressRewriting)
	if pluginErr := o.events.Trigger(ctx, types.EventClassifyQuery, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}
	sink(types.ProgressRouting)
	if pluginErr := o.events.Trigger(ctx, types.EventRouteLanguage, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}
	if state.State == types.StateLanguageUndetected {
		sink(types.ProgressComplete)
		return o.cannedResult(state, types.RetrievalCanned)
	}
	if state.CannedResponse != nil {
		sink(types.ProgressComplete)
		return o.cannedResult(state, types.RetrievalCanned)
	}

	if pluginErr := o.events.Trigger(ctx, types.EventCacheLookup, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}
	if state.CacheHit {
		sink(types.ProgressComplete)
		return o.successResult(state)
	}

	if pluginErr := o.events.Trigger(ctx, types.EventTranslateToEN, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}

	sink(types.ProgressRetrievingDocuments)
	if pluginErr := o.events.Trigger(ctx, types.EventRetrieve, state); pluginErr != nil {
		if pluginErr.ErrorKind == "NoEvidence" {
			o.events.Trigger(ctx, types.EventWebFallback, state)
			if len(state.Passages) == 0 {
				sink(types.ProgressComplete)
				return o.noEvidenceResult(state)
			}
		} else {
			return o.errorResult(state, pluginErr)
		}
	}
	sink(types.ProgressDocumentsRetrieved)

	sink(types.ProgressFormulatingResponse)
	if pluginErr := o.events.Trigger(ctx, types.EventGenerate, state); pluginErr != nil {
		sink(types.ProgressComplete)
		return o.noAnswerResult(state)
	}
	sink(types.ProgressVerifyingAnswer)
	if pluginErr := o.events.Trigger(ctx, types.EventGuard, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}

	if !state.GuardPassed && !state.UsedWebFallback && o.webSearch != nil {
		log.Infof("faithfulness below threshold for request %s, retrying via web fallback", requestID)
		o.events.Trigger(ctx, types.EventWebFallback, state)
		if len(state.Passages) > 0 {
			sink(types.ProgressFormulatingResponse)
			o.events.Trigger(ctx, types.EventGenerate, state)
			sink(types.ProgressVerifyingAnswer)
			o.events.Trigger(ctx, types.EventGuard, state)
		}
	}

	o.finalizeAnswer(state)

	sink(types.ProgressFinalizing)
	if pluginErr := o.events.Trigger(ctx, types.EventTranslateBack, state); pluginErr != nil {
		return o.errorResult(state, pluginErr)
	}

	o.events.Trigger(ctx, types.EventCacheWrite, state)

	state.State = types.StateReturned
	sink(types.ProgressComplete)
	return o.successResult(state)
}

// finalizeAnswer assembles the Answer from the working state once
// generation and guarding have run; retrieval_source reflects whether web
// fallback was ultimately used.
func (o *PipelineOrchestrator) finalizeAnswer(state *types.PipelineState) {
	source := types.RetrievalVector
	if state.UsedWebFallback {
		source = types.RetrievalWebFallback
	}
	state.Answer = &types.Answer{
		Text:              state.DraftAnswerText,
		LanguageCode:      state.Language.DetectedCode,
		ModelFamilyUsed:   state.Language.ModelFamily,
		Citations:         state.Citations,
		FaithfulnessScore: state.FaithfulnessScore,
		RetrievalSource:   source,
		ProcessingTimeMs:  time.Since(state.StartedAt).Milliseconds(),
	}
}

func (o *PipelineOrchestrator) successResult(state *types.PipelineState) types.QueryResult {
	return types.QueryResult{Success: true, Answer: state.Answer, RequestID: state.RequestID}
}

// cannedResult translates the canned response text (set by an earlier
// stage) into the detected language before returning it: canned responses
// are always translated like any other answer.
func (o *PipelineOrchestrator) cannedResult(state *types.PipelineState, source types.RetrievalSource) types.QueryResult {
	text := ""
	if state.CannedResponse != nil {
		text = *state.CannedResponse
	}
	languageCode := "en"
	family := types.HighQuality
	if state.Language != nil {
		languageCode = state.Language.DetectedCode
		family = state.Language.ModelFamily
		if state.Language.TranslateAnswerBack {
			if llm := o.llmByFamily[family]; llm != nil {
				if translated, err := llm.Translate(context.Background(), text, "en", languageCode); err == nil {
					text = translated
				}
			}
		}
	}
	state.Answer = &types.Answer{
		Text:              text,
		LanguageCode:      languageCode,
		ModelFamilyUsed:   family,
		RetrievalSource:   source,
		ProcessingTimeMs:  time.Since(state.StartedAt).Milliseconds(),
	}
	return o.successResult(state)
}

func (o *PipelineOrchestrator) noEvidenceResult(state *types.PipelineState) types.QueryResult {
	state.CannedResponse = &o.noSourcesText
	return o.cannedResult(state, types.RetrievalNone)
}

func (o *PipelineOrchestrator) noAnswerResult(state *types.PipelineState) types.QueryResult {
	state.CannedResponse = &o.noAnswerText
	return o.cannedResult(state, types.RetrievalNone)
}

// errorResult maps a PluginError's kind to the pipeline error taxonomy and
// returns a failed, uncached result with no provider detail exposed.
func (o *PipelineOrchestrator) errorResult(state *types.PipelineState, pluginErr *PluginError) types.QueryResult {
	state.State = types.StateErrorReturned
	code := errors.ErrorCodeForKind(pluginErr.ErrorKind)
	appErr := errors.NewPipelineError(code, state.RequestID, pluginErr.Description)
	logger.GetLogger(context.Background()).Errorf("request %s failed: %s: %v",
		state.RequestID, appErr.Message, pluginErr.Err)
	return types.QueryResult{Success: false, RequestID: state.RequestID}
}
