package pipeline

import (
	"context"

	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// TranslateToEN sets the query sent to retrieval. A non-empty rewrite_en
// from the classifier is used as is. Otherwise the original query text is
// used, translated to English first when the router determined the index
// is English-biased relative to the detected language. A translation
// failure is retried once; a second failure is a hard
// ErrorReturned(TranslationError).
type TranslateToEN struct {
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider
}

// NewTranslateToEN registers a TranslateToEN against EventTranslateToEN.
func NewTranslateToEN(eventManager *EventManager, llmByFamily map[types.ModelFamily]interfaces.LLMProvider) *TranslateToEN {
	t := &TranslateToEN{llmByFamily: llmByFamily}
	eventManager.Register(t)
	return t
}

func (t *TranslateToEN) ActivationEvents() []types.EventType { return []types.EventType{types.EventTranslateToEN} }

func (t *TranslateToEN) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil || state.CacheHit {
		return next()
	}

	state.RetrievalQuery = state.Classification.RewriteEN
	if !state.Language.TranslateToEnBefore || state.RetrievalQuery != "" {
		if state.RetrievalQuery == "" {
			state.RetrievalQuery = state.Query.Text
		}
		return next()
	}

	llm := t.llmByFamily[state.Language.ModelFamily]
	translated, err := llm.Translate(ctx, state.Query.Text, state.Language.DetectedCode, "en")
	if err != nil {
		translated, err = llm.Translate(ctx, state.Query.Text, state.Language.DetectedCode, "en")
	}
	if err != nil {
		logger.GetLogger(ctx).Errorf("translate to english failed for request %s: %v", state.RequestID, err)
		return ErrTranslationError.WithError(err)
	}
	state.RetrievalQuery = translated
	return next()
}

// TranslateBack translates the finalized answer back into the detected
// language when required. Citations (titles) may remain in their source
// language.
type TranslateBack struct {
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider
}

// NewTranslateBack registers a TranslateBack against EventTranslateBack.
func NewTranslateBack(eventManager *EventManager, llmByFamily map[types.ModelFamily]interfaces.LLMProvider) *TranslateBack {
	t := &TranslateBack{llmByFamily: llmByFamily}
	eventManager.Register(t)
	return t
}

func (t *TranslateBack) ActivationEvents() []types.EventType { return []types.EventType{types.EventTranslateBack} }

func (t *TranslateBack) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil || state.CacheHit || state.Answer == nil {
		return next()
	}
	if !state.Language.TranslateAnswerBack {
		state.State = types.StateTranslated
		return next()
	}

	llm := t.llmByFamily[state.Language.ModelFamily]
	translated, err := llm.Translate(ctx, state.Answer.Text, "en", state.Language.DetectedCode)
	if err != nil {
		logger.GetLogger(ctx).Warnf("translate answer back failed for request %s, returning english: %v",
			state.RequestID, err)
		state.State = types.StateTranslated
		return next()
	}
	state.Answer.Text = translated
	state.State = types.StateTranslated
	return next()
}
