package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

func TestTranslateToEN_SkipsWhenNoTranslationNeeded(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{}
	NewTranslateToEN(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Query:          types.UserQuery{Text: "what is climate change?"},
		Classification: &types.Classification{RewriteEN: "what is climate change"},
		Language:       &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality, TranslateToEnBefore: false},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateToEN, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, "what is climate change", state.RetrievalQuery)
}

func TestTranslateToEN_TranslatesWhenRewriteIsEmptyAndLanguageRequiresIt(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{translateFn: func(ctx context.Context, text, from, to string) (string, error) {
		return "what are climate impacts in toronto", nil
	}}
	NewTranslateToEN(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Query:          types.UserQuery{Text: "quels sont les impacts climatiques a toronto?"},
		Classification: &types.Classification{}, // rewrite_en empty: no rewrite to use as is
		Language:       &types.LanguageDecision{DetectedCode: "fr", ModelFamily: types.HighQuality, TranslateToEnBefore: true},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateToEN, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, "what are climate impacts in toronto", state.RetrievalQuery)
}

func TestTranslateToEN_RetriesOnceThenHardFails(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{translateFn: func(ctx context.Context, text, from, to string) (string, error) {
		return "", assert.AnError
	}}
	NewTranslateToEN(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Query:          types.UserQuery{Text: "bonjour le monde"},
		Classification: &types.Classification{},
		Language:       &types.LanguageDecision{DetectedCode: "fr", ModelFamily: types.HighQuality, TranslateToEnBefore: true},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateToEN, state)

	require.NotNil(t, pluginErr)
	assert.Equal(t, "TranslationError", pluginErr.ErrorKind)
}

func TestTranslateBack_SkipsWhenLanguageIsEnglish(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{}
	NewTranslateBack(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Language: &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality, TranslateAnswerBack: false},
		Answer:   &types.Answer{Text: "climate change is a long-term shift in weather patterns"},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateBack, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, 0, llm.calls)
	assert.Equal(t, "climate change is a long-term shift in weather patterns", state.Answer.Text)
}

func TestTranslateBack_TranslatesAnswerIntoDetectedLanguage(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{translateFn: func(ctx context.Context, text, from, to string) (string, error) {
		return "[es] " + text, nil
	}}
	NewTranslateBack(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Language: &types.LanguageDecision{DetectedCode: "es", ModelFamily: types.HighQuality, TranslateAnswerBack: true},
		Answer:   &types.Answer{Text: "climate change is real"},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateBack, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, "[es] climate change is real", state.Answer.Text)
}

// TranslateBack degrades to returning the English answer rather than
// failing the request outright when the backend translation call errors.
func TestTranslateBack_FailureFallsOpenToEnglishAnswer(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{translateFn: func(ctx context.Context, text, from, to string) (string, error) {
		return "", assert.AnError
	}}
	NewTranslateBack(events, map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm})

	state := &types.PipelineState{
		Language: &types.LanguageDecision{DetectedCode: "es", ModelFamily: types.HighQuality, TranslateAnswerBack: true},
		Answer:   &types.Answer{Text: "climate change is real"},
	}
	pluginErr := events.Trigger(context.Background(), types.EventTranslateBack, state)

	require.Nil(t, pluginErr, "a translate-back failure must never hard fail the request")
	assert.Equal(t, "climate change is real", state.Answer.Text)
}
