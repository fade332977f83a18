package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

func newGuardTestPrompts() *config.PromptsConfig {
	return &config.PromptsConfig{GuardSystem: "{{.Answer}}"}
}

func TestFaithfulnessGuard_SkipsWhenCanned(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{`{"score":0.9}`}}
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm}
	NewFaithfulnessGuard(events, byFamily, &fakeEmbedder{}, newGuardTestPrompts(), 0.7)

	canned := "canned text"
	state := &types.PipelineState{CannedResponse: &canned}
	pluginErr := events.Trigger(context.Background(), types.EventGuard, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, 0, llm.calls)
}

func TestFaithfulnessGuard_LLMScoreAboveThresholdPasses(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{`{"score":0.85,"assessment_label":"faithful"}`}}
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm}
	NewFaithfulnessGuard(events, byFamily, &fakeEmbedder{}, newGuardTestPrompts(), 0.7)

	state := &types.PipelineState{
		Language:        &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality},
		DraftAnswerText: "an answer",
	}
	pluginErr := events.Trigger(context.Background(), types.EventGuard, state)

	require.Nil(t, pluginErr)
	assert.InDelta(t, 0.85, state.FaithfulnessScore, 0.001)
	assert.True(t, state.GuardPassed)
}

func TestFaithfulnessGuard_LLMScoreBelowThresholdFails(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{`{"score":0.4,"assessment_label":"potentially unfaithful"}`}}
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm}
	NewFaithfulnessGuard(events, byFamily, &fakeEmbedder{}, newGuardTestPrompts(), 0.7)

	state := &types.PipelineState{
		Language:        &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality},
		DraftAnswerText: "a weak answer",
	}
	pluginErr := events.Trigger(context.Background(), types.EventGuard, state)

	require.Nil(t, pluginErr)
	assert.False(t, state.GuardPassed)
}

// A malformed or out-of-range LLM score falls back to embedding cosine
// similarity between the answer and the concatenated passages.
func TestFaithfulnessGuard_FallsBackToEmbeddingSimilarityOnInvalidScore(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{"not json at all"}}
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"identical text": {1, 0, 0}}}
	NewFaithfulnessGuard(events, byFamily, embedder, newGuardTestPrompts(), 0.7)

	state := &types.PipelineState{
		Language:        &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality},
		DraftAnswerText: "identical text",
		Passages:        []types.Passage{{ID: "p1", Text: "identical text"}},
	}
	pluginErr := events.Trigger(context.Background(), types.EventGuard, state)

	require.Nil(t, pluginErr)
	assert.InDelta(t, 1.0, state.FaithfulnessScore, 0.01, "identical vectors cosine-similarity to 1.0")
}

// When both the LLM grader and the embedding fallback are unavailable, the
// guard returns the conservative default of 0.3 rather than failing the
// request.
func TestFaithfulnessGuard_NoEmbedderAndInvalidLLMScoreDefaultsConservatively(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{"not json at all"}}
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{types.HighQuality: llm}
	NewFaithfulnessGuard(events, byFamily, nil, newGuardTestPrompts(), 0.7)

	state := &types.PipelineState{
		Language:        &types.LanguageDecision{DetectedCode: "en", ModelFamily: types.HighQuality},
		DraftAnswerText: "an answer",
	}
	pluginErr := events.Trigger(context.Background(), types.EventGuard, state)

	require.Nil(t, pluginErr)
	assert.InDelta(t, 0.3, state.FaithfulnessScore, 0.001)
	assert.False(t, state.GuardPassed)
}
