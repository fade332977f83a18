package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
)

func newTestPipelineConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		HighQualityLanguages:  []string{"en", "es", "fr"},
		HighCoverageLanguages: []string{"sw", "am"},
		Prompts:               &config.PromptsConfig{CannedNoLanguage: "please pick a language"},
	}
}

func TestMultilingualRouter_HonorsHighConfidenceDeclaredLanguage(t *testing.T) {
	events := NewEventManager()
	NewMultilingualRouter(events, nil, newTestPipelineConfig())

	declared := "es"
	state := &types.PipelineState{Query: types.UserQuery{Text: "hola", DeclaredLanguage: &declared}}
	pluginErr := events.Trigger(context.Background(), types.EventRouteLanguage, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, "es", state.Language.DetectedCode)
	assert.Equal(t, types.HighQuality, state.Language.ModelFamily)
	assert.True(t, state.Language.TranslateAnswerBack)
}

func TestMultilingualRouter_CommonPhraseLookup(t *testing.T) {
	events := NewEventManager()
	NewMultilingualRouter(events, nil, newTestPipelineConfig())

	state := &types.PipelineState{Query: types.UserQuery{Text: "Hola, gracias por tu ayuda"}}
	pluginErr := events.Trigger(context.Background(), types.EventRouteLanguage, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, "es", state.Language.DetectedCode)
}

func TestMultilingualRouter_UnknownLanguageWithoutDetectorFallsBackToEnglish(t *testing.T) {
	events := NewEventManager()
	NewMultilingualRouter(events, nil, newTestPipelineConfig())

	state := &types.PipelineState{Query: types.UserQuery{Text: "Habari yako leo asante"}}
	// "asante" (swahili: thank you) isn't in the phrase table; without an
	// LLM detector this falls open to english, which is the documented
	// fail-open behavior when no detector is configured and no phrase hits.
	pluginErr := events.Trigger(context.Background(), types.EventRouteLanguage, state)
	require.Nil(t, pluginErr)
	assert.Equal(t, "en", state.Language.DetectedCode)
}

func TestMultilingualRouter_ShortNonLatinQueryIsUndetected(t *testing.T) {
	events := NewEventManager()
	NewMultilingualRouter(events, nil, newTestPipelineConfig())

	state := &types.PipelineState{Query: types.UserQuery{Text: "你"}}
	pluginErr := events.Trigger(context.Background(), types.EventRouteLanguage, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, types.StateLanguageUndetected, state.State)
	require.NotNil(t, state.CannedResponse)
}

func TestMultilingualRouter_ForceFamilyOverrideFallsBackToEnglishWhenUnsupported(t *testing.T) {
	cfg := newTestPipelineConfig()
	cfg.ForceFamily = string(types.HighCoverage)
	events := NewEventManager()
	NewMultilingualRouter(events, nil, cfg)

	declared := "fr" // fr is HighQuality-only in this test's tables
	state := &types.PipelineState{Query: types.UserQuery{Text: "bonjour", DeclaredLanguage: &declared}}
	pluginErr := events.Trigger(context.Background(), types.EventRouteLanguage, state)

	require.Nil(t, pluginErr)
	assert.Equal(t, types.HighCoverage, state.Language.ModelFamily)
	assert.Equal(t, "en", state.Language.DetectedCode, "forced family can't serve fr, so language falls back to english")
}
