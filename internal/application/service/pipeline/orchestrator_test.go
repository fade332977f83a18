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

// orchestratorFixture bundles the fakes an end-to-end test wires together,
// mirroring what registerPipelineStages assembles from the dig container
// in production.
type orchestratorFixture struct {
	llm      *fakeLLM
	index    *fakeIndex
	reranker *fakeReranker
	search   *fakeWebSearch
	store    *fakeCacheStore
}

func defaultTestPipelineCfg() *config.PipelineConfig {
	prompts := newTestPrompts()
	prompts.GenerateSystem = "Answer in {{.TargetLanguage}}."
	prompts.GenerateContext = "{{.Query}}"
	prompts.GuardSystem = "{{.Answer}}"
	prompts.CannedNoLanguage = "no language canned"
	prompts.CannedNoSources = "no sources canned"
	prompts.CannedNoAnswer = "no answer canned"
	return &config.PipelineConfig{
		HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.1, MinPassageChars: 10,
		FaithfulnessThreshold: 0.7, RequestDeadlineMs: 5000, HistoryWindow: 8,
		CitationJaccard: 0.0, MaxCitations: 5,
		HighQualityLanguages: []string{"en"},
		Prompts:              prompts,
	}
}

// buildTestOrchestrator wires every stage plugin against a fresh
// EventManager the way registerPipelineStages does in the real container,
// using the fixture's fakes for every external collaborator.
func buildTestOrchestrator(t *testing.T, f orchestratorFixture, cfg *config.PipelineConfig) *PipelineOrchestrator {
	t.Helper()
	events := NewEventManager()
	byFamily := map[types.ModelFamily]interfaces.LLMProvider{
		types.HighQuality:  f.llm,
		types.HighCoverage: f.llm,
	}

	NewConversationParser(events, nil, cfg)
	NewQueryClassifier(events, f.llm, cfg.Prompts)
	NewMultilingualRouter(events, nil, cfg)
	NewCacheLookup(events, f.store)
	NewTranslateToEN(events, byFamily)
	NewRetriever(events, &fakeEmbedder{}, f.index, f.reranker, cfg)
	NewResponseGenerator(events, byFamily, cfg.Prompts, cfg)
	NewFaithfulnessGuard(events, byFamily, &fakeEmbedder{}, cfg.Prompts, cfg.FaithfulnessThreshold)
	NewWebFallback(events, f.search)
	NewTranslateBack(events, byFamily)
	NewCacheWrite(events, f.store, cfg.FaithfulnessThreshold)

	return New(events, byFamily, f.search, cfg)
}

func TestOrchestrator_HappyPath_OnTopicQueryIsCachedAndCited(t *testing.T) {
	url := "https://example.org/toronto-heat"
	f := orchestratorFixture{
		llm: &fakeLLM{completes: []string{
			`{"classification":"on_topic","rewrite_en":"toronto climate impacts","confidence":0.9}`,
			"Toronto is experiencing more frequent heat waves due to climate change.",
			`{"score":0.92,"assessment_label":"faithful"}`,
		}},
		index: &fakeIndex{passages: []types.Passage{
			{ID: "p1", Title: "Heat waves in Toronto", URL: &url, Text: longText(20) + " heat waves climate change", DenseScore: 0.9},
		}},
		reranker: &fakeReranker{scores: map[string]float64{"p1": 0.9}},
		search:   &fakeWebSearch{},
		store:    newFakeCacheStore(),
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "what is happening with climate in toronto?"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, types.RetrievalVector, result.Answer.RetrievalSource)
	assert.InDelta(t, 0.92, result.Answer.FaithfulnessScore, 0.001)
	require.Len(t, result.Answer.Citations, 1)
	assert.Equal(t, "Heat waves in Toronto", result.Answer.Citations[0].Title)
	assert.LessOrEqual(t, len(result.Answer.Citations), 5)

	key := types.NewCacheKey("en", "what is happening with climate in toronto?")
	_, cached := f.store.entries[key]
	assert.True(t, cached, "an on_topic, above-threshold, vector-sourced answer must be cached")
}

func TestOrchestrator_OffTopicQuery_ShortCircuitsBeforeRetrieval(t *testing.T) {
	f := orchestratorFixture{
		llm:      &fakeLLM{completes: []string{`{"classification":"off_topic","rewrite_en":"pizza","confidence":0.9}`}},
		index:    &fakeIndex{},
		reranker: &fakeReranker{},
		search:   &fakeWebSearch{},
		store:    newFakeCacheStore(),
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "what's a good pizza recipe?"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, cfg.Prompts.CannedOffTopic, result.Answer.Text)
	assert.Equal(t, types.RetrievalCanned, result.Answer.RetrievalSource)
	assert.Equal(t, 0, f.index.calls, "off_topic must never reach the retriever")
}

func TestOrchestrator_CacheHit_ReturnsStoredAnswerVerbatim(t *testing.T) {
	store := newFakeCacheStore()
	key := types.NewCacheKey("en", "what is climate change?")
	store.entries[key] = types.CacheEntry{Key: key, Answer: types.Answer{
		Text: "Climate change is the long-term shift in global weather patterns.",
		LanguageCode: "en", RetrievalSource: types.RetrievalVector, FaithfulnessScore: 0.95,
	}}
	f := orchestratorFixture{
		llm:      &fakeLLM{completes: []string{`{"classification":"on_topic","rewrite_en":"climate change definition","confidence":0.9}`}},
		index:    &fakeIndex{},
		reranker: &fakeReranker{},
		search:   &fakeWebSearch{},
		store:    store,
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "what is climate change?"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, "Climate change is the long-term shift in global weather patterns.", result.Answer.Text)
	assert.Equal(t, 0, f.index.calls, "a cache hit must never reach the retriever")
}

// An undetectable language returns the canned guidance message with
// success=true and retrieval_source=canned, and never reaches retrieval.
func TestOrchestrator_LanguageUndetected_ReturnsCannedGuidance(t *testing.T) {
	f := orchestratorFixture{
		llm:      &fakeLLM{completes: []string{`{"classification":"on_topic","rewrite_en":"","confidence":0.5}`}},
		index:    &fakeIndex{},
		reranker: &fakeReranker{},
		search:   &fakeWebSearch{},
		store:    newFakeCacheStore(),
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "你"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, cfg.Prompts.CannedNoLanguage, result.Answer.Text)
	assert.Equal(t, types.RetrievalCanned, result.Answer.RetrievalSource)
	assert.Equal(t, 0, f.index.calls, "an undetected language must never reach the retriever")
}

func TestOrchestrator_NoEvidenceAfterWebFallback_ReturnsNoSourcesCanned(t *testing.T) {
	f := orchestratorFixture{
		llm: &fakeLLM{completes: []string{
			`{"classification":"on_topic","rewrite_en":"obscure climate micro-question","confidence":0.9}`,
		}},
		index:    &fakeIndex{passages: []types.Passage{{ID: "p1", Title: "too short", Text: "no"}}},
		reranker: &fakeReranker{},
		search:   &fakeWebSearch{}, // no passages: fallback also comes up empty
		store:    newFakeCacheStore(),
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "an obscure climate micro-question"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, cfg.Prompts.CannedNoSources, result.Answer.Text)
	assert.Equal(t, types.RetrievalNone, result.Answer.RetrievalSource)
}

func TestOrchestrator_FaithfulnessBelowThreshold_RetriesOnceViaWebFallback(t *testing.T) {
	url := "https://example.org/a"
	f := orchestratorFixture{
		llm: &fakeLLM{completes: []string{
			`{"classification":"on_topic","rewrite_en":"sea level rise","confidence":0.9}`,
			"a weakly grounded first draft answer",
			`{"score":0.4,"assessment_label":"potentially unfaithful"}`,
			"sea levels are rising due to thermal expansion and ice melt",
			`{"score":0.9,"assessment_label":"faithful"}`,
		}},
		index:    &fakeIndex{passages: []types.Passage{{ID: "p1", Title: "vector passage", Text: longText(20), DenseScore: 0.8}}},
		reranker: &fakeReranker{},
		search: &fakeWebSearch{passages: []types.Passage{
			{ID: "w1", Title: "Sea level rise explainer", URL: &url, Text: "sea levels are rising due to thermal expansion and ice melt " + longText(10)},
		}},
		store: newFakeCacheStore(),
	}
	cfg := defaultTestPipelineCfg()
	orchestrator := buildTestOrchestrator(t, f, cfg)

	result := orchestrator.ProcessQuery(context.Background(), types.UserQuery{Text: "why are sea levels rising?"}, nil)

	require.True(t, result.Success)
	require.NotNil(t, result.Answer)
	assert.Equal(t, types.RetrievalWebFallback, result.Answer.RetrievalSource)
	assert.InDelta(t, 0.9, result.Answer.FaithfulnessScore, 0.001)
	assert.Equal(t, 5, f.llm.calls, "classify + 2x(generate, guard) after the faithfulness retry")

	key := types.NewCacheKey("en", "why are sea levels rising?")
	_, cached := f.store.entries[key]
	assert.False(t, cached, "a web_fallback-sourced answer is never cached even when faithful")
}
