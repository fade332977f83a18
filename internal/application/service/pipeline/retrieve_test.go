package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
)

func longText(n int) string { return strings.Repeat("climate impact data ", n) }

func TestRetriever_CleansDedupsAndReranks(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	url1 := "https://example.org/a"
	index := &fakeIndex{passages: []types.Passage{
		{ID: "p1", Title: "Toronto heat", URL: &url1, Text: longText(20), DenseScore: 0.9},
		{ID: "p1-dup", Title: "Toronto heat", URL: &url1, Text: longText(20), DenseScore: 0.5}, // same URL, lower score: dropped
		{ID: "p2", Title: "Sea level", Text: longText(20), DenseScore: 0.8},
		{ID: "p3", Title: "too short", Text: "short", DenseScore: 0.7}, // below min_chars
	}}
	reranker := &fakeReranker{scores: map[string]float64{"p1": 0.9, "p2": 0.8}}
	cfg := &config.PipelineConfig{HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.2, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r1"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.Nil(t, pluginErr)
	require.Len(t, state.Passages, 2)
	ids := []string{state.Passages[0].ID, state.Passages[1].ID}
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestRetriever_RerankFloorDropsLowScoringPassages(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	index := &fakeIndex{passages: []types.Passage{
		{ID: "p1", Title: "A", Text: longText(20), DenseScore: 0.9},
		{ID: "p2", Title: "B", Text: longText(20), DenseScore: 0.8},
	}}
	reranker := &fakeReranker{scores: map[string]float64{"p1": 0.9, "p2": 0.05}}
	cfg := &config.PipelineConfig{HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.2, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r2"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.Nil(t, pluginErr)
	require.Len(t, state.Passages, 1)
	assert.Equal(t, "p1", state.Passages[0].ID)
}

func TestRetriever_NoEvidenceWhenEverythingFiltered(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	index := &fakeIndex{passages: []types.Passage{
		{ID: "p1", Title: "too short", Text: "nope", DenseScore: 0.9},
	}}
	reranker := &fakeReranker{}
	cfg := &config.PipelineConfig{HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.2, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r3"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.NotNil(t, pluginErr)
	assert.Equal(t, "NoEvidence", pluginErr.ErrorKind)
}

func TestRetriever_RetriesOnceOnIndexFailure(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	index := &fakeIndex{failTimes: 1, passages: []types.Passage{
		{ID: "p1", Title: "A", Text: longText(20), DenseScore: 0.9},
	}}
	reranker := &fakeReranker{}
	cfg := &config.PipelineConfig{HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.2, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r4"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.Nil(t, pluginErr)
	require.Len(t, state.Passages, 1)
	assert.Equal(t, 2, index.calls)
}

func TestRetriever_PersistentIndexFailureIsUnavailable(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	index := &fakeIndex{failTimes: 5}
	reranker := &fakeReranker{}
	cfg := &config.PipelineConfig{HybridTopK: 10, FinalTopN: 5, RerankFloor: 0.2, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r5"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.NotNil(t, pluginErr)
	assert.Equal(t, "RetrieverUnavailable", pluginErr.ErrorKind)
}

func TestRetriever_CapsPoolBeforeRerank(t *testing.T) {
	events := NewEventManager()
	embedder := &fakeEmbedder{}
	passages := make([]types.Passage, 0, 15)
	for i := 0; i < 15; i++ {
		id := "p" + string(rune('a'+i))
		passages = append(passages, types.Passage{
			ID: id, Title: id, Text: longText(20), DenseScore: float64(15 - i),
		})
	}
	index := &fakeIndex{passages: passages}
	reranker := &countingReranker{}
	cfg := &config.PipelineConfig{HybridTopK: 15, FinalTopN: 5, RerankFloor: 0, MinPassageChars: 50}
	NewRetriever(events, embedder, index, reranker, cfg)

	state := &types.PipelineState{RequestID: "r6"}
	pluginErr := events.Trigger(context.Background(), types.EventRetrieve, state)

	require.Nil(t, pluginErr)
	assert.LessOrEqual(t, reranker.receivedCount, 10, "candidate pool must be capped at 10 before reranking")
	assert.Len(t, state.Passages, 5, "final passage count is capped at final_top_n")
}

type countingReranker struct{ receivedCount int }

func (c *countingReranker) Rerank(ctx context.Context, query string, passages []types.Passage) ([]types.Passage, error) {
	c.receivedCount = len(passages)
	out := make([]types.Passage, len(passages))
	copy(out, passages)
	for i := range out {
		score := 1.0 - float64(i)*0.01
		out[i].RerankScore = &score
	}
	return out, nil
}
