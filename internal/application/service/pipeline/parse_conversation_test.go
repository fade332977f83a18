package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
)

func TestConversationParser_DropsMalformedTurns(t *testing.T) {
	events := NewEventManager()
	NewConversationParser(events, nil, &config.PipelineConfig{HistoryWindow: 8})

	state := &types.PipelineState{
		Query: types.UserQuery{
			Text: "and what about the uk?",
			History: []types.ConversationTurn{
				{Role: types.RoleUser, Content: "what's the climate impact in toronto?"},
				{Role: "moderator", Content: "dropped: unrecognized role"},
				{Role: types.RoleAssistant, Content: ""}, // dropped: empty content
				{Role: types.RoleAssistant, Content: "Toronto is seeing more heat waves."},
			},
		},
	}
	pluginErr := events.Trigger(context.Background(), types.EventParseConversation, state)

	require.Nil(t, pluginErr)
	require.Len(t, state.ParsedHistory, 2)
	assert.Equal(t, "what's the climate impact in toronto?", state.ParsedHistory[0].Content)
	assert.Equal(t, "Toronto is seeing more heat waves.", state.ParsedHistory[1].Content)
}

func TestConversationParser_BoundsToHistoryWindow(t *testing.T) {
	events := NewEventManager()
	NewConversationParser(events, nil, &config.PipelineConfig{HistoryWindow: 2})

	state := &types.PipelineState{
		Query: types.UserQuery{
			Text: "follow up",
			History: []types.ConversationTurn{
				{Role: types.RoleUser, Content: "turn 1"},
				{Role: types.RoleAssistant, Content: "turn 2"},
				{Role: types.RoleUser, Content: "turn 3"},
				{Role: types.RoleAssistant, Content: "turn 4"},
			},
		},
	}
	events.Trigger(context.Background(), types.EventParseConversation, state)

	require.Len(t, state.ParsedHistory, 2)
	assert.Equal(t, "turn 3", state.ParsedHistory[0].Content)
	assert.Equal(t, "turn 4", state.ParsedHistory[1].Content)
}

func TestConversationParser_EmptyHistoryIsNotFollowUp(t *testing.T) {
	events := NewEventManager()
	NewConversationParser(events, nil, &config.PipelineConfig{HistoryWindow: 8})

	state := &types.PipelineState{Query: types.UserQuery{Text: "what is climate change?"}}
	events.Trigger(context.Background(), types.EventParseConversation, state)

	assert.False(t, state.IsFollowUp)
}

// Determinism: with no LLM detector wired, is_follow_up always falls back
// to the pronoun heuristic, which is deterministic across runs.
func TestConversationParser_HeuristicFollowUpDetection(t *testing.T) {
	events := NewEventManager()
	NewConversationParser(events, nil, &config.PipelineConfig{HistoryWindow: 8})

	state := &types.PipelineState{
		Query: types.UserQuery{
			Text: "what about that one?",
			History: []types.ConversationTurn{
				{Role: types.RoleAssistant, Content: "Sea levels are rising."},
			},
		},
	}
	events.Trigger(context.Background(), types.EventParseConversation, state)

	assert.True(t, state.IsFollowUp)
}

func TestConversationParser_LLMDetectorTakesPrecedenceOverHeuristic(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completes: []string{"true"}}
	NewConversationParser(events, llm, &config.PipelineConfig{HistoryWindow: 8})

	state := &types.PipelineState{
		Query: types.UserQuery{
			Text: "tell me more about renewable energy specifically",
			History: []types.ConversationTurn{
				{Role: types.RoleAssistant, Content: "Climate change affects many sectors."},
			},
		},
	}
	events.Trigger(context.Background(), types.EventParseConversation, state)

	assert.True(t, state.IsFollowUp, "even without a pronoun, the LLM detector's verdict wins when available")
}

func TestConversationParser_LLMDetectorFailureFallsOpenToHeuristic(t *testing.T) {
	events := NewEventManager()
	llm := &fakeLLM{completeErrs: []error{assert.AnError}}
	NewConversationParser(events, llm, &config.PipelineConfig{HistoryWindow: 8})

	state := &types.PipelineState{
		Query: types.UserQuery{
			Text: "completely unrelated standalone question about solar panels",
			History: []types.ConversationTurn{
				{Role: types.RoleAssistant, Content: "Some prior answer."},
			},
		},
	}
	events.Trigger(context.Background(), types.EventParseConversation, state)

	assert.False(t, state.IsFollowUp, "detector failure falls open to the (negative) heuristic result, never errors")
}
