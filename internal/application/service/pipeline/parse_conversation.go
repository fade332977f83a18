package pipeline

import (
	"context"
	"strings"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// followUpPronouns is the heuristic fallback used when no LLM call is
// available to decide is_follow_up: a crude but fail-open signal that the
// current query leans on the previous turn.
var followUpPronouns = []string{
	"it", "that", "this", "those", "they", "them", "also", "and also", "what about",
}

// ConversationParser converts the caller-supplied history into a bounded,
// ordered sequence of turns and derives an is_follow_up hint. It never
// fails on malformed optional fields: turns missing a role or content are
// simply dropped.
type ConversationParser struct {
	historyWindow int
	detector      interfaces.LLMProvider // optional; nil falls open to the heuristic
	followUpPrompt string
}

// NewConversationParser registers a ConversationParser against
// EventParseConversation. detector may be nil: is_follow_up then always
// uses the pronoun heuristic.
func NewConversationParser(
	eventManager *EventManager, detector interfaces.LLMProvider, cfg *config.PipelineConfig,
) *ConversationParser {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 8
	}
	followUpPrompt := ""
	if cfg.Prompts != nil {
		followUpPrompt = cfg.Prompts.FollowUpSystem
	}
	p := &ConversationParser{historyWindow: window, detector: detector, followUpPrompt: followUpPrompt}
	eventManager.Register(p)
	return p
}

func (p *ConversationParser) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventParseConversation}
}

func (p *ConversationParser) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	turns := make([]types.ConversationTurn, 0, len(state.Query.History))
	for _, turn := range state.Query.History {
		if turn.Content == "" {
			continue
		}
		role := turn.Role
		if role != types.RoleUser && role != types.RoleAssistant {
			continue
		}
		turns = append(turns, types.ConversationTurn{Role: role, Content: turn.Content})
	}

	if len(turns) > p.historyWindow {
		turns = turns[len(turns)-p.historyWindow:]
	}
	state.ParsedHistory = turns
	state.IsFollowUp = p.isFollowUp(ctx, state.Query.Text, turns)
	state.State = types.StateParsed

	logger.GetLogger(ctx).Debugf("parsed conversation: %d turns retained, is_follow_up=%v",
		len(turns), state.IsFollowUp)

	return next()
}

// isFollowUp prefers a lightweight LLM call against the previous assistant
// turn, falling open to the pronoun heuristic whenever the detector is
// absent, errors, or returns an unparseable reply. False is the safe
// default, never a hard failure.
func (p *ConversationParser) isFollowUp(ctx context.Context, query string, history []types.ConversationTurn) bool {
	if len(history) == 0 {
		return false
	}
	if p.detector == nil {
		return isFollowUpHeuristic(query, history)
	}

	prevAssistant := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleAssistant {
			prevAssistant = history[i].Content
			break
		}
	}
	if prevAssistant == "" {
		return isFollowUpHeuristic(query, history)
	}

	raw, err := p.detector.Complete(ctx, interfaces.CompletionRequest{
		System: p.followUpPrompt,
		User:   "Previous assistant turn: " + prevAssistant + "\nCurrent user message: " + query,
	})
	if err != nil {
		return isFollowUpHeuristic(query, history)
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true
	case "false":
		return false
	default:
		return isFollowUpHeuristic(query, history)
	}
}

// isFollowUpHeuristic is the fail-open fallback used when an LLM-based
// follow-up detector is unavailable.
func isFollowUpHeuristic(query string, history []types.ConversationTurn) bool {
	if len(history) == 0 {
		return false
	}
	lower := strings.ToLower(query)
	for _, pronoun := range followUpPronouns {
		if strings.Contains(lower, pronoun) {
			return true
		}
	}
	return false
}
