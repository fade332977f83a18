package pipeline

import (
	"bytes"
	"context"
	"html/template"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// guardJSONSchema is the evaluation shape the guard call requests;
// LLMProvider.Complete appends it to the system text.
const guardJSONSchema = `{"score": 0.0, "supported_claims": [], "unsupported_claims": [], "assessment_label": "string"}`

type guardSchema struct {
	Score             float64  `json:"score" validate:"min=0,max=1"`
	SupportedClaims   []string `json:"supported_claims"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	AssessmentLabel   string   `json:"assessment_label"`
}

var guardValidate = validator.New()

// FaithfulnessGuard scores how well the draft answer is supported by the
// retrieved passages. On a schema validation failure it
// falls back to embedding cosine similarity between the answer and the
// concatenated passages; on total failure it returns the conservative
// default of 0.3.
type FaithfulnessGuard struct {
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider
	embedder    interfaces.EmbeddingProvider
	template    string
	threshold   float64
}

// NewFaithfulnessGuard registers a FaithfulnessGuard against EventGuard.
func NewFaithfulnessGuard(
	eventManager *EventManager,
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider,
	embedder interfaces.EmbeddingProvider,
	prompts *config.PromptsConfig,
	faithfulnessThreshold float64,
) *FaithfulnessGuard {
	g := &FaithfulnessGuard{
		llmByFamily: llmByFamily,
		embedder:    embedder,
		template:    prompts.GuardSystem,
		threshold:   faithfulnessThreshold,
	}
	eventManager.Register(g)
	return g
}

func (g *FaithfulnessGuard) ActivationEvents() []types.EventType { return []types.EventType{types.EventGuard} }

func (g *FaithfulnessGuard) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil || state.CacheHit {
		return next()
	}

	score := g.score(ctx, state)
	state.FaithfulnessScore = score
	state.GuardPassed = score >= g.threshold
	state.State = types.StateGuarded

	logger.GetLogger(ctx).Infof("faithfulness score for request %s: %.3f (%s)",
		state.RequestID, score, assessmentBand(score))
	return next()
}

func (g *FaithfulnessGuard) score(ctx context.Context, state *types.PipelineState) float64 {
	llm := g.llmByFamily[state.Language.ModelFamily]
	prompt, err := g.render(state)
	if err == nil && llm != nil {
		raw, callErr := llm.Complete(ctx, interfaces.CompletionRequest{System: prompt, JSONSchema: guardJSONSchema})
		if callErr == nil {
			var parsed guardSchema
			if common.ParseLLMJsonResponse(raw, &parsed) == nil && guardValidate.Struct(&parsed) == nil {
				return parsed.Score
			}
		}
	}

	if g.embedder != nil {
		if sim, simErr := g.semanticSimilarity(ctx, state); simErr == nil {
			return sim
		}
	}
	return 0.3
}

func (g *FaithfulnessGuard) render(state *types.PipelineState) (string, error) {
	tmpl, err := template.New("guardSystem").Parse(g.template)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]interface{}{
		"Answer":   state.DraftAnswerText,
		"Passages": state.Passages,
	})
	return buf.String(), err
}

func (g *FaithfulnessGuard) semanticSimilarity(ctx context.Context, state *types.PipelineState) (float64, error) {
	var passageTexts []string
	for _, p := range state.Passages {
		passageTexts = append(passageTexts, p.Text)
	}
	concatenated := strings.Join(passageTexts, "\n")

	vectors, err := g.embedder.Embed(ctx, []string{state.DraftAnswerText, concatenated})
	if err != nil || len(vectors) < 2 {
		return 0, err
	}
	return cosineSimilarity(vectors[0], vectors[1]), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func assessmentBand(score float64) string {
	switch {
	case score >= 0.9:
		return "highly faithful"
	case score >= 0.7:
		return "faithful"
	case score >= 0.5:
		return "moderately faithful"
	case score >= 0.3:
		return "potentially unfaithful"
	default:
		return "likely unfaithful"
	}
}
