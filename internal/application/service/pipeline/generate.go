package pipeline

import (
	"bytes"
	"context"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// ResponseGenerator produces an answer grounded in the retrieved passage
// set. Citation extraction uses the explicit passage markers in the
// model's reply and falls back to a bag-of-words Jaccard overlap between
// the answer and passage text when the reply carries none.
type ResponseGenerator struct {
	llmByFamily     map[types.ModelFamily]interfaces.LLMProvider
	systemTemplate  string
	contextTemplate string
	citationJaccard float64
	maxCitations    int
}

// NewResponseGenerator registers a ResponseGenerator against EventGenerate.
func NewResponseGenerator(
	eventManager *EventManager,
	llmByFamily map[types.ModelFamily]interfaces.LLMProvider,
	prompts *config.PromptsConfig,
	cfg *config.PipelineConfig,
) *ResponseGenerator {
	g := &ResponseGenerator{
		llmByFamily:     llmByFamily,
		systemTemplate:  prompts.GenerateSystem,
		contextTemplate: prompts.GenerateContext,
		citationJaccard: cfg.CitationJaccard,
		maxCitations:    cfg.MaxCitations,
	}
	eventManager.Register(g)
	return g
}

func (g *ResponseGenerator) ActivationEvents() []types.EventType { return []types.EventType{types.EventGenerate} }

func (g *ResponseGenerator) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil || state.CacheHit {
		return next()
	}

	text, citations, err := g.generate(ctx, state)
	if err != nil {
		text, citations, err = g.generate(ctx, state)
		if err != nil {
			logger.GetLogger(ctx).Errorf("generation failed for request %s: %v", state.RequestID, err)
			return ErrGenerationError.WithError(err)
		}
	}

	state.DraftAnswerText = text
	state.Citations = citations
	state.State = types.StateGenerated
	return next()
}

func (g *ResponseGenerator) generate(ctx context.Context, state *types.PipelineState) (string, []types.Citation, error) {
	system, err := g.renderSystem(state)
	if err != nil {
		return "", nil, err
	}
	userContext, err := g.renderContext(state)
	if err != nil {
		return "", nil, err
	}

	llm := g.llmByFamily[state.Language.ModelFamily]
	answer, err := llm.Complete(ctx, interfaces.CompletionRequest{System: system, User: userContext})
	if err != nil {
		return "", nil, err
	}

	citations := extractCitations(answer, state.Passages, g.citationJaccard, g.maxCitations)
	return answer, citations, nil
}

func (g *ResponseGenerator) renderSystem(state *types.PipelineState) (string, error) {
	tmpl, err := template.New("generateSystem").Parse(g.systemTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	targetLanguage := "en"
	if state.Language != nil {
		targetLanguage = state.Language.DetectedCode
	}
	err = tmpl.Execute(&buf, map[string]interface{}{"TargetLanguage": targetLanguage})
	return buf.String(), err
}

func (g *ResponseGenerator) renderContext(state *types.PipelineState) (string, error) {
	tmpl, err := template.New("generateContext").Parse(g.contextTemplate)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]interface{}{
		"Query":    state.RetrievalQuery,
		"Passages": state.Passages,
	})
	return buf.String(), err
}

// citationMarker matches an inline passage marker such as "[2]"; the number
// is the passage's 0-based position in the generation context.
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations cites the passages the answer names with explicit
// markers; when it names none, it assigns citations post-hoc by
// bag-of-words Jaccard overlap between the answer and each passage.
// Citations are ordered by rerank_score and capped at maxCitations.
// Synthetic context passages are never cited.
func extractCitations(answer string, passages []types.Passage, jaccardFloor float64, maxCitations int) []types.Citation {
	answerWords := wordSet(answer)
	type scored struct {
		passage types.Passage
		overlap float64
	}
	var candidates []scored
	marked := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil || i < 0 || i >= len(passages) || passages[i].Synthetic || marked[i] {
			continue
		}
		marked[i] = true
		candidates = append(candidates, scored{passage: passages[i]})
	}
	for _, p := range passages {
		if p.Synthetic || len(marked) > 0 {
			continue
		}
		overlap := jaccard(answerWords, wordSet(p.Text))
		if overlap >= jaccardFloor {
			candidates = append(candidates, scored{passage: p, overlap: overlap})
		}
	}

	citations := make([]types.Citation, 0, len(candidates))
	for _, c := range candidates {
		rerankScore := 0.0
		if c.passage.RerankScore != nil {
			rerankScore = *c.passage.RerankScore
		}
		citations = append(citations, types.Citation{
			Title:       c.passage.Title,
			URL:         c.passage.URL,
			Snippet:     snippet(c.passage.Text, 200),
			RerankScore: rerankScore,
		})
	}

	sortCitationsByRerankScore(citations)
	if len(citations) > maxCitations {
		citations = citations[:maxCitations]
	}
	return citations
}

func sortCitationsByRerankScore(citations []types.Citation) {
	for i := 1; i < len(citations); i++ {
		for j := i; j > 0 && citations[j].RerankScore > citations[j-1].RerankScore; j-- {
			citations[j], citations[j-1] = citations[j-1], citations[j]
		}
	}
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func snippet(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
