package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// classifySchema is the JSON shape the classifier prompt asks the model to
// emit; it is validated by unmarshaling into this struct and checking the
// label is one of the known values.
type classifySchema struct {
	Classification string  `json:"classification"`
	RewriteEN      string  `json:"rewrite_en"`
	AskHowToUse    bool    `json:"ask_how_to_use"`
	HowItWorks     bool    `json:"how_it_works"`
	Confidence     float64 `json:"confidence"`
}

// classifyJSONSchema is the shape the classifier call asks the model to
// emit; LLMProvider.Complete appends it to the system text.
const classifyJSONSchema = `{"classification": "greeting|goodbye|thanks|emergency|instruction|on_topic|off_topic|harmful", ` +
	`"rewrite_en": "string", "ask_how_to_use": false, "how_it_works": false, "confidence": 0.0}`

var validLabels = map[string]types.ClassificationLabel{
	"greeting":    types.ClassGreeting,
	"goodbye":     types.ClassGoodbye,
	"thanks":      types.ClassThanks,
	"emergency":   types.ClassEmergency,
	"instruction": types.ClassInstruction,
	"on_topic":    types.ClassOnTopic,
	"off_topic":   types.ClassOffTopic,
	"harmful":     types.ClassHarmful,
}

// QueryClassifier labels the query, produces an English rewrite suitable
// for retrieval, and flags canned instructional intents. It never hard
// fails: a persistently invalid model response degrades to on_topic with
// no rewrite, preferring retrieval over a dead end.
type QueryClassifier struct {
	llm            interfaces.LLMProvider
	systemTemplate string
	userTemplate   string
	canned         *config.PromptsConfig
}

// NewQueryClassifier registers a QueryClassifier against EventClassifyQuery.
func NewQueryClassifier(eventManager *EventManager, llm interfaces.LLMProvider, prompts *config.PromptsConfig) *QueryClassifier {
	c := &QueryClassifier{llm: llm, systemTemplate: prompts.ClassifySystem, userTemplate: prompts.ClassifyUser, canned: prompts}
	eventManager.Register(c)
	return c
}

func (c *QueryClassifier) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventClassifyQuery}
}

func (c *QueryClassifier) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	log := logger.GetLogger(ctx)

	classification, err := c.classify(ctx, state)
	if err != nil {
		log.Warnf("classifier unavailable, defaulting to on_topic: %v", err)
		classification = &types.Classification{Label: types.ClassOnTopic, RewriteEN: state.Query.Text, Confidence: 0}
	}
	state.Classification = classification
	state.State = types.StateClassified

	if classification.Label.IsCanned() {
		canned := c.cannedText(classification)
		state.CannedResponse = &canned
	}

	return next()
}

func (c *QueryClassifier) classify(ctx context.Context, state *types.PipelineState) (*types.Classification, error) {
	systemText, userText, err := c.render(state)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req := interfaces.CompletionRequest{System: systemText, User: userText, JSONSchema: classifyJSONSchema}
		if attempt == 1 {
			req.System += "\nRespond with strict JSON only, matching the schema exactly. No prose."
		}
		raw, err := c.llm.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		var parsed classifySchema
		if err := common.ParseLLMJsonResponse(raw, &parsed); err != nil {
			lastErr = err
			continue
		}
		label, ok := validLabels[parsed.Classification]
		if !ok {
			lastErr = fmt.Errorf("unknown classification label %q", parsed.Classification)
			continue
		}
		return &types.Classification{
			Label:        label,
			RewriteEN:    parsed.RewriteEN,
			AskHowToUse:  parsed.AskHowToUse,
			HowItWorks:   parsed.HowItWorks,
			Confidence:   parsed.Confidence,
		}, nil
	}
	return nil, lastErr
}

func (c *QueryClassifier) render(state *types.PipelineState) (system, user string, err error) {
	systemTmpl, err := template.New("classifySystem").Parse(c.systemTemplate)
	if err != nil {
		return "", "", err
	}
	userTmpl, err := template.New("classifyUser").Parse(c.userTemplate)
	if err != nil {
		return "", "", err
	}
	data := map[string]interface{}{
		"Query":   state.Query.Text,
		"History": state.ParsedHistory,
	}
	var systemBuf, userBuf bytes.Buffer
	if err := systemTmpl.Execute(&systemBuf, data); err != nil {
		return "", "", err
	}
	if err := userTmpl.Execute(&userBuf, data); err != nil {
		return "", "", err
	}
	return systemBuf.String(), userBuf.String(), nil
}

func (c *QueryClassifier) cannedText(classification *types.Classification) string {
	switch classification.Label {
	case types.ClassOffTopic:
		return c.canned.CannedOffTopic
	case types.ClassHarmful:
		return c.canned.CannedHarmful
	case types.ClassInstruction:
		return c.canned.CannedHowItWorks
	case types.ClassGreeting:
		return c.canned.CannedGreeting
	case types.ClassGoodbye:
		return c.canned.CannedGoodbye
	case types.ClassThanks:
		return c.canned.CannedThanks
	default:
		return c.canned.CannedOffTopic
	}
}
