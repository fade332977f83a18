package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// commonPhrases is a tiny keyed lookup of greeting/question words used as
// the first leg of language detection before falling back to the LLM
// detector.
var commonPhrases = map[string][]string{
	"es": {"hola", "gracias", "qué", "cómo", "por qué"},
	"fr": {"bonjour", "merci", "pourquoi", "comment"},
	"de": {"hallo", "danke", "warum", "wie"},
	"pt": {"olá", "obrigado", "por que", "como"},
	"it": {"ciao", "grazie", "perché", "come"},
	"zh": {"你好", "谢谢", "为什么"},
	"ja": {"こんにちは", "ありがとう"},
	"ar": {"مرحبا", "شكرا"},
}

type languageDetection struct {
	Code       string  `json:"code"`
	Confidence float64 `json:"confidence"`
}

// MultilingualRouter determines the query's language and which model
// family should serve it, honoring a high-confidence caller declaration,
// otherwise combining a common-phrase lookup with an LLM-based detector.
type MultilingualRouter struct {
	detector              interfaces.LLMProvider
	highQualityLanguages  map[string]bool
	highCoverageLanguages map[string]bool
	forceFamily           types.ModelFamily
	noLanguagePrompt      string
}

// NewMultilingualRouter registers a MultilingualRouter against EventRouteLanguage.
func NewMultilingualRouter(
	eventManager *EventManager, detector interfaces.LLMProvider, cfg *config.PipelineConfig,
) *MultilingualRouter {
	hq := make(map[string]bool, len(cfg.HighQualityLanguages))
	for _, l := range cfg.HighQualityLanguages {
		hq[l] = true
	}
	hc := make(map[string]bool, len(cfg.HighCoverageLanguages))
	for _, l := range cfg.HighCoverageLanguages {
		hc[l] = true
	}
	var force types.ModelFamily
	if cfg.ForceFamily != "" {
		force = types.ModelFamily(cfg.ForceFamily)
	}
	r := &MultilingualRouter{
		detector:              detector,
		highQualityLanguages:  hq,
		highCoverageLanguages: hc,
		forceFamily:           force,
		noLanguagePrompt:      cfg.Prompts.CannedNoLanguage,
	}
	eventManager.Register(r)
	return r
}

func (r *MultilingualRouter) ActivationEvents() []types.EventType {
	return []types.EventType{types.EventRouteLanguage}
}

func (r *MultilingualRouter) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	log := logger.GetLogger(ctx)

	code, confidence := r.detect(ctx, state)
	if code == "" {
		if r.isUndetectable(state.Query.Text) {
			state.CannedResponse = &r.noLanguagePrompt
			state.State = types.StateLanguageUndetected
			log.Warnf("language undetected for request %s", state.RequestID)
			return next()
		}
		code, confidence = "en", 0.5
	}

	family, code := r.family(code)
	if r.forceFamily != "" {
		log.Infof("force_family override: %s -> %s", family, r.forceFamily)
		family = r.forceFamily
		if !r.supports(family, code) {
			log.Warnf("forced family %s cannot serve language %q, falling back to english", family, code)
			code, confidence = "en", 1.0
		}
	}

	state.Language = &types.LanguageDecision{
		DetectedCode:        code,
		Confidence:           confidence,
		ModelFamily:          family,
		TranslateToEnBefore:  code != "en",
		TranslateAnswerBack:  code != "en",
	}
	state.State = types.StateRouted
	return next()
}

// detect honors a high-confidence caller declaration, otherwise runs the
// common-phrase lookup first and the LLM detector second.
func (r *MultilingualRouter) detect(ctx context.Context, state *types.PipelineState) (string, float64) {
	if state.Query.DeclaredLanguage != nil {
		return *state.Query.DeclaredLanguage, 0.9
	}

	lower := strings.ToLower(state.Query.Text)
	for lang, phrases := range commonPhrases {
		for _, phrase := range phrases {
			if strings.Contains(lower, phrase) {
				return lang, 0.85
			}
		}
	}

	if r.detector == nil {
		return "", 0
	}
	raw, err := r.detector.Complete(ctx, interfaces.CompletionRequest{
		System:     "Detect the ISO 639-1 language code of the user's message.",
		User:       state.Query.Text,
		JSONSchema: `{"code": "xx", "confidence": 0.0}`,
	})
	if err != nil {
		logger.GetLogger(ctx).Warnf("language detector call failed: %v", err)
		return "", 0
	}
	var parsed languageDetection
	if err := common.ParseLLMJsonResponse(raw, &parsed); err != nil {
		return "", 0
	}
	return parsed.Code, parsed.Confidence
}

// isUndetectable reports whether a query's language should be treated as
// undetected: low confidence combined with non-Latin script or a very
// short query.
func (r *MultilingualRouter) isUndetectable(query string) bool {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) < 3 {
		return true
	}
	nonLatin := 0
	for _, ch := range runes {
		if unicode.Is(unicode.Latin, ch) || unicode.IsSpace(ch) || unicode.IsPunct(ch) || unicode.IsDigit(ch) {
			continue
		}
		nonLatin++
	}
	return nonLatin > len(runes)/2
}

// family maps a detected code to a model family. A code belonging to
// neither table falls back to English served by HighQuality.
func (r *MultilingualRouter) family(code string) (types.ModelFamily, string) {
	if r.highQualityLanguages[code] {
		return types.HighQuality, code
	}
	if r.highCoverageLanguages[code] {
		return types.HighCoverage, code
	}
	return types.HighQuality, "en"
}

// supports reports whether family serves code, used to validate a
// force_family override against the configured language tables.
func (r *MultilingualRouter) supports(family types.ModelFamily, code string) bool {
	if code == "en" {
		return true
	}
	switch family {
	case types.HighQuality:
		return r.highQualityLanguages[code]
	case types.HighCoverage:
		return r.highCoverageLanguages[code]
	default:
		return false
	}
}
