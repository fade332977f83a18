package types

// ModelFamily selects which LLM tier a query is routed to.
type ModelFamily string

const (
	// HighCoverage serves the long tail of languages the HighQuality
	// family does not cover well.
	HighCoverage ModelFamily = "HighCoverage"
	// HighQuality serves the languages with the strongest first-party
	// model support.
	HighQuality ModelFamily = "HighQuality"
)

// LanguageDecision is the MultilingualRouter's verdict for one query.
type LanguageDecision struct {
	DetectedCode          string      `json:"detected_code"`
	Confidence            float64     `json:"confidence"`
	ModelFamily           ModelFamily `json:"model_family"`
	TranslateToEnBefore   bool        `json:"translate_to_en_before_retrieval"`
	TranslateAnswerBack   bool        `json:"translate_answer_back"`
}
