package types

// RetrievalSource records how an Answer's evidence was obtained.
type RetrievalSource string

const (
	RetrievalVector      RetrievalSource = "vector"
	RetrievalWebFallback RetrievalSource = "web_fallback"
	RetrievalCanned      RetrievalSource = "canned"
	RetrievalNone        RetrievalSource = "none"
)

// Answer is the final, user-facing result of a process_query call.
type Answer struct {
	Text              string          `json:"text"`
	LanguageCode      string          `json:"language_code"`
	ModelFamilyUsed   ModelFamily     `json:"model_family_used,omitempty"`
	Citations         []Citation      `json:"citations"`
	FaithfulnessScore float64         `json:"faithfulness_score"`
	RetrievalSource   RetrievalSource `json:"retrieval_source"`
	ProcessingTimeMs  int64           `json:"processing_time_ms"`
}

// QueryResult wraps an Answer with the request-level success envelope
// returned by process_query.
type QueryResult struct {
	Success   bool    `json:"success"`
	Answer    *Answer `json:"answer,omitempty"`
	RequestID string  `json:"request_id"`
}
