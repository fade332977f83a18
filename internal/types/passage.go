package types

// Passage is one retrieved unit of evidence. Passages are unique by Id
// within an index and exist only for the lifetime of a single query.
type Passage struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           *string `json:"url,omitempty"`
	SectionTitle  *string `json:"section_title,omitempty"`
	Text          string  `json:"text"`
	DenseScore    float64 `json:"dense_score"`
	SparseScore   float64 `json:"sparse_score"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
	// Synthetic marks passages injected from conversation context rather
	// than retrieved from an index; these never surface as Citations.
	Synthetic bool `json:"-"`
}

// Citation is a normalized reference attached to an Answer.
type Citation struct {
	Title       string  `json:"title"`
	URL         *string `json:"url,omitempty"`
	Snippet     string  `json:"snippet"`
	RerankScore float64 `json:"rerank_score"`
}
