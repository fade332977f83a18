// Package interfaces collects the small, consumer-defined contracts the
// orchestrator depends on. Each concrete implementation lives next to the
// library it wraps (internal/models, internal/cache, internal/websearch,
// internal/application/service/retriever) and is wired in by the
// container; plugins only ever see the interface.
package interfaces

import (
	"context"

	"github.com/climatequery/engine/internal/types"
)

// EmbeddingProvider produces dense vectors for a batch of strings. The
// sparse/lexical half of hybrid retrieval is not embedded client-side:
// the index drivers run it as a full-text query over the raw query text
// (see VectorIndexClient), so this contract is deliberately dense-only.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// VectorIndexClient performs hybrid retrieval against one backing index
// implementation (postgres/pgvector or elasticsearch). denseVector drives
// the dense similarity leg; queryText drives the index-side lexical leg
// (tokenized for CJK before it reaches the match query); the driver
// blends the two scores.
type VectorIndexClient interface {
	// Search returns up to topK passages ranked by the driver's blend of
	// dense similarity and lexical score.
	Search(ctx context.Context, queryText string, denseVector []float32, topK int) ([]types.Passage, error)
}

// Reranker re-scores a candidate passage set against a query and returns
// passages annotated with RerankScore, ordered by descending score.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []types.Passage) ([]types.Passage, error)
}

// LLMProvider is the boundary the orchestrator uses for every model call:
// classification, rewriting, generation, faithfulness evaluation, and
// back-translation all go through Complete; Translate is a thin
// specialization used for the two translation steps.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Translate(ctx context.Context, text, fromLang, toLang string) (string, error)
	ModelFamily() types.ModelFamily
}

// CompletionRequest describes one structured or freeform completion call.
type CompletionRequest struct {
	System     string
	User       string
	Assistant  string
	JSONSchema string // non-empty requests a structured/JSON-validated reply
}

// WebSearchFallback is consulted when vector retrieval returns no usable
// evidence. It returns passage-shaped results so the rest of the pipeline
// treats them identically to indexed passages.
type WebSearchFallback interface {
	Search(ctx context.Context, query string) ([]types.Passage, error)
}

// CacheStore is the fingerprinted response cache. The store the
// orchestrator holds (cache.SafeStore) never lets a failure propagate to
// the caller: Get failures are treated as misses, Put failures are logged
// and swallowed. The backing drivers it wraps return their errors.
type CacheStore interface {
	Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error)
	Put(ctx context.Context, entry types.CacheEntry) error
	// PutFeedback appends an enhanced-feedback record. cache.SafeStore logs
	// and swallows its failures the same way it does for Put.
	PutFeedback(ctx context.Context, record types.FeedbackRecord) error
}
