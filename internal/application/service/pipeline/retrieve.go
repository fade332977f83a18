package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

var (
	markdownFence = regexp.MustCompile("(?s)```.*?```")
	markdownMarks = regexp.MustCompile(`[*_#>` + "`" + `]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Retriever runs the hybrid dense+sparse query, cleans and dedups the
// candidate pool, caps it, and reranks down to the final passage set.
type Retriever struct {
	embedder        interfaces.EmbeddingProvider
	index           interfaces.VectorIndexClient
	reranker        interfaces.Reranker
	hybridTopK      int
	finalTopN       int
	rerankFloor     float64
	minPassageChars int
	embedTimeout    time.Duration
	queryTimeout    time.Duration
	rerankTimeout   time.Duration
}

// NewRetriever registers a Retriever against EventRetrieve.
func NewRetriever(
	eventManager *EventManager,
	embedder interfaces.EmbeddingProvider,
	index interfaces.VectorIndexClient,
	reranker interfaces.Reranker,
	cfg *config.PipelineConfig,
) *Retriever {
	r := &Retriever{
		embedder:        embedder,
		index:           index,
		reranker:        reranker,
		hybridTopK:      cfg.HybridTopK,
		finalTopN:       cfg.FinalTopN,
		rerankFloor:     cfg.RerankFloor,
		minPassageChars: cfg.MinPassageChars,
	}
	if cfg.Timeouts != nil {
		r.embedTimeout = cfg.Timeouts.Embedding
		r.queryTimeout = cfg.Timeouts.VectorQuery
		r.rerankTimeout = cfg.Timeouts.Rerank
	}
	eventManager.Register(r)
	return r
}

// boundedCtx applies a per-call timeout when one is configured; the
// request deadline on ctx still applies either way.
func boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (r *Retriever) ActivationEvents() []types.EventType { return []types.EventType{types.EventRetrieve} }

func (r *Retriever) OnEvent(
	ctx context.Context, eventType types.EventType, state *types.PipelineState, next func() *PluginError,
) *PluginError {
	if state.CannedResponse != nil || state.CacheHit {
		return next()
	}

	passages, pluginErr := r.retrieve(ctx, state.RetrievalQuery)
	if pluginErr != nil {
		return pluginErr
	}
	if len(passages) == 0 {
		logger.GetLogger(ctx).Infof("no evidence for request %s after reranking", state.RequestID)
		return ErrNoEvidence
	}

	state.Passages = passages
	state.State = types.StateRetrieved
	return next()
}

func (r *Retriever) retrieve(ctx context.Context, query string) ([]types.Passage, *PluginError) {
	dense, err := r.embedWithRetry(ctx, query)
	if err != nil {
		return nil, ErrRetrieverUnavailable.WithError(err)
	}

	candidates, err := r.searchIndex(ctx, query, dense)
	if err != nil {
		time.Sleep(250 * time.Millisecond)
		candidates, err = r.searchIndex(ctx, query, dense)
		if err != nil {
			return nil, ErrRetrieverUnavailable.WithError(err)
		}
	}

	candidates = cleanAndFilter(candidates, r.minPassageChars)
	candidates = dedupByURLAndTitle(candidates)
	candidates = capPool(candidates, 10)
	if len(candidates) == 0 {
		return nil, nil
	}

	rerankCtx, cancelRerank := boundedCtx(ctx, r.rerankTimeout)
	defer cancelRerank()
	reranked, err := r.reranker.Rerank(rerankCtx, query, candidates)
	if err != nil {
		logger.GetLogger(ctx).Warnf("reranker failed, falling back to dense ordering: %v", err)
		reranked = candidates
	}

	final := make([]types.Passage, 0, r.finalTopN)
	for _, p := range reranked {
		if p.RerankScore != nil && *p.RerankScore < r.rerankFloor {
			continue
		}
		final = append(final, p)
		if len(final) >= r.finalTopN {
			break
		}
	}
	return final, nil
}

func (r *Retriever) searchIndex(ctx context.Context, query string, dense []float32) ([]types.Passage, error) {
	ctx, cancel := boundedCtx(ctx, r.queryTimeout)
	defer cancel()
	return r.index.Search(ctx, query, dense, r.hybridTopK)
}

// embedWithRetry retries once with a short backoff.
func (r *Retriever) embedWithRetry(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := boundedCtx(ctx, r.embedTimeout)
	defer cancel()
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		time.Sleep(250 * time.Millisecond)
		vectors, err = r.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

// cleanAndFilter normalizes markdown, strips code fences, collapses
// whitespace, and drops passages too short or missing both title and URL.
func cleanAndFilter(passages []types.Passage, minChars int) []types.Passage {
	out := make([]types.Passage, 0, len(passages))
	for _, p := range passages {
		cleaned := markdownFence.ReplaceAllString(p.Text, "")
		cleaned = markdownMarks.ReplaceAllString(cleaned, "")
		cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
		cleaned = strings.TrimSpace(cleaned)
		if len(cleaned) < minChars {
			continue
		}
		if p.Title == "" && p.URL == nil {
			continue
		}
		p.Text = cleaned
		out = append(out, p)
	}
	return out
}

// dedupByURLAndTitle keeps the higher-scored duplicate when two passages
// share a URL, then when they share a normalized title.
func dedupByURLAndTitle(passages []types.Passage) []types.Passage {
	byURL := make(map[string]int)
	byTitle := make(map[string]int)
	out := make([]types.Passage, 0, len(passages))

	score := func(p types.Passage) float64 { return p.DenseScore }

	for _, p := range passages {
		key := ""
		if p.URL != nil {
			key = *p.URL
		}
		titleKey := strings.ToLower(strings.TrimSpace(p.Title))

		if key != "" {
			if idx, ok := byURL[key]; ok {
				if score(p) > score(out[idx]) {
					out[idx] = p
				}
				continue
			}
		} else if titleKey != "" {
			if idx, ok := byTitle[titleKey]; ok {
				if score(p) > score(out[idx]) {
					out[idx] = p
				}
				continue
			}
		}

		out = append(out, p)
		if key != "" {
			byURL[key] = len(out) - 1
		}
		if titleKey != "" {
			byTitle[titleKey] = len(out) - 1
		}
	}
	return out
}

// capPool keeps at most n candidates ordered by descending dense score.
func capPool(passages []types.Passage, n int) []types.Passage {
	sort.Slice(passages, func(i, j int) bool { return passages[i].DenseScore > passages[j].DenseScore })
	if len(passages) > n {
		return passages[:n]
	}
	return passages
}
