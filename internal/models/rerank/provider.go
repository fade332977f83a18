package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// Provider adapts a Reranker (a string-in/RankResult-out contract) to the
// orchestrator-facing interfaces.Reranker contract, which operates on
// types.Passage and returns them reordered with RerankScore populated.
type Provider struct {
	reranker Reranker
}

// NewProvider wraps a Reranker for the orchestrator's Retriever.
func NewProvider(reranker Reranker) *Provider {
	return &Provider{reranker: reranker}
}

var _ interfaces.Reranker = (*Provider)(nil)

// Rerank scores each candidate against the query and returns them ordered
// by descending relevance, with RerankScore set on every passage. A
// candidate the reranker response omits keeps a nil RerankScore and sorts
// after every scored candidate.
func (p *Provider) Rerank(ctx context.Context, query string, passages []types.Passage) ([]types.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}

	documents := make([]string, len(passages))
	for i, passage := range passages {
		documents[i] = passage.Text
	}

	results, err := p.reranker.Rerank(ctx, query, documents)
	if err != nil {
		return nil, fmt.Errorf("rerank via %s: %w", p.reranker.GetModelName(), err)
	}

	scored := make([]types.Passage, len(passages))
	copy(scored, passages)
	for _, result := range results {
		if result.Index < 0 || result.Index >= len(scored) {
			continue
		}
		score := result.RelevanceScore
		scored[result.Index].RerankScore = &score
	}

	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := scored[i].RerankScore, scored[j].RerankScore
		if si == nil && sj == nil {
			return false
		}
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})
	return scored, nil
}
