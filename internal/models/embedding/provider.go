package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/climatequery/engine/internal/types/interfaces"
)

// embedCacheSize bounds the in-memory embedding cache. Entries are whole
// dense vectors, so the cap keeps the cache to a few MB at typical
// dimensions.
const embedCacheSize = 1024

// Provider adapts an Embedder (one implementation per model source) to
// the orchestrator-facing interfaces.EmbeddingProvider contract. One
// Provider is constructed once at startup and shared across every
// request. A bounded LRU keyed by SHA-256 of the input text sits in front
// of the model call, so a repeated query (the same normalized question
// asked again with skip_cache, or a retried request) never re-embeds.
type Provider struct {
	embedder Embedder
	cache    *lru.Cache[[sha256.Size]byte, []float32]
}

// NewProvider wraps an Embedder for the orchestrator.
func NewProvider(embedder Embedder) (*Provider, error) {
	cache, err := lru.New[[sha256.Size]byte, []float32](embedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Provider{embedder: embedder, cache: cache}, nil
}

var _ interfaces.EmbeddingProvider = (*Provider)(nil)

// Embed batch-embeds texts, serving cached vectors where possible and
// sending only the misses through the pooled batching path, so a
// retrieval call that embeds several synthetic conversation passages
// alongside the rewritten query still makes one round trip per pool
// chunk instead of one per text.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if vector, ok := p.cache.Get(sha256.Sum256([]byte(text))); ok {
			out[i] = vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := p.embedder.BatchEmbedWithPool(ctx, p.embedder, missing)
	if err != nil {
		return nil, fmt.Errorf("embed via %s: %w", p.embedder.GetModelName(), err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed via %s: got %d vectors for %d texts",
			p.embedder.GetModelName(), len(vectors), len(missing))
	}
	for j, vector := range vectors {
		out[missingIdx[j]] = vector
		p.cache.Add(sha256.Sum256([]byte(missing[j])), vector)
	}
	return out, nil
}

// Dimensions reports the dense vector width the wrapped Embedder produces.
func (p *Provider) Dimensions() int {
	return p.embedder.GetDimensions()
}
