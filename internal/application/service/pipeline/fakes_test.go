package pipeline

import (
	"context"
	"errors"

	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// fakeLLM is a hand-written stand-in for interfaces.LLMProvider. Each call
// pops the next scripted response so a test can drive a classifier/guard
// retry loop deterministically with no mocking framework.
type fakeLLM struct {
	family    types.ModelFamily
	completes []string
	completeErrs []error
	translateFn func(ctx context.Context, text, from, to string) (string, error)
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	i := f.calls
	f.calls++
	var resp string
	var err error
	if i < len(f.completes) {
		resp = f.completes[i]
	}
	if i < len(f.completeErrs) {
		err = f.completeErrs[i]
	}
	return resp, err
}

func (f *fakeLLM) Translate(ctx context.Context, text, fromLang, toLang string) (string, error) {
	if f.translateFn != nil {
		return f.translateFn(ctx, text, fromLang, toLang)
	}
	return "[" + toLang + "] " + text, nil
}

func (f *fakeLLM) ModelFamily() types.ModelFamily { return f.family }

// fakeEmbedder returns a fixed-size deterministic vector for any input so
// cosine-similarity and cache-key-adjacent tests don't depend on a real
// embedding model.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, []float32{1, 0, 0})
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }

// fakeIndex is a scripted VectorIndexClient: Search fails `failTimes`
// times before succeeding, matching the Retriever's retry-once contract.
type fakeIndex struct {
	passages  []types.Passage
	failTimes int
	calls     int
}

func (f *fakeIndex) Search(ctx context.Context, queryText string, dense []float32, topK int) ([]types.Passage, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, errors.New("index unavailable")
	}
	if len(f.passages) > topK {
		return f.passages[:topK], nil
	}
	return f.passages, nil
}

// fakeReranker sets each passage's rerank score from the scripted scores
// by ID (0.9 when a passage has none) and keeps the input order, or
// returns a scripted error.
type fakeReranker struct {
	scores map[string]float64
	err    error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, passages []types.Passage) ([]types.Passage, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Passage, len(passages))
	copy(out, passages)
	for i := range out {
		score := 0.9
		if s, ok := f.scores[out[i].ID]; ok {
			score = s
		}
		out[i].RerankScore = &score
	}
	return out, nil
}

// fakeWebSearch returns scripted passages for the web-fallback path.
type fakeWebSearch struct {
	passages []types.Passage
	err      error
}

func (f *fakeWebSearch) Search(ctx context.Context, query string) ([]types.Passage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

// fakeCacheStore is an in-memory CacheStore fake for the CacheLookup/
// CacheWrite stage tests and the orchestrator's round-trip test.
type fakeCacheStore struct {
	entries   map[types.CacheKey]types.CacheEntry
	getErr    error
	putErr    error
	feedback  []types.FeedbackRecord
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{entries: make(map[types.CacheKey]types.CacheEntry)}
}

func (f *fakeCacheStore) Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if e, ok := f.entries[key]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeCacheStore) Put(ctx context.Context, entry types.CacheEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[entry.Key] = entry
	return nil
}

func (f *fakeCacheStore) PutFeedback(ctx context.Context, record types.FeedbackRecord) error {
	f.feedback = append(f.feedback, record)
	return nil
}

func strPtr(s string) *string { return &s }
