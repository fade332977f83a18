package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/climatequery/engine/internal/types"
)

// MemoryCacheStore is a process-local, non-durable CacheStore used for
// tests and single-process development; it does not survive restarts.
type MemoryCacheStore struct {
	entries  *lru.Cache[types.CacheKey, types.CacheEntry]
	mu       sync.Mutex
	feedback []types.FeedbackRecord
}

// NewMemoryCacheStore builds an in-memory LRU-bounded cache.
func NewMemoryCacheStore(memoryBound int) (*MemoryCacheStore, error) {
	if memoryBound <= 0 {
		memoryBound = 1000
	}
	entries, err := lru.New[types.CacheKey, types.CacheEntry](memoryBound)
	if err != nil {
		return nil, err
	}
	return &MemoryCacheStore{entries: entries}, nil
}

// Get returns the cached entry, if any.
func (s *MemoryCacheStore) Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error) {
	if entry, ok := s.entries.Get(key); ok {
		return &entry, nil
	}
	return nil, nil
}

// Put stores an entry, evicting the least recently used one if at capacity.
func (s *MemoryCacheStore) Put(ctx context.Context, entry types.CacheEntry) error {
	s.entries.Add(entry.Key, entry)
	return nil
}

// PutFeedback appends to an in-process slice; fine for tests, lost on
// restart like the rest of this store.
func (s *MemoryCacheStore) PutFeedback(ctx context.Context, record types.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, record)
	return nil
}

// Feedback returns the accumulated feedback records, for tests.
func (s *MemoryCacheStore) Feedback() []types.FeedbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FeedbackRecord(nil), s.feedback...)
}
