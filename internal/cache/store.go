// Package cache provides the fingerprinted response CacheStore in its
// three supported shapes (redis for shared multi-instance deployments,
// bbolt for a single durable process, memory for tests) behind a single
// interfaces.CacheStore, plus a SafeStore decorator that enforces the
// "cache never fails the request" policy.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// NewCacheStore builds the configured CacheStore driver, wrapped so a
// backend failure never surfaces to a caller. memoryBound caps the number
// of entries the in-memory tier holds before LRU eviction; opTimeout
// bounds each backend operation.
func NewCacheStore(cfg *config.CacheConfig, memoryBound int, opTimeout time.Duration) (interfaces.CacheStore, error) {
	var store interfaces.CacheStore
	var err error

	switch cfg.Driver {
	case "redis":
		store, err = NewRedisCacheStore(cfg.Redis)
	case "bolt", "":
		store, err = NewBoltCacheStore(cfg.Bolt, memoryBound)
	case "memory":
		store, err = NewMemoryCacheStore(memoryBound)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return &SafeStore{inner: store, opTimeout: opTimeout}, nil
}

// SafeStore wraps a CacheStore so that a failed Get is logged and treated
// as a miss, and a failed Put is logged and swallowed. This is the single
// place the "cache errors must not fail the request path" rule lives;
// every driver above can fail loudly because SafeStore is always what the
// orchestrator actually holds.
type SafeStore struct {
	inner     interfaces.CacheStore
	opTimeout time.Duration
}

func (s *SafeStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(ctx, s.opTimeout)
	}
	return context.WithCancel(ctx)
}

// Get never returns an error: a backend failure degrades to a miss.
func (s *SafeStore) Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	entry, err := s.inner.Get(ctx, key)
	if err != nil {
		logger.GetLogger(ctx).Warnf("cache get failed, treating as miss: %v", err)
		return nil, nil
	}
	return entry, nil
}

// Put never returns an error visible to the caller: a failure is logged
// and the computed Answer is still returned by the orchestrator.
func (s *SafeStore) Put(ctx context.Context, entry types.CacheEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.inner.Put(ctx, entry); err != nil {
		logger.GetLogger(ctx).Warnf("cache put failed: %v", err)
	}
	return nil
}

// PutFeedback never returns an error visible to the caller: a failure is
// logged and swallowed. The write runs synchronously within the op
// timeout; it stays off the request path because the feedback endpoint
// only enqueues the record and the asynq worker calls this method.
func (s *SafeStore) PutFeedback(ctx context.Context, record types.FeedbackRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.inner.PutFeedback(ctx, record); err != nil {
		logger.GetLogger(ctx).Warnf("cache feedback write failed: %v", err)
	}
	return nil
}

// Close releases the wrapped store's resources, if it has any.
func (s *SafeStore) Close() error {
	if closer, ok := s.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
