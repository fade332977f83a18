package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
)

// RedisCacheStore is the CacheStore backing for multi-instance deployments:
// the fingerprinted Answer cache is shared across every orchestrator
// process talking to the same redis.
type RedisCacheStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCacheStore dials redis eagerly so misconfiguration surfaces at
// startup rather than on the first request.
func NewRedisCacheStore(cfg config.RedisConfig) (*RedisCacheStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis cache store: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "climatequery:cache:"
	}
	return &RedisCacheStore{client: client, prefix: prefix}, nil
}

func (s *RedisCacheStore) key(k types.CacheKey) string {
	return s.prefix + string(k)
}

// Get returns a cached Answer or nil on a miss. Any redis error is
// returned to the caller, which the orchestrator treats as a miss.
func (s *RedisCacheStore) Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache get: %w", err)
	}
	var entry types.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	return &entry, nil
}

// Put writes an entry with no expiry. This driver applies no memory bound
// and no LRU eviction of its own: entries stay until they are deleted
// outside this store.
func (s *RedisCacheStore) Put(ctx context.Context, entry types.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis cache encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.Key), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis cache put: %w", err)
	}
	return nil
}

// PutFeedback appends a feedback record to a redis list so multiple
// instances share one feedback stream instead of each keeping its own.
func (s *RedisCacheStore) PutFeedback(ctx context.Context, record types.FeedbackRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redis feedback encode: %w", err)
	}
	if err := s.client.RPush(ctx, s.prefix+"feedback", raw).Err(); err != nil {
		return fmt.Errorf("redis feedback put: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisCacheStore) Close() error {
	return s.client.Close()
}
