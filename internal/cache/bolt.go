package cache

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/climatequery/engine/internal/config"
	"github.com/climatequery/engine/internal/types"
)

var (
	cacheBucket    = []byte("answers")
	feedbackBucket = []byte("feedback")
)

// BoltCacheStore is the single-process durable CacheStore: every Put is
// committed to the bbolt file in its own transaction, and a bounded in-memory LRU sits in
// front of it so a warm key never pays the disk round trip. Cached state
// therefore survives process restarts without needing an external cache
// service.
type BoltCacheStore struct {
	db  *bolt.DB
	hot *lru.Cache[types.CacheKey, types.CacheEntry]
}

// NewBoltCacheStore opens (creating if absent) the bucket used to persist
// cache entries, and wires a bounded LRU of the given size in front of it.
func NewBoltCacheStore(cfg config.BoltConfig, memoryBound int) (*BoltCacheStore, error) {
	path := cfg.Path
	if path == "" {
		path = "climatequery_cache.db"
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt cache store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(cacheBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(feedbackBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt cache bucket: %w", err)
	}

	if memoryBound <= 0 {
		memoryBound = 1000
	}
	hot, err := lru.New[types.CacheKey, types.CacheEntry](memoryBound)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bolt cache hot tier: %w", err)
	}

	return &BoltCacheStore{db: db, hot: hot}, nil
}

// Get checks the in-memory LRU before falling back to the durable bucket.
func (s *BoltCacheStore) Get(ctx context.Context, key types.CacheKey) (*types.CacheEntry, error) {
	if entry, ok := s.hot.Get(key); ok {
		return &entry, nil
	}

	var found *types.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(cacheBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var entry types.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode bolt cache entry: %w", err)
		}
		found = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found != nil {
		s.hot.Add(key, *found)
	}
	return found, nil
}

// Put writes through to bbolt and then seeds the hot tier.
func (s *BoltCacheStore) Put(ctx context.Context, entry types.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode bolt cache entry: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(entry.Key), raw)
	})
	if err != nil {
		return fmt.Errorf("write bolt cache entry: %w", err)
	}
	s.hot.Add(entry.Key, entry)
	return nil
}

// PutFeedback appends a feedback record keyed by request id plus the
// bucket's next sequence number; it never overwrites a prior record for
// the same request, since append-only durability is the point.
func (s *BoltCacheStore) PutFeedback(ctx context.Context, record types.FeedbackRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode bolt feedback record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(feedbackBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put([]byte(fmt.Sprintf("%s:%020d", record.RequestID, seq)), raw)
	})
}

// Close flushes and closes the underlying bbolt file.
func (s *BoltCacheStore) Close() error {
	return s.db.Close()
}
