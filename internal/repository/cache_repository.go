package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/invigilation-api/pkg/errors"
)

// CacheRepository stores JSON encoded read models in Redis.
type CacheRepository struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewCacheRepository constructs a Redis backed cache repository. Keys are
// namespaced with prefix.
func NewCacheRepository(client redis.UniversalClient, prefix string, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, prefix: prefix, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes cached entries matching a glob pattern.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	var batch []string
	iter := r.client.Scan(ctx, 0, r.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, batch...).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", pattern, err)
	}
	r.logger.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("keys", len(batch)))
	return nil
}

// MemoryCacheRepository is the in-process fallback used when Redis is
// disabled. Values are kept JSON encoded so callers observe the same
// copy semantics as with Redis.
type MemoryCacheRepository struct {
	store *gocache.Cache
}

// NewMemoryCacheRepository builds an in-process cache with the given default
// TTL.
func NewMemoryCacheRepository(defaultTTL time.Duration) *MemoryCacheRepository {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCacheRepository{store: gocache.New(defaultTTL, 2*defaultTTL)}
}

// Get implements the cache repository contract.
func (r *MemoryCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := r.store.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	payload, ok := raw.([]byte)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set implements the cache repository contract.
func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	r.store.Set(key, payload, ttl)
	return nil
}

// DeleteByPattern removes keys matching a glob pattern.
func (r *MemoryCacheRepository) DeleteByPattern(_ context.Context, pattern string) error {
	for key := range r.store.Items() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("match cache pattern %s: %w", pattern, err)
		}
		if matched {
			r.store.Delete(key)
		}
	}
	return nil
}
