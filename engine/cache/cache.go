package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/david1005910/Bio2/engine/domain"
)

// DefaultTTL is the reference response lifetime.
const DefaultTTL = 7 * 24 * time.Hour

const responsePrefix = "rag:response:"

// ResponseCache memoizes complete RAG responses in Redis. Expiry is handled
// by Redis key TTLs, so an expired entry is never returned.
type ResponseCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResponseCache creates a response cache. ttl <= 0 falls back to DefaultTTL.
func NewResponseCache(rdb *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResponseCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached response for a fingerprint, or ok=false on miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (*domain.RAGResponse, bool, error) {
	raw, err := c.rdb.Get(ctx, responsePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	var resp domain.RAGResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// A corrupt entry is treated as a miss so the pipeline can rebuild it.
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &resp, true, nil
}

// Put stores a response under its fingerprint for the configured TTL.
func (c *ResponseCache) Put(ctx context.Context, key string, resp *domain.RAGResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, responsePrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Invalidate drops one cached response.
func (c *ResponseCache) Invalidate(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, responsePrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", key, err)
	}
	return nil
}
