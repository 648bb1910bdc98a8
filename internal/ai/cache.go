package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache memoizes embedding vectors by chunk text so identical
// chunks within a processing pass (or across retries) are only billed once.
// Misses and Redis errors both fall through to the provider.
type EmbeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewEmbeddingCache(rdb *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: rdb, ttl: ttl}
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("emb:%s:%s", model, hex.EncodeToString(sum[:]))
}

// Get returns the cached vector for (model, text), or nil on miss.
func (c *EmbeddingCache) Get(ctx context.Context, model, text string) []float32 {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, cacheKey(model, text)).Bytes()
	if err != nil {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

// Set stores the vector for (model, text) with the cache TTL.
func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vec []float32) {
	if c == nil || c.rdb == nil || len(vec) == 0 {
		return
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, cacheKey(model, text), raw, c.ttl)
}
