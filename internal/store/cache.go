package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patchnotes/api/internal/model"
)

// StatusCache is a short-TTL read-through cache over the render view of an
// owner row. It is purely an optimization for status polling: the persisted
// row stays the single source of truth, and every successful transition
// invalidates the entry. A Redis outage degrades to direct store reads.
type StatusCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStatusCache creates a cache with the given entry TTL.
func NewStatusCache(redisClient *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{redis: redisClient, ttl: ttl}
}

func cacheKey(jobKey string) string {
	return fmt.Sprintf("render:status:%s", jobKey)
}

// Get returns the cached render view, or false on miss or Redis failure.
func (c *StatusCache) Get(ctx context.Context, jobKey string) (*model.RenderJob, bool) {
	data, err := c.redis.Get(ctx, cacheKey(jobKey)).Bytes()
	if err != nil {
		return nil, false
	}
	var job model.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false
	}
	return &job, true
}

// Set stores the render view. Failures are ignored; the cache is best-effort.
func (c *StatusCache) Set(ctx context.Context, jobKey string, job *model.RenderJob) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	c.redis.Set(ctx, cacheKey(jobKey), data, c.ttl)
}

// Invalidate drops the entry for a job key.
func (c *StatusCache) Invalidate(ctx context.Context, jobKey string) {
	c.redis.Del(ctx, cacheKey(jobKey))
}
