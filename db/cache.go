package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/common"
	"strata.evalgo.org/content"
)

// ContentCache is the redis-backed read-through cache for single content
// loads. Failures degrade to cache misses; the database stays authoritative.
type ContentCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewContentCache connects to redis using a redis:// URL.
func NewContentCache(url string, ttl time.Duration) (*ContentCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, common.WrapError(common.KindStorage, "parse redis url", err)
	}
	return NewContentCacheWithClient(redis.NewClient(opts), ttl), nil
}

// NewContentCacheWithClient wraps an existing client. Tests use it with
// miniredis.
func NewContentCacheWithClient(client *redis.Client, ttl time.Duration) *ContentCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ContentCache{client: client, ttl: ttl, logger: common.Logger}
}

func cacheKey(blueprintID, slug string) string {
	return fmt.Sprintf("content:%s:%s", blueprintID, slug)
}

func (c *ContentCache) Get(ctx context.Context, blueprintID, slug string) (*content.Content, bool) {
	raw, err := c.client.Get(ctx, cacheKey(blueprintID, slug)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("content cache read failed: ", err)
		}
		return nil, false
	}
	var item content.Content
	if err := json.Unmarshal(raw, &item); err != nil {
		c.logger.Warn("content cache entry corrupt: ", err)
		return nil, false
	}
	return &item, true
}

func (c *ContentCache) Set(ctx context.Context, item *content.Content) {
	raw, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(item.BlueprintID, item.Slug), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("content cache write failed: ", err)
	}
}

func (c *ContentCache) Invalidate(ctx context.Context, blueprintID, slug string) {
	if err := c.client.Del(ctx, cacheKey(blueprintID, slug)).Err(); err != nil {
		c.logger.Warn("content cache invalidation failed: ", err)
	}
}

// Close releases the redis connection.
func (c *ContentCache) Close() error {
	return c.client.Close()
}
