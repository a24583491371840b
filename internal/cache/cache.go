// Package cache provides a Redis-backed cache for upstream GET responses.
// Portal data changes slowly and service keys carry daily call quotas, so
// serving repeats from Redis both speeds clients up and preserves quota.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kdata:cache:"

// Entry is a cached upstream response. Only 200 responses are stored.
type Entry struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Cache stores upstream responses in Redis. A nil Redis client disables
// caching: Get always misses and Set is a no-op.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Key derives the cache key for a forwarded request. The portal service
// key is stripped from the query first: it is a credential, not part of
// the resource identity, and including it would split the cache per key.
func Key(endpoint, path string, query url.Values, serviceKeyParam string) string {
	q := url.Values{}
	for k, vs := range query {
		if k == serviceKeyParam {
			continue
		}
		q[k] = vs
	}
	digest := sha256.Sum256([]byte(path + "?" + q.Encode()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, endpoint, digest)
}

// Get returns the cached entry for key, or nil on a miss or any Redis
// error (the caller then forwards to the upstream as usual).
func (c *Cache) Get(ctx context.Context, key string) *Entry {
	if c.rdb == nil {
		return nil
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	return &entry
}

// Set stores entry under key for ttl. Failures are ignored; the cache is
// an optimization, never a source of truth.
func (c *Cache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) {
	if c.rdb == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, data, ttl)
}
