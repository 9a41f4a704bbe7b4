package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/karlseguin/ccache/v3"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/xxh3"

	"github.com/tkrehbiel/blogfed/server/telemetry"
)

// Entry is a cached GET outcome. Failures are cached too, with Err set.
type Entry struct {
	Status  int         `json:"status"`
	Header  http.Header `json:"header,omitempty"`
	Body    []byte      `json:"body,omitempty"`
	Err     string      `json:"err,omitempty"`
	Expires time.Time   `json:"expires"`
}

// Expired reports whether the entry's deadline has passed at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Cache stores GET outcomes. ttl is an eviction hint for the backend;
// the client always checks Entry.Expires itself.
type Cache interface {
	Load(ctx context.Context, key string) (*Entry, bool)
	Store(ctx context.Context, key string, e *Entry, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type memoryCache struct {
	items *ccache.Cache[*Entry]
}

// NewMemoryCache returns an in-process cache holding at most size entries.
func NewMemoryCache(size int64) Cache {
	if size <= 0 {
		size = 5000
	}
	return &memoryCache{items: ccache.New(ccache.Configure[*Entry]().MaxSize(size))}
}

func (c *memoryCache) Load(_ context.Context, key string) (*Entry, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (c *memoryCache) Store(_ context.Context, key string, e *Entry, ttl time.Duration) {
	c.items.Set(key, e, ttl)
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.items.Delete(key)
}

type redisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache stores entries as JSON under prefix+url.
func NewRedisCache(client redis.UniversalClient, prefix string) Cache {
	return &redisCache{client: client, prefix: prefix}
}

func (c *redisCache) Load(ctx context.Context, key string) (*Entry, bool) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			telemetry.Error(err, "redis get [%s]", key)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (c *redisCache) Store(ctx context.Context, key string, e *Entry, ttl time.Duration) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, b, ttl).Err(); err != nil {
		telemetry.Error(err, "redis set [%s]", key)
	}
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, c.prefix+key)
}

type memcacheCache struct {
	client *memcache.Client
	prefix string
}

// NewMemcacheCache stores entries as JSON. Memcached keys are length limited,
// so urls are hashed.
func NewMemcacheCache(client *memcache.Client, prefix string) Cache {
	return &memcacheCache{client: client, prefix: prefix}
}

func (c *memcacheCache) key(url string) string {
	sum := xxh3.HashString128(url).Bytes()
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *memcacheCache) Load(_ context.Context, key string) (*Entry, bool) {
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			telemetry.Error(err, "memcache get [%s]", key)
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(item.Value, &e); err != nil {
		return nil, false
	}
	return &e, true
}

func (c *memcacheCache) Store(_ context.Context, key string, e *Entry, ttl time.Duration) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	item := &memcache.Item{Key: c.key(key), Value: b, Expiration: int32(ttl / time.Second)}
	if err := c.client.Set(item); err != nil {
		telemetry.Error(err, "memcache set [%s]", key)
	}
}

func (c *memcacheCache) Delete(_ context.Context, key string) {
	c.client.Delete(c.key(key))
}
