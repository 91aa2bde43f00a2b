// Package rediscache puts a Redis read-through cache in front of a calendar
// repository.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"dayplan/backend/internal/domain"
	"dayplan/backend/internal/store"
)

const keyPrefix = "dayplan:calendar:"

type entry struct {
	Body      []byte    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache serves Load from Redis when it can and from the wrapped repository
// otherwise. Redis failures never fail a request. Save writes through to the
// repository and evicts the cached copy.
type Cache struct {
	base  store.CalendarRepository
	redis *redis.Client
	ttl   time.Duration
}

var _ store.CalendarRepository = (*Cache)(nil)

func New(base store.CalendarRepository, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("rediscache.New: base repository is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Save(ctx context.Context, id domain.CapabilityID, body []byte) error {
	if err := c.base.Save(ctx, id, body); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) Load(ctx context.Context, id domain.CapabilityID) (domain.CalendarDocument, error) {
	if doc, ok := c.loadFromCache(ctx, id); ok {
		return doc, nil
	}

	doc, err := c.base.Load(ctx, id)
	if err != nil {
		return domain.CalendarDocument{}, err
	}

	c.store(ctx, doc)
	return doc, nil
}

// Ping checks the wrapped repository when it supports health checks.
func (c *Cache) Ping(ctx context.Context) error {
	if p, ok := c.base.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, id domain.CapabilityID) (domain.CalendarDocument, bool) {
	if c.redis == nil {
		return domain.CalendarDocument{}, false
	}
	data, err := c.redis.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_ = c.redis.Del(ctx, cacheKey(id)).Err()
		}
		return domain.CalendarDocument{}, false
	}
	var e entry
	if err := sonic.Unmarshal(data, &e); err != nil {
		_ = c.redis.Del(ctx, cacheKey(id)).Err()
		return domain.CalendarDocument{}, false
	}
	return domain.CalendarDocument{ID: id, Body: e.Body, UpdatedAt: e.UpdatedAt}, true
}

func (c *Cache) store(ctx context.Context, doc domain.CalendarDocument) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(entry{Body: doc.Body, UpdatedAt: doc.UpdatedAt})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(doc.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id domain.CapabilityID) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, cacheKey(id)).Err()
}

func cacheKey(id domain.CapabilityID) string {
	return keyPrefix + string(id)
}
