// Package catalog looks up providers for the booking wizard.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"guardslot/internal/model"
)

// ErrNotFound is returned when no active provider matches.
var ErrNotFound = errors.New("provider not found")

// Source resolves active providers.
type Source interface {
	ProviderByAPIKey(ctx context.Context, apiKey string) (*model.Provider, error)
	ProviderByID(ctx context.Context, id string) (*model.Provider, error)
}

// cacheEntry keeps the api key, which the provider's JSON form omits.
type cacheEntry struct {
	APIKey   string          `json:"api_key"`
	Provider *model.Provider `json:"provider"`
}

// Cached is a Redis read-through cache in front of a Source.
// Cache failures fall through to the wrapped source.
type Cached struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zerolog.Logger
}

func NewCached(source Source, redisClient *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cached {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Cached{
		source: source,
		redis:  redisClient,
		ttl:    ttl,
		prefix: "catalog:",
		logger: logger,
	}
}

func (c *Cached) ProviderByAPIKey(ctx context.Context, apiKey string) (*model.Provider, error) {
	return c.lookup(ctx, "key:"+apiKey, func() (*model.Provider, error) {
		return c.source.ProviderByAPIKey(ctx, apiKey)
	})
}

func (c *Cached) ProviderByID(ctx context.Context, id string) (*model.Provider, error) {
	return c.lookup(ctx, "id:"+id, func() (*model.Provider, error) {
		return c.source.ProviderByID(ctx, id)
	})
}

func (c *Cached) lookup(ctx context.Context, key string, load func() (*model.Provider, error)) (*model.Provider, error) {
	var entry cacheEntry
	if c.readCache(ctx, key, &entry) && entry.Provider != nil {
		entry.Provider.APIKey = entry.APIKey
		return entry.Provider, nil
	}

	p, err := load()
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, cacheEntry{APIKey: p.APIKey, Provider: p})
	return p, nil
}

// Invalidate drops every cached provider. Called after a catalog sync.
func (c *Cached) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan catalog cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear catalog cache: %w", err)
	}
	return nil
}

func (c *Cached) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("catalog cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Cached) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, c.prefix+key, data, c.ttl).Err()
}
