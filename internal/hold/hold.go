// Package hold reserves a wizard slot while payment is in flight.
package hold

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an unconfirmed hold blocks a slot.
const DefaultTTL = 10 * time.Minute

// SlotHolder acquires and releases exclusive holds on slot keys.
type SlotHolder interface {
	// Hold returns false when another owner already holds the key.
	Hold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// Key builds the hold key for a provider's slot.
func Key(providerID, date, slotID string) string {
	return fmt.Sprintf("%s:%s:%s", providerID, date, slotID)
}

// RedisHolder stores holds as SET NX keys with a TTL.
type RedisHolder struct {
	client *redis.Client
	prefix string
}

func NewRedisHolder(client *redis.Client, prefix string) *RedisHolder {
	if prefix == "" {
		prefix = "hold:"
	}
	return &RedisHolder{client: client, prefix: prefix}
}

func (h *RedisHolder) Hold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := h.client.SetNX(ctx, h.prefix+key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("hold %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	// Re-entrant for the same owner.
	current, err := h.client.Get(ctx, h.prefix+key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("read hold %s: %w", key, err)
	}
	return current == owner, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the hold only when owner still owns it.
func (h *RedisHolder) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.prefix + key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

type memoryEntry struct {
	owner   string
	expires time.Time
}

// MemoryHolder is the single-process holder used when Redis is not configured.
type MemoryHolder struct {
	mu    sync.Mutex
	holds map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryHolder(now func() time.Time) *MemoryHolder {
	if now == nil {
		now = time.Now
	}
	return &MemoryHolder{holds: make(map[string]memoryEntry), now: now}
}

func (h *MemoryHolder) Hold(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if e, ok := h.holds[key]; ok && now.Before(e.expires) && e.owner != owner {
		return false, nil
	}
	h.holds[key] = memoryEntry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (h *MemoryHolder) Release(_ context.Context, key, owner string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.holds[key]; ok && e.owner == owner {
		delete(h.holds, key)
	}
	return nil
}

// Sweep drops expired holds and reports how many were removed.
func (h *MemoryHolder) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	removed := 0
	for key, e := range h.holds {
		if !now.Before(e.expires) {
			delete(h.holds, key)
			removed++
		}
	}
	return removed
}
