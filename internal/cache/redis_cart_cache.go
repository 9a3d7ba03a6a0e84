// Package cache provides the cart cache implementations behind the explicit
// cache port the services call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/localeats/api/internal/domain"
)

// defaultCartTTL bounds how long an untouched cart entry survives. Coherence
// does not depend on it; every committed write replaces or invalidates the
// entry before returning.
const defaultCartTTL = 30 * time.Minute

// RedisCartCacheDeps configures NewRedisCartCache.
type RedisCartCacheDeps struct {
	Client *redis.Client
	// KeyPrefix namespaces cache keys; defaults to "cart".
	KeyPrefix string
	// TTL overrides the entry lifetime; zero applies the default.
	TTL time.Duration
}

// RedisCartCache caches cart snapshots in Redis, keyed by cart code.
type RedisCartCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// cartEnvelope wraps the snapshot with its commit version so writers can be
// ordered server-side. The version is the commit timestamp in nanoseconds.
type cartEnvelope struct {
	Version int64       `json:"version"`
	Cart    domain.Cart `json:"cart"`
}

// putScript replaces the entry only when the incoming version is at least as
// new as the cached one, so a delayed write-back cannot shadow a later
// commit. KEYS[1] = cache key, ARGV[1] = envelope, ARGV[2] = version,
// ARGV[3] = TTL in milliseconds.
var putScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
	local ok, decoded = pcall(cjson.decode, current)
	if ok and decoded.version and tonumber(decoded.version) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

// NewRedisCartCache validates dependencies and constructs the cache.
func NewRedisCartCache(deps RedisCartCacheDeps) (*RedisCartCache, error) {
	if deps.Client == nil {
		return nil, errors.New("redis cart cache: client is required")
	}
	prefix := strings.TrimSpace(deps.KeyPrefix)
	if prefix == "" {
		prefix = "cart"
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &RedisCartCache{
		client: deps.Client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Get returns the cached cart for the code, reporting whether it was present.
func (c *RedisCartCache) Get(ctx context.Context, cartCode string) (domain.Cart, bool, error) {
	data, err := c.client.Get(ctx, c.key(cartCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, false, nil
	}
	if err != nil {
		return domain.Cart{}, false, fmt.Errorf("redis cart cache: get: %w", err)
	}

	var envelope cartEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		// A corrupt entry must not poison reads; drop it and miss.
		_ = c.client.Del(ctx, c.key(cartCode)).Err()
		return domain.Cart{}, false, fmt.Errorf("redis cart cache: decode: %w", err)
	}
	return envelope.Cart, true, nil
}

// Put stores the cart snapshot under its code. Snapshots older than the
// cached entry are discarded server-side; the store never moves backwards.
func (c *RedisCartCache) Put(ctx context.Context, cart domain.Cart) error {
	envelope := cartEnvelope{
		Version: cart.UpdatedAt.UnixNano(),
		Cart:    cart,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("redis cart cache: encode: %w", err)
	}
	err = putScript.Run(ctx, c.client,
		[]string{c.key(cart.CartCode)},
		data, envelope.Version, c.ttl.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis cart cache: set: %w", err)
	}
	return nil
}

// Invalidate removes the cached entry for the code.
func (c *RedisCartCache) Invalidate(ctx context.Context, cartCode string) error {
	if err := c.client.Del(ctx, c.key(cartCode)).Err(); err != nil {
		return fmt.Errorf("redis cart cache: del: %w", err)
	}
	return nil
}

func (c *RedisCartCache) key(cartCode string) string {
	return c.prefix + ":" + cartCode
}
