package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"Wayfarer/internal/metrics"
	pkglog "Wayfarer/pkg/log"
	"Wayfarer/pkg/ttlcache"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes, one per service id.
const (
	CacheKeyWeather = "weather"
	CacheKeyPlaces  = "places"
	CacheKeyHotels  = "hotels"
)

// redisNamespace prefixes every key written to the shared tier.
const redisNamespace = "wayfarer:"

// ErrCacheNotFound is returned when a cache key does not exist or expired.
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for response cache operations.
// Implementations must be thread-safe and handle serialization.
type CacheClient interface {
	// Get deserializes the cached value into dest.
	// Returns ErrCacheNotFound if the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores value as JSON for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds an unexpired value.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes every entry from all tiers.
	Clear(ctx context.Context) error

	// Cleanup eagerly evicts expired in-process entries and returns how
	// many were removed.
	Cleanup() int

	// Len returns the number of in-process entries, expired or not.
	Len() int
}

// tieredCache keeps JSON payloads in an in-process TTL map and, when a
// Redis client is available, mirrors them to Redis so several gateway
// instances share hits. Redis failures degrade to the in-process tier.
type tieredCache struct {
	local   *ttlcache.Cache[[]byte]
	rdb     *redis.Client
	metrics *metrics.Metrics
	logger  *pkglog.LogHelper
}

// NewCacheClient creates the response cache. rdb may be nil.
func NewCacheClient(rdb *redis.Client, m *metrics.Metrics, logger log.Logger) CacheClient {
	return newCacheClient(rdb, m, logger)
}

func newCacheClient(rdb *redis.Client, m *metrics.Metrics, logger log.Logger, opts ...ttlcache.Option) *tieredCache {
	return &tieredCache{
		local:   ttlcache.New[[]byte](opts...),
		rdb:     rdb,
		metrics: m,
		logger:  pkglog.NewLogHelper(logger),
	}
}

func (c *tieredCache) Get(ctx context.Context, key string, dest interface{}) error {
	service := serviceOfKey(key)

	raw, ok := c.local.Get(key)
	result := metrics.CacheHitMemory
	if !ok {
		raw, ok = c.getRemote(ctx, key)
		result = metrics.CacheHitRedis
	}
	if !ok {
		c.metrics.ObserveCache(service, metrics.CacheMiss)
		return ErrCacheNotFound
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.local.Delete(key)
		c.metrics.ObserveCache(service, metrics.CacheMiss)
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	c.metrics.ObserveCache(service, result)
	c.logger.Cache("cache hit", "cache_key", key, "tier", result)
	return nil
}

// getRemote reads key from Redis and backfills the local tier with the
// remaining TTL.
func (c *tieredCache) getRemote(ctx context.Context, key string) ([]byte, bool) {
	if c.rdb == nil {
		return nil, false
	}

	pipe := c.rdb.Pipeline()
	getCmd := pipe.Get(ctx, redisNamespace+key)
	ttlCmd := pipe.PTTL(ctx, redisNamespace+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warnw("msg", "redis cache read failed, using local tier only", "cache_key", key, "error", err)
		}
		return nil, false
	}

	raw, err := getCmd.Bytes()
	if err != nil {
		return nil, false
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		c.local.Set(key, raw, ttl)
	}
	return raw, true
}

func (c *tieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	c.local.Set(key, raw, ttl)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, redisNamespace+key, raw, ttl).Err(); err != nil {
			return fmt.Errorf("cache: failed to set key %s in redis: %w", key, err)
		}
	}
	return nil
}

func (c *tieredCache) Delete(ctx context.Context, key string) error {
	c.local.Delete(key)
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, redisNamespace+key).Err(); err != nil {
			return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
		}
	}
	return nil
}

func (c *tieredCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.local.Has(key) {
		return true, nil
	}
	if c.rdb == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, redisNamespace+key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *tieredCache) Clear(ctx context.Context) error {
	c.local.Clear()
	if c.rdb == nil {
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, redisNamespace+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("cache: failed to clear redis keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: failed to scan redis keys: %w", err)
	}
	if len(batch) > 0 {
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache: failed to clear redis keys: %w", err)
		}
	}
	return nil
}

func (c *tieredCache) Cleanup() int {
	return c.local.Cleanup()
}

func (c *tieredCache) Len() int {
	return c.local.Len()
}

// BuildCacheKey constructs a deterministic cache key from a prefix and
// request parameters. Parts are trimmed, lower-cased and have inner
// whitespace collapsed so equivalent requests share an entry, then
// query-escaped so a ':' inside a part cannot shift the field boundaries.
//   - BuildCacheKey(CacheKeyWeather, " Tokyo ") -> "weather:tokyo"
//   - BuildCacheKey(CacheKeyPlaces, "attraction", "Old  Town", "") -> "places:attraction:old+town:"
func BuildCacheKey(prefix string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(url.QueryEscape(normalizeKeyPart(part)))
	}
	return b.String()
}

func normalizeKeyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func serviceOfKey(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
