// Package data provides the outbound gateway, provider clients and the
// response cache.
package data

import (
	"net/http"

	"Wayfarer/internal/conf"
	"Wayfarer/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewMySQLClient,
	NewAuditLogger,
	NewCacheClient,
	NewHTTPClient,
	NewBreakerRegistry,
	NewLimiterRegistry,
	NewGateway,
	NewCredentials,
	NewPlacesAPI,
	NewWeatherRepo,
	NewPlacesRepo,
	NewHotelsRepo,
)

// Data groups the shared gateway state the facade works with.
type Data struct {
	redisClient *redis.Client
	cache       CacheClient
	breakers    *BreakerRegistry
	limiters    *LimiterRegistry
	creds       *Credentials
	mode        string
}

// NewData creates a Data. A nil Redis client leaves the cache process-local.
func NewData(c *conf.Gateway, logger log.Logger, rdb *redis.Client, cache CacheClient,
	breakers *BreakerRegistry, limiters *LimiterRegistry, creds *Credentials) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	mode := conf.ModeDirect
	if c != nil && c.Mode != "" {
		mode = c.Mode
	}
	if rdb == nil {
		helper.Info("shared cache tier disabled")
	}
	helper.Infof("gateway mode %s, services %v", mode, breakers.Services())

	d := &Data{
		redisClient: rdb,
		cache:       cache,
		breakers:    breakers,
		limiters:    limiters,
		creds:       creds,
		mode:        mode,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
	}
	return d, cleanup, nil
}

// NewHTTPClient creates the outbound client. Per-attempt timeouts come
// from the request context, so the client itself has none.
func NewHTTPClient(c *conf.Gateway) (*http.Client, error) {
	return httpclient.New(c.ProxyUrl, 0)
}

// GetCache returns the response cache.
func (d *Data) GetCache() CacheClient {
	return d.cache
}

// GetRedisClient returns the shared cache client, or nil.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// Breakers returns the breaker registry.
func (d *Data) Breakers() *BreakerRegistry {
	return d.breakers
}

// Limiters returns the limiter registry.
func (d *Data) Limiters() *LimiterRegistry {
	return d.limiters
}

// Credentials returns the API key store.
func (d *Data) Credentials() *Credentials {
	return d.creds
}

// Mode returns the gateway execution mode.
func (d *Data) Mode() string {
	return d.mode
}
