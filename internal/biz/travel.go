package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/data"
	pkgerrors "Wayfarer/pkg/errors"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/singleflight"
)

// Source tells callers where a result came from.
type Source string

const (
	SourceAPI   Source = "api"
	SourceCache Source = "cache"
	SourceMock  Source = "mock"
)

const defaultCacheTTL = 30 * time.Minute

// WeatherResult is the getWeather envelope.
type WeatherResult struct {
	Weather   *data.Weather `json:"weather"`
	Source    Source        `json:"source"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// PlacesResult is the searchPlaces envelope.
type PlacesResult struct {
	Places    []data.Place `json:"places"`
	Source    Source       `json:"source"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// HotelsResult is the searchHotels envelope.
type HotelsResult struct {
	Hotels    []data.Hotel `json:"hotels"`
	Source    Source       `json:"source"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// ProviderStatus describes one provider's health and configuration.
type ProviderStatus struct {
	Service         string     `json:"service"`
	Configured      bool       `json:"configured"`
	CircuitState    string     `json:"circuit_state"`
	FailureCount    int        `json:"failure_count"`
	NextAttemptTime *time.Time `json:"next_attempt_time,omitempty"`
	TokensAvailable float64    `json:"tokens_available"`
	TokenCapacity   float64    `json:"token_capacity"`
}

// APIStatus is the getApiStatus result.
type APIStatus struct {
	Mode      string           `json:"mode"`
	Providers []ProviderStatus `json:"providers"`
	CacheSize int              `json:"cache_size"`
}

// cachedEntry is what the facade stores per cache key.
type cachedEntry[T any] struct {
	Data      T         `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
}

// TravelUsecase is the facade over the gateway. Each lookup checks the
// response cache, then takes a limiter token, then calls the provider
// through its breaker and retry policy, and stores the result.
type TravelUsecase struct {
	data     *data.Data
	weather  WeatherRepo
	places   PlacesRepo
	hotels   HotelsRepo
	audit    AuditLogger
	ttls     map[string]time.Duration
	coalesce bool
	group    singleflight.Group
	now      func() time.Time
	logger   *pkglog.LogHelper
}

// NewTravelUsecase creates a TravelUsecase.
func NewTravelUsecase(c *conf.Gateway, d *data.Data, weather WeatherRepo, places PlacesRepo, hotels HotelsRepo,
	audit AuditLogger, logger log.Logger) *TravelUsecase {
	uc := &TravelUsecase{
		data:     d,
		weather:  weather,
		places:   places,
		hotels:   hotels,
		audit:    audit,
		ttls:     make(map[string]time.Duration, len(conf.KnownServices)),
		coalesce: c.CoalesceRequests,
		now:      time.Now,
		logger:   pkglog.NewLogHelper(logger),
	}
	for _, id := range conf.KnownServices {
		uc.ttls[id] = defaultCacheTTL
		if s := c.GetService(id); s != nil && s.CacheTtl.AsDuration() > 0 {
			uc.ttls[id] = s.CacheTtl.AsDuration()
		}
	}
	return uc
}

// GetWeather returns current conditions and a five day forecast for city.
func (uc *TravelUsecase) GetWeather(ctx context.Context, city string) (*WeatherResult, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, pkgerrors.BadRequest("city is required")
	}

	key := data.BuildCacheKey(data.CacheKeyWeather, city)
	w, source, fetchedAt, err := resolve(ctx, uc, conf.ServiceWeather, key, func(ctx context.Context) (*data.Weather, error) {
		return uc.weather.GetWeather(ctx, city)
	})
	if err != nil {
		return nil, err
	}
	return &WeatherResult{Weather: w, Source: source, FetchedAt: fetchedAt}, nil
}

// SearchPlaces searches points of interest. q.Type is one of the place
// categories or empty for any.
func (uc *TravelUsecase) SearchPlaces(ctx context.Context, q data.PlaceQuery) (*PlacesResult, error) {
	q.Query = strings.TrimSpace(q.Query)
	q.Location = strings.TrimSpace(q.Location)
	q.Type = strings.ToLower(strings.TrimSpace(q.Type))
	if q.Query == "" && q.Location == "" {
		return nil, pkgerrors.BadRequest("query or location is required")
	}
	if _, ok := data.PlaceTypes[q.Type]; q.Type != "" && !ok {
		return nil, pkgerrors.BadRequest("unsupported place type %q", q.Type)
	}

	key := data.BuildCacheKey(data.CacheKeyPlaces, q.Type, q.Query, q.Location)
	places, source, fetchedAt, err := resolve(ctx, uc, conf.ServicePlaces, key, func(ctx context.Context) ([]data.Place, error) {
		return uc.places.SearchPlaces(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return &PlacesResult{Places: places, Source: source, FetchedAt: fetchedAt}, nil
}

// SearchHotels searches lodging at q.Location for the stay q.CheckIn to
// q.CheckOut.
func (uc *TravelUsecase) SearchHotels(ctx context.Context, q data.HotelQuery) (*HotelsResult, error) {
	q.Location = strings.TrimSpace(q.Location)
	if q.Location == "" {
		return nil, pkgerrors.BadRequest("location is required")
	}
	if q.CheckIn.IsZero() || q.CheckOut.IsZero() {
		return nil, pkgerrors.BadRequest("check-in and check-out dates are required")
	}
	if !q.CheckOut.After(q.CheckIn) {
		return nil, pkgerrors.BadRequest("check-out must be after check-in")
	}

	const layout = "2006-01-02"
	key := data.BuildCacheKey(data.CacheKeyHotels, q.Location, q.CheckIn.Format(layout), q.CheckOut.Format(layout))
	hotels, source, fetchedAt, err := resolve(ctx, uc, conf.ServiceHotels, key, func(ctx context.Context) ([]data.Hotel, error) {
		return uc.hotels.SearchHotels(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return &HotelsResult{Hotels: hotels, Source: source, FetchedAt: fetchedAt}, nil
}

// resolve runs the cache, limiter and provider steps shared by every lookup.
func resolve[T any](ctx context.Context, uc *TravelUsecase, service, key string, fetch func(context.Context) (T, error)) (T, Source, time.Time, error) {
	var zero T

	if uc.data.Mode() == conf.ModeMock {
		v, err := fetch(ctx)
		if err != nil {
			return zero, "", time.Time{}, err
		}
		uc.logger.Mock("served synthetic result", "service_id", service, "cache_key", key)
		return v, SourceMock, uc.now(), nil
	}

	if _, err := uc.data.Credentials().Key(service); err != nil {
		return zero, "", time.Time{}, err
	}

	var hit cachedEntry[T]
	err := uc.data.GetCache().Get(ctx, key, &hit)
	if err == nil {
		return hit.Data, SourceCache, hit.FetchedAt, nil
	}
	if !errors.Is(err, data.ErrCacheNotFound) {
		uc.logger.Cache("cache read failed, fetching", "cache_key", key, "error", err)
	}

	load := func() (cachedEntry[T], error) {
		if err := uc.data.Limiters().Acquire(ctx, service, 1); err != nil {
			return cachedEntry[T]{}, err
		}
		v, err := fetch(ctx)
		if err != nil {
			uc.logger.Gateway(fmt.Sprintf("%s lookup failed", service),
				"service_id", service, "kind", pkgerrors.KindOf(err).String(), "error", err,
				"request_id", pkglog.GetRequestID(ctx))
			return cachedEntry[T]{}, err
		}
		entry := cachedEntry[T]{Data: v, FetchedAt: uc.now()}
		if err := uc.data.GetCache().Set(ctx, key, entry, uc.ttls[service]); err != nil {
			uc.logger.Cache("cache write failed", "cache_key", key, "error", err)
		}
		return entry, nil
	}

	if !uc.coalesce {
		entry, err := load()
		if err != nil {
			return zero, "", time.Time{}, err
		}
		return entry.Data, SourceAPI, entry.FetchedAt, nil
	}

	shared, err, _ := uc.group.Do(key, func() (interface{}, error) {
		return load()
	})
	if err != nil {
		return zero, "", time.Time{}, err
	}
	entry := shared.(cachedEntry[T])
	return entry.Data, SourceAPI, entry.FetchedAt, nil
}

// GetAPIStatus reports per provider configuration, breaker and limiter state.
func (uc *TravelUsecase) GetAPIStatus(ctx context.Context) (*APIStatus, error) {
	status := &APIStatus{
		Mode:      uc.data.Mode(),
		Providers: make([]ProviderStatus, 0, len(conf.KnownServices)),
		CacheSize: uc.data.GetCache().Len(),
	}
	for _, id := range uc.data.Breakers().Services() {
		snap, err := uc.data.Breakers().Snapshot(id)
		if err != nil {
			return nil, err
		}
		tokens, err := uc.data.Limiters().Tokens(id)
		if err != nil {
			return nil, err
		}
		ps := ProviderStatus{
			Service:         id,
			Configured:      uc.data.Credentials().Configured(id),
			CircuitState:    snap.State.String(),
			FailureCount:    snap.FailureCount,
			TokensAvailable: tokens,
			TokenCapacity:   uc.data.Limiters().Capacity(id),
		}
		if !snap.NextAttemptTime.IsZero() {
			next := snap.NextAttemptTime
			ps.NextAttemptTime = &next
		}
		status.Providers = append(status.Providers, ps)
	}
	sort.Slice(status.Providers, func(i, j int) bool { return status.Providers[i].Service < status.Providers[j].Service })
	return status, nil
}

// SetAPIKeys updates provider keys. Nil fields are left unchanged.
func (uc *TravelUsecase) SetAPIKeys(ctx context.Context, upd data.KeyUpdate) error {
	uc.data.Credentials().Update(upd)

	changed := make([]string, 0, 3)
	for service, v := range map[string]*string{
		conf.ServiceWeather: upd.Weather,
		conf.ServicePlaces:  upd.Places,
		conf.ServiceHotels:  upd.Hotels,
	} {
		if v != nil {
			changed = append(changed, service)
		}
	}
	sort.Strings(changed)
	uc.logger.Security("provider API keys updated", "services", strings.Join(changed, ","),
		"request_id", pkglog.GetRequestID(ctx))
	uc.audit.LogKeysUpdated(ctx, changed)
	return nil
}

// ClearCache drops every cached provider response.
func (uc *TravelUsecase) ClearCache(ctx context.Context) error {
	cache := uc.data.GetCache()
	entries := cache.Len()
	if err := cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	uc.logger.Cache("response cache cleared", "entries", entries, "request_id", pkglog.GetRequestID(ctx))
	uc.audit.LogCacheCleared(ctx, entries)
	return nil
}

// ResetCircuitBreaker forces one provider's breaker closed.
func (uc *TravelUsecase) ResetCircuitBreaker(ctx context.Context, service string) error {
	if err := uc.data.Breakers().Reset(service); err != nil {
		if errors.Is(err, data.ErrUnknownService) {
			return pkgerrors.BadRequest("unknown service %q", service)
		}
		return err
	}
	uc.logger.Breaker("circuit breaker reset", "service_id", service, "request_id", pkglog.GetRequestID(ctx))
	uc.audit.LogBreakerReset(ctx, service)
	return nil
}

// ResetAllCircuitBreakers forces every breaker closed.
func (uc *TravelUsecase) ResetAllCircuitBreakers(ctx context.Context) error {
	uc.data.Breakers().ResetAll()
	uc.logger.Breaker("all circuit breakers reset", "request_id", pkglog.GetRequestID(ctx))
	uc.audit.LogBreakerReset(ctx, "")
	return nil
}

// SweepCache evicts expired in-process entries and returns how many were
// removed.
func (uc *TravelUsecase) SweepCache() int {
	cache := uc.data.GetCache()
	removed := cache.Cleanup()
	uc.logger.CacheStats("response", cache.Len(), removed)
	return removed
}
