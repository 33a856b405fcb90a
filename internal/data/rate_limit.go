package data

import (
	"context"
	"fmt"
	"time"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/metrics"
	pkglog "Wayfarer/pkg/log"
	"Wayfarer/pkg/ratelimit"

	"github.com/go-kratos/kratos/v2/log"
)

// LimiterRegistry owns one token bucket per service id.
type LimiterRegistry struct {
	buckets map[string]*ratelimit.Bucket
	metrics *metrics.Metrics
	logger  *pkglog.LogHelper
}

// NewLimiterRegistry creates a full bucket for every configured service.
func NewLimiterRegistry(c *conf.Gateway, m *metrics.Metrics, logger log.Logger) *LimiterRegistry {
	return newLimiterRegistry(c, m, logger)
}

func newLimiterRegistry(c *conf.Gateway, m *metrics.Metrics, logger log.Logger, opts ...ratelimit.Option) *LimiterRegistry {
	r := &LimiterRegistry{
		buckets: make(map[string]*ratelimit.Bucket, len(conf.KnownServices)),
		metrics: m,
		logger:  pkglog.NewLogHelper(logger),
	}
	for _, id := range conf.KnownServices {
		tokens, refill := 10.0, 1.0
		if s := c.GetService(id); s != nil {
			if s.MaxTokens > 0 {
				tokens = s.MaxTokens
			}
			if s.RefillPerSecond > 0 {
				refill = s.RefillPerSecond
			}
		}
		r.buckets[id] = ratelimit.NewBucket(tokens, refill, opts...)
	}
	return r
}

// Acquire blocks until n tokens are available for service.
func (r *LimiterRegistry) Acquire(ctx context.Context, service string, n int) error {
	b, ok := r.buckets[service]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	if b.TryAcquire(n) {
		r.metrics.ObserveLimiterWait(service, 0)
		return nil
	}

	r.logger.RateLimit("waiting for rate limit tokens",
		"service_id", service, "tokens", b.Tokens(), "request_id", pkglog.GetRequestID(ctx))

	start := time.Now()
	err := b.Acquire(ctx, n)
	r.metrics.ObserveLimiterWait(service, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s rate limiter: %w", service, err)
	}
	return nil
}

// Tokens reports the tokens currently available for service.
func (r *LimiterRegistry) Tokens(service string) (float64, error) {
	b, ok := r.buckets[service]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return b.Tokens(), nil
}

// Capacity reports the bucket size for service.
func (r *LimiterRegistry) Capacity(service string) float64 {
	if b, ok := r.buckets[service]; ok {
		return b.Capacity()
	}
	return 0
}
