package middleware

import (
	"context"
	"sync"
	"time"

	"Wayfarer/internal/metrics"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// ReasonThrottled is returned when a client exceeds its request rate.
const ReasonThrottled = "TOO_MANY_REQUESTS"

const (
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

// Throttle limits each client IP to rps requests per second with the
// given burst. rps <= 0 disables it.
func Throttle(rps float64, burst int, m *metrics.Metrics, logger *pkglog.LogHelper) middleware.Middleware {
	if rps <= 0 {
		return func(handler middleware.Handler) middleware.Handler { return handler }
	}
	if burst <= 0 {
		burst = int(rps) + 1
	}

	var mu sync.Mutex
	clients := expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := clients.Get(ip)
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
		}
		// Re-adding refreshes the idle TTL.
		clients.Add(ip, l)
		return l
	}

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			ip := "unknown"
			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					ip = ClientIP(ht.Request())
				}
			}

			if !limiterFor(ip).Allow() {
				m.ObserveThrottled()
				logger.RateLimit("inbound request throttled", "ip", ip, "request_id", pkglog.GetRequestID(ctx))
				return nil, errors.New(429, ReasonThrottled, "too many requests, slow down")
			}
			return handler(ctx, req)
		}
	}
}
