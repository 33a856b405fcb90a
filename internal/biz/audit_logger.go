package biz

import "context"

// AuditLogger records admin operations against the gateway.
type AuditLogger interface {
	// LogKeysUpdated records which providers had their API key replaced.
	LogKeysUpdated(ctx context.Context, services []string)

	// LogCacheCleared records a full response cache flush.
	LogCacheCleared(ctx context.Context, entries int)

	// LogBreakerReset records a manual breaker reset. An empty service means
	// every breaker.
	LogBreakerReset(ctx context.Context, service string)
}
