package log

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThreshold is the latency above which RequestWithContext also
// emits a slow_request warning.
const SlowRequestThreshold = 3 * time.Second

// LogHelper extends log.Helper with typed methods. Each one appends a
// "type" field so the console encoder can pick an emoji.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates a LogHelper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{Helper: log.NewHelper(logger)}
}

func typed(logType, msg string, kvs []interface{}) []interface{} {
	all := make([]interface{}, 0, len(kvs)+4)
	all = append(all, "msg", msg)
	all = append(all, kvs...)
	return append(all, "type", logType)
}

// Gateway logs gateway orchestration events.
func (h *LogHelper) Gateway(msg string, kvs ...interface{}) {
	h.Infow(typed("gateway", msg, kvs)...)
}

// Provider logs an outbound provider call.
func (h *LogHelper) Provider(msg string, kvs ...interface{}) {
	h.Debugw(typed("provider", msg, kvs)...)
}

// Cache logs cache hits, misses and writes.
func (h *LogHelper) Cache(msg string, kvs ...interface{}) {
	h.Debugw(typed("cache", msg, kvs)...)
}

// Breaker logs circuit breaker transitions.
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(typed("breaker", msg, kvs)...)
}

// RateLimit logs a caller waiting on the token bucket.
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.Debugw(typed("rate_limit", msg, kvs)...)
}

// Retry logs a scheduled retry.
func (h *LogHelper) Retry(msg string, kvs ...interface{}) {
	h.Warnw(typed("retry", msg, kvs)...)
}

// Mock logs a response served from fixture data.
func (h *LogHelper) Mock(msg string, kvs ...interface{}) {
	h.Infow(typed("mock", msg, kvs)...)
}

// Config logs configuration changes.
func (h *LogHelper) Config(msg string, kvs ...interface{}) {
	h.Infow(typed("config", msg, kvs)...)
}

// Security logs rejected admin calls.
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	h.Warnw(typed("security", msg, kvs)...)
}

// Startup logs process lifecycle events.
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed("startup", msg, kvs)...)
}

// Success logs a completed operation.
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(typed("success", msg, kvs)...)
}

// RequestWithContext logs a finished inbound request and flags it as slow
// when it exceeded SlowRequestThreshold.
func (h *LogHelper) RequestWithContext(ctx context.Context, operation string, status int, duration time.Duration, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	ms := duration.Milliseconds()

	all := typed("request", fmt.Sprintf("%s - %d (%dms)", operation, status, ms), kvs)
	all = append(all,
		"request_id", reqCtx.RequestID,
		"operation", operation,
		"status", status,
		"duration_ms", ms,
	)
	if reqCtx.ClientIP != "" {
		all = append(all, "client_ip", reqCtx.ClientIP)
	}
	h.Infow(all...)

	if duration > SlowRequestThreshold {
		h.Warnw(typed("slow_request",
			fmt.Sprintf("[%s] slow request %s | %dms (threshold: %dms)",
				reqCtx.RequestID, operation, ms, SlowRequestThreshold.Milliseconds()),
			[]interface{}{"request_id", reqCtx.RequestID, "duration_ms", ms})...)
	}
}

// CacheStats logs the outcome of a cache sweep.
func (h *LogHelper) CacheStats(cacheName string, size, removed int, kvs ...interface{}) {
	msg := fmt.Sprintf("Cache sweep - %s | Size: %d, Removed: %d", cacheName, size, removed)
	all := typed("cache_stats", msg, kvs)
	all = append(all, "cache_name", cacheName, "size", size, "removed", removed)
	h.Infow(all...)
}
