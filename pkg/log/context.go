package log

import (
	"context"
	"math/rand/v2"
	"time"
)

type contextKey string

const requestContextKey contextKey = "wayfarer_request_context"

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// RequestContext carries per-request tracing data through the gateway.
type RequestContext struct {
	RequestID string
	Operation string
	ClientIP  string
	StartTime time.Time
}

// GenerateRequestID returns a 10 character base36 id, e.g. mgrn0zfqda.
func GenerateRequestID() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[rand.IntN(len(base36Chars))]
	}
	return string(b)
}

// WithRequestContext attaches a RequestContext to ctx.
func WithRequestContext(ctx context.Context, requestID, operation, clientIP string) context.Context {
	return context.WithValue(ctx, requestContextKey, &RequestContext{
		RequestID: requestID,
		Operation: operation,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	})
}

// GetRequestContext returns the RequestContext stored in ctx, or a
// placeholder with RequestID "unknown".
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID extracts the request id from ctx.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime returns milliseconds since the request started.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
