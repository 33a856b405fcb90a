package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"Wayfarer/internal/metrics"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// Logging assigns a request id (or honours X-Request-ID), stores the
// request context, and logs and measures every call.
//
// Example output:
//
//	🟢 GET /v1/weather/Tokyo - 200 (142ms) | RequestID: mgrn0zfqda
//	🐌 [mgrn0zfqda] Slow request detected | GET /v1/hotels | 4210ms
func Logging(logger *pkglog.LogHelper, m *metrics.Metrics) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				operation string
				route     string
				ip        string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				route = operation
				requestID = tr.RequestHeader().Get(RequestIDHeader)

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					route = httpReq.Method + " " + httpReq.URL.Path
					ip = ClientIP(httpReq)
				}
				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, operation, ip)

			reply, err := handler(ctx, req)

			duration := time.Since(startTime)
			status := StatusOf(err)
			m.ObserveRequest(operationName(operation), strconv.Itoa(status), duration)
			logger.RequestWithContext(ctx, route, status, duration, "ip", ip)

			return reply, err
		}
	}
}

// ClientIP extracts the caller address.
// Priority: X-Real-IP > X-Forwarded-For > RemoteAddr
func ClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	addr := req.RemoteAddr
	if i := strings.LastIndexByte(addr, ':'); i > 0 {
		return addr[:i]
	}
	return addr
}

// StatusOf returns the HTTP status a handler error will be encoded as.
func StatusOf(err error) int {
	if err == nil {
		return 200
	}
	return int(errors.FromError(err).Code)
}

// operationName trims the service prefix: "/wayfarer.v1.Travel/GetWeather" -> "GetWeather".
func operationName(op string) string {
	if i := strings.LastIndexByte(op, '/'); i >= 0 {
		return op[i+1:]
	}
	return op
}
