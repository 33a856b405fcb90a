// Package middleware provides HTTP middleware for admin authentication,
// throttling and request logging.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// ReasonUnauthorized is returned for missing or wrong admin tokens.
const ReasonUnauthorized = "ADMIN_UNAUTHORIZED"

// AdminAuth requires "Authorization: Bearer <token>". An empty token
// disables the check.
func AdminAuth(token string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if token == "" {
				return handler(ctx, req)
			}

			var presented string
			if tr, ok := transport.FromServerContext(ctx); ok {
				presented = strings.TrimSpace(strings.TrimPrefix(tr.RequestHeader().Get("Authorization"), "Bearer "))
				if presented == "" {
					presented = tr.RequestHeader().Get("X-Admin-Token")
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Security("rejected admin request",
					"token_present", presented != "",
					"request_id", pkglog.GetRequestID(ctx))
				return nil, errors.Unauthorized(ReasonUnauthorized, "a valid admin bearer token is required")
			}
			return handler(ctx, req)
		}
	}
}
