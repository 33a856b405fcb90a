package server

import (
	"Wayfarer/internal/conf"
	"Wayfarer/internal/metrics"
	"Wayfarer/internal/server/middleware"
	"Wayfarer/internal/service"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, auth *conf.Auth, travel *service.TravelService, m *metrics.Metrics, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var (
		rps   float64
		burst int
		token string
	)
	if c.Http.RateLimit != nil {
		rps, burst = c.Http.RateLimit.Rps, int(c.Http.RateLimit.Burst)
	}
	if auth != nil {
		token = auth.AdminToken
	}
	if token == "" {
		logHelper.Security("admin token not set, mutating endpoints are open")
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper, m),
			middleware.Throttle(rps, burst, m, logHelper),
			selector.Server(middleware.AdminAuth(token, logHelper)).
				Path(service.AdminOperations...).
				Build(),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	service.RegisterTravelHTTPServer(srv, travel)
	srv.Handle("/metrics", m.Handler())

	return srv
}
