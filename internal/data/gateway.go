package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/metrics"
	"Wayfarer/pkg/circuitbreaker"
	pkgerrors "Wayfarer/pkg/errors"
	pkglog "Wayfarer/pkg/log"
	"Wayfarer/pkg/retry"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	maxResponseBytes = 4 << 20
	userAgent        = "wayfarer-gateway/1.0"
	snippetLen       = 200
)

// ResponseHandler interprets one provider response. For non-2xx statuses
// statusErr carries the status-derived classification and the handler may
// return a more precise error parsed from the body; for 2xx statusErr is
// nil and the handler decodes the body. Any error returned counts as a
// failed attempt.
type ResponseHandler func(status int, body []byte, statusErr *pkgerrors.UpstreamError) error

// Request describes one logical outbound call.
type Request struct {
	Service string
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	// Timeout bounds each attempt. Zero uses the service setting.
	Timeout time.Duration
	Handle  ResponseHandler
}

// Response is the last successful attempt's response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Gateway performs outbound calls through the service's circuit breaker,
// which wraps its retry policy, which wraps a single timed HTTP attempt.
type Gateway struct {
	client         *http.Client
	breakers       *BreakerRegistry
	policies       map[string]*retry.Policy
	timeouts       map[string]time.Duration
	defaultTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *pkglog.LogHelper
}

// NewGateway creates a Gateway with per-service retry and timeout settings.
func NewGateway(c *conf.Gateway, client *http.Client, breakers *BreakerRegistry, m *metrics.Metrics, logger log.Logger) *Gateway {
	return newGateway(c, client, breakers, m, logger)
}

func newGateway(c *conf.Gateway, client *http.Client, breakers *BreakerRegistry, m *metrics.Metrics, logger log.Logger, retryOpts ...retry.Option) *Gateway {
	g := &Gateway{
		client:         client,
		breakers:       breakers,
		policies:       make(map[string]*retry.Policy, len(conf.KnownServices)),
		timeouts:       make(map[string]time.Duration, len(conf.KnownServices)),
		defaultTimeout: 10 * time.Second,
		metrics:        m,
		logger:         pkglog.NewLogHelper(logger),
	}
	if c != nil && c.DefaultTimeout.AsDuration() > 0 {
		g.defaultTimeout = c.DefaultTimeout.AsDuration()
	}

	for _, id := range conf.KnownServices {
		s := c.GetService(id)
		service := id
		opts := append([]retry.Option{
			retry.WithRetryable(pkgerrors.IsRetryable),
			retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
				g.metrics.ObserveRetry(service)
				g.logger.Retry(fmt.Sprintf("%s attempt %d failed, retrying in %s", service, attempt+1, delay.Round(time.Millisecond)),
					"service_id", service, "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err)
			}),
		}, retryOpts...)
		g.policies[id] = retry.New(id, retryConfig(s), opts...)

		g.timeouts[id] = g.defaultTimeout
		if s != nil && s.Timeout.AsDuration() > 0 {
			g.timeouts[id] = s.Timeout.AsDuration()
		}
	}
	return g
}

func retryConfig(s *conf.Gateway_Service) retry.Config {
	cfg := retry.DefaultConfig()
	if s == nil {
		return cfg
	}
	cfg.MaxRetries = int(s.MaxRetries)
	if d := s.BaseDelay.AsDuration(); d > 0 {
		cfg.BaseDelay = d
	}
	if d := s.MaxDelay.AsDuration(); d > 0 {
		cfg.MaxDelay = d
	}
	return cfg
}

// Fetch performs req. Errors are *pkgerrors.UpstreamError (possibly
// wrapped by the retry policy), *circuitbreaker.OpenError, or the caller's
// context error.
func (g *Gateway) Fetch(ctx context.Context, req *Request) (*Response, error) {
	breaker, err := g.breakers.Get(req.Service)
	if err != nil {
		return nil, err
	}
	policy := g.policies[req.Service]

	var resp *Response
	err = breaker.Execute(ctx, func(ctx context.Context) error {
		return policy.Execute(ctx, func(ctx context.Context) error {
			r, err := g.attempt(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		var openErr *circuitbreaker.OpenError
		if errors.As(err, &openErr) {
			g.metrics.ObserveBreakerRejection(req.Service)
			g.logger.Breaker("request rejected by open circuit",
				"service_id", req.Service, "retry_after_ms", openErr.RetryAfter.Milliseconds(),
				"request_id", pkglog.GetRequestID(ctx))
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs a single HTTP exchange bounded by the service timeout.
func (g *Gateway) attempt(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeoutFor(req.Service)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, pkgerrors.NewUpstreamError(req.Service, pkgerrors.KindInvalidRequest, 0, "cannot build request", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	start := time.Now()
	g.logger.Provider(fmt.Sprintf("%s %s", method, pkglog.SanitizeURL(req.URL)),
		"service_id", req.Service, "url", req.URL, "request_id", pkglog.GetRequestID(ctx))

	res, err := g.client.Do(httpReq)
	if err != nil {
		return nil, g.failTransport(ctx, req.Service, start, err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, g.failTransport(ctx, req.Service, start, err)
	}

	var statusErr *pkgerrors.UpstreamError
	if res.StatusCode < 200 || res.StatusCode > 299 {
		statusErr = pkgerrors.NewUpstreamError(req.Service, pkgerrors.ClassifyHTTPStatus(res.StatusCode),
			res.StatusCode, snippet(payload), nil)
	}

	var outcome error = statusErr
	if req.Handle != nil {
		outcome = req.Handle(res.StatusCode, payload, statusErr)
	}
	if outcome == nil && statusErr != nil {
		outcome = statusErr
	}

	if outcome != nil {
		g.metrics.ObserveAttempt(req.Service, pkgerrors.KindOf(outcome).String(), time.Since(start))
		return nil, outcome
	}

	g.metrics.ObserveAttempt(req.Service, "ok", time.Since(start))
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: payload}, nil
}

// failTransport classifies a transport error. A done caller context is
// returned as is so neither the retry policy nor the breaker treat it as a
// provider failure.
func (g *Gateway) failTransport(ctx context.Context, service string, start time.Time, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		g.metrics.ObserveAttempt(service, "cancelled", time.Since(start))
		return ctxErr
	}
	ue := pkgerrors.ClassifyTransportError(service, err)
	g.metrics.ObserveAttempt(service, ue.Kind.String(), time.Since(start))
	return ue
}

func (g *Gateway) timeoutFor(service string) time.Duration {
	if d, ok := g.timeouts[service]; ok {
		return d
	}
	return g.defaultTimeout
}

// Breakers exposes the registry the gateway routes through.
func (g *Gateway) Breakers() *BreakerRegistry {
	return g.breakers
}

// snippet trims body to at most snippetLen bytes without splitting a rune.
func snippet(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) <= snippetLen {
		return s
	}
	cut := snippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
