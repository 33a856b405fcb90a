package middleware

import (
	"context"
	nethttp "net/http"
	"testing"

	"Wayfarer/internal/metrics"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerCarrier nethttp.Header

func (hc headerCarrier) Get(key string) string { return nethttp.Header(hc).Get(key) }
func (hc headerCarrier) Set(key, value string) { nethttp.Header(hc).Set(key, value) }
func (hc headerCarrier) Add(key, value string) { nethttp.Header(hc).Add(key, value) }
func (hc headerCarrier) Values(key string) []string { return nethttp.Header(hc).Values(key) }
func (hc headerCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range hc {
		keys = append(keys, k)
	}
	return keys
}

type fakeTransport struct {
	operation string
	request   headerCarrier
	reply     headerCarrier
}

func (t *fakeTransport) Kind() transport.Kind { return transport.KindHTTP }
func (t *fakeTransport) Endpoint() string { return "" }
func (t *fakeTransport) Operation() string { return t.operation }
func (t *fakeTransport) RequestHeader() transport.Header { return t.request }
func (t *fakeTransport) ReplyHeader() transport.Header { return t.reply }

func newServerContext(operation string, header map[string]string) (context.Context, *fakeTransport) {
	tr := &fakeTransport{operation: operation, request: headerCarrier{}, reply: headerCarrier{}}
	for k, v := range header {
		tr.request.Set(k, v)
	}
	return transport.NewServerContext(context.Background(), tr), tr
}

func okHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func TestAdminAuth(t *testing.T) {
	mw := AdminAuth("s3cret", pkglog.NewLogHelper(log.DefaultLogger))(okHandler)

	tests := []struct {
		name    string
		header  map[string]string
		wantErr bool
	}{
		{"bearer token", map[string]string{"Authorization": "Bearer s3cret"}, false},
		{"admin header", map[string]string{"X-Admin-Token": "s3cret"}, false},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, true},
		{"missing", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newServerContext("/wayfarer.v1.Travel/SetAPIKeys", tt.header)
			reply, err := mw(ctx, nil)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "ok", reply)
				return
			}
			require.Error(t, err)
			assert.Equal(t, ReasonUnauthorized, errors.Reason(err))
			assert.Equal(t, 401, StatusOf(err))
		})
	}
}

func TestAdminAuth_EmptyTokenDisables(t *testing.T) {
	mw := AdminAuth("", pkglog.NewLogHelper(log.DefaultLogger))(okHandler)
	ctx, _ := newServerContext("/wayfarer.v1.Travel/ClearCache", nil)

	reply, err := mw(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestLogging_RequestID(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = pkglog.GetRequestID(ctx)
		return nil, nil
	}
	mw := Logging(pkglog.NewLogHelper(log.DefaultLogger), metrics.New())(handler)

	ctx, tr := newServerContext("/wayfarer.v1.Travel/GetStatus", map[string]string{RequestIDHeader: "abc123"})
	_, err := mw(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123", seen)
	assert.Equal(t, "abc123", tr.reply.Get(RequestIDHeader))

	ctx, tr = newServerContext("/wayfarer.v1.Travel/GetStatus", nil)
	_, err = mw(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, tr.reply.Get(RequestIDHeader))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 200, StatusOf(nil))
	assert.Equal(t, 503, StatusOf(errors.ServiceUnavailable("X", "down")))
	assert.Equal(t, 500, StatusOf(assert.AnError))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.1", "X-Forwarded-For": "10.0.0.2"}, "127.0.0.1:5000", "10.0.0.1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.2, 10.0.0.3"}, "127.0.0.1:5000", "10.0.0.2"},
		{"remote", nil, "192.168.1.5:5000", "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := nethttp.NewRequest(nethttp.MethodGet, "/v1/status", nil)
			require.NoError(t, err)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestThrottle_Disabled(t *testing.T) {
	mw := Throttle(0, 0, metrics.New(), pkglog.NewLogHelper(log.DefaultLogger))(okHandler)
	for i := 0; i < 100; i++ {
		_, err := mw(context.Background(), nil)
		require.NoError(t, err)
	}
}

func TestThrottle_LimitsPerClient(t *testing.T) {
	mw := Throttle(0.001, 1, metrics.New(), pkglog.NewLogHelper(log.DefaultLogger))(okHandler)

	_, err := mw(context.Background(), nil)
	require.NoError(t, err)
	_, err = mw(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, ReasonThrottled, errors.Reason(err))
	assert.Equal(t, 429, StatusOf(err))
}
