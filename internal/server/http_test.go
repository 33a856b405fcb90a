package server

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Wayfarer/internal/biz"
	"Wayfarer/internal/conf"
	"Wayfarer/internal/data"
	"Wayfarer/internal/metrics"
	"Wayfarer/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type serverFixture struct {
	url      string
	breakers *data.BreakerRegistry
	metrics  *metrics.Metrics
}

func newServerFixture(t *testing.T, mode string, keys *conf.Keys, sc *conf.Server, auth *conf.Auth) *serverFixture {
	t.Helper()
	logger := log.DefaultLogger
	m := metrics.New()
	gc := &conf.Gateway{
		Mode:           mode,
		WeatherBaseUrl: "http://127.0.0.1:1",
		PlacesBaseUrl:  "http://127.0.0.1:1",
		DefaultTimeout: durationpb.New(time.Second),
	}

	breakers := data.NewBreakerRegistry(gc, m, logger)
	d, cleanup, err := data.NewData(gc, logger, nil, data.NewCacheClient(nil, m, logger),
		breakers, data.NewLimiterRegistry(gc, m, logger), data.NewCredentials(keys, gc))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	client, err := data.NewHTTPClient(gc)
	require.NoError(t, err)
	gw := data.NewGateway(gc, client, breakers, m, logger)
	api := data.NewPlacesAPI(gc, gw, d.Credentials())
	audit, closeAudit := data.NewAuditLogger(nil, breakers, logger)
	t.Cleanup(closeAudit)
	uc := biz.NewTravelUsecase(gc, d, data.NewWeatherRepo(gc, gw, d.Credentials()),
		data.NewPlacesRepo(gc, api), data.NewHotelsRepo(gc, api), audit, logger)

	if sc == nil {
		sc = &conf.Server{Http: &conf.Server_HTTP{}}
	}
	hs := NewHTTPServer(sc, auth, service.NewTravelService(uc, logger), m, logger)
	ts := httptest.NewServer(hs)
	t.Cleanup(ts.Close)

	return &serverFixture{url: ts.URL, breakers: breakers, metrics: m}
}

func do(t *testing.T, method, url, body string, header map[string]string) (*nethttp.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := nethttp.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHTTP_GetWeatherMock(t *testing.T) {
	f := newServerFixture(t, conf.ModeMock, nil, nil, nil)

	resp, body := do(t, nethttp.MethodGet, f.url+"/v1/weather/Tokyo", "", map[string]string{"X-Request-ID": "req-123"})
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "mock", body["source"])
	weather := body["weather"].(map[string]interface{})
	assert.Equal(t, "Tokyo", weather["city"])
}

func TestHTTP_SearchEndpointsMock(t *testing.T) {
	f := newServerFixture(t, conf.ModeMock, nil, nil, nil)

	resp, body := do(t, nethttp.MethodGet, f.url+"/v1/places?query=ramen&location=Tokyo&type=restaurant", "", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["places"])

	resp, body = do(t, nethttp.MethodGet, f.url+"/v1/hotels?location=Tokyo&check_in=2024-10-01&check_out=2024-10-03", "", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	hotels := body["hotels"].([]interface{})
	require.NotEmpty(t, hotels)
	assert.EqualValues(t, 2, hotels[0].(map[string]interface{})["nights"])

	resp, body = do(t, nethttp.MethodGet, f.url+"/v1/hotels?location=Tokyo&check_in=2024-10-03&check_out=2024-10-01", "", nil)
	assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", body["reason"])
}

func TestHTTP_NotConfigured(t *testing.T) {
	f := newServerFixture(t, conf.ModeDirect, &conf.Keys{}, nil, nil)

	resp, body := do(t, nethttp.MethodGet, f.url+"/v1/weather/Tokyo", "", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "PROVIDER_NOT_CONFIGURED", body["reason"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHTTP_StatusAndAdminAuth(t *testing.T) {
	f := newServerFixture(t, conf.ModeDirect, &conf.Keys{}, nil, &conf.Auth{AdminToken: "s3cret"})

	resp, body := do(t, nethttp.MethodGet, f.url+"/v1/status", "", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "direct", body["mode"])
	assert.Len(t, body["providers"], 3)

	resp, body = do(t, nethttp.MethodPut, f.url+"/v1/keys", `{"weather":"new-key"}`, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "ADMIN_UNAUTHORIZED", body["reason"])

	auth := map[string]string{"Authorization": "Bearer s3cret"}
	resp, body = do(t, nethttp.MethodPut, f.url+"/v1/keys", `{"weather":"new-key"}`, auth)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, nethttp.MethodDelete, f.url+"/v1/cache", "", auth)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	b, _ := f.breakers.Get(conf.ServiceWeather)
	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return assert.AnError })
	}
	resp, _ = do(t, nethttp.MethodPost, f.url+"/v1/breakers/weather/reset", "", auth)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "closed", b.State().String())

	resp, _ = do(t, nethttp.MethodPost, f.url+"/v1/breakers/reset", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	resp, _ = do(t, nethttp.MethodPost, f.url+"/v1/breakers/reset", "", auth)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
}

func TestHTTP_Throttle(t *testing.T) {
	sc := &conf.Server{Http: &conf.Server_HTTP{RateLimit: &conf.Server_HTTP_RateLimit{Rps: 0.001, Burst: 2}}}
	f := newServerFixture(t, conf.ModeMock, nil, sc, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := do(t, nethttp.MethodGet, f.url+"/v1/status", "", nil)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestHTTP_Metrics(t *testing.T) {
	f := newServerFixture(t, conf.ModeMock, nil, nil, nil)

	do(t, nethttp.MethodGet, f.url+"/v1/weather/Tokyo", "", nil)

	resp, err := nethttp.Get(f.url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `wayfarer_requests_total{operation="GetWeather",status="200"} 1`)
}
