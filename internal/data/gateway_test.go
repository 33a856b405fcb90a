package data

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/metrics"
	"Wayfarer/pkg/circuitbreaker"
	pkgerrors "Wayfarer/pkg/errors"
	"Wayfarer/pkg/retry"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func testService(maxRetries int32) *conf.Gateway_Service {
	return &conf.Gateway_Service{
		FailureThreshold: 5,
		MonitoringPeriod: durationpb.New(time.Minute),
		ResetTimeout:     durationpb.New(30 * time.Second),
		MaxRetries:       maxRetries,
		BaseDelay:        durationpb.New(time.Millisecond),
		MaxDelay:         durationpb.New(5 * time.Millisecond),
		MaxTokens:        100,
		RefillPerSecond:  100,
		Timeout:          durationpb.New(2 * time.Second),
		CacheTtl:         durationpb.New(time.Minute),
	}
}

func testGatewayConf(baseURL string, maxRetries int32) *conf.Gateway {
	return &conf.Gateway{
		Mode:           conf.ModeDirect,
		WeatherBaseUrl: baseURL,
		PlacesBaseUrl:  baseURL,
		Language:       "en",
		Units:          "metric",
		DefaultTimeout: durationpb.New(2 * time.Second),
		Services: map[string]*conf.Gateway_Service{
			conf.ServiceWeather: testService(maxRetries),
			conf.ServicePlaces:  testService(maxRetries),
			conf.ServiceHotels:  testService(maxRetries),
		},
	}
}

type gatewayFixture struct {
	gw       *Gateway
	breakers *BreakerRegistry
	clock    *testClock
}

// newTestGateway builds a gateway whose retry waits return immediately and
// whose breakers run on a manual clock.
func newTestGateway(t *testing.T, c *conf.Gateway) *gatewayFixture {
	t.Helper()
	m := metrics.New()
	clock := newTestClock()
	breakers := newBreakerRegistry(c, m, log.DefaultLogger, circuitbreaker.WithClock(clock.Now))
	noWait := retry.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	gw := newGateway(c, &http.Client{}, breakers, m, log.DefaultLogger, noWait)
	return &gatewayFixture{gw: gw, breakers: breakers, clock: clock}
}

func countingServer(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateway_Fetch_Success(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	resp, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL + "/ping"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGateway_Fetch_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&hits) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	snap, err := f.breakers.Snapshot(conf.ServiceWeather)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.FailureCount)
}

func TestGateway_Fetch_ExhaustedRetriesCountOnce(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 2))

	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindServerError, pkgerrors.KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	snap, _ := f.breakers.Snapshot(conf.ServiceWeather)
	assert.Equal(t, 1, snap.FailureCount)
}

func TestGateway_Fetch_UnauthorizedNotRetried(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGateway_Fetch_QuotaNotRetriedButCounted(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServicePlaces, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsQuotaError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	snap, _ := f.breakers.Snapshot(conf.ServicePlaces)
	assert.Equal(t, 1, snap.FailureCount)
}

func TestGateway_Fetch_AttemptTimeout(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	c := testGatewayConf(srv.URL, 1)
	c.Services[conf.ServiceWeather].Timeout = durationpb.New(50 * time.Millisecond)
	f := newTestGateway(t, c)

	start := time.Now()
	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindTimeout, pkgerrors.KindOf(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestGateway_Fetch_CallerCancelNotCounted(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.gw.Fetch(ctx, &Request{Service: conf.ServiceWeather, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	snap, _ := f.breakers.Snapshot(conf.ServiceWeather)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, circuitbreaker.StateClosed, snap.State)
}

func TestGateway_Fetch_OpenCircuitSkipsHTTP(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 0))

	for i := 0; i < 5; i++ {
		_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServicePlaces, URL: srv.URL})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.KindServerError, pkgerrors.KindOf(err))
	}
	snap, _ := f.breakers.Snapshot(conf.ServicePlaces)
	assert.Equal(t, circuitbreaker.StateOpen, snap.State)

	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServicePlaces, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCircuitOpen(err))
	var openErr *circuitbreaker.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 30*time.Second, openErr.RetryAfter)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))

	// Other services keep their own breaker.
	_, err = f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceWeather, URL: srv.URL})
	assert.False(t, pkgerrors.IsCircuitOpen(err))
	assert.Equal(t, int32(6), atomic.LoadInt32(&hits))

	// After the reset timeout the trial request goes through and closes the circuit.
	f.clock.Advance(30 * time.Second)
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer okSrv.Close()
	_, err = f.gw.Fetch(context.Background(), &Request{Service: conf.ServicePlaces, URL: okSrv.URL})
	require.NoError(t, err)
	snap, _ = f.breakers.Snapshot(conf.ServicePlaces)
	assert.Equal(t, circuitbreaker.StateClosed, snap.State)
}

func TestGateway_Fetch_HandlerRefinesOutcome(t *testing.T) {
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED"}`))
	})
	f := newTestGateway(t, testGatewayConf(srv.URL, 3))

	_, err := f.gw.Fetch(context.Background(), &Request{
		Service: conf.ServicePlaces,
		URL:     srv.URL,
		Handle: func(status int, body []byte, statusErr *pkgerrors.UpstreamError) error {
			assert.Nil(t, statusErr)
			return pkgerrors.NewUpstreamError(conf.ServicePlaces, pkgerrors.KindUnauthorized, status, "denied", nil)
		},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsUnauthorized(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGateway_Fetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newTestGateway(t, testGatewayConf(url, 1))
	_, err := f.gw.Fetch(context.Background(), &Request{Service: conf.ServiceHotels, URL: url})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindNetwork, pkgerrors.KindOf(err))
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestGateway_Fetch_UnknownService(t *testing.T) {
	f := newTestGateway(t, testGatewayConf("http://127.0.0.1", 0))
	_, err := f.gw.Fetch(context.Background(), &Request{Service: "flights", URL: "http://127.0.0.1"})
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet([]byte("  short \n")))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, snippet(long), 203)

	// 3-byte runes: byte 200 falls inside the 67th rune.
	wide := []byte(strings.Repeat("東", 100))
	got := snippet(wide)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("東", 66)+"...", got)
}
