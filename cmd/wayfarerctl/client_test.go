package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/places":
			assert.Equal(t, "ramen", r.URL.Query().Get("query"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"places": []map[string]interface{}{{"name": "Ichiran", "rating": 4.5}},
				"source": "api",
			})
		case "/v1/keys":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "k", body["weather"])
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"code":503,"reason":"CIRCUIT_OPEN","message":"circuit open","metadata":{"service":"weather"}}`))
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", "s3cret", time.Second)
	ctx := context.Background()

	var places placesReply
	require.NoError(t, c.do(ctx, http.MethodGet, "/v1/places", url.Values{"query": {"ramen"}}, nil, &places))
	assert.Equal(t, "api", places.Source)
	require.Len(t, places.Places, 1)
	assert.Equal(t, "Ichiran", places.Places[0].Name)

	reply, err := ack(ctx, c, http.MethodPut, "/v1/keys", map[string]string{"weather": "k"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.(*ackReply).Status)

	err = c.do(ctx, http.MethodGet, "/v1/weather/Tokyo", nil, nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Code)
	assert.Equal(t, "CIRCUIT_OPEN", apiErr.Reason)
	assert.Equal(t, "503 CIRCUIT_OPEN (weather): circuit open", apiErr.Error())
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newClient(srv.URL, "", time.Second).do(context.Background(), http.MethodGet, "/v1/status", nil, nil, nil)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Reason)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"weather", "places", "hotels", "status", "set-keys", "clear-cache", "reset-breaker"})
}
