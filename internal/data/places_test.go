package data

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"Wayfarer/internal/conf"
	pkgerrors "Wayfarer/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pragueGeocode = `{"status":"OK","results":[{"formatted_address":"Prague, Czechia","geometry":{"location":{"lat":50.0755,"lng":14.4378}}}]}`

const pragueAttractions = `{"status":"OK","results":[
  {"place_id":"p1","name":"Prague Castle","formatted_address":"Hradcany, Prague","rating":4.7,"user_ratings_total":120000,
   "geometry":{"location":{"lat":50.09,"lng":14.40}},"types":["tourist_attraction","point_of_interest"],"opening_hours":{"open_now":true}},
  {"place_id":"p2","name":"Charles Bridge","formatted_address":"Karluv most, Prague","rating":4.8,"user_ratings_total":90000,
   "geometry":{"location":{"lat":50.086,"lng":14.411}},"types":["tourist_attraction"]}
]}`

type placesFixture struct {
	repo    *PlacesRepo
	geocode int32
	search  int32
}

func newPlacesFixture(t *testing.T, keys *conf.Keys, geocodeBody, searchBody string, check func(*http.Request)) *placesFixture {
	t.Helper()
	f := &placesFixture{}
	var hits int32
	srv := countingServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		switch r.URL.Path {
		case "/geocode/json":
			atomic.AddInt32(&f.geocode, 1)
			_, _ = w.Write([]byte(geocodeBody))
		case "/place/textsearch/json":
			atomic.AddInt32(&f.search, 1)
			_, _ = w.Write([]byte(searchBody))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := testGatewayConf(srv.URL, 2)
	gf := newTestGateway(t, c)
	f.repo = NewPlacesRepo(c, NewPlacesAPI(c, gf.gw, NewCredentials(keys, c)))
	return f
}

func TestPlacesRepo_SearchPlaces(t *testing.T) {
	f := newPlacesFixture(t, &conf.Keys{Places: "places-key"}, pragueGeocode, pragueAttractions, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "places-key", q.Get("key"))
		if r.URL.Path == "/place/textsearch/json" {
			assert.Equal(t, "castles", q.Get("query"))
			assert.Equal(t, "50.075500,14.437800", q.Get("location"))
			assert.Equal(t, "10000", q.Get("radius"))
			assert.Equal(t, "tourist_attraction", q.Get("type"))
			assert.Equal(t, "en", q.Get("language"))
		}
	})

	places, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "castles", Location: "Prague", Type: PlaceAttraction})
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "p1", places[0].ID)
	assert.Equal(t, "Prague Castle", places[0].Name)
	assert.Equal(t, PlaceAttraction, places[0].Category)
	assert.Equal(t, 120000, places[0].RatingCount)
	require.NotNil(t, places[0].OpenNow)
	assert.True(t, *places[0].OpenNow)
	assert.Nil(t, places[1].OpenNow)

	// Geocode results are memoized per location.
	_, err = f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "castles", Location: " prague", Type: PlaceAttraction})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.geocode))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.search))
}

func TestPlacesRepo_NoLocationSkipsGeocode(t *testing.T) {
	f := newPlacesFixture(t, &conf.Keys{Places: "k"}, pragueGeocode, pragueAttractions, func(r *http.Request) {
		if r.URL.Path == "/place/textsearch/json" {
			assert.False(t, r.URL.Query().Has("location"))
			assert.False(t, r.URL.Query().Has("type"))
		}
	})

	places, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "ramen"})
	require.NoError(t, err)
	assert.Len(t, places, 2)
	assert.Equal(t, PlaceAttraction, places[0].Category)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.geocode))
}

func TestPlacesRepo_ZeroResults(t *testing.T) {
	f := newPlacesFixture(t, &conf.Keys{Places: "k"}, pragueGeocode, `{"status":"ZERO_RESULTS","results":[]}`, nil)

	places, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "igloo", Location: "Prague"})
	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestPlacesRepo_LocationNotFound(t *testing.T) {
	f := newPlacesFixture(t, &conf.Keys{Places: "k"}, `{"status":"ZERO_RESULTS","results":[]}`, pragueAttractions, nil)

	_, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "museum", Location: "Nowhereville"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.KindInvalidRequest, pkgerrors.KindOf(err))
	assert.Contains(t, err.Error(), "Nowhereville")
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.search))
}

func TestPlacesRepo_BodyStatusErrors(t *testing.T) {
	tests := []struct {
		status string
		kind   pkgerrors.ErrorKind
		calls  int32
	}{
		{"OVER_QUERY_LIMIT", pkgerrors.KindQuotaExceeded, 1},
		{"REQUEST_DENIED", pkgerrors.KindUnauthorized, 1},
		{"INVALID_REQUEST", pkgerrors.KindInvalidRequest, 1},
		{"UNKNOWN_ERROR", pkgerrors.KindServerError, 3},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			body := `{"status":"` + tt.status + `","error_message":"nope"}`
			f := newPlacesFixture(t, &conf.Keys{Places: "k"}, pragueGeocode, body, nil)

			_, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "museum"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, pkgerrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.status)
			assert.Equal(t, tt.calls, atomic.LoadInt32(&f.search))
		})
	}
}

func TestPlacesRepo_NotConfigured(t *testing.T) {
	f := newPlacesFixture(t, &conf.Keys{Weather: "w"}, pragueGeocode, pragueAttractions, nil)

	_, err := f.repo.SearchPlaces(context.Background(), PlaceQuery{Query: "museum", Location: "Prague"})
	assert.True(t, pkgerrors.IsNotConfigured(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.geocode))
}

func TestPlacesQueryText(t *testing.T) {
	assert.Equal(t, "ramen", placesQueryText(PlaceQuery{Query: " ramen ", Location: "Tokyo"}))
	assert.Equal(t, "shopping mall in Tokyo", placesQueryText(PlaceQuery{Location: "Tokyo", Type: PlaceShopping}))
	assert.Equal(t, "points of interest", placesQueryText(PlaceQuery{}))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, PlaceRestaurant, categoryOf([]string{"food", "restaurant"}))
	assert.Equal(t, PlaceHotel, categoryOf([]string{"lodging"}))
	assert.Equal(t, PlaceAttraction, categoryOf(nil))
}
