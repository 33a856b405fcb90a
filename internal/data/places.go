package data

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Wayfarer/internal/conf"
	pkgerrors "Wayfarer/pkg/errors"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	geocodeCacheSize = 1024
	geocodeCacheTTL  = 24 * time.Hour
	searchRadius     = 10000 // metres
	maxPlaceResults  = 20
)

// LatLng is a geocoded coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l LatLng) String() string {
	return strconv.FormatFloat(l.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lng, 'f', 6, 64)
}

type googleGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location LatLng `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

type googlePlace struct {
	PlaceID          string  `json:"place_id"`
	Name             string  `json:"name"`
	FormattedAddress string  `json:"formatted_address"`
	Rating           float64 `json:"rating"`
	UserRatingsTotal int     `json:"user_ratings_total"`
	PriceLevel       int     `json:"price_level"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
	Types        []string `json:"types"`
	OpeningHours *struct {
		OpenNow bool `json:"open_now"`
	} `json:"opening_hours"`
}

type googleTextSearchResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []googlePlace `json:"results"`
}

// googleStatusKinds maps the body status of a 200 response to an error kind.
var googleStatusKinds = map[string]pkgerrors.ErrorKind{
	"OVER_QUERY_LIMIT": pkgerrors.KindQuotaExceeded,
	"REQUEST_DENIED":   pkgerrors.KindUnauthorized,
	"INVALID_REQUEST":  pkgerrors.KindInvalidRequest,
	"UNKNOWN_ERROR":    pkgerrors.KindServerError,
}

func googleStatusError(service string, httpStatus int, status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	}
	kind, ok := googleStatusKinds[status]
	if !ok {
		kind = pkgerrors.KindUnknown
	}
	msg := status
	if message != "" {
		msg = status + ": " + message
	}
	return pkgerrors.NewUpstreamError(service, kind, httpStatus, msg, nil)
}

// PlacesAPI is the geocode and text-search client shared by the places
// and hotels repos. Each call is attributed to the caller's service id so
// the two keep independent breakers and limiters.
type PlacesAPI struct {
	gw       *Gateway
	creds    *Credentials
	baseURL  string
	language string
	geocodes *expirable.LRU[string, LatLng]
}

// NewPlacesAPI creates a PlacesAPI.
func NewPlacesAPI(c *conf.Gateway, gw *Gateway, creds *Credentials) *PlacesAPI {
	return &PlacesAPI{
		gw:       gw,
		creds:    creds,
		baseURL:  strings.TrimRight(c.PlacesBaseUrl, "/"),
		language: c.Language,
		geocodes: expirable.NewLRU[string, LatLng](geocodeCacheSize, nil, geocodeCacheTTL),
	}
}

// Geocode resolves address to coordinates, memoizing results.
func (p *PlacesAPI) Geocode(ctx context.Context, service, address string) (LatLng, error) {
	memoKey := service + "|" + normalizeKeyPart(address)
	if ll, ok := p.geocodes.Get(memoKey); ok {
		return ll, nil
	}

	key, err := p.creds.Key(service)
	if err != nil {
		return LatLng{}, err
	}

	q := url.Values{}
	q.Set("address", address)
	if p.language != "" {
		q.Set("language", p.language)
	}
	if key != "" {
		q.Set("key", key)
	}

	var payload googleGeocodeResponse
	_, err = p.gw.Fetch(ctx, &Request{
		Service: service,
		URL:     p.baseURL + "/geocode/json?" + q.Encode(),
		Handle:  googleHandler(service, &payload, func() (string, string) { return payload.Status, payload.ErrorMessage }),
	})
	if err != nil {
		return LatLng{}, err
	}
	if len(payload.Results) == 0 {
		return LatLng{}, pkgerrors.NewUpstreamError(service, pkgerrors.KindInvalidRequest, 0,
			fmt.Sprintf("location %q not found", address), nil)
	}

	ll := payload.Results[0].Geometry.Location
	p.geocodes.Add(memoKey, ll)
	return ll, nil
}

// TextSearch runs a text search, optionally biased around loc.
func (p *PlacesAPI) TextSearch(ctx context.Context, service, query string, loc *LatLng, placeType string) ([]googlePlace, error) {
	key, err := p.creds.Key(service)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("query", query)
	if loc != nil {
		q.Set("location", loc.String())
		q.Set("radius", strconv.Itoa(searchRadius))
	}
	if placeType != "" {
		q.Set("type", placeType)
	}
	if p.language != "" {
		q.Set("language", p.language)
	}
	if key != "" {
		q.Set("key", key)
	}

	var payload googleTextSearchResponse
	_, err = p.gw.Fetch(ctx, &Request{
		Service: service,
		URL:     p.baseURL + "/place/textsearch/json?" + q.Encode(),
		Handle:  googleHandler(service, &payload, func() (string, string) { return payload.Status, payload.ErrorMessage }),
	})
	if err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// googleHandler decodes into dest and checks the body status.
func googleHandler(service string, dest interface{}, status func() (string, string)) ResponseHandler {
	return func(httpStatus int, body []byte, statusErr *pkgerrors.UpstreamError) error {
		if statusErr != nil {
			if json.Unmarshal(body, dest) == nil {
				if s, msg := status(); s != "" && s != "OK" {
					if err := googleStatusError(service, httpStatus, s, msg); err != nil {
						return err
					}
				}
			}
			return statusErr
		}
		if err := json.Unmarshal(body, dest); err != nil {
			return pkgerrors.NewUpstreamError(service, pkgerrors.KindUnknown, httpStatus, "malformed response", err)
		}
		s, msg := status()
		return googleStatusError(service, httpStatus, s, msg)
	}
}

// PlacesRepo searches points of interest.
type PlacesRepo struct {
	api  *PlacesAPI
	mock bool
}

// NewPlacesRepo creates a PlacesRepo.
func NewPlacesRepo(c *conf.Gateway, api *PlacesAPI) *PlacesRepo {
	return &PlacesRepo{api: api, mock: c.Mode == conf.ModeMock}
}

// SearchPlaces geocodes q.Location when set, then runs a text search
// filtered by the category's provider type.
func (r *PlacesRepo) SearchPlaces(ctx context.Context, q PlaceQuery) ([]Place, error) {
	if r.mock {
		return mockPlaces(q), nil
	}

	var loc *LatLng
	if strings.TrimSpace(q.Location) != "" {
		ll, err := r.api.Geocode(ctx, conf.ServicePlaces, q.Location)
		if err != nil {
			return nil, err
		}
		loc = &ll
	}

	results, err := r.api.TextSearch(ctx, conf.ServicePlaces, placesQueryText(q), loc, PlaceTypes[q.Type])
	if err != nil {
		return nil, err
	}

	places := make([]Place, 0, min(len(results), maxPlaceResults))
	for i, gp := range results {
		if i == maxPlaceResults {
			break
		}
		places = append(places, toPlace(gp, q.Type))
	}
	return places, nil
}

// placesQueryText builds the search text. An empty query searches the
// category itself, scoped to the location.
func placesQueryText(q PlaceQuery) string {
	text := strings.TrimSpace(q.Query)
	if text == "" {
		text = "points of interest"
		if t, ok := PlaceTypes[q.Type]; ok {
			text = strings.ReplaceAll(t, "_", " ")
		}
		if loc := strings.TrimSpace(q.Location); loc != "" {
			text += " in " + loc
		}
	}
	return text
}

func toPlace(gp googlePlace, category string) Place {
	p := Place{
		ID:          gp.PlaceID,
		Name:        gp.Name,
		Address:     gp.FormattedAddress,
		Lat:         gp.Geometry.Location.Lat,
		Lng:         gp.Geometry.Location.Lng,
		Rating:      gp.Rating,
		RatingCount: gp.UserRatingsTotal,
		PriceLevel:  gp.PriceLevel,
		Category:    category,
		Types:       gp.Types,
	}
	if p.Category == "" {
		p.Category = categoryOf(gp.Types)
	}
	if gp.OpeningHours != nil {
		open := gp.OpeningHours.OpenNow
		p.OpenNow = &open
	}
	return p
}

// categoryOf picks the first category whose provider type appears in types.
func categoryOf(types []string) string {
	for _, c := range []string{PlaceAttraction, PlaceRestaurant, PlaceHotel, PlaceShopping} {
		for _, t := range types {
			if t == PlaceTypes[c] {
				return c
			}
		}
	}
	return PlaceAttraction
}
