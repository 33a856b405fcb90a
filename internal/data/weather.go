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
)

// weatherAPIResponse is the forecast.json payload.
type weatherAPIResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC      float64          `json:"temp_c"`
		TempF      float64          `json:"temp_f"`
		FeelsLikeC float64          `json:"feelslike_c"`
		FeelsLikeF float64          `json:"feelslike_f"`
		Humidity   int              `json:"humidity"`
		WindKph    float64          `json:"wind_kph"`
		WindMph    float64          `json:"wind_mph"`
		Condition  weatherCondition `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC          float64          `json:"maxtemp_c"`
				MaxTempF          float64          `json:"maxtemp_f"`
				MinTempC          float64          `json:"mintemp_c"`
				MinTempF          float64          `json:"mintemp_f"`
				DailyChanceOfRain json.Number      `json:"daily_chance_of_rain"`
				Condition         weatherCondition `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type weatherCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type weatherAPIError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// weatherErrorKinds maps provider error codes to error kinds.
var weatherErrorKinds = map[int]pkgerrors.ErrorKind{
	1002: pkgerrors.KindUnauthorized, // key not provided
	2006: pkgerrors.KindUnauthorized, // key invalid
	2008: pkgerrors.KindUnauthorized, // key disabled
	2007: pkgerrors.KindQuotaExceeded,
	1003: pkgerrors.KindInvalidRequest, // q missing
	1005: pkgerrors.KindInvalidRequest, // url invalid
	1006: pkgerrors.KindInvalidRequest, // no matching location
	9999: pkgerrors.KindServerError,
}

// WeatherRepo fetches weather-by-city through the gateway.
type WeatherRepo struct {
	gw      *Gateway
	creds   *Credentials
	baseURL string
	lang    string
	units   string
	mock    bool
}

// NewWeatherRepo creates a WeatherRepo.
func NewWeatherRepo(c *conf.Gateway, gw *Gateway, creds *Credentials) *WeatherRepo {
	return &WeatherRepo{
		gw:      gw,
		creds:   creds,
		baseURL: c.WeatherBaseUrl,
		lang:    c.Language,
		units:   c.Units,
		mock:    c.Mode == conf.ModeMock,
	}
}

// GetWeather returns current conditions and a ForecastDays forecast.
func (r *WeatherRepo) GetWeather(ctx context.Context, city string) (*Weather, error) {
	if r.mock {
		return mockWeather(city, r.units), nil
	}

	key, err := r.creds.Key(conf.ServiceWeather)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if key != "" {
		q.Set("key", key)
	}
	q.Set("q", city)
	q.Set("days", strconv.Itoa(ForecastDays))
	q.Set("aqi", "no")
	q.Set("alerts", "no")
	if r.lang != "" {
		q.Set("lang", r.lang)
	}

	var payload weatherAPIResponse
	_, err = r.gw.Fetch(ctx, &Request{
		Service: conf.ServiceWeather,
		URL:     r.baseURL + "/v1/forecast.json?" + q.Encode(),
		Handle: func(status int, body []byte, statusErr *pkgerrors.UpstreamError) error {
			if statusErr != nil {
				return weatherError(body, statusErr)
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return pkgerrors.NewUpstreamError(conf.ServiceWeather, pkgerrors.KindUnknown, status, "malformed response", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	return r.toWeather(city, &payload), nil
}

// weatherError refines a non-2xx status with the provider error code.
func weatherError(body []byte, statusErr *pkgerrors.UpstreamError) error {
	var e weatherAPIError
	if json.Unmarshal(body, &e) != nil || e.Error == nil {
		return statusErr
	}
	kind, ok := weatherErrorKinds[e.Error.Code]
	if !ok {
		kind = statusErr.Kind
	}
	return pkgerrors.NewUpstreamError(conf.ServiceWeather, kind, statusErr.StatusCode,
		fmt.Sprintf("%s (code %d)", e.Error.Message, e.Error.Code), nil)
}

func (r *WeatherRepo) toWeather(city string, p *weatherAPIResponse) *Weather {
	imperial := strings.EqualFold(r.units, "imperial")
	pick := func(metric, imp float64) float64 {
		if imperial {
			return imp
		}
		return metric
	}

	w := &Weather{
		City:    p.Location.Name,
		Region:  p.Location.Region,
		Country: p.Location.Country,
		Current: CurrentWeather{
			Temperature: pick(p.Current.TempC, p.Current.TempF),
			FeelsLike:   pick(p.Current.FeelsLikeC, p.Current.FeelsLikeF),
			Humidity:    p.Current.Humidity,
			WindSpeed:   pick(p.Current.WindKph, p.Current.WindMph),
			Description: p.Current.Condition.Text,
			Icon:        iconURL(p.Current.Condition.Icon),
		},
		Forecast: make([]ForecastDay, 0, ForecastDays),
		Units:    unitsOrDefault(r.units),
		Updated:  time.Now().UTC(),
	}
	if w.City == "" {
		w.City = city
	}

	for i, fd := range p.Forecast.ForecastDay {
		if i == ForecastDays {
			break
		}
		rain, _ := fd.Day.DailyChanceOfRain.Int64()
		w.Forecast = append(w.Forecast, ForecastDay{
			Date:         fd.Date,
			High:         pick(fd.Day.MaxTempC, fd.Day.MaxTempF),
			Low:          pick(fd.Day.MinTempC, fd.Day.MinTempF),
			Description:  fd.Day.Condition.Text,
			Icon:         iconURL(fd.Day.Condition.Icon),
			ChanceOfRain: int(rain),
		})
	}
	return w
}

// iconURL turns protocol-relative icon paths into https URLs.
func iconURL(icon string) string {
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

func unitsOrDefault(units string) string {
	if units == "" {
		return "metric"
	}
	return strings.ToLower(units)
}
