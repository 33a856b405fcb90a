package data

import "time"

// Weather is the normalized weather-by-city result.
type Weather struct {
	City     string         `json:"city"`
	Region   string         `json:"region,omitempty"`
	Country  string         `json:"country,omitempty"`
	Current  CurrentWeather `json:"current"`
	Forecast []ForecastDay  `json:"forecast"`
	Units    string         `json:"units"`
	Updated  time.Time      `json:"updated"`
}

// CurrentWeather holds current conditions.
type CurrentWeather struct {
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon,omitempty"`
}

// ForecastDay is one day of the multi-day forecast.
type ForecastDay struct {
	Date         string  `json:"date"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Description  string  `json:"description"`
	Icon         string  `json:"icon,omitempty"`
	ChanceOfRain int     `json:"chance_of_rain"`
}

// ForecastDays is the number of forecast days requested and returned.
const ForecastDays = 5

// Place categories accepted by SearchPlaces.
const (
	PlaceAttraction = "attraction"
	PlaceRestaurant = "restaurant"
	PlaceHotel      = "hotel"
	PlaceShopping   = "shopping"
)

// PlaceTypes maps a place category to the provider's type filter.
var PlaceTypes = map[string]string{
	PlaceAttraction: "tourist_attraction",
	PlaceRestaurant: "restaurant",
	PlaceHotel:      "lodging",
	PlaceShopping:   "shopping_mall",
}

// PlaceQuery is a places search request.
type PlaceQuery struct {
	Query    string
	Location string
	Type     string
}

// Place is a normalized point of interest.
type Place struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating,omitempty"`
	RatingCount int      `json:"rating_count,omitempty"`
	PriceLevel  int      `json:"price_level,omitempty"`
	Category    string   `json:"category"`
	Types       []string `json:"types,omitempty"`
	OpenNow     *bool    `json:"open_now,omitempty"`
}

// HotelQuery is a lodging search request.
type HotelQuery struct {
	Location string
	CheckIn  time.Time
	CheckOut time.Time
}

// Nights returns the stay length in whole nights.
func (q HotelQuery) Nights() int {
	return int(q.CheckOut.Sub(q.CheckIn).Hours() / 24)
}

// Hotel is a normalized lodging result.
type Hotel struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Rating      float64 `json:"rating,omitempty"`
	RatingCount int     `json:"rating_count,omitempty"`
	PriceLevel  int     `json:"price_level,omitempty"`
	PriceRange  string  `json:"price_range,omitempty"`
	CheckIn     string  `json:"check_in"`
	CheckOut    string  `json:"check_out"`
	Nights      int     `json:"nights"`
}

// nightlyBands maps a provider price level to an estimated nightly rate.
var nightlyBands = map[int]string{
	1: "$50-$100",
	2: "$100-$200",
	3: "$200-$350",
	4: "$350+",
}

// PriceBand returns the nightly estimate for a price level, or "" when
// the level is unknown.
func PriceBand(level int) string {
	return nightlyBands[level]
}
