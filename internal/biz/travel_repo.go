package biz

import (
	"context"

	"Wayfarer/internal/data"
)

// WeatherRepo fetches weather-by-city from the weather provider.
// Implementation is in data layer (data.WeatherRepo).
type WeatherRepo interface {
	GetWeather(ctx context.Context, city string) (*data.Weather, error)
}

// PlacesRepo searches points of interest (data.PlacesRepo).
type PlacesRepo interface {
	SearchPlaces(ctx context.Context, q data.PlaceQuery) ([]data.Place, error)
}

// HotelsRepo searches lodging (data.HotelsRepo).
type HotelsRepo interface {
	SearchHotels(ctx context.Context, q data.HotelQuery) ([]data.Hotel, error)
}
