package data

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

var mockConditions = []string{"Sunny", "Partly cloudy", "Cloudy", "Light rain", "Clear", "Overcast"}

var mockNames = map[string][]string{
	PlaceAttraction: {"Old Town Square", "City Museum", "Harbour Lookout", "Botanical Garden", "Castle Hill"},
	PlaceRestaurant: {"Corner Bistro", "Noodle House", "The Grill Room", "Market Kitchen", "Blue Door Cafe"},
	PlaceHotel:      {"Central Inn", "Riverside Hotel", "Grand Plaza", "Garden Suites", "Station Lodge"},
	PlaceShopping:   {"Main Street Arcade", "Riverside Mall", "Night Market", "Outlet Village", "Design Quarter"},
}

// seed derives a stable value from the request so mock results are
// identical across calls and processes.
func seed(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(normalizeKeyPart(p)))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func mockWeather(city, units string) *Weather {
	s := seed("weather", city)
	base := float64(s%25) + 5
	w := &Weather{
		City: strings.TrimSpace(city),
		Current: CurrentWeather{
			Temperature: base,
			FeelsLike:   base - 1,
			Humidity:    40 + int(s%50),
			WindSpeed:   float64(s%30) + 2,
			Description: mockConditions[s%uint64(len(mockConditions))],
		},
		Forecast: make([]ForecastDay, 0, ForecastDays),
		Units:    unitsOrDefault(units),
		Updated:  time.Now().UTC(),
	}
	if strings.EqualFold(units, "imperial") {
		w.Current.Temperature = toFahrenheit(w.Current.Temperature)
		w.Current.FeelsLike = toFahrenheit(w.Current.FeelsLike)
	}

	today := time.Now().UTC()
	for i := 0; i < ForecastDays; i++ {
		d := s >> (uint(i) * 4)
		high := base + float64(d%6)
		low := high - 4 - float64(d%4)
		if w.Units == "imperial" {
			high, low = toFahrenheit(high), toFahrenheit(low)
		}
		w.Forecast = append(w.Forecast, ForecastDay{
			Date:         today.AddDate(0, 0, i).Format(dateLayout),
			High:         high,
			Low:          low,
			Description:  mockConditions[d%uint64(len(mockConditions))],
			ChanceOfRain: int(d % 100),
		})
	}
	return w
}

func toFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func mockPlaces(q PlaceQuery) []Place {
	category := q.Type
	if _, ok := mockNames[category]; !ok {
		category = PlaceAttraction
	}
	s := seed("places", q.Query, q.Location, category)
	names := mockNames[category]

	places := make([]Place, 0, len(names))
	for i, name := range names {
		d := s >> (uint(i) * 3)
		places = append(places, Place{
			ID:          fmt.Sprintf("mock-%s-%d", category, i+1),
			Name:        name,
			Address:     mockAddress(q.Location, i),
			Lat:         float64(d%180) - 90 + float64(i)/100,
			Lng:         float64(d%360) - 180 + float64(i)/100,
			Rating:      3.5 + float64(d%15)/10,
			RatingCount: 50 + int(d%950),
			PriceLevel:  1 + int(d%4),
			Category:    category,
			Types:       []string{PlaceTypes[category]},
		})
	}
	return places
}

func mockHotels(q HotelQuery) []Hotel {
	s := seed("hotels", q.Location)
	names := mockNames[PlaceHotel]

	hotels := make([]Hotel, 0, len(names))
	for i, name := range names {
		d := s >> (uint(i) * 3)
		level := 1 + int(d%4)
		hotels = append(hotels, Hotel{
			ID:          fmt.Sprintf("mock-hotel-%d", i+1),
			Name:        name,
			Address:     mockAddress(q.Location, i),
			Lat:         float64(d%180) - 90,
			Lng:         float64(d%360) - 180,
			Rating:      3.5 + float64(d%15)/10,
			RatingCount: 50 + int(d%950),
			PriceLevel:  level,
			PriceRange:  PriceBand(level),
			CheckIn:     q.CheckIn.Format(dateLayout),
			CheckOut:    q.CheckOut.Format(dateLayout),
			Nights:      q.Nights(),
		})
	}
	return hotels
}

func mockAddress(location string, i int) string {
	location = strings.TrimSpace(location)
	if location == "" {
		location = "City Centre"
	}
	return fmt.Sprintf("%d Example Street, %s", 10+i*7, location)
}
