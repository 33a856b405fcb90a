package data

import (
	"context"
	"strings"

	"Wayfarer/internal/conf"
)

const (
	lodgingType     = "lodging"
	maxHotelResults = 10
	dateLayout      = "2006-01-02"
)

// HotelsRepo searches lodging on top of the places text search, attributed
// to the hotels service id.
type HotelsRepo struct {
	api  *PlacesAPI
	mock bool
}

// NewHotelsRepo creates a HotelsRepo.
func NewHotelsRepo(c *conf.Gateway, api *PlacesAPI) *HotelsRepo {
	return &HotelsRepo{api: api, mock: c.Mode == conf.ModeMock}
}

// SearchHotels returns lodging near q.Location with the stay dates echoed
// back and a nightly price band where the provider reports a price level.
func (r *HotelsRepo) SearchHotels(ctx context.Context, q HotelQuery) ([]Hotel, error) {
	if r.mock {
		return mockHotels(q), nil
	}

	location := strings.TrimSpace(q.Location)
	ll, err := r.api.Geocode(ctx, conf.ServiceHotels, location)
	if err != nil {
		return nil, err
	}

	results, err := r.api.TextSearch(ctx, conf.ServiceHotels, "hotels in "+location, &ll, lodgingType)
	if err != nil {
		return nil, err
	}

	hotels := make([]Hotel, 0, min(len(results), maxHotelResults))
	for i, gp := range results {
		if i == maxHotelResults {
			break
		}
		hotels = append(hotels, toHotel(gp, q))
	}
	return hotels, nil
}

func toHotel(gp googlePlace, q HotelQuery) Hotel {
	return Hotel{
		ID:          gp.PlaceID,
		Name:        gp.Name,
		Address:     gp.FormattedAddress,
		Lat:         gp.Geometry.Location.Lat,
		Lng:         gp.Geometry.Location.Lng,
		Rating:      gp.Rating,
		RatingCount: gp.UserRatingsTotal,
		PriceLevel:  gp.PriceLevel,
		PriceRange:  PriceBand(gp.PriceLevel),
		CheckIn:     q.CheckIn.Format(dateLayout),
		CheckOut:    q.CheckOut.Format(dateLayout),
		Nights:      q.Nights(),
	}
}
