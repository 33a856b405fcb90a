package service

import (
	"context"
	"time"

	"Wayfarer/internal/biz"
	"Wayfarer/internal/data"
	pkgerrors "Wayfarer/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
)

const dateLayout = "2006-01-02"

// TravelService implements the travel HTTP API.
type TravelService struct {
	uc     *biz.TravelUsecase
	logger *log.Helper
}

// NewTravelService creates a new TravelService instance.
func NewTravelService(uc *biz.TravelUsecase, logger log.Logger) *TravelService {
	return &TravelService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// GetWeather returns weather for a city.
func (s *TravelService) GetWeather(ctx context.Context, req *GetWeatherRequest) (*biz.WeatherResult, error) {
	res, err := s.uc.GetWeather(ctx, req.City)
	if err != nil {
		s.logger.Warnw("msg", "GetWeather failed", "city", req.City, "error", err)
		return nil, pkgerrors.ToKratos(err)
	}
	return res, nil
}

// SearchPlaces searches points of interest.
func (s *TravelService) SearchPlaces(ctx context.Context, req *SearchPlacesRequest) (*biz.PlacesResult, error) {
	res, err := s.uc.SearchPlaces(ctx, data.PlaceQuery{Query: req.Query, Location: req.Location, Type: req.Type})
	if err != nil {
		s.logger.Warnw("msg", "SearchPlaces failed", "query", req.Query, "location", req.Location, "error", err)
		return nil, pkgerrors.ToKratos(err)
	}
	return res, nil
}

// SearchHotels searches lodging for a stay.
func (s *TravelService) SearchHotels(ctx context.Context, req *SearchHotelsRequest) (*biz.HotelsResult, error) {
	checkIn, err := parseDate("check_in", req.CheckIn)
	if err != nil {
		return nil, err
	}
	checkOut, err := parseDate("check_out", req.CheckOut)
	if err != nil {
		return nil, err
	}

	res, err := s.uc.SearchHotels(ctx, data.HotelQuery{Location: req.Location, CheckIn: checkIn, CheckOut: checkOut})
	if err != nil {
		s.logger.Warnw("msg", "SearchHotels failed", "location", req.Location, "error", err)
		return nil, pkgerrors.ToKratos(err)
	}
	return res, nil
}

// GetStatus reports provider configuration and health.
func (s *TravelService) GetStatus(ctx context.Context, _ *GetStatusRequest) (*biz.APIStatus, error) {
	res, err := s.uc.GetAPIStatus(ctx)
	if err != nil {
		return nil, pkgerrors.ToKratos(err)
	}
	return res, nil
}

// SetAPIKeys updates provider keys.
func (s *TravelService) SetAPIKeys(ctx context.Context, req *SetAPIKeysRequest) (*Ack, error) {
	if req.Weather == nil && req.Places == nil && req.Hotels == nil {
		return nil, pkgerrors.BadRequest("at least one of weather, places or hotels is required")
	}
	if err := s.uc.SetAPIKeys(ctx, data.KeyUpdate{Weather: req.Weather, Places: req.Places, Hotels: req.Hotels}); err != nil {
		return nil, pkgerrors.ToKratos(err)
	}
	return ackOK, nil
}

// ClearCache drops all cached responses.
func (s *TravelService) ClearCache(ctx context.Context, _ *ClearCacheRequest) (*Ack, error) {
	if err := s.uc.ClearCache(ctx); err != nil {
		s.logger.Errorw("msg", "ClearCache failed", "error", err)
		return nil, pkgerrors.ToKratos(err)
	}
	return ackOK, nil
}

// ResetBreaker closes one provider's circuit.
func (s *TravelService) ResetBreaker(ctx context.Context, req *ResetBreakerRequest) (*Ack, error) {
	if err := s.uc.ResetCircuitBreaker(ctx, req.Service); err != nil {
		return nil, pkgerrors.ToKratos(err)
	}
	return ackOK, nil
}

// ResetAllBreakers closes every circuit.
func (s *TravelService) ResetAllBreakers(ctx context.Context, _ *ResetAllBreakersRequest) (*Ack, error) {
	if err := s.uc.ResetAllCircuitBreakers(ctx); err != nil {
		return nil, pkgerrors.ToKratos(err)
	}
	return ackOK, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, pkgerrors.BadRequest("%s is required", field)
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, pkgerrors.BadRequest("%s must be YYYY-MM-DD, got %q", field, value)
	}
	return t, nil
}
