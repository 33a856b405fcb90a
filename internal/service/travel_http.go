package service

import (
	"context"

	"Wayfarer/internal/biz"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names, used by middleware selectors.
const (
	OperationGetWeather       = "/wayfarer.v1.Travel/GetWeather"
	OperationSearchPlaces     = "/wayfarer.v1.Travel/SearchPlaces"
	OperationSearchHotels     = "/wayfarer.v1.Travel/SearchHotels"
	OperationGetStatus        = "/wayfarer.v1.Travel/GetStatus"
	OperationSetAPIKeys       = "/wayfarer.v1.Travel/SetAPIKeys"
	OperationClearCache       = "/wayfarer.v1.Travel/ClearCache"
	OperationResetBreaker     = "/wayfarer.v1.Travel/ResetBreaker"
	OperationResetAllBreakers = "/wayfarer.v1.Travel/ResetAllBreakers"
)

// AdminOperations mutate gateway state.
var AdminOperations = []string{
	OperationSetAPIKeys,
	OperationClearCache,
	OperationResetBreaker,
	OperationResetAllBreakers,
}

// RegisterTravelHTTPServer mounts the travel API on s.
func RegisterTravelHTTPServer(s *http.Server, srv *TravelService) {
	r := s.Route("/")
	r.GET("/v1/weather/{city}", getWeatherHandler(srv))
	r.GET("/v1/places", searchPlacesHandler(srv))
	r.GET("/v1/hotels", searchHotelsHandler(srv))
	r.GET("/v1/status", getStatusHandler(srv))
	r.PUT("/v1/keys", setAPIKeysHandler(srv))
	r.DELETE("/v1/cache", clearCacheHandler(srv))
	r.POST("/v1/breakers/reset", resetAllBreakersHandler(srv))
	r.POST("/v1/breakers/{service}/reset", resetBreakerHandler(srv))
}

func getWeatherHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetWeatherRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationGetWeather)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetWeather(ctx, req.(*GetWeatherRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.WeatherResult))
	}
}

func searchPlacesHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SearchPlacesRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationSearchPlaces)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SearchPlaces(ctx, req.(*SearchPlacesRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.PlacesResult))
	}
}

func searchHotelsHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SearchHotelsRequest
		if err := ctx.BindQuery(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationSearchHotels)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SearchHotels(ctx, req.(*SearchHotelsRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.HotelsResult))
	}
}

func getStatusHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GetStatusRequest
		http.SetOperation(ctx, OperationGetStatus)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetStatus(ctx, req.(*GetStatusRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*biz.APIStatus))
	}
}

func setAPIKeysHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in SetAPIKeysRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationSetAPIKeys)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.SetAPIKeys(ctx, req.(*SetAPIKeysRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Ack))
	}
}

func clearCacheHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ClearCacheRequest
		http.SetOperation(ctx, OperationClearCache)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ClearCache(ctx, req.(*ClearCacheRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Ack))
	}
}

func resetBreakerHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ResetBreakerRequest
		if err := ctx.BindVars(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationResetBreaker)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetBreaker(ctx, req.(*ResetBreakerRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Ack))
	}
}

func resetAllBreakersHandler(srv *TravelService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in ResetAllBreakersRequest
		http.SetOperation(ctx, OperationResetAllBreakers)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetAllBreakers(ctx, req.(*ResetAllBreakersRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Ack))
	}
}
