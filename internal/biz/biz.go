// Package biz contains the travel lookup facade.
package biz

import (
	"Wayfarer/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewTravelUsecase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(WeatherRepo), new(*data.WeatherRepo)),
	wire.Bind(new(PlacesRepo), new(*data.PlacesRepo)),
	wire.Bind(new(HotelsRepo), new(*data.HotelsRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
)
