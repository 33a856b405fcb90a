// Package service adapts the travel facade to the HTTP API.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewTravelService)
