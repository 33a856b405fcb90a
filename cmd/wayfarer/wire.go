//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"Wayfarer/internal/biz"
	"Wayfarer/internal/conf"
	"Wayfarer/internal/data"
	"Wayfarer/internal/metrics"
	"Wayfarer/internal/server"
	"Wayfarer/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/spf13/viper"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.Gateway, *conf.Keys, *conf.Auth, *viper.Viper, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		metrics.New,
		newApp,
	))
}
