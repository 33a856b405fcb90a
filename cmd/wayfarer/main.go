// Package main is the entry point of the Wayfarer gateway.
// It initializes the Kratos application with the HTTP API and the gRPC
// health server.
package main

import (
	"context"
	"flag"
	"os"

	"Wayfarer/internal/biz"
	"Wayfarer/internal/conf"
	"Wayfarer/internal/data"
	"Wayfarer/internal/server"
	zapLogger "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "wayfarer"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, gc *conf.Gateway, v *viper.Viper, hs *http.Server, gs *server.HealthServer,
	uc *biz.TravelUsecase, creds *data.Credentials) *kratos.App {
	var sweeper *cron.Cron
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{"mode": gc.Mode}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			gs,
		),
		kratos.BeforeStart(func(context.Context) error {
			conf.WatchKeys(v, creds.Reload)
			sweeper = StartCacheSweepCron(uc, gc.CacheSweepInterval.AsDuration(), logger)
			return nil
		}),
		kratos.AfterStop(func(context.Context) error {
			if sweeper != nil {
				<-sweeper.Stop().Done()
			}
			return nil
		}),
	)
}

func main() {
	flag.Parse()

	// Load configuration using Viper with environment variable and CLI flag support
	v, bc, err := conf.Load(flagconf)
	if err != nil {
		// Use fallback logger before Zap is initialized
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	logger := zapLogger.NewKratosAdapter(zapLog)
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	zapLogger.NewLogHelper(logger).Startup("Wayfarer gateway starting",
		"mode", bc.Gateway.Mode,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
		"log.env", bc.Log.Env,
		"redis", bc.Data.Redis != nil && bc.Data.Redis.Addr != "",
	)

	app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Gateway, bc.Keys, bc.Auth, v, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
