// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment
// variables, and watching the file for API key changes.
package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// EnvPrefix is prepended to every environment override, e.g.
// WAYFARER_GATEWAY_MODE or WAYFARER_GATEWAY_SERVICES_WEATHER_MAX_RETRIES.
const EnvPrefix = "WAYFARER"

// KnownServices lists the service ids the gateway configures.
var KnownServices = []string{ServiceWeather, ServicePlaces, ServiceHotels}

type serviceDefaults struct {
	threshold       int
	monitoring      time.Duration
	reset           time.Duration
	retries         int
	baseDelay       time.Duration
	maxDelay        time.Duration
	tokens          float64
	refillPerSecond float64
	timeout         time.Duration
	cacheTTL        time.Duration
}

var defaultServices = map[string]serviceDefaults{
	ServiceWeather: {5, time.Minute, 30 * time.Second, 3, time.Second, 10 * time.Second, 60, 1, 10 * time.Second, 30 * time.Minute},
	ServicePlaces:  {5, time.Minute, time.Minute, 3, time.Second, 10 * time.Second, 10, 10, 10 * time.Second, time.Hour},
	ServiceHotels:  {3, time.Minute, time.Minute, 2, time.Second, 10 * time.Second, 10, 5, 10 * time.Second, time.Hour},
}

// NewBootstrap loads configuration from configPath (optional), applies
// defaults and environment overrides, and validates the result.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Convenience environment variables without the prefix:
//   - WEATHER_API_KEY, PLACES_API_KEY, HOTELS_API_KEY: provider keys
//   - REDIS_ADDR: shared cache address
//   - DATABASE_DSN: MySQL DSN for the audit log
//   - ADMIN_TOKEN: bearer token for mutating endpoints
func NewBootstrap(configPath string) (*Bootstrap, error) {
	_, bc, err := Load(configPath)
	return bc, err
}

// Load is NewBootstrap that also returns the underlying viper instance so
// callers can watch it.
func Load(configPath string) (*viper.Viper, *Bootstrap, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := parse(v)
	if err := Validate(bc); err != nil {
		return nil, nil, err
	}
	return v, bc, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("keys.weather", "WEATHER_API_KEY", EnvPrefix+"_KEYS_WEATHER")
	_ = v.BindEnv("keys.places", "PLACES_API_KEY", EnvPrefix+"_KEYS_PLACES")
	_ = v.BindEnv("keys.hotels", "HOTELS_API_KEY", EnvPrefix+"_KEYS_HOTELS")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", EnvPrefix+"_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.database.source", "DATABASE_DSN", EnvPrefix+"_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("auth.admin_token", "ADMIN_TOKEN", EnvPrefix+"_AUTH_ADMIN_TOKEN")
	return v
}

func parse(v *viper.Viper) *Bootstrap {
	services := make(map[string]*Gateway_Service, len(KnownServices))
	for _, id := range KnownServices {
		services[id] = parseService(v, "gateway.services."+id)
	}

	return &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
				RateLimit: &Server_HTTP_RateLimit{
					Rps:   v.GetFloat64("server.http.rate_limit.rps"),
					Burst: v.GetInt32("server.http.rate_limit.burst"),
				},
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				Db:           v.GetInt32("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
			TimeZone:   v.GetString("log.time_zone"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			MaxBackups: v.GetInt("log.max_backups"),
			Compress:   v.GetBool("log.compress"),
		},
		Gateway: &Gateway{
			Mode:               strings.ToLower(v.GetString("gateway.mode")),
			ProxyUrl:           v.GetString("gateway.proxy_url"),
			WeatherBaseUrl:     strings.TrimRight(v.GetString("gateway.weather_base_url"), "/"),
			PlacesBaseUrl:      strings.TrimRight(v.GetString("gateway.places_base_url"), "/"),
			Language:           v.GetString("gateway.language"),
			Units:              v.GetString("gateway.units"),
			DefaultTimeout:     durationpb.New(v.GetDuration("gateway.default_timeout")),
			CoalesceRequests:   v.GetBool("gateway.coalesce_requests"),
			CacheSweepInterval: durationpb.New(v.GetDuration("gateway.cache_sweep_interval")),
			Services:           services,
		},
		Keys: ParseKeys(v),
		Auth: &Auth{
			AdminToken: v.GetString("auth.admin_token"),
		},
	}
}

func parseService(v *viper.Viper, prefix string) *Gateway_Service {
	return &Gateway_Service{
		FailureThreshold: v.GetInt32(prefix + ".failure_threshold"),
		MonitoringPeriod: durationpb.New(v.GetDuration(prefix + ".monitoring_period")),
		ResetTimeout:     durationpb.New(v.GetDuration(prefix + ".reset_timeout")),
		MaxRetries:       v.GetInt32(prefix + ".max_retries"),
		BaseDelay:        durationpb.New(v.GetDuration(prefix + ".base_delay")),
		MaxDelay:         durationpb.New(v.GetDuration(prefix + ".max_delay")),
		MaxTokens:        v.GetFloat64(prefix + ".max_tokens"),
		RefillPerSecond:  v.GetFloat64(prefix + ".refill_per_second"),
		Timeout:          durationpb.New(v.GetDuration(prefix + ".timeout")),
		CacheTtl:         durationpb.New(v.GetDuration(prefix + ".cache_ttl")),
	}
}

// ParseKeys reads the provider API keys from v.
func ParseKeys(v *viper.Viper) *Keys {
	return &Keys{
		Weather: strings.TrimSpace(v.GetString("keys.weather")),
		Places:  strings.TrimSpace(v.GetString("keys.places")),
		Hotels:  strings.TrimSpace(v.GetString("keys.hotels")),
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 30*time.Second)
	v.SetDefault("server.http.rate_limit.rps", 20.0)
	v.SetDefault("server.http.rate_limit.burst", 40)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 5*time.Second)

	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.database.source", "")

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("gateway.mode", ModeDirect)
	v.SetDefault("gateway.weather_base_url", "https://api.weatherapi.com")
	v.SetDefault("gateway.places_base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("gateway.language", "en")
	v.SetDefault("gateway.units", "metric")
	v.SetDefault("gateway.default_timeout", 10*time.Second)
	v.SetDefault("gateway.coalesce_requests", false)
	v.SetDefault("gateway.cache_sweep_interval", 10*time.Minute)

	for id, d := range defaultServices {
		prefix := "gateway.services." + id
		v.SetDefault(prefix+".failure_threshold", d.threshold)
		v.SetDefault(prefix+".monitoring_period", d.monitoring)
		v.SetDefault(prefix+".reset_timeout", d.reset)
		v.SetDefault(prefix+".max_retries", d.retries)
		v.SetDefault(prefix+".base_delay", d.baseDelay)
		v.SetDefault(prefix+".max_delay", d.maxDelay)
		v.SetDefault(prefix+".max_tokens", d.tokens)
		v.SetDefault(prefix+".refill_per_second", d.refillPerSecond)
		v.SetDefault(prefix+".timeout", d.timeout)
		v.SetDefault(prefix+".cache_ttl", d.cacheTTL)
	}
}

// Validate checks the configuration and returns an error listing every
// invalid field.
func Validate(bc *Bootstrap) error {
	if bc == nil {
		return fmt.Errorf("configuration is nil")
	}

	var invalid []string

	if bc.Gateway == nil {
		invalid = append(invalid, "gateway (missing)")
	} else {
		switch bc.Gateway.Mode {
		case ModeDirect, ModeProxy, ModeMock:
		default:
			invalid = append(invalid, fmt.Sprintf("gateway.mode %q (want direct, proxy or mock)", bc.Gateway.Mode))
		}

		if bc.Gateway.Mode != ModeMock {
			invalid = append(invalid, checkURL("gateway.weather_base_url", bc.Gateway.WeatherBaseUrl)...)
			invalid = append(invalid, checkURL("gateway.places_base_url", bc.Gateway.PlacesBaseUrl)...)
		}
		if bc.Gateway.ProxyUrl != "" {
			invalid = append(invalid, checkURL("gateway.proxy_url", bc.Gateway.ProxyUrl)...)
		}

		for _, id := range KnownServices {
			invalid = append(invalid, checkService(id, bc.Gateway.GetService(id))...)
		}
	}

	if bc.Data != nil && bc.Data.Database != nil && bc.Data.Database.Source != "" && bc.Data.Database.Driver != "mysql" {
		invalid = append(invalid, fmt.Sprintf("data.database.driver %q (only mysql is supported)", bc.Data.Database.Driver))
	}

	if bc.Server != nil && bc.Server.Http != nil && bc.Server.Http.RateLimit != nil {
		rl := bc.Server.Http.RateLimit
		if rl.Rps > 0 && rl.Burst < 1 {
			invalid = append(invalid, "server.http.rate_limit.burst (must be >= 1 when rps > 0)")
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration fields: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func checkURL(field, raw string) []string {
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return []string{fmt.Sprintf("%s %q (must be an absolute URL)", field, raw)}
	}
	return nil
}

func checkService(id string, s *Gateway_Service) []string {
	prefix := "gateway.services." + id
	if s == nil {
		return []string{prefix + " (missing)"}
	}

	var invalid []string
	if s.FailureThreshold < 1 {
		invalid = append(invalid, prefix+".failure_threshold (must be >= 1)")
	}
	if s.MaxRetries < 0 {
		invalid = append(invalid, prefix+".max_retries (must be >= 0)")
	}
	if s.MaxTokens < 1 {
		invalid = append(invalid, prefix+".max_tokens (must be >= 1)")
	}
	if s.RefillPerSecond <= 0 {
		invalid = append(invalid, prefix+".refill_per_second (must be > 0)")
	}
	if s.Timeout.AsDuration() <= 0 {
		invalid = append(invalid, prefix+".timeout (must be > 0)")
	}
	if s.BaseDelay.AsDuration() > s.MaxDelay.AsDuration() {
		invalid = append(invalid, prefix+".base_delay (must not exceed max_delay)")
	}
	return invalid
}

// WatchKeys re-reads the config file on change and passes the new key set
// to onChange. It is a no-op when v was not loaded from a file.
func WatchKeys(v *viper.Viper, onChange func(*Keys)) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		onChange(ParseKeys(v))
	})
	v.WatchConfig()
}
