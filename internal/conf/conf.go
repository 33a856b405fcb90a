package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Service ids known to the gateway.
const (
	ServiceWeather = "weather"
	ServicePlaces  = "places"
	ServiceHotels  = "hotels"
)

// Gateway modes.
const (
	ModeDirect = "direct"
	ModeProxy  = "proxy"
	ModeMock   = "mock"
)

// Bootstrap is the root configuration.
type Bootstrap struct {
	Server  *Server
	Data    *Data
	Log     *Log
	Gateway *Gateway
	Keys    *Keys
	Auth    *Auth
}

type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

type Server_HTTP struct {
	Network   string
	Addr      string
	Timeout   *durationpb.Duration
	RateLimit *Server_HTTP_RateLimit
}

// Server_HTTP_RateLimit throttles inbound calls per client IP. Rps <= 0
// disables it.
type Server_HTTP_RateLimit struct {
	Rps   float64
	Burst int32
}

type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the audit log store. An empty Source keeps
// audit events in the application log only.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the shared L2 response cache. An empty Addr keeps
// the cache process-local.
type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	Db           int32
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
	TimeZone   string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

type Gateway struct {
	Mode               string
	ProxyUrl           string // outbound HTTP/SOCKS5 proxy
	WeatherBaseUrl     string
	PlacesBaseUrl      string
	Language           string
	Units              string
	DefaultTimeout     *durationpb.Duration
	CoalesceRequests   bool
	CacheSweepInterval *durationpb.Duration
	Services           map[string]*Gateway_Service
}

// Gateway_Service holds resilience tuning for one service id.
type Gateway_Service struct {
	FailureThreshold int32
	MonitoringPeriod *durationpb.Duration
	ResetTimeout     *durationpb.Duration
	MaxRetries       int32
	BaseDelay        *durationpb.Duration
	MaxDelay         *durationpb.Duration
	MaxTokens        float64
	RefillPerSecond  float64
	Timeout          *durationpb.Duration
	CacheTtl         *durationpb.Duration
}

type Keys struct {
	Weather string
	Places  string
	Hotels  string
}

type Auth struct {
	AdminToken string
}

// GetService returns the tuning for id, or nil.
func (g *Gateway) GetService(id string) *Gateway_Service {
	if g == nil || g.Services == nil {
		return nil
	}
	return g.Services[id]
}
