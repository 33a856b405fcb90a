package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/data"
	"Wayfarer/pkg/circuitbreaker"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var _ transport.Server = (*HealthServer)(nil)

// HealthServicePrefix names per-provider health entries, e.g. "wayfarer.weather".
const HealthServicePrefix = "wayfarer."

// HealthServer serves the standard gRPC health service. The overall entry
// ("") is SERVING while the process runs; each provider entry follows its
// circuit breaker and is NOT_SERVING while the circuit is open.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	network string
	address string

	mu  sync.Mutex
	lis net.Listener

	logger  *log.Helper
}

// NewHealthServer creates the health server and subscribes it to breaker
// transitions.
func NewHealthServer(c *conf.Server, breakers *data.BreakerRegistry, logger log.Logger) *HealthServer {
	s := &HealthServer{
		server:  grpc.NewServer(),
		health:  health.NewServer(),
		network: "tcp",
		address: ":9000",
		logger:  log.NewHelper(logger),
	}
	if c.Grpc != nil {
		if c.Grpc.Network != "" {
			s.network = c.Grpc.Network
		}
		if c.Grpc.Addr != "" {
			s.address = c.Grpc.Addr
		}
	}
	healthpb.RegisterHealthServer(s.server, s.health)

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, id := range breakers.Services() {
		snap, err := breakers.Snapshot(id)
		if err != nil {
			continue
		}
		s.setProvider(id, snap.State)
	}
	breakers.Subscribe(func(service string, _, to circuitbreaker.State) {
		s.setProvider(service, to)
	})
	return s
}

func (s *HealthServer) setProvider(service string, state circuitbreaker.State) {
	status := healthpb.HealthCheckResponse_SERVING
	if state == circuitbreaker.StateOpen {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(HealthServicePrefix+service, status)
}

// Health exposes the underlying health server.
func (s *HealthServer) Health() *health.Server {
	return s.health
}

// Addr returns the bound address, or "" before Start.
func (s *HealthServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Start listens and serves until Stop.
func (s *HealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen(s.network, s.address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()
	s.logger.Infof("[gRPC] health server listening on: %s", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains the server.
func (s *HealthServer) Stop(ctx context.Context) error {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.logger.Info("[gRPC] health server stopping")
	return nil
}
