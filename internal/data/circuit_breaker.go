package data

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"Wayfarer/internal/conf"
	"Wayfarer/internal/metrics"
	"Wayfarer/pkg/circuitbreaker"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrUnknownService is returned for a service id the gateway does not know.
var ErrUnknownService = errors.New("unknown service")

// BreakerRegistry owns one circuit breaker per service id for the lifetime
// of the process.
type BreakerRegistry struct {
	mu        sync.RWMutex
	breakers  map[string]*circuitbreaker.Breaker
	listeners []circuitbreaker.StateChangeFunc

	metrics *metrics.Metrics
	logger  *pkglog.LogHelper
}

// NewBreakerRegistry creates breakers for every configured service.
func NewBreakerRegistry(c *conf.Gateway, m *metrics.Metrics, logger log.Logger) *BreakerRegistry {
	return newBreakerRegistry(c, m, logger)
}

func newBreakerRegistry(c *conf.Gateway, m *metrics.Metrics, logger log.Logger, opts ...circuitbreaker.Option) *BreakerRegistry {
	r := &BreakerRegistry{
		breakers: make(map[string]*circuitbreaker.Breaker),
		metrics:  m,
		logger:   pkglog.NewLogHelper(logger),
	}

	all := append([]circuitbreaker.Option{circuitbreaker.WithStateChange(r.onStateChange)}, opts...)
	for _, id := range conf.KnownServices {
		r.breakers[id] = circuitbreaker.New(id, breakerConfig(c.GetService(id)), all...)
		m.SetBreakerState(id, int(circuitbreaker.StateClosed))
	}
	return r
}

func breakerConfig(s *conf.Gateway_Service) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	if s == nil {
		return cfg
	}
	if s.FailureThreshold > 0 {
		cfg.FailureThreshold = int(s.FailureThreshold)
	}
	if d := s.MonitoringPeriod.AsDuration(); d > 0 {
		cfg.MonitoringPeriod = d
	}
	if d := s.ResetTimeout.AsDuration(); d > 0 {
		cfg.ResetTimeout = d
	}
	return cfg
}

// onStateChange runs under the breaker lock.
func (r *BreakerRegistry) onStateChange(service string, from, to circuitbreaker.State) {
	r.metrics.SetBreakerState(service, int(to))
	r.logger.Breaker(fmt.Sprintf("circuit %s: %s -> %s", service, from, to),
		"service_id", service, "from", from.String(), "to", to.String())

	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(service, from, to)
	}
}

// Subscribe registers fn for every future transition of every breaker.
// fn must not call back into the registry.
func (r *BreakerRegistry) Subscribe(fn circuitbreaker.StateChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Get returns the breaker for service.
func (r *BreakerRegistry) Get(service string) (*circuitbreaker.Breaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return b, nil
}

// Snapshot returns the state of one breaker.
func (r *BreakerRegistry) Snapshot(service string) (circuitbreaker.Snapshot, error) {
	b, err := r.Get(service)
	if err != nil {
		return circuitbreaker.Snapshot{}, err
	}
	return b.Snapshot(), nil
}

// Reset forces one breaker closed.
func (r *BreakerRegistry) Reset(service string) error {
	b, err := r.Get(service)
	if err != nil {
		return err
	}
	b.Reset()
	return nil
}

// ResetAll forces every breaker closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	all := make([]*circuitbreaker.Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		all = append(all, b)
	}
	r.mu.RUnlock()

	for _, b := range all {
		b.Reset()
	}
}

// Services returns the registered service ids in sorted order.
func (r *BreakerRegistry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.breakers))
	for id := range r.breakers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
