package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Wayfarer/internal/model"
	"Wayfarer/pkg/circuitbreaker"
	pkglog "Wayfarer/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

const (
	auditBufferSize   = 1000
	auditWriteTimeout = 5 * time.Second
	// allServices is stored in the service column for registry-wide events.
	allServices = "*"
)

// AuditLoggerImpl implements biz.AuditLogger. It also records every breaker
// transition. Events are written to MySQL asynchronously when a database is
// configured and are always logged.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *model.AuditLog
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	logger  *pkglog.LogHelper
}

// NewAuditLogger creates the audit logger, subscribes it to breaker
// transitions and starts the background writer. db may be nil.
func NewAuditLogger(db *gorm.DB, breakers *BreakerRegistry, logger log.Logger) (*AuditLoggerImpl, func()) {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *model.AuditLog, auditBufferSize),
		done:    make(chan struct{}),
		logger:  pkglog.NewLogHelper(logger),
	}

	go al.start()
	if breakers != nil {
		breakers.Subscribe(al.LogCircuitTransition)
	}

	return al, al.Close
}

// start processes audit events from the channel until Close.
func (a *AuditLoggerImpl) start() {
	defer close(a.done)
	for event := range a.logChan {
		if a.db == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write audit log",
				"service_id", event.Service,
				"action_type", event.ActionType,
				"error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (a *AuditLoggerImpl) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.logChan)
	}
	a.mu.Unlock()
	<-a.done
}

// LogCircuitTransition records a breaker state change. It runs under the
// breaker lock and never blocks.
func (a *AuditLoggerImpl) LogCircuitTransition(service string, from, to circuitbreaker.State) {
	action := model.AuditEventCircuitClosed
	switch to {
	case circuitbreaker.StateOpen:
		action = model.AuditEventCircuitOpened
	case circuitbreaker.StateHalfOpen:
		action = model.AuditEventCircuitHalfOpen
	}
	a.enqueue(&model.AuditLog{
		Service:    service,
		ActionType: action,
		Operator:   model.OperatorSystem,
	}, map[string]interface{}{"from": from.String(), "to": to.String()})
}

// LogKeysUpdated records which provider keys were replaced. Key values are
// never stored.
func (a *AuditLoggerImpl) LogKeysUpdated(ctx context.Context, services []string) {
	for _, service := range services {
		a.enqueue(a.adminEvent(ctx, service, model.AuditEventKeysUpdated), nil)
	}
}

// LogCacheCleared records a response cache flush.
func (a *AuditLoggerImpl) LogCacheCleared(ctx context.Context, entries int) {
	a.enqueue(a.adminEvent(ctx, allServices, model.AuditEventCacheCleared),
		map[string]interface{}{"entries": entries})
}

// LogBreakerReset records a manual breaker reset.
func (a *AuditLoggerImpl) LogBreakerReset(ctx context.Context, service string) {
	if service == "" {
		service = allServices
	}
	a.enqueue(a.adminEvent(ctx, service, model.AuditEventBreakerReset), nil)
}

func (a *AuditLoggerImpl) adminEvent(ctx context.Context, service, action string) *model.AuditLog {
	reqCtx := pkglog.GetRequestContext(ctx)
	return &model.AuditLog{
		Service:    service,
		ActionType: action,
		Operator:   reqCtx.RequestID,
		ClientIP:   reqCtx.ClientIP,
	}
}

func (a *AuditLoggerImpl) enqueue(event *model.AuditLog, details map[string]interface{}) {
	if details != nil {
		detailsJSON, err := json.Marshal(details)
		if err != nil {
			a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
			return
		}
		event.Details = string(detailsJSON)
	}

	a.logger.Security("audit event",
		"service_id", event.Service,
		"action_type", event.ActionType,
		"operator", event.Operator)

	if a.db == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"service_id", event.Service,
			"action_type", event.ActionType)
	}
}
