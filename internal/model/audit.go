// Package model holds persistent record types shared by the data layer.
package model

import "time"

// Audit event type constants
const (
	AuditEventCircuitOpened   = "CIRCUIT_OPENED"
	AuditEventCircuitHalfOpen = "CIRCUIT_HALF_OPEN"
	AuditEventCircuitClosed   = "CIRCUIT_CLOSED"
	AuditEventBreakerReset    = "BREAKER_RESET"
	AuditEventKeysUpdated     = "API_KEYS_UPDATED"
	AuditEventCacheCleared    = "CACHE_CLEARED"
)

// OperatorSystem marks events raised by the gateway itself rather than an
// admin request.
const OperatorSystem = "system"

// AuditLog is the GORM model for the gateway_audit_logs table.
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Service    string    `gorm:"column:service;type:varchar(32);not null;index"`
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"`
	Operator   string    `gorm:"column:operator;type:varchar(64);not null"` // request id, or "system"
	ClientIP   string    `gorm:"column:client_ip;type:varchar(64)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "gateway_audit_logs"
}
