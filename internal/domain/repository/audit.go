package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditEventType es el tipo de evento de seguridad. Conjunto cerrado.
type AuditEventType string

const (
	EventLoginSuccess            AuditEventType = "login_success"
	EventLoginFailedPassword     AuditEventType = "login_failed_password"
	EventLoginFailedTOTP         AuditEventType = "login_failed_totp"
	EventLoginFailedRecoveryCode AuditEventType = "login_failed_recovery_code"
	EventRecoveryCodeUsed        AuditEventType = "recovery_code_used"
	EventTOTPEnabled             AuditEventType = "totp_enabled"
	EventTOTPDisabled            AuditEventType = "totp_disabled"
	EventTrustedDeviceAdded      AuditEventType = "trusted_device_added"
	EventTrustedDeviceRemoved    AuditEventType = "trusted_device_removed"
	EventPasswordChanged         AuditEventType = "password_changed"
	EventLogout                  AuditEventType = "logout"
	EventRateLimitViolation      AuditEventType = "rate_limit_violation"
)

var knownEventTypes = map[AuditEventType]struct{}{
	EventLoginSuccess:            {},
	EventLoginFailedPassword:     {},
	EventLoginFailedTOTP:         {},
	EventLoginFailedRecoveryCode: {},
	EventRecoveryCodeUsed:        {},
	EventTOTPEnabled:             {},
	EventTOTPDisabled:            {},
	EventTrustedDeviceAdded:      {},
	EventTrustedDeviceRemoved:    {},
	EventPasswordChanged:         {},
	EventLogout:                  {},
	EventRateLimitViolation:      {},
}

// Valid indica si t pertenece al conjunto cerrado de eventos.
func (t AuditEventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t AuditEventType) String() string { return string(t) }

// SecurityAuditEvent es un registro inmutable de auditoría.
// Metadata es JSON ya serializado; nil se guarda como NULL.
type SecurityAuditEvent struct {
	ID        string
	UserID    string
	EventType AuditEventType
	IP        string
	UserAgent string
	Metadata  []byte
	CreatedAt time.Time
}

// NewAuditEvent valida user id y tipo, y asigna un id nuevo.
func NewAuditEvent(userID string, t AuditEventType, ip, userAgent string, metadata []byte, at time.Time) (SecurityAuditEvent, error) {
	if strings.TrimSpace(userID) == "" {
		return SecurityAuditEvent{}, fmt.Errorf("audit event: user_id required: %w", ErrInvalidInput)
	}
	if !t.Valid() {
		return SecurityAuditEvent{}, fmt.Errorf("audit event: unknown type %q: %w", t, ErrInvalidInput)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return SecurityAuditEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: t,
		IP:        ip,
		UserAgent: userAgent,
		Metadata:  metadata,
		CreatedAt: at,
	}, nil
}

// AuditRepository es append-only: no hay update, solo borrados masivos.
type AuditRepository interface {
	Append(ctx context.Context, e SecurityAuditEvent) error

	// Recent retorna los últimos limit eventos del usuario, más nuevos primero.
	Recent(ctx context.Context, userID string, limit int) ([]SecurityAuditEvent, error)

	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
