// Package devices administra los dispositivos de confianza que permiten saltear el
// segundo factor durante 30 días.
//
// El cliente recibe un token opaco una sola vez (cookie); en DB queda su sha256.
// El fingerprint (ua + ip) es solo para mostrar y nunca participa de la verificación.
package devices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
)

const (
	DefaultTTL     = 30 * 24 * time.Hour
	TokenBytes     = 32
	fingerprintLen = 16
)

type Manager struct {
	repo repository.TrustedDeviceRepository

	TTL             time.Duration
	FingerprintSalt string
	Clock           func() time.Time
}

func NewManager(repo repository.TrustedDeviceRepository, fingerprintSalt string) *Manager {
	return &Manager{repo: repo, TTL: DefaultTTL, FingerprintSalt: fingerprintSalt, Clock: time.Now}
}

// Created es el dispositivo persistido más el token en claro para la cookie.
type Created struct {
	Device repository.TrustedDevice
	Token  string
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultTTL
}

// Create emite un dispositivo nuevo. Si label está vacío se deriva del user agent.
func (m *Manager) Create(ctx context.Context, userID, label, userAgent, ip string) (Created, error) {
	pair, err := tokens.NewPair(TokenBytes)
	if err != nil {
		return Created{}, fmt.Errorf("devices: token: %w", err)
	}
	if label == "" {
		label = LabelFromUserAgent(userAgent)
	}
	now := m.now()
	d, err := repository.NewTrustedDevice(userID, pair.Hash, label, Fingerprint(m.FingerprintSalt, userAgent, ip), now, now.Add(m.ttl()))
	if err != nil {
		return Created{}, err
	}
	if err := m.repo.Create(ctx, d); err != nil {
		return Created{}, fmt.Errorf("devices: create: %w", err)
	}
	logger.From(ctx).Info("trusted device created",
		logger.Component("mfa.devices"), logger.UserID(userID), logger.DeviceID(d.ID))
	return Created{Device: d, Token: pair.Token}, nil
}

// Verify resuelve el token. Retorna (nil, nil) si no existe o si venció; en ese
// caso la fila se borra. Con userID no vacío la búsqueda se limita a ese usuario.
func (m *Manager) Verify(ctx context.Context, token, userID string) (*repository.TrustedDevice, error) {
	if token == "" {
		return nil, nil
	}
	hash := tokens.SHA256Hex(token)
	d, err := m.repo.GetByTokenHash(ctx, hash, userID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("devices: lookup: %w", err)
	}
	if !tokens.Equal(d.TokenHash, hash) {
		return nil, nil
	}

	now := m.now()
	if d.Expired(now) {
		if _, err := m.repo.DeleteIfExpired(ctx, d.ID, now); err != nil {
			return nil, fmt.Errorf("devices: delete expired: %w", err)
		}
		logger.From(ctx).Debug("trusted device expired",
			logger.Component("mfa.devices"), logger.DeviceID(d.ID))
		return nil, nil
	}

	if err := m.repo.Touch(ctx, d.ID, now); err != nil {
		return nil, fmt.Errorf("devices: touch: %w", err)
	}
	d.LastUsedAt = &now
	return d, nil
}

func (m *Manager) List(ctx context.Context, userID string) ([]repository.TrustedDevice, error) {
	list, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("devices: list: %w", err)
	}
	return list, nil
}

// CleanupExpired borra todos los dispositivos vencidos.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("devices: cleanup: %w", err)
	}
	metrics.DevicesCleaned(n)
	return n, nil
}

// Revoke borra un dispositivo del usuario. ErrNotFound si no existe o es de otro.
func (m *Manager) Revoke(ctx context.Context, userID, deviceID string) error {
	if err := m.repo.Delete(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("devices: revoke: %w", err)
	}
	return nil
}

func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := m.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("devices: revoke all: %w", err)
	}
	return n, nil
}

// Fingerprint es sha256(salt|ua|ip) en hex, truncado a 16 caracteres.
func Fingerprint(salt, userAgent, ip string) string {
	sum := sha256.Sum256([]byte(salt + "|" + userAgent + "|" + ip))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
