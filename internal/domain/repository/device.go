package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrustedDevice es un dispositivo recordado que puede saltear el segundo factor.
// TokenHash es la credencial real; Fingerprint es solo para mostrar.
type TrustedDevice struct {
	ID          string
	UserID      string
	TokenHash   string
	DeviceLabel string
	Fingerprint string
	ExpiresAt   time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// NewTrustedDevice valida los campos requeridos y asigna un id nuevo.
func NewTrustedDevice(userID, tokenHash, label, fingerprint string, createdAt, expiresAt time.Time) (TrustedDevice, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(tokenHash) == "" {
		return TrustedDevice{}, fmt.Errorf("trusted device: user_id and token_hash required: %w", ErrInvalidInput)
	}
	if createdAt.IsZero() || !expiresAt.After(createdAt) {
		return TrustedDevice{}, fmt.Errorf("trusted device: expires_at must be after created_at: %w", ErrInvalidInput)
	}
	return TrustedDevice{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   tokenHash,
		DeviceLabel: label,
		Fingerprint: fingerprint,
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
	}, nil
}

// Expired reporta si el dispositivo ya no es confiable en now.
func (d TrustedDevice) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// TrustedDeviceRepository define operaciones sobre trusted devices.
type TrustedDeviceRepository interface {
	Create(ctx context.Context, d TrustedDevice) error

	// GetByTokenHash busca por hash exacto. Si userID no está vacío la búsqueda se
	// limita a ese usuario. Retorna ErrNotFound si no existe. No filtra por expiración.
	GetByTokenHash(ctx context.Context, tokenHash, userID string) (*TrustedDevice, error)

	// Touch actualiza last_used_at.
	Touch(ctx context.Context, id string, at time.Time) error

	// DeleteIfExpired borra el dispositivo solo si expires_at <= now.
	DeleteIfExpired(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpired borra todos los dispositivos expirados.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	ListByUser(ctx context.Context, userID string) ([]TrustedDevice, error)

	// Delete borra el dispositivo si pertenece al usuario; si no, ErrNotFound.
	Delete(ctx context.Context, userID, id string) error

	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
