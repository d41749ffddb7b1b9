package repository

import (
	"context"
	"time"
)

// AuthToken es una credencial bearer de sesión, ligada a un usuario y a una etiqueta
// de dispositivo/cliente, con expiración.
type AuthToken struct {
	ID          string
	UserID      string
	TokenHash   string
	DeviceLabel string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reporta si el token ya no es válido en now.
func (t AuthToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CreateAuthTokenInput contiene los datos para emitir un AuthToken.
type CreateAuthTokenInput struct {
	UserID      string
	TokenHash   string
	DeviceLabel string
	ExpiresAt   time.Time
}

// AuthTokenRepository define operaciones sobre tokens de sesión.
type AuthTokenRepository interface {
	Create(ctx context.Context, in CreateAuthTokenInput) (*AuthToken, error)

	// GetByHash retorna ErrNotFound si no existe. No filtra por expiración:
	// el llamador decide y borra.
	GetByHash(ctx context.Context, tokenHash string) (*AuthToken, error)

	Delete(ctx context.Context, id string) error

	// DeleteByUser borra todos los tokens del usuario salvo exceptID (si no está vacío).
	DeleteByUser(ctx context.Context, userID, exceptID string) (int64, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// APIToken es una credencial de larga vida para integraciones. No expira;
// solo se revoca borrándola.
type APIToken struct {
	ID        string
	UserID    string
	TokenHash string
	Label     string
	CreatedAt time.Time
}

// APITokenRepository define operaciones sobre API tokens.
type APITokenRepository interface {
	Create(ctx context.Context, userID, tokenHash, label string) (*APIToken, error)

	// GetByHash retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*APIToken, error)

	ListByUser(ctx context.Context, userID string) ([]APIToken, error)

	// Delete borra el token si pertenece al usuario; si no, ErrNotFound.
	Delete(ctx context.Context, userID, id string) error
}
