package repository

import (
	"context"
	"time"
)

// SystemUserID es el id centinela para eventos sin usuario resuelto
// (email desconocido, violaciones de rate limit por IP, tareas automáticas).
// La migración inicial crea la fila correspondiente en app_user.
const SystemUserID = "00000000-0000-0000-0000-000000000000"

// User es el subconjunto del usuario que el núcleo de auth necesita.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	// TOTPSecret es el secreto TOTP sellado con secretbox; nil si no hay segundo factor.
	TOTPSecret   *string
	IsAdmin      bool
	PrivacyLevel string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasTOTP indica si el usuario tiene un segundo factor configurado.
func (u *User) HasTOTP() bool {
	return u != nil && u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// CreateUserInput contiene los datos para crear un usuario.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	IsAdmin      bool
}

// UserRepository es el colaborador de gestión de usuarios.
type UserRepository interface {
	// Create crea un usuario. Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, in CreateUserInput) (*User, error)

	// GetByEmail busca por email normalizado. Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	SetTOTPSecret(ctx context.Context, userID, sealed string) error
	ClearTOTPSecret(ctx context.Context, userID string) error

	// Delete elimina el usuario; tokens, codes, devices y auditoría caen en cascada.
	Delete(ctx context.Context, userID string) error
}
