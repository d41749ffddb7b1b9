package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecoveryCode es un código de respaldo de un solo uso. Solo se guarda el hash
// (argon2id) del código normalizado. Una vez marcado UsedAt no hay vuelta atrás.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// NewRecoveryCode valida los campos requeridos y asigna un id nuevo.
func NewRecoveryCode(userID, codeHash string, createdAt time.Time) (RecoveryCode, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(codeHash) == "" {
		return RecoveryCode{}, fmt.Errorf("recovery code: user_id and code_hash required: %w", ErrInvalidInput)
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return RecoveryCode{
		ID:        uuid.NewString(),
		UserID:    userID,
		CodeHash:  codeHash,
		CreatedAt: createdAt,
	}, nil
}

// Used indica si el código ya fue consumido.
func (c RecoveryCode) Used() bool { return c.UsedAt != nil }

// RecoveryCodeRepository define operaciones sobre recovery codes.
type RecoveryCodeRepository interface {
	// ReplaceForUser borra todos los códigos previos del usuario e inserta el nuevo
	// batch en una sola transacción.
	ReplaceForUser(ctx context.Context, userID string, codes []RecoveryCode) error

	// ListUnused retorna solo los códigos con used_at IS NULL (filtro en la query).
	ListUnused(ctx context.Context, userID string) ([]RecoveryCode, error)

	// ListByUser retorna todos los códigos, usados o no.
	ListByUser(ctx context.Context, userID string) ([]RecoveryCode, error)

	// MarkUsed marca el código como usado de forma atómica
	// (UPDATE ... WHERE id = ? AND used_at IS NULL). Retorna false si otro request
	// lo consumió antes.
	MarkUsed(ctx context.Context, id string, at time.Time) (bool, error)

	CountUnused(ctx context.Context, userID string) (int, error)

	DeleteByUser(ctx context.Context, userID string) error
}
