// Package recovery genera y verifica los códigos de respaldo de un solo uso.
//
// Un batch son 10 códigos de 10 caracteres del alfabeto sin ambigüedades
// (sin 0/O ni 1/I). Se muestran como XXXX-XXXX-XX y se guardan como argon2id del
// código normalizado. Generar un batch nuevo invalida todos los anteriores.
package recovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/security/password"
)

const (
	Alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeCount  = 10
	CodeLength = 10
)

type Manager struct {
	repo repository.RecoveryCodeRepository

	// Params del hash; Light por defecto.
	Params password.Params
	Clock  func() time.Time
}

func NewManager(repo repository.RecoveryCodeRepository) *Manager {
	return &Manager{repo: repo, Params: password.Light, Clock: time.Now}
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

// Generate reemplaza todos los códigos del usuario por un batch nuevo y devuelve
// los códigos en formato de display. Es la única vez que se ven en claro.
func (m *Manager) Generate(ctx context.Context, userID string) ([]string, error) {
	now := m.now()
	display := make([]string, 0, CodeCount)
	rows := make([]repository.RecoveryCode, 0, CodeCount)

	for i := 0; i < CodeCount; i++ {
		raw, err := randomCode()
		if err != nil {
			return nil, err
		}
		h, err := password.Hash(m.Params, raw)
		if err != nil {
			return nil, fmt.Errorf("recovery: hash: %w", err)
		}
		rc, err := repository.NewRecoveryCode(userID, h, now)
		if err != nil {
			return nil, err
		}
		rows = append(rows, rc)
		display = append(display, Format(raw))
	}

	if err := m.repo.ReplaceForUser(ctx, userID, rows); err != nil {
		return nil, fmt.Errorf("recovery: store: %w", err)
	}
	logger.From(ctx).Info("recovery codes generated",
		logger.Component("mfa.recovery"), logger.UserID(userID), logger.Count(len(display)))
	return display, nil
}

// Verify consume el código si coincide con alguno sin usar. Cada código sirve una
// sola vez: si otro request lo consumió primero retorna false.
func (m *Manager) Verify(ctx context.Context, userID, candidate string) (bool, error) {
	norm := Normalize(candidate)
	if !Valid(norm) {
		return false, nil
	}

	codes, err := m.repo.ListUnused(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("recovery: list: %w", err)
	}
	// hashes viejos se calcularon sobre la forma con guiones
	legacy := Format(norm)

	for _, c := range codes {
		if !password.Verify(norm, c.CodeHash) && !password.Verify(legacy, c.CodeHash) {
			continue
		}
		ok, err := m.repo.MarkUsed(ctx, c.ID, m.now())
		if err != nil {
			return false, fmt.Errorf("recovery: mark used: %w", err)
		}
		if ok {
			logger.From(ctx).Info("recovery code consumed",
				logger.Component("mfa.recovery"), logger.UserID(userID))
		}
		return ok, nil
	}
	return false, nil
}

// Remaining cuenta los códigos sin usar.
func (m *Manager) Remaining(ctx context.Context, userID string) (int, error) {
	n, err := m.repo.CountUnused(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("recovery: count: %w", err)
	}
	return n, nil
}

// DeleteAll borra todos los códigos del usuario (al desactivar TOTP).
func (m *Manager) DeleteAll(ctx context.Context, userID string) error {
	if err := m.repo.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("recovery: delete: %w", err)
	}
	return nil
}

// Normalize quita guiones y espacios y pasa a mayúsculas.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Format agrupa un código normalizado como XXXX-XXXX-XX.
// Si s no tiene el largo esperado lo devuelve sin cambios.
func Format(s string) string {
	if len(s) != CodeLength {
		return s
	}
	return s[0:4] + "-" + s[4:8] + "-" + s[8:10]
}

// Valid reporta si s (normalizado) tiene forma de código: 10 caracteres A-Z/0-9.
// No exige Alphabet; los batches viejos usaban alfanuméricos completos.
func Valid(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// randomCode usa byte%32: 256 es múltiplo del alfabeto, no hay sesgo.
func randomCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("recovery: random: %w", err)
	}
	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}
