// Package memory implementa un adapter en memoria para tests y para correr el
// servicio sin base de datos. Los datos se pierden al reiniciar.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	store "github.com/dropDatabas3/cinelog/internal/store"
)

func init() {
	store.RegisterAdapter(&memoryAdapter{})
}

type memoryAdapter struct{}

func (a *memoryAdapter) Name() string { return "memory" }

func (a *memoryAdapter) Connect(_ context.Context, _ store.AdapterConfig) (store.AdapterConnection, error) {
	return New(), nil
}

// DB guarda todas las tablas bajo un único mutex; las operaciones compuestas
// (cascadas, consumo de códigos) son atómicas.
type DB struct {
	mu sync.Mutex

	users   map[string]*repository.User
	byEmail map[string]string
	tokens  map[string]*repository.AuthToken
	apiToks map[string]*repository.APIToken
	codes   map[string]*repository.RecoveryCode
	devices map[string]*repository.TrustedDevice
	events  []repository.SecurityAuditEvent
}

// New crea una base vacía con el usuario de sistema ya sembrado.
func New() *DB {
	db := &DB{
		users:   make(map[string]*repository.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*repository.AuthToken),
		apiToks: make(map[string]*repository.APIToken),
		codes:   make(map[string]*repository.RecoveryCode),
		devices: make(map[string]*repository.TrustedDevice),
	}
	db.users[repository.SystemUserID] = &repository.User{
		ID:           repository.SystemUserID,
		Email:        "system@cinelog.invalid",
		PrivacyLevel: "private",
	}
	db.byEmail["system@cinelog.invalid"] = repository.SystemUserID
	return db
}

func (db *DB) Name() string               { return "memory" }
func (db *DB) Ping(context.Context) error { return nil }
func (db *DB) Close() error               { return nil }

func (db *DB) Users() repository.UserRepository                   { return &userRepo{db} }
func (db *DB) AuthTokens() repository.AuthTokenRepository         { return &authTokenRepo{db} }
func (db *DB) APITokens() repository.APITokenRepository           { return &apiTokenRepo{db} }
func (db *DB) RecoveryCodes() repository.RecoveryCodeRepository   { return &recoveryRepo{db} }
func (db *DB) TrustedDevices() repository.TrustedDeviceRepository { return &deviceRepo{db} }
func (db *DB) Audit() repository.AuditRepository                  { return &auditRepo{db} }

// userExists requiere db.mu tomado.
func (db *DB) userExists(id string) bool {
	_, ok := db.users[id]
	return ok
}
