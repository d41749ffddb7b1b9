// Package store provee el registry de adaptadores de almacenamiento.
//
// Cada adapter (postgres, sqlite, memory) se registra en init(); main.go importa
// internal/store/adapters/dal para habilitarlos todos.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// Adapter representa un adaptador de almacenamiento capaz de crear repositorios.
type Adapter interface {
	// Name retorna el nombre del adapter ("postgres", "sqlite", "memory").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error)
}

// AdapterConnection representa una conexión activa.
// Provee acceso a los repositorios implementados por el adapter.
type AdapterConnection interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	// ─── Repositorios ───

	Users() repository.UserRepository
	AuthTokens() repository.AuthTokenRepository
	APITokens() repository.APITokenRepository
	RecoveryCodes() repository.RecoveryCodeRepository
	TrustedDevices() repository.TrustedDeviceRepository
	Audit() repository.AuditRepository
}

// MigratableConnection es opcional: las conexiones SQL aplican sus migraciones embebidas.
type MigratableConnection interface {
	Migrate(ctx context.Context) error
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "postgres", "sqlite", "memory"
	Name string

	// DSN connection string (ignorado por memory)
	DSN string

	// Pool settings
	MaxOpenConns int
	MaxIdleConns int
}

// ─── Registry Global ───

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter en el registry global.
// Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("adapter: %q already registered", name))
	}
	adapters[name] = a
}

// GetAdapter obtiene un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}

// ListAdapters retorna los nombres registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAdapter abre una conexión usando el adapter especificado en la config.
func OpenAdapter(ctx context.Context, cfg AdapterConfig) (AdapterConnection, error) {
	a, ok := GetAdapter(cfg.Name)
	if !ok {
		return nil, fmt.Errorf("adapter: %q not registered (available: %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg)
}

// Migrate aplica las migraciones si la conexión las soporta. Para memory es no-op.
func Migrate(ctx context.Context, conn AdapterConnection) error {
	m, ok := conn.(MigratableConnection)
	if !ok {
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("%s: migrate: %w", conn.Name(), err)
	}
	return nil
}
