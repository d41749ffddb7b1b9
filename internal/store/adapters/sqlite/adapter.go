// Package sqlite implementa el adapter SQLite (modernc.org/sqlite, sin cgo).
// Es el driver por defecto para instalaciones self-hosted de un solo nodo.
//
// DSN: una ruta ("cinelog.db") o un URI ("file:cinelog.db?cache=shared").
// El adapter agrega foreign_keys(1) y _time_format=sqlite si no vienen en el DSN.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	store "github.com/dropDatabas3/cinelog/internal/store"
	"github.com/dropDatabas3/cinelog/internal/store/migrations"
)

func init() {
	store.RegisterAdapter(&sqliteAdapter{})
}

type sqliteAdapter struct{}

func (a *sqliteAdapter) Name() string { return "sqlite" }

func (a *sqliteAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: dsn required")
	}
	db, err := sql.Open("sqlite", withPragmas(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	// SQLite serializa escrituras; una sola conexión evita SQLITE_BUSY.
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return NewConnection(db), nil
}

// withPragmas agrega los parámetros que el esquema necesita.
func withPragmas(dsn string) string {
	var extra []string
	if !strings.Contains(dsn, "foreign_keys") {
		extra = append(extra, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		extra = append(extra, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "_time_format") {
		extra = append(extra, "_time_format=sqlite")
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// Connection implementa store.AdapterConnection sobre un *sql.DB.
type Connection struct {
	db *sql.DB
}

// NewConnection envuelve un *sql.DB ya abierto (tests con sqlmock lo usan directo).
func NewConnection(db *sql.DB) *Connection {
	return &Connection{db: db}
}

func (c *Connection) Name() string { return "sqlite" }

func (c *Connection) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Connection) Close() error {
	return c.db.Close()
}

func (c *Connection) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, c.db, "sqlite3")
}

func (c *Connection) Users() repository.UserRepository                   { return &userRepo{db: c.db} }
func (c *Connection) AuthTokens() repository.AuthTokenRepository         { return &authTokenRepo{db: c.db} }
func (c *Connection) APITokens() repository.APITokenRepository           { return &apiTokenRepo{db: c.db} }
func (c *Connection) RecoveryCodes() repository.RecoveryCodeRepository   { return &recoveryRepo{db: c.db} }
func (c *Connection) TrustedDevices() repository.TrustedDeviceRepository { return &deviceRepo{db: c.db} }
func (c *Connection) Audit() repository.AuditRepository                  { return &auditRepo{db: c.db} }
