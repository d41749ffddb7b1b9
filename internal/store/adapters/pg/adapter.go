// Package pg implementa el adapter PostgreSQL. Usa pgxpool directamente.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	store "github.com/dropDatabas3/cinelog/internal/store"
	"github.com/dropDatabas3/cinelog/internal/store/migrations"
)

func init() {
	store.RegisterAdapter(&postgresAdapter{})
}

type postgresAdapter struct{}

func (a *postgresAdapter) Name() string { return "postgres" }

func (a *postgresAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.AdapterConnection, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pg: dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Connection implementa store.AdapterConnection.
type Connection struct {
	pool *pgxpool.Pool
}

func (c *Connection) Name() string { return "postgres" }

func (c *Connection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Connection) Close() error {
	c.pool.Close()
	return nil
}

// Pool expone el pool para métricas.
func (c *Connection) Pool() *pgxpool.Pool { return c.pool }

// Migrate corre goose sobre un *sql.DB que comparte el pool.
func (c *Connection) Migrate(ctx context.Context) error {
	// db no tiene conexiones idle propias; se libera junto con el pool.
	db := stdlib.OpenDBFromPool(c.pool)
	return migrations.Up(ctx, db, "postgres")
}

func (c *Connection) Users() repository.UserRepository                   { return &userRepo{pool: c.pool} }
func (c *Connection) AuthTokens() repository.AuthTokenRepository         { return &authTokenRepo{pool: c.pool} }
func (c *Connection) APITokens() repository.APITokenRepository           { return &apiTokenRepo{pool: c.pool} }
func (c *Connection) RecoveryCodes() repository.RecoveryCodeRepository   { return &recoveryRepo{pool: c.pool} }
func (c *Connection) TrustedDevices() repository.TrustedDeviceRepository { return &deviceRepo{pool: c.pool} }
func (c *Connection) Audit() repository.AuditRepository                  { return &auditRepo{pool: c.pool} }

// mapErr traduce errores de pgx a errores de dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return repository.ErrConflict
		case "23503", "22P02": // foreign_key_violation, invalid_text_representation (uuid)
			return repository.ErrInvalidInput
		}
	}
	return err
}
