// Package migrations embebe el esquema SQL por dialecto y lo aplica con goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// goose guarda dialecto y FS en estado global.
var gooseMu sync.Mutex

// Up aplica las migraciones pendientes del dialecto ("postgres" o "sqlite3").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := dirFor(dialect)
	if err != nil {
		return err
	}
	sub, err := fs.Sub(files, dir)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("migrations: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

func dirFor(dialect string) (string, error) {
	switch dialect {
	case "postgres", "pgx":
		return "postgres", nil
	case "sqlite3", "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}
