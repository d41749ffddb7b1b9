package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// nullStringToPtr convierte sql.NullString a *string.
func nullStringToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// nullTimeToPtr convierte sql.NullTime a *time.Time.
func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// utc normaliza antes de escribir: las comparaciones de fechas en SQLite son
// lexicográficas y requieren el mismo offset en todas las filas.
func utc(t time.Time) time.Time { return t.UTC() }

// mapErr traduce errores de driver a errores de dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return repository.ErrConflict
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return repository.ErrInvalidInput
	}
	return err
}
