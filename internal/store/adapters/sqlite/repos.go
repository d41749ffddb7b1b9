package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// ─── UserRepository ───

type userRepo struct{ db *sql.DB }

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, email, password_hash, totp_secret, is_admin, privacy_level, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*repository.User, error) {
	var u repository.User
	var totp sql.NullString
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &totp, &u.IsAdmin, &u.PrivacyLevel, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.TOTPSecret = nullStringToPtr(totp)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("sqlite: create user: email required: %w", repository.ErrInvalidInput)
	}
	now := utc(time.Now())
	u := &repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsAdmin:      in.IsAdmin,
		PrivacyLevel: "private",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	const query = `
		INSERT INTO app_user (id, email, password_hash, is_admin, privacy_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, u.ID, u.Email, u.PasswordHash, u.IsAdmin, u.PrivacyLevel, now, now); err != nil {
		return nil, fmt.Errorf("sqlite: create user: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user WHERE email = ? LIMIT 1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user by email: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user WHERE id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user by id: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: %s: %w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, "update password", `UPDATE app_user SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, utc(time.Now()), userID)
}

func (r *userRepo) SetTOTPSecret(ctx context.Context, userID, sealed string) error {
	return r.exec(ctx, "set totp", `UPDATE app_user SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		sealed, utc(time.Now()), userID)
}

func (r *userRepo) ClearTOTPSecret(ctx context.Context, userID string) error {
	return r.exec(ctx, "clear totp", `UPDATE app_user SET totp_secret = NULL, updated_at = ? WHERE id = ?`,
		utc(time.Now()), userID)
}

func (r *userRepo) Delete(ctx context.Context, userID string) error {
	return r.exec(ctx, "delete user", `DELETE FROM app_user WHERE id = ?`, userID)
}

// ─── AuthTokenRepository ───

type authTokenRepo struct{ db *sql.DB }

var _ repository.AuthTokenRepository = (*authTokenRepo)(nil)

func (r *authTokenRepo) Create(ctx context.Context, in repository.CreateAuthTokenInput) (*repository.AuthToken, error) {
	t := &repository.AuthToken{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		TokenHash:   in.TokenHash,
		DeviceLabel: in.DeviceLabel,
		ExpiresAt:   utc(in.ExpiresAt),
		CreatedAt:   utc(time.Now()),
	}
	const query = `
		INSERT INTO auth_token (id, user_id, token_hash, device_label, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.TokenHash, t.DeviceLabel, t.ExpiresAt, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: create auth token: %w", mapErr(err))
	}
	return t, nil
}

func (r *authTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.AuthToken, error) {
	const query = `
		SELECT id, user_id, token_hash, device_label, expires_at, created_at
		FROM auth_token WHERE token_hash = ?
	`
	var t repository.AuthToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceLabel, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get auth token: %w", mapErr(err))
	}
	t.ExpiresAt, t.CreatedAt = t.ExpiresAt.UTC(), t.CreatedAt.UTC()
	return &t, nil
}

func (r *authTokenRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_token WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete auth token: %w", err)
	}
	return nil
}

func (r *authTokenRepo) DeleteByUser(ctx context.Context, userID, exceptID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_token WHERE user_id = ? AND id <> ?`, userID, exceptID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete auth tokens by user: %w", err)
	}
	return res.RowsAffected()
}

func (r *authTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_token WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired auth tokens: %w", err)
	}
	return res.RowsAffected()
}

// ─── APITokenRepository ───

type apiTokenRepo struct{ db *sql.DB }

var _ repository.APITokenRepository = (*apiTokenRepo)(nil)

func (r *apiTokenRepo) Create(ctx context.Context, userID, tokenHash, label string) (*repository.APIToken, error) {
	t := &repository.APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		Label:     label,
		CreatedAt: utc(time.Now()),
	}
	const query = `INSERT INTO api_token (id, user_id, token_hash, label, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, t.TokenHash, t.Label, t.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: create api token: %w", mapErr(err))
	}
	return t, nil
}

func (r *apiTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.APIToken, error) {
	const query = `SELECT id, user_id, token_hash, label, created_at FROM api_token WHERE token_hash = ?`
	var t repository.APIToken
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Label, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: get api token: %w", mapErr(err))
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (r *apiTokenRepo) ListByUser(ctx context.Context, userID string) ([]repository.APIToken, error) {
	const query = `
		SELECT id, user_id, token_hash, label, created_at
		FROM api_token WHERE user_id = ? ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list api tokens: %w", err)
	}
	defer rows.Close()

	var out []repository.APIToken
	for rows.Next() {
		var t repository.APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Label, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan api token: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *apiTokenRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_token WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: delete api token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── RecoveryCodeRepository ───

type recoveryRepo struct{ db *sql.DB }

var _ repository.RecoveryCodeRepository = (*recoveryRepo)(nil)

func (r *recoveryRepo) ReplaceForUser(ctx context.Context, userID string, codes []repository.RecoveryCode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	// Eliminar anteriores
	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_code WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: delete recovery codes: %w", err)
	}

	// Insertar nuevos
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recovery_code (id, user_id, code_hash, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare recovery insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range codes {
		if _, err := stmt.ExecContext(ctx, c.ID, userID, c.CodeHash, utc(c.CreatedAt)); err != nil {
			return fmt.Errorf("sqlite: insert recovery code: %w", mapErr(err))
		}
	}
	return tx.Commit()
}

func (r *recoveryRepo) query(ctx context.Context, query string, args ...any) ([]repository.RecoveryCode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recovery codes: %w", err)
	}
	defer rows.Close()

	var out []repository.RecoveryCode
	for rows.Next() {
		var c repository.RecoveryCode
		var used sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt, &used); err != nil {
			return nil, fmt.Errorf("sqlite: scan recovery code: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UsedAt = nullTimeToPtr(used)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *recoveryRepo) ListUnused(ctx context.Context, userID string) ([]repository.RecoveryCode, error) {
	return r.query(ctx, `
		SELECT id, user_id, code_hash, created_at, used_at
		FROM recovery_code WHERE user_id = ? AND used_at IS NULL ORDER BY created_at, id
	`, userID)
}

func (r *recoveryRepo) ListByUser(ctx context.Context, userID string) ([]repository.RecoveryCode, error) {
	return r.query(ctx, `
		SELECT id, user_id, code_hash, created_at, used_at
		FROM recovery_code WHERE user_id = ? ORDER BY created_at, id
	`, userID)
}

func (r *recoveryRepo) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE recovery_code SET used_at = ? WHERE id = ? AND used_at IS NULL`, utc(at), id)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark recovery code used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: mark recovery code used: %w", err)
	}
	return n == 1, nil
}

func (r *recoveryRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recovery_code WHERE user_id = ? AND used_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count recovery codes: %w", err)
	}
	return n, nil
}

func (r *recoveryRepo) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM recovery_code WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: delete recovery codes: %w", err)
	}
	return nil
}

// ─── TrustedDeviceRepository ───

type deviceRepo struct{ db *sql.DB }

var _ repository.TrustedDeviceRepository = (*deviceRepo)(nil)

const deviceColumns = `id, user_id, token_hash, device_label, fingerprint, expires_at, last_used_at, created_at`

func scanDevice(row interface{ Scan(...any) error }) (*repository.TrustedDevice, error) {
	var d repository.TrustedDevice
	var last sql.NullTime
	if err := row.Scan(&d.ID, &d.UserID, &d.TokenHash, &d.DeviceLabel, &d.Fingerprint, &d.ExpiresAt, &last, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.ExpiresAt, d.CreatedAt = d.ExpiresAt.UTC(), d.CreatedAt.UTC()
	d.LastUsedAt = nullTimeToPtr(last)
	return &d, nil
}

func (r *deviceRepo) Create(ctx context.Context, d repository.TrustedDevice) error {
	const query = `
		INSERT INTO trusted_device (id, user_id, token_hash, device_label, fingerprint, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.UserID, d.TokenHash, d.DeviceLabel, d.Fingerprint, utc(d.ExpiresAt), utc(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: create trusted device: %w", mapErr(err))
	}
	return nil
}

func (r *deviceRepo) GetByTokenHash(ctx context.Context, tokenHash, userID string) (*repository.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_device WHERE token_hash = ?`
	args := []any{tokenHash}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("sqlite: get trusted device: %w", mapErr(err))
	}
	return d, nil
}

func (r *deviceRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE trusted_device SET last_used_at = ? WHERE id = ?`, utc(at), id); err != nil {
		return fmt.Errorf("sqlite: touch trusted device: %w", err)
	}
	return nil
}

func (r *deviceRepo) DeleteIfExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_device WHERE id = ? AND expires_at <= ?`, id, utc(now))
	if err != nil {
		return false, fmt.Errorf("sqlite: delete expired device: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *deviceRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_device WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired devices: %w", err)
	}
	return res.RowsAffected()
}

func (r *deviceRepo) ListByUser(ctx context.Context, userID string) ([]repository.TrustedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM trusted_device WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trusted devices: %w", err)
	}
	defer rows.Close()

	var out []repository.TrustedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan trusted device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *deviceRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_device WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: delete trusted device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *deviceRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM trusted_device WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete trusted devices: %w", err)
	}
	return res.RowsAffected()
}

// ─── AuditRepository ───

type auditRepo struct{ db *sql.DB }

var _ repository.AuditRepository = (*auditRepo)(nil)

func (r *auditRepo) Append(ctx context.Context, e repository.SecurityAuditEvent) error {
	const query = `
		INSERT INTO security_audit_log (id, user_id, event_type, ip, user_agent, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var meta any
	if e.Metadata != nil {
		meta = string(e.Metadata)
	}
	_, err := r.db.ExecContext(ctx, query, e.ID, e.UserID, string(e.EventType), e.IP, e.UserAgent, meta, utc(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append audit event: %w", mapErr(err))
	}
	return nil
}

func (r *auditRepo) Recent(ctx context.Context, userID string, limit int) ([]repository.SecurityAuditEvent, error) {
	const query = `
		SELECT id, user_id, event_type, ip, user_agent, metadata, created_at
		FROM security_audit_log WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent audit events: %w", err)
	}
	defer rows.Close()

	var out []repository.SecurityAuditEvent
	for rows.Next() {
		var e repository.SecurityAuditEvent
		var et string
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &et, &e.IP, &e.UserAgent, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit event: %w", err)
		}
		e.EventType = repository.AuditEventType(et)
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM security_audit_log WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete audit events: %w", err)
	}
	return res.RowsAffected()
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM security_audit_log WHERE created_at < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune audit events: %w", err)
	}
	return res.RowsAffected()
}
