package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// ─── UserRepository ───

type userRepo struct{ pool *pgxpool.Pool }

var _ repository.UserRepository = (*userRepo)(nil)

const userColumns = `id, email, password_hash, totp_secret, is_admin, privacy_level, created_at, updated_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TOTPSecret, &u.IsAdmin, &u.PrivacyLevel, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, fmt.Errorf("pg: create user: email required: %w", repository.ErrInvalidInput)
	}
	const query = `
		INSERT INTO app_user (id, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, query, uuid.NewString(), email, in.PasswordHash, in.IsAdmin))
	if err != nil {
		return nil, fmt.Errorf("pg: create user: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user WHERE lower(email) = $1 LIMIT 1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, fmt.Errorf("pg: get user by email: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	query := `SELECT ` + userColumns + ` FROM app_user WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("pg: get user by id: %w", mapErr(err))
	}
	return u, nil
}

func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pg: %s: %w", op, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pg: %s: %w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, "update password", `UPDATE app_user SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
}

func (r *userRepo) SetTOTPSecret(ctx context.Context, userID, sealed string) error {
	return r.exec(ctx, "set totp", `UPDATE app_user SET totp_secret = $2, updated_at = NOW() WHERE id = $1`, userID, sealed)
}

func (r *userRepo) ClearTOTPSecret(ctx context.Context, userID string) error {
	return r.exec(ctx, "clear totp", `UPDATE app_user SET totp_secret = NULL, updated_at = NOW() WHERE id = $1`, userID)
}

func (r *userRepo) Delete(ctx context.Context, userID string) error {
	return r.exec(ctx, "delete user", `DELETE FROM app_user WHERE id = $1`, userID)
}

// ─── AuthTokenRepository ───

type authTokenRepo struct{ pool *pgxpool.Pool }

var _ repository.AuthTokenRepository = (*authTokenRepo)(nil)

func (r *authTokenRepo) Create(ctx context.Context, in repository.CreateAuthTokenInput) (*repository.AuthToken, error) {
	const query = `
		INSERT INTO auth_token (id, user_id, token_hash, device_label, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, user_id, token_hash, device_label, expires_at, created_at
	`
	var t repository.AuthToken
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), in.UserID, in.TokenHash, in.DeviceLabel, in.ExpiresAt).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceLabel, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pg: create auth token: %w", mapErr(err))
	}
	return &t, nil
}

func (r *authTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.AuthToken, error) {
	const query = `
		SELECT id, user_id, token_hash, device_label, expires_at, created_at
		FROM auth_token WHERE token_hash = $1
	`
	var t repository.AuthToken
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceLabel, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pg: get auth token: %w", mapErr(err))
	}
	return &t, nil
}

func (r *authTokenRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM auth_token WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pg: delete auth token: %w", err)
	}
	return nil
}

func (r *authTokenRepo) DeleteByUser(ctx context.Context, userID, exceptID string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	// id es uuid: no se puede comparar contra ''.
	if exceptID == "" {
		tag, err = r.pool.Exec(ctx, `DELETE FROM auth_token WHERE user_id = $1`, userID)
	} else {
		tag, err = r.pool.Exec(ctx, `DELETE FROM auth_token WHERE user_id = $1 AND id <> $2`, userID, exceptID)
	}
	if err != nil {
		return 0, fmt.Errorf("pg: delete auth tokens by user: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *authTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_token WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pg: delete expired auth tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── APITokenRepository ───

type apiTokenRepo struct{ pool *pgxpool.Pool }

var _ repository.APITokenRepository = (*apiTokenRepo)(nil)

func (r *apiTokenRepo) Create(ctx context.Context, userID, tokenHash, label string) (*repository.APIToken, error) {
	const query = `
		INSERT INTO api_token (id, user_id, token_hash, label, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, token_hash, label, created_at
	`
	var t repository.APIToken
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), userID, tokenHash, label).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Label, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pg: create api token: %w", mapErr(err))
	}
	return &t, nil
}

func (r *apiTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.APIToken, error) {
	const query = `SELECT id, user_id, token_hash, label, created_at FROM api_token WHERE token_hash = $1`
	var t repository.APIToken
	if err := r.pool.QueryRow(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Label, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("pg: get api token: %w", mapErr(err))
	}
	return &t, nil
}

func (r *apiTokenRepo) ListByUser(ctx context.Context, userID string) ([]repository.APIToken, error) {
	const query = `
		SELECT id, user_id, token_hash, label, created_at
		FROM api_token WHERE user_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list api tokens: %w", err)
	}
	defer rows.Close()

	var out []repository.APIToken
	for rows.Next() {
		var t repository.APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Label, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan api token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *apiTokenRepo) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM api_token WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("pg: delete api token: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── RecoveryCodeRepository ───

type recoveryRepo struct{ pool *pgxpool.Pool }

var _ repository.RecoveryCodeRepository = (*recoveryRepo)(nil)

func (r *recoveryRepo) ReplaceForUser(ctx context.Context, userID string, codes []repository.RecoveryCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM recovery_code WHERE user_id = $1`, userID)
	for _, c := range codes {
		batch.Queue(`INSERT INTO recovery_code (id, user_id, code_hash, created_at) VALUES ($1, $2, $3, $4)`,
			c.ID, userID, c.CodeHash, c.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pg: replace recovery codes: %w", mapErr(err))
	}
	return tx.Commit(ctx)
}

func (r *recoveryRepo) query(ctx context.Context, query string, args ...any) ([]repository.RecoveryCode, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list recovery codes: %w", err)
	}
	defer rows.Close()

	var out []repository.RecoveryCode
	for rows.Next() {
		var c repository.RecoveryCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt, &c.UsedAt); err != nil {
			return nil, fmt.Errorf("pg: scan recovery code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *recoveryRepo) ListUnused(ctx context.Context, userID string) ([]repository.RecoveryCode, error) {
	return r.query(ctx, `
		SELECT id, user_id, code_hash, created_at, used_at
		FROM recovery_code WHERE user_id = $1 AND used_at IS NULL ORDER BY created_at, id
	`, userID)
}

func (r *recoveryRepo) ListByUser(ctx context.Context, userID string) ([]repository.RecoveryCode, error) {
	return r.query(ctx, `
		SELECT id, user_id, code_hash, created_at, used_at
		FROM recovery_code WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
}

func (r *recoveryRepo) MarkUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE recovery_code SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("pg: mark recovery code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *recoveryRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recovery_code WHERE user_id = $1 AND used_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pg: count recovery codes: %w", err)
	}
	return n, nil
}

func (r *recoveryRepo) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM recovery_code WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("pg: delete recovery codes: %w", err)
	}
	return nil
}

// ─── TrustedDeviceRepository ───

type deviceRepo struct{ pool *pgxpool.Pool }

var _ repository.TrustedDeviceRepository = (*deviceRepo)(nil)

const deviceColumns = `id, user_id, token_hash, device_label, fingerprint, expires_at, last_used_at, created_at`

func scanDevice(row pgx.Row) (*repository.TrustedDevice, error) {
	var d repository.TrustedDevice
	if err := row.Scan(&d.ID, &d.UserID, &d.TokenHash, &d.DeviceLabel, &d.Fingerprint, &d.ExpiresAt, &d.LastUsedAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepo) Create(ctx context.Context, d repository.TrustedDevice) error {
	const query = `
		INSERT INTO trusted_device (id, user_id, token_hash, device_label, fingerprint, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, d.ID, d.UserID, d.TokenHash, d.DeviceLabel, d.Fingerprint, d.ExpiresAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: create trusted device: %w", mapErr(err))
	}
	return nil
}

func (r *deviceRepo) GetByTokenHash(ctx context.Context, tokenHash, userID string) (*repository.TrustedDevice, error) {
	var row pgx.Row
	if userID != "" {
		row = r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM trusted_device WHERE token_hash = $1 AND user_id = $2`, tokenHash, userID)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM trusted_device WHERE token_hash = $1`, tokenHash)
	}
	d, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("pg: get trusted device: %w", mapErr(err))
	}
	return d, nil
}

func (r *deviceRepo) Touch(ctx context.Context, id string, at time.Time) error {
	if _, err := r.pool.Exec(ctx, `UPDATE trusted_device SET last_used_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("pg: touch trusted device: %w", err)
	}
	return nil
}

func (r *deviceRepo) DeleteIfExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trusted_device WHERE id = $1 AND expires_at <= $2`, id, now)
	if err != nil {
		return false, fmt.Errorf("pg: delete expired device: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *deviceRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trusted_device WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pg: delete expired devices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *deviceRepo) ListByUser(ctx context.Context, userID string) ([]repository.TrustedDevice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deviceColumns+` FROM trusted_device WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list trusted devices: %w", err)
	}
	defer rows.Close()

	var out []repository.TrustedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: scan trusted device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *deviceRepo) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trusted_device WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("pg: delete trusted device: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *deviceRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM trusted_device WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: delete trusted devices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─── AuditRepository ───

type auditRepo struct{ pool *pgxpool.Pool }

var _ repository.AuditRepository = (*auditRepo)(nil)

func (r *auditRepo) Append(ctx context.Context, e repository.SecurityAuditEvent) error {
	const query = `
		INSERT INTO security_audit_log (id, user_id, event_type, ip, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, e.ID, e.UserID, string(e.EventType), e.IP, e.UserAgent, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: append audit event: %w", mapErr(err))
	}
	return nil
}

func (r *auditRepo) Recent(ctx context.Context, userID string, limit int) ([]repository.SecurityAuditEvent, error) {
	const query = `
		SELECT id, user_id, event_type, ip, user_agent, metadata, created_at
		FROM security_audit_log WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: recent audit events: %w", err)
	}
	defer rows.Close()

	var out []repository.SecurityAuditEvent
	for rows.Next() {
		var e repository.SecurityAuditEvent
		var et string
		if err := rows.Scan(&e.ID, &e.UserID, &et, &e.IP, &e.UserAgent, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg: scan audit event: %w", err)
		}
		e.EventType = repository.AuditEventType(et)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_audit_log WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: delete audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *auditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pg: prune audit events: %w", err)
	}
	return tag.RowsAffected(), nil
}
