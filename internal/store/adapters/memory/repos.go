package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
)

// ─── UserRepository ───

type userRepo struct{ db *DB }

var _ repository.UserRepository = (*userRepo)(nil)

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func (r *userRepo) Create(_ context.Context, in repository.CreateUserInput) (*repository.User, error) {
	email := normEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("memory: create user: email required: %w", repository.ErrInvalidInput)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.byEmail[email]; ok {
		return nil, repository.ErrConflict
	}
	now := time.Now().UTC()
	u := &repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		IsAdmin:      in.IsAdmin,
		PrivacyLevel: "private",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.db.users[u.ID] = u
	r.db.byEmail[email] = u.ID
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	id, ok := r.db.byEmail[normEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.db.users[id]
	return &cp, nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*repository.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) update(id string, fn func(u *repository.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *userRepo) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return r.update(userID, func(u *repository.User) { u.PasswordHash = hash })
}

func (r *userRepo) SetTOTPSecret(_ context.Context, userID, sealed string) error {
	return r.update(userID, func(u *repository.User) { u.TOTPSecret = &sealed })
}

func (r *userRepo) ClearTOTPSecret(_ context.Context, userID string) error {
	return r.update(userID, func(u *repository.User) { u.TOTPSecret = nil })
}

// Delete emula ON DELETE CASCADE.
func (r *userRepo) Delete(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.db.byEmail, u.Email)
	delete(r.db.users, userID)
	for id, t := range r.db.tokens {
		if t.UserID == userID {
			delete(r.db.tokens, id)
		}
	}
	for id, t := range r.db.apiToks {
		if t.UserID == userID {
			delete(r.db.apiToks, id)
		}
	}
	for id, c := range r.db.codes {
		if c.UserID == userID {
			delete(r.db.codes, id)
		}
	}
	for id, d := range r.db.devices {
		if d.UserID == userID {
			delete(r.db.devices, id)
		}
	}
	kept := r.db.events[:0]
	for _, e := range r.db.events {
		if e.UserID != userID {
			kept = append(kept, e)
		}
	}
	r.db.events = kept
	return nil
}

// ─── AuthTokenRepository ───

type authTokenRepo struct{ db *DB }

var _ repository.AuthTokenRepository = (*authTokenRepo)(nil)

func (r *authTokenRepo) Create(_ context.Context, in repository.CreateAuthTokenInput) (*repository.AuthToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.userExists(in.UserID) {
		return nil, fmt.Errorf("memory: auth token: unknown user: %w", repository.ErrInvalidInput)
	}
	for _, t := range r.db.tokens {
		if t.TokenHash == in.TokenHash {
			return nil, repository.ErrConflict
		}
	}
	t := &repository.AuthToken{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		TokenHash:   in.TokenHash,
		DeviceLabel: in.DeviceLabel,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	r.db.tokens[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *authTokenRepo) GetByHash(_ context.Context, tokenHash string) (*repository.AuthToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *authTokenRepo) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.tokens, id)
	return nil
}

func (r *authTokenRepo) DeleteByUser(_ context.Context, userID, exceptID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, t := range r.db.tokens {
		if t.UserID == userID && id != exceptID {
			delete(r.db.tokens, id)
			n++
		}
	}
	return n, nil
}

func (r *authTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, t := range r.db.tokens {
		if t.Expired(now) {
			delete(r.db.tokens, id)
			n++
		}
	}
	return n, nil
}

// ─── APITokenRepository ───

type apiTokenRepo struct{ db *DB }

var _ repository.APITokenRepository = (*apiTokenRepo)(nil)

func (r *apiTokenRepo) Create(_ context.Context, userID, tokenHash, label string) (*repository.APIToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.userExists(userID) {
		return nil, fmt.Errorf("memory: api token: unknown user: %w", repository.ErrInvalidInput)
	}
	for _, t := range r.db.apiToks {
		if t.TokenHash == tokenHash {
			return nil, repository.ErrConflict
		}
	}
	t := &repository.APIToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	r.db.apiToks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *apiTokenRepo) GetByHash(_ context.Context, tokenHash string) (*repository.APIToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range r.db.apiToks {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *apiTokenRepo) ListByUser(_ context.Context, userID string) ([]repository.APIToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []repository.APIToken
	for _, t := range r.db.apiToks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *apiTokenRepo) Delete(_ context.Context, userID, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.apiToks[id]
	if !ok || t.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.db.apiToks, id)
	return nil
}

// ─── RecoveryCodeRepository ───

type recoveryRepo struct{ db *DB }

var _ repository.RecoveryCodeRepository = (*recoveryRepo)(nil)

func (r *recoveryRepo) ReplaceForUser(_ context.Context, userID string, codes []repository.RecoveryCode) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.userExists(userID) {
		return fmt.Errorf("memory: recovery codes: unknown user: %w", repository.ErrInvalidInput)
	}
	for id, c := range r.db.codes {
		if c.UserID == userID {
			delete(r.db.codes, id)
		}
	}
	for _, c := range codes {
		c.UserID = userID
		r.db.codes[c.ID] = &c
	}
	return nil
}

func (r *recoveryRepo) list(userID string, unusedOnly bool) []repository.RecoveryCode {
	var out []repository.RecoveryCode
	for _, c := range r.db.codes {
		if c.UserID != userID || (unusedOnly && c.Used()) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *recoveryRepo) ListUnused(_ context.Context, userID string) ([]repository.RecoveryCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.list(userID, true), nil
}

func (r *recoveryRepo) ListByUser(_ context.Context, userID string) ([]repository.RecoveryCode, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.list(userID, false), nil
}

func (r *recoveryRepo) MarkUsed(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.codes[id]
	if !ok || c.Used() {
		return false, nil
	}
	t := at
	c.UsedAt = &t
	return true, nil
}

func (r *recoveryRepo) CountUnused(_ context.Context, userID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.list(userID, true)), nil
}

func (r *recoveryRepo) DeleteByUser(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, c := range r.db.codes {
		if c.UserID == userID {
			delete(r.db.codes, id)
		}
	}
	return nil
}

// ─── TrustedDeviceRepository ───

type deviceRepo struct{ db *DB }

var _ repository.TrustedDeviceRepository = (*deviceRepo)(nil)

func (r *deviceRepo) Create(_ context.Context, d repository.TrustedDevice) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.userExists(d.UserID) {
		return fmt.Errorf("memory: trusted device: unknown user: %w", repository.ErrInvalidInput)
	}
	for _, x := range r.db.devices {
		if x.TokenHash == d.TokenHash {
			return repository.ErrConflict
		}
	}
	r.db.devices[d.ID] = &d
	return nil
}

func (r *deviceRepo) GetByTokenHash(_ context.Context, tokenHash, userID string) (*repository.TrustedDevice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, d := range r.db.devices {
		if d.TokenHash == tokenHash && (userID == "" || d.UserID == userID) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *deviceRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := at
	d.LastUsedAt = &t
	return nil
}

func (r *deviceRepo) DeleteIfExpired(_ context.Context, id string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.devices[id]
	if !ok || !d.Expired(now) {
		return false, nil
	}
	delete(r.db.devices, id)
	return true, nil
}

func (r *deviceRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, d := range r.db.devices {
		if d.Expired(now) {
			delete(r.db.devices, id)
			n++
		}
	}
	return n, nil
}

func (r *deviceRepo) ListByUser(_ context.Context, userID string) ([]repository.TrustedDevice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []repository.TrustedDevice
	for _, d := range r.db.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *deviceRepo) Delete(_ context.Context, userID, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.devices[id]
	if !ok || d.UserID != userID {
		return repository.ErrNotFound
	}
	delete(r.db.devices, id)
	return nil
}

func (r *deviceRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, d := range r.db.devices {
		if d.UserID == userID {
			delete(r.db.devices, id)
			n++
		}
	}
	return n, nil
}

// ─── AuditRepository ───

type auditRepo struct{ db *DB }

var _ repository.AuditRepository = (*auditRepo)(nil)

func (r *auditRepo) Append(_ context.Context, e repository.SecurityAuditEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if !r.db.userExists(e.UserID) {
		return fmt.Errorf("memory: audit: unknown user: %w", repository.ErrInvalidInput)
	}
	r.db.events = append(r.db.events, e)
	return nil
}

func (r *auditRepo) Recent(_ context.Context, userID string, limit int) ([]repository.SecurityAuditEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []repository.SecurityAuditEvent
	// más nuevos primero; a igual timestamp gana el último insertado
	for i := len(r.db.events) - 1; i >= 0; i-- {
		if r.db.events[i].UserID == userID {
			out = append(out, r.db.events[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *auditRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	kept := r.db.events[:0]
	for _, e := range r.db.events {
		if e.UserID == userID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.db.events = kept
	return n, nil
}

func (r *auditRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	kept := r.db.events[:0]
	for _, e := range r.db.events {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.db.events = kept
	return n, nil
}
