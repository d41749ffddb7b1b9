// Package storetest contiene la batería de pruebas que todo adapter debe pasar.
// Cada adapter la invoca desde su propio _test.go con una conexión migrada.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/store"
)

// Run ejecuta todos los casos contra conn.
func Run(t *testing.T, conn store.AdapterConnection) {
	t.Helper()
	t.Run("Users", func(t *testing.T) { testUsers(t, conn) })
	t.Run("AuthTokens", func(t *testing.T) { testAuthTokens(t, conn) })
	t.Run("APITokens", func(t *testing.T) { testAPITokens(t, conn) })
	t.Run("RecoveryCodes", func(t *testing.T) { testRecoveryCodes(t, conn) })
	t.Run("TrustedDevices", func(t *testing.T) { testTrustedDevices(t, conn) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, conn) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascade(t, conn) })
}

// NewUser crea un usuario con email único.
func NewUser(t *testing.T, conn store.AdapterConnection) *repository.User {
	t.Helper()
	u, err := conn.Users().Create(context.Background(), repository.CreateUserInput{
		Email:        fmt.Sprintf("u-%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
	})
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	users := conn.Users()

	u := NewUser(t, conn)
	assert.False(t, u.HasTOTP())

	_, err := users.Create(ctx, repository.CreateUserInput{Email: u.Email})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := users.GetByEmail(ctx, "  "+strings.ToUpper(u.Email)+" ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.GetByEmail(ctx, "nobody@example.com")
	assert.True(t, repository.IsNotFound(err))

	require.NoError(t, users.SetTOTPSecret(ctx, u.ID, "sealed"))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.HasTOTP())

	require.NoError(t, users.ClearTOTPSecret(ctx, u.ID))
	require.NoError(t, users.UpdatePasswordHash(ctx, u.ID, "new-hash"))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.HasTOTP())
	assert.Equal(t, "new-hash", got.PasswordHash)

	sys, err := users.GetByID(ctx, repository.SystemUserID)
	require.NoError(t, err)
	assert.Empty(t, sys.PasswordHash)
}

func testAuthTokens(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	repo := conn.AuthTokens()
	u := NewUser(t, conn)
	now := time.Now().UTC()

	live, err := repo.Create(ctx, repository.CreateAuthTokenInput{UserID: u.ID, TokenHash: uuid.NewString(), DeviceLabel: "web", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	old, err := repo.Create(ctx, repository.CreateAuthTokenInput{UserID: u.ID, TokenHash: uuid.NewString(), ExpiresAt: now.Add(-time.Hour)})
	require.NoError(t, err)
	other, err := repo.Create(ctx, repository.CreateAuthTokenInput{UserID: u.ID, TokenHash: uuid.NewString(), ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	got, err := repo.GetByHash(ctx, live.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)
	assert.WithinDuration(t, live.ExpiresAt, got.ExpiresAt, time.Millisecond)
	assert.False(t, got.Expired(now))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	_, err = repo.GetByHash(ctx, old.TokenHash)
	assert.True(t, repository.IsNotFound(err))

	n, err = repo.DeleteByUser(ctx, u.ID, live.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = repo.GetByHash(ctx, other.TokenHash)
	assert.True(t, repository.IsNotFound(err))

	require.NoError(t, repo.Delete(ctx, live.ID))
	_, err = repo.GetByHash(ctx, live.TokenHash)
	assert.True(t, repository.IsNotFound(err))
}

func testAPITokens(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	repo := conn.APITokens()
	u := NewUser(t, conn)
	intruder := NewUser(t, conn)

	tok, err := repo.Create(ctx, u.ID, uuid.NewString(), "jellyfin")
	require.NoError(t, err)

	got, err := repo.GetByHash(ctx, tok.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	list, err := repo.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.Delete(ctx, intruder.ID, tok.ID), repository.ErrNotFound)
	require.NoError(t, repo.Delete(ctx, u.ID, tok.ID))
}

func testRecoveryCodes(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	repo := conn.RecoveryCodes()
	u := NewUser(t, conn)
	now := time.Now().UTC()

	batch := func(prefix string) []repository.RecoveryCode {
		out := make([]repository.RecoveryCode, 0, 10)
		for i := 0; i < 10; i++ {
			c, err := repository.NewRecoveryCode(u.ID, fmt.Sprintf("%s-%d", prefix, i), now)
			require.NoError(t, err)
			out = append(out, c)
		}
		return out
	}

	require.NoError(t, repo.ReplaceForUser(ctx, u.ID, batch("old")))
	require.NoError(t, repo.ReplaceForUser(ctx, u.ID, batch("new")))

	all, err := repo.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, all, 10)
	for _, c := range all {
		assert.Contains(t, c.CodeHash, "new-")
	}

	first := all[0]
	ok, err := repo.MarkUsed(ctx, first.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(ctx, first.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "un código usado no se puede volver a consumir")

	unused, err := repo.ListUnused(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, unused, 9)
	for _, c := range unused {
		assert.NotEqual(t, first.ID, c.ID)
		assert.False(t, c.Used())
	}

	n, err := repo.CountUnused(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	require.NoError(t, repo.DeleteByUser(ctx, u.ID))
	n, err = repo.CountUnused(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testTrustedDevices(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	repo := conn.TrustedDevices()
	u := NewUser(t, conn)
	other := NewUser(t, conn)
	now := time.Now().UTC()

	d, err := repository.NewTrustedDevice(u.ID, uuid.NewString(), "Firefox on Linux", "abcd", now, now.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, d))

	got, err := repo.GetByTokenHash(ctx, d.TokenHash, u.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Nil(t, got.LastUsedAt)

	_, err = repo.GetByTokenHash(ctx, d.TokenHash, other.ID)
	assert.True(t, repository.IsNotFound(err))

	_, err = repo.GetByTokenHash(ctx, d.TokenHash, "")
	require.NoError(t, err)

	require.NoError(t, repo.Touch(ctx, d.ID, now.Add(time.Minute)))
	got, err = repo.GetByTokenHash(ctx, d.TokenHash, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)

	deleted, err := repo.DeleteIfExpired(ctx, d.ID, now.Add(29*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.DeleteIfExpired(ctx, d.ID, now.Add(31*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, deleted)

	d2, _ := repository.NewTrustedDevice(u.ID, uuid.NewString(), "", "", now, now.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, d2))
	assert.ErrorIs(t, repo.Delete(ctx, other.ID, d2.ID), repository.ErrNotFound)

	list, err := repo.ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	n, err := repo.DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testAudit(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	repo := conn.Audit()
	u := NewUser(t, conn)
	base := time.Now().UTC().Add(-time.Hour)

	for i, et := range []repository.AuditEventType{repository.EventLoginFailedPassword, repository.EventLoginSuccess, repository.EventLogout} {
		var meta []byte
		if et == repository.EventLoginSuccess {
			meta = []byte(`{"trusted_device":true}`)
		}
		e, err := repository.NewAuditEvent(u.ID, et, "10.0.0.1", "curl/8", meta, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, e))
	}

	sys, err := repository.NewAuditEvent(repository.SystemUserID, repository.EventRateLimitViolation, "", "", nil, base)
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, sys))

	got, err := repo.Recent(ctx, u.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, repository.EventLogout, got[0].EventType)
	assert.Nil(t, got[0].Metadata)
	assert.Equal(t, repository.EventLoginSuccess, got[1].EventType)
	assert.JSONEq(t, `{"trusted_device":true}`, string(got[1].Metadata))

	n, err := repo.DeleteOlderThan(ctx, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	n, err = repo.DeleteByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func testCascade(t *testing.T, conn store.AdapterConnection) {
	ctx := context.Background()
	u := NewUser(t, conn)
	now := time.Now().UTC()

	tok, err := conn.AuthTokens().Create(ctx, repository.CreateAuthTokenInput{UserID: u.ID, TokenHash: uuid.NewString(), ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	d, _ := repository.NewTrustedDevice(u.ID, uuid.NewString(), "", "", now, now.Add(time.Hour))
	require.NoError(t, conn.TrustedDevices().Create(ctx, d))
	e, _ := repository.NewAuditEvent(u.ID, repository.EventLogout, "", "", nil, now)
	require.NoError(t, conn.Audit().Append(ctx, e))

	require.NoError(t, conn.Users().Delete(ctx, u.ID))

	_, err = conn.AuthTokens().GetByHash(ctx, tok.TokenHash)
	assert.True(t, repository.IsNotFound(err))
	_, err = conn.TrustedDevices().GetByTokenHash(ctx, d.TokenHash, "")
	assert.True(t, repository.IsNotFound(err))
	events, err := conn.Audit().Recent(ctx, u.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.True(t, repository.IsNotFound(conn.Users().Delete(ctx, u.ID)))
}
