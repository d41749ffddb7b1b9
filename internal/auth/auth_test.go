package auth

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/cache"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/mfa/devices"
	"github.com/dropDatabas3/cinelog/internal/mfa/recovery"
	"github.com/dropDatabas3/cinelog/internal/rate"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/security/secretbox"
	"github.com/dropDatabas3/cinelog/internal/security/totp"
	"github.com/dropDatabas3/cinelog/internal/session"
	"github.com/dropDatabas3/cinelog/internal/store/adapters/memory"
)

const (
	testKey  = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	testUA   = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	testIP   = "192.0.2.10"
	goodPass = "correct horse battery"
)

var fastParams = password.Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	svc      *Service
	db       *memory.DB
	clk      *fakeClock
	box      *secretbox.Box
	sessions *session.CacheStore
	audit    *audit.Service
	recovery *recovery.Manager
}

func newEnv(t *testing.T, mutate ...func(*Config)) *env {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	db := memory.New()

	box, err := secretbox.New(testKey)
	require.NoError(t, err)

	rec := recovery.NewManager(db.RecoveryCodes())
	rec.Params = fastParams
	rec.Clock = clk.now

	dev := devices.NewManager(db.TrustedDevices(), "salt")
	dev.Clock = clk.now

	aud := audit.NewService(db.Audit())
	aud.Clock = clk.now

	win := rate.NewMemoryWindow()
	win.Clock = clk.now

	sessions := session.NewCacheStore(cache.NewMemory("test"), time.Hour)

	cfg := DefaultConfig()
	cfg.PasswordParams = fastParams
	for _, m := range mutate {
		m(&cfg)
	}

	svc := NewService(Deps{
		Users:      db.Users(),
		AuthTokens: db.AuthTokens(),
		APITokens:  db.APITokens(),
		Recovery:   rec,
		Devices:    dev,
		Audit:      aud,
		Sessions:   sessions,
		Limiter:    rate.NewLimiter(win),
		Box:        box,
		Config:     cfg,
	})
	svc.Clock = clk.now

	return &env{svc: svc, db: db, clk: clk, box: box, sessions: sessions, audit: aud, recovery: rec}
}

// user crea un usuario; con withTOTP también le sella un secreto y lo devuelve.
func (e *env) user(t *testing.T, email string, withTOTP bool) (*repository.User, string) {
	t.Helper()
	ctx := context.Background()
	h, err := password.Hash(fastParams, goodPass)
	require.NoError(t, err)
	u, err := e.db.Users().Create(ctx, repository.CreateUserInput{Email: email, PasswordHash: h})
	require.NoError(t, err)
	if !withTOTP {
		return u, ""
	}
	key, err := totp.Generate("cinelog", email)
	require.NoError(t, err)
	sealed, err := e.box.Seal(key.Secret)
	require.NoError(t, err)
	require.NoError(t, e.db.Users().SetTOTPSecret(ctx, u.ID, sealed))
	u, err = e.db.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	return u, key.Secret
}

func (e *env) events(t *testing.T, userID string) []audit.Event {
	t.Helper()
	evs, err := e.audit.RecentEvents(context.Background(), userID, 100)
	require.NoError(t, err)
	return evs
}

func (e *env) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.Code(secret, e.clk.now())
	require.NoError(t, err)
	return c
}

// wrongCode devuelve un código de 6 dígitos que no es válido en ningún paso de la ventana.
func (e *env) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	valid := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.Code(secret, e.clk.now().Add(d))
		require.NoError(t, err)
		valid[c] = true
	}
	for i := 0; ; i++ {
		c := fmt.Sprintf("%06d", i)
		if !valid[c] {
			return c
		}
	}
}

func meta() RequestMeta {
	return RequestMeta{IP: testIP, UserAgent: testUA}
}

func cookie(eff Effects, name string) *http.Cookie {
	for _, c := range eff.SetCookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func types(evs []audit.Event) []repository.AuditEventType {
	out := make([]repository.AuditEventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func TestLogin_NoSecondFactor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	out, err := e.svc.Login(ctx, LoginInput{Email: " Ana@Example.com ", Password: goodPass, Client: ClientWeb}, meta())
	require.NoError(t, err)
	require.True(t, out.Authenticated(), "%+v", out.Failure)
	assert.Equal(t, StateAuthenticated, out.State)
	assert.Equal(t, u.ID, out.UserID)
	assert.NoError(t, out.Err())

	evs := e.events(t, u.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, repository.EventLoginSuccess, evs[0].Type)
	assert.Equal(t, testIP, evs[0].IP)

	uid, ok, err := e.svc.IsValidToken(ctx, out.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u.ID, uid)
	assert.Equal(t, e.clk.now().Add(24*time.Hour), out.TokenExpiresAt)

	v, ok, err := e.sessions.Get(ctx, out.SessionID, session.KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, u.ID, v)

	sc := cookie(out.Effects, "cinelog_session")
	require.NotNil(t, sc)
	assert.Equal(t, out.SessionID, sc.Value)
	bc := cookie(out.Effects, "cinelog_token")
	require.NotNil(t, bc)
	assert.True(t, bc.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, bc.SameSite)
	assert.False(t, bc.Secure)
	assert.Nil(t, cookie(out.Effects, "cinelog_trusted_device"))
}

func TestLogin_RememberMeAndSecure(t *testing.T) {
	e := newEnv(t)
	e.user(t, "ana@example.com", false)
	m := meta()
	m.Secure = true

	out, err := e.svc.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: goodPass, RememberMe: true, Client: ClientWeb}, m)
	require.NoError(t, err)
	require.True(t, out.Authenticated())
	assert.Equal(t, e.clk.now().Add(87600*time.Hour), out.TokenExpiresAt)
	assert.True(t, cookie(out.Effects, "cinelog_token").Secure)
}

func TestLogin_APIClientGetsNoBearerCookie(t *testing.T) {
	e := newEnv(t)
	e.user(t, "ana@example.com", false)

	out, err := e.svc.Login(context.Background(), LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)
	require.True(t, out.Authenticated())
	assert.NotEmpty(t, out.Token)
	assert.Nil(t, cookie(out.Effects, "cinelog_token"))
}

func TestLogin_SessionRegenerated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "ana@example.com", false)

	pre, err := e.sessions.Start(ctx, "")
	require.NoError(t, err)
	m := meta()
	m.SessionID = pre.ID

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, m)
	require.NoError(t, err)
	require.True(t, out.Authenticated())
	assert.NotEqual(t, pre.ID, out.SessionID)

	_, ok, err := e.sessions.Get(ctx, pre.ID, session.KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok, "el id previo al login no queda autenticado")
}

func TestLogin_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	unknown, err := e.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	wrong, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "nope"}, meta())
	require.NoError(t, err)

	require.NotNil(t, unknown.Failure)
	require.NotNil(t, wrong.Failure)
	assert.Equal(t, FailureInvalidCredentials, unknown.Failure.Kind)
	assert.Equal(t, FailureInvalidCredentials, wrong.Failure.Kind)
	assert.Equal(t, wrong.Failure.Message, unknown.Failure.Message)
	assert.Equal(t, wrong.Err().Error(), unknown.Err().Error())
	assert.ErrorIs(t, wrong.Err(), ErrInvalidCredentials)
	assert.Equal(t, StateRejected, wrong.State)

	sys := e.events(t, repository.SystemUserID)
	require.Len(t, sys, 1)
	assert.Equal(t, repository.EventLoginFailedPassword, sys[0].Type)
	assert.Len(t, sys[0].Metadata["email_hash"], 64)

	evs := e.events(t, u.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, repository.EventLoginFailedPassword, evs[0].Type)
}

func TestLogin_TOTPRequiredWritesNoAudit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", true)

	// un evento previo cualquiera
	_, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "bad"}, meta())
	require.NoError(t, err)
	before := len(e.events(t, u.ID))

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, FailureMissingTOTPCode, out.Failure.Kind)
	assert.Equal(t, StateAwaitingSecondFactor, out.State)
	assert.ErrorIs(t, out.Err(), ErrMissingTOTPCode)
	assert.Empty(t, out.Token)
	assert.Len(t, e.events(t, u.ID), before)
}

func TestLogin_TOTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, secret := e.user(t, "ana@example.com", true)

	bad, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TOTPCode: e.wrongCode(t, secret)}, meta())
	require.NoError(t, err)
	require.NotNil(t, bad.Failure)
	assert.Equal(t, FailureInvalidTOTPCode, bad.Failure.Kind)

	good, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TOTPCode: e.code(t, secret)}, meta())
	require.NoError(t, err)
	require.True(t, good.Authenticated())

	assert.Equal(t, []repository.AuditEventType{
		repository.EventLoginSuccess,
		repository.EventLoginFailedTOTP,
	}, types(e.events(t, u.ID)))
}

func TestLogin_RecoveryCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", true)
	codes, err := e.recovery.Generate(ctx, u.ID)
	require.NoError(t, err)

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, RecoveryCode: codes[0]}, meta())
	require.NoError(t, err)
	require.True(t, out.Authenticated())
	assert.True(t, out.UsedRecoveryCode)
	assert.Equal(t, 9, out.RemainingRecoveryCodes)

	evs := e.events(t, u.ID)
	require.Len(t, evs, 1)
	assert.Equal(t, repository.EventRecoveryCodeUsed, evs[0].Type)
	assert.EqualValues(t, 9, evs[0].Metadata["remaining"])

	// reuso: falla y, sin TOTP, termina en código inválido
	again, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, RecoveryCode: codes[0]}, meta())
	require.NoError(t, err)
	require.NotNil(t, again.Failure)
	assert.Equal(t, FailureInvalidTOTPCode, again.Failure.Kind)
	assert.Equal(t, repository.EventLoginFailedRecoveryCode, e.events(t, u.ID)[0].Type)
}

func TestLogin_RecoveryFallsThroughToTOTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, secret := e.user(t, "ana@example.com", true)

	out, err := e.svc.Login(ctx, LoginInput{
		Email:        "ana@example.com",
		Password:     goodPass,
		RecoveryCode: "AAAA-BBBB-CC",
		TOTPCode:     e.code(t, secret),
	}, meta())
	require.NoError(t, err)
	require.True(t, out.Authenticated())
	assert.False(t, out.UsedRecoveryCode)

	assert.Equal(t, []repository.AuditEventType{
		repository.EventLoginSuccess,
		repository.EventLoginFailedRecoveryCode,
	}, types(e.events(t, u.ID)))
}

func TestLogin_TrustedDevice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, secret := e.user(t, "ana@example.com", true)

	first, err := e.svc.Login(ctx, LoginInput{
		Email:       "ana@example.com",
		Password:    goodPass,
		TOTPCode:    e.code(t, secret),
		TrustDevice: true,
		Client:      ClientWeb,
	}, meta())
	require.NoError(t, err)
	require.True(t, first.Authenticated())
	dc := cookie(first.Effects, "cinelog_trusted_device")
	require.NotNil(t, dc)
	require.NotNil(t, first.TrustedDevice)
	assert.Equal(t, "Firefox on Linux", first.TrustedDevice.DeviceLabel)
	assert.Equal(t, repository.EventTrustedDeviceAdded, e.events(t, u.ID)[0].Type)

	m := meta()
	m.DeviceToken = dc.Value

	e.clk.advance(29 * 24 * time.Hour)
	second, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, m)
	require.NoError(t, err)
	require.True(t, second.Authenticated(), "%+v", second.Failure)
	ev := e.events(t, u.ID)[0]
	assert.Equal(t, repository.EventLoginSuccess, ev.Type)
	assert.Equal(t, true, ev.Metadata["trusted_device"])
	assert.Equal(t, first.TrustedDevice.ID, ev.Metadata["device_id"])
	assert.Nil(t, cookie(second.Effects, "cinelog_trusted_device"), "no se emite otro dispositivo")

	e.clk.advance(2 * 24 * time.Hour)
	third, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, m)
	require.NoError(t, err)
	require.NotNil(t, third.Failure)
	assert.Equal(t, FailureMissingTOTPCode, third.Failure.Kind)

	list, err := e.svc.ListDevices(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLogin_TrustDeviceIgnoredWithoutTOTPOrForAPI(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "ana@example.com", false)
	_, secret := e.user(t, "bob@example.com", true)

	a, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TrustDevice: true, Client: ClientWeb}, meta())
	require.NoError(t, err)
	assert.Nil(t, a.TrustedDevice)

	b, err := e.svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: goodPass, TOTPCode: e.code(t, secret), TrustDevice: true, Client: ClientAPI}, meta())
	require.NoError(t, err)
	require.True(t, b.Authenticated())
	assert.Nil(t, b.TrustedDevice)
}

func TestLogin_RateLimited(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.LoginLimit = rate.Limit{Max: 2, Window: time.Minute} })
	ctx := context.Background()
	e.user(t, "ana@example.com", false)

	for i := 0; i < 2; i++ {
		out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "bad"}, meta())
		require.NoError(t, err)
		assert.Equal(t, FailureInvalidCredentials, out.Failure.Kind)
	}
	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	require.NotNil(t, out.Failure)
	assert.Equal(t, FailureRateLimited, out.Failure.Kind)
	assert.Equal(t, time.Minute, out.Failure.RetryAfter)
	rl, ok := IsRateLimited(out.Err())
	require.True(t, ok)
	assert.Equal(t, "rate limit exceeded, retry in 60s", rl.Error())

	sys := e.events(t, repository.SystemUserID)
	require.NotEmpty(t, sys)
	assert.Equal(t, repository.EventRateLimitViolation, sys[0].Type)
	assert.Equal(t, "login_ip_"+testIP, sys[0].Metadata["key"])

	// otra IP no comparte ventana
	m := meta()
	m.IP = "198.51.100.7"
	other, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, m)
	require.NoError(t, err)
	assert.True(t, other.Authenticated())

	e.clk.advance(time.Minute)
	later, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	assert.True(t, later.Authenticated())
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)
	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, meta())
	require.NoError(t, err)

	m := meta()
	m.SessionID = out.SessionID
	m.BearerToken = out.Token
	m.DeviceToken = "keep-me"
	eff, err := e.svc.Logout(ctx, m)
	require.NoError(t, err)

	require.NotNil(t, cookie(eff, "cinelog_session"))
	assert.Equal(t, -1, cookie(eff, "cinelog_session").MaxAge)
	assert.Equal(t, -1, cookie(eff, "cinelog_token").MaxAge)
	assert.Nil(t, cookie(eff, "cinelog_trusted_device"), "la cookie de dispositivo sobrevive")

	_, ok, err := e.svc.IsValidToken(ctx, out.Token)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = e.svc.CurrentUserID(ctx, m)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, repository.EventLogout, e.events(t, u.ID)[0].Type)

	// logout anónimo: sin auditoría
	_, err = e.svc.Logout(ctx, meta())
	require.NoError(t, err)
	assert.Len(t, e.events(t, repository.SystemUserID), 0)
}

func TestIsValidToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)
	api, err := e.svc.CreateAPIToken(ctx, u.ID, "jellyfin")
	require.NoError(t, err)

	_, ok, err := e.svc.IsValidToken(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.svc.IsValidToken(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, ok)

	e.clk.advance(25 * time.Hour)
	_, ok, err = e.svc.IsValidToken(ctx, out.Token)
	require.NoError(t, err)
	assert.False(t, ok, "AuthToken vencido")
	_, err = e.db.AuthTokens().GetByHash(ctx, tokenHash(out.Token))
	assert.True(t, repository.IsNotFound(err), "se borra al presentarlo vencido")

	e.clk.advance(10 * 365 * 24 * time.Hour)
	uid, ok, err := e.svc.IsValidToken(ctx, api.Token)
	require.NoError(t, err)
	assert.True(t, ok, "los API tokens no vencen")
	assert.Equal(t, u.ID, uid)

	require.NoError(t, e.svc.DeleteAPIToken(ctx, u.ID, api.ID))
	_, ok, err = e.svc.IsValidToken(ctx, api.Token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCurrentUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)
	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, meta())
	require.NoError(t, err)

	bySession := RequestMeta{SessionID: out.SessionID}
	byBearer := RequestMeta{BearerToken: out.Token}
	staleSession := RequestMeta{SessionID: "stale", BearerToken: out.Token}

	for _, m := range []RequestMeta{bySession, byBearer, staleSession} {
		uid, err := e.svc.CurrentUserID(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, u.ID, uid)
		assert.True(t, e.svc.IsAuthenticated(ctx, m))
	}

	cu, err := e.svc.CurrentUser(ctx, byBearer)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", cu.Email)

	_, err = e.svc.CurrentUserID(ctx, RequestMeta{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, e.svc.IsAuthenticated(ctx, RequestMeta{}))
}

func TestTOTPLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	_, err := e.svc.EnrollTOTP(ctx, u.ID, meta())
	assert.ErrorIs(t, err, ErrSessionRequired)

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, meta())
	require.NoError(t, err)
	m := meta()
	m.SessionID = out.SessionID

	_, err = e.svc.ConfirmTOTP(ctx, u.ID, "123456", m)
	assert.ErrorIs(t, err, ErrNoPendingEnrollment)

	enr, err := e.svc.EnrollTOTP(ctx, u.ID, m)
	require.NoError(t, err)
	assert.Contains(t, enr.URL, "otpauth://totp/")

	_, err = e.svc.ConfirmTOTP(ctx, u.ID, e.wrongCode(t, enr.Secret), m)
	assert.ErrorIs(t, err, ErrInvalidTOTPCode)

	codes, err := e.svc.ConfirmTOTP(ctx, u.ID, e.code(t, enr.Secret), m)
	require.NoError(t, err)
	assert.Len(t, codes, recovery.CodeCount)

	st, err := e.svc.MFAStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, MFAStatus{TOTPEnabled: true, RemainingRecoveryCodes: 10}, st)

	_, err = e.svc.EnrollTOTP(ctx, u.ID, m)
	assert.ErrorIs(t, err, ErrTOTPAlreadyEnabled)

	regen, err := e.svc.RegenerateRecoveryCodes(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, codes, regen)

	// el login ahora pide segundo factor
	need, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	assert.Equal(t, FailureMissingTOTPCode, need.Failure.Kind)

	// dispositivo de confianza que debe caer al desactivar
	_, err = e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TOTPCode: e.code(t, enr.Secret), TrustDevice: true, Client: ClientWeb}, meta())
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: "bad", TOTPCode: e.code(t, enr.Secret)}, m), ErrInvalidCredentials)
	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass}, m), ErrMissingTOTPCode)
	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass, RecoveryCode: codes[0]}, m), ErrInvalidTOTPCode, "el batch viejo ya no vale")
	require.NoError(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass, RecoveryCode: regen[0]}, m))

	st, err = e.svc.MFAStatus(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, MFAStatus{}, st)
	list, err := e.svc.ListDevices(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	evs := e.events(t, u.ID)
	assert.Equal(t, repository.EventTOTPDisabled, evs[0].Type)
	assert.EqualValues(t, 1, evs[0].Metadata["devices_revoked"])
	assert.Contains(t, types(evs), repository.EventTOTPEnabled)

	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass}, m), ErrTOTPNotEnabled)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.PasswordChangeLimit = rate.Limit{Max: 4, Window: time.Minute} })
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	keep, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)
	other, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)

	m := meta()
	m.BearerToken = keep.Token

	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "wrong", "new password 1", m), ErrInvalidCredentials)
	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, goodPass, "short", m), ErrWeakPassword)
	require.NoError(t, e.svc.ChangePassword(ctx, u.ID, goodPass, "new password 1", m))

	_, ok, err := e.svc.IsValidToken(ctx, keep.Token)
	require.NoError(t, err)
	assert.True(t, ok, "el token presentado sobrevive")
	_, ok, err = e.svc.IsValidToken(ctx, other.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	ev := e.events(t, u.ID)[0]
	assert.Equal(t, repository.EventPasswordChanged, ev.Type)
	assert.EqualValues(t, 1, ev.Metadata["tokens_revoked"])

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "new password 1"}, meta())
	require.NoError(t, err)
	assert.True(t, out.Authenticated())

	// cuarto intento dentro de la ventana: permitido; quinto: bloqueado
	assert.ErrorIs(t, e.svc.ChangePassword(ctx, u.ID, "wrong", "whatever 123", m), ErrInvalidCredentials)
	err = e.svc.ChangePassword(ctx, u.ID, "wrong", "whatever 123", m)
	rl, ok := IsRateLimited(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, time.Minute, rl.RetryAfter)
	assert.Equal(t, repository.EventRateLimitViolation, e.events(t, u.ID)[0].Type)
}

func TestDevicesRevoke(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, secret := e.user(t, "ana@example.com", true)
	login := func() *repository.TrustedDevice {
		out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TOTPCode: e.code(t, secret), TrustDevice: true, Client: ClientWeb}, meta())
		require.NoError(t, err)
		require.NotNil(t, out.TrustedDevice)
		return out.TrustedDevice
	}
	a := login()
	login()

	require.NoError(t, e.svc.RevokeDevice(ctx, u.ID, a.ID, meta()))
	ev := e.events(t, u.ID)[0]
	assert.Equal(t, repository.EventTrustedDeviceRemoved, ev.Type)
	assert.Equal(t, a.ID, ev.Metadata["device_id"])
	assert.ErrorIs(t, e.svc.RevokeDevice(ctx, u.ID, a.ID, meta()), repository.ErrNotFound)

	n, eff, err := e.svc.RevokeAllDevices(ctx, u.ID, meta())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, -1, cookie(eff, "cinelog_trusted_device").MaxAge)
}

func TestLogin_Trace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "ana@example.com", false)
	_, secret := e.user(t, "bea@example.com", true)

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingCredentials, StatePasswordVerified, StateNoSecondFactor, StateAuthenticated}, out.Trace)

	out, err = e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: "nope"}, meta())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingCredentials, StateRejected}, out.Trace)

	out, err = e.svc.Login(ctx, LoginInput{Email: "bea@example.com", Password: goodPass}, meta())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingCredentials, StatePasswordVerified, StateAwaitingSecondFactor}, out.Trace)

	out, err = e.svc.Login(ctx, LoginInput{Email: "bea@example.com", Password: goodPass, TOTPCode: e.wrongCode(t, secret)}, meta())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingCredentials, StatePasswordVerified, StateAwaitingSecondFactor, StateRejected}, out.Trace)

	out, err = e.svc.Login(ctx, LoginInput{Email: "bea@example.com", Password: goodPass, TOTPCode: e.code(t, secret)}, meta())
	require.NoError(t, err)
	assert.Equal(t, []State{StateAwaitingCredentials, StatePasswordVerified, StateAwaitingSecondFactor, StateAuthenticated}, out.Trace)
	assert.Equal(t, out.State, out.Trace[len(out.Trace)-1])
}

func TestLogin_SweepsExpiredTokens(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.user(t, "ana@example.com", false)

	stale, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)
	fresh, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)

	e.clk.advance(48 * time.Hour)
	_, err = e.db.AuthTokens().GetByHash(ctx, tokenHash(stale.Token))
	require.NoError(t, err, "nadie lo presentó todavía")

	later, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientAPI}, meta())
	require.NoError(t, err)
	require.True(t, later.Authenticated())

	for _, tok := range []string{stale.Token, fresh.Token} {
		_, err = e.db.AuthTokens().GetByHash(ctx, tokenHash(tok))
		assert.True(t, repository.IsNotFound(err), "el login barre los vencidos")
	}
	_, err = e.db.AuthTokens().GetByHash(ctx, tokenHash(later.Token))
	assert.NoError(t, err)
}

func TestSessionFollowsAuthToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, _ := e.user(t, "ana@example.com", false)

	login := func() RequestMeta {
		out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, Client: ClientWeb}, meta())
		require.NoError(t, err)
		h, ok, err := e.sessions.Get(ctx, out.SessionID, session.KeyTokenHash)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tokenHash(out.Token), h)
		m := meta()
		m.SessionID = out.SessionID
		return m
	}
	a, b := login(), login()

	// cambio de password desde la sesión a, sin bearer
	require.NoError(t, e.svc.ChangePassword(ctx, u.ID, goodPass, "new password 1", a))
	assert.EqualValues(t, 1, e.events(t, u.ID)[0].Metadata["tokens_revoked"])

	uid, err := e.svc.CurrentUserID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
	_, err = e.svc.CurrentUserID(ctx, b)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, e.svc.IsAuthenticated(ctx, b))

	// logout sólo con la sesión también revoca el token
	c := login()
	h, _, err := e.sessions.Get(ctx, c.SessionID, session.KeyTokenHash)
	require.NoError(t, err)
	_, err = e.svc.Logout(ctx, c)
	require.NoError(t, err)
	_, err = e.db.AuthTokens().GetByHash(ctx, h)
	assert.True(t, repository.IsNotFound(err))

	// el token vence antes que la entrada de sesión
	e.clk.advance(25 * time.Hour)
	_, err = e.svc.CurrentUserID(ctx, a)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDisableTOTP_AuditsSecondFactor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, secret := e.user(t, "ana@example.com", true)
	codes, err := e.svc.RegenerateRecoveryCodes(ctx, u.ID)
	require.NoError(t, err)

	out, err := e.svc.Login(ctx, LoginInput{Email: "ana@example.com", Password: goodPass, TOTPCode: e.code(t, secret), Client: ClientWeb}, meta())
	require.NoError(t, err)
	m := meta()
	m.SessionID = out.SessionID

	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass, TOTPCode: e.wrongCode(t, secret)}, m), ErrInvalidTOTPCode)
	ev := e.events(t, u.ID)[0]
	assert.Equal(t, repository.EventLoginFailedTOTP, ev.Type)
	assert.Equal(t, "disable_totp", ev.Metadata["op"])
	assert.Equal(t, testIP, ev.IP)

	assert.ErrorIs(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass, RecoveryCode: "AAAA-BBBB"}, m), ErrInvalidTOTPCode)
	ev = e.events(t, u.ID)[0]
	assert.Equal(t, repository.EventLoginFailedRecoveryCode, ev.Type)
	assert.Equal(t, "disable_totp", ev.Metadata["op"])

	require.NoError(t, e.svc.DisableTOTP(ctx, u.ID, DisableTOTPInput{Password: goodPass, RecoveryCode: codes[0]}, m))
	evs := e.events(t, u.ID)
	require.GreaterOrEqual(t, len(evs), 2)
	assert.Equal(t, []repository.AuditEventType{repository.EventTOTPDisabled, repository.EventRecoveryCodeUsed}, types(evs[:2]))
	assert.Equal(t, "disable_totp", evs[1].Metadata["op"])
	assert.EqualValues(t, len(codes)-1, evs[1].Metadata["remaining"])
}
