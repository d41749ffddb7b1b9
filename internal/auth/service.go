// Package auth es la máquina de verificación de credenciales y el resto de las
// operaciones de cuenta sensibles (TOTP, password, tokens, dispositivos).
//
// Las operaciones nunca escriben en http.ResponseWriter: devuelven Effects
// (cookies/headers) que aplica la capa HTTP.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/mfa/devices"
	"github.com/dropDatabas3/cinelog/internal/mfa/recovery"
	"github.com/dropDatabas3/cinelog/internal/rate"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/security/secretbox"
	tokens "github.com/dropDatabas3/cinelog/internal/security/token"
	"github.com/dropDatabas3/cinelog/internal/session"
)

const tokenBytes = 32

// Config son los parámetros de auth que vienen de config.yaml.
type Config struct {
	SessionCookie string
	BearerCookie  string
	DeviceCookie  string
	Cookies       session.CookiePolicy

	TokenTTL      time.Duration
	RememberMeTTL time.Duration
	SessionTTL    time.Duration
	DeviceTTL     time.Duration

	TOTPIssuer        string
	MinPasswordLength int
	PasswordParams    password.Params

	LoginLimit          rate.Limit
	PasswordChangeLimit rate.Limit
}

// DefaultConfig replica los defaults de config.Default.
func DefaultConfig() Config {
	return Config{
		SessionCookie:       "cinelog_session",
		BearerCookie:        "cinelog_token",
		DeviceCookie:        "cinelog_trusted_device",
		TokenTTL:            24 * time.Hour,
		RememberMeTTL:       87600 * time.Hour,
		SessionTTL:          24 * time.Hour,
		DeviceTTL:           devices.DefaultTTL,
		TOTPIssuer:          "cinelog",
		MinPasswordLength:   8,
		PasswordParams:      password.Default,
		LoginLimit:          rate.Limit{Max: 10, Window: 5 * time.Minute},
		PasswordChangeLimit: rate.Limit{Max: 5, Window: 5 * time.Minute},
	}
}

// Deps contiene los colaboradores del servicio.
type Deps struct {
	Users      repository.UserRepository
	AuthTokens repository.AuthTokenRepository
	APITokens  repository.APITokenRepository
	Recovery   *recovery.Manager
	Devices    *devices.Manager
	Audit      *audit.Service
	Sessions   session.Store
	Limiter    *rate.Limiter
	Box        *secretbox.Box
	Config     Config
}

type Service struct {
	users      repository.UserRepository
	authTokens repository.AuthTokenRepository
	apiTokens  repository.APITokenRepository
	recovery   *recovery.Manager
	devices    *devices.Manager
	audit      *audit.Service
	sessions   session.Store
	limiter    *rate.Limiter
	box        *secretbox.Box
	cfg        Config

	// colapsa lookups concurrentes del mismo bearer
	sf singleflight.Group

	dummyOnce sync.Once
	dummyHash string

	Clock func() time.Time
}

func NewService(d Deps) *Service {
	cfg := d.Config
	def := DefaultConfig()
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = def.SessionCookie
	}
	if cfg.BearerCookie == "" {
		cfg.BearerCookie = def.BearerCookie
	}
	if cfg.DeviceCookie == "" {
		cfg.DeviceCookie = def.DeviceCookie
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.RememberMeTTL <= 0 {
		cfg.RememberMeTTL = def.RememberMeTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.DeviceTTL <= 0 {
		cfg.DeviceTTL = def.DeviceTTL
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = def.TOTPIssuer
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = def.MinPasswordLength
	}
	if cfg.PasswordParams == (password.Params{}) {
		cfg.PasswordParams = def.PasswordParams
	}
	return &Service{
		users:      d.Users,
		authTokens: d.AuthTokens,
		apiTokens:  d.APITokens,
		recovery:   d.Recovery,
		devices:    d.Devices,
		audit:      d.Audit,
		sessions:   d.Sessions,
		limiter:    d.Limiter,
		box:        d.Box,
		cfg:        cfg,
		Clock:      time.Now,
	}
}

// Config devuelve la configuración efectiva (con defaults aplicados).
func (s *Service) Config() Config { return s.cfg }

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) record(ctx context.Context, userID string, t repository.AuditEventType, meta RequestMeta, md map[string]any) {
	s.audit.Log(ctx, audit.Entry{
		UserID:    userID,
		Type:      t,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Metadata:  md,
	})
}

// checkLimit aplica lim; si bloquea audita rate_limit_violation bajo userID.
func (s *Service) checkLimit(ctx context.Context, scope, key string, lim rate.Limit, userID string, meta RequestMeta) *RateLimitError {
	res := s.limiter.Check(ctx, scope, key, lim)
	if res.Allowed {
		return nil
	}
	s.record(ctx, userID, repository.EventRateLimitViolation, meta, map[string]any{
		"scope":       scope,
		"key":         key,
		"retry_after": rate.CeilSeconds(res.RetryAfter),
	})
	return &RateLimitError{RetryAfter: res.RetryAfter}
}

func (s *Service) loadUser(ctx context.Context, userID string) (*repository.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if repository.IsNotFound(err) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return u, nil
}

func (s *Service) openTOTPSecret(u *repository.User) (string, error) {
	secret, err := s.box.Open(*u.TOTPSecret)
	if err != nil {
		return "", fmt.Errorf("auth: open totp secret: %w", err)
	}
	return secret, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummyPasswordHash es un argon2id fijo, con los mismos parámetros que los
// passwords reales, para igualar el tiempo de respuesta cuando el email no existe.
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := password.Hash(s.cfg.PasswordParams, "cinelog-timing-equalizer")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func tokenHash(token string) string {
	return tokens.SHA256Hex(strings.TrimSpace(token))
}
