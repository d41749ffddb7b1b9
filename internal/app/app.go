// Package app arma el contenedor de dependencias que comparten el server HTTP y
// la CLI de administración.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/auth"
	"github.com/dropDatabas3/cinelog/internal/cache"
	"github.com/dropDatabas3/cinelog/internal/config"
	accountctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/account"
	authctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/health"
	securityctrl "github.com/dropDatabas3/cinelog/internal/http/controllers/security"
	"github.com/dropDatabas3/cinelog/internal/http/helpers"
	"github.com/dropDatabas3/cinelog/internal/http/router"
	"github.com/dropDatabas3/cinelog/internal/mfa/devices"
	"github.com/dropDatabas3/cinelog/internal/mfa/recovery"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/rate"
	"github.com/dropDatabas3/cinelog/internal/security/password"
	"github.com/dropDatabas3/cinelog/internal/security/secretbox"
	"github.com/dropDatabas3/cinelog/internal/session"
	"github.com/dropDatabas3/cinelog/internal/store"
)

// Container agrupa las dependencias ya conectadas.
type Container struct {
	Config *config.Config

	Conn  store.AdapterConnection
	Redis redis.UniversalClient // nil con cache.kind=memory
	Cache cache.Client

	Limiter  *rate.Limiter // nil con rate.enabled=false
	Box      *secretbox.Box
	Audit    *audit.Service
	Recovery *recovery.Manager
	Devices  *devices.Manager
	Sessions *session.CacheStore
	Auth     *auth.Service
}

// Options ajusta Build para la CLI, que no necesita cache ni limiter.
type Options struct {
	SkipMigrate bool
	StoreOnly   bool
}

// Build conecta storage (y migra si storage.migrate), cache y limiter, y construye
// los servicios. Ante error cierra lo que ya había abierto.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Container, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.Conn, err = store.OpenAdapter(ctx, store.AdapterConfig{
		Name:         cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
		MaxIdleConns: cfg.Storage.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage connected", logger.Driver(c.Conn.Name()))

	if cfg.Storage.Migrate && !opts.SkipMigrate {
		if err = store.Migrate(ctx, c.Conn); err != nil {
			return nil, err
		}
	}

	c.Box, err = openBox(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c.Audit = audit.NewService(c.Conn.Audit())
	c.Recovery = recovery.NewManager(c.Conn.RecoveryCodes())
	c.Devices = devices.NewManager(c.Conn.TrustedDevices(), cfg.Auth.FingerprintSalt)
	c.Devices.TTL = cfg.Auth.DeviceTTL
	if opts.StoreOnly {
		return c, nil
	}

	if err = c.openCache(ctx); err != nil {
		return nil, err
	}

	c.Sessions = session.NewCacheStore(c.Cache, cfg.Auth.SessionTTL)
	c.Auth = auth.NewService(auth.Deps{
		Users:      c.Conn.Users(),
		AuthTokens: c.Conn.AuthTokens(),
		APITokens:  c.Conn.APITokens(),
		Recovery:   c.Recovery,
		Devices:    c.Devices,
		Audit:      c.Audit,
		Sessions:   c.Sessions,
		Limiter:    c.Limiter,
		Box:        c.Box,
		Config:     authConfig(cfg),
	})
	return c, nil
}

// openCache crea el cliente de sesiones y el backend del limiter. Con redis
// ambos comparten la misma conexión.
func (c *Container) openCache(ctx context.Context) error {
	cfg := c.Config
	switch strings.ToLower(cfg.Cache.Kind) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		c.Redis = rdb
		c.Cache = cache.FromRedis(rdb, cfg.Cache.Redis.Prefix+":sess")
		if cfg.Rate.Enabled {
			c.Limiter = rate.NewLimiter(rate.NewRedisWindow(rdb, cfg.Cache.Redis.Prefix+":rl:"))
		}
	default:
		cl, err := cache.New(ctx, cache.Config{Kind: cfg.Cache.Kind, Prefix: "sess"})
		if err != nil {
			return err
		}
		c.Cache = cl
		if cfg.Rate.Enabled {
			c.Limiter = rate.NewLimiter(rate.NewMemoryWindow())
		}
	}
	return nil
}

// openBox abre la secretbox. En dev sin clave se genera una efímera: los secretos
// TOTP sellados no sobreviven un reinicio.
func openBox(ctx context.Context, cfg *config.Config) (*secretbox.Box, error) {
	key := strings.TrimSpace(cfg.Auth.SecretboxKey)
	if key == "" && !cfg.IsProd() {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("secretbox: %w", err)
		}
		key = base64.StdEncoding.EncodeToString(b[:])
		logger.From(ctx).Warn("auth.secretbox_key not set, using an ephemeral key",
			logger.Component("app"))
	}
	box, err := secretbox.New(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return box, nil
}

func limit(l config.LimitConfig) rate.Limit {
	return rate.Limit{Max: l.Limit, Window: l.Window}
}

func authConfig(cfg *config.Config) auth.Config {
	a := cfg.Auth
	return auth.Config{
		SessionCookie: a.SessionCookie,
		BearerCookie:  a.BearerCookie,
		DeviceCookie:  a.DeviceCookie,
		Cookies: session.CookiePolicy{
			Domain:   a.CookieDomain,
			SameSite: a.SameSite,
		},
		TokenTTL:            a.TokenTTL,
		RememberMeTTL:       a.RememberMeTTL,
		SessionTTL:          a.SessionTTL,
		DeviceTTL:           a.DeviceTTL,
		TOTPIssuer:          a.TOTPIssuer,
		MinPasswordLength:   a.MinPasswordLength,
		PasswordParams:      password.Default,
		LoginLimit:          limit(cfg.Rate.Login),
		PasswordChangeLimit: limit(cfg.Rate.PasswordChange),
	}
}

// Handler construye el router HTTP. metricsHandler nil no expone /metrics.
func (c *Container) Handler(version string, metricsHandler http.Handler) (http.Handler, error) {
	cfg := c.Config
	proxies, err := helpers.ParseProxies(cfg.Server.TrustedProxies, cfg.Server.PublicHTTPS)
	if err != nil {
		return nil, err
	}
	ac := c.Auth.Config()

	return router.New(router.Deps{
		Auth:     authctrl.NewControllers(c.Auth, c.Auth),
		Account:  accountctrl.NewControllers(c.Auth),
		Security: securityctrl.NewEventsController(c.Audit),
		Health: healthctrl.NewHealthController(version,
			healthctrl.Check{Name: "storage", Ping: c.Conn.Ping},
			healthctrl.Check{Name: "cache", Ping: c.Cache.Ping},
		),
		Authenticator: c.Auth,
		Limiter:       c.Limiter,
		Limits: router.Limits{
			TOTP:         limit(cfg.Rate.TOTP),
			Recovery:     limit(cfg.Rate.Recovery),
			DeviceRevoke: limit(cfg.Rate.DeviceRevoke),
		},
		Audit: c.Audit,
		Cookies: helpers.CookieNames{
			Session: ac.SessionCookie,
			Bearer:  ac.BearerCookie,
			Device:  ac.DeviceCookie,
		},
		Proxies:         proxies,
		IPThrottleRPS:   cfg.Server.IPThrottle.RPS,
		IPThrottleBurst: cfg.Server.IPThrottle.Burst,
		Metrics:         metricsHandler,
	}), nil
}

// PgPool retorna el pool de postgres si el driver lo expone, para métricas.
func (c *Container) PgPool() *pgxpool.Pool {
	if p, ok := c.Conn.(interface{ Pool() *pgxpool.Pool }); ok {
		return p.Pool()
	}
	return nil
}

// Close libera conexiones en orden inverso al de apertura.
func (c *Container) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.Conn != nil {
		errs = append(errs, c.Conn.Close())
	}
	return errors.Join(errs...)
}
