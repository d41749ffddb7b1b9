package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix es el prefijo de todas las variables de entorno que pisan el YAML.
const EnvPrefix = "CINELOG_"

// LimitConfig es un límite de la ventana deslizante. Limit 0 lo desactiva.
type LimitConfig struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type Config struct {
	App struct {
		// dev | prod | test
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr           string        `yaml:"addr"`
		TrustedProxies []string      `yaml:"trusted_proxies"`
		PublicHTTPS    bool          `yaml:"public_https"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
		// Token bucket grueso por IP delante de todo el API.
		IPThrottle struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"ip_throttle"`
	} `yaml:"server"`

	Storage struct {
		Driver       string `yaml:"driver"` // postgres | sqlite | memory
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
		Migrate      bool   `yaml:"migrate"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Auth struct {
		SessionCookie   string        `yaml:"session_cookie"`
		BearerCookie    string        `yaml:"bearer_cookie"`
		DeviceCookie    string        `yaml:"device_cookie"`
		CookieDomain    string        `yaml:"cookie_domain"`
		SameSite        string        `yaml:"samesite"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		RememberMeTTL   time.Duration `yaml:"remember_me_ttl"`
		SessionTTL      time.Duration `yaml:"session_ttl"`
		DeviceTTL       time.Duration `yaml:"device_ttl"`
		FingerprintSalt string        `yaml:"fingerprint_salt"`
		// base64(32 bytes); sella los secretos TOTP en DB.
		SecretboxKey      string `yaml:"secretbox_key"`
		TOTPIssuer        string `yaml:"totp_issuer"`
		MinPasswordLength int    `yaml:"min_password_length"`
	} `yaml:"auth"`

	Rate struct {
		Enabled        bool        `yaml:"enabled"`
		Login          LimitConfig `yaml:"login"`
		PasswordChange LimitConfig `yaml:"password_change"`
		DeviceRevoke   LimitConfig `yaml:"device_revoke"`
		TOTP           LimitConfig `yaml:"totp"`
		Recovery       LimitConfig `yaml:"recovery"`
	} `yaml:"rate"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default retorna la configuración de un nodo self-hosted con sqlite local.
func Default() *Config {
	var c Config
	c.App.Env = "dev"
	c.App.LogLevel = "info"
	c.Server.Addr = ":8080"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 30 * time.Second
	c.Server.ShutdownGrace = 10 * time.Second
	c.Server.IPThrottle.RPS = 20
	c.Server.IPThrottle.Burst = 40
	c.Storage.Driver = "sqlite"
	c.Storage.DSN = "file:cinelog.db"
	c.Storage.Migrate = true
	c.Cache.Kind = "memory"
	c.Cache.Redis.Prefix = "cinelog"
	c.Auth.SessionCookie = "cinelog_session"
	c.Auth.BearerCookie = "cinelog_token"
	c.Auth.DeviceCookie = "cinelog_trusted_device"
	c.Auth.SameSite = "lax"
	c.Auth.TokenTTL = 24 * time.Hour
	c.Auth.RememberMeTTL = 87600 * time.Hour
	c.Auth.SessionTTL = 24 * time.Hour
	c.Auth.DeviceTTL = 30 * 24 * time.Hour
	c.Auth.TOTPIssuer = "cinelog"
	c.Auth.MinPasswordLength = 8
	c.Rate.Enabled = true
	c.Rate.Login = LimitConfig{Limit: 10, Window: 5 * time.Minute}
	c.Rate.PasswordChange = LimitConfig{Limit: 5, Window: 5 * time.Minute}
	c.Rate.DeviceRevoke = LimitConfig{Limit: 10, Window: 5 * time.Minute}
	c.Rate.TOTP = LimitConfig{Limit: 5, Window: 5 * time.Minute}
	c.Rate.Recovery = LimitConfig{Limit: 3, Window: time.Hour}
	c.Metrics.Enabled = true
	return &c
}

// Load parte de Default, aplica el YAML (si path no está vacío), las variables
// CINELOG_* y valida. Un path inexistente es error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		// DSN sqlite relativo al directorio del YAML
		if c.Storage.Driver == "sqlite" {
			c.Storage.DSN = resolveSQLitePath(filepath.Dir(path), c.Storage.DSN)
		}
	}

	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func resolveSQLitePath(base, dsn string) string {
	p, query, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || strings.HasPrefix(query, "mode=memory") {
		return dsn
	}
	out := "file:" + filepath.Clean(filepath.Join(base, p))
	if query != "" {
		out += "?" + query
	}
	return out
}

func (c *Config) normalize() {
	c.App.Env = strings.ToLower(strings.TrimSpace(c.App.Env))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Cache.Kind = strings.ToLower(strings.TrimSpace(c.Cache.Kind))
	c.Auth.SameSite = strings.ToLower(strings.TrimSpace(c.Auth.SameSite))
	// Los nombres de cookie vacíos en YAML vuelven al default
	d := Default()
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = d.Auth.SessionCookie
	}
	if c.Auth.BearerCookie == "" {
		c.Auth.BearerCookie = d.Auth.BearerCookie
	}
	if c.Auth.DeviceCookie == "" {
		c.Auth.DeviceCookie = d.Auth.DeviceCookie
	}
}

// IsProd indica si corre en modo producción.
func (c *Config) IsProd() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return i, true, nil
}

func getEnvFloat(key string) (float64, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return f, true, nil
}

func getEnvBool(key string) (bool, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return b, true, nil
}

func getEnvDur(key string) (time.Duration, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return d, true, nil
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// envSetter acumula el primer error de parseo para no repetir el chequeo en cada variable.
type envSetter struct{ err error }

func (e *envSetter) setStr(key string, dst *string) {
	if v, ok := getEnvStr(key); ok {
		*dst = v
	}
}

func (e *envSetter) setInt(key string, dst *int) {
	v, ok, err := getEnvInt(key)
	e.keep(err)
	if ok {
		*dst = v
	}
}

func (e *envSetter) setFloat(key string, dst *float64) {
	v, ok, err := getEnvFloat(key)
	e.keep(err)
	if ok {
		*dst = v
	}
}

func (e *envSetter) setBool(key string, dst *bool) {
	v, ok, err := getEnvBool(key)
	e.keep(err)
	if ok {
		*dst = v
	}
}

func (e *envSetter) setDur(key string, dst *time.Duration) {
	v, ok, err := getEnvDur(key)
	e.keep(err)
	if ok {
		*dst = v
	}
}

func (e *envSetter) setLimit(key string, dst *LimitConfig) {
	e.setInt(key+"_LIMIT", &dst.Limit)
	e.setDur(key+"_WINDOW", &dst.Window)
}

func (e *envSetter) keep(err error) {
	if e.err == nil && err != nil {
		e.err = err
	}
}

// applyEnvOverrides pisa config.yaml con variables de entorno CINELOG_*.
func (c *Config) applyEnvOverrides() error {
	var e envSetter

	// APP
	e.setStr("APP_ENV", &c.App.Env)
	e.setStr("LOG_LEVEL", &c.App.LogLevel)

	// SERVER
	e.setStr("SERVER_ADDR", &c.Server.Addr)
	if v, ok := getEnvCSV("SERVER_TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}
	e.setBool("SERVER_PUBLIC_HTTPS", &c.Server.PublicHTTPS)
	e.setDur("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	e.setDur("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.setDur("SERVER_SHUTDOWN_GRACE", &c.Server.ShutdownGrace)
	e.setFloat("SERVER_IP_THROTTLE_RPS", &c.Server.IPThrottle.RPS)
	e.setInt("SERVER_IP_THROTTLE_BURST", &c.Server.IPThrottle.Burst)

	// STORAGE
	e.setStr("STORAGE_DRIVER", &c.Storage.Driver)
	e.setStr("STORAGE_DSN", &c.Storage.DSN)
	e.setInt("STORAGE_MAX_OPEN_CONNS", &c.Storage.MaxOpenConns)
	e.setInt("STORAGE_MAX_IDLE_CONNS", &c.Storage.MaxIdleConns)
	e.setBool("STORAGE_MIGRATE", &c.Storage.Migrate)

	// CACHE
	e.setStr("CACHE_KIND", &c.Cache.Kind)
	e.setStr("REDIS_ADDR", &c.Cache.Redis.Addr)
	e.setStr("REDIS_PASSWORD", &c.Cache.Redis.Password)
	e.setInt("REDIS_DB", &c.Cache.Redis.DB)
	e.setStr("REDIS_PREFIX", &c.Cache.Redis.Prefix)

	// AUTH
	e.setStr("AUTH_SESSION_COOKIE", &c.Auth.SessionCookie)
	e.setStr("AUTH_BEARER_COOKIE", &c.Auth.BearerCookie)
	e.setStr("AUTH_DEVICE_COOKIE", &c.Auth.DeviceCookie)
	e.setStr("AUTH_COOKIE_DOMAIN", &c.Auth.CookieDomain)
	e.setStr("AUTH_SAMESITE", &c.Auth.SameSite)
	e.setDur("AUTH_TOKEN_TTL", &c.Auth.TokenTTL)
	e.setDur("AUTH_REMEMBER_ME_TTL", &c.Auth.RememberMeTTL)
	e.setDur("AUTH_SESSION_TTL", &c.Auth.SessionTTL)
	e.setDur("AUTH_DEVICE_TTL", &c.Auth.DeviceTTL)
	e.setStr("AUTH_FINGERPRINT_SALT", &c.Auth.FingerprintSalt)
	e.setStr("AUTH_SECRETBOX_KEY", &c.Auth.SecretboxKey)
	e.setStr("AUTH_TOTP_ISSUER", &c.Auth.TOTPIssuer)
	e.setInt("AUTH_MIN_PASSWORD_LENGTH", &c.Auth.MinPasswordLength)

	// RATE
	e.setBool("RATE_ENABLED", &c.Rate.Enabled)
	e.setLimit("RATE_LOGIN", &c.Rate.Login)
	e.setLimit("RATE_PASSWORD_CHANGE", &c.Rate.PasswordChange)
	e.setLimit("RATE_DEVICE_REVOKE", &c.Rate.DeviceRevoke)
	e.setLimit("RATE_TOTP", &c.Rate.TOTP)
	e.setLimit("RATE_RECOVERY", &c.Rate.Recovery)

	// METRICS
	e.setBool("METRICS_ENABLED", &c.Metrics.Enabled)

	return e.err
}

// Validate revisa valores críticos. Los errores se acumulan con errors.Join.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Storage.Driver {
	case "postgres", "sqlite":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn required for driver %q", c.Storage.Driver)
		}
	case "memory":
		if c.IsProd() {
			add("storage.driver memory is not allowed in prod")
		}
	default:
		add("storage.driver must be postgres, sqlite or memory (got %q)", c.Storage.Driver)
	}

	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			add("cache.redis.addr required when cache.kind=redis")
		}
	default:
		add("cache.kind must be memory or redis (got %q)", c.Cache.Kind)
	}

	switch c.Auth.SameSite {
	case "lax", "strict":
	case "none":
		if !c.Server.PublicHTTPS {
			add("auth.samesite=none requires server.public_https")
		}
	default:
		add("auth.samesite must be lax, strict or none (got %q)", c.Auth.SameSite)
	}

	names := map[string]bool{}
	for _, n := range []string{c.Auth.SessionCookie, c.Auth.BearerCookie, c.Auth.DeviceCookie} {
		if names[n] {
			add("cookie name %q used twice", n)
		}
		names[n] = true
	}

	for name, d := range map[string]time.Duration{
		"auth.token_ttl":       c.Auth.TokenTTL,
		"auth.remember_me_ttl": c.Auth.RememberMeTTL,
		"auth.session_ttl":     c.Auth.SessionTTL,
		"auth.device_ttl":      c.Auth.DeviceTTL,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if c.Auth.MinPasswordLength < 8 {
		add("auth.min_password_length must be at least 8")
	}
	if c.IsProd() {
		if strings.TrimSpace(c.Auth.SecretboxKey) == "" {
			add("auth.secretbox_key required in prod")
		}
		if strings.TrimSpace(c.Auth.FingerprintSalt) == "" {
			add("auth.fingerprint_salt required in prod")
		}
	}

	for name, l := range map[string]LimitConfig{
		"rate.login":           c.Rate.Login,
		"rate.password_change": c.Rate.PasswordChange,
		"rate.device_revoke":   c.Rate.DeviceRevoke,
		"rate.totp":            c.Rate.TOTP,
		"rate.recovery":        c.Rate.Recovery,
	} {
		if l.Limit < 0 || (l.Limit > 0 && l.Window <= 0) {
			add("%s needs limit >= 0 and a positive window", name)
		}
	}

	if c.Server.IPThrottle.RPS < 0 || c.Server.IPThrottle.Burst < 0 {
		add("server.ip_throttle values must not be negative")
	}

	return errors.Join(errs...)
}
