package middlewares

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/cinelog/internal/audit"
	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/rate"
)

// Auditor es lo mínimo del servicio de auditoría que usa el middleware.
type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// UserRateKey arma "<prefix>_user_<id>"; sin usuario en contexto cae a la IP.
func UserRateKey(prefix string) RateKeyFunc {
	return func(r *http.Request) string {
		if id := GetUserID(r.Context()); id != "" {
			return prefix + "_user_" + id
		}
		return prefix + "_ip_" + GetMeta(r.Context()).IP
	}
}

// IPRateKey arma "<prefix>_ip_<ip>".
func IPRateKey(prefix string) RateKeyFunc {
	return func(r *http.Request) string {
		return prefix + "_ip_" + GetMeta(r.Context()).IP
	}
}

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter *rate.Limiter
	// Scope etiqueta la métrica y el evento de auditoría ("totp", "recovery", …).
	Scope   string
	Limit   rate.Limit
	KeyFunc RateKeyFunc
	Audit   Auditor
}

// WithRateLimit aplica la ventana deslizante antes del handler. Un bloqueo responde
// 429 con Retry-After y queda auditado como rate_limit_violation.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil || cfg.Limit.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPRateKey(cfg.Scope)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := cfg.KeyFunc(r)
			res := cfg.Limiter.Check(ctx, cfg.Scope, key, cfg.Limit)
			if res.Allowed {
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
				next.ServeHTTP(w, r)
				return
			}

			userID := GetUserID(ctx)
			if userID == "" {
				userID = repository.SystemUserID
			}
			meta := GetMeta(ctx)
			if cfg.Audit != nil {
				cfg.Audit.Log(ctx, audit.Entry{
					UserID:    userID,
					Type:      repository.EventRateLimitViolation,
					IP:        meta.IP,
					UserAgent: meta.UserAgent,
					Metadata: map[string]any{
						"scope":       cfg.Scope,
						"key":         key,
						"retry_after": rate.CeilSeconds(res.RetryAfter),
					},
				})
			}
			logger.From(ctx).Warn("rate limit exceeded",
				logger.Layer("middleware"), logger.RateKey(key), logger.RetryAfter(res.RetryAfter))

			httperrors.WriteError(w, httperrors.ErrRateLimitExceeded.WithRetryAfter(res.RetryAfter))
		})
	}
}
