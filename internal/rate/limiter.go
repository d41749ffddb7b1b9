// Package rate implementa un rate limiter de ventana deslizante por clave.
//
// Las claves las compone el llamador ("password_change_user_42", "login_ip_1.2.3.4"),
// así el mismo mecanismo sirve para límites por usuario y por IP.
package rate

import (
	"context"
	"time"

	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"
)

// Result es el resultado de un intento.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limit es un par máximo/ventana configurable.
type Limit struct {
	Max    int
	Window time.Duration
}

// Backend guarda, por clave, los timestamps de intentos dentro de la ventana.
type Backend interface {
	// Take poda los timestamps fuera de la ventana y, si quedan menos de max,
	// registra el intento actual. Un intento bloqueado no extiende la ventana.
	Take(ctx context.Context, key string, max int, window time.Duration) (Result, error)

	// TimeUntilReset retorna cuánto falta para que el timestamp más viejo salga de la
	// ventana; 0 si la ventana está vacía.
	TimeUntilReset(ctx context.Context, key string, window time.Duration) (time.Duration, error)
}

// Limiter expone las operaciones del limiter sobre un Backend.
type Limiter struct {
	backend Backend
}

func NewLimiter(b Backend) *Limiter {
	return &Limiter{backend: b}
}

// IsAllowed registra el intento y retorna false cuando la ventana ya tiene max intentos.
func (l *Limiter) IsAllowed(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	res, err := l.backend.Take(ctx, key, max, window)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// TimeUntilReset alimenta el hint Retry-After.
func (l *Limiter) TimeUntilReset(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	return l.backend.TimeUntilReset(ctx, key, window)
}

// Check aplica lim sobre key. Fail-open: si el backend falla se loguea y se permite
// el intento.
func (l *Limiter) Check(ctx context.Context, scope, key string, lim Limit) Result {
	if l == nil || l.backend == nil || lim.Max <= 0 || lim.Window <= 0 {
		return Result{Allowed: true}
	}
	res, err := l.backend.Take(ctx, key, lim.Max, lim.Window)
	if err != nil {
		logger.From(ctx).Warn("rate limiter unavailable, allowing",
			logger.Component("rate"), logger.RateKey(key), logger.Err(err))
		return Result{Allowed: true}
	}
	if !res.Allowed {
		metrics.RateLimitBlocked(scope)
		if res.RetryAfter <= 0 {
			res.RetryAfter = lim.Window
		}
	}
	return res
}

// CeilSeconds redondea hacia arriba a segundos enteros, para headers Retry-After.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
