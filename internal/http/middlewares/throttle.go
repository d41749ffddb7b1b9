package middlewares

import (
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	xrate "golang.org/x/time/rate"

	httperrors "github.com/dropDatabas3/cinelog/internal/http/errors"
)

// WithIPThrottle es un token bucket grueso por IP delante de todo el API. No
// reemplaza a WithRateLimit: corta ráfagas sin tocar el backend de ventanas.
func WithIPThrottle(rps float64, burst int) Middleware {
	if rps <= 0 || burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	var mu sync.Mutex
	buckets := gocache.New(10*time.Minute, 5*time.Minute)
	bucket := func(ip string) *xrate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if v, ok := buckets.Get(ip); ok {
			return v.(*xrate.Limiter)
		}
		l := xrate.NewLimiter(xrate.Limit(rps), burst)
		buckets.SetDefault(ip, l)
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetMeta(r.Context()).IP
			if ip != "" && !bucket(ip).Allow() {
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded.WithRetryAfter(time.Second))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
