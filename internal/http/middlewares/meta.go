package middlewares

import (
	"net/http"

	"github.com/dropDatabas3/cinelog/internal/http/helpers"
)

// WithRequestMeta calcula una vez por request IP, UA, cookies y bearer y los deja
// en el contexto para middlewares posteriores y controllers.
func WithRequestMeta(names helpers.CookieNames, proxies *helpers.Proxies) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := helpers.RequestMetaFrom(r, names, proxies)
			next.ServeHTTP(w, r.WithContext(WithMeta(r.Context(), meta)))
		})
	}
}
